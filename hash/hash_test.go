package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueHashDeterministic(t *testing.T) {
	a := ValueHash([]byte("hello"))
	b := ValueHash([]byte("hello"))
	require.Equal(t, a, b)
}

func TestKVHashLengthPrefixPreventsCollision(t *testing.T) {
	// Without a length prefix, ("ab","c") and ("a","bc") would collide
	// under naive concatenation. KVHash must distinguish them.
	h1 := KVHash([]byte("ab"), []byte("c"))
	h2 := KVHash([]byte("a"), []byte("bc"))
	require.NotEqual(t, h1, h2)
}

func TestNodeHashAbsentChildrenUseZeroSentinel(t *testing.T) {
	kv := KVHash([]byte("k"), []byte("v"))
	h1 := NodeHash(kv, Zero, Zero)
	h2 := NodeHash(kv, Zero, Zero)
	require.Equal(t, h1, h2)
	require.NotEqual(t, h1, Zero)
}

func TestNodeHashWithCountDiffersFromPlain(t *testing.T) {
	kv := KVHash([]byte("k"), []byte("v"))
	plain := NodeHash(kv, Zero, Zero)
	counted := NodeHashWithCount(kv, Zero, Zero, 7)
	require.NotEqual(t, plain, counted)
}

func TestCombinedValueHashBindsReferenceAndTarget(t *testing.T) {
	ref := []byte("ref-bytes")
	target1 := ValueHash([]byte("target-1"))
	target2 := ValueHash([]byte("target-2"))

	h1 := CombinedValueHash(ref, target1)
	h2 := CombinedValueHash(ref, target2)
	require.NotEqual(t, h1, h2, "changing the target value must change the combined hash")

	h3 := CombinedValueHash([]byte("other-ref"), target1)
	require.NotEqual(t, h1, h3, "changing the reference path must change the combined hash")
}

func TestDigestRoundTrip(t *testing.T) {
	d := ValueHash([]byte("round-trip"))
	got := FromBytes(d.Bytes())
	require.Equal(t, d, got)
}

func TestSinsemillaDeterministic(t *testing.T) {
	p := SinsemillaHashMessage(SinsemillaIdentity(), "grove-frontier", []byte("leaf"))
	q := SinsemillaHashMessage(SinsemillaIdentity(), "grove-frontier", []byte("leaf"))
	require.Equal(t, p.Bytes(), q.Bytes())

	r := SinsemillaHashMessage(SinsemillaIdentity(), "grove-frontier", []byte("other"))
	require.NotEqual(t, p.Bytes(), r.Bytes())
}
