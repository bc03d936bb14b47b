package dense

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/storage"
	"github.com/dashpay/grovedb-go/storage/memstore"
)

func TestEmptyTreeRootIsZero(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	tr, err := Open(ctx, storage.DerivePrefix([][]byte{[]byte("d")}), 3, 0)
	require.NoError(t, err)
	root, _, err := tr.Root()
	require.NoError(t, err)
	require.True(t, root.IsZero())
}

func TestAppendFillsLevelOrderAndChangesRoot(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	tr, err := Open(ctx, storage.DerivePrefix([][]byte{[]byte("d2")}), 3, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(7), tr.Capacity())

	var lastRoot = root0(t, tr)
	for i := 0; i < 7; i++ {
		_, err := tr.Append([]byte{byte(i)})
		require.NoError(t, err)
		r := root0(t, tr)
		require.NotEqual(t, lastRoot, r)
		lastRoot = r
	}
}

func root0(t *testing.T, tr *Tree) hash.Digest {
	t.Helper()
	r, _, err := tr.Root()
	require.NoError(t, err)
	return r
}

func TestAppendBeyondCapacityFails(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	tr, err := Open(ctx, storage.DerivePrefix([][]byte{[]byte("d3")}), 1, 0)
	require.NoError(t, err)
	_, err = tr.Append([]byte("a"))
	require.NoError(t, err)
	_, err = tr.Append([]byte("b"))
	require.ErrorIs(t, err, groveerr.ErrCapacityExceeded)
}

func TestInvalidHeightRejected(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	_, err := Open(ctx, storage.DerivePrefix([][]byte{[]byte("d4")}), 0, 0)
	require.ErrorIs(t, err, groveerr.ErrInvalidPayload)
	_, err = Open(ctx, storage.DerivePrefix([][]byte{[]byte("d5")}), MaxHeight+1, 0)
	require.ErrorIs(t, err, groveerr.ErrInvalidPayload)
}

func TestGetReturnsStoredValue(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	tr, err := Open(ctx, storage.DerivePrefix([][]byte{[]byte("d6")}), 4, 0)
	require.NoError(t, err)
	_, err = tr.Append([]byte("hello"))
	require.NoError(t, err)

	v, found, _, err := tr.Get(0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello", string(v))

	_, found, _, err = tr.Get(1)
	require.NoError(t, err)
	require.False(t, found)
}

func TestProveVerifyEveryFilledPosition(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	tr, err := Open(ctx, storage.DerivePrefix([][]byte{[]byte("d7")}), 3, 0)
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		_, err := tr.Append([]byte{byte(i), byte(10 + i)})
		require.NoError(t, err)
	}
	root := root0(t, tr)

	for pos := uint32(0); pos < 7; pos++ {
		proof, _, err := tr.Prove(pos)
		require.NoError(t, err, "pos %d", pos)
		got, err := Verify(proof, root)
		require.NoError(t, err, "pos %d", pos)
		require.Equal(t, []byte{byte(pos), byte(10 + pos)}, got)
	}
}

// TestRootChargesTwoBlake3CallsPerFilledPosition fills a height-2 tree
// (capacity 3) completely: each filled position's H(p) needs one
// value_hash plus one node_hash, so three filled positions charge 6
// total Blake3Calls.
func TestRootChargesTwoBlake3CallsPerFilledPosition(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	tr, err := Open(ctx, storage.DerivePrefix([][]byte{[]byte("d9")}), 2, 0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := tr.Append([]byte{byte(i)})
		require.NoError(t, err)
	}
	_, c, err := tr.Root()
	require.NoError(t, err)
	require.Equal(t, uint64(6), c.Blake3Calls)
}

func TestDenseVerifyRejectsWrongRoot(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	tr, err := Open(ctx, storage.DerivePrefix([][]byte{[]byte("d8")}), 3, 0)
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		_, err := tr.Append([]byte{byte(i)})
		require.NoError(t, err)
	}
	proof, _, err := tr.Prove(5)
	require.NoError(t, err)

	_, err = Verify(proof, hash.Digest{0xab})
	require.ErrorIs(t, err, groveerr.ErrInvalidProof)
}
