package merk

import (
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-go/storage"
	"github.com/dashpay/grovedb-go/storage/memstore"
)

func kv(n int) []byte { return []byte(fmt.Sprintf("key-%05d", n)) }

func putBatch(n int) []BatchEntry {
	keys := make([][]byte, n)
	for i := 0; i < n; i++ {
		keys[i] = kv(i)
	}
	sort.Slice(keys, func(i, j int) bool { return string(keys[i]) < string(keys[j]) })
	out := make([]BatchEntry, n)
	for i, k := range keys {
		out[i] = BatchEntry{Key: k, Op: Op{Kind: OpPut, Value: []byte(fmt.Sprintf("val-%d", i))}}
	}
	return out
}

// checkInvariants walks a fully materialized tree verifying the AVL
// balance-factor bound and the BST ordering property (spec §8).
func checkInvariants(t *testing.T, n *Node, lo, hi []byte) {
	t.Helper()
	if n == nil {
		return
	}
	bf := n.BalanceFactor()
	require.GreaterOrEqual(t, bf, -1)
	require.LessOrEqual(t, bf, 1)

	if lo != nil {
		require.True(t, string(n.Key) > string(lo))
	}
	if hi != nil {
		require.True(t, string(n.Key) < string(hi))
	}

	if n.Left != nil {
		checkInvariants(t, n.Left.Node, lo, n.Key)
	}
	if n.Right != nil {
		checkInvariants(t, n.Right.Node, n.Key, hi)
	}
}

func inorderKeys(n *Node) [][]byte {
	if n == nil {
		return nil
	}
	var out [][]byte
	if n.Left != nil {
		out = append(out, inorderKeys(n.Left.Node)...)
	}
	out = append(out, n.Key)
	if n.Right != nil {
		out = append(out, inorderKeys(n.Right.Node)...)
	}
	return out
}

func TestBuildFromEmptyInvariants(t *testing.T) {
	batch := putBatch(63)
	w, _, err := Apply(nil, batch, PanicFetch{})
	require.NoError(t, err)
	checkInvariants(t, w.Node, nil, nil)

	got := inorderKeys(w.Node)
	require.Len(t, got, len(batch))
	for i, k := range got {
		require.Equal(t, string(batch[i].Key), string(k))
	}

	// A median-split build of n keys is height-balanced: height is within
	// a small constant of ceil(log2(n+1)).
	h := int(w.Node.Height())
	maxExpected := int(math.Ceil(math.Log2(float64(len(batch)+1)))) + 1
	require.LessOrEqual(t, h, maxExpected)
}

func TestMergeIntoExistingMaintainsInvariants(t *testing.T) {
	w, _, err := Apply(nil, putBatch(10), PanicFetch{})
	require.NoError(t, err)

	more := []BatchEntry{
		{Key: kv(100), Op: Op{Kind: OpPut, Value: []byte("a")}},
		{Key: kv(101), Op: Op{Kind: OpPut, Value: []byte("b")}},
		{Key: kv(102), Op: Op{Kind: OpPut, Value: []byte("c")}},
	}
	w, _, err = Apply(w, more, PanicFetch{})
	require.NoError(t, err)
	checkInvariants(t, w.Node, nil, nil)

	got := inorderKeys(w.Node)
	require.Len(t, got, 13)
}

func TestReplaceExistingKeyUpdatesValue(t *testing.T) {
	w, _, err := Apply(nil, putBatch(8), PanicFetch{})
	require.NoError(t, err)

	replace := []BatchEntry{{Key: kv(3), Op: Op{Kind: OpReplace, Value: []byte("replaced")}}}
	w, _, err = Apply(w, replace, PanicFetch{})
	require.NoError(t, err)

	tree := &Tree{root: w, fetch: PanicFetch{}}
	val, _, found, _, err := tree.Get(kv(3))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "replaced", string(val))
}

func TestPatchSeesCurrentValue(t *testing.T) {
	w, _, err := Apply(nil, putBatch(4), PanicFetch{})
	require.NoError(t, err)

	seen := ""
	patch := []BatchEntry{{Key: kv(1), Op: Op{Kind: OpPatch, Patch: func(cur *Node) ([]byte, Feature, error) {
		seen = string(cur.Value)
		return []byte("patched"), cur.Feature, nil
	}}}}
	w, _, err = Apply(w, patch, PanicFetch{})
	require.NoError(t, err)
	require.Equal(t, "val-1", seen)

	tree := &Tree{root: w, fetch: PanicFetch{}}
	val, _, found, _, err := tree.Get(kv(1))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "patched", string(val))
}

func TestDeleteLeafOneAndTwoChildren(t *testing.T) {
	w, _, err := Apply(nil, putBatch(15), PanicFetch{})
	require.NoError(t, err)

	// Delete a handful of keys scattered across the tree, including the
	// root, and check the invariants and remaining key set after each.
	toDelete := []int{7, 0, 14, 3, 11}
	deleted := map[string]bool{}
	for _, i := range toDelete {
		key := kv(i)
		if deleted[string(key)] {
			continue
		}
		deleted[string(key)] = true
		batch := []BatchEntry{{Key: key, Op: Op{Kind: OpDelete}}}
		w, _, err = Apply(w, batch, PanicFetch{})
		require.NoError(t, err)
		if w != nil {
			checkInvariants(t, w.Node, nil, nil)
		}
	}

	remaining := map[string]bool{}
	if w != nil {
		for _, k := range inorderKeys(w.Node) {
			remaining[string(k)] = true
		}
	}
	for i := 0; i < 15; i++ {
		key := string(kv(i))
		if deleted[key] {
			require.False(t, remaining[key], "expected %s to be gone", key)
		} else {
			require.True(t, remaining[key], "expected %s to survive", key)
		}
	}
}

func TestDeleteAllKeysEmptiesTree(t *testing.T) {
	w, _, err := Apply(nil, putBatch(7), PanicFetch{})
	require.NoError(t, err)

	batch := make([]BatchEntry, 7)
	for i := 0; i < 7; i++ {
		batch[i] = BatchEntry{Key: kv(i), Op: Op{Kind: OpDelete}}
	}
	w, _, err = Apply(w, batch, PanicFetch{})
	require.NoError(t, err)
	require.Nil(t, w)
}

func TestDeleteAbsentKeyErrors(t *testing.T) {
	w, _, err := Apply(nil, putBatch(3), PanicFetch{})
	require.NoError(t, err)

	batch := []BatchEntry{{Key: []byte("nonexistent"), Op: Op{Kind: OpDelete}}}
	_, _, err = Apply(w, batch, PanicFetch{})
	require.Error(t, err)
}

func TestTreeCommitAndReopenRoundTrips(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	prefix := storage.DerivePrefix([][]byte{[]byte("test-subtree")})

	tree, _, err := OpenTree(ctx, prefix)
	require.NoError(t, err)
	require.True(t, tree.IsEmpty())

	_, err = tree.Apply(putBatch(20))
	require.NoError(t, err)
	_, err = tree.Commit()
	require.NoError(t, err)
	rootHash := tree.RootHash()
	require.False(t, rootHash.IsZero())

	reopened, _, err := OpenTree(ctx, prefix)
	require.NoError(t, err)
	require.False(t, reopened.IsEmpty())
	require.Equal(t, rootHash, reopened.RootHash())

	val, _, found, _, err := reopened.Get(kv(5))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "val-5", string(val))

	_, found, _, _, err = reopened.Get([]byte("absent-key"))
	require.NoError(t, err)
	require.False(t, found)
}

func TestSequentialAscendingInsertsStayBalanced(t *testing.T) {
	// Inserting keys one at a time in ascending order is the classic AVL
	// worst case (a plain BST would degenerate to a linked list); every
	// insert forces applyMerge through MaybeBalance/rotate.
	var w *Walker
	for i := 0; i < 200; i++ {
		batch := []BatchEntry{{Key: kv(i), Op: Op{Kind: OpPut, Value: []byte("v")}}}
		nw, _, err := Apply(w, batch, PanicFetch{})
		require.NoError(t, err)
		w = nw
		checkInvariants(t, w.Node, nil, nil)
	}

	h := int(w.Node.Height())
	maxExpected := int(math.Ceil(math.Log2(201))) + 1
	require.LessOrEqual(t, h, maxExpected)
}

func TestFeatureAggregationSummed(t *testing.T) {
	batch := make([]BatchEntry, 5)
	for i := 0; i < 5; i++ {
		batch[i] = BatchEntry{Key: kv(i), Op: Op{Kind: OpPut, Value: []byte("x"), Feature: Feature{Kind: Summed, Sum: int64(i + 1)}}}
	}
	w, _, err := Apply(nil, batch, PanicFetch{})
	require.NoError(t, err)
	require.Equal(t, int64(1+2+3+4+5), w.Node.Aggregate.Sum)
}
