package proof

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/merk"
	"github.com/dashpay/grovedb-go/storage"
	"github.com/dashpay/grovedb-go/storage/memstore"
)

func buildTree(t *testing.T, keys []string) (*merk.Tree, storage.Context) {
	t.Helper()
	store := memstore.New()
	ctx := store.Immediate()
	prefix := storage.DerivePrefix([][]byte{[]byte("proof-test")})

	tree, _, err := merk.OpenTree(ctx, prefix)
	require.NoError(t, err)

	var batch []merk.BatchEntry
	for _, k := range keys {
		batch = append(batch, merk.BatchEntry{
			Key: []byte(k),
			Op:  merk.Op{Kind: merk.OpPut, Value: []byte(k + "-value")},
		})
	}
	_, err = tree.Apply(batch)
	require.NoError(t, err)
	_, err = tree.Commit()
	require.NoError(t, err)
	return tree, ctx
}

func TestProveSingleKeyRoundTrip(t *testing.T) {
	tree, ctx := buildTree(t, []string{"alice", "bob", "carol", "dave", "erin"})
	_ = ctx

	layer, _, err := Generate(tree, [][]byte{[]byte("carol")})
	require.NoError(t, err)

	kvs, err := Verify(layer, tree.RootHash())
	require.NoError(t, err)
	require.Len(t, kvs, 1)
	require.Equal(t, "carol", string(kvs[0].Key))
	require.Equal(t, "carol-value", string(kvs[0].Value))
}

func TestProveMultipleKeysRoundTrip(t *testing.T) {
	tree, _ := buildTree(t, []string{"alice", "bob", "carol", "dave", "erin", "frank"})

	want := []string{"alice", "dave", "frank"}
	keys := make([][]byte, len(want))
	for i, k := range want {
		keys[i] = []byte(k)
	}
	layer, _, err := Generate(tree, keys)
	require.NoError(t, err)

	kvs, err := Verify(layer, tree.RootHash())
	require.NoError(t, err)
	require.Len(t, kvs, len(want))
	got := map[string]string{}
	for _, kv := range kvs {
		got[string(kv.Key)] = string(kv.Value)
	}
	for _, k := range want {
		require.Equal(t, k+"-value", got[k])
	}
}

func TestProveWithNoKeysYieldsRootHashOnly(t *testing.T) {
	tree, _ := buildTree(t, []string{"x", "y", "z"})

	layer, _, err := Generate(tree, nil)
	require.NoError(t, err)

	kvs, err := Verify(layer, tree.RootHash())
	require.NoError(t, err)
	require.Empty(t, kvs)
}

func TestVerifyRejectsWrongRoot(t *testing.T) {
	tree, _ := buildTree(t, []string{"alice", "bob"})

	layer, _, err := Generate(tree, [][]byte{[]byte("alice")})
	require.NoError(t, err)

	var wrongRoot [32]byte
	wrongRoot[0] = 0xff
	_, err = Verify(layer, wrongRoot)
	require.Error(t, err)
}

func TestVerifyRejectsMalformedOpList(t *testing.T) {
	_, err := Execute(Layer{Ops: []Op{{Code: OpParent}}})
	require.Error(t, err)

	_, err = Execute(Layer{Ops: nil})
	require.Error(t, err)
}

// TestGenerateOrderedInvertedRoundTrip exercises the Inverted op family:
// a descending (leftToRight=false) layer must use ParentInverted/
// ChildInverted/PushInverted exclusively, reconstruct the identical root
// hash as the ascending layer for the same keys, and still verify.
func TestGenerateOrderedInvertedRoundTrip(t *testing.T) {
	tree, _ := buildTree(t, []string{"alice", "bob", "carol", "dave", "erin"})

	ascending, _, err := GenerateOrdered(tree, [][]byte{[]byte("bob"), []byte("dave")}, true)
	require.NoError(t, err)
	descending, _, err := GenerateOrdered(tree, [][]byte{[]byte("bob"), []byte("dave")}, false)
	require.NoError(t, err)

	for _, op := range descending.Ops {
		require.Contains(t, []OpCode{OpPushInverted, OpParentInverted, OpChildInverted}, op.Code,
			"descending layer must use only the Inverted op family")
	}
	for _, op := range ascending.Ops {
		require.NotContains(t, []OpCode{OpPushInverted, OpParentInverted, OpChildInverted}, op.Code)
	}

	root := tree.RootHash()
	kvsAsc, err := Verify(ascending, root)
	require.NoError(t, err)
	kvsDesc, err := Verify(descending, root)
	require.NoError(t, err)

	gotAsc := map[string]string{}
	for _, kv := range kvsAsc {
		gotAsc[string(kv.Key)] = string(kv.Value)
	}
	gotDesc := map[string]string{}
	for _, kv := range kvsDesc {
		gotDesc[string(kv.Key)] = string(kv.Value)
	}
	require.Equal(t, gotAsc, gotDesc)
}

// TestExecuteInvertedSwapsSides builds two minimal two-node layers by hand
// -- identical except one uses Parent/Child and the other
// ParentInverted/ChildInverted -- and confirms they attach the child to
// opposite sides, producing different root hashes (spec §4.10).
func TestExecuteInvertedSwapsSides(t *testing.T) {
	parent := ProofNode{Variant: VariantKVHash, KVHash: hash.KVHash([]byte("p"), []byte("pv"))}
	child := ProofNode{Variant: VariantKV, Key: []byte("c"), Value: []byte("cv")}

	upright := Layer{Ops: []Op{
		{Code: OpPush, Node: child},
		{Code: OpPush, Node: parent},
		{Code: OpParent},
	}}
	inverted := Layer{Ops: []Op{
		{Code: OpPushInverted, Node: child},
		{Code: OpPushInverted, Node: parent},
		{Code: OpParentInverted},
	}}

	rootUpright, _, err := Execute(upright)
	require.NoError(t, err)
	rootInverted, _, err := Execute(inverted)
	require.NoError(t, err)
	require.NotEqual(t, rootUpright, rootInverted,
		"Parent attaches LEFT, ParentInverted attaches RIGHT -- different child side means different node_hash")
}
