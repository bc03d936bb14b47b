package proof

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-go/batch"
	"github.com/dashpay/grovedb-go/config"
	"github.com/dashpay/grovedb-go/element"
	"github.com/dashpay/grovedb-go/merk"
	"github.com/dashpay/grovedb-go/nonmerk/mmr"
	"github.com/dashpay/grovedb-go/storage"
	"github.com/dashpay/grovedb-go/storage/memstore"
)

func rootHash(t *testing.T, ctx storage.Context, path [][]byte) [32]byte {
	t.Helper()
	tree, _, err := merk.OpenTree(ctx, storage.DerivePrefix(path))
	require.NoError(t, err)
	return tree.RootHash()
}

func TestEnvelopeRoundTripAcrossMmrTree(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	root := [][]byte{}

	_, err := batch.Apply(ctx, []batch.QualifiedGroveDbOp{
		{Path: root, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMerkPut, Element: element.Element{Kind: element.MmrTree}}},
	})
	require.NoError(t, err)

	_, err = batch.Apply(ctx, []batch.QualifiedGroveDbOp{
		{Path: root, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMmrTreeAppend, Value: []byte("entry-1")}},
		{Path: root, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMmrTreeAppend, Value: []byte("entry-2")}},
		{Path: root, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMmrTreeAppend, Value: []byte("entry-3")}},
	})
	require.NoError(t, err)

	tree, _, err := merk.OpenTree(ctx, storage.DerivePrefix(root))
	require.NoError(t, err)
	parentLayer, _, err := Generate(tree, [][]byte{[]byte("log")})
	require.NoError(t, err)

	childPrefix := storage.DerivePrefix([][]byte{[]byte("log")})
	m := mmr.Open(ctx, childPrefix, 4) // mmr_size after 3 leaves
	mmrProof, _, err := m.Prove(1)     // leaf index 1 ("entry-2")
	require.NoError(t, err)

	env := Envelope{
		ParentLayer: parentLayer,
		ParentKey:   []byte("log"),
		Leaf:        NonMerkProof{Kind: LayerMMR, MMR: mmrProof},
	}

	trustedRoot := rootHash(t, ctx, root)
	elementValue, leafValue, err := VerifyEnvelope(env, trustedRoot, config.Default())
	require.NoError(t, err)
	require.Equal(t, []byte("entry-2"), leafValue)

	decoded, err := element.Deserialize(elementValue)
	require.NoError(t, err)
	require.Equal(t, element.MmrTree, decoded.Kind)
	require.Equal(t, uint64(4), decoded.MmrSize)
}

func TestEnvelopeRejectsTamperedLeaf(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	root := [][]byte{}

	_, err := batch.Apply(ctx, []batch.QualifiedGroveDbOp{
		{Path: root, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMerkPut, Element: element.Element{Kind: element.MmrTree}}},
	})
	require.NoError(t, err)
	_, err = batch.Apply(ctx, []batch.QualifiedGroveDbOp{
		{Path: root, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMmrTreeAppend, Value: []byte("entry-1")}},
		{Path: root, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMmrTreeAppend, Value: []byte("entry-2")}},
	})
	require.NoError(t, err)

	tree, _, err := merk.OpenTree(ctx, storage.DerivePrefix(root))
	require.NoError(t, err)
	parentLayer, _, err := Generate(tree, [][]byte{[]byte("log")})
	require.NoError(t, err)

	childPrefix := storage.DerivePrefix([][]byte{[]byte("log")})
	m := mmr.Open(ctx, childPrefix, 3) // 2 leaves, 1 merge
	mmrProof, _, err := m.Prove(0)
	require.NoError(t, err)
	mmrProof.LeafValue = []byte("tampered")

	env := Envelope{
		ParentLayer: parentLayer,
		ParentKey:   []byte("log"),
		Leaf:        NonMerkProof{Kind: LayerMMR, MMR: mmrProof},
	}

	trustedRoot := rootHash(t, ctx, root)
	_, _, err = VerifyEnvelope(env, trustedRoot, config.Default())
	require.Error(t, err)
}

func TestEnvelopeWireRoundTrip(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	root := [][]byte{}

	_, err := batch.Apply(ctx, []batch.QualifiedGroveDbOp{
		{Path: root, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMerkPut, Element: element.Element{Kind: element.MmrTree}}},
	})
	require.NoError(t, err)
	_, err = batch.Apply(ctx, []batch.QualifiedGroveDbOp{
		{Path: root, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMmrTreeAppend, Value: []byte("entry-1")}},
		{Path: root, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMmrTreeAppend, Value: []byte("entry-2")}},
	})
	require.NoError(t, err)

	tree, _, err := merk.OpenTree(ctx, storage.DerivePrefix(root))
	require.NoError(t, err)
	parentLayer, _, err := Generate(tree, [][]byte{[]byte("log")})
	require.NoError(t, err)

	childPrefix := storage.DerivePrefix([][]byte{[]byte("log")})
	m := mmr.Open(ctx, childPrefix, 3)
	mmrProof, _, err := m.Prove(0)
	require.NoError(t, err)

	env := Envelope{ParentLayer: parentLayer, ParentKey: []byte("log"), Leaf: NonMerkProof{Kind: LayerMMR, MMR: mmrProof}}

	encoded := EncodeEnvelope(env)
	decoded, err := DecodeEnvelope(encoded)
	require.NoError(t, err)

	trustedRoot := rootHash(t, ctx, root)
	_, leafValue, err := VerifyEnvelope(decoded, trustedRoot, config.Default())
	require.NoError(t, err)
	require.Equal(t, []byte("entry-1"), leafValue)
}
