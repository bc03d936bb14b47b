package batch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-go/element"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/merk"
	"github.com/dashpay/grovedb-go/storage"
	"github.com/dashpay/grovedb-go/storage/memstore"
)

func getElem(t *testing.T, ctx storage.Context, path [][]byte, key []byte) element.Element {
	t.Helper()
	tree, _, err := merk.OpenTree(ctx, storage.DerivePrefix(path))
	require.NoError(t, err)
	v, _, found, _, err := tree.Get(key)
	require.NoError(t, err)
	require.True(t, found)
	e, err := element.Deserialize(v)
	require.NoError(t, err)
	return e
}

func TestApplyNestedSubtreeInOneBatch(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()

	root := [][]byte{}
	accounts := [][]byte{[]byte("accounts")}

	ops := []QualifiedGroveDbOp{
		{Path: root, Key: []byte("accounts"), Op: Op{Kind: OpMerkPut, Element: element.NewTree(nil, nil)}},
		{Path: accounts, Key: []byte("alice"), Op: Op{Kind: OpMerkPut, Element: element.NewItem([]byte("alice-data"), nil)}},
		{Path: accounts, Key: []byte("bob"), Op: Op{Kind: OpMerkPut, Element: element.NewItem([]byte("bob-data"), nil)}},
	}
	_, err := Apply(ctx, ops)
	require.NoError(t, err)

	alice := getElem(t, ctx, accounts, []byte("alice"))
	require.Equal(t, "alice-data", string(alice.Bytes))

	parentElem := getElem(t, ctx, root, []byte("accounts"))
	require.NotNil(t, parentElem.RootKey)
}

func TestMmrAppendGroupCollapsesToSingleRootFold(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	root := [][]byte{}

	_, err := Apply(ctx, []QualifiedGroveDbOp{
		{Path: root, Key: []byte("log"), Op: Op{Kind: OpMerkPut, Element: element.Element{Kind: element.MmrTree}}},
	})
	require.NoError(t, err)

	_, err = Apply(ctx, []QualifiedGroveDbOp{
		{Path: root, Key: []byte("log"), Op: Op{Kind: OpMmrTreeAppend, Value: []byte("entry-1")}},
		{Path: root, Key: []byte("log"), Op: Op{Kind: OpMmrTreeAppend, Value: []byte("entry-2")}},
		{Path: root, Key: []byte("log"), Op: Op{Kind: OpMmrTreeAppend, Value: []byte("entry-3")}},
	})
	require.NoError(t, err)

	logElem := getElem(t, ctx, root, []byte("log"))
	require.Equal(t, uint64(4), logElem.MmrSize) // 3 leaves + 1 merge (mmr_size = 2*3 - popcount(3) = 4)
}

func TestDuplicateMerkPutOnSameKeyRejected(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	root := [][]byte{}

	_, err := Apply(ctx, []QualifiedGroveDbOp{
		{Path: root, Key: []byte("x"), Op: Op{Kind: OpMerkPut, Element: element.NewItem([]byte("1"), nil)}},
		{Path: root, Key: []byte("x"), Op: Op{Kind: OpMerkPut, Element: element.NewItem([]byte("2"), nil)}},
	})
	require.ErrorIs(t, err, groveerr.ErrInvalidPayload)
}

func TestBulkAppendAndDenseInsertGroupsCollapse(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	root := [][]byte{}

	_, err := Apply(ctx, []QualifiedGroveDbOp{
		{Path: root, Key: []byte("bulk"), Op: Op{Kind: OpMerkPut, Element: element.Element{Kind: element.BulkAppendTree, ChunkPower: 2}}},
		{Path: root, Key: []byte("dense"), Op: Op{Kind: OpMerkPut, Element: element.Element{Kind: element.DenseAppendOnlyFixedSizeTree, DenseHeight: 3}}},
	})
	require.NoError(t, err)

	_, err = Apply(ctx, []QualifiedGroveDbOp{
		{Path: root, Key: []byte("bulk"), Op: Op{Kind: OpBulkAppend, Value: []byte("e1")}},
		{Path: root, Key: []byte("bulk"), Op: Op{Kind: OpBulkAppend, Value: []byte("e2")}},
		{Path: root, Key: []byte("dense"), Op: Op{Kind: OpDenseTreeInsert, Value: []byte("d1")}},
	})
	require.NoError(t, err)

	bulkElem := getElem(t, ctx, root, []byte("bulk"))
	require.Equal(t, uint64(2), bulkElem.TotalCount)

	denseElem := getElem(t, ctx, root, []byte("dense"))
	require.Equal(t, uint16(1), denseElem.DenseCount)
}
