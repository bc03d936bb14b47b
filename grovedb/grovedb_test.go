package grovedb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-go/batch"
	"github.com/dashpay/grovedb-go/config"
	"github.com/dashpay/grovedb-go/element"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/merk"
	"github.com/dashpay/grovedb-go/proof"
	"github.com/dashpay/grovedb-go/query"
	"github.com/dashpay/grovedb-go/storage"
	"github.com/dashpay/grovedb-go/storage/memstore"
)

func TestInsertGetDelete(t *testing.T) {
	db := Open(memstore.New(), config.Default())

	_, err := db.Insert(nil, []byte("a"), element.NewItem([]byte("1"), nil))
	require.NoError(t, err)

	e, _, err := db.Get(nil, []byte("a"))
	require.NoError(t, err)
	require.Equal(t, "1", string(e.Bytes))

	_, err = db.Delete(nil, []byte("a"))
	require.NoError(t, err)
	_, _, err = db.Get(nil, []byte("a"))
	require.Error(t, err)
}

func TestApplyBatchAndQuery(t *testing.T) {
	db := Open(memstore.New(), config.Default())

	_, err := db.ApplyBatch([]batch.QualifiedGroveDbOp{
		{Path: nil, Key: []byte("x"), Op: batch.Op{Kind: batch.OpMerkPut, Element: element.NewItem([]byte("x1"), nil)}},
		{Path: nil, Key: []byte("y"), Op: batch.Op{Kind: batch.OpMerkPut, Element: element.NewItem([]byte("y1"), nil)}},
	})
	require.NoError(t, err)

	results, _, err := db.Query(query.PathQuery{
		SizedQuery: query.SizedQuery{
			Query: query.Query{Items: []query.Item{{Kind: query.ItemRangeFull}}, LeftToRight: true},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestProveAndVerifyRoundTrip(t *testing.T) {
	db := Open(memstore.New(), config.Default())
	for _, k := range []string{"a", "b", "c"} {
		_, err := db.Insert(nil, []byte(k), element.NewItem([]byte(k+"v"), nil))
		require.NoError(t, err)
	}

	layer, _, err := db.Prove(nil, [][]byte{[]byte("b")})
	require.NoError(t, err)

	trustedRoot := mustRootHash(t, db)
	kvs, err := db.Verify(layer, trustedRoot)
	require.NoError(t, err)
	require.Len(t, kvs, 1)
	require.Equal(t, "b", string(kvs[0].Key))
}

// TestProveQueryAndVerifyQueryRoundTrip descends two levels (grove root ->
// "groups" -> "eng") and checks that verifying the nested proof yields the
// same entries as query.Evaluate over the same PathQuery.
func TestProveQueryAndVerifyQueryRoundTrip(t *testing.T) {
	db := Open(memstore.New(), config.Default())

	_, err := db.Insert(nil, []byte("groups"), element.NewTree(nil, nil))
	require.NoError(t, err)
	groups := [][]byte{[]byte("groups")}
	_, err = db.Insert(groups, []byte("eng"), element.NewTree(nil, nil))
	require.NoError(t, err)
	eng := [][]byte{[]byte("groups"), []byte("eng")}
	_, err = db.Insert(eng, []byte("alice"), element.NewItem([]byte("alice-v"), nil))
	require.NoError(t, err)
	_, err = db.Insert(eng, []byte("bob"), element.NewItem([]byte("bob-v"), nil))
	require.NoError(t, err)

	pq := query.PathQuery{
		SizedQuery: query.SizedQuery{
			Query: query.Query{
				Items:                 []query.Item{{Kind: query.ItemKey, Key: []byte("groups")}},
				LeftToRight:           true,
				DefaultSubqueryBranch: &query.Query{
					Items:                 []query.Item{{Kind: query.ItemKey, Key: []byte("eng")}},
					LeftToRight:           true,
					DefaultSubqueryBranch: &query.Query{Items: []query.Item{{Kind: query.ItemRangeFull}}, LeftToRight: true},
				},
			},
		},
	}

	want, _, err := db.Query(pq)
	require.NoError(t, err)
	require.Len(t, want, 2)

	nested, _, err := db.ProveQuery(pq)
	require.NoError(t, err)

	trustedRoot := mustRootHash(t, db)
	got, err := db.VerifyQuery(nested, trustedRoot, nil)
	require.NoError(t, err)

	toMap := func(items []query.ResultItem) map[string]string {
		m := make(map[string]string, len(items))
		for _, it := range items {
			m[string(it.Key)] = string(it.Value)
		}
		return m
	}
	require.Equal(t, toMap(want), toMap(got))
}

func TestEstimateBatchCostDoesNotPersist(t *testing.T) {
	db := Open(memstore.New(), config.Default())

	_, err := db.EstimateBatchCost([]batch.QualifiedGroveDbOp{
		{Path: nil, Key: []byte("ghost"), Op: batch.Op{Kind: batch.OpMerkPut, Element: element.NewItem([]byte("v"), nil)}},
	})
	require.NoError(t, err)

	_, _, err = db.Get(nil, []byte("ghost"))
	require.Error(t, err)
}

func TestTransactionIsolationAndCommit(t *testing.T) {
	db := Open(memstore.New(), config.Default())
	txn, err := db.StartTransaction()
	require.NoError(t, err)

	_, err = txn.Insert(nil, []byte("k"), element.NewItem([]byte("v"), nil))
	require.NoError(t, err)

	_, _, err = db.Get(nil, []byte("k"))
	require.Error(t, err)

	require.NoError(t, txn.Commit())

	e, _, err := db.Get(nil, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "v", string(e.Bytes))
}

func TestProveNonMerkAndVerifyEnvelopeRoundTrip(t *testing.T) {
	db := Open(memstore.New(), config.Default())

	_, err := db.ApplyBatch([]batch.QualifiedGroveDbOp{
		{Path: nil, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMerkPut, Element: element.Element{Kind: element.MmrTree}}},
	})
	require.NoError(t, err)
	_, err = db.ApplyBatch([]batch.QualifiedGroveDbOp{
		{Path: nil, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMmrTreeAppend, Value: []byte("entry-1")}},
		{Path: nil, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMmrTreeAppend, Value: []byte("entry-2")}},
		{Path: nil, Key: []byte("log"), Op: batch.Op{Kind: batch.OpMmrTreeAppend, Value: []byte("entry-3")}},
	})
	require.NoError(t, err)

	env, _, err := db.ProveNonMerk(nil, []byte("log"), 1)
	require.NoError(t, err)

	trustedRoot := mustRootHash(t, db)
	elementValue, leafValue, err := db.VerifyEnvelope(env, trustedRoot)
	require.NoError(t, err)
	require.Equal(t, []byte("entry-2"), leafValue)

	decoded, err := element.Deserialize(elementValue)
	require.NoError(t, err)
	require.Equal(t, element.MmrTree, decoded.Kind)
}

func mustRootHash(t *testing.T, db *GroveDb) hash.Digest {
	t.Helper()
	ctx := db.store.Immediate()
	tree, _, err := merk.OpenTree(ctx, storage.DerivePrefix(nil))
	require.NoError(t, err)
	return tree.RootHash()
}
