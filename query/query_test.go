package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-go/element"
	"github.com/dashpay/grovedb-go/grove"
	"github.com/dashpay/grovedb-go/storage/memstore"
)

func u64(v uint64) *uint64 { return &v }

func TestEvaluateKeyRangeInOrder(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	g := grove.Open()

	for _, k := range []string{"a", "b", "c", "d", "e"} {
		_, err := g.Put(ctx, nil, []byte(k), element.NewItem([]byte(k+"v"), nil))
		require.NoError(t, err)
	}

	pq := PathQuery{
		Path: nil,
		SizedQuery: SizedQuery{
			Query: Query{
				Items:       []Item{{Kind: ItemRangeInclusive, Start: []byte("b"), End: []byte("d")}},
				LeftToRight: true,
			},
		},
	}
	results, _, err := Evaluate(ctx, pq)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "b", string(results[0].Key))
	require.Equal(t, "c", string(results[1].Key))
	require.Equal(t, "d", string(results[2].Key))
}

func TestEvaluateLimitAndOffset(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	g := grove.Open()
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		_, err := g.Put(ctx, nil, []byte(k), element.NewItem([]byte(k+"v"), nil))
		require.NoError(t, err)
	}

	pq := PathQuery{
		SizedQuery: SizedQuery{
			Query: Query{
				Items:       []Item{{Kind: ItemRangeFull}},
				LeftToRight: true,
			},
			Offset: u64(1),
			Limit:  u64(2),
		},
	}
	results, _, err := Evaluate(ctx, pq)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "b", string(results[0].Key))
	require.Equal(t, "c", string(results[1].Key))
}

func TestEvaluateDescendsIntoSubquery(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	g := grove.Open()

	_, err := g.Put(ctx, nil, []byte("accounts"), element.NewTree(nil, nil))
	require.NoError(t, err)
	accounts := [][]byte{[]byte("accounts")}
	_, err = g.Put(ctx, accounts, []byte("alice"), element.NewItem([]byte("alice-v"), nil))
	require.NoError(t, err)
	_, err = g.Put(ctx, accounts, []byte("bob"), element.NewItem([]byte("bob-v"), nil))
	require.NoError(t, err)

	pq := PathQuery{
		SizedQuery: SizedQuery{
			Query: Query{
				Items:                 []Item{{Kind: ItemKey, Key: []byte("accounts")}},
				LeftToRight:           true,
				DefaultSubqueryBranch: &Query{Items: []Item{{Kind: ItemRangeFull}}, LeftToRight: true},
			},
		},
	}
	results, _, err := Evaluate(ctx, pq)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "alice", string(results[0].Key))
	require.Equal(t, "bob", string(results[1].Key))
}

func TestEvaluateAddParentTreeOnSubquery(t *testing.T) {
	store := memstore.New()
	ctx := store.Immediate()
	g := grove.Open()
	_, err := g.Put(ctx, nil, []byte("accounts"), element.NewTree(nil, nil))
	require.NoError(t, err)
	accounts := [][]byte{[]byte("accounts")}
	_, err = g.Put(ctx, accounts, []byte("alice"), element.NewItem([]byte("alice-v"), nil))
	require.NoError(t, err)

	pq := PathQuery{
		SizedQuery: SizedQuery{
			Query: Query{
				Items:                   []Item{{Kind: ItemKey, Key: []byte("accounts")}},
				LeftToRight:             true,
				AddParentTreeOnSubquery: true,
				DefaultSubqueryBranch:   &Query{Items: []Item{{Kind: ItemRangeFull}}, LeftToRight: true},
			},
		},
	}
	results, _, err := Evaluate(ctx, pq)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "accounts", string(results[0].Key))
	require.Equal(t, "alice", string(results[1].Key))
}
