// Nested proofs for a full query.PathQuery (spec §4.10 "one per Merk
// subtree traversed plus one per non-Merk subtree queried"). Envelope
// proves a single parent/child hop; ProveQuery generalizes that to the
// whole subquery plan query.Evaluate walks, recursing through every
// Tree-like descent and producing one Layer per Merk subtree visited.
package proof

import (
	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/element"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/merk"
	"github.com/dashpay/grovedb-go/query"
	"github.com/dashpay/grovedb-go/storage"
)

// ChildLayer is one Tree-like key's nested proof. Disclosed records
// whether query.Evaluate would also yield this key as its own
// query.ResultItem (AddParentTreeOnSubquery admitted it), independent of
// whatever results the descent into it produces.
type ChildLayer struct {
	Key       []byte
	Disclosed bool
	Nested    NestedLayer
}

// NestedLayer is one Merk subtree's Layer plus, for every key the query
// plan descended through, that child subtree's own NestedLayer.
type NestedLayer struct {
	Layer    Layer
	Children []ChildLayer
}

// ProveQuery walks the same subquery plan query.Evaluate uses -- same
// items, same left-to-right direction, same offset/limit cursor -- and
// emits a NestedLayer disclosing exactly the keys and subtrees that plan
// visits, generalizing Prove's single flat key list against a single
// subtree to a whole query.PathQuery's multi-layer descent.
func ProveQuery(ctx storage.Context, pq query.PathQuery) (NestedLayer, cost.Cost, error) {
	cur := query.NewCursor(pq.SizedQuery)
	return proveSubtree(ctx, pq.Path, pq.SizedQuery.Query, cur)
}

// descent is one Tree-like key found while matching q's items, recorded
// so its child subtree can be proved after the current layer's Layer is
// generated (the child's Layer needs nothing from this one, but building
// it after keeps the stack shape close to evalSubtree's).
type descent struct {
	key       []byte
	sub       query.Query
	disclosed bool
}

func proveSubtree(ctx storage.Context, path [][]byte, q query.Query, cur *query.Cursor) (NestedLayer, cost.Cost, error) {
	var total cost.Cost
	prefix := storage.DerivePrefix(path)

	tree, c, err := merk.OpenTree(ctx, prefix)
	total = total.Add(c)
	if err != nil {
		return NestedLayer{}, total, err
	}

	var allKeys [][]byte
	var descents []descent

	for _, it := range q.Items {
		if cur.Stopped() {
			break
		}
		matched, c, err := query.MatchItem(ctx, prefix, it, q.LeftToRight)
		total = total.Add(c)
		if err != nil {
			return NestedLayer{}, total, err
		}

		for _, m := range matched {
			if cur.Stopped() {
				break
			}
			node, err := merk.Deserialize(m.Key, m.Value)
			if err != nil {
				return NestedLayer{}, total, err
			}
			elem, err := element.Deserialize(node.Value)
			if err != nil {
				return NestedLayer{}, total, err
			}

			sub, hasSub := q.SubqueryFor(m.Key)
			if elem.IsTreeLike() && hasSub {
				disclosed := q.AddParentTreeOnSubquery && cur.Admit()
				allKeys = append(allKeys, m.Key)
				descents = append(descents, descent{key: m.Key, sub: *sub, disclosed: disclosed})
				continue
			}

			if cur.Admit() {
				allKeys = append(allKeys, m.Key)
			}
		}
	}

	layer, c, err := GenerateOrdered(tree, allKeys, q.LeftToRight)
	total = total.Add(c)
	if err != nil {
		return NestedLayer{}, total, err
	}

	var children []ChildLayer
	for _, d := range descents {
		childPath := append(clonePathProof(path), d.key)
		nested, c, err := proveSubtree(ctx, childPath, d.sub, cur)
		total = total.Add(c)
		if err != nil {
			return NestedLayer{}, total, err
		}
		children = append(children, ChildLayer{Key: d.key, Disclosed: d.disclosed, Nested: nested})
	}

	return NestedLayer{Layer: layer, Children: children}, total, nil
}

// VerifyQuery checks nested against trustedRoot and returns every
// disclosed entry as a query.ResultItem, reconstructed purely from proof
// data so it is directly comparable to query.Evaluate's own output (spec
// §4.10's verify(prove(db,q), root(db)) == query(db,q) property). Each
// ChildLayer's parent value must carry exactly the combined value hash
// its own verified root implies, generalizing VerifyEnvelope's single-hop
// check to arbitrary nesting depth.
func VerifyQuery(nested NestedLayer, trustedRoot hash.Digest, path [][]byte) ([]query.ResultItem, error) {
	kvs, err := Verify(nested.Layer, trustedRoot)
	if err != nil {
		return nil, err
	}

	children := make(map[string]ChildLayer, len(nested.Children))
	for _, c := range nested.Children {
		children[string(c.Key)] = c
	}

	var out []query.ResultItem
	for _, kv := range kvs {
		child, isChild := children[string(kv.Key)]
		if !isChild {
			out = append(out, query.ResultItem{Path: clonePathProof(path), Key: kv.Key, Value: kv.Value})
			continue
		}

		if child.Disclosed {
			out = append(out, query.ResultItem{Path: clonePathProof(path), Key: kv.Key, Value: kv.Value})
		}

		declaredHash, ok := disclosedValueHash(nested.Layer, kv.Key)
		if !ok {
			return nil, groveerr.ErrInvalidProof
		}
		childRoot, _, err := Execute(child.Nested.Layer)
		if err != nil {
			return nil, err
		}
		if hash.CombinedValueHash(kv.Value, childRoot) != declaredHash {
			return nil, groveerr.ErrInvalidProof
		}

		childPath := append(clonePathProof(path), kv.Key)
		childResults, err := VerifyQuery(child.Nested, childRoot, childPath)
		if err != nil {
			return nil, err
		}
		out = append(out, childResults...)
	}
	return out, nil
}

func clonePathProof(path [][]byte) [][]byte {
	out := make([][]byte, len(path))
	copy(out, path)
	return out
}
