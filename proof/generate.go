package proof

import (
	"bytes"
	"sort"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/merk"
)

// Generate walks tree and produces the smallest Layer that discloses
// exactly the requested keys, replaying the BST search for each key and
// collapsing to a single Hash node wherever a subtree contains none of
// them (spec §4.10).
func Generate(tree *merk.Tree, keys [][]byte) (Layer, cost.Cost, error) {
	return GenerateOrdered(tree, keys, true)
}

// GenerateOrdered is Generate with an explicit traversal direction.
// leftToRight == false emits a layer built by visiting each node's Right
// child before its Left child and exclusively using the Inverted op
// family (PushInverted/ParentInverted/ChildInverted) for it, matching
// query.Query{LeftToRight: false}'s descent order (spec §4.10). The
// reconstructed root hash is identical either way; only op choice and
// push order differ.
func GenerateOrdered(tree *merk.Tree, keys [][]byte, leftToRight bool) (Layer, cost.Cost, error) {
	root := tree.Root()
	if root == nil {
		return Layer{}, cost.Cost{}, nil
	}
	if len(keys) == 0 {
		code := OpPush
		if !leftToRight {
			code = OpPushInverted
		}
		return Layer{Ops: []Op{
			{Code: code, Node: ProofNode{Variant: VariantHash, SubtreeHash: root.Hash, SubtreeAggregate: root.Aggregate}},
		}}, cost.Cost{}, nil
	}

	sorted := append([][]byte(nil), keys...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })

	var ops []Op
	c, err := generateNode(tree.Fetch(), root, sorted, &ops, leftToRight)
	if err != nil {
		return Layer{}, c, err
	}
	return Layer{Ops: ops}, c, nil
}

// generateNode emits the ops proving node's subtree against keys (already
// sorted ascending), descending only into children that bracket a
// requested key and disclosing every other sibling as a single opaque
// Hash node. When leftToRight is false, the Right child is visited (and
// pushed) before the Left child and every emitted op uses the Inverted
// family; Execute's documented LEFT/RIGHT swap for Inverted combinators
// (spec §4.10) means the combinator *names* stay in the same relative
// order (first-emitted always attaches whichever child was pushed last,
// second-emitted the other), only which opcode spells "attach LEFT"
// changes.
func generateNode(fetch merk.Fetch, node *merk.Node, keys [][]byte, ops *[]Op, leftToRight bool) (cost.Cost, error) {
	var total cost.Cost
	var leftKeys, rightKeys [][]byte
	queried := false
	for _, k := range keys {
		switch bytes.Compare(k, node.Key) {
		case 0:
			queried = true
		case -1:
			leftKeys = append(leftKeys, k)
		default:
			rightKeys = append(rightKeys, k)
		}
	}

	pushCode := OpPush
	if !leftToRight {
		pushCode = OpPushInverted
	}

	// first is visited (and pushed) before second; ascending that's
	// Left-then-Right, descending it's Right-then-Left.
	firstLink, secondLink := node.Left, node.Right
	firstKeys, secondKeys := leftKeys, rightKeys
	if !leftToRight {
		firstLink, secondLink = node.Right, node.Left
		firstKeys, secondKeys = rightKeys, leftKeys
	}

	visit := func(link *merk.Link, side [][]byte) (cost.Cost, error) {
		if link == nil {
			return cost.Cost{}, nil
		}
		if len(side) > 0 {
			child, c, err := merk.LoadChild(fetch, link)
			if err != nil {
				return c, err
			}
			c2, err := generateNode(fetch, child, side, ops, leftToRight)
			return c.Add(c2), err
		}
		*ops = append(*ops, Op{Code: pushCode, Node: ProofNode{
			Variant: VariantHash, SubtreeHash: link.Hash, SubtreeAggregate: link.Aggregate,
		}})
		return cost.Cost{}, nil
	}

	c, err := visit(firstLink, firstKeys)
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	c, err = visit(secondLink, secondKeys)
	total = total.Add(c)
	if err != nil {
		return total, err
	}

	*ops = append(*ops, Op{Code: pushCode, Node: selfProofNode(node, queried)})

	// The combinator emitted first always attaches `second` (it was
	// pushed last, so it's the stack's second-from-top once self lands
	// on top); the one emitted second attaches `first`.
	if secondLink != nil {
		code := OpChild
		if !leftToRight {
			code = OpChildInverted
		}
		*ops = append(*ops, Op{Code: code})
	}
	if firstLink != nil {
		code := OpParent
		if !leftToRight {
			code = OpParentInverted
		}
		*ops = append(*ops, Op{Code: code})
	}
	return total, nil
}

// selfProofNode discloses node's own key and value when queried, else
// only its kv_hash. A node whose ValueHash departs from the plain
// hash.ValueHash(Value) (Tree-like/Reference/non-Merk elements binding a
// combined hash, spec §4.3) still discloses its raw value but carries the
// override explicitly rather than making the verifier recompute it.
func selfProofNode(node *merk.Node, queried bool) ProofNode {
	if !queried {
		return ProofNode{Variant: VariantKVHash, KVHash: node.KVHash, Feature: node.Feature}
	}
	if node.ValueHash == hash.ValueHash(node.Value) {
		return ProofNode{Variant: VariantKV, Key: node.Key, Value: node.Value, Feature: node.Feature}
	}
	return ProofNode{
		Variant: VariantKVValueHash, Key: node.Key, Value: node.Value,
		ValueHash: node.ValueHash, Feature: node.Feature,
	}
}
