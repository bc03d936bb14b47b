package merk

import "github.com/dashpay/grovedb-go/hash"

// Node is a Merk tree node: a key-value pair, a feature type, two child
// links, and two cached digests (spec §4.4). The key is not part of the
// serialized form -- it is supplied externally as the storage key.
type Node struct {
	Key     []byte
	Value   []byte
	Feature Feature

	// ValueHash is usually hash.ValueHash(Value), but Tree-like and
	// Reference elements override it with the combined hash of the
	// element bytes and the child root (spec §4.3); the element package
	// computes that override and passes it in via NewNode.
	ValueHash hash.Digest
	KVHash    hash.Digest

	// Hash is the node's own node_hash (or node_hash_with_count for
	// provable-counted features), valid once computed; recomputed lazily
	// on commit (spec §4.5: "kv_hash and node_hash are lazily recomputed
	// on commit").
	Hash hash.Digest

	// Aggregate is own + left.Aggregate + right.Aggregate (spec §3, §4.6).
	Aggregate Aggregate

	Left, Right *Link
}

// NewNode constructs a leaf node (no children) with freshly computed
// KVHash/Aggregate. valueHash, if the zero digest, defaults to
// hash.ValueHash(value); callers binding a subtree/reference root pass
// the combined hash explicitly (spec §4.3).
func NewNode(key, value []byte, feature Feature, valueHash hash.Digest) *Node {
	if valueHash.IsZero() {
		valueHash = hash.ValueHash(value)
	}
	n := &Node{
		Key:       key,
		Value:     value,
		Feature:   feature,
		ValueHash: valueHash,
	}
	n.KVHash = hash.KVDigestToKVHash(key, valueHash)
	n.Aggregate = feature.Own()
	n.recomputeHash()
	return n
}

// recomputeHash refreshes Hash and Aggregate from the current children
// and feature, implementing the aggregate-propagation rule of spec §4.6
// ("the node's aggregate is recomputed from its own contribution plus its
// children's aggregates"). It does not fetch; it only reads cached link
// summaries, which is why every mutation path must keep those summaries
// current via attach.
func (n *Node) recomputeHash() error {
	leftHash, leftAgg := hash.Zero, Aggregate{}
	if n.Left != nil {
		leftHash, leftAgg = n.Left.Hash, n.Left.Aggregate
	}
	rightHash, rightAgg := hash.Zero, Aggregate{}
	if n.Right != nil {
		rightHash, rightAgg = n.Right.Hash, n.Right.Aggregate
	}

	agg, err := Combine(n.Feature.Own(), leftAgg, rightAgg)
	if err != nil {
		return err
	}
	n.Aggregate = agg

	if n.Feature.IsProvable() {
		n.Hash = hash.NodeHashWithCount(n.KVHash, leftHash, rightHash, agg.Count)
	} else {
		n.Hash = hash.NodeHash(n.KVHash, leftHash, rightHash)
	}
	return nil
}

// Height returns 1 + max(left, right) child height.
func (n *Node) Height() uint8 {
	if n == nil {
		return 0
	}
	lh, rh := n.Left.Height(), n.Right.Height()
	if lh > rh {
		return lh + 1
	}
	return rh + 1
}

// BalanceFactor returns left height minus right height for this node
// (spec §4.5, §8: must stay within {-1,0,1}).
func (n *Node) BalanceFactor() int {
	return BalanceFactor(n.Left, n.Right)
}

// Count returns the number of materialized nodes in the subtree rooted at
// n. Children held only as Reference links (no resident Node) are neither
// fetched nor counted.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	left, right := 0, 0
	if n.Left != nil && n.Left.Node != nil {
		left = n.Left.Node.Count()
	}
	if n.Right != nil && n.Right.Node != nil {
		right = n.Right.Node.Count()
	}
	return 1 + left + right
}
