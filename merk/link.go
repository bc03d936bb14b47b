package merk

import "github.com/dashpay/grovedb-go/hash"

// LinkState is one of the four states a Merk node's child connection can
// be in (spec §3 "Link states", §9). Reference carries no in-memory
// child -- just enough to compute a balance factor and a node hash without
// fetching. Loaded carries a materialized, unmodified subtree. Modified
// marks a subtree as dirty with its hash invalidated. Uncommitted marks a
// subtree whose hash has been recomputed but not yet persisted.
type LinkState uint8

const (
	LinkReference LinkState = iota
	LinkLoaded
	LinkModified
	LinkUncommitted
)

// Link is a Merk node's connection to one child (spec §4.4, §9). Only the
// fields relevant to State are meaningful; Reference links keep Node nil
// to bound memory, exactly as Trillian's subtree cache keeps only a hash
// and prefix for subtrees it hasn't needed to open.
type Link struct {
	State LinkState

	// Hash is the child's node hash. Valid for Reference/Loaded/
	// Uncommitted; meaningless (stale) while State == LinkModified.
	Hash hash.Digest

	// Key is the child node's storage key.
	Key []byte

	// LeftHeight/RightHeight are the child's own children's heights, cached
	// so a parent can compute balance factors and tree height without
	// fetching the child (spec §4.4 "child heights").
	LeftHeight, RightHeight uint8

	// Aggregate is the child's full aggregate (own + its children's),
	// cached for the same reason.
	Aggregate Aggregate

	// Node is the materialized subtree root, present for Loaded/Modified/
	// Uncommitted links.
	Node *Node
}

// Height returns 1 + max(LeftHeight, RightHeight), the height of the
// subtree this link points to, without requiring State == Loaded.
func (l *Link) Height() uint8 {
	if l == nil {
		return 0
	}
	if l.LeftHeight > l.RightHeight {
		return l.LeftHeight + 1
	}
	return l.RightHeight + 1
}

// BalanceFactor returns left.Height() - right.Height(), treating a nil
// link as height 0 (spec §4.5 rebalancing rule).
func BalanceFactor(left, right *Link) int {
	return int(left.Height()) - int(right.Height())
}

// summary extracts the Reference-state view of a materialized node,
// used when persisting a parent: a Loaded/Modified/Uncommitted child
// link collapses to the fields a Reference link needs (spec transition
// "persist -> Loaded" keeps the parent pointing at Loaded, but the
// *serialized* form on disk always stores the Reference summary).
func summaryOf(n *Node) (hash.Digest, uint8, uint8, Aggregate) {
	if n == nil {
		return hash.Zero, 0, 0, Aggregate{}
	}
	return n.Hash, n.Left.Height(), n.Right.Height(), n.Aggregate
}

// referenceLink builds a Reference-state link summarizing a materialized
// node, used by commit (§4.4 "commit -> Uncommitted ... persist ->
// Loaded") and by pruning (§4.5 "prune -> Reference").
func referenceLink(n *Node) *Link {
	if n == nil {
		return nil
	}
	h, lh, rh, agg := summaryOf(n)
	return &Link{State: LinkReference, Hash: h, Key: n.Key, LeftHeight: lh, RightHeight: rh, Aggregate: agg}
}

// loadedLink wraps a materialized node as a Loaded link.
func loadedLink(n *Node) *Link {
	if n == nil {
		return nil
	}
	return &Link{State: LinkLoaded, Hash: n.Hash, Key: n.Key, LeftHeight: n.Left.Height(), RightHeight: n.Right.Height(), Aggregate: n.Aggregate, Node: n}
}

// modifiedLink marks a link as dirty after a mutation.
func modifiedLink(n *Node) *Link {
	if n == nil {
		return nil
	}
	return &Link{State: LinkModified, Key: n.Key, LeftHeight: n.Left.Height(), RightHeight: n.Right.Height(), Aggregate: n.Aggregate, Node: n}
}
