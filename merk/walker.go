package merk

import "github.com/dashpay/grovedb-go/cost"

// Side identifies a child of a node.
type Side bool

const (
	Left  Side = false
	Right Side = true
)

// Walker owns a node plus a Fetch capability, and exposes the three
// primitive operations every Merk mutation is built from (spec §4.4):
// detach, attach, and walk (detach + apply + re-attach). This generalizes
// Trillian's subtreeWriter detach-mutate-reattach-via-channel pattern
// (merkle/sparse_merkle_tree.go) from sparse-tree shard workers to
// GroveDB's binary AVL nodes.
type Walker struct {
	Node  *Node
	Fetch Fetch
}

// NewWalker wraps a materialized node with a fetch capability for its
// (possibly Reference-state) children.
func NewWalker(n *Node, f Fetch) *Walker {
	return &Walker{Node: n, Fetch: f}
}

func childLink(n *Node, side Side) *Link {
	if side == Left {
		return n.Left
	}
	return n.Right
}

func setChildLink(n *Node, side Side, l *Link) {
	if side == Left {
		n.Left = l
	} else {
		n.Right = l
	}
}

// materialize resolves a link to its Node, fetching from storage if the
// link is in Reference state (spec §4.4 transition "decode -> Reference",
// "fetch -> Loaded").
func (w *Walker) materialize(l *Link) (*Node, cost.Cost, error) {
	if l == nil {
		return nil, cost.Cost{}, nil
	}
	if l.Node != nil {
		return l.Node, cost.Cost{}, nil
	}
	n, c, err := w.Fetch.FetchNode(l)
	if err != nil {
		return nil, c, err
	}
	return n, c, nil
}

// Detach yields (parent-without-side, child-or-nil), fetching the child
// from storage if necessary (spec §4.4 "detach(side) yields
// (parent_without_side, child?)").
func (w *Walker) Detach(side Side) (*Walker, *Walker, cost.Cost, error) {
	link := childLink(w.Node, side)
	child, c, err := w.materialize(link)
	if err != nil {
		return nil, nil, c, err
	}

	parent := &Node{
		Key: w.Node.Key, Value: w.Node.Value, Feature: w.Node.Feature,
		ValueHash: w.Node.ValueHash, KVHash: w.Node.KVHash,
	}
	setChildLink(parent, side, nil)
	if side == Left {
		parent.Right = w.Node.Right
	} else {
		parent.Left = w.Node.Left
	}

	var childWalker *Walker
	if child != nil {
		childWalker = &Walker{Node: child, Fetch: w.Fetch}
	}
	return &Walker{Node: parent, Fetch: w.Fetch}, childWalker, c, nil
}

// Attach reconstructs the parent with child on the given side and marks
// it Modified (spec §4.4 "attach(side, child?) reconstructs the parent and
// marks it Modified"; §9 "attach always transitions to Modified").
func (w *Walker) Attach(side Side, child *Walker) (*Walker, error) {
	var link *Link
	if child != nil {
		link = modifiedLink(child.Node)
	}
	setChildLink(w.Node, side, link)
	if err := w.Node.recomputeHash(); err != nil {
		return nil, err
	}
	return w, nil
}

// Walk detaches the child on side, applies f to it (f may return nil to
// delete the child), and re-attaches the result (spec §4.4 "walk(side, f)
// detaches a child, applies f to it, and re-attaches").
func (w *Walker) Walk(side Side, f func(child *Walker) (*Walker, cost.Cost, error)) (*Walker, cost.Cost, error) {
	parent, child, c, err := w.Detach(side)
	if err != nil {
		return nil, c, err
	}
	newChild, c2, err := f(child)
	c = c.Add(c2)
	if err != nil {
		return nil, c, err
	}
	p, err := parent.Attach(side, newChild)
	if err != nil {
		return nil, c, err
	}
	return p, c, nil
}

// Commit walks the Modified subtree bottom-up, transitioning every dirty
// node to Uncommitted (freshly hashed) and serializing it for the caller
// to persist (spec §4.4 transition "commit -> Uncommitted", "persist ->
// Loaded"). It returns the set of (key, payload) pairs that must be
// written, in no particular order.
func (w *Walker) Commit(out map[string][]byte) error {
	if w.Node.Left != nil && w.Node.Left.State == LinkModified {
		childWalker := &Walker{Node: w.Node.Left.Node, Fetch: w.Fetch}
		if err := childWalker.Commit(out); err != nil {
			return err
		}
		w.Node.Left = loadedLink(childWalker.Node)
	}
	if w.Node.Right != nil && w.Node.Right.State == LinkModified {
		childWalker := &Walker{Node: w.Node.Right.Node, Fetch: w.Fetch}
		if err := childWalker.Commit(out); err != nil {
			return err
		}
		w.Node.Right = loadedLink(childWalker.Node)
	}
	if err := w.Node.recomputeHash(); err != nil {
		return err
	}
	out[string(w.Node.Key)] = Serialize(w.Node)
	return nil
}
