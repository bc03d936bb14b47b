package merk

import (
	"bytes"

	"github.com/golang/glog"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/storage"
)

// rootPointerKey is the fixed Roots-namespace key under which a subtree's
// current root node key is stored (spec §4.2 "Roots holds the root-key
// pointer for a subtree").
var rootPointerKey = []byte("root")

// Tree is the top-level handle to one Merk subtree: a storage context
// scoped to a prefix, plus whatever root node is currently materialized
// (spec §4.4, §4.5). A nil root means the subtree is empty.
type Tree struct {
	ctx    storage.Context
	prefix storage.Prefix
	fetch  Fetch
	root   *Walker
}

// OpenTree loads the subtree rooted at prefix, fetching only its root node
// (children remain Reference-state until a traversal needs them).
func OpenTree(ctx storage.Context, prefix storage.Prefix) (*Tree, cost.Cost, error) {
	var total cost.Cost
	t := &Tree{ctx: ctx, prefix: prefix}
	t.fetch = &StoreFetch{Ctx: ctx, Prefix: prefix}

	rootKey, ok, c, err := ctx.Get(prefix, storage.Roots, rootPointerKey)
	total = total.Add(c)
	if err != nil {
		return nil, total, err
	}
	if !ok {
		glog.V(2).Infof("merk.OpenTree(%x): no root, empty subtree", prefix)
		return t, total, nil
	}

	n, c, err := t.fetch.FetchNode(&Link{Key: rootKey})
	total = total.Add(c)
	if err != nil {
		return nil, total, err
	}
	glog.V(2).Infof("merk.OpenTree(%x): root key %x, hash %x", prefix, rootKey, n.Hash)
	t.root = &Walker{Node: n, Fetch: t.fetch}
	return t, total, nil
}

// IsEmpty reports whether the subtree currently has no root.
func (t *Tree) IsEmpty() bool { return t.root == nil }

// RootHash returns the subtree's current root node_hash, or the all-zero
// digest if empty (spec §4.3, §6 "empty subtree hashes to zero").
func (t *Tree) RootHash() hash.Digest {
	if t.root == nil {
		return hash.Zero
	}
	return t.root.Node.Hash
}

// RootAggregate returns the subtree's current root aggregate, or the zero
// aggregate if empty.
func (t *Tree) RootAggregate() Aggregate {
	if t.root == nil {
		return Aggregate{}
	}
	return t.root.Node.Aggregate
}

// RootKey returns the storage key of the current root node, or nil if
// empty.
func (t *Tree) RootKey() []byte {
	if t.root == nil {
		return nil
	}
	return t.root.Node.Key
}

// Root returns the materialized root node, or nil if the subtree is
// empty. Exposed for callers outside package merk that need to walk the
// tree directly, e.g. proof generation.
func (t *Tree) Root() *Node {
	if t.root == nil {
		return nil
	}
	return t.root.Node
}

// Fetch returns the tree's node-fetching capability, so an external
// walker can materialize Reference-state children the same way Get does.
func (t *Tree) Fetch() Fetch { return t.fetch }

// LoadChild materializes l (which may already be resident), for callers
// outside package merk walking the tree read-only.
func LoadChild(fetch Fetch, l *Link) (*Node, cost.Cost, error) {
	return loadLinkNode(fetch, l)
}

// NewTreeFromRoot wraps an already-materialized root node with fetch for
// callers that need to drive a Tree without a storage.Context backing it,
// e.g. tests exercising a mocked Fetch.
func NewTreeFromRoot(root *Node, fetch Fetch) *Tree {
	return &Tree{fetch: fetch, root: NewWalker(root, fetch)}
}

// Get looks up key by descending the tree via key comparisons, fetching
// Reference-state children as needed (spec §4.4).
func (t *Tree) Get(key []byte) ([]byte, Feature, bool, cost.Cost, error) {
	var total cost.Cost
	node := t.root.safeNode()
	for node != nil {
		switch bytes.Compare(key, node.Key) {
		case 0:
			return node.Value, node.Feature, true, total, nil
		case -1:
			n, c, err := loadLinkNode(t.fetch, node.Left)
			total = total.Add(c)
			if err != nil {
				return nil, Feature{}, false, total, err
			}
			node = n
		default:
			n, c, err := loadLinkNode(t.fetch, node.Right)
			total = total.Add(c)
			if err != nil {
				return nil, Feature{}, false, total, err
			}
			node = n
		}
	}
	return nil, Feature{}, false, total, nil
}

func (w *Walker) safeNode() *Node {
	if w == nil {
		return nil
	}
	return w.Node
}

// loadLinkNode materializes l, fetching from storage if it is not already
// resident, for read-only traversals that don't need Walker's detach/
// attach bookkeeping.
func loadLinkNode(fetch Fetch, l *Link) (*Node, cost.Cost, error) {
	if l == nil {
		return nil, cost.Cost{}, nil
	}
	if l.Node != nil {
		return l.Node, cost.Cost{}, nil
	}
	return fetch.FetchNode(l)
}

// Apply runs batch (which must be sorted by key, spec §4.5) against the
// tree in memory, updating the in-memory root. Call Commit afterward to
// persist the result.
func (t *Tree) Apply(batch []BatchEntry) (cost.Cost, error) {
	newRoot, c, err := Apply(t.root, batch, t.fetch)
	if err != nil {
		return c, err
	}
	t.root = newRoot
	return c, nil
}

// Commit persists every Modified node reachable from the root and updates
// the subtree's root pointer, or clears it if the tree became empty (spec
// §4.4 "commit -> Uncommitted", "persist -> Loaded"; §4.2 Roots namespace).
func (t *Tree) Commit() (cost.Cost, error) {
	var total cost.Cost

	if t.root == nil {
		c, err := t.ctx.Delete(t.prefix, storage.Roots, rootPointerKey)
		return c, err
	}

	out := make(map[string][]byte)
	if err := t.root.Commit(out); err != nil {
		return total, err
	}
	glog.V(4).Infof("merk.Tree.Commit(%x): %d dirty nodes, new root %x", t.prefix, len(out), t.root.Node.Hash)
	for k, v := range out {
		c, err := t.ctx.Put(t.prefix, storage.Default, []byte(k), v)
		total = total.Add(c)
		if err != nil {
			return total, err
		}
	}

	c, err := t.ctx.Put(t.prefix, storage.Roots, rootPointerKey, t.root.Node.Key)
	total = total.Add(c)
	return total, err
}
