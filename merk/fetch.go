package merk

import (
	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/storage"
)

// Fetch abstracts "how do I get a child" as a single capability with one
// operation (spec §4.4, §9). Concrete implementations may read from
// storage, from an in-memory cache, or panic (tests); this keeps the
// rebalancing logic in ops.go/balance.go storage-agnostic, the same role
// Trillian's runTXFunc plays for subtreeWriter in
// merkle/sparse_merkle_tree.go.
type Fetch interface {
	// FetchNode loads the full Node for a Reference-state link.
	FetchNode(link *Link) (*Node, cost.Cost, error)
}

// StoreFetch fetches nodes from a storage.Context within one subtree
// prefix, the production Fetch implementation.
type StoreFetch struct {
	Ctx    storage.Context
	Prefix storage.Prefix
}

// FetchNode implements Fetch by reading the node payload from the Default
// namespace at (Prefix, link.Key).
func (f *StoreFetch) FetchNode(link *Link) (*Node, cost.Cost, error) {
	payload, ok, c, err := f.Ctx.Get(f.Prefix, storage.Default, link.Key)
	if err != nil {
		return nil, c, err
	}
	if !ok {
		return nil, c, groveerr.ErrCorruptedData
	}
	n, err := Deserialize(link.Key, payload)
	if err != nil {
		return nil, c, err
	}
	return n, c, nil
}

// PanicFetch is a Fetch implementation for unit tests that assert a given
// traversal never needs to touch storage (spec §9 "panic-on-use
// (tests)").
type PanicFetch struct{}

func (PanicFetch) FetchNode(*Link) (*Node, cost.Cost, error) {
	panic("merk: unexpected fetch on a tree that should be fully materialized")
}

// CacheFetch layers a write-through in-memory map over an underlying
// Fetch, so a caller that already materialized a node (e.g. within the
// same batch) doesn't pay a second storage read (spec §9 "write-through
// cache for uncommitted reads").
type CacheFetch struct {
	Under Fetch
	cache map[string]*Node
}

// NewCacheFetch wraps under with an empty write-through cache.
func NewCacheFetch(under Fetch) *CacheFetch {
	return &CacheFetch{Under: under, cache: make(map[string]*Node)}
}

// Put seeds the cache with a node the caller just wrote, closing the
// read-after-write gap against an uncommitted storage batch.
func (c *CacheFetch) Put(n *Node) {
	c.cache[string(n.Key)] = n
}

func (c *CacheFetch) FetchNode(link *Link) (*Node, cost.Cost, error) {
	if n, ok := c.cache[string(link.Key)]; ok {
		return n, cost.Cost{}, nil
	}
	n, cst, err := c.Under.FetchNode(link)
	if err == nil {
		c.cache[string(link.Key)] = n
	}
	return n, cst, err
}
