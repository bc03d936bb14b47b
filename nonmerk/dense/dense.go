// Package dense implements DenseAppendOnlyFixedSizeTree (spec §4.8.3): a
// complete binary tree of fixed height stored in level order, with an
// on-demand recursive root hash. Grounded on the same write-through
// storage.Context access pattern as nonmerk/mmr, since both are flat
// position-keyed node stores with no rebalancing.
package dense

import (
	"encoding/binary"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/storage"
)

// MaxHeight is the largest supported tree height (spec §4.8.3 "1..=16").
const MaxHeight = 16

// MaxCapacity is the u16 capacity ceiling (spec §4.8.3 "Capacity u16").
const MaxCapacity = 65535

// Tree is a DenseAppendOnlyFixedSizeTree scoped to one subtree prefix.
type Tree struct {
	ctx    storage.Context
	prefix storage.Prefix
	height int
	count  uint32
	cache  map[uint32][]byte
}

// Open returns a dense-tree handle for a tree of the given height, with
// count positions already filled (both persisted in the parent element's
// DenseHeight/DenseCount fields).
func Open(ctx storage.Context, prefix storage.Prefix, height int, count uint32) (*Tree, error) {
	if height < 1 || height > MaxHeight {
		return nil, groveerr.ErrInvalidPayload
	}
	return &Tree{ctx: ctx, prefix: prefix, height: height, count: count, cache: make(map[uint32][]byte)}, nil
}

// Capacity returns 2^height - 1.
func (t *Tree) Capacity() uint32 { return uint32(1)<<uint(t.height) - 1 }

// Count returns the number of filled positions.
func (t *Tree) Count() uint32 { return t.count }

func posKey(pos uint32) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(pos))
	return buf
}

func left(i uint32) uint32  { return 2*i + 1 }
func right(i uint32) uint32 { return 2*i + 2 }

// Append writes value at the next free position in level order (spec
// §4.8.3 "inserts are O(1) write"). It stores the raw value and computes
// no hash, so it charges no Blake3Calls; hashing happens lazily in
// hashAt. Returns groveerr.ErrCapacityExceeded once the tree is full.
func (t *Tree) Append(value []byte) (cost.Cost, error) {
	if t.count >= t.Capacity() {
		return cost.Cost{}, groveerr.ErrCapacityExceeded
	}
	pos := t.count
	c, err := t.ctx.Put(t.prefix, storage.Default, posKey(pos), value)
	if err != nil {
		return c, err
	}
	t.cache[pos] = value
	t.count++
	return c, nil
}

func (t *Tree) get(pos uint32) ([]byte, cost.Cost, error) {
	if v, ok := t.cache[pos]; ok {
		return v, cost.Cost{}, nil
	}
	v, found, c, err := t.ctx.Get(t.prefix, storage.Default, posKey(pos))
	if err != nil {
		return nil, c, err
	}
	if !found {
		return nil, c, nil
	}
	t.cache[pos] = v
	return v, c, nil
}

// Root recomputes H(0) by recursive descent (spec §4.8.3 "Root hash is
// recomputed on demand").
func (t *Tree) Root() (hash.Digest, cost.Cost, error) {
	return t.hashAt(0)
}

// hashAt computes H(p) = Blake3(value_hash(value_p) || H(2p+1) || H(2p+2)),
// treating out-of-capacity or unfilled positions as the zero sentinel
// (spec §4.8.3). Internal and leaf positions share the identical rule.
func (t *Tree) hashAt(pos uint32) (hash.Digest, cost.Cost, error) {
	var total cost.Cost
	if pos >= t.Capacity() || pos >= t.count {
		return hash.Zero, total, nil
	}
	value, c, err := t.get(pos)
	total = total.Add(c)
	if err != nil {
		return hash.Zero, total, err
	}
	if value == nil {
		return hash.Zero, total, nil
	}
	lh, c, err := t.hashAt(left(pos))
	total = total.Add(c)
	if err != nil {
		return hash.Zero, total, err
	}
	rh, c, err := t.hashAt(right(pos))
	total = total.Add(c)
	if err != nil {
		return hash.Zero, total, err
	}
	total.Blake3Calls += 2 // value_hash(value) + node_hash(vh, lh, rh)
	return hash.NodeHash(hash.ValueHash(value), lh, rh), total, nil
}

// Get returns the value stored at pos, or (nil, false) if unfilled.
func (t *Tree) Get(pos uint32) ([]byte, bool, cost.Cost, error) {
	if pos >= t.count {
		return nil, false, cost.Cost{}, nil
	}
	v, c, err := t.get(pos)
	return v, v != nil, c, err
}

func parent(i uint32) uint32 { return (i - 1) / 2 }

// ProofStep is one ancestor level climbed between pos and the root: the
// ancestor's own value (its hash formula mixes its value with both
// children, so proving past it discloses that value, not just a sibling
// hash) plus the untouched sibling subtree's hash.
type ProofStep struct {
	OwnValue       []byte
	SiblingHash    hash.Digest
	SiblingIsRight bool
}

// Proof is an inclusion proof for the entry at Pos: its own value, its
// two child subtree hashes (it may itself be an internal node), and the
// climb to the root.
type Proof struct {
	Pos        uint32
	Value      []byte
	ChildLeft  hash.Digest
	ChildRight hash.Digest
	Steps      []ProofStep
}

// Prove builds an inclusion proof for the entry written at pos.
func (t *Tree) Prove(pos uint32) (Proof, cost.Cost, error) {
	var total cost.Cost
	val, c, err := t.get(pos)
	total = total.Add(c)
	if err != nil {
		return Proof{}, total, err
	}
	if val == nil {
		return Proof{}, total, groveerr.ErrCorruptedData
	}
	lh, c, err := t.hashAt(left(pos))
	total = total.Add(c)
	if err != nil {
		return Proof{}, total, err
	}
	rh, c, err := t.hashAt(right(pos))
	total = total.Add(c)
	if err != nil {
		return Proof{}, total, err
	}

	var steps []ProofStep
	cur := pos
	for cur != 0 {
		p := parent(cur)
		var siblingHash hash.Digest
		siblingIsRight := cur == left(p)
		if siblingIsRight {
			siblingHash, c, err = t.hashAt(right(p))
		} else {
			siblingHash, c, err = t.hashAt(left(p))
		}
		total = total.Add(c)
		if err != nil {
			return Proof{}, total, err
		}
		parentVal, c, err := t.get(p)
		total = total.Add(c)
		if err != nil {
			return Proof{}, total, err
		}
		steps = append(steps, ProofStep{OwnValue: parentVal, SiblingHash: siblingHash, SiblingIsRight: siblingIsRight})
		cur = p
	}
	return Proof{Pos: pos, Value: val, ChildLeft: lh, ChildRight: rh, Steps: steps}, total, nil
}

// Root replays p's climb and returns the root digest it implies, without
// comparing it to anything. Exposed so a composite proof one level up
// (e.g. nonmerk/bulkappend's chunk-dense-root-as-mmr-leaf) can fold this
// tree's contribution into its own trusted-root check.
func Root(p Proof) hash.Digest {
	cur := hash.NodeHash(hash.ValueHash(p.Value), p.ChildLeft, p.ChildRight)
	for _, step := range p.Steps {
		ownHash := hash.ValueHash(step.OwnValue)
		if step.SiblingIsRight {
			cur = hash.NodeHash(ownHash, cur, step.SiblingHash)
		} else {
			cur = hash.NodeHash(ownHash, step.SiblingHash, cur)
		}
	}
	return cur
}

// Verify replays p against trustedRoot, returning the disclosed value at
// Pos on success.
func Verify(p Proof, trustedRoot hash.Digest) ([]byte, error) {
	if Root(p) != trustedRoot {
		return nil, groveerr.ErrInvalidProof
	}
	return p.Value, nil
}
