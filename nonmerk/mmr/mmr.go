// Package mmr implements the append-only Merkle Mountain Range non-Merk
// tree (spec §4.8.1): a forest of perfect binary "peak" trees whose root
// is the right-to-left bagged fold of the peak hashes. Grounded on
// Trillian's own compact-range MMR (merkle/compact, referenced from
// storage/cache/subtree_cache_test.go's compact.NewNodeID/RangeFactory
// usage) for the NodeID{Level,Index}/appendable-range API shape, and on
// the forestrie-go-merklelog documentation of the exact post-order/
// peak-bagging algorithm (other_examples).
package mmr

import (
	"encoding/binary"
	"math/bits"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/storage"
)

// nodePrefix is the typed key prefix for MMR nodes within the
// data column family (spec §4.8 "under short typed prefixes ('m', ...)").
const nodePrefix = 'm'

func nodeKey(pos uint64) []byte {
	buf := make([]byte, 1+8)
	buf[0] = nodePrefix
	binary.BigEndian.PutUint64(buf[1:], pos)
	return buf
}

// Tree is an MMR scoped to one subtree prefix. Size is the number of
// mmr-addressed positions written so far (leaves + merge nodes), tracked
// in the parent element per spec §4.8.1.
type Tree struct {
	ctx    storage.Context
	prefix storage.Prefix
	size   uint64
	cache  map[uint64]node
}

// Open returns an MMR handle at size (the count persisted in the parent
// element's MmrSize field).
func Open(ctx storage.Context, prefix storage.Prefix, size uint64) *Tree {
	return &Tree{ctx: ctx, prefix: prefix, size: size, cache: make(map[uint64]node)}
}

// Size returns the current mmr_size.
func (t *Tree) Size() uint64 { return t.size }

type node struct {
	leaf bool
	hash hash.Digest
	// value is only populated for leaf nodes, matching spec's leaf wire
	// format carrying the original appended bytes.
	value []byte
	// left, right are the child mmr positions of a merge node, recorded at
	// merge time so inclusion proofs can descend without recomputing peak
	// geometry. Unused for leaf nodes.
	left, right uint64
}

func encodeNode(n node) []byte {
	if !n.leaf {
		buf := make([]byte, 1+hash.Size+16)
		buf[0] = 0x00
		copy(buf[1:], n.hash[:])
		binary.BigEndian.PutUint64(buf[1+hash.Size:], n.left)
		binary.BigEndian.PutUint64(buf[1+hash.Size+8:], n.right)
		return buf
	}
	buf := make([]byte, 0, 1+hash.Size+4+len(n.value))
	buf = append(buf, 0x01)
	buf = append(buf, n.hash[:]...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(n.value)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, n.value...)
	return buf
}

func decodeNode(buf []byte) (node, error) {
	if len(buf) < 1+hash.Size {
		return node{}, groveerr.ErrCorruptedData
	}
	flag := buf[0]
	h := hash.FromBytes(buf[1 : 1+hash.Size])
	if flag == 0x00 {
		if len(buf) < 1+hash.Size+16 {
			return node{}, groveerr.ErrCorruptedData
		}
		left := binary.BigEndian.Uint64(buf[1+hash.Size:])
		right := binary.BigEndian.Uint64(buf[1+hash.Size+8:])
		return node{leaf: false, hash: h, left: left, right: right}, nil
	}
	if flag != 0x01 {
		return node{}, groveerr.ErrCorruptedData
	}
	off := 1 + hash.Size
	if len(buf) < off+4 {
		return node{}, groveerr.ErrCorruptedData
	}
	ln := binary.BigEndian.Uint32(buf[off : off+4])
	off += 4
	if uint32(len(buf)-off) < ln {
		return node{}, groveerr.ErrCorruptedData
	}
	val := append([]byte(nil), buf[off:off+int(ln)]...)
	return node{leaf: true, hash: h, value: val}, nil
}

// get fetches a node at pos, first from the write-through cache (so a
// merge can read nodes the same push just wrote, spec §4.8.1), then from
// storage.
func (t *Tree) get(pos uint64) (node, cost.Cost, error) {
	if n, ok := t.cache[pos]; ok {
		return n, cost.Cost{}, nil
	}
	raw, ok, c, err := t.ctx.Get(t.prefix, storage.Default, nodeKey(pos))
	if err != nil {
		return node{}, c, err
	}
	if !ok {
		return node{}, c, groveerr.ErrCorruptedData
	}
	n, err := decodeNode(raw)
	if err != nil {
		return node{}, c, err
	}
	t.cache[pos] = n
	return n, c, nil
}

func (t *Tree) put(pos uint64, n node) (cost.Cost, error) {
	t.cache[pos] = n
	raw := encodeNode(n)
	return t.ctx.Put(t.prefix, storage.Default, nodeKey(pos), raw)
}

// leafToMMRPos maps the i-th appended leaf (0-indexed) to its position in
// mmr-node-index space, spec §4.8.1 "leaf_to_mmr_pos(i)": positions are
// consumed one per leaf plus one per merge, and trailing_ones(i) merges
// happen when appending the i-th leaf.
func leafToMMRPos(leafIndex uint64) uint64 {
	return 2*leafIndex - uint64(bits.OnesCount64(leafIndex))
}

func trailingOnes(n uint64) int {
	return bits.TrailingZeros64(^n)
}

// Append adds value as a new leaf, merging with existing same-height
// peaks trailing_ones(leavesBefore) times (spec §4.8.1).
func (t *Tree) Append(value []byte) (cost.Cost, error) {
	var total cost.Cost

	leavesBefore := leavesFromSize(t.size)
	pos := t.size
	cur := node{leaf: true, hash: hash.ValueHash(value), value: value}
	total.Blake3Calls++ // leaf value_hash
	c, err := t.put(pos, cur)
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	t.size++

	merges := trailingOnes(leavesBefore)
	height := 0
	curPos := pos
	for i := 0; i < merges; i++ {
		siblingPos := curPos - (peakSize(height) + 1)
		sibling, c, err := t.get(siblingPos)
		total = total.Add(c)
		if err != nil {
			return total, err
		}
		parentHash := hash.CombineHash(sibling.hash, cur.hash)
		total.Blake3Calls++ // merge combine_hash
		parent := node{leaf: false, hash: parentHash, left: siblingPos, right: curPos}
		parentPos := t.size
		c, err = t.put(parentPos, parent)
		total = total.Add(c)
		if err != nil {
			return total, err
		}
		t.size++
		cur = parent
		curPos = parentPos
		height++
	}
	return total, nil
}

// peakSize returns 2^(height+1) - 2, the number of mmr positions occupied by
// a perfect peak of the given height below its own node.
func peakSize(height int) uint64 {
	return (uint64(1) << uint(height+1)) - 2
}

// leavesFromSize inverts mmr_size = 2*leaves - popcount(leaves) by binary
// search over the monotonically increasing leaf-count-to-size map; used
// only to recover "leaves so far" from a persisted mmr_size at Open time.
func leavesFromSize(size uint64) uint64 {
	if size == 0 {
		return 0
	}
	lo, hi := uint64(0), size+1
	for lo < hi {
		mid := (lo + hi) / 2
		if mmrSizeForLeaves(mid) < size {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func mmrSizeForLeaves(leaves uint64) uint64 {
	return 2*leaves - uint64(bits.OnesCount64(leaves))
}

// Root computes the right-to-left bagged fold of all peak hashes (spec
// §4.8.1 "The root is the right-to-left bag fold of all peak hashes").
// An empty MMR's root is the all-zero digest.
func (t *Tree) Root() (hash.Digest, cost.Cost, error) {
	var total cost.Cost
	if t.size == 0 {
		return hash.Zero, total, nil
	}

	peaks, err := peakPositions(t.size)
	if err != nil {
		return hash.Zero, total, err
	}

	root := hash.Zero
	first := true
	for i := len(peaks) - 1; i >= 0; i-- {
		n, c, err := t.get(peaks[i])
		total = total.Add(c)
		if err != nil {
			return hash.Zero, total, err
		}
		if first {
			root = n.hash
			first = false
			continue
		}
		root = hash.CombineHash(n.hash, root)
		total.Blake3Calls++ // peak-bagging combine_hash
	}
	return root, total, nil
}

// peakPositions decomposes size into the mmr positions of its peaks, one
// per set bit in the leaf count, left to right.
func peakPositions(size uint64) ([]uint64, error) {
	leaves := leavesFromSize(size)
	var peaks []uint64
	pos := uint64(0)
	remaining := leaves
	for remaining > 0 {
		height := 63 - bits.LeadingZeros64(remaining)
		// This peak covers 2^height leaves and occupies mmrSizeForLeaves
		// positions of mmr-index space starting at pos.
		peakLeaves := uint64(1) << uint(height)
		peakWidth := mmrSizeForLeaves(peakLeaves)
		pos += peakWidth
		peaks = append(peaks, pos-1)
		remaining -= peakLeaves
	}
	if pos != size {
		return nil, groveerr.ErrCorruptedData
	}
	return peaks, nil
}

// LeafPosition returns the mmr position of the i-th appended leaf
// (0-indexed), for callers building inclusion proofs.
func LeafPosition(i uint64) uint64 { return leafToMMRPos(i) }

// PathStep is one sibling hash encountered climbing from a leaf to its
// peak, with the side the sibling sits on relative to the node being
// climbed from (spec §4.10 V1 "mmr proof items").
type PathStep struct {
	Sibling        hash.Digest
	SiblingIsRight bool
}

// Proof is an MMR inclusion proof: the climb from one leaf to its peak,
// plus every other peak hash needed to re-bag the mmr root (spec §4.10,
// bounded by config.MMRProofByteCap/MMRProofIndexCap at the caller).
type Proof struct {
	LeafIndex  uint64
	LeafValue  []byte
	Path       []PathStep
	PeakIndex  int
	OtherPeaks []hash.Digest
	Size       uint64
}

// pathTo descends from cur to target, recording the sibling at each step
// in bottom-up order (appended after the recursive call returns).
func (t *Tree) pathTo(cur, target uint64, path *[]PathStep, total *cost.Cost) error {
	if cur == target {
		return nil
	}
	n, c, err := t.get(cur)
	*total = total.Add(c)
	if err != nil {
		return err
	}
	if n.leaf {
		return groveerr.ErrCorruptedData
	}
	if target <= n.left {
		if err := t.pathTo(n.left, target, path, total); err != nil {
			return err
		}
		sib, c, err := t.get(n.right)
		*total = total.Add(c)
		if err != nil {
			return err
		}
		*path = append(*path, PathStep{Sibling: sib.hash, SiblingIsRight: true})
		return nil
	}
	if err := t.pathTo(n.right, target, path, total); err != nil {
		return err
	}
	sib, c, err := t.get(n.left)
	*total = total.Add(c)
	if err != nil {
		return err
	}
	*path = append(*path, PathStep{Sibling: sib.hash, SiblingIsRight: false})
	return nil
}

// Prove builds an inclusion proof for the leafIndex-th appended leaf. It
// discloses hashes already stored by Append/Root and computes no new ones,
// so it charges no Blake3Calls.
func (t *Tree) Prove(leafIndex uint64) (Proof, cost.Cost, error) {
	var total cost.Cost
	pos := LeafPosition(leafIndex)
	leafNode, c, err := t.get(pos)
	total = total.Add(c)
	if err != nil {
		return Proof{}, total, err
	}

	peaks, err := peakPositions(t.size)
	if err != nil {
		return Proof{}, total, err
	}

	peakIdx := -1
	for i, p := range peaks {
		if pos <= p {
			peakIdx = i
			break
		}
	}
	if peakIdx < 0 {
		return Proof{}, total, groveerr.ErrCorruptedData
	}

	var path []PathStep
	if err := t.pathTo(peaks[peakIdx], pos, &path, &total); err != nil {
		return Proof{}, total, err
	}

	other := make([]hash.Digest, 0, len(peaks)-1)
	for i, p := range peaks {
		if i == peakIdx {
			continue
		}
		n, c, err := t.get(p)
		total = total.Add(c)
		if err != nil {
			return Proof{}, total, err
		}
		other = append(other, n.hash)
	}

	return Proof{
		LeafIndex:  leafIndex,
		LeafValue:  leafNode.value,
		Path:       path,
		PeakIndex:  peakIdx,
		OtherPeaks: other,
		Size:       t.size,
	}, total, nil
}

// RootFromProof replays p's climb using leafValue in place of p.LeafValue
// and returns the mmr root it implies, without comparing it to anything.
// Exposed so a composite proof one level up (e.g. nonmerk/bulkappend,
// whose chunk MMR leaves are dense-tree roots reconstructed by a nested
// proof rather than disclosed raw bytes) can fold this tree's
// contribution into its own trusted-root check.
func RootFromProof(p Proof, leafValue []byte) (hash.Digest, error) {
	if p.PeakIndex < 0 || p.PeakIndex > len(p.OtherPeaks) {
		return hash.Zero, groveerr.ErrInvalidProof
	}

	cur := hash.ValueHash(leafValue)
	for _, step := range p.Path {
		if step.SiblingIsRight {
			cur = hash.CombineHash(cur, step.Sibling)
		} else {
			cur = hash.CombineHash(step.Sibling, cur)
		}
	}

	peaks := make([]hash.Digest, len(p.OtherPeaks)+1)
	copy(peaks[:p.PeakIndex], p.OtherPeaks[:p.PeakIndex])
	peaks[p.PeakIndex] = cur
	copy(peaks[p.PeakIndex+1:], p.OtherPeaks[p.PeakIndex:])

	root := hash.Zero
	first := true
	for i := len(peaks) - 1; i >= 0; i-- {
		if first {
			root = peaks[i]
			first = false
			continue
		}
		root = hash.CombineHash(peaks[i], root)
	}
	return root, nil
}

// Verify replays p against trustedRoot, returning the disclosed leaf value
// on success.
func Verify(p Proof, trustedRoot hash.Digest) ([]byte, error) {
	root, err := RootFromProof(p, p.LeafValue)
	if err != nil {
		return nil, err
	}
	if root != trustedRoot {
		return nil, groveerr.ErrInvalidProof
	}
	return p.LeafValue, nil
}
