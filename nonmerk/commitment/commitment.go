// Package commitment implements CommitmentTree (spec §4.8.4): a
// BulkAppendTree for high-throughput entry storage paired with a
// depth-32 Sinsemilla frontier for ZK-friendly commitment anchors.
// Grounded on nonmerk/bulkappend for the storage composition style and
// on hash.Sinsemilla (hash/sinsemilla.go) for the frontier's incremental
// hash primitive.
package commitment

import (
	"encoding/binary"
	"math/bits"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/nonmerk/bulkappend"
	"github.com/dashpay/grovedb-go/storage"
)

// FrontierDepth is the fixed Sinsemilla frontier depth (spec §4.8.4
// "depth-32 Sinsemilla frontier").
const FrontierDepth = 32

// ommerMergeDomain tags the frontier's ommer-merge absorptions (spec
// §4.8.4); a distinct domain from any other Sinsemilla use in the engine.
const ommerMergeDomain = "grovedb-commitment-ommer"

func mergeDigests(a, b hash.Digest) hash.Digest {
	ab := a.Bytes()
	bb := b.Bytes()
	pa := hash.SinsemillaPointFromBytes(ab)
	pb := hash.SinsemillaPointFromBytes(bb)
	merged := hash.SinsemillaMerge(ommerMergeDomain, pa, pb)
	out := merged.Bytes()
	return hash.FromBytes(out[:])
}

// frontierKey is the fixed sentinel key the frontier is persisted at
// within the shared data namespace (spec §4.8.4 "persisted at a fixed
// sentinel key in the same data namespace").
var frontierKey = []byte{0xff, 'f', 'r', 'o', 'n', 't', 'i', 'e', 'r'}

// Tree is a CommitmentTree scoped to one subtree prefix.
type Tree struct {
	ctx      storage.Context
	prefix   storage.Prefix
	bulk     *bulkappend.Tree
	frontier frontier
}

// frontier holds the Sinsemilla incremental-tree state: the ommers
// (right siblings pending a merge) needed to extend the tree by one leaf
// at a time without recomputing the whole path.
type frontier struct {
	position uint64
	hasLeaf  bool
	leaf     hash.Digest
	ommers   []hash.Digest
}

func encodeFrontier(f frontier) []byte {
	buf := make([]byte, 0, 1+8+hash.Size+1+len(f.ommers)*hash.Size)
	if !f.hasLeaf {
		return append(buf, 0x00)
	}
	buf = append(buf, 0x01)
	var posBuf [8]byte
	binary.BigEndian.PutUint64(posBuf[:], f.position)
	buf = append(buf, posBuf[:]...)
	buf = append(buf, f.leaf[:]...)
	buf = append(buf, byte(len(f.ommers)))
	for _, o := range f.ommers {
		buf = append(buf, o[:]...)
	}
	return buf
}

func decodeFrontier(buf []byte) (frontier, error) {
	if len(buf) < 1 {
		return frontier{}, groveerr.ErrCorruptedData
	}
	if buf[0] == 0x00 {
		return frontier{}, nil
	}
	if buf[0] != 0x01 {
		return frontier{}, groveerr.ErrCorruptedData
	}
	off := 1
	if len(buf) < off+8+hash.Size+1 {
		return frontier{}, groveerr.ErrCorruptedData
	}
	pos := binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	leaf := hash.FromBytes(buf[off : off+hash.Size])
	off += hash.Size
	count := int(buf[off])
	off++
	if len(buf)-off < count*hash.Size {
		return frontier{}, groveerr.ErrCorruptedData
	}
	ommers := make([]hash.Digest, count)
	for i := 0; i < count; i++ {
		ommers[i] = hash.FromBytes(buf[off : off+hash.Size])
		off += hash.Size
	}
	return frontier{position: pos, hasLeaf: true, leaf: leaf, ommers: ommers}, nil
}

// Open resumes a CommitmentTree over an already-opened BulkAppendTree at
// totalCount entries, reading the persisted frontier state.
func Open(ctx storage.Context, prefix storage.Prefix, chunkPower int, totalCount uint64) (*Tree, cost.Cost, error) {
	bulk, err := bulkappend.Open(ctx, prefix, chunkPower, totalCount)
	if err != nil {
		return nil, cost.Cost{}, err
	}
	raw, found, c, err := ctx.Get(prefix, storage.Default, frontierKey)
	if err != nil {
		return nil, c, err
	}
	var f frontier
	if found {
		f, err = decodeFrontier(raw)
		if err != nil {
			return nil, c, err
		}
	}
	return &Tree{ctx: ctx, prefix: prefix, bulk: bulk, frontier: f}, c, nil
}

// Append adds cmx||ciphertext to the BulkAppendTree and cmx to the
// Sinsemilla frontier (spec §4.8.4 "Each insert appends cmx || ciphertext
// to the BulkAppend tree and the cmx field to the Sinsemilla frontier").
func (t *Tree) Append(cmx hash.Digest, ciphertext []byte) (cost.Cost, error) {
	var total cost.Cost

	payload := append(append([]byte(nil), cmx[:]...), ciphertext...)
	c, err := t.bulk.Append(payload)
	total = total.Add(c)
	if err != nil {
		return total, err
	}

	c = t.appendFrontier(cmx)
	total = total.Add(c)

	c, err = t.ctx.Put(t.prefix, storage.Default, frontierKey, encodeFrontier(t.frontier))
	total = total.Add(c)
	return total, err
}

// appendFrontier incorporates leaf into the Sinsemilla incremental tree,
// merging with pending ommers trailing_ones(previous_position) times
// (spec §4.8.4 "trailing_ones(previous_position) (ommer merges)"),
// charging one Sinsemilla hash per merge plus the depth traversal.
func (t *Tree) appendFrontier(leaf hash.Digest) cost.Cost {
	var c cost.Cost
	if !t.frontier.hasLeaf {
		t.frontier = frontier{position: 0, hasLeaf: true, leaf: leaf}
		c.SinsemillaCalls++
		return c
	}

	cur := leaf
	prevPos := t.frontier.position
	n := trailingOnes(prevPos)
	if n > len(t.frontier.ommers) {
		n = len(t.frontier.ommers)
	}

	ommers := append([]hash.Digest(nil), t.frontier.ommers...)
	for i := 0; i < n; i++ {
		cur = mergeDigests(ommers[len(ommers)-1-i], cur)
		c.SinsemillaCalls++
	}
	ommers = append(ommers[:len(ommers)-n], cur)

	t.frontier = frontier{position: prevPos + 1, hasLeaf: true, leaf: leaf, ommers: ommers}
	c.SinsemillaCalls += FrontierDepth
	return c
}

func trailingOnes(n uint64) int { return bits.TrailingZeros64(^n) }

// SinsemillaRoot bags the pending ommers right-to-left into the
// frontier's current root, the 32-byte anchor combined with the
// BulkAppend state root to form the subtree's child hash.
func (t *Tree) SinsemillaRoot() hash.Digest {
	if !t.frontier.hasLeaf {
		return hash.Zero
	}
	if len(t.frontier.ommers) == 0 {
		return t.frontier.leaf
	}
	root := t.frontier.ommers[len(t.frontier.ommers)-1]
	for i := len(t.frontier.ommers) - 2; i >= 0; i-- {
		root = mergeDigests(t.frontier.ommers[i], root)
	}
	return root
}

// ChildHash returns the combined root exposed upward to the parent Merk:
// Blake3(bulk_state_root || sinsemilla_root) (spec §4.8.4 "the child hash
// passed upward is the combined root of the two sub-structures").
func (t *Tree) ChildHash() (hash.Digest, cost.Cost, error) {
	stateRoot, c, err := t.bulk.StateRoot()
	if err != nil {
		return hash.Zero, c, err
	}
	return hash.CombineHash(stateRoot, t.SinsemillaRoot()), c, nil
}

// TotalCount returns the number of commitments ever appended.
func (t *Tree) TotalCount() uint64 { return t.bulk.TotalCount() }

// Proof is a CommitmentTree inclusion proof (spec §4.10 V1): the 32-byte
// Sinsemilla root disclosed alongside an inner BulkAppendTree proof for
// the cmx||ciphertext payload.
type Proof struct {
	SinsemillaRoot hash.Digest
	BulkProof      bulkappend.Proof
}

// Prove builds an inclusion proof for the index-th appended commitment.
func (t *Tree) Prove(index uint64) (Proof, cost.Cost, error) {
	bp, c, err := t.bulk.Prove(index)
	if err != nil {
		return Proof{}, c, err
	}
	return Proof{SinsemillaRoot: t.SinsemillaRoot(), BulkProof: bp}, c, nil
}

// Verify replays p against trustedRoot (a ChildHash), returning the
// disclosed cmx (first hash.Size bytes) and ciphertext on success.
func Verify(p Proof, trustedRoot hash.Digest) (cmx hash.Digest, ciphertext []byte, err error) {
	stateRoot, payload, err := bulkappend.StateRootFromProof(p.BulkProof)
	if err != nil {
		return hash.Zero, nil, err
	}
	if hash.CombineHash(stateRoot, p.SinsemillaRoot) != trustedRoot {
		return hash.Zero, nil, groveerr.ErrInvalidProof
	}
	if len(payload) < hash.Size {
		return hash.Zero, nil, groveerr.ErrCorruptedData
	}
	return hash.FromBytes(payload[:hash.Size]), payload[hash.Size:], nil
}
