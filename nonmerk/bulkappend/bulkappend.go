// Package bulkappend implements BulkAppendTree (spec §4.8.2): a two-level
// chunked append log. Level 1 is a dense fixed-size Merkle buffer
// (nonmerk/dense); when it fills, the buffer is serialized to an
// immutable chunk blob, its dense root pushed into a chunk MMR
// (nonmerk/mmr), and the buffer cleared. Grounded on the same
// write-through/storage.Context composition style as nonmerk/mmr and
// nonmerk/dense, since all three are flat keyed structures with no
// rebalancing.
package bulkappend

import (
	"encoding/binary"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/nonmerk/dense"
	"github.com/dashpay/grovedb-go/nonmerk/mmr"
	"github.com/dashpay/grovedb-go/storage"
	"github.com/dashpay/grovedb-go/storage/memstore"
)

const (
	metaKeyByte   = 'M'
	bufferKeyByte = 'b'
	chunkKeyByte  = 'e'
)

func metaKey() []byte { return []byte{metaKeyByte} }

func bufferKey(i uint32) []byte {
	buf := make([]byte, 1+4)
	buf[0] = bufferKeyByte
	binary.BigEndian.PutUint32(buf[1:], i)
	return buf
}

func chunkKey(i uint64) []byte {
	buf := make([]byte, 1+8)
	buf[0] = chunkKeyByte
	binary.BigEndian.PutUint64(buf[1:], i)
	return buf
}

// Tree is a BulkAppendTree scoped to one subtree prefix. ChunkPower h
// gives a per-chunk buffer capacity of 2^h - 1 entries (spec §4.8.2,
// §4.8.3).
type Tree struct {
	ctx        storage.Context
	prefix     storage.Prefix
	chunkPower int
	totalCount uint64
	buffer     *dense.Tree
	bufferIdx  []uint32 // in-memory shadow of written buffer entries for read-after-write
	chunkMMR   *mmr.Tree
	nextChunk  uint64
}

// Open resumes a BulkAppendTree at the given totalCount, with the buffer
// re-opened at its current fill level and the chunk MMR at its persisted
// size (both carried in the parent element's TotalCount/ChunkPower fields
// plus the persisted 'M' metadata record).
func Open(ctx storage.Context, prefix storage.Prefix, chunkPower int, totalCount uint64) (*Tree, error) {
	capacity := uint64(1)<<uint(chunkPower) - 1
	chunksFilled := totalCount / capacity
	bufferFill := uint32(totalCount % capacity)

	metaRaw, found, _, err := ctx.Get(prefix, storage.Default, metaKey())
	if err != nil {
		return nil, err
	}
	var mmrSize uint64
	if found {
		if len(metaRaw) != 8 {
			return nil, groveerr.ErrCorruptedData
		}
		mmrSize = binary.BigEndian.Uint64(metaRaw)
	}

	bufTree, err := dense.Open(ctx, prefix, chunkPower, bufferFill)
	if err != nil {
		return nil, err
	}
	return &Tree{
		ctx:        ctx,
		prefix:     prefix,
		chunkPower: chunkPower,
		totalCount: totalCount,
		buffer:     bufTree,
		chunkMMR:   mmr.Open(ctx, prefix, mmrSize),
		nextChunk:  chunksFilled,
	}, nil
}

// TotalCount returns the number of entries ever appended.
func (t *Tree) TotalCount() uint64 { return t.totalCount }

// Append inserts value, rolling the buffer into a new chunk when it fills
// (spec §4.8.2 "when count == capacity+1... serialize the full buffer to
// an immutable chunk blob").
func (t *Tree) Append(value []byte) (cost.Cost, error) {
	var total cost.Cost

	c, err := t.buffer.Append(value)
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	t.totalCount++

	if t.buffer.Count() == t.buffer.Capacity() {
		c, err = t.rollChunk()
		total = total.Add(c)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// rollChunk serializes the full buffer into an immutable chunk blob,
// pushes its dense root into the chunk MMR, persists the updated MMR size
// metadata, and resets the in-memory buffer for the next chunk.
func (t *Tree) rollChunk() (cost.Cost, error) {
	var total cost.Cost

	n := t.buffer.Count()
	entries := make([][]byte, n)
	var fixedSize = -1
	allSame := true
	for i := uint32(0); i < n; i++ {
		v, _, c, err := t.buffer.Get(i)
		total = total.Add(c)
		if err != nil {
			return total, err
		}
		entries[i] = v
		if fixedSize == -1 {
			fixedSize = len(v)
		} else if len(v) != fixedSize {
			allSame = false
		}
	}

	blob := encodeChunkBlob(entries, allSame)
	c, err := t.ctx.Put(t.prefix, storage.Default, chunkKey(t.nextChunk), blob)
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	t.nextChunk++

	denseRoot, c, err := t.buffer.Root()
	total = total.Add(c)
	if err != nil {
		return total, err
	}
	c, err = t.chunkMMR.Append(denseRoot.Bytes())
	total = total.Add(c)
	if err != nil {
		return total, err
	}

	var metaBuf [8]byte
	binary.BigEndian.PutUint64(metaBuf[:], t.chunkMMR.Size())
	c, err = t.ctx.Put(t.prefix, storage.Default, metaKey(), metaBuf[:])
	total = total.Add(c)
	if err != nil {
		return total, err
	}

	fresh, err := dense.Open(t.ctx, t.prefix, t.chunkPower, 0)
	if err != nil {
		return total, err
	}
	t.buffer = fresh
	return total, nil
}

// encodeChunkBlob serializes entries with the fixed-size wire format
// (flag 0x01) when every entry shares a length, otherwise variable-size
// (flag 0x00), per spec §4.8.2.
func encodeChunkBlob(entries [][]byte, fixed bool) []byte {
	if fixed && len(entries) > 0 {
		entrySize := len(entries[0])
		buf := make([]byte, 0, 1+4+4+len(entries)*entrySize)
		buf = append(buf, 0x01)
		var cnt, es [4]byte
		binary.BigEndian.PutUint32(cnt[:], uint32(len(entries)))
		binary.BigEndian.PutUint32(es[:], uint32(entrySize))
		buf = append(buf, cnt[:]...)
		buf = append(buf, es[:]...)
		for _, e := range entries {
			buf = append(buf, e...)
		}
		return buf
	}
	var buf []byte
	buf = append(buf, 0x00)
	for _, e := range entries {
		var ln [4]byte
		binary.BigEndian.PutUint32(ln[:], uint32(len(e)))
		buf = append(buf, ln[:]...)
		buf = append(buf, e...)
	}
	return buf
}

// decodeChunkBlob parses the wire format written by encodeChunkBlob, used
// by proof verification to rehash chunk blobs against their declared
// dense root.
func decodeChunkBlob(blob []byte) ([][]byte, error) {
	if len(blob) < 1 {
		return nil, groveerr.ErrCorruptedData
	}
	flag := blob[0]
	off := 1
	switch flag {
	case 0x01:
		if len(blob) < off+8 {
			return nil, groveerr.ErrCorruptedData
		}
		count := binary.BigEndian.Uint32(blob[off : off+4])
		entrySize := binary.BigEndian.Uint32(blob[off+4 : off+8])
		off += 8
		entries := make([][]byte, count)
		for i := uint32(0); i < count; i++ {
			if uint32(len(blob)-off) < entrySize {
				return nil, groveerr.ErrCorruptedData
			}
			entries[i] = append([]byte(nil), blob[off:off+int(entrySize)]...)
			off += int(entrySize)
		}
		return entries, nil
	case 0x00:
		var entries [][]byte
		for off < len(blob) {
			if len(blob)-off < 4 {
				return nil, groveerr.ErrCorruptedData
			}
			ln := binary.BigEndian.Uint32(blob[off : off+4])
			off += 4
			if uint32(len(blob)-off) < ln {
				return nil, groveerr.ErrCorruptedData
			}
			entries = append(entries, append([]byte(nil), blob[off:off+int(ln)]...))
			off += int(ln)
		}
		return entries, nil
	default:
		return nil, groveerr.ErrCorruptedData
	}
}

// Proof is a BulkAppendTree inclusion proof for one appended entry (spec
// §4.10 V1 "chunk_blobs, chunk_mmr_proof_items, buffer_entries"). Exactly
// one of DenseProof (entry still in the live buffer) or ChunkProof+
// MMRProof (entry sealed into a chunk) is populated.
type Proof struct {
	// InBuffer is true when the entry is still in the unsealed buffer.
	InBuffer bool

	// DenseProof proves the entry within the live buffer; MMRRoot is the
	// chunk MMR's root disclosed alongside it to recombine StateRoot.
	DenseProof dense.Proof
	MMRRoot    hash.Digest

	// ChunkProof proves the entry within its sealed chunk's dense
	// reconstruction; MMRProof proves that chunk's dense root is a leaf
	// of the chunk MMR; BufferRoot is the live buffer's root disclosed
	// alongside it to recombine StateRoot.
	ChunkProof dense.Proof
	MMRProof   mmr.Proof
	BufferRoot hash.Digest
}

// Prove builds an inclusion proof for the index-th appended entry
// (0-indexed across the whole tree's history, sealed chunks then buffer).
func (t *Tree) Prove(index uint64) (Proof, cost.Cost, error) {
	var total cost.Cost
	capacity := uint64(t.buffer.Capacity())

	chunkIdx := index / capacity
	if chunkIdx >= t.nextChunk {
		posInBuffer := uint32(index - t.nextChunk*capacity)
		dp, c, err := t.buffer.Prove(posInBuffer)
		total = total.Add(c)
		if err != nil {
			return Proof{}, total, err
		}
		mmrRoot, c, err := t.chunkMMR.Root()
		total = total.Add(c)
		if err != nil {
			return Proof{}, total, err
		}
		return Proof{InBuffer: true, DenseProof: dp, MMRRoot: mmrRoot}, total, nil
	}

	blob, found, c, err := t.ctx.Get(t.prefix, storage.Default, chunkKey(chunkIdx))
	total = total.Add(c)
	if err != nil {
		return Proof{}, total, err
	}
	if !found {
		return Proof{}, total, groveerr.ErrCorruptedData
	}
	entries, err := decodeChunkBlob(blob)
	if err != nil {
		return Proof{}, total, err
	}

	scratchStore := memstore.New()
	scratch, err := dense.Open(scratchStore.Immediate(), storage.DerivePrefix(nil), t.chunkPower, 0)
	if err != nil {
		return Proof{}, total, err
	}
	for _, e := range entries {
		if _, err := scratch.Append(e); err != nil {
			return Proof{}, total, err
		}
	}

	posInChunk := uint32(index - chunkIdx*capacity)
	dp, _, err := scratch.Prove(posInChunk)
	if err != nil {
		return Proof{}, total, err
	}

	mp, c, err := t.chunkMMR.Prove(chunkIdx)
	total = total.Add(c)
	if err != nil {
		return Proof{}, total, err
	}

	bufferRoot, c, err := t.buffer.Root()
	total = total.Add(c)
	if err != nil {
		return Proof{}, total, err
	}

	return Proof{ChunkProof: dp, MMRProof: mp, BufferRoot: bufferRoot}, total, nil
}

// StateRootFromProof replays p and returns the StateRoot it implies
// together with the disclosed entry value, without comparing the root to
// anything. Exposed so a composite proof one level up (nonmerk/commitment,
// whose ChildHash combines a BulkAppendTree state root with a Sinsemilla
// root) can fold this tree's contribution into its own trusted-root check.
func StateRootFromProof(p Proof) (hash.Digest, []byte, error) {
	if p.InBuffer {
		bufferRoot := dense.Root(p.DenseProof)
		return hash.Raw([]byte("bulk_state"), p.MMRRoot.Bytes(), bufferRoot.Bytes()), p.DenseProof.Value, nil
	}

	chunkRoot := dense.Root(p.ChunkProof)
	mmrRoot, err := mmr.RootFromProof(p.MMRProof, chunkRoot.Bytes())
	if err != nil {
		return hash.Zero, nil, err
	}
	return hash.Raw([]byte("bulk_state"), mmrRoot.Bytes(), p.BufferRoot.Bytes()), p.ChunkProof.Value, nil
}

// Verify replays p against trustedRoot (a StateRoot), returning the
// disclosed entry value on success.
func Verify(p Proof, trustedRoot hash.Digest) ([]byte, error) {
	state, value, err := StateRootFromProof(p)
	if err != nil {
		return nil, err
	}
	if state != trustedRoot {
		return nil, groveerr.ErrInvalidProof
	}
	return value, nil
}

// StateRoot computes Blake3("bulk_state" || mmr_root || dense_tree_root)
// (spec §4.8.2), where either component defaults to the zero sentinel if
// empty.
func (t *Tree) StateRoot() (hash.Digest, cost.Cost, error) {
	var total cost.Cost
	mmrRoot, c, err := t.chunkMMR.Root()
	total = total.Add(c)
	if err != nil {
		return hash.Zero, total, err
	}
	bufferRoot, c, err := t.buffer.Root()
	total = total.Add(c)
	if err != nil {
		return hash.Zero, total, err
	}
	return hash.Raw([]byte("bulk_state"), mmrRoot.Bytes(), bufferRoot.Bytes()), total, nil
}
