// Package element implements the fifteen-variant tagged-union value model
// stored at every Merk key (spec §3, §4.6): Item, SumItem, ItemWithSumItem,
// Reference, and the eleven subtree portals (seven Tree-like Merk trees and
// four non-Merk trees), each carrying the node's
// feature-aggregation metadata plus an optional opaque flags bytestring.
// The wire format follows the coniks-go merkletree node encoding's
// discriminant-prefixed, big-endian tagged union (other_examples coniks
// files), generalized from two variants to fifteen.
package element

import (
	"encoding/binary"

	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/merk"
)

// Kind is the element's discriminant (spec §3 table).
type Kind uint8

const (
	Item Kind = iota
	Reference
	Tree
	SumItem
	SumTree
	BigSumTree
	CountTree
	CountSumTree
	ItemWithSumItem
	ProvableCountTree
	ProvableCountSumTree
	CommitmentTree
	MmrTree
	BulkAppendTree
	DenseAppendOnlyFixedSizeTree
)

func (k Kind) String() string {
	switch k {
	case Item:
		return "Item"
	case Reference:
		return "Reference"
	case Tree:
		return "Tree"
	case SumItem:
		return "SumItem"
	case SumTree:
		return "SumTree"
	case BigSumTree:
		return "BigSumTree"
	case CountTree:
		return "CountTree"
	case CountSumTree:
		return "CountSumTree"
	case ItemWithSumItem:
		return "ItemWithSumItem"
	case ProvableCountTree:
		return "ProvableCountTree"
	case ProvableCountSumTree:
		return "ProvableCountSumTree"
	case CommitmentTree:
		return "CommitmentTree"
	case MmrTree:
		return "MmrTree"
	case BulkAppendTree:
		return "BulkAppendTree"
	case DenseAppendOnlyFixedSizeTree:
		return "DenseAppendOnlyFixedSizeTree"
	default:
		return "Unknown"
	}
}

// IsTreeLike reports whether this variant has a Merk child subtree
// addressed by RootKey (spec §4.7 "if the element is Tree-like and the
// caller wants to descend").
func (k Kind) IsTreeLike() bool {
	switch k {
	case Tree, SumTree, BigSumTree, CountTree, CountSumTree, ProvableCountTree, ProvableCountSumTree:
		return true
	default:
		return false
	}
}

// IsNonMerkTree reports whether this variant's child is one of the
// specialized non-Merk structures (spec §4.8).
func (k Kind) IsNonMerkTree() bool {
	switch k {
	case CommitmentTree, MmrTree, BulkAppendTree, DenseAppendOnlyFixedSizeTree:
		return true
	default:
		return false
	}
}

// HasChildRoot reports whether this variant's value_hash is the combined
// hash binding a child root (spec §3: "For Tree/Reference/non-Merk
// element variants...").
func (k Kind) HasChildRoot() bool {
	return k == Reference || k.IsTreeLike() || k.IsNonMerkTree()
}

// Element is the flat tagged union of spec §3's fifteen variants. Only
// the fields relevant to Kind are meaningful, the same "not an
// inheritance hierarchy" discipline used for merk.Feature (spec §9).
type Element struct {
	Kind Kind

	// Bytes holds Item's opaque value or ItemWithSumItem's value component.
	Bytes []byte

	// Sum holds SumItem/ItemWithSumItem's i64, or the sum component of
	// SumTree/CountSumTree/ProvableCountSumTree.
	Sum int64

	// BigSum holds BigSumTree's i128, as a {hi,lo} pair.
	BigSum [2]int64

	// Count holds CountTree/CountSumTree/ProvableCountTree/
	// ProvableCountSumTree's u64 descendant count.
	Count uint64

	// RootKey is the optional root-key of a Tree-like variant's child Merk;
	// nil means the child subtree is currently empty.
	RootKey []byte

	// Ref is Reference's path + optional hop cap.
	Ref ReferencePath

	// TotalCount/ChunkPower describe a CommitmentTree or BulkAppendTree
	// child (spec §4.8.2, §4.8.4).
	TotalCount uint64
	ChunkPower uint8

	// MmrSize is MmrTree's append-only log size (spec §4.8.1).
	MmrSize uint64

	// DenseCount/DenseHeight describe a DenseAppendOnlyFixedSizeTree child
	// (spec §4.8.3).
	DenseCount  uint16
	DenseHeight uint8

	// Flags is an opaque application-metadata bytestring carried by every
	// variant (spec §3 "each with an optional opaque flags bytestring").
	Flags []byte
}

// NewItem builds an Item element.
func NewItem(value, flags []byte) Element {
	return Element{Kind: Item, Bytes: value, Flags: flags}
}

// NewSumItem builds a SumItem element.
func NewSumItem(sum int64, flags []byte) Element {
	return Element{Kind: SumItem, Sum: sum, Flags: flags}
}

// NewItemWithSumItem builds an ItemWithSumItem element.
func NewItemWithSumItem(value []byte, sum int64, flags []byte) Element {
	return Element{Kind: ItemWithSumItem, Bytes: value, Sum: sum, Flags: flags}
}

// NewTree builds an empty or rooted Tree element.
func NewTree(rootKey, flags []byte) Element {
	return Element{Kind: Tree, RootKey: rootKey, Flags: flags}
}

// NewReference builds a Reference element.
func NewReference(ref ReferencePath, flags []byte) Element {
	return Element{Kind: Reference, Ref: ref, Flags: flags}
}

// Feature derives the merk.Feature this element contributes to its
// parent Merk node's aggregate (spec §4.6 "When the parent Merk stores a
// Tree/SumTree/etc. element... the subtree's new root hash (and new
// aggregate) is folded into the parent element's value_hash").
func (e Element) Feature() merk.Feature {
	switch e.Kind {
	case SumItem, ItemWithSumItem, SumTree:
		return merk.Feature{Kind: merk.Summed, Sum: e.Sum}
	case BigSumTree:
		return merk.Feature{Kind: merk.BigSummed, BigSum: e.BigSum}
	case CountTree:
		return merk.Feature{Kind: merk.Counted, Count: e.Count}
	case CountSumTree:
		return merk.Feature{Kind: merk.CountedSummed, Count: e.Count, Sum: e.Sum}
	case ProvableCountTree:
		return merk.Feature{Kind: merk.ProvableCounted, Count: e.Count}
	case ProvableCountSumTree:
		return merk.Feature{Kind: merk.ProvableCountedSummed, Count: e.Count, Sum: e.Sum}
	default:
		return merk.Feature{Kind: merk.Basic}
	}
}

func appendVarintBytes(buf, v []byte) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(v)))
	buf = append(buf, tmp[:n]...)
	return append(buf, v...)
}

func readVarintBytes(buf []byte) ([]byte, int, error) {
	ln, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, 0, groveerr.ErrCorruptedData
	}
	if len(buf) < n+int(ln) {
		return nil, 0, groveerr.ErrCorruptedData
	}
	return append([]byte(nil), buf[n:n+int(ln)]...), n + int(ln), nil
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readU64(buf []byte) (uint64, int, error) {
	if len(buf) < 8 {
		return 0, 0, groveerr.ErrCorruptedData
	}
	return binary.BigEndian.Uint64(buf[:8]), 8, nil
}

// Serialize encodes e as a tagged union: a one-byte discriminant, the
// variant's fields in big-endian order, then a length-prefixed flags
// bytestring (spec §3, §9 "Element serialization").
func Serialize(e Element) []byte {
	buf := []byte{byte(e.Kind)}
	switch e.Kind {
	case Item:
		buf = appendVarintBytes(buf, e.Bytes)
	case Reference:
		buf = appendRefPath(buf, e.Ref)
	case Tree:
		buf = appendVarintBytes(buf, e.RootKey)
	case SumItem:
		buf = appendU64(buf, uint64(e.Sum))
	case SumTree:
		buf = appendVarintBytes(buf, e.RootKey)
		buf = appendU64(buf, uint64(e.Sum))
	case BigSumTree:
		buf = appendVarintBytes(buf, e.RootKey)
		buf = appendU64(buf, uint64(e.BigSum[0]))
		buf = appendU64(buf, uint64(e.BigSum[1]))
	case CountTree:
		buf = appendVarintBytes(buf, e.RootKey)
		buf = appendU64(buf, e.Count)
	case CountSumTree:
		buf = appendVarintBytes(buf, e.RootKey)
		buf = appendU64(buf, e.Count)
		buf = appendU64(buf, uint64(e.Sum))
	case ItemWithSumItem:
		buf = appendVarintBytes(buf, e.Bytes)
		buf = appendU64(buf, uint64(e.Sum))
	case ProvableCountTree:
		buf = appendVarintBytes(buf, e.RootKey)
		buf = appendU64(buf, e.Count)
	case ProvableCountSumTree:
		buf = appendVarintBytes(buf, e.RootKey)
		buf = appendU64(buf, e.Count)
		buf = appendU64(buf, uint64(e.Sum))
	case CommitmentTree:
		buf = appendU64(buf, e.TotalCount)
		buf = append(buf, e.ChunkPower)
	case MmrTree:
		buf = appendU64(buf, e.MmrSize)
	case BulkAppendTree:
		buf = appendU64(buf, e.TotalCount)
		buf = append(buf, e.ChunkPower)
	case DenseAppendOnlyFixedSizeTree:
		var tmp [2]byte
		binary.BigEndian.PutUint16(tmp[:], e.DenseCount)
		buf = append(buf, tmp[:]...)
		buf = append(buf, e.DenseHeight)
	}
	buf = appendVarintBytes(buf, e.Flags)
	return buf
}

// Deserialize decodes a tagged-union payload produced by Serialize. An
// unrecognized discriminant is CorruptedData (spec §9 "Unknown
// discriminants are a CorruptedData error").
func Deserialize(payload []byte) (Element, error) {
	if len(payload) < 1 {
		return Element{}, groveerr.ErrCorruptedData
	}
	kind := Kind(payload[0])
	off := 1
	e := Element{Kind: kind}

	consume := func(n int, err error) error {
		off += n
		return err
	}

	var err error
	switch kind {
	case Item:
		e.Bytes, err = readField(payload[off:], &off)
	case Reference:
		var n int
		e.Ref, n, err = readRefPath(payload[off:])
		off += n
	case Tree:
		e.RootKey, err = readField(payload[off:], &off)
	case SumItem:
		var v uint64
		v, off2, e2 := readU64(payload[off:])
		err = consume(off2, e2)
		e.Sum = int64(v)
	case SumTree:
		e.RootKey, err = readField(payload[off:], &off)
		if err == nil {
			var v uint64
			v, off2, e2 := readU64(payload[off:])
			err = consume(off2, e2)
			e.Sum = int64(v)
		}
	case BigSumTree:
		e.RootKey, err = readField(payload[off:], &off)
		if err == nil {
			var hi, lo uint64
			var n int
			hi, n, err = readU64(payload[off:])
			off += n
			if err == nil {
				lo, n, err = readU64(payload[off:])
				off += n
			}
			e.BigSum = [2]int64{int64(hi), int64(lo)}
		}
	case CountTree:
		e.RootKey, err = readField(payload[off:], &off)
		if err == nil {
			e.Count, err = readCount(payload, &off)
		}
	case CountSumTree:
		e.RootKey, err = readField(payload[off:], &off)
		if err == nil {
			e.Count, err = readCount(payload, &off)
		}
		if err == nil {
			var v uint64
			v, err = readCount(payload, &off)
			e.Sum = int64(v)
		}
	case ItemWithSumItem:
		e.Bytes, err = readField(payload[off:], &off)
		if err == nil {
			var v uint64
			v, err = readCount(payload, &off)
			e.Sum = int64(v)
		}
	case ProvableCountTree:
		e.RootKey, err = readField(payload[off:], &off)
		if err == nil {
			e.Count, err = readCount(payload, &off)
		}
	case ProvableCountSumTree:
		e.RootKey, err = readField(payload[off:], &off)
		if err == nil {
			e.Count, err = readCount(payload, &off)
		}
		if err == nil {
			var v uint64
			v, err = readCount(payload, &off)
			e.Sum = int64(v)
		}
	case CommitmentTree:
		e.TotalCount, err = readCount(payload, &off)
		if err == nil {
			if len(payload) < off+1 {
				err = groveerr.ErrCorruptedData
			} else {
				e.ChunkPower = payload[off]
				off++
			}
		}
	case MmrTree:
		e.MmrSize, err = readCount(payload, &off)
	case BulkAppendTree:
		e.TotalCount, err = readCount(payload, &off)
		if err == nil {
			if len(payload) < off+1 {
				err = groveerr.ErrCorruptedData
			} else {
				e.ChunkPower = payload[off]
				off++
			}
		}
	case DenseAppendOnlyFixedSizeTree:
		if len(payload) < off+3 {
			err = groveerr.ErrCorruptedData
		} else {
			e.DenseCount = binary.BigEndian.Uint16(payload[off : off+2])
			e.DenseHeight = payload[off+2]
			off += 3
		}
	default:
		return Element{}, groveerr.ErrCorruptedData
	}
	if err != nil {
		return Element{}, err
	}

	e.Flags, err = readField(payload[off:], &off)
	if err != nil {
		return Element{}, err
	}
	return e, nil
}

// readField reads a varint-length-prefixed byte field from buf (the
// remaining, not-yet-consumed suffix of the payload) and advances the
// caller's cumulative offset by the number of bytes read.
func readField(buf []byte, off *int) ([]byte, error) {
	v, n, err := readVarintBytes(buf)
	if err != nil {
		return nil, err
	}
	*off += n
	return v, nil
}

// readCount reads a big-endian u64 at the cumulative offset *off within
// the full payload buf, advancing *off.
func readCount(buf []byte, off *int) (uint64, error) {
	v, n, err := readU64(buf[*off:])
	if err != nil {
		return 0, err
	}
	*off += n
	return v, nil
}

// ElementBytesHash computes Blake3(varint(|bytes|) || bytes) over this
// element's own serialized bytes, the first half of the combined value
// hash for Tree-like/Reference/non-Merk variants (spec §4.3).
func (e Element) ElementBytesHash() hash.Digest {
	return hash.ElementBytesHash(Serialize(e))
}
