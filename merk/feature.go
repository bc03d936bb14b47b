// Package merk implements the Merk AVL tree: node and link system (§4.4),
// apply/build/merge with AVL balancing (§4.5), and the feature-type
// aggregation scheme (§4.6, §9). The Walker/Fetch pattern generalizes
// Trillian's detach-mutate-reattach subtree worker
// (merkle/sparse_merkle_tree.go's subtreeWriter) from Trillian's sparse
// tree shards to GroveDB's binary AVL nodes.
package merk

import (
	"encoding/binary"

	"github.com/dashpay/grovedb-go/groveerr"
)

// FeatureKind tags the small, flat union of per-node aggregation
// contributions (spec §3 "Feature type", §9 "not an inheritance
// hierarchy").
type FeatureKind uint8

const (
	Basic FeatureKind = iota
	Summed
	BigSummed
	Counted
	CountedSummed
	ProvableCounted
	ProvableCountedSummed
)

// Feature is a node's aggregation contribution. Only the fields relevant
// to Kind are meaningful.
type Feature struct {
	Kind      FeatureKind
	Sum       int64
	BigSum    [2]int64 // little pair representing a 128-bit signed value: {hi, lo}
	Count     uint64
}

// IsProvable reports whether this feature type must be bound into the
// node hash via node_hash_with_count (spec §4.3, §9).
func (f Feature) IsProvable() bool {
	return f.Kind == ProvableCounted || f.Kind == ProvableCountedSummed
}

// Aggregate is the per-node running total: own contribution plus both
// children's aggregates (spec §3 "Aggregate", §4.6).
type Aggregate struct {
	Count  uint64
	Sum    int64
	BigSum [2]int64
}

// bigSumAdd adds two 128-bit signed values represented as {hi,lo} pairs
// using standard carrying arithmetic, detecting overflow of the 128-bit
// range (spec §4.5 "Overflow").
func bigSumAdd(a, b [2]int64) ([2]int64, bool) {
	lo := uint64(a[1]) + uint64(b[1])
	carry := int64(0)
	if lo < uint64(a[1]) {
		carry = 1
	}
	hi := a[0] + b[0] + carry
	// overflow if signs of a[0],b[0] agree but differ from hi's sign
	if (a[0] >= 0) == (b[0] >= 0) && (hi >= 0) != (a[0] >= 0) {
		return [2]int64{}, true
	}
	return [2]int64{hi, int64(lo)}, false
}

// Own returns the aggregate contribution of this feature value alone
// (i.e. with both child aggregates treated as zero).
func (f Feature) Own() Aggregate {
	switch f.Kind {
	case Summed:
		return Aggregate{Sum: f.Sum}
	case BigSummed:
		return Aggregate{BigSum: f.BigSum}
	case Counted, ProvableCounted:
		return Aggregate{Count: 1}
	case CountedSummed, ProvableCountedSummed:
		return Aggregate{Count: 1, Sum: f.Sum}
	default:
		return Aggregate{}
	}
}

// Combine implements "node.aggregate == node.own + left.aggregate +
// right.aggregate" (spec §8).
func Combine(own, left, right Aggregate) (Aggregate, error) {
	sum, carrySum := addOverflowCheck(own.Sum, left.Sum, right.Sum)
	if carrySum {
		return Aggregate{}, groveerr.ErrOverflow
	}
	big, o1 := bigSumAdd(own.BigSum, left.BigSum)
	if o1 {
		return Aggregate{}, groveerr.ErrOverflow
	}
	big, o2 := bigSumAdd(big, right.BigSum)
	if o2 {
		return Aggregate{}, groveerr.ErrOverflow
	}
	return Aggregate{
		Count:  own.Count + left.Count + right.Count,
		Sum:    sum,
		BigSum: big,
	}, nil
}

func addOverflowCheck(vals ...int64) (int64, bool) {
	var total int64
	for _, v := range vals {
		next := total + v
		if (v > 0 && next < total) || (v < 0 && next > total) {
			return 0, true
		}
		total = next
	}
	return total, false
}

// encodeFeature serializes a Feature for the node wire format (spec §4.4:
// "implementation-defined but must be reversible and stable").
func encodeFeature(f Feature) []byte {
	buf := []byte{byte(f.Kind)}
	switch f.Kind {
	case Summed, CountedSummed, ProvableCountedSummed:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(f.Sum))
		buf = append(buf, tmp[:]...)
	}
	switch f.Kind {
	case BigSummed:
		var tmp [16]byte
		binary.BigEndian.PutUint64(tmp[:8], uint64(f.BigSum[0]))
		binary.BigEndian.PutUint64(tmp[8:], uint64(f.BigSum[1]))
		buf = append(buf, tmp[:]...)
	}
	switch f.Kind {
	case Counted, CountedSummed, ProvableCounted, ProvableCountedSummed:
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], f.Count)
		buf = append(buf, tmp[:]...)
	}
	return buf
}

func decodeFeature(buf []byte) (Feature, int, error) {
	if len(buf) < 1 {
		return Feature{}, 0, groveerr.ErrCorruptedData
	}
	kind := FeatureKind(buf[0])
	off := 1
	f := Feature{Kind: kind}
	switch kind {
	case Basic:
	case Summed:
		if len(buf) < off+8 {
			return Feature{}, 0, groveerr.ErrCorruptedData
		}
		f.Sum = int64(binary.BigEndian.Uint64(buf[off : off+8]))
		off += 8
	case BigSummed:
		if len(buf) < off+16 {
			return Feature{}, 0, groveerr.ErrCorruptedData
		}
		f.BigSum[0] = int64(binary.BigEndian.Uint64(buf[off : off+8]))
		f.BigSum[1] = int64(binary.BigEndian.Uint64(buf[off+8 : off+16]))
		off += 16
	case Counted, ProvableCounted:
		if len(buf) < off+8 {
			return Feature{}, 0, groveerr.ErrCorruptedData
		}
		f.Count = binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
	case CountedSummed, ProvableCountedSummed:
		if len(buf) < off+16 {
			return Feature{}, 0, groveerr.ErrCorruptedData
		}
		f.Count = binary.BigEndian.Uint64(buf[off : off+8])
		f.Sum = int64(binary.BigEndian.Uint64(buf[off+8 : off+16]))
		off += 16
	default:
		return Feature{}, 0, groveerr.ErrCorruptedData
	}
	return f, off, nil
}
