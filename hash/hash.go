// Package hash implements the GroveDB hash kernel (spec §4.3): length-
// prefixed Blake3 wrappers used by every node, element, and non-Merk tree
// in the grove. Each exported function is exactly one underlying Blake3
// invocation (KVHash and CombinedValueHash each call a second exported
// function and so cost two); callers charge cost.Cost.Blake3Calls at the
// call site, the same way merk/ops.go does for node construction.
package hash

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// Size is the digest length used throughout the engine.
const Size = 32

// Digest is a 32-byte Blake3 output.
type Digest [Size]byte

// Zero is the all-zero sentinel used for absent children (spec §4.3).
var Zero Digest

// IsZero reports whether d is the all-zero sentinel.
func (d Digest) IsZero() bool { return d == Zero }

// Bytes returns d as a byte slice.
func (d Digest) Bytes() []byte { return d[:] }

// FromBytes copies b (which must be exactly Size bytes) into a Digest.
func FromBytes(b []byte) Digest {
	var d Digest
	copy(d[:], b)
	return d
}

// appendVarint appends a varint length prefix to buf, matching the scheme
// used by every length-prefixed hash input in spec §4.3.
func appendVarint(buf []byte, n int) []byte {
	var tmp [binary.MaxVarintLen64]byte
	ln := binary.PutUvarint(tmp[:], uint64(n))
	return append(buf, tmp[:ln]...)
}

func sum(parts ...[]byte) Digest {
	h := blake3.New(Size, nil)
	for _, p := range parts {
		h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// ValueHash computes Blake3(varint(|v|) || v).
func ValueHash(v []byte) Digest {
	buf := appendVarint(make([]byte, 0, len(v)+binary.MaxVarintLen64), len(v))
	return sum(buf, v)
}

// KVHash computes Blake3(varint(|k|) || k || value_hash(v)).
func KVHash(k, v []byte) Digest {
	vh := ValueHash(v)
	return KVDigestToKVHash(k, vh)
}

// KVDigestToKVHash computes Blake3(varint(|k|) || k || vh) for a
// precomputed value-hash digest.
func KVDigestToKVHash(k []byte, vh Digest) Digest {
	buf := appendVarint(make([]byte, 0, len(k)+binary.MaxVarintLen64), len(k))
	return sum(buf, k, vh[:])
}

// NodeHash computes Blake3(kv || L || R), with absent children hashed as
// the all-zero sentinel (spec §4.3).
func NodeHash(kv, left, right Digest) Digest {
	return sum(kv[:], left[:], right[:])
}

// NodeHashWithCount computes Blake3(kv || L || R || be64(count)) for
// provable-count feature types (spec §4.3).
func NodeHashWithCount(kv, left, right Digest, count uint64) Digest {
	var cbuf [8]byte
	binary.BigEndian.PutUint64(cbuf[:], count)
	return sum(kv[:], left[:], right[:], cbuf[:])
}

// CombineHash computes Blake3(a || b), used to bind two digests together
// (e.g. element bytes hash with child root) into one (spec §4.3, glossary).
func CombineHash(a, b Digest) Digest {
	return sum(a[:], b[:])
}

// Raw computes Blake3 over the literal concatenation of parts, with no
// length prefixing. Used by non-Merk state-root labels (e.g.
// "bulk_state" || mmr_root || dense_tree_root) that bind a fixed ASCII
// domain tag directly to raw digest bytes.
func Raw(parts ...[]byte) Digest {
	return sum(parts...)
}

// ElementBytesHash computes Blake3(varint(|bytes|) || bytes), the first
// half of the combined value hash used by Tree/Reference/non-Merk
// elements (spec §4.3).
func ElementBytesHash(elementBytes []byte) Digest {
	return ValueHash(elementBytes)
}

// CombinedValueHash implements the effective value_hash for Tree-like,
// Reference, and non-Merk elements: combine_hash(Blake3(varint(|bytes|) ||
// bytes), childRoot) (spec §4.3).
func CombinedValueHash(elementBytes []byte, childRoot Digest) Digest {
	return CombineHash(ElementBytesHash(elementBytes), childRoot)
}
