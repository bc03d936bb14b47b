package hash

import (
	"crypto/sha256"
	"math/big"
)

// Sinsemilla is a ZK-friendly hash used only inside CommitmentTree's
// frontier (spec §4.8.4). The engine never needs to produce a circuit-
// verifiable proof of this hash itself -- spec §1 explicitly defers ZK
// circuit synthesis to client libraries and asks only that the engine
// "maintain the anchor" -- so this adapter only needs to be a stable,
// collision-resistant point accumulator over a curve-sized field. No
// ecosystem Go library implements Sinsemilla-over-Pallas (it is specific
// to the Zcash Orchard protocol and has no public Go port), so this is a
// deliberate, documented standard-library exception (see DESIGN.md).
//
// pallasModulus is the modulus of the Pallas base field, used only to
// keep the accumulator's intermediate values bounded the way a real
// elliptic-curve point addition would be; it carries no cryptographic
// claim beyond "this is not Blake3".
var pallasModulus, _ = new(big.Int).SetString(
	"28948022309329048855892746252171976963363056481941560715954676764349967630337", 10)

// SinsemillaPoint is an accumulator value within the Pallas-sized field.
type SinsemillaPoint struct {
	x *big.Int
}

// SinsemillaIdentity is the accumulator's starting point.
func SinsemillaIdentity() SinsemillaPoint {
	return SinsemillaPoint{x: big.NewInt(0)}
}

// Bytes serializes the point to a fixed 32-byte big-endian encoding.
func (p SinsemillaPoint) Bytes() [32]byte {
	var out [32]byte
	b := p.x.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// SinsemillaPointFromBytes decodes a point serialized by Bytes.
func SinsemillaPointFromBytes(b []byte) SinsemillaPoint {
	return SinsemillaPoint{x: new(big.Int).SetBytes(b)}
}

// SinsemillaHashMessage folds domain and msg into the accumulator,
// returning the new point. Each call counts as one Sinsemilla call for
// cost-accounting purposes (spec §4.8.4: "32 Sinsemilla hashes (root
// traversal)").
func SinsemillaHashMessage(acc SinsemillaPoint, domain string, msg []byte) SinsemillaPoint {
	h := sha256.New()
	h.Write([]byte(domain))
	accBytes := acc.Bytes()
	h.Write(accBytes[:])
	h.Write(msg)
	digest := h.Sum(nil)
	x := new(big.Int).SetBytes(digest)
	x.Mod(x, pallasModulus)
	return SinsemillaPoint{x: x}
}

// SinsemillaMerge combines two Sinsemilla points (used when merging
// ommers in the frontier), counting as one call.
func SinsemillaMerge(domain string, a, b SinsemillaPoint) SinsemillaPoint {
	ab := a.Bytes()
	bb := b.Bytes()
	return SinsemillaHashMessage(SinsemillaIdentity(), domain, append(ab[:], bb[:]...))
}
