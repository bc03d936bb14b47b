package element

import (
	"encoding/binary"

	"github.com/dashpay/grovedb-go/groveerr"
)

// RefPathKind is one of the seven relative-or-absolute reference-path
// forms of spec §4.6.
type RefPathKind uint8

const (
	RefAbsolute RefPathKind = iota
	RefUpstreamRootHeight
	RefUpstreamRootHeightWithParentPathAddition
	RefUpstreamFromElementHeight
	RefCousin
	RefRemovedCousin
	RefSibling
)

// ReferencePath names a reference's target relative to the reference's
// own qualified path (spec §4.6 "A reference variant carries a
// reference-path type... and an optional hop cap").
type ReferencePath struct {
	Kind RefPathKind

	// Path carries RefAbsolute's full target path (last element is the
	// key) and RefCousin/RefRemovedCousin/RefSibling's replacement
	// segment(s).
	Path [][]byte

	// Height is the "n" parameter of RefUpstreamRootHeight and
	// RefUpstreamFromElementHeight: how many levels to keep (from the
	// grove root) or strip (from the referencing element), respectively.
	Height uint64

	// Tail is appended after truncating/ascending, for the Upstream*
	// variants.
	Tail [][]byte

	// ParentPathAddition is spliced in between the truncated root path and
	// Tail for RefUpstreamRootHeightWithParentPathAddition.
	ParentPathAddition [][]byte

	// HopLimit caps reference-chasing recursion; zero means "use the
	// engine default" (MAX_REFERENCE_HOPS, spec §4.6).
	HopLimit uint8
}

// Resolve computes the target qualified path+key for ref relative to the
// path+key of the element that carries it (spec §4.6: "starting at the
// reference's own qualified path, compute the target path using the
// variant's rule").
func Resolve(ownPath [][]byte, ownKey []byte, ref ReferencePath) ([][]byte, []byte, error) {
	full := append(append([][]byte{}, ownPath...), ownKey)

	switch ref.Kind {
	case RefAbsolute:
		if len(ref.Path) == 0 {
			return nil, nil, groveerr.ErrInvalidPayload
		}
		return ref.Path[:len(ref.Path)-1], ref.Path[len(ref.Path)-1], nil

	case RefUpstreamRootHeight:
		if ref.Height > uint64(len(full)) {
			return nil, nil, groveerr.ErrPathNotFound
		}
		base := full[:ref.Height]
		return splitTail(base, ref.Tail)

	case RefUpstreamRootHeightWithParentPathAddition:
		if ref.Height > uint64(len(full)) {
			return nil, nil, groveerr.ErrPathNotFound
		}
		base := append(append([][]byte{}, full[:ref.Height]...), ref.ParentPathAddition...)
		return splitTail(base, ref.Tail)

	case RefUpstreamFromElementHeight:
		if ref.Height > uint64(len(full)) {
			return nil, nil, groveerr.ErrPathNotFound
		}
		base := full[:uint64(len(full))-ref.Height]
		return splitTail(base, ref.Tail)

	case RefCousin, RefRemovedCousin:
		// Same grandparent, a different parent segment, same key: replace
		// the second-to-last path segment with the supplied one.
		if len(ownPath) == 0 || len(ref.Path) != 1 {
			return nil, nil, groveerr.ErrInvalidPayload
		}
		newPath := append([][]byte{}, ownPath[:len(ownPath)-1]...)
		newPath = append(newPath, ref.Path[0])
		return newPath, ownKey, nil

	case RefSibling:
		// Same parent path, a different key.
		if len(ref.Path) != 1 {
			return nil, nil, groveerr.ErrInvalidPayload
		}
		return append([][]byte{}, ownPath...), ref.Path[0], nil

	default:
		return nil, nil, groveerr.ErrInvalidPayload
	}
}

func splitTail(base [][]byte, tail [][]byte) ([][]byte, []byte, error) {
	full := append(append([][]byte{}, base...), tail...)
	if len(full) == 0 {
		return nil, nil, groveerr.ErrInvalidPayload
	}
	return full[:len(full)-1], full[len(full)-1], nil
}

func appendVarintPath(buf []byte, path [][]byte) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(path)))
	buf = append(buf, tmp[:n]...)
	for _, seg := range path {
		buf = appendVarintBytes(buf, seg)
	}
	return buf
}

func readVarintPath(buf []byte) ([][]byte, int, error) {
	count, n := binary.Uvarint(buf)
	if n <= 0 {
		return nil, 0, groveerr.ErrCorruptedData
	}
	off := n
	path := make([][]byte, 0, count)
	for i := uint64(0); i < count; i++ {
		seg, sn, err := readVarintBytes(buf[off:])
		if err != nil {
			return nil, 0, err
		}
		path = append(path, seg)
		off += sn
	}
	return path, off, nil
}

// appendRefPath serializes a ReferencePath as: kind byte, Path, Height
// (u64), Tail, ParentPathAddition, HopLimit byte.
func appendRefPath(buf []byte, ref ReferencePath) []byte {
	buf = append(buf, byte(ref.Kind))
	buf = appendVarintPath(buf, ref.Path)
	buf = appendU64(buf, ref.Height)
	buf = appendVarintPath(buf, ref.Tail)
	buf = appendVarintPath(buf, ref.ParentPathAddition)
	buf = append(buf, ref.HopLimit)
	return buf
}

func readRefPath(buf []byte) (ReferencePath, int, error) {
	if len(buf) < 1 {
		return ReferencePath{}, 0, groveerr.ErrCorruptedData
	}
	ref := ReferencePath{Kind: RefPathKind(buf[0])}
	off := 1

	path, n, err := readVarintPath(buf[off:])
	if err != nil {
		return ReferencePath{}, 0, err
	}
	ref.Path = path
	off += n

	height, hn, err := readU64(buf[off:])
	if err != nil {
		return ReferencePath{}, 0, err
	}
	ref.Height = height
	off += hn

	tail, tn, err := readVarintPath(buf[off:])
	if err != nil {
		return ReferencePath{}, 0, err
	}
	ref.Tail = tail
	off += tn

	addition, an, err := readVarintPath(buf[off:])
	if err != nil {
		return ReferencePath{}, 0, err
	}
	ref.ParentPathAddition = addition
	off += an

	if len(buf) < off+1 {
		return ReferencePath{}, 0, groveerr.ErrCorruptedData
	}
	ref.HopLimit = buf[off]
	off++

	return ref, off, nil
}
