package merk

import (
	"encoding/binary"

	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
)

// Serialize encodes a node's stored payload (everything except its key,
// which is supplied externally as the storage key, per spec §4.4). The
// format is a fixed, implementation-defined, reversible layout:
//
//	varint(len(value)) || value
//	feature bytes (self-describing, see feature.go)
//	value_hash (32) || kv_hash (32)
//	left summary || right summary
//
// where a link summary is:
//
//	present (1 byte: 0 absent, 1 present)
//	[ hash(32) || varint(len(key)) || key || left_height(1) || right_height(1) || aggregate(32) ]
func Serialize(n *Node) []byte {
	var buf []byte
	buf = appendVarintBytes(buf, n.Value)
	buf = append(buf, encodeFeature(n.Feature)...)
	buf = append(buf, n.ValueHash[:]...)
	buf = append(buf, n.KVHash[:]...)
	buf = appendLinkSummary(buf, n.Left)
	buf = appendLinkSummary(buf, n.Right)
	return buf
}

func appendVarintBytes(buf, v []byte) []byte {
	var tmp [binary.MaxVarintLen64]byte
	ln := binary.PutUvarint(tmp[:], uint64(len(v)))
	buf = append(buf, tmp[:ln]...)
	return append(buf, v...)
}

func appendAggregate(buf []byte, a Aggregate) []byte {
	var tmp [32]byte
	binary.BigEndian.PutUint64(tmp[0:8], a.Count)
	binary.BigEndian.PutUint64(tmp[8:16], uint64(a.Sum))
	binary.BigEndian.PutUint64(tmp[16:24], uint64(a.BigSum[0]))
	binary.BigEndian.PutUint64(tmp[24:32], uint64(a.BigSum[1]))
	return append(buf, tmp[:]...)
}

func readAggregate(buf []byte) (Aggregate, int, error) {
	if len(buf) < 32 {
		return Aggregate{}, 0, groveerr.ErrCorruptedData
	}
	return Aggregate{
		Count:  binary.BigEndian.Uint64(buf[0:8]),
		Sum:    int64(binary.BigEndian.Uint64(buf[8:16])),
		BigSum: [2]int64{int64(binary.BigEndian.Uint64(buf[16:24])), int64(binary.BigEndian.Uint64(buf[24:32]))},
	}, 32, nil
}

func appendLinkSummary(buf []byte, l *Link) []byte {
	if l == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = append(buf, l.Hash[:]...)
	buf = appendVarintBytes(buf, l.Key)
	buf = append(buf, l.LeftHeight, l.RightHeight)
	buf = appendAggregate(buf, l.Aggregate)
	return buf
}

func readLinkSummary(buf []byte) (*Link, int, error) {
	if len(buf) < 1 {
		return nil, 0, groveerr.ErrCorruptedData
	}
	if buf[0] == 0 {
		return nil, 1, nil
	}
	off := 1
	if len(buf) < off+hash.Size {
		return nil, 0, groveerr.ErrCorruptedData
	}
	h := hash.FromBytes(buf[off : off+hash.Size])
	off += hash.Size

	keyLen, n := binary.Uvarint(buf[off:])
	if n <= 0 {
		return nil, 0, groveerr.ErrCorruptedData
	}
	off += n
	if len(buf) < off+int(keyLen)+2 {
		return nil, 0, groveerr.ErrCorruptedData
	}
	key := append([]byte(nil), buf[off:off+int(keyLen)]...)
	off += int(keyLen)
	leftH, rightH := buf[off], buf[off+1]
	off += 2

	agg, n2, err := readAggregate(buf[off:])
	if err != nil {
		return nil, 0, err
	}
	off += n2

	return &Link{State: LinkReference, Hash: h, Key: key, LeftHeight: leftH, RightHeight: rightH, Aggregate: agg}, off, nil
}

// Deserialize decodes the stored payload for key into a Node, verifying
// that kv_hash(key, value) matches the stored kv_hash -- spec §4.5
// "CorruptedData (hash mismatch on load)".
func Deserialize(key, payload []byte) (*Node, error) {
	off := 0
	valLen, n := binary.Uvarint(payload[off:])
	if n <= 0 {
		return nil, groveerr.ErrCorruptedData
	}
	off += n
	if len(payload) < off+int(valLen) {
		return nil, groveerr.ErrCorruptedData
	}
	value := append([]byte(nil), payload[off:off+int(valLen)]...)
	off += int(valLen)

	feature, fn, err := decodeFeature(payload[off:])
	if err != nil {
		return nil, err
	}
	off += fn

	if len(payload) < off+2*hash.Size {
		return nil, groveerr.ErrCorruptedData
	}
	valueHash := hash.FromBytes(payload[off : off+hash.Size])
	off += hash.Size
	kvHash := hash.FromBytes(payload[off : off+hash.Size])
	off += hash.Size

	if hash.KVDigestToKVHash(key, valueHash) != kvHash {
		return nil, groveerr.ErrCorruptedData
	}

	left, ln, err := readLinkSummary(payload[off:])
	if err != nil {
		return nil, err
	}
	off += ln

	right, rn, err := readLinkSummary(payload[off:])
	if err != nil {
		return nil, err
	}
	off += rn

	n2 := &Node{
		Key:       append([]byte(nil), key...),
		Value:     value,
		Feature:   feature,
		ValueHash: valueHash,
		KVHash:    kvHash,
		Left:      left,
		Right:     right,
	}
	if err := n2.recomputeHash(); err != nil {
		return nil, err
	}
	return n2, nil
}
