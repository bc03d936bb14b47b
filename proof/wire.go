// Wire encoding for V1 envelopes (spec §6 "V1 proofs prefix each layer
// with a 1-byte tag naming the ProofBytes variant; lengths inside the
// proof use varint"). Built on protowire's low-level tag/varint/bytes
// primitives rather than a generated message type: the envelope's shape
// (one tagged non-Merk body nested under one Merk layer) is fixed and
// small enough that a hand-authored field layout is simpler than a
// .proto schema, while still giving the same self-describing varint
// framing protobuf itself uses on the wire.
package proof

import (
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/nonmerk/bulkappend"
	"github.com/dashpay/grovedb-go/nonmerk/commitment"
	"github.com/dashpay/grovedb-go/nonmerk/dense"
	"github.com/dashpay/grovedb-go/nonmerk/mmr"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers for the hand-framed envelope message.
const (
	fieldParentLayer = protowire.Number(1)
	fieldParentKey   = protowire.Number(2)
	fieldLeafKind    = protowire.Number(3)
	fieldLeafBody    = protowire.Number(4)

	fieldLayerOp = protowire.Number(1)

	fieldOpCode = protowire.Number(1)
	fieldOpNode = protowire.Number(2)

	fieldNodeVariant   = protowire.Number(1)
	fieldNodeSubHash   = protowire.Number(2)
	fieldNodeKVHash    = protowire.Number(3)
	fieldNodeKey       = protowire.Number(4)
	fieldNodeValue     = protowire.Number(5)
	fieldNodeValueHash = protowire.Number(6)
)

// MaxLayerBytes bounds a single decoded V1 layer (spec §6 "Deserializers
// must bound allocations at 100 MiB per layer").
const MaxLayerBytes = 100 * 1024 * 1024

func appendDigest(buf []byte, num protowire.Number, d hash.Digest) []byte {
	return protowire.AppendBytes(protowire.AppendTag(buf, num, protowire.BytesType), d[:])
}

func decodeDigest(b []byte) (hash.Digest, error) {
	if len(b) != hash.Size {
		return hash.Digest{}, groveerr.ErrCorruptedData
	}
	return hash.FromBytes(b), nil
}

// EncodeLayer frames a V0 Layer as a length-prefixed sequence of tagged
// ops, each op a varint opcode plus an optional nested node message.
func EncodeLayer(layer Layer) []byte {
	var buf []byte
	for _, op := range layer.Ops {
		opBuf := protowire.AppendVarint(nil, uint64(op.Code))
		opMsg := protowire.AppendTag(nil, fieldOpCode, protowire.VarintType)
		opMsg = append(opMsg, opBuf...)
		if op.Code == OpPush || op.Code == OpPushInverted {
			nodeBuf := encodeNode(op.Node)
			opMsg = protowire.AppendBytes(protowire.AppendTag(opMsg, fieldOpNode, protowire.BytesType), nodeBuf)
		}
		buf = protowire.AppendBytes(protowire.AppendTag(buf, fieldLayerOp, protowire.BytesType), opMsg)
	}
	return buf
}

func encodeNode(n ProofNode) []byte {
	var buf []byte
	buf = append(protowire.AppendTag(buf, fieldNodeVariant, protowire.VarintType), protowire.AppendVarint(nil, uint64(n.Variant))...)
	if n.Variant == VariantHash || n.Variant == VariantKVDigest {
		buf = appendDigest(buf, fieldNodeSubHash, n.SubtreeHash)
	}
	if n.Variant == VariantKVHash {
		buf = appendDigest(buf, fieldNodeKVHash, n.KVHash)
	}
	if len(n.Key) > 0 {
		buf = protowire.AppendBytes(protowire.AppendTag(buf, fieldNodeKey, protowire.BytesType), n.Key)
	}
	if n.Variant == VariantKV {
		buf = protowire.AppendBytes(protowire.AppendTag(buf, fieldNodeValue, protowire.BytesType), n.Value)
	}
	if n.Variant == VariantKVValueHash || n.Variant == VariantKVValueHashFeatureType || n.Variant == VariantKVRefValueHash {
		buf = protowire.AppendBytes(protowire.AppendTag(buf, fieldNodeValue, protowire.BytesType), n.Value)
		buf = appendDigest(buf, fieldNodeValueHash, n.ValueHash)
	}
	return buf
}

// DecodeLayer reverses EncodeLayer, rejecting buffers past MaxLayerBytes.
// EncodeLayer does not write a node's Feature or SubtreeAggregate, so
// those fields decode as zero values.
func DecodeLayer(buf []byte) (Layer, error) {
	if len(buf) > MaxLayerBytes {
		return Layer{}, groveerr.ErrInvalidPayload
	}
	var ops []Op
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 || typ != protowire.BytesType {
			return Layer{}, groveerr.ErrCorruptedData
		}
		buf = buf[n:]
		opMsg, n := protowire.ConsumeBytes(buf)
		if n < 0 {
			return Layer{}, groveerr.ErrCorruptedData
		}
		buf = buf[n:]
		_ = num

		op, err := decodeOp(opMsg)
		if err != nil {
			return Layer{}, err
		}
		ops = append(ops, op)
	}
	return Layer{Ops: ops}, nil
}

func decodeOp(buf []byte) (Op, error) {
	var op Op
	haveCode := false
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return Op{}, groveerr.ErrCorruptedData
		}
		buf = buf[n:]
		switch num {
		case fieldOpCode:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return Op{}, groveerr.ErrCorruptedData
			}
			buf = buf[n:]
			op.Code = OpCode(v)
			haveCode = true
		case fieldOpNode:
			if typ != protowire.BytesType {
				return Op{}, groveerr.ErrCorruptedData
			}
			nodeBuf, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return Op{}, groveerr.ErrCorruptedData
			}
			buf = buf[n:]
			node, err := decodeNode(nodeBuf)
			if err != nil {
				return Op{}, err
			}
			op.Node = node
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return Op{}, groveerr.ErrCorruptedData
			}
			buf = buf[n:]
		}
	}
	if !haveCode {
		return Op{}, groveerr.ErrCorruptedData
	}
	return op, nil
}

func decodeNode(buf []byte) (ProofNode, error) {
	var n ProofNode
	for len(buf) > 0 {
		num, typ, tn := protowire.ConsumeTag(buf)
		if tn < 0 {
			return ProofNode{}, groveerr.ErrCorruptedData
		}
		buf = buf[tn:]
		switch num {
		case fieldNodeVariant:
			v, vn := protowire.ConsumeVarint(buf)
			if vn < 0 {
				return ProofNode{}, groveerr.ErrCorruptedData
			}
			buf = buf[vn:]
			n.Variant = NodeVariant(v)
		case fieldNodeSubHash:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return ProofNode{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			d, err := decodeDigest(b)
			if err != nil {
				return ProofNode{}, err
			}
			n.SubtreeHash = d
		case fieldNodeKVHash:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return ProofNode{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			d, err := decodeDigest(b)
			if err != nil {
				return ProofNode{}, err
			}
			n.KVHash = d
		case fieldNodeKey:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return ProofNode{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			n.Key = append([]byte(nil), b...)
		case fieldNodeValue:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return ProofNode{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			n.Value = append([]byte(nil), b...)
		case fieldNodeValueHash:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return ProofNode{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			d, err := decodeDigest(b)
			if err != nil {
				return ProofNode{}, err
			}
			n.ValueHash = d
		default:
			cn := protowire.ConsumeFieldValue(num, typ, buf)
			if cn < 0 {
				return ProofNode{}, groveerr.ErrCorruptedData
			}
			buf = buf[cn:]
		}
	}
	return n, nil
}

// EncodeEnvelope frames a V1 Envelope: the parent Merk layer, the
// proven element's key, a 1-byte LayerKind tag, and the tagged non-Merk
// proof body (spec §6's "1-byte tag naming the ProofBytes variant").
func EncodeEnvelope(env Envelope) []byte {
	var buf []byte
	buf = protowire.AppendBytes(protowire.AppendTag(buf, fieldParentLayer, protowire.BytesType), EncodeLayer(env.ParentLayer))
	buf = protowire.AppendBytes(protowire.AppendTag(buf, fieldParentKey, protowire.BytesType), env.ParentKey)
	buf = append(protowire.AppendTag(buf, fieldLeafKind, protowire.VarintType), protowire.AppendVarint(nil, uint64(env.Leaf.Kind))...)
	buf = protowire.AppendBytes(protowire.AppendTag(buf, fieldLeafBody, protowire.BytesType), encodeLeafBody(env.Leaf))
	return buf
}

func encodeLeafBody(p NonMerkProof) []byte {
	switch p.Kind {
	case LayerMMR:
		return encodeMMRProof(p.MMR)
	case LayerBulkAppendTree:
		return encodeBulkAppendProof(p.BulkAppend)
	case LayerDenseTree:
		return encodeDenseProof(p.Dense)
	case LayerCommitmentTree:
		return encodeCommitmentProof(p.Commitment)
	default:
		return nil
	}
}

// DecodeEnvelope reverses EncodeEnvelope, rejecting buffers past
// MaxLayerBytes.
func DecodeEnvelope(buf []byte) (Envelope, error) {
	if len(buf) > MaxLayerBytes {
		return Envelope{}, groveerr.ErrInvalidPayload
	}
	var env Envelope
	var kind LayerKind
	var body []byte
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return Envelope{}, groveerr.ErrCorruptedData
		}
		buf = buf[n:]
		switch num {
		case fieldParentLayer:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return Envelope{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			layer, err := DecodeLayer(b)
			if err != nil {
				return Envelope{}, err
			}
			env.ParentLayer = layer
		case fieldParentKey:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return Envelope{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			env.ParentKey = append([]byte(nil), b...)
		case fieldLeafKind:
			v, vn := protowire.ConsumeVarint(buf)
			if vn < 0 {
				return Envelope{}, groveerr.ErrCorruptedData
			}
			buf = buf[vn:]
			kind = LayerKind(v)
		case fieldLeafBody:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return Envelope{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			body = b
		default:
			cn := protowire.ConsumeFieldValue(num, typ, buf)
			if cn < 0 {
				return Envelope{}, groveerr.ErrCorruptedData
			}
			buf = buf[cn:]
		}
	}
	leaf, err := decodeLeafBody(kind, body)
	if err != nil {
		return Envelope{}, err
	}
	env.Leaf = leaf
	return env, nil
}

func decodeLeafBody(kind LayerKind, body []byte) (NonMerkProof, error) {
	switch kind {
	case LayerMMR:
		p, err := decodeMMRProof(body)
		return NonMerkProof{Kind: kind, MMR: p}, err
	case LayerBulkAppendTree:
		p, err := decodeBulkAppendProof(body)
		return NonMerkProof{Kind: kind, BulkAppend: p}, err
	case LayerDenseTree:
		p, err := decodeDenseProof(body)
		return NonMerkProof{Kind: kind, Dense: p}, err
	case LayerCommitmentTree:
		p, err := decodeCommitmentProof(body)
		return NonMerkProof{Kind: kind, Commitment: p}, err
	default:
		return NonMerkProof{}, groveerr.ErrInvalidProof
	}
}

// Field numbers shared by the leaf-body sub-messages below. Each body
// is framed independently (not via a single shared schema) since the
// four shapes share almost no structure.
const (
	fMMRLeafIndex  = protowire.Number(1)
	fMMRLeafValue  = protowire.Number(2)
	fMMRPathStep   = protowire.Number(3)
	fMMRPeakIndex  = protowire.Number(4)
	fMMROtherPeak  = protowire.Number(5)
	fMMRSize       = protowire.Number(6)
	fStepSibling   = protowire.Number(1)
	fStepIsRight   = protowire.Number(2)
)

func encodeMMRProof(p mmr.Proof) []byte {
	var buf []byte
	buf = append(protowire.AppendTag(buf, fMMRLeafIndex, protowire.VarintType), protowire.AppendVarint(nil, p.LeafIndex)...)
	buf = protowire.AppendBytes(protowire.AppendTag(buf, fMMRLeafValue, protowire.BytesType), p.LeafValue)
	for _, step := range p.Path {
		var stepBuf []byte
		stepBuf = appendDigest(stepBuf, fStepSibling, step.Sibling)
		isRight := uint64(0)
		if step.SiblingIsRight {
			isRight = 1
		}
		stepBuf = append(protowire.AppendTag(stepBuf, fStepIsRight, protowire.VarintType), protowire.AppendVarint(nil, isRight)...)
		buf = protowire.AppendBytes(protowire.AppendTag(buf, fMMRPathStep, protowire.BytesType), stepBuf)
	}
	buf = append(protowire.AppendTag(buf, fMMRPeakIndex, protowire.VarintType), protowire.AppendVarint(nil, uint64(p.PeakIndex))...)
	for _, peak := range p.OtherPeaks {
		buf = appendDigest(buf, fMMROtherPeak, peak)
	}
	buf = append(protowire.AppendTag(buf, fMMRSize, protowire.VarintType), protowire.AppendVarint(nil, p.Size)...)
	return buf
}

func decodeMMRProof(buf []byte) (mmr.Proof, error) {
	var p mmr.Proof
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return mmr.Proof{}, groveerr.ErrCorruptedData
		}
		buf = buf[n:]
		switch num {
		case fMMRLeafIndex:
			v, vn := protowire.ConsumeVarint(buf)
			if vn < 0 {
				return mmr.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[vn:]
			p.LeafIndex = v
		case fMMRLeafValue:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return mmr.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			p.LeafValue = append([]byte(nil), b...)
		case fMMRPathStep:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return mmr.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			step, err := decodePathStep(b)
			if err != nil {
				return mmr.Proof{}, err
			}
			p.Path = append(p.Path, step)
		case fMMRPeakIndex:
			v, vn := protowire.ConsumeVarint(buf)
			if vn < 0 {
				return mmr.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[vn:]
			p.PeakIndex = int(v)
		case fMMROtherPeak:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return mmr.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			d, err := decodeDigest(b)
			if err != nil {
				return mmr.Proof{}, err
			}
			p.OtherPeaks = append(p.OtherPeaks, d)
		case fMMRSize:
			v, vn := protowire.ConsumeVarint(buf)
			if vn < 0 {
				return mmr.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[vn:]
			p.Size = v
		default:
			cn := protowire.ConsumeFieldValue(num, typ, buf)
			if cn < 0 {
				return mmr.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[cn:]
		}
	}
	return p, nil
}

func decodePathStep(buf []byte) (mmr.PathStep, error) {
	var s mmr.PathStep
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return mmr.PathStep{}, groveerr.ErrCorruptedData
		}
		buf = buf[n:]
		switch num {
		case fStepSibling:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return mmr.PathStep{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			d, err := decodeDigest(b)
			if err != nil {
				return mmr.PathStep{}, err
			}
			s.Sibling = d
		case fStepIsRight:
			v, vn := protowire.ConsumeVarint(buf)
			if vn < 0 {
				return mmr.PathStep{}, groveerr.ErrCorruptedData
			}
			buf = buf[vn:]
			s.SiblingIsRight = v != 0
		default:
			cn := protowire.ConsumeFieldValue(num, typ, buf)
			if cn < 0 {
				return mmr.PathStep{}, groveerr.ErrCorruptedData
			}
			buf = buf[cn:]
		}
	}
	return s, nil
}

const (
	fBulkInBuffer   = protowire.Number(1)
	fBulkDenseProof = protowire.Number(2)
	fBulkMMRRoot    = protowire.Number(3)
	fBulkChunkProof = protowire.Number(4)
	fBulkMMRProof   = protowire.Number(5)
	fBulkBufferRoot = protowire.Number(6)

	fDPPos        = protowire.Number(1)
	fDPValue      = protowire.Number(2)
	fDPChildLeft  = protowire.Number(3)
	fDPChildRight = protowire.Number(4)
	fDPStep       = protowire.Number(5)
	fDPStepOwn    = protowire.Number(1)
	fDPStepSib    = protowire.Number(2)
	fDPStepRight  = protowire.Number(3)
)

func encodeDenseProof(p dense.Proof) []byte {
	var buf []byte
	buf = append(protowire.AppendTag(buf, fDPPos, protowire.VarintType), protowire.AppendVarint(nil, uint64(p.Pos))...)
	buf = protowire.AppendBytes(protowire.AppendTag(buf, fDPValue, protowire.BytesType), p.Value)
	buf = appendDigest(buf, fDPChildLeft, p.ChildLeft)
	buf = appendDigest(buf, fDPChildRight, p.ChildRight)
	for _, step := range p.Steps {
		var sb []byte
		sb = protowire.AppendBytes(protowire.AppendTag(sb, fDPStepOwn, protowire.BytesType), step.OwnValue)
		sb = appendDigest(sb, fDPStepSib, step.SiblingHash)
		isRight := uint64(0)
		if step.SiblingIsRight {
			isRight = 1
		}
		sb = append(protowire.AppendTag(sb, fDPStepRight, protowire.VarintType), protowire.AppendVarint(nil, isRight)...)
		buf = protowire.AppendBytes(protowire.AppendTag(buf, fDPStep, protowire.BytesType), sb)
	}
	return buf
}

func decodeDenseProof(buf []byte) (dense.Proof, error) {
	var p dense.Proof
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return dense.Proof{}, groveerr.ErrCorruptedData
		}
		buf = buf[n:]
		switch num {
		case fDPPos:
			v, vn := protowire.ConsumeVarint(buf)
			if vn < 0 {
				return dense.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[vn:]
			p.Pos = uint32(v)
		case fDPValue:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return dense.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			p.Value = append([]byte(nil), b...)
		case fDPChildLeft:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return dense.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			d, err := decodeDigest(b)
			if err != nil {
				return dense.Proof{}, err
			}
			p.ChildLeft = d
		case fDPChildRight:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return dense.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			d, err := decodeDigest(b)
			if err != nil {
				return dense.Proof{}, err
			}
			p.ChildRight = d
		case fDPStep:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return dense.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			step, err := decodeDenseStep(b)
			if err != nil {
				return dense.Proof{}, err
			}
			p.Steps = append(p.Steps, step)
		default:
			cn := protowire.ConsumeFieldValue(num, typ, buf)
			if cn < 0 {
				return dense.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[cn:]
		}
	}
	return p, nil
}

func decodeDenseStep(buf []byte) (dense.ProofStep, error) {
	var s dense.ProofStep
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return dense.ProofStep{}, groveerr.ErrCorruptedData
		}
		buf = buf[n:]
		switch num {
		case fDPStepOwn:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return dense.ProofStep{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			s.OwnValue = append([]byte(nil), b...)
		case fDPStepSib:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return dense.ProofStep{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			d, err := decodeDigest(b)
			if err != nil {
				return dense.ProofStep{}, err
			}
			s.SiblingHash = d
		case fDPStepRight:
			v, vn := protowire.ConsumeVarint(buf)
			if vn < 0 {
				return dense.ProofStep{}, groveerr.ErrCorruptedData
			}
			buf = buf[vn:]
			s.SiblingIsRight = v != 0
		default:
			cn := protowire.ConsumeFieldValue(num, typ, buf)
			if cn < 0 {
				return dense.ProofStep{}, groveerr.ErrCorruptedData
			}
			buf = buf[cn:]
		}
	}
	return s, nil
}

func encodeBulkAppendProof(p bulkappend.Proof) []byte {
	var buf []byte
	inBuffer := uint64(0)
	if p.InBuffer {
		inBuffer = 1
	}
	buf = append(protowire.AppendTag(buf, fBulkInBuffer, protowire.VarintType), protowire.AppendVarint(nil, inBuffer)...)
	buf = protowire.AppendBytes(protowire.AppendTag(buf, fBulkDenseProof, protowire.BytesType), encodeDenseProof(p.DenseProof))
	buf = appendDigest(buf, fBulkMMRRoot, p.MMRRoot)
	buf = protowire.AppendBytes(protowire.AppendTag(buf, fBulkChunkProof, protowire.BytesType), encodeDenseProof(p.ChunkProof))
	buf = protowire.AppendBytes(protowire.AppendTag(buf, fBulkMMRProof, protowire.BytesType), encodeMMRProof(p.MMRProof))
	buf = appendDigest(buf, fBulkBufferRoot, p.BufferRoot)
	return buf
}

func decodeBulkAppendProof(buf []byte) (bulkappend.Proof, error) {
	var p bulkappend.Proof
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return bulkappend.Proof{}, groveerr.ErrCorruptedData
		}
		buf = buf[n:]
		switch num {
		case fBulkInBuffer:
			v, vn := protowire.ConsumeVarint(buf)
			if vn < 0 {
				return bulkappend.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[vn:]
			p.InBuffer = v != 0
		case fBulkDenseProof:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return bulkappend.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			dp, err := decodeDenseProof(b)
			if err != nil {
				return bulkappend.Proof{}, err
			}
			p.DenseProof = dp
		case fBulkMMRRoot:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return bulkappend.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			d, err := decodeDigest(b)
			if err != nil {
				return bulkappend.Proof{}, err
			}
			p.MMRRoot = d
		case fBulkChunkProof:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return bulkappend.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			cp, err := decodeDenseProof(b)
			if err != nil {
				return bulkappend.Proof{}, err
			}
			p.ChunkProof = cp
		case fBulkMMRProof:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return bulkappend.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			mp, err := decodeMMRProof(b)
			if err != nil {
				return bulkappend.Proof{}, err
			}
			p.MMRProof = mp
		case fBulkBufferRoot:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return bulkappend.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			d, err := decodeDigest(b)
			if err != nil {
				return bulkappend.Proof{}, err
			}
			p.BufferRoot = d
		default:
			cn := protowire.ConsumeFieldValue(num, typ, buf)
			if cn < 0 {
				return bulkappend.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[cn:]
		}
	}
	return p, nil
}

const (
	fCommitSinsemilla = protowire.Number(1)
	fCommitBulkProof  = protowire.Number(2)
)

func encodeCommitmentProof(p commitment.Proof) []byte {
	var buf []byte
	buf = appendDigest(buf, fCommitSinsemilla, p.SinsemillaRoot)
	buf = protowire.AppendBytes(protowire.AppendTag(buf, fCommitBulkProof, protowire.BytesType), encodeBulkAppendProof(p.BulkProof))
	return buf
}

func decodeCommitmentProof(buf []byte) (commitment.Proof, error) {
	var p commitment.Proof
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return commitment.Proof{}, groveerr.ErrCorruptedData
		}
		buf = buf[n:]
		switch num {
		case fCommitSinsemilla:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return commitment.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			d, err := decodeDigest(b)
			if err != nil {
				return commitment.Proof{}, err
			}
			p.SinsemillaRoot = d
		case fCommitBulkProof:
			b, bn := protowire.ConsumeBytes(buf)
			if bn < 0 {
				return commitment.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[bn:]
			bp, err := decodeBulkAppendProof(b)
			if err != nil {
				return commitment.Proof{}, err
			}
			p.BulkProof = bp
		default:
			cn := protowire.ConsumeFieldValue(num, typ, buf)
			if cn < 0 {
				return commitment.Proof{}, groveerr.ErrCorruptedData
			}
			buf = buf[cn:]
		}
	}
	return p, nil
}
