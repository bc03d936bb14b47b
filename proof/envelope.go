// V1 mixed-layered proofs (spec §4.10): a Merk layer over the parent
// subtree disclosing the tagged element that anchors a non-Merk child,
// plus one of the four non-Merk inclusion proof bodies for an entry
// inside that child. Produced instead of a plain Layer whenever a
// traversal plan descends out of a Merk subtree into MmrTree,
// BulkAppendTree, DenseAppendOnlyFixedSizeTree, or CommitmentTree.
package proof

import (
	"github.com/dashpay/grovedb-go/config"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/nonmerk/bulkappend"
	"github.com/dashpay/grovedb-go/nonmerk/commitment"
	"github.com/dashpay/grovedb-go/nonmerk/dense"
	"github.com/dashpay/grovedb-go/nonmerk/mmr"
)

// LayerKind tags which of the five proof-body shapes a layer carries
// (spec §4.10 "Merk | MMR | BulkAppendTree | DenseTree | CommitmentTree").
type LayerKind uint8

const (
	LayerMerk LayerKind = iota
	LayerMMR
	LayerBulkAppendTree
	LayerDenseTree
	LayerCommitmentTree
)

// NonMerkProof is the tagged union of one non-Merk tree's inclusion
// proof. Only the field matching Kind is meaningful.
type NonMerkProof struct {
	Kind       LayerKind
	MMR        mmr.Proof
	BulkAppend bulkappend.Proof
	Dense      dense.Proof
	Commitment commitment.Proof
}

// rootAndValue replays p without comparing to anything, returning the
// child hash it implies and the disclosed leaf payload, so Envelope
// verification can cross-check it against the parent Merk layer's
// declared value hash.
func (p NonMerkProof) rootAndValue() (hash.Digest, []byte, error) {
	switch p.Kind {
	case LayerMMR:
		root, err := mmr.RootFromProof(p.MMR, p.MMR.LeafValue)
		return root, p.MMR.LeafValue, err
	case LayerBulkAppendTree:
		return bulkappend.StateRootFromProof(p.BulkAppend)
	case LayerDenseTree:
		return dense.Root(p.Dense), p.Dense.Value, nil
	case LayerCommitmentTree:
		stateRoot, payload, err := bulkappend.StateRootFromProof(p.Commitment.BulkProof)
		if err != nil {
			return hash.Zero, nil, err
		}
		return hash.CombineHash(stateRoot, p.Commitment.SinsemillaRoot), payload, nil
	default:
		return hash.Zero, nil, groveerr.ErrInvalidProof
	}
}

// Envelope is a V1 proof: the Merk layer for the parent subtree holding
// the element at ParentKey, plus the non-Merk proof for one entry of the
// child tree that element anchors (spec §4.10 "one per Merk subtree
// traversed plus one per non-Merk subtree queried", scoped here to the
// single parent/child hop a query plan descends in one step).
type Envelope struct {
	ParentLayer Layer
	ParentKey   []byte
	Leaf        NonMerkProof
}

// disclosedValueHash scans layer's ops for the Push disclosing key and
// returns the value hash the prover declared for it. Layer must already
// have been Executed/Verified successfully by the caller, so the
// returned hash is one the verifier has independently confirmed combines
// up to the trusted root; this only recovers which value hash that was.
func disclosedValueHash(layer Layer, key []byte) (hash.Digest, bool) {
	for _, op := range layer.Ops {
		if op.Code != OpPush && op.Code != OpPushInverted {
			continue
		}
		n := op.Node
		switch n.Variant {
		case VariantKV:
			if bytesEqual(n.Key, key) {
				return hash.ValueHash(n.Value), true
			}
		case VariantKVValueHash, VariantKVValueHashFeatureType, VariantKVRefValueHash:
			if bytesEqual(n.Key, key) {
				return n.ValueHash, true
			}
		}
	}
	return hash.Digest{}, false
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// VerifyEnvelope replays a V1 proof against trustedRoot: the parent
// layer must itself verify, the element it discloses at ParentKey must
// carry exactly the value hash the leaf proof's independently-replayed
// child hash implies, and returns both the disclosed element bytes and
// the leaf payload on success (spec §4.10 "threads the child hash from
// the lower layer into the parent's combine_hash").
func VerifyEnvelope(env Envelope, trustedRoot hash.Digest, cfg config.Config) ([]byte, []byte, error) {
	kvs, err := Verify(env.ParentLayer, trustedRoot)
	if err != nil {
		return nil, nil, err
	}

	var elementValue []byte
	found := false
	for _, kv := range kvs {
		if bytesEqual(kv.Key, env.ParentKey) {
			elementValue = kv.Value
			found = true
			break
		}
	}
	if !found {
		return nil, nil, groveerr.ErrInvalidProof
	}

	declaredHash, ok := disclosedValueHash(env.ParentLayer, env.ParentKey)
	if !ok {
		return nil, nil, groveerr.ErrInvalidProof
	}

	leafRoot, leafValue, err := env.Leaf.rootAndValue()
	if err != nil {
		return nil, nil, err
	}
	if err := checkMMRCaps(env.Leaf, cfg); err != nil {
		return nil, nil, err
	}
	// Tree-like/non-Merk elements store combine_hash(element_bytes, child
	// root) as their value hash, not the child root alone (spec §4.3).
	if hash.CombinedValueHash(elementValue, leafRoot) != declaredHash {
		return nil, nil, groveerr.ErrInvalidProof
	}

	return elementValue, leafValue, nil
}

// checkMMRCaps bounds an MMR leaf proof's disclosed index and path
// length against cfg's caps before it's replayed (spec §4.10 "Bound
// deserialization at 100 MB and queries at 10,000,000 indices").
func checkMMRCaps(p NonMerkProof, cfg config.Config) error {
	if p.Kind != LayerMMR {
		return nil
	}
	if p.MMR.LeafIndex > cfg.MMRProofIndexCap {
		return groveerr.ErrInvalidPayload
	}
	if uint64(len(p.MMR.Path))*hash.Size > cfg.MMRProofByteCap {
		return groveerr.ErrInvalidPayload
	}
	return nil
}
