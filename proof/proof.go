// Package proof implements the V0 Merk-only proof stack machine (spec
// §4.10): a flat op list that rebuilds exactly the subtree the prover
// touched, discloses only the keys the caller queried, and hashes to a
// root the verifier checks against a trusted value. The op/variant shape
// generalizes Trillian's Merkle audit-path replay (the verifier walks a
// linear list of sibling digests up to a trusted root) to GroveDB's binary
// AVL layout, where a node's own kv_hash must also be reconstructed before
// it can be combined with its children.
package proof

import (
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
	"github.com/dashpay/grovedb-go/merk"
)

// NodeVariant selects how much of a node the prover discloses (spec
// §4.10). Hash and KVDigest carry an already-complete subtree digest;
// the rest carry enough to recompute the node's own kv_hash, leaving its
// children to be attached by later ops.
type NodeVariant uint8

const (
	// VariantHash is a sibling subtree outside the query: only its
	// finished node_hash is disclosed.
	VariantHash NodeVariant = iota
	// VariantKVHash is an on-path ancestor whose own key/value isn't
	// queried: only its kv_hash is disclosed.
	VariantKVHash
	// VariantKV fully discloses a queried item's key and value.
	VariantKV
	// VariantKVValueHash discloses key + value with an explicit value
	// hash override, for combined-hash (Tree-like/non-Merk) elements
	// whose value_hash isn't simply hash.ValueHash(Value).
	VariantKVValueHash
	// VariantKVValueHashFeatureType is VariantKVValueHash plus the
	// node's own feature, needed when an ancestor requires
	// node_hash_with_count to verify a provable-count aggregate.
	VariantKVValueHashFeatureType
	// VariantKVRefValueHash is VariantKVValueHash for a Reference
	// element binding, kept distinct so callers can tell references
	// from combined-hash subtrees apart in the disclosed proof.
	VariantKVRefValueHash
	// VariantKVDigest discloses only a node_hash, used as the sibling
	// boundary in an absence (non-membership) proof.
	VariantKVDigest
)

// ProofNode is the payload of a Push/PushInverted op.
type ProofNode struct {
	Variant NodeVariant

	// SubtreeHash is the complete node_hash for VariantHash/VariantKVDigest.
	SubtreeHash hash.Digest
	// SubtreeAggregate companions SubtreeHash so a provable-count
	// ancestor elsewhere in the proof can still recombine counts across
	// an undisclosed sibling subtree.
	SubtreeAggregate merk.Aggregate

	// KVHash is the precomputed kv_hash for VariantKVHash.
	KVHash hash.Digest

	Key       []byte
	Value     []byte      // disclosed for VariantKV and the ValueHash-carrying variants
	ValueHash hash.Digest // explicit override for the ValueHash-carrying variants
	Feature   merk.Feature
}

// OpCode is a stack-machine instruction (spec §4.10).
type OpCode uint8

const (
	OpPush OpCode = iota
	OpPushInverted
	OpParent
	OpChild
	OpParentInverted
	OpChildInverted
)

// Op is one instruction: a Push carries a ProofNode, the combinators
// don't.
type Op struct {
	Code OpCode
	Node ProofNode
}

// Layer is one Merk subtree's proof: a flat program that the verifier
// replays to recover a single root digest plus any disclosed (key, value)
// pairs.
type Layer struct {
	Ops []Op
}

// KV is a disclosed key/value pair recovered during verification.
type KV struct {
	Key   []byte
	Value []byte
}

// item is a stack-machine value under construction: either an already-
// final subtree digest, or a node whose kv_hash is known but whose
// children are still being attached by later ops.
type item struct {
	final        bool
	finalHash    hash.Digest
	finalAgg     merk.Aggregate
	kvHash       hash.Digest
	feature      merk.Feature
	left, right  *childDigest
	disclosedKey []byte
}

type childDigest struct {
	hash hash.Digest
	agg  merk.Aggregate
}

func ownKVHash(n ProofNode) (hash.Digest, error) {
	switch n.Variant {
	case VariantKVHash:
		return n.KVHash, nil
	case VariantKV:
		return hash.KVHash(n.Key, n.Value), nil
	case VariantKVValueHash, VariantKVValueHashFeatureType, VariantKVRefValueHash:
		return hash.KVDigestToKVHash(n.Key, n.ValueHash), nil
	default:
		return hash.Digest{}, groveerr.ErrInvalidProof
	}
}

func push(n ProofNode) (*item, *KV, error) {
	switch n.Variant {
	case VariantHash, VariantKVDigest:
		return &item{final: true, finalHash: n.SubtreeHash, finalAgg: n.SubtreeAggregate}, nil, nil
	case VariantKVHash, VariantKV, VariantKVValueHash, VariantKVValueHashFeatureType, VariantKVRefValueHash:
		kv, err := ownKVHash(n)
		if err != nil {
			return nil, nil, err
		}
		it := &item{kvHash: kv, feature: n.Feature}
		var disclosed *KV
		switch n.Variant {
		case VariantKV, VariantKVValueHash, VariantKVValueHashFeatureType, VariantKVRefValueHash:
			disclosed = &KV{Key: n.Key, Value: n.Value}
		}
		return it, disclosed, nil
	default:
		return nil, nil, groveerr.ErrInvalidProof
	}
}

// finalize collapses it to a (digest, aggregate) pair, combining its
// feature's own contribution with whatever children have been attached so
// far (spec §4.6's aggregate-propagation rule, replayed from disclosed
// fragments instead of a live tree).
func finalize(it *item) (hash.Digest, merk.Aggregate, error) {
	if it.final {
		return it.finalHash, it.finalAgg, nil
	}
	leftHash, leftAgg := hash.Zero, merk.Aggregate{}
	if it.left != nil {
		leftHash, leftAgg = it.left.hash, it.left.agg
	}
	rightHash, rightAgg := hash.Zero, merk.Aggregate{}
	if it.right != nil {
		rightHash, rightAgg = it.right.hash, it.right.agg
	}
	agg, err := merk.Combine(it.feature.Own(), leftAgg, rightAgg)
	if err != nil {
		return hash.Digest{}, merk.Aggregate{}, err
	}
	var h hash.Digest
	if it.feature.IsProvable() {
		h = hash.NodeHashWithCount(it.kvHash, leftHash, rightHash, agg.Count)
	} else {
		h = hash.NodeHash(it.kvHash, leftHash, rightHash)
	}
	return h, agg, nil
}

// Execute replays layer's ops and returns the resulting root digest plus
// every disclosed (key, value) pair, in op order. An op list that does not
// collapse to exactly one stack item is rejected as malformed.
func Execute(layer Layer) (hash.Digest, []KV, error) {
	var stack []*item
	var kvs []KV

	pop2 := func() (top, next *item, err error) {
		if len(stack) < 2 {
			return nil, nil, groveerr.ErrInvalidProof
		}
		top, next = stack[len(stack)-1], stack[len(stack)-2]
		stack = stack[:len(stack)-2]
		return top, next, nil
	}

	attach := func(parent, child *item, side bool) error {
		h, agg, err := finalize(child)
		if err != nil {
			return err
		}
		cd := &childDigest{hash: h, agg: agg}
		if side {
			parent.left = cd
		} else {
			parent.right = cd
		}
		return nil
	}

	for _, op := range layer.Ops {
		switch op.Code {
		case OpPush, OpPushInverted:
			it, disclosed, err := push(op.Node)
			if err != nil {
				return hash.Digest{}, nil, err
			}
			if disclosed != nil {
				kvs = append(kvs, *disclosed)
			}
			stack = append(stack, it)
		case OpParent, OpParentInverted, OpChild, OpChildInverted:
			parent, child, err := pop2()
			if err != nil {
				return hash.Digest{}, nil, err
			}
			// Parent attaches as LEFT, Child as RIGHT; ParentInverted and
			// ChildInverted swap that (spec §4.10), so a layer generated
			// by a right-to-left descent (query.Query.LeftToRight ==
			// false) can still attach each child to its correct
			// structural side without the generator needing to track
			// push order separately from combinator choice.
			var left bool
			switch op.Code {
			case OpParent:
				left = true
			case OpChild:
				left = false
			case OpParentInverted:
				left = false
			case OpChildInverted:
				left = true
			}
			if err := attach(parent, child, left); err != nil {
				return hash.Digest{}, nil, err
			}
			stack = append(stack, parent)
		default:
			return hash.Digest{}, nil, groveerr.ErrInvalidProof
		}
	}

	if len(stack) != 1 {
		return hash.Digest{}, nil, groveerr.ErrInvalidProof
	}
	root, _, err := finalize(stack[0])
	if err != nil {
		return hash.Digest{}, nil, err
	}
	return root, kvs, nil
}

// Verify checks layer against trustedRoot and returns the disclosed
// (key, value) pairs on success.
func Verify(layer Layer, trustedRoot hash.Digest) ([]KV, error) {
	root, kvs, err := Execute(layer)
	if err != nil {
		return nil, err
	}
	if root != trustedRoot {
		return nil, groveerr.ErrInvalidProof
	}
	return kvs, nil
}
