package element

import (
	"bytes"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/groveerr"
	"github.com/dashpay/grovedb-go/hash"
)

// MaxReferenceHops is the hard recursion cap on reference chasing (spec
// §4.6 "Enforce MAX_REFERENCE_HOPS = 10").
const MaxReferenceHops = 10

// Fetcher loads the element stored at a qualified path+key, the single
// capability reference resolution needs from the grove layer (spec §4.7:
// non-Merk/grove collaborators are opaque to the element package).
type Fetcher interface {
	GetElement(path [][]byte, key []byte) (Element, bool, cost.Cost, error)
}

// qualifiedPath flattens a path+key into a comparable string for the
// reference cycle-detection visited-set (spec §4.6 "a visited-set of
// qualified paths to reject cycles").
func qualifiedPath(path [][]byte, key []byte) string {
	var buf bytes.Buffer
	for _, seg := range path {
		buf.WriteByte(0)
		buf.Write(seg)
	}
	buf.WriteByte(1)
	buf.Write(key)
	return buf.String()
}

// ResolveChain follows ref (stored at ownPath/ownKey) to its final
// non-Reference element, recursing through intermediate references while
// enforcing the hop cap and cycle detection (spec §4.6). Cost is charged
// per hop regardless of outcome, including the hop whose fetch discovers
// the cycle (spec scenario 6: "cost reflects exactly 2 hops' fetch
// work"). It returns the resolved element and its qualified path+key.
func ResolveChain(f Fetcher, ownPath [][]byte, ownKey []byte, ref ReferencePath) (Element, [][]byte, []byte, cost.Cost, error) {
	var total cost.Cost
	visited := map[string]bool{qualifiedPath(ownPath, ownKey): true}

	curPath, curKey := ownPath, ownKey
	curRef := ref

	for hop := 0; ; hop++ {
		limit := MaxReferenceHops
		if curRef.HopLimit != 0 && int(curRef.HopLimit) < limit {
			limit = int(curRef.HopLimit)
		}
		if hop >= limit {
			return Element{}, nil, nil, total, groveerr.ErrReferenceHopLimit
		}

		targetPath, targetKey, err := Resolve(curPath, curKey, curRef)
		if err != nil {
			return Element{}, nil, nil, total, err
		}

		target, found, c, err := f.GetElement(targetPath, targetKey)
		total = total.Add(c)
		if err != nil {
			return Element{}, nil, nil, total, err
		}
		if !found {
			return Element{}, nil, nil, total, groveerr.ErrPathNotFound
		}

		if target.Kind != Reference {
			return target, targetPath, targetKey, total, nil
		}

		qp := qualifiedPath(targetPath, targetKey)
		if visited[qp] {
			return Element{}, nil, nil, total, groveerr.ErrCyclicReference
		}
		visited[qp] = true
		curPath, curKey, curRef = targetPath, targetKey, target.Ref
	}
}

// ReferenceValueHash computes the effective value_hash of a Reference
// element: combine_hash(Blake3(varint(|ref_bytes|) || ref_bytes),
// value_hash(target_value)) (spec §4.6).
func ReferenceValueHash(refBytes []byte, targetValue []byte) hash.Digest {
	return hash.CombineHash(hash.ElementBytesHash(refBytes), hash.ValueHash(targetValue))
}
