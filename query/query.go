// Package query implements PathQuery/Query evaluation (spec §4.11): range
// matching over one Merk's ordered key space, conditional/default subquery
// branching into Tree-like children, and a limit/offset pair that applies
// across the whole traversal rather than per subtree. There is no direct
// Trillian analogue (Trillian addresses leaves by index/revision, not by
// key range); the item-kind type switch over an ordered iterator follows
// the general range-scan shape common to ordered key-value engines.
package query

import (
	"bytes"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/element"
	"github.com/dashpay/grovedb-go/merk"
	"github.com/dashpay/grovedb-go/storage"
)

// ItemKind is one of the ten range shapes of spec §4.11.
type ItemKind uint8

const (
	ItemKey ItemKind = iota
	ItemRange
	ItemRangeInclusive
	ItemRangeFull
	ItemRangeFrom
	ItemRangeTo
	ItemRangeToInclusive
	ItemRangeAfter
	ItemRangeAfterTo
	ItemRangeAfterToInclusive
)

// Item is one query predicate over a Merk's key space. Only the fields
// relevant to Kind are meaningful.
type Item struct {
	Kind  ItemKind
	Key   []byte // ItemKey
	Start []byte
	End   []byte
}

// Matches reports whether key satisfies the item's predicate.
func (it Item) Matches(key []byte) bool {
	switch it.Kind {
	case ItemKey:
		return bytes.Equal(key, it.Key)
	case ItemRange:
		return bytes.Compare(key, it.Start) >= 0 && bytes.Compare(key, it.End) < 0
	case ItemRangeInclusive:
		return bytes.Compare(key, it.Start) >= 0 && bytes.Compare(key, it.End) <= 0
	case ItemRangeFull:
		return true
	case ItemRangeFrom:
		return bytes.Compare(key, it.Start) >= 0
	case ItemRangeTo:
		return bytes.Compare(key, it.End) < 0
	case ItemRangeToInclusive:
		return bytes.Compare(key, it.End) <= 0
	case ItemRangeAfter:
		return bytes.Compare(key, it.Start) > 0
	case ItemRangeAfterTo:
		return bytes.Compare(key, it.Start) > 0 && bytes.Compare(key, it.End) < 0
	case ItemRangeAfterToInclusive:
		return bytes.Compare(key, it.Start) > 0 && bytes.Compare(key, it.End) <= 0
	default:
		return false
	}
}

// lowerBound seeds the forward iterator; nil means "from the beginning",
// since an exclusive-after bound still has to scan the key itself to skip
// past it.
func (it Item) lowerBound() []byte {
	switch it.Kind {
	case ItemKey:
		return it.Key
	case ItemRange, ItemRangeInclusive, ItemRangeFrom:
		return it.Start
	case ItemRangeAfter, ItemRangeAfterTo, ItemRangeAfterToInclusive:
		return it.Start
	default:
		return nil
	}
}

// pastUpperBound reports whether key is beyond the item's range, letting
// the scan stop early instead of walking the whole subtree.
func (it Item) pastUpperBound(key []byte) bool {
	switch it.Kind {
	case ItemKey:
		return bytes.Compare(key, it.Key) > 0
	case ItemRange, ItemRangeAfterTo:
		return bytes.Compare(key, it.End) >= 0
	case ItemRangeInclusive, ItemRangeAfterToInclusive:
		return bytes.Compare(key, it.End) > 0
	case ItemRangeTo:
		return bytes.Compare(key, it.End) >= 0
	case ItemRangeToInclusive:
		return bytes.Compare(key, it.End) > 0
	default:
		return false
	}
}

// Query is one level of the evaluation plan: a set of items, left-to-right
// ordering, and how to descend into any matched Tree-like element.
type Query struct {
	Items                       []Item
	DefaultSubqueryBranch       *Query
	ConditionalSubqueryBranches map[string]*Query
	LeftToRight                 bool
	AddParentTreeOnSubquery     bool
}

// SubqueryFor reports the subquery that applies when a Tree-like element is
// found at key, if any: a conditional branch keyed on the exact key, falling
// back to the default branch. Exported so proof generation can replicate
// Evaluate's descent plan without duplicating this branching logic.
func (q Query) SubqueryFor(key []byte) (*Query, bool) {
	if q.ConditionalSubqueryBranches != nil {
		if sub, ok := q.ConditionalSubqueryBranches[string(key)]; ok {
			return sub, true
		}
	}
	if q.DefaultSubqueryBranch != nil {
		return q.DefaultSubqueryBranch, true
	}
	return nil, false
}

// SizedQuery pairs a Query with the limit/offset that apply across the
// entire traversal (spec §4.11).
type SizedQuery struct {
	Query     Query
	Limit     *uint64
	Offset    *uint64
}

// PathQuery addresses a Query at a starting path.
type PathQuery struct {
	Path       [][]byte
	SizedQuery SizedQuery
}

// ResultItem is one yielded entry: its full path, key, and raw element
// bytes.
type ResultItem struct {
	Path  [][]byte
	Key   []byte
	Value []byte
}

// Cursor tracks the whole-traversal offset/limit state (spec §4.11:
// "both apply across the entire traversal, not per subtree"). Exported so
// proof generation can replay Evaluate's exact admission gate.
type Cursor struct {
	offset    uint64
	hasOffset bool
	limit     uint64
	hasLimit  bool
	stopped   bool
}

// NewCursor builds a Cursor seeded from sq's offset/limit.
func NewCursor(sq SizedQuery) *Cursor {
	c := &Cursor{}
	if sq.Offset != nil {
		c.hasOffset, c.offset = true, *sq.Offset
	}
	if sq.Limit != nil {
		c.hasLimit, c.limit = true, *sq.Limit
	}
	return c
}

// Admit applies the offset/limit gate to one candidate entry: it returns
// false either because the entry is still within the skipped offset, or
// because the limit has already been exhausted (in which case it also
// marks the cursor stopped so the caller can end the whole traversal).
func (c *Cursor) Admit() bool {
	if c.stopped {
		return false
	}
	if c.hasOffset && c.offset > 0 {
		c.offset--
		return false
	}
	if c.hasLimit && c.limit == 0 {
		c.stopped = true
		return false
	}
	if c.hasLimit {
		c.limit--
	}
	return true
}

// Stopped reports whether Admit has refused an entry because the limit was
// exhausted (it stays false until that next Admit call), letting a
// caller driving its own loop (e.g. proof generation) end a traversal early
// the same way Evaluate does.
func (c *Cursor) Stopped() bool {
	return c.stopped
}

// Evaluate runs pq against the grove rooted in ctx and returns the
// matched entries in traversal order.
func Evaluate(ctx storage.Context, pq PathQuery) ([]ResultItem, cost.Cost, error) {
	cur := NewCursor(pq.SizedQuery)
	var results []ResultItem
	var total cost.Cost
	c, err := evalSubtree(ctx, pq.Path, pq.SizedQuery.Query, cur, &results)
	total = total.Add(c)
	return results, total, err
}

func evalSubtree(ctx storage.Context, path [][]byte, q Query, cur *Cursor, results *[]ResultItem) (cost.Cost, error) {
	var total cost.Cost
	prefix := storage.DerivePrefix(path)
	for _, item := range q.Items {
		if cur.stopped {
			break
		}
		c, err := evalItem(ctx, prefix, path, item, q, cur, results)
		total = total.Add(c)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// KV is a raw (key, value) pair read off a Merk's key space, before element
// decoding. Exported as MatchItem's result type so proof generation can
// reuse the exact same range scan Evaluate uses.
type KV struct {
	Key   []byte
	Value []byte
}

// MatchItem scans prefix for every entry matching item and returns them in
// item order, reversed if leftToRight is false. It is the single range-scan
// implementation shared by Evaluate and proof generation, so the two can
// never disagree about which keys an item selects.
func MatchItem(ctx storage.Context, prefix storage.Prefix, item Item, leftToRight bool) ([]KV, cost.Cost, error) {
	var total cost.Cost
	iter := ctx.NewIterator(prefix, storage.Default, item.lowerBound(), nil)
	defer iter.Close()

	var matched []KV
	for iter.Valid() {
		total.SeekCount++
		key := iter.Key()
		if item.pastUpperBound(key) {
			break
		}
		if item.Matches(key) {
			matched = append(matched, KV{
				Key:   append([]byte(nil), key...),
				Value: append([]byte(nil), iter.Value()...),
			})
		}
		iter.Next()
	}
	if !leftToRight {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}
	return matched, total, nil
}

func evalItem(ctx storage.Context, prefix storage.Prefix, path [][]byte, item Item, q Query, cur *Cursor, results *[]ResultItem) (cost.Cost, error) {
	matched, total, err := MatchItem(ctx, prefix, item, q.LeftToRight)
	if err != nil {
		return total, err
	}

	for _, m := range matched {
		if cur.stopped {
			break
		}

		node, err := merk.Deserialize(m.Key, m.Value)
		if err != nil {
			return total, err
		}
		elem, err := element.Deserialize(node.Value)
		if err != nil {
			return total, err
		}

		sub, hasSub := q.SubqueryFor(m.Key)
		if elem.IsTreeLike() && hasSub {
			if q.AddParentTreeOnSubquery && cur.Admit() {
				*results = append(*results, ResultItem{Path: clonePath(path), Key: m.Key, Value: node.Value})
			}
			childPath := append(clonePath(path), m.Key)
			c, err := evalSubtree(ctx, childPath, *sub, cur, results)
			total = total.Add(c)
			if err != nil {
				return total, err
			}
			continue
		}

		if cur.Admit() {
			*results = append(*results, ResultItem{Path: clonePath(path), Key: m.Key, Value: node.Value})
		}
	}
	return total, nil
}

func clonePath(path [][]byte) [][]byte {
	out := make([][]byte, len(path))
	copy(out, path)
	return out
}
