// Package cost implements the resource meter threaded through every
// GroveDB operation (spec §4.1). Cost composition is associative and
// commutative on the counters; Map/FlatMap centralize the
// accumulate-then-early-return-on-error pattern so call sites never forget
// to report partial work.
package cost

import "fmt"

// StorageCost tracks a storage delta in bytes, split by effect.
type StorageCost struct {
	Added    uint64
	Replaced uint64
	Removed  uint64
}

// Add combines two storage deltas.
func (s StorageCost) Add(o StorageCost) StorageCost {
	return StorageCost{
		Added:    s.Added + o.Added,
		Replaced: s.Replaced + o.Replaced,
		Removed:  s.Removed + o.Removed,
	}
}

// Cost is the five-counter struct reported by every engine operation
// (spec §4.1, §6).
type Cost struct {
	SeekCount          uint64
	Storage            StorageCost
	StorageLoadedBytes uint64
	Blake3Calls        uint64
	SinsemillaCalls    uint64
}

// Add returns the associative, commutative combination of c and o.
func (c Cost) Add(o Cost) Cost {
	return Cost{
		SeekCount:          c.SeekCount + o.SeekCount,
		Storage:            c.Storage.Add(o.Storage),
		StorageLoadedBytes: c.StorageLoadedBytes + o.StorageLoadedBytes,
		Blake3Calls:        c.Blake3Calls + o.Blake3Calls,
		SinsemillaCalls:    c.SinsemillaCalls + o.SinsemillaCalls,
	}
}

func (c Cost) String() string {
	return fmt.Sprintf(
		"seeks=%d storage(+%d ~%d -%d) loaded=%d blake3=%d sinsemilla=%d",
		c.SeekCount, c.Storage.Added, c.Storage.Replaced, c.Storage.Removed,
		c.StorageLoadedBytes, c.Blake3Calls, c.SinsemillaCalls,
	)
}

// StorageDelta implements the old-size/new-size rule of spec §4.1: if
// n == o, replaced += n; if n > o, replaced += o and added += n-o; if
// n < o, replaced += n and removed += o-n.
func StorageDelta(oldSize, newSize uint64) StorageCost {
	switch {
	case newSize == oldSize:
		return StorageCost{Replaced: newSize}
	case newSize > oldSize:
		return StorageCost{Replaced: oldSize, Added: newSize - oldSize}
	default:
		return StorageCost{Replaced: newSize, Removed: oldSize - newSize}
	}
}

// Result pairs a value with the cost of producing it, mirroring every
// engine operation's (value, cost) return shape.
type Result[T any] struct {
	Value T
	Cost  Cost
}

// Ok builds a zero-cost, error-free Result.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// WithCost attaches a cost to an existing value.
func WithCost[T any](v T, c Cost) Result[T] { return Result[T]{Value: v, Cost: c} }

// Map transforms the value of a (value, cost, error) triple while
// threading cost and error through unchanged.
func Map[A, B any](v A, c Cost, err error, f func(A) B) (B, Cost, error) {
	if err != nil {
		var zero B
		return zero, c, err
	}
	return f(v), c, nil
}

// FlatMap sequences two cost-bearing operations, accumulating their costs
// and short-circuiting on the first error while still returning the cost
// paid so far (spec §4.1, §7).
func FlatMap[A, B any](v A, c Cost, err error, f func(A) (B, Cost, error)) (B, Cost, error) {
	if err != nil {
		var zero B
		return zero, c, err
	}
	b, c2, err := f(v)
	return b, c.Add(c2), err
}

// Tracker accumulates cost across a sequence of operations performed by a
// single call site (e.g. a batch apply walking many subtrees), so callers
// don't have to thread a running total by hand.
type Tracker struct {
	total Cost
}

// Add folds c into the tracker's running total and returns it for
// convenience (e.g. `return v, t.Add(c), err`).
func (t *Tracker) Add(c Cost) Cost {
	t.total = t.total.Add(c)
	return t.total
}

// Total returns the running total accumulated so far.
func (t *Tracker) Total() Cost { return t.total }
