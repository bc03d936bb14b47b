// Package storage defines the transactional, prefixed keyed-store contract
// required of the underlying store (spec §4.2, §6). RocksDB itself is an
// external collaborator (spec §1); this package only specifies the
// interface the engine programs against, plus prefix derivation shared by
// every concrete backend.
package storage

import (
	"encoding/binary"
	"errors"

	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/hash"
)

// ErrConflict is returned by Transaction.Commit when an optimistic
// transaction's read/write set conflicts with another committed
// transaction; the caller may retry (spec §4.2, §5, §7).
var ErrConflict = errors.New("storage: optimistic transaction conflict")

// Namespace identifies one of the four logical column families named in
// spec §3/§4.2.
type Namespace int

const (
	// Default holds serialized Merk nodes, keyed by node key within a
	// subtree prefix.
	Default Namespace = iota
	// Aux holds application metadata within a subtree prefix.
	Aux
	// Roots holds the root-key pointer for a subtree.
	Roots
	// Meta is global and unprefixed.
	Meta
)

func (n Namespace) String() string {
	switch n {
	case Default:
		return "default"
	case Aux:
		return "aux"
	case Roots:
		return "roots"
	case Meta:
		return "meta"
	default:
		return "unknown"
	}
}

// Prefix is the 32-byte subtree prefix that isolates one subtree's keys
// across the Default/Aux/Roots namespaces (spec §3, §6). The empty path
// hashes to the all-zero grove-root prefix by convention.
type Prefix = hash.Digest

// RootPrefix is the defined prefix for the empty path (spec §6).
var RootPrefix = hash.Zero

// DerivePrefix computes Blake3(for_each_segment_of_path: varint(len) ||
// segment), the subtree prefix derivation of spec §6.
func DerivePrefix(path [][]byte) Prefix {
	if len(path) == 0 {
		return RootPrefix
	}
	var buf []byte
	for _, seg := range path {
		var tmp [binary.MaxVarintLen64]byte
		ln := binary.PutUvarint(tmp[:], uint64(len(seg)))
		buf = append(buf, tmp[:ln]...)
		buf = append(buf, seg...)
	}
	return hash.ValueHash(buf) // length-prefixed concat hashed with the shared kernel
}

// Key is a namespaced, prefixed lookup key.
type Key struct {
	Prefix    Prefix
	Namespace Namespace
	Key       []byte
}

// Context is the per-transaction (or immediate-mode) handle exposed to
// upper layers: get/put/delete on the four logical namespaces, plus an
// atomic multi-namespace batch commit (spec §4.2).
type Context interface {
	// Get returns the value stored at key in ns, or (nil, false, cost, nil)
	// if absent.
	Get(prefix Prefix, ns Namespace, key []byte) ([]byte, bool, cost.Cost, error)

	// Put stores value at key in ns, returning the storage delta cost.
	Put(prefix Prefix, ns Namespace, key, value []byte) (cost.Cost, error)

	// Delete removes key from ns, returning the storage delta cost. Deleting
	// an absent key is a no-op that charges one seek and no storage delta.
	Delete(prefix Prefix, ns Namespace, key []byte) (cost.Cost, error)

	// NewIterator returns an iterator over keys in [start, end) within
	// (prefix, ns), in lexicographic key order (spec §6). A nil end means
	// "to the end of the namespace".
	NewIterator(prefix Prefix, ns Namespace, start, end []byte) Iterator

	// Commit is a no-op in both modes in the memstore and rocksdb backends;
	// a transaction's buffered writes are applied by Transaction.Commit.
	// The context must be dropped before committing its owning
	// Transaction, per spec §4.2/§9.
	Commit() error
}

// Iterator walks keys in lexicographic order within one namespace.
type Iterator interface {
	Valid() bool
	Next()
	Key() []byte
	Value() []byte
	Close()
}

// Transaction is an optimistic transaction handle. Store.Begin returns one;
// Context borrows from it. Committing aborts the later of two conflicting
// committers with ErrConflict, whose caller may retry (spec §4.2, §5).
type Transaction interface {
	// Context returns the storage context borrowed from this transaction.
	// Callers must stop using the context before calling Commit or Rollback
	// (spec §9: "the dance of dropping the borrowed context").
	Context() Context

	// Commit attempts to make all buffered writes visible atomically.
	Commit() error

	// Rollback discards all buffered writes. All accumulated costs already
	// reported to the caller remain valid (spec §5: cancellation never
	// retroactively un-charges cost).
	Rollback() error
}

// Store is the top-level contract exposed to upper layers: immediate
// read/write plus optimistic transactions (spec §4.2).
type Store interface {
	// Immediate returns a Context whose writes are visible instantly.
	Immediate() Context

	// Begin starts a new optimistic transaction.
	Begin() (Transaction, error)

	// Close releases any resources held by the store.
	Close() error
}
