// Package groveerr centralizes the error kinds produced by the GroveDB
// engine (spec §7). Data-integrity failures are returned unchanged to the
// caller; logical failures on getters collapse to ErrKeyNotFound/
// ErrPathNotFound so callers can treat them as an Option-like result.
package groveerr

import (
	"errors"
	"fmt"

	"github.com/dashpay/grovedb-go/cost"
)

// Sentinel error kinds, one per spec §7 entry.
var (
	ErrKeyNotFound       = errors.New("grovedb: key not found")
	ErrPathNotFound      = errors.New("grovedb: path not found")
	ErrCorruptedData     = errors.New("grovedb: corrupted data")
	ErrCyclicReference   = errors.New("grovedb: cyclic reference")
	ErrReferenceHopLimit = errors.New("grovedb: reference hop limit exceeded")
	ErrInvalidProof      = errors.New("grovedb: invalid proof")
	ErrInvalidPayload    = errors.New("grovedb: invalid payload size")
	ErrNotSupported      = errors.New("grovedb: not supported")
	ErrCapacityExceeded  = errors.New("grovedb: capacity exceeded")
	ErrStorageConflict   = errors.New("grovedb: storage conflict")
	ErrStorageIO         = errors.New("grovedb: storage io")
	ErrOverflow          = errors.New("grovedb: overflow")
)

// CostedError pairs an error with the cost accumulated before the engine
// gave up on the operation (spec §7: "every error is returned paired with
// the cost accumulated up to the point of failure").
type CostedError struct {
	Err  error
	Cost cost.Cost
}

func (e *CostedError) Error() string {
	return fmt.Sprintf("%v (cost: %s)", e.Err, e.Cost.String())
}

func (e *CostedError) Unwrap() error { return e.Err }

// WithCost wraps err together with the cost accumulated so far. A nil err
// returns nil.
func WithCost(err error, c cost.Cost) error {
	if err == nil {
		return nil
	}
	return &CostedError{Err: err, Cost: c}
}

// Is lets errors.Is match against the wrapped sentinel as well as CostedError
// wrapping chains produced by WithCost.
func Is(err, target error) bool { return errors.Is(err, target) }
