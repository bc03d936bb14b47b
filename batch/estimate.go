package batch

import (
	"github.com/dashpay/grovedb-go/cost"
	"github.com/dashpay/grovedb-go/storage"
)

// EstimateCost runs ops through the real apply pipeline inside a
// transaction that is always rolled back, so a caller (e.g. an
// external fee estimator, spec §1's "host-application" collaborator) can
// learn the cost.Cost a batch would incur against the current grove state
// without persisting anything.
func EstimateCost(store storage.Store, ops []QualifiedGroveDbOp) (cost.Cost, error) {
	txn, err := store.Begin()
	if err != nil {
		return cost.Cost{}, err
	}
	defer txn.Rollback()

	c, err := Apply(txn.Context(), ops)
	return c, err
}
