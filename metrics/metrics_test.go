package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dashpay/grovedb-go/cost"
)

func TestRegisterIsIdempotentAndObservesCost(t *testing.T) {
	r := prometheus.NewRegistry()
	c1 := Register(r)
	c2 := Register(r)
	require.Same(t, c1, c2)

	c1.ObserveCost(cost.Cost{SeekCount: 3, Blake3Calls: 2})
	c1.ObserveProofBytes(128)
	c1.IncStorageConflictRetry()
}

func TestNilCollectorsAreNoOps(t *testing.T) {
	var c *Collectors
	c.ObserveCost(cost.Cost{SeekCount: 1})
	c.ObserveProofBytes(1)
	c.IncStorageConflictRetry()
}
