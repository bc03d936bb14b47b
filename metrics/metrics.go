// Package metrics wraps the Prometheus counters/histograms the engine
// reports, registered lazily the way Trillian's storage layer registers
// its quota metrics (each collector is built once behind a sync.Once and
// handed back to callers who already have their own registry).
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dashpay/grovedb-go/cost"
)

// Collectors holds every metric the engine reports. A nil *Collectors is
// valid and every method becomes a no-op, so instrumentation stays
// optional for callers that don't register a registry.
type Collectors struct {
	costSeeks      prometheus.Counter
	costBlake3     prometheus.Counter
	costSinsemilla prometheus.Counter
	costBytes      prometheus.Counter
	proofSize      prometheus.Histogram
	storageRetries prometheus.Counter
}

var (
	once sync.Once
	reg  *Collectors
)

// Register builds the collector set and registers it with r, returning
// the same set on every call (idempotent, safe to call from multiple
// package init paths).
func Register(r prometheus.Registerer) *Collectors {
	once.Do(func() {
		reg = &Collectors{
			costSeeks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "grovedb", Name: "cost_seek_total", Help: "Cumulative storage seeks charged to operations.",
			}),
			costBlake3: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "grovedb", Name: "cost_blake3_calls_total", Help: "Cumulative Blake3 invocations.",
			}),
			costSinsemilla: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "grovedb", Name: "cost_sinsemilla_calls_total", Help: "Cumulative Sinsemilla invocations.",
			}),
			costBytes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "grovedb", Name: "cost_storage_loaded_bytes_total", Help: "Cumulative bytes read from storage.",
			}),
			proofSize: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "grovedb", Name: "proof_bytes", Help: "Encoded proof size in bytes.",
				Buckets: prometheus.ExponentialBuckets(64, 4, 10),
			}),
			storageRetries: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "grovedb", Name: "storage_conflict_retries_total", Help: "Optimistic-transaction retries after a storage conflict.",
			}),
		}
		r.MustRegister(
			reg.costSeeks, reg.costBlake3, reg.costSinsemilla, reg.costBytes,
			reg.proofSize, reg.storageRetries,
		)
	})
	return reg
}

// ObserveCost folds one operation's accumulated cost into the running
// counters.
func (c *Collectors) ObserveCost(v cost.Cost) {
	if c == nil {
		return
	}
	c.costSeeks.Add(float64(v.SeekCount))
	c.costBlake3.Add(float64(v.Blake3Calls))
	c.costSinsemilla.Add(float64(v.SinsemillaCalls))
	c.costBytes.Add(float64(v.StorageLoadedBytes))
}

// ObserveProofBytes records the encoded size of a generated proof.
func (c *Collectors) ObserveProofBytes(n int) {
	if c == nil {
		return
	}
	c.proofSize.Observe(float64(n))
}

// IncStorageConflictRetry records one optimistic-transaction retry.
func (c *Collectors) IncStorageConflictRetry() {
	if c == nil {
		return
	}
	c.storageRetries.Inc()
}
