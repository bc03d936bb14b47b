// Package config holds the engine-level tunables threaded through the
// grovedb façade: reference hop limits, proof size caps, default chunk
// power, and pruning thresholds. GroveDB-Go is an embedded engine, not a
// standalone service, so this is a plain struct built with functional
// options (the idiom used throughout the pack for engine parameters, e.g.
// luxfi-consensus/config.Parameters's named-preset constructors) rather
// than a file-based config loader.
package config

import "github.com/dashpay/grovedb-go/element"

// Config collects the engine's tunables. Engine code reads only
// MMRProofByteCap and MMRProofIndexCap (in proof.VerifyEnvelope); the other
// fields are carried in the struct and no engine package reads them.
type Config struct {
	// MaxReferenceHops records the reference-chain hop limit (spec §4.6).
	// It defaults to element.MaxReferenceHops; reference resolution always
	// uses that constant and does not read this field.
	MaxReferenceHops int

	// MMRProofByteCap and MMRProofIndexCap bound an MMR proof's encoded
	// size and query-index count (spec §4.10).
	MMRProofByteCap  uint64
	MMRProofIndexCap uint64

	// DefaultChunkPower is a BulkAppendTree chunk power (spec §4.8.2) for
	// callers building elements. No engine code reads it; a BulkAppendTree
	// always uses the ChunkPower stored in its own element.
	DefaultChunkPower uint8

	// DefaultDenseHeight is a DenseAppendOnlyFixedSizeTree height (spec
	// §4.8.3) for callers building elements. No engine code reads it; a
	// dense tree always uses the height stored in its own element.
	DefaultDenseHeight uint8

	// PruneAfterCommits records a commit-count threshold for collapsing
	// Loaded links back to Reference state. No engine code reads it;
	// pruning happens only when a caller invokes merk.PruneDepth.
	PruneAfterCommits uint64
}

// Default returns the engine's baseline tunables.
func Default() Config {
	return Config{
		MaxReferenceHops:   element.MaxReferenceHops,
		MMRProofByteCap:    100 * 1024 * 1024,
		MMRProofIndexCap:   10_000_000,
		DefaultChunkPower:  4,
		DefaultDenseHeight: 8,
		PruneAfterCommits:  0,
	}
}

// Option mutates a Config under construction.
type Option func(*Config)

// New builds a Config from Default plus the given options.
func New(opts ...Option) Config {
	c := Default()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithMaxReferenceHops overrides the reference-chain hop limit.
func WithMaxReferenceHops(n int) Option {
	return func(c *Config) { c.MaxReferenceHops = n }
}

// WithMMRProofCaps overrides both MMR proof size bounds.
func WithMMRProofCaps(byteCap, indexCap uint64) Option {
	return func(c *Config) { c.MMRProofByteCap, c.MMRProofIndexCap = byteCap, indexCap }
}

// WithDefaultChunkPower overrides the default BulkAppendTree chunk power.
func WithDefaultChunkPower(p uint8) Option {
	return func(c *Config) { c.DefaultChunkPower = p }
}

// WithDefaultDenseHeight overrides the default DenseAppendOnlyFixedSizeTree height.
func WithDefaultDenseHeight(h uint8) Option {
	return func(c *Config) { c.DefaultDenseHeight = h }
}

// WithPruneAfterCommits overrides the prune-eligibility threshold.
func WithPruneAfterCommits(n uint64) Option {
	return func(c *Config) { c.PruneAfterCommits = n }
}
