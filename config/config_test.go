package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesElementHopLimit(t *testing.T) {
	c := Default()
	require.Equal(t, 10, c.MaxReferenceHops)
}

func TestOptionsOverrideDefaults(t *testing.T) {
	c := New(
		WithMaxReferenceHops(3),
		WithMMRProofCaps(1024, 10),
		WithDefaultChunkPower(2),
		WithDefaultDenseHeight(4),
		WithPruneAfterCommits(100),
	)
	require.Equal(t, 3, c.MaxReferenceHops)
	require.Equal(t, uint64(1024), c.MMRProofByteCap)
	require.Equal(t, uint64(10), c.MMRProofIndexCap)
	require.Equal(t, uint8(2), c.DefaultChunkPower)
	require.Equal(t, uint8(4), c.DefaultDenseHeight)
	require.Equal(t, uint64(100), c.PruneAfterCommits)
}
