package cost

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageDelta(t *testing.T) {
	cases := []struct {
		name           string
		oldSize        uint64
		newSize        uint64
		want           StorageCost
	}{
		{"equal", 10, 10, StorageCost{Replaced: 10}},
		{"grow", 10, 15, StorageCost{Replaced: 10, Added: 5}},
		{"shrink", 15, 10, StorageCost{Replaced: 10, Removed: 5}},
		{"from-empty", 0, 5, StorageCost{Replaced: 0, Added: 5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StorageDelta(tc.oldSize, tc.newSize))
		})
	}
}

func TestCostAddIsAssociativeAndCommutative(t *testing.T) {
	a := Cost{SeekCount: 1, Blake3Calls: 2}
	b := Cost{SeekCount: 3, Storage: StorageCost{Added: 4}}
	c := Cost{SinsemillaCalls: 5}

	require.Equal(t, a.Add(b), b.Add(a))
	require.Equal(t, a.Add(b).Add(c), a.Add(b.Add(c)))
}

func TestFlatMapShortCircuitsOnError(t *testing.T) {
	sentinel := errors.New("boom")
	calls := 0
	_, c, err := FlatMap(1, Cost{SeekCount: 1}, sentinel, func(int) (int, Cost, error) {
		calls++
		return 0, Cost{SeekCount: 99}, nil
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, 0, calls)
	require.Equal(t, uint64(1), c.SeekCount)
}

func TestFlatMapAccumulatesCost(t *testing.T) {
	v, c, err := FlatMap(1, Cost{SeekCount: 1}, nil, func(n int) (int, Cost, error) {
		return n + 1, Cost{SeekCount: 2}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, v)
	require.Equal(t, uint64(3), c.SeekCount)
}

func TestTracker(t *testing.T) {
	var tr Tracker
	tr.Add(Cost{SeekCount: 1})
	tr.Add(Cost{SeekCount: 2})
	require.Equal(t, uint64(3), tr.Total().SeekCount)
}
