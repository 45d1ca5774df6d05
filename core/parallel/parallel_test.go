package parallel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/histboost/core/arena"
	"github.com/YuminosukeSato/histboost/pkg/errors"
)

func TestShardRanges(t *testing.T) {
	tests := []struct {
		name          string
		items, shards int
		want          []Range
	}{
		{"empty", 0, 32, nil},
		{"fewer items than shards", 3, 32, []Range{{0, 1}, {1, 2}, {2, 3}}},
		{"even", 8, 4, []Range{{0, 2}, {2, 4}, {4, 6}, {6, 8}}},
		{"ragged tail", 10, 4, []Range{{0, 3}, {3, 6}, {6, 9}, {9, 10}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShardRanges(tt.items, tt.shards))
		})
	}
}

func TestForEachShard(t *testing.T) {
	p := newTestPool(t, 3)

	sums, err := ForEachShard(p, 100, 32, func(_ *arena.Arena, r Range) (int, error) {
		s := 0
		for i := r.Start; i < r.End; i++ {
			s += i
		}
		return s, nil
	})
	require.NoError(t, err)
	assert.Len(t, sums, len(ShardRanges(100, 32)))

	total := 0
	for _, s := range sums {
		total += s
	}
	assert.Equal(t, 4950, total)

	t.Run("error from any shard", func(t *testing.T) {
		want := errors.New("feature 5 failed")
		_, err := ForEachShard(p, 10, 10, func(_ *arena.Arena, r Range) (int, error) {
			if r.Start == 5 {
				return 0, want
			}
			return r.Start, nil
		})
		assert.True(t, errors.Is(err, want))
	})
}
