package parallel

import (
	"github.com/YuminosukeSato/histboost/core/arena"
)

// Range is a half-open interval [Start, End).
type Range struct {
	Start, End int
}

// Len returns End - Start.
func (r Range) Len() int { return r.End - r.Start }

// ShardRanges divides [0, items) into at most shards contiguous ranges of
// ceil(items/shards) elements. Empty trailing ranges are omitted.
func ShardRanges(items, shards int) []Range {
	if items <= 0 || shards <= 0 {
		return nil
	}
	chunk := (items + shards - 1) / shards
	out := make([]Range, 0, shards)
	for start := 0; start < items; start += chunk {
		out = append(out, Range{Start: start, End: min(start+chunk, items)})
	}
	return out
}

// ForEachShard runs fn once per range of ShardRanges(items, shards) on the
// pool and waits for every task before returning. Results are in shard order.
// If any task fails, the error of the lowest failing shard is returned after
// all tasks have finished.
func ForEachShard[T any](p *Pool, items, shards int, fn func(a *arena.Arena, r Range) (T, error)) ([]T, error) {
	ranges := ShardRanges(items, shards)
	futures := make([]*Future[T], 0, len(ranges))
	var submitErr error
	for _, r := range ranges {
		f, err := Submit(p, func(a *arena.Arena) (T, error) {
			return fn(a, r)
		})
		if err != nil {
			submitErr = err
			break
		}
		futures = append(futures, f)
	}

	results := make([]T, len(futures))
	var firstErr error
	for i, f := range futures {
		v, err := f.Get()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		results[i] = v
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if submitErr != nil {
		return nil, submitErr
	}
	return results, nil
}
