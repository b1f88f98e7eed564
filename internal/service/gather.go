package service

import (
	"context"
)

// GatherFailure records one key whose lookup failed.
type GatherFailure[K any] struct {
	Key K
	Err error
}

// Gather applies fn to each key in order and collects successes and failures
// separately. One failing key never aborts the rest. Once ctx is done, the
// remaining keys fail with the context error.
func Gather[K any, V any](ctx context.Context, keys []K, fn func(ctx context.Context, key K) (V, error)) ([]V, []GatherFailure[K]) {
	values := make([]V, 0, len(keys))
	var failures []GatherFailure[K]

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			failures = append(failures, GatherFailure[K]{Key: key, Err: err})
			continue
		}
		v, err := fn(ctx, key)
		if err != nil {
			failures = append(failures, GatherFailure[K]{Key: key, Err: err})
			continue
		}
		values = append(values, v)
	}
	return values, failures
}
