package batch

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidGroupSize is returned when a group size is not positive.
var ErrInvalidGroupSize = errors.New("group size must be positive")

// Partition splits items into ordered groups of at most size elements.
func Partition[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		groups = append(groups, items[start:end])
	}
	return groups
}

// RunGroups calls fn for every item, size items at a time. Each group must
// finish before the next one starts.
//
// fn receives a context that is not cancelled with ctx: once a call has been
// dispatched it runs to completion. Cancelling ctx stops dispatch of further
// groups and returns ctx.Err() without waiting for the current group.
func RunGroups[T any](ctx context.Context, items []T, size int, fn func(context.Context, T)) error {
	if size <= 0 {
		return ErrInvalidGroupSize
	}
	callCtx := context.WithoutCancel(ctx)
	for _, group := range Partition(items, size) {
		if err := ctx.Err(); err != nil {
			return err
		}
		var g errgroup.Group
		g.SetLimit(size)
		for _, item := range group {
			g.Go(func() error {
				fn(callCtx, item)
				return nil
			})
		}

		done := make(chan struct{})
		go func() {
			_ = g.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
