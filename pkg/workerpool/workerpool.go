// Package workerpool provides simple concurrent processing utilities.
package workerpool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Process runs process for every item on at most workerCount goroutines. The
// first error cancels the context passed to the remaining calls and is
// returned.
func Process[T any](ctx context.Context, workerCount int, items []T, process func(context.Context, T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workerCount, 1))
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return process(gctx, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
