package export

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEach calls fn for every item with at most limit calls in flight. The
// first error cancels the context passed to the remaining calls and is
// returned once all started calls finish.
func forEach[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, index int, item T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return fn(gctx, i, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
