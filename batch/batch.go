// Package batch provides generic extract/transform/reduce node construction
// for loom flows, bridging typed per-item processing with the kernel's
// map[string]any shared state.
package batch

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/loomkit/loom"
)

// Processor builds a loom node that extracts items of type T out of shared
// state, transforms each into an R, and reduces the results into the node's
// output.
type Processor[T, R any] struct {
	// Extract retrieves items to process from shared state.
	Extract func(ctx context.Context, shared *loom.SharedState) ([]T, error)

	// Transform processes a single item.
	Transform func(ctx context.Context, item T) (R, error)

	// Reduce combines results into a final output.
	Reduce func(ctx context.Context, results []R) (any, error)

	maxConcurrency int
}

// Option configures a batch processor.
type Option func(*options)

type options struct {
	maxConcurrency int
}

// WithConcurrency sets the maximum concurrent workers. A value <= 1
// processes items sequentially.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.maxConcurrency = n
	}
}

// NewProcessor creates a new batch processor.
func NewProcessor[T, R any](
	extract func(context.Context, *loom.SharedState) ([]T, error),
	transform func(context.Context, T) (R, error),
	reduce func(context.Context, []R) (any, error),
	opts ...Option,
) *Processor[T, R] {
	o := &options{maxConcurrency: 10}
	for _, opt := range opts {
		opt(o)
	}

	return &Processor[T, R]{
		Extract:        extract,
		Transform:      transform,
		Reduce:         reduce,
		maxConcurrency: o.maxConcurrency,
	}
}

// Node builds a loom node named name that runs this processor: Prep extracts
// items from shared state, Exec transforms them (sequentially, or with a
// bounded worker pool when maxConcurrency > 1) and reduces the results, and
// Post writes the reduced output back to shared state's "input" key.
func (p *Processor[T, R]) Node(name string) loom.Node {
	return loom.NewNode(name,
		loom.WithPrep(func(ctx context.Context, shared *loom.SharedState) (any, error) {
			items, err := p.Extract(ctx, shared)
			if err != nil {
				return nil, fmt.Errorf("extract: %w", err)
			}
			return items, nil
		}),
		loom.WithExec(func(ctx context.Context, prepResult any) (any, error) {
			items, ok := prepResult.([]T)
			if !ok {
				return nil, fmt.Errorf("batch processor expected []%T, got %T", *new(T), prepResult)
			}

			if len(items) == 0 {
				return p.Reduce(ctx, []R{})
			}

			results, err := p.processItems(ctx, items)
			if err != nil {
				return nil, err
			}

			return p.Reduce(ctx, results)
		}),
		loom.WithPost(func(_ context.Context, shared *loom.SharedState, _, execResult any) (string, error) {
			shared.Set("input", execResult)
			return "default", nil
		}),
	)
}

// processItems handles concurrent or sequential processing.
func (p *Processor[T, R]) processItems(ctx context.Context, items []T) ([]R, error) {
	if p.maxConcurrency <= 1 {
		return p.processSequential(ctx, items)
	}
	return p.processConcurrent(ctx, items)
}

// processSequential processes items one by one.
func (p *Processor[T, R]) processSequential(ctx context.Context, items []T) ([]R, error) {
	results := make([]R, len(items))

	for i, item := range items {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		result, err := p.Transform(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		results[i] = result
	}

	return results, nil
}

// processConcurrent processes items with a bounded worker pool.
func (p *Processor[T, R]) processConcurrent(ctx context.Context, items []T) ([]R, error) {
	g, ctx := errgroup.WithContext(ctx)

	results := make([]R, len(items))
	var mu sync.Mutex

	work := make(chan int, len(items))
	for i := range items {
		work <- i
	}
	close(work)

	for w := 0; w < p.maxConcurrency && w < len(items); w++ {
		g.Go(func() error {
			for idx := range work {
				result, err := p.Transform(ctx, items[idx])
				if err != nil {
					return fmt.Errorf("item %d: %w", idx, err)
				}

				mu.Lock()
				results[idx] = result
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// MapReduce builds a node that maps every extracted item through mapper and
// folds the results with reducer.
func MapReduce[T, R any](
	name string,
	extract func(context.Context, *loom.SharedState) ([]T, error),
	mapper func(context.Context, T) (R, error),
	reducer func(context.Context, []R) (any, error),
	opts ...Option,
) loom.Node {
	return NewProcessor(extract, mapper, reducer, opts...).Node(name)
}

// ForEach builds a node that runs process over every extracted item and
// reports how many items it ran, discarding any per-item result.
func ForEach[T any](
	name string,
	extract func(context.Context, *loom.SharedState) ([]T, error),
	process func(context.Context, T) error,
	opts ...Option,
) loom.Node {
	transform := func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, process(ctx, item)
	}

	reduce := func(_ context.Context, results []struct{}) (any, error) {
		return len(results), nil
	}

	return NewProcessor(extract, transform, reduce, opts...).Node(name)
}

// Filter builds a node that keeps only the extracted items for which
// predicate returns true, in their original order.
func Filter[T any](
	name string,
	extract func(context.Context, *loom.SharedState) ([]T, error),
	predicate func(context.Context, T) (bool, error),
	opts ...Option,
) loom.Node {
	type kept struct {
		item T
		keep bool
	}

	transform := func(ctx context.Context, item T) (kept, error) {
		ok, err := predicate(ctx, item)
		return kept{item: item, keep: ok}, err
	}

	reduce := func(_ context.Context, results []kept) (any, error) {
		var filtered []T
		for _, r := range results {
			if r.keep {
				filtered = append(filtered, r.item)
			}
		}
		return filtered, nil
	}

	return NewProcessor(extract, transform, reduce, opts...).Node(name)
}
