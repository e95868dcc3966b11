package loom

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// asBatchItems converts a batch node's Prep result into the []any it fans
// Exec out over. A nil prep result (Prep returning nothing, the default for
// an unset Prep) is treated the same as an explicit empty slice — matching
// pockerflow-lixx's BatchNode._exec, which iterates "items or []" rather
// than rejecting a falsy prep result outright.
func asBatchItems(prepResult any) ([]any, error) {
	if prepResult == nil {
		return nil, nil
	}
	items, ok := prepResult.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrBatchPrepType, prepResult)
	}
	return items, nil
}

// BatchNode is a thin decorator over *FuncNode: Prep must return a []any, and
// Exec (with the same retry/fallback policy as the wrapped node) runs once
// per item, in order, with each item getting its own independent retry
// budget. Post sees the slice of per-item exec results in the same order
// the items were produced in (P4).
//
// Grounded on pockerflow-lixx/__init__.py's BatchNode._exec.
type BatchNode struct {
	*FuncNode
}

// NewBatchNode creates a batch node named name.
func NewBatchNode(name string, opts ...Option) *BatchNode {
	return &BatchNode{FuncNode: NewNode(name, opts...)}
}

// Next, Connect and On are re-declared (rather than inherited through the
// embedded *FuncNode) so that chaining off a *BatchNode returns the batch
// node itself, not the plain FuncNode underneath it.
func (b *BatchNode) Next(next Node) Node { return b.connectSelf(b, "default", next) }

// Connect registers next as the successor for action and returns b.
func (b *BatchNode) Connect(action string, next Node) Node { return b.connectSelf(b, action, next) }

// On begins the two-step On(action).To(next) builder.
func (b *BatchNode) On(action string) *Edge { return &Edge{from: b, action: action} }

// Visit overrides *FuncNode's Visit to fan out Exec across each item Prep
// produced, instead of running Exec once against the whole Prep result.
func (b *BatchNode) Visit(ctx context.Context, shared *SharedState) (string, error) {
	if b.cooperativeOnly && !isCooperative(ctx) {
		return "", ErrRequiresCooperativeRun
	}

	prepResult, err := b.prep(ctx, shared)
	if err != nil {
		return "", fmt.Errorf("batch node %q: prep: %w", b.Name(), err)
	}

	items, err := asBatchItems(prepResult)
	if err != nil {
		return "", fmt.Errorf("batch node %q: %w", b.Name(), err)
	}

	results := make([]any, len(items))
	for i, item := range items {
		result, err := runRetrying(ctx, b.exec, b.fallback, item, b.maxRetries, b.retryDelay, isCooperative(ctx))
		if err != nil {
			return "", fmt.Errorf("batch node %q: item %d: %w", b.Name(), i, err)
		}
		results[i] = result
	}

	action, err := b.post(ctx, shared, prepResult, results)
	if err != nil {
		return "", fmt.Errorf("batch node %q: post: %w", b.Name(), err)
	}
	if action == "" {
		action = "default"
	}
	return action, nil
}

// ParallelBatchNode is BatchNode's concurrent sibling: items still come
// from a []any Prep result, but Exec runs for up to concurrency items at
// once instead of strictly in order. Post still receives results indexed
// by the item's original position, so ordering is preserved even though
// execution isn't sequential.
//
// Supplements pockerflow-lixx's AsyncParallelBatchNode (an asyncio.gather
// over per-item work within a single node, distinct from a parallel flow);
// grounded on agentstation-pocket/batch/batch.go's WithConcurrency pattern
// for the bounded-fan-out shape.
type ParallelBatchNode struct {
	*FuncNode
	concurrency int
}

// NewParallelBatchNode creates a parallel batch node named name, running
// at most concurrency items at once (concurrency <= 0 means unbounded).
func NewParallelBatchNode(name string, concurrency int, opts ...Option) *ParallelBatchNode {
	return &ParallelBatchNode{FuncNode: NewNode(name, opts...), concurrency: concurrency}
}

// Next, Connect and On are re-declared for the same reason as BatchNode's:
// chaining off a *ParallelBatchNode should return the node itself.
func (b *ParallelBatchNode) Next(next Node) Node { return b.connectSelf(b, "default", next) }

// Connect registers next as the successor for action and returns b.
func (b *ParallelBatchNode) Connect(action string, next Node) Node {
	return b.connectSelf(b, action, next)
}

// On begins the two-step On(action).To(next) builder.
func (b *ParallelBatchNode) On(action string) *Edge { return &Edge{from: b, action: action} }

// Visit fans Exec out across items, bounded by concurrency, and joins
// before running Post.
func (b *ParallelBatchNode) Visit(ctx context.Context, shared *SharedState) (string, error) {
	if b.cooperativeOnly && !isCooperative(ctx) {
		return "", ErrRequiresCooperativeRun
	}

	prepResult, err := b.prep(ctx, shared)
	if err != nil {
		return "", fmt.Errorf("parallel batch node %q: prep: %w", b.Name(), err)
	}

	items, err := asBatchItems(prepResult)
	if err != nil {
		return "", fmt.Errorf("parallel batch node %q: %w", b.Name(), err)
	}

	results := make([]any, len(items))
	g, gctx := errgroup.WithContext(ctx)

	var sem chan struct{}
	if b.concurrency > 0 {
		sem = make(chan struct{}, b.concurrency)
	}

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			result, err := runRetrying(gctx, b.exec, b.fallback, item, b.maxRetries, b.retryDelay, isCooperative(ctx))
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("parallel batch node %q: %w", b.Name(), err)
	}

	action, err := b.post(ctx, shared, prepResult, results)
	if err != nil {
		return "", fmt.Errorf("parallel batch node %q: post: %w", b.Name(), err)
	}
	if action == "" {
		action = "default"
	}
	return action, nil
}
