package loom

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// ParallelBatchFlow wraps a BatchFlow with a RunParallel entry point that
// fans one cooperative traversal out per batch params map instead of
// running them one after another.
//
// Resolves spec §9 open question 2 (failure-cancellation semantics) as
// recommended: structured concurrency via errgroup — every sibling
// traversal is awaited before a failure is reported, rather than the
// caller seeing the first error before the others have settled.
//
// Grounded on pockerflow-lixx's AsyncParallelBatchFlow._run_async
// (asyncio.gather over per-param traversals) and on
// agentstation-pocket/flow.go's RunConcurrent/FanOut for the Go idiom.
type ParallelBatchFlow struct {
	*BatchFlow
}

// NewParallelBatchFlow creates a parallel batch flow starting at start.
func NewParallelBatchFlow(name string, start Node, prep BatchPrepFunc, opts ...FlowOption) *ParallelBatchFlow {
	return &ParallelBatchFlow{BatchFlow: NewBatchFlow(name, start, prep, opts...)}
}

// RunParallel produces the batch params synchronously, then runs one
// cooperative traversal per entry concurrently. It waits for every sibling
// to finish (success or failure) before returning; on failure it returns
// the errors of every failed sibling, joined with errors.Join.
func (pf *ParallelBatchFlow) RunParallel(ctx context.Context, shared *SharedState) (string, error) {
	batches, err := pf.prep(ctx, shared)
	if err != nil {
		return "", err
	}
	if len(batches) == 0 {
		return "", nil
	}

	g, gctx := errgroup.WithContext(withCooperative(ctx))
	actions := make([]string, len(batches))
	errs := make([]error, len(batches))

	for i, batchParams := range batches {
		i, batchParams := i, batchParams
		merged := mergeParams(pf.params, batchParams)
		g.Go(func() error {
			action, err := pf.orchestrate(gctx, shared, merged)
			if err != nil {
				errs[i] = err
				return nil
			}
			actions[i] = action
			return nil
		})
	}

	_ = g.Wait()
	if err := errors.Join(errs...); err != nil {
		return "", err
	}
	return actions[len(actions)-1], nil
}

// Next, Connect and On are re-declared so that chaining off a
// *ParallelBatchFlow returns the parallel batch flow itself, not the plain
// *BatchFlow underneath it.
func (pf *ParallelBatchFlow) Next(next Node) Node { return pf.connectSelf(pf, "default", next) }

// Connect registers next as the successor for action and returns pf.
func (pf *ParallelBatchFlow) Connect(action string, next Node) Node {
	return pf.connectSelf(pf, action, next)
}

// On begins the two-step On(action).To(next) builder.
func (pf *ParallelBatchFlow) On(action string) *Edge { return &Edge{from: pf, action: action} }
