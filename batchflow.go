package loom

import "context"

// BatchPrepFunc produces one params map per traversal a BatchFlow should
// run. Each map is merged over the flow's own params, with the batch map
// winning on key conflict — resolving spec §9 open question 1 in favor of
// the flow's base params staying immutable across the run; only the
// per-visit merged copy (threaded via context, never written back to the
// Flow) ever reflects a batch's overrides.
type BatchPrepFunc func(ctx context.Context, shared *SharedState) ([]map[string]any, error)

// BatchFlow drives one full sequential traversal of the same graph per
// params map its BatchPrepFunc produces, against the same SharedState.
//
// Grounded on pockerflow-lixx/__init__.py's BatchFlow._run (prep returns a
// list of param dicts; _orch runs once per dict, params merged over the
// flow's own self.params).
type BatchFlow struct {
	*Flow
	prep BatchPrepFunc
}

// NewBatchFlow creates a batch flow starting at start, producing one
// traversal per params map prep returns.
func NewBatchFlow(name string, start Node, prep BatchPrepFunc, opts ...FlowOption) *BatchFlow {
	return &BatchFlow{Flow: NewFlow(name, start, opts...), prep: prep}
}

// Run produces the batch params synchronously and runs one traversal per
// entry, in order. The action returned is the last traversal's.
func (bf *BatchFlow) Run(ctx context.Context, shared *SharedState) (string, error) {
	return bf.runBatches(ctx, shared)
}

// RunCooperative is Run, but every traversal runs cooperatively.
func (bf *BatchFlow) RunCooperative(ctx context.Context, shared *SharedState) (string, error) {
	return bf.runBatches(withCooperative(ctx), shared)
}

// Visit lets *BatchFlow satisfy Node.
func (bf *BatchFlow) Visit(ctx context.Context, shared *SharedState) (string, error) {
	return bf.runBatches(ctx, shared)
}

// Next, Connect and On are re-declared so that chaining off a *BatchFlow
// returns the batch flow itself, not the plain *Flow underneath it.
func (bf *BatchFlow) Next(next Node) Node { return bf.connectSelf(bf, "default", next) }

// Connect registers next as the successor for action and returns bf.
func (bf *BatchFlow) Connect(action string, next Node) Node { return bf.connectSelf(bf, action, next) }

// On begins the two-step On(action).To(next) builder.
func (bf *BatchFlow) On(action string) *Edge { return &Edge{from: bf, action: action} }

func (bf *BatchFlow) runBatches(ctx context.Context, shared *SharedState) (string, error) {
	batches, err := bf.prep(ctx, shared)
	if err != nil {
		return "", err
	}

	var lastAction string
	for _, batchParams := range batches {
		action, err := bf.orchestrate(ctx, shared, mergeParams(bf.params, batchParams))
		if err != nil {
			return "", err
		}
		lastAction = action
	}
	return lastAction, nil
}
