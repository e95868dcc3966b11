package loom

import (
	"context"
	"fmt"
)

// Flow is itself a Node (embedding BaseNode), so a flow can be nested as a
// single node inside a larger flow's graph with no wrapper type needed —
// supplementing pockerflow-lixx's AsyncFlow(Flow, AsyncNode) composition.
//
// Grounded on pockerflow-lixx/__init__.py's Flow._orch/_run and on
// agentstation-pocket/pocket.go's Flow.Run/executeLifecycle for the Go
// shape (context-threaded, logger-observed traversal).
type Flow struct {
	BaseNode

	start  Node
	params map[string]any
	logger Logger

	prep FlowPrepFunc
	post FlowPostFunc
}

// FlowPrepFunc runs once before traversal begins, with full shared-state
// access. Its return value is threaded through unchanged to FlowPostFunc
// once traversal ends, the same way a Node's Prep result reaches its Post.
type FlowPrepFunc func(ctx context.Context, shared *SharedState) (prepResult any, err error)

// FlowPostFunc runs once after traversal ends, seeing both whatever
// FlowPrepFunc returned and the action the last visited node reported. Its
// return value becomes the flow's own reported action, so a flow nested as
// a node inside a larger graph can rewrite or override the traversal's
// natural outcome.
type FlowPostFunc func(ctx context.Context, shared *SharedState, prepResult any, lastAction string) (action string, err error)

func defaultFlowPrep(_ context.Context, _ *SharedState) (any, error) { return nil, nil }

func defaultFlowPost(_ context.Context, _ *SharedState, _ any, lastAction string) (string, error) {
	return lastAction, nil
}

// FlowOption configures a *Flow.
type FlowOption func(*Flow)

// WithLogger sets the Logger the flow's dead-end warnings are emitted
// through. Successor-overwrite warnings go through each node's own logger.
func WithLogger(logger Logger) FlowOption {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithParams sets the flow's own params, merged under (never over) any
// params a caller passes to RunWithParams or a batch supplies.
func WithParams(params map[string]any) FlowOption {
	return func(f *Flow) { f.params = params }
}

// WithFlowPrep overrides the flow's pre-traversal phase. The default does
// nothing and returns a nil prep result.
func WithFlowPrep(prep FlowPrepFunc) FlowOption {
	return func(f *Flow) {
		if prep != nil {
			f.prep = prep
		}
	}
}

// WithFlowPost overrides the flow's post-traversal phase, letting it
// inspect the prep result and the last action traversal produced before
// deciding what action the flow itself reports. The default returns the
// last action unchanged.
func WithFlowPost(post FlowPostFunc) FlowOption {
	return func(f *Flow) {
		if post != nil {
			f.post = post
		}
	}
}

// NewFlow creates a flow that starts traversal at start.
func NewFlow(name string, start Node, opts ...FlowOption) *Flow {
	f := &Flow{
		BaseNode: NewBaseNode(name),
		start:    start,
		logger:   defaultLogger,
		prep:     defaultFlowPrep,
		post:     defaultFlowPost,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run walks the graph from the start node using the flow's own params,
// synchronously. It fails with ErrRequiresCooperativeRun if traversal
// reaches a CooperativeOnly node.
func (f *Flow) Run(ctx context.Context, shared *SharedState) (string, error) {
	return f.orchestrate(ctx, shared, f.params)
}

// RunWithParams is Run, but merges params over the flow's own params
// (params wins on key conflict) before traversal begins.
func (f *Flow) RunWithParams(ctx context.Context, shared *SharedState, params map[string]any) (string, error) {
	return f.orchestrate(ctx, shared, mergeParams(f.params, params))
}

// RunCooperative is Run, but marks the traversal cooperative: retry delays
// become cancelable and CooperativeOnly nodes become runnable.
func (f *Flow) RunCooperative(ctx context.Context, shared *SharedState) (string, error) {
	return f.orchestrate(withCooperative(ctx), shared, f.params)
}

// Visit lets *Flow satisfy Node, so a flow can be a successor inside
// another flow's graph.
func (f *Flow) Visit(ctx context.Context, shared *SharedState) (string, error) {
	return f.orchestrate(ctx, shared, f.params)
}

// Next, Connect and On are re-declared (rather than inherited through the
// embedded BaseNode) so that chaining off a *Flow returns the flow itself —
// the same reasoning as BatchNode/ParallelBatchNode in batch.go.
func (f *Flow) Next(next Node) Node { return f.connectSelf(f, "default", next) }

// Connect registers next as the successor for action and returns f.
func (f *Flow) Connect(action string, next Node) Node { return f.connectSelf(f, action, next) }

// On begins the two-step On(action).To(next) builder.
func (f *Flow) On(action string) *Edge { return &Edge{from: f, action: action} }

// orchestrate is the traversal primitive every entry point above funnels
// through: merge params onto ctx once, then repeatedly visit the current
// node and follow the action it returns until a dead end.
//
// Dead-end handling matches pockerflow-lixx's get_next_node exactly: a
// lookup miss is only worth a warning if the current node has at least one
// successor registered at all — a genuinely terminal node (no successors)
// ending the traversal is expected, not a diagnostic.
func (f *Flow) orchestrate(ctx context.Context, shared *SharedState, params map[string]any) (string, error) {
	if f.start == nil {
		return "", ErrNoStartNode
	}

	prepResult, err := f.prep(ctx, shared)
	if err != nil {
		return "", fmt.Errorf("flow %q: prep: %w", f.Name(), err)
	}

	ctx = withParams(ctx, params)
	current := f.start
	var lastAction string

	for current != nil {
		action, err := current.Visit(ctx, shared)
		if err != nil {
			return "", err
		}
		lastAction = action

		next, ok := current.Successor(action)
		if !ok {
			if current.HasSuccessors() {
				f.logger.Warn(ctx, "flow ends: action not found among successors", "node", current.Name(), "action", action)
			}
			break
		}
		current = next
	}

	finalAction, err := f.post(ctx, shared, prepResult, lastAction)
	if err != nil {
		return "", fmt.Errorf("flow %q: post: %w", f.Name(), err)
	}
	return finalAction, nil
}
