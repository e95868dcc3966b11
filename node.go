package loom

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Node is anything that can take one step in a flow: read shared state,
// do work, write shared state back, and report which action label the
// flow should follow next. *FuncNode, *BatchNode, *ParallelBatchNode and *Flow
// all implement it, and so can types in other packages (middleware's
// decorating wrapper, for instance) — there is no sealed interface and no type
// switch anywhere in the dispatch path.
type Node interface {
	// Name identifies the node within a flow, for logging and errors.
	Name() string

	// Connect registers next as the successor to follow when this node
	// returns action. Returns the receiver so calls can be chained.
	Connect(action string, next Node) Node

	// Next is shorthand for Connect("default", next).
	Next(next Node) Node

	// On begins the two-step builder form: n.On("action").To(next) is
	// equivalent to n.Connect("action", next), spelled out for call sites
	// that read better as a sentence than as a two-argument call.
	On(action string) *Edge

	// Successor looks up the node registered for action. An empty action
	// is treated as "default", matching the convention every Post
	// implementation is expected to follow when it has no more specific
	// action to report.
	Successor(action string) (Node, bool)

	// Successors returns a snapshot of the action -> node map.
	Successors() map[string]Node

	// HasSuccessors reports whether any successor has been registered.
	HasSuccessors() bool

	// Visit runs this node's lifecycle once against shared and returns the
	// action label to follow. It is the traversal primitive flows call;
	// application code normally calls Run or a Flow instead.
	Visit(ctx context.Context, shared *SharedState) (action string, err error)
}

// Edge is the receiver for the two-step On(action).To(next) builder.
type Edge struct {
	from   Node
	action string
}

// To completes the edge, connecting the node the On call started from to
// next under this edge's action, and returns that origin node so further
// edges can be chained off of it.
func (e *Edge) To(next Node) Node {
	return e.from.Connect(e.action, next)
}

// BaseNode implements the successor-map half of Node. Concrete node types
// embed it and supply Visit themselves.
//
// Grounded on pockerflow-lixx/__init__.py's BaseNode.next/successors and on
// agentstation-pocket/pocket.go's Node.Connect/Default, merged: the warning
// on overwrite is the Python original's behavior (the Go teacher doesn't
// warn at all), and the chained-return shape is the Go teacher's.
type BaseNode struct {
	name   string
	logger Logger

	mu         sync.RWMutex
	successors map[string]Node
}

// NewBaseNode creates a BaseNode ready to be embedded by a concrete node
// type. Most callers should use NewNode instead of building on BaseNode
// directly.
func NewBaseNode(name string) BaseNode {
	return BaseNode{
		name:       name,
		logger:     defaultLogger,
		successors: make(map[string]Node),
	}
}

// Name returns the node's name.
func (b *BaseNode) Name() string { return b.name }

// SetLogger overrides the logger used for overwrite warnings.
func (b *BaseNode) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	b.logger = logger
}

// Connect registers next as the successor for action, warning if action
// already had a different successor mapped (pockerflow-lixx warns
// "Overwriting successor for action '%s'" in the same situation). It
// returns next, not the receiver; the node types that embed BaseNode
// re-declare Connect through connectSelf so that it returns themselves.
func (b *BaseNode) Connect(action string, next Node) Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.successors[action]; exists {
		b.logger.Warn(context.Background(), "overwriting successor for action", "node", b.name, "action", action)
	}
	b.successors[action] = next
	return next
}

// connectSelf is Connect but returns the receiving node instead of next, so
// BaseNode-embedding types can expose the "returns self for chaining" shape
// their Connect/Next methods promise without re-locking.
func (b *BaseNode) connectSelf(self Node, action string, next Node) Node {
	b.mu.Lock()
	if _, exists := b.successors[action]; exists {
		b.logger.Warn(context.Background(), "overwriting successor for action", "node", b.name, "action", action)
	}
	b.successors[action] = next
	b.mu.Unlock()
	return self
}

// Successor looks up the node mapped to action, substituting "default"
// when action is empty. It never falls back to "default" for a non-empty
// action that simply isn't mapped — that distinction drives whether a
// flow should warn about a dead end (see Flow.orchestrate).
func (b *BaseNode) Successor(action string) (Node, bool) {
	key := action
	if key == "" {
		key = "default"
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.successors[key]
	return n, ok
}

// Successors returns a snapshot of the action -> node map.
func (b *BaseNode) Successors() map[string]Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]Node, len(b.successors))
	for k, v := range b.successors {
		out[k] = v
	}
	return out
}

// HasSuccessors reports whether any successor has been registered.
func (b *BaseNode) HasSuccessors() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.successors) > 0
}

// PrepFunc prepares data before execution, with full shared-state access.
type PrepFunc func(ctx context.Context, shared *SharedState) (prepResult any, err error)

// ExecFunc performs the main processing logic. It intentionally has no
// shared-state access: Exec is the phase the retry engine re-runs, and
// pockerflow-lixx's own exec_fallback contract assumes Exec is side-effect
// free with respect to shared state so a retried attempt is safe to repeat.
type ExecFunc func(ctx context.Context, prepResult any) (execResult any, err error)

// PostFunc processes the exec result, writes shared state, and returns the
// action label the flow should follow.
type PostFunc func(ctx context.Context, shared *SharedState, prepResult, execResult any) (action string, err error)

// FallbackFunc runs when every retry attempt of Exec has failed. Returning
// the original error unchanged (the default) lets it propagate, matching
// pockerflow-lixx's exec_fallback default of re-raising.
type FallbackFunc func(ctx context.Context, prepResult any, lastErr error) (execResult any, err error)

func defaultPrep(_ context.Context, _ *SharedState) (any, error)      { return nil, nil }
func defaultExec(_ context.Context, prepResult any) (any, error)     { return prepResult, nil }
func defaultFallback(_ context.Context, _ any, lastErr error) (any, error) {
	return nil, lastErr
}
func defaultPost(_ context.Context, _ *SharedState, _, _ any) (string, error) {
	return "default", nil
}

// FuncNode is the concrete, configurable unit of work built from plain
// functions: a Prep/Exec/Post lifecycle with an intrinsic retry/fallback
// policy, embeddable successor map, and an optional CooperativeOnly
// marker. It is the Node implementation almost every workflow is built
// from; BatchNode and ParallelBatchNode both embed it.
type FuncNode struct {
	BaseNode

	prep     PrepFunc
	exec     ExecFunc
	post     PostFunc
	fallback FallbackFunc

	maxRetries      int
	retryDelay      time.Duration
	cooperativeOnly bool
}

// NewNode creates a FuncNode named name. Its lifecycle functions default to
// a no-op Prep, a pass-through Exec, an always-propagating Fallback and a
// Post that always reports the "default" action; Options override any of
// these.
func NewNode(name string, opts ...Option) *FuncNode {
	n := &FuncNode{
		BaseNode:   NewBaseNode(name),
		prep:       defaultPrep,
		exec:       defaultExec,
		post:       defaultPost,
		fallback:   defaultFallback,
		maxRetries: 1,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Next is shorthand for Connect("default", next).
func (n *FuncNode) Next(next Node) Node {
	return n.connectSelf(n, "default", next)
}

// Connect registers next as the successor for action and returns n, so
// calls chain: a.Connect("ok", b).Connect("retry", c).
func (n *FuncNode) Connect(action string, next Node) Node {
	return n.connectSelf(n, action, next)
}

// On begins the two-step On(action).To(next) builder.
func (n *FuncNode) On(action string) *Edge {
	return &Edge{from: n, action: action}
}

// Visit runs Prep, the retrying Exec (with Fallback on exhaustion), then
// Post, returning the action Post reports. A CooperativeOnly node visited
// outside a cooperative traversal returns ErrRequiresCooperativeRun without
// running any phase.
func (n *FuncNode) Visit(ctx context.Context, shared *SharedState) (string, error) {
	if n.cooperativeOnly && !isCooperative(ctx) {
		return "", ErrRequiresCooperativeRun
	}

	prepResult, err := n.prep(ctx, shared)
	if err != nil {
		return "", fmt.Errorf("node %q: prep: %w", n.Name(), err)
	}

	execResult, err := runRetrying(ctx, n.exec, n.fallback, prepResult, n.maxRetries, n.retryDelay, isCooperative(ctx))
	if err != nil {
		return "", fmt.Errorf("node %q: exec: %w", n.Name(), err)
	}

	action, err := n.post(ctx, shared, prepResult, execResult)
	if err != nil {
		return "", fmt.Errorf("node %q: post: %w", n.Name(), err)
	}
	if action == "" {
		action = "default"
	}
	return action, nil
}

// Run executes this node standalone, outside of any flow, for ad hoc use
// and single-node testing. It warns (pockerflow-lixx: "Node won't run
// successors. Use Flow.") if the node has successors registered, since
// those successors will never be visited by this call.
func (n *FuncNode) Run(ctx context.Context, shared *SharedState) (string, error) {
	if n.HasSuccessors() {
		n.logger.Warn(ctx, "node won't run successors, use a Flow", "node", n.Name())
	}
	return n.Visit(ctx, shared)
}
