// Package compose provides utilities for building complex flows out of
// simpler sub-flows: wrapping a flow as a node with key-scoped
// input/output, chaining flows sequentially, running flows concurrently,
// and a fluent Builder over all three.
package compose

import (
	"context"
	"fmt"

	"github.com/loomkit/loom"
	"golang.org/x/sync/errgroup"
)

// flowNode wraps a *loom.Flow as a loom.Node, scoping the flow's working
// value to specific shared-state keys instead of the bare "input"
// convention builtin nodes use by default — useful when composing flows
// that must not clobber each other's working value.
type flowNode struct {
	*loom.Flow
	name      string
	inputKey  string
	outputKey string
}

// AsNode wraps flow as a node named name. It reads its input from
// inputKey (falling back to the builtin-node convention key "input" when
// inputKey is empty), copies that value into "input" for the nested flow
// to consume, runs the flow, and — if outputKey is non-empty — copies
// whatever ends up under "input" afterward into outputKey too.
//
// Grounded on agentstation-pocket/compose/compose.go's AsNodeWithStore;
// *loom.Flow already satisfies Node (it embeds BaseNode and defines
// Visit), so wrapping here is only about the key-scoping, not about
// making a flow runnable as a node at all.
func AsNode(flow *loom.Flow, name, inputKey, outputKey string) loom.Node {
	if inputKey == "" {
		inputKey = "input"
	}
	return &flowNode{Flow: flow, name: name, inputKey: inputKey, outputKey: outputKey}
}

// Name returns the node's name (overriding the inner flow's own name).
func (f *flowNode) Name() string { return f.name }

// Visit copies the scoped input into place, runs the wrapped flow, and
// copies the result out to outputKey if one was given.
func (f *flowNode) Visit(ctx context.Context, shared *loom.SharedState) (string, error) {
	val, ok := shared.Get(f.inputKey)
	if !ok {
		return "", fmt.Errorf("input key %q not found in shared state", f.inputKey)
	}
	if f.inputKey != "input" {
		shared.Set("input", val)
	}

	action, err := f.Flow.Visit(ctx, shared)
	if err != nil {
		return "", fmt.Errorf("flow %q failed: %w", f.name, err)
	}

	if f.outputKey != "" {
		if v, ok := shared.Get("input"); ok {
			shared.Set(f.outputKey, v)
		}
	}

	return action, nil
}

// Connect, Next and On are re-declared so chaining off a flowNode returns
// the wrapper rather than the *loom.Flow it embeds; On delegates to the
// inner flow for the same unexported-Edge-fields reason as the other
// decorator types in this module.
func (f *flowNode) Connect(action string, next loom.Node) loom.Node {
	f.Flow.Connect(action, next)
	return f
}

func (f *flowNode) Next(next loom.Node) loom.Node {
	return f.Connect("default", next)
}

func (f *flowNode) On(action string) *loom.Edge {
	return f.Flow.On(action)
}

// SequentialFlows chains flows end to end — flows[i].Next(flows[i+1]) for
// each adjacent pair — and wraps the result in a new named *loom.Flow
// starting at flows[0].
//
// This works because *loom.Flow's orchestrate loop re-evaluates
// current.Successor(action) against whichever node current has become:
// once traversal reaches flows[1], it consults flows[1]'s own successor
// map, which Next wired up to flows[2], and so on.
func SequentialFlows(name string, flows ...*loom.Flow) (*loom.Flow, error) {
	if len(flows) == 0 {
		return nil, fmt.Errorf("at least one flow must be provided")
	}

	for i := 0; i < len(flows)-1; i++ {
		flows[i].Next(flows[i+1])
	}

	return loom.NewFlow(name, flows[0]), nil
}

// ParallelFlows runs every flow concurrently, each against its own clone
// of shared so sibling runs can't race each other's writes, and returns
// the final per-flow SharedState in the same order the flows were given.
// It waits for every flow to finish before returning, reporting the first
// error observed only after every sibling has settled.
//
// Grounded on agentstation-pocket/flow.go's RunConcurrent and
// compose/compose.go's ParallelGraphs, adapted from a single shared store
// with nil inputs to per-flow isolated SharedState clones, since loom has
// no single "graph result" value — a flow's output lives in whatever keys
// its nodes chose to write.
func ParallelFlows(ctx context.Context, shared *loom.SharedState, flows ...*loom.Flow) ([]*loom.SharedState, error) {
	if len(flows) == 0 {
		return nil, fmt.Errorf("at least one flow must be provided")
	}

	clones := make([]*loom.SharedState, len(flows))
	for i := range flows {
		clones[i] = shared.Clone()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, flow := range flows {
		i, flow := i, flow
		g.Go(func() error {
			_, err := flow.Run(gctx, clones[i])
			if err != nil {
				return fmt.Errorf("flow %q: %w", flow.Name(), err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return clones, nil
}

// Builder provides a fluent API for composing named flows into a single
// graph, connecting them by name.
type Builder struct {
	name   string
	nodes  []loom.Node
	start  loom.Node
	errors []error
}

// NewBuilder creates a new builder for composing flows, named name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// AddFlow adds flow as a node in the composition, under name.
func (b *Builder) AddFlow(name string, flow *loom.Flow) *Builder {
	node := AsNode(flow, name, "input", "")
	b.nodes = append(b.nodes, node)
	if b.start == nil {
		b.start = node
	}
	return b
}

// AddFlowWithKeys adds flow with specific shared-state keys for
// input/output isolation.
func (b *Builder) AddFlowWithKeys(name string, flow *loom.Flow, inputKey, outputKey string) *Builder {
	node := AsNode(flow, name, inputKey, outputKey)
	b.nodes = append(b.nodes, node)
	if b.start == nil {
		b.start = node
	}
	return b
}

// Connect connects two previously added flows by name, under action.
func (b *Builder) Connect(from, action, to string) *Builder {
	var fromNode, toNode loom.Node

	for _, node := range b.nodes {
		if node.Name() == from {
			fromNode = node
		}
		if node.Name() == to {
			toNode = node
		}
	}

	if fromNode == nil {
		b.errors = append(b.errors, fmt.Errorf("node %q not found", from))
		return b
	}
	if toNode == nil {
		b.errors = append(b.errors, fmt.Errorf("node %q not found", to))
		return b
	}

	fromNode.Connect(action, toNode)
	return b
}

// Build produces the final composed flow.
func (b *Builder) Build() (*loom.Flow, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("builder errors: %v", b.errors)
	}
	if b.start == nil {
		return nil, fmt.Errorf("no flows added to builder")
	}

	return loom.NewFlow(b.name, b.start), nil
}
