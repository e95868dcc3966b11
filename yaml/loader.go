package yaml

import (
	"context"
	"fmt"
	"time"

	"github.com/loomkit/loom"
)

const defaultAction = "default"

// NodeFactory creates nodes from definitions.
type NodeFactory interface {
	CreateNode(def *NodeDefinition) (loom.Node, error)
}

// NodeBuilder is a function that builds a node from a definition.
type NodeBuilder func(def *NodeDefinition) (loom.Node, error)

// defaultNodeFactory provides basic node creation, dispatching to a
// registered builder by node type or falling back to a generic node.
type defaultNodeFactory struct {
	registry map[string]NodeBuilder
}

// Loader loads flow definitions and creates executable flows.
type Loader struct {
	parser  *Parser
	factory NodeFactory
}

// NewLoader creates a new YAML flow loader.
func NewLoader() *Loader {
	return &Loader{
		parser:  NewParser(),
		factory: &defaultNodeFactory{registry: make(map[string]NodeBuilder)},
	}
}

// WithNodeFactory sets a custom node factory.
func (l *Loader) WithNodeFactory(factory NodeFactory) *Loader {
	l.factory = factory
	return l
}

// RegisterNodeType registers a builder for a node type.
func (l *Loader) RegisterNodeType(nodeType string, builder NodeBuilder) {
	if df, ok := l.factory.(*defaultNodeFactory); ok {
		df.registry[nodeType] = builder
	}
}

// LoadFile loads a flow from a YAML file.
func (l *Loader) LoadFile(filename string) (*loom.Flow, error) {
	def, err := l.parser.ParseFile(filename)
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}

	return l.LoadDefinition(def)
}

// LoadString loads a flow from a YAML string.
func (l *Loader) LoadString(yamlStr string) (*loom.Flow, error) {
	def, err := l.parser.ParseString(yamlStr)
	if err != nil {
		return nil, fmt.Errorf("parse string: %w", err)
	}

	return l.LoadDefinition(def)
}

// LoadDefinition builds a *loom.Flow from a parsed definition: every node
// is constructed via the factory, wired according to Connections, and the
// flow starts at Start. Flow-level Metadata is attached to the flow's own
// params under a "metadata" key, so nodes can read it back out of the
// params carried on ctx.
func (l *Loader) LoadDefinition(def *FlowDefinition) (*loom.Flow, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flow definition: %w", err)
	}

	nodes := make(map[string]loom.Node, len(def.Nodes))
	for i := range def.Nodes {
		nodeDef := def.Nodes[i]
		node, err := l.factory.CreateNode(&nodeDef)
		if err != nil {
			return nil, fmt.Errorf("create node %s: %w", nodeDef.Name, err)
		}
		nodes[nodeDef.Name] = node
	}

	for _, conn := range def.Connections {
		fromNode, ok := nodes[conn.From]
		if !ok {
			return nil, fmt.Errorf("connection from unknown node %q", conn.From)
		}
		toNode, ok := nodes[conn.To]
		if !ok {
			return nil, fmt.Errorf("connection to unknown node %q", conn.To)
		}

		action := conn.Action
		if action == "" {
			action = defaultAction
		}

		fromNode.Connect(action, toNode)
	}

	startNode, ok := nodes[def.Start]
	if !ok {
		return nil, fmt.Errorf("start node %s not found", def.Start)
	}

	opts := []loom.FlowOption{}
	if def.Metadata != nil {
		opts = append(opts, loom.WithParams(map[string]any{"metadata": def.Metadata}))
	}

	return loom.NewFlow(def.Name, startNode, opts...), nil
}

// CreateNode implements NodeFactory for defaultNodeFactory.
func (f *defaultNodeFactory) CreateNode(def *NodeDefinition) (loom.Node, error) {
	builder, exists := f.registry[def.Type]
	if !exists {
		return f.createGenericNode(def)
	}

	return builder(def)
}

// createGenericNode builds a node for a type the factory doesn't know,
// passing shared state's "input" value through unchanged while recording
// the node's declared config and type for later inspection, and honoring
// Retry/Timeout if configured.
func (f *defaultNodeFactory) createGenericNode(def *NodeDefinition) (loom.Node, error) {
	execFunc := func(_ context.Context, input any) (any, error) {
		return input, nil
	}

	if def.Timeout != "" {
		timeout, err := def.GetTimeout()
		if err != nil {
			return nil, fmt.Errorf("parse timeout: %w", err)
		}
		inner := execFunc
		execFunc = func(ctx context.Context, input any) (any, error) {
			timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type result struct {
				value any
				err   error
			}
			done := make(chan result, 1)
			go func() {
				v, err := inner(timeoutCtx, input)
				done <- result{v, err}
			}()

			select {
			case r := <-done:
				return r.value, r.err
			case <-timeoutCtx.Done():
				return nil, fmt.Errorf("node %s timed out after %v", def.Name, timeout)
			}
		}
	}

	opts := []loom.Option{
		loom.WithPrep(func(_ context.Context, shared *loom.SharedState) (any, error) {
			v, _ := shared.Get("input")
			return v, nil
		}),
		loom.WithExec(execFunc),
		loom.WithPost(func(_ context.Context, shared *loom.SharedState, _, execResult any) (string, error) {
			shared.Set("input", execResult)
			shared.Set(fmt.Sprintf("node:%s:config", def.Name), def.Config)
			shared.Set(fmt.Sprintf("node:%s:type", def.Name), def.Type)
			return defaultAction, nil
		}),
	}

	if def.Retry != nil {
		delay, err := def.Retry.GetRetryDelay()
		if err != nil {
			return nil, fmt.Errorf("parse retry delay: %w", err)
		}
		opts = append(opts, loom.WithRetry(def.Retry.MaxAttempts, delay))
	}

	return loom.NewNode(def.Name, opts...), nil
}
