package builtin

import (
	"fmt"

	"github.com/loomkit/loom"
	"github.com/loomkit/loom/middleware"
	"github.com/loomkit/loom/yaml"
)

// NodeBuilder creates nodes and provides metadata.
type NodeBuilder interface {
	Metadata() NodeMetadata
	Build(def *yaml.NodeDefinition) (loom.Node, error)
}

// Registry manages all built-in nodes.
type Registry struct {
	builders map[string]NodeBuilder
}

// NewRegistry creates a new node registry.
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]NodeBuilder),
	}
}

// Register adds a node builder.
func (r *Registry) Register(builder NodeBuilder) {
	meta := builder.Metadata()
	r.builders[meta.Type] = builder
}

// Get returns a builder by type.
func (r *Registry) Get(nodeType string) (NodeBuilder, bool) {
	builder, exists := r.builders[nodeType]
	return builder, exists
}

// All returns all registered builders.
func (r *Registry) All() map[string]NodeBuilder {
	return r.builders
}

// RegisterAll registers all built-in nodes with a YAML loader.
func RegisterAll(loader *yaml.Loader, verbose bool) *Registry {
	registry := NewRegistry()

	// Core nodes
	registry.Register(&EchoNodeBuilder{Verbose: verbose})
	registry.Register(&DelayNodeBuilder{Verbose: verbose})
	registry.Register(&RouterNodeBuilder{Verbose: verbose})
	registry.Register(&ConditionalNodeBuilder{Verbose: verbose})

	// Data nodes
	registry.Register(&TransformNodeBuilder{Verbose: verbose})
	registry.Register(&TemplateNodeBuilder{Verbose: verbose})
	registry.Register(&JSONPathNodeBuilder{Verbose: verbose})
	registry.Register(&ValidateNodeBuilder{Verbose: verbose})
	registry.Register(&AggregateNodeBuilder{Verbose: verbose})

	// I/O nodes
	registry.Register(&HTTPNodeBuilder{Verbose: verbose})
	registry.Register(&FileNodeBuilder{Verbose: verbose})
	registry.Register(&ExecNodeBuilder{Verbose: verbose})

	// Flow nodes
	registry.Register(&ParallelNodeBuilder{Verbose: verbose})
	registry.Register(&CacheNodeBuilder{Verbose: verbose})
	registry.Register(&CircuitBreakerNodeBuilder{Verbose: verbose})
	registry.Register(&FallbackChainNodeBuilder{Verbose: verbose})

	for _, builder := range registry.All() {
		meta := builder.Metadata()
		wrappedBuilder := createValidatingBuilder(builder, verbose)
		loader.RegisterNodeType(meta.Type, wrappedBuilder)
	}

	return registry
}

// createValidatingBuilder wraps a builder with config validation and the
// observability middleware every loaded flow node runs through: Timing
// unconditionally (it only ever writes node:<name>:* bookkeeping keys into
// shared state, so it's free to leave on), Logging only when verbose (it's
// the noisy one — a Debug/Info/Error line per node visit).
func createValidatingBuilder(builder NodeBuilder, verbose bool) func(def *yaml.NodeDefinition) (loom.Node, error) {
	return func(def *yaml.NodeDefinition) (loom.Node, error) {
		meta := builder.Metadata()
		if err := ValidateNodeConfig(&meta, def.Config); err != nil {
			return nil, fmt.Errorf("config validation failed for node '%s': %w", def.Name, err)
		}

		node, err := builder.Build(def)
		if err != nil {
			return nil, err
		}

		mws := []middleware.Middleware{middleware.Timing()}
		if verbose {
			mws = append(mws, middleware.Logging(loom.NewStdLogger()))
		}
		return middleware.Apply(node, mws...), nil
	}
}
