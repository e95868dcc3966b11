// Package middleware provides node enhancement patterns for cross-cutting
// concerns like logging, metrics, retries, and circuit breakers.
package middleware

import (
	"context"

	"github.com/loomkit/loom"
)

// Middleware wraps a node to modify its behavior without changing the
// graph it's wired into.
type Middleware func(loom.Node) loom.Node

// middlewareNode wraps a node, replacing its Visit with visit while
// delegating everything else (Name, Connect, Successors, ...) to the
// wrapped node.
//
// The teacher's middlewareNode re-implements Prep/Exec/Post separately
// because pocket.Node exposes those as three interface methods; loom.Node
// exposes a single Visit, so there is exactly one phase left to wrap.
// Grounded on agentstation-pocket/middleware/middleware.go's decorator
// shape, generalized to the Visit-only contract.
type middlewareNode struct {
	loom.Node
	name  string
	visit func(ctx context.Context, shared *loom.SharedState) (string, error)
}

func (m *middlewareNode) Name() string { return m.name }

func (m *middlewareNode) Visit(ctx context.Context, shared *loom.SharedState) (string, error) {
	return m.visit(ctx, shared)
}

// Connect and Next are re-declared so that chaining off a wrapped node
// registers successors on the underlying node (the one actually traversed
// by a Flow) while still returning the wrapper for fluent use.
//
// On is the one exception, left delegating to the inner node: loom.Edge's
// fields are unexported and only constructible from within package loom,
// so a wrapper can't build an Edge that points back at itself. An
// n.On(action).To(next) call therefore returns the inner node rather than
// the wrapper — successor state is still shared correctly since both
// point at the same underlying successor map, but the chained return
// value of that one call is the inner node, not the decorator.
func (m *middlewareNode) Connect(action string, next loom.Node) loom.Node {
	m.Node.Connect(action, next)
	return m
}

func (m *middlewareNode) Next(next loom.Node) loom.Node {
	return m.Connect("default", next)
}

func (m *middlewareNode) On(action string) *loom.Edge {
	return m.Node.On(action)
}

// Chain combines multiple middlewares into a single middleware, applied in
// reverse order so the first middleware listed ends up as the outermost
// wrapper (the one whose Visit override runs first).
func Chain(middlewares ...Middleware) Middleware {
	return func(node loom.Node) loom.Node {
		for i := len(middlewares) - 1; i >= 0; i-- {
			node = middlewares[i](node)
		}
		return node
	}
}

// Apply wraps node with each middleware in listed order.
func Apply(node loom.Node, middlewares ...Middleware) loom.Node {
	for _, mw := range middlewares {
		node = mw(node)
	}
	return node
}
