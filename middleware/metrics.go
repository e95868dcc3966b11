package middleware

import (
	"context"

	"github.com/loomkit/loom"
)

// MetricsCollector collects node visit metrics.
type MetricsCollector interface {
	RecordPhaseStart(nodeName, phase string)
	RecordPhaseEnd(nodeName, phase string, err error)
	RecordRouting(nodeName, next string)
}

// Metrics adds visit-level metrics collection to a node.
func Metrics(collector MetricsCollector) Middleware {
	return func(node loom.Node) loom.Node {
		return &middlewareNode{
			Node: node,
			name: node.Name(),
			visit: func(ctx context.Context, shared *loom.SharedState) (string, error) {
				collector.RecordPhaseStart(node.Name(), "visit")
				action, err := node.Visit(ctx, shared)
				collector.RecordPhaseEnd(node.Name(), "visit", err)
				if err == nil {
					collector.RecordRouting(node.Name(), action)
				}
				return action, err
			},
		}
	}
}
