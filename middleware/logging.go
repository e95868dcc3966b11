package middleware

import (
	"context"
	"time"

	"github.com/loomkit/loom"
)

// Logging adds structured logging around a node's Visit.
func Logging(logger loom.Logger) Middleware {
	return func(node loom.Node) loom.Node {
		return &middlewareNode{
			Node: node,
			name: node.Name(),
			visit: func(ctx context.Context, shared *loom.SharedState) (string, error) {
				logger.Debug(ctx, "node visit starting", "node", node.Name())
				start := time.Now()

				action, err := node.Visit(ctx, shared)

				if err != nil {
					logger.Error(ctx, "node visit failed",
						"node", node.Name(),
						"duration", time.Since(start),
						"error", err)
					return action, err
				}

				logger.Info(ctx, "node visit completed",
					"node", node.Name(),
					"duration", time.Since(start),
					"action", action)
				return action, nil
			},
		}
	}
}
