package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loomkit/loom"
)

// Retry wraps Visit with its own exponential backoff retry loop, on top of
// whatever retry policy the node itself already carries. Useful for
// retrying an entire node (including Post and its shared-state writes),
// where loom.Option's WithRetry only retries Exec.
func Retry(maxAttempts int, backoff time.Duration) Middleware {
	return func(node loom.Node) loom.Node {
		return &middlewareNode{
			Node: node,
			name: node.Name(),
			visit: func(ctx context.Context, shared *loom.SharedState) (string, error) {
				var lastErr error
				for attempt := 0; attempt < maxAttempts; attempt++ {
					if attempt > 0 {
						select {
						case <-ctx.Done():
							return "", ctx.Err()
						case <-time.After(backoff * time.Duration(attempt)):
						}
					}

					action, err := node.Visit(ctx, shared)
					if err == nil {
						return action, nil
					}
					lastErr = err
				}
				return "", fmt.Errorf("node %s failed after %d attempts: %w", node.Name(), maxAttempts, lastErr)
			},
		}
	}
}

// Timeout bounds a node's Visit to duration.
func Timeout(duration time.Duration) Middleware {
	return func(node loom.Node) loom.Node {
		return &middlewareNode{
			Node: node,
			name: node.Name(),
			visit: func(ctx context.Context, shared *loom.SharedState) (string, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				type result struct {
					action string
					err    error
				}
				done := make(chan result, 1)

				go func() {
					action, err := node.Visit(timeoutCtx, shared)
					done <- result{action, err}
				}()

				select {
				case r := <-done:
					return r.action, r.err
				case <-timeoutCtx.Done():
					return "", fmt.Errorf("node %s timed out after %v", node.Name(), duration)
				}
			},
		}
	}
}

// RateLimit throttles a node's Visit calls to rps per second, with burst
// capacity, using a token bucket.
func RateLimit(rps, burst int) Middleware {
	tokens := make(chan struct{}, burst)
	for i := 0; i < burst; i++ {
		tokens <- struct{}{}
	}

	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(rps))
		defer ticker.Stop()
		for range ticker.C {
			select {
			case tokens <- struct{}{}:
			default:
			}
		}
	}()

	return func(node loom.Node) loom.Node {
		return &middlewareNode{
			Node: node,
			name: node.Name(),
			visit: func(ctx context.Context, shared *loom.SharedState) (string, error) {
				select {
				case <-tokens:
					action, err := node.Visit(ctx, shared)
					select {
					case tokens <- struct{}{}:
					default:
					}
					return action, err
				case <-ctx.Done():
					return "", ctx.Err()
				}
			},
		}
	}
}

// CircuitBreaker trips open after threshold consecutive failures and stays
// open for timeout before allowing a single half-open probe through.
//
// This is a coarser, generic sibling of fallback.CircuitBreakerPolicy:
// that one wraps a single ExecFunc at node-construction time, this one
// wraps any already-built Node (or *loom.Flow, since Flow implements
// Node) from the outside, with no access to the wrapped unit's internals.
func CircuitBreaker(threshold int, timeout time.Duration) Middleware {
	return func(node loom.Node) loom.Node {
		var mu sync.Mutex
		failures := 0
		lastFailure := time.Time{}
		state := "closed"

		return &middlewareNode{
			Node: node,
			name: node.Name(),
			visit: func(ctx context.Context, shared *loom.SharedState) (string, error) {
				mu.Lock()
				if state == "open" {
					if time.Since(lastFailure) > timeout {
						state = "half-open"
					} else {
						mu.Unlock()
						return "", fmt.Errorf("circuit breaker is open for node %s", node.Name())
					}
				}
				mu.Unlock()

				action, err := node.Visit(ctx, shared)

				mu.Lock()
				defer mu.Unlock()

				if err != nil {
					failures++
					lastFailure = time.Now()
					if failures >= threshold {
						state = "open"
					}
					return "", err
				}

				if state == "half-open" {
					state = "closed"
				}
				failures = 0
				return action, nil
			},
		}
	}
}

// Validation checks shared's "input" value before and/or after Visit,
// using the builtin-node convention that a node's working value lives
// under that key.
func Validation(validateInput, validateOutput func(any) error) Middleware {
	return func(node loom.Node) loom.Node {
		return &middlewareNode{
			Node: node,
			name: node.Name(),
			visit: func(ctx context.Context, shared *loom.SharedState) (string, error) {
				if validateInput != nil {
					if v, ok := shared.Get("input"); ok {
						if err := validateInput(v); err != nil {
							return "", fmt.Errorf("input validation failed: %w", err)
						}
					}
				}

				action, err := node.Visit(ctx, shared)
				if err != nil {
					return action, err
				}

				if validateOutput != nil {
					if v, ok := shared.Get("input"); ok {
						if err := validateOutput(v); err != nil {
							return "", fmt.Errorf("output validation failed: %w", err)
						}
					}
				}
				return action, nil
			},
		}
	}
}

// Transform rewrites shared's "input" value before and/or after Visit.
func Transform(transformInput, transformOutput func(any) any) Middleware {
	return func(node loom.Node) loom.Node {
		return &middlewareNode{
			Node: node,
			name: node.Name(),
			visit: func(ctx context.Context, shared *loom.SharedState) (string, error) {
				if transformInput != nil {
					if v, ok := shared.Get("input"); ok {
						shared.Set("input", transformInput(v))
					}
				}

				action, err := node.Visit(ctx, shared)
				if err != nil {
					return action, err
				}

				if transformOutput != nil {
					if v, ok := shared.Get("input"); ok {
						shared.Set("input", transformOutput(v))
					}
				}
				return action, nil
			},
		}
	}
}

// ErrorHandler gives handler a chance to recover from a Visit error.
// Returning nil from handler treats the error as handled and Visit
// reports the "default" action; returning a non-nil error (whether
// handler's own or the original, passed through) propagates it.
func ErrorHandler(handler func(error) error) Middleware {
	return func(node loom.Node) loom.Node {
		return &middlewareNode{
			Node: node,
			name: node.Name(),
			visit: func(ctx context.Context, shared *loom.SharedState) (string, error) {
				action, err := node.Visit(ctx, shared)
				if err == nil {
					return action, nil
				}
				if handledErr := handler(err); handledErr != nil {
					return "", handledErr
				}
				return "default", nil
			},
		}
	}
}
