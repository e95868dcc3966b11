package loom

import "time"

// Option configures a *FuncNode at construction time.
type Option func(*FuncNode)

// WithPrep sets the Prep phase.
func WithPrep(fn PrepFunc) Option {
	return func(n *FuncNode) { n.prep = fn }
}

// WithExec sets the Exec phase — the phase the retry engine re-runs on
// failure, so it should be safe to call more than once for the same input.
func WithExec(fn ExecFunc) Option {
	return func(n *FuncNode) { n.exec = fn }
}

// WithPost sets the Post phase, which writes shared state and chooses the
// next action.
func WithPost(fn PostFunc) Option {
	return func(n *FuncNode) { n.post = fn }
}

// WithFallback sets the function that runs once every retry attempt of
// Exec has failed. The default re-raises the last error unchanged.
func WithFallback(fn FallbackFunc) Option {
	return func(n *FuncNode) { n.fallback = fn }
}

// WithRetry sets the maximum number of Exec attempts (1 means no retry)
// and the delay between attempts.
func WithRetry(maxAttempts int, delay time.Duration) Option {
	return func(n *FuncNode) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		n.maxRetries = maxAttempts
		n.retryDelay = delay
	}
}

// WithCooperativeOnly marks the node as runnable only through a
// cooperative traversal (RunCooperative/RunParallel). A synchronous Run
// returns ErrRequiresCooperativeRun instead of executing it, mirroring
// pockerflow-lixx's AsyncNode.run_async requirement.
func WithCooperativeOnly() Option {
	return func(n *FuncNode) { n.cooperativeOnly = true }
}

// WithNodeLogger overrides the logger used for this node's overwrite
// warnings. Flow-level diagnostics use the flow's own WithLogger instead.
func WithNodeLogger(logger Logger) Option {
	return func(n *FuncNode) { n.SetLogger(logger) }
}
