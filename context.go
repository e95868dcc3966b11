package loom

import "context"

// ctxKey namespaces the values this package stashes on a context, keeping
// per-visit state (params, retry attempt, cooperative mode) off the Node and
// Flow values themselves so a single *FuncNode can be visited concurrently by
// unrelated flows without copying it per visit.
type ctxKey int

const (
	ctxKeyParams ctxKey = iota
	ctxKeyAttempt
	ctxKeyCooperative
)

// withParams attaches the merged per-visit params map to ctx.
func withParams(ctx context.Context, params map[string]any) context.Context {
	return context.WithValue(ctx, ctxKeyParams, params)
}

// ParamsFromContext returns the params the current flow traversal was
// invoked with, merged per §9's batch-wins-on-conflict rule. Returns nil if
// no flow has attached params (e.g. a node run standalone via Node.Run).
func ParamsFromContext(ctx context.Context) map[string]any {
	params, _ := ctx.Value(ctxKeyParams).(map[string]any)
	return params
}

// withAttempt attaches the zero-based retry attempt index to ctx.
func withAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, ctxKeyAttempt, attempt)
}

// AttemptFromContext returns the zero-based index of the current retry
// attempt, and whether the context carries one at all (it does for any
// Exec call made through the retry engine).
func AttemptFromContext(ctx context.Context) (int, bool) {
	attempt, ok := ctx.Value(ctxKeyAttempt).(int)
	return attempt, ok
}

// withCooperative marks ctx as belonging to a cooperative traversal: retry
// delays become cancelable selects instead of blocking sleeps, and
// CooperativeOnly nodes become runnable.
func withCooperative(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyCooperative, true)
}

// isCooperative reports whether ctx was marked by withCooperative.
func isCooperative(ctx context.Context) bool {
	cooperative, _ := ctx.Value(ctxKeyCooperative).(bool)
	return cooperative
}

// mergeParams merges override on top of base, override winning on key
// conflict. Either map may be nil.
func mergeParams(base, override map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}
