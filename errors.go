package loom

import "errors"

// Common errors of the kernel.
var (
	// ErrNoStartNode is returned when a flow has no start node defined.
	ErrNoStartNode = errors.New("loom: no start node defined")

	// ErrNodeNotFound reports a reference to a node that doesn't exist.
	// No function in package loom returns it.
	ErrNodeNotFound = errors.New("loom: node not found")

	// ErrInvalidAction reports an action that isn't a usable successor key.
	// No function in package loom returns it.
	ErrInvalidAction = errors.New("loom: invalid action")

	// ErrRequiresCooperativeRun is returned when a node marked
	// CooperativeOnly is visited through a synchronous Run entry point
	// instead of RunCooperative/RunParallel.
	ErrRequiresCooperativeRun = errors.New("loom: node requires a cooperative run")

	// ErrBatchPrepType is returned when a BatchNode's Prep phase does not
	// return a []any.
	ErrBatchPrepType = errors.New("loom: batch node prep must return []any")
)
