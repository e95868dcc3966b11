package loom

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestParallelBatchFlowRunsAllConcurrently(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []any
	)
	node := NewNode("worker", WithPrep(func(ctx context.Context, _ *SharedState) (any, error) {
		params := ParamsFromContext(ctx)
		mu.Lock()
		seen = append(seen, params["id"])
		mu.Unlock()
		return nil, nil
	}))

	prep := func(context.Context, *SharedState) ([]map[string]any, error) {
		batches := make([]map[string]any, 8)
		for i := range batches {
			batches[i] = map[string]any{"id": i}
		}
		return batches, nil
	}

	pf := NewParallelBatchFlow("parallel", node, prep)
	if _, err := pf.RunParallel(context.Background(), NewSharedState()); err != nil {
		t.Fatalf("RunParallel: %v", err)
	}

	if len(seen) != 8 {
		t.Fatalf("len(seen) = %d, want 8", len(seen))
	}
}

func TestParallelBatchFlowAwaitsAllBeforeReportingFailure(t *testing.T) {
	var completed int32
	var mu sync.Mutex
	gate := make(chan struct{})

	node := NewNode("worker", WithExec(func(ctx context.Context, _ any) (any, error) {
		params := ParamsFromContext(ctx)
		if params["id"] == 0 {
			return nil, errors.New("first one fails")
		}
		<-gate
		mu.Lock()
		completed++
		mu.Unlock()
		return nil, nil
	}))

	prep := func(context.Context, *SharedState) ([]map[string]any, error) {
		return []map[string]any{{"id": 0}, {"id": 1}, {"id": 2}}, nil
	}

	pf := NewParallelBatchFlow("parallel", node, prep)

	go func() {
		close(gate)
	}()

	if _, err := pf.RunParallel(context.Background(), NewSharedState()); err == nil {
		t.Fatalf("expected an error from the failing sibling")
	}
	mu.Lock()
	defer mu.Unlock()
	if completed != 2 {
		t.Fatalf("completed = %d, want 2 (siblings must finish before the failure is reported)", completed)
	}
}

func TestParallelBatchFlowCooperativeNodesRunnable(t *testing.T) {
	node := NewNode("coop", WithCooperativeOnly())

	prep := func(context.Context, *SharedState) ([]map[string]any, error) {
		return []map[string]any{{"id": 0}}, nil
	}

	pf := NewParallelBatchFlow("parallel", node, prep)
	if _, err := pf.RunParallel(context.Background(), NewSharedState()); err != nil {
		t.Fatalf("RunParallel: %v", err)
	}
}
