package compose

import (
	"context"
	"testing"

	"github.com/loomkit/loom"
)

func appendStep(name, suffix string) *loom.Flow {
	node := loom.NewNode(name,
		loom.WithPrep(func(_ context.Context, shared *loom.SharedState) (any, error) {
			v, _ := shared.Get("input")
			return v, nil
		}),
		loom.WithExec(func(_ context.Context, prepResult any) (any, error) {
			s, _ := prepResult.(string)
			return s + suffix, nil
		}),
		loom.WithPost(func(_ context.Context, shared *loom.SharedState, _, execResult any) (string, error) {
			shared.Set("input", execResult)
			return "default", nil
		}),
	)
	return loom.NewFlow(name+"-flow", node)
}

func TestAsNodeScopesInputAndOutputKeys(t *testing.T) {
	flow := appendStep("step", "-done")
	node := AsNode(flow, "scoped", "in_key", "out_key")

	shared := loom.NewSharedState()
	shared.Set("in_key", "start")

	if _, err := node.Visit(context.Background(), shared); err != nil {
		t.Fatalf("Visit: %v", err)
	}

	out, _ := shared.Get("out_key")
	if out != "start-done" {
		t.Fatalf("out_key = %v, want %q", out, "start-done")
	}
}

func TestAsNodeErrorsWithoutInputKey(t *testing.T) {
	flow := appendStep("step", "-done")
	node := AsNode(flow, "scoped", "missing_key", "")

	if _, err := node.Visit(context.Background(), loom.NewSharedState()); err == nil {
		t.Fatal("expected error when input key is absent from shared state")
	}
}

func TestSequentialFlowsChainsInOrder(t *testing.T) {
	combined, err := SequentialFlows("combined",
		appendStep("a", "-a"),
		appendStep("b", "-b"),
		appendStep("c", "-c"),
	)
	if err != nil {
		t.Fatalf("SequentialFlows: %v", err)
	}

	shared := loom.NewSharedState()
	shared.Set("input", "start")

	if _, err := combined.Run(context.Background(), shared); err != nil {
		t.Fatalf("Run: %v", err)
	}

	result, _ := shared.Get("input")
	if result != "start-a-b-c" {
		t.Fatalf("result = %v, want %q", result, "start-a-b-c")
	}
}

func TestSequentialFlowsRequiresAtLeastOne(t *testing.T) {
	if _, err := SequentialFlows("empty"); err == nil {
		t.Fatal("expected error for zero flows")
	}
}

func TestParallelFlowsIsolatesSiblingState(t *testing.T) {
	shared := loom.NewSharedState()
	shared.Set("input", "seed")

	results, err := ParallelFlows(context.Background(), shared,
		appendStep("x", "-x"),
		appendStep("y", "-y"),
	)
	if err != nil {
		t.Fatalf("ParallelFlows: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	xResult, _ := results[0].Get("input")
	yResult, _ := results[1].Get("input")
	if xResult != "seed-x" {
		t.Fatalf("results[0][input] = %v, want %q", xResult, "seed-x")
	}
	if yResult != "seed-y" {
		t.Fatalf("results[1][input] = %v, want %q", yResult, "seed-y")
	}

	// The original shared state must be untouched by either sibling.
	original, _ := shared.Get("input")
	if original != "seed" {
		t.Fatalf("original shared state was mutated: %v", original)
	}
}

func TestBuilderConnectsNamedFlows(t *testing.T) {
	b := NewBuilder("built")
	b.AddFlow("first", appendStep("first", "-1"))
	b.AddFlow("second", appendStep("second", "-2"))
	b.Connect("first", "default", "second")

	flow, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	shared := loom.NewSharedState()
	shared.Set("input", "go")

	if _, err := flow.Run(context.Background(), shared); err != nil {
		t.Fatalf("Run: %v", err)
	}

	result, _ := shared.Get("input")
	if result != "go-1-2" {
		t.Fatalf("result = %v, want %q", result, "go-1-2")
	}
}

func TestBuilderReportsUnknownConnectionTargets(t *testing.T) {
	b := NewBuilder("broken")
	b.AddFlow("only", appendStep("only", "-1"))
	b.Connect("only", "default", "missing")

	if _, err := b.Build(); err == nil {
		t.Fatal("expected error for connection to an unknown flow")
	}
}
