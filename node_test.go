package loom

import (
	"context"
	"errors"
	"testing"
)

func TestNodeVisitDefaultAction(t *testing.T) {
	n := NewNode("echo", WithExec(func(_ context.Context, prep any) (any, error) {
		return prep, nil
	}))

	shared := NewSharedState()
	action, err := n.Visit(context.Background(), shared)
	if err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if action != "default" {
		t.Fatalf("action = %q, want %q", action, "default")
	}
}

func TestNodeConnectChaining(t *testing.T) {
	a := NewNode("a")
	b := NewNode("b")
	c := NewNode("c")

	result := a.Connect("ok", b).Connect("retry", c)
	if result != a {
		t.Fatalf("Connect should return the receiver for chaining")
	}

	if next, ok := a.Successor("ok"); !ok || next != Node(b) {
		t.Fatalf("successor for 'ok' = %v, %v", next, ok)
	}
	if next, ok := a.Successor("retry"); !ok || next != Node(c) {
		t.Fatalf("successor for 'retry' = %v, %v", next, ok)
	}
}

func TestNodeOnToBuilder(t *testing.T) {
	a := NewNode("a")
	b := NewNode("b")

	a.On("approved").To(b)

	next, ok := a.Successor("approved")
	if !ok || next != Node(b) {
		t.Fatalf("On().To() did not register successor")
	}
}

func TestNodeNextShorthandIsDefault(t *testing.T) {
	a := NewNode("a")
	b := NewNode("b")
	a.Next(b)

	next, ok := a.Successor("")
	if !ok || next != Node(b) {
		t.Fatalf("Next() should register under the default action")
	}
}

func TestSuccessorEmptyActionMapsToDefault(t *testing.T) {
	a := NewNode("a")
	b := NewNode("b")
	a.Connect("default", b)

	next, ok := a.Successor("")
	if !ok || next != Node(b) {
		t.Fatalf("empty action should resolve to the 'default' successor")
	}
}

func TestSuccessorMissingActionDoesNotFallBackToDefault(t *testing.T) {
	a := NewNode("a")
	b := NewNode("b")
	c := NewNode("c")
	a.Connect("default", b)
	a.Connect("retry", c)

	if _, ok := a.Successor("approved"); ok {
		t.Fatalf("a non-default, unmapped action must not resolve to the default successor")
	}
}

func TestNodeFallbackPropagatesByDefault(t *testing.T) {
	wantErr := errors.New("boom")
	n := NewNode("fails", WithExec(func(_ context.Context, _ any) (any, error) {
		return nil, wantErr
	}))

	_, err := n.Visit(context.Background(), NewSharedState())
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapping %v", err, wantErr)
	}
}

func TestNodeRunWarnsOnSuccessors(t *testing.T) {
	recorder := &recordingLogger{}
	a := NewNode("a", WithNodeLogger(recorder))
	b := NewNode("b")
	a.Next(b)

	if _, err := a.Run(context.Background(), NewSharedState()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(recorder.warnings) != 1 {
		t.Fatalf("expected one warning, got %d: %v", len(recorder.warnings), recorder.warnings)
	}
}

func TestCooperativeOnlyNodeRejectsSyncRun(t *testing.T) {
	n := NewNode("coop", WithCooperativeOnly())
	if _, err := n.Run(context.Background(), NewSharedState()); !errors.Is(err, ErrRequiresCooperativeRun) {
		t.Fatalf("err = %v, want %v", err, ErrRequiresCooperativeRun)
	}

	flow := NewFlow("f", n)
	if _, err := flow.RunCooperative(context.Background(), NewSharedState()); err != nil {
		t.Fatalf("RunCooperative: %v", err)
	}
}

// recordingLogger captures Warn calls for assertions without depending on
// an external assertion library, matching the teacher's own test style.
type recordingLogger struct {
	warnings [][]any
}

func (r *recordingLogger) Debug(context.Context, string, ...any) {}
func (r *recordingLogger) Info(context.Context, string, ...any)  {}
func (r *recordingLogger) Error(context.Context, string, ...any) {}
func (r *recordingLogger) Warn(_ context.Context, msg string, keysAndValues ...any) {
	r.warnings = append(r.warnings, append([]any{msg}, keysAndValues...))
}
