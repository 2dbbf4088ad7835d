package tracer

import (
	"testing"
	"time"

	"github.com/cortexplane/control-plane/internal/clockutil"
)

func TestNewRootMatchesIDShapes(t *testing.T) {
	clock := clockutil.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx, err := NewRoot(clock, "router", "select")
	if err != nil {
		t.Fatal(err)
	}
	if !ValidCorrelationID(ctx.CorrelationID) {
		t.Fatalf("correlation id %q does not match expected shape", ctx.CorrelationID)
	}
	if !ValidSpanID(ctx.SpanID) {
		t.Fatalf("span id %q does not match expected shape", ctx.SpanID)
	}
	if ctx.ParentSpanID != "" {
		t.Fatalf("root context should have no parent span")
	}
}

func TestChildReferencesParentSpan(t *testing.T) {
	clock := clockutil.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	root, err := NewRoot(clock, "router", "select")
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	child, err := root.Child(clock, "allocate")
	if err != nil {
		t.Fatal(err)
	}
	if child.ParentSpanID != root.SpanID {
		t.Fatalf("child parent span = %q, want %q", child.ParentSpanID, root.SpanID)
	}
	if child.CorrelationID != root.CorrelationID {
		t.Fatal("child must keep the same correlation id")
	}
}

func TestEnvRoundTrip(t *testing.T) {
	ctx := Context{CorrelationID: "corr-1-abcdef-router", SpanID: "span-1-abcd-select", ParentSpanID: "span-0-ffff-root"}
	env := ctx.AsEnv()
	got := FromEnv(func(k string) string { return env[k] })
	if got != ctx {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, ctx)
	}
}
