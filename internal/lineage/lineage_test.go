package lineage

import (
	"testing"
	"time"

	"github.com/cortexplane/control-plane/internal/clockutil"
	"github.com/cortexplane/control-plane/internal/store"
	"github.com/cortexplane/control-plane/internal/tracer"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	st, err := store.New(t.TempDir(), store.EnvDev)
	if err != nil {
		t.Fatal(err)
	}
	ix, err := store.OpenIndex(t.TempDir() + "/idx.sqlite")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ix.Close() })
	clock := clockutil.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewRecorder(st, ix, clock)
}

func TestAppendChainsParentLineageID(t *testing.T) {
	r := newTestRecorder(t)
	actor := Actor{Type: "component", ID: "router"}

	first, err := r.Append("ln-1", "task-1", TaskCreated, actor, nil, tracer.Context{})
	if err != nil {
		t.Fatal(err)
	}
	if first.ParentLineageID != "" {
		t.Fatalf("first event should have no parent, got %q", first.ParentLineageID)
	}

	second, err := r.Append("ln-2", "task-1", TaskAssigned, actor, nil, tracer.Context{})
	if err != nil {
		t.Fatal(err)
	}
	if second.ParentLineageID != "ln-1" {
		t.Fatalf("expected parent ln-1, got %q", second.ParentLineageID)
	}
}

func TestQueryByTaskReturnsOnlyThatTask(t *testing.T) {
	r := newTestRecorder(t)
	actor := Actor{Type: "component", ID: "router"}
	r.Append("ln-1", "task-1", TaskCreated, actor, nil, tracer.Context{})
	r.Append("ln-2", "task-2", TaskCreated, actor, nil, tracer.Context{})
	r.Append("ln-3", "task-1", TaskAssigned, actor, nil, tracer.Context{})

	events, err := r.QueryByTask("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for task-1, got %d", len(events))
	}
}

func TestHappyPathLineageOrder(t *testing.T) {
	r := newTestRecorder(t)
	actor := Actor{Type: "component", ID: "router"}
	r.Append("ln-1", "t1", TaskCreated, actor, nil, tracer.Context{})
	r.Append("ln-2", "t1", TaskAssigned, actor, map[string]any{"master": "security-master"}, tracer.Context{})

	events, err := r.QueryByTask("t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].EventType != TaskCreated || events[1].EventType != TaskAssigned {
		t.Fatalf("expected task_created before task_assigned, got %+v", events)
	}
}

func TestAggregateStats(t *testing.T) {
	r := newTestRecorder(t)
	actor := Actor{Type: "component", ID: "router"}
	r.Append("ln-1", "t1", TaskCreated, actor, nil, tracer.Context{})
	r.Append("ln-2", "t2", TaskCreated, actor, nil, tracer.Context{})

	stats, err := r.AggregateStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalEvents != 2 || stats.ByType["task_created"] != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
