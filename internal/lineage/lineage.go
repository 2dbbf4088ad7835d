// Package lineage appends the ordered lifecycle events tying every other
// subsystem's actions back to one task, and exposes the read-only query
// surface spec §4.10 defines.
package lineage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cortexplane/control-plane/internal/clockutil"
	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/store"
	"github.com/cortexplane/control-plane/internal/tracer"
)

// EventType enumerates the lifecycle events spec §3 lists for LineageEvent.
type EventType string

const (
	TaskCreated       EventType = "task_created"
	TaskAssigned      EventType = "task_assigned"
	TaskStarted       EventType = "task_started"
	WorkerSpawned     EventType = "worker_spawned"
	WorkerStarted     EventType = "worker_started"
	WorkerProgress    EventType = "worker_progress"
	WorkerCompleted   EventType = "worker_completed"
	WorkerFailed      EventType = "worker_failed"
	TaskCompleted     EventType = "task_completed"
	TaskFailed        EventType = "task_failed"
	TaskBlocked       EventType = "task_blocked"
	TaskUnblocked     EventType = "task_unblocked"
	TaskReassigned    EventType = "task_reassigned"
	TaskEscalated     EventType = "task_escalated"
	TaskCancelled     EventType = "task_cancelled"
	HandoffCreated    EventType = "handoff_created"
	HandoffAccepted   EventType = "handoff_accepted"
	HandoffCompleted  EventType = "handoff_completed"
)

// Actor identifies who performed an event.
type Actor struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Principal string `json:"principal,omitempty"`
}

// Event is one append-only lineage record.
type Event struct {
	LineageID       string         `json:"lineage_id"`
	TaskID          string         `json:"task_id"`
	EventType       EventType      `json:"event_type"`
	Timestamp       time.Time      `json:"timestamp"`
	Actor           Actor          `json:"actor"`
	EventData       map[string]any `json:"event_data,omitempty"`
	ParentLineageID string         `json:"parent_lineage_id,omitempty"`
	TraceContext    tracer.Context `json:"trace_context"`
	Version         int            `json:"version"`
}

// Recorder appends lineage events to the per-day and global JSONL streams
// and indexes them into the store's SQLite index for query.
type Recorder struct {
	st    *store.Store
	ix    *store.Index
	clock clockutil.Clock

	// lastByTask tracks, in-process, the most recent lineage_id recorded
	// per task_id so Append can fill parent_lineage_id without rescanning
	// the global stream.
	lastByTask map[string]string
}

func NewRecorder(st *store.Store, ix *store.Index, clock clockutil.Clock) *Recorder {
	return &Recorder{st: st, ix: ix, clock: clock, lastByTask: make(map[string]string)}
}

func (r *Recorder) globalPath() string {
	return r.st.EnvPath(store.DirLineage, "task-lineage.jsonl")
}

func (r *Recorder) dailyPath(day time.Time) string {
	return r.st.EnvPath(store.DirLineage, fmt.Sprintf("lineage-%s.jsonl", day.Format("2006-01-02")))
}

// Append writes one event, chaining parent_lineage_id to the task's
// previous event: the one this Recorder appended last, or else the task's
// last event in the global stream (a fresh Recorder per CLI process).
func (r *Recorder) Append(lineageID, taskID string, eventType EventType, actor Actor, data map[string]any, trace tracer.Context) (Event, error) {
	if lineageID == "" {
		return Event{}, cortexerr.InvalidInput("lineage: lineage_id required", nil)
	}
	if taskID == "" {
		return Event{}, cortexerr.InvalidInput("lineage: task_id required", nil)
	}
	parent, seen := r.lastByTask[taskID]
	if !seen {
		err := store.ReadJSONL(r.globalPath(), func(line []byte) error {
			var prev Event
			if json.Unmarshal(line, &prev) == nil && prev.TaskID == taskID {
				parent = prev.LineageID
			}
			return nil
		})
		if err != nil {
			return Event{}, err
		}
	}
	ev := Event{
		LineageID:       lineageID,
		TaskID:          taskID,
		EventType:       eventType,
		Timestamp:       r.clock.Now(),
		Actor:           actor,
		EventData:       data,
		ParentLineageID: parent,
		TraceContext:    trace,
		Version:         1,
	}

	if err := store.AppendJSONL(r.globalPath(), ev); err != nil {
		return Event{}, err
	}
	if err := store.AppendJSONL(r.dailyPath(ev.Timestamp), ev); err != nil {
		return Event{}, err
	}
	if r.ix != nil {
		payload, _ := json.Marshal(ev)
		if err := r.ix.IndexLineageEvent(ev.LineageID, ev.TaskID, string(ev.EventType), actor.ID, actor.Type, ev.ParentLineageID, trace.CorrelationID, trace.SpanID, ev.Timestamp.Unix(), string(payload)); err != nil {
			return Event{}, err
		}
	}
	r.lastByTask[taskID] = lineageID
	return ev, nil
}

// QueryByTask returns every lineage event for taskID, scanning the global
// JSONL stream directly so query results never depend on the secondary
// index being up to date.
func (r *Recorder) QueryByTask(taskID string) ([]Event, error) {
	var out []Event
	err := store.ReadJSONL(r.globalPath(), func(line []byte) error {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		if ev.TaskID == taskID {
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

// QueryByActor returns every lineage event attributed to actorID.
func (r *Recorder) QueryByActor(actorID string) ([]Event, error) {
	var out []Event
	err := store.ReadJSONL(r.globalPath(), func(line []byte) error {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		if ev.Actor.ID == actorID {
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

// QueryByType returns every lineage event of the given type.
func (r *Recorder) QueryByType(eventType EventType) ([]Event, error) {
	var out []Event
	err := store.ReadJSONL(r.globalPath(), func(line []byte) error {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		if ev.EventType == eventType {
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

// Stats is the aggregate summary the CLI/API expose.
type Stats struct {
	TotalEvents int            `json:"total_events"`
	ByType      map[string]int `json:"by_type"`
	ByTask      map[string]int `json:"by_task"`
}

// AggregateStats scans the global stream once and tallies counts.
func (r *Recorder) AggregateStats() (Stats, error) {
	stats := Stats{ByType: map[string]int{}, ByTask: map[string]int{}}
	err := store.ReadJSONL(r.globalPath(), func(line []byte) error {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		stats.TotalEvents++
		stats.ByType[string(ev.EventType)]++
		stats.ByTask[ev.TaskID]++
		return nil
	})
	return stats, err
}
