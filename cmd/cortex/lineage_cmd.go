package main

import (
	"encoding/json"
	"os"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/lineage"
	"github.com/cortexplane/control-plane/internal/store"
	"github.com/cortexplane/control-plane/internal/tracer"
)

func openIndex(st *store.Store) (*store.Index, error) {
	return store.OpenIndex(st.EnvPath("index.db"))
}

func newRecorder(rt *runtimeEnv) (*lineage.Recorder, func(), error) {
	ix, err := openIndex(rt.store)
	if err != nil {
		return nil, nil, err
	}
	return lineage.NewRecorder(rt.store, ix, rt.clock), func() { ix.Close() }, nil
}

// cmdInitTaskTrace implements `cortex init-task-trace` (spec §4.10): mints
// a root trace context for a task and appends its task_created event.
func cmdInitTaskTrace(args []string) error {
	fs, configPath, dev := newFlagSet("init-task-trace")
	taskID := fs.String("task-id", "", "task id (required)")
	lineageID := fs.String("lineage-id", "", "lineage id (generated if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskID == "" {
		return cortexerr.InvalidInput("init-task-trace: --task-id is required", nil)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	trace, err := tracer.NewRoot(rt.clock, "cli", "init-task-trace")
	if err != nil {
		return err
	}

	id := *lineageID
	if id == "" {
		id = "lin-" + *taskID + "-" + rt.clock.Now().Format("20060102T150405.000000000")
	}

	rec, closeIdx, err := newRecorder(rt)
	if err != nil {
		return err
	}
	defer closeIdx()

	ev, err := rec.Append(id, *taskID, lineage.TaskCreated, lineage.Actor{Type: "cli", ID: principal(), Principal: principal()}, nil, trace)
	if err != nil {
		return err
	}
	rt.logger.Info("task trace initialized", "task_id", *taskID, "correlation_id", trace.CorrelationID)
	return json.NewEncoder(os.Stdout).Encode(ev)
}

// cmdEmitEvent implements `cortex emit-event` (spec §4.10): appends one
// lineage event to an existing task's trace, chaining parent_lineage_id
// automatically.
func cmdEmitEvent(args []string) error {
	fs, configPath, dev := newFlagSet("emit-event")
	taskID := fs.String("task-id", "", "task id (required)")
	lineageID := fs.String("lineage-id", "", "lineage id (generated if omitted)")
	eventType := fs.String("event-type", "", "lineage event type (required)")
	actorType := fs.String("actor-type", "cli", "actor type")
	actorID := fs.String("actor-id", "", "actor id (defaults to the resolved principal)")
	dataJSON := fs.String("data", "{}", "JSON object of additional event data")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskID == "" || *eventType == "" {
		return cortexerr.InvalidInput("emit-event: --task-id and --event-type are required", nil)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(*dataJSON), &data); err != nil {
		return cortexerr.InvalidInput("emit-event: --data must be a JSON object", err)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	trace, err := traceFromEnv(rt.clock, "cli", "emit-event")
	if err != nil {
		return err
	}

	id := *lineageID
	if id == "" {
		id = "lin-" + *taskID + "-" + rt.clock.Now().Format("20060102T150405.000000000")
	}
	actor := lineage.Actor{Type: *actorType, ID: *actorID, Principal: principal()}
	if actor.ID == "" {
		actor.ID = principal()
	}

	rec, closeIdx, err := newRecorder(rt)
	if err != nil {
		return err
	}
	defer closeIdx()

	ev, err := rec.Append(id, *taskID, lineage.EventType(*eventType), actor, data, trace)
	if err != nil {
		return err
	}
	rt.logger.Info("lineage event emitted", "task_id", *taskID, "event_type", *eventType)
	return json.NewEncoder(os.Stdout).Encode(ev)
}

// cmdQueryByTask implements `cortex query-by-task` (spec §4.10): lists
// every lineage event recorded for a task_id, in append order.
func cmdQueryByTask(args []string) error {
	fs, configPath, dev := newFlagSet("query-by-task")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return cortexerr.InvalidInput("query-by-task: usage: query-by-task <task_id>", nil)
	}
	taskID := rest[0]

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	rec, closeIdx, err := newRecorder(rt)
	if err != nil {
		return err
	}
	defer closeIdx()

	events, err := rec.QueryByTask(taskID)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(events)
}
