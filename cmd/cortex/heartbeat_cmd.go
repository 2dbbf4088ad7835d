package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/heartbeat"
	"github.com/cortexplane/control-plane/internal/workflow"

	"go.temporal.io/sdk/client"
)

func newMonitor(rt *runtimeEnv) *heartbeat.Monitor {
	return &heartbeat.Monitor{
		Thresholds: heartbeat.Thresholds{
			IntervalSeconds: rt.cfg.Heartbeat.IntervalSeconds,
			WarningSeconds:  rt.cfg.Heartbeat.WarningSeconds,
			CriticalSeconds: rt.cfg.Heartbeat.CriticalSeconds,
			ZombieSeconds:   rt.cfg.Heartbeat.ZombieSeconds,
		},
		Store:   heartbeatSnapshotStore{st: rt.store},
		Now:     rt.clock.Now,
		Tracker: &heartbeat.PhaseTracker{},
	}
}

func sampleArgs(fs interface {
	Float64Var(*float64, string, float64, string)
	IntVar(*int, string, int, string)
}) (cpu, mem *float64, tokensUsed, tokenBudget, activeFor *int) {
	cpu, mem = new(float64), new(float64)
	tokensUsed, tokenBudget, activeFor = new(int), new(int), new(int)
	fs.Float64Var(cpu, "cpu-percent", 0, "sampled CPU percent")
	fs.Float64Var(mem, "memory-mb", 0, "sampled memory in MB")
	fs.IntVar(tokensUsed, "tokens-used", 0, "tokens consumed so far")
	fs.IntVar(tokenBudget, "token-budget", 0, "worker's token budget")
	fs.IntVar(activeFor, "active-for-seconds", 0, "seconds the worker has been active")
	return
}

// cmdHeartbeatInit implements `cortex init <worker_id>` (spec §4.4): the
// first heartbeat emission for a newly started worker.
func cmdHeartbeatInit(args []string) error {
	fs, configPath, dev := newFlagSet("init")
	cpu, mem, tokensUsed, tokenBudget, activeFor := sampleArgs(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return cortexerr.InvalidInput("init: usage: init <worker_id>", nil)
	}
	workerID := rest[0]

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	hb, err := newMonitor(rt).Emit(workerID, heartbeat.Sample{
		CPUPercent: *cpu, MemoryMB: *mem, TokensUsed: *tokensUsed, TokenBudget: *tokenBudget, ActiveForSeconds: *activeFor,
	})
	if err != nil {
		return err
	}
	rt.logger.Info("heartbeat initialized", "worker_id", workerID, "health_score", hb.Health.HealthScore)
	return json.NewEncoder(os.Stdout).Encode(hb)
}

// cmdHeartbeatEmit implements `cortex emit <worker_id> <activity>` (spec
// §4.4): records a liveness tick and the worker's current activity label.
func cmdHeartbeatEmit(args []string) error {
	fs, configPath, dev := newFlagSet("emit")
	workerType := fs.String("worker-type", "", "worker type, carried on any emitted FailureEvent for pattern mining")
	cpu, mem, tokensUsed, tokenBudget, activeFor := sampleArgs(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return cortexerr.InvalidInput("emit: usage: emit <worker_id> <activity>", nil)
	}
	workerID, activity := rest[0], rest[1]

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	monitor := newMonitor(rt)
	hb, err := monitor.Emit(workerID, heartbeat.Sample{
		CPUPercent: *cpu, MemoryMB: *mem, TokensUsed: *tokensUsed, TokenBudget: *tokenBudget, ActiveForSeconds: *activeFor,
	})
	if err != nil {
		return err
	}
	hb.Health.LastActivity = activity
	snapshots := heartbeatSnapshotStore{st: rt.store}
	if err := snapshots.Save(workerID, hb); err != nil {
		return err
	}

	phase, failure := monitor.Evaluate(workerID, hb, rt.clock.Now())
	if failure != nil {
		if failure.Data == nil {
			failure.Data = map[string]any{}
		}
		failure.Data["worker_type"] = *workerType
		if err := appendFailureEvent(rt.store, *failure); err != nil {
			return err
		}
		rt.logger.Warn("heartbeat phase transition", "worker_id", workerID, "phase", phase)
	}
	return json.NewEncoder(os.Stdout).Encode(hb)
}

// cmdHeartbeatRun implements `cortex run <worker_id> <worker_pid>` (spec
// §4.4): an emitter daemon that drives the Temporal heartbeat/watchdog
// workflows for one worker and stops when the worker process exits.
func cmdHeartbeatRun(args []string) error {
	fs, configPath, dev := newFlagSet("run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return cortexerr.InvalidInput("run: usage: run <worker_id> <worker_pid>", nil)
	}
	workerID := rest[0]
	workerPID, err := strconv.Atoi(rest[1])
	if err != nil {
		return cortexerr.InvalidInput("run: worker_pid must be an integer", err)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}

	c, err := client.Dial(client.Options{HostPort: rt.cfg.Temporal.HostPort})
	if err != nil {
		return cortexerr.Transient("run: dial temporal", err)
	}
	defer c.Close()

	ctx := context.Background()
	heartbeatRun, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "heartbeat-loop-" + workerID,
		TaskQueue: workflow.TaskQueue,
	}, workflow.HeartbeatLoopWorkflow, workflow.HeartbeatLoopRequest{
		WorkerID:        workerID,
		IntervalSeconds: rt.cfg.Heartbeat.IntervalSeconds,
		MaxTicks:        0,
	})
	if err != nil {
		return cortexerr.Transient("run: start heartbeat loop workflow", err)
	}
	watchdogRun, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "watchdog-" + workerID,
		TaskQueue: workflow.TaskQueue,
	}, workflow.WatchdogWorkflow, workflow.WatchdogRequest{
		WorkerID:      workerID,
		PollSeconds:   rt.cfg.Heartbeat.IntervalSeconds,
		ZombieSeconds: rt.cfg.Heartbeat.ZombieSeconds,
	})
	if err != nil {
		return cortexerr.Transient("run: start watchdog workflow", err)
	}

	rt.logger.Info("heartbeat run started", "worker_id", workerID, "worker_pid", workerPID)

	ticker := time.NewTicker(time.Duration(rt.cfg.Heartbeat.IntervalSeconds) * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if !pidAlive(workerPID) {
			rt.logger.Info("worker process exited, stopping heartbeat emission", "worker_id", workerID, "worker_pid", workerPID)
			c.CancelWorkflow(ctx, heartbeatRun.GetID(), heartbeatRun.GetRunID())
			c.CancelWorkflow(ctx, watchdogRun.GetID(), watchdogRun.GetRunID())
			return nil
		}
	}
	return nil
}

// pidAlive probes liveness of a worker process without affecting it,
// mirroring store.AcquireLock's stale-lock reclaim heuristic.
func pidAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
