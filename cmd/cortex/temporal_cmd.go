package main

import (
	"context"
	"os"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/heartbeat"
	"github.com/cortexplane/control-plane/internal/store"
	"github.com/cortexplane/control-plane/internal/workflow"
)

// moveWorkerSpecToFailed relocates a zombie worker's spec from active to
// failed, mirroring cliActionExecutor's cleanup_state handling.
func moveWorkerSpecToFailed(st *store.Store, workerID, reason string) error {
	activePath := st.EnvPath(store.DirWorkerSpecs, store.WorkerSpecsActive, workerID+".json")
	raw, err := os.ReadFile(activePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return cortexerr.Transient("move worker spec to failed: read", err)
	}
	failedPath := st.EnvPath(store.DirWorkerSpecs, store.WorkerSpecsFailed, workerID+".json")
	if err := os.WriteFile(failedPath, raw, 0o644); err != nil {
		return cortexerr.Transient("move worker spec to failed: write", err)
	}
	if err := os.Remove(activePath); err != nil && !os.IsNotExist(err) {
		return cortexerr.Transient("move worker spec to failed: remove", err)
	}
	return nil
}

// cmdTemporalWorker implements `cortex temporal-worker` (spec §7's durable
// workflow layer): runs the Temporal worker process that hosts
// HeartbeatLoopWorkflow, WatchdogWorkflow and RemediationWorkflow plus the
// activities they call into, blocking until the process is killed.
func cmdTemporalWorker(args []string) error {
	fs, configPath, dev := newFlagSet("temporal-worker")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}

	snapshots := heartbeatSnapshotStore{st: rt.store}
	acts := &workflow.Activities{
		Heartbeat:  newMonitor(rt),
		Remediator: newRemediator(rt),
		SampleWorker: func(ctx context.Context, workerID string) (heartbeat.Sample, error) {
			hb, _, err := snapshots.Load(workerID)
			if err != nil {
				return heartbeat.Sample{}, err
			}
			return heartbeat.Sample{
				CPUPercent:       hb.Health.CPUPercent,
				MemoryMB:         hb.Health.MemoryMB,
				TokensUsed:       hb.Health.TokensUsed,
				TokenBudget:      hb.Health.TokensUsed + hb.Health.TokensRemaining,
				ActiveForSeconds: hb.Health.ActiveForSeconds,
			}, nil
		},
		LoadLast: func(ctx context.Context, workerID string) (heartbeat.Heartbeat, bool, error) {
			return snapshots.Load(workerID)
		},
		EmitFailure: func(ctx context.Context, evt heartbeat.FailureEvent) error {
			return appendFailureEvent(rt.store, evt)
		},
		MoveToFailed: func(ctx context.Context, workerID, reason string) error {
			return moveWorkerSpecToFailed(rt.store, workerID, reason)
		},
	}

	rt.logger.Info("temporal worker starting", "host_port", rt.cfg.Temporal.HostPort, "task_queue", workflow.TaskQueue)
	return workflow.StartWorker(rt.cfg.Temporal.HostPort, acts)
}
