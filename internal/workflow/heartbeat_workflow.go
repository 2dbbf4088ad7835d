package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/cortexplane/control-plane/internal/heartbeat"
)

// HeartbeatLoopRequest parameterizes the emitter loop for one worker.
type HeartbeatLoopRequest struct {
	WorkerID        string
	IntervalSeconds int
	MaxTicks        int // 0 = run until cancelled
}

// HeartbeatLoopWorkflow emits heartbeats on a fixed interval until the
// workflow is cancelled (the owning worker process exited) or MaxTicks is
// reached (spec §4.4: "Monitor MUST stop heartbeat emission when the
// owning worker process exits").
func HeartbeatLoopWorkflow(ctx workflow.Context, req HeartbeatLoopRequest) error {
	logger := workflow.GetLogger(ctx)
	interval := req.IntervalSeconds
	if interval <= 0 {
		interval = 30
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})

	var a *Activities
	ticks := 0
	for {
		if req.MaxTicks > 0 && ticks >= req.MaxTicks {
			return nil
		}

		var sample heartbeat.Sample
		if err := workflow.ExecuteActivity(ctx, a.SampleWorkerActivity, req.WorkerID).Get(ctx, &sample); err != nil {
			logger.Error("worker sampling failed", "worker_id", req.WorkerID, "error", err)
			return err
		}
		var hb heartbeat.Heartbeat
		if err := workflow.ExecuteActivity(ctx, a.EmitHeartbeatActivity, req.WorkerID, sample).Get(ctx, &hb); err != nil {
			logger.Error("heartbeat emission failed", "worker_id", req.WorkerID, "error", err)
			return err
		}

		ticks++
		if err := workflow.Sleep(ctx, time.Duration(interval)*time.Second); err != nil {
			return nil
		}
	}
}

// WatchdogRequest parameterizes the phase-evaluation loop for one worker.
// It runs independently of HeartbeatLoopWorkflow so a worker that stops
// emitting is still detected as warning/critical/zombie.
type WatchdogRequest struct {
	WorkerID      string
	PollSeconds   int
	ZombieSeconds int // not read by WatchdogWorkflow; it stops once Evaluate reports zombie
}

// WatchdogWorkflow polls the last known heartbeat, evaluates the liveness
// phase (spec §4.4), persists the phase-entry FailureEvent exactly once,
// and moves the spec to the failed store on zombie detection.
func WatchdogWorkflow(ctx workflow.Context, req WatchdogRequest) error {
	logger := workflow.GetLogger(ctx)
	poll := req.PollSeconds
	if poll <= 0 {
		poll = 15
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})

	var a *Activities
	for {
		var lastResult LastHeartbeatResult
		if err := workflow.ExecuteActivity(ctx, a.LoadLastHeartbeatActivity, req.WorkerID).Get(ctx, &lastResult); err != nil {
			logger.Error("load last heartbeat failed", "worker_id", req.WorkerID, "error", err)
			return err
		}
		if lastResult.Found {
			var eval PhaseEvaluation
			if err := workflow.ExecuteActivity(ctx, a.EvaluatePhaseActivity, req.WorkerID, lastResult.Heartbeat, workflow.Now(ctx)).Get(ctx, &eval); err != nil {
				logger.Error("phase evaluation failed", "worker_id", req.WorkerID, "error", err)
				return err
			}
			if eval.Event != nil {
				if err := workflow.ExecuteActivity(ctx, a.RecordFailureEventActivity, *eval.Event).Get(ctx, nil); err != nil {
					logger.Error("failure event recording failed", "worker_id", req.WorkerID, "error", err)
				}
			}
			if eval.Phase == heartbeat.PhaseZombie {
				if err := workflow.ExecuteActivity(ctx, a.MoveToFailedActivity, req.WorkerID, "zombie: no heartbeat received").Get(ctx, nil); err != nil {
					logger.Error("move to failed store failed", "worker_id", req.WorkerID, "error", err)
				}
				return nil
			}
		}

		if err := workflow.Sleep(ctx, time.Duration(poll)*time.Second); err != nil {
			return nil
		}
	}
}
