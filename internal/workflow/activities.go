// Package workflow hosts the Temporal workflow/activity definitions that
// give the Heartbeat Monitor and Remediator durable, replay-safe execution
// loops, generalizing the teacher's internal/temporal CortexAgentWorkflow
// structure (activity-options-per-phase, signal-driven gating) to this
// domain's heartbeat-emission, watchdog, and remediation-execution loops.
package workflow

import (
	"context"
	"time"

	"github.com/cortexplane/control-plane/internal/heartbeat"
	"github.com/cortexplane/control-plane/internal/remediator"
)

// Activities bundles the dependencies workflow activities call into.
type Activities struct {
	Heartbeat    *heartbeat.Monitor
	Remediator   *remediator.Remediator
	SampleWorker func(ctx context.Context, workerID string) (heartbeat.Sample, error)
	LoadLast     func(ctx context.Context, workerID string) (heartbeat.Heartbeat, bool, error)
	EmitFailure  func(ctx context.Context, evt heartbeat.FailureEvent) error
	MoveToFailed func(ctx context.Context, workerID, reason string) error
}

// EmitHeartbeatActivity samples the worker and writes one heartbeat
// snapshot. The emitter's only job is to keep emitting on schedule; phase
// evaluation runs independently in WatchdogWorkflow so a worker that stops
// emitting (and therefore stops calling this activity) can still be
// detected as a zombie.
func (a *Activities) EmitHeartbeatActivity(ctx context.Context, workerID string, sample heartbeat.Sample) (heartbeat.Heartbeat, error) {
	return a.Heartbeat.Emit(workerID, sample)
}

// SampleWorkerActivity gathers the current resource sample for a worker.
func (a *Activities) SampleWorkerActivity(ctx context.Context, workerID string) (heartbeat.Sample, error) {
	return a.SampleWorker(ctx, workerID)
}

// LastHeartbeatResult wraps LoadLastHeartbeatActivity's result; Temporal
// activities return a single value plus error, so the (heartbeat, found)
// pair is bundled into one struct.
type LastHeartbeatResult struct {
	Heartbeat heartbeat.Heartbeat
	Found     bool
}

// LoadLastHeartbeatActivity returns the last persisted heartbeat for a
// worker, if any.
func (a *Activities) LoadLastHeartbeatActivity(ctx context.Context, workerID string) (LastHeartbeatResult, error) {
	hb, ok, err := a.LoadLast(ctx, workerID)
	return LastHeartbeatResult{Heartbeat: hb, Found: ok}, err
}

// PhaseEvaluation wraps EvaluatePhaseActivity's result for the same reason.
type PhaseEvaluation struct {
	Phase heartbeat.Phase
	Event *heartbeat.FailureEvent
}

// EvaluatePhaseActivity derives the current liveness phase from the last
// known heartbeat, returning a FailureEvent once per entry into critical or
// zombie (no event on entry into warning).
func (a *Activities) EvaluatePhaseActivity(ctx context.Context, workerID string, last heartbeat.Heartbeat, asOf time.Time) (PhaseEvaluation, error) {
	phase, evt := a.Heartbeat.Evaluate(workerID, last, asOf)
	return PhaseEvaluation{Phase: phase, Event: evt}, nil
}

// RecordFailureEventActivity persists a FailureEvent emitted on phase entry.
func (a *Activities) RecordFailureEventActivity(ctx context.Context, evt heartbeat.FailureEvent) error {
	if a.EmitFailure == nil {
		return nil
	}
	return a.EmitFailure(ctx, evt)
}

// MoveToFailedActivity relocates a zombie worker's spec into the failed
// store with a reason, per spec §4.4's zombie-phase contract.
func (a *Activities) MoveToFailedActivity(ctx context.Context, workerID, reason string) error {
	if a.MoveToFailed == nil {
		return nil
	}
	return a.MoveToFailed(ctx, workerID, reason)
}

// ExecutePlaybookActivity runs one remediation playbook to completion.
func (a *Activities) ExecutePlaybookActivity(ctx context.Context, pb remediator.Playbook) (remediator.Execution, error) {
	return a.Remediator.Execute(pb)
}
