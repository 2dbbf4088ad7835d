package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/cortexplane/control-plane/internal/remediator"
)

// RemediationRequest parameterizes one playbook execution.
type RemediationRequest struct {
	Playbook remediator.Playbook
}

// RemediationWorkflow runs a matched playbook durably: gating, step
// execution, and rollback all happen inside a single activity
// (remediator.Execute already encodes the full on_failure state machine),
// so the workflow layer's job is retry/timeout policy and result
// persistence across process restarts.
func RemediationWorkflow(ctx workflow.Context, req RemediationRequest) (remediator.Execution, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var a *Activities
	var exec remediator.Execution
	err := workflow.ExecuteActivity(ctx, a.ExecutePlaybookActivity, req.Playbook).Get(ctx, &exec)
	return exec, err
}
