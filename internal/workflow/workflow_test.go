package workflow

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/cortexplane/control-plane/internal/heartbeat"
	"github.com/cortexplane/control-plane/internal/remediator"
)

func TestHeartbeatLoopWorkflowEmitsMaxTicksThenStops(t *testing.T) {
	s := testsuite.WorkflowTestSuite{}
	env := s.NewTestWorkflowEnvironment()

	var a *Activities
	env.OnActivity(a.SampleWorkerActivity, mock.Anything, "worker-impl-abc").
		Return(heartbeat.Sample{CPUPercent: 10, MemoryMB: 100, TokenBudget: 10000}, nil)
	env.OnActivity(a.EmitHeartbeatActivity, mock.Anything, "worker-impl-abc", mock.Anything).
		Return(heartbeat.Heartbeat{WorkerID: "worker-impl-abc", Sequence: 1}, nil)

	env.ExecuteWorkflow(HeartbeatLoopWorkflow, HeartbeatLoopRequest{
		WorkerID:        "worker-impl-abc",
		IntervalSeconds: 30,
		MaxTicks:        2,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestWatchdogWorkflowRecordsCriticalEventOnce(t *testing.T) {
	s := testsuite.WorkflowTestSuite{}
	env := s.NewTestWorkflowEnvironment()

	var a *Activities
	last := heartbeat.Heartbeat{WorkerID: "worker-impl-abc", Sequence: 3}
	env.OnActivity(a.LoadLastHeartbeatActivity, mock.Anything, "worker-impl-abc").
		Return(LastHeartbeatResult{Heartbeat: last, Found: true}, nil).Once()
	env.OnActivity(a.EvaluatePhaseActivity, mock.Anything, "worker-impl-abc", last, mock.Anything).
		Return(PhaseEvaluation{
			Phase: heartbeat.PhaseCritical,
			Event: &heartbeat.FailureEvent{EventType: heartbeat.EventHeartbeatCritical, WorkerID: "worker-impl-abc"},
		}, nil).Once()
	env.OnActivity(a.RecordFailureEventActivity, mock.Anything, mock.Anything).Return(nil).Once()

	// second poll: worker now zombie, workflow should exit after handling it.
	env.OnActivity(a.LoadLastHeartbeatActivity, mock.Anything, "worker-impl-abc").
		Return(LastHeartbeatResult{Heartbeat: last, Found: true}, nil)
	env.OnActivity(a.EvaluatePhaseActivity, mock.Anything, "worker-impl-abc", last, mock.Anything).
		Return(PhaseEvaluation{Phase: heartbeat.PhaseZombie, Event: &heartbeat.FailureEvent{EventType: heartbeat.EventZombieDetected, WorkerID: "worker-impl-abc"}}, nil)
	env.OnActivity(a.MoveToFailedActivity, mock.Anything, "worker-impl-abc", mock.Anything).Return(nil)

	env.ExecuteWorkflow(WatchdogWorkflow, WatchdogRequest{WorkerID: "worker-impl-abc", PollSeconds: 1})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
}

func TestRemediationWorkflowReturnsExecutionResult(t *testing.T) {
	s := testsuite.WorkflowTestSuite{}
	env := s.NewTestWorkflowEnvironment()

	var a *Activities
	pb := remediator.Playbook{PlaybookID: "pb-restart-zombie", AutoExecute: true}
	want := remediator.Execution{ExecutionID: "exec-1", PlaybookID: pb.PlaybookID, Status: remediator.ExecCompleted}
	env.OnActivity(a.ExecutePlaybookActivity, mock.Anything, pb).Return(want, nil)

	env.ExecuteWorkflow(RemediationWorkflow, RemediationRequest{Playbook: pb})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var got remediator.Execution
	require.NoError(t, env.GetWorkflowResult(&got))
	require.Equal(t, want.ExecutionID, got.ExecutionID)
	require.Equal(t, want.Status, got.Status)
}
