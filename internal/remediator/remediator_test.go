package remediator

import (
	"errors"
	"testing"
	"time"
)

func TestMatchFiltersByEnabledTriggerAndSeverity(t *testing.T) {
	playbooks := []Playbook{
		{PlaybookID: "pb-b", Enabled: true, TriggerPatterns: []string{"resource:unresponsive"}, SeverityThreshold: "medium"},
		{PlaybookID: "pb-a", Enabled: true, TriggerPatterns: []string{"resource:unresponsive"}, SeverityThreshold: "low"},
		{PlaybookID: "pb-disabled", Enabled: false, TriggerPatterns: []string{"resource:unresponsive"}, SeverityThreshold: "low"},
		{PlaybookID: "pb-other-trigger", Enabled: true, TriggerPatterns: []string{"systemic:recurring_failure"}, SeverityThreshold: "low"},
		{PlaybookID: "pb-too-strict", Enabled: true, TriggerPatterns: []string{"resource:unresponsive"}, SeverityThreshold: "critical"},
	}
	got := Match(playbooks, "resource:unresponsive", "medium")
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(got), got)
	}
	if got[0].PlaybookID != "pb-a" || got[1].PlaybookID != "pb-b" {
		t.Fatalf("expected deterministic sort by playbook_id, got %s, %s", got[0].PlaybookID, got[1].PlaybookID)
	}
}

func TestGateRejectsWhenNotAutoExecute(t *testing.T) {
	r := &Remediator{}
	proceed, reason, err := r.Gate(Playbook{PlaybookID: "pb1", AutoExecute: false})
	if err != nil {
		t.Fatal(err)
	}
	if proceed {
		t.Fatal("expected gate to reject non-auto-execute playbook")
	}
	if reason != "pending_approval" {
		t.Fatalf("unexpected reason: %s", reason)
	}
}

func TestGateRejectsWithinCoolingPeriod(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := &Remediator{
		Now: func() time.Time { return now },
		CoolingPeriod: func(playbookID string) (time.Time, bool, error) {
			return now.Add(-5 * time.Minute), true, nil
		},
	}
	proceed, _, err := r.Gate(Playbook{PlaybookID: "pb1", AutoExecute: true, Prerequisites: Prerequisites{MinCoolingPeriodMinutes: 30}})
	if err != nil {
		t.Fatal(err)
	}
	if proceed {
		t.Fatal("expected gate to reject within cooling period")
	}
}

func TestGateAllowsAfterCoolingPeriodElapses(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := &Remediator{
		Now: func() time.Time { return now },
		CoolingPeriod: func(playbookID string) (time.Time, bool, error) {
			return now.Add(-31 * time.Minute), true, nil
		},
	}
	proceed, _, err := r.Gate(Playbook{PlaybookID: "pb1", AutoExecute: true, Prerequisites: Prerequisites{MinCoolingPeriodMinutes: 30}})
	if err != nil {
		t.Fatal(err)
	}
	if !proceed {
		t.Fatal("expected gate to allow once cooling period elapsed")
	}
}

type fakeExecutor struct {
	failStepIDs map[string]bool
}

func (f *fakeExecutor) Execute(step Step) error {
	if f.failStepIDs[step.StepID] {
		return errors.New("boom")
	}
	return nil
}

func TestExecuteAbortStopsRemainingSteps(t *testing.T) {
	r := &Remediator{Executor: &fakeExecutor{failStepIDs: map[string]bool{"s1": true}}, Now: func() time.Time { return time.Time{} }}
	pb := Playbook{
		PlaybookID:  "pb1",
		AutoExecute: true,
		Steps: []Step{
			{StepID: "s1", Action: ActionEmitEvent, OnFailure: Abort},
			{StepID: "s2", Action: ActionEmitEvent, OnFailure: Continue},
		},
	}
	exec, err := r.Execute(pb)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != ExecAborted {
		t.Fatalf("expected aborted status, got %s", exec.Status)
	}
	if len(exec.Steps) != 1 {
		t.Fatalf("expected only first step recorded, got %d", len(exec.Steps))
	}
}

func TestExecuteRollbackRunsRollbackSteps(t *testing.T) {
	r := &Remediator{Executor: &fakeExecutor{failStepIDs: map[string]bool{"s1": true}}, Now: func() time.Time { return time.Time{} }}
	pb := Playbook{
		PlaybookID:  "pb1",
		AutoExecute: true,
		Steps: []Step{
			{StepID: "s1", Action: ActionEmitEvent, OnFailure: Rollback},
		},
		RollbackSteps: []Step{
			{StepID: "rb1", Action: ActionEmitEvent},
		},
	}
	exec, err := r.Execute(pb)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != ExecRolledBack {
		t.Fatalf("expected rolled_back status, got %s", exec.Status)
	}
	found := false
	for _, s := range exec.Steps {
		if s.StepID == "rb1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected rollback step to be recorded")
	}
}

func TestExecuteAlertBecomesPartial(t *testing.T) {
	r := &Remediator{Executor: &fakeExecutor{failStepIDs: map[string]bool{"s1": true}}, Now: func() time.Time { return time.Time{} }}
	pb := Playbook{
		PlaybookID:  "pb1",
		AutoExecute: true,
		Steps: []Step{
			{StepID: "s1", Action: ActionEmitEvent, OnFailure: Alert},
			{StepID: "s2", Action: ActionEmitEvent, OnFailure: Continue},
		},
	}
	exec, err := r.Execute(pb)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != ExecPartial {
		t.Fatalf("expected partial status, got %s", exec.Status)
	}
	if len(exec.Steps) != 2 {
		t.Fatalf("expected both steps to run under alert+continue, got %d", len(exec.Steps))
	}
}

func TestExecuteResetCircuitBreakerClearsEntry(t *testing.T) {
	breakers := NewBreakers()
	cb := breakers.For("implementation")
	if cb == nil {
		t.Fatal("expected breaker to be created")
	}
	r := &Remediator{Breakers: breakers, Now: func() time.Time { return time.Time{} }}
	pb := Playbook{
		PlaybookID:  "pb1",
		AutoExecute: true,
		Steps: []Step{
			{StepID: "s1", Action: ActionResetCircuitBreaker, Params: map[string]any{"worker_type": "implementation"}, OnFailure: Continue},
		},
	}
	exec, err := r.Execute(pb)
	if err != nil {
		t.Fatal(err)
	}
	if exec.Status != ExecCompleted {
		t.Fatalf("expected completed status, got %s", exec.Status)
	}
	if len(breakers.byWorkerType) != 0 {
		t.Fatal("expected breaker entry to be cleared")
	}
}

func TestRecordValidationTriggersRollbackOnFailure(t *testing.T) {
	exec := &Execution{Steps: []StepResult{{StepID: "s1", Status: StepOK}}}
	trigger := RecordValidation(exec, "s1", Validation{Type: ValidationWorkerHealthy, RollbackOnFail: true}, false)
	if !trigger {
		t.Fatal("expected rollback trigger on failed validation with RollbackOnFail=true")
	}
	if exec.Steps[0].ValidationResult == nil || *exec.Steps[0].ValidationResult {
		t.Fatal("expected validation_result=false recorded")
	}
}

func TestRecordValidationNoTriggerWhenPassed(t *testing.T) {
	exec := &Execution{Steps: []StepResult{{StepID: "s1", Status: StepOK}}}
	trigger := RecordValidation(exec, "s1", Validation{Type: ValidationWorkerHealthy, RollbackOnFail: true}, true)
	if trigger {
		t.Fatal("expected no rollback trigger when validation passed")
	}
}
