// Package remediator implements the Remediator (spec §4.6): playbook
// matching against a pattern/severity, cooling-period and auto_execute
// gating, ordered step execution with per-step on_failure semantics, and
// the declared action set. reset_circuit_breaker is backed by
// sony/gobreaker so "tripped" state has the same semantics a caller would
// see from the breaker guarding worker dispatch itself.
package remediator

import (
	"fmt"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

// OnFailure is a step's declared failure-handling mode.
type OnFailure string

const (
	Abort    OnFailure = "abort"
	Rollback OnFailure = "rollback"
	Alert    OnFailure = "alert"
	Continue OnFailure = "continue"
)

// ActionType enumerates the action vocabulary spec §4.6 declares.
type ActionType string

const (
	ActionModifyConfig        ActionType = "modify_config"
	ActionResetCircuitBreaker ActionType = "reset_circuit_breaker"
	ActionCleanupState        ActionType = "cleanup_state"
	ActionRestartWorker       ActionType = "restart_worker"
	ActionEmitEvent           ActionType = "emit_event"
	ActionPauseQueue          ActionType = "pause_queue"
	ActionResumeQueue         ActionType = "resume_queue"
	ActionScaleWorkers        ActionType = "scale_workers"
	ActionRecalculateBudget   ActionType = "recalculate_budget"
)

// ValidationType enumerates spec §4.6's declared post-execution checks.
type ValidationType string

const (
	ValidationPatternReduction    ValidationType = "pattern_reduction"
	ValidationSuccessRateImprove  ValidationType = "success_rate_improvement"
	ValidationNoImmediateRetrip   ValidationType = "no_immediate_retrip"
	ValidationWorkerHealthy       ValidationType = "worker_healthy"
)

// Step is one action within a playbook.
type Step struct {
	StepID     string
	Action     ActionType
	Params     map[string]any
	OnFailure  OnFailure
	Validation *Validation
}

// Validation describes a post-step check and its rollback trigger.
type Validation struct {
	Type            ValidationType
	RollbackOnFail  bool
}

// Prerequisites gates whether a playbook may run at all.
type Prerequisites struct {
	MinCoolingPeriodMinutes int
}

// Playbook is spec §3's remediation playbook entity.
type Playbook struct {
	PlaybookID        string
	Enabled           bool
	AutoExecute       bool
	TriggerPatterns   []string
	SeverityThreshold string // low | medium | high | critical
	Steps             []Step
	RollbackSteps     []Step
	Prerequisites     Prerequisites
}

var severityRank = map[string]int{"low": 1, "medium": 2, "high": 3, "critical": 4}

// admits reports whether a playbook's severity_threshold allows `severity`.
func admits(threshold, severity string) bool {
	return severityRank[severity] >= severityRank[threshold]
}

// Match implements spec §4.6's matching rule: enabled playbooks whose
// trigger_patterns contain patternID and whose severity_threshold admits
// severity.
func Match(playbooks []Playbook, patternID, severity string) []Playbook {
	var out []Playbook
	for _, pb := range playbooks {
		if !pb.Enabled {
			continue
		}
		if !admits(pb.SeverityThreshold, severity) {
			continue
		}
		for _, tp := range pb.TriggerPatterns {
			if tp == patternID {
				out = append(out, pb)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlaybookID < out[j].PlaybookID })
	return out
}

// CoolingPeriodLookup supplies the completion time of a playbook's previous
// run, decoupling the gate from any particular storage layer.
type CoolingPeriodLookup func(playbookID string) (completedAt time.Time, ok bool, err error)

// StepStatus is the per-step execution outcome.
type StepStatus string

const (
	StepOK       StepStatus = "ok"
	StepFailed   StepStatus = "failed"
	StepSkipped  StepStatus = "skipped"
)

// StepResult records one step's outcome.
type StepResult struct {
	StepID           string     `json:"step_id"`
	Status           StepStatus `json:"status"`
	Error            string     `json:"error,omitempty"`
	ValidationResult *bool      `json:"validation_result,omitempty"`
}

// ExecutionStatus is the overall outcome of a playbook run.
type ExecutionStatus string

const (
	ExecPending     ExecutionStatus = "pending_approval"
	ExecCompleted   ExecutionStatus = "completed"
	ExecAborted     ExecutionStatus = "aborted"
	ExecRolledBack  ExecutionStatus = "rolled_back"
	ExecPartial     ExecutionStatus = "partial"
)

// Execution is the persisted record of one playbook run.
type Execution struct {
	ExecutionID string          `json:"execution_id"`
	PlaybookID  string          `json:"playbook_id"`
	Status      ExecutionStatus `json:"status"`
	Steps       []StepResult    `json:"steps"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// ActionExecutor performs one action; callers implement per-action side
// effects (config mutation, filesystem cleanup, event emission, ...).
type ActionExecutor interface {
	Execute(step Step) error
}

// Breakers holds one gobreaker.CircuitBreaker per worker_type so
// reset_circuit_breaker has real state to clear.
type Breakers struct {
	byWorkerType map[string]*gobreaker.CircuitBreaker[any]
}

// NewBreakers constructs an empty breaker registry.
func NewBreakers() *Breakers {
	return &Breakers{byWorkerType: make(map[string]*gobreaker.CircuitBreaker[any])}
}

// For returns (creating if absent) the breaker guarding dispatch to a
// worker_type.
func (b *Breakers) For(workerType string) *gobreaker.CircuitBreaker[any] {
	if cb, ok := b.byWorkerType[workerType]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "worker:" + workerType,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
	})
	b.byWorkerType[workerType] = cb
	return cb
}

// Reset implements the reset_circuit_breaker action: it discards the
// breaker entry so the next dispatch attempt starts from a closed state.
func (b *Breakers) Reset(workerType string) {
	delete(b.byWorkerType, workerType)
}

// Remediator executes playbooks against the gating/execution rules of spec
// §4.6.
type Remediator struct {
	CoolingPeriod CoolingPeriodLookup
	Executor      ActionExecutor
	Breakers      *Breakers
	Now           func() time.Time
	NewID         func() string
}

// Gate implements spec §4.6's auto_execute and cooling-period checks, run
// before Execute. It returns (proceed, reason).
func (r *Remediator) Gate(pb Playbook) (bool, string, error) {
	if !pb.AutoExecute {
		return false, "pending_approval", nil
	}
	if pb.Prerequisites.MinCoolingPeriodMinutes > 0 && r.CoolingPeriod != nil {
		completedAt, ok, err := r.CoolingPeriod(pb.PlaybookID)
		if err != nil {
			return false, "", cortexerr.Transient("remediator: cooling period lookup", err)
		}
		if ok {
			now := time.Now
			if r.Now != nil {
				now = r.Now
			}
			elapsed := now().Sub(completedAt)
			if elapsed < time.Duration(pb.Prerequisites.MinCoolingPeriodMinutes)*time.Minute {
				return false, fmt.Sprintf("cooling period not elapsed (%.0fm remaining)", (time.Duration(pb.Prerequisites.MinCoolingPeriodMinutes)*time.Minute-elapsed).Minutes()), nil
			}
		}
	}
	return true, "", nil
}

// Execute implements spec §4.6's ordered step execution with per-step
// on_failure semantics.
func (r *Remediator) Execute(pb Playbook) (Execution, error) {
	proceed, reason, err := r.Gate(pb)
	if err != nil {
		return Execution{}, err
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	newID := func() string { return "exec-" + pb.PlaybookID }
	if r.NewID != nil {
		newID = r.NewID
	}
	exec := Execution{ExecutionID: newID(), PlaybookID: pb.PlaybookID, StartedAt: now()}

	if !proceed {
		exec.Status = ExecPending
		exec.CompletedAt = now()
		_ = reason
		return exec, nil
	}

	status := ExecCompleted
	for _, step := range pb.Steps {
		err := r.runStep(step)
		result := StepResult{StepID: step.StepID, Status: StepOK}
		if err != nil {
			result.Status = StepFailed
			result.Error = err.Error()
			switch step.OnFailure {
			case Abort:
				exec.Steps = append(exec.Steps, result)
				status = ExecAborted
				exec.Status = status
				exec.CompletedAt = now()
				return exec, nil
			case Rollback:
				exec.Steps = append(exec.Steps, result)
				r.runRollback(pb, &exec)
				status = ExecRolledBack
				exec.Status = status
				exec.CompletedAt = now()
				return exec, nil
			case Alert:
				status = ExecPartial
			case Continue:
				// step marked failed, execution continues; overall status stays completed
				// unless a later failure escalates it.
			}
		}
		exec.Steps = append(exec.Steps, result)
	}
	exec.Status = status
	exec.CompletedAt = now()
	return exec, nil
}

func (r *Remediator) runStep(step Step) error {
	if step.Action == ActionResetCircuitBreaker && r.Breakers != nil {
		workerType, _ := step.Params["worker_type"].(string)
		r.Breakers.Reset(workerType)
		return nil
	}
	if r.Executor != nil {
		return r.Executor.Execute(step)
	}
	return nil
}

// Rollback runs pb's rollback steps against exec and marks it rolled_back.
// Unlike the in-step Rollback on_failure path (run from inside Execute),
// this is called after the fact, when a post-execution validation with
// rollback_on_fail=true fails (spec §4.6's validation-failure trigger).
func (r *Remediator) Rollback(pb Playbook, exec *Execution) {
	r.runRollback(pb, exec)
	exec.Status = ExecRolledBack
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	exec.CompletedAt = now()
}

func (r *Remediator) runRollback(pb Playbook, exec *Execution) {
	for _, step := range pb.RollbackSteps {
		err := r.runStep(step)
		result := StepResult{StepID: step.StepID, Status: StepOK}
		if err != nil {
			result.Status = StepFailed
			result.Error = err.Error()
		}
		exec.Steps = append(exec.Steps, result)
	}
}

// RecordValidation appends a validation outcome to an execution and reports
// whether a rollback-on-failure trigger fired.
func RecordValidation(exec *Execution, stepID string, v Validation, passed bool) (triggerRollback bool) {
	for i := range exec.Steps {
		if exec.Steps[i].StepID == stepID {
			r := passed
			exec.Steps[i].ValidationResult = &r
			break
		}
	}
	return !passed && v.RollbackOnFail
}
