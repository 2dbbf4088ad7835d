package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/remediator"
	"github.com/cortexplane/control-plane/internal/store"
	"github.com/cortexplane/control-plane/internal/workflow"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
)

// cliActionExecutor performs the side effects a playbook step can declare
// (spec §4.6's action vocabulary) against the coordination directory and
// this process's logger. reset_circuit_breaker is handled by the
// Remediator itself via Breakers; everything else routes through here.
type cliActionExecutor struct {
	rt *runtimeEnv
}

func (e cliActionExecutor) Execute(step remediator.Step) error {
	switch step.Action {
	case remediator.ActionEmitEvent:
		eventType, _ := step.Params["event_type"].(string)
		return store.AppendJSONL(e.rt.store.EnvPath(store.DirEvents, "remediation.jsonl"), map[string]any{
			"event_type": eventType, "step_id": step.StepID, "params": step.Params, "timestamp": e.rt.clock.Now(),
		})
	case remediator.ActionCleanupState:
		workerID, _ := step.Params["worker_id"].(string)
		if workerID == "" {
			return cortexerr.InvalidInput("remediator: cleanup_state requires params.worker_id", nil)
		}
		for _, dir := range []string{store.WorkerSpecsActive, store.WorkerSpecsFailed} {
			path := e.rt.store.EnvPath(store.DirWorkerSpecs, dir, workerID+".json")
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return cortexerr.Transient("remediator: cleanup_state", err)
			}
		}
		return nil
	case remediator.ActionModifyConfig, remediator.ActionPauseQueue, remediator.ActionResumeQueue,
		remediator.ActionRestartWorker, remediator.ActionScaleWorkers, remediator.ActionRecalculateBudget:
		// These actions reach outside the coordination directory into a
		// running master/worker fleet this CLI does not supervise; record
		// the intent for an operator or the owning master to act on.
		e.rt.logger.Info("remediation action recorded for external actuation", "action", step.Action, "step_id", step.StepID, "params", step.Params)
		return nil
	default:
		return cortexerr.InvalidInput(fmt.Sprintf("remediator: unknown action %q", step.Action), nil)
	}
}

func newRemediator(rt *runtimeEnv) *remediator.Remediator {
	return &remediator.Remediator{
		CoolingPeriod: coolingPeriodLookup(rt.store),
		Executor:      cliActionExecutor{rt: rt},
		Breakers:      remediator.NewBreakers(),
		Now:           rt.clock.Now,
		NewID:         func() string { return "exec-" + uuid.NewString() },
	}
}

// cmdRemediate implements `cortex remediate <pattern_id>` (spec §4.6):
// matches the pattern against enabled playbooks whose severity_threshold
// admits the given severity. --severity overrides; left unset, the
// severity mined for patternID by `analyze` (internal/patterns's
// confidence-banded escalation) is used, falling back to "medium" for a
// pattern id this environment never mined.
func cmdRemediate(args []string) error {
	fs, configPath, dev := newFlagSet("remediate")
	severity := fs.String("severity", "", "pattern severity: low|medium|high|critical (defaults to the mined pattern's severity)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return cortexerr.InvalidInput("remediate: usage: remediate <pattern_id>", nil)
	}
	patternID := rest[0]

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}

	effectiveSeverity := *severity
	if effectiveSeverity == "" {
		if mined, ok, err := loadPattern(rt.store, patternID); err != nil {
			return err
		} else if ok {
			effectiveSeverity = mined.Severity
		} else {
			effectiveSeverity = "medium"
		}
	}

	playbooks, err := loadPlaybooks(rt.store)
	if err != nil {
		return err
	}
	matched := remediator.Match(playbooks, patternID, effectiveSeverity)
	rt.logger.Info("remediation playbooks matched", "pattern_id", patternID, "severity", effectiveSeverity, "count", len(matched))
	return json.NewEncoder(os.Stdout).Encode(matched)
}

// cmdExecute implements `cortex execute <playbook_id>` (spec §4.6): runs a
// playbook's gate and ordered steps. With --durable the run is dispatched
// to the Temporal-backed RemediationWorkflow instead of running inline, so
// the execution survives this CLI process exiting.
func cmdExecute(args []string) error {
	fs, configPath, dev := newFlagSet("execute")
	durable := fs.Bool("durable", false, "dispatch via the durable Temporal remediation workflow instead of running inline")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return cortexerr.InvalidInput("execute: usage: execute <playbook_id>", nil)
	}
	playbookID := rest[0]

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	playbooks, err := loadPlaybooks(rt.store)
	if err != nil {
		return err
	}
	var pb *remediator.Playbook
	for i := range playbooks {
		if playbooks[i].PlaybookID == playbookID {
			pb = &playbooks[i]
			break
		}
	}
	if pb == nil {
		return cortexerr.NotFound("execute: playbook "+playbookID+" not found", nil)
	}

	var exec remediator.Execution
	if *durable {
		c, err := client.Dial(client.Options{HostPort: rt.cfg.Temporal.HostPort})
		if err != nil {
			return cortexerr.Transient("execute: dial temporal", err)
		}
		defer c.Close()
		run, err := c.ExecuteWorkflow(context.Background(), client.StartWorkflowOptions{
			ID:        "remediation-" + playbookID,
			TaskQueue: workflow.TaskQueue,
		}, workflow.RemediationWorkflow, workflow.RemediationRequest{Playbook: *pb})
		if err != nil {
			return cortexerr.Transient("execute: start remediation workflow", err)
		}
		if err := run.Get(context.Background(), &exec); err != nil {
			return cortexerr.Transient("execute: await remediation workflow", err)
		}
	} else {
		r := newRemediator(rt)
		exec, err = r.Execute(*pb)
		if err != nil {
			return err
		}
	}

	if err := saveExecution(rt.store, exec); err != nil {
		return err
	}
	if err := appendExecutionHistory(rt.store, exec); err != nil {
		return err
	}
	rt.logger.Info("playbook execution complete", "playbook_id", playbookID, "execution_id", exec.ExecutionID, "status", exec.Status)
	return json.NewEncoder(os.Stdout).Encode(exec)
}

// remediatorValidate is the Remediator half of the shared `validate` verb
// (spec §4.6's "validate the playbook's post-execution checks"): records
// whether a named step's declared validation passed and, when that trips a
// rollback_on_fail trigger, actually runs the owning playbook's
// RollbackSteps and marks the execution rolled_back (scenario 6) rather
// than just reporting the trigger back to the caller.
func remediatorValidate(rt *runtimeEnv, executionID, stepID string, passed bool, validationType remediator.ValidationType, rollbackOnFail bool) error {
	exec, err := loadExecution(rt.store, executionID)
	if err != nil {
		return err
	}
	trigger := remediator.RecordValidation(&exec, stepID, remediator.Validation{Type: validationType, RollbackOnFail: rollbackOnFail}, passed)

	if trigger {
		playbooks, err := loadPlaybooks(rt.store)
		if err != nil {
			return err
		}
		var pb *remediator.Playbook
		for i := range playbooks {
			if playbooks[i].PlaybookID == exec.PlaybookID {
				pb = &playbooks[i]
				break
			}
		}
		if pb == nil {
			return cortexerr.NotFound("validate: playbook "+exec.PlaybookID+" for execution "+executionID+" not found", nil)
		}
		newRemediator(rt).Rollback(*pb, &exec)
		rt.logger.Info("remediation validation failed, rollback executed", "execution_id", executionID, "step_id", stepID, "playbook_id", exec.PlaybookID)
	}

	if err := saveExecution(rt.store, exec); err != nil {
		return err
	}
	rt.logger.Info("remediation validation recorded", "execution_id", executionID, "step_id", stepID, "passed", passed, "trigger_rollback", trigger)
	return json.NewEncoder(os.Stdout).Encode(map[string]any{"execution": exec, "trigger_rollback": trigger})
}
