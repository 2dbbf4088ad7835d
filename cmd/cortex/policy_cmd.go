package main

import (
	"encoding/json"
	"os"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/policy"
	"github.com/cortexplane/control-plane/internal/store"
)

func loadPolicyRegistry(rt *runtimeEnv) (*policy.Registry, error) {
	dir := policyDefinitionsDir(rt.store, rt.cfg.Policy.DefinitionsDir)
	return policy.LoadDir(dir)
}

// loadTarget decodes the JSON document a policy rule set evaluates against.
// The spec's `evaluate <target> <policy>` takes target as a path to that
// document (a worker spec, an allocation, a task record — any file under
// the coordination directory) rather than inventing a target-registry verb.
func loadTarget(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cortexerr.InvalidInput("evaluate: read target "+path, err)
	}
	var target any
	if err := json.Unmarshal(data, &target); err != nil {
		return nil, cortexerr.InvalidInput("evaluate: target "+path+" is not valid JSON", err)
	}
	return target, nil
}

// cmdEvaluate implements `cortex evaluate <target> <policy>` (spec §4.9):
// evaluates one named policy's rules against a target document.
func cmdEvaluate(args []string) error {
	fs, configPath, dev := newFlagSet("evaluate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 2 {
		return cortexerr.InvalidInput("evaluate: usage: evaluate <target-file> <policy-id>", nil)
	}
	targetPath, policyID := rest[0], rest[1]

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	reg, err := loadPolicyRegistry(rt)
	if err != nil {
		return err
	}
	p, ok := reg.Get(policyID)
	if !ok {
		return cortexerr.NotFound("evaluate: policy "+policyID+" not found", nil)
	}
	target, err := loadTarget(targetPath)
	if err != nil {
		return err
	}

	eval := policy.EvaluatePolicy(p, target)
	eval.EvaluationID = "eval-" + policyID + "-" + rt.clock.Now().Format("20060102T150405.000000000")
	eval.Timestamp = rt.clock.Now().Format("2006-01-02T15:04:05Z07:00")
	eval.Target = targetPath
	if err := evaluationResultStore(rt, eval); err != nil {
		return err
	}
	rt.logger.Info("policy evaluated", "policy_id", policyID, "result", eval.Result, "compliance_percentage", eval.CompliancePercentage)
	return json.NewEncoder(os.Stdout).Encode(eval)
}

func evaluationResultStore(rt *runtimeEnv, eval policy.Evaluation) error {
	return store.WriteJSON(evaluationResultPath(rt.store, eval.EvaluationID), eval)
}

// cmdEvaluateAll implements `cortex evaluate-all <target>` (spec §4.9):
// evaluates every registered policy against a target document.
func cmdEvaluateAll(args []string) error {
	fs, configPath, dev := newFlagSet("evaluate-all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) != 1 {
		return cortexerr.InvalidInput("evaluate-all: usage: evaluate-all <target-file>", nil)
	}
	targetPath := rest[0]

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	reg, err := loadPolicyRegistry(rt)
	if err != nil {
		return err
	}
	target, err := loadTarget(targetPath)
	if err != nil {
		return err
	}

	evals := reg.EvaluateAll(target)
	for i := range evals {
		evals[i].EvaluationID = "eval-" + evals[i].PolicyID + "-" + rt.clock.Now().Format("20060102T150405.000000000")
		evals[i].Timestamp = rt.clock.Now().Format("2006-01-02T15:04:05Z07:00")
		evals[i].Target = targetPath
		if err := evaluationResultStore(rt, evals[i]); err != nil {
			return err
		}
	}
	rt.logger.Info("policy evaluate-all complete", "target", targetPath, "policies_evaluated", len(evals))
	return json.NewEncoder(os.Stdout).Encode(evals)
}

// cmdList implements `cortex list` (spec §4.9): lists every registered policy.
func cmdList(args []string) error {
	fs, configPath, dev := newFlagSet("list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	reg, err := loadPolicyRegistry(rt)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(reg.List())
}

// policyValidate is the Policy Engine half of the shared `validate` verb
// (spec §4.9's ad hoc single-policy re-check): evaluates one policy against
// a target document without persisting an Evaluation record.
func policyValidate(rt *runtimeEnv, policyID, targetPath string) error {
	reg, err := loadPolicyRegistry(rt)
	if err != nil {
		return err
	}
	p, ok := reg.Get(policyID)
	if !ok {
		return cortexerr.NotFound("validate: policy "+policyID+" not found", nil)
	}
	target, err := loadTarget(targetPath)
	if err != nil {
		return err
	}
	eval := policy.EvaluatePolicy(p, target)
	rt.logger.Info("policy validated", "policy_id", policyID, "result", eval.Result)
	return json.NewEncoder(os.Stdout).Encode(eval)
}
