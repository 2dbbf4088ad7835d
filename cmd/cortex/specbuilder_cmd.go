package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/specbuilder"
	"github.com/cortexplane/control-plane/internal/store"
)

// cmdBuild implements `cortex build` (spec §4.2): assembles and persists a
// WorkerSpec. Since each CLI invocation is a fresh process, the
// duplicate-worker-id check that specbuilder.Builder otherwise tracks
// in-memory is done here against the active worker-specs directory before
// calling BuildSpec. After that duplicate check and before BuildSpec,
// compliancePreflight runs spec §4.9's 8-step compliance gate; a denial
// aborts before anything is written and emits a compliance.failed event.
func cmdBuild(args []string) error {
	fs, configPath, dev := newFlagSet("build")
	workerID := fs.String("worker-id", "", "worker id, e.g. worker-impl-a1b2 (required)")
	workerType := fs.String("worker-type", "", "worker type (required)")
	taskID := fs.String("task-id", "", "task id this worker serves (required)")
	tokenBudget := fs.Int("token-budget", 0, "token budget override (0 = use worker-type default)")
	timeoutMinutes := fs.Int("timeout-minutes", 60, "timeout in minutes")
	maxRetries := fs.Int("max-retries", 2, "max retries")
	scopeJSON := fs.String("scope", "{}", "JSON object describing the worker's scope")
	contextJSON := fs.String("context", "{}", "JSON object of additional context")
	output := fs.String("output", "", "optional path to also write the spec to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *workerID == "" || *workerType == "" || *taskID == "" {
		return cortexerr.InvalidInput("build: --worker-id, --worker-type and --task-id are required", nil)
	}

	var scope, ctx map[string]any
	if err := json.Unmarshal([]byte(*scopeJSON), &scope); err != nil {
		return cortexerr.InvalidInput("build: --scope must be a JSON object", err)
	}
	if err := json.Unmarshal([]byte(*contextJSON), &ctx); err != nil {
		return cortexerr.InvalidInput("build: --context must be a JSON object", err)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}

	activePath := rt.store.EnvPath(store.DirWorkerSpecs, store.WorkerSpecsActive, *workerID+".json")
	if _, err := os.Stat(activePath); err == nil {
		return cortexerr.FatalInvariant("build: duplicate worker_id "+*workerID, nil)
	}

	b := &specbuilder.Builder{
		St:                 rt.store,
		MaxTokensPerWorker: rt.cfg.Allocator.MaxTokensPerWorker,
		TaskExists:         taskExists(rt.store),
		Now:                rt.clock.Now,
		Warnf:              func(format string, a ...any) { rt.logger.Warn("specbuilder: " + fmt.Sprintf(format, a...)) },
	}

	opts := specbuilder.BuildOpts{
		WorkerID:   *workerID,
		WorkerType: *workerType,
		TaskID:     *taskID,
		CreatedBy:  principal(),
		Scope:      scope,
		Context:    ctx,
	}
	if *tokenBudget > 0 || *timeoutMinutes != 60 || *maxRetries != 2 {
		opts.Resources = &specbuilder.Resources{
			TokenBudget:    *tokenBudget,
			TimeoutMinutes: *timeoutMinutes,
			MaxRetries:     *maxRetries,
		}
	}

	if err := compliancePreflight(rt, opts); err != nil {
		return err
	}

	spec, err := b.BuildSpec(opts)
	if err != nil {
		return err
	}
	rt.logger.Info("worker spec built", "worker_id", spec.WorkerID, "task_id", spec.TaskID, "token_budget", spec.Resources.TokenBudget)

	if *output != "" {
		if err := store.WriteJSON(*output, spec); err != nil {
			return err
		}
	}
	return json.NewEncoder(os.Stdout).Encode(spec)
}
