package main

import (
	"encoding/json"
	"os"

	"github.com/cortexplane/control-plane/internal/allocator"
	"github.com/cortexplane/control-plane/internal/cortexerr"

	"github.com/google/uuid"
)

func newAllocator(rt *runtimeEnv) *allocator.Allocator {
	return &allocator.Allocator{
		MaxTokensPerWorker: rt.cfg.Allocator.MaxTokensPerWorker,
		HistoryWindow:      rt.cfg.Allocator.HistoryWindow,
		HistoryMinSamples:  rt.cfg.Allocator.HistoryMinSamples,
		ExtensionFraction:  rt.cfg.Allocator.ExtensionFraction,
		History:            fileAllocationHistory{st: rt.store},
		Now:                rt.clock.Now,
		NewID:              func() string { return "alloc-" + uuid.NewString() },
	}
}

// cmdAllocate implements `cortex allocate` (spec §6): scores a task
// description, produces a sealed resource envelope, persists both the
// allocation and a minimal task record so specbuilder's TaskExists
// precondition can later find it.
func cmdAllocate(args []string) error {
	fs, configPath, dev := newFlagSet("allocate")
	taskID := fs.String("task-id", "", "task id (generated if omitted)")
	taskType := fs.String("task-type", "", "task type")
	priority := fs.String("priority", "medium", "task priority: critical|high|medium|low")
	description := fs.String("task-description", "", "task description (required)")
	fileCount := fs.Int("file-count", 0, "number of files the task touches")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *description == "" {
		return cortexerr.InvalidInput("allocate: --task-description is required", nil)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}

	id := *taskID
	if id == "" {
		id = "task-" + rt.clock.Now().Format("20060102T150405.000000000")
	}

	task := allocator.Task{
		ID:          id,
		Type:        *taskType,
		Priority:    *priority,
		Description: *description,
		FileCount:   *fileCount,
	}

	alloc, err := newAllocator(rt).Allocate(task)
	if err != nil {
		return err
	}

	if err := saveTaskRecord(rt.store, taskRecord{
		TaskID:      id,
		Type:        *taskType,
		Priority:    *priority,
		Description: *description,
		CreatedAt:   rt.clock.Now(),
	}); err != nil {
		return err
	}
	if err := saveAllocation(rt.store, alloc); err != nil {
		return err
	}

	rt.logger.Info("allocation created", "task_id", id, "allocation_id", alloc.AllocationID, "complexity", alloc.Complexity, "token_budget", alloc.TokenBudget)
	return json.NewEncoder(os.Stdout).Encode(alloc)
}

// cmdRecordOutcome is shared by the Allocator and Prompts subsystems (spec
// §6 names both as `record-outcome`); the handler disambiguates on which
// id flag is supplied rather than forcing distinct verb names the spec
// doesn't.
func cmdRecordOutcome(args []string) error {
	fs, configPath, dev := newFlagSet("record-outcome")
	allocationID := fs.String("allocation-id", "", "allocation id (Allocator outcome)")
	versionID := fs.String("version-id", "", "prompt version id (Prompts outcome)")
	promptID := fs.String("prompt-id", "", "prompt id (Prompts outcome)")
	taskType := fs.String("task-type", "", "task type (Allocator outcome)")
	actualTokens := fs.Int("actual-tokens", 0, "actual tokens consumed (Allocator outcome)")
	actualTimeSeconds := fs.Int("actual-time-seconds", 0, "actual wall time in seconds (Allocator outcome)")
	succeeded := fs.Bool("succeeded", true, "whether the task succeeded")
	taskID := fs.String("task-id", "", "task id (Prompts outcome)")
	qualityScore := fs.Float64("quality-score", 0, "quality score in [0,1] (Prompts outcome)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *allocationID != "" && *versionID != "" {
		return cortexerr.InvalidInput("record-outcome: supply either --allocation-id or --version-id, not both", nil)
	}
	if *versionID != "" && *promptID == "" {
		return cortexerr.InvalidInput("record-outcome: --prompt-id is required with --version-id", nil)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}

	switch {
	case *versionID != "":
		return recordPromptOutcome(rt, *versionID, *taskID, *promptID, *qualityScore, *succeeded)
	case *allocationID != "":
		return recordAllocationOutcome(rt, *allocationID, *taskType, *actualTokens, *actualTimeSeconds, *succeeded)
	default:
		return cortexerr.InvalidInput("record-outcome: one of --allocation-id or --version-id is required", nil)
	}
}

func recordAllocationOutcome(rt *runtimeEnv, allocationID, taskType string, actualTokens, actualTimeSeconds int, succeeded bool) error {
	alloc, err := loadAllocation(rt.store, allocationID)
	if err != nil {
		return err
	}
	a := newAllocator(rt)
	outcome, err := a.RecordUsage(alloc, taskType, actualTokens, actualTimeSeconds, succeeded)
	if err != nil {
		return err
	}
	if err := saveAllocation(rt.store, alloc); err != nil {
		return err
	}
	rt.logger.Info("allocation outcome recorded", "allocation_id", allocationID, "efficiency", outcome.Efficiency)
	return json.NewEncoder(os.Stdout).Encode(outcome)
}
