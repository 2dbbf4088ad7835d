package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/cortexplane/control-plane/internal/allocator"
	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/heartbeat"
	"github.com/cortexplane/control-plane/internal/prompts"
	"github.com/cortexplane/control-plane/internal/remediator"
	"github.com/cortexplane/control-plane/internal/router"
	"github.com/cortexplane/control-plane/internal/specbuilder"
	"github.com/cortexplane/control-plane/internal/store"
)

// fileAllocationHistory implements allocator.HistoryStore by appending every
// outcome to one per-environment JSONL stream and scanning it for the most
// recent matching observations. A handful of allocations per task type is
// small enough that a full-file scan per allocate call is not worth
// indexing further.
type fileAllocationHistory struct {
	st *store.Store
}

func (h fileAllocationHistory) path() string {
	return h.st.EnvPath(store.DirMetrics, "allocation-history.jsonl")
}

func (h fileAllocationHistory) Record(o allocator.Outcome) error {
	return store.AppendJSONL(h.path(), o)
}

func (h fileAllocationHistory) Recent(taskType string, complexity allocator.Complexity, limit int) ([]allocator.Outcome, error) {
	var matches []allocator.Outcome
	err := store.ReadJSONL(h.path(), func(line []byte) error {
		var o allocator.Outcome
		if err := json.Unmarshal(line, &o); err != nil {
			return err
		}
		if o.TaskType == taskType && o.Complexity == complexity {
			matches = append(matches, o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(matches) > limit {
		matches = matches[len(matches)-limit:]
	}
	return matches, nil
}

func allocationPath(st *store.Store, allocationID string) string {
	return st.EnvPath(store.DirMetrics, "allocations", allocationID+".json")
}

func saveAllocation(st *store.Store, a allocator.Allocation) error {
	return store.WriteJSON(allocationPath(st, a.AllocationID), a)
}

func loadAllocation(st *store.Store, allocationID string) (allocator.Allocation, error) {
	var a allocator.Allocation
	err := store.ReadJSON(allocationPath(st, allocationID), &a)
	return a, err
}

// taskRecord is the minimal task-queue entry specbuilder.TaskExists checks
// against; the CLI has no standalone task-management verbs, so `allocate`
// writes this record as a side effect of producing an Allocation for a
// task_id, closing the loop spec §6's coordination layout implies
// (`<env>/tasks/`) without inventing a task CRUD surface the spec doesn't
// list.
type taskRecord struct {
	TaskID      string    `json:"task_id"`
	Type        string    `json:"type"`
	Priority    string    `json:"priority"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func taskPath(st *store.Store, taskID string) string {
	return st.EnvPath(store.DirTasks, taskID+".json")
}

func saveTaskRecord(st *store.Store, t taskRecord) error {
	return store.WriteJSON(taskPath(st, t.TaskID), t)
}

func taskExists(st *store.Store) func(taskID string) (bool, error) {
	return func(taskID string) (bool, error) {
		var t taskRecord
		err := store.ReadJSON(taskPath(st, taskID), &t)
		if err == nil {
			return true, nil
		}
		if cortexerr.Is(err, cortexerr.KindNotFound) {
			return false, nil
		}
		return false, err
	}
}

func loadTaskRecord(st *store.Store, taskID string) (taskRecord, bool, error) {
	var t taskRecord
	err := store.ReadJSON(taskPath(st, taskID), &t)
	if cortexerr.Is(err, cortexerr.KindNotFound) {
		return taskRecord{}, false, nil
	}
	if err != nil {
		return taskRecord{}, false, err
	}
	return t, true, nil
}

// approvalRecord is the minimal shape an operator-provisioned approval file
// takes under policies/approvals/<approval_id>.json; the CLI has no
// approval-granting verb (out of scope per the spec's CLI surface), so this
// is written by whatever external governance process approves the request.
type approvalRecord struct {
	ApprovalID string `json:"approval_id"`
	Approved   bool   `json:"approved"`
}

func approvalPath(st *store.Store, approvalID string) string {
	return st.EnvPath(store.DirPolicies, "approvals", approvalID+".json")
}

// approvalApproved reports whether approvalID names an approved record. A
// missing or unapproved record is not an error — the gate step using this
// just fails closed.
func approvalApproved(st *store.Store, approvalID string) (bool, error) {
	var rec approvalRecord
	err := store.ReadJSON(approvalPath(st, approvalID), &rec)
	if cortexerr.Is(err, cortexerr.KindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Approved, nil
}

// activeWorkerCountByType counts active (not yet completed/failed)
// WorkerSpecs of the given worker_type, backing the concurrent-worker-cap
// pre-flight check.
func activeWorkerCountByType(st *store.Store, workerType string) (int, error) {
	dir := st.EnvPath(store.DirWorkerSpecs, store.WorkerSpecsActive)
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, cortexerr.Transient("compliance: glob active worker specs", err)
	}
	count := 0
	for _, path := range matches {
		var spec specbuilder.WorkerSpec
		if err := store.ReadJSON(path, &spec); err != nil {
			return 0, err
		}
		if spec.WorkerType == workerType {
			count++
		}
	}
	return count, nil
}

// appendComplianceFailed records a denied pre-flight step (spec §4.9/§7:
// PolicyDenied emits a compliance.failed event) so the dashboard event
// streams used elsewhere (heartbeat/remediation) carry gate denials too.
func appendComplianceFailed(st *store.Store, workerID, taskID string, step int, reason string, at time.Time) error {
	return store.AppendJSONL(st.EnvPath(store.DirEvents, "compliance.jsonl"), map[string]any{
		"event_type": "compliance.failed",
		"worker_id":  workerID,
		"task_id":    taskID,
		"step":       step,
		"reason":     reason,
		"timestamp":  at,
	})
}

// routerStatePath is per-environment: masters are routed independently per
// environment's own learned history.
func routerStatePath(st *store.Store) string {
	return st.EnvPath(store.DirRouting, "adjustments.json")
}

func loadRouterAdjustments(st *store.Store) ([]router.AdjustmentEntry, error) {
	var entries []router.AdjustmentEntry
	err := store.ReadJSON(routerStatePath(st), &entries)
	if cortexerr.Is(err, cortexerr.KindNotFound) {
		return nil, nil
	}
	return entries, err
}

func saveRouterAdjustments(st *store.Store, entries []router.AdjustmentEntry) error {
	return store.WriteJSON(routerStatePath(st), entries)
}

// defaultBaselines is the fallback used when no shared baselines.json has
// been provisioned yet; values match the two reference masters used
// throughout spec §8's worked scenarios.
func defaultBaselines() router.StaticBaselines {
	return router.StaticBaselines{
		"security-master": {
			router.ObjSpeed: 0.5, router.ObjQuality: 0.9, router.ObjCost: 0.5, router.ObjSuccessRate: 0.85,
		},
		"development-master": {
			router.ObjSpeed: 0.7, router.ObjQuality: 0.6, router.ObjCost: 0.6, router.ObjSuccessRate: 0.7,
		},
	}
}

// baselinesPath is shared across environments: capability baselines are a
// property of the master roster, not of any one environment's history.
func baselinesPath(st *store.Store) string {
	return st.SharedPath(store.DirRouting, "baselines.json")
}

func loadBaselines(st *store.Store) (router.StaticBaselines, error) {
	var baselines router.StaticBaselines
	err := store.ReadJSON(baselinesPath(st), &baselines)
	if cortexerr.Is(err, cortexerr.KindNotFound) {
		return defaultBaselines(), nil
	}
	if err != nil {
		return nil, err
	}
	return baselines, nil
}

// promptRegistryPath is shared: prompt versions are not per-environment.
func promptRegistryPath(st *store.Store) string {
	return st.SharedPath(store.DirPrompts, "registry.json")
}

type registrySnapshot struct {
	Versions map[string][]prompts.Version `json:"versions"`
	Active   map[string]string            `json:"active"`
}

func loadPromptRegistry(st *store.Store) (*prompts.Registry, error) {
	var snap registrySnapshot
	err := store.ReadJSON(promptRegistryPath(st), &snap)
	if cortexerr.Is(err, cortexerr.KindNotFound) {
		return prompts.NewRegistry(), nil
	}
	if err != nil {
		return nil, err
	}
	return prompts.LoadRegistry(snap.Versions, snap.Active), nil
}

func savePromptRegistry(st *store.Store, reg *prompts.Registry) error {
	snap := registrySnapshot{Versions: reg.AllVersions(), Active: reg.ActivePointers()}
	return store.WriteJSON(promptRegistryPath(st), snap)
}

func abTestPath(st *store.Store, testID string) string {
	return st.SharedPath(store.DirPrompts, "ab-tests", testID+".json")
}

func saveABTest(st *store.Store, test prompts.ABTest) error {
	return store.WriteJSON(abTestPath(st, test.TestID), test)
}

func loadABTest(st *store.Store, testID string) (prompts.ABTest, error) {
	var test prompts.ABTest
	err := store.ReadJSON(abTestPath(st, testID), &test)
	return test, err
}

// playbookIndexPath holds the declarative remediation playbooks operators
// provision; this CLI only reads it (playbook authoring is out of scope,
// matching the spec's silence on a playbook-authoring verb).
func playbookIndexPath(st *store.Store) string {
	return st.SharedPath(store.DirPlaybooks, "index.json")
}

func loadPlaybooks(st *store.Store) ([]remediator.Playbook, error) {
	var playbooks []remediator.Playbook
	err := store.ReadJSON(playbookIndexPath(st), &playbooks)
	if cortexerr.Is(err, cortexerr.KindNotFound) {
		return nil, nil
	}
	return playbooks, err
}

func executionPath(st *store.Store, executionID string) string {
	return st.SharedPath(store.DirPlaybooks, "executions", executionID+".json")
}

func saveExecution(st *store.Store, exec remediator.Execution) error {
	return store.WriteJSON(executionPath(st, exec.ExecutionID), exec)
}

func loadExecution(st *store.Store, executionID string) (remediator.Execution, error) {
	var exec remediator.Execution
	err := store.ReadJSON(executionPath(st, executionID), &exec)
	return exec, err
}

func historyPath(st *store.Store) string {
	return st.SharedPath(store.DirPlaybooks, "history.jsonl")
}

// coolingPeriodLookup implements remediator.CoolingPeriodLookup by scanning
// the shared execution history for the most recent completed run of a
// playbook.
func coolingPeriodLookup(st *store.Store) remediator.CoolingPeriodLookup {
	return func(playbookID string) (time.Time, bool, error) {
		var latest time.Time
		found := false
		err := store.ReadJSONL(historyPath(st), func(line []byte) error {
			var exec remediator.Execution
			if err := json.Unmarshal(line, &exec); err != nil {
				return err
			}
			if exec.PlaybookID == playbookID && exec.CompletedAt.After(latest) {
				latest = exec.CompletedAt
				found = true
			}
			return nil
		})
		return latest, found, err
	}
}

func appendExecutionHistory(st *store.Store, exec remediator.Execution) error {
	return store.AppendJSONL(historyPath(st), exec)
}

// heartbeatSnapshotStore implements heartbeat.SnapshotStore over one JSON
// file per worker under the environment's metrics tree.
type heartbeatSnapshotStore struct {
	st *store.Store
}

func (s heartbeatSnapshotStore) path(workerID string) string {
	return s.st.EnvPath(store.DirMetrics, "heartbeats", workerID+".json")
}

func (s heartbeatSnapshotStore) Load(workerID string) (heartbeat.Heartbeat, bool, error) {
	var hb heartbeat.Heartbeat
	err := store.ReadJSON(s.path(workerID), &hb)
	if cortexerr.Is(err, cortexerr.KindNotFound) {
		return heartbeat.Heartbeat{}, false, nil
	}
	if err != nil {
		return heartbeat.Heartbeat{}, false, err
	}
	return hb, true, nil
}

func (s heartbeatSnapshotStore) Save(workerID string, hb heartbeat.Heartbeat) error {
	return store.WriteJSON(s.path(workerID), hb)
}

func failureEventsPath(st *store.Store) string {
	return st.EnvPath(store.DirEvents, "heartbeat-failures.jsonl")
}

func appendFailureEvent(st *store.Store, evt heartbeat.FailureEvent) error {
	return store.AppendJSONL(failureEventsPath(st), evt)
}

// activeWorkerHealthScores reads every persisted heartbeat snapshot under
// this environment's metrics tree, keyed by worker_id, for the `serve`
// verb's health-score gauge.
func activeWorkerHealthScores(st *store.Store) (map[string]int, error) {
	dir := st.EnvPath(store.DirMetrics, "heartbeats")
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, cortexerr.Transient("serve: glob heartbeat snapshots", err)
	}
	out := make(map[string]int, len(matches))
	for _, path := range matches {
		var hb heartbeat.Heartbeat
		if err := store.ReadJSON(path, &hb); err != nil {
			continue
		}
		workerID := strings.TrimSuffix(filepath.Base(path), ".json")
		out[workerID] = hb.Health.HealthScore
	}
	return out, nil
}

func patternIndexPath(st *store.Store) string {
	return st.SharedPath(store.DirPatterns, "pattern-index.json")
}

func patternStreamPath(st *store.Store) string {
	return st.SharedPath(store.DirPatterns, "failure-patterns.jsonl")
}

func policyDefinitionsDir(st *store.Store, definitionsDir string) string {
	return filepath.Join(st.Root, definitionsDir)
}

func evaluationResultPath(st *store.Store, evaluationID string) string {
	return st.SharedPath(store.DirPolicies, "evaluation-results", evaluationID+".json")
}
