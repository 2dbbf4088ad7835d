package main

import (
	"encoding/json"
	"os"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/router"
	"github.com/cortexplane/control-plane/internal/store"
)

func newRouter(rt *runtimeEnv) (*router.Router, error) {
	profiles := make(map[string]router.Weights, len(rt.cfg.Router.TaskTypeProfiles))
	for k, w := range rt.cfg.Router.TaskTypeProfiles {
		profiles[k] = router.Weights{Speed: w.Speed, Quality: w.Quality, Cost: w.Cost, SuccessRate: w.SuccessRate}
	}
	baselines, err := loadBaselines(rt.store)
	if err != nil {
		return nil, err
	}
	r := &router.Router{
		BaseWeights: router.Weights{
			Speed: rt.cfg.Router.BaseWeights.Speed, Quality: rt.cfg.Router.BaseWeights.Quality,
			Cost: rt.cfg.Router.BaseWeights.Cost, SuccessRate: rt.cfg.Router.BaseWeights.SuccessRate,
		},
		TaskTypeProfiles: profiles,
		LearningRate:     rt.cfg.Router.LearningRate,
		AdjustmentCap:    rt.cfg.Router.AdjustmentCap,
		Baselines:        baselines,
		Now:              rt.clock.Now,
	}
	entries, err := loadRouterAdjustments(rt.store)
	if err != nil {
		return nil, err
	}
	r.RestoreAdjustments(entries)
	return r, nil
}

type selectTaskInput struct {
	TaskID     string   `json:"task_id"`
	TaskType   string   `json:"task_type"`
	Candidates []string `json:"candidates"`
	Priority   string   `json:"priority"`
	Complexity string   `json:"complexity"`
	Deadline   string   `json:"deadline"`
	Budget     string   `json:"budget"`
}

// cmdSelect implements `cortex select` (spec §4.3): picks the candidate
// master maximizing weighted multi-objective utility and persists the
// RoutingDecision for audit.
func cmdSelect(args []string) error {
	fs, configPath, dev := newFlagSet("select")
	taskJSON := fs.String("task", "", "JSON: {task_id,task_type,candidates,priority,complexity,deadline,budget} (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskJSON == "" {
		return cortexerr.InvalidInput("select: --task is required", nil)
	}
	var in selectTaskInput
	if err := json.Unmarshal([]byte(*taskJSON), &in); err != nil {
		return cortexerr.InvalidInput("select: --task must be valid JSON", err)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	r, err := newRouter(rt)
	if err != nil {
		return err
	}

	decision, err := r.Select(in.TaskID, in.TaskType, in.Candidates, router.Context{
		Priority: in.Priority, Complexity: in.Complexity, Deadline: in.Deadline, Budget: in.Budget,
	})
	if err != nil {
		return err
	}

	if err := store.AppendJSONL(rt.store.EnvPath(store.DirRouting, "decisions.jsonl"), decision); err != nil {
		return err
	}
	rt.logger.Info("master selected", "task_id", in.TaskID, "selected_master", decision.SelectedMaster, "utility_score", decision.UtilityScore)
	return json.NewEncoder(os.Stdout).Encode(decision)
}

type updatePerformanceInput struct {
	Master   string  `json:"master"`
	TaskType string  `json:"task_type"`
	Speed    float64 `json:"speed"`
	Quality  float64 `json:"quality"`
	Cost     float64 `json:"cost"`
	Success  float64 `json:"success_rate"`
}

// cmdUpdatePerformance implements `cortex update-performance` (spec
// §4.3): folds an observed task outcome into the router's learned
// per-(master, task_type) EMA adjustments.
func cmdUpdatePerformance(args []string) error {
	fs, configPath, dev := newFlagSet("update-performance")
	master := fs.String("master", "", "master id (required)")
	taskType := fs.String("task-type", "", "task type (required)")
	outcomeJSON := fs.String("outcome", "", "JSON: {speed,quality,cost,success_rate} all in [0,1] (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *master == "" || *taskType == "" || *outcomeJSON == "" {
		return cortexerr.InvalidInput("update-performance: --master, --task-type and --outcome are required", nil)
	}
	var in updatePerformanceInput
	if err := json.Unmarshal([]byte(*outcomeJSON), &in); err != nil {
		return cortexerr.InvalidInput("update-performance: --outcome must be valid JSON", err)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	r, err := newRouter(rt)
	if err != nil {
		return err
	}

	if err := r.UpdatePerformance(*master, *taskType, router.Outcome{
		Speed: in.Speed, Quality: in.Quality, Cost: in.Cost, SuccessRate: in.Success,
	}); err != nil {
		return err
	}
	if err := saveRouterAdjustments(rt.store, r.SnapshotAdjustments()); err != nil {
		return err
	}
	rt.logger.Info("router performance updated", "master", *master, "task_type", *taskType)
	return json.NewEncoder(os.Stdout).Encode(map[string]float64{
		"speed":        r.Adjustment(*master, *taskType, router.ObjSpeed),
		"quality":      r.Adjustment(*master, *taskType, router.ObjQuality),
		"cost":         r.Adjustment(*master, *taskType, router.ObjCost),
		"success_rate": r.Adjustment(*master, *taskType, router.ObjSuccessRate),
	})
}
