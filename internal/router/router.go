// Package router implements the utility-based master selector (spec §4.3):
// weighted multi-objective scoring with task-type profile overrides and
// context adjustments, per-(master, task_type) capability learning via EMA,
// and RoutingDecision persistence for audit.
package router

import (
	"fmt"
	"sort"
	"time"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

// Weights are the four objective weights the Router optimizes over.
type Weights struct {
	Speed       float64
	Quality     float64
	Cost        float64
	SuccessRate float64
}

func (w Weights) normalize() Weights {
	sum := w.Speed + w.Quality + w.Cost + w.SuccessRate
	if sum <= 0 {
		return Weights{Speed: 0.25, Quality: 0.25, Cost: 0.25, SuccessRate: 0.25}
	}
	return Weights{
		Speed:       w.Speed / sum,
		Quality:     w.Quality / sum,
		Cost:        w.Cost / sum,
		SuccessRate: w.SuccessRate / sum,
	}
}

// Context carries the task attributes spec §4.3's context adjustments key off.
type Context struct {
	Priority   string // critical | high | medium | low
	Complexity string // high | very-high | medium | simple
	Deadline   string // urgent | normal
	Budget     string // constrained | normal
}

// applyContext implements spec §4.3's multiplicative context-adjustment table.
func applyContext(w Weights, ctx Context) Weights {
	if ctx.Priority == "critical" {
		w.Quality *= 1.5
		w.SuccessRate *= 1.3
		w.Cost *= 0.5
	}
	switch ctx.Complexity {
	case "high":
		w.Quality *= 1.3
		w.SuccessRate *= 1.2
	case "very-high":
		w.Quality *= 1.5
		w.SuccessRate *= 1.4
	}
	if ctx.Deadline == "urgent" {
		w.Speed *= 1.8
		w.Quality *= 0.9
	}
	if ctx.Budget == "constrained" {
		w.Cost *= 1.6
		w.Speed *= 0.8
	}
	return w.normalize()
}

// Objective names capability scores are keyed by.
const (
	ObjSpeed       = "speed"
	ObjQuality     = "quality"
	ObjCost        = "cost"
	ObjSuccessRate = "success_rate"
)

// capabilityKey identifies one (master, task_type) learned-adjustment slot.
type capabilityKey struct {
	Master   string
	TaskType string
}

// Baselines supplies the static per-master, per-objective baseline score
// (spec §4.3: "Baselines are static per master (see corpus)").
type Baselines interface {
	Baseline(master, objective string) float64
}

// StaticBaselines is a simple in-memory Baselines implementation.
type StaticBaselines map[string]map[string]float64

func (b StaticBaselines) Baseline(master, objective string) float64 {
	if m, ok := b[master]; ok {
		return m[objective]
	}
	return 0.5
}

// Outcome is one recorded task result used to update learned adjustments.
type Outcome struct {
	Speed       float64 // ∈[0,1]
	Quality     float64
	Cost        float64
	SuccessRate float64
}

// RoutingDecision is the audit record persisted per spec §3's RoutingDecision
// entity.
type RoutingDecision struct {
	TaskID             string             `json:"task_id"`
	Candidates         []string           `json:"candidates"`
	ObjectiveBreakdown map[string]Weights `json:"objective_breakdown"`
	SelectedMaster     string             `json:"selected_master"`
	UtilityScore       float64            `json:"utility_score"`
	WeightsUsed        Weights            `json:"weights_used"`
	Timestamp          time.Time          `json:"timestamp"`
}

// Router selects masters by weighted utility and learns per-(master,
// task_type) capability adjustments online.
type Router struct {
	BaseWeights      Weights
	TaskTypeProfiles map[string]Weights
	LearningRate     float64 // EMA alpha, default 0.2
	AdjustmentCap    float64 // default 0.2
	Baselines        Baselines
	Now              func() time.Time

	adjustments map[capabilityKey]map[string]float64
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// capabilityScore implements spec §4.3: clamp(baseline + historical_adjustment, 0, 1).
func (r *Router) capabilityScore(master, taskType, objective string) float64 {
	baseline := 0.5
	if r.Baselines != nil {
		baseline = r.Baselines.Baseline(master, objective)
	}
	adj := 0.0
	if r.adjustments != nil {
		if m, ok := r.adjustments[capabilityKey{master, taskType}]; ok {
			adj = m[objective]
		}
	}
	return clampFloat(baseline+adj, 0, 1)
}

// Select implements spec §4.3's selection contract: for each candidate,
// compute weighted utility ∈[0,1]; pick argmax; deterministic tie-break by
// master id; persist a RoutingDecision.
func (r *Router) Select(taskID, taskType string, candidates []string, ctx Context) (RoutingDecision, error) {
	if len(candidates) == 0 {
		return RoutingDecision{}, cortexerr.InvalidInput("router: no candidate masters supplied", nil)
	}

	weights := r.BaseWeights
	if profile, ok := r.TaskTypeProfiles[taskType]; ok {
		weights = profile
	}
	weights = applyContext(weights, ctx)

	breakdown := make(map[string]Weights, len(candidates))
	utilities := make(map[string]float64, len(candidates))
	for _, m := range candidates {
		speed := r.capabilityScore(m, taskType, ObjSpeed)
		quality := r.capabilityScore(m, taskType, ObjQuality)
		cost := r.capabilityScore(m, taskType, ObjCost)
		success := r.capabilityScore(m, taskType, ObjSuccessRate)
		breakdown[m] = Weights{
			Speed:       weights.Speed * speed,
			Quality:     weights.Quality * quality,
			Cost:        weights.Cost * cost,
			SuccessRate: weights.SuccessRate * success,
		}
		utilities[m] = breakdown[m].Speed + breakdown[m].Quality + breakdown[m].Cost + breakdown[m].SuccessRate
	}

	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)

	best := sorted[0]
	bestUtility := utilities[best]
	for _, m := range sorted[1:] {
		if utilities[m] > bestUtility {
			best = m
			bestUtility = utilities[m]
		}
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	return RoutingDecision{
		TaskID:             taskID,
		Candidates:         candidates,
		ObjectiveBreakdown: breakdown,
		SelectedMaster:     best,
		UtilityScore:       bestUtility,
		WeightsUsed:        weights,
		Timestamp:          now(),
	}, nil
}

// UpdatePerformance implements spec §4.3's update contract: on task outcome,
// adjust per-(master, task_type) EMA deltas against each objective's
// observed value, capped to [-AdjustmentCap, +AdjustmentCap].
func (r *Router) UpdatePerformance(master, taskType string, outcome Outcome) error {
	if master == "" || taskType == "" {
		return cortexerr.InvalidInput("router: master and task_type required", nil)
	}
	alpha := r.LearningRate
	if alpha <= 0 {
		alpha = 0.2
	}
	cap := r.AdjustmentCap
	if cap <= 0 {
		cap = 0.2
	}
	if r.adjustments == nil {
		r.adjustments = make(map[capabilityKey]map[string]float64)
	}
	key := capabilityKey{master, taskType}
	adj, ok := r.adjustments[key]
	if !ok {
		adj = make(map[string]float64)
		r.adjustments[key] = adj
	}

	observed := map[string]float64{
		ObjSpeed:       outcome.Speed,
		ObjQuality:     outcome.Quality,
		ObjCost:        outcome.Cost,
		ObjSuccessRate: outcome.SuccessRate,
	}
	for objective, obs := range observed {
		baseline := 0.5
		if r.Baselines != nil {
			baseline = r.Baselines.Baseline(master, objective)
		}
		next := adj[objective] + alpha*(obs-baseline)
		adj[objective] = clampFloat(next, -cap, cap)
	}
	return nil
}

// Adjustment returns the current learned EMA delta for (master, task_type,
// objective), mainly for tests and diagnostics.
func (r *Router) Adjustment(master, taskType, objective string) float64 {
	if r.adjustments == nil {
		return 0
	}
	m, ok := r.adjustments[capabilityKey{master, taskType}]
	if !ok {
		return 0
	}
	return m[objective]
}

// AdjustmentEntry is one flattened (master, task_type, objective) -> delta
// row, the CLI's on-disk persistence shape for a Router's learned state
// (the map[capabilityKey]... field isn't directly JSON-marshalable since
// capabilityKey isn't a string key).
type AdjustmentEntry struct {
	Master    string  `json:"master"`
	TaskType  string  `json:"task_type"`
	Objective string  `json:"objective"`
	Delta     float64 `json:"delta"`
}

// SnapshotAdjustments flattens the learned adjustment table for persistence.
func (r *Router) SnapshotAdjustments() []AdjustmentEntry {
	out := make([]AdjustmentEntry, 0, len(r.adjustments))
	for key, objectives := range r.adjustments {
		for objective, delta := range objectives {
			out = append(out, AdjustmentEntry{Master: key.Master, TaskType: key.TaskType, Objective: objective, Delta: delta})
		}
	}
	return out
}

// RestoreAdjustments reloads a previously-snapshotted adjustment table.
func (r *Router) RestoreAdjustments(entries []AdjustmentEntry) {
	r.adjustments = make(map[capabilityKey]map[string]float64, len(entries))
	for _, e := range entries {
		key := capabilityKey{e.Master, e.TaskType}
		if r.adjustments[key] == nil {
			r.adjustments[key] = make(map[string]float64)
		}
		r.adjustments[key][e.Objective] = e.Delta
	}
}

// String renders weights for diagnostics/logging.
func (w Weights) String() string {
	return fmt.Sprintf("speed=%.3f quality=%.3f cost=%.3f success=%.3f", w.Speed, w.Quality, w.Cost, w.SuccessRate)
}
