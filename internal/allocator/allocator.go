// Package allocator produces a resource envelope from a task description:
// complexity scoring, token/time/memory budgeting, the extension protocol,
// and outcome-driven historical learning (spec §4.1). The tier-banding
// style generalizes the teacher's internal/scheduler/complexity.go; token
// accounting generalizes internal/cost/tokens.go to real BPE counting.
package allocator

import (
	"strings"
	"time"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

// Complexity is the banded estimate of how hard a task is.
type Complexity string

const (
	Simple       Complexity = "simple"
	Medium       Complexity = "medium"
	Complex      Complexity = "complex"
	VeryComplex  Complexity = "very-complex"
)

// Task is the Allocator's input.
type Task struct {
	ID          string
	Type        string
	Priority    string // critical | high | medium | low
	Description string
	FileCount   int
}

// Allocation is the resource envelope produced for one task.
type Allocation struct {
	AllocationID     string     `json:"allocation_id"`
	TaskID           string     `json:"task_id"`
	Complexity       Complexity `json:"complexity"`
	TokenBudget      int        `json:"token_budget"`
	TimeBudgetSecond int        `json:"time_budget_seconds"`
	MemoryMB         int        `json:"memory_mb"`
	ExtensionLimit   int        `json:"extension_limit"`
	Extensions       int        `json:"extensions"`
	CreatedAt        time.Time  `json:"created_at"`
	Sealed           bool       `json:"sealed"`
}

var highComplexityKeywords = []string{"architecture", "migration", "distributed", "concurrency", "refactor entire", "security audit"}
var moderateComplexityKeywords = []string{"integrate", "multi-step", "cross-module", "api design"}
var lowComplexityKeywords = []string{"typo", "rename", "comment", "trivial", "one-line"}

// typeMultiplier is the table referenced by spec §4.1 step 3 / GLOSSARY.
var typeMultiplier = map[string]float64{
	"implementation": 1.5,
	"security-scan":  1.2,
	"bug-fix":        1.0,
	"documentation":  0.8,
	"test":           1.1,
	"refactor":       1.3,
	"research":       0.9,
	"review":         0.9,
}

var priorityMultiplier = map[string]float64{
	"critical": 1.3,
	"high":     1.2,
	"medium":   1.0,
	"low":      0.9,
}

var baseTokensByComplexity = map[Complexity]int{
	Simple:      5000,
	Medium:      12000,
	Complex:     25000,
	VeryComplex: 50000,
}

// ScoreComplexity implements spec §4.1 step 1.
func ScoreComplexity(t Task) int {
	lower := strings.ToLower(t.Description)
	score := 0
	for _, kw := range highComplexityKeywords {
		if strings.Contains(lower, kw) {
			score += 3
		}
	}
	for _, kw := range moderateComplexityKeywords {
		if strings.Contains(lower, kw) {
			score += 1
		}
	}
	for _, kw := range lowComplexityKeywords {
		if strings.Contains(lower, kw) {
			score -= 2
		}
	}

	switch {
	case len(t.Description) > 1000:
		score += 3
	case len(t.Description) > 500:
		score += 2
	case len(t.Description) > 200:
		score += 1
	}

	switch {
	case t.FileCount > 10:
		score += 3
	case t.FileCount > 5:
		score += 2
	case t.FileCount > 1:
		score += 1
	}

	switch t.Priority {
	case "critical":
		score += 2
	case "high":
		score += 1
	}

	if score < 0 {
		score = 0
	}
	return score
}

// ComplexityFromScore implements the band mapping in spec §4.1 step 1 / §8.
func ComplexityFromScore(score int) Complexity {
	switch {
	case score >= 10:
		return VeryComplex
	case score >= 6:
		return Complex
	case score >= 3:
		return Medium
	default:
		return Simple
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// efficiencyBand implements spec §4.1's record_usage utilization table:
// [0.8,0.95]->1.0; (0.95,1.0]->0.85; >1.0->0.7; [0.7,0.8)->0.9; <0.7->0.75.
// The 0.95 boundary is inclusive to the 1.0 band, not the 0.85 one, so it
// must be checked after the [0.8,0.95] case.
func efficiencyBand(utilization float64) float64 {
	switch {
	case utilization > 1.0:
		return 0.7
	case utilization >= 0.8 && utilization <= 0.95:
		return 1.0
	case utilization > 0.95:
		return 0.85
	case utilization >= 0.7:
		return 0.9
	default:
		return 0.75
	}
}

// Outcome is one recorded usage observation, kept for the historical factor.
type Outcome struct {
	TaskType    string
	Complexity  Complexity
	Utilization float64
	Efficiency  float64
	Succeeded   bool
	RecordedAt  time.Time
}

// HistoryStore supplies the last N outcomes of a given (type, complexity)
// for the historical factor; allocator has no persistence opinion of its own.
type HistoryStore interface {
	Recent(taskType string, complexity Complexity, limit int) ([]Outcome, error)
	Record(o Outcome) error
}

// Allocator computes allocations and records outcomes for online learning.
type Allocator struct {
	MaxTokensPerWorker int
	HistoryWindow      int
	HistoryMinSamples  int
	ExtensionFraction  float64
	History            HistoryStore
	Counter            TokenCounter
	Now                func() time.Time
	NewID              func() string
}

// Allocate implements spec §4.1's allocate(task) -> Allocation contract.
func (a *Allocator) Allocate(t Task) (Allocation, error) {
	if t.ID == "" {
		return Allocation{}, cortexerr.InvalidInput("allocator: task id required", nil)
	}
	if t.Priority == "" {
		t.Priority = "medium"
	}

	score := ScoreComplexity(t)
	complexity := ComplexityFromScore(score)
	base := baseTokensByComplexity[complexity]

	typeMult, ok := typeMultiplier[t.Type]
	if !ok {
		typeMult = 1.0
	}
	prioMult, ok := priorityMultiplier[t.Priority]
	if !ok {
		prioMult = 1.0
	}

	historical := a.historicalFactor(t.Type, complexity)

	tokens := float64(base) * typeMult * prioMult * historical
	tokenBudget := clamp(int(tokens), 2000, 100000)
	if tokenBudget > a.MaxTokensPerWorker && a.MaxTokensPerWorker > 0 {
		tokenBudget = a.MaxTokensPerWorker
	}

	timeBudget := tokenBudget / 100
	memoryMB := clamp((tokenBudget+999)/1000, 256, 4096)
	extensionLimit := int(1.5 * float64(tokenBudget))

	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	newID := func() string { return "alloc-" + t.ID }
	if a.NewID != nil {
		newID = a.NewID
	}

	return Allocation{
		AllocationID:     newID(),
		TaskID:           t.ID,
		Complexity:       complexity,
		TokenBudget:      tokenBudget,
		TimeBudgetSecond: timeBudget,
		MemoryMB:         memoryMB,
		ExtensionLimit:   extensionLimit,
		CreatedAt:        now(),
	}, nil
}

// historicalFactor implements spec §4.1 step 5.
func (a *Allocator) historicalFactor(taskType string, complexity Complexity) float64 {
	if a.History == nil {
		return 1.0
	}
	window := a.HistoryWindow
	if window <= 0 {
		window = 10
	}
	minSamples := a.HistoryMinSamples
	if minSamples <= 0 {
		minSamples = 3
	}
	outcomes, err := a.History.Recent(taskType, complexity, window)
	if err != nil || len(outcomes) < minSamples {
		return 1.0
	}
	var sum float64
	for _, o := range outcomes {
		sum += o.Efficiency
	}
	mean := sum / float64(len(outcomes))
	// Map observed mean efficiency (roughly [0.7,1.0]) onto the [0.8,1.1]
	// historical-factor range spec §4.1 step 5 specifies.
	factor := 0.8 + (mean-0.7)*(0.3/0.3)
	return clampFloat(factor, 0.8, 1.1)
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

// Extend implements spec §4.1's extension protocol: at most one extension
// per allocation in v1, increasing token_budget by up to fraction (default
// 25%) of current, capped at extension_limit.
func (a *Allocator) Extend(alloc *Allocation, reason string, requestedTokens int) error {
	if alloc.Sealed {
		return cortexerr.PreconditionFailed("allocator: allocation is sealed", nil)
	}
	if alloc.Extensions >= 1 {
		return cortexerr.PreconditionFailed("allocator: at most one extension per allocation in v1", nil)
	}
	if reason == "" {
		return cortexerr.InvalidInput("allocator: extension reason required", nil)
	}
	fraction := a.ExtensionFraction
	if fraction <= 0 {
		fraction = 0.25
	}
	maxIncrease := int(float64(alloc.TokenBudget) * fraction)
	increase := requestedTokens
	if increase > maxIncrease {
		increase = maxIncrease
	}
	newBudget := alloc.TokenBudget + increase
	if newBudget > alloc.ExtensionLimit {
		newBudget = alloc.ExtensionLimit
	}
	alloc.TokenBudget = newBudget
	alloc.Extensions++
	return nil
}

// RecordUsage implements spec §4.1's record_usage, computing utilization
// and efficiency and persisting the observation for future allocations.
func (a *Allocator) RecordUsage(alloc Allocation, taskType string, actualTokens int, actualTimeSeconds int, succeeded bool) (Outcome, error) {
	if alloc.TokenBudget == 0 {
		return Outcome{}, cortexerr.InvalidInput("allocator: allocation has zero token budget", nil)
	}
	utilization := float64(actualTokens) / float64(alloc.TokenBudget)
	efficiency := efficiencyBand(utilization)
	if !succeeded {
		efficiency /= 2
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	o := Outcome{
		TaskType:    taskType,
		Complexity:  alloc.Complexity,
		Utilization: utilization,
		Efficiency:  efficiency,
		Succeeded:   succeeded,
		RecordedAt:  now(),
	}
	if a.History != nil {
		if err := a.History.Record(o); err != nil {
			return o, cortexerr.Transient("allocator: record outcome", err)
		}
	}
	return o, nil
}
