// Package strategy implements the Strategy Selector (spec §4.8): combining
// vector recall, failure-pattern avoidance, and learned routing success
// rates into a single ranked list of candidate approaches.
package strategy

import "sort"

// Source names which of the three inputs produced a Suggestion.
type Source string

const (
	SourceVectorRecall     Source = "vector_recall"
	SourcePatternAvoidance Source = "pattern_avoidance"
	SourceLearnedRouting   Source = "learned_routing"
)

// Suggestion is one ranked strategy candidate (spec §4.8's emitted shape).
type Suggestion struct {
	Approach   string  `json:"approach"`
	WorkerType string  `json:"worker_type,omitempty"`
	Similarity float64 `json:"similarity"`
	Source     Source  `json:"source"`
}

// PriorTask is one vector-recall hit: a semantically similar past task and
// the strategy that was used for it.
type PriorTask struct {
	Approach   string
	WorkerType string
	Similarity float64
}

// VectorRecall is the external collaborator spec §4.8/§6 refers to; this
// package only consumes its already-ranked output.
type VectorRecall interface {
	TopK(taskDescription string, k int) ([]PriorTask, error)
}

// RelevantPattern is a mined FailurePattern carrying a recommended avoidance
// action, scoped down to what the Strategy Selector needs.
type RelevantPattern struct {
	Category        string
	Type            string
	AutoFixAction   string
	Confidence      float64
}

// RoutingSuccess is one task_type's worker_type success-rate observation,
// as learned by the Router/Allocator over time.
type RoutingSuccess struct {
	WorkerType  string
	SuccessRate float64
}

// Select implements spec §4.8's three-source combination, emitting up to
// max_k suggestions ranked by similarity with an overall confidence derived
// from the mean.
func Select(vectorHits []PriorTask, patterns []RelevantPattern, routing []RoutingSuccess, maxK int) ([]Suggestion, int) {
	if maxK <= 0 {
		maxK = 3
	}

	var suggestions []Suggestion
	for _, hit := range vectorHits {
		suggestions = append(suggestions, Suggestion{
			Approach:   hit.Approach,
			WorkerType: hit.WorkerType,
			Similarity: hit.Similarity,
			Source:     SourceVectorRecall,
		})
	}
	for _, p := range patterns {
		if p.AutoFixAction == "" {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Approach:   "apply " + p.AutoFixAction + " to avoid " + p.Category + ":" + p.Type,
			Similarity: p.Confidence,
			Source:     SourcePatternAvoidance,
		})
	}
	sortedRouting := append([]RoutingSuccess(nil), routing...)
	sort.Slice(sortedRouting, func(i, j int) bool { return sortedRouting[i].SuccessRate > sortedRouting[j].SuccessRate })
	for _, rs := range sortedRouting {
		suggestions = append(suggestions, Suggestion{
			Approach:   "route to " + rs.WorkerType,
			WorkerType: rs.WorkerType,
			Similarity: rs.SuccessRate,
			Source:     SourceLearnedRouting,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool { return suggestions[i].Similarity > suggestions[j].Similarity })
	if len(suggestions) > maxK {
		suggestions = suggestions[:maxK]
	}

	confidence := 0
	if len(suggestions) > 0 {
		var sum float64
		for _, s := range suggestions {
			sum += s.Similarity
		}
		confidence = int((sum / float64(len(suggestions))) * 100)
	}
	return suggestions, confidence
}
