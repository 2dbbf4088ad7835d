package strategy

import "testing"

func TestSelectCombinesAllThreeSources(t *testing.T) {
	vector := []PriorTask{{Approach: "reuse prior OWASP scan strategy", WorkerType: "security-master", Similarity: 0.9}}
	pats := []RelevantPattern{{Category: "resource", Type: "unresponsive", AutoFixAction: "restart_worker", Confidence: 0.67}}
	routing := []RoutingSuccess{{WorkerType: "security-master", SuccessRate: 0.95}}

	suggestions, confidence := Select(vector, pats, routing, 3)
	if len(suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(suggestions))
	}
	if suggestions[0].Source != SourceLearnedRouting {
		t.Fatalf("expected highest-similarity (routing 0.95) first, got %+v", suggestions[0])
	}
	if confidence <= 0 || confidence > 100 {
		t.Fatalf("expected confidence in (0,100], got %d", confidence)
	}
}

func TestSelectTruncatesToMaxK(t *testing.T) {
	vector := []PriorTask{
		{Approach: "a", Similarity: 0.9},
		{Approach: "b", Similarity: 0.8},
		{Approach: "c", Similarity: 0.7},
		{Approach: "d", Similarity: 0.6},
	}
	suggestions, _ := Select(vector, nil, nil, 2)
	if len(suggestions) != 2 {
		t.Fatalf("expected truncation to max_k=2, got %d", len(suggestions))
	}
	if suggestions[0].Approach != "a" || suggestions[1].Approach != "b" {
		t.Fatalf("expected top-2 by similarity, got %+v", suggestions)
	}
}

func TestSelectSkipsPatternsWithoutAutoFixAction(t *testing.T) {
	pats := []RelevantPattern{{Category: "resource", Type: "unresponsive", AutoFixAction: "", Confidence: 0.9}}
	suggestions, _ := Select(nil, pats, nil, 3)
	if len(suggestions) != 0 {
		t.Fatalf("expected pattern without auto_fix_action to be skipped, got %+v", suggestions)
	}
}

func TestSelectDefaultsMaxKToThree(t *testing.T) {
	vector := []PriorTask{
		{Approach: "a", Similarity: 0.9}, {Approach: "b", Similarity: 0.8},
		{Approach: "c", Similarity: 0.7}, {Approach: "d", Similarity: 0.6},
	}
	suggestions, _ := Select(vector, nil, nil, 0)
	if len(suggestions) != 3 {
		t.Fatalf("expected default max_k=3, got %d", len(suggestions))
	}
}

func TestSelectEmptyInputsYieldZeroConfidence(t *testing.T) {
	suggestions, confidence := Select(nil, nil, nil, 3)
	if len(suggestions) != 0 || confidence != 0 {
		t.Fatalf("expected empty result with zero confidence, got %+v conf=%d", suggestions, confidence)
	}
}
