package patterns

import (
	"testing"
	"time"
)

func TestClassifyZombieWithMemoryField(t *testing.T) {
	cat, kind := Classify(FailureEvent{EventType: "zombie_detected", Data: map[string]any{"memory": 2048}})
	if cat != "resource" || kind != "out_of_memory" {
		t.Fatalf("expected resource:out_of_memory, got %s:%s", cat, kind)
	}
}

func TestClassifyZombieWithTimeoutField(t *testing.T) {
	cat, kind := Classify(FailureEvent{EventType: "worker_presumed_dead", Data: map[string]any{"timeout": 300}})
	if cat != "resource" || kind != "timeout" {
		t.Fatalf("expected resource:timeout, got %s:%s", cat, kind)
	}
}

func TestClassifyZombieWithNoDataFallsBackToUnresponsive(t *testing.T) {
	cat, kind := Classify(FailureEvent{EventType: "zombie_detected"})
	if cat != "resource" || kind != "unresponsive" {
		t.Fatalf("expected resource:unresponsive, got %s:%s", cat, kind)
	}
}

func TestClassifyKnownTypesTable(t *testing.T) {
	tests := []struct {
		eventType    string
		wantCategory string
		wantType     string
	}{
		{"worker_restart_abandoned", "systemic", "max_retries_exceeded"},
		{"circuit_breaker_tripped", "systemic", "recurring_failure"},
		{"heartbeat_critical", "resource", "degraded_performance"},
		{"something_else", "unknown", "unclassified"},
	}
	for _, tt := range tests {
		cat, kind := Classify(FailureEvent{EventType: tt.eventType})
		if cat != tt.wantCategory || kind != tt.wantType {
			t.Errorf("%s: got %s:%s want %s:%s", tt.eventType, cat, kind, tt.wantCategory, tt.wantType)
		}
	}
}

func TestSimilarityFractionOfEqualFields(t *testing.T) {
	a := Signature{EventType: "zombie_detected", WorkerType: "implementation"}
	b := Signature{EventType: "zombie_detected", WorkerType: "test"}
	if got := Similarity(a, b); got != 0.5 {
		t.Fatalf("expected 0.5 similarity, got %v", got)
	}
	if Similarity(a, a) != 1.0 {
		t.Fatal("expected identical signatures to be fully similar")
	}
}

func TestMineConfidenceBands(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	mk := func(n int) []FailureEvent {
		var events []FailureEvent
		for i := 0; i < n; i++ {
			events = append(events, FailureEvent{EventType: "heartbeat_critical", WorkerType: "implementation", Timestamp: now.Add(-time.Duration(i) * time.Minute)})
		}
		return events
	}

	d := &Detector{FrequencyThreshold: 3, WindowHours: 24, Now: func() time.Time { return now }}

	patterns := d.Mine(mk(3), now)
	if len(patterns) != 1 || patterns[0].Confidence != 0.33 {
		t.Fatalf("expected confidence 0.33 at threshold, got %+v", patterns)
	}

	patterns = d.Mine(mk(6), now)
	if patterns[0].Confidence != 0.67 {
		t.Fatalf("expected confidence 0.67 at 2x threshold, got %v", patterns[0].Confidence)
	}

	patterns = d.Mine(mk(9), now)
	if patterns[0].Confidence != 1.00 {
		t.Fatalf("expected confidence 1.00 at 3x threshold, got %v", patterns[0].Confidence)
	}

	patterns = d.Mine(mk(2), now)
	if len(patterns) != 0 {
		t.Fatalf("expected no pattern below threshold, got %+v", patterns)
	}
}

func TestMineDropsEventsOutsideWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := &Detector{FrequencyThreshold: 3, WindowHours: 24, Now: func() time.Time { return now }}
	events := []FailureEvent{
		{EventType: "heartbeat_critical", WorkerType: "implementation", Timestamp: now.Add(-48 * time.Hour)},
		{EventType: "heartbeat_critical", WorkerType: "implementation", Timestamp: now.Add(-48 * time.Hour)},
		{EventType: "heartbeat_critical", WorkerType: "implementation", Timestamp: now.Add(-48 * time.Hour)},
	}
	patterns := d.Mine(events, now)
	if len(patterns) != 0 {
		t.Fatalf("expected stale events excluded, got %+v", patterns)
	}
}

func TestIndexCountLookup(t *testing.T) {
	ix := NewIndex([]FailurePattern{
		{Category: "resource", WorkerType: "implementation", Count: 5},
		{Category: "resource", WorkerType: "implementation", Count: 2},
		{Category: "systemic", WorkerType: "test", Count: 1},
	})
	if ix.Count("resource", "implementation") != 7 {
		t.Fatalf("expected combined count 7, got %d", ix.Count("resource", "implementation"))
	}
	if ix.Count("systemic", "test") != 1 {
		t.Fatalf("expected count 1, got %d", ix.Count("systemic", "test"))
	}
	if ix.Count("unknown", "nope") != 0 {
		t.Fatal("expected 0 for unseen bucket")
	}
}
