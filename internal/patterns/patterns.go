// Package patterns implements the Pattern Detector (spec §4.5): classifying
// FailureEvents into category:type signatures, mining recurrence above a
// frequency threshold into confidence-banded FailurePatterns, and keeping a
// count index for O(1) lookup by category/worker-type/severity. Grounded on
// the teacher's internal/learner aggregation style (bucket-and-threshold
// over a bounded event window) adapted to failure classification.
package patterns

import (
	"time"
)

// FailureEvent mirrors the subset of spec §3's FailureEvent this package
// consumes; callers decode their own persisted events into this shape.
type FailureEvent struct {
	EventType string
	WorkerID  string
	WorkerType string
	Timestamp time.Time
	Data      map[string]any
}

// Classify implements spec §4.5's deterministic event_type -> category:type
// mapping.
func Classify(e FailureEvent) (category, kind string) {
	switch e.EventType {
	case "zombie_detected", "worker_presumed_dead":
		if _, ok := e.Data["memory"]; ok {
			return "resource", "out_of_memory"
		}
		if _, ok := e.Data["timeout"]; ok {
			return "resource", "timeout"
		}
		return "resource", "unresponsive"
	case "worker_restart_abandoned":
		return "systemic", "max_retries_exceeded"
	case "circuit_breaker_tripped":
		return "systemic", "recurring_failure"
	case "heartbeat_critical":
		return "resource", "degraded_performance"
	default:
		return "unknown", "unclassified"
	}
}

// Signature is the minimal similarity key spec §4.5 defines.
type Signature struct {
	EventType  string
	WorkerType string
}

// Similarity is the fraction of equal fields between two signatures.
func Similarity(a, b Signature) float64 {
	matches := 0
	total := 2
	if a.EventType == b.EventType {
		matches++
	}
	if a.WorkerType == b.WorkerType {
		matches++
	}
	return float64(matches) / float64(total)
}

// SimilarityThreshold is spec §4.5's fixed 0.75 cutoff.
const SimilarityThreshold = 0.75

// FailurePattern is spec §3's mined pattern record.
type FailurePattern struct {
	PatternID  string    `json:"pattern_id"`
	Category   string    `json:"category"`
	Type       string    `json:"type"`
	WorkerType string    `json:"worker_type"`
	Count      int       `json:"count"`
	Confidence float64   `json:"confidence"`
	Severity   string    `json:"severity"`
	Signature  Signature `json:"signature"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// severityFor escalates a pattern's severity by its confidence band (spec
// §3's FailurePattern.severity, DESIGN.md's Open Question 3 resolution):
// confidence 0.33 -> medium, 0.67 -> high, 1.00 -> critical.
func severityFor(confidence float64) string {
	switch {
	case confidence >= 1.00:
		return "critical"
	case confidence >= 0.67:
		return "high"
	default:
		return "medium"
	}
}

// bucketKey groups events by (category, type, worker_type) for mining.
type bucketKey struct {
	Category   string
	Type       string
	WorkerType string
}

// confidenceFor implements spec §4.5's frequency-band confidence mapping.
func confidenceFor(count, threshold int) float64 {
	switch {
	case count >= threshold*3:
		return 1.00
	case count >= threshold*2:
		return 0.67
	case count >= threshold:
		return 0.33
	default:
		return 0
	}
}

// Detector mines FailurePatterns from a window of FailureEvents.
type Detector struct {
	WindowHours        int
	FrequencyThreshold int
	IDFor              func(bucketKey) string
	Now                func() time.Time
}

// Index maintains category/worker-type/severity counts for O(1) lookup.
type Index struct {
	ByCategoryWorkerType map[string]int
	BySeverity           map[string]int
}

// NewIndex builds an Index from a set of patterns.
func NewIndex(patterns []FailurePattern) *Index {
	ix := &Index{ByCategoryWorkerType: map[string]int{}, BySeverity: map[string]int{}}
	for _, p := range patterns {
		ix.ByCategoryWorkerType[p.Category+"|"+p.WorkerType] += p.Count
		ix.BySeverity[p.Severity] += p.Count
	}
	return ix
}

// Count returns the indexed count for (category, worker_type).
func (ix *Index) Count(category, workerType string) int {
	return ix.ByCategoryWorkerType[category+"|"+workerType]
}

// CountBySeverity returns the indexed count for severity.
func (ix *Index) CountBySeverity(severity string) int {
	return ix.BySeverity[severity]
}

// Mine implements spec §4.5's bucket-and-threshold mining: events outside
// the sliding window are dropped; buckets at or above frequency_threshold
// produce/update a FailurePattern with confidence banded by multiples of
// the threshold.
func (d *Detector) Mine(events []FailureEvent, asOf time.Time) []FailurePattern {
	threshold := d.FrequencyThreshold
	if threshold <= 0 {
		threshold = 3
	}
	windowHours := d.WindowHours
	if windowHours <= 0 {
		windowHours = 24
	}
	cutoff := asOf.Add(-time.Duration(windowHours) * time.Hour)

	counts := map[bucketKey]int{}
	firstSig := map[bucketKey]Signature{}
	for _, e := range events {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		category, kind := Classify(e)
		key := bucketKey{Category: category, Type: kind, WorkerType: e.WorkerType}
		counts[key]++
		if _, ok := firstSig[key]; !ok {
			firstSig[key] = Signature{EventType: e.EventType, WorkerType: e.WorkerType}
		}
	}

	now := time.Now
	if d.Now != nil {
		now = d.Now
	}

	var out []FailurePattern
	for key, count := range counts {
		if count < threshold {
			continue
		}
		id := key.Category + ":" + key.Type + ":" + key.WorkerType
		if d.IDFor != nil {
			id = d.IDFor(key)
		}
		confidence := confidenceFor(count, threshold)
		out = append(out, FailurePattern{
			PatternID:  id,
			Category:   key.Category,
			Type:       key.Type,
			WorkerType: key.WorkerType,
			Count:      count,
			Confidence: confidence,
			Severity:   severityFor(confidence),
			Signature:  firstSig[key],
			UpdatedAt:  now(),
		})
	}
	return out
}
