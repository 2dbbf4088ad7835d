// Package heartbeat implements the liveness Monitor (spec §4.4): health
// scoring, atomic heartbeat snapshot writes with strictly increasing
// sequence numbers, and the warning/critical/zombie phase state machine
// that emits FailureEvents on phase entry. Grounded on the teacher's
// internal/health package (flock-backed snapshot writes, zombie heuristics).
package heartbeat

import (
	"time"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

// Status is the coarse health-score band.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

// Phase is the liveness phase derived from time since last heartbeat.
type Phase string

const (
	PhaseHealthy  Phase = "healthy"
	PhaseWarning  Phase = "warning"
	PhaseCritical Phase = "critical"
	PhaseZombie   Phase = "zombie"
)

// Thresholds configures interval and phase boundaries (spec §4.4).
type Thresholds struct {
	IntervalSeconds int
	WarningSeconds  int
	CriticalSeconds int
	ZombieSeconds   int
}

// DefaultThresholds matches the spec's literal defaults.
var DefaultThresholds = Thresholds{IntervalSeconds: 30, WarningSeconds: 60, CriticalSeconds: 120, ZombieSeconds: 300}

// Sample is raw resource usage sampled for one heartbeat tick.
type Sample struct {
	CPUPercent       float64
	MemoryMB         float64
	TokensUsed       int
	TokenBudget      int
	ActiveForSeconds int
}

// Health is the computed health block within a Heartbeat snapshot.
type Health struct {
	Status           Status  `json:"status"`
	HealthScore      int     `json:"health_score"`
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryMB         float64 `json:"memory_mb"`
	TokensUsed       int     `json:"tokens_used"`
	TokensRemaining  int     `json:"tokens_remaining"`
	ActiveForSeconds int     `json:"active_for_seconds"`
	LastActivity     string  `json:"last_activity"`
}

// ScoreHealth implements spec §4.4's health-score table exactly.
func ScoreHealth(s Sample) Health {
	score := 100
	switch {
	case s.CPUPercent > 80:
		score -= 30
	case s.CPUPercent > 60:
		score -= 15
	}
	switch {
	case s.MemoryMB > 1024:
		score -= 30
	case s.MemoryMB > 512:
		score -= 15
	}
	remaining := s.TokenBudget - s.TokensUsed
	pctRemaining := 1.0
	if s.TokenBudget > 0 {
		pctRemaining = float64(remaining) / float64(s.TokenBudget)
	}
	switch {
	case pctRemaining < 0.10:
		score -= 40
	case pctRemaining < 0.25:
		score -= 20
	}
	if score < 0 {
		score = 0
	}

	status := Unhealthy
	switch {
	case score >= 80:
		status = Healthy
	case score >= 50:
		status = Degraded
	}

	return Health{
		Status:           status,
		HealthScore:      score,
		CPUPercent:       s.CPUPercent,
		MemoryMB:         s.MemoryMB,
		TokensUsed:       s.TokensUsed,
		TokensRemaining:  remaining,
		ActiveForSeconds: s.ActiveForSeconds,
	}
}

// Heartbeat is the liveness snapshot persisted for one worker (spec §3).
type Heartbeat struct {
	WorkerID     string    `json:"worker_id"`
	Sequence     int       `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`
	Health       Health    `json:"health"`
	MissedCount  int       `json:"missed_count"`
}

// SnapshotStore persists and loads the last heartbeat for a worker; callers
// provide a store-backed implementation so this package stays agnostic of
// WorkerSpec's concrete shape.
type SnapshotStore interface {
	Load(workerID string) (Heartbeat, bool, error)
	Save(workerID string, h Heartbeat) error
}

// PhaseTracker remembers, per worker, which phase was last observed so
// phase-entry events emit exactly once.
type PhaseTracker struct {
	last map[string]Phase
}

// FailureEventType names the FailureEvent kinds this package can emit.
type FailureEventType string

const (
	EventHeartbeatCritical FailureEventType = "heartbeat_critical"
	EventZombieDetected    FailureEventType = "zombie_detected"
)

// FailureEvent is the minimal payload emitted on phase transitions; callers
// route it into the lineage/pattern pipeline.
type FailureEvent struct {
	EventType FailureEventType
	WorkerID  string
	Timestamp time.Time
	Data      map[string]any
}

// Monitor emits and evaluates heartbeats for workers.
type Monitor struct {
	Thresholds Thresholds
	Store      SnapshotStore
	Now        func() time.Time
	Tracker    *PhaseTracker
}

// Emit implements spec §4.4's snapshot-write contract: atomic replace of the
// heartbeat subtree with an incremented, strictly-monotonic sequence.
func (m *Monitor) Emit(workerID string, sample Sample) (Heartbeat, error) {
	if workerID == "" {
		return Heartbeat{}, cortexerr.InvalidInput("heartbeat: worker_id required", nil)
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}

	prev, ok, err := m.Store.Load(workerID)
	if err != nil {
		return Heartbeat{}, cortexerr.Transient("heartbeat: load previous snapshot", err)
	}
	seq := 1
	if ok {
		seq = prev.Sequence + 1
	}

	hb := Heartbeat{
		WorkerID:    workerID,
		Sequence:    seq,
		Timestamp:   now(),
		Health:      ScoreHealth(sample),
		MissedCount: 0,
	}
	if err := m.Store.Save(workerID, hb); err != nil {
		return Heartbeat{}, cortexerr.Transient("heartbeat: save snapshot", err)
	}
	return hb, nil
}

// Evaluate implements spec §4.4's phase state machine: derives the current
// phase from now-last_heartbeat and returns a FailureEvent once per entry
// into critical or zombie (nil otherwise, including on entry into warning).
func (m *Monitor) Evaluate(workerID string, last Heartbeat, now time.Time) (Phase, *FailureEvent) {
	th := m.Thresholds
	if th.WarningSeconds == 0 {
		th = DefaultThresholds
	}
	elapsed := now.Sub(last.Timestamp).Seconds()

	var phase Phase
	switch {
	// Spec §4.4's general rule is inclusive (<=warning -> healthy), which is
	// what this follows; its own worked edge cases (§8) instead treat an age
	// exactly at warning_seconds as already "warning". The two sections
	// disagree at this single boundary value; this implementation takes the
	// general rule as authoritative.
	case elapsed <= float64(th.WarningSeconds):
		phase = PhaseHealthy
	case elapsed < float64(th.CriticalSeconds):
		phase = PhaseWarning
	case elapsed < float64(th.ZombieSeconds):
		phase = PhaseCritical
	default:
		phase = PhaseZombie
	}

	if m.Tracker == nil {
		m.Tracker = &PhaseTracker{}
	}
	if m.Tracker.last == nil {
		m.Tracker.last = make(map[string]Phase)
	}
	prevPhase := m.Tracker.last[workerID]
	m.Tracker.last[workerID] = phase
	if prevPhase == phase {
		return phase, nil
	}

	switch phase {
	case PhaseCritical:
		return phase, &FailureEvent{EventType: EventHeartbeatCritical, WorkerID: workerID, Timestamp: now, Data: map[string]any{"elapsed_seconds": elapsed}}
	case PhaseZombie:
		return phase, &FailureEvent{EventType: EventZombieDetected, WorkerID: workerID, Timestamp: now, Data: map[string]any{"elapsed_seconds": elapsed}}
	default:
		return phase, nil
	}
}
