// Package prompts implements the Prompt Registry and A/B testing (spec
// §4.7): version creation with content hashing, at-most-one-active
// enforcement, active/latest retrieval, deterministic hash-based variant
// assignment, and outcome-driven significance testing. Conclude records a
// winner on the ABTest but does not activate it in any Registry.
package prompts

import (
	"crypto/sha256"
	"encoding/hex"
	"hash/fnv"
	"time"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

// Status is a prompt version's lifecycle state.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
)

// Metrics is a version's running performance counters.
type Metrics struct {
	Uses     int     `json:"uses"`
	Successes int    `json:"successes"`
	Failures int     `json:"failures"`
}

// SuccessRate returns successes/uses, or 0 if unused.
func (m Metrics) SuccessRate() float64 {
	if m.Uses == 0 {
		return 0
	}
	return float64(m.Successes) / float64(m.Uses)
}

// Version is one immutable prompt version (spec §3/§4.7).
type Version struct {
	VersionID   string         `json:"version_id"`
	PromptID    string         `json:"prompt_id"`
	SemVer      string         `json:"version"`
	Content     string         `json:"content"`
	ContentHash string         `json:"content_hash"`
	Status      Status         `json:"status"`
	Metrics     Metrics        `json:"metrics"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// hashContent computes the SHA-256 content_hash spec §4.7 requires.
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Registry holds prompt versions and the active pointer per prompt_id.
type Registry struct {
	versions map[string][]Version // prompt_id -> versions, append order = creation order
	active   map[string]string    // prompt_id -> version_id
	NewID    func() string
	Now      func() time.Time
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{versions: map[string][]Version{}, active: map[string]string{}}
}

// LoadRegistry reconstructs a Registry from a previously persisted snapshot
// (see AllVersions/ActivePointers) — the CLI's registry.json round-trip,
// since Registry keeps its maps unexported to protect the at-most-one-active
// invariant from direct mutation.
func LoadRegistry(versions map[string][]Version, active map[string]string) *Registry {
	if versions == nil {
		versions = map[string][]Version{}
	}
	if active == nil {
		active = map[string]string{}
	}
	return &Registry{versions: versions, active: active}
}

// AllVersions returns every prompt_id's version list for persistence.
func (r *Registry) AllVersions() map[string][]Version {
	return r.versions
}

// ActivePointers returns the prompt_id -> active version_id map for
// persistence.
func (r *Registry) ActivePointers() map[string]string {
	return r.active
}

// CreateVersion implements spec §4.7's version-creation contract.
func (r *Registry) CreateVersion(promptID, semver, content string, metadata map[string]any) Version {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	id := "ver-" + promptID + "-" + semver
	if r.NewID != nil {
		id = r.NewID()
	}
	v := Version{
		VersionID:   id,
		PromptID:    promptID,
		SemVer:      semver,
		Content:     content,
		ContentHash: hashContent(content),
		Status:      StatusDraft,
		Metadata:    metadata,
		CreatedAt:   now(),
	}
	r.versions[promptID] = append(r.versions[promptID], v)
	return v
}

// Activate sets status=active on versionID and clears any other active
// version of the same prompt_id, enforcing at-most-one-active-per-prompt_id.
func (r *Registry) Activate(promptID, versionID string) error {
	versions := r.versions[promptID]
	found := false
	for i := range versions {
		if versions[i].VersionID == versionID {
			versions[i].Status = StatusActive
			found = true
		} else if versions[i].Status == StatusActive {
			versions[i].Status = StatusDraft
		}
	}
	if !found {
		return cortexerr.NotFound("prompts: version "+versionID+" not found for prompt "+promptID, nil)
	}
	r.versions[promptID] = versions
	r.active[promptID] = versionID
	return nil
}

// GetPrompt implements spec §4.7's get_prompt(prompt_id, version?) contract:
// version == "" resolves via the active pointer; version == "latest"
// resolves by most recent created_at; otherwise an exact version_id match.
func (r *Registry) GetPrompt(promptID, version string) (Version, error) {
	versions := r.versions[promptID]
	if len(versions) == 0 {
		return Version{}, cortexerr.NotFound("prompts: no versions for prompt "+promptID, nil)
	}
	switch version {
	case "":
		id, ok := r.active[promptID]
		if !ok {
			return Version{}, cortexerr.NotFound("prompts: no active version for prompt "+promptID, nil)
		}
		for _, v := range versions {
			if v.VersionID == id {
				return v, nil
			}
		}
		return Version{}, cortexerr.NotFound("prompts: active version missing from store", nil)
	case "latest":
		latest := versions[0]
		for _, v := range versions[1:] {
			if v.CreatedAt.After(latest.CreatedAt) {
				latest = v
			}
		}
		return latest, nil
	default:
		for _, v := range versions {
			if v.VersionID == version {
				return v, nil
			}
		}
		return Version{}, cortexerr.NotFound("prompts: version "+version+" not found", nil)
	}
}

// RecordOutcome increments a version's use/success/failure counters.
func (r *Registry) RecordOutcome(promptID, versionID string, succeeded bool) error {
	versions := r.versions[promptID]
	for i := range versions {
		if versions[i].VersionID == versionID {
			versions[i].Metrics.Uses++
			if succeeded {
				versions[i].Metrics.Successes++
			} else {
				versions[i].Metrics.Failures++
			}
			r.versions[promptID] = versions
			return nil
		}
	}
	return cortexerr.NotFound("prompts: version "+versionID+" not found", nil)
}

// ABTest is spec §4.7's persisted A/B test record.
type ABTest struct {
	TestID          string  `json:"test_id"`
	Name            string  `json:"name"`
	Control         string  `json:"control"`   // version_id
	Treatment       string  `json:"treatment"` // version_id
	TrafficSplitPct int     `json:"traffic_split_pct"`
	ControlMetrics  Metrics `json:"control_metrics"`
	TreatmentMetrics Metrics `json:"treatment_metrics"`
	Concluded       bool    `json:"concluded"`
	Winner          string  `json:"winner,omitempty"`
}

// CreateAB implements spec §4.7's create_ab contract.
func CreateAB(testID, name, control, treatment string, trafficSplitPct int) ABTest {
	return ABTest{TestID: testID, Name: name, Control: control, Treatment: treatment, TrafficSplitPct: trafficSplitPct}
}

// Variant names the two arms of an A/B test.
type Variant string

const (
	VariantControl   Variant = "control"
	VariantTreatment Variant = "treatment"
)

// SelectVariant implements spec §4.7's deterministic hash-based assignment:
// hash(task_id) mod 100 compared against traffic_split. Stable for a given
// task_id.
func SelectVariant(test ABTest, taskID string) Variant {
	h := fnv.New32a()
	_, _ = h.Write([]byte(taskID))
	bucket := int(h.Sum32() % 100)
	if bucket < test.TrafficSplitPct {
		return VariantTreatment
	}
	return VariantControl
}

// Significance is the confidence band spec §4.7's significance check maps to.
type Significance string

const (
	SignificanceNone   Significance = "none"
	SignificanceMedium Significance = "medium"
	SignificanceHigh   Significance = "high"
)

// minSignificanceUses is spec §4.7's ≥30 uses per variant gate.
const minSignificanceUses = 30

// CheckSignificance implements spec §4.7's significance test: both variants
// need ≥30 uses; |Δsuccess_rate| > 0.10 is high confidence, > 0.05 medium.
func CheckSignificance(test ABTest) (Significance, string) {
	if test.ControlMetrics.Uses < minSignificanceUses || test.TreatmentMetrics.Uses < minSignificanceUses {
		return SignificanceNone, ""
	}
	delta := test.TreatmentMetrics.SuccessRate() - test.ControlMetrics.SuccessRate()
	abs := delta
	if abs < 0 {
		abs = -abs
	}
	winner := test.Control
	if delta > 0 {
		winner = test.Treatment
	}
	switch {
	case abs > 0.10:
		return SignificanceHigh, winner
	case abs > 0.05:
		return SignificanceMedium, winner
	default:
		return SignificanceNone, ""
	}
}

// Conclude implements spec §4.7's conclude contract: determine significance
// and, if a winner exists, mark the test concluded with that winner
// recorded (callers then Activate() the winning version in the Registry).
func Conclude(test ABTest) ABTest {
	sig, winner := CheckSignificance(test)
	test.Concluded = true
	if sig != SignificanceNone {
		test.Winner = winner
	}
	return test
}
