package prompts

import (
	"testing"
	"time"
)

func newRegistry() *Registry {
	seq := 0
	return &Registry{
		versions: map[string][]Version{},
		active:   map[string]string{},
		Now:      func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
		NewID: func() string {
			seq++
			return "ver-" + string(rune('a'+seq))
		},
	}
}

func TestCreateVersionComputesContentHash(t *testing.T) {
	r := newRegistry()
	v := r.CreateVersion("prompt-1", "1.0.0", "do the thing", nil)
	if v.ContentHash == "" || len(v.ContentHash) != 64 {
		t.Fatalf("expected 64-char sha256 hex hash, got %q", v.ContentHash)
	}
	if v.Status != StatusDraft {
		t.Fatalf("expected draft status, got %s", v.Status)
	}
}

func TestActivateEnforcesAtMostOneActive(t *testing.T) {
	r := newRegistry()
	v1 := r.CreateVersion("prompt-1", "1.0.0", "a", nil)
	v2 := r.CreateVersion("prompt-1", "1.1.0", "b", nil)
	if err := r.Activate("prompt-1", v1.VersionID); err != nil {
		t.Fatal(err)
	}
	if err := r.Activate("prompt-1", v2.VersionID); err != nil {
		t.Fatal(err)
	}
	got, err := r.GetPrompt("prompt-1", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.VersionID != v2.VersionID {
		t.Fatalf("expected v2 active, got %s", got.VersionID)
	}
	first, _ := r.GetPrompt("prompt-1", v1.VersionID)
	if first.Status != StatusDraft {
		t.Fatalf("expected v1 demoted to draft, got %s", first.Status)
	}
}

func TestGetPromptLatestResolvesMostRecent(t *testing.T) {
	r := newRegistry()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.Now = func() time.Time { return base }
	r.CreateVersion("prompt-1", "1.0.0", "a", nil)
	r.Now = func() time.Time { return base.Add(time.Hour) }
	v2 := r.CreateVersion("prompt-1", "1.1.0", "b", nil)

	got, err := r.GetPrompt("prompt-1", "latest")
	if err != nil {
		t.Fatal(err)
	}
	if got.VersionID != v2.VersionID {
		t.Fatalf("expected latest to be v2, got %s", got.VersionID)
	}
}

func TestGetPromptNoActiveIsNotFound(t *testing.T) {
	r := newRegistry()
	r.CreateVersion("prompt-1", "1.0.0", "a", nil)
	if _, err := r.GetPrompt("prompt-1", ""); err == nil {
		t.Fatal("expected not-found error with no active version")
	}
}

func TestRecordOutcomeIncrementsCounters(t *testing.T) {
	r := newRegistry()
	v := r.CreateVersion("prompt-1", "1.0.0", "a", nil)
	if err := r.RecordOutcome("prompt-1", v.VersionID, true); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordOutcome("prompt-1", v.VersionID, false); err != nil {
		t.Fatal(err)
	}
	got, _ := r.GetPrompt("prompt-1", v.VersionID)
	if got.Metrics.Uses != 2 || got.Metrics.Successes != 1 || got.Metrics.Failures != 1 {
		t.Fatalf("unexpected metrics: %+v", got.Metrics)
	}
}

func TestSelectVariantIsStablePerTaskID(t *testing.T) {
	test := CreateAB("test-1", "greeting test", "ver-control", "ver-treatment", 50)
	v1 := SelectVariant(test, "task-123")
	v2 := SelectVariant(test, "task-123")
	if v1 != v2 {
		t.Fatalf("expected stable assignment for same task_id, got %s then %s", v1, v2)
	}
}

func TestSelectVariantRespectsTrafficSplitExtremes(t *testing.T) {
	allControl := CreateAB("test-1", "n", "c", "t", 0)
	if v := SelectVariant(allControl, "any-task"); v != VariantControl {
		t.Fatalf("expected control at 0%% split, got %s", v)
	}
	allTreatment := CreateAB("test-2", "n", "c", "t", 100)
	if v := SelectVariant(allTreatment, "any-task"); v != VariantTreatment {
		t.Fatalf("expected treatment at 100%% split, got %s", v)
	}
}

func TestCheckSignificanceRequiresMinUses(t *testing.T) {
	test := ABTest{ControlMetrics: Metrics{Uses: 10, Successes: 5}, TreatmentMetrics: Metrics{Uses: 10, Successes: 9}}
	sig, _ := CheckSignificance(test)
	if sig != SignificanceNone {
		t.Fatalf("expected no significance below min uses, got %s", sig)
	}
}

func TestCheckSignificanceHighConfidence(t *testing.T) {
	test := ABTest{
		Control:          "ver-control",
		Treatment:        "ver-treatment",
		ControlMetrics:   Metrics{Uses: 40, Successes: 20}, // 0.5
		TreatmentMetrics: Metrics{Uses: 40, Successes: 32}, // 0.8, delta 0.3
	}
	sig, winner := CheckSignificance(test)
	if sig != SignificanceHigh {
		t.Fatalf("expected high confidence, got %s", sig)
	}
	if winner != "ver-treatment" {
		t.Fatalf("expected treatment to win, got %s", winner)
	}
}

func TestCheckSignificanceMediumConfidence(t *testing.T) {
	test := ABTest{
		Control:          "ver-control",
		Treatment:        "ver-treatment",
		ControlMetrics:   Metrics{Uses: 40, Successes: 20}, // 0.5
		TreatmentMetrics: Metrics{Uses: 40, Successes: 26}, // 0.65, delta 0.15... use smaller delta for medium
	}
	test.TreatmentMetrics = Metrics{Uses: 40, Successes: 24} // 0.6, delta 0.10 -> not >0.10 but >0.05, so medium
	sig, _ := CheckSignificance(test)
	if sig != SignificanceMedium {
		t.Fatalf("expected delta of exactly 0.10 to not exceed the high threshold and land at medium, got %s", sig)
	}
	test.TreatmentMetrics = Metrics{Uses: 40, Successes: 23} // 0.575, delta 0.075 -> medium
	sig, winner := CheckSignificance(test)
	if sig != SignificanceMedium {
		t.Fatalf("expected medium confidence, got %s", sig)
	}
	if winner != "ver-treatment" {
		t.Fatalf("expected treatment to win, got %s", winner)
	}
}

func TestConcludeActivatesWinnerField(t *testing.T) {
	test := ABTest{
		Control:          "ver-control",
		Treatment:        "ver-treatment",
		ControlMetrics:   Metrics{Uses: 40, Successes: 20},
		TreatmentMetrics: Metrics{Uses: 40, Successes: 32},
	}
	concluded := Conclude(test)
	if !concluded.Concluded {
		t.Fatal("expected Concluded=true")
	}
	if concluded.Winner != "ver-treatment" {
		t.Fatalf("expected winner=ver-treatment, got %s", concluded.Winner)
	}
}

func TestConcludeNoWinnerWhenNotSignificant(t *testing.T) {
	test := ABTest{
		ControlMetrics:   Metrics{Uses: 40, Successes: 20},
		TreatmentMetrics: Metrics{Uses: 40, Successes: 21},
	}
	concluded := Conclude(test)
	if concluded.Winner != "" {
		t.Fatalf("expected no winner, got %s", concluded.Winner)
	}
}

func TestLoadRegistryRoundTripsSnapshot(t *testing.T) {
	r := newRegistry()
	r.CreateVersion("prompt-1", "1.0.0", "content", nil)
	if err := r.Activate("prompt-1", r.versions["prompt-1"][0].VersionID); err != nil {
		t.Fatalf("activate: %v", err)
	}

	restored := LoadRegistry(r.AllVersions(), r.ActivePointers())
	got, err := restored.GetPrompt("prompt-1", "")
	if err != nil {
		t.Fatalf("GetPrompt after reload: %v", err)
	}
	if got.Content != "content" {
		t.Fatalf("expected content to survive reload, got %q", got.Content)
	}
}
