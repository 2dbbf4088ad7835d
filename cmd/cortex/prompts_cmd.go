package main

import (
	"encoding/json"
	"os"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/prompts"
)

// cmdCreateVersion implements `cortex create-version` (spec §4.7).
func cmdCreateVersion(args []string) error {
	fs, configPath, dev := newFlagSet("create-version")
	promptID := fs.String("prompt-id", "", "prompt id (required)")
	semver := fs.String("semver", "", "semantic version, e.g. 1.0.0 (required)")
	content := fs.String("content", "", "prompt content (required)")
	metadataJSON := fs.String("metadata", "{}", "JSON object of additional metadata")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *promptID == "" || *semver == "" || *content == "" {
		return cortexerr.InvalidInput("create-version: --prompt-id, --semver and --content are required", nil)
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(*metadataJSON), &metadata); err != nil {
		return cortexerr.InvalidInput("create-version: --metadata must be a JSON object", err)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	reg, err := loadPromptRegistry(rt.store)
	if err != nil {
		return err
	}
	reg.Now = rt.clock.Now

	v := reg.CreateVersion(*promptID, *semver, *content, metadata)
	if err := savePromptRegistry(rt.store, reg); err != nil {
		return err
	}
	rt.logger.Info("prompt version created", "prompt_id", *promptID, "version_id", v.VersionID)
	return json.NewEncoder(os.Stdout).Encode(v)
}

// cmdActivate implements `cortex activate` (spec §4.7): activates a
// version, clearing any other active version for the same prompt_id.
func cmdActivate(args []string) error {
	fs, configPath, dev := newFlagSet("activate")
	promptID := fs.String("prompt-id", "", "prompt id (required)")
	versionID := fs.String("version-id", "", "version id to activate (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *promptID == "" || *versionID == "" {
		return cortexerr.InvalidInput("activate: --prompt-id and --version-id are required", nil)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	reg, err := loadPromptRegistry(rt.store)
	if err != nil {
		return err
	}
	if err := reg.Activate(*promptID, *versionID); err != nil {
		return err
	}
	if err := savePromptRegistry(rt.store, reg); err != nil {
		return err
	}
	rt.logger.Info("prompt version activated", "prompt_id", *promptID, "version_id", *versionID)
	return nil
}

// cmdGet implements `cortex get` (spec §4.7's get_prompt): resolves a
// prompt's active version, latest version, or an exact version id.
func cmdGet(args []string) error {
	fs, configPath, dev := newFlagSet("get")
	promptID := fs.String("prompt-id", "", "prompt id (required)")
	version := fs.String("version", "", "version id, \"latest\", or empty for the active version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *promptID == "" {
		return cortexerr.InvalidInput("get: --prompt-id is required", nil)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	reg, err := loadPromptRegistry(rt.store)
	if err != nil {
		return err
	}
	v, err := reg.GetPrompt(*promptID, *version)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(v)
}

// cmdABCreate implements `cortex ab-create` (spec §4.7).
func cmdABCreate(args []string) error {
	fs, configPath, dev := newFlagSet("ab-create")
	testID := fs.String("test-id", "", "test id (required)")
	name := fs.String("name", "", "human-readable test name")
	control := fs.String("control", "", "control version id (required)")
	treatment := fs.String("treatment", "", "treatment version id (required)")
	trafficSplit := fs.Int("traffic-split-pct", 50, "percent of traffic routed to treatment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *testID == "" || *control == "" || *treatment == "" {
		return cortexerr.InvalidInput("ab-create: --test-id, --control and --treatment are required", nil)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	test := prompts.CreateAB(*testID, *name, *control, *treatment, *trafficSplit)
	if err := saveABTest(rt.store, test); err != nil {
		return err
	}
	rt.logger.Info("ab test created", "test_id", *testID, "control", *control, "treatment", *treatment)
	return json.NewEncoder(os.Stdout).Encode(test)
}

// cmdABSelect implements `cortex ab-select` (spec §4.7): deterministic
// hash-based variant assignment for one task.
func cmdABSelect(args []string) error {
	fs, configPath, dev := newFlagSet("ab-select")
	testID := fs.String("test-id", "", "test id (required)")
	taskID := fs.String("task-id", "", "task id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *testID == "" || *taskID == "" {
		return cortexerr.InvalidInput("ab-select: --test-id and --task-id are required", nil)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	test, err := loadABTest(rt.store, *testID)
	if err != nil {
		return err
	}
	variant := prompts.SelectVariant(test, *taskID)
	versionID := test.Control
	if variant == prompts.VariantTreatment {
		versionID = test.Treatment
	}
	return json.NewEncoder(os.Stdout).Encode(map[string]string{
		"variant":    string(variant),
		"version_id": versionID,
	})
}

// recordPromptOutcome is the Prompts half of the shared `record-outcome`
// verb: increments a version's use/success/failure counters in the prompt
// registry and logs task_id/quality_score. No A/B test record is touched:
// an ABTest's control/treatment metrics are not updated here.
func recordPromptOutcome(rt *runtimeEnv, versionID, taskID, promptID string, qualityScore float64, succeeded bool) error {
	reg, err := loadPromptRegistry(rt.store)
	if err != nil {
		return err
	}
	if err := reg.RecordOutcome(promptID, versionID, succeeded); err != nil {
		return err
	}
	if err := savePromptRegistry(rt.store, reg); err != nil {
		return err
	}
	rt.logger.Info("prompt outcome recorded",
		"prompt_id", promptID, "version_id", versionID, "task_id", taskID,
		"quality_score", qualityScore, "succeeded", succeeded)
	return nil
}
