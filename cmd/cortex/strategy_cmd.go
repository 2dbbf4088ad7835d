package main

import (
	"encoding/json"
	"os"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/patterns"
	"github.com/cortexplane/control-plane/internal/remediator"
	"github.com/cortexplane/control-plane/internal/router"
	"github.com/cortexplane/control-plane/internal/store"
	"github.com/cortexplane/control-plane/internal/strategy"
)

// cmdStrategy implements `cortex strategy` (spec §4.8): combines vector
// recall, failure-pattern avoidance and learned routing into a ranked
// suggestion list. Vector recall is strategy.VectorRecall's "external
// collaborator" (spec §6) — this CLI has no embedding store, so its hits
// are supplied pre-computed via --vector-hits rather than invented here.
func cmdStrategy(args []string) error {
	fs, configPath, dev := newFlagSet("strategy")
	taskType := fs.String("task-type", "", "task type, used to rank learned-routing success rates (required)")
	maxK := fs.Int("max-k", 3, "maximum number of suggestions to return")
	vectorHitsJSON := fs.String("vector-hits", "[]", "JSON array of {Approach, WorkerType, Similarity} from an external vector-recall collaborator (strategy.PriorTask has no json tags, so field names are matched as-is)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *taskType == "" {
		return cortexerr.InvalidInput("strategy: --task-type is required", nil)
	}

	var vectorHits []strategy.PriorTask
	if err := json.Unmarshal([]byte(*vectorHitsJSON), &vectorHits); err != nil {
		return cortexerr.InvalidInput("strategy: --vector-hits must be a JSON array", err)
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}

	relevantPatterns, err := relevantPatternsFor(rt)
	if err != nil {
		return err
	}
	routingSuccess, err := learnedRoutingSuccess(rt, *taskType)
	if err != nil {
		return err
	}

	suggestions, confidence := strategy.Select(vectorHits, relevantPatterns, routingSuccess, *maxK)
	rt.logger.Info("strategy selection complete", "task_type", *taskType, "suggestions", len(suggestions), "confidence", confidence)
	return json.NewEncoder(os.Stdout).Encode(map[string]any{
		"suggestions": suggestions,
		"confidence":  confidence,
	})
}

// relevantPatternsFor loads the currently mined failure patterns and, for
// each, resolves its recommended auto_fix_action from the first enabled
// playbook that matches it — FailurePattern itself carries no
// auto_fix_action field, so it comes from whichever playbook the Remediator
// would run for this pattern and severity.
func relevantPatternsFor(rt *runtimeEnv) ([]strategy.RelevantPattern, error) {
	var mined []patterns.FailurePattern
	err := store.ReadJSONL(patternStreamPath(rt.store), func(line []byte) error {
		var p patterns.FailurePattern
		if err := json.Unmarshal(line, &p); err != nil {
			return err
		}
		mined = append(mined, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	playbooks, err := loadPlaybooks(rt.store)
	if err != nil {
		return nil, err
	}

	out := make([]strategy.RelevantPattern, 0, len(mined))
	for _, p := range mined {
		action := ""
		matched := remediator.Match(playbooks, p.PatternID, p.Severity)
		if len(matched) > 0 && len(matched[0].Steps) > 0 {
			action = string(matched[0].Steps[0].Action)
		}
		out = append(out, strategy.RelevantPattern{
			Category:      p.Category,
			Type:          p.Type,
			AutoFixAction: action,
			Confidence:    p.Confidence,
		})
	}
	return out, nil
}

// learnedRoutingSuccess turns this environment's learned per-(master,
// task_type) success_rate adjustment into strategy.RoutingSuccess entries.
// The adjustment is a delta around a neutral 0.5 baseline, clamped to
// [0,1] since Select treats Similarity/SuccessRate as a similarity-like
// score.
func learnedRoutingSuccess(rt *runtimeEnv, taskType string) ([]strategy.RoutingSuccess, error) {
	entries, err := loadRouterAdjustments(rt.store)
	if err != nil {
		return nil, err
	}
	out := make([]strategy.RoutingSuccess, 0, len(entries))
	for _, e := range entries {
		if e.TaskType != taskType || e.Objective != router.ObjSuccessRate {
			continue
		}
		rate := 0.5 + e.Delta
		if rate < 0 {
			rate = 0
		}
		if rate > 1 {
			rate = 1
		}
		out = append(out, strategy.RoutingSuccess{WorkerType: e.Master, SuccessRate: rate})
	}
	return out, nil
}
