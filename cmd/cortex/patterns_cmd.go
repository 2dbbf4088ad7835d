package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/heartbeat"
	"github.com/cortexplane/control-plane/internal/patterns"
	"github.com/cortexplane/control-plane/internal/store"
)

// loadFailureEvents reads every *.jsonl stream under the environment's
// events directory and decodes each line as a heartbeat.FailureEvent; the
// worker_type a pattern needs is carried in Data (see cmdHeartbeatEmit).
func loadFailureEvents(st *store.Store) ([]patterns.FailureEvent, error) {
	dir := st.EnvPath(store.DirEvents)
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, cortexerr.Transient("analyze: glob events directory", err)
	}

	var out []patterns.FailureEvent
	for _, path := range matches {
		err := store.ReadJSONL(path, func(line []byte) error {
			var raw heartbeat.FailureEvent
			if err := json.Unmarshal(line, &raw); err != nil {
				return err
			}
			workerType, _ := raw.Data["worker_type"].(string)
			out = append(out, patterns.FailureEvent{
				EventType:  string(raw.EventType),
				WorkerID:   raw.WorkerID,
				WorkerType: workerType,
				Timestamp:  raw.Timestamp,
				Data:       raw.Data,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// loadPattern scans the shared pattern stream for the most recently mined
// FailurePattern with the given id, so callers that only have a pattern_id
// (e.g. `remediate`) can recover its mined severity instead of guessing.
func loadPattern(st *store.Store, patternID string) (patterns.FailurePattern, bool, error) {
	var found patterns.FailurePattern
	ok := false
	err := store.ReadJSONL(patternStreamPath(st), func(line []byte) error {
		var p patterns.FailurePattern
		if err := json.Unmarshal(line, &p); err != nil {
			return err
		}
		if p.PatternID == patternID {
			found = p
			ok = true
		}
		return nil
	})
	if err != nil {
		return patterns.FailurePattern{}, false, err
	}
	return found, ok, nil
}

// cmdAnalyze implements `cortex analyze` (spec §4.5): mines FailureEvents
// from the current window into confidence-banded FailurePatterns and
// persists both the pattern stream and the category/worker-type index.
func cmdAnalyze(args []string) error {
	fs, configPath, dev := newFlagSet("analyze")
	windowHours := fs.Int("window-hours", 0, "override the configured mining window in hours")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}

	events, err := loadFailureEvents(rt.store)
	if err != nil {
		return err
	}

	window := rt.cfg.Patterns.WindowHours
	if *windowHours > 0 {
		window = *windowHours
	}
	detector := &patterns.Detector{
		WindowHours:        window,
		FrequencyThreshold: rt.cfg.Patterns.FrequencyThreshold,
		Now:                rt.clock.Now,
	}
	mined := detector.Mine(events, rt.clock.Now())

	for _, p := range mined {
		if err := store.AppendJSONL(patternStreamPath(rt.store), p); err != nil {
			return err
		}
	}
	index := patterns.NewIndex(mined)
	if err := store.WriteJSON(patternIndexPath(rt.store), index); err != nil {
		return err
	}

	rt.logger.Info("pattern analysis complete", "events_scanned", len(events), "patterns_mined", len(mined))
	return json.NewEncoder(os.Stdout).Encode(mined)
}
