package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cortexplane/control-plane/internal/api"
	"github.com/cortexplane/control-plane/internal/patterns"
	"github.com/cortexplane/control-plane/internal/remediator"
	"github.com/cortexplane/control-plane/internal/router"
	"github.com/cortexplane/control-plane/internal/store"
	"github.com/cortexplane/control-plane/internal/telemetry"
)

// jsonlTailer remembers how much of an append-only JSONL file it has
// already consumed, so a long-lived process can poll the CLI verbs'
// single-writer logs for newly appended records without rereading the
// whole file each tick.
type jsonlTailer struct {
	path   string
	offset int64
}

// newLines returns every complete line appended since the last call.
func (t *jsonlTailer) newLines() ([][]byte, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < t.offset {
		// file was rotated/truncated; restart from the top.
		t.offset = 0
	}
	if info.Size() == t.offset {
		return nil, nil
	}
	if _, err := f.Seek(t.offset, 0); err != nil {
		return nil, err
	}

	buf := make([]byte, info.Size()-t.offset)
	n, err := f.Read(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[:n]

	var lines [][]byte
	start := 0
	for i, b := range buf {
		if b == '\n' {
			if i > start {
				lines = append(lines, buf[start:i])
			}
			start = i + 1
		}
	}
	t.offset += int64(start)
	return lines, nil
}

// metricsPoller periodically tails the JSONL streams every other CLI verb
// writes and folds newly observed records into metrics, plus keeps the
// worker-health gauge current from heartbeat snapshots. This is how an
// ambient Prometheus registry stays meaningful under the one-process-per-verb
// architecture: the long-lived `serve` process is the only one around long
// enough to expose a /metrics scrape target, so it derives series from the
// same coordination-directory files the short-lived verbs already append to.
type metricsPoller struct {
	rt      *runtimeEnv
	metrics *telemetry.Metrics

	routing     jsonlTailer
	allocations jsonlTailer
	executions  jsonlTailer
	patternsLog jsonlTailer
}

func newMetricsPoller(rt *runtimeEnv, metrics *telemetry.Metrics) *metricsPoller {
	return &metricsPoller{
		rt:          rt,
		metrics:     metrics,
		routing:     jsonlTailer{path: rt.store.EnvPath(store.DirRouting, "decisions.jsonl")},
		allocations: jsonlTailer{path: rt.store.EnvPath(store.DirMetrics, "allocation-history.jsonl")},
		executions:  jsonlTailer{path: historyPath(rt.store)},
		patternsLog: jsonlTailer{path: patternStreamPath(rt.store)},
	}
}

func (p *metricsPoller) tick() {
	if lines, err := p.routing.newLines(); err == nil {
		for _, line := range lines {
			var d router.RoutingDecision
			if json.Unmarshal(line, &d) == nil {
				// RoutingDecision doesn't carry task_type (see router.RoutingDecision);
				// the per-task record is looked up by task_id via /routing/decisions
				// instead, so the metric only needs the master dimension here.
				p.metrics.RecordRoutingDecision(d.SelectedMaster, "")
			}
		}
	}
	if lines, err := p.allocations.newLines(); err == nil {
		for _, line := range lines {
			var o allocatorOutcomeOrAllocation
			if json.Unmarshal(line, &o) == nil && o.TokenBudget > 0 {
				p.metrics.ObserveAllocationTokens(o.TokenBudget)
			}
		}
	}
	if lines, err := p.executions.newLines(); err == nil {
		for _, line := range lines {
			var e remediator.Execution
			if json.Unmarshal(line, &e) == nil {
				p.metrics.RecordRemediationOutcome(e.PlaybookID, string(e.Status))
			}
		}
	}
	if lines, err := p.patternsLog.newLines(); err == nil {
		for _, line := range lines {
			var pat patterns.FailurePattern
			if json.Unmarshal(line, &pat) == nil {
				p.metrics.RecordPatternDetected(pat.Category, pat.Severity)
			}
		}
	}

	workers, err := activeWorkerHealthScores(p.rt.store)
	if err == nil {
		for workerID, score := range workers {
			p.metrics.SetWorkerHealthScore(workerID, score)
		}
	}
}

// allocatorOutcomeOrAllocation decodes the one field the poller needs
// (token_budget) from a line of the allocation history. Lines without a
// positive token_budget are skipped; allocator.Outcome has no token budget
// field, so Outcome lines never feed the histogram.
type allocatorOutcomeOrAllocation struct {
	TokenBudget int `json:"token_budget"`
}

// cmdServe implements `cortex serve` (spec §4.1's telemetry surface plus
// §6's read-only API): starts the read-only HTTP status API and the
// Prometheus /metrics exposition, and runs metricsPoller in the background
// so both have real data to serve. Blocks until SIGINT/SIGTERM.
func cmdServe(args []string) error {
	fs, configPath, dev := newFlagSet("serve")
	pollInterval := fs.Int("poll-interval-seconds", 5, "how often to fold newly-appended state into metrics")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}
	if !rt.cfg.API.Enabled {
		rt.logger.Info("serve: api.enabled is false in config, starting anyway since `serve` was invoked explicitly")
	}

	metrics := telemetry.New()
	server := api.NewServer(rt.cfg, rt.store, metrics, rt.logger)
	poller := newMetricsPoller(rt, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(time.Duration(*pollInterval) * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poller.tick()
			}
		}
	}()

	rt.logger.Info("serve: api + metrics starting", "addr", rt.cfg.API.Addr)
	return server.Start(ctx)
}
