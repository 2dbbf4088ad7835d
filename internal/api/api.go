// Package api provides a lightweight, read-only HTTP surface for querying
// control plane state: worker specs, routing decisions, failure patterns,
// and aggregate status. There are no write/control endpoints in this
// domain — every mutation happens through the coordination directory and
// the workflow/CLI layers, never through the API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cortexplane/control-plane/internal/config"
	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/patterns"
	"github.com/cortexplane/control-plane/internal/router"
	"github.com/cortexplane/control-plane/internal/specbuilder"
	"github.com/cortexplane/control-plane/internal/store"
	"github.com/cortexplane/control-plane/internal/telemetry"
)

// Server is the control plane's read-only HTTP API server.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	startTime  time.Time
	httpServer *http.Server
}

// NewServer creates a new API server bound to st's coordination directory.
func NewServer(cfg *config.Config, st *store.Store, metrics *telemetry.Metrics, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		metrics:   metrics,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Start begins listening on the configured bind address. Blocks until ctx
// is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/workers", s.handleWorkers)
	mux.HandleFunc("/workers/", s.handleWorkerDetail)
	mux.HandleFunc("/routing/decisions", s.handleRoutingDecisions)
	mux.HandleFunc("/patterns", s.handlePatterns)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	s.httpServer = &http.Server{
		Addr:        s.cfg.API.Addr,
		Handler:     mux,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.cfg.API.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// listWorkerSpecs reads every worker spec under the given worker-specs
// subdirectory (active/completed/failed), tolerating an absent directory.
func (s *Server) listWorkerSpecs(dir string) ([]specbuilder.WorkerSpec, error) {
	root := s.store.EnvPath(store.DirWorkerSpecs, dir)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []specbuilder.WorkerSpec
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var spec specbuilder.WorkerSpec
		if err := store.ReadJSON(filepath.Join(root, e.Name()), &spec); err != nil {
			s.logger.Warn("failed to read worker spec", "file", e.Name(), "error", err)
			continue
		}
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out, nil
}

// GET /status — aggregate counts across worker lifecycle states.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	active, _ := s.listWorkerSpecs(store.WorkerSpecsActive)
	completed, _ := s.listWorkerSpecs(store.WorkerSpecsCompleted)
	failed, _ := s.listWorkerSpecs(store.WorkerSpecsFailed)

	resp := map[string]any{
		"uptime_s":           time.Since(s.startTime).Seconds(),
		"environment":        string(s.store.Env),
		"workers_active":     len(active),
		"workers_completed":  len(completed),
		"workers_failed":     len(failed),
	}
	writeJSON(w, resp)
}

// GET /workers — list all active worker specs.
func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	specs, err := s.listWorkerSpecs(store.WorkerSpecsActive)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list worker specs")
		return
	}
	writeJSON(w, specs)
}

// GET /workers/{worker_id} — look up one worker spec across lifecycle
// states, active first.
func (s *Server) handleWorkerDetail(w http.ResponseWriter, r *http.Request) {
	workerID := strings.TrimPrefix(r.URL.Path, "/workers/")
	if workerID == "" {
		s.handleWorkers(w, r)
		return
	}

	for _, dir := range []string{store.WorkerSpecsActive, store.WorkerSpecsCompleted, store.WorkerSpecsFailed} {
		path := s.store.EnvPath(store.DirWorkerSpecs, dir, workerID+".json")
		var spec specbuilder.WorkerSpec
		if err := store.ReadJSON(path, &spec); err == nil {
			writeJSON(w, spec)
			return
		}
	}
	writeError(w, http.StatusNotFound, "worker spec not found")
}

// decisionsPath is where the router CLI verb appends each RoutingDecision.
func (s *Server) decisionsPath() string {
	return s.store.EnvPath(store.DirRouting, "decisions.jsonl")
}

// GET /routing/decisions?task_id=&limit= — recent routing decisions, most
// recent last (append order), optionally filtered by task_id.
func (s *Server) handleRoutingDecisions(w http.ResponseWriter, r *http.Request) {
	taskFilter := r.URL.Query().Get("task_id")

	var out []router.RoutingDecision
	err := store.ReadJSONL(s.decisionsPath(), func(line []byte) error {
		var d router.RoutingDecision
		if err := json.Unmarshal(line, &d); err != nil {
			return err
		}
		if taskFilter != "" && d.TaskID != taskFilter {
			return nil
		}
		out = append(out, d)
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read routing decisions")
		return
	}
	writeJSON(w, out)
}

// patternsPath is the shared (cross-environment) failure-pattern index
// written by the pattern-detector CLI verb.
func (s *Server) patternsPath() string {
	return s.store.SharedPath(store.DirPatterns, "patterns.json")
}

// GET /patterns — the current mined failure-pattern index.
func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	var ps []patterns.FailurePattern
	if err := store.ReadJSON(s.patternsPath(), &ps); err != nil {
		if cortexerr.Is(err, cortexerr.KindNotFound) {
			writeJSON(w, []patterns.FailurePattern{})
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to read patterns")
		return
	}
	writeJSON(w, ps)
}
