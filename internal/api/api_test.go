package api

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexplane/control-plane/internal/config"
	"github.com/cortexplane/control-plane/internal/patterns"
	"github.com/cortexplane/control-plane/internal/router"
	"github.com/cortexplane/control-plane/internal/specbuilder"
	"github.com/cortexplane/control-plane/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	root := t.TempDir()
	st, err := store.New(root, store.EnvDev)
	require.NoError(t, err)

	cfg := config.Default()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return NewServer(cfg, st, nil, logger), st
}

func TestHandleWorkersListsActiveSpecs(t *testing.T) {
	s, st := newTestServer(t)

	spec := specbuilder.WorkerSpec{
		WorkerID:   "worker-impl-abc",
		WorkerType: "implementation",
		CreatedAt:  time.Now(),
	}
	path := st.EnvPath(store.DirWorkerSpecs, store.WorkerSpecsActive, spec.WorkerID+".json")
	require.NoError(t, store.WriteJSON(path, spec))

	req := httptest.NewRequest("GET", "/workers", nil)
	rec := httptest.NewRecorder()
	s.handleWorkers(rec, req)

	require.Equal(t, 200, rec.Code)
	var got []specbuilder.WorkerSpec
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "worker-impl-abc", got[0].WorkerID)
}

func TestHandleWorkerDetailNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/workers/nope", nil)
	rec := httptest.NewRecorder()
	s.handleWorkerDetail(rec, req)

	require.Equal(t, 404, rec.Code)
}

func TestHandleRoutingDecisionsFiltersByTaskID(t *testing.T) {
	s, st := newTestServer(t)

	path := st.EnvPath(store.DirRouting, "decisions.jsonl")
	require.NoError(t, store.AppendJSONL(path, router.RoutingDecision{TaskID: "task-1", SelectedMaster: "security-master"}))
	require.NoError(t, store.AppendJSONL(path, router.RoutingDecision{TaskID: "task-2", SelectedMaster: "development-master"}))

	req := httptest.NewRequest("GET", "/routing/decisions?task_id=task-1", nil)
	rec := httptest.NewRecorder()
	s.handleRoutingDecisions(rec, req)

	require.Equal(t, 200, rec.Code)
	var got []router.RoutingDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "task-1", got[0].TaskID)
}

func TestHandlePatternsReturnsEmptyWhenAbsent(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/patterns", nil)
	rec := httptest.NewRecorder()
	s.handlePatterns(rec, req)

	require.Equal(t, 200, rec.Code)
	var got []patterns.FailurePattern
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Empty(t, got)
}

func TestHandlePatternsReadsSharedIndex(t *testing.T) {
	s, st := newTestServer(t)

	ps := []patterns.FailurePattern{{PatternID: "pat-1", Category: "worker_failure", Type: "zombie"}}
	path := st.SharedPath(store.DirPatterns, "patterns.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, store.WriteJSON(path, ps))

	req := httptest.NewRequest("GET", "/patterns", nil)
	rec := httptest.NewRecorder()
	s.handlePatterns(rec, req)

	require.Equal(t, 200, rec.Code)
	var got []patterns.FailurePattern
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "pat-1", got[0].PatternID)
}

func TestHandleStatusReportsWorkerCounts(t *testing.T) {
	s, st := newTestServer(t)

	active := specbuilder.WorkerSpec{WorkerID: "worker-impl-a", WorkerType: "implementation"}
	require.NoError(t, store.WriteJSON(st.EnvPath(store.DirWorkerSpecs, store.WorkerSpecsActive, "worker-impl-a.json"), active))

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	require.Equal(t, 200, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, float64(1), got["workers_active"])
}
