package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestReadAllowedMatrix(t *testing.T) {
	tests := []struct {
		from, to Env
		want     bool
	}{
		{EnvDev, EnvDev, true},
		{EnvDev, EnvStaging, true},
		{EnvDev, EnvProd, true},
		{EnvStaging, EnvDev, false},
		{EnvStaging, EnvProd, true},
		{EnvProd, EnvDev, false},
		{EnvProd, EnvStaging, false},
	}
	for _, tt := range tests {
		if got := ReadAllowed(tt.from, tt.to); got != tt.want {
			t.Errorf("ReadAllowed(%s,%s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestForeignEnvPathDeniesIsolatedProd(t *testing.T) {
	s, err := New(t.TempDir(), EnvProd)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ForeignEnvPath(EnvDev, "tasks"); err == nil {
		t.Fatal("expected prod to be denied reading dev")
	}
}

func TestWriteReadJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.json")
	type payload struct{ A int }
	if err := WriteJSON(path, payload{A: 7}); err != nil {
		t.Fatal(err)
	}
	var got payload
	if err := ReadJSON(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.A != 7 {
		t.Fatalf("got %d want 7", got.A)
	}
}

func TestWriteJSONLeavesNoTempFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.json")
	if err := WriteJSON(path, map[string]int{"x": 1}); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file, got %d", len(entries))
	}
}

func TestReadJSONMissingIsNotFound(t *testing.T) {
	var out struct{}
	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &out)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestAppendAndReadJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	type event struct{ N int }
	for i := 0; i < 3; i++ {
		if err := AppendJSONL(path, event{N: i}); err != nil {
			t.Fatal(err)
		}
	}
	var got []int
	err := ReadJSONL(path, func(line []byte) error {
		var e event
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		got = append(got, e.N)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Fatalf("unexpected contents: %v", got)
	}
}

func TestReadJSONLMissingFileIsNoOp(t *testing.T) {
	calls := 0
	err := ReadJSONL(filepath.Join(t.TempDir(), "absent.jsonl"), func(line []byte) error {
		calls++
		return nil
	})
	if err != nil || calls != 0 {
		t.Fatalf("expected no error and no calls, got err=%v calls=%d", err, calls)
	}
}

func TestLockAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource.lock")
	l, err := AcquireLock(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := AcquireLock(path); err == nil {
		t.Fatal("expected second acquire to fail while held")
	}
	l.Release()
	l2, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("expected reacquire after release to succeed: %v", err)
	}
	l2.Release()
}

func TestLockReclaimsStalePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resource.lock")
	// Simulate a lock file left behind by a dead process: a PID that is
	// vanishingly unlikely to be alive, with no flock actually held.
	if err := os.WriteFile(path, []byte("999999\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	l, err := AcquireLock(path)
	if err != nil {
		t.Fatalf("expected stale lock to be reclaimed: %v", err)
	}
	l.Release()
}
