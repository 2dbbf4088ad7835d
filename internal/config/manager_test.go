package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestManagerGetReturnsClone(t *testing.T) {
	m := NewManager(Default())
	a := m.Get()
	a.Environment.Name = "dev"
	b := m.Get()
	if b.Environment.Name != "prod" {
		t.Fatalf("Get() leaked mutation across callers, got %q", b.Environment.Name)
	}
}

func TestManagerSetReplacesConfig(t *testing.T) {
	m := NewManager(Default())
	next := Default()
	next.Heartbeat.WarningSeconds = 90
	m.Set(next)
	if m.Get().Heartbeat.WarningSeconds != 90 {
		t.Fatal("Set() did not take effect")
	}
}

func TestManagerReloadRejectsRestartField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cortex.toml")
	os.WriteFile(path, []byte("[general]\ncoordination_root = \"/changed\"\n"), 0o644)

	m := NewManager(Default())
	if err := m.Reload(path); err == nil {
		t.Fatal("expected reload to reject coordination_root change")
	}
}

func TestManagerReloadAppliesNonRestartField(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cortex.toml")
	os.WriteFile(path, []byte("[heartbeat]\nwarning_seconds = 90\ncritical_seconds = 150\nzombie_seconds = 400\ninterval_seconds = 30\n"), 0o644)

	m := NewManager(Default())
	if err := m.Reload(path); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if m.Get().Heartbeat.WarningSeconds != 90 {
		t.Fatal("reload did not apply warning_seconds")
	}
}

func TestManagerNilSafe(t *testing.T) {
	var m *RWMutexManager
	if got := m.Get(); got != nil {
		t.Fatalf("expected nil manager Get() to return nil, got %v", got)
	}
	m.Set(Default()) // must not panic
}

func TestManagerConcurrentAccess(t *testing.T) {
	m := NewManager(Default())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.Get()
		}()
		go func() {
			defer wg.Done()
			m.Set(Default())
		}()
	}
	wg.Wait()
}
