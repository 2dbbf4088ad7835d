package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/cortexplane/control-plane/internal/clockutil"
	"github.com/cortexplane/control-plane/internal/config"
	"github.com/cortexplane/control-plane/internal/store"
	"github.com/cortexplane/control-plane/internal/tracer"
)

// newFlagSet returns a FlagSet pre-registered with the bootstrap flags every
// verb accepts, plus accessors for them.
func newFlagSet(name string) (fs *flag.FlagSet, configPath *string, dev *bool) {
	fs = flag.NewFlagSet(name, flag.ExitOnError)
	configPath = fs.String("config", "cortex.toml", "path to config file")
	dev = fs.Bool("dev", false, "use text log format (default is JSON)")
	return fs, configPath, dev
}

// runtimeEnv bundles the bootstrap state every verb needs: loaded config, a
// store handle bound to the active environment, a logger, and a wall
// clock. $CORTEX_HOME and $CORTEX_ENV override the config file per spec §6.
type runtimeEnv struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
	clock  clockutil.Clock
}

func bootstrap(configPath string, dev bool) (*runtimeEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	envName := store.Env(cfg.Environment.Name)
	if v := os.Getenv("CORTEX_ENV"); v != "" {
		envName = store.Env(v)
	}
	root := cfg.General.CoordinationRoot
	if v := os.Getenv("CORTEX_HOME"); v != "" {
		root = v
	}
	st, err := store.New(root, envName)
	if err != nil {
		return nil, err
	}

	logger := configureLogger(cfg.General.LogLevel, dev)
	return &runtimeEnv{cfg: cfg, store: st, logger: logger, clock: clockutil.Real{}}, nil
}

// principal resolves the acting identity for lineage Actor records.
func principal() string {
	if v := os.Getenv("CORTEX_PRINCIPAL"); v != "" {
		return v
	}
	return "cli"
}

// traceFromEnv reconstructs the trace context propagated by a parent
// process via CORRELATION_ID/SPAN_ID/PARENT_SPAN_ID, or mints a fresh root
// context for component/operation if none was propagated.
func traceFromEnv(clock clockutil.Clock, component, operation string) (tracer.Context, error) {
	ctx := tracer.FromEnv(os.Getenv)
	if ctx.CorrelationID != "" {
		return ctx.Child(clock, operation)
	}
	return tracer.NewRoot(clock, component, operation)
}

// now reads the wall clock directly rather than through clockutil.Clock.
// No verb in this package calls it; they read time via runtimeEnv.clock.
func now() time.Time { return time.Now() }
