// Command cortex is the control plane's CLI: one process per verb,
// dispatched against the coordination directory (internal/store) for the
// environment named by -config/$CORTEX_ENV. Every subsystem package
// (allocator, specbuilder, router, heartbeat, patterns, remediator,
// prompts, policy, lineage, strategy) is exercised through a thin per-verb
// file here; `serve` is the one long-lived exception, hosting internal/api
// and internal/telemetry for as long as the process runs. This file only
// owns process bootstrap and the verb dispatch table.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

func configureLogger(logLevel string, useDev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if useDev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// verbFunc is one dispatchable CLI verb; its error return is translated to
// a process exit code by cortexerr.ExitCode.
//
// Two verb names are shared across subsystems by the spec's own CLI
// surface (see DESIGN.md's cmd/cortex section): "record-outcome"
// (Allocator vs Prompts) and "validate" (Remediator vs Policy Engine);
// both handlers disambiguate on flags or on-disk state rather than
// requiring the caller to know which subsystem owns the verb.
type verbFunc func(args []string) error

var verbs = map[string]verbFunc{
	"allocate":           cmdAllocate,
	"record-outcome":     cmdRecordOutcome,
	"build":              cmdBuild,
	"select":             cmdSelect,
	"update-performance": cmdUpdatePerformance,
	"init":               cmdHeartbeatInit,
	"emit":               cmdHeartbeatEmit,
	"run":                cmdHeartbeatRun,
	"analyze":            cmdAnalyze,
	"remediate":          cmdRemediate,
	"execute":            cmdExecute,
	"validate":           cmdValidate,
	"create-version":     cmdCreateVersion,
	"activate":           cmdActivate,
	"get":                cmdGet,
	"ab-create":          cmdABCreate,
	"ab-select":          cmdABSelect,
	"evaluate":           cmdEvaluate,
	"evaluate-all":       cmdEvaluateAll,
	"list":               cmdList,
	"init-task-trace":    cmdInitTaskTrace,
	"emit-event":         cmdEmitEvent,
	"query-by-task":      cmdQueryByTask,
	"temporal-worker":    cmdTemporalWorker,
	"strategy":           cmdStrategy,
	"serve":              cmdServe,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: cortex <verb> [flags]")
		os.Exit(99)
	}
	verb := os.Args[1]
	fn, ok := verbs[verb]
	if !ok {
		fmt.Fprintf(os.Stderr, "invalid_input: unknown verb %q\n", verb)
		os.Exit(99)
	}

	err := fn(os.Args[2:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
	}
	os.Exit(cortexerr.ExitCode(err))
}
