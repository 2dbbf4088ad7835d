// Package config loads and validates the control plane's TOML configuration.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that unmarshals from TOML strings like "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the top-level control-plane configuration.
type Config struct {
	General     General     `toml:"general"`
	Environment Environment `toml:"environment"`
	Allocator   Allocator   `toml:"allocator"`
	Router      Router      `toml:"router"`
	Heartbeat   Heartbeat   `toml:"heartbeat"`
	Patterns    Patterns    `toml:"patterns"`
	Remediation Remediation `toml:"remediation"`
	Prompts     Prompts     `toml:"prompts"`
	Policy      Policy      `toml:"policy"`
	Governance  Governance  `toml:"governance"`
	Lineage     Lineage     `toml:"lineage"`
	API         API         `toml:"api"`
	Temporal    Temporal    `toml:"temporal"`
}

type General struct {
	CoordinationRoot string   `toml:"coordination_root"` // requires restart
	LogLevel         string   `toml:"log_level"`
	DevLogging       bool     `toml:"dev_logging"`
	LockStaleAfter   Duration `toml:"lock_stale_after"`
}

// Environment pins the single environment this process instance writes to;
// requires a restart to change (spec §5: writes only to current environment).
type Environment struct {
	Name string `toml:"name"` // dev | staging | prod
}

type Allocator struct {
	MaxTokensPerWorker int     `toml:"max_tokens_per_worker"`
	HistoryWindow      int     `toml:"history_window"`
	HistoryMinSamples  int     `toml:"history_min_samples"`
	ExtensionFraction  float64 `toml:"extension_fraction"`
	TokenizerModel     string  `toml:"tokenizer_model"`
}

type Router struct {
	BaseWeights      Weights            `toml:"base_weights"`
	TaskTypeProfiles map[string]Weights `toml:"task_type_profiles"`
	LearningRate     float64            `toml:"learning_rate"` // EMA alpha
	AdjustmentCap    float64            `toml:"adjustment_cap"`
}

type Weights struct {
	Speed       float64 `toml:"speed"`
	Quality     float64 `toml:"quality"`
	Cost        float64 `toml:"cost"`
	SuccessRate float64 `toml:"success_rate"`
}

type Heartbeat struct {
	IntervalSeconds int `toml:"interval_seconds"`
	WarningSeconds  int `toml:"warning_seconds"`
	CriticalSeconds int `toml:"critical_seconds"`
	ZombieSeconds   int `toml:"zombie_seconds"`
	DockerEnrich    bool `toml:"docker_enrich"`
}

type Patterns struct {
	WindowHours       int `toml:"window_hours"`
	FrequencyThreshold int `toml:"frequency_threshold"`
}

type Remediation struct {
	DefaultStepTimeout Duration `toml:"default_step_timeout"`
}

type Prompts struct {
	SignificanceMinUses int     `toml:"significance_min_uses"`
	HighConfidenceDelta float64 `toml:"high_confidence_delta"`
	MedConfidenceDelta  float64 `toml:"med_confidence_delta"`
}

type Policy struct {
	DefinitionsDir string `toml:"definitions_dir"`
}

// Governance backs spec §4.9's spawn-time compliance gate: global resource
// maxima, the restricted-operation and approval-required sets, the
// sensitive-data allow-list (data category -> worker_types permitted to
// access it), audit-required task types, and the per-worker_type concurrent
// cap.
type Governance struct {
	MaxTokenBudget         int                 `toml:"max_token_budget"`
	MaxTimeoutMinutes      int                 `toml:"max_timeout_minutes"`
	RestrictedOperations   []string            `toml:"restricted_operations"`
	ApprovalRequiredOps    []string            `toml:"approval_required_operations"`
	SensitiveDataAllowlist map[string][]string `toml:"sensitive_data_allowlist"`
	AuditRequiredTaskTypes []string            `toml:"audit_required_task_types"`
	ConcurrentWorkerLimit  map[string]int      `toml:"concurrent_worker_limit"`
}

type Lineage struct {
	RetentionDays int `toml:"retention_days"`
}

type API struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Temporal configures the Temporal server the Heartbeat Monitor's liveness
// workflows and the Remediator's playbook-execution workflow run against.
type Temporal struct {
	HostPort string `toml:"host_port"`
}

// Clone returns a deep-enough copy for safe handoff across the RWMutexManager.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Router.TaskTypeProfiles = make(map[string]Weights, len(c.Router.TaskTypeProfiles))
	for k, v := range c.Router.TaskTypeProfiles {
		cp.Router.TaskTypeProfiles[k] = v
	}
	cp.Governance.RestrictedOperations = cloneStringSlice(c.Governance.RestrictedOperations)
	cp.Governance.ApprovalRequiredOps = cloneStringSlice(c.Governance.ApprovalRequiredOps)
	cp.Governance.AuditRequiredTaskTypes = cloneStringSlice(c.Governance.AuditRequiredTaskTypes)
	cp.Governance.SensitiveDataAllowlist = make(map[string][]string, len(c.Governance.SensitiveDataAllowlist))
	for k, v := range c.Governance.SensitiveDataAllowlist {
		cp.Governance.SensitiveDataAllowlist[k] = cloneStringSlice(v)
	}
	cp.Governance.ConcurrentWorkerLimit = make(map[string]int, len(c.Governance.ConcurrentWorkerLimit))
	for k, v := range c.Governance.ConcurrentWorkerLimit {
		cp.Governance.ConcurrentWorkerLimit[k] = v
	}
	return &cp
}

func cloneStringSlice(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Default returns the built-in configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		General: General{
			CoordinationRoot: "coordination",
			LogLevel:         "info",
			LockStaleAfter:   Duration{30 * time.Second},
		},
		Environment: Environment{Name: "prod"},
		Allocator: Allocator{
			MaxTokensPerWorker: 100000,
			HistoryWindow:      10,
			HistoryMinSamples:  3,
			ExtensionFraction:  0.25,
			TokenizerModel:     "cl100k_base",
		},
		Router: Router{
			BaseWeights: Weights{Speed: 0.25, Quality: 0.35, Cost: 0.20, SuccessRate: 0.20},
			TaskTypeProfiles: map[string]Weights{
				"security-scan": {Speed: 0.15, Quality: 0.45, Cost: 0.10, SuccessRate: 0.30},
			},
			LearningRate:  0.2,
			AdjustmentCap: 0.2,
		},
		Heartbeat: Heartbeat{
			IntervalSeconds: 30,
			WarningSeconds:  60,
			CriticalSeconds: 120,
			ZombieSeconds:   300,
		},
		Patterns: Patterns{WindowHours: 24, FrequencyThreshold: 3},
		Remediation: Remediation{
			DefaultStepTimeout: Duration{300 * time.Second},
		},
		Prompts: Prompts{
			SignificanceMinUses: 30,
			HighConfidenceDelta: 0.10,
			MedConfidenceDelta:  0.05,
		},
		Policy: Policy{DefinitionsDir: "policies/policy-definitions"},
		Governance: Governance{
			MaxTokenBudget:       100000,
			MaxTimeoutMinutes:    480,
			RestrictedOperations: []string{"delete_production_data", "modify_iam_policy", "disable_audit_logging"},
			ApprovalRequiredOps:  []string{"deploy_production", "rotate_credentials"},
			SensitiveDataAllowlist: map[string][]string{
				"credentials": {"security-worker"},
				"pii":         {"security-worker", "review-worker"},
			},
			AuditRequiredTaskTypes: []string{"security-scan", "compliance-review"},
			ConcurrentWorkerLimit:  map[string]int{},
		},
		Lineage: Lineage{RetentionDays: 90},
		API:      API{Enabled: false, Addr: "127.0.0.1:8090"},
		Temporal: Temporal{HostPort: "127.0.0.1:7233"},
	}
}

// Load reads and validates a TOML config file, filling unset fields from Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects structurally invalid configuration.
func (c *Config) Validate() error {
	switch c.Environment.Name {
	case "dev", "staging", "prod":
	default:
		return fmt.Errorf("config: environment.name must be dev|staging|prod, got %q", c.Environment.Name)
	}
	if c.Allocator.MaxTokensPerWorker <= 0 {
		return fmt.Errorf("config: allocator.max_tokens_per_worker must be positive")
	}
	if c.Router.LearningRate <= 0 || c.Router.LearningRate > 1 {
		return fmt.Errorf("config: router.learning_rate must be in (0,1]")
	}
	if c.Heartbeat.WarningSeconds >= c.Heartbeat.CriticalSeconds ||
		c.Heartbeat.CriticalSeconds >= c.Heartbeat.ZombieSeconds {
		return fmt.Errorf("config: heartbeat thresholds must be strictly increasing warning<critical<zombie")
	}
	return nil
}

// RestartRequiredFields lists the dot-paths that ValidateRuntimeReload
// refuses to change without a process restart.
var RestartRequiredFields = []string{"general.coordination_root", "environment.name"}

// ValidateRuntimeReload rejects a reload that touches a restart-required field.
func ValidateRuntimeReload(oldCfg, newCfg *Config) error {
	if oldCfg.General.CoordinationRoot != newCfg.General.CoordinationRoot {
		return fmt.Errorf("config: general.coordination_root change requires restart")
	}
	if oldCfg.Environment.Name != newCfg.Environment.Name {
		return fmt.Errorf("config: environment.name change requires restart")
	}
	return nil
}
