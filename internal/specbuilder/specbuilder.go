// Package specbuilder assembles immutable, validated WorkerSpecs with
// checkpointed sub-goals (spec §4.2), writing them via the validator's
// safe-write pipeline and tracking active worker_ids to enforce the
// duplicate-id-is-fatal invariant.
package specbuilder

import (
	"fmt"
	"regexp"
	"time"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/store"
	"github.com/cortexplane/control-plane/internal/validator"
)

var workerIDPattern = regexp.MustCompile(`^worker-[a-z]+-[0-9A-Za-z]+$`)

// ValidWorkerID reports whether id matches spec §6's worker_id regex,
// exposed so callers that must validate a spec's shape before BuildSpec
// runs (the compliance pre-flight's schema step) use the same rule.
func ValidWorkerID(id string) bool {
	return workerIDPattern.MatchString(id)
}

// VerificationType enumerates checkpoint verification kinds (spec §3/§4.2).
type VerificationType string

const (
	VerifyFileExists     VerificationType = "file_exists"
	VerifyCommandSuccess VerificationType = "command_success"
	VerifyJSONField      VerificationType = "json_field"
	VerifyCustom         VerificationType = "custom"
	VerifyArtifact       VerificationType = "artifact"
	VerifyTest           VerificationType = "test"
	VerifyReview         VerificationType = "review"
)

// Checkpoint is a verifiable sub-goal within a spec.
type Checkpoint struct {
	CheckpointID      string            `json:"checkpoint_id"`
	Step              int               `json:"step"`
	VerificationType  VerificationType  `json:"verification_type"`
	SuccessCondition  string            `json:"success_condition"`
	TimeoutSeconds    int               `json:"timeout_seconds"`
	Required          bool              `json:"required"`
	ValidationResult  *bool             `json:"validation_result,omitempty"`
	ValidatedAt       *time.Time        `json:"validated_at,omitempty"`
	ValidationMessage string            `json:"validation_message,omitempty"`
}

// Status is the WorkerSpec lifecycle state; advances monotonically.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Resources is the resource envelope a WorkerSpec declares.
type Resources struct {
	TokenBudget    int `json:"token_budget"`
	TimeoutMinutes int `json:"timeout_minutes"`
	MaxRetries     int `json:"max_retries"`
}

// Execution tracks runtime progress, populated by the owning master.
type Execution struct {
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	TokensUsed     int        `json:"tokens_used"`
	DurationMinute float64    `json:"duration_minutes"`
}

// WorkerSpec is the immutable instruction to run one worker.
type WorkerSpec struct {
	WorkerID           string                 `json:"worker_id"`
	WorkerType         string                 `json:"worker_type"`
	CreatedBy          string                 `json:"created_by"`
	TaskID             string                 `json:"task_id"`
	Status             Status                 `json:"status"`
	Scope              map[string]any         `json:"scope"`
	Context            map[string]any         `json:"context"`
	Resources          Resources              `json:"resources"`
	Deliverables       []string               `json:"deliverables,omitempty"`
	PromptRef          string                 `json:"prompt_ref"`
	Execution          Execution              `json:"execution"`
	Results            map[string]any         `json:"results,omitempty"`
	CheckpointCriteria []Checkpoint           `json:"checkpoint_criteria"`
	CreatedAt          time.Time              `json:"created_at"`
}

// defaultTokenBudgetByType is spec §4.2's worker-type default table.
var defaultTokenBudgetByType = map[string]int{
	"implementation": 8000,
	"test":           5000,
	"review":         10000,
	"refactor":       6000,
	"debug":          5000,
	"research":       4000,
	"integration":    6000,
	"docs":           5000,
}

// knownWorkerTypes is the registry spec §4.2 refers to ("worker_type known
// to registry (else warn, continue)"); unknown types are accepted with a
// warning, never rejected.
var knownWorkerTypes = func() map[string]bool {
	m := make(map[string]bool, len(defaultTokenBudgetByType))
	for t := range defaultTokenBudgetByType {
		m[t] = true
	}
	return m
}()

// TaskExists is supplied by the caller to satisfy the "task_id exists in
// task queue" precondition without specbuilder depending on a task package.
type TaskExists func(taskID string) (bool, error)

// Builder assembles and persists WorkerSpecs.
type Builder struct {
	St                 *store.Store
	MaxTokensPerWorker int
	TaskExists         TaskExists
	Now                func() time.Time
	Warnf              func(format string, args ...any)

	active map[string]bool
}

// BuildOpts mirrors spec §4.2's build_spec parameters.
type BuildOpts struct {
	WorkerID           string
	WorkerType         string
	TaskID             string
	CreatedBy          string
	Scope              map[string]any
	Context            map[string]any
	Resources          *Resources
	CheckpointCriteria []Checkpoint
}

// BuildSpec implements spec §4.2's build_spec(...) -> WorkerSpec contract.
func (b *Builder) BuildSpec(opts BuildOpts) (WorkerSpec, error) {
	if !workerIDPattern.MatchString(opts.WorkerID) {
		return WorkerSpec{}, cortexerr.InvalidInput(fmt.Sprintf("specbuilder: worker_id %q invalid", opts.WorkerID), nil)
	}
	if b.active == nil {
		b.active = make(map[string]bool)
	}
	if b.active[opts.WorkerID] {
		return WorkerSpec{}, cortexerr.FatalInvariant("specbuilder: duplicate worker_id "+opts.WorkerID, nil)
	}
	if !knownWorkerTypes[opts.WorkerType] && b.Warnf != nil {
		b.Warnf("specbuilder: worker_type %q not in registry, continuing", opts.WorkerType)
	}
	if b.TaskExists != nil {
		exists, err := b.TaskExists(opts.TaskID)
		if err != nil {
			return WorkerSpec{}, cortexerr.Transient("specbuilder: check task existence", err)
		}
		if !exists {
			return WorkerSpec{}, cortexerr.NotFound("specbuilder: task "+opts.TaskID+" not found", nil)
		}
	}
	if opts.Scope == nil {
		return WorkerSpec{}, cortexerr.InvalidInput("specbuilder: scope must be a JSON object", nil)
	}
	if opts.Context == nil {
		opts.Context = map[string]any{}
	}

	resources := Resources{TimeoutMinutes: 60, MaxRetries: 2}
	if opts.Resources != nil {
		resources = *opts.Resources
	}
	if resources.TokenBudget == 0 {
		if def, ok := defaultTokenBudgetByType[opts.WorkerType]; ok {
			resources.TokenBudget = def
		} else {
			resources.TokenBudget = 8000
		}
	}
	if b.MaxTokensPerWorker > 0 && resources.TokenBudget > b.MaxTokensPerWorker {
		resources.TokenBudget = b.MaxTokensPerWorker
	}

	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	for i := range opts.CheckpointCriteria {
		opts.CheckpointCriteria[i].Step = i + 1
	}

	spec := WorkerSpec{
		WorkerID:           opts.WorkerID,
		WorkerType:         opts.WorkerType,
		CreatedBy:          opts.CreatedBy,
		TaskID:             opts.TaskID,
		Status:             StatusPending,
		Scope:              opts.Scope,
		Context:            opts.Context,
		Resources:          resources,
		PromptRef:          fmt.Sprintf("coordination/prompts/workers/%s.md", opts.WorkerType),
		CheckpointCriteria: opts.CheckpointCriteria,
		CreatedAt:          now(),
	}

	path := b.St.EnvPath(store.DirWorkerSpecs, store.WorkerSpecsActive, spec.WorkerID+".json")
	if err := validator.SafeWriteJSON(path, spec, func(doc map[string]any) error {
		return validator.ValidateWorkerSpecDoc(doc, b.MaxTokensPerWorker)
	}); err != nil {
		return WorkerSpec{}, err
	}
	b.active[opts.WorkerID] = true
	return spec, nil
}

// ValidateCheckpointSuccessCondition enforces the success_condition shapes
// spec §4.2 documents per verification type (structural check only — actual
// evaluation against a target happens in validator.EvalJSONField et al.).
func ValidateCheckpointSuccessCondition(c Checkpoint) error {
	switch c.VerificationType {
	case VerifyJSONField:
		if !regexp.MustCompile(`.+=.+`).MatchString(c.SuccessCondition) {
			return cortexerr.InvalidInput("specbuilder: json_field success_condition must be <path>=<expected>", nil)
		}
	case VerifyFileExists:
		if c.SuccessCondition == "" {
			return cortexerr.InvalidInput("specbuilder: file_exists success_condition must be a path", nil)
		}
	case VerifyCommandSuccess, VerifyCustom, VerifyArtifact, VerifyTest, VerifyReview:
		// semantic tags / implementation-specific; no structural constraint.
	default:
		return cortexerr.InvalidInput(fmt.Sprintf("specbuilder: unknown verification_type %q", c.VerificationType), nil)
	}
	return nil
}

// RecordValidation appends {validated_at, validation_result,
// validation_message} to the named checkpoint in place, then rewrites the
// spec atomically (spec §4.2).
func (b *Builder) RecordValidation(spec *WorkerSpec, checkpointID string, result bool, message string) error {
	found := false
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	ts := now()
	for i := range spec.CheckpointCriteria {
		if spec.CheckpointCriteria[i].CheckpointID == checkpointID {
			spec.CheckpointCriteria[i].ValidationResult = &result
			spec.CheckpointCriteria[i].ValidatedAt = &ts
			spec.CheckpointCriteria[i].ValidationMessage = message
			found = true
			break
		}
	}
	if !found {
		return cortexerr.NotFound("specbuilder: checkpoint "+checkpointID+" not found", nil)
	}
	dir := store.WorkerSpecsActive
	switch spec.Status {
	case StatusCompleted:
		dir = store.WorkerSpecsCompleted
	case StatusFailed:
		dir = store.WorkerSpecsFailed
	}
	path := b.St.EnvPath(store.DirWorkerSpecs, dir, spec.WorkerID+".json")
	return store.WriteJSON(path, spec)
}
