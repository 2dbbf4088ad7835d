package main

import (
	"fmt"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/specbuilder"
)

// permissions is the free-form governance envelope a build request carries
// under context.permissions — spec §4.9's scenario 2 worked example
// ("permissions.data_access=[\"credentials\"]") rather than a first-class
// WorkerSpec field, so it is read out of BuildOpts.Context instead of
// widening the WorkerSpec shape spec §3's glossary entry fixes.
type permissions struct {
	DataAccess        []string
	Operations        []string
	AuditTrailEnabled bool
	ApprovalID        string
}

func extractPermissions(ctx map[string]any) permissions {
	var p permissions
	raw, _ := ctx["permissions"].(map[string]any)
	if raw == nil {
		return p
	}
	p.DataAccess = toStringSlice(raw["data_access"])
	p.Operations = toStringSlice(raw["operations"])
	p.AuditTrailEnabled, _ = raw["audit_trail_enabled"].(bool)
	p.ApprovalID, _ = raw["approval_id"].(string)
	return p
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func containsStr(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// compliancePreflight runs spec §4.9's 8-step compliance gate ahead of
// `build` persisting a WorkerSpec. Any failing step aborts the build before
// anything is written, appends a compliance.failed event (per §7's
// PolicyDenied handling, extended here to every denying step so the audit
// trail covers all eight), and returns a typed error.
func compliancePreflight(rt *runtimeEnv, opts specbuilder.BuildOpts) error {
	gov := rt.cfg.Governance
	perm := extractPermissions(opts.Context)

	// 1. spec schema: worker_id shape and the required identifying fields.
	if !specbuilder.ValidWorkerID(opts.WorkerID) {
		return deny(rt, opts, 1, cortexerr.ValidationFailure(fmt.Sprintf("compliance: worker_id %q does not match spec shape", opts.WorkerID), nil))
	}
	if opts.WorkerType == "" || opts.TaskID == "" {
		return deny(rt, opts, 1, cortexerr.ValidationFailure("compliance: worker_type and task_id are required", nil))
	}

	// 2. referenced task exists in the queue.
	task, exists, err := loadTaskRecord(rt.store, opts.TaskID)
	if err != nil {
		return err
	}
	if !exists {
		return deny(rt, opts, 2, cortexerr.NotFound("compliance: task "+opts.TaskID+" not found", nil))
	}

	// 3. global token-budget and time-limit maxima.
	if opts.Resources != nil {
		if gov.MaxTokenBudget > 0 && opts.Resources.TokenBudget > gov.MaxTokenBudget {
			return deny(rt, opts, 3, cortexerr.PreconditionFailed(fmt.Sprintf("compliance: token_budget %d exceeds governance maximum %d", opts.Resources.TokenBudget, gov.MaxTokenBudget), nil))
		}
		if gov.MaxTimeoutMinutes > 0 && opts.Resources.TimeoutMinutes > gov.MaxTimeoutMinutes {
			return deny(rt, opts, 3, cortexerr.PreconditionFailed(fmt.Sprintf("compliance: timeout_minutes %d exceeds governance maximum %d", opts.Resources.TimeoutMinutes, gov.MaxTimeoutMinutes), nil))
		}
	}

	// 4. restricted operations.
	for _, op := range perm.Operations {
		if containsStr(gov.RestrictedOperations, op) {
			return deny(rt, opts, 4, cortexerr.PolicyDenied("compliance: operation "+op+" is restricted", nil))
		}
	}

	// 5. sensitive-data authorization: worker_type must be allow-listed for
	// every data category the spec declares access to.
	for _, category := range perm.DataAccess {
		allowed := gov.SensitiveDataAllowlist[category]
		if !containsStr(allowed, opts.WorkerType) {
			return deny(rt, opts, 5, cortexerr.PolicyDenied(fmt.Sprintf("compliance: worker_type %q not allow-listed for data category %q", opts.WorkerType, category), nil))
		}
	}

	// 6. audit-required task types must have audit-trail enabled.
	if containsStr(gov.AuditRequiredTaskTypes, task.Type) && !perm.AuditTrailEnabled {
		return deny(rt, opts, 6, cortexerr.PolicyDenied("compliance: task type "+task.Type+" requires audit_trail_enabled", nil))
	}

	// 7. approval-required operations need a valid approval_id pointing to
	// an approved record.
	requiresApproval := false
	for _, op := range perm.Operations {
		if containsStr(gov.ApprovalRequiredOps, op) {
			requiresApproval = true
			break
		}
	}
	if requiresApproval {
		if perm.ApprovalID == "" {
			return deny(rt, opts, 7, cortexerr.PolicyDenied("compliance: operation requires approval_id", nil))
		}
		approved, err := approvalApproved(rt.store, perm.ApprovalID)
		if err != nil {
			return err
		}
		if !approved {
			return deny(rt, opts, 7, cortexerr.PolicyDenied("compliance: approval "+perm.ApprovalID+" not found or not approved", nil))
		}
	}

	// 8. concurrent-worker limit per worker_type.
	if limit, ok := gov.ConcurrentWorkerLimit[opts.WorkerType]; ok && limit > 0 {
		count, err := activeWorkerCountByType(rt.store, opts.WorkerType)
		if err != nil {
			return err
		}
		if count >= limit {
			return deny(rt, opts, 8, cortexerr.PreconditionFailed(fmt.Sprintf("compliance: worker_type %q at concurrent cap %d", opts.WorkerType, limit), nil))
		}
	}

	return nil
}

func deny(rt *runtimeEnv, opts specbuilder.BuildOpts, step int, err *cortexerr.Error) error {
	if evErr := appendComplianceFailed(rt.store, opts.WorkerID, opts.TaskID, step, err.Error(), rt.clock.Now()); evErr != nil {
		rt.logger.Warn("compliance: failed to append compliance.failed event", "error", evErr)
	}
	rt.logger.Warn("compliance gate denied spawn", "worker_id", opts.WorkerID, "task_id", opts.TaskID, "step", step, "reason", err.Error())
	return err
}
