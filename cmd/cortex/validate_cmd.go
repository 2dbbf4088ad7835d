package main

import (
	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/remediator"
)

// cmdValidate implements the `validate` verb spec §6 assigns to two
// different subsystems: the Remediator's post-execution step validation
// (`validate <execution_id> --step-id ... --passed ...`) and the Policy
// Engine's ad hoc single-policy re-check (`validate <policy_id> <target
// file>`). The two take disjoint positional shapes, so dispatch tries an
// execution lookup first and falls back to treating the id as a policy id.
func cmdValidate(args []string) error {
	fs, configPath, dev := newFlagSet("validate")
	stepID := fs.String("step-id", "", "remediation step id (Remediator form)")
	passed := fs.Bool("passed", false, "whether the step's validation check passed (Remediator form)")
	validationType := fs.String("validation-type", "", "remediator.ValidationType (Remediator form)")
	rollbackOnFail := fs.Bool("rollback-on-fail", false, "whether a failed validation triggers rollback (Remediator form)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 1 {
		return cortexerr.InvalidInput("validate: usage: validate <execution_id> --step-id ... | validate <policy_id> <target-file>", nil)
	}
	id := rest[0]

	rt, err := bootstrap(*configPath, *dev)
	if err != nil {
		return err
	}

	if _, err := loadExecution(rt.store, id); err == nil {
		if *stepID == "" {
			return cortexerr.InvalidInput("validate: --step-id is required for an execution id", nil)
		}
		return remediatorValidate(rt, id, *stepID, *passed, remediator.ValidationType(*validationType), *rollbackOnFail)
	} else if !cortexerr.Is(err, cortexerr.KindNotFound) {
		return err
	}

	if len(rest) != 2 {
		return cortexerr.InvalidInput("validate: usage: validate <policy_id> <target-file>", nil)
	}
	return policyValidate(rt, id, rest[1])
}
