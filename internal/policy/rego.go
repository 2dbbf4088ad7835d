package policy

import (
	"context"

	"github.com/open-policy-agent/opa/rego"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

// EvalCustom compiles and evaluates regoExpr as a Rego query against target,
// backing the `custom` condition type's escape hatch (spec §4.9). The query
// must produce a boolean; `data.cortex.allow` by convention, but any
// expression returning bool is accepted as the query body itself.
func EvalCustom(target any, regoExpr string) (bool, error) {
	if regoExpr == "" {
		return false, cortexerr.InvalidInput("policy: custom condition requires a rego expression", nil)
	}
	query, err := rego.New(
		rego.Query(regoExpr),
		rego.Input(target),
	).PrepareForEval(context.Background())
	if err != nil {
		return false, cortexerr.InvalidInput("policy: compile rego expression", err)
	}
	results, err := query.Eval(context.Background(), rego.EvalInput(target))
	if err != nil {
		return false, cortexerr.ValidationFailure("policy: evaluate rego expression", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}
	b, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, cortexerr.ValidationFailure("policy: rego expression must return a boolean", nil)
	}
	return b, nil
}
