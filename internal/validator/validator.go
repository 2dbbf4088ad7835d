// Package validator implements the structural/semantic checks spec §4.9
// groups under "Validator": JSON syntax, required fields, template-var
// interpolation guards, worker-spec shape, and the safe_write_json
// validate-then-atomic-rename pipeline. It operates on generic decoded JSON
// (map[string]any) so it has no dependency on any other component's
// concrete types — every component validates through this one surface.
package validator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cortexplane/control-plane/internal/cortexerr"
	"github.com/cortexplane/control-plane/internal/store"
)

var workerIDPattern = regexp.MustCompile(`^worker-[a-z]+-[0-9A-Za-z]+$`)

// ValidateJSONSyntax reports whether data is syntactically valid JSON.
func ValidateJSONSyntax(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return cortexerr.InvalidInput("validator: invalid json syntax", err)
	}
	return nil
}

// ValidateRequiredFields checks that every dot-path in required exists (and
// is non-null) in doc.
func ValidateRequiredFields(doc map[string]any, required []string) error {
	for _, path := range required {
		if _, ok := lookup(doc, path); !ok {
			return cortexerr.InvalidInput(fmt.Sprintf("validator: missing required field %q", path), nil)
		}
	}
	return nil
}

// lookup resolves a dot-path ("a.b.c") against a decoded JSON document.
func lookup(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok || v == nil {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// placeholderPattern flags the tell-tale signs of an uninitialized template
// interpolation that was never substituted: ", ," or ": ," left behind by a
// missing variable.
var placeholderPattern = regexp.MustCompile(`,\s*,|:\s*,|\{\{\s*\}\}`)

// ValidateTemplateVars rejects content containing uninitialized
// interpolation placeholders.
func ValidateTemplateVars(content string) error {
	if placeholderPattern.MatchString(content) {
		return cortexerr.InvalidInput("validator: uninitialized template placeholder detected", nil)
	}
	return nil
}

// validWorkerStatuses is the worker-spec status enum ValidateWorkerSpecDoc
// checks; statuses and the worker_id regex come straight from spec §3/§6.
var validWorkerStatuses = map[string]bool{
	"pending": true, "running": true, "completed": true, "failed": true,
}

// ValidateWorkerSpecDoc checks shape + worker_id regex + status enum + token
// budget bounds against a decoded worker-spec document.
func ValidateWorkerSpecDoc(doc map[string]any, maxTokensPerWorker int) error {
	workerID, _ := doc["worker_id"].(string)
	if !workerIDPattern.MatchString(workerID) {
		return cortexerr.InvalidInput(fmt.Sprintf("validator: worker_id %q does not match ^worker-[a-z]+-[0-9A-Za-z]+$", workerID), nil)
	}
	status, _ := doc["status"].(string)
	if !validWorkerStatuses[status] {
		return cortexerr.InvalidInput(fmt.Sprintf("validator: unknown worker status %q", status), nil)
	}
	resources, _ := doc["resources"].(map[string]any)
	if resources == nil {
		return cortexerr.InvalidInput("validator: missing resources", nil)
	}
	budget, ok := resources["token_budget"].(float64)
	if !ok {
		return cortexerr.InvalidInput("validator: resources.token_budget missing or not numeric", nil)
	}
	if budget < 2000 || budget > 100000 {
		return cortexerr.InvalidInput(fmt.Sprintf("validator: token_budget %v out of [2000,100000]", budget), nil)
	}
	if int(budget) > maxTokensPerWorker {
		return cortexerr.InvalidInput(fmt.Sprintf("validator: token_budget %v exceeds max_tokens_per_worker %d", budget, maxTokensPerWorker), nil)
	}
	return nil
}

// SafeWriteJSON runs the spec §4.9 write pipeline: syntax (via marshal) ->
// no-uninitialized-placeholders -> schema (caller-supplied validate) -> temp
// file -> atomic rename. Any failure aborts and writes nothing.
func SafeWriteJSON(path string, v any, validate func(doc map[string]any) error) error {
	data, err := json.Marshal(v)
	if err != nil {
		return cortexerr.InvalidInput("validator: marshal "+path, err)
	}
	if err := ValidateJSONSyntax(data); err != nil {
		return err
	}
	if err := ValidateTemplateVars(string(data)); err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return cortexerr.InvalidInput("validator: re-decode for schema check "+path, err)
	}
	if validate != nil {
		if err := validate(doc); err != nil {
			return err
		}
	}
	return store.WriteJSON(path, v)
}
