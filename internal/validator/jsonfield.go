package validator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

// EvalJSONField evaluates a `json_field` checkpoint's success_condition,
// shaped `<jq-style-path>=<expected>` per spec §4.2, against doc. Per spec
// §4.2 the comparison is string-based regardless of the underlying JSON
// type.
func EvalJSONField(doc any, successCondition string) (bool, error) {
	path, expected, ok := strings.Cut(successCondition, "=")
	if !ok {
		return false, cortexerr.InvalidInput(fmt.Sprintf("validator: malformed json_field condition %q, want <path>=<expected>", successCondition), nil)
	}
	path = normalizeJQPath(strings.TrimSpace(path))
	expected = strings.TrimSpace(expected)

	query, err := gojq.Parse(path)
	if err != nil {
		return false, cortexerr.InvalidInput("validator: parse jq path "+path, err)
	}
	iter := query.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return false, cortexerr.InvalidInput("validator: evaluate jq path "+path, err)
		}
		if stringify(v) == expected {
			return true, nil
		}
	}
	return false, nil
}

// normalizeJQPath allows callers to write spec-style bare dot-paths
// ("resources.token_budget") as well as full jq syntax (".resources.token_budget").
func normalizeJQPath(path string) string {
	if strings.HasPrefix(path, ".") {
		return path
	}
	return "." + path
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ExtractField extracts the value at a dot-path from doc, used by the
// policy engine for `field` resolution on typed conditions (condition.go's
// Exists/NotExists in particular). Unlike a gojq query — which evaluates a
// missing map key to the same `null` result as an explicitly-null value,
// collapsing "absent" into "present but null" — this walks doc's own
// map/slice structure segment by segment so a missing key is reported as
// not-found rather than found-with-a-nil-value.
func ExtractField(doc any, path string) (any, bool, error) {
	segments := strings.Split(strings.TrimPrefix(normalizeJQPath(path), "."), ".")
	cur := doc
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false, nil
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false, nil
			}
			cur = node[idx]
		default:
			return nil, false, nil
		}
	}
	return cur, true, nil
}
