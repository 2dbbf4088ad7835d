// Package policy evaluates versioned rule sets against a target document,
// replacing the shell corpus's string-typed conditions with a typed sum
// type and a single evaluator (spec §9).
package policy

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/cortexplane/control-plane/internal/validator"
)

// ConditionType enumerates every condition kind spec §4.9 names.
type ConditionType string

const (
	Equals        ConditionType = "equals"
	NotEquals     ConditionType = "not_equals"
	Contains      ConditionType = "contains"
	NotContains   ConditionType = "not_contains"
	Regex         ConditionType = "regex"
	GreaterThan   ConditionType = "greater_than"
	LessThan      ConditionType = "less_than"
	GreaterOrEqual ConditionType = "greater_or_equal"
	LessOrEqual   ConditionType = "less_or_equal"
	In            ConditionType = "in"
	NotIn         ConditionType = "not_in"
	Exists        ConditionType = "exists"
	NotExists     ConditionType = "not_exists"
	IsType        ConditionType = "is_type"
	All           ConditionType = "all"
	Any           ConditionType = "any"
	None          ConditionType = "none"
	Custom        ConditionType = "custom"
)

// Condition is one rule's typed predicate. All/Any/None nest sub-conditions;
// Custom carries a Rego query string evaluated by EvalCustom.
type Condition struct {
	Type     ConditionType `json:"type" yaml:"type"`
	Value    any           `json:"value,omitempty" yaml:"value,omitempty"`
	Sub      []Condition   `json:"sub,omitempty" yaml:"sub,omitempty"`
	RegoExpr string        `json:"rego,omitempty" yaml:"rego,omitempty"`
}

// Rule pairs a dot-path field with a condition.
type Rule struct {
	ID        string    `json:"id" yaml:"id"`
	Field     string    `json:"field" yaml:"field"`
	Condition Condition `json:"condition" yaml:"condition"`
}

// RuleResult records one rule's evaluation outcome.
type RuleResult struct {
	RuleID  string `json:"rule_id"`
	Field   string `json:"field"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// Evaluate applies rule.Condition to the field extracted from target.
func Evaluate(target any, rule Rule) RuleResult {
	result := RuleResult{RuleID: rule.ID, Field: rule.Field}
	fieldVal, exists, err := validator.ExtractField(target, rule.Field)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	passed, msg := evalCondition(fieldVal, exists, rule.Condition, target)
	result.Passed = passed
	result.Message = msg
	return result
}

func evalCondition(fieldVal any, exists bool, cond Condition, target any) (bool, string) {
	switch cond.Type {
	case Exists:
		return exists, ""
	case NotExists:
		return !exists, ""
	case Equals:
		return exists && stringify(fieldVal) == stringify(cond.Value), ""
	case NotEquals:
		return !exists || stringify(fieldVal) != stringify(cond.Value), ""
	case Contains:
		return exists && containsValue(fieldVal, cond.Value), ""
	case NotContains:
		return !exists || !containsValue(fieldVal, cond.Value), ""
	case Regex:
		if !exists {
			return false, ""
		}
		pattern, _ := cond.Value.(string)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Sprintf("invalid regex %q: %v", pattern, err)
		}
		return re.MatchString(stringify(fieldVal)), ""
	case GreaterThan, LessThan, GreaterOrEqual, LessOrEqual:
		if !exists {
			return false, ""
		}
		a, aOK := toFloat(fieldVal)
		b, bOK := toFloat(cond.Value)
		if !aOK || !bOK {
			return false, "non-numeric comparison operands"
		}
		switch cond.Type {
		case GreaterThan:
			return a > b, ""
		case LessThan:
			return a < b, ""
		case GreaterOrEqual:
			return a >= b, ""
		default:
			return a <= b, ""
		}
	case In:
		return exists && inSlice(cond.Value, fieldVal), ""
	case NotIn:
		return !exists || !inSlice(cond.Value, fieldVal), ""
	case IsType:
		want, _ := cond.Value.(string)
		return exists && typeName(fieldVal) == want, ""
	case All:
		for _, sub := range cond.Sub {
			subVal, subExists, _ := resolveSub(target, fieldVal, exists)
			if ok, _ := evalCondition(subVal, subExists, sub, target); !ok {
				return false, ""
			}
		}
		return true, ""
	case Any:
		for _, sub := range cond.Sub {
			subVal, subExists, _ := resolveSub(target, fieldVal, exists)
			if ok, _ := evalCondition(subVal, subExists, sub, target); ok {
				return true, ""
			}
		}
		return false, ""
	case None:
		for _, sub := range cond.Sub {
			subVal, subExists, _ := resolveSub(target, fieldVal, exists)
			if ok, _ := evalCondition(subVal, subExists, sub, target); ok {
				return false, ""
			}
		}
		return true, ""
	case Custom:
		ok, err := EvalCustom(target, cond.RegoExpr)
		if err != nil {
			return false, err.Error()
		}
		return ok, ""
	default:
		return false, fmt.Sprintf("unknown condition type %q", cond.Type)
	}
}

// resolveSub passes the same field value through to nested conditions;
// every nested condition is evaluated against the parent rule's field, and
// there is no per-sub-condition field to resolve against target.
func resolveSub(target any, fieldVal any, exists bool) (any, bool, error) {
	return fieldVal, exists, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func containsValue(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		n, _ := needle.(string)
		return n != "" && regexp.MustCompile(regexp.QuoteMeta(n)).MatchString(h)
	case []any:
		for _, v := range h {
			if stringify(v) == stringify(needle) {
				return true
			}
		}
	}
	return false
}

func inSlice(set any, v any) bool {
	items, ok := set.([]any)
	if !ok {
		return false
	}
	for _, item := range items {
		if stringify(item) == stringify(v) {
			return true
		}
	}
	return false
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, int:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return "unknown"
	}
}
