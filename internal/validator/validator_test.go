package validator

import (
	"path/filepath"
	"testing"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

func TestValidateJSONSyntax(t *testing.T) {
	if err := ValidateJSONSyntax([]byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := ValidateJSONSyntax([]byte(`{not json`)); err == nil {
		t.Fatal("expected syntax error")
	}
}

func TestValidateRequiredFields(t *testing.T) {
	doc := map[string]any{"a": map[string]any{"b": 1}}
	if err := ValidateRequiredFields(doc, []string{"a.b"}); err != nil {
		t.Fatal(err)
	}
	if err := ValidateRequiredFields(doc, []string{"a.c"}); err == nil {
		t.Fatal("expected missing field error")
	}
}

func TestValidateTemplateVarsDetectsPlaceholder(t *testing.T) {
	cases := []struct {
		content string
		wantErr bool
	}{
		{`{"a": "ok", "b": "fine"}`, false},
		{`{"a": , "b": 1}`, true},
		{`[1, , 3]`, true},
	}
	for _, c := range cases {
		err := ValidateTemplateVars(c.content)
		if c.wantErr && err == nil {
			t.Errorf("expected placeholder error for %q", c.content)
		}
		if !c.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", c.content, err)
		}
	}
}

func TestValidateWorkerSpecDocRejectsBadWorkerID(t *testing.T) {
	doc := map[string]any{
		"worker_id": "bad id",
		"status":    "pending",
		"resources": map[string]any{"token_budget": 8000.0},
	}
	if err := ValidateWorkerSpecDoc(doc, 100000); !cortexerr.Is(err, cortexerr.KindInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestValidateWorkerSpecDocRejectsOutOfBoundsBudget(t *testing.T) {
	doc := map[string]any{
		"worker_id": "worker-implementation-1",
		"status":    "pending",
		"resources": map[string]any{"token_budget": 500.0},
	}
	if err := ValidateWorkerSpecDoc(doc, 100000); err == nil {
		t.Fatal("expected out-of-bounds token budget to fail")
	}
}

func TestValidateWorkerSpecDocAccepts(t *testing.T) {
	doc := map[string]any{
		"worker_id": "worker-implementation-1",
		"status":    "pending",
		"resources": map[string]any{"token_budget": 8000.0},
	}
	if err := ValidateWorkerSpecDoc(doc, 100000); err != nil {
		t.Fatalf("expected valid doc to pass: %v", err)
	}
}

func TestSafeWriteJSONAbortsOnSchemaFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.json")
	err := SafeWriteJSON(path, map[string]any{"worker_id": "nope"}, func(doc map[string]any) error {
		return cortexerr.InvalidInput("forced failure", nil)
	})
	if err == nil {
		t.Fatal("expected schema validation failure to abort write")
	}
}

func TestEvalJSONFieldMatchesStringComparison(t *testing.T) {
	doc := map[string]any{"resources": map[string]any{"token_budget": float64(8000)}}
	ok, err := EvalJSONField(doc, "resources.token_budget=8000")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected match")
	}
	ok, err = EvalJSONField(doc, "resources.token_budget=9000")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected mismatch")
	}
}

func TestEvalJSONFieldMalformedCondition(t *testing.T) {
	_, err := EvalJSONField(map[string]any{}, "no-equals-sign")
	if err == nil {
		t.Fatal("expected error for malformed condition")
	}
}
