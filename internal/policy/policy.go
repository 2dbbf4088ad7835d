package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cortexplane/control-plane/internal/cortexerr"
)

// Policy is a versioned rule set, indexed by the compliance frameworks it
// maps to (nist-csf, soc2, owasp, cis, custom per spec §4.9).
type Policy struct {
	ID         string   `json:"id" yaml:"id"`
	Version    string   `json:"version" yaml:"version"`
	Severity   string   `json:"severity" yaml:"severity"`
	Frameworks []string `json:"frameworks" yaml:"frameworks"`
	Controls   []string `json:"controls" yaml:"controls"`
	Rules      []Rule   `json:"rules" yaml:"rules"`
}

// Result is the outcome of evaluating one Policy against a target.
type Result string

const (
	Pass Result = "pass"
	Fail Result = "fail"
)

// Evaluation is the append-only record produced by one evaluate call.
type Evaluation struct {
	EvaluationID        string       `json:"evaluation_id"`
	Timestamp           string       `json:"timestamp"`
	PolicyID            string       `json:"policy_id"`
	PolicyVersion       string       `json:"policy_version"`
	Severity            string       `json:"severity"`
	Frameworks          []string     `json:"frameworks"`
	Controls            []string     `json:"controls"`
	Target              string       `json:"target"`
	Result              Result       `json:"result"`
	RuleResults         []RuleResult `json:"rule_results"`
	CompliancePercentage float64     `json:"compliance_percentage"`
}

// EvaluatePolicy runs every rule in p against target and aggregates the
// result: fail if any rule fails, pass otherwise; compliance_percentage =
// 100*passed/total.
func EvaluatePolicy(p Policy, target any) Evaluation {
	eval := Evaluation{
		PolicyID:      p.ID,
		PolicyVersion: p.Version,
		Severity:      p.Severity,
		Frameworks:    p.Frameworks,
		Controls:      p.Controls,
		Result:        Pass,
	}
	passed := 0
	for _, rule := range p.Rules {
		rr := Evaluate(target, rule)
		eval.RuleResults = append(eval.RuleResults, rr)
		if rr.Passed {
			passed++
		} else {
			eval.Result = Fail
		}
	}
	if len(p.Rules) > 0 {
		eval.CompliancePercentage = 100 * float64(passed) / float64(len(p.Rules))
	} else {
		eval.CompliancePercentage = 100
	}
	return eval
}

// Registry holds loaded policies indexed by id and by framework tag.
type Registry struct {
	byID        map[string]Policy
	byFramework map[string][]string // framework -> policy ids
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]Policy{}, byFramework: map[string][]string{}}
}

// LoadDir loads every *.json and *.yaml/*.yml policy definition file in dir
// (spec §6: policies/policy-definitions/*.{json,yaml}).
func LoadDir(dir string) (*Registry, error) {
	reg := NewRegistry()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, cortexerr.Transient("policy: read dir "+dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, cortexerr.Transient("policy: read "+e.Name(), err)
		}
		var p Policy
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, cortexerr.ValidationFailure("policy: parse "+e.Name(), err)
		}
		if p.ID == "" {
			return nil, cortexerr.ValidationFailure(fmt.Sprintf("policy: %s missing id", e.Name()), nil)
		}
		reg.Add(p)
	}
	return reg, nil
}

// Add registers (or replaces) a policy, re-indexing its frameworks.
func (r *Registry) Add(p Policy) {
	r.byID[p.ID] = p
	for _, fw := range p.Frameworks {
		ids := r.byFramework[fw]
		found := false
		for _, id := range ids {
			if id == p.ID {
				found = true
				break
			}
		}
		if !found {
			r.byFramework[fw] = append(ids, p.ID)
		}
	}
}

func (r *Registry) Get(id string) (Policy, bool) {
	p, ok := r.byID[id]
	return p, ok
}

func (r *Registry) ByFramework(framework string) []Policy {
	var out []Policy
	for _, id := range r.byFramework[framework] {
		if p, ok := r.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) List() []Policy {
	out := make([]Policy, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, p)
	}
	return out
}

// EvaluateAll evaluates every registered policy against target.
func (r *Registry) EvaluateAll(target any) []Evaluation {
	out := make([]Evaluation, 0, len(r.byID))
	for _, p := range r.byID {
		out = append(out, EvaluatePolicy(p, target))
	}
	return out
}
