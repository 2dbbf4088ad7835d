// Package tracer mints correlation IDs and span IDs and carries them
// explicitly through call chains, replacing the shell corpus's global
// TRACE_ID/SPAN_ID environment mutation (spec §9).
package tracer

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/cortexplane/control-plane/internal/clockutil"
)

var (
	correlationIDPattern = regexp.MustCompile(`^corr-\d+-[0-9a-f]{6}-[a-z0-9-]+$`)
	spanIDPattern        = regexp.MustCompile(`^span-\d+-[0-9a-f]{4}-[a-z0-9-]+$`)
)

// Context is the active trace context, passed explicitly to children.
// A child operation mints a new SpanID with ParentSpanID set to the
// current SpanID.
type Context struct {
	CorrelationID string
	SpanID        string
	ParentSpanID  string
}

func randHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// NewCorrelationID mints `corr-<unix-ts>-<6 hex>-<component>`.
func NewCorrelationID(clock clockutil.Clock, component string) (string, error) {
	h, err := randHex(3)
	if err != nil {
		return "", fmt.Errorf("tracer: mint correlation id: %w", err)
	}
	return fmt.Sprintf("corr-%d-%s-%s", clock.Now().Unix(), h, component), nil
}

// NewSpanID mints `span-<unix-ts-ns>-<4 hex>-<operation>`.
func NewSpanID(clock clockutil.Clock, operation string) (string, error) {
	h, err := randHex(2)
	if err != nil {
		return "", fmt.Errorf("tracer: mint span id: %w", err)
	}
	return fmt.Sprintf("span-%d-%s-%s", clock.Now().UnixNano(), h, operation), nil
}

// ValidCorrelationID reports whether s matches the spec §6 correlation ID shape.
func ValidCorrelationID(s string) bool { return correlationIDPattern.MatchString(s) }

// ValidSpanID reports whether s matches the spec §6 span ID shape.
func ValidSpanID(s string) bool { return spanIDPattern.MatchString(s) }

// NewRoot starts a fresh trace context for a brand-new operation (no parent).
func NewRoot(clock clockutil.Clock, component, operation string) (Context, error) {
	corr, err := NewCorrelationID(clock, component)
	if err != nil {
		return Context{}, err
	}
	span, err := NewSpanID(clock, operation)
	if err != nil {
		return Context{}, err
	}
	return Context{CorrelationID: corr, SpanID: span}, nil
}

// Child derives a child span under the same correlation id.
func (c Context) Child(clock clockutil.Clock, operation string) (Context, error) {
	span, err := NewSpanID(clock, operation)
	if err != nil {
		return Context{}, err
	}
	return Context{CorrelationID: c.CorrelationID, SpanID: span, ParentSpanID: c.SpanID}, nil
}

// Env vars used to propagate trace context across process boundaries
// (spec §6): CORRELATION_ID, SPAN_ID, PARENT_SPAN_ID.
const (
	EnvCorrelationID = "CORRELATION_ID"
	EnvSpanID        = "SPAN_ID"
	EnvParentSpanID  = "PARENT_SPAN_ID"
)

// AsEnv renders the context as the three propagation environment variables.
func (c Context) AsEnv() map[string]string {
	return map[string]string{
		EnvCorrelationID: c.CorrelationID,
		EnvSpanID:        c.SpanID,
		EnvParentSpanID:  c.ParentSpanID,
	}
}

// FromEnv reconstructs a Context from the propagation environment variables.
func FromEnv(get func(string) string) Context {
	return Context{
		CorrelationID: get(EnvCorrelationID),
		SpanID:        get(EnvSpanID),
		ParentSpanID:  get(EnvParentSpanID),
	}
}
