package domain

import "time"

// Intent is one request to perform a capability, as emitted by the upstream engine.
// Argument values arrive untyped and are coerced by the dispatcher.
type Intent struct {
	Capability string         `json:"capability" yaml:"capability"`
	Args       map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// Status classifies the outcome of one dispatch.
type Status string

const (
	StatusOK                Status = "ok"
	StatusValidationError   Status = "validation_error"
	StatusHandlerError      Status = "handler_error"
	StatusUnknownCapability Status = "unknown_capability"
)

// Result is the uniform outcome of one capability invocation.
type Result struct {
	ID         string         `json:"id"`
	Capability string         `json:"capability"`
	Status     Status         `json:"status"`
	Message    string         `json:"message"`
	Data       map[string]any `json:"data,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	StartedAt  time.Time      `json:"started_at"`

	// Err is the underlying cause for non-ok results. Not serialized.
	Err error `json:"-"`
}

func (r Result) OK() bool {
	return r.Status == StatusOK
}
