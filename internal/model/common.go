// Package model defines the entities, enums, and API request/response types
// shared by the storage layer, the services, and the HTTP server.
package model

import "fmt"

// TraceStatus is the lifecycle state of a trace or span.
type TraceStatus string

const (
	StatusRunning TraceStatus = "running"
	StatusSuccess TraceStatus = "success"
	StatusError   TraceStatus = "error"
)

// Action is a governance decision outcome.
type Action string

const (
	ActionAllowAnswer       Action = "ALLOW_ANSWER"
	ActionBlock             Action = "BLOCK"
	ActionEscalate          Action = "ESCALATE"
	ActionAllowWithWarning  Action = "ALLOW_WITH_WARNING"
	ActionNeedClarification Action = "NEED_CLARIFICATION"
)

// JSONMap is an arbitrary JSON object column.
type JSONMap = map[string]any

// Idempotency key length bounds enforced on every idempotent write.
const (
	MinIdempotencyKeyLen = 3
	MaxIdempotencyKeyLen = 255
)

// ValidationError marks a request that failed schema or semantic validation.
// Handlers map it to HTTP 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ValidateIdempotencyKey enforces the 3–255 character contract.
func ValidateIdempotencyKey(key string) error {
	if len(key) < MinIdempotencyKeyLen || len(key) > MaxIdempotencyKeyLen {
		return Validationf("idempotency_key must be between %d and %d characters", MinIdempotencyKeyLen, MaxIdempotencyKeyLen)
	}
	return nil
}
