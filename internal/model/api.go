package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Page is the standard pagination envelope for list endpoints.
type Page struct {
	Items    any `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// SpanUpsert is one span in a trace ingest batch.
type SpanUpsert struct {
	SpanID         uuid.UUID  `json:"span_id"`
	TraceID        uuid.UUID  `json:"trace_id"`
	ParentSpanID   *uuid.UUID `json:"parent_span_id,omitempty"`
	Name           string     `json:"name"`
	SpanType       string     `json:"span_type,omitempty"`
	Status         string     `json:"status,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Error          *string    `json:"error,omitempty"`
	Attributes     JSONMap    `json:"attributes,omitempty"`
	IdempotencyKey string     `json:"idempotency_key"`
}

// TraceUpsert is the trace header of a trace ingest batch.
type TraceUpsert struct {
	TraceID          uuid.UUID   `json:"trace_id"`
	ExternalTraceID  *string     `json:"external_trace_id,omitempty"`
	Status           TraceStatus `json:"status,omitempty"`
	StartTime        time.Time   `json:"start_time"`
	EndTime          *time.Time  `json:"end_time,omitempty"`
	Attributes       JSONMap     `json:"attributes,omitempty"`
	Model            *string     `json:"model,omitempty"`
	Environment      *string     `json:"environment,omitempty"`
	UserID           *string     `json:"user_id,omitempty"`
	SessionID        *string     `json:"session_id,omitempty"`
	InputText        *string     `json:"input_text,omitempty"`
	OutputText       *string     `json:"output_text,omitempty"`
	UserReviewPassed *bool       `json:"user_review_passed,omitempty"`
}

// TraceBatchRequest is the body of POST /api/v1/ingest/traces.
type TraceBatchRequest struct {
	Trace              TraceUpsert  `json:"trace"`
	Spans              []SpanUpsert `json:"spans,omitempty"`
	AllowMissingParent *bool        `json:"allow_missing_parent,omitempty"`
}

// MissingParentAllowed resolves the allow_missing_parent default (true).
func (r TraceBatchRequest) MissingParentAllowed() bool {
	return r.AllowMissingParent == nil || *r.AllowMissingParent
}

// Validate checks the batch against the ingest contract.
func (r TraceBatchRequest) Validate() error {
	if r.Trace.TraceID == uuid.Nil {
		return Validationf("trace.trace_id is required")
	}
	if r.Trace.StartTime.IsZero() {
		return Validationf("trace.start_time is required")
	}
	for i, s := range r.Spans {
		if s.SpanID == uuid.Nil {
			return Validationf("spans[%d].span_id is required", i)
		}
		if s.Name == "" {
			return Validationf("spans[%d].name is required", i)
		}
		if s.StartTime.IsZero() {
			return Validationf("spans[%d].start_time is required", i)
		}
		if s.ParentSpanID != nil && *s.ParentSpanID == s.SpanID {
			return Validationf("spans[%d] must not be its own parent", i)
		}
		if err := ValidateIdempotencyKey(s.IdempotencyKey); err != nil {
			return Validationf("spans[%d]: %v", i, err)
		}
	}
	return nil
}

// TraceBatchResponse reports an applied trace batch. IngestedSpans counts
// spans attempted, not newly inserted — replays report the same number.
type TraceBatchResponse struct {
	TraceID       uuid.UUID `json:"trace_id"`
	IngestedSpans int       `json:"ingested_spans"`
}

// SpanEventIn is one event in an event ingest batch.
type SpanEventIn struct {
	TraceID        uuid.UUID     `json:"trace_id"`
	SpanID         *uuid.UUID    `json:"span_id,omitempty"`
	EventType      SpanEventType `json:"event_type"`
	EventTime      time.Time     `json:"event_time"`
	Payload        JSONMap       `json:"payload,omitempty"`
	IdempotencyKey string        `json:"idempotency_key"`
}

// EventBatchRequest is the body of POST /api/v1/ingest/spans.
type EventBatchRequest struct {
	Events             []SpanEventIn `json:"events"`
	AllowMissingParent *bool         `json:"allow_missing_parent,omitempty"`
}

// MissingParentAllowed resolves the allow_missing_parent default (true).
func (r EventBatchRequest) MissingParentAllowed() bool {
	return r.AllowMissingParent == nil || *r.AllowMissingParent
}

// Validate checks the batch against the ingest contract.
func (r EventBatchRequest) Validate() error {
	for i, e := range r.Events {
		if e.TraceID == uuid.Nil {
			return Validationf("events[%d].trace_id is required", i)
		}
		if !ValidSpanEventType(e.EventType) {
			return Validationf("events[%d].event_type %q is not valid", i, e.EventType)
		}
		if e.EventTime.IsZero() {
			return Validationf("events[%d].event_time is required", i)
		}
		if err := ValidateIdempotencyKey(e.IdempotencyKey); err != nil {
			return Validationf("events[%d]: %v", i, err)
		}
	}
	return nil
}

// EventBatchResponse reports an applied event batch.
type EventBatchResponse struct {
	IngestedEvents int `json:"ingested_events"`
}

// EvalCreateRequest is the body of POST /api/v1/evals.
type EvalCreateRequest struct {
	TraceID          *uuid.UUID `json:"trace_id,omitempty"`
	SpanID           *uuid.UUID `json:"span_id,omitempty"`
	EvalName         string     `json:"eval_name"`
	EvalModel        string     `json:"eval_model"`
	Score            float64    `json:"score"`
	Passed           bool       `json:"passed"`
	Metadata         JSONMap    `json:"metadata,omitempty"`
	UserReviewPassed *bool      `json:"user_review_passed,omitempty"`
	IdempotencyKey   string     `json:"idempotency_key"`
}

// Validate checks the eval create contract.
func (r EvalCreateRequest) Validate() error {
	if r.TraceID == nil && r.SpanID == nil {
		return Validationf("trace_id or span_id is required")
	}
	if r.EvalName == "" {
		return Validationf("eval_name is required")
	}
	if r.EvalModel == "" {
		return Validationf("eval_model is required")
	}
	return ValidateIdempotencyKey(r.IdempotencyKey)
}

// DecideRequest is the body of POST /api/v1/decide.
type DecideRequest struct {
	TraceID            *uuid.UUID `json:"trace_id,omitempty"`
	RequestPayload     JSONMap    `json:"request_payload,omitempty"`
	ResponsePayload    JSONMap    `json:"response_payload,omitempty"`
	ForcePolicyID      *uuid.UUID `json:"force_policy_id,omitempty"`
	ForcePolicyVersion *int       `json:"force_policy_version,omitempty"`
	IdempotencyKey     string     `json:"idempotency_key"`
}

// Validate checks the decide contract. trace_id presence is checked in the
// pipeline so the idempotency short-circuit runs first.
func (r DecideRequest) Validate() error {
	return ValidateIdempotencyKey(r.IdempotencyKey)
}

// DecideResponse is the body returned by POST /api/v1/decide.
type DecideResponse struct {
	Decision  TraceDecision `json:"decision"`
	JudgeRuns []JudgeRun    `json:"judge_runs"`
}

// PolicyCreateRequest is the body of POST /api/v1/policies. Creating a
// policy always creates version 1 of its definition.
type PolicyCreateRequest struct {
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"`
	EffectiveFrom time.Time `json:"effective_from"`
	Active        bool      `json:"active,omitempty"`
	Definition    JSONMap   `json:"definition"`
}

// Validate checks the policy create contract.
func (r PolicyCreateRequest) Validate() error {
	if r.Name == "" {
		return Validationf("name is required")
	}
	if r.EffectiveFrom.IsZero() {
		return Validationf("effective_from is required")
	}
	if r.Definition == nil {
		return Validationf("definition is required")
	}
	return nil
}

// PolicyCreateResponse pairs the new policy with its first version.
type PolicyCreateResponse struct {
	Policy  Policy        `json:"policy"`
	Version PolicyVersion `json:"version"`
}

// CaseActionRequest is the body of POST /api/v1/cases/{id}/ack and /resolve.
type CaseActionRequest struct {
	Assignee *string `json:"assignee,omitempty"`
}

// ProjectCreateRequest is the body of POST /api/v1/projects.
type ProjectCreateRequest struct {
	Name string `json:"name"`
}

// Validate checks the project create contract.
func (r ProjectCreateRequest) Validate() error {
	if r.Name == "" {
		return Validationf("name is required")
	}
	return nil
}

// ProjectKeyResponse is returned on create and rotate-key: the only times
// the plaintext key is shown to a non-admin caller.
type ProjectKeyResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	APIKey    string    `json:"api_key"`
}

// ProjectCurrentKeyResponse is the admin-only retrieval of a stored key.
type ProjectCurrentKeyResponse struct {
	ID     uuid.UUID `json:"id"`
	APIKey *string   `json:"api_key"`
}

// TraceListFilters are the query filters of GET /api/v1/traces.
type TraceListFilters struct {
	StartTime   *time.Time
	EndTime     *time.Time
	Status      *string
	Tag         *string
	Model       *string
	Environment *string
	UserID      *string
	SessionID   *string
	Search      *string
}

// CaseListFilters are the query filters of GET /api/v1/cases.
type CaseListFilters struct {
	Status     *string
	Assignee   *string
	ReasonCode *string
}

// TraceDetail is the body of GET /api/v1/traces/{id}.
type TraceDetail struct {
	Trace           Trace           `json:"trace"`
	Spans           []Span          `json:"spans"`
	Timeline        []TimelineEntry `json:"timeline"`
	Evaluations     []Evaluation    `json:"evaluations"`
	DecisionHistory []TraceDecision `json:"decision_history"`
	JudgeRuns       []JudgeRun      `json:"judge_runs"`
}

// TraceStats is the body of GET /api/v1/traces/stats/overview.
type TraceStats struct {
	LastHours int            `json:"last_hours"`
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"by_status"`
}

// CaseList is the body of GET /api/v1/cases: a page plus backlog stats.
type CaseList struct {
	Items    []Case    `json:"items"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Total    int       `json:"total"`
	Stats    CaseStats `json:"stats"`
}
