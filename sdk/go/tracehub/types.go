package tracehub

import (
	"time"

	"github.com/google/uuid"
)

// TraceUpsert is the trace header of an ingest batch. Zero-value optional
// fields are omitted from the wire body.
type TraceUpsert struct {
	TraceID          uuid.UUID      `json:"trace_id"`
	ExternalTraceID  *string        `json:"external_trace_id,omitempty"`
	Status           string         `json:"status,omitempty"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          *time.Time     `json:"end_time,omitempty"`
	Attributes       map[string]any `json:"attributes,omitempty"`
	Model            *string        `json:"model,omitempty"`
	Environment      *string        `json:"environment,omitempty"`
	UserID           *string        `json:"user_id,omitempty"`
	SessionID        *string        `json:"session_id,omitempty"`
	InputText        *string        `json:"input_text,omitempty"`
	OutputText       *string        `json:"output_text,omitempty"`
	UserReviewPassed *bool          `json:"user_review_passed,omitempty"`
}

// SpanUpsert is one span in an ingest batch.
type SpanUpsert struct {
	SpanID         uuid.UUID      `json:"span_id"`
	TraceID        uuid.UUID      `json:"trace_id"`
	ParentSpanID   *uuid.UUID     `json:"parent_span_id,omitempty"`
	Name           string         `json:"name"`
	SpanType       string         `json:"span_type,omitempty"`
	Status         string         `json:"status,omitempty"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        *time.Time     `json:"end_time,omitempty"`
	Error          *string        `json:"error,omitempty"`
	Attributes     map[string]any `json:"attributes,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// TraceBatchRequest is the body of POST /api/v1/ingest/traces.
type TraceBatchRequest struct {
	Trace              TraceUpsert  `json:"trace"`
	Spans              []SpanUpsert `json:"spans,omitempty"`
	AllowMissingParent *bool        `json:"allow_missing_parent,omitempty"`
}

// TraceBatchResponse reports an applied trace batch.
type TraceBatchResponse struct {
	TraceID       uuid.UUID `json:"trace_id"`
	IngestedSpans int       `json:"ingested_spans"`
}

// SpanEventIn is one event in an event ingest batch.
type SpanEventIn struct {
	TraceID        uuid.UUID      `json:"trace_id"`
	SpanID         *uuid.UUID     `json:"span_id,omitempty"`
	EventType      string         `json:"event_type"`
	EventTime      time.Time      `json:"event_time"`
	Payload        map[string]any `json:"payload,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// EventBatchRequest is the body of POST /api/v1/ingest/spans.
type EventBatchRequest struct {
	Events             []SpanEventIn `json:"events"`
	AllowMissingParent *bool         `json:"allow_missing_parent,omitempty"`
}

// EventBatchResponse reports an applied event batch. IngestedEvents counts
// newly inserted events; replayed keys are skipped.
type EventBatchResponse struct {
	IngestedEvents int `json:"ingested_events"`
}

// EvalCreateRequest is the body of POST /api/v1/evals.
type EvalCreateRequest struct {
	TraceID          *uuid.UUID     `json:"trace_id,omitempty"`
	SpanID           *uuid.UUID     `json:"span_id,omitempty"`
	EvalName         string         `json:"eval_name"`
	EvalModel        string         `json:"eval_model"`
	Score            float64        `json:"score"`
	Passed           bool           `json:"passed"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	UserReviewPassed *bool          `json:"user_review_passed,omitempty"`
	IdempotencyKey   string         `json:"idempotency_key"`
}

// Evaluation is a stored evaluation record.
type Evaluation struct {
	ID               uuid.UUID      `json:"id"`
	ProjectID        uuid.UUID      `json:"project_id"`
	TraceID          *uuid.UUID     `json:"trace_id,omitempty"`
	SpanID           *uuid.UUID     `json:"span_id,omitempty"`
	EvalName         string         `json:"eval_name"`
	EvalModel        string         `json:"eval_model"`
	Score            float64        `json:"score"`
	Passed           bool           `json:"passed"`
	Metadata         map[string]any `json:"metadata"`
	UserReviewPassed *bool          `json:"user_review_passed,omitempty"`
	IdempotencyKey   string         `json:"idempotency_key"`
	CreatedAt        time.Time      `json:"created_at"`
}

// DecideRequest is the body of POST /api/v1/decide.
type DecideRequest struct {
	TraceID            *uuid.UUID     `json:"trace_id,omitempty"`
	RequestPayload     map[string]any `json:"request_payload,omitempty"`
	ResponsePayload    map[string]any `json:"response_payload,omitempty"`
	ForcePolicyID      *uuid.UUID     `json:"force_policy_id,omitempty"`
	ForcePolicyVersion *int           `json:"force_policy_version,omitempty"`
	IdempotencyKey     string         `json:"idempotency_key"`
}

// Decision is the final governance outcome for one decide request.
type Decision struct {
	ID             uuid.UUID      `json:"id"`
	ProjectID      uuid.UUID      `json:"project_id"`
	TraceID        uuid.UUID      `json:"trace_id"`
	Action         string         `json:"action"`
	ReasonCode     string         `json:"reason_code"`
	Severity       string         `json:"severity"`
	Confidence     float64        `json:"confidence"`
	PolicyVersion  string         `json:"policy_version"`
	JudgeModel     *string        `json:"judge_model,omitempty"`
	Signals        map[string]any `json:"signals"`
	Rationale      *string        `json:"rationale,omitempty"`
	IdempotencyKey string         `json:"idempotency_key"`
	CreatedAt      time.Time      `json:"created_at"`
}

// JudgeRun is one judge provider invocation recorded during a decide call.
type JudgeRun struct {
	ID         uuid.UUID      `json:"id"`
	ProjectID  uuid.UUID      `json:"project_id"`
	TraceID    uuid.UUID      `json:"trace_id"`
	SpanID     *uuid.UUID     `json:"span_id,omitempty"`
	Provider   string         `json:"provider"`
	Model      *string        `json:"model,omitempty"`
	Action     string         `json:"action"`
	ReasonCode string         `json:"reason_code"`
	Confidence float64        `json:"confidence"`
	Output     map[string]any `json:"output"`
	CreatedAt  time.Time      `json:"created_at"`
}

// DecideResponse is the body returned by POST /api/v1/decide.
type DecideResponse struct {
	Decision  Decision   `json:"decision"`
	JudgeRuns []JudgeRun `json:"judge_runs"`
}

// Trace is a stored trace projection.
type Trace struct {
	ID               uuid.UUID      `json:"id"`
	ProjectID        uuid.UUID      `json:"project_id"`
	ExternalTraceID  *string        `json:"external_trace_id,omitempty"`
	Status           string         `json:"status"`
	StartTime        time.Time      `json:"start_time"`
	EndTime          *time.Time     `json:"end_time,omitempty"`
	Attributes       map[string]any `json:"attributes"`
	Model            *string        `json:"model,omitempty"`
	Environment      *string        `json:"environment,omitempty"`
	UserID           *string        `json:"user_id,omitempty"`
	SessionID        *string        `json:"session_id,omitempty"`
	InputText        *string        `json:"input_text,omitempty"`
	OutputText       *string        `json:"output_text,omitempty"`
	HasOpenSpans     bool           `json:"has_open_spans"`
	TotalSpans       int            `json:"total_spans"`
	EndedSpans       int            `json:"ended_spans"`
	CompletionRate   float64        `json:"completion_rate"`
	Decision         map[string]any `json:"decision,omitempty"`
	UserReviewPassed *bool          `json:"user_review_passed,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// TracePage is a page of traces.
type TracePage struct {
	Items    []Trace `json:"items"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
	Total    int     `json:"total"`
}

// TraceStats is the body of GET /api/v1/traces/stats/overview.
type TraceStats struct {
	LastHours int            `json:"last_hours"`
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"by_status"`
}

// Case is an escalation case awaiting human review.
type Case struct {
	ID             uuid.UUID  `json:"id"`
	ProjectID      uuid.UUID  `json:"project_id"`
	TraceID        uuid.UUID  `json:"trace_id"`
	ReasonCode     string     `json:"reason_code"`
	Status         string     `json:"status"`
	Assignee       *string    `json:"assignee,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CaseStats aggregates the case backlog.
type CaseStats struct {
	ByStatus       map[string]int `json:"by_status"`
	OverdueOpen24h int            `json:"overdue_open_24h"`
}

// CaseList is a page of cases with backlog stats.
type CaseList struct {
	Items    []Case    `json:"items"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Total    int       `json:"total"`
	Stats    CaseStats `json:"stats"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
