package model

import (
	"time"

	"github.com/google/uuid"
)

// Trace is the materialized projection of one correlated agent/LLM execution.
// The span rollup fields (TotalSpans, EndedSpans, HasOpenSpans, CompletionRate)
// are deterministic functions of the span rows and are recomputed after every
// ingest batch that touches the trace.
type Trace struct {
	ID               uuid.UUID   `json:"id"`
	ProjectID        uuid.UUID   `json:"project_id"`
	ExternalTraceID  *string     `json:"external_trace_id,omitempty"`
	Status           TraceStatus `json:"status"`
	StartTime        time.Time   `json:"start_time"`
	EndTime          *time.Time  `json:"end_time,omitempty"`
	Attributes       JSONMap     `json:"attributes"`
	Model            *string     `json:"model,omitempty"`
	Environment      *string     `json:"environment,omitempty"`
	UserID           *string     `json:"user_id,omitempty"`
	SessionID        *string     `json:"session_id,omitempty"`
	InputText        *string     `json:"input_text,omitempty"`
	OutputText       *string     `json:"output_text,omitempty"`
	HasOpenSpans     bool        `json:"has_open_spans"`
	TotalSpans       int         `json:"total_spans"`
	EndedSpans       int         `json:"ended_spans"`
	CompletionRate   float64     `json:"completion_rate"`
	Decision         JSONMap     `json:"decision,omitempty"`
	UserReviewPassed *bool       `json:"user_review_passed,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Span is a bounded unit of work within a trace. The row is a mutable
// projection driven by the immutable SpanEvent stream.
type Span struct {
	ID             uuid.UUID  `json:"id"`
	ProjectID      uuid.UUID  `json:"project_id"`
	TraceID        uuid.UUID  `json:"trace_id"`
	ParentSpanID   *uuid.UUID `json:"parent_span_id,omitempty"`
	Name           string     `json:"name"`
	SpanType       string     `json:"span_type"`
	Status         string     `json:"status"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	Error          *string    `json:"error,omitempty"`
	Attributes     JSONMap    `json:"attributes"`
	IdempotencyKey string     `json:"idempotency_key"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SpanEventType categorizes span events.
type SpanEventType string

const (
	EventSpanStarted SpanEventType = "SPAN_STARTED"
	EventSpanEnded   SpanEventType = "SPAN_ENDED"
	EventLog         SpanEventType = "LOG"
	EventGeneric     SpanEventType = "EVENT"
	EventAmendment   SpanEventType = "AMENDMENT"
)

// ValidSpanEventType reports whether t is one of the known event types.
func ValidSpanEventType(t SpanEventType) bool {
	switch t {
	case EventSpanStarted, EventSpanEnded, EventLog, EventGeneric, EventAmendment:
		return true
	}
	return false
}

// SpanEvent is an append-only log record attached to a trace (and usually a
// span). Immutable once written; corrections arrive as AMENDMENT events.
type SpanEvent struct {
	ID             uuid.UUID     `json:"id"`
	ProjectID      uuid.UUID     `json:"project_id"`
	TraceID        uuid.UUID     `json:"trace_id"`
	SpanID         *uuid.UUID    `json:"span_id,omitempty"`
	EventType      SpanEventType `json:"event_type"`
	EventTime      time.Time     `json:"event_time"`
	Payload        JSONMap       `json:"payload"`
	IdempotencyKey string        `json:"idempotency_key"`
	CreatedAt      time.Time     `json:"created_at"`
}

// TimelineEntry is one row of the unified trace timeline: the synthetic
// TRACE_STARTED/TRACE_ENDED markers interleaved with span events, sorted
// stably by timestamp.
type TimelineEntry struct {
	Timestamp time.Time  `json:"timestamp"`
	Source    string     `json:"source"` // "trace" or "span"
	SourceID  *uuid.UUID `json:"source_id,omitempty"`
	EventType string     `json:"event_type"`
	Payload   JSONMap    `json:"payload"`
}

// Evaluation is a scored quality signal attached to a trace or a span.
type Evaluation struct {
	ID               uuid.UUID  `json:"id"`
	ProjectID        uuid.UUID  `json:"project_id"`
	TraceID          *uuid.UUID `json:"trace_id,omitempty"`
	SpanID           *uuid.UUID `json:"span_id,omitempty"`
	EvalName         string     `json:"eval_name"`
	EvalModel        string     `json:"eval_model"`
	Score            float64    `json:"score"`
	Passed           bool       `json:"passed"`
	Metadata         JSONMap    `json:"metadata"`
	UserReviewPassed *bool      `json:"user_review_passed,omitempty"`
	IdempotencyKey   string     `json:"idempotency_key"`
	CreatedAt        time.Time  `json:"created_at"`
}
