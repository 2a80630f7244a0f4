package model

import (
	"time"

	"github.com/google/uuid"
)

// CaseStatus is the human-review lifecycle of an escalated decision.
type CaseStatus string

const (
	CaseOpen         CaseStatus = "open"
	CaseAcknowledged CaseStatus = "acknowledged"
	CaseResolved     CaseStatus = "resolved"
)

// Case is a human-tracked incident created when a decision escalates.
// acknowledged_at and resolved_at are monotonic: set once on first
// transition, never cleared.
type Case struct {
	ID             uuid.UUID  `json:"id"`
	ProjectID      uuid.UUID  `json:"project_id"`
	TraceID        uuid.UUID  `json:"trace_id"`
	ReasonCode     string     `json:"reason_code"`
	Status         CaseStatus `json:"status"`
	Assignee       *string    `json:"assignee,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NotificationStatus is terminal after first write: a notification row is
// inserted as pending and flipped exactly once to sent or failed.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// Notification records one webhook delivery attempt for a case.
type Notification struct {
	ID              uuid.UUID          `json:"id"`
	ProjectID       uuid.UUID          `json:"project_id"`
	CaseID          uuid.UUID          `json:"case_id"`
	Channel         string             `json:"channel"`
	TargetURL       string             `json:"target_url"`
	Status          NotificationStatus `json:"status"`
	Payload         JSONMap            `json:"payload"`
	ResponseSnippet *string            `json:"response_snippet,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// CaseStats aggregates the case backlog for dashboards.
type CaseStats struct {
	ByStatus       map[string]int `json:"by_status"`
	OverdueOpen24h int            `json:"overdue_open_24h"`
}
