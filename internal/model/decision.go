package model

import (
	"time"

	"github.com/google/uuid"
)

// TraceDecision is the final governance outcome for one decide request:
// judge output combined with the policy overlay, pinned to the policy
// version that produced it.
type TraceDecision struct {
	ID             uuid.UUID `json:"id"`
	ProjectID      uuid.UUID `json:"project_id"`
	TraceID        uuid.UUID `json:"trace_id"`
	Action         Action    `json:"action"`
	ReasonCode     string    `json:"reason_code"`
	Severity       string    `json:"severity"`
	Confidence     float64   `json:"confidence"`
	PolicyVersion  string    `json:"policy_version"`
	JudgeModel     *string   `json:"judge_model,omitempty"`
	Signals        JSONMap   `json:"signals"`
	Rationale      *string   `json:"rationale,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// Snapshot returns the compact decision summary stored on the trace row.
func (d TraceDecision) Snapshot() JSONMap {
	snap := JSONMap{
		"action":         string(d.Action),
		"reason_code":    d.ReasonCode,
		"severity":       d.Severity,
		"confidence":     d.Confidence,
		"policy_version": d.PolicyVersion,
	}
	if d.JudgeModel != nil {
		snap["judge_model"] = *d.JudgeModel
	}
	return snap
}

// JudgeRun is an append-only audit record of a single judge provider
// invocation during a decide request.
type JudgeRun struct {
	ID         uuid.UUID  `json:"id"`
	ProjectID  uuid.UUID  `json:"project_id"`
	TraceID    uuid.UUID  `json:"trace_id"`
	SpanID     *uuid.UUID `json:"span_id,omitempty"`
	Provider   string     `json:"provider"`
	Model      *string    `json:"model,omitempty"`
	Action     Action     `json:"action"`
	ReasonCode string     `json:"reason_code"`
	Confidence float64    `json:"confidence"`
	Output     JSONMap    `json:"output"`
	CreatedAt  time.Time  `json:"created_at"`
}

// JudgeCacheEntry is a content-addressed cached judge decision, keyed by
// (project, input_hash, policy_version).
type JudgeCacheEntry struct {
	ID            uuid.UUID `json:"id"`
	ProjectID     uuid.UUID `json:"project_id"`
	InputHash     string    `json:"input_hash"`
	PolicyVersion string    `json:"policy_version"`
	Decision      JSONMap   `json:"decision"`
	CreatedAt     time.Time `json:"created_at"`
}
