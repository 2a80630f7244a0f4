package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tracehub-ai/tracehub/internal/model"
)

const decisionCols = `id, project_id, trace_id, action, reason_code, severity, confidence,
	policy_version, judge_model, signals, rationale, idempotency_key, created_at`

func scanDecision(row pgx.Row) (model.TraceDecision, error) {
	var d model.TraceDecision
	err := row.Scan(
		&d.ID, &d.ProjectID, &d.TraceID, &d.Action, &d.ReasonCode, &d.Severity, &d.Confidence,
		&d.PolicyVersion, &d.JudgeModel, &d.Signals, &d.Rationale, &d.IdempotencyKey, &d.CreatedAt,
	)
	return d, err
}

// InsertTraceDecision persists a final decision. A replayed idempotency key
// surfaces as ErrConflict via the unique index.
func (s *Store) InsertTraceDecision(ctx context.Context, d model.TraceDecision) error {
	if d.Signals == nil {
		d.Signals = model.JSONMap{}
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO trace_decisions (id, project_id, trace_id, action, reason_code, severity, confidence,
		                              policy_version, judge_model, signals, rationale, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID, d.ProjectID, d.TraceID, string(d.Action), d.ReasonCode, d.Severity, d.Confidence,
		d.PolicyVersion, d.JudgeModel, d.Signals, d.Rationale, d.IdempotencyKey, d.CreatedAt,
	)
	if err != nil {
		return conflictOr(fmt.Errorf("storage: insert trace decision: %w", err))
	}
	return nil
}

// GetTraceDecisionByKey retrieves a decision by its idempotency key for
// the short-circuit path of a replayed decide request.
func (s *Store) GetTraceDecisionByKey(ctx context.Context, projectID uuid.UUID, idempotencyKey string) (model.TraceDecision, error) {
	d, err := scanDecision(s.q.QueryRow(ctx,
		`SELECT `+decisionCols+` FROM trace_decisions
		 WHERE project_id = $1 AND idempotency_key = $2`, projectID, idempotencyKey,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TraceDecision{}, ErrNotFound
		}
		return model.TraceDecision{}, fmt.Errorf("storage: get trace decision by key: %w", err)
	}
	return d, nil
}

// ListTraceDecisions returns a trace's decision history, newest first.
func (s *Store) ListTraceDecisions(ctx context.Context, projectID, traceID uuid.UUID) ([]model.TraceDecision, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+decisionCols+` FROM trace_decisions
		 WHERE project_id = $1 AND trace_id = $2
		 ORDER BY created_at DESC`, projectID, traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list trace decisions: %w", err)
	}
	defer rows.Close()

	decisions := []model.TraceDecision{}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan trace decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
