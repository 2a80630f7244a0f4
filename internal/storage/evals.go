package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tracehub-ai/tracehub/internal/model"
)

const evalCols = `id, project_id, trace_id, span_id, eval_name, eval_model, score, passed,
	metadata, user_review_passed, idempotency_key, created_at`

func scanEval(row pgx.Row) (model.Evaluation, error) {
	var e model.Evaluation
	err := row.Scan(
		&e.ID, &e.ProjectID, &e.TraceID, &e.SpanID, &e.EvalName, &e.EvalModel, &e.Score, &e.Passed,
		&e.Metadata, &e.UserReviewPassed, &e.IdempotencyKey, &e.CreatedAt,
	)
	return e, err
}

// InsertEvaluation creates an evaluation row.
func (s *Store) InsertEvaluation(ctx context.Context, e model.Evaluation) error {
	if e.Metadata == nil {
		e.Metadata = model.JSONMap{}
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO evaluations (id, project_id, trace_id, span_id, eval_name, eval_model, score, passed,
		                          metadata, user_review_passed, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.ProjectID, e.TraceID, e.SpanID, e.EvalName, e.EvalModel, e.Score, e.Passed,
		e.Metadata, e.UserReviewPassed, e.IdempotencyKey, e.CreatedAt,
	)
	if err != nil {
		return conflictOr(fmt.Errorf("storage: insert evaluation: %w", err))
	}
	return nil
}

// GetEvaluationByKey retrieves an evaluation by its idempotency key so a
// replayed create can return the stored record.
func (s *Store) GetEvaluationByKey(ctx context.Context, projectID uuid.UUID, idempotencyKey string) (model.Evaluation, error) {
	e, err := scanEval(s.q.QueryRow(ctx,
		`SELECT `+evalCols+` FROM evaluations WHERE project_id = $1 AND idempotency_key = $2`,
		projectID, idempotencyKey,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Evaluation{}, ErrNotFound
		}
		return model.Evaluation{}, fmt.Errorf("storage: get evaluation by key: %w", err)
	}
	return e, nil
}

// ListEvaluationsByTrace returns evaluations attached directly to a trace,
// newest first.
func (s *Store) ListEvaluationsByTrace(ctx context.Context, projectID, traceID uuid.UUID) ([]model.Evaluation, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+evalCols+` FROM evaluations
		 WHERE project_id = $1 AND trace_id = $2
		 ORDER BY created_at DESC`,
		projectID, traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list evaluations: %w", err)
	}
	defer rows.Close()

	evals := []model.Evaluation{}
	for rows.Next() {
		e, err := scanEval(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan evaluation: %w", err)
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}
