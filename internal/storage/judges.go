package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tracehub-ai/tracehub/internal/model"
)

const judgeRunCols = `id, project_id, trace_id, span_id, provider, model, action, reason_code,
	confidence, output, created_at`

func scanJudgeRun(row pgx.Row) (model.JudgeRun, error) {
	var r model.JudgeRun
	err := row.Scan(
		&r.ID, &r.ProjectID, &r.TraceID, &r.SpanID, &r.Provider, &r.Model, &r.Action, &r.ReasonCode,
		&r.Confidence, &r.Output, &r.CreatedAt,
	)
	return r, err
}

// InsertJudgeRun appends one judge invocation to the audit log.
func (s *Store) InsertJudgeRun(ctx context.Context, r model.JudgeRun) error {
	if r.Output == nil {
		r.Output = model.JSONMap{}
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO judge_runs (id, project_id, trace_id, span_id, provider, model, action, reason_code,
		                         confidence, output, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.ProjectID, r.TraceID, r.SpanID, r.Provider, r.Model, string(r.Action), r.ReasonCode,
		r.Confidence, r.Output, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert judge run: %w", err)
	}
	return nil
}

// ListJudgeRunsByTrace returns the most recent judge runs for a trace,
// newest first, up to limit.
func (s *Store) ListJudgeRunsByTrace(ctx context.Context, projectID, traceID uuid.UUID, limit int) ([]model.JudgeRun, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.q.Query(ctx,
		`SELECT `+judgeRunCols+` FROM judge_runs
		 WHERE project_id = $1 AND trace_id = $2
		 ORDER BY created_at DESC
		 LIMIT $3`, projectID, traceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list judge runs: %w", err)
	}
	defer rows.Close()

	runs := []model.JudgeRun{}
	for rows.Next() {
		r, err := scanJudgeRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan judge run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetJudgeCache looks up a cached judge decision by content hash and
// policy version key.
func (s *Store) GetJudgeCache(ctx context.Context, projectID uuid.UUID, inputHash, policyVersion string) (model.JudgeCacheEntry, error) {
	var e model.JudgeCacheEntry
	err := s.q.QueryRow(ctx,
		`SELECT id, project_id, input_hash, policy_version, decision, created_at
		 FROM judge_cache
		 WHERE project_id = $1 AND input_hash = $2 AND policy_version = $3`,
		projectID, inputHash, policyVersion,
	).Scan(&e.ID, &e.ProjectID, &e.InputHash, &e.PolicyVersion, &e.Decision, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.JudgeCacheEntry{}, ErrNotFound
		}
		return model.JudgeCacheEntry{}, fmt.Errorf("storage: get judge cache: %w", err)
	}
	return e, nil
}

// PutJudgeCache writes a cache row, silently yielding to a concurrent
// writer on the same key.
func (s *Store) PutJudgeCache(ctx context.Context, e model.JudgeCacheEntry) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO judge_cache (id, project_id, input_hash, policy_version, decision, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (project_id, input_hash, policy_version) DO NOTHING`,
		e.ID, e.ProjectID, e.InputHash, e.PolicyVersion, e.Decision, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: put judge cache: %w", err)
	}
	return nil
}
