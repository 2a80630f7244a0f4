package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tracehub-ai/tracehub/internal/model"
)

const spanCols = `id, project_id, trace_id, parent_span_id, name, span_type, status,
	start_time, end_time, error, attributes, idempotency_key, created_at`

func scanSpan(row pgx.Row) (model.Span, error) {
	var sp model.Span
	err := row.Scan(
		&sp.ID, &sp.ProjectID, &sp.TraceID, &sp.ParentSpanID, &sp.Name, &sp.SpanType, &sp.Status,
		&sp.StartTime, &sp.EndTime, &sp.Error, &sp.Attributes, &sp.IdempotencyKey, &sp.CreatedAt,
	)
	return sp, err
}

// InsertSpan creates a span row.
func (s *Store) InsertSpan(ctx context.Context, sp model.Span) error {
	if sp.Attributes == nil {
		sp.Attributes = model.JSONMap{}
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO spans (id, project_id, trace_id, parent_span_id, name, span_type, status,
		                    start_time, end_time, error, attributes, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		sp.ID, sp.ProjectID, sp.TraceID, sp.ParentSpanID, sp.Name, sp.SpanType, sp.Status,
		sp.StartTime, sp.EndTime, sp.Error, sp.Attributes, sp.IdempotencyKey, sp.CreatedAt,
	)
	if err != nil {
		return conflictOr(fmt.Errorf("storage: insert span: %w", err))
	}
	return nil
}

// GetSpan retrieves a span by ID, scoped to the given project.
func (s *Store) GetSpan(ctx context.Context, projectID, id uuid.UUID) (model.Span, error) {
	sp, err := scanSpan(s.q.QueryRow(ctx,
		`SELECT `+spanCols+` FROM spans WHERE id = $1 AND project_id = $2`, id, projectID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Span{}, ErrNotFound
		}
		return model.Span{}, fmt.Errorf("storage: get span: %w", err)
	}
	return sp, nil
}

// SpanExists reports whether a span row exists for the project.
func (s *Store) SpanExists(ctx context.Context, projectID, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM spans WHERE id = $1 AND project_id = $2)`, id, projectID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: span exists: %w", err)
	}
	return exists, nil
}

// SpanKeyExists reports whether a span with this idempotency key already
// exists; ingest uses it to skip silently-idempotent replays.
func (s *Store) SpanKeyExists(ctx context.Context, projectID uuid.UUID, idempotencyKey string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM spans WHERE project_id = $1 AND idempotency_key = $2)`,
		projectID, idempotencyKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: span key exists: %w", err)
	}
	return exists, nil
}

// EndSpan records a span's end projection from a SPAN_ENDED event. Fields
// left nil keep their current value except end_time, which always replaces.
func (s *Store) EndSpan(ctx context.Context, projectID, id uuid.UUID, endTime *time.Time, status, errText *string) error {
	_, err := s.q.Exec(ctx,
		`UPDATE spans SET
		    end_time = $3,
		    status = COALESCE($4, status),
		    error = COALESCE($5, error)
		 WHERE id = $1 AND project_id = $2`,
		id, projectID, endTime, status, errText,
	)
	if err != nil {
		return fmt.Errorf("storage: end span: %w", err)
	}
	return nil
}

// PatchSpan merges attribute amendments into a span and optionally
// overwrites its status.
func (s *Store) PatchSpan(ctx context.Context, projectID, id uuid.UUID, attrs model.JSONMap, status *string) error {
	if attrs == nil {
		attrs = model.JSONMap{}
	}
	_, err := s.q.Exec(ctx,
		`UPDATE spans SET
		    attributes = attributes || $3,
		    status = COALESCE($4, status)
		 WHERE id = $1 AND project_id = $2`,
		id, projectID, attrs, status,
	)
	if err != nil {
		return fmt.Errorf("storage: patch span: %w", err)
	}
	return nil
}

// ListSpansByTrace returns all spans of a trace in start_time order.
func (s *Store) ListSpansByTrace(ctx context.Context, projectID, traceID uuid.UUID) ([]model.Span, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+spanCols+` FROM spans
		 WHERE project_id = $1 AND trace_id = $2
		 ORDER BY start_time ASC, created_at ASC`,
		projectID, traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list spans: %w", err)
	}
	defer rows.Close()

	spans := []model.Span{}
	for rows.Next() {
		sp, err := scanSpan(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan span: %w", err)
		}
		spans = append(spans, sp)
	}
	return spans, rows.Err()
}
