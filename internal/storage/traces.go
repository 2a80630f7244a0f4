package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tracehub-ai/tracehub/internal/model"
)

const traceCols = `id, project_id, external_trace_id, status, start_time, end_time, attributes,
	model, environment, user_id, session_id, input_text, output_text,
	has_open_spans, total_spans, ended_spans, completion_rate, decision, user_review_passed, created_at`

func scanTrace(row pgx.Row) (model.Trace, error) {
	var t model.Trace
	err := row.Scan(
		&t.ID, &t.ProjectID, &t.ExternalTraceID, &t.Status, &t.StartTime, &t.EndTime, &t.Attributes,
		&t.Model, &t.Environment, &t.UserID, &t.SessionID, &t.InputText, &t.OutputText,
		&t.HasOpenSpans, &t.TotalSpans, &t.EndedSpans, &t.CompletionRate, &t.Decision, &t.UserReviewPassed, &t.CreatedAt,
	)
	return t, err
}

// GetTrace retrieves a trace by ID, scoped to the given project.
func (s *Store) GetTrace(ctx context.Context, projectID, id uuid.UUID) (model.Trace, error) {
	t, err := scanTrace(s.q.QueryRow(ctx,
		`SELECT `+traceCols+` FROM traces WHERE id = $1 AND project_id = $2`, id, projectID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Trace{}, ErrNotFound
		}
		return model.Trace{}, fmt.Errorf("storage: get trace: %w", err)
	}
	return t, nil
}

// TraceExists reports whether a trace row exists for the project.
func (s *Store) TraceExists(ctx context.Context, projectID, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM traces WHERE id = $1 AND project_id = $2)`, id, projectID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: trace exists: %w", err)
	}
	return exists, nil
}

// InsertTrace creates a trace row from an upsert header.
func (s *Store) InsertTrace(ctx context.Context, projectID uuid.UUID, u model.TraceUpsert) error {
	status := u.Status
	if status == "" {
		status = model.StatusRunning
	}
	attrs := u.Attributes
	if attrs == nil {
		attrs = model.JSONMap{}
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO traces (id, project_id, external_trace_id, status, start_time, end_time, attributes,
		                     model, environment, user_id, session_id, input_text, output_text, user_review_passed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		u.TraceID, projectID, u.ExternalTraceID, string(status), u.StartTime.UTC(), u.EndTime, attrs,
		u.Model, u.Environment, u.UserID, u.SessionID, u.InputText, u.OutputText, u.UserReviewPassed, time.Now().UTC(),
	)
	if err != nil {
		return conflictOr(fmt.Errorf("storage: insert trace: %w", err))
	}
	return nil
}

// MergeTrace applies a merge update to an existing trace: status and
// end_time replace; text and identifier fields replace only when the
// incoming value is non-empty; attributes merge last-write-wins per key;
// user_review_passed replaces only when explicitly set.
func (s *Store) MergeTrace(ctx context.Context, projectID uuid.UUID, u model.TraceUpsert) error {
	attrs := u.Attributes
	if attrs == nil {
		attrs = model.JSONMap{}
	}
	status := u.Status
	if status == "" {
		status = model.StatusRunning
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE traces SET
		    status = $3,
		    end_time = $4,
		    attributes = attributes || $5,
		    external_trace_id = COALESCE($6, external_trace_id),
		    model = COALESCE($7, model),
		    environment = COALESCE($8, environment),
		    user_id = COALESCE($9, user_id),
		    session_id = COALESCE($10, session_id),
		    input_text = COALESCE($11, input_text),
		    output_text = COALESCE($12, output_text),
		    user_review_passed = COALESCE($13, user_review_passed)
		 WHERE id = $1 AND project_id = $2`,
		u.TraceID, projectID, string(status), u.EndTime, attrs,
		nonEmpty(u.ExternalTraceID), nonEmpty(u.Model), nonEmpty(u.Environment),
		nonEmpty(u.UserID), nonEmpty(u.SessionID), nonEmpty(u.InputText), nonEmpty(u.OutputText),
		u.UserReviewPassed,
	)
	if err != nil {
		return fmt.Errorf("storage: merge trace: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// end_time replaces unconditionally when the caller sets it, but MergeTrace
// treats a nil pointer as "not provided", matching the upsert contract.

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// RecomputeTraceRollup recalculates the span rollup fields from the span
// rows and promotes a finished running trace to success.
func (s *Store) RecomputeTraceRollup(ctx context.Context, projectID, traceID uuid.UUID) error {
	_, err := s.q.Exec(ctx,
		`UPDATE traces t SET
		    total_spans = c.total,
		    ended_spans = c.ended,
		    has_open_spans = c.total > c.ended,
		    completion_rate = CASE WHEN c.total = 0 THEN 1.0 ELSE c.ended::float8 / c.total END,
		    status = CASE
		        WHEN t.end_time IS NOT NULL AND c.total = c.ended AND t.status = 'running' THEN 'success'
		        ELSE t.status
		    END
		 FROM (
		    SELECT COUNT(*) AS total, COUNT(end_time) AS ended
		    FROM spans WHERE project_id = $1 AND trace_id = $2
		 ) c
		 WHERE t.id = $2 AND t.project_id = $1`,
		projectID, traceID,
	)
	if err != nil {
		return fmt.Errorf("storage: recompute trace rollup: %w", err)
	}
	return nil
}

// SetTraceUserReview copies a user review verdict onto the trace row.
func (s *Store) SetTraceUserReview(ctx context.Context, projectID, traceID uuid.UUID, passed bool) error {
	_, err := s.q.Exec(ctx,
		`UPDATE traces SET user_review_passed = $3 WHERE id = $2 AND project_id = $1`,
		projectID, traceID, passed,
	)
	if err != nil {
		return fmt.Errorf("storage: set trace user review: %w", err)
	}
	return nil
}

// SetTraceDecision stores the compact decision snapshot on the trace row.
func (s *Store) SetTraceDecision(ctx context.Context, projectID, traceID uuid.UUID, snapshot model.JSONMap) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE traces SET decision = $3 WHERE id = $2 AND project_id = $1`,
		projectID, traceID, snapshot,
	)
	if err != nil {
		return fmt.Errorf("storage: set trace decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTraces returns a filtered page of traces ordered by start_time
// descending, plus the total row count for the filter.
func (s *Store) ListTraces(ctx context.Context, projectID uuid.UUID, f model.TraceListFilters, page, pageSize int) ([]model.Trace, int, error) {
	where := []string{"project_id = $1"}
	args := []any{projectID}

	// add appends a condition whose single placeholder is written as %s.
	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, "$"+strconv.Itoa(len(args))))
	}

	if f.StartTime != nil {
		add("start_time >= %s", *f.StartTime)
	}
	if f.EndTime != nil {
		add("start_time <= %s", *f.EndTime)
	}
	if f.Status != nil {
		add("status = %s", *f.Status)
	}
	if f.Tag != nil {
		add("attributes ? %s", *f.Tag) // jsonb key-existence operator
	}
	if f.Model != nil {
		add("model = %s", *f.Model)
	}
	if f.Environment != nil {
		add("environment = %s", *f.Environment)
	}
	if f.UserID != nil {
		add("user_id = %s", *f.UserID)
	}
	if f.SessionID != nil {
		add("session_id = %s", *f.SessionID)
	}
	if f.Search != nil {
		args = append(args, "%"+*f.Search+"%")
		n := "$" + strconv.Itoa(len(args))
		where = append(where, `(input_text ILIKE `+n+` OR output_text ILIKE `+n+` OR EXISTS (
			SELECT 1 FROM span_events se
			WHERE se.project_id = traces.project_id AND se.trace_id = traces.id
			  AND se.payload::text ILIKE `+n+`))`)
	}

	cond := strings.Join(where, " AND ")

	var total int
	if err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM traces WHERE `+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count traces: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	limitArg := "$" + strconv.Itoa(len(args)-1)
	offsetArg := "$" + strconv.Itoa(len(args))
	rows, err := s.q.Query(ctx,
		`SELECT `+traceCols+` FROM traces WHERE `+cond+
			` ORDER BY start_time DESC LIMIT `+limitArg+` OFFSET `+offsetArg,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list traces: %w", err)
	}
	defer rows.Close()

	traces := []model.Trace{}
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: scan trace: %w", err)
		}
		traces = append(traces, t)
	}
	return traces, total, rows.Err()
}

// TraceStats returns trace counts by status over the trailing window.
func (s *Store) TraceStats(ctx context.Context, projectID uuid.UUID, lastHours int) (model.TraceStats, error) {
	since := time.Now().UTC().Add(-time.Duration(lastHours) * time.Hour)
	rows, err := s.q.Query(ctx,
		`SELECT status, COUNT(*) FROM traces
		 WHERE project_id = $1 AND start_time >= $2
		 GROUP BY status`,
		projectID, since,
	)
	if err != nil {
		return model.TraceStats{}, fmt.Errorf("storage: trace stats: %w", err)
	}
	defer rows.Close()

	stats := model.TraceStats{LastHours: lastHours, ByStatus: map[string]int{}}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return model.TraceStats{}, fmt.Errorf("storage: scan trace stats: %w", err)
		}
		stats.ByStatus[status] = n
		stats.Total += n
	}
	return stats, rows.Err()
}
