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

const caseCols = `id, project_id, trace_id, reason_code, status, assignee, acknowledged_at, resolved_at, created_at`

func scanCase(row pgx.Row) (model.Case, error) {
	var c model.Case
	err := row.Scan(&c.ID, &c.ProjectID, &c.TraceID, &c.ReasonCode, &c.Status, &c.Assignee,
		&c.AcknowledgedAt, &c.ResolvedAt, &c.CreatedAt)
	return c, err
}

// CreateCase opens a new case for an escalated decision.
func (s *Store) CreateCase(ctx context.Context, projectID, traceID uuid.UUID, reasonCode string) (model.Case, error) {
	c := model.Case{
		ID:         uuid.New(),
		ProjectID:  projectID,
		TraceID:    traceID,
		ReasonCode: reasonCode,
		Status:     model.CaseOpen,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO cases (id, project_id, trace_id, reason_code, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ProjectID, c.TraceID, c.ReasonCode, string(c.Status), c.CreatedAt,
	)
	if err != nil {
		return model.Case{}, fmt.Errorf("storage: create case: %w", err)
	}
	return c, nil
}

// GetCase retrieves a case by ID, scoped to the given project.
func (s *Store) GetCase(ctx context.Context, projectID, id uuid.UUID) (model.Case, error) {
	c, err := scanCase(s.q.QueryRow(ctx,
		`SELECT `+caseCols+` FROM cases WHERE id = $1 AND project_id = $2`, id, projectID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Case{}, ErrNotFound
		}
		return model.Case{}, fmt.Errorf("storage: get case: %w", err)
	}
	return c, nil
}

// AcknowledgeCase moves an open case to acknowledged. acknowledged_at is
// monotonic: set on first ack only, never overwritten.
func (s *Store) AcknowledgeCase(ctx context.Context, projectID, id uuid.UUID, assignee *string) (model.Case, error) {
	now := time.Now().UTC()
	tag, err := s.q.Exec(ctx,
		`UPDATE cases SET
		    status = CASE WHEN status = 'open' THEN 'acknowledged' ELSE status END,
		    acknowledged_at = COALESCE(acknowledged_at, $3),
		    assignee = COALESCE($4, assignee)
		 WHERE id = $1 AND project_id = $2`,
		id, projectID, now, assignee,
	)
	if err != nil {
		return model.Case{}, fmt.Errorf("storage: acknowledge case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Case{}, ErrNotFound
	}
	return s.GetCase(ctx, projectID, id)
}

// ResolveCase moves a case to resolved. resolved_at is set on first
// resolve only; acknowledged_at is back-filled when resolving a case that
// was never acknowledged.
func (s *Store) ResolveCase(ctx context.Context, projectID, id uuid.UUID, assignee *string) (model.Case, error) {
	now := time.Now().UTC()
	tag, err := s.q.Exec(ctx,
		`UPDATE cases SET
		    status = 'resolved',
		    resolved_at = COALESCE(resolved_at, $3),
		    acknowledged_at = COALESCE(acknowledged_at, $3),
		    assignee = COALESCE($4, assignee)
		 WHERE id = $1 AND project_id = $2`,
		id, projectID, now, assignee,
	)
	if err != nil {
		return model.Case{}, fmt.Errorf("storage: resolve case: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.Case{}, ErrNotFound
	}
	return s.GetCase(ctx, projectID, id)
}

// ListCases returns a filtered page of cases, newest first, plus the total
// row count for the filter.
func (s *Store) ListCases(ctx context.Context, projectID uuid.UUID, f model.CaseListFilters, page, pageSize int) ([]model.Case, int, error) {
	where := []string{"project_id = $1"}
	args := []any{projectID}

	add := func(cond string, val any) {
		args = append(args, val)
		where = append(where, fmt.Sprintf(cond, "$"+strconv.Itoa(len(args))))
	}
	if f.Status != nil {
		add("status = %s", *f.Status)
	}
	if f.Assignee != nil {
		add("assignee = %s", *f.Assignee)
	}
	if f.ReasonCode != nil {
		add("reason_code = %s", *f.ReasonCode)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM cases WHERE `+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count cases: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	limitArg := "$" + strconv.Itoa(len(args)-1)
	offsetArg := "$" + strconv.Itoa(len(args))
	rows, err := s.q.Query(ctx,
		`SELECT `+caseCols+` FROM cases WHERE `+cond+
			` ORDER BY created_at DESC LIMIT `+limitArg+` OFFSET `+offsetArg,
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list cases: %w", err)
	}
	defer rows.Close()

	cases := []model.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("storage: scan case: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, total, rows.Err()
}

// CaseStats aggregates case counts by status plus open cases older than 24h.
func (s *Store) CaseStats(ctx context.Context, projectID uuid.UUID) (model.CaseStats, error) {
	stats := model.CaseStats{ByStatus: map[string]int{}}

	rows, err := s.q.Query(ctx,
		`SELECT status, COUNT(*) FROM cases WHERE project_id = $1 GROUP BY status`, projectID,
	)
	if err != nil {
		return model.CaseStats{}, fmt.Errorf("storage: case stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return model.CaseStats{}, fmt.Errorf("storage: scan case stats: %w", err)
		}
		stats.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return model.CaseStats{}, err
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	if err := s.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM cases WHERE project_id = $1 AND status = 'open' AND created_at < $2`,
		projectID, cutoff,
	).Scan(&stats.OverdueOpen24h); err != nil {
		return model.CaseStats{}, fmt.Errorf("storage: overdue case count: %w", err)
	}
	return stats, nil
}

// CreateNotification inserts a pending webhook delivery record.
func (s *Store) CreateNotification(ctx context.Context, n model.Notification) error {
	if n.Payload == nil {
		n.Payload = model.JSONMap{}
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO notifications (id, project_id, case_id, channel, target_url, status, payload, response_snippet, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.ProjectID, n.CaseID, n.Channel, n.TargetURL, string(n.Status), n.Payload, n.ResponseSnippet, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage: create notification: %w", err)
	}
	return nil
}

// FinishNotification flips a pending notification to its terminal status
// and records the response snippet. Terminal states are never rewritten.
func (s *Store) FinishNotification(ctx context.Context, id uuid.UUID, status model.NotificationStatus, snippet *string) error {
	_, err := s.q.Exec(ctx,
		`UPDATE notifications SET status = $2, response_snippet = $3
		 WHERE id = $1 AND status = 'pending'`,
		id, string(status), snippet,
	)
	if err != nil {
		return fmt.Errorf("storage: finish notification: %w", err)
	}
	return nil
}

// ListNotificationsByCase returns delivery attempts for a case, oldest first.
func (s *Store) ListNotificationsByCase(ctx context.Context, projectID, caseID uuid.UUID) ([]model.Notification, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, project_id, case_id, channel, target_url, status, payload, response_snippet, created_at
		 FROM notifications
		 WHERE project_id = $1 AND case_id = $2
		 ORDER BY created_at ASC`, projectID, caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.ProjectID, &n.CaseID, &n.Channel, &n.TargetURL, &n.Status,
			&n.Payload, &n.ResponseSnippet, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
