package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tracehub-ai/tracehub/internal/model"
)

// InsertSpanEvent appends an immutable span event row.
func (s *Store) InsertSpanEvent(ctx context.Context, ev model.SpanEvent) error {
	if ev.Payload == nil {
		ev.Payload = model.JSONMap{}
	}
	_, err := s.q.Exec(ctx,
		`INSERT INTO span_events (id, project_id, trace_id, span_id, event_type, event_time, payload, idempotency_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.ProjectID, ev.TraceID, ev.SpanID, string(ev.EventType), ev.EventTime, ev.Payload, ev.IdempotencyKey, ev.CreatedAt,
	)
	if err != nil {
		return conflictOr(fmt.Errorf("storage: insert span event: %w", err))
	}
	return nil
}

// SpanEventKeyExists reports whether an event with this idempotency key
// already exists; ingest uses it to skip silently-idempotent replays.
func (s *Store) SpanEventKeyExists(ctx context.Context, projectID uuid.UUID, idempotencyKey string) (bool, error) {
	var exists bool
	err := s.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM span_events WHERE project_id = $1 AND idempotency_key = $2)`,
		projectID, idempotencyKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: span event key exists: %w", err)
	}
	return exists, nil
}

// ListSpanEventsByTrace returns all events of a trace in event_time order,
// with insertion order as the tie-break at equal timestamps.
func (s *Store) ListSpanEventsByTrace(ctx context.Context, projectID, traceID uuid.UUID) ([]model.SpanEvent, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, project_id, trace_id, span_id, event_type, event_time, payload, idempotency_key, created_at
		 FROM span_events
		 WHERE project_id = $1 AND trace_id = $2
		 ORDER BY event_time ASC, created_at ASC, id ASC`,
		projectID, traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list span events: %w", err)
	}
	defer rows.Close()

	events := []model.SpanEvent{}
	for rows.Next() {
		var ev model.SpanEvent
		if err := rows.Scan(&ev.ID, &ev.ProjectID, &ev.TraceID, &ev.SpanID, &ev.EventType,
			&ev.EventTime, &ev.Payload, &ev.IdempotencyKey, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan span event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
