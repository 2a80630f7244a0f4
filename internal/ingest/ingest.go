// Package ingest implements the trace projection engine: it applies trace
// and span-event batches to the materialized Trace/Span rows while
// preserving the immutable SpanEvent history, all inside one transaction
// per batch.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/storage"
)

// Service applies ingest batches.
type Service struct {
	db     *storage.DB
	logger *slog.Logger
}

// NewService builds an ingest Service.
func NewService(db *storage.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// ApplyTraceBatch upserts the trace header and inserts the batch's spans.
// Replayed span idempotency keys are skipped silently; the response counts
// attempted spans, so replays report the same number. The whole batch is
// one transaction: any conflict rolls everything back.
func (s *Service) ApplyTraceBatch(ctx context.Context, projectID uuid.UUID, req model.TraceBatchRequest) (model.TraceBatchResponse, error) {
	if err := req.Validate(); err != nil {
		return model.TraceBatchResponse{}, err
	}

	batchSpanIDs := make(map[uuid.UUID]bool, len(req.Spans))
	for _, sp := range req.Spans {
		batchSpanIDs[sp.SpanID] = true
	}

	err := s.db.WithTxRetry(ctx, func(st *storage.Store) error {
		exists, err := st.TraceExists(ctx, projectID, req.Trace.TraceID)
		if err != nil {
			return err
		}
		if exists {
			if err := st.MergeTrace(ctx, projectID, req.Trace); err != nil {
				return err
			}
		} else if err := st.InsertTrace(ctx, projectID, req.Trace); err != nil {
			return err
		}

		for _, sp := range req.Spans {
			// Parent references inside the batch are taken on faith;
			// only references to pre-existing rows are verified.
			if sp.ParentSpanID != nil && !batchSpanIDs[*sp.ParentSpanID] && !req.MissingParentAllowed() {
				ok, err := st.SpanExists(ctx, projectID, *sp.ParentSpanID)
				if err != nil {
					return err
				}
				if !ok {
					return model.Validationf("parent span not found: %s", *sp.ParentSpanID)
				}
			}

			dup, err := st.SpanKeyExists(ctx, projectID, sp.IdempotencyKey)
			if err != nil {
				return err
			}
			if dup {
				continue
			}

			if err := s.insertSpanWithEvents(ctx, st, projectID, sp); err != nil {
				return err
			}
		}

		return st.RecomputeTraceRollup(ctx, projectID, req.Trace.TraceID)
	})
	if err != nil {
		return model.TraceBatchResponse{}, err
	}

	return model.TraceBatchResponse{
		TraceID:       req.Trace.TraceID,
		IngestedSpans: len(req.Spans),
	}, nil
}

func (s *Service) insertSpanWithEvents(ctx context.Context, st *storage.Store, projectID uuid.UUID, sp model.SpanUpsert) error {
	spanType := sp.SpanType
	if spanType == "" {
		spanType = "task"
	}
	status := sp.Status
	if status == "" {
		status = "running"
	}
	attrs := sp.Attributes
	if attrs == nil {
		attrs = model.JSONMap{}
	}
	now := time.Now().UTC()

	if err := st.InsertSpan(ctx, model.Span{
		ID:             sp.SpanID,
		ProjectID:      projectID,
		TraceID:        sp.TraceID,
		ParentSpanID:   sp.ParentSpanID,
		Name:           sp.Name,
		SpanType:       spanType,
		Status:         status,
		StartTime:      sp.StartTime.UTC(),
		EndTime:        sp.EndTime,
		Error:          sp.Error,
		Attributes:     attrs,
		IdempotencyKey: sp.IdempotencyKey,
		CreatedAt:      now,
	}); err != nil {
		return err
	}

	if err := st.InsertSpanEvent(ctx, model.SpanEvent{
		ID:             uuid.New(),
		ProjectID:      projectID,
		TraceID:        sp.TraceID,
		SpanID:         &sp.SpanID,
		EventType:      model.EventSpanStarted,
		EventTime:      sp.StartTime.UTC(),
		Payload:        model.JSONMap{"name": sp.Name, "attributes": attrs},
		IdempotencyKey: sp.IdempotencyKey + ":start",
		CreatedAt:      now,
	}); err != nil {
		return err
	}

	if sp.EndTime != nil {
		if err := st.InsertSpanEvent(ctx, model.SpanEvent{
			ID:             uuid.New(),
			ProjectID:      projectID,
			TraceID:        sp.TraceID,
			SpanID:         &sp.SpanID,
			EventType:      model.EventSpanEnded,
			EventTime:      sp.EndTime.UTC(),
			Payload:        model.JSONMap{"status": status, "error": sp.Error},
			IdempotencyKey: sp.IdempotencyKey + ":end",
			CreatedAt:      now,
		}); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEventBatch appends span events and drives the Span projection:
// SPAN_STARTED may synthesize a missing span, SPAN_ENDED closes one, and
// AMENDMENT patches attributes/status. Events with replayed idempotency
// keys are skipped and excluded from the reported count.
func (s *Service) ApplyEventBatch(ctx context.Context, projectID uuid.UUID, req model.EventBatchRequest) (model.EventBatchResponse, error) {
	if err := req.Validate(); err != nil {
		return model.EventBatchResponse{}, err
	}

	ingested := 0
	err := s.db.WithTxRetry(ctx, func(st *storage.Store) error {
		ingested = 0
		touched := map[uuid.UUID]bool{}

		for _, ev := range req.Events {
			dup, err := st.SpanEventKeyExists(ctx, projectID, ev.IdempotencyKey)
			if err != nil {
				return err
			}
			if dup {
				continue
			}

			if ev.SpanID != nil {
				if err := s.project(ctx, st, projectID, ev, req.MissingParentAllowed()); err != nil {
					return err
				}
			}

			if err := st.InsertSpanEvent(ctx, model.SpanEvent{
				ID:             uuid.New(),
				ProjectID:      projectID,
				TraceID:        ev.TraceID,
				SpanID:         ev.SpanID,
				EventType:      ev.EventType,
				EventTime:      ev.EventTime.UTC(),
				Payload:        ev.Payload,
				IdempotencyKey: ev.IdempotencyKey,
				CreatedAt:      time.Now().UTC(),
			}); err != nil {
				return err
			}
			ingested++
			touched[ev.TraceID] = true
		}

		for traceID := range touched {
			if err := st.RecomputeTraceRollup(ctx, projectID, traceID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.EventBatchResponse{}, err
	}
	return model.EventBatchResponse{IngestedEvents: ingested}, nil
}

// project applies one event's effect on the Span row. Events referencing
// unknown spans (other than SPAN_STARTED, which synthesizes one) record
// history only.
func (s *Service) project(ctx context.Context, st *storage.Store, projectID uuid.UUID, ev model.SpanEventIn, allowMissingParent bool) error {
	switch ev.EventType {
	case model.EventSpanStarted:
		exists, err := st.SpanExists(ctx, projectID, *ev.SpanID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		return s.synthesizeSpan(ctx, st, projectID, ev, allowMissingParent)

	case model.EventSpanEnded:
		sp, err := st.GetSpan(ctx, projectID, *ev.SpanID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		}
		endTime := ev.EventTime.UTC()
		return st.EndSpan(ctx, projectID, sp.ID, &endTime,
			payloadStr(ev.Payload, "status"), payloadStr(ev.Payload, "error"))

	case model.EventAmendment:
		exists, err := st.SpanExists(ctx, projectID, *ev.SpanID)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		patch, _ := ev.Payload["patch"].(map[string]any)
		attrs, _ := patch["attributes"].(map[string]any)
		return st.PatchSpan(ctx, projectID, *ev.SpanID, attrs, payloadStr(patch, "status"))

	default:
		return nil
	}
}

func (s *Service) synthesizeSpan(ctx context.Context, st *storage.Store, projectID uuid.UUID, ev model.SpanEventIn, allowMissingParent bool) error {
	var parentID *uuid.UUID
	if raw, ok := ev.Payload["parent_span_id"].(string); ok && raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return model.Validationf("invalid parent_span_id: %q", raw)
		}
		parentID = &id
		if !allowMissingParent {
			exists, err := st.SpanExists(ctx, projectID, id)
			if err != nil {
				return err
			}
			if !exists {
				return model.Validationf("parent span not found: %s", id)
			}
		}
	}

	name := "span"
	if v := payloadStr(ev.Payload, "name"); v != nil {
		name = *v
	}
	spanType := "task"
	if v := payloadStr(ev.Payload, "span_type"); v != nil {
		spanType = *v
	}
	status := "running"
	if v := payloadStr(ev.Payload, "status"); v != nil {
		status = *v
	}
	idemKey := ev.IdempotencyKey
	if v := payloadStr(ev.Payload, "idempotency_key"); v != nil {
		idemKey = *v
	}
	attrs, _ := ev.Payload["attributes"].(map[string]any)
	if attrs == nil {
		attrs = model.JSONMap{}
	}

	return st.InsertSpan(ctx, model.Span{
		ID:             *ev.SpanID,
		ProjectID:      projectID,
		TraceID:        ev.TraceID,
		ParentSpanID:   parentID,
		Name:           name,
		SpanType:       spanType,
		Status:         status,
		StartTime:      ev.EventTime.UTC(),
		Attributes:     attrs,
		IdempotencyKey: idemKey,
		CreatedAt:      time.Now().UTC(),
	})
}

func payloadStr(m map[string]any, key string) *string {
	if m == nil {
		return nil
	}
	if v, ok := m[key].(string); ok {
		return &v
	}
	return nil
}
