// Package cases manages escalation cases and their webhook notifications.
package cases

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/storage"
)

// snippetLimit bounds the stored webhook response excerpt.
const snippetLimit = 500

// Emitter creates cases for escalated decisions and delivers webhook
// notifications. Delivery failures are recorded, never retried, and never
// propagate to the caller's decision.
type Emitter struct {
	db         *storage.DB
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
}

// NewEmitter builds an Emitter. webhookURL may be empty to disable
// notifications entirely.
func NewEmitter(db *storage.DB, webhookURL string, timeout time.Duration, logger *slog.Logger) *Emitter {
	return &Emitter{
		db:         db,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// EmitCase opens a case and, when a webhook is configured, attempts one
// notification delivery. The notification row is pre-written as pending in
// the same transaction that records the terminal outcome after the POST.
func (e *Emitter) EmitCase(ctx context.Context, projectID, traceID uuid.UUID, reasonCode string) (model.Case, error) {
	var c model.Case
	err := e.db.WithTx(ctx, func(st *storage.Store) error {
		var err error
		c, err = st.CreateCase(ctx, projectID, traceID, reasonCode)
		return err
	})
	if err != nil {
		return model.Case{}, err
	}

	if e.webhookURL == "" {
		return c, nil
	}

	payload := model.JSONMap{
		"case_id":     c.ID.String(),
		"trace_id":    traceID.String(),
		"reason_code": reasonCode,
		"status":      string(c.Status),
		"created_at":  c.CreatedAt.Format(time.RFC3339Nano),
	}
	notification := model.Notification{
		ID:        uuid.New(),
		ProjectID: projectID,
		CaseID:    c.ID,
		Channel:   "webhook",
		TargetURL: e.webhookURL,
		Status:    model.NotificationPending,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	err = e.db.WithTx(ctx, func(st *storage.Store) error {
		if err := st.CreateNotification(ctx, notification); err != nil {
			return err
		}
		status, snippet := e.deliver(ctx, payload)
		return st.FinishNotification(ctx, notification.ID, status, &snippet)
	})
	if err != nil {
		e.logger.Error("webhook notification not recorded", "case_id", c.ID, "error", err)
	}
	return c, nil
}

// deliver POSTs the payload and classifies the outcome. Timeouts and
// network errors are failures, never ambiguous successes.
func (e *Emitter) deliver(ctx context.Context, payload model.JSONMap) (model.NotificationStatus, string) {
	body, err := json.Marshal(payload)
	if err != nil {
		return model.NotificationFailed, truncate(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.webhookURL, bytes.NewReader(body))
	if err != nil {
		return model.NotificationFailed, truncate(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return model.NotificationFailed, truncate(err.Error())
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, snippetLimit))
	if resp.StatusCode >= 300 {
		return model.NotificationFailed, string(raw)
	}
	return model.NotificationSent, string(raw)
}

func truncate(s string) string {
	if len(s) > snippetLimit {
		return s[:snippetLimit]
	}
	return s
}

// Service exposes the case read and transition operations.
type Service struct {
	db     *storage.DB
	logger *slog.Logger
}

// NewService builds a case Service.
func NewService(db *storage.DB, logger *slog.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// List returns a filtered page of cases together with backlog stats.
func (s *Service) List(ctx context.Context, projectID uuid.UUID, f model.CaseListFilters, page, pageSize int) (model.CaseList, error) {
	store := s.db.Store()
	items, total, err := store.ListCases(ctx, projectID, f, page, pageSize)
	if err != nil {
		return model.CaseList{}, err
	}
	stats, err := store.CaseStats(ctx, projectID)
	if err != nil {
		return model.CaseList{}, err
	}
	return model.CaseList{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Stats:    stats,
	}, nil
}

// Get returns one case.
func (s *Service) Get(ctx context.Context, projectID, id uuid.UUID) (model.Case, error) {
	return s.db.Store().GetCase(ctx, projectID, id)
}

// Acknowledge transitions a case to acknowledged.
func (s *Service) Acknowledge(ctx context.Context, projectID, id uuid.UUID, assignee *string) (model.Case, error) {
	var c model.Case
	err := s.db.WithTx(ctx, func(st *storage.Store) error {
		var err error
		c, err = st.AcknowledgeCase(ctx, projectID, id, assignee)
		return err
	})
	return c, err
}

// Resolve transitions a case to resolved, back-filling the ack timestamp
// when the case was never acknowledged.
func (s *Service) Resolve(ctx context.Context, projectID, id uuid.UUID, assignee *string) (model.Case, error) {
	var c model.Case
	err := s.db.WithTx(ctx, func(st *storage.Store) error {
		var err error
		c, err = st.ResolveCase(ctx, projectID, id, assignee)
		return err
	})
	return c, err
}
