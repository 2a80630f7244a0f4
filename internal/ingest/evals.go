package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/storage"
)

// CreateEval records an evaluation against a trace or span. A replayed
// idempotency key returns the stored record unchanged. When the eval
// carries a user review verdict and targets a trace, the verdict is also
// copied onto the trace row.
func (s *Service) CreateEval(ctx context.Context, projectID uuid.UUID, req model.EvalCreateRequest) (model.Evaluation, error) {
	if err := req.Validate(); err != nil {
		return model.Evaluation{}, err
	}

	store := s.db.Store()

	if req.TraceID != nil {
		if _, err := store.GetTrace(ctx, projectID, *req.TraceID); err != nil {
			return model.Evaluation{}, err
		}
	}
	if req.SpanID != nil {
		if _, err := store.GetSpan(ctx, projectID, *req.SpanID); err != nil {
			return model.Evaluation{}, err
		}
	}

	if existing, err := store.GetEvaluationByKey(ctx, projectID, req.IdempotencyKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return model.Evaluation{}, err
	}

	eval := model.Evaluation{
		ID:               uuid.New(),
		ProjectID:        projectID,
		TraceID:          req.TraceID,
		SpanID:           req.SpanID,
		EvalName:         req.EvalName,
		EvalModel:        req.EvalModel,
		Score:            req.Score,
		Passed:           req.Passed,
		Metadata:         req.Metadata,
		UserReviewPassed: req.UserReviewPassed,
		IdempotencyKey:   req.IdempotencyKey,
		CreatedAt:        time.Now().UTC(),
	}

	err := s.db.WithTx(ctx, func(st *storage.Store) error {
		if err := st.InsertEvaluation(ctx, eval); err != nil {
			return err
		}
		if req.TraceID != nil && req.UserReviewPassed != nil {
			return st.SetTraceUserReview(ctx, projectID, *req.TraceID, *req.UserReviewPassed)
		}
		return nil
	})
	if err != nil {
		return model.Evaluation{}, err
	}
	return eval, nil
}
