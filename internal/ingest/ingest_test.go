package ingest_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracehub-ai/tracehub/internal/ingest"
	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/storage"
	"github.com/tracehub-ai/tracehub/internal/testutil"
)

var (
	testDB  *storage.DB
	testSvc *ingest.Service
)

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}
	defer testDB.Close()

	testSvc = ingest.NewService(testDB, testutil.TestLogger())
	os.Exit(m.Run())
}

func newProject(t *testing.T) uuid.UUID {
	t.Helper()
	var p model.Project
	err := testDB.WithTx(context.Background(), func(st *storage.Store) error {
		var err error
		p, err = st.CreateProject(context.Background(), "ingest-"+uuid.NewString()[:8], uuid.NewString(), "proj_"+uuid.NewString())
		return err
	})
	require.NoError(t, err)
	return p.ID
}

func TestApplyTraceBatchIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	projectID := newProject(t)
	traceID := uuid.New()
	spanID := uuid.New()
	now := time.Now().UTC()

	req := model.TraceBatchRequest{
		Trace: model.TraceUpsert{TraceID: traceID, StartTime: now},
		Spans: []model.SpanUpsert{{
			SpanID: spanID, TraceID: traceID, Name: "llm-call",
			StartTime: now, IdempotencyKey: "replay-span-" + spanID.String(),
		}},
	}

	resp, err := testSvc.ApplyTraceBatch(ctx, projectID, req)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.IngestedSpans)

	// Replay: the span is skipped but the count reports attempted spans.
	resp, err = testSvc.ApplyTraceBatch(ctx, projectID, req)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.IngestedSpans)

	spans, err := testDB.Store().ListSpansByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	assert.Len(t, spans, 1)
}

func TestApplyTraceBatchAppendsLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	projectID := newProject(t)
	traceID := uuid.New()
	spanID := uuid.New()
	now := time.Now().UTC()
	end := now.Add(time.Second)

	key := "lifecycle-" + spanID.String()
	_, err := testSvc.ApplyTraceBatch(ctx, projectID, model.TraceBatchRequest{
		Trace: model.TraceUpsert{TraceID: traceID, StartTime: now},
		Spans: []model.SpanUpsert{{
			SpanID: spanID, TraceID: traceID, Name: "tool-call", Status: "success",
			StartTime: now, EndTime: &end, IdempotencyKey: key,
		}},
	})
	require.NoError(t, err)

	events, err := testDB.Store().ListSpanEventsByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	require.Len(t, events, 2)

	byKey := map[string]model.SpanEvent{}
	for _, ev := range events {
		byKey[ev.IdempotencyKey] = ev
	}
	started, ok := byKey[key+":start"]
	require.True(t, ok)
	assert.Equal(t, model.EventSpanStarted, started.EventType)
	assert.Equal(t, "tool-call", started.Payload["name"])

	ended, ok := byKey[key+":end"]
	require.True(t, ok)
	assert.Equal(t, model.EventSpanEnded, ended.EventType)
	assert.Equal(t, "success", ended.Payload["status"])
}

func TestApplyTraceBatchRejectsUnknownParent(t *testing.T) {
	ctx := context.Background()
	projectID := newProject(t)
	traceID := uuid.New()
	now := time.Now().UTC()
	missing := uuid.New()
	allow := false

	spanID := uuid.New()
	_, err := testSvc.ApplyTraceBatch(ctx, projectID, model.TraceBatchRequest{
		Trace:              model.TraceUpsert{TraceID: traceID, StartTime: now},
		AllowMissingParent: &allow,
		Spans: []model.SpanUpsert{{
			SpanID: spanID, TraceID: traceID, ParentSpanID: &missing,
			Name: "orphan", StartTime: now, IdempotencyKey: "orphan-" + spanID.String(),
		}},
	})

	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)

	// The batch rolled back: no spans, and the replayed key is reusable.
	spans, err := testDB.Store().ListSpansByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestApplyTraceBatchParentWithinBatch(t *testing.T) {
	ctx := context.Background()
	projectID := newProject(t)
	traceID := uuid.New()
	now := time.Now().UTC()
	allow := false

	parent := uuid.New()
	child := uuid.New()
	resp, err := testSvc.ApplyTraceBatch(ctx, projectID, model.TraceBatchRequest{
		Trace:              model.TraceUpsert{TraceID: traceID, StartTime: now},
		AllowMissingParent: &allow,
		Spans: []model.SpanUpsert{
			{SpanID: parent, TraceID: traceID, Name: "root", StartTime: now, IdempotencyKey: "p-" + parent.String()},
			{SpanID: child, TraceID: traceID, ParentSpanID: &parent, Name: "leaf", StartTime: now, IdempotencyKey: "c-" + child.String()},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.IngestedSpans)
}

func TestApplyEventBatchCountsNewEventsOnly(t *testing.T) {
	ctx := context.Background()
	projectID := newProject(t)
	traceID := uuid.New()
	now := time.Now().UTC()

	_, err := testSvc.ApplyTraceBatch(ctx, projectID, model.TraceBatchRequest{
		Trace: model.TraceUpsert{TraceID: traceID, StartTime: now},
	})
	require.NoError(t, err)

	req := model.EventBatchRequest{Events: []model.SpanEventIn{
		{TraceID: traceID, EventType: model.EventLog, EventTime: now, Payload: model.JSONMap{"msg": "hello"}, IdempotencyKey: "log-a-" + traceID.String()},
		{TraceID: traceID, EventType: model.EventLog, EventTime: now, Payload: model.JSONMap{"msg": "world"}, IdempotencyKey: "log-b-" + traceID.String()},
	}}
	resp, err := testSvc.ApplyEventBatch(ctx, projectID, req)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.IngestedEvents)

	// Replay one old event plus one new: only the new one counts.
	req.Events[1].IdempotencyKey = "log-c-" + traceID.String()
	resp, err = testSvc.ApplyEventBatch(ctx, projectID, req)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.IngestedEvents)
}

func TestApplyEventBatchSynthesizesSpanFromStarted(t *testing.T) {
	ctx := context.Background()
	projectID := newProject(t)
	traceID := uuid.New()
	spanID := uuid.New()
	now := time.Now().UTC()

	_, err := testSvc.ApplyTraceBatch(ctx, projectID, model.TraceBatchRequest{
		Trace: model.TraceUpsert{TraceID: traceID, StartTime: now},
	})
	require.NoError(t, err)

	_, err = testSvc.ApplyEventBatch(ctx, projectID, model.EventBatchRequest{Events: []model.SpanEventIn{
		{TraceID: traceID, SpanID: &spanID, EventType: model.EventSpanStarted, EventTime: now,
			IdempotencyKey: "started-" + spanID.String()},
	}})
	require.NoError(t, err)

	sp, err := testDB.Store().GetSpan(ctx, projectID, spanID)
	require.NoError(t, err)
	assert.Equal(t, "span", sp.Name)
	assert.Equal(t, "task", sp.SpanType)
	assert.Equal(t, "running", sp.Status)
}

func TestApplyEventBatchEndsSpan(t *testing.T) {
	ctx := context.Background()
	projectID := newProject(t)
	traceID := uuid.New()
	spanID := uuid.New()
	now := time.Now().UTC()

	_, err := testSvc.ApplyTraceBatch(ctx, projectID, model.TraceBatchRequest{
		Trace: model.TraceUpsert{TraceID: traceID, StartTime: now},
		Spans: []model.SpanUpsert{{
			SpanID: spanID, TraceID: traceID, Name: "work",
			StartTime: now, IdempotencyKey: "end-" + spanID.String(),
		}},
	})
	require.NoError(t, err)

	endAt := now.Add(3 * time.Second)
	_, err = testSvc.ApplyEventBatch(ctx, projectID, model.EventBatchRequest{Events: []model.SpanEventIn{
		{TraceID: traceID, SpanID: &spanID, EventType: model.EventSpanEnded, EventTime: endAt,
			Payload:        model.JSONMap{"status": "error", "error": "timeout"},
			IdempotencyKey: "ended-" + spanID.String()},
	}})
	require.NoError(t, err)

	sp, err := testDB.Store().GetSpan(ctx, projectID, spanID)
	require.NoError(t, err)
	require.NotNil(t, sp.EndTime)
	assert.Equal(t, "error", sp.Status)
	require.NotNil(t, sp.Error)
	assert.Equal(t, "timeout", *sp.Error)

	// The projection update also refreshed the trace rollup.
	tr, err := testDB.Store().GetTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.EndedSpans)
	assert.False(t, tr.HasOpenSpans)
}

func TestApplyEventBatchAmendmentPatchesSpan(t *testing.T) {
	ctx := context.Background()
	projectID := newProject(t)
	traceID := uuid.New()
	spanID := uuid.New()
	now := time.Now().UTC()

	_, err := testSvc.ApplyTraceBatch(ctx, projectID, model.TraceBatchRequest{
		Trace: model.TraceUpsert{TraceID: traceID, StartTime: now},
		Spans: []model.SpanUpsert{{
			SpanID: spanID, TraceID: traceID, Name: "work",
			Attributes: model.JSONMap{"kept": "yes"},
			StartTime: now, IdempotencyKey: "amend-" + spanID.String(),
		}},
	})
	require.NoError(t, err)

	_, err = testSvc.ApplyEventBatch(ctx, projectID, model.EventBatchRequest{Events: []model.SpanEventIn{
		{TraceID: traceID, SpanID: &spanID, EventType: model.EventAmendment, EventTime: now,
			Payload: model.JSONMap{"patch": map[string]any{
				"attributes": map[string]any{"retries": float64(2)},
				"status":     "success",
			}},
			IdempotencyKey: "amended-" + spanID.String()},
	}})
	require.NoError(t, err)

	sp, err := testDB.Store().GetSpan(ctx, projectID, spanID)
	require.NoError(t, err)
	assert.Equal(t, "success", sp.Status)
	assert.Equal(t, "yes", sp.Attributes["kept"])
	assert.Equal(t, float64(2), sp.Attributes["retries"])
}

func TestApplyEventBatchUnknownSpanRecordsHistoryOnly(t *testing.T) {
	ctx := context.Background()
	projectID := newProject(t)
	traceID := uuid.New()
	ghost := uuid.New()
	now := time.Now().UTC()

	_, err := testSvc.ApplyTraceBatch(ctx, projectID, model.TraceBatchRequest{
		Trace: model.TraceUpsert{TraceID: traceID, StartTime: now},
	})
	require.NoError(t, err)

	resp, err := testSvc.ApplyEventBatch(ctx, projectID, model.EventBatchRequest{Events: []model.SpanEventIn{
		{TraceID: traceID, SpanID: &ghost, EventType: model.EventSpanEnded, EventTime: now,
			IdempotencyKey: "ghost-" + ghost.String()},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.IngestedEvents)

	_, err = testDB.Store().GetSpan(ctx, projectID, ghost)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	events, err := testDB.Store().ListSpanEventsByTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestCreateEvalReplayReturnsStored(t *testing.T) {
	ctx := context.Background()
	projectID := newProject(t)
	traceID := uuid.New()
	now := time.Now().UTC()

	_, err := testSvc.ApplyTraceBatch(ctx, projectID, model.TraceBatchRequest{
		Trace: model.TraceUpsert{TraceID: traceID, StartTime: now},
	})
	require.NoError(t, err)

	req := model.EvalCreateRequest{
		TraceID: &traceID, EvalName: "faithfulness", EvalModel: "eval-v1",
		Score: 0.4, Passed: false, IdempotencyKey: "eval-" + traceID.String(),
	}
	first, err := testSvc.CreateEval(ctx, projectID, req)
	require.NoError(t, err)

	req.Score = 0.99
	second, err := testSvc.CreateEval(ctx, projectID, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 0.4, second.Score)
}

func TestCreateEvalCopiesUserReviewToTrace(t *testing.T) {
	ctx := context.Background()
	projectID := newProject(t)
	traceID := uuid.New()
	now := time.Now().UTC()

	_, err := testSvc.ApplyTraceBatch(ctx, projectID, model.TraceBatchRequest{
		Trace: model.TraceUpsert{TraceID: traceID, StartTime: now},
	})
	require.NoError(t, err)

	passed := true
	_, err = testSvc.CreateEval(ctx, projectID, model.EvalCreateRequest{
		TraceID: &traceID, EvalName: "human-review", EvalModel: "human",
		Score: 1.0, Passed: true, UserReviewPassed: &passed,
		IdempotencyKey: "review-" + traceID.String(),
	})
	require.NoError(t, err)

	tr, err := testDB.Store().GetTrace(ctx, projectID, traceID)
	require.NoError(t, err)
	require.NotNil(t, tr.UserReviewPassed)
	assert.True(t, *tr.UserReviewPassed)
}

func TestCreateEvalUnknownTraceFails(t *testing.T) {
	ctx := context.Background()
	projectID := newProject(t)
	missing := uuid.New()

	_, err := testSvc.CreateEval(ctx, projectID, model.EvalCreateRequest{
		TraceID: &missing, EvalName: "faithfulness", EvalModel: "eval-v1",
		IdempotencyKey: "eval-missing-" + missing.String(),
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
