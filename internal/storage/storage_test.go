package storage_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/storage"
	"github.com/tracehub-ai/tracehub/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

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

	os.Exit(m.Run())
}

func createTestProject(t *testing.T) model.Project {
	t.Helper()
	var p model.Project
	err := testDB.WithTx(context.Background(), func(st *storage.Store) error {
		var err error
		p, err = st.CreateProject(context.Background(), "proj-"+uuid.NewString()[:8], uuid.NewString(), "proj_"+uuid.NewString())
		return err
	})
	require.NoError(t, err)
	return p
}

func insertTestTrace(t *testing.T, projectID uuid.UUID) uuid.UUID {
	t.Helper()
	traceID := uuid.New()
	err := testDB.WithTx(context.Background(), func(st *storage.Store) error {
		return st.InsertTrace(context.Background(), projectID, model.TraceUpsert{
			TraceID:   traceID,
			StartTime: time.Now().UTC(),
		})
	})
	require.NoError(t, err)
	return traceID
}

func TestProjectLifecycle(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	store := testDB.Store()

	got, err := store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.True(t, got.IsActive)
	assert.False(t, got.KeyActivated)
	require.NotNil(t, got.CurrentAPIKey)

	byHash, err := store.GetProjectByKeyHash(ctx, p.APIKeyHash)
	require.NoError(t, err)
	assert.Equal(t, p.ID, byHash.ID)

	require.NoError(t, store.MarkKeyActivated(ctx, p.ID))
	got, err = store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.KeyActivated)
	assert.NotNil(t, got.CurrentAPIKey)

	// Rotation resets activation and replaces the stored plaintext.
	newHash := uuid.NewString()
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.RotateProjectKey(ctx, p.ID, newHash, "proj_newkey")
	})
	require.NoError(t, err)
	got, err = store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.KeyActivated)
	assert.Equal(t, newHash, got.APIKeyHash)
	require.NotNil(t, got.CurrentAPIKey)
	assert.Equal(t, "proj_newkey", *got.CurrentAPIKey)

	require.NoError(t, store.SetProjectActive(ctx, p.ID, false))
	got, err = store.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = store.GetProject(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTraceMergeSemantics(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	store := testDB.Store()
	traceID := uuid.New()

	input := "original question"
	start := time.Now().UTC().Truncate(time.Millisecond)
	err := testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.InsertTrace(ctx, p.ID, model.TraceUpsert{
			TraceID:    traceID,
			StartTime:  start,
			InputText:  &input,
			Attributes: model.JSONMap{"env": "dev", "team": "ml"},
		})
	})
	require.NoError(t, err)

	got, err := store.GetTrace(ctx, p.ID, traceID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, got.Status)
	require.NotNil(t, got.InputText)
	assert.Equal(t, input, *got.InputText)

	// Merge: status and end_time replace unconditionally, non-empty text
	// replaces, empty text keeps prior, attributes deep-merge last writer
	// wins per key.
	end := start.Add(time.Minute)
	output := "the answer"
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.MergeTrace(ctx, p.ID, model.TraceUpsert{
			TraceID:    traceID,
			Status:     model.StatusSuccess,
			StartTime:  start,
			EndTime:    &end,
			OutputText: &output,
			Attributes: model.JSONMap{"env": "prod"},
		})
	})
	require.NoError(t, err)

	got, err = store.GetTrace(ctx, p.ID, traceID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, got.Status)
	require.NotNil(t, got.EndTime)
	require.NotNil(t, got.InputText)
	assert.Equal(t, input, *got.InputText)
	require.NotNil(t, got.OutputText)
	assert.Equal(t, output, *got.OutputText)
	assert.Equal(t, "prod", got.Attributes["env"])
	assert.Equal(t, "ml", got.Attributes["team"])

	// A merge without status resets it to running: the upsert default.
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.MergeTrace(ctx, p.ID, model.TraceUpsert{TraceID: traceID, StartTime: start})
	})
	require.NoError(t, err)
	got, err = store.GetTrace(ctx, p.ID, traceID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, got.Status)
	assert.Nil(t, got.EndTime)
}

func TestTraceRollup(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	store := testDB.Store()
	traceID := insertTestTrace(t, p.ID)

	// Zero spans: vacuously complete, no open spans.
	err := testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.RecomputeTraceRollup(ctx, p.ID, traceID)
	})
	require.NoError(t, err)
	got, err := store.GetTrace(ctx, p.ID, traceID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalSpans)
	assert.Equal(t, 1.0, got.CompletionRate)
	assert.False(t, got.HasOpenSpans)

	now := time.Now().UTC()
	ended := now.Add(time.Second)
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		if err := st.InsertSpan(ctx, model.Span{
			ID: uuid.New(), ProjectID: p.ID, TraceID: traceID,
			Name: "done", SpanType: "task", Status: "success",
			StartTime: now, EndTime: &ended,
			Attributes: model.JSONMap{}, IdempotencyKey: "rollup-a-" + traceID.String(),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := st.InsertSpan(ctx, model.Span{
			ID: uuid.New(), ProjectID: p.ID, TraceID: traceID,
			Name: "open", SpanType: "task", Status: "running",
			StartTime: now,
			Attributes: model.JSONMap{}, IdempotencyKey: "rollup-b-" + traceID.String(),
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return st.RecomputeTraceRollup(ctx, p.ID, traceID)
	})
	require.NoError(t, err)

	got, err = store.GetTrace(ctx, p.ID, traceID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalSpans)
	assert.Equal(t, 1, got.EndedSpans)
	assert.True(t, got.HasOpenSpans)
	assert.InDelta(t, 0.5, got.CompletionRate, 1e-9)
}

func TestTraceRollupPromotesRunningToSuccess(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	store := testDB.Store()
	traceID := uuid.New()

	start := time.Now().UTC()
	end := start.Add(time.Minute)
	err := testDB.WithTx(ctx, func(st *storage.Store) error {
		if err := st.InsertTrace(ctx, p.ID, model.TraceUpsert{TraceID: traceID, StartTime: start}); err != nil {
			return err
		}
		if err := st.MergeTrace(ctx, p.ID, model.TraceUpsert{
			TraceID: traceID, Status: model.StatusRunning, StartTime: start, EndTime: &end,
		}); err != nil {
			return err
		}
		if err := st.InsertSpan(ctx, model.Span{
			ID: uuid.New(), ProjectID: p.ID, TraceID: traceID,
			Name: "only", SpanType: "task", Status: "success",
			StartTime: start, EndTime: &end,
			Attributes: model.JSONMap{}, IdempotencyKey: "promote-" + traceID.String(),
			CreatedAt: start,
		}); err != nil {
			return err
		}
		return st.RecomputeTraceRollup(ctx, p.ID, traceID)
	})
	require.NoError(t, err)

	got, err := store.GetTrace(ctx, p.ID, traceID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, got.Status)
}

func TestSpanDuplicateKeyConflicts(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	traceID := insertTestTrace(t, p.ID)

	span := model.Span{
		ID: uuid.New(), ProjectID: p.ID, TraceID: traceID,
		Name: "step", SpanType: "task", Status: "running",
		StartTime: time.Now().UTC(),
		Attributes: model.JSONMap{}, IdempotencyKey: "dup-key-" + traceID.String(),
		CreatedAt: time.Now().UTC(),
	}
	err := testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.InsertSpan(ctx, span)
	})
	require.NoError(t, err)

	dup := span
	dup.ID = uuid.New()
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.InsertSpan(ctx, dup)
	})
	assert.ErrorIs(t, err, storage.ErrConflict)

	exists, err := testDB.Store().SpanKeyExists(ctx, p.ID, span.IdempotencyKey)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWithTxRetryCommitsAndSurfacesConflicts(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	traceID := insertTestTrace(t, p.ID)

	span := model.Span{
		ID: uuid.New(), ProjectID: p.ID, TraceID: traceID,
		Name: "step", SpanType: "task", Status: "running",
		StartTime: time.Now().UTC(),
		Attributes: model.JSONMap{}, IdempotencyKey: "retry-key-" + traceID.String(),
		CreatedAt: time.Now().UTC(),
	}
	err := testDB.WithTxRetry(ctx, func(st *storage.Store) error {
		return st.InsertSpan(ctx, span)
	})
	require.NoError(t, err)

	got, err := testDB.Store().GetSpan(ctx, p.ID, span.ID)
	require.NoError(t, err)
	assert.Equal(t, span.Name, got.Name)

	// A unique violation is an idempotency conflict, not a transient
	// failure: it must come back as ErrConflict without being retried.
	attempts := 0
	dup := span
	dup.ID = uuid.New()
	err = testDB.WithTxRetry(ctx, func(st *storage.Store) error {
		attempts++
		return st.InsertSpan(ctx, dup)
	})
	assert.ErrorIs(t, err, storage.ErrConflict)
	assert.Equal(t, 1, attempts)
}

func TestEndSpanAlwaysReplacesEndTime(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	traceID := insertTestTrace(t, p.ID)
	store := testDB.Store()

	spanID := uuid.New()
	start := time.Now().UTC().Truncate(time.Millisecond)
	first := start.Add(time.Second)
	err := testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.InsertSpan(ctx, model.Span{
			ID: spanID, ProjectID: p.ID, TraceID: traceID,
			Name: "step", SpanType: "task", Status: "running",
			StartTime: start, EndTime: &first,
			Attributes: model.JSONMap{}, IdempotencyKey: "endspan-" + traceID.String(),
			CreatedAt: start,
		})
	})
	require.NoError(t, err)

	// A later SPAN_ENDED replay with no end time clears it; status survives
	// through COALESCE.
	errText := "boom"
	statusErr := "error"
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.EndSpan(ctx, p.ID, spanID, nil, &statusErr, &errText)
	})
	require.NoError(t, err)

	got, err := store.GetSpan(ctx, p.ID, spanID)
	require.NoError(t, err)
	assert.Nil(t, got.EndTime)
	assert.Equal(t, "error", got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "boom", *got.Error)
}

func TestListTracesFilters(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	store := testDB.Store()

	mk := func(status model.TraceStatus, env, inputText string, attrs model.JSONMap) uuid.UUID {
		id := uuid.New()
		err := testDB.WithTx(ctx, func(st *storage.Store) error {
			if err := st.InsertTrace(ctx, p.ID, model.TraceUpsert{
				TraceID: id, StartTime: time.Now().UTC(),
				Environment: &env, InputText: &inputText, Attributes: attrs,
			}); err != nil {
				return err
			}
			if status != model.StatusRunning {
				return st.MergeTrace(ctx, p.ID, model.TraceUpsert{
					TraceID: id, Status: status, StartTime: time.Now().UTC(),
				})
			}
			return nil
		})
		require.NoError(t, err)
		return id
	}

	errored := mk(model.StatusError, "prod", "why did the batch fail", model.JSONMap{"urgent": true})
	mk(model.StatusRunning, "dev", "hello world", model.JSONMap{})

	status := "error"
	items, total, err := store.ListTraces(ctx, p.ID, model.TraceListFilters{Status: &status}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, errored, items[0].ID)

	env := "dev"
	_, total, err = store.ListTraces(ctx, p.ID, model.TraceListFilters{Environment: &env}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	tag := "urgent"
	_, total, err = store.ListTraces(ctx, p.ID, model.TraceListFilters{Tag: &tag}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	search := "batch fail"
	items, total, err = store.ListTraces(ctx, p.ID, model.TraceListFilters{Search: &search}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, errored, items[0].ID)

	// Another project sees nothing.
	other := createTestProject(t)
	_, total, err = store.ListTraces(ctx, other.ID, model.TraceListFilters{}, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestPolicyVersioning(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	store := testDB.Store()

	var pol model.Policy
	var v1 model.PolicyVersion
	err := testDB.WithTx(ctx, func(st *storage.Store) error {
		var err error
		pol, v1, err = st.CreatePolicy(ctx, p.ID, model.PolicyCreateRequest{
			Name:          "safety",
			EffectiveFrom: time.Now().UTC().Add(-time.Hour),
			Active:        true,
			Definition:    model.JSONMap{"rules": []any{}},
		})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v1.Version)
	assert.True(t, v1.Active)

	resolved, err := store.ResolveActivePolicyVersion(ctx, p.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, v1.ID, resolved.ID)

	// A future-dated active version is not resolvable yet.
	var futurePol model.Policy
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		var err error
		futurePol, _, err = st.CreatePolicy(ctx, p.ID, model.PolicyCreateRequest{
			Name:          "upcoming",
			EffectiveFrom: time.Now().UTC().Add(time.Hour),
			Active:        true,
			Definition:    model.JSONMap{"rules": []any{}},
		})
		return err
	})
	require.NoError(t, err)
	resolved, err = store.ResolveActivePolicyVersion(ctx, p.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, pol.ID, resolved.PolicyID)

	_ = futurePol

	versions, err := store.ListPolicyVersions(ctx, pol.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	// Activating a missing version is a not-found.
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		_, err := st.ActivatePolicyVersion(ctx, pol.ID, 9)
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDecisionIdempotencyKeyUnique(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	traceID := insertTestTrace(t, p.ID)
	store := testDB.Store()

	d := model.TraceDecision{
		ID: uuid.New(), ProjectID: p.ID, TraceID: traceID,
		Action: model.ActionAllowAnswer, ReasonCode: "HEURISTIC_OK",
		Severity: "low", Confidence: 0.7, PolicyVersion: "none",
		Signals: model.JSONMap{}, IdempotencyKey: "dec-" + traceID.String(),
		CreatedAt: time.Now().UTC(),
	}
	err := testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.InsertTraceDecision(ctx, d)
	})
	require.NoError(t, err)

	dup := d
	dup.ID = uuid.New()
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.InsertTraceDecision(ctx, dup)
	})
	assert.ErrorIs(t, err, storage.ErrConflict)

	got, err := store.GetTraceDecisionByKey(ctx, p.ID, d.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)
}

func TestJudgeCachePutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	store := testDB.Store()

	entry := model.JudgeCacheEntry{
		ID: uuid.New(), ProjectID: p.ID,
		InputHash: "hash-" + uuid.NewString(), PolicyVersion: "pol:v1",
		Decision:  model.JSONMap{"action": "ALLOW_ANSWER"},
		CreatedAt: time.Now().UTC(),
	}
	err := testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.PutJudgeCache(ctx, entry)
	})
	require.NoError(t, err)

	// Second write with the same key silently keeps the first entry.
	second := entry
	second.ID = uuid.New()
	second.Decision = model.JSONMap{"action": "BLOCK"}
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.PutJudgeCache(ctx, second)
	})
	require.NoError(t, err)

	got, err := store.GetJudgeCache(ctx, p.ID, entry.InputHash, "pol:v1")
	require.NoError(t, err)
	assert.Equal(t, "ALLOW_ANSWER", got.Decision["action"])

	_, err = store.GetJudgeCache(ctx, p.ID, entry.InputHash, "pol:v2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCaseTransitionsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	traceID := insertTestTrace(t, p.ID)

	var c model.Case
	err := testDB.WithTx(ctx, func(st *storage.Store) error {
		var err error
		c, err = st.CreateCase(ctx, p.ID, traceID, "PII_DETECTED")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, model.CaseOpen, c.Status)

	assignee := "oncall"
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		var err error
		c, err = st.AcknowledgeCase(ctx, p.ID, c.ID, &assignee)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, model.CaseAcknowledged, c.Status)
	require.NotNil(t, c.AcknowledgedAt)
	firstAck := *c.AcknowledgedAt

	// Re-acknowledging keeps the original timestamp.
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		var err error
		c, err = st.AcknowledgeCase(ctx, p.ID, c.ID, nil)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, firstAck, *c.AcknowledgedAt)

	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		var err error
		c, err = st.ResolveCase(ctx, p.ID, c.ID, nil)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, model.CaseResolved, c.Status)
	require.NotNil(t, c.ResolvedAt)
	assert.Equal(t, firstAck, *c.AcknowledgedAt)
}

func TestResolveBackfillsAcknowledgement(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	traceID := insertTestTrace(t, p.ID)

	var c model.Case
	err := testDB.WithTx(ctx, func(st *storage.Store) error {
		var err error
		c, err = st.CreateCase(ctx, p.ID, traceID, "FIN_BLOCK")
		if err != nil {
			return err
		}
		c, err = st.ResolveCase(ctx, p.ID, c.ID, nil)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, model.CaseResolved, c.Status)
	assert.NotNil(t, c.AcknowledgedAt)
	assert.NotNil(t, c.ResolvedAt)
}

func TestNotificationTerminalOnce(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	traceID := insertTestTrace(t, p.ID)

	var c model.Case
	err := testDB.WithTx(ctx, func(st *storage.Store) error {
		var err error
		c, err = st.CreateCase(ctx, p.ID, traceID, "PII_DETECTED")
		return err
	})
	require.NoError(t, err)

	n := model.Notification{
		ID: uuid.New(), ProjectID: p.ID, CaseID: c.ID,
		Channel: "webhook", TargetURL: "http://hooks.example/x",
		Status: model.NotificationPending, Payload: model.JSONMap{"case_id": c.ID.String()},
		CreatedAt: time.Now().UTC(),
	}
	snippet := "ok"
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		if err := st.CreateNotification(ctx, n); err != nil {
			return err
		}
		return st.FinishNotification(ctx, n.ID, model.NotificationSent, &snippet)
	})
	require.NoError(t, err)

	list, err := testDB.Store().ListNotificationsByCase(ctx, p.ID, c.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotificationSent, list[0].Status)

	// A second finish does not overwrite the terminal status.
	failSnippet := "late failure"
	err = testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.FinishNotification(ctx, n.ID, model.NotificationFailed, &failSnippet)
	})
	require.NoError(t, err)
	list, err = testDB.Store().ListNotificationsByCase(ctx, p.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationSent, list[0].Status)
}

func TestEvaluationsByTraceAndKey(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	traceID := insertTestTrace(t, p.ID)
	store := testDB.Store()

	e := model.Evaluation{
		ID: uuid.New(), ProjectID: p.ID, TraceID: &traceID,
		EvalName: "faithfulness", EvalModel: "eval-v1",
		Score: 0.92, Passed: true, Metadata: model.JSONMap{},
		IdempotencyKey: "eval-" + traceID.String(), CreatedAt: time.Now().UTC(),
	}
	err := testDB.WithTx(ctx, func(st *storage.Store) error {
		return st.InsertEvaluation(ctx, e)
	})
	require.NoError(t, err)

	got, err := store.GetEvaluationByKey(ctx, p.ID, e.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, e.ID, got.ID)

	list, err := store.ListEvaluationsByTrace(ctx, p.ID, traceID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 0.92, list[0].Score)
}

func TestTraceStatsWindow(t *testing.T) {
	ctx := context.Background()
	p := createTestProject(t)
	store := testDB.Store()

	insertTestTrace(t, p.ID)
	insertTestTrace(t, p.ID)

	stats, err := store.TraceStats(ctx, p.ID, 24)
	require.NoError(t, err)
	assert.Equal(t, 24, stats.LastHours)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByStatus["running"])
}
