// Package decision implements the decide pipeline: idempotency
// short-circuit, context assembly, two-tier judging with a
// content-addressed cache, policy overlay, and the audit trail written in
// a single transaction.
package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tracehub-ai/tracehub/internal/cases"
	"github.com/tracehub-ai/tracehub/internal/judge"
	"github.com/tracehub-ai/tracehub/internal/model"
	"github.com/tracehub-ai/tracehub/internal/policy"
	"github.com/tracehub-ai/tracehub/internal/storage"
)

// recentJudgeRuns bounds the judge-run history attached to a response.
const recentJudgeRuns = 5

// Service runs the decide pipeline.
type Service struct {
	db       *storage.DB
	registry *judge.Registry
	emitter  *cases.Emitter
	logger   *slog.Logger
}

// NewService builds a decision Service.
func NewService(db *storage.DB, registry *judge.Registry, emitter *cases.Emitter, logger *slog.Logger) *Service {
	return &Service{db: db, registry: registry, emitter: emitter, logger: logger}
}

// Decide produces (or replays) the decision for one request.
func (s *Service) Decide(ctx context.Context, projectID uuid.UUID, req model.DecideRequest) (model.DecideResponse, error) {
	if err := req.Validate(); err != nil {
		return model.DecideResponse{}, err
	}

	store := s.db.Store()

	// Replay short-circuit: identical keys always return the stored
	// decision without re-judging.
	existing, err := store.GetTraceDecisionByKey(ctx, projectID, req.IdempotencyKey)
	if err == nil {
		runs, err := store.ListJudgeRunsByTrace(ctx, projectID, existing.TraceID, recentJudgeRuns)
		if err != nil {
			return model.DecideResponse{}, err
		}
		return model.DecideResponse{Decision: existing, JudgeRuns: runs}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return model.DecideResponse{}, err
	}

	if req.TraceID == nil {
		return model.DecideResponse{}, model.Validationf("trace_id is required")
	}

	trace, err := store.GetTrace(ctx, projectID, *req.TraceID)
	if err != nil {
		return model.DecideResponse{}, err
	}

	pv, err := s.resolvePolicy(ctx, store, projectID, req)
	if err != nil {
		return model.DecideResponse{}, err
	}
	policyVerKey := pv.VersionKey()

	evalCtx, err := s.buildContext(ctx, store, projectID, trace, req)
	if err != nil {
		return model.DecideResponse{}, err
	}

	inputHash, err := stableHash(map[string]any{
		"trace_id":    trace.ID.String(),
		"input_text":  trace.InputText,
		"output_text": trace.OutputText,
		"request":     req.RequestPayload,
		"response":    req.ResponsePayload,
		"evals":       evalCtx["evals"],
	})
	if err != nil {
		return model.DecideResponse{}, err
	}

	// Judge path: cache hit reuses the stored verdict and records no new
	// runs; a miss invokes the heuristic and, unless it short-circuits
	// with a confident BLOCK/ESCALATE, the LLM.
	var selected judge.Verdict
	var newRuns []model.JudgeRun
	llmInvoked := false
	cacheMiss := false

	if cached, err := store.GetJudgeCache(ctx, projectID, inputHash, policyVerKey); err == nil {
		selected, err = verdictFromMap(cached.Decision)
		if err != nil {
			return model.DecideResponse{}, err
		}
	} else if errors.Is(err, storage.ErrNotFound) {
		cacheMiss = true
		selected, newRuns, llmInvoked, err = s.invokeJudges(ctx, projectID, trace.ID, evalCtx)
		if err != nil {
			return model.DecideResponse{}, err
		}
	} else {
		return model.DecideResponse{}, err
	}

	overlayCtx := map[string]any{
		"request":  orEmpty(req.RequestPayload),
		"response": orEmpty(req.ResponsePayload),
		"evals":    evalCtx["evals"],
		"signals":  selected.Signals,
		"safety":   evalCtx["safety"],
	}
	policyResult := policy.Evaluate(pv.Definition, overlayCtx)

	finalAction := selected.Action
	reasonCode := selected.ReasonCode
	if policyResult.Matched {
		finalAction = policyResult.Action
		reasonCode = policyResult.ReasonCode
	}

	judgeModel := judge.HeuristicName
	if llmInvoked {
		if selected.Model != nil {
			judgeModel = *selected.Model
		} else {
			judgeModel = judge.LLMName
		}
	}

	d := model.TraceDecision{
		ID:             uuid.New(),
		ProjectID:      projectID,
		TraceID:        trace.ID,
		Action:         finalAction,
		ReasonCode:     reasonCode,
		Severity:       policyResult.Severity,
		Confidence:     selected.Confidence,
		PolicyVersion:  policyVerKey,
		JudgeModel:     &judgeModel,
		Signals:        selected.Signals,
		Rationale:      selected.Rationale,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}

	selectedMap, err := verdictToMap(selected)
	if err != nil {
		return model.DecideResponse{}, err
	}

	err = s.db.WithTxRetry(ctx, func(st *storage.Store) error {
		for _, run := range newRuns {
			if err := st.InsertJudgeRun(ctx, run); err != nil {
				return err
			}
		}
		if cacheMiss {
			if err := st.PutJudgeCache(ctx, model.JudgeCacheEntry{
				ID:            uuid.New(),
				ProjectID:     projectID,
				InputHash:     inputHash,
				PolicyVersion: policyVerKey,
				Decision:      selectedMap,
				CreatedAt:     time.Now().UTC(),
			}); err != nil {
				return err
			}
		}
		if err := s.writeJudgeSpan(ctx, st, projectID, trace.ID, req.IdempotencyKey, policyVerKey, selectedMap, policyResult); err != nil {
			return err
		}
		if err := st.InsertTraceDecision(ctx, d); err != nil {
			return err
		}
		return st.SetTraceDecision(ctx, projectID, trace.ID, d.Snapshot())
	})
	if err != nil {
		return model.DecideResponse{}, err
	}

	// Post-commit side effect: emitter failures never invalidate the
	// committed decision.
	if d.Action == model.ActionEscalate {
		if _, err := s.emitter.EmitCase(ctx, projectID, trace.ID, d.ReasonCode); err != nil {
			s.logger.Error("case emission failed", "trace_id", trace.ID, "error", err)
		}
	}

	runs, err := store.ListJudgeRunsByTrace(ctx, projectID, trace.ID, recentJudgeRuns)
	if err != nil {
		return model.DecideResponse{}, err
	}
	return model.DecideResponse{Decision: d, JudgeRuns: runs}, nil
}

// resolvePolicy picks the governing policy version: an explicit
// (policy_id, version) override, the active version of a named policy, or
// the project-wide active version effective no later than now.
func (s *Service) resolvePolicy(ctx context.Context, store *storage.Store, projectID uuid.UUID, req model.DecideRequest) (model.PolicyVersion, error) {
	var (
		pv  model.PolicyVersion
		err error
	)
	switch {
	case req.ForcePolicyID != nil && req.ForcePolicyVersion != nil:
		pv, err = store.GetPolicyVersion(ctx, *req.ForcePolicyID, *req.ForcePolicyVersion)
	case req.ForcePolicyID != nil:
		pv, err = store.GetActivePolicyVersion(ctx, *req.ForcePolicyID)
	default:
		pv, err = store.ResolveActivePolicyVersion(ctx, projectID, time.Now().UTC())
	}
	if errors.Is(err, storage.ErrNotFound) {
		return model.PolicyVersion{}, model.Validationf("no active policy")
	}
	return pv, err
}

// buildContext assembles the judge/policy context from trace facts,
// request payloads, and the trace's evaluations.
func (s *Service) buildContext(ctx context.Context, store *storage.Store, projectID uuid.UUID, trace model.Trace, req model.DecideRequest) (map[string]any, error) {
	evalRows, err := store.ListEvaluationsByTrace(ctx, projectID, trace.ID)
	if err != nil {
		return nil, err
	}

	evalMap := map[string]any{}
	sum := 0.0
	for _, row := range evalRows {
		evalMap[row.EvalName] = map[string]any{
			"score":      row.Score,
			"passed":     row.Passed,
			"eval_model": row.EvalModel,
		}
		sum += row.Score
	}
	overall := 0.8
	if len(evalRows) > 0 {
		overall = sum / float64(len(evalRows))
	}

	faithfulness := 0.8
	if entry, ok := evalMap["faithfulness"].(map[string]any); ok {
		if score, ok := entry["score"].(float64); ok {
			faithfulness = score
		}
	}
	evalMap["overall_score"] = overall
	evalMap["faithfulness_score"] = faithfulness

	reqPayload := orEmpty(req.RequestPayload)
	safety, _ := reqPayload["safety"].(map[string]any)
	if safety == nil {
		safety = map[string]any{}
	}

	return map[string]any{
		"trace": map[string]any{
			"id":          trace.ID.String(),
			"status":      string(trace.Status),
			"model":       trace.Model,
			"environment": trace.Environment,
			"user_id":     trace.UserID,
			"session_id":  trace.SessionID,
		},
		"request":     reqPayload,
		"response":    orEmpty(req.ResponsePayload),
		"input_text":  deref(trace.InputText),
		"output_text": deref(trace.OutputText),
		"evals":       evalMap,
		"safety":      safety,
	}, nil
}

// invokeJudges runs the heuristic and, unless it short-circuits, the LLM.
func (s *Service) invokeJudges(ctx context.Context, projectID, traceID uuid.UUID, evalCtx map[string]any) (judge.Verdict, []model.JudgeRun, bool, error) {
	heuristic, err := s.registry.Get(judge.HeuristicName)
	if err != nil {
		return judge.Verdict{}, nil, false, err
	}
	selected, err := heuristic.Judge(ctx, evalCtx)
	if err != nil {
		return judge.Verdict{}, nil, false, err
	}

	runs := []model.JudgeRun{newJudgeRun(projectID, traceID, judge.HeuristicName, selected)}

	shortCircuit := (selected.Action == model.ActionBlock || selected.Action == model.ActionEscalate) &&
		selected.Confidence >= 0.9
	if shortCircuit {
		return selected, runs, false, nil
	}

	llm, err := s.registry.Get(judge.LLMName)
	if err != nil {
		return judge.Verdict{}, nil, false, err
	}
	verdict, err := llm.Judge(ctx, evalCtx)
	if err != nil {
		return judge.Verdict{}, nil, false, err
	}
	runs = append(runs, newJudgeRun(projectID, traceID, judge.LLMName, verdict))
	return verdict, runs, true, nil
}

func newJudgeRun(projectID, traceID uuid.UUID, provider string, v judge.Verdict) model.JudgeRun {
	output, _ := verdictToMap(v)
	return model.JudgeRun{
		ID:         uuid.New(),
		ProjectID:  projectID,
		TraceID:    traceID,
		Provider:   provider,
		Model:      v.Model,
		Action:     v.Action,
		ReasonCode: v.ReasonCode,
		Confidence: v.Confidence,
		Output:     output,
		CreatedAt:  time.Now().UTC(),
	}
}

// writeJudgeSpan records the synthetic "Decision Judge" span and its audit
// event with idempotency keys derived from the decide request's key.
func (s *Service) writeJudgeSpan(ctx context.Context, st *storage.Store, projectID, traceID uuid.UUID, idemKey, policyVerKey string, selected model.JSONMap, policyResult policy.Result) error {
	now := time.Now().UTC()
	spanID := uuid.New()

	if err := st.InsertSpan(ctx, model.Span{
		ID:             spanID,
		ProjectID:      projectID,
		TraceID:        traceID,
		Name:           "Decision Judge",
		SpanType:       "judge",
		Status:         "success",
		StartTime:      now,
		EndTime:        &now,
		Attributes:     model.JSONMap{"policy_version": policyVerKey},
		IdempotencyKey: "judge-span:" + idemKey,
		CreatedAt:      now,
	}); err != nil {
		return err
	}

	return st.InsertSpanEvent(ctx, model.SpanEvent{
		ID:        uuid.New(),
		ProjectID: projectID,
		TraceID:   traceID,
		SpanID:    &spanID,
		EventType: model.EventGeneric,
		EventTime: now,
		Payload: model.JSONMap{
			"judge_output": selected,
			"policy_result": map[string]any{
				"matched":     policyResult.Matched,
				"action":      string(policyResult.Action),
				"reason_code": policyResult.ReasonCode,
				"severity":    policyResult.Severity,
			},
		},
		IdempotencyKey: "judge-event:" + idemKey,
		CreatedAt:      now,
	})
}

// verdictToMap round-trips a Verdict through JSON so it can live in a
// jsonb column exactly as it will be read back.
func verdictToMap(v judge.Verdict) (model.JSONMap, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("decision: encode verdict: %w", err)
	}
	var m model.JSONMap
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decision: decode verdict: %w", err)
	}
	return m, nil
}

func verdictFromMap(m model.JSONMap) (judge.Verdict, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return judge.Verdict{}, fmt.Errorf("decision: encode cached verdict: %w", err)
	}
	var v judge.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return judge.Verdict{}, fmt.Errorf("decision: decode cached verdict: %w", err)
	}
	return v, nil
}

func orEmpty(m model.JSONMap) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
