package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tracehub-ai/tracehub/internal/model"
)

// LLMName identifies the LLM-backed provider.
const LLMName = "llm"

// StubReasonCode marks verdicts produced by the deterministic stub when no
// endpoint is configured.
const StubReasonCode = "LLM_JUDGE_STUB"

// LLM posts the decision context to a configured judge endpoint and parses
// a strict verdict schema. With no endpoint it degrades to a deterministic
// stub keyed on overall_score.
type LLM struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewLLM builds the provider. endpoint may be empty to select the stub.
func NewLLM(endpoint, modelName string, timeout time.Duration) *LLM {
	return &LLM{
		endpoint: endpoint,
		model:    modelName,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name implements Provider.
func (l *LLM) Name() string { return LLMName }

// wireVerdict is the strict response schema required from the endpoint.
type wireVerdict struct {
	Action     string         `json:"action"`
	Confidence *float64       `json:"confidence"`
	ReasonCode string         `json:"reason_code"`
	Rationale  *string        `json:"rationale"`
	Signals    map[string]any `json:"signals"`
}

// Judge implements Provider. Network failures, non-2xx responses, and
// schema violations all surface as *ProviderError.
func (l *LLM) Judge(ctx context.Context, decisionCtx map[string]any) (Verdict, error) {
	if l.endpoint == "" {
		return l.stub(decisionCtx), nil
	}

	body, err := json.Marshal(map[string]any{
		"model":   l.model,
		"payload": decisionCtx,
	})
	if err != nil {
		return Verdict{}, &ProviderError{Provider: LLMName, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, &ProviderError{Provider: LLMName, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return Verdict{}, &ProviderError{Provider: LLMName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Verdict{}, &ProviderError{Provider: LLMName, Err: fmt.Errorf("endpoint returned %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Verdict{}, &ProviderError{Provider: LLMName, Err: err}
	}

	var wire wireVerdict
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Verdict{}, &ProviderError{Provider: LLMName, Err: fmt.Errorf("invalid verdict payload: %w", err)}
	}
	if wire.Action == "" || wire.ReasonCode == "" || wire.Confidence == nil {
		return Verdict{}, &ProviderError{Provider: LLMName, Err: fmt.Errorf("verdict missing required fields")}
	}
	if *wire.Confidence < 0 || *wire.Confidence > 1 {
		return Verdict{}, &ProviderError{Provider: LLMName, Err: fmt.Errorf("confidence %v out of range", *wire.Confidence)}
	}

	signals := wire.Signals
	if signals == nil {
		signals = map[string]any{}
	}
	modelName := l.model
	return Verdict{
		Action:     model.Action(wire.Action),
		ReasonCode: wire.ReasonCode,
		Confidence: *wire.Confidence,
		Signals:    signals,
		Rationale:  wire.Rationale,
		Model:      &modelName,
	}, nil
}

// stub returns the deterministic offline verdict: allow when the trace's
// mean evaluation score clears 0.5, otherwise ask for clarification.
func (l *LLM) stub(decisionCtx map[string]any) Verdict {
	evals, _ := decisionCtx["evals"].(map[string]any)
	overall := 0.8
	if f, ok := toFloat(evals["overall_score"]); ok {
		overall = f
	}
	action := model.ActionAllowAnswer
	if overall < 0.5 {
		action = model.ActionNeedClarification
	}
	rationale := "stubbed llm judge"
	modelName := l.model
	return Verdict{
		Action:     action,
		ReasonCode: StubReasonCode,
		Confidence: 0.65,
		Signals: map[string]any{
			"pii":                false,
			"financial_risk":     0.2,
			"hallucination_risk": max(0.0, 1.0-overall),
		},
		Rationale: &rationale,
		Model:     &modelName,
	}
}
