package judge

import (
	"context"
	"strings"

	"github.com/tracehub-ai/tracehub/internal/model"
)

// HeuristicName identifies the built-in heuristic provider.
const HeuristicName = "heuristic"

// HeuristicModel is the model label recorded for heuristic judge runs.
const HeuristicModel = "rules-v1"

// piiTokens are substrings whose presence in input text escalates
// immediately, case-insensitively.
var piiTokens = []string{"ssn", "credit card", "passport"}

// Heuristic is a synchronous pure-function judge over the context map.
// It never fails.
type Heuristic struct{}

// Name implements Provider.
func (Heuristic) Name() string { return HeuristicName }

// Judge computes three signals (pii, financial_risk, hallucination_risk)
// and picks the first tripped threshold in that order. All three signals
// are always reported so policy rules can reference them.
func (Heuristic) Judge(_ context.Context, decisionCtx map[string]any) (Verdict, error) {
	input := strings.ToLower(str(decisionCtx["input_text"]))
	output := strings.ToLower(str(decisionCtx["output_text"]))
	evals, _ := decisionCtx["evals"].(map[string]any)

	pii := false
	for _, tok := range piiTokens {
		if strings.Contains(input, tok) {
			pii = true
			break
		}
	}

	financialRisk := 0.1
	if strings.Contains(output, "investment advice") {
		financialRisk = 0.9
	}

	faithfulness := 0.8
	if f, ok := toFloat(evals["faithfulness_score"]); ok {
		faithfulness = f
	}
	hallucinationRisk := 1.0 - faithfulness

	var action model.Action
	var reason string
	switch {
	case pii:
		action, reason = model.ActionEscalate, "PII_DETECTED"
	case financialRisk > 0.85:
		action, reason = model.ActionAllowWithWarning, "FINANCIAL_RISK"
	case hallucinationRisk > 0.8:
		action, reason = model.ActionNeedClarification, "HALLUCINATION_RISK"
	default:
		action, reason = model.ActionAllowAnswer, "HEURISTIC_OK"
	}

	confidence := 0.7
	if action == model.ActionEscalate || action == model.ActionBlock {
		confidence = 0.95
	}

	rationale := "heuristic pre-check"
	modelName := HeuristicModel
	return Verdict{
		Action:     action,
		ReasonCode: reason,
		Confidence: confidence,
		Signals: map[string]any{
			"pii":                pii,
			"financial_risk":     financialRisk,
			"hallucination_risk": hallucinationRisk,
		},
		Rationale: &rationale,
		Model:     &modelName,
	}, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
