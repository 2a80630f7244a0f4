package judge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracehub-ai/tracehub/internal/model"
)

func TestHeuristicPIIEscalates(t *testing.T) {
	v, err := Heuristic{}.Judge(context.Background(), map[string]any{
		"input_text":  "My SSN is 123-45-6789",
		"output_text": "I cannot help with that",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ActionEscalate, v.Action)
	assert.Equal(t, "PII_DETECTED", v.ReasonCode)
	assert.Equal(t, 0.95, v.Confidence)
	assert.Equal(t, true, v.Signals["pii"])
}

func TestHeuristicFinancialWarning(t *testing.T) {
	v, err := Heuristic{}.Judge(context.Background(), map[string]any{
		"input_text":  "what should I buy",
		"output_text": "Here is some Investment Advice for you",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ActionAllowWithWarning, v.Action)
	assert.Equal(t, "FINANCIAL_RISK", v.ReasonCode)
	assert.Equal(t, 0.7, v.Confidence)
	assert.Equal(t, 0.9, v.Signals["financial_risk"])
}

func TestHeuristicPIIWinsOverFinancial(t *testing.T) {
	v, err := Heuristic{}.Judge(context.Background(), map[string]any{
		"input_text":  "here is my credit card number",
		"output_text": "investment advice follows",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ActionEscalate, v.Action)
	assert.Equal(t, "PII_DETECTED", v.ReasonCode)
}

func TestHeuristicHallucinationRisk(t *testing.T) {
	v, err := Heuristic{}.Judge(context.Background(), map[string]any{
		"input_text":  "tell me about the moon",
		"output_text": "the moon is made of cheese",
		"evals":       map[string]any{"faithfulness_score": 0.1},
	})
	require.NoError(t, err)

	assert.Equal(t, model.ActionNeedClarification, v.Action)
	assert.Equal(t, "HALLUCINATION_RISK", v.ReasonCode)
	assert.InDelta(t, 0.9, v.Signals["hallucination_risk"], 1e-9)
}

func TestHeuristicDefaultAllow(t *testing.T) {
	v, err := Heuristic{}.Judge(context.Background(), map[string]any{
		"input_text":  "what is 2+2",
		"output_text": "4",
	})
	require.NoError(t, err)

	assert.Equal(t, model.ActionAllowAnswer, v.Action)
	assert.Equal(t, "HEURISTIC_OK", v.ReasonCode)
	assert.Equal(t, 0.7, v.Confidence)
	require.NotNil(t, v.Model)
	assert.Equal(t, HeuristicModel, *v.Model)
}

func TestHeuristicSignalsAlwaysPresent(t *testing.T) {
	v, err := Heuristic{}.Judge(context.Background(), map[string]any{})
	require.NoError(t, err)

	for _, key := range []string{"pii", "financial_risk", "hallucination_risk"} {
		assert.Contains(t, v.Signals, key)
	}
	// Faithfulness defaults to 0.8 when no evals exist.
	assert.InDelta(t, 0.2, v.Signals["hallucination_risk"], 1e-9)
}
