package tracehub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracehub-ai/tracehub/internal/judge"
	"github.com/tracehub-ai/tracehub/internal/model"
)

type fakeProvider struct {
	name    string
	verdict JudgeVerdict
	err     error
}

func (f fakeProvider) Name() string { return f.name }

func (f fakeProvider) Judge(ctx context.Context, decisionCtx map[string]any) (JudgeVerdict, error) {
	return f.verdict, f.err
}

func TestJudgeProviderAdapterConvertsVerdict(t *testing.T) {
	adapter := &judgeProviderAdapter{provider: fakeProvider{
		name: "custom",
		verdict: JudgeVerdict{
			Action:     "BLOCK",
			ReasonCode: "CUSTOM_RULE",
			Confidence: 0.85,
			Signals:    map[string]any{"pii": true},
			Rationale:  "matched internal rule",
			Model:      "custom-v1",
		},
	}}

	v, err := adapter.Judge(context.Background(), map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, model.ActionBlock, v.Action)
	assert.Equal(t, "CUSTOM_RULE", v.ReasonCode)
	assert.Equal(t, 0.85, v.Confidence)
	assert.Equal(t, true, v.Signals["pii"])
	require.NotNil(t, v.Rationale)
	assert.Equal(t, "matched internal rule", *v.Rationale)
	require.NotNil(t, v.Model)
	assert.Equal(t, "custom-v1", *v.Model)
}

func TestJudgeProviderAdapterOmitsEmptyOptionals(t *testing.T) {
	adapter := &judgeProviderAdapter{provider: fakeProvider{
		name:    "custom",
		verdict: JudgeVerdict{Action: "ALLOW_ANSWER", ReasonCode: "OK", Confidence: 0.5},
	}}

	v, err := adapter.Judge(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, v.Rationale)
	assert.Nil(t, v.Model)
}

func TestJudgeProviderAdapterWrapsErrors(t *testing.T) {
	adapter := &judgeProviderAdapter{provider: fakeProvider{
		name: "flaky",
		err:  errors.New("upstream down"),
	}}

	_, err := adapter.Judge(context.Background(), map[string]any{})

	var perr *judge.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "flaky", perr.Provider)
}

func TestJudgeProviderAdapterRegisters(t *testing.T) {
	adapter := &judgeProviderAdapter{provider: fakeProvider{name: "custom"}}
	registry := judge.NewRegistry(judge.Heuristic{}, adapter)

	p, err := registry.Get("custom")
	require.NoError(t, err)
	assert.Equal(t, "custom", p.Name())
}
