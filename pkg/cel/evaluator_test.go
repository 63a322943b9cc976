package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"txindexer/pkg/models"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestRuleExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range RuleExamples {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, eval.ValidateExpression(expr))
		})
	}
}

func TestCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{name: "bool comparison", expr: `tx.amount > 10.0`},
		{name: "metadata lookup", expr: `metadata.merchant_name == "Starbucks"`},
		{name: "not bool", expr: `tx.amount + 1.0`, wantError: true},
		{name: "syntax error", expr: `tx.amount >>> 1`, wantError: true},
		{name: "undefined variable", expr: `payload.amount > 1.0`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eval.Compile(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRuleEvaluate(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tx := models.Transaction{
		ID:       "tx-1",
		Amount:   25.0,
		Currency: "USD",
		Metadata: map[string]interface{}{"merchant_name": "Starbucks"},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{name: "amount within cap", expr: `tx.amount <= 100.0`, want: true},
		{name: "amount over cap", expr: `tx.amount > 100.0`, want: false},
		{name: "merchant present", expr: `has(metadata.merchant_name)`, want: true},
		{name: "event type", expr: `event_type == "updated"`, want: true},
		{name: "missing metadata key", expr: `has(metadata.peer_name)`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := eval.Compile(tt.expr)
			require.NoError(t, err)

			got, err := rule.Evaluate(context.Background(), tx, models.EventUpdated)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRuleEvaluateNilMetadata(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	rule, err := eval.Compile(`!has(metadata.wallet_address)`)
	require.NoError(t, err)

	ok, err := rule.Evaluate(context.Background(), models.Transaction{ID: "1"}, models.EventCreated)
	require.NoError(t, err)
	assert.True(t, ok)
}
