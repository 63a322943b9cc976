package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"txindexer/pkg/models"
)

// Evaluator compiles and runs boolean validation rules over a transaction.
// Rules see three variables: tx (the transaction as a map), metadata and
// event_type.
type Evaluator struct {
	env *cel.Env
}

// Rule is a compiled boolean expression kept with its source text.
type Rule struct {
	Expression string
	program    cel.Program
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("event_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, err := e.Compile(expression)
	return err
}

// Compile checks that expression type-checks to bool and builds its program.
func (e *Evaluator) Compile(expression string) (*Rule, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Rule{Expression: expression, program: program}, nil
}

func (r *Rule) Evaluate(ctx context.Context, tx models.Transaction, eventType models.EventType) (bool, error) {
	vars := map[string]interface{}{
		"tx":         transactionToMap(tx),
		"metadata":   metadataOrEmpty(tx.Metadata),
		"event_type": string(eventType),
	}

	result, _, err := r.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func transactionToMap(tx models.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"id":               tx.ID,
		"user_id":          tx.UserID,
		"transaction_type": tx.TransactionType,
		"product":          tx.Product,
		"status":           tx.Status,
		"currency":         tx.Currency,
		"amount":           tx.Amount,
		"created_at":       tx.CreatedAt.Time,
		"metadata":         metadataOrEmpty(tx.Metadata),
	}
}

func metadataOrEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
