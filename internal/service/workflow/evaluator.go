package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/diegoholiveira/jsonlogic/v3"
)

// Evaluator decides a single rule against a data context.
type Evaluator interface {
	Evaluate(ctx context.Context, rule json.RawMessage, data map[string]interface{}) (bool, error)
}

// JSONLogicEvaluator evaluates rules written in JSON Logic. A rule stored as
// a JSON string holding the expression is unwrapped first.
type JSONLogicEvaluator struct{}

func (JSONLogicEvaluator) Evaluate(ctx context.Context, rule json.RawMessage, data map[string]interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var expr interface{}
	if err := json.Unmarshal(rule, &expr); err != nil {
		return false, fmt.Errorf("decode rule: %w", err)
	}
	if s, ok := expr.(string); ok {
		if err := json.Unmarshal([]byte(s), &expr); err != nil {
			return false, fmt.Errorf("decode rule string: %w", err)
		}
	}
	if _, ok := expr.(map[string]interface{}); !ok {
		return false, fmt.Errorf("rule must be an object, got %T", expr)
	}
	out, err := jsonlogic.ApplyInterface(expr, data)
	if err != nil {
		return false, err
	}
	return truthy(out), nil
}

// truthy follows JSON Logic truthiness.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	default:
		return true
	}
}
