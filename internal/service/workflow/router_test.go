package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync/atomic"
	"testing"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/identity"
	"commercetools-b2b/internal/mapper"
	"commercetools-b2b/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const projectID = "proj-1"

func unitWithRules(rules interface{}) domain.BusinessUnit {
	u := domain.BusinessUnit{Key: "acme", TopLevelUnitKey: "acme", ProjectID: projectID}
	if rules != nil {
		u.Custom = domain.CustomFields{domain.FieldWorkflows: rules}
	}
	return u
}

func sampleCart(totalCents int64) domain.Cart {
	c := domain.Cart{
		ID:              "cart-1",
		BusinessUnitKey: "acme",
		Currency:        "USD",
		LineItems:       []domain.LineItem{{ID: "l1", SKU: "A", Quantity: 1, UnitPriceCents: totalCents}},
	}
	c.Recalculate()
	return c
}

func newRouter(unit domain.BusinessUnit, logger *log.Logger) *Router {
	return NewRouter(memory.NewBusinessUnits(unit), JSONLogicEvaluator{}, mapper.DefaultCart{}, "pending-review", logger)
}

var org = identity.Organization{BusinessUnitKey: "acme", StoreKey: "s"}

func TestResolveReviewState_NoRulesNoReview(t *testing.T) {
	for _, amount := range []int64{0, 100, 10_000_000} {
		state, ok := newRouter(unitWithRules(nil), nil).ResolveReviewState(context.Background(), projectID, sampleCart(amount), org)
		assert.False(t, ok)
		assert.True(t, state.IsZero())
	}
}

func TestResolveReviewState_AlwaysTrueRuleReviews(t *testing.T) {
	rules := `[{"name":"always","expression":{"==":[1,1]}}]`
	for _, amount := range []int64{0, 100, 10_000_000} {
		state, ok := newRouter(unitWithRules(rules), nil).ResolveReviewState(context.Background(), projectID, sampleCart(amount), org)
		assert.True(t, ok)
		assert.Equal(t, domain.StateKey("pending-review"), state)
	}
}

func TestResolveReviewState_ThresholdRule(t *testing.T) {
	rules := []interface{}{
		map[string]interface{}{"name": "big", "expression": map[string]interface{}{">": []interface{}{map[string]interface{}{"var": "cart.totalPrice"}, 5000}}},
		map[string]interface{}{"name": "never", "expression": map[string]interface{}{"==": []interface{}{1, 2}}},
	}
	r := newRouter(unitWithRules(rules), nil)

	_, ok := r.ResolveReviewState(context.Background(), projectID, sampleCart(4_999_00), org)
	assert.False(t, ok)
	_, ok = r.ResolveReviewState(context.Background(), projectID, sampleCart(5_000_01), org)
	assert.True(t, ok)
}

func TestResolveReviewState_MalformedRulesFailOpen(t *testing.T) {
	cases := map[string]interface{}{
		"not json":        `[{"name":`,
		"not an object":   `[{"name":"x","expression":42}]`,
		"bad string rule": `[{"name":"x","expression":"{oops"}]`,
	}
	for name, rules := range cases {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			_, ok := newRouter(unitWithRules(rules), log.New(&buf, "", 0)).ResolveReviewState(context.Background(), projectID, sampleCart(1), org)
			assert.False(t, ok)
			assert.Contains(t, buf.String(), "workflow: fail-open")
		})
	}
}

func TestResolveReviewState_StringEncodedRule(t *testing.T) {
	rules := `[{"name":"prebuy","expression":"{\"==\":[{\"var\":\"cart.currency\"},\"USD\"]}"}]`
	_, ok := newRouter(unitWithRules(rules), nil).ResolveReviewState(context.Background(), projectID, sampleCart(1), org)
	assert.True(t, ok)
}

type countingEvaluator struct {
	calls  atomic.Int32
	result bool
	fail   string
}

func (e *countingEvaluator) Evaluate(_ context.Context, rule json.RawMessage, _ map[string]interface{}) (bool, error) {
	e.calls.Add(1)
	if e.fail != "" && string(rule) == e.fail {
		return false, errors.New("boom")
	}
	return e.result, nil
}

func TestResolveReviewState_EvaluatesEveryRule(t *testing.T) {
	var rules []domain.WorkflowRule
	for i := 0; i < 20; i++ {
		rules = append(rules, domain.WorkflowRule{Name: "r", Expression: json.RawMessage(`{"==":[1,1]}`)})
	}
	raw, err := json.Marshal(rules)
	require.NoError(t, err)
	eval := &countingEvaluator{result: true}
	r := NewRouter(memory.NewBusinessUnits(unitWithRules(string(raw))), eval, nil, "pending-review", nil)

	_, ok := r.ResolveReviewState(context.Background(), projectID, sampleCart(1), org)

	assert.True(t, ok)
	assert.Equal(t, int32(20), eval.calls.Load())
}

func TestResolveReviewState_OneFailingRuleFailsOpen(t *testing.T) {
	rules := `[{"name":"ok","expression":{"==":[1,1]}},{"name":"bad","expression":{"bad":true}}]`
	eval := &countingEvaluator{result: true, fail: `{"bad":true}`}
	r := NewRouter(memory.NewBusinessUnits(unitWithRules(rules)), eval, nil, "pending-review", nil)

	_, ok := r.ResolveReviewState(context.Background(), projectID, sampleCart(1), org)

	assert.False(t, ok)
}

func TestResolveReviewState_UnknownUnitOrNoReviewState(t *testing.T) {
	r := newRouter(unitWithRules(`[{"name":"always","expression":{"==":[1,1]}}]`), nil)
	_, ok := r.ResolveReviewState(context.Background(), projectID, sampleCart(1), identity.Organization{BusinessUnitKey: "other"})
	assert.False(t, ok)

	r = NewRouter(memory.NewBusinessUnits(unitWithRules(`[{"name":"always","expression":{"==":[1,1]}}]`)), nil, nil, "", nil)
	_, ok = r.ResolveReviewState(context.Background(), projectID, sampleCart(1), org)
	assert.False(t, ok)
}
