// Package workflow decides whether an order needs review before confirmation
// by evaluating the business unit's stored rules against the cart.
package workflow

import (
	"context"
	"errors"
	"io"
	"log"

	"commercetools-b2b/internal/domain"
	"commercetools-b2b/internal/identity"
	"commercetools-b2b/internal/mapper"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentRules = 8

type unitRepo interface {
	GetByKey(ctx context.Context, projectID, key string) (*domain.BusinessUnit, error)
}

type Router struct {
	units       unitRepo
	evaluator   Evaluator
	carts       mapper.CartMapper
	reviewState domain.StateKey
	logger      *log.Logger
}

func NewRouter(units unitRepo, evaluator Evaluator, carts mapper.CartMapper, reviewState string, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if evaluator == nil {
		evaluator = JSONLogicEvaluator{}
	}
	if carts == nil {
		carts = mapper.DefaultCart{}
	}
	return &Router{units: units, evaluator: evaluator, carts: carts, reviewState: domain.StateKey(reviewState), logger: logger}
}

// ResolveReviewState returns the review state when any rule of the
// organization's business unit matches the cart. Every rule is evaluated
// concurrently. Any failure to load, decode or evaluate the rule set means
// no review; the failure is logged.
func (r *Router) ResolveReviewState(ctx context.Context, projectID string, cart domain.Cart, org identity.Organization) (domain.StateKey, bool) {
	if r.reviewState.IsZero() {
		return "", false
	}
	unitKey := org.BusinessUnitKey
	if unitKey == "" {
		unitKey = cart.BusinessUnitKey
	}
	if unitKey == "" {
		return "", false
	}

	unit, err := r.units.GetByKey(ctx, projectID, unitKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			r.logger.Printf("workflow: fail-open load unit=%s err=%v", unitKey, err)
		}
		return "", false
	}
	rules, err := unit.WorkflowRules()
	if err != nil {
		r.logger.Printf("workflow: fail-open decode unit=%s err=%v", unitKey, err)
		return "", false
	}
	if len(rules) == 0 {
		return "", false
	}

	input, err := r.carts.RuleInput(cart)
	if err != nil {
		r.logger.Printf("workflow: fail-open input cart=%s err=%v", cart.ID, err)
		return "", false
	}

	matched := make([]bool, len(rules))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRules)
	for i, rule := range rules {
		g.Go(func() error {
			ok, err := r.evaluator.Evaluate(gctx, rule.Expression, input)
			if err != nil {
				return &ruleError{name: rule.Name, err: err}
			}
			matched[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Printf("workflow: fail-open evaluate unit=%s cart=%s err=%v", unitKey, cart.ID, err)
		return "", false
	}

	for i, ok := range matched {
		if ok {
			r.logger.Printf("workflow: review unit=%s cart=%s rule=%s state=%s", unitKey, cart.ID, rules[i].Name, r.reviewState)
			return r.reviewState, true
		}
	}
	return "", false
}

type ruleError struct {
	name string
	err  error
}

func (e *ruleError) Error() string { return "rule " + e.name + ": " + e.err.Error() }

func (e *ruleError) Unwrap() error { return e.err }
