package subscription

import (
	"context"
	"io"
	"log"
	"time"

	"commercetools-b2b/internal/domain"
)

type dueLister interface {
	ListDueSubscriptions(ctx context.Context, before time.Time, limit int) ([]domain.Cart, error)
}

// OrderPlacer places an order from a subscription cart on the merchant's behalf.
type OrderPlacer interface {
	PlaceSubscriptionOrder(ctx context.Context, cart domain.Cart) (*domain.Order, error)
}

// RunResult summarizes one pass over the due subscription carts.
type RunResult struct {
	Due    int
	Placed int
	Failed int
}

// Runner places orders for subscription carts whose next delivery date has passed.
type Runner struct {
	carts     dueLister
	orders    OrderPlacer
	batchSize int
	logger    *log.Logger
	now       func() time.Time
}

func NewRunner(carts dueLister, orders OrderPlacer, batchSize int, logger *log.Logger) *Runner {
	if batchSize <= 0 {
		batchSize = 100
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Runner{carts: carts, orders: orders, batchSize: batchSize, logger: logger, now: time.Now}
}

// RunDue places one order per due cart. A failing cart is logged and the run
// moves on; only a failure to list the carts is returned.
func (r *Runner) RunDue(ctx context.Context) (RunResult, error) {
	due, err := r.carts.ListDueSubscriptions(ctx, r.now().UTC(), r.batchSize)
	if err != nil {
		return RunResult{}, err
	}
	res := RunResult{Due: len(due)}
	for _, cart := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		order, err := r.orders.PlaceSubscriptionOrder(ctx, cart)
		if err != nil {
			res.Failed++
			r.logger.Printf("subscription: place order cart=%s err=%v", cart.ID, err)
			continue
		}
		res.Placed++
		r.logger.Printf("subscription: placed order=%s number=%s cart=%s", order.ID, order.OrderNumber, cart.ID)
	}
	return res, nil
}
