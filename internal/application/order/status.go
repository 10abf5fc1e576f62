package order

import (
	"context"
	"fmt"

	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

// UpdateStatus records fulfillment progress after the saga handed the order
// over: PROCESSING -> SHIPPED -> DELIVERED. Every other target belongs to the
// saga or to Cancel and is refused.
func (o *Orchestrator) UpdateStatus(ctx context.Context, orderID string, status domorder.Status) (ord *domorder.Order, err error) {
	run := o.ins.Begin(ctx, useCaseStatus, "UpdateOrderStatus",
		[]observability.Field{
			observability.F("order_id", orderID),
			observability.F("target_status", string(status)),
		},
		attribute.String("order.id", orderID),
		attribute.String("order.target_status", string(status)),
	)
	ctx = run.Ctx
	defer func() {
		if ord != nil {
			run.Note(observability.F("order_status", string(ord.Status)))
		}
		run.Done(err, placeStatus(err))
	}()

	if status != domorder.StatusShipped && status != domorder.StatusDelivered {
		err = domorder.ErrInvalidStateTransition
		return nil, fmt.Errorf("order: update %s to %s: %w", orderID, status, err)
	}

	ord, err = o.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order: update status: %w", err)
	}
	if ord.Status == status {
		run.Outcome(outcomeNoop, "ALREADY_"+string(status))
		return ord, nil
	}
	if err = o.advance(ctx, ord, status, ""); err != nil {
		return nil, fmt.Errorf("order: update %s to %s: %w", orderID, status, err)
	}
	return ord, nil
}

// List returns orders matching f, newest first.
func (o *Orchestrator) List(ctx context.Context, f domorder.Filter) ([]*domorder.Order, error) {
	orders, err := o.orders.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("order: list: %w", err)
	}
	return orders, nil
}
