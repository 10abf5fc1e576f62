package order

import (
	"context"
	"errors"
	"fmt"

	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domsaga "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/saga"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

type CancelResult struct {
	Order *domorder.Order
	// Pending is set when a running saga was signalled; it compensates at its
	// next step boundary.
	Pending bool
}

// Cancel stops an order. A running saga is interrupted unless it is already
// committing; a PROCESSING order is refunded and its stock returned.
func (o *Orchestrator) Cancel(ctx context.Context, orderID, reason string) (res *CancelResult, err error) {
	run := o.ins.Begin(ctx, useCaseCancel, "CancelOrder",
		[]observability.Field{observability.F("order_id", orderID)},
		attribute.String("order.id", orderID),
	)
	ctx = run.Ctx
	defer func() {
		if res != nil && res.Order != nil {
			run.Note(
				observability.F("order_status", string(res.Order.Status)),
				observability.F("pending", res.Pending),
			)
		}
		run.Done(err, placeStatus(err))
	}()

	if reason == "" {
		reason = reasonCancelled
	}

	ord, err := o.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order: cancel: %w", err)
	}
	if ord.Status == domorder.StatusCancelled {
		run.Outcome(outcomeNoop, "ALREADY_CANCELLED")
		return &CancelResult{Order: ord}, nil
	}

	live, err := o.runs.cancel(orderID)
	if err != nil {
		return nil, fmt.Errorf("order: cancel %s: %w", orderID, err)
	}
	if live {
		return &CancelResult{Order: ord, Pending: true}, nil
	}

	if ord.Status != domorder.StatusProcessing {
		err = domorder.ErrNotCancellable
		return nil, fmt.Errorf("order: cancel %s (%s): %w", orderID, ord.Status, err)
	}
	if err = o.cancelProcessing(ctx, ord, reason); err != nil {
		return nil, err
	}
	return &CancelResult{Order: ord}, nil
}

// cancelProcessing replays the completed saga through the Compensator, which
// restocks the confirmed reservations and refunds the payment. The order is
// CANCELLED even when part of the undo failed; the failure is returned.
func (o *Orchestrator) cancelProcessing(ctx context.Context, ord *domorder.Order, reason string) error {
	sc, err := o.sagas.Get(ctx, SagaID(ord.ID))
	if err != nil {
		return fmt.Errorf("order: cancel %s: load saga: %w", ord.ID, err)
	}

	ctx = context.WithoutCancel(ctx)
	rep, cerr := o.compensator.Compensate(ctx, sc)
	var cf *domsaga.CompensationFailure
	if cerr != nil && !errors.As(cerr, &cf) {
		return fmt.Errorf("order: cancel %s: %w", ord.ID, cerr)
	}
	if rep.Refunded {
		ord.RecordPayment(ord.PaymentID, domorder.PaymentRefunded)
	}
	if err := o.advance(ctx, ord, domorder.StatusCancelled, reason); err != nil {
		return fmt.Errorf("order: cancel %s: %w", ord.ID, errors.Join(cerr, err))
	}
	if cerr != nil {
		return fmt.Errorf("order: cancel %s: %w", ord.ID, cerr)
	}
	return nil
}

func (o *Orchestrator) Get(ctx context.Context, id string) (*domorder.Order, error) {
	ord, err := o.orders.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("order: get: %w", err)
	}
	return ord, nil
}

// Saga returns the step log of an order's saga.
func (o *Orchestrator) Saga(ctx context.Context, orderID string) (*domsaga.Context, error) {
	sc, err := o.sagas.Get(ctx, SagaID(orderID))
	if err != nil {
		return nil, fmt.Errorf("order: saga: %w", err)
	}
	return sc, nil
}

// IsNotCancellable groups the two refusals Cancel can return.
func IsNotCancellable(err error) bool {
	return errors.Is(err, domorder.ErrNotCancellable) || errors.Is(err, domsaga.ErrCommitInProgress)
}
