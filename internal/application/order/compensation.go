package order

import (
	"context"
	"errors"
	"fmt"

	dominv "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	domsaga "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/saga"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const actionManualReconciliation = "manual_reconciliation_required"

// CompensationReport says what the undo pass actually did.
type CompensationReport struct {
	Released       []string
	Restocked      []string
	Refunded       bool
	PaymentUnknown bool
}

// Compensator walks a saga log backwards and undoes each step once. It never
// retries a failed undo; failures are collected into a CompensationFailure.
type Compensator struct {
	sagas     domsaga.Store
	inventory InventoryPort
	payments  dompay.Gateway
	timeouts  Timeouts
	calls     *caller

	log      observability.Logger
	tracer   observability.Tracer
	failures observability.Counter
}

func NewCompensator(sagas domsaga.Store, inventory InventoryPort, payments dompay.Gateway, timeouts Timeouts, publisher domoutbox.Publisher, tel observability.Observability) *Compensator {
	log, tracer, metrics := observability.Resolve(tel)
	log = log.With(observability.F("service", orderService))
	return &Compensator{
		sagas:     sagas,
		inventory: inventory,
		payments:  payments,
		timeouts:  timeouts.withDefaults(),
		calls:     newCaller(log, metrics, publisher),
		log:       log,
		tracer:    tracer,
		failures:  metrics.Counter(observability.MCompensationFailures),
	}
}

// Compensate undoes every step recorded in sc, latest first, and persists the
// final saga status.
func (c *Compensator) Compensate(ctx context.Context, sc *domsaga.Context) (rep CompensationReport, err error) {
	ctx, span := c.tracer.Start(ctx, sagaSpanPrefix+"compensate",
		attribute.String("saga.id", sc.ID),
		attribute.String("order.id", sc.OrderID),
	)
	defer span.End()
	logger := logctx.FromOr(ctx, c.log).With(
		observability.F("saga_id", sc.ID),
		observability.F("order_id", sc.OrderID),
	)

	sc.SetStatus(domsaga.StatusCompensating)
	if err := c.sagas.Save(ctx, sc); err != nil {
		return rep, fmt.Errorf("saga: compensate: save: %w", err)
	}

	var failures []error
	released := make(map[string]bool)
	restocked := make(map[string]bool)
	paymentHandled := false

	restock := func(id string) {
		if restocked[id] {
			return
		}
		restocked[id] = true
		err := c.calls.do(ctx, domsaga.StepCompleteOrder, peerInventory, "restock", c.timeouts.Inventory, func(ctx context.Context) error {
			_, err := c.inventory.Restock(ctx, id, dominv.ReasonCompensation)
			return err
		})
		// A missing reservation was purged after confirmation; its stock
		// cannot be returned automatically.
		if err != nil {
			failures = append(failures, fmt.Errorf("restock %s: %w", id, err))
			return
		}
		rep.Restocked = append(rep.Restocked, id)
	}

	for _, e := range sc.Undoable() {
		switch e.Step {
		case domsaga.StepCompleteOrder:
			for _, id := range e.ConfirmedIDs {
				restock(id)
			}

		case domsaga.StepProcessPayment:
			if paymentHandled {
				continue
			}
			paymentHandled = true
			last, _ := sc.Last(domsaga.StepProcessPayment)
			switch {
			case last.PaymentID != "" && (last.Outcome == domsaga.OutcomeCompleted || last.Unknown):
				if err := c.refund(ctx, last); err != nil {
					failures = append(failures, err)
				} else {
					rep.Refunded = true
				}
			case last.Outcome == domsaga.OutcomeStarted || last.Unknown:
				rep.PaymentUnknown = true
				failures = append(failures, fmt.Errorf("charge of %s %s: %w",
					last.Amount.String(), last.Currency, domsaga.ErrPaymentOutcomeUnknown))
			}

		case domsaga.StepReserveInventory:
			for _, id := range e.ReservationIDs {
				if released[id] || restocked[id] {
					continue
				}
				released[id] = true
				err := c.calls.do(ctx, domsaga.StepReserveInventory, peerInventory, "release", c.timeouts.Inventory, func(ctx context.Context) error {
					_, err := c.inventory.Release(ctx, id, dominv.ReasonCompensation)
					return err
				})
				var term *dominv.AlreadyTerminalError
				switch {
				case err == nil:
					rep.Released = append(rep.Released, id)
				case errors.Is(err, dominv.ErrReservationNotFound):
					// never created
				case errors.As(err, &term) && term.Status == dominv.ReservationConfirmed:
					restock(id)
				default:
					failures = append(failures, fmt.Errorf("release %s: %w", id, err))
				}
			}
		}
	}

	if len(failures) > 0 {
		cf := &domsaga.CompensationFailure{SagaID: sc.ID, OrderID: sc.OrderID, Failures: failures}
		sc.SetStatus(domsaga.StatusCompensationFailed)
		span.RecordError(cf)
		span.SetStatus(codes.Error, "COMPENSATION_FAILED")
		logger.Error("saga_compensation_failed",
			observability.F("failures", len(failures)),
			observability.F("error", cf.Error()),
			observability.F("action", actionManualReconciliation),
		)
		c.failures.Add(1)
		c.calls.publish(ctx, domsaga.EventCompensationFailed, domsaga.NewCompensationFailedEvent(cf))
		if err := c.sagas.Save(ctx, sc); err != nil {
			return rep, errors.Join(cf, fmt.Errorf("saga: compensate: save: %w", err))
		}
		return rep, cf
	}

	sc.SetStatus(domsaga.StatusCompensated)
	if err := c.sagas.Save(ctx, sc); err != nil {
		return rep, fmt.Errorf("saga: compensate: save: %w", err)
	}
	span.SetStatus(codes.Ok, "COMPENSATED")
	logger.Info("saga_compensated",
		observability.F("released", len(rep.Released)),
		observability.F("restocked", len(rep.Restocked)),
		observability.F("refunded", rep.Refunded),
	)
	return rep, nil
}

func (c *Compensator) refund(ctx context.Context, e domsaga.Entry) error {
	var status dompay.Status
	err := c.calls.do(ctx, domsaga.StepProcessPayment, peerPayment, "refund", c.timeouts.Payment, func(ctx context.Context) error {
		s, err := c.payments.Refund(ctx, e.PaymentID, e.Amount)
		status = s
		return err
	})
	if err != nil {
		return fmt.Errorf("refund %s: %w", e.PaymentID, err)
	}
	if status != dompay.StatusRefunded {
		return fmt.Errorf("refund %s: %w: provider answered %s", e.PaymentID, dompay.ErrRefundFailed, status)
	}
	return nil
}
