package inventory

import (
	"context"
	"fmt"

	dominv "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	domsaga "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/saga"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

const workerService = "alert_worker"

// Middleware decorates a handler registered under useCase.
type Middleware func(useCase string, h domoutbox.Handler) domoutbox.Handler

// AlertWorker turns low-stock and compensation-failure events into operator
// visible log lines and counters.
type AlertWorker struct {
	subscriber domoutbox.Subscriber
	middleware Middleware

	log        observability.Logger
	reqCounter observability.Counter // usecase_requests_total{use_case,outcome}
}

func NewAlertWorker(subscriber domoutbox.Subscriber, middleware Middleware, tel observability.Observability) *AlertWorker {
	log, _, metrics := observability.Resolve(tel)
	if middleware == nil {
		middleware = func(_ string, h domoutbox.Handler) domoutbox.Handler { return h }
	}
	return &AlertWorker{
		subscriber: subscriber,
		middleware: middleware,
		log:        log.With(observability.F("service", workerService)),
		reqCounter: metrics.Counter(observability.MUsecaseRequests),
	}
}

func (w *AlertWorker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(dominv.EventLowStock, w.middleware("alert.low_stock", w.handleLowStock))
	w.subscriber.Subscribe(domsaga.EventCompensationFailed, w.middleware("alert.compensation_failed", w.handleCompensationFailed))
}

func (w *AlertWorker) handleLowStock(ctx context.Context, e domoutbox.Event) error {
	const useCase = "alert.low_stock"
	var evt dominv.LowStockAlertEvent
	if err := decode(e, &evt); err != nil {
		w.count(useCase, "ignored")
		return err
	}

	logctx.FromOr(ctx, w.log).Warn("low_stock_alert",
		observability.F("alert_id", evt.AlertID),
		observability.F("alert_type", string(evt.AlertType)),
		observability.F("sku", evt.ProductSKU),
		observability.F("warehouse", evt.WarehouseLocation),
		observability.F("current_quantity", evt.CurrentQuantity),
		observability.F("threshold_quantity", evt.ThresholdQuantity),
		observability.F("message", evt.Message),
	)
	w.count(useCase, "success")
	return nil
}

func (w *AlertWorker) handleCompensationFailed(ctx context.Context, e domoutbox.Event) error {
	const useCase = "alert.compensation_failed"
	var evt domsaga.CompensationFailedEvent
	if err := decode(e, &evt); err != nil {
		w.count(useCase, "ignored")
		return err
	}

	logctx.FromOr(ctx, w.log).Error("saga_compensation_failed",
		observability.F("saga_id", evt.SagaID),
		observability.F("order_id", evt.OrderID),
		observability.F("failures", evt.Failures),
		observability.F("action", "manual_reconciliation_required"),
	)
	w.count(useCase, "success")
	return nil
}

// decode accepts either the typed event or its outbox message.
func decode[T domoutbox.Event](e domoutbox.Event, dst *T) error {
	switch v := e.(type) {
	case T:
		*dst = v
		return nil
	case domoutbox.Message:
		if _, err := v.Decode(dst); err != nil {
			return fmt.Errorf("alert worker: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("alert worker: unexpected event %T", e)
	}
}

func (w *AlertWorker) count(useCase, outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}
