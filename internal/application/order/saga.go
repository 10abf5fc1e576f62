package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	domcart "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/cart"
	dominv "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	domsaga "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/saga"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService   = "order-service"
	sagaSpanPrefix = "saga."

	useCasePlace   = "order.place"
	useCaseCancel  = "order.cancel"
	useCaseRecover = "order.recover"
	useCaseStatus  = "order.update_status"

	DefaultHold         = 30 * time.Minute
	DefaultRecoverEvery = time.Minute

	outcomeReplayed = "replayed"
	outcomeNoop     = "noop"

	reasonCancelled = "cancelled"
	reasonRecovered = "recovered_after_restart"
)

type Config struct {
	Timeouts Timeouts
	// Hold is how long each line stays reserved while the saga runs.
	Hold time.Duration
	// StaleAfter is how long a saga must go without a save before Recover
	// treats its owner as gone. It defaults to Hold plus the longest timeout.
	StaleAfter time.Duration
	// RecoverEvery is the interval of RunRecovery.
	RecoverEvery time.Duration
	Now          func() time.Time
}

// Leader gates recovery to one instance at a time. A nil Leader means every
// instance recovers.
type Leader interface {
	IsLeader(ctx context.Context) (bool, error)
}

type Dependencies struct {
	Orders    domorder.Repository
	Sagas     domsaga.Store
	Inventory InventoryPort
	Payments  dompay.Gateway
	Cart      domcart.Clearer
	Publisher domoutbox.Publisher
	IDs       IDGenerator
	Leader    Leader
}

// Orchestrator drives the fulfillment saga of each order: reserve inventory,
// charge, clear the cart, confirm. A failing step hands the saga log to the
// Compensator.
type Orchestrator struct {
	orders    domorder.Repository
	sagas     domsaga.Store
	inventory InventoryPort
	payments  dompay.Gateway
	cart      domcart.Clearer
	ids       IDGenerator
	leader    Leader

	cfg         Config
	ins         application.Instrumentation
	calls       *caller
	compensator *Compensator
	runs        *runs
}

func NewOrchestrator(deps Dependencies, cfg Config, tel observability.Observability) *Orchestrator {
	cfg.Timeouts = cfg.Timeouts.withDefaults()
	if cfg.Hold <= 0 {
		cfg.Hold = DefaultHold
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = cfg.Hold + cfg.Timeouts.longest()
	}
	if cfg.RecoverEvery <= 0 {
		cfg.RecoverEvery = DefaultRecoverEvery
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.IDs == nil {
		deps.IDs = UUIDs()
	}
	ins := application.NewInstrumentation(orderService, tel)
	return &Orchestrator{
		orders:      deps.Orders,
		sagas:       deps.Sagas,
		inventory:   deps.Inventory,
		payments:    deps.Payments,
		cart:        deps.Cart,
		ids:         deps.IDs,
		leader:      deps.Leader,
		cfg:         cfg,
		ins:         ins,
		calls:       newCaller(ins.Log, ins.Metrics, deps.Publisher),
		compensator: NewCompensator(deps.Sagas, deps.Inventory, deps.Payments, cfg.Timeouts, deps.Publisher, tel),
		runs:        newRuns(),
	}
}

type PlaceOrderInput struct {
	UserID         string
	IdempotencyKey string
	Currency       string
	Items          []domorder.Item
}

type PlaceOrderResult struct {
	Order      *domorder.Order
	SagaID     string
	SagaStatus domsaga.Status
	Replayed   bool
}

// storeError marks a failed write to the order or saga store. The saga stops
// where it is and is left for recovery.
type storeError struct{ err error }

func (e *storeError) Error() string { return "order: store: " + e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

// SagaID is the saga id of an order. It is derived so a replayed request and
// recovery find the same saga.
func SagaID(orderID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("saga:"+orderID)).String()
}

func reservationID(sagaID string, line int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(sagaID+":"+strconv.Itoa(line))).String()
}

// PlaceOrder creates the order and runs its saga to a terminal state. Business
// failures come back as a CANCELLED order with a nil error; the error is set
// for invalid input, store failures and failed compensation.
func (o *Orchestrator) PlaceOrder(ctx context.Context, in PlaceOrderInput) (res *PlaceOrderResult, err error) {
	run := o.ins.Begin(ctx, useCasePlace, "PlaceOrder",
		[]observability.Field{
			observability.F("user_id", in.UserID),
			observability.F("items", len(in.Items)),
		},
		attribute.String("user.id", in.UserID),
		attribute.Int("order.items", len(in.Items)),
	)
	ctx = run.Ctx
	defer func() {
		if res != nil && res.Order != nil {
			run.Note(
				observability.F("order_id", res.Order.ID),
				observability.F("order_status", string(res.Order.Status)),
				observability.F("saga_status", string(res.SagaStatus)),
			)
			if res.Replayed {
				run.Outcome(outcomeReplayed, "REPLAYED")
			}
		}
		run.Done(err, placeStatus(err))
	}()

	if strings.TrimSpace(in.UserID) == "" {
		err = domorder.ErrUserRequired
		return nil, fmt.Errorf("order: place: %w", err)
	}
	if in.IdempotencyKey != "" {
		if res, err = o.replay(ctx, in); res != nil || err != nil {
			return res, err
		}
	}

	ord, err := domorder.New(o.ids.NewID(), in.UserID, in.Currency, in.Items)
	if err != nil {
		return nil, fmt.Errorf("order: place: %w", err)
	}
	ord.IdempotencyKey = in.IdempotencyKey
	if err = o.orders.Insert(ctx, ord); err != nil {
		if errors.Is(err, domorder.ErrConflict) && in.IdempotencyKey != "" {
			if res, err = o.replay(ctx, in); res != nil || err != nil {
				return res, err
			}
		}
		return nil, fmt.Errorf("order: place: insert: %w", err)
	}
	run.Span.SetAttributes(attribute.String("order.id", ord.ID))

	sc := domsaga.New(SagaID(ord.ID), ord.ID)
	if err = o.sagas.Save(ctx, sc); err != nil {
		return nil, fmt.Errorf("order: place: save saga: %w", err)
	}

	err = o.execute(ctx, ord, sc)
	return &PlaceOrderResult{Order: ord, SagaID: sc.ID, SagaStatus: sc.Status}, err
}

// replay returns the order already placed under the request's idempotency
// key, or nil when there is none.
func (o *Orchestrator) replay(ctx context.Context, in PlaceOrderInput) (*PlaceOrderResult, error) {
	existing, err := o.orders.FindByIdempotency(ctx, in.UserID, in.IdempotencyKey)
	if errors.Is(err, domorder.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("order: place: idempotency lookup: %w", err)
	}
	res := &PlaceOrderResult{Order: existing, SagaID: SagaID(existing.ID), Replayed: true}
	if sc, err := o.sagas.Get(ctx, res.SagaID); err == nil {
		res.SagaStatus = sc.Status
	}
	return res, nil
}

// execute runs the steps detached from the caller's cancellation. Cancel is
// observed only between steps, and not at all once the saga commits.
func (o *Orchestrator) execute(ctx context.Context, ord *domorder.Order, sc *domsaga.Context) error {
	runCtx := logctx.Enrich(context.WithoutCancel(ctx), o.ins.Log,
		observability.F("order_id", ord.ID),
		observability.F("saga_id", sc.ID),
	)
	o.runs.add(ord.ID)
	defer o.runs.remove(ord.ID)

	if err := o.reserveInventory(runCtx, ord, sc); err != nil {
		return o.fail(runCtx, ord, sc, domorder.StatusInventoryFailed, err)
	}
	if o.runs.cancelled(ord.ID) {
		return o.abort(runCtx, ord, sc, "", reasonCancelled)
	}

	if err := o.processPayment(runCtx, ord, sc); err != nil {
		return o.fail(runCtx, ord, sc, domorder.StatusPaymentFailed, err)
	}
	if o.runs.cancelled(ord.ID) {
		return o.abort(runCtx, ord, sc, "", reasonCancelled)
	}

	if err := o.clearCart(runCtx, ord, sc); err != nil {
		return o.fail(runCtx, ord, sc, "", err)
	}
	if !o.runs.commit(ord.ID) {
		return o.abort(runCtx, ord, sc, "", reasonCancelled)
	}

	if err := o.completeOrder(runCtx, ord, sc); err != nil {
		return o.fail(runCtx, ord, sc, "", err)
	}
	return nil
}

// fail routes a step error: store failures stop the saga in place, everything
// else compensates.
func (o *Orchestrator) fail(ctx context.Context, ord *domorder.Order, sc *domsaga.Context, status domorder.Status, err error) error {
	var se *storeError
	if errors.As(err, &se) {
		logctx.FromOr(ctx, o.ins.Log).Error("saga_store_failed",
			observability.F("saga_id", sc.ID),
			observability.F("order_id", sc.OrderID),
			observability.F("error", err.Error()),
		)
		return err
	}
	if o.runs.cancelled(sc.OrderID) {
		return o.abort(ctx, ord, sc, "", reasonCancelled)
	}
	return o.abort(ctx, ord, sc, status, failureReason(err))
}

func (o *Orchestrator) startStep(ctx context.Context, step domsaga.Step, sc *domsaga.Context) (context.Context, trace.Span) {
	return o.ins.Tracer.Start(ctx, sagaSpanPrefix+string(step),
		attribute.String("saga.id", sc.ID),
		attribute.String("order.id", sc.OrderID),
	)
}

func endStep(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, failureReason(err))
	} else {
		span.SetStatus(codes.Ok, "OK")
	}
	span.End()
}

func (o *Orchestrator) save(ctx context.Context, sc *domsaga.Context) error {
	if err := o.sagas.Save(context.WithoutCancel(ctx), sc); err != nil {
		return &storeError{err: err}
	}
	return nil
}

func (o *Orchestrator) reserveInventory(ctx context.Context, ord *domorder.Order, sc *domsaga.Context) (err error) {
	ctx, span := o.startStep(ctx, domsaga.StepReserveInventory, sc)
	defer func() { endStep(span, err) }()

	ids := make([]string, len(ord.Items))
	for i := range ord.Items {
		ids[i] = reservationID(sc.ID, i)
	}
	sc.Append(domsaga.Entry{Step: domsaga.StepReserveInventory, Outcome: domsaga.OutcomeStarted, ReservationIDs: ids})
	if err = o.save(ctx, sc); err != nil {
		return err
	}

	for i, it := range ord.Items {
		err = o.calls.do(ctx, domsaga.StepReserveInventory, peerInventory, "reserve", o.cfg.Timeouts.Inventory, func(ctx context.Context) error {
			_, err := o.inventory.Reserve(ctx, dominv.ReserveRequest{
				ReservationID: ids[i],
				OrderID:       ord.ID,
				SKU:           it.SKU,
				Warehouse:     it.Warehouse,
				Quantity:      it.Quantity,
				Hold:          o.cfg.Hold,
			})
			return err
		})
		if err != nil {
			// The failing line is included: a timed-out reserve may still have landed.
			sc.Append(domsaga.Entry{
				Step:           domsaga.StepReserveInventory,
				Outcome:        domsaga.OutcomeFailed,
				ReservationIDs: ids[:i+1],
				Error:          err.Error(),
			})
			if serr := o.save(ctx, sc); serr != nil {
				return serr
			}
			return fmt.Errorf("order: reserve %s: %w", it.SKU, err)
		}
	}

	ord.ReservationIDs = ids
	sc.Append(domsaga.Entry{Step: domsaga.StepReserveInventory, Outcome: domsaga.OutcomeCompleted, ReservationIDs: ids})
	if err = o.save(ctx, sc); err != nil {
		return err
	}
	return o.advance(ctx, ord, domorder.StatusInventoryReserved, "")
}

func (o *Orchestrator) processPayment(ctx context.Context, ord *domorder.Order, sc *domsaga.Context) (err error) {
	ctx, span := o.startStep(ctx, domsaga.StepProcessPayment, sc)
	defer func() { endStep(span, err) }()

	ord.RecordPayment("", domorder.PaymentPending)
	if err = o.advance(ctx, ord, domorder.StatusPaymentProcessing, ""); err != nil {
		return err
	}
	sc.Append(domsaga.Entry{
		Step:     domsaga.StepProcessPayment,
		Outcome:  domsaga.OutcomeStarted,
		Amount:   ord.TotalAmount,
		Currency: ord.Currency,
	})
	if err = o.save(ctx, sc); err != nil {
		return err
	}

	var charge dompay.Charge
	err = o.calls.do(ctx, domsaga.StepProcessPayment, peerPayment, "charge", o.cfg.Timeouts.Payment, func(ctx context.Context) error {
		c, err := o.payments.Charge(ctx, ord.ID, ord.TotalAmount, ord.Currency)
		charge = c
		return err
	})
	if err == nil && charge.Status != dompay.StatusCompleted {
		err = &dompay.DeclinedError{OrderID: ord.ID, Reason: string(charge.Status)}
	}
	if err != nil {
		sc.Append(domsaga.Entry{
			Step:      domsaga.StepProcessPayment,
			Outcome:   domsaga.OutcomeFailed,
			PaymentID: charge.PaymentID,
			Amount:    ord.TotalAmount,
			Currency:  ord.Currency,
			Error:     err.Error(),
			Unknown:   !errors.Is(err, dompay.ErrDeclined),
		})
		if serr := o.save(ctx, sc); serr != nil {
			return serr
		}
		ord.RecordPayment(charge.PaymentID, domorder.PaymentFailed)
		return fmt.Errorf("order: charge: %w", err)
	}

	sc.Append(domsaga.Entry{
		Step:      domsaga.StepProcessPayment,
		Outcome:   domsaga.OutcomeCompleted,
		PaymentID: charge.PaymentID,
		Amount:    ord.TotalAmount,
		Currency:  ord.Currency,
	})
	if err = o.save(ctx, sc); err != nil {
		return err
	}
	ord.RecordPayment(charge.PaymentID, domorder.PaymentCompleted)
	span.SetAttributes(attribute.String("payment.id", charge.PaymentID))
	return o.advance(ctx, ord, domorder.StatusPaymentCompleted, "")
}

// clearCart never fails the saga on its own; only a store error stops it here.
func (o *Orchestrator) clearCart(ctx context.Context, ord *domorder.Order, sc *domsaga.Context) (err error) {
	ctx, span := o.startStep(ctx, domsaga.StepClearCart, sc)
	defer func() { endStep(span, err) }()

	if o.cart == nil {
		sc.Append(domsaga.Entry{Step: domsaga.StepClearCart, Outcome: domsaga.OutcomeSkipped})
		return o.save(ctx, sc)
	}

	callErr := o.calls.do(ctx, domsaga.StepClearCart, peerCart, "clear", o.cfg.Timeouts.Cart, func(ctx context.Context) error {
		return o.cart.Clear(ctx, ord.UserID)
	})
	if callErr != nil {
		logctx.FromOr(ctx, o.ins.Log).Warn("cart_clear_failed",
			observability.F("user_id", ord.UserID),
			observability.F("error", callErr.Error()),
		)
		span.AddEvent("cart_clear_failed")
		sc.Append(domsaga.Entry{Step: domsaga.StepClearCart, Outcome: domsaga.OutcomeSkipped, Error: callErr.Error()})
		return o.save(ctx, sc)
	}
	sc.Append(domsaga.Entry{Step: domsaga.StepClearCart, Outcome: domsaga.OutcomeCompleted})
	return o.save(ctx, sc)
}

func (o *Orchestrator) completeOrder(ctx context.Context, ord *domorder.Order, sc *domsaga.Context) (err error) {
	ctx, span := o.startStep(ctx, domsaga.StepCompleteOrder, sc)
	defer func() { endStep(span, err) }()

	sc.Append(domsaga.Entry{Step: domsaga.StepCompleteOrder, Outcome: domsaga.OutcomeStarted, ReservationIDs: sc.ReservationIDs()})
	if err = o.save(ctx, sc); err != nil {
		return err
	}
	return o.confirmAll(ctx, ord, sc)
}

// confirmAll confirms every reservation of the saga. Replays are safe: an
// already confirmed reservation counts as done. ord may be nil during
// recovery when the order store did not survive a restart.
func (o *Orchestrator) confirmAll(ctx context.Context, ord *domorder.Order, sc *domsaga.Context) error {
	ids := sc.ReservationIDs()
	confirmed := make([]string, 0, len(ids))
	for _, id := range ids {
		err := o.calls.do(ctx, domsaga.StepCompleteOrder, peerInventory, "confirm", o.cfg.Timeouts.Inventory, func(ctx context.Context) error {
			_, err := o.inventory.Confirm(ctx, id)
			return err
		})
		var term *dominv.AlreadyTerminalError
		if errors.As(err, &term) && term.Status == dominv.ReservationConfirmed {
			err = nil
		}
		if err != nil {
			sc.Append(domsaga.Entry{
				Step:           domsaga.StepCompleteOrder,
				Outcome:        domsaga.OutcomeFailed,
				ReservationIDs: ids,
				ConfirmedIDs:   confirmed,
				Error:          err.Error(),
			})
			if serr := o.save(ctx, sc); serr != nil {
				return serr
			}
			return fmt.Errorf("order: confirm %s: %w", id, err)
		}
		confirmed = append(confirmed, id)
	}

	sc.Append(domsaga.Entry{
		Step:           domsaga.StepCompleteOrder,
		Outcome:        domsaga.OutcomeCompleted,
		ReservationIDs: ids,
		ConfirmedIDs:   confirmed,
	})
	if err := o.save(ctx, sc); err != nil {
		return err
	}
	// Order first: a crash between the two writes replays the confirm step.
	if err := o.advance(ctx, ord, domorder.StatusProcessing, ""); err != nil {
		return err
	}
	sc.SetStatus(domsaga.StatusCompleted)
	return o.save(ctx, sc)
}

// advance moves ord to next, persists it and emits the customer event.
func (o *Orchestrator) advance(ctx context.Context, ord *domorder.Order, next domorder.Status, reason string) error {
	if ord == nil || ord.Status == next {
		return nil
	}
	prev := ord.Status
	if err := ord.TransitionTo(next, reason); err != nil {
		return err
	}
	if err := o.orders.Update(context.WithoutCancel(ctx), ord); err != nil {
		return &storeError{err: err}
	}
	if domorder.Notifiable(next) {
		o.calls.publish(ctx, domorder.EventStatusChanged, domorder.NewStatusChangedEvent(ord, prev))
	}
	return nil
}

// abort compensates the saga and walks the order to CANCELLED, passing
// through status when it is set and still reachable.
func (o *Orchestrator) abort(ctx context.Context, ord *domorder.Order, sc *domsaga.Context, status domorder.Status, reason string) error {
	ctx = context.WithoutCancel(ctx)
	rep, cerr := o.compensator.Compensate(ctx, sc)
	var cf *domsaga.CompensationFailure
	if cerr != nil && !errors.As(cerr, &cf) {
		return cerr
	}

	if ord != nil {
		if rep.Refunded {
			ord.RecordPayment(ord.PaymentID, domorder.PaymentRefunded)
		}
		if status != "" && ord.Status.CanTransitionTo(status) {
			if err := o.advance(ctx, ord, status, reason); err != nil {
				return errors.Join(cerr, err)
			}
		}
		if ord.Status != domorder.StatusCancelled {
			if err := o.advance(ctx, ord, domorder.StatusCancelled, reason); err != nil {
				return errors.Join(cerr, err)
			}
		}
	}
	return cerr
}

// RecoverResult counts what Recover did with the unfinished sagas it found.
type RecoverResult struct {
	Resumed     int
	Compensated int
	Failed      int
	// Active counts sagas saved within StaleAfter; their owner may still be
	// running them, possibly on another instance.
	Active int
}

// RunRecovery calls Recover every RecoverEvery until ctx ends, skipping the
// passes where this instance is not the leader.
func (o *Orchestrator) RunRecovery(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.RecoverEvery)
	defer ticker.Stop()
	for {
		if o.isLeader(ctx) {
			if _, err := o.Recover(ctx); err != nil && ctx.Err() == nil {
				o.ins.Log.Error("saga_recovery_failed", observability.F("error", err.Error()))
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) isLeader(ctx context.Context) bool {
	if o.leader == nil {
		return true
	}
	ok, err := o.leader.IsLeader(ctx)
	if err != nil {
		o.ins.Log.Warn("saga_recovery_leader_check_failed", observability.F("error", err.Error()))
		return false
	}
	return ok
}

// Recover finishes sagas whose owner is gone. Those that reached the
// completion step are driven forward; the rest are compensated. A saga saved
// within StaleAfter is left alone, since its owner may still be running it.
func (o *Orchestrator) Recover(ctx context.Context) (res RecoverResult, err error) {
	run := o.ins.Begin(ctx, useCaseRecover, "RecoverSagas", nil)
	ctx = run.Ctx
	defer func() {
		run.Note(
			observability.F("resumed", res.Resumed),
			observability.F("compensated", res.Compensated),
			observability.F("failed", res.Failed),
			observability.F("active", res.Active),
		)
		run.Done(err, placeStatus(err))
	}()

	pending, err := o.sagas.Unfinished(ctx)
	if err != nil {
		return res, fmt.Errorf("order: recover: %w", err)
	}
	cutoff := o.cfg.Now().Add(-o.cfg.StaleAfter)
	for _, sc := range pending {
		if o.runs.live(sc.OrderID) || sc.UpdatedAt.After(cutoff) {
			res.Active++
			continue
		}
		ord, err := o.orders.Get(ctx, sc.OrderID)
		if err != nil {
			if !errors.Is(err, domorder.ErrNotFound) {
				res.Failed++
				run.Logger.Error("saga_recover_failed",
					observability.F("saga_id", sc.ID),
					observability.F("order_id", sc.OrderID),
					observability.F("error", err.Error()),
				)
				continue
			}
			ord = nil
		}

		if last, ok := sc.Last(domsaga.StepCompleteOrder); ok && sc.Status == domsaga.StatusRunning && last.Outcome != domsaga.OutcomeFailed {
			if err := o.confirmAll(ctx, ord, sc); err != nil {
				if ferr := o.fail(ctx, ord, sc, "", err); ferr != nil {
					res.Failed++
					continue
				}
				res.Compensated++
				continue
			}
			res.Resumed++
			continue
		}

		if err := o.abort(ctx, ord, sc, "", reasonRecovered); err != nil {
			res.Failed++
			run.Logger.Error("saga_recover_failed",
				observability.F("saga_id", sc.ID),
				observability.F("order_id", sc.OrderID),
				observability.F("error", err.Error()),
			)
			continue
		}
		res.Compensated++
	}
	return res, nil
}

// failureReason is the low-cardinality label of a saga error, also stored as
// the order's failure reason.
func failureReason(err error) string {
	var tmo *domsaga.DownstreamTimeoutError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &tmo):
		return "timeout_" + tmo.Peer
	case errors.Is(err, domsaga.ErrCancelled), errors.Is(err, context.Canceled):
		return reasonCancelled
	case errors.Is(err, dompay.ErrDeclined):
		return "payment_declined"
	case errors.Is(err, dominv.ErrInsufficientStock),
		errors.Is(err, dominv.ErrNotFound),
		errors.Is(err, dominv.ErrAlreadyTerminal),
		errors.Is(err, dominv.ErrValidation):
		return dominv.FailureReason(err)
	default:
		return "error"
	}
}

func placeStatus(err error) string {
	switch {
	case err == nil:
		return "OK"
	case errors.Is(err, domorder.ErrUserRequired),
		errors.Is(err, domorder.ErrNoItems),
		errors.Is(err, domorder.ErrInvalidQuantity),
		errors.Is(err, domorder.ErrInvalidAmount):
		return "VALIDATION"
	case errors.Is(err, domsaga.ErrCompensationFailure):
		return "COMPENSATION_FAILED"
	case errors.Is(err, domorder.ErrNotCancellable), errors.Is(err, domsaga.ErrCommitInProgress):
		return "NOT_CANCELLABLE"
	case errors.Is(err, domorder.ErrInvalidStateTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, domorder.ErrNotFound):
		return "NOT_FOUND"
	default:
		return "ERROR"
	}
}
