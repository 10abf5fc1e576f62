package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	useCaseReserve  = "inventory.reserve"
	useCaseRelease  = "inventory.release"
	useCaseConfirm  = "inventory.confirm"
	useCaseExpire   = "inventory.expire"
	useCaseRestock  = "inventory.restock"
	useCaseAdjust   = "inventory.adjust"
	useCaseCreate   = "inventory.create_stock"
	useCaseResolve  = "inventory.resolve_alert"
	outcomeNoop     = "noop"
	outcomeReplayed = "replayed"
)

// Reserve sets quantity aside for an order. A request carrying the id of an
// existing reservation returns that reservation and leaves stock alone.
func (e *Engine) Reserve(ctx context.Context, req dominv.ReserveRequest) (res *dominv.Reservation, err error) {
	req = req.Normalize()
	key := dominv.NewKey(req.SKU, req.Warehouse)

	run := e.ins.Begin(ctx, useCaseReserve, "Reserve",
		[]observability.Field{
			observability.F("order_id", req.OrderID),
			observability.F("sku", key.SKU),
			observability.F("warehouse", key.Warehouse),
			observability.F("quantity", req.Quantity),
		},
		attribute.String("order.id", req.OrderID),
		attribute.String("product.sku", key.SKU),
		attribute.Int("reservation.quantity", req.Quantity),
	)
	ctx = run.Ctx
	defer func() {
		if res != nil {
			run.Note(observability.F("reservation_id", res.ID))
		}
		run.Done(err, status(err))
	}()

	if err = req.Validate(); err != nil {
		return nil, fmt.Errorf("inventory: reserve: %w", err)
	}

	id := req.ReservationID
	if id != "" {
		existing, lookupErr := e.ledger.Reservation(ctx, id)
		switch {
		case lookupErr == nil:
			run.Outcome(outcomeReplayed, "REPLAYED")
			return existing, nil
		case !errors.Is(lookupErr, dominv.ErrReservationNotFound):
			err = lookupErr
			return nil, fmt.Errorf("inventory: reserve: %w", err)
		}
	} else {
		id = uuid.NewString()
	}

	err = e.retry(ctx, useCaseReserve, func() error {
		rec, err := e.ledger.Stock(ctx, key)
		if err != nil {
			return err
		}
		before := rec.Clone()
		if err := rec.Reserve(req.Quantity); err != nil {
			return err
		}

		r := dominv.NewReservation(id, req.OrderID, key, req.Quantity, e.now(), req.Hold)
		mv := dominv.NewMovement(key, dominv.MovementReservation, -req.Quantity,
			before.Available, rec.Available, id, dominv.ReferenceReservation, "", dominv.PerformedBySystem)
		change := dominv.Change{
			Stock:           rec,
			ExpectedVersion: before.Version,
			Reservation:     r,
			NewReservation:  true,
			Movement:        &mv,
			Alert:           dominv.DetectAlert(before, rec),
		}
		err = e.commit(ctx, change, id, dominv.NewInventoryReservedEvent(r))
		if errors.Is(err, dominv.ErrDuplicateID) {
			// A concurrent caller with the same id won; hand back its hold.
			existing, lookupErr := e.ledger.Reservation(ctx, id)
			if lookupErr != nil {
				return err
			}
			r = existing
			run.Outcome(outcomeReplayed, "REPLAYED")
		} else if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: reserve: %w", err)
	}

	run.Span.AddEvent("inventory.reserved",
		trace.WithAttributes(attribute.String("reservation.id", res.ID)),
	)
	return res, nil
}

// Release returns an ACTIVE hold to available stock. Releasing a reservation
// that is already RELEASED or EXPIRED succeeds without effect.
func (e *Engine) Release(ctx context.Context, reservationID, reason string) (res *dominv.Reservation, err error) {
	run := e.ins.Begin(ctx, useCaseRelease, "Release",
		[]observability.Field{
			observability.F("reservation_id", reservationID),
			observability.F("reason", reason),
		},
		attribute.String("reservation.id", reservationID),
	)
	ctx = run.Ctx
	defer func() { run.Done(err, status(err)) }()

	err = e.retry(ctx, useCaseRelease, func() error {
		r, err := e.ledger.Reservation(ctx, reservationID)
		if err != nil {
			return err
		}
		switch r.Status {
		case dominv.ReservationReleased, dominv.ReservationExpired:
			run.Outcome(outcomeNoop, "ALREADY_"+string(r.Status))
			res = r
			return nil
		case dominv.ReservationConfirmed:
			return &dominv.AlreadyTerminalError{ReservationID: r.ID, Status: r.Status}
		}

		rec, err := e.ledger.Stock(ctx, r.Key)
		if err != nil {
			return err
		}
		before := rec.Clone()
		expected := r.Version
		if err := rec.Release(r.Quantity); err != nil {
			return err
		}
		if err := r.Release(reason, e.now()); err != nil {
			return err
		}

		mv := dominv.NewMovement(r.Key, dominv.MovementRelease, r.Quantity,
			before.Available, rec.Available, r.ID, dominv.ReferenceReservation, reason, dominv.PerformedBySystem)
		change := dominv.Change{
			Stock:                      rec,
			ExpectedVersion:            before.Version,
			Reservation:                r,
			ExpectedReservationVersion: expected,
			Movement:                   &mv,
			Alert:                      dominv.DetectAlert(before, rec),
		}
		if err := e.commit(ctx, change, r.ID, dominv.NewInventoryReleasedEvent(r)); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: release: %w", err)
	}
	return res, nil
}

// Confirm turns an ACTIVE hold into a permanent decrement of total stock. A
// hold found past its expiry is expired on the spot and reported terminal.
func (e *Engine) Confirm(ctx context.Context, reservationID string) (res *dominv.Reservation, err error) {
	run := e.ins.Begin(ctx, useCaseConfirm, "Confirm",
		[]observability.Field{observability.F("reservation_id", reservationID)},
		attribute.String("reservation.id", reservationID),
	)
	ctx = run.Ctx
	defer func() { run.Done(err, status(err)) }()

	var lapsed bool
	err = e.retry(ctx, useCaseConfirm, func() error {
		r, err := e.ledger.Reservation(ctx, reservationID)
		if err != nil {
			return err
		}
		now := e.now()
		if r.Status.Terminal() {
			return &dominv.AlreadyTerminalError{ReservationID: r.ID, Status: r.Status}
		}
		if r.Lapsed(now) {
			expired, err := e.expire(ctx, r, now)
			if err != nil {
				return err
			}
			lapsed = true
			res = expired
			return nil
		}

		rec, err := e.ledger.Stock(ctx, r.Key)
		if err != nil {
			return err
		}
		before := rec.Clone()
		expected := r.Version
		if err := rec.Confirm(r.Quantity); err != nil {
			return err
		}
		if err := r.Confirm(now); err != nil {
			return err
		}

		mv := dominv.NewMovement(r.Key, dominv.MovementOutbound, -r.Quantity,
			before.Total, rec.Total, r.OrderID, dominv.ReferenceOrder, "", dominv.PerformedBySystem)
		change := dominv.Change{
			Stock:                      rec,
			ExpectedVersion:            before.Version,
			Reservation:                r,
			ExpectedReservationVersion: expected,
			Movement:                   &mv,
			Alert:                      dominv.DetectAlert(before, rec),
		}
		if err := e.commit(ctx, change, r.ID, dominv.NewInventoryConfirmedEvent(r)); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err == nil && lapsed {
		err = &dominv.AlreadyTerminalError{ReservationID: res.ID, Status: res.Status}
	}
	if err != nil {
		return res, fmt.Errorf("inventory: confirm: %w", err)
	}
	return res, nil
}

// Expire moves a lapsed ACTIVE reservation to EXPIRED and returns its stock.
// It reports false when the reservation is gone or no longer lapsed, which
// happens whenever another sweeper or a confirm/release got there first.
func (e *Engine) Expire(ctx context.Context, reservationID string, now time.Time) (expired bool, err error) {
	run := e.ins.Begin(ctx, useCaseExpire, "Expire",
		[]observability.Field{observability.F("reservation_id", reservationID)},
		attribute.String("reservation.id", reservationID),
	)
	ctx = run.Ctx
	defer func() { run.Done(err, status(err)) }()

	err = e.retry(ctx, useCaseExpire, func() error {
		expired = false
		r, err := e.ledger.Reservation(ctx, reservationID)
		if errors.Is(err, dominv.ErrReservationNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !r.Lapsed(now) {
			return nil
		}
		if _, err := e.expire(ctx, r, now); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("inventory: expire: %w", err)
	}
	if !expired {
		run.Outcome(outcomeNoop, "ALREADY_HANDLED")
	}
	return expired, nil
}

// expire commits the EXPIRED transition of an ACTIVE reservation r.
func (e *Engine) expire(ctx context.Context, r *dominv.Reservation, now time.Time) (*dominv.Reservation, error) {
	rec, err := e.ledger.Stock(ctx, r.Key)
	if err != nil {
		return nil, err
	}
	before := rec.Clone()
	expected := r.Version
	if err := rec.Release(r.Quantity); err != nil {
		return nil, err
	}
	if err := r.Expire(now); err != nil {
		return nil, err
	}

	mv := dominv.NewMovement(r.Key, dominv.MovementExpiry, r.Quantity,
		before.Available, rec.Available, r.ID, dominv.ReferenceReservation, dominv.ReasonExpired, dominv.PerformedBySystem)
	change := dominv.Change{
		Stock:                      rec,
		ExpectedVersion:            before.Version,
		Reservation:                r,
		ExpectedReservationVersion: expected,
		Movement:                   &mv,
	}
	if err := e.commit(ctx, change, r.ID, dominv.NewInventoryReleasedEvent(r)); err != nil {
		return nil, err
	}
	return r, nil
}

// Restock puts the quantity of a CONFIRMED reservation back on the shelf.
// Restocking the same reservation twice succeeds without effect.
func (e *Engine) Restock(ctx context.Context, reservationID, reason string) (res *dominv.Reservation, err error) {
	run := e.ins.Begin(ctx, useCaseRestock, "Restock",
		[]observability.Field{
			observability.F("reservation_id", reservationID),
			observability.F("reason", reason),
		},
		attribute.String("reservation.id", reservationID),
	)
	ctx = run.Ctx
	defer func() { run.Done(err, status(err)) }()

	err = e.retry(ctx, useCaseRestock, func() error {
		r, err := e.ledger.Reservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r.Returned() {
			run.Outcome(outcomeNoop, "ALREADY_RETURNED")
			res = r
			return nil
		}
		if r.Status != dominv.ReservationConfirmed {
			return &dominv.AlreadyTerminalError{ReservationID: r.ID, Status: r.Status}
		}

		rec, err := e.ledger.Stock(ctx, r.Key)
		if err != nil {
			return err
		}
		before := rec.Clone()
		expected := r.Version
		if err := rec.Adjust(r.Quantity); err != nil {
			return err
		}
		if err := r.MarkReturned(e.now()); err != nil {
			return err
		}

		mv := dominv.NewMovement(r.Key, dominv.MovementReturn, r.Quantity,
			before.Available, rec.Available, r.OrderID, dominv.ReferenceOrder, reason, dominv.PerformedBySystem)
		change := dominv.Change{
			Stock:                      rec,
			ExpectedVersion:            before.Version,
			Reservation:                r,
			ExpectedReservationVersion: expected,
			Movement:                   &mv,
		}
		if err := e.commit(ctx, change, r.SKU, dominv.NewInventoryAdjustedEvent(mv)); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: restock: %w", err)
	}
	return res, nil
}

// AdjustRequest is an administrative stock correction.
type AdjustRequest struct {
	SKU         string
	Warehouse   string
	Delta       int
	Reason      string
	PerformedBy string
}

// AdjustStock adds Delta to total and available. Reservations are untouched.
func (e *Engine) AdjustStock(ctx context.Context, req AdjustRequest) (rec *dominv.StockRecord, err error) {
	key := dominv.NewKey(req.SKU, req.Warehouse)
	run := e.ins.Begin(ctx, useCaseAdjust, "AdjustStock",
		[]observability.Field{
			observability.F("sku", key.SKU),
			observability.F("warehouse", key.Warehouse),
			observability.F("delta", req.Delta),
			observability.F("performed_by", req.PerformedBy),
		},
		attribute.String("product.sku", key.SKU),
		attribute.Int("stock.delta", req.Delta),
	)
	ctx = run.Ctx
	defer func() { run.Done(err, status(err)) }()

	if err = dominv.ValidateKey(key); err != nil {
		return nil, fmt.Errorf("inventory: adjust: %w", err)
	}

	err = e.retry(ctx, useCaseAdjust, func() error {
		current, err := e.ledger.Stock(ctx, key)
		if err != nil {
			return err
		}
		before := current.Clone()
		if err := current.Adjust(req.Delta); err != nil {
			return err
		}
		mv := dominv.NewMovement(key, dominv.MovementAdjustment, req.Delta,
			before.Available, current.Available, "", dominv.ReferenceAdjustment, req.Reason, req.PerformedBy)
		change := dominv.Change{
			Stock:           current,
			ExpectedVersion: before.Version,
			Movement:        &mv,
			Alert:           dominv.DetectAlert(before, current),
		}
		if err := e.commit(ctx, change, key.SKU, dominv.NewInventoryAdjustedEvent(mv)); err != nil {
			return err
		}
		rec = current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: adjust: %w", err)
	}
	return rec, nil
}

// CreateStockRequest registers a new SKU and warehouse pair.
type CreateStockRequest struct {
	SKU       string
	Warehouse string
	Quantity  int
	Levels    dominv.Levels
}

func (e *Engine) CreateStock(ctx context.Context, req CreateStockRequest) (rec *dominv.StockRecord, err error) {
	key := dominv.NewKey(req.SKU, req.Warehouse)
	run := e.ins.Begin(ctx, useCaseCreate, "CreateStock",
		[]observability.Field{
			observability.F("sku", key.SKU),
			observability.F("warehouse", key.Warehouse),
			observability.F("quantity", req.Quantity),
		},
		attribute.String("product.sku", key.SKU),
	)
	ctx = run.Ctx
	defer func() { run.Done(err, status(err)) }()

	if err = dominv.ValidateKey(key); err != nil {
		return nil, fmt.Errorf("inventory: create stock: %w", err)
	}
	rec, err = dominv.NewStockRecord(key, req.Quantity, req.Levels)
	if err != nil {
		return nil, fmt.Errorf("inventory: create stock: %w", err)
	}

	change := dominv.Change{
		Stock:       rec,
		CreateStock: true,
		Alert:       dominv.DetectAlert(nil, rec),
	}
	if req.Quantity > 0 {
		mv := dominv.NewMovement(key, dominv.MovementAdjustment, req.Quantity,
			0, req.Quantity, "", dominv.ReferenceAdjustment, "initial stock", dominv.PerformedBySystem)
		change.Movement = &mv
	}
	if err = e.commit(ctx, change, key.SKU); err != nil {
		return nil, fmt.Errorf("inventory: create stock: %w", err)
	}
	return rec, nil
}

func (e *Engine) ResolveAlert(ctx context.Context, alertID, by string) (a *dominv.LowStockAlert, err error) {
	run := e.ins.Begin(ctx, useCaseResolve, "ResolveAlert",
		[]observability.Field{
			observability.F("alert_id", alertID),
			observability.F("resolved_by", by),
		},
	)
	ctx = run.Ctx
	defer func() { run.Done(err, status(err)) }()

	if by == "" {
		by = dominv.PerformedBySystem
	}
	a, err = e.ledger.ResolveAlert(ctx, alertID, by, e.now())
	if err != nil {
		return nil, fmt.Errorf("inventory: resolve alert: %w", err)
	}
	return a, nil
}
