package inventory

import (
	"context"
	"errors"
	"fmt"

	dominv "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
)

const defaultMovementLimit = 100

// Read side of the engine. These go straight to the ledger.

func (e *Engine) Stock(ctx context.Context, sku, warehouse string) (*dominv.StockRecord, error) {
	rec, err := e.ledger.Stock(ctx, dominv.NewKey(sku, warehouse))
	if err != nil {
		return nil, fmt.Errorf("inventory: stock: %w", err)
	}
	return rec, nil
}

// StockBySKU aggregates a SKU over every warehouse holding it.
func (e *Engine) StockBySKU(ctx context.Context, sku string) (dominv.Availability, error) {
	recs, err := e.ledger.StockBySKU(ctx, sku)
	if err != nil {
		return dominv.Availability{}, fmt.Errorf("inventory: stock by sku: %w", err)
	}
	if len(recs) == 0 {
		return dominv.Availability{}, fmt.Errorf("inventory: stock by sku %s: %w", sku, dominv.ErrNotFound)
	}
	return dominv.Aggregate(sku, recs), nil
}

// CheckAvailability reports whether quantity could be reserved right now.
// An unknown record is simply unavailable.
func (e *Engine) CheckAvailability(ctx context.Context, sku, warehouse string, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, fmt.Errorf("inventory: availability: %w", dominv.ErrInvalidQuantity)
	}
	rec, err := e.ledger.Stock(ctx, dominv.NewKey(sku, warehouse))
	if errors.Is(err, dominv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("inventory: availability: %w", err)
	}
	return rec.Available >= quantity, nil
}

func (e *Engine) LowStock(ctx context.Context) ([]*dominv.StockRecord, error) {
	recs, err := e.ledger.LowStock(ctx)
	if err != nil {
		return nil, fmt.Errorf("inventory: low stock: %w", err)
	}
	return recs, nil
}

func (e *Engine) Reservation(ctx context.Context, id string) (*dominv.Reservation, error) {
	r, err := e.ledger.Reservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("inventory: reservation: %w", err)
	}
	return r, nil
}

func (e *Engine) ReservationsByOrder(ctx context.Context, orderID string) ([]*dominv.Reservation, error) {
	rs, err := e.ledger.ReservationsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("inventory: reservations by order: %w", err)
	}
	return rs, nil
}

// Movements returns the latest movements of a record, newest first.
func (e *Engine) Movements(ctx context.Context, sku, warehouse string, limit int) ([]dominv.Movement, error) {
	if limit <= 0 {
		limit = defaultMovementLimit
	}
	ms, err := e.ledger.Movements(ctx, dominv.NewKey(sku, warehouse), limit)
	if err != nil {
		return nil, fmt.Errorf("inventory: movements: %w", err)
	}
	return ms, nil
}

func (e *Engine) Alerts(ctx context.Context, openOnly bool) ([]*dominv.LowStockAlert, error) {
	as, err := e.ledger.Alerts(ctx, openOnly)
	if err != nil {
		return nil, fmt.Errorf("inventory: alerts: %w", err)
	}
	return as, nil
}
