package inventory

import (
	"context"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
)

// Change is one atomic ledger commit. Either every part is applied or none is.
//
// Stock, when set, replaces the stored record only if the stored version still
// equals ExpectedVersion; CreateStock inserts instead. Reservation, when set,
// is inserted if NewReservation is true, otherwise it replaces the stored one
// only if the stored version equals ExpectedReservationVersion. A failed
// version check yields ErrConcurrencyConflict.
type Change struct {
	Stock           *StockRecord
	ExpectedVersion int64
	CreateStock     bool

	Reservation                *Reservation
	NewReservation             bool
	ExpectedReservationVersion int64

	Movement *Movement
	Alert    *LowStockAlert
	Messages []domoutbox.Message
}

// Ledger is the authoritative store of stock records and reservations.
type Ledger interface {
	Stock(ctx context.Context, key Key) (*StockRecord, error)
	StockBySKU(ctx context.Context, sku string) ([]*StockRecord, error)
	LowStock(ctx context.Context) ([]*StockRecord, error)

	Reservation(ctx context.Context, id string) (*Reservation, error)
	ReservationsByOrder(ctx context.Context, orderID string) ([]*Reservation, error)
	// LapsedReservations lists ACTIVE reservations whose expiry is before now.
	LapsedReservations(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
	// PurgeReservations deletes terminal reservations last updated before cutoff.
	PurgeReservations(ctx context.Context, cutoff time.Time) (int, error)

	Movements(ctx context.Context, key Key, limit int) ([]Movement, error)
	Alerts(ctx context.Context, openOnly bool) ([]*LowStockAlert, error)
	ResolveAlert(ctx context.Context, id, by string, at time.Time) (*LowStockAlert, error)

	Commit(ctx context.Context, c Change) error
}
