package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
)

// Ledger keeps stock, reservations, movements, alerts and outbox messages
// behind one mutex so a Change commits atomically. Reads and writes clone.
type Ledger struct {
	mu           sync.RWMutex
	stock        map[domain.Key]*domain.StockRecord
	reservations map[string]*domain.Reservation
	movements    map[domain.Key][]domain.Movement
	alerts       map[string]*domain.LowStockAlert
	alertOrder   []string
	outbox       []domoutbox.Message
}

func NewLedger() *Ledger {
	return &Ledger{
		stock:        make(map[domain.Key]*domain.StockRecord),
		reservations: make(map[string]*domain.Reservation),
		movements:    make(map[domain.Key][]domain.Movement),
		alerts:       make(map[string]*domain.LowStockAlert),
	}
}

func (l *Ledger) Stock(ctx context.Context, key domain.Key) (*domain.StockRecord, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.stock[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec.Clone(), nil
}

func (l *Ledger) StockBySKU(ctx context.Context, sku string) ([]*domain.StockRecord, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.StockRecord
	for key, rec := range l.stock {
		if key.SKU == sku {
			out = append(out, rec.Clone())
		}
	}
	sortRecords(out)
	return out, nil
}

func (l *Ledger) LowStock(ctx context.Context) ([]*domain.StockRecord, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.StockRecord
	for _, rec := range l.stock {
		if rec.IsLowStock() {
			out = append(out, rec.Clone())
		}
	}
	sortRecords(out)
	return out, nil
}

func (l *Ledger) Reservation(ctx context.Context, id string) (*domain.Reservation, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	res, ok := l.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	return res.Clone(), nil
}

func (l *Ledger) ReservationsByOrder(ctx context.Context, orderID string) ([]*domain.Reservation, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.Reservation
	for _, res := range l.reservations {
		if res.OrderID == orderID {
			out = append(out, res.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (l *Ledger) LapsedReservations(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.Reservation
	for _, res := range l.reservations {
		if res.Lapsed(now) {
			out = append(out, res.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *Ledger) PurgeReservations(ctx context.Context, cutoff time.Time) (int, error) {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	purged := 0
	for id, res := range l.reservations {
		if res.Status.Terminal() && res.UpdatedAt.Before(cutoff) {
			delete(l.reservations, id)
			purged++
		}
	}
	return purged, nil
}

func (l *Ledger) Movements(ctx context.Context, key domain.Key, limit int) ([]domain.Movement, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.movements[key]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	out := slices.Clone(all[start:])
	slices.Reverse(out)
	return out, nil
}

func (l *Ledger) Alerts(ctx context.Context, openOnly bool) ([]*domain.LowStockAlert, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*domain.LowStockAlert, 0, len(l.alertOrder))
	for _, id := range l.alertOrder {
		a := l.alerts[id]
		if openOnly && a.Resolved {
			continue
		}
		out = append(out, a.Clone())
	}
	return out, nil
}

func (l *Ledger) ResolveAlert(ctx context.Context, id, by string, at time.Time) (*domain.LowStockAlert, error) {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.alerts[id]
	if !ok {
		return nil, domain.ErrAlertNotFound
	}
	if !a.Resolved {
		a.Resolve(by, at)
	}
	return a.Clone(), nil
}

// Commit validates every version check first, then applies all parts.
func (l *Ledger) Commit(ctx context.Context, c domain.Change) error {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	if s := c.Stock; s != nil {
		current, exists := l.stock[s.Key]
		switch {
		case c.CreateStock && exists:
			return domain.ErrAlreadyExists
		case !c.CreateStock && !exists:
			return domain.ErrNotFound
		case !c.CreateStock && current.Version != c.ExpectedVersion:
			return fmt.Errorf("%w: stock %s at version %d, expected %d",
				domain.ErrConcurrencyConflict, s.Key, current.Version, c.ExpectedVersion)
		}
		if err := s.CheckInvariant(); err != nil {
			return err
		}
	}
	if r := c.Reservation; r != nil {
		current, exists := l.reservations[r.ID]
		switch {
		case c.NewReservation && exists:
			return domain.ErrDuplicateID
		case !c.NewReservation && !exists:
			return domain.ErrReservationNotFound
		case !c.NewReservation && current.Version != c.ExpectedReservationVersion:
			return fmt.Errorf("%w: reservation %s at version %d, expected %d",
				domain.ErrConcurrencyConflict, r.ID, current.Version, c.ExpectedReservationVersion)
		}
	}

	if c.Stock != nil {
		l.stock[c.Stock.Key] = c.Stock.Clone()
	}
	if c.Reservation != nil {
		l.reservations[c.Reservation.ID] = c.Reservation.Clone()
	}
	if c.Movement != nil {
		l.movements[c.Movement.Key] = append(l.movements[c.Movement.Key], *c.Movement)
	}
	if a := c.Alert; a != nil && !l.hasOpenAlert(a.Key, a.Type) {
		l.alerts[a.ID] = a.Clone()
		l.alertOrder = append(l.alertOrder, a.ID)
	}
	l.outbox = append(l.outbox, c.Messages...)
	return nil
}

func (l *Ledger) hasOpenAlert(key domain.Key, typ domain.AlertType) bool {
	for _, a := range l.alerts {
		if a.Key == key && a.Type == typ && !a.Resolved {
			return true
		}
	}
	return false
}

func (l *Ledger) PendingMessages(ctx context.Context, limit int) ([]domoutbox.Message, error) {
	_ = ctx

	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.outbox)
	if limit > 0 && n > limit {
		n = limit
	}
	return slices.Clone(l.outbox[:n]), nil
}

func (l *Ledger) MarkPublished(ctx context.Context, ids ...string) error {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	l.outbox = slices.DeleteFunc(l.outbox, func(m domoutbox.Message) bool {
		return slices.Contains(ids, m.ID)
	})
	return nil
}

func (l *Ledger) MarkFailed(ctx context.Context, id string, cause error) error {
	_ = ctx

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.outbox {
		if l.outbox[i].ID == id {
			l.outbox[i].Attempts++
			if cause != nil {
				l.outbox[i].LastError = cause.Error()
			}
			return nil
		}
	}
	return nil
}

func sortRecords(recs []*domain.StockRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].SKU != recs[j].SKU {
			return recs[i].SKU < recs[j].SKU
		}
		return recs[i].Warehouse < recs[j].Warehouse
	})
}
