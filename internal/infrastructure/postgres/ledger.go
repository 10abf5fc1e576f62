package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ domain.Ledger   = (*Ledger)(nil)
	_ domoutbox.Store = (*Ledger)(nil)
)

// Ledger keeps stock, reservations, movements, alerts and the outbox in
// Postgres. Each Commit is one transaction whose updates carry a
// version predicate.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

type scanner interface {
	Scan(dest ...any) error
}

const stockColumns = `sku, warehouse, total, available, reserved, minimum_level, maximum_level,
	reorder_point, reorder_quantity, version, updated_at`

func scanStock(row scanner) (*domain.StockRecord, error) {
	var s domain.StockRecord
	err := row.Scan(&s.SKU, &s.Warehouse, &s.Total, &s.Available, &s.Reserved, &s.MinimumLevel,
		&s.MaximumLevel, &s.ReorderPoint, &s.ReorderQuantity, &s.Version, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

const reservationColumns = `id, order_id, sku, warehouse, quantity, status, reason, expires_at,
	version, created_at, updated_at, resolved_at`

func scanReservation(row scanner) (*domain.Reservation, error) {
	var r domain.Reservation
	var status string
	err := row.Scan(&r.ID, &r.OrderID, &r.SKU, &r.Warehouse, &r.Quantity, &status, &r.Reason,
		&r.ExpiresAt, &r.Version, &r.CreatedAt, &r.UpdatedAt, &r.ResolvedAt)
	if err != nil {
		return nil, err
	}
	r.Status = domain.ReservationStatus(status)
	return &r, nil
}

const alertColumns = `id, sku, warehouse, type, current_quantity, threshold_quantity, message,
	resolved, resolved_at, resolved_by, created_at`

func scanAlert(row scanner) (*domain.LowStockAlert, error) {
	var a domain.LowStockAlert
	var typ string
	err := row.Scan(&a.ID, &a.SKU, &a.Warehouse, &typ, &a.CurrentQuantity, &a.ThresholdQuantity,
		&a.Message, &a.Resolved, &a.ResolvedAt, &a.ResolvedBy, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Type = domain.AlertType(typ)
	return &a, nil
}

func collect[T any](rows pgx.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (l *Ledger) Stock(ctx context.Context, key domain.Key) (*domain.StockRecord, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT `+stockColumns+` FROM stock_records WHERE sku = $1 AND warehouse = $2`,
		key.SKU, key.Warehouse)
	s, err := scanStock(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: stock %s: %w", key, err)
	}
	return s, nil
}

func (l *Ledger) StockBySKU(ctx context.Context, sku string) ([]*domain.StockRecord, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+stockColumns+` FROM stock_records WHERE sku = $1 ORDER BY warehouse`, sku)
	if err != nil {
		return nil, fmt.Errorf("postgres: stock by sku: %w", err)
	}
	return collect(rows, scanStock)
}

func (l *Ledger) LowStock(ctx context.Context) ([]*domain.StockRecord, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+stockColumns+` FROM stock_records WHERE available <= minimum_level ORDER BY sku, warehouse`)
	if err != nil {
		return nil, fmt.Errorf("postgres: low stock: %w", err)
	}
	return collect(rows, scanStock)
}

func (l *Ledger) Reservation(ctx context.Context, id string) (*domain.Reservation, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)
	r, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: reservation %s: %w", id, err)
	}
	return r, nil
}

func (l *Ledger) ReservationsByOrder(ctx context.Context, orderID string) ([]*domain.Reservation, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: reservations by order: %w", err)
	}
	return collect(rows, scanReservation)
}

func (l *Ledger) LapsedReservations(ctx context.Context, now time.Time, limit int) ([]*domain.Reservation, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE status = 'ACTIVE' AND expires_at < $1
		 ORDER BY expires_at
		 LIMIT NULLIF($2::int, 0)`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: lapsed reservations: %w", err)
	}
	return collect(rows, scanReservation)
}

func (l *Ledger) PurgeReservations(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := l.pool.Exec(ctx,
		`DELETE FROM reservations WHERE status <> 'ACTIVE' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: purge reservations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (l *Ledger) Movements(ctx context.Context, key domain.Key, limit int) ([]domain.Movement, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, sku, warehouse, type, quantity_change, previous_quantity, new_quantity,
		        reference_id, reference_type, notes, performed_by, occurred_at
		 FROM stock_movements
		 WHERE sku = $1 AND warehouse = $2
		 ORDER BY seq DESC
		 LIMIT NULLIF($3::int, 0)`, key.SKU, key.Warehouse, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: movements: %w", err)
	}
	return collect(rows, func(row scanner) (domain.Movement, error) {
		var m domain.Movement
		var typ, refType string
		err := row.Scan(&m.ID, &m.SKU, &m.Warehouse, &typ, &m.QuantityChange, &m.PreviousQuantity,
			&m.NewQuantity, &m.ReferenceID, &refType, &m.Notes, &m.PerformedBy, &m.OccurredAt)
		m.Type, m.ReferenceType = domain.MovementType(typ), domain.ReferenceType(refType)
		return m, err
	})
}

func (l *Ledger) Alerts(ctx context.Context, openOnly bool) ([]*domain.LowStockAlert, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM low_stock_alerts
		 WHERE NOT $1::bool OR NOT resolved
		 ORDER BY seq`, openOnly)
	if err != nil {
		return nil, fmt.Errorf("postgres: alerts: %w", err)
	}
	return collect(rows, scanAlert)
}

func (l *Ledger) ResolveAlert(ctx context.Context, id, by string, at time.Time) (*domain.LowStockAlert, error) {
	if _, err := l.pool.Exec(ctx,
		`UPDATE low_stock_alerts SET resolved = TRUE, resolved_at = $3, resolved_by = $2
		 WHERE id = $1 AND NOT resolved`, id, by, at); err != nil {
		return nil, fmt.Errorf("postgres: resolve alert: %w", err)
	}
	a, err := scanAlert(l.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM low_stock_alerts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: resolve alert: %w", err)
	}
	return a, nil
}

// Commit applies c in one transaction. A version predicate matching no row is
// told apart from a missing row so callers can retry only real conflicts.
func (l *Ledger) Commit(ctx context.Context, c domain.Change) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if s := c.Stock; s != nil {
		if err := s.CheckInvariant(); err != nil {
			return err
		}
		if err := writeStock(ctx, tx, c); err != nil {
			return err
		}
	}
	if c.Reservation != nil {
		if err := writeReservation(ctx, tx, c); err != nil {
			return err
		}
	}
	if m := c.Movement; m != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO stock_movements (id, sku, warehouse, type, quantity_change, previous_quantity,
			     new_quantity, reference_id, reference_type, notes, performed_by, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			m.ID, m.SKU, m.Warehouse, string(m.Type), m.QuantityChange, m.PreviousQuantity,
			m.NewQuantity, m.ReferenceID, string(m.ReferenceType), m.Notes, m.PerformedBy, m.OccurredAt); err != nil {
			return fmt.Errorf("postgres: insert movement: %w", err)
		}
	}
	if a := c.Alert; a != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO low_stock_alerts (id, sku, warehouse, type, current_quantity, threshold_quantity,
			     message, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (sku, warehouse, type) WHERE NOT resolved DO NOTHING`,
			a.ID, a.SKU, a.Warehouse, string(a.Type), a.CurrentQuantity, a.ThresholdQuantity,
			a.Message, a.CreatedAt); err != nil {
			return fmt.Errorf("postgres: insert alert: %w", err)
		}
	}
	for _, m := range c.Messages {
		if _, err := tx.Exec(ctx,
			`INSERT INTO outbox_messages (id, name, key, payload, occurred_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			m.ID, m.Name, m.Key, m.Payload, m.OccurredAt); err != nil {
			return fmt.Errorf("postgres: insert outbox message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func writeStock(ctx context.Context, tx pgx.Tx, c domain.Change) error {
	s := c.Stock
	if c.CreateStock {
		tag, err := tx.Exec(ctx,
			`INSERT INTO stock_records (`+stockColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (sku, warehouse) DO NOTHING`,
			s.SKU, s.Warehouse, s.Total, s.Available, s.Reserved, s.MinimumLevel, s.MaximumLevel,
			s.ReorderPoint, s.ReorderQuantity, s.Version, s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("postgres: insert stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAlreadyExists
		}
		return nil
	}

	tag, err := tx.Exec(ctx,
		`UPDATE stock_records
		 SET total = $3, available = $4, reserved = $5, minimum_level = $6, maximum_level = $7,
		     reorder_point = $8, reorder_quantity = $9, version = $10, updated_at = $11
		 WHERE sku = $1 AND warehouse = $2 AND version = $12`,
		s.SKU, s.Warehouse, s.Total, s.Available, s.Reserved, s.MinimumLevel, s.MaximumLevel,
		s.ReorderPoint, s.ReorderQuantity, s.Version, s.UpdatedAt, c.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("postgres: update stock: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_records WHERE sku = $1 AND warehouse = $2)`,
		s.SKU, s.Warehouse).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: update stock: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: stock %s, expected version %d", domain.ErrConcurrencyConflict, s.Key, c.ExpectedVersion)
}

func writeReservation(ctx context.Context, tx pgx.Tx, c domain.Change) error {
	r := c.Reservation
	if c.NewReservation {
		tag, err := tx.Exec(ctx,
			`INSERT INTO reservations (`+reservationColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (id) DO NOTHING`,
			r.ID, r.OrderID, r.SKU, r.Warehouse, r.Quantity, string(r.Status), r.Reason,
			r.ExpiresAt, r.Version, r.CreatedAt, r.UpdatedAt, r.ResolvedAt)
		if err != nil {
			return fmt.Errorf("postgres: insert reservation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrDuplicateID
		}
		return nil
	}

	tag, err := tx.Exec(ctx,
		`UPDATE reservations
		 SET status = $2, reason = $3, expires_at = $4, version = $5, updated_at = $6, resolved_at = $7
		 WHERE id = $1 AND version = $8`,
		r.ID, string(r.Status), r.Reason, r.ExpiresAt, r.Version, r.UpdatedAt, r.ResolvedAt,
		c.ExpectedReservationVersion)
	if err != nil {
		return fmt.Errorf("postgres: update reservation: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reservations WHERE id = $1)`, r.ID).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: update reservation: %w", err)
	}
	if !exists {
		return domain.ErrReservationNotFound
	}
	return fmt.Errorf("%w: reservation %s, expected version %d",
		domain.ErrConcurrencyConflict, r.ID, c.ExpectedReservationVersion)
}

func (l *Ledger) PendingMessages(ctx context.Context, limit int) ([]domoutbox.Message, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, name, key, payload, occurred_at, attempts, last_error
		 FROM outbox_messages
		 WHERE published_at IS NULL
		 ORDER BY seq
		 LIMIT NULLIF($1::int, 0)`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: pending messages: %w", err)
	}
	return collect(rows, func(row scanner) (domoutbox.Message, error) {
		var m domoutbox.Message
		err := row.Scan(&m.ID, &m.Name, &m.Key, &m.Payload, &m.OccurredAt, &m.Attempts, &m.LastError)
		return m, err
	})
}

func (l *Ledger) MarkPublished(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := l.pool.Exec(ctx,
		`UPDATE outbox_messages SET published_at = now() WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("postgres: mark published: %w", err)
	}
	return nil
}

func (l *Ledger) MarkFailed(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := l.pool.Exec(ctx,
		`UPDATE outbox_messages SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, msg); err != nil {
		return fmt.Errorf("postgres: mark failed: %w", err)
	}
	return nil
}
