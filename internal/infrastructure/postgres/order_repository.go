package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

var _ domain.Repository = (*OrderRepository)(nil)

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const orderColumns = `id, order_number, user_id, idempotency_key, items, currency, total_amount::text,
	status, payment_id, payment_status, reservation_ids, failure_reason, created_at, updated_at`

func scanOrder(row scanner) (*domain.Order, error) {
	var (
		o                     domain.Order
		items                 []byte
		total, status, paySts string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.IdempotencyKey, &items, &o.Currency, &total,
		&status, &o.PaymentID, &paySts, &o.ReservationIDs, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode items of %s: %w", o.ID, err)
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("decode total of %s: %w", o.ID, err)
	}
	o.Status = domain.Status(status)
	o.PaymentStatus = domain.PaymentStatus(paySts)
	return &o, nil
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("postgres: order id is required")
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("postgres: encode items: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO orders (id, order_number, user_id, idempotency_key, items, currency, total_amount,
			status, payment_id, payment_status, reservation_ids, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.OrderNumber, o.UserID, o.IdempotencyKey, items, o.Currency, o.TotalAmount.String(),
		string(o.Status), o.PaymentID, string(o.PaymentStatus), reservationIDs(o), o.FailureReason,
		o.CreatedAt, o.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("postgres: insert order %s: %w", o.ID, err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: order %s: %w", id, err)
	}
	return o, nil
}

// Update overwrites the mutable lifecycle columns. Items and totals are
// fixed at insert.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return fmt.Errorf("postgres: order id is required")
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders SET status = $2, payment_id = $3, payment_status = $4, reservation_ids = $5,
			failure_reason = $6, updated_at = $7
		WHERE id = $1`,
		o.ID, string(o.Status), o.PaymentID, string(o.PaymentStatus), reservationIDs(o),
		o.FailureReason, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, userID, key string) (*domain.Order, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`, userID, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: order by idempotency key: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR user_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, f.UserID, string(f.Status), f.EffectiveLimit())
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list orders: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	return out, nil
}

func reservationIDs(o *domain.Order) []string {
	if o.ReservationIDs == nil {
		return []string{}
	}
	return o.ReservationIDs
}
