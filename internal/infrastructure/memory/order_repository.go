package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"
)

var _ domain.Repository = (*OrderRepository)(nil)

// idempotencyIndex scopes keys per user so two customers cannot collide.
type idempotencyIndex struct {
	userID string
	key    string
}

// OrderRepository stores clones only; callers never share an *Order with it.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
	byKey  map[idempotencyIndex]string
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[string]*domain.Order),
		byKey:  make(map[idempotencyIndex]string),
	}
}

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o == nil || o.ID == "" {
		return fmt.Errorf("memory: order id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.orders[o.ID]; dup {
		return fmt.Errorf("%w: order %s exists", domain.ErrConflict, o.ID)
	}
	if o.IdempotencyKey != "" {
		idx := idempotencyIndex{userID: o.UserID, key: o.IdempotencyKey}
		if owner, taken := r.byKey[idx]; taken {
			return fmt.Errorf("%w: idempotency key used by %s", domain.ErrConflict, owner)
		}
		r.byKey[idx] = o.ID
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(id)
}

// Update replaces the stored order; items and totals travel with it unchanged.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o == nil || o.ID == "" {
		return fmt.Errorf("memory: order id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	r.orders[o.ID] = o.Clone()
	return nil
}

func (r *OrderRepository) FindByIdempotency(ctx context.Context, userID, key string) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, domain.ErrNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[idempotencyIndex{userID: userID, key: key}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.lookup(id)
}

func (r *OrderRepository) List(ctx context.Context, f domain.Filter) ([]*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]*domain.Order, 0)
	for _, o := range r.orders {
		if f.Matches(o) {
			out = append(out, o.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n := f.EffectiveLimit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// lookup expects r.mu held.
func (r *OrderRepository) lookup(id string) (*domain.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}
