package order

import "context"

// DefaultListLimit caps List when the filter leaves Limit unset.
const DefaultListLimit = 50

// Filter narrows List. Empty fields match every order.
type Filter struct {
	UserID string
	Status Status
	Limit  int
}

// EffectiveLimit is the row cap a repository applies for f.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f Filter) Matches(o *Order) bool {
	return (f.UserID == "" || o.UserID == f.UserID) && (f.Status == "" || o.Status == f.Status)
}

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, order *Order) error
	FindByIdempotency(ctx context.Context, userID, key string) (*Order, error)
	// List returns matching orders, newest first.
	List(ctx context.Context, f Filter) ([]*Order, error)
}
