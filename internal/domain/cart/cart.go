package cart

import "context"

// Clearer is the cart collaborator: it empties a user's cart after checkout.
type Clearer interface {
	Clear(ctx context.Context, userID string) error
}
