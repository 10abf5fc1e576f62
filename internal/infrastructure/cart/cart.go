package cart

import (
	"context"
	"fmt"
	"net/http"

	domcart "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/httpclient"

	"go.opentelemetry.io/otel/trace"
)

const headerUserID = "X-User-ID"

var (
	_ domcart.Clearer = (*HTTPClearer)(nil)
	_ domcart.Clearer = Nop{}
)

// HTTPClearer empties a user's cart on the cart service.
type HTTPClearer struct {
	client *httpclient.Client
}

func NewHTTPClearer(baseURL string, tp trace.TracerProvider) *HTTPClearer {
	return &HTTPClearer{client: httpclient.New(baseURL, "cart-service", tp)}
}

func (c *HTTPClearer) Clear(ctx context.Context, userID string) error {
	header := http.Header{}
	header.Set(headerUserID, userID)
	if _, err := c.client.Do(ctx, http.MethodDelete, "/api/cart", header, nil, nil); err != nil {
		return fmt.Errorf("cart: clear %s: %w", userID, err)
	}
	return nil
}

// Nop is used when no cart service is configured.
type Nop struct{}

func (Nop) Clear(ctx context.Context, userID string) error { return ctx.Err() }
