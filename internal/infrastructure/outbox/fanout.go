package outbox

import (
	"context"
	"errors"

	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
)

// Fanout publishes every event to each of its publishers and succeeds only
// when all of them do.
type Fanout []domoutbox.Publisher

func (f Fanout) Publish(ctx context.Context, e domoutbox.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
