package order

import (
	"context"
	"errors"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	domsaga "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/saga"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability/logctx"
)

const (
	peerInventory = "inventory"
	peerPayment   = "payment"
	peerCart      = "cart"
	publishPeer   = "outbox"

	publishTimeout = 300 * time.Millisecond
)

// Timeouts bounds every collaborator call the saga makes.
type Timeouts struct {
	Inventory time.Duration
	Payment   time.Duration
	Cart      time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Inventory <= 0 {
		t.Inventory = 5 * time.Second
	}
	if t.Payment <= 0 {
		t.Payment = 10 * time.Second
	}
	if t.Cart <= 0 {
		t.Cart = 10 * time.Second
	}
	return t
}

func (t Timeouts) longest() time.Duration {
	return max(t.Inventory, t.Payment, t.Cart)
}

// caller wraps collaborator calls with their timeout and the external RED metrics.
type caller struct {
	log          observability.Logger
	publisher    domoutbox.Publisher
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func newCaller(log observability.Logger, metrics observability.Metrics, publisher domoutbox.Publisher) *caller {
	return &caller{
		log:          log,
		publisher:    publisher,
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// do runs fn under timeout. A deadline hit inside the call, while the parent
// is still live, comes back as a DownstreamTimeoutError.
func (c *caller) do(ctx context.Context, step domsaga.Step, peer, endpoint string, timeout time.Duration, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	outcome := "success"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		outcome = "canceled"
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		outcome = "timeout"
		err = &domsaga.DownstreamTimeoutError{Step: step, Peer: peer, Timeout: timeout}
	default:
		outcome = "error"
	}

	c.extCounter.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	c.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
	return err
}

// publish emits e without failing the caller; errors are logged.
func (c *caller) publish(ctx context.Context, endpoint string, e domoutbox.Event) {
	if c.publisher == nil || e == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	start := time.Now()
	err := c.publisher.Publish(pubCtx, e)
	outcome := "success"
	if err != nil {
		outcome = "error"
	} else if pubCtx.Err() != nil {
		outcome = "canceled"
		err = pubCtx.Err()
	}
	cancel()

	c.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	c.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", endpoint),
	)
	if err != nil {
		logctx.FromOr(ctx, c.log).Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
	}
}
