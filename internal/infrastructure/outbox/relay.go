package outbox

import (
	"context"
	"errors"
	"time"

	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"
)

const (
	defaultRelayInterval = time.Second
	defaultRelayBatch    = 100
	relayPublishTimeout  = 5 * time.Second
)

type RelayConfig struct {
	Interval time.Duration
	Batch    int
}

// Relay drains the durable outbox into a publisher. A message is marked
// published only after the publisher accepted it, so delivery is
// at-least-once; a failure bumps its attempts and it is picked up again.
type Relay struct {
	store     domoutbox.Store
	publisher domoutbox.Publisher
	cfg       RelayConfig

	log     observability.Logger
	relayed observability.Counter // outbox_relayed_total{event,outcome}
}

func NewRelay(store domoutbox.Store, publisher domoutbox.Publisher, cfg RelayConfig, tel observability.Observability) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultRelayInterval
	}
	if cfg.Batch <= 0 {
		cfg.Batch = defaultRelayBatch
	}
	log, _, metrics := observability.Resolve(tel)
	return &Relay{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With(observability.F("component", "outbox_relay")),
		relayed:   metrics.Counter(observability.MOutboxRelayed),
	}
}

// Run relays on every tick until ctx ends.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// One last pass so events committed right before shutdown are not stranded.
			_, _ = r.RelayOnce(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.log.Warn("outbox_relay_failed", observability.F("error", err.Error()))
			}
		}
	}
}

// RelayOnce publishes one batch of pending messages and reports how many
// were delivered.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	msgs, err := r.store.PendingMessages(ctx, r.cfg.Batch)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	published := make([]string, 0, len(msgs))
	for _, m := range msgs {
		pctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
		perr := r.publisher.Publish(pctx, m)
		cancel()
		if perr != nil {
			r.relayed.Add(1, observability.L("event", m.Name), observability.L("outcome", "error"))
			r.log.Warn("outbox_publish_failed",
				observability.F("message_id", m.ID),
				observability.F("event", m.Name),
				observability.F("attempts", m.Attempts+1),
				observability.F("error", perr.Error()),
			)
			if err := r.store.MarkFailed(ctx, m.ID, perr); err != nil {
				return len(published), errors.Join(r.markPublished(ctx, published), err)
			}
			continue
		}
		r.relayed.Add(1, observability.L("event", m.Name), observability.L("outcome", "success"))
		published = append(published, m.ID)
	}

	if err := r.markPublished(ctx, published); err != nil {
		return 0, err
	}
	if len(published) > 0 {
		r.log.Debug("outbox_relayed", observability.F("messages", len(published)))
	}
	return len(published), nil
}

func (r *Relay) markPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.store.MarkPublished(ctx, ids...)
}
