package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/observability"

	"github.com/cenkalti/backoff/v4"
)

const (
	inventoryService = "inventory-service"

	defaultConflictRetries = 3
	defaultRetryInterval   = 10 * time.Millisecond
	maxRetryInterval       = 200 * time.Millisecond
)

// Engine owns every mutation of the stock ledger. Each operation reads the
// record, mutates a copy and commits it with a version check; lost races are
// retried with exponential backoff.
type Engine struct {
	ledger dominv.Ledger
	ins    application.Instrumentation
	now    func() time.Time

	retries       uint64
	retryInterval time.Duration

	conflicts observability.Counter
	alerts    observability.Counter
}

type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRetry bounds the conflict retry loop.
func WithRetry(retries uint64, initial time.Duration) Option {
	return func(e *Engine) {
		e.retries = retries
		e.retryInterval = initial
	}
}

func NewEngine(ledger dominv.Ledger, tel observability.Observability, opts ...Option) *Engine {
	ins := application.NewInstrumentation(inventoryService, tel)
	e := &Engine{
		ledger:        ledger,
		ins:           ins,
		now:           func() time.Time { return time.Now().UTC() },
		retries:       defaultConflictRetries,
		retryInterval: defaultRetryInterval,
		conflicts:     ins.Metrics.Counter(observability.MConflictRetries),
		alerts:        ins.Metrics.Counter(observability.MLowStockAlerts),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Now is the engine's clock.
func (e *Engine) Now() time.Time { return e.now() }

// retry runs op until it succeeds, fails with anything other than a version
// conflict, or exhausts the retry budget.
func (e *Engine) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInterval
	b.MaxInterval = maxRetryInterval
	b.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, dominv.ErrConcurrencyConflict) {
			return backoff.Permanent(err)
		}
		e.conflicts.Add(1, observability.L("operation", op))
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, e.retries), ctx))
}

// commit attaches the alert and outbox messages to c and writes it.
func (e *Engine) commit(ctx context.Context, c dominv.Change, key string, events ...domoutbox.Event) error {
	if c.Alert != nil {
		events = append(events, dominv.NewLowStockAlertEvent(c.Alert))
	}
	for _, ev := range events {
		msg, err := domoutbox.NewMessage(inventoryService, key, ev)
		if err != nil {
			return err
		}
		c.Messages = append(c.Messages, msg)
	}
	if err := e.ledger.Commit(ctx, c); err != nil {
		return err
	}
	if c.Alert != nil {
		e.alerts.Add(1, observability.L("type", string(c.Alert.Type)))
	}
	return nil
}

// status turns an engine error into the span status text.
func status(err error) string {
	if err == nil {
		return "OK"
	}
	return strings.ToUpper(dominv.FailureReason(err))
}
