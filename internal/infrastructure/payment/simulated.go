package payment

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultSuccessRate = 0.7

var _ dompay.Gateway = (*SimulatedGateway)(nil)

// SimulatedGateway approves charges at a configurable rate for local runs.
// Refunds of charges it approved always succeed.
type SimulatedGateway struct {
	mu          sync.Mutex
	random      *rand.Rand
	successRate float64
	latency     time.Duration
	charges     map[string]decimal.Decimal
}

func NewSimulatedGateway(successRate float64, latency time.Duration) *SimulatedGateway {
	if successRate < 0 || successRate > 1 {
		successRate = DefaultSuccessRate
	}
	return &SimulatedGateway{
		random:      rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: successRate,
		latency:     latency,
		charges:     make(map[string]decimal.Decimal),
	}
}

func (g *SimulatedGateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (dompay.Charge, error) {
	if orderID == "" {
		return dompay.Charge{Status: dompay.StatusFailed}, errors.New("payment: order id is required")
	}
	if amount.IsNegative() {
		return dompay.Charge{Status: dompay.StatusFailed}, errors.New("payment: amount must be zero or greater")
	}
	if err := g.wait(ctx); err != nil {
		return dompay.Charge{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.random.Float64() > g.successRate {
		return dompay.Charge{Status: dompay.StatusDeclined}, nil
	}
	id := uuid.NewString()
	g.charges[id] = amount
	return dompay.Charge{PaymentID: id, Status: dompay.StatusCompleted}, nil
}

func (g *SimulatedGateway) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (dompay.Status, error) {
	if err := g.wait(ctx); err != nil {
		return dompay.StatusFailed, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	charged, ok := g.charges[paymentID]
	if !ok || amount.GreaterThan(charged) {
		return dompay.StatusFailed, nil
	}
	delete(g.charges, paymentID)
	return dompay.StatusRefunded, nil
}

func (g *SimulatedGateway) SetSuccessRate(rate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successRate = rate
}

func (g *SimulatedGateway) SuccessRate() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.successRate
}

func (g *SimulatedGateway) wait(ctx context.Context) error {
	if g.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(g.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
