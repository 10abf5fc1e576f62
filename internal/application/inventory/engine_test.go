package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/memory"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, qty int, opts ...Option) (*Engine, *memory.Ledger, *clock) {
	t.Helper()
	ledger := memory.NewLedger()
	clk := newClock()
	opts = append([]Option{WithClock(clk.Now), WithRetry(3, time.Millisecond)}, opts...)
	e := NewEngine(ledger, nil, opts...)
	_, err := e.CreateStock(context.Background(), CreateStockRequest{
		SKU:      "P1",
		Quantity: qty,
		Levels:   dominv.Levels{Minimum: 2},
	})
	if err != nil {
		t.Fatalf("CreateStock: %v", err)
	}
	return e, ledger, clk
}

func mustStock(t *testing.T, e *Engine) *dominv.StockRecord {
	t.Helper()
	rec, err := e.Stock(context.Background(), "P1", "")
	if err != nil {
		t.Fatalf("Stock: %v", err)
	}
	if err := rec.CheckInvariant(); err != nil {
		t.Fatalf("invariant: %v", err)
	}
	return rec
}

func reserve(t *testing.T, e *Engine, orderID string, qty int) *dominv.Reservation {
	t.Helper()
	r, err := e.Reserve(context.Background(), dominv.ReserveRequest{OrderID: orderID, SKU: "P1", Quantity: qty})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	return r
}

func TestEngineReserveReleaseConfirm(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, 10)

	r := reserve(t, e, "O1", 4)
	if r.Status != dominv.ReservationActive || r.Warehouse != dominv.DefaultWarehouse {
		t.Fatalf("unexpected reservation %+v", r)
	}
	if got := mustStock(t, e); got.Available != 6 || got.Reserved != 4 {
		t.Fatalf("after reserve: %+v", got)
	}

	if _, err := e.Release(ctx, r.ID, dominv.ReasonCompensation); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := mustStock(t, e); got.Available != 10 || got.Reserved != 0 {
		t.Fatalf("after release: %+v", got)
	}

	// Second release is a no-op.
	again, err := e.Release(ctx, r.ID, dominv.ReasonCompensation)
	if err != nil || again.Status != dominv.ReservationReleased {
		t.Fatalf("second release: %v %+v", err, again)
	}
	if got := mustStock(t, e); got.Available != 10 || got.Reserved != 0 {
		t.Fatalf("after second release: %+v", got)
	}

	r2 := reserve(t, e, "O2", 3)
	if _, err := e.Confirm(ctx, r2.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got := mustStock(t, e); got.Total != 7 || got.Available != 7 || got.Reserved != 0 {
		t.Fatalf("after confirm: %+v", got)
	}

	_, err = e.Release(ctx, r2.ID, "late")
	var term *dominv.AlreadyTerminalError
	if !errors.As(err, &term) || term.Status != dominv.ReservationConfirmed {
		t.Fatalf("expected AlreadyTerminalError on confirmed release, got %v", err)
	}
	if _, err := e.Confirm(ctx, r2.ID); !errors.Is(err, dominv.ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal on second confirm, got %v", err)
	}
}

func TestEngineReserveInsufficientLeavesRecordUnchanged(t *testing.T) {
	e, _, _ := newTestEngine(t, 3)
	before := mustStock(t, e)

	_, err := e.Reserve(context.Background(), dominv.ReserveRequest{OrderID: "O1", SKU: "P1", Quantity: 4})
	var ins *dominv.InsufficientStockError
	if !errors.As(err, &ins) || ins.Requested != 4 || ins.Available != 3 {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	after := mustStock(t, e)
	if *after != *before {
		t.Fatalf("record changed: before %+v after %+v", before, after)
	}
}

func TestEngineReserveValidation(t *testing.T) {
	e, _, _ := newTestEngine(t, 3)
	_, err := e.Reserve(context.Background(), dominv.ReserveRequest{SKU: "", Quantity: 0})
	var verr *dominv.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, f := range []string{"orderId", "productSku", "quantity"} {
		if _, ok := verr.Fields[f]; !ok {
			t.Errorf("missing field %s in %v", f, verr.Fields)
		}
	}
}

func TestEngineReserveWithKnownIDIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, 10)

	req := dominv.ReserveRequest{ReservationID: "R-fixed", OrderID: "O1", SKU: "P1", Quantity: 2}
	first, err := e.Reserve(ctx, req)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	second, err := e.Reserve(ctx, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.ID != second.ID || first.ID != "R-fixed" {
		t.Fatalf("ids differ: %s %s", first.ID, second.ID)
	}
	if got := mustStock(t, e); got.Reserved != 2 {
		t.Fatalf("replay touched stock: %+v", got)
	}
}

func TestEngineConcurrentReserveNeverOvercommits(t *testing.T) {
	const (
		available = 10
		quantity  = 3
		callers   = 20
	)
	ledger := memory.NewLedger()
	// Generous retry budget so losers mostly re-read rather than surfacing conflicts.
	e := NewEngine(ledger, nil, WithRetry(50, time.Microsecond))
	if _, err := e.CreateStock(context.Background(), CreateStockRequest{SKU: "P1", Quantity: available}); err != nil {
		t.Fatalf("CreateStock: %v", err)
	}

	var ok atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Reserve(context.Background(), dominv.ReserveRequest{OrderID: "O", SKU: "P1", Quantity: quantity})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, dominv.ErrInsufficientStock), errors.Is(err, dominv.ErrConcurrencyConflict):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := ok.Load(); got > available/quantity {
		t.Fatalf("%d reservations succeeded, at most %d allowed", got, available/quantity)
	}
	rec := mustStock(t, e)
	if rec.Reserved != int(ok.Load())*quantity || rec.Available != available-rec.Reserved {
		t.Fatalf("ledger disagrees with successes: %+v, ok=%d", rec, ok.Load())
	}
}

func TestEngineConfirmLapsedHoldExpiresIt(t *testing.T) {
	ctx := context.Background()
	e, _, clk := newTestEngine(t, 10)

	r, err := e.Reserve(ctx, dominv.ReserveRequest{OrderID: "O1", SKU: "P1", Quantity: 4, Hold: time.Minute})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	clk.Advance(2 * time.Minute)

	_, err = e.Confirm(ctx, r.ID)
	var term *dominv.AlreadyTerminalError
	if !errors.As(err, &term) || term.Status != dominv.ReservationExpired {
		t.Fatalf("expected expired terminal error, got %v", err)
	}
	if got := mustStock(t, e); got.Available != 10 || got.Total != 10 {
		t.Fatalf("lapsed hold not returned: %+v", got)
	}
}

func TestEngineRestockOnce(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, 10)

	r := reserve(t, e, "O1", 4)
	if _, err := e.Restock(ctx, r.ID, "cancel"); !errors.Is(err, dominv.ErrAlreadyTerminal) {
		t.Fatalf("restock of active hold should fail, got %v", err)
	}
	if _, err := e.Confirm(ctx, r.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := e.Restock(ctx, r.ID, "cancel"); err != nil {
			t.Fatalf("Restock %d: %v", i, err)
		}
	}
	if got := mustStock(t, e); got.Total != 10 || got.Available != 10 {
		t.Fatalf("restock applied wrong amount: %+v", got)
	}
	ms, _ := e.Movements(ctx, "P1", "", 0)
	if len(ms) == 0 || ms[0].Type != dominv.MovementReturn {
		t.Fatalf("expected RETURN movement first, got %+v", ms)
	}
}

func TestEngineAdjustAndAlerts(t *testing.T) {
	ctx := context.Background()
	e, ledger, _ := newTestEngine(t, 5)

	if _, err := e.AdjustStock(ctx, AdjustRequest{SKU: "P1", Delta: -6}); !errors.Is(err, dominv.ErrInsufficientStock) {
		t.Fatalf("expected negative adjust rejected, got %v", err)
	}
	if _, err := e.AdjustStock(ctx, AdjustRequest{SKU: "P1", Delta: 0}); !errors.Is(err, dominv.ErrInvalidQuantity) {
		t.Fatalf("expected zero delta rejected, got %v", err)
	}

	// 5 -> 2 crosses the minimum of 2.
	rec, err := e.AdjustStock(ctx, AdjustRequest{SKU: "P1", Delta: -3, Reason: "shrinkage", PerformedBy: "ops"})
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if rec.Total != 2 || rec.Available != 2 {
		t.Fatalf("unexpected record %+v", rec)
	}
	alerts, _ := e.Alerts(ctx, true)
	if len(alerts) != 1 || alerts[0].Type != dominv.AlertLowStock {
		t.Fatalf("expected one LOW_STOCK alert, got %+v", alerts)
	}

	// Staying low does not raise another alert.
	reserve(t, e, "O1", 1)
	alerts, _ = e.Alerts(ctx, true)
	if len(alerts) != 1 {
		t.Fatalf("expected no new alert while already low, got %d", len(alerts))
	}

	msgs, _ := ledger.PendingMessages(ctx, 0)
	names := map[string]int{}
	for _, m := range msgs {
		names[m.Name]++
	}
	if names[dominv.EventAdjusted] != 1 || names[dominv.EventLowStock] != 1 || names[dominv.EventReserved] != 1 {
		t.Fatalf("unexpected outbox contents %v", names)
	}

	resolved, err := e.ResolveAlert(ctx, alerts[0].ID, "ops")
	if err != nil || !resolved.Resolved {
		t.Fatalf("ResolveAlert: %v %+v", err, resolved)
	}
}

func TestEngineQueries(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTestEngine(t, 10)
	if _, err := e.CreateStock(ctx, CreateStockRequest{SKU: "P1", Warehouse: "EAST", Quantity: 5}); err != nil {
		t.Fatalf("CreateStock: %v", err)
	}
	if _, err := e.CreateStock(ctx, CreateStockRequest{SKU: "P1", Quantity: 1}); !errors.Is(err, dominv.ErrAlreadyExists) {
		t.Fatalf("expected duplicate create rejected, got %v", err)
	}

	agg, err := e.StockBySKU(ctx, "P1")
	if err != nil || agg.Total != 15 || len(agg.Warehouses) != 2 {
		t.Fatalf("StockBySKU: %v %+v", err, agg)
	}
	if _, err := e.StockBySKU(ctx, "NOPE"); !errors.Is(err, dominv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ok, err := e.CheckAvailability(ctx, "P1", "", 10)
	if err != nil || !ok {
		t.Fatalf("CheckAvailability(10) = %v, %v", ok, err)
	}
	ok, _ = e.CheckAvailability(ctx, "P1", "", 11)
	if ok {
		t.Fatalf("CheckAvailability(11) should be false")
	}
	ok, _ = e.CheckAvailability(ctx, "NOPE", "", 1)
	if ok {
		t.Fatalf("unknown SKU should be unavailable")
	}

	r := reserve(t, e, "O9", 1)
	byOrder, _ := e.ReservationsByOrder(ctx, "O9")
	if len(byOrder) != 1 || byOrder[0].ID != r.ID {
		t.Fatalf("ReservationsByOrder: %+v", byOrder)
	}
	if _, err := e.Reservation(ctx, "missing"); !errors.Is(err, dominv.ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}
}
