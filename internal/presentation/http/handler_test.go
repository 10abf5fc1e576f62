package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appInventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	domainOutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/cart"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/payment"
)

type discardPublisher struct{}

func (discardPublisher) Publish(context.Context, domainOutbox.Event) error { return nil }

type testServer struct {
	srv     *httptest.Server
	engine  *appInventory.Engine
	payment *payment.SimulatedGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	engine := appInventory.NewEngine(memory.NewLedger(), nil, appInventory.WithRetry(20, time.Millisecond))
	gw := payment.NewSimulatedGateway(1, 0)
	orch := appOrder.NewOrchestrator(appOrder.Dependencies{
		Orders:    memory.NewOrderRepository(),
		Sagas:     memory.NewSagaStore(),
		Inventory: engine,
		Payments:  gw,
		Cart:      cart.Nop{},
		Publisher: discardPublisher{},
	}, appOrder.Config{}, nil)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	srv := httptest.NewServer(NewHandler(engine, orch, metrics, nil, nil).Router())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, engine: engine, payment: gw}
}

func (s *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (s *testServer) createStock(t *testing.T, sku string, qty int) {
	t.Helper()
	code := s.do(t, http.MethodPost, "/inventory/stock", createStockRequest{
		ProductSKU: sku, Quantity: qty, MinimumLevel: 2,
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("create stock: status %d", code)
	}
}

func TestReserveConfirmFlow(t *testing.T) {
	s := newTestServer(t)
	s.createStock(t, "SKU-1", 10)

	var res reservationView
	code := s.do(t, http.MethodPost, "/inventory/reserve", reserveRequest{
		OrderID: "O1", ProductSKU: "SKU-1", Quantity: 3, HoldDurationMinutes: 5,
	}, &res)
	if code != http.StatusCreated {
		t.Fatalf("reserve: status %d", code)
	}
	if res.ReservationID == "" || res.ExpiresAt.IsZero() {
		t.Fatalf("reserve must return id and expiry, got %+v", res)
	}

	var stock availabilityView
	if code := s.do(t, http.MethodGet, "/inventory/stock?sku=SKU-1", nil, &stock); code != http.StatusOK {
		t.Fatalf("get stock: status %d", code)
	}
	if stock.Available != 7 || stock.Reserved != 3 {
		t.Fatalf("expected 7 available / 3 reserved, got %+v", stock)
	}

	var confirmed reservationView
	code = s.do(t, http.MethodPost, "/inventory/confirm", confirmRequest{ReservationID: res.ReservationID}, &confirmed)
	if code != http.StatusOK || confirmed.Status != "CONFIRMED" {
		t.Fatalf("confirm: status %d body %+v", code, confirmed)
	}

	var errBody errorResponse
	code = s.do(t, http.MethodPost, "/inventory/release", releaseRequest{ReservationID: res.ReservationID}, &errBody)
	if code != http.StatusConflict {
		t.Fatalf("release after confirm: expected 409, got %d", code)
	}
}

func TestReserveInsufficientStockIsConflict(t *testing.T) {
	s := newTestServer(t)
	s.createStock(t, "SKU-1", 2)

	var errBody errorResponse
	code := s.do(t, http.MethodPost, "/inventory/reserve", reserveRequest{
		OrderID: "O1", ProductSKU: "SKU-1", Quantity: 5,
	}, &errBody)
	if code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if errBody.Reason == "" {
		t.Fatalf("expected a failure reason, got %+v", errBody)
	}
}

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	s.createStock(t, "SKU-1", 5)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown stock", http.MethodGet, "/inventory/stock?sku=NOPE&warehouse=MAIN_WAREHOUSE", nil, http.StatusNotFound},
		{"missing sku", http.MethodGet, "/inventory/stock", nil, http.StatusBadRequest},
		{"bad quantity", http.MethodPost, "/inventory/reserve", reserveRequest{OrderID: "O1", ProductSKU: "SKU-1", Quantity: 0}, http.StatusBadRequest},
		{"unknown reservation", http.MethodPost, "/inventory/release", releaseRequest{ReservationID: "nope"}, http.StatusNotFound},
		{"duplicate stock", http.MethodPost, "/inventory/stock", createStockRequest{ProductSKU: "SKU-1", Quantity: 1}, http.StatusConflict},
		{"unknown field", http.MethodPost, "/inventory/confirm", map[string]string{"id": "x"}, http.StatusBadRequest},
		{"unknown order", http.MethodGet, "/orders?id=missing", nil, http.StatusNotFound},
		{"wrong method", http.MethodDelete, "/inventory/reserve", nil, http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.do(t, tc.method, tc.path, tc.body, nil); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestAvailabilityAndAdjust(t *testing.T) {
	s := newTestServer(t)
	s.createStock(t, "SKU-1", 3)

	var avail map[string]any
	s.do(t, http.MethodGet, "/inventory/availability?sku=SKU-1&quantity=4", nil, &avail)
	if avail["available"] != false {
		t.Fatalf("expected unavailable, got %v", avail)
	}

	var rec stockView
	code := s.do(t, http.MethodPost, "/inventory/adjust", adjustRequest{
		ProductSKU: "SKU-1", QuantityChange: 5, Reason: "cycle count",
	}, &rec)
	if code != http.StatusOK || rec.Available != 8 || rec.Total != 8 {
		t.Fatalf("adjust: status %d body %+v", code, rec)
	}

	s.do(t, http.MethodGet, "/inventory/availability?sku=SKU-1&quantity=4", nil, &avail)
	if avail["available"] != true {
		t.Fatalf("expected available after restock, got %v", avail)
	}

	var moves []movementView
	if code := s.do(t, http.MethodGet, "/inventory/movements?sku=SKU-1", nil, &moves); code != http.StatusOK || len(moves) == 0 {
		t.Fatalf("movements: status %d, %d entries", code, len(moves))
	}
}

func TestLowStockAlertLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.createStock(t, "SKU-1", 5)

	code := s.do(t, http.MethodPost, "/inventory/reserve", reserveRequest{OrderID: "O1", ProductSKU: "SKU-1", Quantity: 4}, nil)
	if code != http.StatusCreated {
		t.Fatalf("reserve: %d", code)
	}

	var low []stockView
	s.do(t, http.MethodGet, "/inventory/low-stock", nil, &low)
	if len(low) != 1 || low[0].ProductSKU != "SKU-1" {
		t.Fatalf("expected SKU-1 low, got %+v", low)
	}

	var alerts []alertView
	s.do(t, http.MethodGet, "/inventory/alerts", nil, &alerts)
	if len(alerts) != 1 {
		t.Fatalf("expected one open alert, got %+v", alerts)
	}

	var resolved alertView
	code = s.do(t, http.MethodPost, "/inventory/alerts/resolve", resolveAlertRequest{AlertID: alerts[0].ID, ResolvedBy: "ops"}, &resolved)
	if code != http.StatusOK || !resolved.Resolved {
		t.Fatalf("resolve: %d %+v", code, resolved)
	}
	alerts = nil
	s.do(t, http.MethodGet, "/inventory/alerts", nil, &alerts)
	if len(alerts) != 0 {
		t.Fatalf("expected no open alerts, got %+v", alerts)
	}
}

func placeBody(key string, qty int) map[string]any {
	return map[string]any{
		"userId":         "U1",
		"idempotencyKey": key,
		"items": []map[string]any{
			{"sku": "SKU-1", "quantity": qty, "unitPrice": "12.50"},
		},
	}
}

func TestPlaceOrderAndCancel(t *testing.T) {
	s := newTestServer(t)
	s.createStock(t, "SKU-1", 10)

	var placed orderView
	code := s.do(t, http.MethodPost, "/orders", placeBody("k1", 2), &placed)
	if code != http.StatusCreated {
		t.Fatalf("place: status %d body %+v", code, placed)
	}
	if placed.Status != "PROCESSING" || placed.SagaStatus != "COMPLETED" {
		t.Fatalf("unexpected order %+v", placed)
	}
	if !placed.TotalAmount.Equal(placed.Items[0].Subtotal()) {
		t.Fatalf("total %s != subtotal", placed.TotalAmount)
	}

	var replay orderView
	code = s.do(t, http.MethodPost, "/orders", placeBody("k1", 2), &replay)
	if code != http.StatusOK || !replay.Replayed || replay.ID != placed.ID {
		t.Fatalf("replay: status %d body %+v", code, replay)
	}

	var got orderView
	if code := s.do(t, http.MethodGet, "/orders?id="+placed.ID, nil, &got); code != http.StatusOK || got.SagaID == "" {
		t.Fatalf("get: status %d body %+v", code, got)
	}

	var cancelled orderView
	code = s.do(t, http.MethodPost, "/orders/cancel", cancelOrderRequest{OrderID: placed.ID, Reason: "changed mind"}, &cancelled)
	if code != http.StatusOK || cancelled.Status != "CANCELLED" {
		t.Fatalf("cancel: status %d body %+v", code, cancelled)
	}

	rec, err := s.engine.Stock(context.Background(), "SKU-1", "")
	if err != nil {
		t.Fatalf("Stock: %v", err)
	}
	if rec.Available != 10 || rec.Reserved != 0 {
		t.Fatalf("stock not returned after cancel: %+v", rec)
	}
}

func TestPlaceOrderDeclinedStillReturnsOrder(t *testing.T) {
	s := newTestServer(t)
	s.createStock(t, "SKU-1", 10)
	s.payment.SetSuccessRate(0)

	var placed orderView
	code := s.do(t, http.MethodPost, "/orders", placeBody("", 3), &placed)
	if code != http.StatusCreated {
		t.Fatalf("place: status %d", code)
	}
	if placed.Status != "CANCELLED" || placed.FailureReason != "payment_declined" {
		t.Fatalf("expected CANCELLED/payment_declined, got %s (%s)", placed.Status, placed.FailureReason)
	}

	var sc struct {
		Status  string `json:"status"`
		Entries []struct {
			Step string `json:"step"`
		} `json:"entries"`
	}
	if code := s.do(t, http.MethodGet, "/orders/saga?orderId="+placed.ID, nil, &sc); code != http.StatusOK {
		t.Fatalf("saga: status %d", code)
	}
	if sc.Status != "COMPENSATED" || len(sc.Entries) == 0 {
		t.Fatalf("unexpected saga %+v", sc)
	}

	rec, _ := s.engine.Stock(context.Background(), "SKU-1", "")
	if rec.Available != 10 {
		t.Fatalf("reservation must be released, available=%d", rec.Available)
	}
}

func TestOrderFulfillmentStatusAndListing(t *testing.T) {
	s := newTestServer(t)
	s.createStock(t, "SKU-1", 10)

	var placed orderView
	if code := s.do(t, http.MethodPost, "/orders", placeBody("k1", 1), &placed); code != http.StatusCreated {
		t.Fatalf("place: status %d", code)
	}

	var skipped orderView
	code := s.do(t, http.MethodPost, "/orders/status", updateStatusRequest{OrderID: placed.ID, Status: "DELIVERED"}, &skipped)
	if code != http.StatusConflict {
		t.Fatalf("PROCESSING -> DELIVERED: expected 409, got %d", code)
	}
	code = s.do(t, http.MethodPost, "/orders/status", updateStatusRequest{OrderID: placed.ID, Status: "CANCELLED"}, nil)
	if code != http.StatusConflict {
		t.Fatalf("cancel through status route: expected 409, got %d", code)
	}

	for _, status := range []string{"SHIPPED", "DELIVERED"} {
		var got orderView
		code := s.do(t, http.MethodPost, "/orders/status", updateStatusRequest{OrderID: placed.ID, Status: status}, &got)
		if code != http.StatusOK || got.Status != status {
			t.Fatalf("update to %s: status %d body %+v", status, code, got)
		}
	}

	var delivered []orderView
	if code := s.do(t, http.MethodGet, "/orders?status=DELIVERED", nil, &delivered); code != http.StatusOK {
		t.Fatalf("list by status: %d", code)
	}
	if len(delivered) != 1 || delivered[0].ID != placed.ID {
		t.Fatalf("unexpected delivered list %+v", delivered)
	}

	var mine []orderView
	if code := s.do(t, http.MethodGet, "/orders?userId=U1&limit=10", nil, &mine); code != http.StatusOK || len(mine) != 1 {
		t.Fatalf("list by user: status %d len %d", code, len(mine))
	}
	if code := s.do(t, http.MethodGet, "/orders", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("list without a filter: expected 400, got %d", code)
	}
	if code := s.do(t, http.MethodPost, "/orders/status", updateStatusRequest{OrderID: "nope", Status: "SHIPPED"}, nil); code != http.StatusNotFound {
		t.Fatalf("unknown order: expected 404, got %d", code)
	}
}

func TestCancelUnknownOrder(t *testing.T) {
	s := newTestServer(t)
	if code := s.do(t, http.MethodPost, "/orders/cancel", cancelOrderRequest{OrderID: "nope"}, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestHealthMetricsAndRequestID(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", resp.StatusCode)
	}
	if resp.Header.Get(headerRequestID) == "" {
		t.Fatal("expected a generated request id")
	}

	req, _ := http.NewRequest(http.MethodGet, s.srv.URL+"/health", nil)
	req.Header.Set(headerRequestID, "rid-42")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(headerRequestID); got != "rid-42" {
		t.Fatalf("request id not echoed: %q", got)
	}

	resp, err = http.Get(s.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(body), "# metrics") {
		t.Fatalf("metrics: %d %q", resp.StatusCode, body)
	}
}
