package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestHTTPGatewayCharge(t *testing.T) {
	var got processRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/payments/process" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"paymentId":"PAY-1","status":"COMPLETED"}`))
	}))
	defer srv.Close()

	g := NewHTTPGateway(srv.URL, noop.NewTracerProvider())
	charge, err := g.Charge(context.Background(), "O1", decimal.RequireFromString("12.50"), "USD")
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if charge.PaymentID != "PAY-1" || charge.Status != dompay.StatusCompleted {
		t.Fatalf("unexpected charge %+v", charge)
	}
	if got.OrderID != "O1" || !got.Amount.Equal(decimal.RequireFromString("12.5")) || got.Currency != "USD" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestHTTPGatewayDeclines(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
	}{
		{"failed status", http.StatusCreated, `{"paymentId":"PAY-2","status":"FAILED","errorMessage":"card expired"}`},
		{"payment required", http.StatusPaymentRequired, `insufficient funds`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPGateway(srv.URL, nil).Charge(context.Background(), "O1", decimal.NewFromInt(5), "USD")
			var declined *dompay.DeclinedError
			if !errors.As(err, &declined) || declined.OrderID != "O1" {
				t.Fatalf("expected DeclinedError, got %v", err)
			}
		})
	}
}

func TestHTTPGatewayServerErrorIsNotADecline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPGateway(srv.URL, nil).Charge(context.Background(), "O1", decimal.NewFromInt(5), "USD")
	if err == nil || errors.Is(err, dompay.ErrDeclined) {
		t.Fatalf("expected a non-decline error, got %v", err)
	}
}

func TestHTTPGatewayRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payments/PAY-1/refund" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing content type")
		}
		_, _ = w.Write([]byte(`{"paymentId":"PAY-1","status":"REFUNDED"}`))
	}))
	defer srv.Close()

	status, err := NewHTTPGateway(srv.URL, nil).Refund(context.Background(), "PAY-1", decimal.NewFromInt(5))
	if err != nil || status != dompay.StatusRefunded {
		t.Fatalf("Refund: %v %s", err, status)
	}
}

func TestHTTPGatewayHonoursContext(t *testing.T) {
	unblock := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-unblock:
		case <-r.Context().Done():
		}
	}))
	// srv.Close waits for active handlers, so unblock them first.
	defer srv.Close()
	defer close(unblock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := NewHTTPGateway(srv.URL, nil).Charge(ctx, "O1", decimal.NewFromInt(5), "USD")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSimulatedGateway(t *testing.T) {
	ctx := context.Background()
	g := NewSimulatedGateway(1, 0)

	charge, err := g.Charge(ctx, "O1", decimal.NewFromInt(10), "USD")
	if err != nil || charge.Status != dompay.StatusCompleted {
		t.Fatalf("Charge: %v %+v", err, charge)
	}
	if status, _ := g.Refund(ctx, charge.PaymentID, decimal.NewFromInt(10)); status != dompay.StatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", status)
	}
	if status, _ := g.Refund(ctx, charge.PaymentID, decimal.NewFromInt(10)); status != dompay.StatusFailed {
		t.Fatalf("second refund must fail, got %s", status)
	}

	g.SetSuccessRate(0)
	if charge, _ := g.Charge(ctx, "O2", decimal.NewFromInt(1), "USD"); charge.Status != dompay.StatusDeclined {
		t.Fatalf("expected decline at rate 0, got %+v", charge)
	}
	if _, err := g.Charge(ctx, "", decimal.NewFromInt(1), "USD"); err == nil {
		t.Fatal("expected error for missing order id")
	}
}

func TestSimulatedGatewayLatencyRespectsContext(t *testing.T) {
	g := NewSimulatedGateway(1, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := g.Charge(ctx, "O1", decimal.NewFromInt(1), "USD"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
