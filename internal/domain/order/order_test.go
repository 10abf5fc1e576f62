package order

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewComputesTotal(t *testing.T) {
	o, err := New("0b5c1f3e-aaaa", "U1", "", []Item{
		{SKU: "P1", Quantity: 2, UnitPrice: decimal.RequireFromString("19.99")},
		{SKU: "P2", Quantity: 1, UnitPrice: decimal.RequireFromString("5.02")},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !o.TotalAmount.Equal(decimal.RequireFromString("45.00")) {
		t.Fatalf("expected total 45.00, got %s", o.TotalAmount)
	}
	if o.Currency != DefaultCurrency {
		t.Fatalf("expected default currency, got %s", o.Currency)
	}
	if o.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", o.Status)
	}
	if o.OrderNumber == "" {
		t.Fatalf("expected order number")
	}
}

func TestNewRejectsBadLines(t *testing.T) {
	if _, err := New("O1", "U1", "", nil); !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}
	if _, err := New("O1", "U1", "", []Item{{SKU: "P1"}}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
	neg := []Item{{SKU: "P1", Quantity: 1, UnitPrice: decimal.NewFromInt(-1)}}
	if _, err := New("O1", "U1", "", neg); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestSagaPathTransitions(t *testing.T) {
	o, err := New("O1", "U1", "USD", []Item{{SKU: "P1", Quantity: 1}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	path := []Status{
		StatusInventoryReserved,
		StatusPaymentProcessing,
		StatusPaymentCompleted,
		StatusProcessing,
		StatusShipped,
		StatusDelivered,
	}
	for _, next := range path {
		if err := o.TransitionTo(next, ""); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if err := o.TransitionTo(StatusCancelled, ""); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("delivered order must not cancel, got %v", err)
	}
}

func TestFailureTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []Status
	}{
		{name: "inventory failure", path: []Status{StatusInventoryFailed, StatusCancelled}},
		{name: "payment failure", path: []Status{StatusInventoryReserved, StatusPaymentProcessing, StatusPaymentFailed, StatusCancelled}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := New("O1", "U1", "USD", []Item{{SKU: "P1", Quantity: 1}})
			for _, next := range tt.path {
				if err := o.TransitionTo(next, "reason"); err != nil {
					t.Fatalf("transition to %s: %v", next, err)
				}
			}
			if !o.Status.Terminal() {
				t.Fatalf("expected terminal status, got %s", o.Status)
			}
			if o.FailureReason != "reason" {
				t.Fatalf("expected failure reason recorded, got %q", o.FailureReason)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	o, _ := New("O1", "U1", "USD", []Item{{SKU: "P1", Quantity: 1}})
	o.ReservationIDs = []string{"R1"}
	c := o.Clone()
	c.Items[0].Quantity = 9
	c.ReservationIDs[0] = "R2"
	if o.Items[0].Quantity != 1 || o.ReservationIDs[0] != "R1" {
		t.Fatalf("clone shares slices with original")
	}
}
