package order

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("order: not found")
	ErrConflict               = errors.New("order: already exists")
	ErrInvalidQuantity        = errors.New("order: quantity must be greater than zero")
	ErrInvalidAmount          = errors.New("order: amount must be zero or greater")
	ErrNoItems                = errors.New("order: at least one item is required")
	ErrUserRequired           = errors.New("order: user id is required")
	ErrInvalidStateTransition = errors.New("order: invalid state transition")
	ErrNotCancellable         = errors.New("order: cannot be cancelled in current status")
)

type PaymentStatus string

const (
	PaymentNone      PaymentStatus = ""
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

const DefaultCurrency = "USD"

// Item is one order line.
type Item struct {
	SKU       string          `json:"sku"`
	Warehouse string          `json:"warehouse,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID             string
	OrderNumber    string
	UserID         string
	IdempotencyKey string
	Items          []Item
	Currency       string
	TotalAmount    decimal.Decimal
	Status         Status
	PaymentID      string
	PaymentStatus  PaymentStatus
	ReservationIDs []string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func New(id, userID, currency string, items []Item) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	total := decimal.Zero
	for i, it := range items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidQuantity, i)
		}
		if it.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidAmount, i)
		}
		total = total.Add(it.Subtotal())
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	now := time.Now().UTC()
	return &Order{
		ID:          id,
		OrderNumber: orderNumber(id, now),
		UserID:      userID,
		Items:       slices.Clone(items),
		Currency:    currency,
		TotalAmount: total,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func orderNumber(id string, at time.Time) string {
	suffix := id
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("ORD-%s-%s", at.Format("20060102"), suffix)
}

// TransitionTo moves the order to next when the lifecycle allows it.
func (o *Order) TransitionTo(next Status, reason string) error {
	if !o.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, o.Status, next)
	}
	o.Status = next
	if reason != "" {
		o.FailureReason = reason
	}
	o.touch()
	return nil
}

func (o *Order) RecordPayment(paymentID string, status PaymentStatus) {
	o.PaymentID = paymentID
	o.PaymentStatus = status
	o.touch()
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = slices.Clone(o.Items)
	clone.ReservationIDs = slices.Clone(o.ReservationIDs)
	return &clone
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}
