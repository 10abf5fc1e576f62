package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusDeclined  Status = "DECLINED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

var (
	ErrDeclined     = errors.New("payment: declined")
	ErrRefundFailed = errors.New("payment: refund failed")
)

// DeclinedError is a business rejection from the payment provider.
type DeclinedError struct {
	OrderID string
	Reason  string
}

func (e *DeclinedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("payment: declined for order %s", e.OrderID)
	}
	return fmt.Sprintf("payment: declined for order %s: %s", e.OrderID, e.Reason)
}

func (e *DeclinedError) Unwrap() error { return ErrDeclined }

type Charge struct {
	PaymentID string
	Status    Status
}

// Gateway is the payment collaborator.
type Gateway interface {
	Charge(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (Charge, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (Status, error)
}
