package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	dompay "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-fulfillment/internal/infrastructure/httpclient"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
)

var _ dompay.Gateway = (*HTTPGateway)(nil)

type processRequest struct {
	OrderID  string          `json:"orderId"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

type refundRequest struct {
	PaymentID    string          `json:"paymentId"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
	Reason       string          `json:"reason,omitempty"`
}

type paymentResponse struct {
	PaymentID    string `json:"paymentId"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
}

// HTTPGateway talks to the payment service.
type HTTPGateway struct {
	client *httpclient.Client
}

func NewHTTPGateway(baseURL string, tp trace.TracerProvider) *HTTPGateway {
	return &HTTPGateway{client: httpclient.New(baseURL, "payment-service", tp)}
}

// Charge treats a 402 or 422 answer, and any non-COMPLETED status in a 2xx
// answer, as a decline.
func (g *HTTPGateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (dompay.Charge, error) {
	var resp paymentResponse
	_, err := g.client.Do(ctx, http.MethodPost, "/api/payments/process", nil,
		processRequest{OrderID: orderID, Amount: amount, Currency: currency}, &resp)

	var se *httpclient.StatusError
	if errors.As(err, &se) && (se.Code == http.StatusPaymentRequired || se.Code == http.StatusUnprocessableEntity) {
		return dompay.Charge{Status: dompay.StatusDeclined}, &dompay.DeclinedError{OrderID: orderID, Reason: se.Body}
	}
	if err != nil {
		return dompay.Charge{}, fmt.Errorf("payment: charge %s: %w", orderID, err)
	}

	charge := dompay.Charge{PaymentID: resp.PaymentID, Status: dompay.Status(resp.Status)}
	if charge.Status != dompay.StatusCompleted {
		return charge, &dompay.DeclinedError{OrderID: orderID, Reason: resp.ErrorMessage}
	}
	return charge, nil
}

func (g *HTTPGateway) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (dompay.Status, error) {
	var resp paymentResponse
	path := "/api/payments/" + url.PathEscape(paymentID) + "/refund"
	if _, err := g.client.Do(ctx, http.MethodPost, path, nil,
		refundRequest{PaymentID: paymentID, RefundAmount: amount, Reason: "order_compensation"}, &resp); err != nil {
		return dompay.StatusFailed, fmt.Errorf("payment: refund %s: %w", paymentID, err)
	}
	return dompay.Status(resp.Status), nil
}
