package httppresentation

import (
	"errors"
	"net/http"
	"time"

	appOrder "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/order"
	domainOrder "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/order"

	"github.com/shopspring/decimal"
)

type orderView struct {
	ID             string             `json:"orderId"`
	OrderNumber    string             `json:"orderNumber"`
	UserID         string             `json:"userId"`
	Items          []domainOrder.Item `json:"items"`
	Currency       string             `json:"currency"`
	TotalAmount    decimal.Decimal    `json:"totalAmount"`
	Status         string             `json:"status"`
	PaymentID      string             `json:"paymentId,omitempty"`
	PaymentStatus  string             `json:"paymentStatus,omitempty"`
	ReservationIDs []string           `json:"reservationIds,omitempty"`
	FailureReason  string             `json:"failureReason,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`

	SagaID     string `json:"sagaId,omitempty"`
	SagaStatus string `json:"sagaStatus,omitempty"`
	Replayed   bool   `json:"replayed,omitempty"`
	Pending    bool   `json:"cancellationPending,omitempty"`
	Error      string `json:"error,omitempty"`
}

func toOrderView(o *domainOrder.Order) orderView {
	return orderView{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		Items:          o.Items,
		Currency:       o.Currency,
		TotalAmount:    o.TotalAmount,
		Status:         string(o.Status),
		PaymentID:      o.PaymentID,
		PaymentStatus:  string(o.PaymentStatus),
		ReservationIDs: o.ReservationIDs,
		FailureReason:  o.FailureReason,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

type placeOrderRequest struct {
	UserID         string             `json:"userId"`
	IdempotencyKey string             `json:"idempotencyKey,omitempty"`
	Currency       string             `json:"currency,omitempty"`
	Items          []domainOrder.Item `json:"items"`
}

// handlePlaceOrder runs the saga to a terminal state before answering. A
// business failure is still 201: the body carries the FAILED order.
func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get(headerIdempotency)
	}

	res, err := h.orders.PlaceOrder(r.Context(), appOrder.PlaceOrderInput{
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		Currency:       req.Currency,
		Items:          req.Items,
	})
	if err != nil && (res == nil || res.Order == nil) {
		writeDomainError(w, err)
		return
	}

	view := toOrderView(res.Order)
	view.SagaID = res.SagaID
	view.SagaStatus = string(res.SagaStatus)
	view.Replayed = res.Replayed
	if err != nil {
		view.Error = err.Error()
		writeJSON(w, statusFor(err), view)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, view)
}

// handleGetOrder returns one order by id, or lists orders by userId and
// status when no id is given.
func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		h.handleListOrders(w, r)
		return
	}
	ord, err := h.orders.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	view := toOrderView(ord)
	if sc, err := h.orders.Saga(r.Context(), id); err == nil {
		view.SagaID = sc.ID
		view.SagaStatus = string(sc.Status)
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domainOrder.Filter{UserID: q.Get("userId"), Status: domainOrder.Status(q.Get("status"))}
	if f.UserID == "" && f.Status == "" {
		writeError(w, http.StatusBadRequest, errors.New("id, userId or status is required"))
		return
	}
	limit, err := queryInt(r, "limit", domainOrder.DefaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	f.Limit = limit

	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, toOrderView(o))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGetSaga(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("orderId")
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("orderId is required"))
		return
	}
	sc, err := h.orders.Saga(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

type cancelOrderRequest struct {
	OrderID string `json:"orderId"`
	Reason  string `json:"reason,omitempty"`
}

func (h *Handler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.orders.Cancel(r.Context(), req.OrderID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	view := toOrderView(res.Order)
	view.Pending = res.Pending
	status := http.StatusOK
	if res.Pending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, view)
}

type updateStatusRequest struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, errors.New("orderId is required"))
		return
	}
	ord, err := h.orders.UpdateStatus(r.Context(), req.OrderID, domainOrder.Status(req.Status))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(ord))
}
