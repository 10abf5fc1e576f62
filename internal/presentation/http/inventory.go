package httppresentation

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	appInventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/application/inventory"
	domainInventory "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
)

type stockView struct {
	ProductSKU        string    `json:"productSku"`
	WarehouseLocation string    `json:"warehouseLocation"`
	Total             int       `json:"quantity"`
	Available         int       `json:"availableQuantity"`
	Reserved          int       `json:"reservedQuantity"`
	MinimumLevel      int       `json:"minimumLevel"`
	MaximumLevel      int       `json:"maximumLevel"`
	ReorderPoint      int       `json:"reorderPoint"`
	ReorderQuantity   int       `json:"reorderQuantity"`
	LowStock          bool      `json:"lowStock"`
	OutOfStock        bool      `json:"outOfStock"`
	Version           int64     `json:"version"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

func toStockView(s *domainInventory.StockRecord) stockView {
	return stockView{
		ProductSKU:        s.SKU,
		WarehouseLocation: s.Warehouse,
		Total:             s.Total,
		Available:         s.Available,
		Reserved:          s.Reserved,
		MinimumLevel:      s.MinimumLevel,
		MaximumLevel:      s.MaximumLevel,
		ReorderPoint:      s.ReorderPoint,
		ReorderQuantity:   s.ReorderQuantity,
		LowStock:          s.IsLowStock(),
		OutOfStock:        s.IsOutOfStock(),
		Version:           s.Version,
		UpdatedAt:         s.UpdatedAt,
	}
}

func toStockViews(records []*domainInventory.StockRecord) []stockView {
	out := make([]stockView, 0, len(records))
	for _, r := range records {
		out = append(out, toStockView(r))
	}
	return out
}

type reservationView struct {
	ReservationID     string     `json:"reservationId"`
	OrderID           string     `json:"orderId"`
	ProductSKU        string     `json:"productSku"`
	WarehouseLocation string     `json:"warehouseLocation"`
	Quantity          int        `json:"quantity"`
	Status            string     `json:"status"`
	Reason            string     `json:"reason,omitempty"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	CreatedAt         time.Time  `json:"createdAt"`
	ResolvedAt        *time.Time `json:"resolvedAt,omitempty"`
}

func toReservationView(r *domainInventory.Reservation) reservationView {
	return reservationView{
		ReservationID:     r.ID,
		OrderID:           r.OrderID,
		ProductSKU:        r.SKU,
		WarehouseLocation: r.Warehouse,
		Quantity:          r.Quantity,
		Status:            string(r.Status),
		Reason:            r.Reason,
		ExpiresAt:         r.ExpiresAt,
		CreatedAt:         r.CreatedAt,
		ResolvedAt:        r.ResolvedAt,
	}
}

type movementView struct {
	ID               string    `json:"id"`
	Type             string    `json:"movementType"`
	QuantityChange   int       `json:"quantityChange"`
	PreviousQuantity int       `json:"previousQuantity"`
	NewQuantity      int       `json:"newQuantity"`
	ReferenceID      string    `json:"referenceId,omitempty"`
	ReferenceType    string    `json:"referenceType,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	PerformedBy      string    `json:"performedBy"`
	OccurredAt       time.Time `json:"createdAt"`
}

type alertView struct {
	ID                string     `json:"id"`
	ProductSKU        string     `json:"productSku"`
	WarehouseLocation string     `json:"warehouseLocation"`
	Type              string     `json:"alertType"`
	CurrentQuantity   int        `json:"currentQuantity"`
	ThresholdQuantity int        `json:"thresholdQuantity"`
	Message           string     `json:"message"`
	Resolved          bool       `json:"isResolved"`
	ResolvedAt        *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy        string     `json:"resolvedBy,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

func toAlertView(a *domainInventory.LowStockAlert) alertView {
	return alertView{
		ID:                a.ID,
		ProductSKU:        a.SKU,
		WarehouseLocation: a.Warehouse,
		Type:              string(a.Type),
		CurrentQuantity:   a.CurrentQuantity,
		ThresholdQuantity: a.ThresholdQuantity,
		Message:           a.Message,
		Resolved:          a.Resolved,
		ResolvedAt:        a.ResolvedAt,
		ResolvedBy:        a.ResolvedBy,
		CreatedAt:         a.CreatedAt,
	}
}

type createStockRequest struct {
	ProductSKU        string `json:"productSku"`
	WarehouseLocation string `json:"warehouseLocation"`
	Quantity          int    `json:"quantity"`
	MinimumLevel      int    `json:"minimumLevel"`
	MaximumLevel      int    `json:"maximumLevel"`
	ReorderPoint      int    `json:"reorderPoint"`
	ReorderQuantity   int    `json:"reorderQuantity"`
}

func (h *Handler) handleCreateStock(w http.ResponseWriter, r *http.Request) {
	var req createStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := h.inventory.CreateStock(r.Context(), appInventory.CreateStockRequest{
		SKU:       req.ProductSKU,
		Warehouse: req.WarehouseLocation,
		Quantity:  req.Quantity,
		Levels: domainInventory.Levels{
			Minimum:         req.MinimumLevel,
			Maximum:         req.MaximumLevel,
			ReorderPoint:    req.ReorderPoint,
			ReorderQuantity: req.ReorderQuantity,
		},
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toStockView(rec))
}

type availabilityView struct {
	ProductSKU string      `json:"productSku"`
	Total      int         `json:"quantity"`
	Available  int         `json:"availableQuantity"`
	Reserved   int         `json:"reservedQuantity"`
	LowStock   bool        `json:"lowStock"`
	Warehouses []stockView `json:"warehouses"`
}

// handleGetStock returns one record when warehouse is given, otherwise the
// SKU aggregated across warehouses.
func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sku := q.Get("sku")
	if sku == "" {
		writeError(w, http.StatusBadRequest, errors.New("sku is required"))
		return
	}
	if wh := q.Get("warehouse"); wh != "" {
		rec, err := h.inventory.Stock(r.Context(), sku, wh)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toStockView(rec))
		return
	}
	agg, err := h.inventory.StockBySKU(r.Context(), sku)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityView{
		ProductSKU: agg.SKU,
		Total:      agg.Total,
		Available:  agg.Available,
		Reserved:   agg.Reserved,
		LowStock:   agg.LowStock,
		Warehouses: toStockViews(agg.Warehouses),
	})
}

type reserveRequest struct {
	ReservationID       string `json:"reservationId,omitempty"`
	OrderID             string `json:"orderId"`
	ProductSKU          string `json:"productSku"`
	WarehouseLocation   string `json:"warehouseLocation,omitempty"`
	Quantity            int    `json:"quantity"`
	HoldDurationMinutes int    `json:"holdDurationMinutes,omitempty"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.inventory.Reserve(r.Context(), domainInventory.ReserveRequest{
		ReservationID: req.ReservationID,
		OrderID:       req.OrderID,
		SKU:           req.ProductSKU,
		Warehouse:     req.WarehouseLocation,
		Quantity:      req.Quantity,
		Hold:          time.Duration(req.HoldDurationMinutes) * time.Minute,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationView(res))
}

type releaseRequest struct {
	ReservationID string `json:"reservationId"`
	Reason        string `json:"reason,omitempty"`
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.inventory.Release(r.Context(), req.ReservationID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationView(res))
}

type confirmRequest struct {
	ReservationID string `json:"reservationId"`
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := h.inventory.Confirm(r.Context(), req.ReservationID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationView(res))
}

type adjustRequest struct {
	ProductSKU        string `json:"productSku"`
	WarehouseLocation string `json:"warehouseLocation,omitempty"`
	QuantityChange    int    `json:"quantityChange"`
	Reason            string `json:"reason"`
	PerformedBy       string `json:"performedBy,omitempty"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := h.inventory.AdjustStock(r.Context(), appInventory.AdjustRequest{
		SKU:         req.ProductSKU,
		Warehouse:   req.WarehouseLocation,
		Delta:       req.QuantityChange,
		Reason:      req.Reason,
		PerformedBy: req.PerformedBy,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockView(rec))
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty, err := queryInt(r, "quantity", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ok, err := h.inventory.CheckAvailability(r.Context(), q.Get("sku"), q.Get("warehouse"), qty)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"productSku": q.Get("sku"),
		"quantity":   qty,
		"available":  ok,
	})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	records, err := h.inventory.LowStock(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockViews(records))
}

// handleReservations looks a reservation up by id, or lists an order's.
func (h *Handler) handleReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if id := q.Get("id"); id != "" {
		res, err := h.inventory.Reservation(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReservationView(res))
		return
	}
	orderID := q.Get("orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, errors.New("id or orderId is required"))
		return
	}
	list, err := h.inventory.ReservationsByOrder(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]reservationView, 0, len(list))
	for _, res := range list {
		out = append(out, toReservationView(res))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	list, err := h.inventory.Movements(r.Context(), q.Get("sku"), q.Get("warehouse"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]movementView, 0, len(list))
	for _, m := range list {
		out = append(out, movementView{
			ID:               m.ID,
			Type:             string(m.Type),
			QuantityChange:   m.QuantityChange,
			PreviousQuantity: m.PreviousQuantity,
			NewQuantity:      m.NewQuantity,
			ReferenceID:      m.ReferenceID,
			ReferenceType:    string(m.ReferenceType),
			Notes:            m.Notes,
			PerformedBy:      m.PerformedBy,
			OccurredAt:       m.OccurredAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	openOnly := true
	if v := r.URL.Query().Get("open"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		openOnly = b
	}
	list, err := h.inventory.Alerts(r.Context(), openOnly)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]alertView, 0, len(list))
	for _, a := range list {
		out = append(out, toAlertView(a))
	}
	writeJSON(w, http.StatusOK, out)
}

type resolveAlertRequest struct {
	AlertID    string `json:"alertId"`
	ResolvedBy string `json:"resolvedBy"`
}

func (h *Handler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	var req resolveAlertRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a, err := h.inventory.ResolveAlert(r.Context(), req.AlertID, req.ResolvedBy)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertView(a))
}
