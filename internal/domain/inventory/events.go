package inventory

import "time"

const (
	EventReserved  = "inventory.reserved"
	EventReleased  = "inventory.released"
	EventConfirmed = "inventory.confirmed"
	EventAdjusted  = "inventory.adjusted"
	EventLowStock  = "inventory.low_stock_alert"
)

// InventoryReservedEvent is emitted when stock is set aside for an order.
type InventoryReservedEvent struct {
	ReservationID     string    `json:"reservationId"`
	OrderID           string    `json:"orderId"`
	ProductSKU        string    `json:"productSku"`
	ReservedQuantity  int       `json:"reservedQuantity"`
	WarehouseLocation string    `json:"warehouseLocation"`
	ExpiresAt         time.Time `json:"expiresAt"`
	Timestamp         time.Time `json:"timestamp"`
}

func (InventoryReservedEvent) EventName() string { return EventReserved }

func NewInventoryReservedEvent(r *Reservation) InventoryReservedEvent {
	return InventoryReservedEvent{
		ReservationID:     r.ID,
		OrderID:           r.OrderID,
		ProductSKU:        r.SKU,
		ReservedQuantity:  r.Quantity,
		WarehouseLocation: r.Warehouse,
		ExpiresAt:         r.ExpiresAt,
		Timestamp:         time.Now().UTC(),
	}
}

// InventoryReleasedEvent is emitted when a hold returns to available stock,
// whether released explicitly or expired by the sweeper.
type InventoryReleasedEvent struct {
	InventoryReservedEvent
	Reason string `json:"reason"`
}

func (InventoryReleasedEvent) EventName() string { return EventReleased }

func NewInventoryReleasedEvent(r *Reservation) InventoryReleasedEvent {
	return InventoryReleasedEvent{
		InventoryReservedEvent: NewInventoryReservedEvent(r),
		Reason:                 r.Reason,
	}
}

// InventoryConfirmedEvent is emitted when a hold becomes a permanent decrement.
type InventoryConfirmedEvent struct {
	InventoryReservedEvent
	ConfirmedQuantity int `json:"confirmedQuantity"`
}

func (InventoryConfirmedEvent) EventName() string { return EventConfirmed }

func NewInventoryConfirmedEvent(r *Reservation) InventoryConfirmedEvent {
	return InventoryConfirmedEvent{
		InventoryReservedEvent: NewInventoryReservedEvent(r),
		ConfirmedQuantity:      r.Quantity,
	}
}

// InventoryAdjustedEvent is emitted for administrative corrections and returns.
type InventoryAdjustedEvent struct {
	ProductSKU         string    `json:"productSku"`
	WarehouseLocation  string    `json:"warehouseLocation"`
	QuantityAdjustment int       `json:"quantityAdjustment"`
	PreviousQuantity   int       `json:"previousQuantity"`
	NewQuantity        int       `json:"newQuantity"`
	Reason             string    `json:"reason"`
	PerformedBy        string    `json:"performedBy"`
	Timestamp          time.Time `json:"timestamp"`
}

func (InventoryAdjustedEvent) EventName() string { return EventAdjusted }

func NewInventoryAdjustedEvent(m Movement) InventoryAdjustedEvent {
	return InventoryAdjustedEvent{
		ProductSKU:         m.SKU,
		WarehouseLocation:  m.Warehouse,
		QuantityAdjustment: m.QuantityChange,
		PreviousQuantity:   m.PreviousQuantity,
		NewQuantity:        m.NewQuantity,
		Reason:             m.Notes,
		PerformedBy:        m.PerformedBy,
		Timestamp:          time.Now().UTC(),
	}
}

// LowStockAlertEvent is emitted when a record crosses into low or out-of-stock.
type LowStockAlertEvent struct {
	AlertID           string    `json:"alertId"`
	ProductSKU        string    `json:"productSku"`
	WarehouseLocation string    `json:"warehouseLocation"`
	AlertType         AlertType `json:"alertType"`
	CurrentQuantity   int       `json:"currentQuantity"`
	ThresholdQuantity int       `json:"thresholdQuantity"`
	Message           string    `json:"message"`
	Timestamp         time.Time `json:"timestamp"`
}

func (LowStockAlertEvent) EventName() string { return EventLowStock }

func NewLowStockAlertEvent(a *LowStockAlert) LowStockAlertEvent {
	return LowStockAlertEvent{
		AlertID:           a.ID,
		ProductSKU:        a.SKU,
		WarehouseLocation: a.Warehouse,
		AlertType:         a.Type,
		CurrentQuantity:   a.CurrentQuantity,
		ThresholdQuantity: a.ThresholdQuantity,
		Message:           a.Message,
		Timestamp:         time.Now().UTC(),
	}
}
