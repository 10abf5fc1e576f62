package inventory

import (
	"maps"
	"slices"
	"strings"
	"time"
)

const (
	maxSKULength       = 100
	maxWarehouseLength = 100
)

// ReserveRequest is the input of a reservation.
type ReserveRequest struct {
	ReservationID string
	OrderID       string
	SKU           string
	Warehouse     string
	Quantity      int
	Hold          time.Duration
}

// Normalize applies defaults for warehouse and hold duration.
func (r ReserveRequest) Normalize() ReserveRequest {
	r.SKU = strings.TrimSpace(r.SKU)
	r.Warehouse = strings.TrimSpace(r.Warehouse)
	if r.Warehouse == "" {
		r.Warehouse = DefaultWarehouse
	}
	if r.Hold == 0 {
		r.Hold = DefaultHoldDuration
	}
	return r
}

func (r ReserveRequest) Validate() error {
	v := validator{}
	v.require("orderId", r.OrderID)
	v.sku(r.SKU)
	v.warehouse(r.Warehouse)
	if r.Quantity <= 0 {
		v.fail("quantity", "must be greater than zero")
	}
	if r.Hold <= 0 {
		v.fail("holdDuration", "must be positive")
	}
	return v.err()
}

// ValidateKey checks a SKU and warehouse pair outside a reservation.
func ValidateKey(key Key) error {
	v := validator{}
	v.sku(key.SKU)
	v.warehouse(key.Warehouse)
	return v.err()
}

type validator struct {
	fields map[string]string
}

func (v *validator) fail(field, msg string) {
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, ok := v.fields[field]; !ok {
		v.fields[field] = msg
	}
}

func (v *validator) require(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.fail(field, "is required")
	}
}

func (v *validator) sku(sku string) {
	v.require("productSku", sku)
	if len(sku) > maxSKULength {
		v.fail("productSku", "must not exceed 100 characters")
	}
}

func (v *validator) warehouse(w string) {
	if len(w) > maxWarehouseLength {
		v.fail("warehouseLocation", "must not exceed 100 characters")
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
