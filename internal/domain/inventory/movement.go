package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MovementType string

const (
	MovementReservation MovementType = "RESERVATION"
	MovementRelease     MovementType = "RELEASE"
	MovementExpiry      MovementType = "EXPIRY"
	MovementOutbound    MovementType = "OUTBOUND"
	MovementAdjustment  MovementType = "ADJUSTMENT"
	MovementReturn      MovementType = "RETURN"
)

type ReferenceType string

const (
	ReferenceReservation ReferenceType = "RESERVATION"
	ReferenceOrder       ReferenceType = "ORDER"
	ReferenceAdjustment  ReferenceType = "ADJUSTMENT"
)

const PerformedBySystem = "SYSTEM"

// Movement is one line of the stock transaction log. PreviousQuantity and
// NewQuantity track the quantity the movement type affects: available for
// holds and adjustments, total for outbound confirmations.
type Movement struct {
	Key
	ID               string
	Type             MovementType
	QuantityChange   int
	PreviousQuantity int
	NewQuantity      int
	ReferenceID      string
	ReferenceType    ReferenceType
	Notes            string
	PerformedBy      string
	OccurredAt       time.Time
}

func NewMovement(key Key, typ MovementType, change, previous, next int, refID string, refType ReferenceType, notes, by string) Movement {
	if by == "" {
		by = PerformedBySystem
	}
	return Movement{
		ID:               uuid.NewString(),
		Key:              key,
		Type:             typ,
		QuantityChange:   change,
		PreviousQuantity: previous,
		NewQuantity:      next,
		ReferenceID:      refID,
		ReferenceType:    refType,
		Notes:            notes,
		PerformedBy:      by,
		OccurredAt:       time.Now().UTC(),
	}
}

type AlertType string

const (
	AlertLowStock   AlertType = "LOW_STOCK"
	AlertOutOfStock AlertType = "OUT_OF_STOCK"
)

// LowStockAlert is an open or resolved threshold breach for one record.
type LowStockAlert struct {
	Key
	ID                string
	Type              AlertType
	CurrentQuantity   int
	ThresholdQuantity int
	Message           string
	Resolved          bool
	ResolvedAt        *time.Time
	ResolvedBy        string
	CreatedAt         time.Time
}

// DetectAlert compares a record before and after a change and returns the
// alert for a fresh crossing, or nil when no threshold was newly crossed.
func DetectAlert(before, after *StockRecord) *LowStockAlert {
	if after == nil {
		return nil
	}
	var typ AlertType
	threshold := after.MinimumLevel
	switch {
	case after.IsOutOfStock() && (before == nil || !before.IsOutOfStock()):
		typ, threshold = AlertOutOfStock, 0
	case after.IsLowStock() && (before == nil || !before.IsLowStock()):
		typ = AlertLowStock
	default:
		return nil
	}
	return &LowStockAlert{
		ID:                uuid.NewString(),
		Key:               after.Key,
		Type:              typ,
		CurrentQuantity:   after.Available,
		ThresholdQuantity: threshold,
		Message: fmt.Sprintf("%s for %s: %d available, threshold %d",
			typ, after.Key, after.Available, threshold),
		CreatedAt: time.Now().UTC(),
	}
}

func (a *LowStockAlert) Resolve(by string, now time.Time) {
	a.Resolved = true
	a.ResolvedAt = &now
	a.ResolvedBy = by
}

func (a *LowStockAlert) Clone() *LowStockAlert {
	if a == nil {
		return nil
	}
	clone := *a
	if a.ResolvedAt != nil {
		at := *a.ResolvedAt
		clone.ResolvedAt = &at
	}
	return &clone
}
