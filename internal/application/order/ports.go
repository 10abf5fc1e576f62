package order

import (
	"context"

	dominv "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"

	"github.com/google/uuid"
)

type IDGenerator interface {
	NewID() string
}

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

// UUIDs generates random v4 ids.
func UUIDs() IDGenerator { return uuidGenerator{} }

// InventoryPort is the part of the reservation engine the saga drives.
type InventoryPort interface {
	Reserve(ctx context.Context, req dominv.ReserveRequest) (*dominv.Reservation, error)
	Release(ctx context.Context, reservationID, reason string) (*dominv.Reservation, error)
	Confirm(ctx context.Context, reservationID string) (*dominv.Reservation, error)
	Restock(ctx context.Context, reservationID, reason string) (*dominv.Reservation, error)
}
