package inventory

import "time"

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationExpired   ReservationStatus = "EXPIRED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
)

func (s ReservationStatus) Terminal() bool { return s != ReservationActive }

const DefaultHoldDuration = 30 * time.Minute

// Reservation is a time-bounded hold on available stock.
type Reservation struct {
	Key
	ID         string
	OrderID    string
	Quantity   int
	Status     ReservationStatus
	Reason     string
	ExpiresAt  time.Time
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time
}

func NewReservation(id, orderID string, key Key, quantity int, now time.Time, hold time.Duration) *Reservation {
	return &Reservation{
		ID:        id,
		OrderID:   orderID,
		Key:       key,
		Quantity:  quantity,
		Status:    ReservationActive,
		ExpiresAt: now.Add(hold),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Lapsed reports whether an ACTIVE hold is past its expiry at now.
func (r *Reservation) Lapsed(now time.Time) bool {
	return r.Status == ReservationActive && now.After(r.ExpiresAt)
}

// transition moves an ACTIVE reservation into a terminal status.
func (r *Reservation) transition(to ReservationStatus, reason string, now time.Time) error {
	if r.Status.Terminal() {
		return &AlreadyTerminalError{ReservationID: r.ID, Status: r.Status}
	}
	r.Status = to
	r.Reason = reason
	r.Version++
	r.UpdatedAt = now
	r.ResolvedAt = &now
	return nil
}

func (r *Reservation) Release(reason string, now time.Time) error {
	return r.transition(ReservationReleased, reason, now)
}

func (r *Reservation) Expire(now time.Time) error {
	return r.transition(ReservationExpired, ReasonExpired, now)
}

func (r *Reservation) Confirm(now time.Time) error {
	return r.transition(ReservationConfirmed, "", now)
}

// MarkReturned records that a confirmed quantity went back to stock. It can
// happen once per reservation.
func (r *Reservation) MarkReturned(now time.Time) error {
	if r.Status != ReservationConfirmed || r.Returned() {
		return &AlreadyTerminalError{ReservationID: r.ID, Status: r.Status}
	}
	r.Reason = ReasonReturned
	r.Version++
	r.UpdatedAt = now
	return nil
}

func (r *Reservation) Returned() bool {
	return r.Status == ReservationConfirmed && r.Reason == ReasonReturned
}

func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	clone := *r
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		clone.ResolvedAt = &at
	}
	return &clone
}

const (
	ReasonExpired      = "reservation_expired"
	ReasonCompensation = "saga_compensation"
	ReasonCancelled    = "order_cancelled"
	ReasonReturned     = "stock_returned"
)
