package order

import "time"

const EventStatusChanged = "order.status_changed"

// StatusChangedEvent is emitted on the transitions customers are notified about.
type StatusChangedEvent struct {
	OrderID        string    `json:"orderId"`
	OrderNumber    string    `json:"orderNumber"`
	UserID         string    `json:"userId"`
	PreviousStatus Status    `json:"previousStatus"`
	Status         Status    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

func (StatusChangedEvent) EventName() string { return EventStatusChanged }

func NewStatusChangedEvent(o *Order, previous Status) StatusChangedEvent {
	return StatusChangedEvent{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		PreviousStatus: previous,
		Status:         o.Status,
		Reason:         o.FailureReason,
		OccurredAt:     time.Now().UTC(),
	}
}

// Notifiable reports whether a status is worth telling the customer about.
func Notifiable(s Status) bool {
	switch s {
	case StatusProcessing, StatusPaymentCompleted, StatusCancelled, StatusPaymentFailed,
		StatusShipped, StatusDelivered:
		return true
	}
	return false
}
