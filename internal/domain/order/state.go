package order

import "slices"

type Status string

const (
	StatusPending           Status = "PENDING"
	StatusConfirmed         Status = "CONFIRMED"
	StatusPaymentProcessing Status = "PAYMENT_PROCESSING"
	StatusPaymentCompleted  Status = "PAYMENT_COMPLETED"
	StatusInventoryReserved Status = "INVENTORY_RESERVED"
	StatusProcessing        Status = "PROCESSING"
	StatusShipped           Status = "SHIPPED"
	StatusDelivered         Status = "DELIVERED"
	StatusCancelled         Status = "CANCELLED"
	StatusPaymentFailed     Status = "PAYMENT_FAILED"
	StatusInventoryFailed   Status = "INVENTORY_FAILED"
	StatusRefunded          Status = "REFUNDED"
)

// transitions lists the legal successors of every status. The fulfillment
// saga walks PENDING -> INVENTORY_RESERVED -> PAYMENT_PROCESSING ->
// PAYMENT_COMPLETED -> PROCESSING, escaping to the failure states on the way.
var transitions = map[Status][]Status{
	StatusPending:           {StatusConfirmed, StatusInventoryReserved, StatusInventoryFailed, StatusCancelled},
	StatusConfirmed:         {StatusInventoryReserved, StatusInventoryFailed, StatusPaymentProcessing, StatusCancelled},
	StatusInventoryReserved: {StatusPaymentProcessing, StatusCancelled},
	StatusPaymentProcessing: {StatusPaymentCompleted, StatusPaymentFailed, StatusCancelled},
	StatusPaymentCompleted:  {StatusProcessing, StatusCancelled},
	StatusPaymentFailed:     {StatusCancelled},
	StatusInventoryFailed:   {StatusCancelled},
	StatusProcessing:        {StatusShipped, StatusCancelled},
	StatusShipped:           {StatusDelivered},
	StatusDelivered:         {StatusRefunded},
}

func (s Status) CanTransitionTo(next Status) bool {
	return slices.Contains(transitions[s], next)
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Failed reports the customer-visible failure outcomes.
func (s Status) Failed() bool {
	switch s {
	case StatusCancelled, StatusPaymentFailed, StatusInventoryFailed:
		return true
	}
	return false
}
