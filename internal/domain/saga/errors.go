package saga

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrDownstreamTimeout   = errors.New("saga: downstream timeout")
	ErrCompensationFailure = errors.New("saga: compensation failed")
	ErrCancelled           = errors.New("saga: cancelled")
	ErrCommitInProgress    = errors.New("saga: completion already committing")

	// ErrPaymentOutcomeUnknown is a charge that may have been captured but
	// left no payment id to refund.
	ErrPaymentOutcomeUnknown = errors.New("saga: payment outcome unknown")
)

// DownstreamTimeoutError is a collaborator call that exceeded its bound.
type DownstreamTimeoutError struct {
	Step    Step
	Peer    string
	Timeout time.Duration
}

func (e *DownstreamTimeoutError) Error() string {
	return fmt.Sprintf("saga: %s: %s did not answer within %s", e.Step, e.Peer, e.Timeout)
}

func (e *DownstreamTimeoutError) Unwrap() error { return ErrDownstreamTimeout }

// CompensationFailure lists the undo actions that failed. The saga is left for
// manual reconciliation.
type CompensationFailure struct {
	SagaID   string
	OrderID  string
	Failures []error
}

func (e *CompensationFailure) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Error())
	}
	return fmt.Sprintf("saga: compensation failed for saga %s order %s: %s",
		e.SagaID, e.OrderID, strings.Join(msgs, "; "))
}

func (e *CompensationFailure) Unwrap() []error {
	return append([]error{ErrCompensationFailure}, e.Failures...)
}

const EventCompensationFailed = "saga.compensation_failed"

// CompensationFailedEvent is the operator alert for a saga needing manual repair.
type CompensationFailedEvent struct {
	SagaID     string    `json:"sagaId"`
	OrderID    string    `json:"orderId"`
	Failures   []string  `json:"failures"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (CompensationFailedEvent) EventName() string { return EventCompensationFailed }

func NewCompensationFailedEvent(f *CompensationFailure) CompensationFailedEvent {
	msgs := make([]string, 0, len(f.Failures))
	for _, err := range f.Failures {
		msgs = append(msgs, err.Error())
	}
	return CompensationFailedEvent{
		SagaID:     f.SagaID,
		OrderID:    f.OrderID,
		Failures:   msgs,
		OccurredAt: time.Now().UTC(),
	}
}
