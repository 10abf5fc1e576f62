package saga

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

type Step string

const (
	StepReserveInventory Step = "reserve_inventory"
	StepProcessPayment   Step = "process_payment"
	StepClearCart        Step = "clear_cart"
	StepCompleteOrder    Step = "complete_order"
)

type Outcome string

const (
	// OutcomeStarted marks intent before a step's side effects begin.
	OutcomeStarted   Outcome = "started"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

type Status string

const (
	StatusRunning            Status = "RUNNING"
	StatusCompleted          Status = "COMPLETED"
	StatusCompensating       Status = "COMPENSATING"
	StatusCompensated        Status = "COMPENSATED"
	StatusCompensationFailed Status = "COMPENSATION_FAILED"
)

func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusCompensated || s == StatusCompensationFailed
}

var ErrNotFound = errors.New("saga: not found")

// Entry is one record of the step log. It carries whatever the step's undo
// needs: reservation ids for inventory, payment id and amount for payment.
// Unknown marks a call whose effect could not be observed, such as a timeout.
type Entry struct {
	Step           Step            `json:"step"`
	Outcome        Outcome         `json:"outcome"`
	ReservationIDs []string        `json:"reservationIds,omitempty"`
	ConfirmedIDs   []string        `json:"confirmedIds,omitempty"`
	PaymentID      string          `json:"paymentId,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency,omitempty"`
	Error          string          `json:"error,omitempty"`
	Unknown        bool            `json:"unknown,omitempty"`
	At             time.Time       `json:"at"`
}

// Context is the durable state of one saga run. Entries is append-only.
type Context struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	Status    Status    `json:"status"`
	Entries   []Entry   `json:"entries"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func New(id, orderID string) *Context {
	now := time.Now().UTC()
	return &Context{
		ID:        id,
		OrderID:   orderID,
		Status:    StatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Context) Append(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	e.ReservationIDs = slices.Clone(e.ReservationIDs)
	e.ConfirmedIDs = slices.Clone(e.ConfirmedIDs)
	c.Entries = append(c.Entries, e)
	c.UpdatedAt = e.At
}

func (c *Context) SetStatus(s Status) {
	c.Status = s
	c.UpdatedAt = time.Now().UTC()
}

// Last returns the latest entry for step, if any.
func (c *Context) Last(step Step) (Entry, bool) {
	for i := len(c.Entries) - 1; i >= 0; i-- {
		if c.Entries[i].Step == step {
			return c.Entries[i], true
		}
	}
	return Entry{}, false
}

// Reached reports whether step was entered, whatever its outcome.
func (c *Context) Reached(step Step) bool {
	_, ok := c.Last(step)
	return ok
}

// Undoable returns the entries with side effects to reverse, latest first.
// Started entries are included because a crash can interrupt a step after its
// first effect; their undos are idempotent.
func (c *Context) Undoable() []Entry {
	out := make([]Entry, 0, len(c.Entries))
	for i := len(c.Entries) - 1; i >= 0; i-- {
		e := c.Entries[i]
		switch e.Outcome {
		case OutcomeCompleted, OutcomeStarted, OutcomeFailed:
			out = append(out, e)
		}
	}
	return out
}

// ReservationIDs collects every reservation the saga created.
func (c *Context) ReservationIDs() []string {
	var ids []string
	for _, e := range c.Entries {
		if e.Step != StepReserveInventory {
			continue
		}
		for _, id := range e.ReservationIDs {
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (c *Context) Clone() *Context {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Entries = make([]Entry, len(c.Entries))
	for i, e := range c.Entries {
		e.ReservationIDs = slices.Clone(e.ReservationIDs)
		e.ConfirmedIDs = slices.Clone(e.ConfirmedIDs)
		clone.Entries[i] = e
	}
	return &clone
}

// Store persists saga contexts so unfinished runs survive a restart.
type Store interface {
	Save(ctx context.Context, sc *Context) error
	Get(ctx context.Context, id string) (*Context, error)
	Unfinished(ctx context.Context) ([]*Context, error)
}
