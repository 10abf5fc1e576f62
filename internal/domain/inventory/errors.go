package inventory

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("inventory: stock record not found")
	ErrAlreadyExists       = errors.New("inventory: stock record already exists")
	ErrInvalidQuantity     = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock   = errors.New("inventory: insufficient stock")
	ErrConcurrencyConflict = errors.New("inventory: concurrent modification")
	ErrReservationNotFound = errors.New("inventory: reservation not found")
	ErrAlreadyTerminal     = errors.New("inventory: reservation already terminal")
	ErrDuplicateID         = errors.New("inventory: reservation id already used")
	ErrAlertNotFound       = errors.New("inventory: alert not found")
	ErrInvariant           = errors.New("inventory: stock invariant violated")
	ErrValidation          = errors.New("inventory: invalid request")
)

const (
	FailureReasonNotFound          = "not_found"
	FailureReasonInsufficientStock = "insufficient_stock"
	FailureReasonConflict          = "concurrency_conflict"
	FailureReasonTerminal          = "already_terminal"
	FailureReasonValidation        = "validation"
	FailureReasonPersistenceError  = "persist_error"
)

// InsufficientStockError carries the numbers behind a rejected reservation.
type InsufficientStockError struct {
	Key       Key
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock for %s: requested %d, available %d",
		e.Key, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// AlreadyTerminalError reports an operation against a reservation that has left ACTIVE.
type AlreadyTerminalError struct {
	ReservationID string
	Status        ReservationStatus
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("inventory: reservation %s is %s", e.ReservationID, e.Status)
}

func (e *AlreadyTerminalError) Unwrap() error { return ErrAlreadyTerminal }

// ValidationError lists every field that failed request validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, k := range sortedKeys(e.Fields) {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "inventory: invalid request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FailureReason maps an engine error onto a low-cardinality reason string.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrReservationNotFound):
		return FailureReasonNotFound
	case errors.Is(err, ErrInsufficientStock):
		return FailureReasonInsufficientStock
	case errors.Is(err, ErrConcurrencyConflict):
		return FailureReasonConflict
	case errors.Is(err, ErrAlreadyTerminal):
		return FailureReasonTerminal
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidQuantity):
		return FailureReasonValidation
	default:
		return FailureReasonPersistenceError
	}
}
