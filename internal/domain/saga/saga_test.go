package saga

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestUndoableIsLatestFirst(t *testing.T) {
	sc := New("S1", "O1")
	sc.Append(Entry{Step: StepReserveInventory, Outcome: OutcomeStarted, ReservationIDs: []string{"R1", "R2"}})
	sc.Append(Entry{Step: StepReserveInventory, Outcome: OutcomeCompleted, ReservationIDs: []string{"R1", "R2"}})
	sc.Append(Entry{Step: StepProcessPayment, Outcome: OutcomeCompleted, PaymentID: "PAY1", Amount: decimal.NewFromInt(40)})
	sc.Append(Entry{Step: StepClearCart, Outcome: OutcomeSkipped})

	undo := sc.Undoable()
	if len(undo) != 3 {
		t.Fatalf("expected 3 undoable entries, got %d", len(undo))
	}
	if undo[0].Step != StepProcessPayment {
		t.Fatalf("expected payment undone first, got %s", undo[0].Step)
	}
	if got := sc.ReservationIDs(); len(got) != 2 || got[0] != "R1" || got[1] != "R2" {
		t.Fatalf("unexpected reservation ids %v", got)
	}
	if !sc.Reached(StepClearCart) || sc.Reached(StepCompleteOrder) {
		t.Fatalf("Reached reports wrong steps")
	}
}

func TestAppendCopiesSlices(t *testing.T) {
	ids := []string{"R1"}
	sc := New("S1", "O1")
	sc.Append(Entry{Step: StepReserveInventory, Outcome: OutcomeCompleted, ReservationIDs: ids})
	ids[0] = "mutated"
	if sc.Entries[0].ReservationIDs[0] != "R1" {
		t.Fatalf("entry shares caller slice")
	}

	clone := sc.Clone()
	clone.Entries[0].ReservationIDs[0] = "changed"
	if sc.Entries[0].ReservationIDs[0] != "R1" {
		t.Fatalf("clone shares entry slices")
	}
}

func TestCompensationFailureUnwraps(t *testing.T) {
	refund := errors.New("refund rejected")
	err := error(&CompensationFailure{SagaID: "S1", OrderID: "O1", Failures: []error{refund}})
	if !errors.Is(err, ErrCompensationFailure) {
		t.Fatalf("expected ErrCompensationFailure")
	}
	if !errors.Is(err, refund) {
		t.Fatalf("expected inner failure reachable")
	}
	var cf *CompensationFailure
	if !errors.As(err, &cf) || cf.SagaID != "S1" {
		t.Fatalf("expected errors.As to recover the failure")
	}
}

func TestStatusFinished(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusRunning:            false,
		StatusCompensating:       false,
		StatusCompleted:          true,
		StatusCompensated:        true,
		StatusCompensationFailed: true,
	} {
		if got := s.Finished(); got != want {
			t.Errorf("%s.Finished() = %v, want %v", s, got, want)
		}
	}
}
