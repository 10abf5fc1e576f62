package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/outbox"
)

func seed(t *testing.T, l *Ledger, qty int) *domain.StockRecord {
	t.Helper()
	rec, err := domain.NewStockRecord(domain.NewKey("P1", ""), qty, domain.Levels{Minimum: 1})
	if err != nil {
		t.Fatalf("NewStockRecord: %v", err)
	}
	if err := l.Commit(context.Background(), domain.Change{Stock: rec, CreateStock: true}); err != nil {
		t.Fatalf("seed commit: %v", err)
	}
	return rec
}

func TestLedgerCommitRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	seed(t, l, 10)

	first, _ := l.Stock(ctx, domain.NewKey("P1", ""))
	second, _ := l.Stock(ctx, domain.NewKey("P1", ""))

	expected := first.Version
	if err := first.Reserve(3); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := l.Commit(ctx, domain.Change{Stock: first, ExpectedVersion: expected}); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	if err := second.Reserve(3); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	err := l.Commit(ctx, domain.Change{Stock: second, ExpectedVersion: expected})
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Fatalf("expected ErrConcurrencyConflict, got %v", err)
	}

	stored, _ := l.Stock(ctx, domain.NewKey("P1", ""))
	if stored.Available != 7 || stored.Reserved != 3 {
		t.Fatalf("stale commit leaked: %+v", stored)
	}
}

func TestLedgerCommitIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	rec := seed(t, l, 10)

	now := time.Now().UTC()
	res := domain.NewReservation("R1", "O1", rec.Key, 2, now, time.Minute)
	if err := l.Commit(ctx, domain.Change{Reservation: res, NewReservation: true}); err != nil {
		t.Fatalf("insert reservation: %v", err)
	}

	next := rec.Clone()
	_ = next.Reserve(2)
	msg, err := domoutbox.NewMessage("test", "R1", domain.NewInventoryReservedEvent(res))
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	err = l.Commit(ctx, domain.Change{
		Stock:           next,
		ExpectedVersion: rec.Version,
		Reservation:     res,
		NewReservation:  true,
		Messages:        []domoutbox.Message{msg},
	})
	if !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}

	stored, _ := l.Stock(ctx, rec.Key)
	if stored.Version != rec.Version {
		t.Fatalf("stock applied despite failed reservation check")
	}
	pending, _ := l.PendingMessages(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("messages applied despite failed commit")
	}
}

func TestLedgerOutboxLifecycle(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	rec := seed(t, l, 10)

	var msgs []domoutbox.Message
	for i := 0; i < 3; i++ {
		res := domain.NewReservation(string(rune('A'+i)), "O1", rec.Key, 1, time.Now(), time.Minute)
		m, err := domoutbox.NewMessage("test", res.ID, domain.NewInventoryReservedEvent(res))
		if err != nil {
			t.Fatalf("NewMessage: %v", err)
		}
		msgs = append(msgs, m)
	}
	if err := l.Commit(ctx, domain.Change{Messages: msgs}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	pending, _ := l.PendingMessages(ctx, 2)
	if len(pending) != 2 || pending[0].ID != msgs[0].ID {
		t.Fatalf("expected first two messages in order, got %v", pending)
	}
	if err := l.MarkFailed(ctx, pending[1].ID, errors.New("broker down")); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := l.MarkPublished(ctx, pending[0].ID); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}

	pending, _ = l.PendingMessages(ctx, 0)
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	if pending[0].Attempts != 1 || pending[0].LastError != "broker down" {
		t.Fatalf("failure not recorded: %+v", pending[0])
	}
}

func TestLedgerKeepsOneOpenAlertPerType(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	rec := seed(t, l, 1)

	for i := 0; i < 2; i++ {
		a := domain.DetectAlert(nil, rec)
		if a == nil {
			t.Fatalf("expected alert for available 1 at minimum 1")
		}
		if err := l.Commit(ctx, domain.Change{Alert: a}); err != nil {
			t.Fatalf("commit alert: %v", err)
		}
	}
	open, _ := l.Alerts(ctx, true)
	if len(open) != 1 {
		t.Fatalf("expected one open alert, got %d", len(open))
	}

	if _, err := l.ResolveAlert(ctx, open[0].ID, "ops", time.Now()); err != nil {
		t.Fatalf("ResolveAlert: %v", err)
	}
	open, _ = l.Alerts(ctx, true)
	all, _ := l.Alerts(ctx, false)
	if len(open) != 0 || len(all) != 1 || !all[0].Resolved || all[0].ResolvedBy != "ops" {
		t.Fatalf("unexpected alerts after resolve: open=%v all=%v", open, all)
	}
	if _, err := l.ResolveAlert(ctx, "missing", "ops", time.Now()); !errors.Is(err, domain.ErrAlertNotFound) {
		t.Fatalf("expected ErrAlertNotFound, got %v", err)
	}
}

func TestLedgerPurgeAndLapsed(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	rec := seed(t, l, 10)
	now := time.Now().UTC()

	old := domain.NewReservation("old", "O1", rec.Key, 1, now.Add(-48*time.Hour), time.Minute)
	_ = old.Confirm(now.Add(-47 * time.Hour))
	lapsed := domain.NewReservation("lapsed", "O2", rec.Key, 1, now.Add(-time.Hour), time.Minute)
	fresh := domain.NewReservation("fresh", "O3", rec.Key, 1, now, time.Hour)
	for _, r := range []*domain.Reservation{old, lapsed, fresh} {
		if err := l.Commit(ctx, domain.Change{Reservation: r, NewReservation: true}); err != nil {
			t.Fatalf("commit %s: %v", r.ID, err)
		}
	}

	got, _ := l.LapsedReservations(ctx, now, 10)
	if len(got) != 1 || got[0].ID != "lapsed" {
		t.Fatalf("expected only lapsed reservation, got %v", got)
	}

	n, _ := l.PurgeReservations(ctx, now.Add(-24*time.Hour))
	if n != 1 {
		t.Fatalf("expected 1 purged, got %d", n)
	}
	if _, err := l.Reservation(ctx, "old"); !errors.Is(err, domain.ErrReservationNotFound) {
		t.Fatalf("expected purged reservation gone, got %v", err)
	}
}
