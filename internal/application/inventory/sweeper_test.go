package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/inventory"
)

type fixedLeader struct {
	leader bool
	err    error
}

func (l fixedLeader) IsLeader(context.Context) (bool, error) { return l.leader, l.err }

func TestSweeperExpiresOnceUnderConcurrentSweeps(t *testing.T) {
	ctx := context.Background()
	// Four workers contend on one record; give losers room to re-read.
	e, ledger, clk := newTestEngine(t, 10, WithRetry(50, time.Millisecond))

	var ids []string
	for i := 0; i < 3; i++ {
		r, err := e.Reserve(ctx, dominv.ReserveRequest{OrderID: "O1", SKU: "P1", Quantity: 2, Hold: 15 * time.Minute})
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		ids = append(ids, r.ID)
	}
	keep, err := e.Reserve(ctx, dominv.ReserveRequest{OrderID: "O2", SKU: "P1", Quantity: 1, Hold: time.Hour})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	clk.Advance(16 * time.Minute)

	a := NewSweeper(e, ledger, nil, SweeperConfig{Workers: 2}, nil)
	b := NewSweeper(e, ledger, nil, SweeperConfig{Workers: 2}, nil)

	var wg sync.WaitGroup
	results := make([]SweepResult, 2)
	for i, s := range []*Sweeper{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.SweepOnce(ctx)
			if err != nil {
				t.Errorf("SweepOnce: %v", err)
			}
			results[i] = res
		}()
	}
	wg.Wait()

	if total := results[0].Expired + results[1].Expired; total != 3 {
		t.Fatalf("expected 3 expirations across sweepers, got %d (%+v)", total, results)
	}
	rec := mustStock(t, e)
	if rec.Available != 9 || rec.Reserved != 1 || rec.Total != 10 {
		t.Fatalf("stock returned more or less than once: %+v", rec)
	}
	for _, id := range ids {
		r, _ := e.Reservation(ctx, id)
		if r.Status != dominv.ReservationExpired {
			t.Fatalf("reservation %s is %s", id, r.Status)
		}
	}
	if r, _ := e.Reservation(ctx, keep.ID); r.Status != dominv.ReservationActive {
		t.Fatalf("unexpired reservation touched: %s", r.Status)
	}

	// A later sweep finds nothing to do.
	res, err := a.SweepOnce(ctx)
	if err != nil || res.Expired != 0 {
		t.Fatalf("second pass: %v %+v", err, res)
	}
}

func TestSweeperSkipsConfirmedAndReleased(t *testing.T) {
	ctx := context.Background()
	e, ledger, clk := newTestEngine(t, 10)

	confirmed := reserve(t, e, "O1", 2)
	released := reserve(t, e, "O2", 2)
	if _, err := e.Confirm(ctx, confirmed.ID); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if _, err := e.Release(ctx, released.ID, "user"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	clk.Advance(time.Hour)

	res, err := NewSweeper(e, ledger, nil, SweeperConfig{}, nil).SweepOnce(ctx)
	if err != nil || res.Expired != 0 {
		t.Fatalf("sweep: %v %+v", err, res)
	}
	if rec := mustStock(t, e); rec.Total != 8 || rec.Available != 8 {
		t.Fatalf("unexpected stock %+v", rec)
	}

	// Expire on a terminal reservation is a quiet no-op.
	ok, err := e.Expire(ctx, confirmed.ID, clk.Now())
	if err != nil || ok {
		t.Fatalf("Expire(confirmed) = %v, %v", ok, err)
	}
}

func TestSweeperRespectsLeadership(t *testing.T) {
	ctx := context.Background()
	e, ledger, clk := newTestEngine(t, 10)
	reserve(t, e, "O1", 2)
	clk.Advance(time.Hour)

	res, err := NewSweeper(e, ledger, fixedLeader{leader: false}, SweeperConfig{}, nil).SweepOnce(ctx)
	if err != nil || res.Leader || res.Expired != 0 {
		t.Fatalf("follower swept: %v %+v", err, res)
	}

	boom := errors.New("zk down")
	if _, err := NewSweeper(e, ledger, fixedLeader{err: boom}, SweeperConfig{}, nil).SweepOnce(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected leader error, got %v", err)
	}

	res, err = NewSweeper(e, ledger, fixedLeader{leader: true}, SweeperConfig{}, nil).SweepOnce(ctx)
	if err != nil || res.Expired != 1 {
		t.Fatalf("leader sweep: %v %+v", err, res)
	}
}

func TestSweeperPurgesOldTerminalReservations(t *testing.T) {
	ctx := context.Background()
	e, ledger, clk := newTestEngine(t, 10)

	r := reserve(t, e, "O1", 1)
	if _, err := e.Release(ctx, r.ID, "user"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	clk.Advance(31 * 24 * time.Hour)

	s := NewSweeper(e, ledger, nil, SweeperConfig{}, nil)
	res, err := s.SweepOnce(ctx)
	if err != nil || res.Purged != 1 {
		t.Fatalf("purge: %v %+v", err, res)
	}
	if _, err := e.Reservation(ctx, r.ID); !errors.Is(err, dominv.ErrReservationNotFound) {
		t.Fatalf("expected purged, got %v", err)
	}

	// Purge runs at most once per day.
	r2 := reserve(t, e, "O2", 1)
	_, _ = e.Release(ctx, r2.ID, "user")
	clk.Advance(time.Hour)
	if res, _ := s.SweepOnce(ctx); res.Purged != 0 {
		t.Fatalf("purge ran twice within a day: %+v", res)
	}
}
