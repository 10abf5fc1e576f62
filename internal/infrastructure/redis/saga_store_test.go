package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	domsaga "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/saga"

	"github.com/google/uuid"
)

func setupStore(t *testing.T) *SagaStore {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client, err := NewClient(context.Background(), addr, "", 0)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return NewSagaStore(client, time.Minute)
}

func TestSagaStoreTracksUnfinished(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	sc := domsaga.New(uuid.NewString(), "O-"+uuid.NewString())
	sc.Append(domsaga.Entry{Step: domsaga.StepReserveInventory, Outcome: domsaga.OutcomeCompleted, ReservationIDs: []string{"R1"}})
	if err := s.Save(ctx, sc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, sc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.OrderID != sc.OrderID || len(got.Entries) != 1 || got.Entries[0].ReservationIDs[0] != "R1" {
		t.Fatalf("round trip lost data: %+v", got)
	}

	if !containsSaga(t, s, sc.ID) {
		t.Fatal("running saga missing from unfinished")
	}

	sc.SetStatus(domsaga.StatusCompensated)
	if err := s.Save(ctx, sc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if containsSaga(t, s, sc.ID) {
		t.Fatal("finished saga still listed as unfinished")
	}
}

func TestSagaStoreGetMissing(t *testing.T) {
	s := setupStore(t)
	if _, err := s.Get(context.Background(), uuid.NewString()); !errors.Is(err, domsaga.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func containsSaga(t *testing.T, s *SagaStore, id string) bool {
	t.Helper()
	list, err := s.Unfinished(context.Background())
	if err != nil {
		t.Fatalf("Unfinished: %v", err)
	}
	for _, sc := range list {
		if sc.ID == id {
			return true
		}
	}
	return false
}
