package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domsaga "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/saga"
)

type SagaStore struct {
	mu    sync.RWMutex
	sagas map[string]*domsaga.Context
}

func NewSagaStore() *SagaStore {
	return &SagaStore{sagas: make(map[string]*domsaga.Context)}
}

func (s *SagaStore) Save(ctx context.Context, sc *domsaga.Context) error {
	_ = ctx
	if sc == nil || sc.ID == "" {
		return fmt.Errorf("saga store: id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sagas[sc.ID] = sc.Clone()
	return nil
}

func (s *SagaStore) Get(ctx context.Context, id string) (*domsaga.Context, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.sagas[id]
	if !ok {
		return nil, domsaga.ErrNotFound
	}
	return sc.Clone(), nil
}

func (s *SagaStore) Unfinished(ctx context.Context) ([]*domsaga.Context, error) {
	_ = ctx

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domsaga.Context
	for _, sc := range s.sagas {
		if !sc.Status.Finished() {
			out = append(out, sc.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
