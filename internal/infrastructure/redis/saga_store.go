package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	domsaga "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/saga"

	goredis "github.com/redis/go-redis/v9"
)

const (
	sagaKeyPrefix = "saga:"
	unfinishedKey = "sagas:unfinished"
)

var _ domsaga.Store = (*SagaStore)(nil)

// SagaStore keeps each saga as one JSON value. Unfinished saga ids are tracked
// in a set so recovery does not scan the keyspace.
type SagaStore struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewSagaStore keeps finished sagas for ttl; zero keeps them forever.
func NewSagaStore(client goredis.UniversalClient, ttl time.Duration) *SagaStore {
	return &SagaStore{client: client, ttl: ttl}
}

// NewClient connects and pings a single-node client.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return client, nil
}

func sagaKey(id string) string { return sagaKeyPrefix + id }

func (s *SagaStore) Save(ctx context.Context, sc *domsaga.Context) error {
	if sc == nil || sc.ID == "" {
		return fmt.Errorf("saga store: id is required")
	}
	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("saga store: marshal %s: %w", sc.ID, err)
	}

	pipe := s.client.TxPipeline()
	if sc.Status.Finished() {
		pipe.Set(ctx, sagaKey(sc.ID), data, s.ttl)
		pipe.SRem(ctx, unfinishedKey, sc.ID)
	} else {
		pipe.Set(ctx, sagaKey(sc.ID), data, 0)
		pipe.SAdd(ctx, unfinishedKey, sc.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saga store: save %s: %w", sc.ID, err)
	}
	return nil
}

func (s *SagaStore) Get(ctx context.Context, id string) (*domsaga.Context, error) {
	data, err := s.client.Get(ctx, sagaKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domsaga.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("saga store: get %s: %w", id, err)
	}
	var sc domsaga.Context
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("saga store: decode %s: %w", id, err)
	}
	return &sc, nil
}

// Unfinished returns the sagas in the unfinished set, oldest first. Ids whose
// value is gone are dropped from the set.
func (s *SagaStore) Unfinished(ctx context.Context) ([]*domsaga.Context, error) {
	ids, err := s.client.SMembers(ctx, unfinishedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("saga store: unfinished: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sagaKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("saga store: unfinished: %w", err)
	}

	var (
		out   []*domsaga.Context
		stale []any
	)
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var sc domsaga.Context
		if err := json.Unmarshal([]byte(raw), &sc); err != nil {
			return nil, fmt.Errorf("saga store: decode %s: %w", ids[i], err)
		}
		if sc.Status.Finished() {
			stale = append(stale, ids[i])
			continue
		}
		out = append(out, &sc)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, unfinishedKey, stale...).Err(); err != nil {
			return nil, fmt.Errorf("saga store: prune unfinished: %w", err)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
