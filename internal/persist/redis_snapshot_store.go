package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"diary-client/internal/domain"
)

const redisCallTimeout = 500 * time.Millisecond

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisSnapshotStore struct {
	client redisKV
	key    string
}

// NewRedisSnapshotStore guarda el snapshot en una unica clave de Redis.
func NewRedisSnapshotStore(client *redis.Client, slot string) SnapshotStore {
	if client == nil {
		return nil
	}
	return newRedisSnapshotStore(client, slot)
}

func newRedisSnapshotStore(client redisKV, slot string) *redisSnapshotStore {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		slot = "default"
	}
	return &redisSnapshotStore{
		client: client,
		key:    "diary:session:" + slot,
	}
}

func (s *redisSnapshotStore) Load(ctx context.Context) (*domain.SessionSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}
	return decodeSnapshot(raw)
}

func (s *redisSnapshotStore) Save(ctx context.Context, snapshot domain.SessionSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()
	return s.client.Set(ctx, s.key, raw, 0).Err()
}

func (s *redisSnapshotStore) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, redisCallTimeout)
	defer cancel()
	return s.client.Del(ctx, s.key).Err()
}
