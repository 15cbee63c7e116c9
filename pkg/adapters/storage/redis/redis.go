package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crewd/crewd/pkg/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// OverrideStore implements ports.OverrideStore on Redis. Per-worker
// overrides are stored as JSON values with a TTL so stale preferences
// age out.
type OverrideStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewOverrideStore creates a Redis-backed override store.
func NewOverrideStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *OverrideStore {
	return &OverrideStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// GetOverrides returns the stored overrides for a worker id, or (nil, nil)
// on a miss.
func (s *OverrideStore) GetOverrides(ctx context.Context, workerID string) (*domain.ProfileOverrides, error) {
	key := getOverrideKey(workerID)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get overrides: %w", err)
	}

	var o domain.ProfileOverrides
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal overrides: %w", err)
	}
	return &o, nil
}

// SaveOverrides stores overrides for a worker id with the configured TTL.
// A nil value clears them.
func (s *OverrideStore) SaveOverrides(ctx context.Context, workerID string, o *domain.ProfileOverrides) error {
	key := getOverrideKey(workerID)

	if o == nil {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to delete overrides: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal overrides: %w", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save overrides: %w", err)
	}

	s.logger.Debug("overrides saved", zap.String("worker_id", workerID))
	return nil
}

func getOverrideKey(workerID string) string {
	return fmt.Sprintf("crewd:overrides:%s", workerID)
}
