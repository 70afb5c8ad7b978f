package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"devstream/internal/core/domain"
	"devstream/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisSuppressionRepository stores chat timeouts and bans as JSON values
// whose key TTL matches the suppression expiry, so Redis drops them on its
// own and bans survive a relay restart.
type RedisSuppressionRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisSuppressionRepository(client *redis.Client) ports.SuppressionRepository {
	return &RedisSuppressionRepository{
		client: client,
		prefix: keyPrefix + "suppression:",
		now:    time.Now,
	}
}

func (r *RedisSuppressionRepository) key(persistentID string) string {
	return r.prefix + persistentID
}

func (r *RedisSuppressionRepository) Put(ctx context.Context, s *domain.Suppression) error {
	ttl := s.Until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}

	existing, err := r.Get(ctx, s.PersistentID)
	if err != nil && !errors.Is(err, domain.ErrSuppressionNotFound) {
		return err
	}
	if existing != nil && existing.Until.After(s.Until) {
		return nil
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal suppression: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.PersistentID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set suppression in Redis: %w", err)
	}
	return nil
}

func (r *RedisSuppressionRepository) Get(ctx context.Context, persistentID string) (*domain.Suppression, error) {
	data, err := r.client.Get(ctx, r.key(persistentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSuppressionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get suppression from Redis: %w", err)
	}

	var s domain.Suppression
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suppression: %w", err)
	}
	if !s.Active(r.now()) {
		return nil, domain.ErrSuppressionNotFound
	}
	return &s, nil
}
