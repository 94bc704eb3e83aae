package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coffee-checkout/internal/model"
)

// DefaultTTL is how long an untouched cart survives in Redis.
const DefaultTTL = 7 * 24 * time.Hour

// RedisStore keeps carts as JSON under cart:{userID}.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed cart store. ttl <= 0 uses DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

type storedCart struct {
	Lines     []model.CartLine `json:"lines"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Load reads the user's cart.
func (s *RedisStore) Load(ctx context.Context, userID string) (model.CartSnapshot, error) {
	data, err := s.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CartSnapshot{}, ErrCartNotFound
	}
	if err != nil {
		return model.CartSnapshot{}, fmt.Errorf("redis get failed: %w", err)
	}

	var c storedCart
	if err := json.Unmarshal(data, &c); err != nil {
		return model.CartSnapshot{}, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return model.CartSnapshot{Lines: c.Lines, CapturedAt: s.now()}, nil
}

// Save replaces the user's cart and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, userID string, lines []model.CartLine) error {
	data, err := json.Marshal(storedCart{Lines: lines, UpdatedAt: s.now()})
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := s.client.Set(ctx, cacheKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Clear deletes the user's cart.
func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, cacheKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(userID string) string {
	return fmt.Sprintf("cart:%s", userID)
}
