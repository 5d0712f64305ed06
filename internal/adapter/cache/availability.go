// Package cache holds the redis-backed read caches. Every miss or redis
// failure falls through to the database, so the caches never decide
// anything on their own.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/ports"
)

const DefaultTTL = 30 * time.Second

type AvailabilityCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAvailabilityCache(rdb *redis.Client, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AvailabilityCache{rdb: rdb, ttl: ttl}
}

func AvailabilityKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("seats:%s", sessionID.String())
}

func GenerationKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("seats:%s:gen", sessionID.String())
}

// setIfCurrent writes KEYS[1] only while the generation in KEYS[2] still
// matches ARGV[1]. A missing generation counts as 0.
var setIfCurrent = redis.NewScript(`
if (redis.call("GET", KEYS[2]) or "0") == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
end
return 0
`)

func (c *AvailabilityCache) Get(ctx context.Context, sessionID uuid.UUID) (*domain.Availability, error) {
	raw, err := c.rdb.Get(ctx, AvailabilityKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read availability: %w", err)
	}

	var a domain.Availability
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}
	return &a, nil
}

func (c *AvailabilityCache) Generation(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	gen, err := c.rdb.Get(ctx, GenerationKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read availability generation: %w", err)
	}
	return gen, nil
}

func (c *AvailabilityCache) Set(ctx context.Context, a *domain.Availability, generation int64) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode availability: %w", err)
	}
	keys := []string{AvailabilityKey(a.SessionID), GenerationKey(a.SessionID)}
	return setIfCurrent.Run(ctx, c.rdb, keys, strconv.FormatInt(generation, 10), string(raw), c.ttl.Milliseconds()).Err()
}

// Invalidate bumps the generation before deleting, so a reader that loaded
// counters before the change can no longer store them.
func (c *AvailabilityCache) Invalidate(ctx context.Context, sessionID uuid.UUID) error {
	if err := c.rdb.Incr(ctx, GenerationKey(sessionID)).Err(); err != nil {
		return err
	}
	return c.rdb.Del(ctx, AvailabilityKey(sessionID)).Err()
}

var _ ports.AvailabilityCache = (*AvailabilityCache)(nil)
