package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/ports"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

// CachedDirectory is a read-through cache in front of the event directory.
type CachedDirectory struct {
	next ports.EventDirectory
	rdb  *redis.Client
	ttl  time.Duration
	log  *logger.Logger
}

func NewCachedDirectory(next ports.EventDirectory, rdb *redis.Client, ttl time.Duration, log *logger.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedDirectory{next: next, rdb: rdb, ttl: ttl, log: log.With("component", "directory_cache")}
}

func SessionInfoKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session-info:%s", sessionID.String())
}

func (d *CachedDirectory) GetSession(ctx context.Context, id uuid.UUID) (*domain.SessionInfo, error) {
	key := SessionInfoKey(id)

	raw, err := d.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var info domain.SessionInfo
		if err := json.Unmarshal(raw, &info); err == nil {
			return &info, nil
		}
		d.log.Warn("dropping undecodable session info", "session_id", id.String())
	case !errors.Is(err, redis.Nil):
		d.log.Warn("session info cache read failed", "session_id", id.String(), "error", err)
		return d.next.GetSession(ctx, id)
	}

	info, err := d.next.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(info); err == nil {
		if err := d.rdb.Set(ctx, key, raw, d.ttl).Err(); err != nil {
			d.log.Warn("session info cache write failed", "session_id", id.String(), "error", err)
		}
	}
	return info, nil
}

// Forget drops the cached copy after the catalog entry changed.
func (d *CachedDirectory) Forget(ctx context.Context, id uuid.UUID) error {
	return d.rdb.Del(ctx, SessionInfoKey(id)).Err()
}

var _ ports.EventDirectory = (*CachedDirectory)(nil)
