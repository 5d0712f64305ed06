package cache_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srgjo27/session_reservation/internal/adapter/cache"
	"github.com/srgjo27/session_reservation/internal/core/domain"
	"github.com/srgjo27/session_reservation/internal/core/ports/mocks"
	"github.com/srgjo27/session_reservation/internal/platform/logger"
)

func TestAvailabilityCache_Miss(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	c := cache.NewAvailabilityCache(db, time.Minute)
	sessionID := uuid.New()

	mockRedis.ExpectGet(cache.AvailabilityKey(sessionID)).RedisNil()

	got, err := c.Get(context.Background(), sessionID)

	assert.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestAvailabilityCache_SetThenHit(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	c := cache.NewAvailabilityCache(db, time.Minute)
	ctx := context.Background()
	sessionID := uuid.New()
	a := &domain.Availability{SessionID: sessionID, MaxEnrollments: 10, EnrolledCount: 3, HeldCount: 2, Available: 5, WaitlistLength: 1}
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	keys := []string{"seats:" + sessionID.String(), "seats:" + sessionID.String() + ":gen"}

	mockRedis.ExpectGet("seats:" + sessionID.String() + ":gen").RedisNil()
	mockRedis.ExpectEvalSha(cache.SetIfCurrentHash, keys, "0", string(raw), int64(60000)).SetVal(int64(1))
	mockRedis.ExpectGet("seats:" + sessionID.String()).SetVal(string(raw))

	gen, err := c.Generation(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)
	require.NoError(t, c.Set(ctx, a, gen))
	got, err := c.Get(ctx, sessionID)

	require.NoError(t, err)
	assert.Equal(t, a, got)
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestAvailabilityCache_SetPassesReadGeneration(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	c := cache.NewAvailabilityCache(db, time.Minute)
	ctx := context.Background()
	sessionID := uuid.New()
	a := &domain.Availability{SessionID: sessionID, MaxEnrollments: 4, Available: 4}
	raw, err := json.Marshal(a)
	require.NoError(t, err)
	keys := []string{cache.AvailabilityKey(sessionID), cache.GenerationKey(sessionID)}

	mockRedis.ExpectGet(cache.GenerationKey(sessionID)).SetVal("7")
	mockRedis.ExpectEvalSha(cache.SetIfCurrentHash, keys, "7", string(raw), int64(60000)).SetVal(int64(0))

	gen, err := c.Generation(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), gen)
	assert.NoError(t, c.Set(ctx, a, gen))
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestAvailabilityCache_Invalidate(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	c := cache.NewAvailabilityCache(db, 0)
	sessionID := uuid.New()

	mockRedis.ExpectIncr(cache.GenerationKey(sessionID)).SetVal(1)
	mockRedis.ExpectDel(cache.AvailabilityKey(sessionID)).SetVal(1)

	assert.NoError(t, c.Invalidate(context.Background(), sessionID))
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestAvailabilityCache_Fail_InvalidateStopsWhenGenerationFails(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	c := cache.NewAvailabilityCache(db, 0)
	sessionID := uuid.New()

	mockRedis.ExpectIncr(cache.GenerationKey(sessionID)).SetErr(errors.New("connection refused"))

	assert.Error(t, c.Invalidate(context.Background(), sessionID))
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestAvailabilityCache_Fail_RedisDown(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	c := cache.NewAvailabilityCache(db, time.Minute)
	sessionID := uuid.New()

	mockRedis.ExpectGet(cache.AvailabilityKey(sessionID)).SetErr(errors.New("connection refused"))

	got, err := c.Get(context.Background(), sessionID)

	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestCachedDirectory_ReadThrough(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	next := mocks.NewEventDirectory(t)
	d := cache.NewCachedDirectory(next, db, time.Minute, logger.NewNop())
	ctx := context.Background()
	sessionID := uuid.New()
	info := &domain.SessionInfo{ID: sessionID, Name: "Intro", UnitPrice: 2500, MaxEnrollments: 40}
	raw, err := json.Marshal(info)
	require.NoError(t, err)
	key := cache.SessionInfoKey(sessionID)

	next.On("GetSession", ctx, sessionID).Return(info, nil).Once()
	mockRedis.ExpectGet(key).RedisNil()
	mockRedis.ExpectSet(key, raw, time.Minute).SetVal("OK")
	mockRedis.ExpectGet(key).SetVal(string(raw))

	first, err := d.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, info, first)

	second, err := d.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, info, second)

	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestCachedDirectory_FallsThroughWhenRedisFails(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	next := mocks.NewEventDirectory(t)
	d := cache.NewCachedDirectory(next, db, time.Minute, logger.NewNop())
	ctx := context.Background()
	sessionID := uuid.New()
	info := &domain.SessionInfo{ID: sessionID, MaxEnrollments: 5}

	mockRedis.ExpectGet(cache.SessionInfoKey(sessionID)).SetErr(errors.New("timeout"))
	next.On("GetSession", ctx, sessionID).Return(info, nil).Once()

	got, err := d.GetSession(ctx, sessionID)

	require.NoError(t, err)
	assert.Same(t, info, got)
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestCachedDirectory_Fail_NotFound(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	next := mocks.NewEventDirectory(t)
	d := cache.NewCachedDirectory(next, db, time.Minute, logger.NewNop())
	ctx := context.Background()
	sessionID := uuid.New()

	mockRedis.ExpectGet(cache.SessionInfoKey(sessionID)).RedisNil()
	next.On("GetSession", ctx, sessionID).Return(nil, domain.NotFound("event session", sessionID)).Once()

	_, err := d.GetSession(ctx, sessionID)

	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}

func TestCachedDirectory_Forget(t *testing.T) {
	db, mockRedis := redismock.NewClientMock()
	d := cache.NewCachedDirectory(mocks.NewEventDirectory(t), db, time.Minute, logger.NewNop())
	sessionID := uuid.New()

	mockRedis.ExpectDel(cache.SessionInfoKey(sessionID)).SetVal(1)

	assert.NoError(t, d.Forget(context.Background(), sessionID))
	assert.NoError(t, mockRedis.ExpectationsWereMet())
}
