package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStore_RevokeAndCheck(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	revoked, err := s.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.Revoke(ctx, "jti-1", time.Hour))
	revoked, err = s.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	assert.True(t, mr.Exists("revoked:jti:jti-1"))
	assert.Equal(t, time.Hour, mr.TTL("revoked:jti:jti-1"))
}

func TestRedisStore_Expiry(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Revoke(ctx, "jti-1", time.Minute))
	mr.FastForward(2 * time.Minute)

	revoked, err := s.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisStore_NonPositiveTTLIsNoop(t *testing.T) {
	s, mr := newTestRedisStore(t)
	require.NoError(t, s.Revoke(context.Background(), "jti-1", 0))
	assert.False(t, mr.Exists("revoked:jti:jti-1"))
}

func TestRedisStore_EmptyJTI(t *testing.T) {
	s, _ := newTestRedisStore(t)
	assert.ErrorIs(t, s.Revoke(context.Background(), "", time.Hour), ErrEmptyJTI)
}

func TestRedisStore_ConnectionError(t *testing.T) {
	s, mr := newTestRedisStore(t)
	mr.Close()

	_, err := s.IsRevoked(context.Background(), "jti-1")
	assert.Error(t, err)
	assert.Error(t, s.Ping(context.Background()))
}
