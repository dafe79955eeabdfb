package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-dispatch/internal/logging"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "1.1.1.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "1.1.1.1")
	assert.False(t, ok)

	ok, _ = l.Allow(ctx, "2.2.2.2")
	assert.True(t, ok, "budgets are per key")

	now = now.Add(61 * time.Second)
	ok, _ = l.Allow(ctx, "1.1.1.1")
	assert.True(t, ok, "window slid past the old requests")
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(NewMemoryLimiter(1, time.Minute), logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/api/trips", nil)
	req.RemoteAddr = "192.168.1.2:12345"

	w, called := serve(h, req)
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)

	w, called = serve(h, req)
	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	w, called := serve(RateLimit(failingLimiter{}, logging.Discard()), httptest.NewRequest(http.MethodGet, "/api/trips", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.3")
	assert.Equal(t, "203.0.113.7", getClientIP(req))

	v6 := httptest.NewRequest(http.MethodGet, "/", nil)
	v6.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", getClientIP(v6))
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	l := NewRedisLimiter(client, 2, time.Minute)
	l.prefix = "ratelimit:test:" + time.Now().Format("150405.000000") + ":"

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "ip")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := client.TTL(ctx, l.prefix+"ip").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
