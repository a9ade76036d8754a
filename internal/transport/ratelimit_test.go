package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsThenBlocks(t *testing.T) {
	rl := NewRateLimiter(60) // burst == 60, 1 token/sec steady state
	for i := 0; i < 60; i++ {
		require.True(t, rl.Allow("caller-a"), "request %d should be within burst", i)
	}
	require.False(t, rl.Allow("caller-a"))
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1)
	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("b"))
}

func TestRateLimiter_Middleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(1)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, req)
	require.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, req)
	require.Equal(t, http.StatusTooManyRequests, w2.Code)
	require.NotEmpty(t, w2.Header().Get("Retry-After"))
}

func TestRateLimiter_Cleanup_ResetsAboveHighWaterMark(t *testing.T) {
	rl := NewRateLimiter(10)
	for i := 0; i < 10; i++ {
		rl.limiterFor(string(rune('a' + i)))
	}
	require.Len(t, rl.limiters, 10)
	rl.Cleanup()
	require.Len(t, rl.limiters, 10) // below the 10000 high-water mark, untouched
}
