package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iudanet/zettelsync/internal/server/handlers"
)

func TestRateLimiter_Allow(t *testing.T) {
	logger := setupTestLogger()
	rl := NewRateLimiter(3, time.Minute, logger)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("user:alice"), "request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow("user:alice"), "request over the limit should be denied")

	// Другой ключ не затронут
	assert.True(t, rl.Allow("user:bob"))
}

func TestRateLimiter_RefillAfterWindow(t *testing.T) {
	logger := setupTestLogger()
	rl := NewRateLimiter(1, 10*time.Millisecond, logger)
	defer rl.Stop()

	assert.True(t, rl.Allow("user:alice"))
	assert.False(t, rl.Allow("user:alice"))

	time.Sleep(15 * time.Millisecond)

	assert.True(t, rl.Allow("user:alice"), "tokens should refill after the window")
}

func TestRateLimitMiddleware_ByUser(t *testing.T) {
	logger := setupTestLogger()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := RateLimitMiddleware(2, time.Minute, logger)(handler)

	doRequest := func(userID string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/push", nil)
		ctx := context.WithValue(req.Context(), handlers.UserIDKey, userID)
		w := httptest.NewRecorder()
		wrapped.ServeHTTP(w, req.WithContext(ctx))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, doRequest("alice"))
	assert.Equal(t, http.StatusOK, doRequest("alice"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest("alice"))

	// Лимит считается per-user
	assert.Equal(t, http.StatusOK, doRequest("bob"))
}

func TestRateLimitMiddleware_FallbackToIP(t *testing.T) {
	logger := setupTestLogger()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	wrapped := RateLimitMiddleware(1, time.Minute, logger)(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.0.2.1:1234",
			want:       "192.0.2.1:1234",
		},
		{
			name:       "x-forwarded-for single",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5"},
			remoteAddr: "192.0.2.1:1234",
			want:       "203.0.113.5",
		},
		{
			name:       "x-forwarded-for list takes first",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"},
			remoteAddr: "192.0.2.1:1234",
			want:       "203.0.113.5",
		},
		{
			name:       "x-real-ip",
			headers:    map[string]string{"X-Real-IP": "203.0.113.9"},
			remoteAddr: "192.0.2.1:1234",
			want:       "203.0.113.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
