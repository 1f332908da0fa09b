package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	})

	wrapped := LoggingMiddleware(logger)(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/push", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "created", w.Body.String())

	logged := buf.String()
	assert.Contains(t, logged, "HTTP request")
	assert.Contains(t, logged, "/api/v1/sync/push")
	assert.Contains(t, logged, "status=201")
	assert.Contains(t, logged, "bytes_written=7")
}

func TestLoggingMiddleware_DefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	// Handler без явного WriteHeader
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	wrapped := LoggingMiddleware(logger)(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Contains(t, buf.String(), "status=200")
}

func TestLoggingMiddleware_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	wrapped := LoggingMiddleware(logger)(handler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/pull", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestLoggingWithSkip(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	wrapped := LoggingWithSkip(logger, []string{"/api/v1/health"})(handler)

	// Пропускаемый путь не логируется
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	wrapped.ServeHTTP(httptest.NewRecorder(), req)
	assert.Empty(t, buf.String())

	// Остальные пути логируются
	req = httptest.NewRequest(http.MethodPost, "/api/v1/sync/pull", nil)
	wrapped.ServeHTTP(httptest.NewRecorder(), req)
	assert.Contains(t, buf.String(), "/api/v1/sync/pull")
}
