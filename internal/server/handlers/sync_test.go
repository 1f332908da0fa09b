package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zsync "github.com/iudanet/zettelsync/internal/sync"
	"github.com/iudanet/zettelsync/pkg/api"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// mockPuller реализует Puller для тестов хендлеров
type mockPuller struct {
	resp *api.PullResponse
	err  error

	gotUserID string
	gotReq    api.PullRequest
}

func (m *mockPuller) Pull(ctx context.Context, userID string, req api.PullRequest) (*api.PullResponse, error) {
	m.gotUserID = userID
	m.gotReq = req
	return m.resp, m.err
}

// mockPusher реализует Pusher для тестов хендлеров
type mockPusher struct {
	err error

	gotUserID string
	gotReq    api.PushRequest
}

func (m *mockPusher) Push(ctx context.Context, userID string, req api.PushRequest) (zsync.Affected, error) {
	m.gotUserID = userID
	m.gotReq = req
	return zsync.Affected{}, m.err
}

func newSyncRequest(t *testing.T, method, path string, body any, userID string) *http.Request {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	if userID != "" {
		ctx := context.WithValue(req.Context(), UserIDKey, userID)
		req = req.WithContext(ctx)
	}
	return req
}

func TestHandlePull_Success(t *testing.T) {
	puller := &mockPuller{resp: &api.PullResponse{
		Cookie:                &api.Cookie{CVRID: "cvr-1", Order: 3},
		LastMutationIDChanges: map[string]int64{"client-1": 7},
		Patch: []api.PatchOperation{
			{Op: api.OpPut, Key: "workspace/w1", Value: json.RawMessage(`{"id":"w1"}`)},
		},
	}}
	handler := NewSyncHandler(setupTestLogger(), puller, &mockPusher{})

	req := newSyncRequest(t, http.MethodPost, "/api/v1/sync/pull", api.PullRequest{
		ClientGroupID: "group-1",
	}, "user-1")

	w := httptest.NewRecorder()
	handler.HandlePull(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", puller.gotUserID)
	assert.Equal(t, "group-1", puller.gotReq.ClientGroupID)

	var resp api.PullResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Cookie.Order)
	assert.Equal(t, map[string]int64{"client-1": 7}, resp.LastMutationIDChanges)
	require.Len(t, resp.Patch, 1)
	assert.Equal(t, "workspace/w1", resp.Patch[0].Key)
}

func TestHandlePull_NoUserInContext(t *testing.T) {
	handler := NewSyncHandler(setupTestLogger(), &mockPuller{}, &mockPusher{})

	req := newSyncRequest(t, http.MethodPost, "/api/v1/sync/pull", api.PullRequest{}, "")
	w := httptest.NewRecorder()
	handler.HandlePull(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandlePull_MethodNotAllowed(t *testing.T) {
	handler := NewSyncHandler(setupTestLogger(), &mockPuller{}, &mockPusher{})

	req := newSyncRequest(t, http.MethodGet, "/api/v1/sync/pull", nil, "user-1")
	w := httptest.NewRecorder()
	handler.HandlePull(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandlePull_BadBody(t *testing.T) {
	handler := NewSyncHandler(setupTestLogger(), &mockPuller{}, &mockPusher{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/pull", bytes.NewReader([]byte(`{`)))
	req = req.WithContext(context.WithValue(req.Context(), UserIDKey, "user-1"))

	w := httptest.NewRecorder()
	handler.HandlePull(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePull_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "invalid request", err: zsync.ErrInvalidRequest, wantStatus: http.StatusBadRequest},
		{name: "unauthorized", err: zsync.ErrUnauthorized, wantStatus: http.StatusForbidden},
		{name: "internal", err: assert.AnError, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSyncHandler(setupTestLogger(), &mockPuller{err: tt.err}, &mockPusher{})

			req := newSyncRequest(t, http.MethodPost, "/api/v1/sync/pull", api.PullRequest{
				ClientGroupID: "group-1",
			}, "user-1")

			w := httptest.NewRecorder()
			handler.HandlePull(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestHandlePush_Success(t *testing.T) {
	pusher := &mockPusher{}
	handler := NewSyncHandler(setupTestLogger(), &mockPuller{}, pusher)

	req := newSyncRequest(t, http.MethodPost, "/api/v1/sync/push", api.PushRequest{
		ClientGroupID: "group-1",
		Mutations: []api.Mutation{
			{ClientID: "client-1", ID: 1, Name: "createWorkspace", Args: json.RawMessage(`{}`)},
		},
	}, "user-1")

	w := httptest.NewRecorder()
	handler.HandlePush(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", pusher.gotUserID)
	assert.Equal(t, "group-1", pusher.gotReq.ClientGroupID)
	assert.Len(t, pusher.gotReq.Mutations, 1)
}

func TestHandlePush_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "unknown mutation", err: zsync.ErrUnknownMutation, wantStatus: http.StatusBadRequest},
		{name: "unauthorized", err: zsync.ErrUnauthorized, wantStatus: http.StatusForbidden},
		{name: "mutation from future", err: zsync.ErrMutationFromFuture, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSyncHandler(setupTestLogger(), &mockPuller{}, &mockPusher{err: tt.err})

			req := newSyncRequest(t, http.MethodPost, "/api/v1/sync/push", api.PushRequest{
				ClientGroupID: "group-1",
			}, "user-1")

			w := httptest.NewRecorder()
			handler.HandlePush(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)

			var resp api.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}
