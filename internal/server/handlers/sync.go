package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	zsync "github.com/iudanet/zettelsync/internal/sync"
	"github.com/iudanet/zettelsync/pkg/api"
)

// contextKey тип для ключей контекста
type contextKey string

// UserIDKey ключ для хранения user_id в контексте
const UserIDKey contextKey = "user_id"

// GetUserID извлекает user_id из контекста запроса
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// Puller определяет интерфейс pull-обработчика ядра синхронизации
type Puller interface {
	Pull(ctx context.Context, userID string, req api.PullRequest) (*api.PullResponse, error)
}

// Pusher определяет интерфейс обработчика мутаций
type Pusher interface {
	Push(ctx context.Context, userID string, req api.PushRequest) (zsync.Affected, error)
}

// SyncHandler handles pull and push requests of the sync protocol
type SyncHandler struct {
	logger *slog.Logger
	puller Puller
	pusher Pusher
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, puller Puller, pusher Pusher) *SyncHandler {
	return &SyncHandler{
		logger: logger,
		puller: puller,
		pusher: pusher,
	}
}

// HandlePull обрабатывает POST /api/v1/sync/pull
func (h *SyncHandler) HandlePull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.logger.Error("user id not found in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode pull request", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.puller.Pull(ctx, userID, req)
	if err != nil {
		h.writeSyncError(w, err, "pull")
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandlePush обрабатывает POST /api/v1/sync/push.
// Ответ намеренно без деталей по отдельным мутациям: push либо принят,
// либо нет; судьбу конкретных изменений клиент узнает из следующего pull.
func (h *SyncHandler) HandlePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.logger.Error("user id not found in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req api.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode push request", "error", err)
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.logger.Info("push request",
		"user_id", userID,
		"client_group_id", req.ClientGroupID,
		"mutations", len(req.Mutations),
	)

	if _, err := h.pusher.Push(ctx, userID, req); err != nil {
		h.writeSyncError(w, err, "push")
		return
	}

	h.writeJSON(w, http.StatusOK, struct{}{})
}

// writeSyncError маппит ошибки ядра синхронизации на HTTP статусы
func (h *SyncHandler) writeSyncError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, zsync.ErrInvalidRequest) || errors.Is(err, zsync.ErrUnknownMutation):
		h.logger.Warn("invalid sync request", "op", op, "error", err)
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, zsync.ErrUnauthorized):
		h.logger.Warn("sync authorization failure", "op", op, "error", err)
		h.writeError(w, http.StatusForbidden, "forbidden")
	default:
		// В том числе ErrMutationFromFuture: клиент должен прекратить
		// автоматические повторы и уйти в полный resync
		h.logger.Error("sync request failed", "op", op, "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *SyncHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *SyncHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, api.ErrorResponse{Error: msg})
}
