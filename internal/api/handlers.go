package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"azdocs.dev/docschat/internal/auth"
	"azdocs.dev/docschat/internal/core"
	"azdocs.dev/docschat/internal/store"
)

type contextKey string

const userIDKey contextKey = "userID"

type APIHandler struct {
	chatService *core.ChatService
	tokens      *auth.TokenService
	logger      *slog.Logger
}

func NewAPIHandler(cs *core.ChatService, tokens *auth.TokenService, logger *slog.Logger) *APIHandler {
	return &APIHandler{chatService: cs, tokens: tokens, logger: logger}
}

// AuthMiddleware resolves the bearer token to a user id and stashes it in
// the request context. Everything behind it can assume an authenticated
// caller.
func (h *APIHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		userID, err := h.tokens.Verify(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}

type ChatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.chatService.ProcessTurn(r.Context(), userIDFrom(r), req.ChatID, req.Message)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.chatService.ListChats(r.Context(), userIDFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

func (h *APIHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatService.GetChat(r.Context(), userIDFrom(r), chi.URLParam(r, "chatID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

type NewChatResponse struct {
	ChatID string `json:"chat_id"`
}

func (h *APIHandler) NewChatHandler(w http.ResponseWriter, r *http.Request) {
	conv, err := h.chatService.NewChat(r.Context(), userIDFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, NewChatResponse{ChatID: conv.ID})
}

type SaveChatRequest struct {
	ChatID   string              `json:"chat_id"`
	Messages []store.ChatMessage `json:"messages"`
}

type SaveChatResponse struct {
	Status string              `json:"status"`
	Chat   *store.Conversation `json:"chat"`
}

func (h *APIHandler) SaveChatHandler(w http.ResponseWriter, r *http.Request) {
	var req SaveChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	conv, err := h.chatService.SaveChat(r.Context(), userIDFrom(r), req.ChatID, req.Messages)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, SaveChatResponse{Status: "success", Chat: conv})
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError is the single translation point from the domain error taxonomy
// to HTTP. Callers only ever see the category message; detail stays in the
// server log.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *core.ValidationError
		notFoundErr   *core.NotFoundError
		upstreamErr   *core.UpstreamError
	)

	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
	case errors.As(err, &notFoundErr):
		http.Error(w, notFoundErr.Error(), http.StatusNotFound)
	case errors.As(err, &upstreamErr):
		h.logger.Error("upstream failure", "path", r.URL.Path, "op", upstreamErr.Op, "error", upstreamErr.Err)
		http.Error(w, "upstream service failure", http.StatusBadGateway)
	default:
		h.logger.Error("unexpected error", "path", r.URL.Path, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
