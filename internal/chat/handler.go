package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/pkondratev/chatwave/internal/errs"
	"github.com/pkondratev/chatwave/internal/middleware"
)

const defaultHistoryLimit = 50

// Handler serves the conversation/message REST surface. The realtime path
// lives in internal/realtime; this is the CRUD side backed by the same
// repository.
type Handler struct {
	repo *Repository
	log  *zap.Logger
}

func NewHandler(repo *Repository, log *zap.Logger) *Handler {
	return &Handler{repo: repo, log: log}
}

// StartConversation finds or creates the private conversation with the
// target user.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserKey).(int64)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetID <= 0 {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.TargetID == userID {
		http.Error(w, "cannot start a conversation with yourself", http.StatusBadRequest)
		return
	}

	id, err := h.repo.FindOrCreatePrivateConversation(r.Context(), userID, req.TargetID)
	if err != nil {
		h.log.Error("start conversation failed", zap.Int64("user", userID), zap.Error(err))
		http.Error(w, "could not start conversation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, startConversationResponse{ConversationID: id})
}

// ListConversations returns the ids of the caller's conversations.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserKey).(int64)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ids, err := h.repo.ListConversationsFor(r.Context(), userID)
	if err != nil {
		h.log.Error("list conversations failed", zap.Int64("user", userID), zap.Error(err))
		http.Error(w, "could not list conversations", http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, ids)
}

// GetChatHistory loads recent messages of a conversation the caller belongs to.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserKey).(int64)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conversationID, err := strconv.ParseInt(r.URL.Query().Get("conversation_id"), 10, 64)
	if err != nil || conversationID <= 0 {
		http.Error(w, "invalid conversation_id", http.StatusBadRequest)
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	member, err := h.repo.IsMember(r.Context(), conversationID, userID)
	if err != nil {
		h.log.Error("membership check failed", zap.Int64("conversation", conversationID), zap.Error(err))
		http.Error(w, "could not load history", http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "not a conversation member", http.StatusForbidden)
		return
	}

	msgs, err := h.repo.RecentMessages(r.Context(), conversationID, limit)
	if err != nil {
		h.log.Error("history query failed", zap.Int64("conversation", conversationID), zap.Error(err))
		http.Error(w, "could not load history", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// MarkRead flips a message's read flag.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserKey).(int64)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID <= 0 {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if _, err := h.repo.MarkMessageRead(r.Context(), req.MessageID, userID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		h.log.Error("mark read failed", zap.Int64("message", req.MessageID), zap.Error(err))
		http.Error(w, "could not mark read", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
