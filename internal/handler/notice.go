package handler

import (
	"log/slog"
	"net/http"

	"github.com/larderapp/larder/internal/auth"
	"github.com/larderapp/larder/internal/store"
)

type NoticeHandler struct {
	notices *store.NoticeStore
	logger  *slog.Logger
}

func NewNoticeHandler(notices *store.NoticeStore, logger *slog.Logger) *NoticeHandler {
	return &NoticeHandler{notices: notices, logger: logger}
}

func (h *NoticeHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	notices, err := h.notices.ListForUser(userID)
	if err != nil {
		h.logger.Error("list notices", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notices": notices})
}

// Dismiss deletes one notice. Dismissing one never touches the others.
func (h *NoticeHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.notices.Dismiss(id, userID); err != nil {
		h.logger.Error("dismiss notice", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to dismiss notice")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}
