package handlers

import (
	"net/http"
	"strconv"

	"captain-dispatch/internal/logx"
)

const (
	defaultUnreadLimit = 50
	maxUnreadLimit     = 200
)

// NotificationHandler serves the caller's notification inbox.
type NotificationHandler struct {
	logger logx.Logger
	uc     notificationUsecase
}

// NewNotificationHandler wires the notification usecase into HTTP handlers.
func NewNotificationHandler(logger logx.Logger, uc notificationUsecase) *NotificationHandler {
	if logger == nil {
		logger = logx.Nop()
	}
	return &NotificationHandler{logger: logger, uc: uc}
}

// Unread handles GET /notifications/unread?since=&limit=.
// Clients call it after a websocket reconnect to backfill missed pushes.
func (h *NotificationHandler) Unread(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(h.logger, w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	q := r.URL.Query()
	since, err := parseSince(q.Get("since"))
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	limit := defaultUnreadLimit
	if s := q.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v <= 0 {
			writeError(h.logger, w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(v, maxUnreadLimit)
	}

	list, err := h.uc.Unread(r.Context(), p.ID, since, limit)
	if err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	writeJSON(h.logger, w, r, http.StatusOK, notificationsToResponse(list))
}

// MarkRead handles POST /notifications/{id}/read.
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(r)
	if !ok {
		writeError(h.logger, w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := idFromURL(r, "id")
	if err != nil {
		writeError(h.logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.uc.MarkRead(r.Context(), p.ID, id); err != nil {
		writeServiceError(h.logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
