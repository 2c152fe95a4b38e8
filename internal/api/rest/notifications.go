package rest

import (
	"net/http"

	"github.com/BearBump/ColisTrack/internal/models"
	"github.com/go-chi/chi/v5"
)

func (h *handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		writeError(w, r, err)
		return
	}
	unread, err := queryBool(r, "unread_only")
	if err != nil {
		writeError(w, r, err)
		return
	}
	nq := notificationQuery{Skip: skip, Limit: limit, Type: models.NotificationType(r.URL.Query().Get("type"))}
	if err := check(nq); err != nil {
		writeError(w, r, err)
		return
	}

	items, err := h.Notifications.List(r.Context(), models.NotificationFilter{
		Skip:       nq.Skip,
		Limit:      nq.Limit,
		UnreadOnly: unread != nil && *unread,
		Type:       nq.Type,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.MarkAllRead(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
