package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sentryview/sentryview/internal/data"
)

type notificationStore interface {
	ListRecent(ctx context.Context, since time.Time, ruleIDs []uuid.UUID) ([]*data.Notification, error)
}

type NotificationHandler struct {
	Notifications notificationStore
}

// GET /api/v1/notifications?since=RFC3339&rule_id=...
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid 'since' timestamp")
			return
		}
		since = t
	}

	var ruleIDs []uuid.UUID
	for _, s := range r.URL.Query()["rule_id"] {
		id, err := uuid.Parse(s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid rule_id")
			return
		}
		ruleIDs = append(ruleIDs, id)
	}

	notes, err := h.Notifications.ListRecent(r.Context(), since, ruleIDs)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if notes == nil {
		notes = []*data.Notification{}
	}
	respondJSON(w, http.StatusOK, notes)
}
