package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sentryview/sentryview/internal/ai"
	"github.com/sentryview/sentryview/internal/data"
)

type eventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*data.Event, error)
	ListWindow(ctx context.Context, from, to time.Time) ([]*data.Event, error)
}

// Reanalyzer re-runs AI analysis for an event on demand.
type Reanalyzer interface {
	Reanalyze(ctx context.Context, eventID uuid.UUID, frames [][]byte, clip []byte) (*data.Event, error)
}

type EventHandler struct {
	Events     eventStore
	Reanalyzer Reanalyzer
}

// GET /api/v1/events?from=RFC3339&to=RFC3339
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	if s := r.URL.Query().Get("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid 'from' timestamp")
			return
		}
		from = t
	}
	if s := r.URL.Query().Get("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid 'to' timestamp")
			return
		}
		to = t
	}

	events, err := h.Events.ListWindow(r.Context(), from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []*data.Event{}
	}
	respondJSON(w, http.StatusOK, events)
}

// GET /api/v1/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	evt, err := h.Events.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrRecordNotFound) {
			respondError(w, http.StatusNotFound, "event not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, evt)
}

// POST /api/v1/events/{id}/reanalyze
// Frames and clip arrive base64-encoded in the JSON body; the original
// capture payload is not retained server-side.
func (h *EventHandler) Reanalyze(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	var req struct {
		Frames [][]byte `json:"frames"`
		Clip   []byte   `json:"clip,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Frames) == 0 && len(req.Clip) == 0 {
		respondError(w, http.StatusBadRequest, "frames or clip required")
		return
	}

	evt, err := h.Reanalyzer.Reanalyze(r.Context(), id, req.Frames, req.Clip)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrRecordNotFound):
			respondError(w, http.StatusNotFound, "event not found")
		case errors.Is(err, ai.ErrRetriesExhausted):
			respondError(w, http.StatusTooManyRequests, "re-analysis limit reached for this event")
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, evt)
}
