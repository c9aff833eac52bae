package audit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// Router creates a chi.Router for the audit API, mounted at /api/v1/audit.
func Router(store *Store) chi.Router {
	r := chi.NewRouter()
	r.Get("/events", ListEventsHandler(store))
	r.Get("/events/{eventId}", GetEventHandler(store))
	return r
}

// ListEventsHandler handles GET /api/v1/audit/events.
// Query params: actor, action, resourceType, pageSize, pageToken
func ListEventsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := ListFilter{
			Actor:        q.Get("actor"),
			Action:       q.Get("action"),
			ResourceType: q.Get("resourceType"),
		}

		pageSize := 20
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		events, next, total, err := store.List(r.Context(), filter, pageSize, q.Get("pageToken"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list audit events: %v", err))
			return
		}

		out := make([]eventResponse, len(events))
		for i := range events {
			out[i] = toResponse(&events[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"events":        out,
			"nextPageToken": next,
			"totalSize":     total,
		})
	}
}

// GetEventHandler handles GET /api/v1/audit/events/{eventId}.
func GetEventHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "eventId")
		event, err := store.Get(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get audit event: %v", err))
			return
		}
		if event == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("audit event %q not found", id))
			return
		}
		writeJSON(w, http.StatusOK, toResponse(event))
	}
}

type eventResponse struct {
	ID           string         `json:"id"`
	Actor        string         `json:"actor"`
	ActorID      int64          `json:"actorId,omitempty"`
	RequestID    string         `json:"requestId,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resourceType,omitempty"`
	ResourceIDs  []string       `json:"resourceIds,omitempty"`
	Outcome      string         `json:"outcome"`
	StatusCode   int            `json:"statusCode,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    string         `json:"createdAt"`
}

func toResponse(e *Event) eventResponse {
	return eventResponse{
		ID:           e.ID,
		Actor:        e.Actor,
		ActorID:      e.ActorID,
		RequestID:    e.RequestID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceIDs:  []string(e.ResourceIDs),
		Outcome:      e.Outcome,
		StatusCode:   e.StatusCode,
		Metadata:     map[string]any(e.Metadata),
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
