package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/foodalloc/internal/constraint"
	"github.com/dukerupert/foodalloc/internal/realtime"
)

// Broadcaster fans realtime events out to connected dashboards.
type Broadcaster interface {
	Broadcast(ev realtime.Event)
}

func broadcast(b Broadcaster, ev realtime.Event) {
	if b != nil {
		b.Broadcast(ev)
	}
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeViolations(w http.ResponseWriter, vs []constraint.Violation) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string][]constraint.Violation{"errors": vs})
}

type clock func() time.Time
