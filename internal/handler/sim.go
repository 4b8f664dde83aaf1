package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/foodalloc/internal/auth"
	"github.com/dukerupert/foodalloc/internal/lifecycle"
	"github.com/dukerupert/foodalloc/internal/model"
	"github.com/dukerupert/foodalloc/internal/realtime"
	"github.com/dukerupert/foodalloc/internal/store"
)

// SimHandler drives allocations through processing on behalf of the
// out-of-process allocation engine. Each step is broadcast to dashboards.
type SimHandler struct {
	allocationStore *store.AllocationStore
	afStore         *store.AllocationFamilyStore
	hub             Broadcaster
	now             clock
	logger          *slog.Logger
}

func NewSimHandler(as *store.AllocationStore, afs *store.AllocationFamilyStore, hub Broadcaster, logger *slog.Logger) *SimHandler {
	return &SimHandler{allocationStore: as, afStore: afs, hub: hub, now: time.Now, logger: logger}
}

type familyResultRequest struct {
	FamilyID    int64                      `json:"family_id"`
	Status      model.FamilyStatus         `json:"status"`
	Inventories []model.InventorySelection `json:"inventories"`
	model.NutrientFigures
}

type advanceRequest struct {
	Status   model.AllocationStatus `json:"status"`
	Log      string                 `json:"log"`
	Message  string                 `json:"message"`
	Families []familyResultRequest  `json:"families"`
}

// Advance moves an allocation one step along its lifecycle. A SUCCESS step
// records the per-family results; families left out are NOT_SERVED.
func (h *SimHandler) Advance(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req advanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Status = model.AllocationStatus(strings.ToUpper(string(req.Status)))

	current, err := h.allocationStore.GetByID(id)
	if err != nil {
		h.logger.Error("get allocation", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get allocation")
		return
	}
	if current == nil {
		writeError(w, http.StatusNotFound, "allocation not found")
		return
	}
	if _, err := lifecycle.Transition(current.Status, req.Status); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if len(req.Families) > 0 && req.Status != model.AllocationSuccess {
		writeError(w, http.StatusBadRequest, "family results are only accepted with SUCCESS")
		return
	}

	by := auth.Username(r.Context())
	now := h.now()
	if req.Status == model.AllocationSuccess {
		results := make([]store.FamilyResult, 0, len(req.Families))
		for _, f := range req.Families {
			results = append(results, store.FamilyResult{
				FamilyID:    f.FamilyID,
				Status:      model.FamilyStatus(strings.ToUpper(string(f.Status))),
				Figures:     f.NutrientFigures,
				Inventories: f.Inventories,
			})
		}
		err := h.afStore.Materialize(id, results, by, now)
		switch {
		case errors.Is(err, store.ErrUnknownFamily), errors.Is(err, store.ErrInvalidTransition):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			h.logger.Error("materialize allocation families", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record family results")
			return
		}
	}

	a, err := h.allocationStore.Advance(id, req.Status, req.Log, by, now)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "allocation not found")
		return
	case errors.Is(err, store.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("advance allocation", "id", id, "status", req.Status, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to advance allocation")
		return
	}

	msg := req.Message
	if msg == "" {
		msg = fmt.Sprintf("Allocation %s is %s", a.Number, strings.ToLower(string(a.Status)))
	}
	h.logger.Info("allocation advanced", "id", id, "from", current.Status, "to", a.Status)
	broadcast(h.hub, realtime.AllocationProcess(msg))
	writeJSON(w, http.StatusOK, a)
}
