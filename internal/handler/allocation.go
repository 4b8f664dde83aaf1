package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/foodalloc/internal/auth"
	"github.com/dukerupert/foodalloc/internal/constraint"
	"github.com/dukerupert/foodalloc/internal/model"
	"github.com/dukerupert/foodalloc/internal/realtime"
	"github.com/dukerupert/foodalloc/internal/store"
)

type AllocationHandler struct {
	allocationStore *store.AllocationStore
	familyStore     *store.FamilyStore
	inventoryStore  *store.InventoryStore
	afStore         *store.AllocationFamilyStore
	hub             Broadcaster
	now             clock
	logger          *slog.Logger
}

func NewAllocationHandler(
	as *store.AllocationStore,
	fs *store.FamilyStore,
	is *store.InventoryStore,
	afs *store.AllocationFamilyStore,
	hub Broadcaster,
	logger *slog.Logger,
) *AllocationHandler {
	return &AllocationHandler{
		allocationStore: as,
		familyStore:     fs,
		inventoryStore:  is,
		afStore:         afs,
		hub:             hub,
		now:             time.Now,
		logger:          logger,
	}
}

// Create validates a wizard draft against the same constraints the wizard
// enforces, then checks it against current master data and reserves stock.
func (h *AllocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.AllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if vs := constraint.Check(req); len(vs) > 0 {
		writeViolations(w, vs)
		return
	}

	vs, err := h.checkMasterData(req)
	if err != nil {
		h.logger.Error("check allocation request", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to validate allocation")
		return
	}
	if len(vs) > 0 {
		writeViolations(w, vs)
		return
	}

	cr, err := h.allocationStore.Creatable()
	if err != nil {
		h.logger.Error("check creatable", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check allocation state")
		return
	}
	if !cr.IsAllowed {
		writeError(w, http.StatusConflict, fmt.Sprintf("allocation %s is still in progress", cr.CurrentAllocation.Number))
		return
	}

	a, err := h.allocationStore.Create(req, auth.Username(r.Context()), h.now())
	if errors.Is(err, store.ErrInsufficientStock) {
		writeViolations(w, []constraint.Violation{{Field: "inventories", Message: "stock changed, not enough quantity available"}})
		return
	}
	if err != nil {
		h.logger.Error("create allocation", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create allocation")
		return
	}

	h.logger.Info("allocation created", "id", a.ID, "allocation_no", a.Number,
		"families", len(req.FamilyIDs), "inventories", len(req.Inventories))
	broadcast(h.hub, realtime.AllocationProcess(fmt.Sprintf("Allocation %s created", a.Number)))
	writeJSON(w, http.StatusCreated, a)
}

func (h *AllocationHandler) checkMasterData(req model.AllocationRequest) ([]constraint.Violation, error) {
	var out []constraint.Violation
	bad, err := h.familyStore.Ineligible(req.FamilyIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range bad {
		out = append(out, constraint.Violation{Field: "family_ids", Message: fmt.Sprintf("family %d is not eligible", id)})
	}

	now := h.now()
	for i, sel := range req.Inventories {
		inv, err := h.inventoryStore.GetByID(sel.InventoryID)
		if err != nil {
			return nil, err
		}
		field := fmt.Sprintf("inventories[%d]", i)
		switch {
		case inv == nil || !inv.EligibleAt(now):
			out = append(out, constraint.Violation{Field: field + ".inventory_id", Message: fmt.Sprintf("inventory %d is not eligible", sel.InventoryID)})
		case sel.Quantity > inv.AvailableQty:
			out = append(out, constraint.Violation{Field: field + ".quantity", Message: fmt.Sprintf("must be between 1 and %d", inv.AvailableQty)})
		}
	}
	return out, nil
}

func (h *AllocationHandler) Creatable(w http.ResponseWriter, r *http.Request) {
	cr, err := h.allocationStore.Creatable()
	if err != nil {
		h.logger.Error("check creatable", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check allocation state")
		return
	}
	writeJSON(w, http.StatusOK, cr)
}

func (h *AllocationHandler) Search(w http.ResponseWriter, r *http.Request) {
	page, err := h.allocationStore.Search(model.ParsePageQuery(r.URL.Query()))
	if err != nil {
		h.logger.Error("search allocations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to search allocations")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// allocation resolves the {id} route parameter, writing the error response
// itself when it returns nil.
func (h *AllocationHandler) allocation(w http.ResponseWriter, r *http.Request) *model.Allocation {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	a, err := h.allocationStore.GetByID(id)
	if err != nil {
		h.logger.Error("get allocation", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get allocation")
		return nil
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "allocation not found")
		return nil
	}
	return a
}

func (h *AllocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	if a := h.allocation(w, r); a != nil {
		writeJSON(w, http.StatusOK, a)
	}
}

func (h *AllocationHandler) Families(w http.ResponseWriter, r *http.Request) {
	a := h.allocation(w, r)
	if a == nil {
		return
	}
	page, err := h.afStore.Search(a.ID, model.ParsePageQuery(r.URL.Query()))
	if err != nil {
		h.logger.Error("search allocation families", "id", a.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to search allocation families")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *AllocationHandler) Inventories(w http.ResponseWriter, r *http.Request) {
	a := h.allocation(w, r)
	if a == nil {
		return
	}
	page, err := h.allocationStore.SearchInventories(a.ID, model.ParsePageQuery(r.URL.Query()))
	if err != nil {
		h.logger.Error("search allocation inventories", "id", a.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to search allocation inventories")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *AllocationHandler) AcceptFamily(w http.ResponseWriter, r *http.Request) {
	h.setFamilyStatus(w, r, model.FamilyAccepted)
}

func (h *AllocationHandler) RejectFamily(w http.ResponseWriter, r *http.Request) {
	h.setFamilyStatus(w, r, model.FamilyRejected)
}

func (h *AllocationHandler) setFamilyStatus(w http.ResponseWriter, r *http.Request, to model.FamilyStatus) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	af, completed, err := h.afStore.SetStatus(id, to, auth.Username(r.Context()), h.now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "allocation family not found")
		return
	case errors.Is(err, store.ErrActionNotAllowed):
		writeError(w, http.StatusConflict, "family can only be accepted or rejected while served in a successful allocation")
		return
	case err != nil:
		h.logger.Error("set allocation family status", "id", id, "status", to, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update allocation family")
		return
	}

	h.logger.Info("allocation family updated", "id", id, "status", to, "completed", completed)
	broadcast(h.hub, realtime.AcceptRejectFamily())
	if completed {
		if a, err := h.allocationStore.GetByID(af.AllocationID); err == nil && a != nil {
			broadcast(h.hub, realtime.AllocationProcess(fmt.Sprintf("Allocation %s completed", a.Number)))
		}
	}
	writeJSON(w, http.StatusOK, af)
}
