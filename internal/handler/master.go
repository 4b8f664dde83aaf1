package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/foodalloc/internal/model"
	"github.com/dukerupert/foodalloc/internal/store"
)

// MasterHandler serves the family and inventory master data offered by the
// allocation wizard.
type MasterHandler struct {
	familyStore    *store.FamilyStore
	inventoryStore *store.InventoryStore
	now            clock
	logger         *slog.Logger
}

func NewMasterHandler(fs *store.FamilyStore, is *store.InventoryStore, logger *slog.Logger) *MasterHandler {
	return &MasterHandler{familyStore: fs, inventoryStore: is, now: time.Now, logger: logger}
}

func (h *MasterHandler) EligibleFamilies(w http.ResponseWriter, r *http.Request) {
	page, err := h.familyStore.SearchEligible(model.ParsePageQuery(r.URL.Query()))
	if err != nil {
		h.logger.Error("search eligible families", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to search families")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *MasterHandler) EligibleInventories(w http.ResponseWriter, r *http.Request) {
	page, err := h.inventoryStore.SearchEligible(model.ParsePageQuery(r.URL.Query()), h.now())
	if err != nil {
		h.logger.Error("search eligible inventories", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to search inventories")
		return
	}
	writeJSON(w, http.StatusOK, page)
}
