package model

import "slices"

// InventorySelection is one inventory row picked in the allocation wizard.
type InventorySelection struct {
	InventoryID          int64 `json:"inventory_id"`
	Quantity             int   `json:"quantity"`
	MaxQuantity          int   `json:"max_quantity"`
	MaxQuantityPerFamily int   `json:"max_quantity_per_family"`
}

// AllocationRequest is the draft assembled by the wizard and sent to createAllocation.
type AllocationRequest struct {
	FamilyIDs       []int64              `json:"family_ids"`
	Inventories     []InventorySelection `json:"inventories"`
	AllocationDays  int                  `json:"allocation_days"`
	Diversification int                  `json:"diversification"`
}

// Clone returns a deep copy so callers can mutate it without aliasing.
func (r AllocationRequest) Clone() AllocationRequest {
	return AllocationRequest{
		FamilyIDs:       slices.Clone(r.FamilyIDs),
		Inventories:     slices.Clone(r.Inventories),
		AllocationDays:  r.AllocationDays,
		Diversification: r.Diversification,
	}
}

func (r AllocationRequest) HasFamily(id int64) bool {
	return slices.Contains(r.FamilyIDs, id)
}

// InventoryIndex returns the position of inventoryID in Inventories, or -1.
func (r AllocationRequest) InventoryIndex(inventoryID int64) int {
	return slices.IndexFunc(r.Inventories, func(s InventorySelection) bool {
		return s.InventoryID == inventoryID
	})
}
