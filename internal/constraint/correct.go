package constraint

import "github.com/dukerupert/foodalloc/internal/model"

// NewSelection returns the defaults for an inventory row picked with the
// given available quantity.
func NewSelection(inventoryID int64, availableQty int) model.InventorySelection {
	return model.InventorySelection{
		InventoryID:          inventoryID,
		Quantity:             availableQty,
		MaxQuantity:          availableQty,
		MaxQuantityPerFamily: min(availableQty, PerFamilyCap),
	}
}

// CorrectDiversification returns v, or the default if v is out of range.
func CorrectDiversification(v int) int {
	if DiversificationValid(v) {
		return v
	}
	return DefaultDiversification
}

// CorrectAllocationDays returns v, or the default if v is below the minimum.
func CorrectAllocationDays(v int) int {
	if AllocationDaysValid(v) {
		return v
	}
	return DefaultAllocationDays
}

// CorrectQuantity resets an invalid quantity to the row's maximum.
func CorrectQuantity(s model.InventorySelection) model.InventorySelection {
	if !QuantityValid(s) {
		s.Quantity = s.MaxQuantity
	}
	return s
}

// CorrectMaxPerFamily resets an invalid per-family cap to min(quantity, PerFamilyCap).
func CorrectMaxPerFamily(s model.InventorySelection) model.InventorySelection {
	if !MaxPerFamilyValid(s) {
		s.MaxQuantityPerFamily = min(s.Quantity, PerFamilyCap)
	}
	return s
}

// Correct applies every blur correction to a copy of r. Quantities are
// corrected before per-family caps since the cap is bounded by quantity.
func Correct(r model.AllocationRequest) model.AllocationRequest {
	out := r.Clone()
	for i := range out.Inventories {
		out.Inventories[i] = CorrectMaxPerFamily(CorrectQuantity(out.Inventories[i]))
	}
	out.Diversification = CorrectDiversification(out.Diversification)
	out.AllocationDays = CorrectAllocationDays(out.AllocationDays)
	return out
}
