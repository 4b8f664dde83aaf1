// Package constraint checks an allocation draft before it may advance or be
// submitted. Every function is pure; callers own the draft and apply the
// corrections returned here.
package constraint

import (
	"fmt"

	"github.com/dukerupert/foodalloc/internal/model"
)

const (
	MinDiversification     = 1
	MaxDiversification     = 10
	DefaultDiversification = 5
	MinAllocationDays      = 1
	DefaultAllocationDays  = 1
	// PerFamilyCap bounds the default per-family quantity of a fresh selection.
	PerFamilyCap = 5
)

// Step identifies one page of the allocation wizard.
type Step int

const (
	StepFamilies Step = iota + 1
	StepInventories
	StepConstraints
)

func (s Step) String() string {
	switch s {
	case StepFamilies:
		return "families"
	case StepInventories:
		return "inventories"
	case StepConstraints:
		return "constraints"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Violation names one field that keeps a draft from being valid.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) Error() string {
	return v.Field + ": " + v.Message
}

func FamiliesValid(r model.AllocationRequest) bool {
	return len(r.FamilyIDs) > 0
}

// QuantityValid reports 0 < quantity <= maxQuantity.
func QuantityValid(s model.InventorySelection) bool {
	return s.Quantity > 0 && s.Quantity <= s.MaxQuantity
}

// MaxPerFamilyValid reports 0 < maxQuantityPerFamily <= quantity.
func MaxPerFamilyValid(s model.InventorySelection) bool {
	return s.MaxQuantityPerFamily > 0 && s.MaxQuantityPerFamily <= s.Quantity
}

func SelectionValid(s model.InventorySelection) bool {
	return QuantityValid(s) && MaxPerFamilyValid(s)
}

func InventoriesValid(r model.AllocationRequest) bool {
	if len(r.Inventories) == 0 {
		return false
	}
	for _, s := range r.Inventories {
		if !SelectionValid(s) {
			return false
		}
	}
	return true
}

func DiversificationValid(v int) bool {
	return v >= MinDiversification && v <= MaxDiversification
}

func AllocationDaysValid(v int) bool {
	return v >= MinAllocationDays
}

func ConstraintsValid(r model.AllocationRequest) bool {
	return DiversificationValid(r.Diversification) && AllocationDaysValid(r.AllocationDays)
}

// StepValid reports whether the draft satisfies the given wizard step.
func StepValid(step Step, r model.AllocationRequest) bool {
	switch step {
	case StepFamilies:
		return FamiliesValid(r)
	case StepInventories:
		return InventoriesValid(r)
	case StepConstraints:
		return ConstraintsValid(r)
	}
	return false
}

// Valid reports whether every step is satisfied and the draft may be submitted.
func Valid(r model.AllocationRequest) bool {
	return FamiliesValid(r) && InventoriesValid(r) && ConstraintsValid(r)
}

// Check lists every violation in the draft, in step order.
func Check(r model.AllocationRequest) []Violation {
	var out []Violation
	if !FamiliesValid(r) {
		out = append(out, Violation{Field: "family_ids", Message: "select at least one family"})
	}
	if len(r.Inventories) == 0 {
		out = append(out, Violation{Field: "inventories", Message: "select at least one inventory"})
	}
	for i, s := range r.Inventories {
		if !QuantityValid(s) {
			out = append(out, Violation{
				Field:   fmt.Sprintf("inventories[%d].quantity", i),
				Message: fmt.Sprintf("must be between 1 and %d", s.MaxQuantity),
			})
		}
		if !MaxPerFamilyValid(s) {
			out = append(out, Violation{
				Field:   fmt.Sprintf("inventories[%d].max_quantity_per_family", i),
				Message: fmt.Sprintf("must be between 1 and %d", s.Quantity),
			})
		}
	}
	if !DiversificationValid(r.Diversification) {
		out = append(out, Violation{
			Field:   "diversification",
			Message: fmt.Sprintf("must be between %d and %d", MinDiversification, MaxDiversification),
		})
	}
	if !AllocationDaysValid(r.AllocationDays) {
		out = append(out, Violation{Field: "allocation_days", Message: "must be at least 1"})
	}
	return out
}
