package wizard

import (
	"github.com/dukerupert/foodalloc/internal/constraint"
	"github.com/dukerupert/foodalloc/internal/model"
)

// Template holds the starting values of every draft. It is copied, never
// written, so reset always returns to the same state.
type Template struct {
	AllocationDays  int
	Diversification int
	PageSize        int
}

func DefaultTemplate() Template {
	return Template{
		AllocationDays:  constraint.DefaultAllocationDays,
		Diversification: constraint.DefaultDiversification,
		PageSize:        model.DefaultPerPage,
	}
}

// Draft builds a fresh, empty allocation request from the template.
func (t Template) Draft() model.AllocationRequest {
	return model.AllocationRequest{
		FamilyIDs:       []int64{},
		Inventories:     []model.InventorySelection{},
		AllocationDays:  t.AllocationDays,
		Diversification: t.Diversification,
	}
}
