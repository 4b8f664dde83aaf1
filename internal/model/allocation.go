package model

import "time"

// AllocationStatus is the backend-owned processing state of an Allocation.
type AllocationStatus string

const (
	AllocationCreated   AllocationStatus = "CREATED"
	AllocationOngoing   AllocationStatus = "ONGOING"
	AllocationSuccess   AllocationStatus = "SUCCESS"
	AllocationFailed    AllocationStatus = "FAILED"
	AllocationCompleted AllocationStatus = "COMPLETED"
)

// AllocationStatuses lists every allocation status in lifecycle order.
var AllocationStatuses = []AllocationStatus{
	AllocationCreated,
	AllocationOngoing,
	AllocationSuccess,
	AllocationFailed,
	AllocationCompleted,
}

// Audit carries the created/modified bookkeeping shared by backend records.
type Audit struct {
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedBy string    `json:"modified_by"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Allocation is one batch run distributing reserved inventory across families.
type Allocation struct {
	ID              int64            `json:"id"`
	Number          string           `json:"allocation_no"`
	Status          AllocationStatus `json:"status"`
	StartTime       *time.Time       `json:"start_time"`
	EndTime         *time.Time       `json:"end_time"`
	Log             string           `json:"log"`
	AllocationDays  int              `json:"allocation_days"`
	Diversification int              `json:"diversification"`
	Audit
}

// AllocationInventory is one inventory unit reserved for an allocation.
type AllocationInventory struct {
	ID                   int64  `json:"id"`
	AllocationID         int64  `json:"allocation_id"`
	InventoryID          int64  `json:"inventory_id"`
	ProductName          string `json:"product_name"`
	Quantity             int    `json:"quantity"`
	MaxQuantityPerFamily int    `json:"max_quantity_per_family"`
}

// Creatable reports whether a new allocation may be started.
type Creatable struct {
	IsAllowed         bool        `json:"is_allowed"`
	CurrentAllocation *Allocation `json:"current_allocation"`
}
