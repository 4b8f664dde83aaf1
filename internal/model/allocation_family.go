package model

import "github.com/shopspring/decimal"

// FamilyStatus is the state of one family's share within an allocation.
type FamilyStatus string

const (
	FamilyPending   FamilyStatus = "PENDING"
	FamilyServed    FamilyStatus = "SERVED"
	FamilyAccepted  FamilyStatus = "ACCEPTED"
	FamilyRejected  FamilyStatus = "REJECTED"
	FamilyNotServed FamilyStatus = "NOT_SERVED"
)

// FamilyStatuses lists every allocation-family status.
var FamilyStatuses = []FamilyStatus{
	FamilyPending,
	FamilyServed,
	FamilyAccepted,
	FamilyRejected,
	FamilyNotServed,
}

// Nutrient names one of the nine tracked nutrients.
type Nutrient string

const (
	Calorie      Nutrient = "calorie"
	Carbohydrate Nutrient = "carbohydrate"
	Protein      Nutrient = "protein"
	Fat          Nutrient = "fat"
	Fiber        Nutrient = "fiber"
	Sugar        Nutrient = "sugar"
	SaturatedFat Nutrient = "saturated_fat"
	Cholesterol  Nutrient = "cholesterol"
	Sodium       Nutrient = "sodium"
)

// AllNutrients lists the nutrients in display order.
var AllNutrients = []Nutrient{
	Calorie, Carbohydrate, Protein, Fat, Fiber, Sugar, SaturatedFat, Cholesterol, Sodium,
}

// NutrientFigures holds the needed and allocated amount of every nutrient.
type NutrientFigures struct {
	CalorieNeeded         decimal.Decimal `json:"calorie_needed"`
	CalorieAllocated      decimal.Decimal `json:"calorie_allocated"`
	CarbohydrateNeeded    decimal.Decimal `json:"carbohydrate_needed"`
	CarbohydrateAllocated decimal.Decimal `json:"carbohydrate_allocated"`
	ProteinNeeded         decimal.Decimal `json:"protein_needed"`
	ProteinAllocated      decimal.Decimal `json:"protein_allocated"`
	FatNeeded             decimal.Decimal `json:"fat_needed"`
	FatAllocated          decimal.Decimal `json:"fat_allocated"`
	FiberNeeded           decimal.Decimal `json:"fiber_needed"`
	FiberAllocated        decimal.Decimal `json:"fiber_allocated"`
	SugarNeeded           decimal.Decimal `json:"sugar_needed"`
	SugarAllocated        decimal.Decimal `json:"sugar_allocated"`
	SaturatedFatNeeded    decimal.Decimal `json:"saturated_fat_needed"`
	SaturatedFatAllocated decimal.Decimal `json:"saturated_fat_allocated"`
	CholesterolNeeded     decimal.Decimal `json:"cholesterol_needed"`
	CholesterolAllocated  decimal.Decimal `json:"cholesterol_allocated"`
	SodiumNeeded          decimal.Decimal `json:"sodium_needed"`
	SodiumAllocated       decimal.Decimal `json:"sodium_allocated"`
}

// Pair returns the needed and allocated amount for n. Unknown nutrients yield zeros.
func (f NutrientFigures) Pair(n Nutrient) (needed, allocated decimal.Decimal) {
	switch n {
	case Calorie:
		return f.CalorieNeeded, f.CalorieAllocated
	case Carbohydrate:
		return f.CarbohydrateNeeded, f.CarbohydrateAllocated
	case Protein:
		return f.ProteinNeeded, f.ProteinAllocated
	case Fat:
		return f.FatNeeded, f.FatAllocated
	case Fiber:
		return f.FiberNeeded, f.FiberAllocated
	case Sugar:
		return f.SugarNeeded, f.SugarAllocated
	case SaturatedFat:
		return f.SaturatedFatNeeded, f.SaturatedFatAllocated
	case Cholesterol:
		return f.CholesterolNeeded, f.CholesterolAllocated
	case Sodium:
		return f.SodiumNeeded, f.SodiumAllocated
	}
	return decimal.Zero, decimal.Zero
}

// SetPair stores the needed and allocated amount for n.
func (f *NutrientFigures) SetPair(n Nutrient, needed, allocated decimal.Decimal) {
	switch n {
	case Calorie:
		f.CalorieNeeded, f.CalorieAllocated = needed, allocated
	case Carbohydrate:
		f.CarbohydrateNeeded, f.CarbohydrateAllocated = needed, allocated
	case Protein:
		f.ProteinNeeded, f.ProteinAllocated = needed, allocated
	case Fat:
		f.FatNeeded, f.FatAllocated = needed, allocated
	case Fiber:
		f.FiberNeeded, f.FiberAllocated = needed, allocated
	case Sugar:
		f.SugarNeeded, f.SugarAllocated = needed, allocated
	case SaturatedFat:
		f.SaturatedFatNeeded, f.SaturatedFatAllocated = needed, allocated
	case Cholesterol:
		f.CholesterolNeeded, f.CholesterolAllocated = needed, allocated
	case Sodium:
		f.SodiumNeeded, f.SodiumAllocated = needed, allocated
	}
}

// AllocationFamily is one beneficiary family's share within an allocation.
type AllocationFamily struct {
	ID           int64                       `json:"id"`
	AllocationID int64                       `json:"allocation_id"`
	FamilyID     int64                       `json:"family_id"`
	FamilyName   string                      `json:"family_name"`
	Status       FamilyStatus                `json:"status"`
	Inventories  []AllocationFamilyInventory `json:"inventories"`
	NutrientFigures
	Audit
}

// AllocationFamilyInventory is one inventory unit delivered to a family. Read-only.
type AllocationFamilyInventory struct {
	ID                 int64  `json:"id"`
	AllocationFamilyID int64  `json:"allocation_family_id"`
	InventoryID        int64  `json:"inventory_id"`
	ProductName        string `json:"product_name"`
	Quantity           int    `json:"quantity"`
}
