package store

import (
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/foodalloc/internal/model"
)

type allocationFixture struct {
	db       *sql.DB
	allocs   *AllocationStore
	families *AllocationFamilyStore
	okafor   *model.Family
	nguyen   *model.Family
	rice     *model.Inventory
	oats     *model.Inventory
}

func setupAllocation(t *testing.T) *allocationFixture {
	t.Helper()
	db := setupSimDB(t)
	return &allocationFixture{
		db:       db,
		allocs:   NewAllocationStore(db),
		families: NewAllocationFamilyStore(db),
		okafor:   seedFamily(t, db, "Okafor", true),
		nguyen:   seedFamily(t, db, "Nguyen", true),
		rice:     seedInventory(t, db, "Rice", 10, nil),
		oats:     seedInventory(t, db, "Oats", 3, nil),
	}
}

func (f *allocationFixture) request() model.AllocationRequest {
	return model.AllocationRequest{
		FamilyIDs: []int64{f.okafor.ID, f.nguyen.ID},
		Inventories: []model.InventorySelection{
			{InventoryID: f.rice.ID, Quantity: 6, MaxQuantity: 10, MaxQuantityPerFamily: 3},
			{InventoryID: f.oats.ID, Quantity: 3, MaxQuantity: 3, MaxQuantityPerFamily: 3},
		},
		AllocationDays:  7,
		Diversification: 5,
	}
}

func (f *allocationFixture) available(t *testing.T, id int64) int {
	t.Helper()
	inv, err := NewInventoryStore(f.db).GetByID(id)
	if err != nil {
		t.Fatalf("get inventory: %v", err)
	}
	return inv.AvailableQty
}

func (f *allocationFixture) create(t *testing.T) *model.Allocation {
	t.Helper()
	a, err := f.allocs.Create(f.request(), "coordinator", testNow)
	if err != nil {
		t.Fatalf("create allocation: %v", err)
	}
	return a
}

func (f *allocationFixture) advance(t *testing.T, id int64, to model.AllocationStatus) {
	t.Helper()
	if _, err := f.allocs.Advance(id, to, "", "system", testNow); err != nil {
		t.Fatalf("advance to %s: %v", to, err)
	}
}

func TestAllocationCreateReservesStock(t *testing.T) {
	f := setupAllocation(t)

	a := f.create(t)
	if a.Status != model.AllocationCreated {
		t.Errorf("status = %s, want CREATED", a.Status)
	}
	if want := "ALC-20260314-0001"; a.Number != want {
		t.Errorf("number = %q, want %q", a.Number, want)
	}
	if a.StartTime != nil || a.EndTime != nil {
		t.Errorf("start/end = %v/%v, want unset", a.StartTime, a.EndTime)
	}
	if a.CreatedBy != "coordinator" {
		t.Errorf("created_by = %q, want coordinator", a.CreatedBy)
	}
	if got := f.available(t, f.rice.ID); got != 4 {
		t.Errorf("rice available = %d, want 4", got)
	}
	if got := f.available(t, f.oats.ID); got != 0 {
		t.Errorf("oats available = %d, want 0", got)
	}

	ids, err := requestedFamilyIDs(f.db, a.ID)
	if err != nil {
		t.Fatalf("requested families: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("requested families = %v, want 2", ids)
	}
}

func TestAllocationCreateInsufficientStock(t *testing.T) {
	f := setupAllocation(t)
	req := f.request()
	req.Inventories[1].Quantity = 4

	_, err := f.allocs.Create(req, "coordinator", testNow)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	if got := f.available(t, f.rice.ID); got != 10 {
		t.Errorf("rice available = %d, want 10 after rollback", got)
	}
	c, err := f.allocs.Creatable()
	if err != nil {
		t.Fatalf("creatable: %v", err)
	}
	if !c.IsAllowed {
		t.Error("expected creatable after failed create")
	}
}

func TestAllocationCreatable(t *testing.T) {
	f := setupAllocation(t)

	c, err := f.allocs.Creatable()
	if err != nil {
		t.Fatalf("creatable: %v", err)
	}
	if !c.IsAllowed || c.CurrentAllocation != nil {
		t.Errorf("empty store creatable = %+v, want allowed", c)
	}

	a := f.create(t)
	c, err = f.allocs.Creatable()
	if err != nil {
		t.Fatalf("creatable: %v", err)
	}
	if c.IsAllowed {
		t.Error("expected not creatable while an allocation is CREATED")
	}
	if c.CurrentAllocation == nil || c.CurrentAllocation.ID != a.ID {
		t.Errorf("current allocation = %+v, want id %d", c.CurrentAllocation, a.ID)
	}

	f.advance(t, a.ID, model.AllocationOngoing)
	f.advance(t, a.ID, model.AllocationFailed)
	c, err = f.allocs.Creatable()
	if err != nil {
		t.Fatalf("creatable: %v", err)
	}
	if !c.IsAllowed {
		t.Error("expected creatable once the allocation failed")
	}
}

func TestAllocationAdvance(t *testing.T) {
	f := setupAllocation(t)
	a := f.create(t)

	got, err := f.allocs.Advance(a.ID, model.AllocationOngoing, "picked up by worker", "system", testNow)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got.StartTime == nil || !got.StartTime.Equal(testNow) {
		t.Errorf("start time = %v, want %v", got.StartTime, testNow)
	}
	if got.EndTime != nil {
		t.Errorf("end time = %v, want unset while ONGOING", got.EndTime)
	}

	got, err = f.allocs.Advance(a.ID, model.AllocationSuccess, "done", "system", testNow)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got.EndTime == nil {
		t.Error("expected end time on SUCCESS")
	}
	if got.Log != "picked up by worker\ndone" {
		t.Errorf("log = %q", got.Log)
	}

	if _, err := f.allocs.Advance(a.ID, model.AllocationOngoing, "", "system", testNow); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("backwards transition err = %v, want ErrInvalidTransition", err)
	}
	if _, err := f.allocs.Advance(999, model.AllocationOngoing, "", "system", testNow); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing allocation err = %v, want ErrNotFound", err)
	}
}

func TestAllocationFailedReleasesStock(t *testing.T) {
	f := setupAllocation(t)
	a := f.create(t)

	f.advance(t, a.ID, model.AllocationOngoing)
	f.advance(t, a.ID, model.AllocationFailed)

	if got := f.available(t, f.rice.ID); got != 10 {
		t.Errorf("rice available = %d, want 10", got)
	}
	if got := f.available(t, f.oats.ID); got != 3 {
		t.Errorf("oats available = %d, want 3", got)
	}
}

func TestAllocationSearch(t *testing.T) {
	f := setupAllocation(t)
	a := f.create(t)
	f.advance(t, a.ID, model.AllocationOngoing)
	f.advance(t, a.ID, model.AllocationFailed)
	b := f.create(t)

	page, err := f.allocs.Search(model.PageQuery{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Total)
	}
	if page.Items[0].ID != b.ID {
		t.Errorf("first = %d, want newest %d", page.Items[0].ID, b.ID)
	}

	page, err = f.allocs.Search(model.PageQuery{Filters: map[string]string{"status": "failed"}})
	if err != nil {
		t.Fatalf("search by status: %v", err)
	}
	if page.Total != 1 || page.Items[0].ID != a.ID {
		t.Errorf("failed filter = %+v, want only %d", page.Items, a.ID)
	}

	page, err = f.allocs.Search(model.PageQuery{Filters: map[string]string{"allocation_no": "0002"}})
	if err != nil {
		t.Fatalf("search by number: %v", err)
	}
	if page.Total != 1 || !strings.HasSuffix(page.Items[0].Number, "0002") {
		t.Errorf("number filter = %+v", page.Items)
	}
}

func TestAllocationSearchInventories(t *testing.T) {
	f := setupAllocation(t)
	a := f.create(t)

	page, err := f.allocs.SearchInventories(a.ID, model.PageQuery{})
	if err != nil {
		t.Fatalf("search inventories: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Total)
	}
	if page.Items[0].ProductName != "Oats" || page.Items[0].Quantity != 3 {
		t.Errorf("first = %+v, want Oats x3", page.Items[0])
	}
	if page.Items[1].MaxQuantityPerFamily != 3 {
		t.Errorf("rice max per family = %d, want 3", page.Items[1].MaxQuantityPerFamily)
	}
}

func (f *allocationFixture) materialize(t *testing.T) *model.Allocation {
	t.Helper()
	a := f.create(t)
	f.advance(t, a.ID, model.AllocationOngoing)
	f.advance(t, a.ID, model.AllocationSuccess)

	var figures model.NutrientFigures
	figures.SetPair(model.Calorie, decimal.NewFromInt(2000), decimal.NewFromInt(1500))
	figures.SetPair(model.Protein, decimal.NewFromInt(50), decimal.RequireFromString("37.5"))
	results := []FamilyResult{{
		FamilyID:    f.okafor.ID,
		Status:      model.FamilyServed,
		Figures:     figures,
		Inventories: []model.InventorySelection{{InventoryID: f.rice.ID, Quantity: 3}},
	}}
	if err := f.families.Materialize(a.ID, results, "system", testNow); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	return a
}

func TestAllocationFamilyMaterialize(t *testing.T) {
	f := setupAllocation(t)
	a := f.materialize(t)

	page, err := f.families.Search(a.ID, model.PageQuery{})
	if err != nil {
		t.Fatalf("search families: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Total)
	}
	byName := map[string]model.AllocationFamily{}
	for _, af := range page.Items {
		byName[af.FamilyName] = af
	}

	served := byName["Okafor"]
	if served.Status != model.FamilyServed {
		t.Errorf("Okafor status = %s, want SERVED", served.Status)
	}
	if !served.ProteinAllocated.Equal(decimal.RequireFromString("37.5")) {
		t.Errorf("protein allocated = %s, want 37.5", served.ProteinAllocated)
	}
	if len(served.Inventories) != 1 || served.Inventories[0].ProductName != "Rice" {
		t.Errorf("inventories = %+v, want Rice", served.Inventories)
	}

	skipped := byName["Nguyen"]
	if skipped.Status != model.FamilyNotServed {
		t.Errorf("Nguyen status = %s, want NOT_SERVED", skipped.Status)
	}
	if !skipped.CalorieNeeded.IsZero() || len(skipped.Inventories) != 0 {
		t.Errorf("Nguyen = %+v, want zero figures and no inventory", skipped)
	}

	page, err = f.families.Search(a.ID, model.PageQuery{Filters: map[string]string{"status": "served"}})
	if err != nil {
		t.Fatalf("search by status: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("served total = %d, want 1", page.Total)
	}
}

func TestAllocationFamilyMaterializeUnknownFamily(t *testing.T) {
	f := setupAllocation(t)
	a := f.create(t)
	stranger := seedFamily(t, f.db, "Stranger", true)

	err := f.families.Materialize(a.ID, []FamilyResult{{FamilyID: stranger.ID, Status: model.FamilyServed}}, "system", testNow)
	if !errors.Is(err, ErrUnknownFamily) {
		t.Fatalf("err = %v, want ErrUnknownFamily", err)
	}
}

func TestAllocationFamilySetStatus(t *testing.T) {
	f := setupAllocation(t)
	a := f.materialize(t)

	page, err := f.families.Search(a.ID, model.PageQuery{Sort: "family_name"})
	if err != nil {
		t.Fatalf("search families: %v", err)
	}
	notServed, served := page.Items[0], page.Items[1]

	if _, _, err := f.families.SetStatus(notServed.ID, model.FamilyAccepted, "coordinator", testNow); !errors.Is(err, ErrActionNotAllowed) {
		t.Errorf("accept NOT_SERVED err = %v, want ErrActionNotAllowed", err)
	}

	got, completed, err := f.families.SetStatus(served.ID, model.FamilyAccepted, "coordinator", testNow)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got.Status != model.FamilyAccepted {
		t.Errorf("status = %s, want ACCEPTED", got.Status)
	}
	if !completed {
		t.Error("expected allocation to complete once no family is SERVED")
	}

	alloc, err := f.allocs.GetByID(a.ID)
	if err != nil {
		t.Fatalf("get allocation: %v", err)
	}
	if alloc.Status != model.AllocationCompleted {
		t.Errorf("allocation status = %s, want COMPLETED", alloc.Status)
	}

	_, _, err = f.families.SetStatus(served.ID, model.FamilyRejected, "coordinator", testNow)
	if !errors.Is(err, ErrActionNotAllowed) {
		t.Errorf("second action err = %v, want ErrActionNotAllowed", err)
	}
	if err != nil && !strings.Contains(err.Error(), "already ACCEPTED") {
		t.Errorf("second action err = %v, want it to name the ACCEPTED status", err)
	}
	if _, _, err := f.families.SetStatus(999, model.FamilyRejected, "coordinator", testNow); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing family err = %v, want ErrNotFound", err)
	}
}
