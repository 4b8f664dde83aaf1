package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/dukerupert/foodalloc/internal/lifecycle"
	"github.com/dukerupert/foodalloc/internal/model"
	"github.com/dukerupert/foodalloc/internal/nutrient"
)

// DefaultCacheTTL bounds how long a fetched page is reused without an event.
const DefaultCacheTTL = 30 * time.Second

// FamilyRow is one allocation family as displayed, with its fulfilment
// score and whether accept and reject are enabled.
type FamilyRow struct {
	model.AllocationFamily
	Score     float64
	Tier      nutrient.Tier
	Breakdown []nutrient.Row
	CanAct    bool
}

func familyRows(alloc *model.Allocation, families []model.AllocationFamily) []FamilyRow {
	rows := make([]FamilyRow, 0, len(families))
	for _, af := range families {
		s := nutrient.Summarize(af.NutrientFigures)
		row := FamilyRow{
			AllocationFamily: af,
			Score:            s.Score,
			Tier:             s.Tier,
			Breakdown:        nutrient.Breakdown(af.NutrientFigures),
		}
		if alloc != nil {
			row.CanAct = lifecycle.CanActOnFamily(alloc.Status, af.Status)
		}
		rows = append(rows, row)
	}
	return rows
}

// DetailView shows one allocation with a page of its families and a page
// of its reserved inventory. Fetched pages are cached until the next
// refresh, which every realtime event triggers.
type DetailView struct {
	id     int64
	api    Backend
	notes  Notifier
	logger *slog.Logger
	pages  *cache.Cache

	mu             sync.Mutex
	gen            uint64
	epoch          uint64
	familyQuery    model.PageQuery
	inventoryQuery model.PageQuery
	allocation     *model.Allocation
	families       model.Page[model.AllocationFamily]
	inventories    model.Page[model.AllocationInventory]
	acting         map[int64]bool
}

func NewDetailView(id int64, api Backend, notes Notifier, ttl time.Duration, logger *slog.Logger) *DetailView {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &DetailView{
		id:             id,
		api:            api,
		notes:          notes,
		logger:         logger.With("allocation_id", id),
		pages:          cache.New(ttl, 2*ttl),
		familyQuery:    model.PageQuery{}.Normalize(),
		inventoryQuery: model.PageQuery{}.Normalize(),
		acting:         make(map[int64]bool),
	}
}

func (v *DetailView) ID() int64 { return v.id }

func familiesKey(q model.PageQuery) string    { return "families?" + q.Values().Encode() }
func inventoriesKey(q model.PageQuery) string { return "inventories?" + q.Values().Encode() }

// Refresh drops every cached page and re-queries the allocation and both
// visible pages. Loads already in flight can no longer fill the cache.
func (v *DetailView) Refresh(ctx context.Context) error {
	v.mu.Lock()
	v.epoch++
	v.pages.Flush()
	v.mu.Unlock()
	return v.load(ctx)
}

// SearchFamilies changes the family page or sort and loads it, from cache when possible.
func (v *DetailView) SearchFamilies(ctx context.Context, q model.PageQuery) error {
	v.mu.Lock()
	v.familyQuery = q.Normalize()
	v.mu.Unlock()
	return v.load(ctx)
}

func (v *DetailView) SearchInventories(ctx context.Context, q model.PageQuery) error {
	v.mu.Lock()
	v.inventoryQuery = q.Normalize()
	v.mu.Unlock()
	return v.load(ctx)
}

func (v *DetailView) load(ctx context.Context) error {
	v.mu.Lock()
	v.gen++
	gen, epoch := v.gen, v.epoch
	fq, iq := v.familyQuery, v.inventoryQuery
	v.mu.Unlock()

	alloc, err := v.api.GetAllocation(ctx, v.id)
	if err != nil {
		return v.fail(ctx, gen, err)
	}
	if !lifecycle.EndTimeConsistent(*alloc) {
		v.logger.Warn("allocation reports an end time while still processing", "status", alloc.Status, "end_time", alloc.EndTime)
	}
	families, err := v.familyPage(ctx, fq, epoch)
	if err != nil {
		return v.fail(ctx, gen, err)
	}
	inventories, err := v.inventoryPage(ctx, iq, epoch)
	if err != nil {
		return v.fail(ctx, gen, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return ErrStale
	}
	v.allocation = alloc
	v.families = families
	v.inventories = inventories
	return nil
}

func (v *DetailView) familyPage(ctx context.Context, q model.PageQuery, epoch uint64) (model.Page[model.AllocationFamily], error) {
	key := familiesKey(q)
	if cached, ok := v.pages.Get(key); ok {
		return cached.(model.Page[model.AllocationFamily]), nil
	}
	page, err := v.api.SearchAllocationFamilies(ctx, v.id, q)
	if err != nil {
		return page, err
	}
	v.remember(key, page, epoch)
	return page, nil
}

func (v *DetailView) inventoryPage(ctx context.Context, q model.PageQuery, epoch uint64) (model.Page[model.AllocationInventory], error) {
	key := inventoriesKey(q)
	if cached, ok := v.pages.Get(key); ok {
		return cached.(model.Page[model.AllocationInventory]), nil
	}
	page, err := v.api.SearchAllocationInventories(ctx, v.id, q)
	if err != nil {
		return page, err
	}
	v.remember(key, page, epoch)
	return page, nil
}

// remember caches a fetched page unless a refresh flushed the cache after
// the fetch began.
func (v *DetailView) remember(key string, page any, epoch uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if epoch == v.epoch {
		v.pages.SetDefault(key, page)
	}
}

func (v *DetailView) fail(ctx context.Context, gen uint64, err error) error {
	v.mu.Lock()
	stale := gen != v.gen
	v.mu.Unlock()
	if stale {
		return ErrStale
	}
	v.notes.Failure(ctx, err)
	return err
}

func (v *DetailView) Allocation() *model.Allocation {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.allocation
}

// Families returns the visible family page as display rows.
func (v *DetailView) Families() (rows []FamilyRow, total int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return familyRows(v.allocation, v.families.Items), v.families.Total
}

func (v *DetailView) Inventories() model.Page[model.AllocationInventory] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.inventories
}

// Watching reports whether the allocation can still change.
func (v *DetailView) Watching() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.allocation == nil || lifecycle.IsActive(v.allocation.Status)
}

// Accept accepts a served family of a successful allocation and re-queries
// once the backend confirms.
func (v *DetailView) Accept(ctx context.Context, allocationFamilyID int64) error {
	return v.act(ctx, allocationFamilyID, "accepted", v.api.AcceptAllocationFamily)
}

func (v *DetailView) Reject(ctx context.Context, allocationFamilyID int64) error {
	return v.act(ctx, allocationFamilyID, "rejected", v.api.RejectAllocationFamily)
}

func (v *DetailView) act(ctx context.Context, id int64, verb string, call func(context.Context, int64) error) error {
	v.mu.Lock()
	var row *model.AllocationFamily
	for i := range v.families.Items {
		if v.families.Items[i].ID == id {
			row = &v.families.Items[i]
			break
		}
	}
	switch {
	case row == nil:
		v.mu.Unlock()
		return ErrUnknownFamily
	case v.allocation == nil || !lifecycle.CanActOnFamily(v.allocation.Status, row.Status):
		v.mu.Unlock()
		return ErrActionDisabled
	case v.acting[id]:
		v.mu.Unlock()
		return ErrBusy
	}
	name := row.FamilyName
	v.acting[id] = true
	v.mu.Unlock()

	err := call(ctx, id)

	v.mu.Lock()
	delete(v.acting, id)
	v.mu.Unlock()

	if err != nil {
		v.logger.Warn("family action failed", "allocation_family_id", id, "action", verb, "error", err)
		v.notes.Failure(ctx, err)
		return err
	}
	v.notes.Success(ctx, fmt.Sprintf("Family %s %s", name, verb))
	return v.Refresh(ctx)
}
