// Package wizard drives the three-step flow that assembles and submits a
// new allocation: pick families, pick inventory, adjust constraints.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dukerupert/foodalloc/internal/constraint"
	"github.com/dukerupert/foodalloc/internal/model"
)

var (
	ErrStepInvalid = errors.New("current step is not valid")
	ErrBusy        = errors.New("a submission is already in flight")
	ErrClosed      = errors.New("wizard is closed")
	ErrLastStep    = errors.New("already on the last step")
	ErrNotSelected = errors.New("inventory is not selected")
	// ErrStale is returned by a search whose response arrived after a newer
	// search of the same list was issued. The response is discarded.
	ErrStale = errors.New("search superseded by a newer one")
)

// Backend is the part of the backend client the wizard calls.
type Backend interface {
	SearchEligibleFamilies(ctx context.Context, q model.PageQuery) (model.Page[model.Family], error)
	SearchEligibleInventories(ctx context.Context, q model.PageQuery) (model.Page[model.Inventory], error)
	CreateAllocation(ctx context.Context, req model.AllocationRequest) (*model.Allocation, error)
}

// Notifier surfaces outcomes to the user.
type Notifier interface {
	Success(ctx context.Context, text string)
	Failure(ctx context.Context, err error)
}

type list[T any] struct {
	gen   uint64
	query model.PageQuery
	page  model.Page[T]
}

type Controller struct {
	tpl    Template
	api    Backend
	notes  Notifier
	logger *slog.Logger

	mu          sync.Mutex
	open        bool
	busy        bool
	step        constraint.Step
	draft       model.AllocationRequest
	families    list[model.Family]
	inventories list[model.Inventory]
}

func New(tpl Template, api Backend, notes Notifier, logger *slog.Logger) *Controller {
	if tpl.PageSize <= 0 {
		tpl.PageSize = model.DefaultPerPage
	}
	return &Controller{
		tpl:    tpl,
		api:    api,
		notes:  notes,
		logger: logger,
		step:   constraint.StepFamilies,
		draft:  tpl.Draft(),
	}
}

func (c *Controller) Open() {
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
}

func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Controller) Step() constraint.Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// Busy reports whether a submission is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Draft returns a copy of the request being assembled.
func (c *Controller) Draft() model.AllocationRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.Clone()
}

// CanProceed reports whether the current step is valid.
func (c *Controller) CanProceed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return constraint.StepValid(c.step, c.draft)
}

// Violations lists what keeps the whole draft from being submittable.
func (c *Controller) Violations() []constraint.Violation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return constraint.Check(c.draft)
}

func (c *Controller) Proceed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return ErrClosed
	}
	if c.busy {
		return ErrBusy
	}
	if c.step == constraint.StepConstraints {
		return ErrLastStep
	}
	if !constraint.StepValid(c.step, c.draft) {
		return ErrStepInvalid
	}
	c.step++
	return nil
}

// Back moves one step back. Selections on later steps are kept.
func (c *Controller) Back() {
	c.mu.Lock()
	if !c.busy && c.step > constraint.StepFamilies {
		c.step--
	}
	c.mu.Unlock()
}

// Reset discards the draft and returns to the first step.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return
	}
	c.draft = c.tpl.Draft()
	c.step = constraint.StepFamilies
}

// Cancel discards the draft and closes the wizard. The step is left as is.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return
	}
	c.draft = c.tpl.Draft()
	c.open = false
}

// Submit sends the draft once. On success the wizard closes and resets; on
// failure every error message is surfaced and the draft is kept.
func (c *Controller) Submit(ctx context.Context) (*model.Allocation, error) {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.busy {
		c.mu.Unlock()
		return nil, ErrBusy
	}
	if !constraint.Valid(c.draft) {
		c.mu.Unlock()
		return nil, ErrStepInvalid
	}
	c.busy = true
	req := c.draft.Clone()
	c.mu.Unlock()

	alloc, err := c.api.CreateAllocation(ctx, req)

	c.mu.Lock()
	c.busy = false
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("create allocation failed", "error", err)
		c.notes.Failure(ctx, err)
		return nil, err
	}
	c.draft = c.tpl.Draft()
	c.step = constraint.StepFamilies
	c.open = false
	c.mu.Unlock()

	c.logger.Info("allocation created", "id", alloc.ID, "allocation_no", alloc.Number)
	c.notes.Success(ctx, fmt.Sprintf("Allocation %s created", alloc.Number))
	return alloc, nil
}

func (c *Controller) pageQuery(q model.PageQuery) model.PageQuery {
	if q.PerPage <= 0 {
		q.PerPage = c.tpl.PageSize
	}
	return q.Normalize()
}

// LoadFamilies searches eligible families. Only the latest search may
// replace the visible page; older responses return ErrStale.
func (c *Controller) LoadFamilies(ctx context.Context, q model.PageQuery) (model.Page[model.Family], error) {
	q = c.pageQuery(q)
	c.mu.Lock()
	c.families.gen++
	gen := c.families.gen
	c.families.query = q
	c.mu.Unlock()

	page, err := c.api.SearchEligibleFamilies(ctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.families.gen {
		return page, ErrStale
	}
	if err != nil {
		c.notes.Failure(ctx, err)
		return page, err
	}
	c.families.page = page
	return page, nil
}

// LoadInventories searches eligible inventory with the same staleness rule
// as LoadFamilies.
func (c *Controller) LoadInventories(ctx context.Context, q model.PageQuery) (model.Page[model.Inventory], error) {
	q = c.pageQuery(q)
	c.mu.Lock()
	c.inventories.gen++
	gen := c.inventories.gen
	c.inventories.query = q
	c.mu.Unlock()

	page, err := c.api.SearchEligibleInventories(ctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.inventories.gen {
		return page, ErrStale
	}
	if err != nil {
		c.notes.Failure(ctx, err)
		return page, err
	}
	c.inventories.page = page
	return page, nil
}

// Families returns the visible page of eligible families and the query that produced it.
func (c *Controller) Families() (model.Page[model.Family], model.PageQuery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.families.page, c.families.query
}

func (c *Controller) Inventories() (model.Page[model.Inventory], model.PageQuery) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inventories.page, c.inventories.query
}

// ToggleFamily adds or removes a family and reports whether it is now selected.
// The draft is frozen while a submission is in flight; edits made then are
// ignored, here and in every other mutator.
func (c *Controller) ToggleFamily(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return slices.Contains(c.draft.FamilyIDs, id)
	}
	if i := slices.Index(c.draft.FamilyIDs, id); i >= 0 {
		c.draft.FamilyIDs = slices.Delete(c.draft.FamilyIDs, i, i+1)
		return false
	}
	c.draft.FamilyIDs = append(c.draft.FamilyIDs, id)
	return true
}

// SelectInventory adds inv with default quantities. Selecting a row twice
// keeps the first selection.
func (c *Controller) SelectInventory(inv model.Inventory) model.InventorySelection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.draft.InventoryIndex(inv.ID); i >= 0 {
		return c.draft.Inventories[i]
	}
	if c.busy {
		return model.InventorySelection{}
	}
	sel := constraint.NewSelection(inv.ID, inv.AvailableQty)
	c.draft.Inventories = append(c.draft.Inventories, sel)
	return sel
}

func (c *Controller) DeselectInventory(inventoryID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.draft.InventoryIndex(inventoryID); i >= 0 && !c.busy {
		c.draft.Inventories = slices.Delete(c.draft.Inventories, i, i+1)
	}
}

func (c *Controller) editSelection(inventoryID int64, edit func(*model.InventorySelection)) (model.InventorySelection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.draft.InventoryIndex(inventoryID)
	if i < 0 {
		return model.InventorySelection{}, ErrNotSelected
	}
	if c.busy {
		return c.draft.Inventories[i], ErrBusy
	}
	edit(&c.draft.Inventories[i])
	return c.draft.Inventories[i], nil
}

// SetQuantity stores v as typed and reports whether it is valid.
func (c *Controller) SetQuantity(inventoryID int64, v int) (bool, error) {
	sel, err := c.editSelection(inventoryID, func(s *model.InventorySelection) { s.Quantity = v })
	return constraint.QuantityValid(sel), err
}

// BlurQuantity resets an invalid quantity to the row maximum and returns the result.
func (c *Controller) BlurQuantity(inventoryID int64) (int, error) {
	sel, err := c.editSelection(inventoryID, func(s *model.InventorySelection) { *s = constraint.CorrectQuantity(*s) })
	return sel.Quantity, err
}

func (c *Controller) SetMaxPerFamily(inventoryID int64, v int) (bool, error) {
	sel, err := c.editSelection(inventoryID, func(s *model.InventorySelection) { s.MaxQuantityPerFamily = v })
	return constraint.MaxPerFamilyValid(sel), err
}

func (c *Controller) BlurMaxPerFamily(inventoryID int64) (int, error) {
	sel, err := c.editSelection(inventoryID, func(s *model.InventorySelection) { *s = constraint.CorrectMaxPerFamily(*s) })
	return sel.MaxQuantityPerFamily, err
}

func (c *Controller) SetDiversification(v int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.draft.Diversification = v
	return constraint.DiversificationValid(v)
}

func (c *Controller) BlurDiversification() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.busy {
		c.draft.Diversification = constraint.CorrectDiversification(c.draft.Diversification)
	}
	return c.draft.Diversification
}

func (c *Controller) SetAllocationDays(v int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.draft.AllocationDays = v
	return constraint.AllocationDaysValid(v)
}

func (c *Controller) BlurAllocationDays() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.busy {
		c.draft.AllocationDays = constraint.CorrectAllocationDays(c.draft.AllocationDays)
	}
	return c.draft.AllocationDays
}
