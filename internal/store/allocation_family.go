package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/foodalloc/internal/lifecycle"
	"github.com/dukerupert/foodalloc/internal/model"
)

// FamilyResult is the outcome of processing one requested family.
type FamilyResult struct {
	FamilyID    int64
	Status      model.FamilyStatus
	Figures     model.NutrientFigures
	Inventories []model.InventorySelection
}

type AllocationFamilyStore struct {
	db *sql.DB
}

func NewAllocationFamilyStore(db *sql.DB) *AllocationFamilyStore {
	return &AllocationFamilyStore{db: db}
}

var figureCols = func() []string {
	cols := make([]string, 0, 2*len(model.AllNutrients))
	for _, n := range model.AllNutrients {
		cols = append(cols, string(n)+"_needed", string(n)+"_allocated")
	}
	return cols
}()

const allocationFamilyCols = `af.id, af.allocation_id, af.family_id, f.name, af.status`
const allocationFamilyAuditCols = `af.created_by, af.created_at, af.modified_by, af.modified_at`

func selectAllocationFamily() string {
	figures := make([]string, len(figureCols))
	for i, c := range figureCols {
		figures[i] = "af." + c
	}
	return `SELECT ` + allocationFamilyCols + `, ` + strings.Join(figures, ", ") + `, ` + allocationFamilyAuditCols +
		` FROM allocation_families af JOIN families f ON f.id = af.family_id`
}

func figureDest(f *model.NutrientFigures) []any {
	return []any{
		&f.CalorieNeeded, &f.CalorieAllocated,
		&f.CarbohydrateNeeded, &f.CarbohydrateAllocated,
		&f.ProteinNeeded, &f.ProteinAllocated,
		&f.FatNeeded, &f.FatAllocated,
		&f.FiberNeeded, &f.FiberAllocated,
		&f.SugarNeeded, &f.SugarAllocated,
		&f.SaturatedFatNeeded, &f.SaturatedFatAllocated,
		&f.CholesterolNeeded, &f.CholesterolAllocated,
		&f.SodiumNeeded, &f.SodiumAllocated,
	}
}

func figureValues(f model.NutrientFigures) []any {
	vals := make([]any, 0, len(figureCols))
	for _, n := range model.AllNutrients {
		needed, allocated := f.Pair(n)
		vals = append(vals, needed.String(), allocated.String())
	}
	return vals
}

func scanAllocationFamily(s scanner) (*model.AllocationFamily, error) {
	var af model.AllocationFamily
	var status string
	dest := []any{&af.ID, &af.AllocationID, &af.FamilyID, &af.FamilyName, &status}
	dest = append(dest, figureDest(&af.NutrientFigures)...)
	dest = append(dest, &af.CreatedBy, &af.CreatedAt, &af.ModifiedBy, &af.ModifiedAt)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	af.Status = model.FamilyStatus(status)
	af.Inventories = []model.AllocationFamilyInventory{}
	return &af, nil
}

// Materialize records the per-family outcome of a processed allocation.
// Requested families missing from results are stored as NOT_SERVED.
func (s *AllocationFamilyStore) Materialize(allocationID int64, results []FamilyResult, by string, now time.Time) error {
	now = stamp(now)
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	order, err := requestedFamilyIDs(tx, allocationID)
	if err != nil {
		return err
	}
	requested := make(map[int64]bool, len(order))
	for _, id := range order {
		requested[id] = true
	}

	byFamily := make(map[int64]FamilyResult, len(results))
	for _, r := range results {
		if !requested[r.FamilyID] {
			return fmt.Errorf("family %d: %w", r.FamilyID, ErrUnknownFamily)
		}
		byFamily[r.FamilyID] = r
	}

	insert := `INSERT INTO allocation_families (allocation_id, family_id, status, ` + strings.Join(figureCols, ", ") +
		`, created_by, created_at, modified_by, modified_at) VALUES (?, ?, ?` + strings.Repeat(", ?", len(figureCols)) + `, ?, ?, ?, ?)`

	for _, familyID := range order {
		r, ok := byFamily[familyID]
		if !ok {
			r = FamilyResult{FamilyID: familyID, Status: model.FamilyNotServed}
		}
		if !lifecycle.CanTransitionFamily(model.FamilyPending, r.Status) {
			return fmt.Errorf("family %d result %s: %w", familyID, r.Status, ErrInvalidTransition)
		}
		args := []any{allocationID, familyID, string(r.Status)}
		args = append(args, figureValues(r.Figures)...)
		args = append(args, by, now, by, now)
		res, err := tx.Exec(insert, args...)
		if err != nil {
			return fmt.Errorf("insert allocation family: %w", err)
		}
		afID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		for _, inv := range r.Inventories {
			if _, err := tx.Exec(
				`INSERT INTO allocation_family_inventories (allocation_family_id, inventory_id, quantity) VALUES (?, ?, ?)`,
				afID, inv.InventoryID, inv.Quantity,
			); err != nil {
				return fmt.Errorf("insert allocation family inventory: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *AllocationFamilyStore) GetByID(id int64) (*model.AllocationFamily, error) {
	row := s.db.QueryRow(selectAllocationFamily()+` WHERE af.id = ?`, id)
	af, err := scanAllocationFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get allocation family: %w", err)
	}
	if err := s.loadInventories([]*model.AllocationFamily{af}); err != nil {
		return nil, err
	}
	return af, nil
}

var allocationFamilySorts = map[string]string{
	"id":          "af.id",
	"family_name": "f.name",
	"status":      "af.status",
}

// Search pages through the families of an allocation. Filters: "status"
// (exact) and "family_name" (substring).
func (s *AllocationFamilyStore) Search(allocationID int64, q model.PageQuery) (model.Page[model.AllocationFamily], error) {
	q = q.Normalize()
	where := ` WHERE af.allocation_id = ?`
	args := []any{allocationID}
	if st := q.Filters["status"]; st != "" {
		where += ` AND af.status = ?`
		args = append(args, strings.ToUpper(st))
	}
	if name := q.Filters["family_name"]; name != "" {
		where += ` AND f.name LIKE ?`
		args = append(args, "%"+name+"%")
	}

	total, err := count(s.db, `SELECT COUNT(*) FROM allocation_families af JOIN families f ON f.id = af.family_id`+where, args...)
	if err != nil {
		return model.Page[model.AllocationFamily]{}, fmt.Errorf("count allocation families: %w", err)
	}

	query := selectAllocationFamily() + where + orderBy(q, allocationFamilySorts, "f.name", "af.id") + ` LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, append(args, q.PerPage, q.Offset())...)
	if err != nil {
		return model.Page[model.AllocationFamily]{}, fmt.Errorf("search allocation families: %w", err)
	}
	var items []*model.AllocationFamily
	for rows.Next() {
		af, err := scanAllocationFamily(rows)
		if err != nil {
			rows.Close()
			return model.Page[model.AllocationFamily]{}, fmt.Errorf("scan allocation family: %w", err)
		}
		items = append(items, af)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.Page[model.AllocationFamily]{}, err
	}

	if err := s.loadInventories(items); err != nil {
		return model.Page[model.AllocationFamily]{}, err
	}
	page := model.Page[model.AllocationFamily]{Items: make([]model.AllocationFamily, 0, len(items)), Total: total, Page: q.Page, PerPage: q.PerPage}
	for _, af := range items {
		page.Items = append(page.Items, *af)
	}
	return page, nil
}

func (s *AllocationFamilyStore) loadInventories(families []*model.AllocationFamily) error {
	for _, af := range families {
		rows, err := s.db.Query(
			`SELECT afi.id, afi.allocation_family_id, afi.inventory_id, i.product_name, afi.quantity
			 FROM allocation_family_inventories afi JOIN inventories i ON i.id = afi.inventory_id
			 WHERE afi.allocation_family_id = ? ORDER BY afi.id`, af.ID,
		)
		if err != nil {
			return fmt.Errorf("list family inventories: %w", err)
		}
		for rows.Next() {
			var inv model.AllocationFamilyInventory
			if err := rows.Scan(&inv.ID, &inv.AllocationFamilyID, &inv.InventoryID, &inv.ProductName, &inv.Quantity); err != nil {
				rows.Close()
				return fmt.Errorf("scan family inventory: %w", err)
			}
			af.Inventories = append(af.Inventories, inv)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("list family inventories: %w", err)
		}
	}
	return nil
}

// SetStatus accepts or rejects a served family. The allocation must be
// SUCCESS and the family SERVED, otherwise ErrActionNotAllowed is returned.
// Once no family remains SERVED the allocation moves to COMPLETED, which
// the second return value reports.
func (s *AllocationFamilyStore) SetStatus(id int64, to model.FamilyStatus, by string, now time.Time) (*model.AllocationFamily, bool, error) {
	if to != model.FamilyAccepted && to != model.FamilyRejected {
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidTransition, to)
	}
	now = stamp(now)
	tx, err := s.db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var allocationID int64
	var familyStatus, allocStatus string
	err = tx.QueryRow(
		`SELECT af.allocation_id, af.status, a.status FROM allocation_families af
		 JOIN allocations a ON a.id = af.allocation_id WHERE af.id = ?`, id,
	).Scan(&allocationID, &familyStatus, &allocStatus)
	if err == sql.ErrNoRows {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("get allocation family status: %w", err)
	}
	if lifecycle.IsFamilyTerminal(model.FamilyStatus(familyStatus)) {
		return nil, false, fmt.Errorf("%w: family already %s", ErrActionNotAllowed, familyStatus)
	}
	if !lifecycle.CanActOnFamily(model.AllocationStatus(allocStatus), model.FamilyStatus(familyStatus)) {
		return nil, false, ErrActionNotAllowed
	}

	if _, err := tx.Exec(
		`UPDATE allocation_families SET status = ?, modified_by = ?, modified_at = ? WHERE id = ?`,
		string(to), by, now, id,
	); err != nil {
		return nil, false, fmt.Errorf("update allocation family: %w", err)
	}

	var served int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM allocation_families WHERE allocation_id = ? AND status = ?`,
		allocationID, string(model.FamilyServed),
	).Scan(&served); err != nil {
		return nil, false, fmt.Errorf("count served families: %w", err)
	}
	completed := served == 0
	if completed {
		if _, err := tx.Exec(
			`UPDATE allocations SET status = ?, modified_by = ?, modified_at = ? WHERE id = ?`,
			string(model.AllocationCompleted), by, now, allocationID,
		); err != nil {
			return nil, false, fmt.Errorf("complete allocation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	af, err := s.GetByID(id)
	if err != nil {
		return nil, false, err
	}
	return af, completed, nil
}
