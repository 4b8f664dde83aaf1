package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/foodalloc/internal/lifecycle"
	"github.com/dukerupert/foodalloc/internal/model"
)

type AllocationStore struct {
	db *sql.DB
}

func NewAllocationStore(db *sql.DB) *AllocationStore {
	return &AllocationStore{db: db}
}

func scanAllocation(s scanner) (*model.Allocation, error) {
	var a model.Allocation
	var status string
	var start, end sql.NullTime
	err := s.Scan(
		&a.ID, &a.Number, &status, &start, &end, &a.Log,
		&a.AllocationDays, &a.Diversification,
		&a.CreatedBy, &a.CreatedAt, &a.ModifiedBy, &a.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = model.AllocationStatus(status)
	a.StartTime = nullTime(start)
	a.EndTime = nullTime(end)
	return &a, nil
}

const allocationCols = `id, allocation_no, status, start_time, end_time, log, allocation_days, diversification, created_by, created_at, modified_by, modified_at`

var allocationSorts = map[string]string{
	"id":            "id",
	"allocation_no": "allocation_no",
	"status":        "status",
	"start_time":    "start_time",
	"end_time":      "end_time",
	"created_at":    "created_at",
}

// Number formats the human-readable allocation number.
func Number(id int64, createdAt time.Time) string {
	return fmt.Sprintf("ALC-%s-%04d", createdAt.UTC().Format("20060102"), id)
}

// Create stores a new CREATED allocation, reserving the requested stock.
// It fails with ErrInsufficientStock if any inventory cannot cover its quantity.
func (s *AllocationStore) Create(req model.AllocationRequest, createdBy string, now time.Time) (*model.Allocation, error) {
	now = stamp(now)
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO allocations (status, allocation_days, diversification, created_by, created_at, modified_by, modified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(model.AllocationCreated), req.AllocationDays, req.Diversification, createdBy, now, createdBy, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert allocation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if _, err := tx.Exec(`UPDATE allocations SET allocation_no = ? WHERE id = ?`, Number(id, now), id); err != nil {
		return nil, fmt.Errorf("set allocation number: %w", err)
	}

	for _, sel := range req.Inventories {
		res, err := tx.Exec(
			`UPDATE inventories SET available_qty = available_qty - ? WHERE id = ? AND available_qty >= ?`,
			sel.Quantity, sel.InventoryID, sel.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("reserve inventory %d: %w", sel.InventoryID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil, fmt.Errorf("inventory %d: %w", sel.InventoryID, ErrInsufficientStock)
		}
		if _, err := tx.Exec(
			`INSERT INTO allocation_inventories (allocation_id, inventory_id, quantity, max_quantity_per_family) VALUES (?, ?, ?, ?)`,
			id, sel.InventoryID, sel.Quantity, sel.MaxQuantityPerFamily,
		); err != nil {
			return nil, fmt.Errorf("insert allocation inventory: %w", err)
		}
	}

	for _, familyID := range req.FamilyIDs {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO allocation_requested_families (allocation_id, family_id) VALUES (?, ?)`,
			id, familyID,
		); err != nil {
			return nil, fmt.Errorf("insert requested family: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

func (s *AllocationStore) GetByID(id int64) (*model.Allocation, error) {
	row := s.db.QueryRow(`SELECT `+allocationCols+` FROM allocations WHERE id = ?`, id)
	a, err := scanAllocation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get allocation: %w", err)
	}
	return a, nil
}

// Search pages through allocations. Filters: "status" (exact) and
// "allocation_no" (substring).
func (s *AllocationStore) Search(q model.PageQuery) (model.Page[model.Allocation], error) {
	q = q.Normalize()
	var conds []string
	var args []any
	if st := q.Filters["status"]; st != "" {
		conds = append(conds, `status = ?`)
		args = append(args, strings.ToUpper(st))
	}
	if no := q.Filters["allocation_no"]; no != "" {
		conds = append(conds, `allocation_no LIKE ?`)
		args = append(args, "%"+no+"%")
	}
	where := ""
	if len(conds) > 0 {
		where = ` WHERE ` + strings.Join(conds, " AND ")
	}

	total, err := count(s.db, `SELECT COUNT(*) FROM allocations`+where, args...)
	if err != nil {
		return model.Page[model.Allocation]{}, fmt.Errorf("count allocations: %w", err)
	}

	if q.Sort == "" {
		q.Order = model.SortDesc
	}
	query := `SELECT ` + allocationCols + ` FROM allocations` + where + orderBy(q, allocationSorts, "created_at", "id") + ` LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, append(args, q.PerPage, q.Offset())...)
	if err != nil {
		return model.Page[model.Allocation]{}, fmt.Errorf("search allocations: %w", err)
	}
	defer rows.Close()

	page := model.Page[model.Allocation]{Items: []model.Allocation{}, Total: total, Page: q.Page, PerPage: q.PerPage}
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return model.Page[model.Allocation]{}, fmt.Errorf("scan allocation: %w", err)
		}
		page.Items = append(page.Items, *a)
	}
	return page, rows.Err()
}

// Creatable reports whether no allocation is CREATED, ONGOING or SUCCESS.
// When one is, it is returned as the current allocation.
func (s *AllocationStore) Creatable() (model.Creatable, error) {
	row := s.db.QueryRow(
		`SELECT `+allocationCols+` FROM allocations WHERE status IN (?, ?, ?) ORDER BY id DESC LIMIT 1`,
		string(model.AllocationCreated), string(model.AllocationOngoing), string(model.AllocationSuccess),
	)
	a, err := scanAllocation(row)
	if err == sql.ErrNoRows {
		return model.Creatable{IsAllowed: true}, nil
	}
	if err != nil {
		return model.Creatable{}, fmt.Errorf("creatable: %w", err)
	}
	return model.Creatable{IsAllowed: lifecycle.Creatable(a.Status), CurrentAllocation: a}, nil
}

// Advance moves an allocation to status to, appending logLine to its
// processing log. Start time is set on ONGOING, end time on SUCCESS or
// FAILED. A FAILED allocation releases its reserved stock.
func (s *AllocationStore) Advance(id int64, to model.AllocationStatus, logLine, by string, now time.Time) (*model.Allocation, error) {
	now = stamp(now)
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRow(`SELECT status FROM allocations WHERE id = ?`, id).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get allocation status: %w", err)
	}
	if _, err := lifecycle.Transition(model.AllocationStatus(current), to); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}

	set := `status = ?, modified_by = ?, modified_at = ?`
	args := []any{string(to), by, now}
	switch to {
	case model.AllocationOngoing:
		set += `, start_time = ?`
		args = append(args, now)
	case model.AllocationSuccess, model.AllocationFailed:
		set += `, end_time = ?`
		args = append(args, now)
	}
	if logLine != "" {
		set += `, log = CASE WHEN log = '' THEN ? ELSE log || char(10) || ? END`
		args = append(args, logLine, logLine)
	}
	args = append(args, id)
	if _, err := tx.Exec(`UPDATE allocations SET `+set+` WHERE id = ?`, args...); err != nil {
		return nil, fmt.Errorf("update allocation: %w", err)
	}

	if to == model.AllocationFailed {
		if _, err := tx.Exec(
			`UPDATE inventories SET available_qty = available_qty + (
			     SELECT COALESCE(SUM(ai.quantity), 0) FROM allocation_inventories ai
			     WHERE ai.allocation_id = ? AND ai.inventory_id = inventories.id)
			 WHERE id IN (SELECT inventory_id FROM allocation_inventories WHERE allocation_id = ?)`,
			id, id,
		); err != nil {
			return nil, fmt.Errorf("release inventory: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

// requestedFamilyIDs returns the families selected when the allocation was
// created. q is the database or an open transaction.
func requestedFamilyIDs(q queryer, allocationID int64) ([]int64, error) {
	rows, err := q.Query(`SELECT family_id FROM allocation_requested_families WHERE allocation_id = ? ORDER BY family_id`, allocationID)
	if err != nil {
		return nil, fmt.Errorf("list requested families: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var fid int64
		if err := rows.Scan(&fid); err != nil {
			return nil, fmt.Errorf("scan family id: %w", err)
		}
		ids = append(ids, fid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list requested families: %w", err)
	}
	return ids, nil
}

var allocationInventorySorts = map[string]string{
	"id":           "ai.id",
	"product_name": "i.product_name",
	"quantity":     "ai.quantity",
}

// SearchInventories pages through the inventory reserved for an allocation.
func (s *AllocationStore) SearchInventories(allocationID int64, q model.PageQuery) (model.Page[model.AllocationInventory], error) {
	q = q.Normalize()
	total, err := count(s.db, `SELECT COUNT(*) FROM allocation_inventories WHERE allocation_id = ?`, allocationID)
	if err != nil {
		return model.Page[model.AllocationInventory]{}, fmt.Errorf("count allocation inventories: %w", err)
	}

	query := `SELECT ai.id, ai.allocation_id, ai.inventory_id, i.product_name, ai.quantity, ai.max_quantity_per_family
		FROM allocation_inventories ai JOIN inventories i ON i.id = ai.inventory_id
		WHERE ai.allocation_id = ?` + orderBy(q, allocationInventorySorts, "i.product_name", "ai.id") + ` LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, allocationID, q.PerPage, q.Offset())
	if err != nil {
		return model.Page[model.AllocationInventory]{}, fmt.Errorf("search allocation inventories: %w", err)
	}
	defer rows.Close()

	page := model.Page[model.AllocationInventory]{Items: []model.AllocationInventory{}, Total: total, Page: q.Page, PerPage: q.PerPage}
	for rows.Next() {
		var ai model.AllocationInventory
		if err := rows.Scan(&ai.ID, &ai.AllocationID, &ai.InventoryID, &ai.ProductName, &ai.Quantity, &ai.MaxQuantityPerFamily); err != nil {
			return model.Page[model.AllocationInventory]{}, fmt.Errorf("scan allocation inventory: %w", err)
		}
		page.Items = append(page.Items, ai)
	}
	return page, rows.Err()
}
