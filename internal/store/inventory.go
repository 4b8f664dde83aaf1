package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/foodalloc/internal/model"
)

type InventoryStore struct {
	db *sql.DB
}

func NewInventoryStore(db *sql.DB) *InventoryStore {
	return &InventoryStore{db: db}
}

func scanInventory(s scanner) (*model.Inventory, error) {
	var inv model.Inventory
	var expiresAt sql.NullTime
	if err := s.Scan(&inv.ID, &inv.ProductName, &inv.StorageName, &inv.Unit, &inv.AvailableQty, &expiresAt, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.ExpiresAt = nullTime(expiresAt)
	return &inv, nil
}

const inventoryCols = `id, product_name, storage_name, unit, available_qty, expires_at, created_at`

var inventorySorts = map[string]string{
	"id":            "id",
	"product_name":  "product_name",
	"storage_name":  "storage_name",
	"available_qty": "available_qty",
	"expires_at":    "expires_at",
}

func (s *InventoryStore) Create(inv model.Inventory) (*model.Inventory, error) {
	var expiresAt any
	if inv.ExpiresAt != nil {
		expiresAt = stamp(*inv.ExpiresAt)
	}
	result, err := s.db.Exec(
		`INSERT INTO inventories (product_name, storage_name, unit, available_qty, expires_at) VALUES (?, ?, ?, ?, ?)`,
		inv.ProductName, inv.StorageName, inv.Unit, inv.AvailableQty, expiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert inventory: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *InventoryStore) GetByID(id int64) (*model.Inventory, error) {
	row := s.db.QueryRow(`SELECT `+inventoryCols+` FROM inventories WHERE id = ?`, id)
	inv, err := scanInventory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory: %w", err)
	}
	return inv, nil
}

// SearchEligible pages through inventory with stock that has not expired at now.
// The "product_name" filter matches a substring.
func (s *InventoryStore) SearchEligible(q model.PageQuery, now time.Time) (model.Page[model.Inventory], error) {
	q = q.Normalize()
	where := ` WHERE available_qty > 0 AND (expires_at IS NULL OR expires_at > ?)`
	args := []any{stamp(now)}
	if name := q.Filters["product_name"]; name != "" {
		where += ` AND product_name LIKE ?`
		args = append(args, "%"+name+"%")
	}

	total, err := count(s.db, `SELECT COUNT(*) FROM inventories`+where, args...)
	if err != nil {
		return model.Page[model.Inventory]{}, fmt.Errorf("count inventories: %w", err)
	}

	query := `SELECT ` + inventoryCols + ` FROM inventories` + where + orderBy(q, inventorySorts, "expires_at", "id") + ` LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, append(args, q.PerPage, q.Offset())...)
	if err != nil {
		return model.Page[model.Inventory]{}, fmt.Errorf("search inventories: %w", err)
	}
	defer rows.Close()

	page := model.Page[model.Inventory]{Items: []model.Inventory{}, Total: total, Page: q.Page, PerPage: q.PerPage}
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return model.Page[model.Inventory]{}, fmt.Errorf("scan inventory: %w", err)
		}
		page.Items = append(page.Items, *inv)
	}
	return page, rows.Err()
}

func (s *InventoryStore) Count() (int, error) {
	n, err := count(s.db, `SELECT COUNT(*) FROM inventories`)
	if err != nil {
		return 0, fmt.Errorf("count inventories: %w", err)
	}
	return n, nil
}
