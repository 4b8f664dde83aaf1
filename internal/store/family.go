package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/foodalloc/internal/model"
)

type FamilyStore struct {
	db *sql.DB
}

func NewFamilyStore(db *sql.DB) *FamilyStore {
	return &FamilyStore{db: db}
}

func scanFamily(s scanner) (*model.Family, error) {
	var f model.Family
	var eligible int
	if err := s.Scan(&f.ID, &f.Name, &f.MemberCount, &f.Phone, &f.Address, &eligible, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.Eligible = eligible != 0
	return &f, nil
}

const familyCols = `id, name, member_count, phone, address, eligible, created_at`

var familySorts = map[string]string{
	"id":           "id",
	"name":         "name",
	"member_count": "member_count",
	"created_at":   "created_at",
}

func (s *FamilyStore) Create(f model.Family) (*model.Family, error) {
	eligible := 0
	if f.Eligible {
		eligible = 1
	}
	result, err := s.db.Exec(
		`INSERT INTO families (name, member_count, phone, address, eligible) VALUES (?, ?, ?, ?, ?)`,
		f.Name, f.MemberCount, f.Phone, f.Address, eligible,
	)
	if err != nil {
		return nil, fmt.Errorf("insert family: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *FamilyStore) GetByID(id int64) (*model.Family, error) {
	row := s.db.QueryRow(`SELECT `+familyCols+` FROM families WHERE id = ?`, id)
	f, err := scanFamily(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get family: %w", err)
	}
	return f, nil
}

// SearchEligible pages through families that may join a new allocation.
// The "name" filter matches a substring.
func (s *FamilyStore) SearchEligible(q model.PageQuery) (model.Page[model.Family], error) {
	q = q.Normalize()
	where := ` WHERE eligible = 1`
	var args []any
	if name := q.Filters["name"]; name != "" {
		where += ` AND name LIKE ?`
		args = append(args, "%"+name+"%")
	}

	total, err := count(s.db, `SELECT COUNT(*) FROM families`+where, args...)
	if err != nil {
		return model.Page[model.Family]{}, fmt.Errorf("count families: %w", err)
	}

	query := `SELECT ` + familyCols + ` FROM families` + where + orderBy(q, familySorts, "name", "id") + ` LIMIT ? OFFSET ?`
	rows, err := s.db.Query(query, append(args, q.PerPage, q.Offset())...)
	if err != nil {
		return model.Page[model.Family]{}, fmt.Errorf("search families: %w", err)
	}
	defer rows.Close()

	page := model.Page[model.Family]{Items: []model.Family{}, Total: total, Page: q.Page, PerPage: q.PerPage}
	for rows.Next() {
		f, err := scanFamily(rows)
		if err != nil {
			return model.Page[model.Family]{}, fmt.Errorf("scan family: %w", err)
		}
		page.Items = append(page.Items, *f)
	}
	return page, rows.Err()
}

// Ineligible returns the ids among ids that are unknown or not eligible.
func (s *FamilyStore) Ineligible(ids []int64) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		f, err := s.GetByID(id)
		if err != nil {
			return nil, err
		}
		if f == nil || !f.Eligible {
			out = append(out, id)
		}
	}
	return out, nil
}

// Count returns the number of families, eligible or not.
func (s *FamilyStore) Count() (int, error) {
	n, err := count(s.db, `SELECT COUNT(*) FROM families`)
	if err != nil {
		return 0, fmt.Errorf("count families: %w", err)
	}
	return n, nil
}
