package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/foodalloc/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrActionNotAllowed  = errors.New("action not allowed in current state")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnknownFamily     = errors.New("family not part of allocation")
)

type scanner interface{ Scan(...any) error }

// stamp normalises times written to the database so that stored values
// compare correctly as text.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// orderBy renders an ORDER BY clause for a whitelisted sort key, falling
// back to the given column. tiebreak keeps paging stable.
func orderBy(q model.PageQuery, columns map[string]string, fallback, tiebreak string) string {
	col, ok := columns[q.Sort]
	if !ok {
		col = fallback
	}
	dir := "ASC"
	if q.Order == model.SortDesc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, %s %s", col, dir, tiebreak, dir)
}

func count(db *sql.DB, query string, args ...any) (int, error) {
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
