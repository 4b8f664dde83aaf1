package store

import (
	"database/sql"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/foodalloc/internal/database"
	"github.com/dukerupert/foodalloc/internal/model"
)

func init() {
	bcryptCost = bcrypt.MinCost
}

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func setupSimDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:", database.Simulator)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedFamily(t *testing.T, db *sql.DB, name string, eligible bool) *model.Family {
	t.Helper()
	f, err := NewFamilyStore(db).Create(model.Family{Name: name, MemberCount: 4, Eligible: eligible})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	return f
}

func seedInventory(t *testing.T, db *sql.DB, product string, qty int, expires *time.Time) *model.Inventory {
	t.Helper()
	inv, err := NewInventoryStore(db).Create(model.Inventory{ProductName: product, StorageName: "Main", Unit: "kg", AvailableQty: qty, ExpiresAt: expires})
	if err != nil {
		t.Fatalf("create inventory: %v", err)
	}
	return inv
}
