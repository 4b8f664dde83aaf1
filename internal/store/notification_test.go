package store

import (
	"testing"

	"github.com/dukerupert/foodalloc/internal/database"
)

func setupNotificationStore(t *testing.T) *NotificationStore {
	t.Helper()
	db, err := database.Open(":memory:", database.Client)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewNotificationStore(db)
}

func TestNotificationCreateAndList(t *testing.T) {
	ns := setupNotificationStore(t)

	for _, msg := range []string{"first", "second", "third"} {
		if _, err := ns.Create("info", msg); err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}

	got, err := ns.ListRecent(2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Message != "third" || got[1].Message != "second" {
		t.Errorf("order = %q, %q, want third, second", got[0].Message, got[1].Message)
	}
}

func TestNotificationPrune(t *testing.T) {
	ns := setupNotificationStore(t)

	for i := 0; i < 5; i++ {
		if _, err := ns.Create("error", "boom"); err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}

	removed, err := ns.Prune(2)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	got, err := ns.ListRecent(10)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}
