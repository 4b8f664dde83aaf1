package model

import "time"

type Family struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	MemberCount int       `json:"member_count"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
	Eligible    bool      `json:"eligible"`
	CreatedAt   time.Time `json:"created_at"`
}

type Inventory struct {
	ID           int64      `json:"id"`
	ProductName  string     `json:"product_name"`
	StorageName  string     `json:"storage_name"`
	Unit         string     `json:"unit"`
	AvailableQty int        `json:"available_qty"`
	ExpiresAt    *time.Time `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// EligibleAt reports whether the inventory row may be offered for allocation at t.
func (i Inventory) EligibleAt(t time.Time) bool {
	if i.AvailableQty <= 0 {
		return false
	}
	return i.ExpiresAt == nil || i.ExpiresAt.After(t)
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Notification struct {
	ID        int64     `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
