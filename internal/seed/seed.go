// Package seed loads development users and master data into a simulator
// database from YAML.
package seed

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/foodalloc/internal/model"
	"github.com/dukerupert/foodalloc/internal/store"
)

//go:embed default.yaml
var defaultSeed []byte

type File struct {
	Users       []User      `yaml:"users"`
	Families    []Family    `yaml:"families"`
	Inventories []Inventory `yaml:"inventories"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Family struct {
	Name        string `yaml:"name"`
	MemberCount int    `yaml:"member_count"`
	Phone       string `yaml:"phone"`
	Address     string `yaml:"address"`
	Eligible    bool   `yaml:"eligible"`
}

// Inventory expires either at ExpiresAt or ExpiresInDays after loading.
// Neither means it does not expire.
type Inventory struct {
	ProductName   string     `yaml:"product_name"`
	StorageName   string     `yaml:"storage_name"`
	Unit          string     `yaml:"unit"`
	AvailableQty  int        `yaml:"available_qty"`
	ExpiresAt     *time.Time `yaml:"expires_at"`
	ExpiresInDays int        `yaml:"expires_in_days"`
}

// Result counts what Apply inserted.
type Result struct {
	Users       int
	Families    int
	Inventories int
}

// Parse decodes seed YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i, u := range f.Users {
		if u.Username == "" || u.Password == "" {
			return nil, fmt.Errorf("seed user %d: username and password are required", i)
		}
	}
	for i, inv := range f.Inventories {
		if inv.ProductName == "" {
			return nil, fmt.Errorf("seed inventory %d: product_name is required", i)
		}
		if inv.AvailableQty < 0 {
			return nil, fmt.Errorf("seed inventory %q: available_qty is negative", inv.ProductName)
		}
	}
	return &f, nil
}

// Load reads a seed file, or the built-in development seed when path is empty.
func Load(path string) (*File, error) {
	if path == "" {
		return Parse(defaultSeed)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	return Parse(data)
}

// Apply inserts users that do not exist yet. Families and inventories are
// only inserted into empty tables, so restarting against the same database
// does not duplicate master data.
func (f *File) Apply(db *sql.DB, now time.Time) (Result, error) {
	var res Result

	users := store.NewUserStore(db)
	for _, u := range f.Users {
		existing, err := users.GetByUsername(u.Username)
		if err != nil {
			return res, err
		}
		if existing != nil {
			continue
		}
		if _, err := users.Create(u.Username, u.Password); err != nil {
			return res, fmt.Errorf("seed user %q: %w", u.Username, err)
		}
		res.Users++
	}

	families := store.NewFamilyStore(db)
	n, err := families.Count()
	if err != nil {
		return res, err
	}
	if n == 0 {
		for _, fam := range f.Families {
			if _, err := families.Create(model.Family{
				Name:        fam.Name,
				MemberCount: fam.MemberCount,
				Phone:       fam.Phone,
				Address:     fam.Address,
				Eligible:    fam.Eligible,
			}); err != nil {
				return res, fmt.Errorf("seed family %q: %w", fam.Name, err)
			}
			res.Families++
		}
	}

	inventories := store.NewInventoryStore(db)
	n, err = inventories.Count()
	if err != nil {
		return res, err
	}
	if n == 0 {
		for _, inv := range f.Inventories {
			expires := inv.ExpiresAt
			if expires == nil && inv.ExpiresInDays > 0 {
				t := now.AddDate(0, 0, inv.ExpiresInDays)
				expires = &t
			}
			if _, err := inventories.Create(model.Inventory{
				ProductName:  inv.ProductName,
				StorageName:  inv.StorageName,
				Unit:         inv.Unit,
				AvailableQty: inv.AvailableQty,
				ExpiresAt:    expires,
			}); err != nil {
				return res, fmt.Errorf("seed inventory %q: %w", inv.ProductName, err)
			}
			res.Inventories++
		}
	}
	return res, nil
}
