package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/codr1/leaguely/internal/db"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// User describes a row for SeedUser. Nil coordinates mean no saved location.
type User struct {
	Name      string
	Email     string
	Role      string
	Phone     string
	FreeAgent bool
	Lat, Lon  *float64
}

// SeedUser inserts a user and returns its id.
func SeedUser(t *testing.T, database *db.DB, u User) int64 {
	t.Helper()

	if u.Role == "" {
		u.Role = "player"
	}
	res, err := database.Exec(`
		INSERT INTO users (name, email, role, phone, free_agent, lat, lon, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Name, u.Email, u.Role, u.Phone, u.FreeAgent, db.NullFloat(u.Lat), db.NullFloat(u.Lon), time.Now().UnixNano(),
	)
	if err != nil {
		t.Fatalf("seed user %s: %v", u.Email, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("seed user id: %v", err)
	}
	return id
}

// SeedTeam inserts a team and returns its id.
func SeedTeam(t *testing.T, database *db.DB, name string, managerID int64, lat, lon *float64) int64 {
	t.Helper()

	res, err := database.Exec(`
		INSERT INTO teams (name, manager_id, lat, lon, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		name, managerID, db.NullFloat(lat), db.NullFloat(lon), time.Now().UnixNano(),
	)
	if err != nil {
		t.Fatalf("seed team %s: %v", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("seed team id: %v", err)
	}
	return id
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
