package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database and creates the listings table if it
// doesn't exist. WAL mode and a busy timeout keep concurrent claim attempts
// from failing fast on writer contention.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS listings (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL,
		quantity TEXT NOT NULL,
		location TEXT NOT NULL,
		latitude REAL NOT NULL DEFAULT 0,
		longitude REAL NOT NULL DEFAULT 0,
		expiry DATETIME,
		category TEXT NOT NULL DEFAULT 'Veg',
		image_url TEXT NOT NULL DEFAULT '',
		org_name TEXT NOT NULL DEFAULT 'Anonymous',
		donor_type TEXT NOT NULL DEFAULT 'individual',
		status TEXT NOT NULL DEFAULT 'available',
		claimant_id TEXT,
		created_at DATETIME NOT NULL,
		claimed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);
	CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id);
	CREATE INDEX IF NOT EXISTS idx_listings_claimant ON listings(claimant_id)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}
