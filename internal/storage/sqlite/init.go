package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at the given path and creates the
// content_records table if it doesn't exist.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS content_records (
		content_hash TEXT PRIMARY KEY,
		source_url TEXT NOT NULL,
		file_path TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		content_type TEXT,
		downloaded_at DATETIME
	)`)

	if err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}
