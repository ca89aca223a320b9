// Package state records sessions in a SQLite database so a later process
// can offer the resume offset back to the controller.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/surge-downloader/ferry/internal/config"
	"github.com/surge-downloader/ferry/internal/utils"
)

var (
	db     *sql.DB
	dbPath string
	dbMu   sync.Mutex
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	dest_path TEXT NOT NULL,
	filename TEXT,
	status TEXT NOT NULL,
	total_size INTEGER NOT NULL DEFAULT -1,
	resume_offset INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	url_hash TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_url_dest ON sessions(url, dest_path);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
`

// Configure overrides the database location. Call it before the first query.
func Configure(path string) {
	dbMu.Lock()
	defer dbMu.Unlock()
	dbPath = path
}

func databasePath() string {
	if dbPath != "" {
		return dbPath
	}
	return filepath.Join(config.GetStateDir(), "ferry.db")
}

func initDB() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		return nil
	}

	path := databasePath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; the CLI and the server may share the file
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return fmt.Errorf("failed to create tables: %w", err)
	}

	utils.Debug("State database opened at %s", path)
	db = conn
	return nil
}

// GetDB returns the shared connection, opening it on first use
func GetDB() (*sql.DB, error) {
	if err := initDB(); err != nil {
		return nil, err
	}
	dbMu.Lock()
	defer dbMu.Unlock()
	return db, nil
}

func CloseDB() {
	dbMu.Lock()
	defer dbMu.Unlock()
	if db != nil {
		db.Close()
		db = nil
	}
}

func getDBHelper() *sql.DB {
	d, err := GetDB()
	if err != nil {
		utils.Debug("State database unavailable: %v", err)
		return nil
	}
	return d
}

func withTx(fn func(*sql.Tx) error) error {
	d := getDBHelper()
	if d == nil {
		return fmt.Errorf("database not initialized")
	}

	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
