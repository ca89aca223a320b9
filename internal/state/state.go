package state

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Session statuses as stored
const (
	StatusQueued      = "queued"
	StatusDownloading = "downloading"
	StatusPaused      = "paused"
	StatusCompleted   = "completed"
	StatusFailed      = "error"
	StatusCancelled   = "cancelled"
)

// Session is one row of the sessions table
type Session struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	DestPath     string `json:"dest_path"`
	Filename     string `json:"filename,omitempty"`
	Status       string `json:"status"`
	TotalSize    int64  `json:"total_size"` // -1 when unknown
	ResumeOffset uint64 `json:"resume_offset"`
	Error        string `json:"error,omitempty"`
	URLHash      string `json:"url_hash"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// URLHash returns a short hash of the URL, 16 hex chars
func URLHash(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:8])
}

// SaveSession inserts or updates s, filling in ID, hash and timestamps
func SaveSession(s *Session) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	if s.CreatedAt == 0 {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	s.URLHash = URLHash(s.URL)

	return withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sessions (
				id, url, dest_path, filename, status, total_size, resume_offset, error, url_hash, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				url=excluded.url,
				dest_path=excluded.dest_path,
				filename=excluded.filename,
				status=excluded.status,
				total_size=excluded.total_size,
				resume_offset=excluded.resume_offset,
				error=excluded.error,
				url_hash=excluded.url_hash,
				updated_at=excluded.updated_at
		`, s.ID, s.URL, s.DestPath, s.Filename, s.Status, s.TotalSize, int64(s.ResumeOffset),
			s.Error, s.URLHash, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}
		return nil
	})
}

const sessionColumns = `id, url, dest_path, filename, status, total_size, resume_offset, error, url_hash, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var s Session
	var offset int64
	var filename, errText, urlHash sql.NullString
	if err := row.Scan(
		&s.ID, &s.URL, &s.DestPath, &filename, &s.Status, &s.TotalSize,
		&offset, &errText, &urlHash, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.ResumeOffset = uint64(offset)
	s.Filename = filename.String
	s.Error = errText.String
	s.URLHash = urlHash.String
	return &s, nil
}

// GetSession returns the session with id, or nil if there is none
func GetSession(id string) (*Session, error) {
	db := getDBHelper()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	s, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// FindSession returns the most recently updated session for url and
// destPath. It fails with os.ErrNotExist when there is none.
func FindSession(url, destPath string) (*Session, error) {
	db := getDBHelper()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	s, err := scanSession(db.QueryRow(`
		SELECT `+sessionColumns+` FROM sessions
		WHERE url = ? AND dest_path = ?
		ORDER BY updated_at DESC LIMIT 1
	`, url, destPath))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session not found: %w", os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return s, nil
}

// ListSessions returns every session, newest first
func ListSessions() ([]Session, error) {
	db := getDBHelper()
	if db == nil {
		// No database behaves like no sessions
		return []Session{}, nil
	}

	rows, err := db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// UpdateStatus changes only the status of session id
func UpdateStatus(id string, status string) error {
	db := getDBHelper()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	result, err := db.Exec("UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?", status, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

// RemoveSession deletes session id. Removing a missing session is not an error.
func RemoveSession(id string) error {
	db := getDBHelper()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	if _, err := db.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// RemoveCompletedSessions deletes finished sessions and returns how many
func RemoveCompletedSessions() (int64, error) {
	db := getDBHelper()
	if db == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	result, err := db.Exec("DELETE FROM sessions WHERE status = ?", StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("failed to remove completed sessions: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

// MarkInterrupted turns sessions left downloading by a dead process into
// paused ones
func MarkInterrupted() error {
	db := getDBHelper()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := db.Exec("UPDATE sessions SET status = ? WHERE status IN (?, ?)", StatusPaused, StatusDownloading, StatusQueued)
	return err
}
