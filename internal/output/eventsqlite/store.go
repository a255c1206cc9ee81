package eventsqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"os"

	_ "modernc.org/sqlite"

	"safetyeye/internal/logger"
	"safetyeye/pkg/models"
)

// Store persists event rows in SQLite so read-back queries (recent events
// for a dashboard or the report command) stay cheap on long sessions.
type Store struct {
	db *sql.DB
}

// NewStore opens the database and runs migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps appends cheap while the report command reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Infof("SQLite event store initialized: %s", path)
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			person_id TEXT NOT NULL DEFAULT '',
			missing TEXT NOT NULL DEFAULT '',
			people_count INTEGER NOT NULL DEFAULT 0,
			violations_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_id ON events(id DESC)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// WriteEvents appends a batch of rows in one transaction, so cancellation
// between rows never leaves a partial batch visible.
func (s *Store) WriteEvents(records []*models.EventRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO events
		(timestamp, person_id, missing, people_count, violations_count)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.Timestamp, rec.PersonID, rec.Missing, rec.PeopleCount, rec.ViolationsCount); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert event row: %w", err)
		}
	}
	return tx.Commit()
}

// ReadRecent returns the most recent rows, newest last.
func (s *Store) ReadRecent(limit int) ([]*models.EventRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT timestamp, person_id, missing, people_count, violations_count
		FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*models.EventRecord
	for rows.Next() {
		rec := &models.EventRecord{}
		if err := rows.Scan(&rec.Timestamp, &rec.PersonID, &rec.Missing, &rec.PeopleCount, &rec.ViolationsCount); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returned newest first; callers expect chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
