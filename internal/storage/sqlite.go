// Package storage persists the server identifier and the registration history using SQLite.
package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/hytaleone/hyquery/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

// ErrServerIDExists is returned when a different identifier has already been stored.
var ErrServerIDExists = errors.New("server id already stored")

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// ServerID returns the stored identifier, or an empty string if none was generated yet.
func (r *Repository) ServerID() (string, error) {
	var id string
	err := r.db.QueryRow(`SELECT server_id FROM identity WHERE id = 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

// SaveServerID stores the identifier. The row is written once; saving the
// same value again is a no-op and saving a different value fails.
func (r *Repository) SaveServerID(id string) error {
	res, err := r.db.Exec(
		`INSERT INTO identity (id, server_id, created_at) VALUES (1, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	stored, err := r.ServerID()
	if err != nil {
		return err
	}
	if stored != id {
		return ErrServerIDExists
	}
	return nil
}

// RecordRegistration appends a completed registration attempt to the history.
func (r *Repository) RecordRegistration(reg models.Registration) error {
	_, err := r.db.Exec(`
		INSERT INTO registrations (server_id, attempted_at, status_code, outcome, url, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		reg.ServerID, reg.AttemptedAt.UTC(), reg.StatusCode, reg.Outcome, reg.URL, reg.Error,
	)
	return err
}

// Registrations returns up to limit attempts, newest first.
func (r *Repository) Registrations(limit int) ([]models.Registration, error) {
	rows, err := r.db.Query(`
		SELECT server_id, attempted_at, status_code, outcome, url, error
		FROM registrations
		ORDER BY attempted_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var regs []models.Registration
	for rows.Next() {
		var reg models.Registration
		if err := rows.Scan(
			&reg.ServerID, &reg.AttemptedAt, &reg.StatusCode, &reg.Outcome, &reg.URL, &reg.Error,
		); err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return regs, nil
}

// PruneRegistrations deletes attempts older than before and returns the number removed.
func (r *Repository) PruneRegistrations(before time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM registrations WHERE attempted_at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
