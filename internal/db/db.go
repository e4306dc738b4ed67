// Package db persists per-job stage timing statistics in SQLite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DB wraps sql.DB with the schema for job statistics.
type DB struct {
	*sql.DB
}

// Standard errors
var (
	ErrNotFound = errors.New("db: not found")
)

// Open creates a new SQLite connection and ensures the schema exists.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{DB: conn}
	if err := db.ensureSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) ensureSchema() error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS job_stats (
			job_id           TEXT PRIMARY KEY,
			suspect_steam_id TEXT NOT NULL,
			task_status      TEXT NOT NULL,
			download_seconds REAL,
			analysis_seconds REAL,
			record_seconds   REAL,
			publish_seconds  REAL,
			total_seconds    REAL NOT NULL,
			completed_at     TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("db: create schema: %w", err)
	}
	return nil
}

// JobStats is one row of per-job stage durations.
type JobStats struct {
	JobID           string
	SuspectID       string
	TaskStatus      string
	DownloadSeconds float64
	AnalysisSeconds float64
	RecordSeconds   float64
	PublishSeconds  float64
	TotalSeconds    float64
	CompletedAt     time.Time
}

// CreateJobStats inserts one job's stage timings.
func (db *DB) CreateJobStats(s *JobStats) error {
	query := `
		INSERT INTO job_stats (job_id, suspect_steam_id, task_status, download_seconds,
			analysis_seconds, record_seconds, publish_seconds, total_seconds, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		s.JobID,
		s.SuspectID,
		s.TaskStatus,
		s.DownloadSeconds,
		s.AnalysisSeconds,
		s.RecordSeconds,
		s.PublishSeconds,
		s.TotalSeconds,
		s.CompletedAt,
	)

	return err
}

// RecentJobStats returns the most recently completed rows, newest first.
func (db *DB) RecentJobStats(limit int) ([]*JobStats, error) {
	query := `
		SELECT job_id, suspect_steam_id, task_status, download_seconds,
			analysis_seconds, record_seconds, publish_seconds, total_seconds, completed_at
		FROM job_stats
		ORDER BY completed_at DESC
		LIMIT ?
	`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*JobStats
	for rows.Next() {
		s := &JobStats{}
		if err := rows.Scan(
			&s.JobID,
			&s.SuspectID,
			&s.TaskStatus,
			&s.DownloadSeconds,
			&s.AnalysisSeconds,
			&s.RecordSeconds,
			&s.PublishSeconds,
			&s.TotalSeconds,
			&s.CompletedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, rows.Err()
}
