package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// SQLiteJobStore persists job snapshots in the jobs table.
//
// Logs and items are stored as JSON columns; a snapshot is always written in a single statement.
type SQLiteJobStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteJobStore creates a store over a migrated database.
func NewSQLiteJobStore(db *sql.DB) *SQLiteJobStore {
	return &SQLiteJobStore{db: db, now: time.Now}
}

// Create inserts a queued job with a new id and the next sequence number.
func (s *SQLiteJobStore) Create(kind models.JobKind, items []models.PlaylistProgress) (*models.Job, error) {
	job := models.NewJob(shared.GenerateJobID(), kind, items, s.now())
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	logs, itemsJSON, err := encodeColumns(job)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := nextSequence(tx)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO jobs (id, sequence, kind, status, logs, items, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.Exec(query, job.ID, sequence, string(job.Kind), string(job.Status), logs, itemsJSON,
		job.CreatedAt.UnixMilli(), job.UpdatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit job: %w", err)
	}
	return job.Clone(), nil
}

// Get loads the job with the given id.
func (s *SQLiteJobStore) Get(id string) (*models.Job, error) {
	query := `
		SELECT id, kind, status, logs, items, created_at, updated_at
		FROM jobs
		WHERE id = ?
	`
	var (
		job                  models.Job
		kind, status         string
		logs, items          string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRow(query, id).Scan(&job.ID, &kind, &status, &logs, &items, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.Kind = models.JobKind(kind)
	job.Status = models.JobStatus(status)
	job.CreatedAt = time.UnixMilli(createdAt)
	job.UpdatedAt = time.UnixMilli(updatedAt)

	if err := json.Unmarshal([]byte(logs), &job.Logs); err != nil {
		return nil, fmt.Errorf("failed to decode job logs: %w", err)
	}
	if err := json.Unmarshal([]byte(items), &job.Items); err != nil {
		return nil, fmt.Errorf("failed to decode job items: %w", err)
	}
	return &job, nil
}

// Save overwrites the stored snapshot.
func (s *SQLiteJobStore) Save(job *models.Job) error {
	if job == nil {
		return fmt.Errorf("%w: nil job", shared.ErrInvalidInput)
	}

	logs, items, err := encodeColumns(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET status = ?, logs = ?, items = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.Exec(query, string(job.Status), logs, items, job.UpdatedAt.UnixMilli(), job.ID)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, job.ID)
	}
	return nil
}

// ListRecent returns up to limit jobs, newest first.
func (s *SQLiteJobStore) ListRecent(limit int) ([]string, error) {
	rows, err := s.db.Query("SELECT id FROM jobs ORDER BY sequence DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func encodeColumns(job *models.Job) (string, string, error) {
	logs := job.Logs
	if logs == nil {
		logs = []string{}
	}
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode job logs: %w", err)
	}

	items := job.Items
	if items == nil {
		items = []models.PlaylistProgress{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode job items: %w", err)
	}
	return string(logsJSON), string(itemsJSON), nil
}
