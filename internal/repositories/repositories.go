package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// JobStore holds job snapshots keyed by id.
//
// Create allocates a fresh id and stores a queued record. Get returns [shared.ErrJobNotFound] for unknown ids.
// Save replaces the whole snapshot for an existing id.
type JobStore interface {
	Create(kind models.JobKind, items []models.PlaylistProgress) (*models.Job, error)
	Get(id string) (*models.Job, error)
	Save(job *models.Job) error
}

// NewJobStore returns the store selected by backend. The database handle is only used by the sqlite backend.
func NewJobStore(backend string, db *sql.DB) (JobStore, error) {
	switch backend {
	case "", shared.BackendMemory:
		return NewMemoryJobStore(), nil
	case shared.BackendSQLite:
		if db == nil {
			return nil, fmt.Errorf("%w: sqlite backend requires a database", shared.ErrInvalidConfig)
		}
		return NewSQLiteJobStore(db), nil
	default:
		return nil, fmt.Errorf("%w: unknown jobs backend %q", shared.ErrInvalidConfig, backend)
	}
}

// nextSequence increments and returns the job sequence counter inside tx.
//
// Sequence numbers give jobs a stable insertion order independent of their random ids.
func nextSequence(tx *sql.Tx) (int, error) {
	if _, err := tx.Exec("UPDATE jobs_sequence SET value = value + 1 WHERE id = 1"); err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}

	var sequence int
	if err := tx.QueryRow("SELECT value FROM jobs_sequence WHERE id = 1").Scan(&sequence); err != nil {
		return 0, fmt.Errorf("failed to get sequence value: %w", err)
	}
	return sequence, nil
}
