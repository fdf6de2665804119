package repositories

import (
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// MemoryJobStore keeps jobs in a map for the lifetime of the process.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
	now  func() time.Time
}

// NewMemoryJobStore creates an empty [MemoryJobStore].
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]*models.Job), now: time.Now}
}

// Create stores a queued job with a new id.
func (s *MemoryJobStore) Create(kind models.JobKind, items []models.PlaylistProgress) (*models.Job, error) {
	job := models.NewJob(shared.GenerateJobID(), kind, items, s.now())
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return job, nil
}

// Get returns a copy of the job with the given id.
func (s *MemoryJobStore) Get(id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

// Save replaces the stored snapshot.
func (s *MemoryJobStore) Save(job *models.Job) error {
	if job == nil {
		return fmt.Errorf("%w: nil job", shared.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Len reports how many jobs are stored.
func (s *MemoryJobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
