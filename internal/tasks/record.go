package tasks

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
)

// jobRecord is the only writer of a job. Every mutation happens under mu, bumps updatedAt and saves a
// copy, so store readers only ever see whole snapshots.
type jobRecord struct {
	mu     sync.Mutex
	job    *models.Job
	store  repositories.JobStore
	logger *log.Logger
	now    func() time.Time
}

func newJobRecord(job *models.Job, store repositories.JobStore, logger *log.Logger, now func() time.Time) *jobRecord {
	return &jobRecord{job: job.Clone(), store: store, logger: logger, now: now}
}

func (r *jobRecord) update(fn func(job *models.Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn(r.job)
	if now := r.now(); now.After(r.job.UpdatedAt) {
		r.job.UpdatedAt = now
	}
	if err := r.store.Save(r.job.Clone()); err != nil {
		r.logger.Error("failed to save job snapshot", "error", err)
	}
}

func (r *jobRecord) snapshot() *models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.job.Clone()
}

// log appends one line to the job's log.
func (r *jobRecord) log(line string) {
	r.logger.Debug(line)
	r.update(func(job *models.Job) {
		job.Logs = append(job.Logs, line)
	})
}

func (r *jobRecord) setStatus(status models.JobStatus) {
	r.update(func(job *models.Job) {
		if !job.Status.Terminal() {
			job.Status = status
		}
	})
}

// advance moves the item at idx forward. Backward or post-terminal transitions are ignored.
func (r *jobRecord) advance(idx int, status models.ItemStatus) {
	r.update(func(job *models.Job) {
		if it := itemAt(job, idx); it != nil && it.Status.CanAdvance(status) {
			it.Status = status
		}
	})
}

// start marks the item at idx running with a known total.
func (r *jobRecord) start(idx, total int) {
	r.update(func(job *models.Job) {
		if it := itemAt(job, idx); it != nil && it.Status.CanAdvance(models.ItemRunning) {
			it.Status = models.ItemRunning
			it.Total = total
		}
	})
}

func (r *jobRecord) progress(idx, n int) {
	r.update(func(job *models.Job) {
		if it := itemAt(job, idx); it != nil && !it.Status.Terminal() {
			it.Added = min(it.Added+n, it.Total)
			it.Message = progressMessage(it.Added, it.Total)
		}
	})
}

func (r *jobRecord) failItem(idx int, message string) {
	r.update(func(job *models.Job) {
		if it := itemAt(job, idx); it != nil && !it.Status.Terminal() {
			it.Status = models.ItemFailed
			it.Error = message
		}
	})
}

// itemAt addresses items by position since a transfer may list the same playlist twice.
func itemAt(job *models.Job, idx int) *models.PlaylistProgress {
	if idx < 0 || idx >= len(job.Items) {
		return nil
	}
	return &job.Items[idx]
}

// fail appends message to the log, fails every non-terminal item with it and fails the job.
func (r *jobRecord) fail(message string) {
	r.logger.Debug("job failed", "message", message)
	r.update(func(job *models.Job) {
		job.Logs = append(job.Logs, message)
		failOpenItems(job, message)
		if !job.Status.Terminal() {
			job.Status = models.JobFailed
		}
	})
}

// failUnauthenticated fails every item without touching the provider.
func (r *jobRecord) failUnauthenticated() {
	r.update(func(job *models.Job) {
		failOpenItems(job, msgNotAuthenticated)
		job.Logs = append(job.Logs, authenticationMissingLine)
		if !job.Status.Terminal() {
			job.Status = models.JobFailed
		}
	})
}

// finish derives the terminal status from the items, failing any item left open.
func (r *jobRecord) finish() {
	r.update(func(job *models.Job) {
		if job.Status.Terminal() {
			return
		}
		failOpenItems(job, msgUnknown)
		job.Status = job.DerivedStatus()
	})
}

func failOpenItems(job *models.Job, message string) {
	for i := range job.Items {
		if !job.Items[i].Status.Terminal() {
			job.Items[i].Status = models.ItemFailed
			job.Items[i].Error = message
		}
	}
}
