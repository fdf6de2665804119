package tasks

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
)

// Observer receives job lifecycle events, e.g. for metrics. Methods are called from job goroutines.
type Observer interface {
	JobStarted(kind models.JobKind)
	JobFinished(kind models.JobKind, status models.JobStatus, elapsed time.Duration)
	ItemFinished(kind models.JobKind, status models.ItemStatus)
	TracksWritten(n int)
}

type nopObserver struct{}

func (nopObserver) JobStarted(models.JobKind)                                   {}
func (nopObserver) JobFinished(models.JobKind, models.JobStatus, time.Duration) {}
func (nopObserver) ItemFinished(models.JobKind, models.ItemStatus)              {}
func (nopObserver) TracksWritten(int)                                           {}

// EngineOptions tunes job execution.
type EngineOptions struct {
	SavedTracksDelay       time.Duration
	FollowForeignPlaylists bool
	Observer               Observer
}

// DefaultEngineOptions mirrors the defaults in config.example.toml.
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{SavedTracksDelay: 250 * time.Millisecond, FollowForeignPlaylists: true}
}

// SyncJob names the two playlists of a sync and how to reconcile them.
type SyncJob struct {
	Source        models.PlaylistRef
	Destination   models.PlaylistRef
	Mode          models.SyncMode
	RemoveMissing bool
}

// JobEngine starts transfer and sync jobs, each on its own goroutine.
type JobEngine struct {
	store  repositories.JobStore
	api    services.SpotifyAPI
	creds  services.CredentialProvider
	logger *log.Logger
	opts   EngineOptions
	now    func() time.Time
	wg     sync.WaitGroup
}

// NewJobEngine creates an engine. A nil logger discards output.
func NewJobEngine(store repositories.JobStore, api services.SpotifyAPI, creds services.CredentialProvider, logger *log.Logger, opts EngineOptions) *JobEngine {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &JobEngine{store: store, api: api, creds: creds, logger: logger, opts: opts, now: time.Now}
}

// Job returns the latest snapshot of a job.
func (e *JobEngine) Job(id string) (*models.Job, error) {
	return e.store.Get(id)
}

// Wait blocks until every job started so far has reached a terminal state.
func (e *JobEngine) Wait() {
	e.wg.Wait()
}

// StartTransfer creates a transfer job with one item per playlist and runs it in the background.
//
// The returned snapshot is the queued record. The job keeps running after ctx is cancelled.
func (e *JobEngine) StartTransfer(ctx context.Context, playlists []models.PlaylistRef, auth models.Credentials) (*models.Job, error) {
	if len(playlists) == 0 {
		return nil, fmt.Errorf("%w: no playlists provided", shared.ErrInvalidInput)
	}

	items := make([]models.PlaylistProgress, 0, len(playlists))
	for _, p := range playlists {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
		}
		items = append(items, models.NewPlaylistProgress(p.ID, p.Name))
	}

	job, err := e.store.Create(models.KindTransfer, items)
	if err != nil {
		return nil, err
	}

	e.launch(ctx, job, func(ctx context.Context, rec *jobRecord) error {
		return e.runTransfer(ctx, rec, auth)
	})
	return job, nil
}

// StartSync creates a sync job and runs it in the background.
//
// One-way jobs have a single item keyed by the destination id. Two-way jobs have one item per direction,
// keyed to:<dest id> and to:<source id>.
func (e *JobEngine) StartSync(ctx context.Context, spec SyncJob, auth models.Credentials) (*models.Job, error) {
	if err := spec.Source.Validate(); err != nil {
		return nil, fmt.Errorf("%w: source: %v", shared.ErrInvalidInput, err)
	}
	if err := spec.Destination.Validate(); err != nil {
		return nil, fmt.Errorf("%w: destination: %v", shared.ErrInvalidInput, err)
	}
	if !spec.Mode.Valid() {
		return nil, fmt.Errorf("%w: unknown sync mode %q", shared.ErrInvalidInput, spec.Mode)
	}
	if spec.Source.ID == spec.Destination.ID {
		return nil, fmt.Errorf("%w: source and destination are the same playlist", shared.ErrUnsupportedSync)
	}

	job, err := e.store.Create(models.KindSync, syncItems(spec))
	if err != nil {
		return nil, err
	}

	e.launch(ctx, job, func(ctx context.Context, rec *jobRecord) error {
		return e.runSync(ctx, rec, spec, auth)
	})
	return job, nil
}

func syncItems(spec SyncJob) []models.PlaylistProgress {
	if spec.Mode == models.TwoWay {
		return []models.PlaylistProgress{
			models.NewPlaylistProgress(toItemID(spec.Destination.ID), "To destination: "+spec.Destination.Name),
			models.NewPlaylistProgress(toItemID(spec.Source.ID), "To source: "+spec.Source.Name),
		}
	}
	return []models.PlaylistProgress{
		models.NewPlaylistProgress(spec.Destination.ID, "Add to "+spec.Destination.Name),
	}
}

func toItemID(playlistID string) string { return "to:" + playlistID }

// launch runs body on a goroutine detached from ctx's cancellation. Whatever happens inside, the job
// ends in a terminal state.
func (e *JobEngine) launch(ctx context.Context, job *models.Job, body func(context.Context, *jobRecord) error) {
	logger := shared.WithLogger(e.logger, "job", job.ID, "kind", string(job.Kind))
	rec := newJobRecord(job, e.store, logger, e.now)
	ctx = context.WithoutCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		started := time.Now()
		e.opts.Observer.JobStarted(job.Kind)

		defer func() {
			if p := recover(); p != nil {
				logger.Error("job panicked", "panic", p, "stack", string(debug.Stack()))
				rec.fail(fmt.Sprintf("%s: %v", msgUnknown, p))
			}
			final := rec.snapshot()
			for _, it := range final.Items {
				e.opts.Observer.ItemFinished(final.Kind, it.Status)
			}
			e.opts.Observer.JobFinished(final.Kind, final.Status, time.Since(started))
			logger.Info("job finished", "status", final.Status, "elapsed", time.Since(started))
		}()

		rec.setStatus(models.JobRunning)
		if err := body(ctx, rec); err != nil {
			logger.Warn("job failed", "phase", phaseOf(err), "error", err)
			rec.fail(messageOf(err))
			return
		}
		rec.finish()
	}()
}

// resolveTokens returns both tokens, or ok=false after recording an authentication failure.
func (e *JobEngine) resolveTokens(ctx context.Context, rec *jobRecord, auth models.Credentials) (string, string, bool) {
	source, srcErr := e.creds.EnsureToken(ctx, auth.SourceAccessToken, auth.SourceRefreshToken)
	dest, dstErr := e.creds.EnsureToken(ctx, auth.DestAccessToken, auth.DestRefreshToken)
	if srcErr != nil || dstErr != nil {
		rec.logger.Warn("token resolution failed", "source", srcErr, "destination", dstErr)
		rec.failUnauthenticated()
		return "", "", false
	}
	return source, dest, true
}

// readTracks reads a playlist or the saved-tracks collection, mapping failures to the right message.
func (e *JobEngine) readTracks(ctx context.Context, token, playlistID string) ([]string, error) {
	uris, err := e.api.ReadAllTracks(ctx, token, playlistID)
	if err != nil {
		if playlistID == models.LikedSongsID {
			return nil, failure(FetchTracks, msgFetchLiked, err)
		}
		return nil, failure(FetchTracks, msgFetchTracks, err)
	}
	return uris, nil
}

// addWithProgress writes uris to target, advancing the added count of the item at idx after each request.
func (e *JobEngine) addWithProgress(ctx context.Context, rec *jobRecord, target Target, idx int, uris []string) error {
	return target.Add(ctx, uris, func(n int) {
		rec.progress(idx, n)
		e.opts.Observer.TracksWritten(n)
	})
}
