package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// jobBackend starts jobs and reports their progress. [services.APIService] talks to a server;
// [localBackend] runs the engine in this process.
type jobBackend interface {
	StartTransfer(ctx context.Context, req models.TransferRequest) (*models.StartResponse, error)
	StartSync(ctx context.Context, req models.SyncRequest) (*models.StartResponse, error)
	JobStatus(ctx context.Context, id string) (*models.Job, error)
}

type localBackend struct {
	engine *tasks.JobEngine
}

func (b localBackend) StartTransfer(ctx context.Context, req models.TransferRequest) (*models.StartResponse, error) {
	job, err := b.engine.StartTransfer(ctx, req.Playlists, *req.Auth)
	if err != nil {
		return nil, err
	}
	return &models.StartResponse{ID: job.ID, State: job}, nil
}

func (b localBackend) StartSync(ctx context.Context, req models.SyncRequest) (*models.StartResponse, error) {
	spec := tasks.SyncJob{Source: req.Source, Destination: req.Destination, Mode: req.Mode, RemoveMissing: req.RemoveMissing}
	job, err := b.engine.StartSync(ctx, spec, *req.Auth)
	if err != nil {
		return nil, err
	}
	return &models.StartResponse{ID: job.ID, State: job}, nil
}

func (b localBackend) JobStatus(_ context.Context, id string) (*models.Job, error) {
	return b.engine.Job(id)
}

// backend returns the server named by --server, or an in-process engine over the configured store.
func (r *Runner) backend(ctx context.Context, cmd *cli.Command) (jobBackend, func(), error) {
	if cmd.String("server") != "" {
		return r.apiService(cmd), func() {}, nil
	}

	store, closeStore, err := r.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return localBackend{engine: r.newEngine(store, nil)}, closeStore, nil
}

// Transfer copies the playlists named by --playlist and follows the job to completion.
func (r *Runner) Transfer(ctx context.Context, cmd *cli.Command) error {
	var playlists []models.PlaylistRef
	for _, arg := range cmd.StringSlice("playlist") {
		ref, err := parseRef(arg)
		if err != nil {
			return err
		}
		playlists = append(playlists, ref)
	}
	if len(playlists) == 0 {
		return fmt.Errorf("%w: at least one --playlist is required", shared.ErrMissingArgument)
	}

	auth, err := credentialsFrom(cmd)
	if err != nil {
		return err
	}

	backend, closeBackend, err := r.backend(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeBackend()

	started, err := backend.StartTransfer(ctx, models.TransferRequest{Playlists: playlists, Auth: &auth})
	if err != nil {
		return fmt.Errorf("failed to start transfer: %w", err)
	}

	r.logger.Info("transfer started", "job", started.ID, "playlists", len(playlists))
	r.writePlain("Started transfer %s\n\n", started.ID)
	return r.follow(ctx, backend, started.ID, cmd.Duration("interval"))
}

// Sync reconciles --dest with --source and follows the job to completion.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	source, err := parseRef(cmd.String("source"))
	if err != nil {
		return err
	}
	destination, err := parseRef(cmd.String("dest"))
	if err != nil {
		return err
	}

	mode := models.SyncMode(cmd.String("mode"))
	if !mode.Valid() {
		return fmt.Errorf("%w: mode must be %s or %s, got %q", shared.ErrInvalidArgument, models.OneWay, models.TwoWay, mode)
	}
	if cmd.Bool("remove-missing") && mode == models.TwoWay {
		r.logger.Warn("--remove-missing has no effect in two_way mode")
	}

	auth, err := credentialsFrom(cmd)
	if err != nil {
		return err
	}

	backend, closeBackend, err := r.backend(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeBackend()

	started, err := backend.StartSync(ctx, models.SyncRequest{
		Source:        source,
		Destination:   destination,
		Mode:          mode,
		RemoveMissing: cmd.Bool("remove-missing"),
		Auth:          &auth,
	})
	if err != nil {
		return fmt.Errorf("failed to start sync: %w", err)
	}

	r.logger.Info("sync started", "job", started.ID, "mode", mode)
	r.writePlain("Started %s sync %s\n\n", mode, started.ID)
	return r.follow(ctx, backend, started.ID, cmd.Duration("interval"))
}

// follow polls a job, printing new log lines as they appear, until it is terminal.
//
// A failed job is returned as an error so the process exits non-zero.
func (r *Runner) follow(ctx context.Context, backend jobBackend, id string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	printed := 0
	for {
		job, err := backend.JobStatus(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to poll job %s: %w", id, err)
		}

		for _, line := range job.Logs[min(printed, len(job.Logs)):] {
			r.writePlain("  %s\n", line)
		}
		printed = max(printed, len(job.Logs))

		if job.Status.Terminal() {
			r.writeSummary(job)
			if job.Status == models.JobFailed {
				return fmt.Errorf("job %s failed", id)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) writeSummary(job *models.Job) {
	text, _ := formatter.JobToText(job)
	r.writePlain("\n")
	r.writePlainHeader("Summary")
	r.writePlain("%s", text)
}

// parseRef reads a playlist reference written as id:name. A bare id uses itself as the name.
func parseRef(s string) (models.PlaylistRef, error) {
	id, name, _ := strings.Cut(s, ":")
	id, name = strings.TrimSpace(id), strings.TrimSpace(name)
	if name == "" {
		name = id
		if id == models.LikedSongsID {
			name = models.LikedSongsName
		}
	}

	ref := models.PlaylistRef{ID: id, Name: name}
	if err := ref.Validate(); err != nil {
		return ref, fmt.Errorf("%w: playlist %q: %v", shared.ErrInvalidArgument, s, err)
	}
	return ref, nil
}

func credentialsFrom(cmd *cli.Command) (models.Credentials, error) {
	auth := models.Credentials{
		SourceAccessToken:  cmd.String("source-token"),
		SourceRefreshToken: cmd.String("source-refresh"),
		DestAccessToken:    cmd.String("dest-token"),
		DestRefreshToken:   cmd.String("dest-refresh"),
	}
	if !auth.HasSource() || !auth.HasDestination() {
		return auth, fmt.Errorf("%w: provide --source-token or --source-refresh and --dest-token or --dest-refresh",
			shared.ErrNotAuthenticated)
	}
	return auth, nil
}
