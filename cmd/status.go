package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// Status fetches one snapshot of a job from the server.
func (r *Runner) Status(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")
	job, err := r.apiService(cmd).JobStatus(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(job, cmd.Bool("pretty"))
	}

	if cmd.IsSet("format") || cmd.IsSet("output") {
		format, err := formatter.ParseFormat(cmd.String("format"))
		if err != nil {
			return err
		}
		if cmd.IsSet("output") {
			path, err := formatter.WriteReport(job, format, cmd.String("output"))
			if err != nil {
				return err
			}
			return r.writePlain("Report written to %s\n", path)
		}
		data, err := formatter.Render(job, format)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	}

	r.writeSummary(job)
	r.writePlain("\nUpdated %s\n", job.UpdatedAt.Format(time.RFC3339))
	if len(job.Logs) > 0 {
		r.writePlain("\nLog:\n")
		for _, line := range job.Logs {
			r.writePlain("  %s\n", line)
		}
	}
	return nil
}

// Watch opens the terminal job watcher.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	logPath := cmd.String("log-file")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	fileLogger, err := shared.NewFileLogger(logPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	id := cmd.String("id")
	job, err := ui.Watch(ctx, r.apiService(cmd), id, cmd.Duration("interval"), r.input, r.output)
	if err != nil {
		return fmt.Errorf("error running watcher: %w", err)
	}

	if job == nil {
		return nil
	}

	r.logger.Info("watch finished", "job", id, "status", job.Status)
	if job.Status == models.JobFailed {
		return fmt.Errorf("job %s failed", id)
	}
	return nil
}

type jobListing struct {
	ID        string           `json:"id"`
	Kind      models.JobKind   `json:"kind"`
	Status    models.JobStatus `json:"status"`
	Items     int              `json:"items"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// JobsList prints the newest jobs in the SQLite store.
func (r *Runner) JobsList(ctx context.Context, cmd *cli.Command) error {
	if r.config.Jobs.Backend != shared.BackendSQLite {
		return fmt.Errorf("%w: jobs list requires jobs.backend = %q", shared.ErrInvalidConfig, shared.BackendSQLite)
	}

	db, err := r.openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	store := repositories.NewSQLiteJobStore(db)
	ids, err := store.ListRecent(cmd.Int("limit"))
	if err != nil {
		return err
	}

	listings := make([]jobListing, 0, len(ids))
	for _, id := range ids {
		job, err := store.Get(id)
		if err != nil {
			return err
		}
		listings = append(listings, jobListing{
			ID:        job.ID,
			Kind:      job.Kind,
			Status:    job.Status,
			Items:     len(job.Items),
			UpdatedAt: job.UpdatedAt,
		})
	}

	if cmd.Bool("json") {
		return r.writeJSON(listings, cmd.Bool("pretty"))
	}

	if len(listings) == 0 {
		return r.writePlain("No jobs\n")
	}
	for _, l := range listings {
		r.writePlain("%-42s %-9s %-10s %2d items  %s\n", l.ID, l.Kind, l.Status, l.Items, l.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}
