package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, transferCommand, syncCommand, statusCommand, watchCommand, jobsCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Load resolves the configuration named by --config before any command runs.
func (r *Runner) Load(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	config, err := shared.ResolveConfig(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	r.config = config

	level := config.Log.Level
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(level))
	return ctx, nil
}

// SetLogger replaces the runner's logger, e.g. to keep terminal rendering clean.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// openStore builds the configured job store. The returned close function is never nil.
func (r *Runner) openStore(ctx context.Context) (repositories.JobStore, func(), error) {
	if r.config.Jobs.Backend != shared.BackendSQLite {
		store, err := repositories.NewJobStore(r.config.Jobs.Backend, nil)
		return store, func() {}, err
	}

	db, err := r.openDatabase(ctx)
	if err != nil {
		return nil, func() {}, err
	}

	store, err := repositories.NewJobStore(shared.BackendSQLite, db)
	if err != nil {
		db.Close()
		return nil, func() {}, err
	}
	return store, func() { db.Close() }, nil
}

// openDatabase opens the configured SQLite database and brings its schema up to date.
func (r *Runner) openDatabase(ctx context.Context) (*sql.DB, error) {
	path := r.config.Database.Path
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	shared.ConfigureDatabase(db, path, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	applied, err := shared.RunMigrations(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if applied > 0 {
		r.logger.Info("applied migrations", "count", applied, "path", path)
	}
	return db, nil
}

// newEngine wires a job engine to the Spotify Web API using the runner's config.
func (r *Runner) newEngine(store repositories.JobStore, observer tasks.Observer) *tasks.JobEngine {
	cfg := r.config
	client := services.NewSpotifyClient(cfg.Spotify, shared.WithLogger(r.logger, "component", "spotify"))
	creds := services.NewTokenRefresher(cfg.Spotify.ClientID, cfg.Spotify.TokenURL, r.httpClient)

	opts := tasks.DefaultEngineOptions()
	opts.SavedTracksDelay = cfg.Engine.SavedTracksDelay
	opts.FollowForeignPlaylists = cfg.Engine.FollowForeignPlaylists
	opts.Observer = observer

	return tasks.NewJobEngine(store, client, creds, shared.WithLogger(r.logger, "component", "engine"), opts)
}

func (r *Runner) apiService(cmd *cli.Command) *services.APIService {
	return services.NewAPIService(cmd.String("server"), r.httpClient)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
