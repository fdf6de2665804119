package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/plsync/internal/server"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

// Serve runs the job server until the process is interrupted.
//
// Running jobs are given [shutdownTimeout] to finish after the listener closes.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Server
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}

	store, closeStore, err := r.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	metrics := server.NewMetrics()
	engine := r.newEngine(store, metrics)
	srv := server.New(cfg, engine, metrics, r.logger)

	errs := make(chan error, 1)
	go func() { errs <- srv.Start() }()
	r.logger.Info("job server started", "addr", cfg.Addr(), "backend", r.config.Jobs.Backend)

	select {
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("http shutdown incomplete", "error", err)
	}

	done := make(chan struct{})
	go func() {
		engine.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		r.logger.Warn("jobs still running at exit")
	}
	return nil
}
