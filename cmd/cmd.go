// submodule cmd contains command definitions
package main

import (
	"time"

	"github.com/urfave/cli/v3"
)

func serverFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Base URL of a running plsync server",
		Sources: cli.EnvVars("PLSYNC_SERVER_URL"),
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

// credentialFlags are the per-role Spotify tokens. Either token is enough for a role.
func credentialFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "source-token",
			Usage:   "Source account access token",
			Sources: cli.EnvVars("PLSYNC_SOURCE_ACCESS_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "source-refresh",
			Usage:   "Source account refresh token",
			Sources: cli.EnvVars("PLSYNC_SOURCE_REFRESH_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "dest-token",
			Usage:   "Destination account access token",
			Sources: cli.EnvVars("PLSYNC_DEST_ACCESS_TOKEN"),
		},
		&cli.StringFlag{
			Name:    "dest-refresh",
			Usage:   "Destination account refresh token",
			Sources: cli.EnvVars("PLSYNC_DEST_REFRESH_TOKEN"),
		},
	}
}

func intervalFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:  "interval",
		Usage: "Polling interval while waiting for the job",
		Value: time.Second,
	}
}

// serveCommand runs the HTTP job server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP job server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides server.port)",
			},
		},
		Action: r.Serve,
	}
}

// transferCommand copies playlists into the destination account.
func transferCommand(r *Runner) *cli.Command {
	flags := []cli.Flag{
		&cli.StringSliceFlag{
			Name:     "playlist",
			Usage:    "Playlist to copy as id:name (repeatable; liked_songs for Liked Songs)",
			Required: true,
		},
		serverFlag(),
		intervalFlag(),
	}
	return &cli.Command{
		Name:   "transfer",
		Usage:  "Copy playlists from the source account to the destination account",
		Flags:  append(flags, credentialFlags()...),
		Action: r.Transfer,
	}
}

// syncCommand reconciles two playlists.
func syncCommand(r *Runner) *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "source",
			Usage:    "Source playlist as id:name",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "dest",
			Usage:    "Destination playlist as id:name",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "mode",
			Usage: "one_way or two_way",
			Value: "one_way",
		},
		&cli.BoolFlag{
			Name:  "remove-missing",
			Usage: "In one_way mode, remove destination tracks missing from the source",
		},
		serverFlag(),
		intervalFlag(),
	}
	return &cli.Command{
		Name:   "sync",
		Usage:  "Reconcile a destination playlist with a source playlist",
		Flags:  append(flags, credentialFlags()...),
		Action: r.Sync,
	}
}

// statusCommand prints a single job snapshot.
func statusCommand(r *Runner) *cli.Command {
	flags := []cli.Flag{
		serverFlag(),
		&cli.StringFlag{
			Name:     "id",
			Usage:    "Job ID",
			Required: true,
		},
	}
	flags = append(flags,
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Report format: text, markdown or csv",
			Value:   "text",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write the report to a file instead of stdout",
		},
	)
	return &cli.Command{
		Name:   "status",
		Usage:  "Fetch the status of a job from a running server",
		Flags:  append(flags, outputFlags()...),
		Action: r.Status,
	}
}

// watchCommand polls a job in an interactive terminal view.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Watch a job's progress until it finishes",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:     "id",
				Usage:    "Job ID",
				Required: true,
			},
			intervalFlag(),
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write process logs while the view is open",
				Value: "./tmp/plsync-watch.log",
			},
		},
		Action: r.Watch,
	}
}

// jobsCommand inspects the persistent job store.
func jobsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect jobs in the SQLite store",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the most recently created jobs",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of jobs to list",
						Value: 20,
					},
				}, outputFlags()...),
				Action: r.JobsList,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write a config file from the built-in template",
				Action: r.SetupConfig,
			},
		},
	}
}
