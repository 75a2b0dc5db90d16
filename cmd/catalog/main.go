// Command catalog extracts service records from text documents, prepares
// them for the vector index and loads them with either ingest strategy.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		slog.Error("catalog failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "catalog",
		Usage: "Build the service catalog and load it into the vector index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log output format (text, json)",
				Value: "text",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "extract",
				Usage:  "Extract records from every *.txt file in a directory",
				Action: extractCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dir",
						Aliases:  []string{"d"},
						Usage:    "Directory of source documents",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Records file to write",
						Value: "generated/services.json",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Parallel document parsers",
						Value: 4,
					},
				},
			},
			{
				Name:   "normalize",
				Usage:  "Derive price_from and price_display for every record",
				Action: normalizeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "in",
						Usage: "Records file to read",
						Value: "generated/services.json",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Normalized records file to write",
						Value: "generated/services.normalized.json",
					},
				},
			},
			{
				Name:   "prepare",
				Usage:  "Write the JSONL upload file from normalized records",
				Action: prepareCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "in",
						Usage: "Normalized records file to read",
						Value: "generated/services.normalized.json",
					},
					&cli.StringFlag{
						Name:  "out",
						Usage: "Upload file to write",
						Value: "generated/upload.jsonl",
					},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Embed records and write them to the vector index",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "Ingest strategy (batch, per-item)",
						Value: "per-item",
					},
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "Records file (.json) or upload file (.jsonl)",
						Value:   "generated/services.normalized.json",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Process at most N records (0 = all; overrides INGEST_LIMIT)",
					},
					&cli.StringFlag{
						Name:  "log",
						Usage: "Run log path (overrides INGEST_LOG)",
					},
					&cli.StringFlag{
						Name:  "embed-url",
						Usage: "Primary embedding server (overrides EMBED_SERVER_URL)",
					},
					&cli.StringFlag{
						Name:  "transport",
						Usage: "Index transport (rest, grpc; overrides INDEX_TRANSPORT)",
					},
					&cli.StringFlag{
						Name:  "collection",
						Usage: "Index collection (overrides QDRANT_COLLECTION)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Points per write in batch mode",
						Value: config.DefaultBatchSize,
					},
					&cli.DurationFlag{
						Name:  "pause",
						Usage: "Pause between records in per-item mode",
						Value: 250 * time.Millisecond,
					},
					&cli.BoolFlag{
						Name:  "ensure-collection",
						Usage: "Create the collection from the first vector's size if missing",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Write to an in-memory index instead of the configured one",
					},
					&cli.IntFlag{
						Name:  "metrics-port",
						Usage: "Serve /metrics and /healthz on this port (overrides METRICS_PORT)",
					},
				},
			},
			{
				Name:   "replay",
				Usage:  "Print the final state of every record of a logged run",
				Action: replayCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "log",
						Usage: "Run log path",
						Value: config.DefaultRunLogPath,
					},
					&cli.StringFlag{
						Name:  "run",
						Usage: "Run id (default: the last run in the log)",
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level: %s", c.String("log-level"))
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(c.String("log-format")) {
	case "text":
		handler = slog.NewTextHandler(c.App.ErrWriter, opts)
	case "json":
		handler = slog.NewJSONHandler(c.App.ErrWriter, opts)
	default:
		return fmt.Errorf("invalid log format: %s", c.String("log-format"))
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
