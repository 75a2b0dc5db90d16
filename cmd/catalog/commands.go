package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/catalog"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/config"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/domain"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/embed"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/index"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/ingest"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/pointid"
	"github.com/free-bad-Man/rahima-consulting-v2-0/engine/runlog"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/metrics"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/natsutil"
	"github.com/free-bad-Man/rahima-consulting-v2-0/pkg/resilience"
)

func extractCommand(c *cli.Context) error {
	log := slog.Default()
	records, err := catalog.ExtractDir(c.Context, c.String("dir"), catalog.ExtractOpts{
		Workers: c.Int("workers"),
		Logger:  log,
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		log.Warn("extract.no_documents", "dir", c.String("dir"))
	}
	if err := catalog.WriteRecords(c.String("out"), records); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "extracted %d records -> %s\n", len(records), c.String("out"))
	return nil
}

func normalizeCommand(c *cli.Context) error {
	log := slog.Default()
	records, err := catalog.ReadRecords(c.String("in"))
	if err != nil {
		return err
	}
	records = catalog.NormalizeAll(records)

	unconfirmed := 0
	for _, r := range records {
		if err := domain.ValidateRecord(r); err != nil {
			log.Warn("normalize.invalid_record", "slug", r.Slug, "error", err)
		}
		if _, ok := r.Price(); !ok {
			unconfirmed++
		}
	}
	if err := catalog.WriteRecords(c.String("out"), records); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "normalized %d records (%d without price) -> %s\n", len(records), unconfirmed, c.String("out"))
	return nil
}

func prepareCommand(c *cli.Context) error {
	records, err := catalog.ReadRecords(c.String("in"))
	if err != nil {
		return err
	}
	entries := catalog.UploadEntries(records)
	if err := catalog.WriteUpload(c.String("out"), entries); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "prepared %d upload lines -> %s\n", len(entries), c.String("out"))
	return nil
}

func ingestCommand(c *cli.Context) error {
	ctx := c.Context
	log := slog.Default()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	mode := strings.ToLower(c.String("mode"))
	if mode != "batch" && mode != "per-item" {
		return fmt.Errorf("unknown mode %q (want batch or per-item)", mode)
	}

	items, err := loadItems(c.String("input"), cfg.MaxTextRunes)
	if err != nil {
		return err
	}
	log.Info("ingest.loaded", "input", c.String("input"), "records", len(items), "mode", mode)

	reg := metrics.New()
	if cfg.MetricsPort > 0 {
		srv := serveMetrics(cfg.MetricsPort, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	chainOpts := []embed.Option{
		embed.WithLogger(log),
		embed.WithMetrics(reg),
	}
	providers := embed.ProvidersFromConfig(cfg)
	if cfg.CacheDir != "" {
		cache, err := embed.OpenBadgerCache(cfg.CacheDir, false, embed.Namespace(cfg.Collection, providers), log)
		if err != nil {
			return err
		}
		defer cache.Close()
		chainOpts = append(chainOpts, embed.WithCache(cache))
	}
	chainOpts = append(chainOpts, embed.WithBreakers(resilience.DefaultBreakerOpts))
	chain := embed.NewChain(providers, chainOpts...)
	log.Info("ingest.providers", "chain", strings.Join(chain.Providers(), ","))

	store, closeStore, err := openStore(cfg, c.Bool("dry-run"))
	if err != nil {
		return err
	}
	defer closeStore()

	sink, closeSink, err := openSinks(cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()

	deps := ingest.Deps{
		Embedder: chain,
		Index:    store,
		IDs:      pointid.NewResolver(log),
		Events:   sink,
		Metrics:  reg,
		Logger:   log,
	}
	if c.Bool("ensure-collection") {
		deps.EnsureCollection = store.EnsureCollection
	}

	var sum ingest.Summary
	switch mode {
	case "batch":
		sum, err = ingest.NewBatch(deps, ingest.BatchOpts{Size: cfg.BatchSize, Limit: cfg.Limit}).Run(ctx, items)
	default:
		opts := ingest.DefaultPerItemOpts()
		opts.Limit = cfg.Limit
		opts.Pause = c.Duration("pause")
		sum = ingest.NewPerItem(deps, opts).Run(ctx, items)
	}

	printSummary(c, sum)
	if err != nil {
		return err
	}
	return ctx.Err()
}

func replayCommand(c *cli.Context) error {
	events, err := runlog.ReadFile(c.String("log"))
	if err != nil {
		return err
	}
	outcomes := runlog.Outcomes(events, c.String("run"))
	if len(outcomes) == 0 {
		return fmt.Errorf("no records logged for run %q in %s", c.String("run"), c.String("log"))
	}
	written := 0
	for _, o := range outcomes {
		if o.State == string(ingest.StateWritten) {
			written++
		}
		line := fmt.Sprintf("%d\t%s\t%s\t%s", o.Index, o.State, o.Key, o.PointID)
		if o.Err != "" {
			line += "\t" + o.Err
		}
		fmt.Fprintln(c.App.Writer, line)
	}
	fmt.Fprintf(c.App.Writer, "success=%d/%d\n", written, len(outcomes))
	return nil
}

// loadConfig reads the environment and applies the ingest flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if c.IsSet("limit") {
		cfg.Limit = c.Int("limit")
	}
	if v := c.String("log"); v != "" {
		cfg.RunLogPath = v
	}
	if v := c.String("embed-url"); v != "" {
		cfg.EmbedURL = v
	}
	if v := c.String("transport"); v != "" {
		cfg.Transport = strings.ToLower(v)
	}
	if v := c.String("collection"); v != "" {
		cfg.Collection = v
	}
	if c.IsSet("batch-size") {
		cfg.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("metrics-port") {
		cfg.MetricsPort = c.Int("metrics-port")
	}
	return cfg, cfg.Validate()
}

// loadItems reads an upload file when path ends in .jsonl and a records
// file otherwise.
func loadItems(path string, maxRunes int) ([]ingest.Item, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		entries, err := catalog.ReadUpload(path)
		if err != nil {
			return nil, err
		}
		return ingest.ItemsFromUpload(entries, maxRunes), nil
	}
	records, err := catalog.ReadRecords(path)
	if err != nil {
		return nil, err
	}
	return ingest.ItemsFromRecords(records, maxRunes), nil
}

func openStore(cfg config.Config, dryRun bool) (index.Store, func(), error) {
	if dryRun {
		return index.NewMemory(), func() {}, nil
	}
	if cfg.Transport == config.TransportGRPC {
		s, err := index.NewGRPC(cfg.IndexGRPCAddr, cfg.Collection)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return index.NewREST(cfg.IndexURL, cfg.Collection, cfg.WriteTimeout), func() {}, nil
}

// openSinks opens the durable run log and, when NATS is configured, an
// event publisher alongside it.
func openSinks(cfg config.Config, log *slog.Logger) (runlog.Sink, func(), error) {
	file, err := runlog.OpenFile(cfg.RunLogPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.NATSURL == "" {
		return file, func() { _ = file.Close() }, nil
	}

	nc, err := natsutil.Connect(cfg.NATSURL, "catalog-ingest")
	if err != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("nats: %w", err)
	}
	log.Info("ingest.events", "nats", cfg.NATSURL, "subject", cfg.EventsSubject)
	closeAll := func() {
		if err := nc.Drain(); err != nil {
			log.Warn("nats drain failed", "error", err)
		}
		_ = file.Close()
	}
	return runlog.Multi(file, runlog.NewNATSSink(nc, cfg.EventsSubject)), closeAll, nil
}

func printSummary(c *cli.Context, sum ingest.Summary) {
	for _, o := range sum.FailedOutcomes() {
		msg := ""
		if o.Err != nil {
			msg = o.Err.Error()
		}
		fmt.Fprintf(c.App.Writer, "failed\t%d\t%s\t%s\t%s\n", o.Index, o.Key, o.State, msg)
	}
	fmt.Fprintf(c.App.Writer, "%s run=%s mode=%s\n", sum.String(), sum.RunID, sum.Mode)
	if errors.Is(c.Context.Err(), context.Canceled) {
		fmt.Fprintln(c.App.Writer, "interrupted")
	}
}
