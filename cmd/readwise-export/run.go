package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/readwise-export/internal/progress"
	"github.com/Sternrassler/readwise-export/pkg/cache"
	"github.com/Sternrassler/readwise-export/pkg/client"
	"github.com/Sternrassler/readwise-export/pkg/config"
	"github.com/Sternrassler/readwise-export/pkg/export"
	"github.com/Sternrassler/readwise-export/pkg/logging"
	"github.com/Sternrassler/readwise-export/pkg/pagination"
	"github.com/Sternrassler/readwise-export/pkg/ratelimit"
)

// progressLogEvery is the log interval for progress when stdout is not a terminal.
const progressLogEvery = 1000

// runExport wires the pipeline: cache-backed fetch into the exporter.
func runExport(ctx context.Context, cfg *config.Config, stdout io.Writer) (export.Result, error) {
	logger := logging.NewLogger("main")
	start := time.Now()

	store, err := cache.Open(cfg.CacheOptions())
	if err != nil {
		return export.Result{}, fmt.Errorf("open page cache: %w", err)
	}
	defer store.Close()

	logger.Info().
		Str("backend", cfg.Cache.Backend).
		Str("path", cfg.Cache.Path).
		Msg("Page cache opened")

	readerClient, err := client.New(cfg.ClientConfig())
	if err != nil {
		return export.Result{}, fmt.Errorf("create client: %w", err)
	}

	waiter := ratelimit.NewWaiter(cfg.ThrottleLimits(), logging.NewLogger("throttle"))
	fetcher := pagination.NewFetcher(readerClient, store, waiter, pagination.DefaultConfig())

	counter := progress.New(stdout, logging.NewLogger("progress"), progressLogEvery)
	opts := cfg.ExportOptions()
	opts.Progress = counter

	result, err := export.Append(ctx, fetcher.FetchAll(ctx), opts)
	counter.Finish()

	stats := fetcher.Stats()
	logger.Info().
		Str("path", result.Path).
		Int("written", result.Written).
		Int("skipped", result.Skipped).
		Int("pages", stats.Pages).
		Int("cached_pages", stats.CachedPages).
		Int("throttle_waits", stats.ThrottleWaits).
		Dur("throttle_waited", stats.TotalWaited).
		Dur("duration", time.Since(start)).
		Msg("Export summary")

	return result, err
}
