package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/readwise-export/pkg/config"
	"github.com/Sternrassler/readwise-export/pkg/export"
	"github.com/Sternrassler/readwise-export/pkg/logging"
	"github.com/Sternrassler/readwise-export/pkg/metrics"
)

var (
	// Version information, set via -ldflags
	version   = "0.1.0"
	gitCommit = "unknown"
)

// options holds the command-line flags. Only flags the user set override
// the file and environment configuration.
type options struct {
	configFile       string
	output           string
	format           string
	overwrite        bool
	allowDuplicates  bool
	logLevel         string
	logPretty        bool
	cacheBackend     string
	cachePath        string
	redisURL         string
	baseURL          string
	timeout          time.Duration
	maxThrottleWaits int
	maxThrottleWait  time.Duration
	metricsFile      string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "readwise-export",
		Short: "Export Readwise Reader documents to JSONL or CSV",
		Long: `Export every document in your Readwise Reader library to a local file.

The access token is read from READWISE_ACCESS_TOKEN (environment or .env file).
Fetched pages are cached in .cache/responses_cache.db, so an interrupted
export resumes where it stopped. Re-running appends only new records unless
--allow-duplicates is given.

Output defaults:
  no --output and no --format   readwise_export.csv
  --format only                 readwise_export.<format>
  --output only                 format taken from the file extension`,
		Version:       fmt.Sprintf("%s (commit: %s, %s)", version, gitCommit, runtime.Version()),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			logCfg := cfg.LoggerConfig()
			logCfg.Output = cmd.ErrOrStderr()
			logging.Setup(logCfg)

			if cfg.MetricsFile != "" {
				defer func() {
					if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
						logger := logging.NewLogger("main")
						logger.Warn().Err(err).Msg("Failed to write metrics file")
					}
				}()
			}

			_, err = runExport(cmd.Context(), cfg, cmd.OutOrStdout())
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "config file (default "+config.DefaultFile+" if present)")
	f.StringVarP(&opts.output, "output", "o", "", "file path to export data to")
	f.StringVar(&opts.format, "format", "", "export format (jsonl, csv)")
	f.BoolVar(&opts.overwrite, "overwrite", false, "overwrite the existing file")
	f.BoolVar(&opts.allowDuplicates, "allow-duplicates", false, "allow duplicate entries in the file")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	f.BoolVar(&opts.logPretty, "log-pretty", false, "human-readable log output")
	f.StringVar(&opts.cacheBackend, "cache-backend", "sqlite", "page cache backend (sqlite, redis, memory)")
	f.StringVar(&opts.cachePath, "cache-path", "", "sqlite cache file (default .cache/responses_cache.db)")
	f.StringVar(&opts.redisURL, "redis-url", "", "redis URL for the redis cache backend")
	f.StringVar(&opts.baseURL, "base-url", "", "Readwise API base URL")
	f.DurationVar(&opts.timeout, "timeout", 60*time.Second, "HTTP request timeout")
	f.IntVar(&opts.maxThrottleWaits, "max-throttle-waits", 0, "give up after this many consecutive throttle waits (0 = never)")
	f.DurationVar(&opts.maxThrottleWait, "max-throttle-wait", 0, "give up once throttle waits add up to this (0 = never)")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write a Prometheus textfile snapshot here at exit")
	_ = f.MarkHidden("base-url")

	cmd.SetVersionTemplate("readwise-export {{.Version}}\n")
	cmd.CompletionOptions.DisableDefaultCmd = true

	return cmd
}

// loadConfig merges file and environment configuration with the flags that
// were set, then validates. The output format is checked here, before any
// cache or network access.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Export.Output = opts.output
	}
	if flags.Changed("format") {
		cfg.Export.Format = opts.format
	}
	if flags.Changed("overwrite") {
		cfg.Export.Overwrite = opts.overwrite
	}
	if flags.Changed("allow-duplicates") {
		cfg.Export.AllowDuplicates = opts.allowDuplicates
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-pretty") {
		cfg.Logging.Pretty = opts.logPretty
	}
	if flags.Changed("cache-backend") {
		cfg.Cache.Backend = opts.cacheBackend
	}
	if flags.Changed("cache-path") {
		cfg.Cache.Path = opts.cachePath
	}
	if flags.Changed("redis-url") {
		cfg.Cache.RedisURL = opts.redisURL
	}
	if flags.Changed("base-url") {
		cfg.API.BaseURL = opts.baseURL
	}
	if flags.Changed("timeout") {
		cfg.API.Timeout = opts.timeout
	}
	if flags.Changed("max-throttle-waits") {
		cfg.Throttle.MaxConsecutiveWaits = opts.maxThrottleWaits
	}
	if flags.Changed("max-throttle-wait") {
		cfg.Throttle.MaxTotalWait = opts.maxThrottleWait
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = opts.metricsFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	exportOpts := cfg.ExportOptions()
	if _, err := export.ResolveFormat(exportOpts.Path, exportOpts.Format); err != nil {
		return nil, err
	}
	return cfg, nil
}
