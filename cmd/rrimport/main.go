// Package main provides the rrimport command line tool, which extracts
// round-robin results from the club's published documents and imports them
// into the results database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/core"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/logger"
	"github.com/bttc/roundrobin/pkg/metrics"
	"github.com/bttc/roundrobin/pkg/parsers"
	"github.com/bttc/roundrobin/pkg/readers"
	"github.com/bttc/roundrobin/pkg/store"
)

// Version information (set by build process)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalOptions holds the persistent flags shared by every command
type globalOptions struct {
	configFile string
	logLevel   string
	envFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "rrimport",
		Short: "Round-robin results importer",
		Long: `rrimport reads the round-robin results published as HTML bracket pages
and PDF score grids, checks them for completeness and stores them.

Examples:
  rrimport parse results/rr_results_2025nov07.html --output yaml
  rrimport scan
  rrimport import --since 2025-01-01 --skip-existing
  rrimport schedule`,
		Version:       fmt.Sprintf("%s (%s)", Version, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to configuration file (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Load environment variables from this file (default: .env when present)")

	rootCmd.AddCommand(parseCmd(opts))
	rootCmd.AddCommand(scanCmd(opts))
	rootCmd.AddCommand(importCmd(opts))
	rootCmd.AddCommand(scheduleCmd(opts))
	return rootCmd
}

// app holds the collaborators built from the effective configuration
type app struct {
	cfg      *config.Config
	logger   interfaces.Logger
	metrics  *metrics.MemoryMetrics
	fetcher  *readers.HTTPFetcher
	acquirer *readers.Acquirer
	engine   *core.Engine
}

func newApp(opts *globalOptions) (*app, error) {
	if err := loadEnv(opts.envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(opts.configFile, config.DefaultEnvPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	log, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	m := metrics.NewMemoryMetrics()

	var ocr interfaces.OCREngine
	if cfg.OCR.Enabled {
		ocr = readers.NewHTTPOCREngine(cfg.OCR, log)
	}
	fetcher := readers.NewHTTPFetcher(cfg.Fetch, log)
	extractor := readers.NewPDFExtractor(cfg.Policy, ocr, log, m)
	acquirer := readers.NewAcquirer(fetcher, extractor, log)
	engine := core.NewEngine(acquirer, parsers.NewParserFactory(cfg.Policy, log), cfg.Policy, log, m)

	return &app{
		cfg:      cfg,
		logger:   log,
		metrics:  m,
		fetcher:  fetcher,
		acquirer: acquirer,
		engine:   engine,
	}, nil
}

// loadEnv loads the named env file, or .env when it exists
func loadEnv(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load()
	}
	return nil
}

func newLogger(cfg *config.Config) (interfaces.Logger, error) {
	if cfg.LogFile != "" {
		return logger.NewFileLogger(cfg.LogLevel, cfg.LogFile)
	}
	return logger.NewConsoleLogger(cfg.LogLevel), nil
}

func (a *app) scanner() *readers.IndexScanner {
	return readers.NewIndexScanner(a.fetcher, a.cfg.Fetch.BaseURL, a.cfg.Fetch.IndexURL(), a.logger)
}

func (a *app) openStore() (*store.Repository, error) {
	return store.NewRepository(a.cfg.Store, a.logger)
}

func (a *app) importer(repo *store.Repository) *core.Importer {
	return core.NewImporter(a.engine, a.scanner(), repo, a.cfg.Import, a.logger, a.metrics)
}
