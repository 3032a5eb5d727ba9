package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/core"
	"github.com/bttc/roundrobin/pkg/parsers"
	"github.com/bttc/roundrobin/pkg/schedulers"
	"github.com/bttc/roundrobin/pkg/types"
	"github.com/bttc/roundrobin/pkg/validator"
)

// parseReport is what `rrimport parse` prints
type parseReport struct {
	Source     string                `json:"source" yaml:"source"`
	Status     types.ParsingStatus   `json:"status" yaml:"status"`
	Error      string                `json:"error,omitempty" yaml:"error,omitempty"`
	Validation validator.Result      `json:"validation" yaml:"validation"`
	Document   *types.ParsedDocument `json:"document,omitempty" yaml:"document,omitempty"`
}

func parseCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "parse <path-or-url>",
		Short: "Parse and validate a single results document",
		Long: `Parse a results document (HTML bracket page or PDF score grid) from a
local path or URL, validate it and print the normalized result.

Exits non-zero when the document cannot be parsed or fails validation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}

			outcome := a.engine.Process(cmd.Context(), args[0])
			report := parseReport{
				Source:     outcome.Source,
				Status:     outcome.Status,
				Validation: outcome.Validation,
				Document:   outcome.Document,
			}
			if outcome.Err != nil {
				report.Error = outcome.Err.Error()
			}
			if err := writeOutput(cmd.OutOrStdout(), output, report); err != nil {
				return err
			}
			if !outcome.OK() {
				return fmt.Errorf("%s: %s", outcome.Status, report.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format (json, yaml)")
	return cmd
}

func scanCmd(opts *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List the results documents linked from the results index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}

			links, err := a.scanner().Scan(cmd.Context())
			if err != nil {
				return err
			}
			if output != "text" {
				return writeOutput(cmd.OutOrStdout(), output, links)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tFORMAT\tDISPLAY\tURL")
			for _, l := range links {
				date := "-"
				if l.Date != nil {
					date = l.Date.Format(time.DateOnly)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", date, l.Format, l.Display, l.URL)
			}
			fmt.Fprintf(w, "\n%d documents\n", len(links))
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}

func importCmd(opts *globalOptions) *cobra.Command {
	var (
		limit        int
		startFrom    string
		since        string
		retryFailed  bool
		skipExisting bool
		workers      int
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import results documents into the database",
		Long: `Import every document on the results index, or only the tournaments
previously recorded as unsuccessful with --retry-failed.

Examples:
  rrimport import --limit 10
  rrimport import --start-from "2023 Feb" --skip-existing
  rrimport import --retry-failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}

			importOpts := core.Options{
				Limit:        limit,
				StartFrom:    startFrom,
				RetryFailed:  retryFailed,
				SkipExisting: a.cfg.Import.SkipExisting,
				Workers:      workers,
			}
			if cmd.Flags().Changed("skip-existing") {
				importOpts.SkipExisting = skipExisting
			}
			if since != "" {
				t, err := time.Parse(time.DateOnly, since)
				if err != nil {
					return fmt.Errorf("invalid --since %q: expected YYYY-MM-DD", since)
				}
				importOpts.Since = &t
			}

			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			stats, err := a.importer(repo).ImportAll(cmd.Context(), importOpts)
			printStats(cmd.OutOrStdout(), stats)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Import at most N documents")
	cmd.Flags().StringVar(&startFrom, "start-from", "", "Start at the first document whose display name or URL matches")
	cmd.Flags().StringVar(&since, "since", "", "Only import documents dated on or after YYYY-MM-DD")
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "Retry tournaments whose stored status is not success")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", true, "Skip dates that already have groups in the database")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of documents processed in parallel (default from config)")
	return cmd
}

func scheduleCmd(opts *globalOptions) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the weekly import of recent documents",
		Long: `Run the weekly import job until interrupted. Each run imports the
documents of the configured lookback window and skips dates already stored.
Policy changes in the configuration file are applied without a restart.

With --run-now a single run is performed immediately; the command exits
non-zero when any document failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			repo, err := a.openStore()
			if err != nil {
				return err
			}
			defer repo.Close()

			sched, err := schedulers.NewImportScheduler(a.importer(repo), a.cfg.Scheduler, a.logger)
			if err != nil {
				return err
			}

			if runNow {
				stats, err := sched.RunNow(ctx)
				printStats(cmd.OutOrStdout(), stats)
				if err != nil {
					return err
				}
				if stats.Failed > 0 {
					return fmt.Errorf("%d documents failed", stats.Failed)
				}
				return nil
			}

			if opts.configFile != "" {
				if err := a.watchPolicy(cmd, opts.configFile); err != nil {
					return err
				}
			}

			if err := sched.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			a.logger.Info("shutting down scheduler")
			return sched.Stop()
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "Run one import immediately and exit")
	return cmd
}

// watchPolicy reloads the extraction policy whenever the config file changes
func (a *app) watchPolicy(cmd *cobra.Command, path string) error {
	manager := config.NewConfigManager()
	if err := manager.Load(cmd.Context(), path); err != nil {
		return err
	}
	return manager.Watch(cmd.Context(), func(key string, value interface{}) {
		if key != "policy" {
			return
		}
		cfg, err := config.Load(path, config.DefaultEnvPrefix)
		if err != nil {
			a.logger.Warn("ignoring invalid configuration change", map[string]interface{}{"error": err.Error()})
			return
		}
		if cfg.Policy == a.engine.Policy() {
			return
		}
		a.engine.Reconfigure(cfg.Policy, parsers.NewParserFactory(cfg.Policy, a.logger))
		a.logger.Info("reloaded extraction policy", map[string]interface{}{
			"missing_match_tolerance": cfg.Policy.MissingMatchTolerance,
		})
	})
}

func printStats(w io.Writer, stats core.Stats) {
	fmt.Fprintln(w, strings.Repeat("=", 40))
	fmt.Fprintf(w, "Run:               %s\n", stats.RunID)
	fmt.Fprintf(w, "Total documents:   %d\n", stats.Total)
	fmt.Fprintf(w, "Imported:          %d\n", stats.Imported)
	fmt.Fprintf(w, "Skipped:           %d\n", stats.Skipped)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failed)
	fmt.Fprintf(w, "  parsing errors:    %d\n", stats.ParsingErrors)
	fmt.Fprintf(w, "  validation errors: %d\n", stats.ValidationErrors)
	fmt.Fprintf(w, "  database errors:   %d\n", stats.DBErrors)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration.Round(time.Millisecond))
	fmt.Fprintln(w, strings.Repeat("=", 40))
}

func writeOutput(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
