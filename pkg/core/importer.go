package core

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/logger"
	"github.com/bttc/roundrobin/pkg/metrics"
	"github.com/bttc/roundrobin/pkg/types"
)

const (
	maxParseError      = 500
	maxValidationError = 200
)

// LinkResult is the per-document status of an import run
type LinkResult string

const (
	ResultImported LinkResult = "imported"
	ResultSkipped  LinkResult = "skipped"
	ResultFailed   LinkResult = "failed"
)

// Options selects which documents an import run processes
type Options struct {
	Limit        int
	StartFrom    string
	Since        *time.Time
	RetryFailed  bool
	SkipExisting bool
	Workers      int
}

// Stats tallies an import run
type Stats struct {
	RunID            string        `json:"run_id" yaml:"run_id"`
	Total            int           `json:"total" yaml:"total"`
	Imported         int           `json:"imported" yaml:"imported"`
	Skipped          int           `json:"skipped" yaml:"skipped"`
	Failed           int           `json:"failed" yaml:"failed"`
	ParsingErrors    int           `json:"parsing_errors" yaml:"parsing_errors"`
	ValidationErrors int           `json:"validation_errors" yaml:"validation_errors"`
	DBErrors         int           `json:"db_errors" yaml:"db_errors"`
	Duration         time.Duration `json:"duration" yaml:"duration"`
}

func (s *Stats) add(result LinkResult, status types.ParsingStatus) {
	switch result {
	case ResultImported:
		s.Imported++
	case ResultSkipped:
		s.Skipped++
	case ResultFailed:
		s.Failed++
		switch status {
		case types.ParsingStatusValidationFailed:
			s.ValidationErrors++
		case types.ParsingStatusDBError:
			s.DBErrors++
		default:
			s.ParsingErrors++
		}
	}
}

// Importer imports results documents from a link source into a store
type Importer struct {
	engine  *Engine
	links   interfaces.LinkSource
	store   interfaces.TournamentStore
	config  config.ImportConfig
	logger  interfaces.Logger
	metrics interfaces.Metrics
}

// NewImporter creates a new importer
func NewImporter(engine *Engine, links interfaces.LinkSource, store interfaces.TournamentStore, cfg config.ImportConfig, log interfaces.Logger, m interfaces.Metrics) *Importer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	return &Importer{
		engine:  engine,
		links:   links,
		store:   store,
		config:  cfg,
		logger:  log,
		metrics: m,
	}
}

// ImportAll runs one import over the selected links. Documents are processed
// by a bounded pool of workers; each outcome is recorded through the store.
func (im *Importer) ImportAll(ctx context.Context, opts Options) (Stats, error) {
	start := time.Now()
	stats := Stats{RunID: uuid.New().String()}
	log := im.logger.WithFields(map[string]interface{}{"run_id": stats.RunID})

	links, err := im.candidates(ctx, opts)
	if err != nil {
		return stats, err
	}
	links = im.selectLinks(links, opts, log)
	stats.Total = len(links)
	log.Info("starting import", map[string]interface{}{
		"documents":    stats.Total,
		"retry_failed": opts.RetryFailed,
	})

	workers := opts.Workers
	if workers <= 0 {
		workers = im.config.Workers
	}
	workers = max(1, workers)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		semaphore = make(chan struct{}, workers)
	)
	for i, link := range links {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(index int, link types.TournamentLink) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			if ctx.Err() != nil {
				return
			}

			linkLog := log.WithFields(map[string]interface{}{
				"document": fmt.Sprintf("%d/%d", index+1, len(links)),
				"display":  link.Display,
			})
			result, status := im.importLink(ctx, link, opts.SkipExisting, linkLog)
			im.metrics.Counter(metrics.ImportOutcomes, 1, map[string]string{"result": string(result)})

			mu.Lock()
			stats.add(result, status)
			mu.Unlock()
		}(i, link)
	}
	wg.Wait()

	stats.Duration = time.Since(start)
	log.Info("import finished", map[string]interface{}{
		"total":             stats.Total,
		"imported":          stats.Imported,
		"skipped":           stats.Skipped,
		"failed":            stats.Failed,
		"parsing_errors":    stats.ParsingErrors,
		"validation_errors": stats.ValidationErrors,
		"db_errors":         stats.DBErrors,
		"duration":          stats.Duration.String(),
	})
	return stats, ctx.Err()
}

// ImportLink imports a single document outside of a run
func (im *Importer) ImportLink(ctx context.Context, link types.TournamentLink, skipExisting bool) (LinkResult, types.ParsingStatus) {
	return im.importLink(ctx, link, skipExisting, im.logger)
}

func (im *Importer) importLink(ctx context.Context, link types.TournamentLink, skipExisting bool, log interfaces.Logger) (LinkResult, types.ParsingStatus) {
	if skipExisting && link.Date != nil {
		imported, err := im.store.IsImported(ctx, *link.Date)
		if err != nil {
			log.Warn("failed to check existing tournament", map[string]interface{}{"error": err.Error()})
		} else if imported {
			log.Info("already imported")
			return ResultSkipped, types.ParsingStatusSuccess
		}
	}

	outcome := im.engine.Process(ctx, link.URL)
	if ctx.Err() != nil {
		return ResultFailed, outcome.Status
	}

	// Old numbered PDFs carry no date in their URL.
	date := link.Date
	if date == nil {
		date = outcome.Date()
	}

	switch outcome.Status {
	case types.ParsingStatusSuccess:
		id, err := im.store.SaveDocument(ctx, outcome.Document, link.URL)
		if err != nil {
			log.Error("failed to save tournament", err)
			im.recordFailure(ctx, log, types.Tournament{
				DisplayName:   outcome.Document.Tournament.Name,
				Date:          date,
				SourceURL:     link.URL,
				ParsingStatus: types.ParsingStatusDBError,
				ParseError:    truncate("Database import failed: "+err.Error(), maxParseError),
			})
			return ResultFailed, types.ParsingStatusDBError
		}
		log.Info("imported tournament", map[string]interface{}{"tournament_id": id})
		return ResultImported, types.ParsingStatusSuccess

	case types.ParsingStatusValidationFailed:
		for _, msg := range firstN(outcome.Validation.Errors, 10) {
			log.Warn("validation error", map[string]interface{}{"error": msg})
		}
		im.recordFailure(ctx, log, types.Tournament{
			DisplayName:   outcome.Document.Tournament.Name,
			Date:          date,
			SourceURL:     link.URL,
			ParsingStatus: types.ParsingStatusValidationFailed,
			ParseError:    "Validation failed: " + truncate(outcome.Validation.FirstError(), maxValidationError),
		})
		return ResultFailed, types.ParsingStatusValidationFailed

	default:
		msg := "Failed to parse tournament"
		if outcome.Err != nil {
			msg = outcome.Err.Error()
		}
		im.recordFailure(ctx, log, types.Tournament{
			Date:          date,
			SourceURL:     link.URL,
			ParsingStatus: types.ParsingStatusParsingFailed,
			ParseError:    truncate(msg, maxParseError),
		})
		return ResultFailed, types.ParsingStatusParsingFailed
	}
}

// recordFailure stores a status row when the tournament date is known
func (im *Importer) recordFailure(ctx context.Context, log interfaces.Logger, record types.Tournament) {
	if record.Date == nil {
		log.Warn("no date known, failure not recorded", map[string]interface{}{
			"status": string(record.ParsingStatus),
		})
		return
	}
	if _, err := im.store.RecordFailure(ctx, record); err != nil {
		log.Warn("failed to record tournament status", map[string]interface{}{"error": err.Error()})
	}
}

// candidates returns the links of the results index, or the stored
// unsuccessful tournaments when retrying
func (im *Importer) candidates(ctx context.Context, opts Options) ([]types.TournamentLink, error) {
	if !opts.RetryFailed {
		links, err := im.links.Scan(ctx)
		if err != nil {
			return nil, err
		}
		im.metrics.Gauge(metrics.LinksDiscovered, float64(len(links)), nil)
		return links, nil
	}

	failed, err := im.store.ListUnsuccessful(ctx)
	if err != nil {
		return nil, err
	}
	links := make([]types.TournamentLink, 0, len(failed))
	for _, t := range failed {
		if t.SourceURL == "" {
			im.logger.Warn("skipping tournament without source url", map[string]interface{}{
				"name": t.DisplayName,
			})
			continue
		}
		links = append(links, LinkFromTournament(t))
	}
	return links, nil
}

var oldPDFPattern = regexp.MustCompile(`/(\d+)\.pdf$`)

// LinkFromTournament rebuilds an index link from a stored tournament row
func LinkFromTournament(t types.Tournament) types.TournamentLink {
	link := types.TournamentLink{URL: t.SourceURL, Date: t.Date, Format: types.LinkFormatHTML}
	lower := strings.ToLower(t.SourceURL)
	if strings.HasSuffix(lower, ".pdf") {
		link.Format = types.LinkFormatPDF
		if m := oldPDFPattern.FindStringSubmatch(lower); m != nil {
			link.Format = types.LinkFormatPDFOld
			link.PDFNumber = m[1]
		}
	}

	switch {
	case t.Date != nil:
		link.Display = t.Date.Format(types.DisplayDateLayout)
	default:
		link.Display = t.SourceURL[strings.LastIndex(t.SourceURL, "/")+1:]
	}
	return link
}

// selectLinks applies Since, StartFrom and Limit, in that order
func (im *Importer) selectLinks(links []types.TournamentLink, opts Options, log interfaces.Logger) []types.TournamentLink {
	if opts.Since != nil {
		since := *opts.Since
		kept := links[:0:0]
		for _, l := range links {
			if l.Date != nil && !l.Date.Before(since) {
				kept = append(kept, l)
			}
		}
		links = kept
	}

	if opts.StartFrom != "" {
		if i, ok := startIndex(links, opts.StartFrom); ok {
			log.Info("starting from tournament", map[string]interface{}{"display": links[i].Display})
			links = links[i:]
		} else {
			log.Warn("no tournament matches start point", map[string]interface{}{"start_from": opts.StartFrom})
		}
	}

	if opts.Limit > 0 && len(links) > opts.Limit {
		links = links[:opts.Limit]
	}
	return links
}

// startIndex finds the first link whose display contains s (case-insensitive)
// or whose URL contains s, falling back to the closest fuzzy display match
func startIndex(links []types.TournamentLink, s string) (int, bool) {
	lower := strings.ToLower(s)
	for i, l := range links {
		if strings.Contains(strings.ToLower(l.Display), lower) || strings.Contains(l.URL, s) {
			return i, true
		}
	}

	displays := make([]string, len(links))
	for i, l := range links {
		displays[i] = l.Display
	}
	ranks := fuzzy.RankFindFold(s, displays)
	if len(ranks) == 0 {
		return 0, false
	}
	sort.Stable(ranks)
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance == best.Distance && r.OriginalIndex < best.OriginalIndex {
			best = r
		}
	}
	return best.OriginalIndex, true
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
