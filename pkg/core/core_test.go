package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/logger"
	"github.com/bttc/roundrobin/pkg/metrics"
	"github.com/bttc/roundrobin/pkg/types"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// fakeAcquirer serves raw documents by source; unknown sources fail to fetch
type fakeAcquirer struct{}

func (fakeAcquirer) Acquire(ctx context.Context, source string) (*types.RawDocument, error) {
	if source == "missing" {
		return nil, errors.NewFetchError(source, fmt.Errorf("404"))
	}
	return &types.RawDocument{Format: types.FormatHTML, Source: source}, nil
}

// fakeParser returns the document registered for each source
type fakeParser struct {
	docs map[string]*types.ParsedDocument
}

func (p fakeParser) Parse(ctx context.Context, raw *types.RawDocument) (*types.ParsedDocument, error) {
	doc, ok := p.docs[raw.Source]
	if !ok {
		return nil, errors.NewNoGroupsError(raw.Source)
	}
	return doc, nil
}

type fakeLinks struct {
	links []types.TournamentLink
	err   error
}

func (f fakeLinks) Scan(ctx context.Context) ([]types.TournamentLink, error) {
	return f.links, f.err
}

type fakeStore struct {
	mu       sync.Mutex
	saved    map[string]*types.ParsedDocument
	failures map[string]types.Tournament
	imported map[string]bool
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		saved:    make(map[string]*types.ParsedDocument),
		failures: make(map[string]types.Tournament),
		imported: make(map[string]bool),
	}
}

func (s *fakeStore) SaveDocument(ctx context.Context, doc *types.ParsedDocument, sourceURL string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	s.saved[sourceURL] = doc
	s.imported[doc.Tournament.Date.Format(time.DateOnly)] = true
	return "id-" + sourceURL, nil
}

func (s *fakeStore) RecordFailure(ctx context.Context, t types.Tournament) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[t.SourceURL] = t
	return "id-" + t.SourceURL, nil
}

func (s *fakeStore) IsImported(ctx context.Context, date time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imported[date.Format(time.DateOnly)], nil
}

func (s *fakeStore) ListUnsuccessful(ctx context.Context) ([]types.Tournament, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Tournament
	for _, t := range s.failures {
		out = append(out, t)
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

func validDocument(date *time.Time) *types.ParsedDocument {
	return &types.ParsedDocument{
		Tournament: types.TournamentInfo{
			Name:       types.DefaultTournamentName(*date),
			Date:       date,
			DateString: date.Format(types.DisplayDateLayout),
		},
		Groups: []types.Group{{
			Number: 1,
			Name:   "#1",
			Players: []types.RosterEntry{
				{PlayerNumber: 1, Name: "Alice"},
				{PlayerNumber: 2, Name: "Bob"},
			},
			Matches: []types.Match{
				{Player1Number: 1, Player1Name: "Alice", Player2Number: 2, Player2Name: "Bob", Player1Score: 3, Player2Score: 1},
			},
		}},
	}
}

func invalidDocument(date *time.Time) *types.ParsedDocument {
	doc := validDocument(date)
	doc.Groups[0].Players = append(doc.Groups[0].Players,
		types.RosterEntry{PlayerNumber: 3, Name: "Carol"},
		types.RosterEntry{PlayerNumber: 4, Name: "Dave"},
	)
	return doc
}

type fixture struct {
	store    *fakeStore
	metrics  *metrics.MemoryMetrics
	importer *Importer
}

func newFixture(links []types.TournamentLink, docs map[string]*types.ParsedDocument) fixture {
	m := metrics.NewTestMetrics()
	engine := NewEngine(fakeAcquirer{}, fakeParser{docs: docs}, config.DefaultPolicy(), logger.NewTestLogger(), m)
	store := newFakeStore()
	importer := NewImporter(engine, fakeLinks{links: links}, store, config.ImportConfig{Workers: 3}, logger.NewTestLogger(), m)
	return fixture{store: store, metrics: m, importer: importer}
}

func TestEngineProcess(t *testing.T) {
	docs := map[string]*types.ParsedDocument{
		"good":    validDocument(day(2025, time.November, 7)),
		"partial": invalidDocument(day(2025, time.November, 14)),
	}
	m := metrics.NewTestMetrics()
	engine := NewEngine(fakeAcquirer{}, fakeParser{docs: docs}, config.DefaultPolicy(), nil, m)

	t.Run("success", func(t *testing.T) {
		outcome := engine.Process(context.Background(), "good")
		assert.True(t, outcome.OK())
		assert.NoError(t, outcome.Err)
		assert.True(t, outcome.Validation.IsValid)
		assert.Equal(t, day(2025, time.November, 7), outcome.Date())
	})

	t.Run("validation failure", func(t *testing.T) {
		outcome := engine.Process(context.Background(), "partial")
		assert.Equal(t, types.ParsingStatusValidationFailed, outcome.Status)
		assert.True(t, errors.IsValidationFailure(outcome.Err))
		require.Len(t, outcome.Validation.Errors, 1)
		assert.Contains(t, outcome.Validation.Errors[0], "Expected 6 matches for 4 players, got 1")
	})

	t.Run("parse failure", func(t *testing.T) {
		outcome := engine.Process(context.Background(), "unknown")
		assert.Equal(t, types.ParsingStatusParsingFailed, outcome.Status)
		assert.True(t, errors.HasCode(outcome.Err, errors.ErrCodeNoGroups))
		assert.Nil(t, outcome.Document)
		assert.Nil(t, outcome.Date())
	})

	t.Run("fetch failure", func(t *testing.T) {
		outcome := engine.Process(context.Background(), "missing")
		assert.Equal(t, types.ParsingStatusParsingFailed, outcome.Status)
		assert.True(t, errors.IsParsingFailure(outcome.Err))
	})

	assert.Equal(t, 1.0, m.CounterValue(metrics.DocumentsProcessed, map[string]string{"status": "success"}))
	assert.Equal(t, 2.0, m.CounterValue(metrics.DocumentsProcessed, map[string]string{"status": "parsing_failed"}))
}

func TestEngineReconfigure(t *testing.T) {
	docs := map[string]*types.ParsedDocument{"partial": invalidDocument(day(2025, time.November, 14))}
	engine := NewEngine(fakeAcquirer{}, fakeParser{docs: docs}, config.DefaultPolicy(), nil, nil)
	assert.False(t, engine.Process(context.Background(), "partial").OK())

	lenient := config.DefaultPolicy()
	lenient.MissingMatchTolerance = 1
	engine.Reconfigure(lenient, nil)
	assert.Equal(t, 1.0, engine.Policy().MissingMatchTolerance)

	outcome := engine.Process(context.Background(), "partial")
	assert.True(t, outcome.OK())
	assert.NotEmpty(t, outcome.Validation.Warnings)
}

func TestImportAll(t *testing.T) {
	links := []types.TournamentLink{
		{URL: "good", Date: day(2025, time.November, 7), Format: types.LinkFormatHTML, Display: "2025 Nov 07"},
		{URL: "partial", Date: day(2025, time.November, 14), Format: types.LinkFormatHTML, Display: "2025 Nov 14"},
		{URL: "broken", Date: day(2025, time.November, 21), Format: types.LinkFormatPDF, Display: "2025 Nov 21"},
		{URL: "https://example.org/results/12.pdf", Format: types.LinkFormatPDFOld, Display: "PDF #12", PDFNumber: "12"},
		{URL: "missing", Format: types.LinkFormatPDFOld, Display: "PDF #13", PDFNumber: "13"},
	}
	docs := map[string]*types.ParsedDocument{
		"good":                               validDocument(day(2025, time.November, 7)),
		"partial":                            invalidDocument(day(2025, time.November, 14)),
		"https://example.org/results/12.pdf": validDocument(day(2019, time.March, 1)),
	}
	f := newFixture(links, docs)

	stats, err := f.importer.ImportAll(context.Background(), Options{SkipExisting: true})
	require.NoError(t, err)
	assert.NotEmpty(t, stats.RunID)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 2, stats.Imported)
	assert.Equal(t, 3, stats.Failed)
	assert.Equal(t, 2, stats.ParsingErrors)
	assert.Equal(t, 1, stats.ValidationErrors)
	assert.Equal(t, 0, stats.DBErrors)

	assert.Contains(t, f.store.saved, "https://example.org/results/12.pdf")

	partial := f.store.failures["partial"]
	assert.Equal(t, types.ParsingStatusValidationFailed, partial.ParsingStatus)
	assert.Regexp(t, `^Validation failed: Group #1: Expected 6 matches`, partial.ParseError)

	broken := f.store.failures["broken"]
	assert.Equal(t, types.ParsingStatusParsingFailed, broken.ParsingStatus)
	assert.Contains(t, broken.ParseError, "NO_GROUPS")

	assert.NotContains(t, f.store.failures, "missing", "undated failures are not recorded")
	assert.Equal(t, 2.0, f.metrics.CounterValue(metrics.ImportOutcomes, map[string]string{"result": "imported"}))

	t.Run("second run skips imported dates", func(t *testing.T) {
		stats, err := f.importer.ImportAll(context.Background(), Options{SkipExisting: true, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Total)
		assert.Equal(t, 1, stats.Skipped)
		assert.Equal(t, 1, stats.Failed)
	})
}

func TestImportAllDatabaseError(t *testing.T) {
	links := []types.TournamentLink{{URL: "good", Date: day(2025, time.November, 7), Display: "2025 Nov 07"}}
	f := newFixture(links, map[string]*types.ParsedDocument{"good": validDocument(day(2025, time.November, 7))})
	f.store.saveErr = errors.NewDatabaseError("disk full", nil)

	stats, err := f.importer.ImportAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DBErrors)
	assert.Equal(t, types.ParsingStatusDBError, f.store.failures["good"].ParsingStatus)
}

func TestImportAllRetryFailed(t *testing.T) {
	f := newFixture(nil, map[string]*types.ParsedDocument{
		"https://example.org/results/12.pdf": validDocument(day(2019, time.March, 1)),
	})
	f.store.failures["https://example.org/results/12.pdf"] = types.Tournament{
		Date:          day(2019, time.March, 1),
		SourceURL:     "https://example.org/results/12.pdf",
		ParsingStatus: types.ParsingStatusParsingFailed,
	}
	f.store.failures[""] = types.Tournament{Date: day(2019, time.March, 8), ParsingStatus: types.ParsingStatusDBError}

	stats, err := f.importer.ImportAll(context.Background(), Options{RetryFailed: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Imported)
}

func TestImportAllScanError(t *testing.T) {
	engine := NewEngine(fakeAcquirer{}, fakeParser{}, config.DefaultPolicy(), nil, nil)
	importer := NewImporter(engine, fakeLinks{err: errors.NewFetchError("index", nil)}, newFakeStore(), config.ImportConfig{Workers: 1}, nil, nil)

	_, err := importer.ImportAll(context.Background(), Options{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeFetchFailed))
}

func TestImportAllCancelled(t *testing.T) {
	links := []types.TournamentLink{{URL: "good", Date: day(2025, time.November, 7)}}
	f := newFixture(links, map[string]*types.ParsedDocument{"good": validDocument(day(2025, time.November, 7))})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stats, err := f.importer.ImportAll(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stats.Imported)
	assert.Empty(t, f.store.saved)
}

func TestSelectLinks(t *testing.T) {
	links := []types.TournamentLink{
		{URL: "https://x/results/rr_results_2024jan05", Date: day(2024, time.January, 5), Display: "2024 Jan 05"},
		{URL: "https://x/results/rr_results_2024jan12", Date: day(2024, time.January, 12), Display: "2024 Jan 12"},
		{URL: "https://x/results/rr_results_2024feb02", Date: day(2024, time.February, 2), Display: "2024 Feb 02"},
		{URL: "https://x/results/7.pdf", Display: "PDF #7"},
	}
	f := newFixture(nil, nil)
	log := logger.NewTestLogger()

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"everything", Options{}, []string{"2024 Jan 05", "2024 Jan 12", "2024 Feb 02", "PDF #7"}},
		{"limit", Options{Limit: 2}, []string{"2024 Jan 05", "2024 Jan 12"}},
		{"since drops undated", Options{Since: day(2024, time.January, 10)}, []string{"2024 Jan 12", "2024 Feb 02"}},
		{"start from display", Options{StartFrom: "jan 12"}, []string{"2024 Jan 12", "2024 Feb 02", "PDF #7"}},
		{"start from url", Options{StartFrom: "2024feb02"}, []string{"2024 Feb 02", "PDF #7"}},
		{"start from fuzzy", Options{StartFrom: "2024Feb"}, []string{"2024 Feb 02", "PDF #7"}},
		{"unknown start keeps all", Options{StartFrom: "zzz"}, []string{"2024 Jan 05", "2024 Jan 12", "2024 Feb 02", "PDF #7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected := f.importer.selectLinks(links, tt.opts, log)
			var got []string
			for _, l := range selected {
				got = append(got, l.Display)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLinkFromTournament(t *testing.T) {
	link := LinkFromTournament(types.Tournament{SourceURL: "https://x/results/42.pdf"})
	assert.Equal(t, types.LinkFormatPDFOld, link.Format)
	assert.Equal(t, "42", link.PDFNumber)
	assert.Equal(t, "42.pdf", link.Display)

	link = LinkFromTournament(types.Tournament{SourceURL: "https://x/results/RR_Results_2023Feb03.pdf", Date: day(2023, time.February, 3)})
	assert.Equal(t, types.LinkFormatPDF, link.Format)
	assert.Equal(t, "2023 Feb 03", link.Display)

	link = LinkFromTournament(types.Tournament{SourceURL: "https://x/results/rr_results_2025nov07"})
	assert.Equal(t, types.LinkFormatHTML, link.Format)
}
