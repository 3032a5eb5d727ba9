package readers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/logger"
	"github.com/bttc/roundrobin/pkg/metrics"
	"github.com/bttc/roundrobin/pkg/parsers"
	"github.com/bttc/roundrobin/pkg/types"
)

// gridPDF has a five player group on page 1 and a page 2 with no text layer
const gridPDF = "rr_results_2024jan05.pdf"

var gridNames = []string{"Ann Lee", "Bo Kim", "Cy Day", "Di Fox", "Ed Ray"}

type fakeOCR struct {
	mu    sync.Mutex
	pages []int
	text  string
	err   error
}

func (f *fakeOCR) RecognizePage(ctx context.Context, document []byte, page int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, page)
	return f.text, f.err
}

func readTestPDF(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", gridPDF))
	require.NoError(t, err)
	return data
}

// gridMatches: the lower number wins every match 3-(i+j)%3
func gridMatches() []types.Match {
	var matches []types.Match
	for i := 1; i <= len(gridNames); i++ {
		for j := i + 1; j <= len(gridNames); j++ {
			matches = append(matches, types.Match{
				Player1Number: i, Player1Name: gridNames[i-1],
				Player2Number: j, Player2Name: gridNames[j-1],
				Player1Score: 3, Player2Score: (i + j) % 3,
			})
		}
	}
	return matches
}

func TestPDFExtractorExtract(t *testing.T) {
	ocr := &fakeOCR{text: "page two recognized"}
	m := metrics.NewTestMetrics()
	extractor := NewPDFExtractor(config.DefaultPolicy(), ocr, logger.NewTestLogger(), m)

	raw, err := extractor.Extract(context.Background(), gridPDF, readTestPDF(t))
	require.NoError(t, err)

	assert.Equal(t, types.FormatPDF, raw.Format)
	assert.Equal(t, 2, raw.Pages)
	assert.Equal(t, []int{2}, raw.OCRPages)
	assert.Equal(t, []int{2}, ocr.pages, "only the page without text goes to OCR")
	assert.Equal(t, 1.0, m.CounterValue(metrics.OCRPages, nil))
	assert.Contains(t, raw.Text, "BTTC Round Robin results for 2024 Jan 05")
	assert.Contains(t, raw.Text, "page two recognized")

	require.Len(t, raw.Tables, 1)
	table := raw.Tables[0]
	require.Len(t, table, 7)
	assert.Equal(t, []string{"#1", "Name", "Pre", "Post", "1", "2", "3", "4", "5"}, table[0])
	assert.Equal(t, []string{"", "", "", "", "1", "2", "3", "4", "5"}, table[1])
	assert.Equal(t, []string{"1", "Ann Lee 1500 1510", "", "", "XXXXXX", "3 0", "3 1", "3 2", "3 0"}, table[2])
	assert.Equal(t, []string{"4", "Di Fox 1650 1640", "", "", "2 3", "0 3", "1 3", "XXXXXX", "3 0"}, table[5])
}

func TestPDFExtractorOCRFailure(t *testing.T) {
	ocr := &fakeOCR{err: fmt.Errorf("recognizer unavailable")}
	extractor := NewPDFExtractor(config.DefaultPolicy(), ocr, nil, nil)

	raw, err := extractor.Extract(context.Background(), gridPDF, readTestPDF(t))
	require.NoError(t, err)
	assert.Empty(t, raw.OCRPages)
	assert.Len(t, raw.Tables, 1)
}

func TestPDFExtractorWithoutOCR(t *testing.T) {
	extractor := NewPDFExtractor(config.DefaultPolicy(), nil, nil, nil)

	raw, err := extractor.Extract(context.Background(), gridPDF, readTestPDF(t))
	require.NoError(t, err)
	assert.Empty(t, raw.OCRPages)
	assert.Len(t, raw.Tables, 1)
}

func TestPDFExtractorRejectsBadInput(t *testing.T) {
	extractor := NewPDFExtractor(config.DefaultPolicy(), nil, nil, nil)
	_, err := extractor.Extract(context.Background(), "bad.pdf", []byte("%PDF-1.4\nnot really"))
	require.Error(t, err)
	assert.True(t, errors.IsParsingFailure(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = extractor.Extract(ctx, gridPDF, readTestPDF(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractedGridParses(t *testing.T) {
	extractor := NewPDFExtractor(config.DefaultPolicy(), nil, nil, nil)
	raw, err := extractor.Extract(context.Background(), gridPDF, readTestPDF(t))
	require.NoError(t, err)

	doc, err := parsers.NewParserFactory(config.DefaultPolicy(), nil).Parse(context.Background(), raw)
	require.NoError(t, err)

	require.True(t, doc.Tournament.HasDate())
	assert.Equal(t, "2024 Jan 05", doc.Tournament.DateString)
	require.Len(t, doc.Groups, 1)
	g := doc.Groups[0]
	require.Len(t, g.Players, len(gridNames))
	assert.Equal(t, 1510, *g.Players[0].RatingPost)
	assert.ElementsMatch(t, gridMatches(), g.Matches)
}

func TestMergeItems(t *testing.T) {
	items := []TextItem{
		{X: 60, W: 10, S: "Lee,"},
		{X: 10, W: 5, S: "1"},
		{X: 72, W: 20, S: "Bunny"},
		{X: 120, W: 20, S: "2048"},
		{X: 141, W: 5, S: "x"},
	}

	cells := MergeItems(items)
	assert.Equal(t, []TextCell{
		{X: 10, Text: "1"},
		{X: 60, Text: "Lee, Bunny"},
		{X: 120, Text: "2048x"},
	}, cells)
}

func TestBuildTables(t *testing.T) {
	header := []TextCell{{X: 10, Text: "#1"}, {X: 40, Text: "Name"}, {X: 140, Text: "Pre"}, {X: 170, Text: "Post"}, {X: 200, Text: "1"}, {X: 230, Text: "2"}}
	lines := []TextLine{
		{Cells: []TextCell{{X: 10, Text: "BTTC Round Robin results"}}},
		{Cells: header},
		{Cells: []TextCell{{X: 200, Text: "1"}, {X: 230, Text: "2"}}},
		{Cells: []TextCell{{X: 11, Text: "1"}, {X: 41, Text: "Ann Lee 1500 1510"}, {X: 199, Text: "XXXXXX"}, {X: 231, Text: "3 1"}}},
		{Cells: []TextCell{{X: 10, Text: "2"}, {X: 40, Text: "Bo Kim 1400 1390"}, {X: 199, Text: "1 3"}, {X: 230, Text: "XXXXXX"}}},
		{Cells: []TextCell{{X: 10, Text: "Name"}, {X: 60, Text: "Pre"}}},
		{Cells: []TextCell{{X: 10, Text: "Chen, Wei 2064 2102"}}},
		{Cells: nil},
	}

	tables := BuildTables(lines)
	require.Len(t, tables, 2)

	assert.Equal(t, [][]string{
		{"#1", "Name", "Pre", "Post", "1", "2"},
		{"", "", "", "", "1", "2"},
		{"1", "Ann Lee 1500 1510", "", "", "XXXXXX", "3 1"},
		{"2", "Bo Kim 1400 1390", "", "", "1 3", "XXXXXX"},
	}, tables[0])

	assert.Equal(t, [][]string{
		{"Name", "Pre"},
		{"Chen, Wei 2064 2102", ""},
	}, tables[1])

	t.Run("scores reach the match extractor", func(t *testing.T) {
		doc, err := parsers.NewParserFactory(config.DefaultPolicy(), nil).
			ParseTables(context.Background(), "rr_2024Jan05.pdf", "", tables[:1])
		require.NoError(t, err)
		require.Len(t, doc.Groups, 1)
		assert.Equal(t, []types.Match{{
			Player1Number: 1, Player1Name: "Ann Lee",
			Player2Number: 2, Player2Name: "Bo Kim",
			Player1Score: 3, Player2Score: 1,
		}}, doc.Groups[0].Matches)
		assert.Equal(t, "Bo Kim", doc.Groups[0].Players[1].Name)
	})
}
