package readers

import (
	"bytes"
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/logger"
	"github.com/bttc/roundrobin/pkg/metrics"
	"github.com/bttc/roundrobin/pkg/types"
)

// Gaps in points between positioned text runs
const (
	wordGap         = 1.5
	cellGap         = 6.0
	anchorTolerance = 4.0
)

var tableStartPattern = regexp.MustCompile(`^#\s*\d+`)

// TextItem is one positioned run of text on a page
type TextItem struct {
	X float64
	W float64
	S string
}

// TextCell is a run of words separated from its neighbours by a column gap
type TextCell struct {
	X    float64
	Text string
}

// TextLine is one row of cells at the same baseline
type TextLine struct {
	Y     float64
	Cells []TextCell
}

// PDFExtractor recovers text and score grid tables from PDF documents.
// Pages without a native text layer are sent to the OCR engine when one is
// configured.
type PDFExtractor struct {
	policy  config.Policy
	ocr     interfaces.OCREngine
	logger  interfaces.Logger
	metrics interfaces.Metrics
}

// NewPDFExtractor creates an extractor; ocr may be nil
func NewPDFExtractor(policy config.Policy, ocr interfaces.OCREngine, log interfaces.Logger, m interfaces.Metrics) *PDFExtractor {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	return &PDFExtractor{policy: policy, ocr: ocr, logger: log, metrics: m}
}

// Extract reads every page of data
func (pe *PDFExtractor) Extract(ctx context.Context, source string, data []byte) (*types.RawDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, errors.NewParsingError("failed to open PDF", err).WithDetail("source", source)
	}

	raw := &types.RawDocument{Format: types.FormatPDF, Source: source, Pages: reader.NumPage()}
	var (
		text  strings.Builder
		lines []TextLine
	)

	for num := 1; num <= reader.NumPage(); num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}

		pageText := plainText(page)
		if len(strings.TrimSpace(pageText)) < pe.policy.OCRMinPageChars && pe.ocr != nil {
			recognized, err := pe.ocr.RecognizePage(ctx, data, num)
			if err != nil {
				pe.logger.Warn("OCR failed", map[string]interface{}{
					"source": source,
					"page":   num,
					"error":  err.Error(),
				})
			} else {
				pageText = recognized
				raw.OCRPages = append(raw.OCRPages, num)
				pe.metrics.Counter(metrics.OCRPages, 1, nil)
			}
		} else {
			lines = append(lines, pageLines(page)...)
		}

		text.WriteString(pageText)
		text.WriteString("\n")
	}

	raw.Text = text.String()
	raw.Tables = BuildTables(lines)
	if strings.TrimSpace(raw.Text) == "" && len(raw.Tables) == 0 {
		return nil, errors.NewNoTextError(source)
	}

	pe.logger.Debug("extracted PDF", map[string]interface{}{
		"source":    source,
		"pages":     raw.Pages,
		"ocr_pages": len(raw.OCRPages),
		"tables":    len(raw.Tables),
	})
	return raw, nil
}

func plainText(page pdf.Page) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

func pageLines(page pdf.Page) []TextLine {
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil
	}

	lines := make([]TextLine, 0, len(rows))
	for _, row := range rows {
		items := make([]TextItem, 0, len(row.Content))
		for _, t := range row.Content {
			items = append(items, TextItem{X: t.X, W: t.W, S: t.S})
		}
		if cells := MergeItems(items); len(cells) > 0 {
			lines = append(lines, TextLine{Y: float64(row.Position), Cells: cells})
		}
	}
	return lines
}

// MergeItems joins text runs into words and words into cells by the
// horizontal gap between them
func MergeItems(items []TextItem) []TextCell {
	sorted := make([]TextItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var (
		cells []TextCell
		cur   strings.Builder
		start float64
		end   float64
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			cells = append(cells, TextCell{X: start, Text: strings.Join(strings.Fields(s), " ")})
		}
		cur.Reset()
	}

	for i, item := range sorted {
		if i == 0 {
			start = item.X
		} else {
			gap := item.X - end
			switch {
			case gap > cellGap:
				flush()
				start = item.X
			case gap > wordGap:
				cur.WriteByte(' ')
			}
		}
		cur.WriteString(item.S)
		end = item.X + item.W
	}
	flush()
	return cells
}

// BuildTables splits lines into tables at group header lines ("#n" or
// "Name ...") and aligns every line of a table on the column starts of its
// first two lines. Lines before the first header are dropped.
func BuildTables(lines []TextLine) [][][]string {
	var (
		tables [][][]string
		block  []TextLine
	)
	flush := func() {
		if len(block) > 0 {
			tables = append(tables, alignBlock(block))
		}
		block = nil
	}

	for _, line := range lines {
		if len(line.Cells) == 0 {
			continue
		}
		first := line.Cells[0].Text
		if tableStartPattern.MatchString(first) || strings.HasPrefix(strings.ToLower(first), "name") {
			flush()
			block = []TextLine{line}
			continue
		}
		if block != nil {
			block = append(block, line)
		}
	}
	flush()
	return tables
}

func alignBlock(block []TextLine) [][]string {
	var starts []float64
	for _, line := range block[:min(2, len(block))] {
		for _, c := range line.Cells {
			starts = append(starts, c.X)
		}
	}
	sort.Float64s(starts)

	var anchors []float64
	for _, x := range starts {
		if len(anchors) == 0 || x-anchors[len(anchors)-1] > anchorTolerance {
			anchors = append(anchors, x)
		}
	}

	table := make([][]string, 0, len(block))
	for _, line := range block {
		row := make([]string, len(anchors))
		for _, c := range line.Cells {
			col := 0
			for i, a := range anchors {
				if a <= c.X+anchorTolerance {
					col = i
				}
			}
			if row[col] != "" {
				row[col] += " "
			}
			row[col] += c.Text
		}
		table = append(table, row)
	}
	return table
}
