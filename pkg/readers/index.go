package readers

import (
	"bytes"
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/logger"
	"github.com/bttc/roundrobin/pkg/types"
)

// linkPattern recognizes one naming scheme used on the results index
type linkPattern struct {
	format  types.LinkFormat
	pattern *regexp.Regexp
	dated   bool
}

// linkPatterns are tried in order; the first match classifies the link
var linkPatterns = []linkPattern{
	{types.LinkFormatHTML, regexp.MustCompile(`(?i)/results/rr_results_(\d{4})([a-z]{3})(\d{2})`), true},
	{types.LinkFormatHTML, regexp.MustCompile(`(?i)(?:^|/)results/RR(?:[_\s]|%5F)?Results(?:[_\s]|%20)+(\d{4})([a-z]{3})(\d{2})\.html`), true},
	{types.LinkFormatPDF, regexp.MustCompile(`(?i)(?:^|/)results/RR(?:[_\s]|%5F)?Results(?:[_\s]|%20)+(\d{4})([a-z]{3})(\d{2})\.pdf`), true},
	{types.LinkFormatPDFOld, regexp.MustCompile(`(?i)(?:^|/)results/(\d+)\.pdf`), false},
}

var linkMonths = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// IndexScanner lists the tournaments linked from the results index page
type IndexScanner struct {
	fetcher  interfaces.Fetcher
	indexURL string
	baseURL  string
	logger   interfaces.Logger
}

// NewIndexScanner creates a scanner for indexURL. Relative links resolve
// against baseURL.
func NewIndexScanner(fetcher interfaces.Fetcher, baseURL, indexURL string, log interfaces.Logger) *IndexScanner {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &IndexScanner{
		fetcher:  fetcher,
		indexURL: indexURL,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   log,
	}
}

// Scan fetches the index and returns its tournament links, oldest first with
// undated links last
func (is *IndexScanner) Scan(ctx context.Context) ([]types.TournamentLink, error) {
	page, err := is.fetcher.Fetch(ctx, is.indexURL)
	if err != nil {
		return nil, err
	}
	links, err := is.ParseIndex(page)
	if err != nil {
		return nil, err
	}

	counts := make(map[types.LinkFormat]int)
	for _, l := range links {
		counts[l.Format]++
	}
	is.logger.Info("scanned results index", map[string]interface{}{
		"url":     is.indexURL,
		"links":   len(links),
		"html":    counts[types.LinkFormatHTML],
		"pdf":     counts[types.LinkFormatPDF],
		"pdf_old": counts[types.LinkFormatPDFOld],
	})
	return links, nil
}

// ParseIndex extracts the tournament links from an index page
func (is *IndexScanner) ParseIndex(page []byte) ([]types.TournamentLink, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, errors.NewParsingError("failed to parse results index", err)
	}

	var links []types.TournamentLink
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" || !strings.Contains(strings.ToLower(href), "results") {
			return
		}
		link, ok := classifyLink(href)
		if !ok {
			return
		}
		link.URL = is.absolute(href)
		if seen[link.URL] {
			return
		}
		seen[link.URL] = true
		links = append(links, link)
	})

	SortLinks(links)
	return links, nil
}

func classifyLink(href string) (types.TournamentLink, bool) {
	for _, lp := range linkPatterns {
		m := lp.pattern.FindStringSubmatch(href)
		if m == nil {
			continue
		}
		if !lp.dated {
			return types.TournamentLink{Format: lp.format, Display: "PDF #" + m[1], PDFNumber: m[1]}, true
		}
		date, ok := linkDate(m[1], m[2], m[3])
		if !ok {
			continue
		}
		return types.TournamentLink{
			Format:  lp.format,
			Date:    &date,
			Display: date.Format(types.DisplayDateLayout),
		}, true
	}
	return types.TournamentLink{}, false
}

func linkDate(year, month, day string) (time.Time, bool) {
	mon, ok := linkMonths[strings.ToLower(month)]
	if !ok {
		return time.Time{}, false
	}
	y, _ := strconv.Atoi(year)
	d, _ := strconv.Atoi(day)
	t := time.Date(y, mon, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != mon {
		return time.Time{}, false
	}
	return t, true
}

func (is *IndexScanner) absolute(href string) string {
	switch {
	case IsRemote(href):
		return href
	case strings.HasPrefix(href, "/"):
		return is.baseURL + href
	default:
		return is.baseURL + "/" + href
	}
}

// SortLinks orders links by date, oldest first; undated links keep their
// order at the end
func SortLinks(links []types.TournamentLink) {
	sort.SliceStable(links, func(i, j int) bool {
		a, b := links[i].Date, links[j].Date
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}

var _ interfaces.LinkSource = (*IndexScanner)(nil)
