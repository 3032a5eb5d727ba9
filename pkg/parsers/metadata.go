package parsers

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bttc/roundrobin/pkg/types"
)

// DefaultMetadataScanChars bounds how much leading text the date matchers read
const DefaultMetadataScanChars = 500

var monthNumbers = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

var (
	compactDatePattern = regexp.MustCompile(`(?i)(\d{4})([a-z]{3})(\d{2})`)
	proseDatePattern   = regexp.MustCompile(`([A-Za-z]+)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})`)
	spacedDatePattern  = regexp.MustCompile(`(\d{4})\s+([A-Za-z]{3})\s+(\d{1,2})`)
	titleDatePattern   = regexp.MustCompile(`for (\d{4} \w+ \d+)`)
)

// dateMatcher finds a date in source or leading text
type dateMatcher struct {
	name  string
	scope func(source, head string) string
	match func(s string) (time.Time, bool)
}

func inSource(source, _ string) string { return source }
func inHead(_, head string) string   { return head }

// dateMatchers run in order; the first calendrically valid hit wins
var dateMatchers = []dateMatcher{
	{name: "compact-source", scope: inSource, match: matchCompactDate},
	{name: "prose-text", scope: inHead, match: matchProseDate},
	{name: "compact-text", scope: inHead, match: matchCompactDate},
	{name: "spaced-text", scope: inHead, match: matchSpacedDate},
}

func matchCompactDate(s string) (time.Time, bool) {
	m := compactDatePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	return calendarDate(m[1], m[2], m[3])
}

func matchProseDate(s string) (time.Time, bool) {
	m := proseDatePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	return calendarDate(m[3], m[1], m[2])
}

func matchSpacedDate(s string) (time.Time, bool) {
	m := spacedDatePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	return calendarDate(m[1], m[2], m[3])
}

// calendarDate builds a UTC date, rejecting unknown months and overflowing
// days such as Feb 30
func calendarDate(year, month, day string) (time.Time, bool) {
	mon, ok := monthNumbers[strings.ToLower(month)]
	if !ok {
		return time.Time{}, false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 {
		return time.Time{}, false
	}
	t := time.Date(y, mon, d, 0, 0, 0, 0, time.UTC)
	if t.Month() != mon || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// ExtractTournamentInfo resolves the tournament date from the source name
// and the first DefaultMetadataScanChars of text. A missing date is not an
// error here.
func ExtractTournamentInfo(source, text string) types.TournamentInfo {
	return extractTournamentInfo(source, text, DefaultMetadataScanChars)
}

func extractTournamentInfo(source, text string, scanChars int) types.TournamentInfo {
	head := text
	if scanChars > 0 && len(head) > scanChars {
		head = head[:scanChars]
	}

	for _, m := range dateMatchers {
		if date, ok := m.match(m.scope(source, head)); ok {
			return infoForDate(date)
		}
	}
	return types.TournamentInfo{}
}

func infoForDate(date time.Time) types.TournamentInfo {
	return types.TournamentInfo{
		Name:       types.DefaultTournamentName(date),
		Date:       types.TimePtr(date),
		DateString: date.Format(types.DisplayDateLayout),
	}
}

// ExtractHTMLTitleInfo reads the bracket page heading. The heading text is the
// name; the date comes from "for YYYY Mon D" or, failing that, from the
// ordered matchers over the heading and source.
func ExtractHTMLTitleInfo(title, source string) types.TournamentInfo {
	title = strings.TrimSpace(title)
	info := types.TournamentInfo{Name: title}

	if m := titleDatePattern.FindStringSubmatch(title); m != nil {
		info.DateString = m[1]
		if date, err := time.Parse("2006 Jan 2", m[1]); err == nil {
			info.Date = types.TimePtr(date)
			return info
		}
	}

	fallback := extractTournamentInfo(source, title, DefaultMetadataScanChars)
	if fallback.HasDate() {
		info.Date = fallback.Date
		info.DateString = fallback.DateString
		if info.Name == "" {
			info.Name = fallback.Name
		}
	}
	return info
}
