// Package types defines the normalized tournament model shared by the
// extraction engine, the validator and the persistence adapter.
package types

import (
	"fmt"
	"time"
)

// ParsingStatus records how far a tournament got through the import pipeline.
type ParsingStatus string

const (
	ParsingStatusSuccess          ParsingStatus = "success"
	ParsingStatusParsingFailed    ParsingStatus = "parsing_failed"
	ParsingStatusValidationFailed ParsingStatus = "validation_failed"
	ParsingStatusDBError          ParsingStatus = "db_error"
)

// IsFailure reports whether the status marks an unsuccessful import.
func (s ParsingStatus) IsFailure() bool {
	return s != ParsingStatusSuccess && s != ""
}

// DocumentFormat is the physical format of a results document.
type DocumentFormat string

const (
	FormatHTML DocumentFormat = "html"
	FormatPDF  DocumentFormat = "pdf"
)

// LinkFormat classifies a link found on the results index. Old numbered PDFs
// carry no date in their URL.
type LinkFormat string

const (
	LinkFormatHTML   LinkFormat = "html"
	LinkFormatPDF    LinkFormat = "pdf"
	LinkFormatPDFOld LinkFormat = "pdf_old"
)

// DocumentFormat maps a link format onto the document format it will yield.
func (f LinkFormat) DocumentFormat() DocumentFormat {
	if f == LinkFormatHTML {
		return FormatHTML
	}
	return FormatPDF
}

// DisplayDateLayout is the layout used for tournament display strings, e.g. "2025 Nov 07".
const DisplayDateLayout = "2006 Jan 02"

// DefaultNamePrefix prefixes generated tournament names.
const DefaultNamePrefix = "BTTC Round Robin results for "

// DefaultTournamentName builds the display name used when the document
// provides none.
func DefaultTournamentName(date time.Time) string {
	return DefaultNamePrefix + date.Format(DisplayDateLayout)
}

// Tournament is the persisted identity of one results document. Identity is
// the calendar date.
type Tournament struct {
	DisplayName   string        `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Date          *time.Time    `json:"date,omitempty" yaml:"date,omitempty"`
	SourceURL     string        `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	ParsingStatus ParsingStatus `json:"parsing_status" yaml:"parsing_status"`
	ParseError    string        `json:"parse_error,omitempty" yaml:"parse_error,omitempty"`
}

// TournamentInfo is the metadata recovered from a document.
type TournamentInfo struct {
	Name       string     `json:"name,omitempty" yaml:"name,omitempty"`
	Date       *time.Time `json:"date,omitempty" yaml:"date,omitempty"`
	DateString string     `json:"date_string,omitempty" yaml:"date_string,omitempty"`
}

// HasDate reports whether a date was resolved.
func (ti TournamentInfo) HasDate() bool {
	return ti.Date != nil && !ti.Date.IsZero()
}

// RosterEntry is one player's line within a group. Optional statistics are
// pointers so that "absent" and "zero" stay distinguishable.
type RosterEntry struct {
	PlayerNumber    int    `json:"player_number" yaml:"player_number"`
	Name            string `json:"name" yaml:"name"`
	RatingPre       *int   `json:"rating_pre,omitempty" yaml:"rating_pre,omitempty"`
	RatingPost      *int   `json:"rating_post,omitempty" yaml:"rating_post,omitempty"`
	RatingChange    *int   `json:"rating_change,omitempty" yaml:"rating_change,omitempty"`
	MatchesWon      *int   `json:"matches_won,omitempty" yaml:"matches_won,omitempty"`
	GamesWon        *int   `json:"games_won,omitempty" yaml:"games_won,omitempty"`
	BonusPoints     *int   `json:"bonus_points,omitempty" yaml:"bonus_points,omitempty"`
	ChangeWithBonus *int   `json:"change_with_bonus,omitempty" yaml:"change_with_bonus,omitempty"`
}

// SetRatings stores both ratings and the derived change.
func (r *RosterEntry) SetRatings(pre, post int) {
	r.RatingPre = IntPtr(pre)
	r.RatingPost = IntPtr(post)
	r.RatingChange = IntPtr(post - pre)
}

// FillRatingChange derives RatingChange from the two ratings when the
// document did not state it.
func (r *RosterEntry) FillRatingChange() {
	if r.RatingChange == nil && r.RatingPre != nil && r.RatingPost != nil {
		r.RatingChange = IntPtr(*r.RatingPost - *r.RatingPre)
	}
}

// Match is a single pairwise result. Player1Number is always the lower number.
type Match struct {
	Player1Number int    `json:"player1_number" yaml:"player1_number"`
	Player1Name   string `json:"player1_name" yaml:"player1_name"`
	Player2Number int    `json:"player2_number" yaml:"player2_number"`
	Player2Name   string `json:"player2_name" yaml:"player2_name"`
	Player1Score  int    `json:"player1_score" yaml:"player1_score"`
	Player2Score  int    `json:"player2_score" yaml:"player2_score"`
}

// Pair returns the unordered matchup key of the match.
func (m Match) Pair() Pair {
	return NewPair(m.Player1Number, m.Player2Number)
}

// Group is one round-robin bracket.
type Group struct {
	Number  int           `json:"group_number" yaml:"group_number"`
	Name    string        `json:"group_name" yaml:"group_name"`
	Players []RosterEntry `json:"players" yaml:"players"`
	Matches []Match       `json:"matches" yaml:"matches"`
}

// GroupName returns the default display label for a group number.
func GroupName(number int) string {
	return fmt.Sprintf("#%d", number)
}

// Label returns the group name, falling back to "#<number>".
func (g Group) Label() string {
	if g.Name != "" {
		return g.Name
	}
	return GroupName(g.Number)
}

// ExpectedMatches returns the number of matches a complete group has.
func (g Group) ExpectedMatches() int {
	return ExpectedMatches(len(g.Players))
}

// ParsedDocument is the complete output of one extraction run.
type ParsedDocument struct {
	Tournament TournamentInfo `json:"tournament" yaml:"tournament"`
	Groups     []Group        `json:"groups" yaml:"groups"`
}

// PlayerCount returns the total roster size over all groups.
func (d *ParsedDocument) PlayerCount() int {
	n := 0
	for _, g := range d.Groups {
		n += len(g.Players)
	}
	return n
}

// MatchCount returns the total number of matches over all groups.
func (d *ParsedDocument) MatchCount() int {
	n := 0
	for _, g := range d.Groups {
		n += len(g.Matches)
	}
	return n
}

// TournamentLink is one results document discovered on the results index.
type TournamentLink struct {
	URL       string     `json:"url" yaml:"url"`
	Date      *time.Time `json:"date,omitempty" yaml:"date,omitempty"`
	Format    LinkFormat `json:"format" yaml:"format"`
	Display   string     `json:"display" yaml:"display"`
	PDFNumber string     `json:"pdf_number,omitempty" yaml:"pdf_number,omitempty"`
}

// Pair is an unordered matchup of two player numbers, stored low-high.
type Pair struct {
	Low  int
	High int
}

// NewPair builds the canonical pair for two player numbers.
func NewPair(a, b int) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}
}

// ExpectedMatches returns n(n-1)/2.
func ExpectedMatches(players int) int {
	if players < 2 {
		return 0
	}
	return players * (players - 1) / 2
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// RawDocument is what acquisition hands to the parsers: the classified
// format plus whatever the external extractors recovered. Tables holds one
// grid per detected table, row-major, with newline-stacked cell text.
type RawDocument struct {
	Format DocumentFormat `json:"format"`
	Source string         `json:"source"`
	Text   string         `json:"text,omitempty"`
	Tables [][][]string   `json:"tables,omitempty"`
	HTML   []byte         `json:"-"`
	Pages  int            `json:"pages,omitempty"`
	// OCRPages lists the 1-based pages whose text came from OCR.
	OCRPages []int `json:"ocr_pages,omitempty"`
}
