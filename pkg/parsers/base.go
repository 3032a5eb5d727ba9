// Package parsers turns acquired results documents into the normalized
// tournament model. HTML brackets and PDF score grids each have their own
// parser; both share the metadata extractor and the group/match helpers here.
package parsers

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/types"
)

// Parser converts a raw document of one format into a ParsedDocument
type Parser interface {
	// Parse extracts tournament metadata and groups from raw
	Parse(ctx context.Context, raw *types.RawDocument) (*types.ParsedDocument, error)

	// GetParserType returns the type identifier for this parser
	GetParserType() ParserType
}

// ParserType represents different parser implementations
type ParserType string

const (
	// ParserTypeHTML for bracket pages
	ParserTypeHTML ParserType = "html"

	// ParserTypePDF for score grid documents
	ParserTypePDF ParserType = "pdf"
)

// SupportedParserTypes returns all supported parser types
func SupportedParserTypes() []ParserType {
	return []ParserType{ParserTypeHTML, ParserTypePDF}
}

// IsValidParserType checks if a parser type is supported
func IsValidParserType(parserType ParserType) bool {
	for _, supported := range SupportedParserTypes() {
		if supported == parserType {
			return true
		}
	}
	return false
}

// Cell markers that never carry a score
const (
	markerWalkover = "+"
	markerBlocked  = "XXXXXX"
)

var digitsPattern = regexp.MustCompile(`^\d+$`)

// cellText normalizes a table cell, treating missing cells as empty
func cellText(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// tableRow returns row idx or nil
func tableRow(table [][]string, idx int) []string {
	if idx < 0 || idx >= len(table) {
		return nil
	}
	return table[idx]
}

// cellLines splits a stacked cell into its trimmed non-empty lines
func cellLines(cell string) []string {
	var lines []string
	for _, line := range strings.Split(cell, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func isDigits(s string) bool {
	return digitsPattern.MatchString(s)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// rosterIndex maps player numbers to roster entries; later duplicates win
func rosterIndex(players []types.RosterEntry) map[int]types.RosterEntry {
	index := make(map[int]types.RosterEntry, len(players))
	for _, p := range players {
		index[p.PlayerNumber] = p
	}
	return index
}

// newMatch builds a canonical match from one player's perspective. The
// scores are read as (player, opponent); both must be on the roster.
func newMatch(player, opponent, playerScore, opponentScore int, roster map[int]types.RosterEntry) (types.Match, bool) {
	if player == opponent {
		return types.Match{}, false
	}
	if player > opponent {
		player, opponent = opponent, player
		playerScore, opponentScore = opponentScore, playerScore
	}
	low, ok := roster[player]
	if !ok {
		return types.Match{}, false
	}
	high, ok := roster[opponent]
	if !ok {
		return types.Match{}, false
	}
	return types.Match{
		Player1Number: player,
		Player1Name:   low.Name,
		Player2Number: opponent,
		Player2Name:   high.Name,
		Player1Score:  playerScore,
		Player2Score:  opponentScore,
	}, true
}

// matchSet collects matches keyed by unordered pair. The first extraction of
// a pair wins and insertion order is kept.
type matchSet struct {
	seen    map[types.Pair]bool
	matches []types.Match
}

func newMatchSet() *matchSet {
	return &matchSet{seen: make(map[types.Pair]bool)}
}

func (s *matchSet) has(a, b int) bool {
	return s.seen[types.NewPair(a, b)]
}

func (s *matchSet) add(m types.Match) bool {
	pair := m.Pair()
	if s.seen[pair] {
		return false
	}
	s.seen[pair] = true
	s.matches = append(s.matches, m)
	return true
}

func (s *matchSet) list() []types.Match {
	out := make([]types.Match, len(s.matches))
	copy(out, s.matches)
	return out
}

// finishDocument applies the whole-document failure rules shared by parsers
func finishDocument(doc *types.ParsedDocument, source string) (*types.ParsedDocument, error) {
	if len(doc.Groups) == 0 {
		return nil, errors.NewNoGroupsError(source)
	}
	if doc.PlayerCount() == 0 {
		return nil, errors.NewParsingError("no players recovered from any group", nil).
			WithDetail("source", source).
			WithDetail("groups", len(doc.Groups))
	}
	for gi := range doc.Groups {
		for pi := range doc.Groups[gi].Players {
			doc.Groups[gi].Players[pi].FillRatingChange()
		}
	}
	return doc, nil
}
