// Package validator checks a parsed tournament before it is persisted. Every
// check runs; problems are accumulated instead of stopping at the first one.
package validator

import (
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/types"
)

// similarNameThreshold is the normalized Levenshtein similarity above which
// two distinct names in one group are reported as a likely misread
const similarNameThreshold = 0.85

// Result is the outcome of validating one document
type Result struct {
	IsValid  bool     `json:"is_valid" yaml:"is_valid"`
	Errors   []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Err returns the validation errors as an *errors.ErrorList, or nil
func (r Result) Err() error {
	list := errors.NewErrorList()
	for _, msg := range r.Errors {
		list.AddValidation("%s", msg)
	}
	return list.ToError()
}

// FirstError returns the first error message or ""
func (r Result) FirstError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0]
}

type checker struct {
	policy config.Policy
	result Result
}

func (c *checker) errorf(format string, args ...interface{}) {
	c.result.Errors = append(c.result.Errors, fmt.Sprintf(format, args...))
}

func (c *checker) warnf(format string, args ...interface{}) {
	c.result.Warnings = append(c.result.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks doc against the round-robin invariants
func Validate(doc *types.ParsedDocument, policy config.Policy) Result {
	c := &checker{policy: policy}
	if doc == nil {
		c.errorf("Missing tournament information")
		return c.result
	}

	if strings.TrimSpace(doc.Tournament.Name) == "" {
		c.errorf("Tournament name is missing or invalid")
	}
	if !doc.Tournament.HasDate() {
		c.errorf("Tournament date is missing")
	}

	if len(doc.Groups) == 0 {
		c.errorf("No groups found")
		return c.result
	}

	for _, g := range doc.Groups {
		c.group(g)
	}

	c.result.IsValid = len(c.result.Errors) == 0
	return c.result
}

func (c *checker) group(g types.Group) {
	label := g.Label()
	if len(g.Players) == 0 {
		c.errorf("Group %s: Has no players", label)
		return
	}

	names := make(map[string]bool, len(g.Players))
	numbers := make(map[int]bool, len(g.Players))
	for j, p := range g.Players {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			c.errorf("Group %s, Player %d: Missing or invalid name", label, j+1)
		} else if names[name] {
			c.errorf("Group %s: Duplicate player name '%s'", label, p.Name)
		}
		if numbers[p.PlayerNumber] {
			c.errorf("Group %s: Duplicate player_number %d", label, p.PlayerNumber)
		}
		if name != "" {
			names[name] = true
		}
		numbers[p.PlayerNumber] = true
	}
	c.similarNames(label, g.Players)
	c.matchCount(label, g)
	c.matches(label, g, names, numbers)
}

func (c *checker) matchCount(label string, g types.Group) {
	players := len(g.Players)
	expected := g.ExpectedMatches()
	actual := len(g.Matches)

	switch {
	case actual > expected:
		c.errorf("Group %s: Got %d matches but expected %d for %d players (too many matches)", label, actual, expected, players)
	case actual == expected:
	case actual == 0:
		c.errorf("Group %s: Expected %d matches for %d players, got 0 (no matches found)", label, expected, players)
	default:
		missing := expected - actual
		share := float64(missing) / float64(expected)
		msg := fmt.Sprintf("Group %s: Expected %d matches for %d players, got %d (missing %d, %.1f%%)",
			label, expected, players, actual, missing, share*100)
		if share > c.policy.MissingMatchTolerance {
			c.errorf("%s", msg)
		} else {
			c.warnf("%s", msg)
		}
	}
}

func (c *checker) matches(label string, g types.Group, names map[string]bool, numbers map[int]bool) {
	pairs := make(map[types.Pair]bool, len(g.Matches))
	for j, m := range g.Matches {
		n := j + 1
		p1 := strings.TrimSpace(m.Player1Name)
		p2 := strings.TrimSpace(m.Player2Name)
		if p1 == "" {
			c.errorf("Group %s, Match %d: Missing or invalid player1_name", label, n)
		}
		if p2 == "" {
			c.errorf("Group %s, Match %d: Missing or invalid player2_name", label, n)
		}

		if m.Player1Number == m.Player2Number || (p1 != "" && p1 == p2) {
			c.errorf("Group %s, Match %d: Same player for both sides", label, n)
		}

		pair := m.Pair()
		if pairs[pair] {
			c.errorf("Group %s: Duplicate match between %s and %s", label, m.Player1Name, m.Player2Name)
		}
		pairs[pair] = true

		if !numbers[m.Player1Number] {
			c.errorf("Group %s, Match %d: player1_number %d not found in group players", label, n, m.Player1Number)
		}
		if !numbers[m.Player2Number] {
			c.errorf("Group %s, Match %d: player2_number %d not found in group players", label, n, m.Player2Number)
		}
		if p1 != "" && !names[p1] {
			c.errorf("Group %s, Match %d: player1_name '%s' not found in group players", label, n, m.Player1Name)
		}
		if p2 != "" && !names[p2] {
			c.errorf("Group %s, Match %d: player2_name '%s' not found in group players", label, n, m.Player2Name)
		}

		if m.Player1Score < 0 {
			c.errorf("Group %s, Match %d: Invalid player1_score %d", label, n, m.Player1Score)
		}
		if m.Player2Score < 0 {
			c.errorf("Group %s, Match %d: Invalid player2_score %d", label, n, m.Player2Score)
		}
	}
}

// similarNames warns about distinct names that are one or two characters
// apart, the usual sign of a misread name
func (c *checker) similarNames(label string, players []types.RosterEntry) {
	for i := 0; i < len(players); i++ {
		a := strings.ToLower(strings.TrimSpace(players[i].Name))
		if a == "" {
			continue
		}
		for j := i + 1; j < len(players); j++ {
			b := strings.ToLower(strings.TrimSpace(players[j].Name))
			if b == "" || a == b {
				continue
			}
			distance := fuzzy.LevenshteinDistance(a, b)
			similarity := 1 - float64(distance)/float64(max(len(a), len(b)))
			if similarity > similarNameThreshold {
				c.warnf("Group %s: Players '%s' and '%s' have similar names", label, players[i].Name, players[j].Name)
			}
		}
	}
}
