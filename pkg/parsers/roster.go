package parsers

import (
	"regexp"
	"strings"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/types"
)

// RosterLayout is one way a score grid lays out its roster. Extract returns
// no entries when the table is not in its layout.
type RosterLayout struct {
	Name    string
	Extract func(table [][]string, policy config.Policy) []types.RosterEntry
}

// RosterLayouts is the closed, ordered strategy chain for PDF tables
var RosterLayouts = []RosterLayout{
	{Name: "stacked", Extract: stackedRoster},
	{Name: "compact", Extract: compactRoster},
	{Name: "row-per-player", Extract: rowPerPlayerRoster},
	{Name: "column-per-player", Extract: columnPerPlayerRoster},
	{Name: "nameless", Extract: namelessRoster},
}

// ExtractRoster runs the layout chain and returns the first non-empty roster
// with the name of the layout that produced it
func ExtractRoster(table [][]string, policy config.Policy) ([]types.RosterEntry, string) {
	for _, layout := range RosterLayouts {
		if players := layout.Extract(table, policy); len(players) > 0 {
			return players, layout.Name
		}
	}
	return nil, ""
}

var (
	ratingPairPattern   = regexp.MustCompile(`(\d{3,4})\s+(\d{3,4})`)
	nameBeforeRatings   = regexp.MustCompile(`^([A-Za-z][A-Za-z\s,.'\-]*?)\s+\d{3,4}`)
	nameOnly            = regexp.MustCompile(`^([A-Za-z][A-Za-z\s,.'\-]*)`)
	compactAttached     = regexp.MustCompile(`^(\d{1,2})([A-Za-z][A-Za-z\s,#\-.']+?)\s+(\d{3,4})\s+(\d{3,4})$`)
	compactSpaced       = regexp.MustCompile(`^(\d{1,2})\s+([A-Za-z][A-Za-z\s,#\-.']+?)\s+(\d{3,4})\s+(\d{3,4})$`)
	compactLineStart    = regexp.MustCompile(`^\d{1,2}[A-Za-z]`)
	namelessLinePattern = regexp.MustCompile(`([A-Za-z][A-Za-z\s,]+?)\s+(\d{3,4})\s+(\d{3,4})`)
	trailingHashes      = regexp.MustCompile(`#+$`)
)

// parseNameRatings reads "Name Pre Post" where the ratings are optional
func parseNameRatings(number int, line string) (types.RosterEntry, bool) {
	entry := types.RosterEntry{PlayerNumber: number}

	if m := ratingPairPattern.FindStringSubmatch(line); m != nil {
		entry.SetRatings(atoi(m[1]), atoi(m[2]))
	}

	if m := nameBeforeRatings.FindStringSubmatch(line); m != nil {
		entry.Name = strings.TrimSpace(m[1])
	} else if m := nameOnly.FindStringSubmatch(line); m != nil {
		entry.Name = strings.TrimSpace(m[1])
	}
	return entry, entry.Name != ""
}

// stackedNumbers parses a column-0 cell holding one bare number per line. Any
// other line disqualifies the cell.
func stackedNumbers(cell string, maxNumber int) []int {
	lines := cellLines(cell)
	numbers := make([]int, 0, len(lines))
	for _, line := range lines {
		if !isDigits(line) {
			return nil
		}
		n := atoi(line)
		if maxNumber > 0 && (n < 1 || n > maxNumber) {
			return nil
		}
		numbers = append(numbers, n)
	}
	return numbers
}

// stackedRoster: row 2 holds every player, numbers stacked in column 0 and
// "Name Pre Post" stacked in column 1
func stackedRoster(table [][]string, _ config.Policy) []types.RosterEntry {
	row := tableRow(table, 2)
	if len(row) < 2 {
		return nil
	}
	numbers := stackedNumbers(cellText(row, 0), 0)
	if len(numbers) < 2 {
		return nil
	}
	lines := cellLines(cellText(row, 1))

	var players []types.RosterEntry
	for i, number := range numbers {
		if i >= len(lines) {
			break
		}
		if entry, ok := parseNameRatings(number, lines[i]); ok {
			players = append(players, entry)
		}
	}
	return players
}

// compactRoster: row 2 column 0 holds "<n><Name> <pre> <post>" lines
func compactRoster(table [][]string, _ config.Policy) []types.RosterEntry {
	cell := cellText(tableRow(table, 2), 0)
	if !compactLineStart.MatchString(cell) {
		return nil
	}

	var players []types.RosterEntry
	for _, line := range cellLines(cell) {
		m := compactAttached.FindStringSubmatch(line)
		if m == nil {
			m = compactSpaced.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		name := strings.TrimSpace(trailingHashes.ReplaceAllString(strings.TrimSpace(m[2]), ""))
		if name == "" {
			continue
		}
		entry := types.RosterEntry{PlayerNumber: atoi(m[1]), Name: name}
		entry.SetRatings(atoi(m[3]), atoi(m[4]))
		players = append(players, entry)
	}
	return players
}

// rowPerPlayerRoster: one player per row from row 2, bare number in column 0
// and "Name Pre Post" in column 1
func rowPerPlayerRoster(table [][]string, policy config.Policy) []types.RosterEntry {
	last := len(table)
	if policy.MaxRosterRows > 0 && last > policy.MaxRosterRows {
		last = policy.MaxRosterRows
	}

	var players []types.RosterEntry
	for r := 2; r < last; r++ {
		row := table[r]
		if len(row) < 2 {
			continue
		}
		number := cellText(row, 0)
		if !isDigits(number) {
			continue
		}
		detail := cellText(row, 1)
		if detail == "" {
			continue
		}
		if entry, ok := parseNameRatings(atoi(number), detail); ok {
			players = append(players, entry)
		}
	}
	return players
}

// columnPerPlayerRoster: numbers stacked in row 2 column 0, names stacked in
// the first of columns 1..9 that has a line for every number
func columnPerPlayerRoster(table [][]string, policy config.Policy) []types.RosterEntry {
	row := tableRow(table, 2)
	if len(row) < 2 {
		return nil
	}
	numbers := stackedNumbers(cellText(row, 0), policy.MaxRosterRows)
	if len(numbers) == 0 {
		return nil
	}

	for col := 1; col < len(row) && col < 10; col++ {
		lines := cellLines(cellText(row, col))
		if len(lines) == 0 || len(lines) < len(numbers) {
			continue
		}
		var players []types.RosterEntry
		for i, number := range numbers {
			if entry, ok := parseNameRatings(number, lines[i]); ok {
				players = append(players, entry)
			}
		}
		if len(players) > 0 {
			return players
		}
	}
	return nil
}

// namelessRoster: row 2 column 0 holds "Name Pre Post" lines without numbers;
// players are numbered by line order
func namelessRoster(table [][]string, _ config.Policy) []types.RosterEntry {
	cell := cellText(tableRow(table, 2), 0)
	if cell == "" || compactLineStart.MatchString(cell) || !namelessLinePattern.MatchString(cell) {
		return nil
	}

	var players []types.RosterEntry
	for i, line := range cellLines(cell) {
		m := namelessLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		entry := types.RosterEntry{PlayerNumber: i + 1, Name: name}
		entry.SetRatings(atoi(m[2]), atoi(m[3]))
		players = append(players, entry)
	}
	return players
}
