package parsers

import (
	"regexp"
	"sort"
	"strings"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/types"
)

// ocrArtifacts are characters recognizers emit for table rules; their
// presence marks text as OCR output
const ocrArtifacts = "|}{]["

var (
	ocrRosterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(\d+)\s*[|]\s*([A-Z][a-zA-Z\s,.]+?)\s+(\d{3,4})\s+(\d{3,4})`),
		regexp.MustCompile(`^(\d+)([A-Z][a-zA-Z\s,.]+?)\s+(\d{3,4})\s+(\d{3,4})`),
		regexp.MustCompile(`^([A-Z][a-zA-Z\s,.]+?)\s+(\d{3,4})\s+(\d{3,4})`),
	}
	ocrNameNoise   = regexp.MustCompile(`[|{}\[\].]+`)
	ocrSpaces      = regexp.MustCompile(`\s+`)
	ocrNumberedRow = regexp.MustCompile(`^(\d+)\s*[|]`)
	ocrWinLoss     = regexp.MustCompile(`(\+|\d+)\s*/\s*(\+|\d+)`)
	ocrNumbers     = regexp.MustCompile(`\d+`)
)

// ocrHeaderWords are column header words. They match whole words only, so
// names like Wong or Preston are kept.
var ocrHeaderWords = regexp.MustCompile(`(?i)\b(name|rating|pre|post|games|won|lost|against)\b`)

// maxHeaderLineLen: longer keyword lines are headers even when they mention players
const maxHeaderLineLen = 100

// looksLikeOCR reports whether text carries recognizer table artifacts
func looksLikeOCR(text string) bool {
	return strings.ContainsAny(text, ocrArtifacts)
}

// ExtractOCRGroups segments recognized text and extracts each section.
// Sections without players are dropped.
func ExtractOCRGroups(text string, policy config.Policy) []types.Group {
	if len(strings.TrimSpace(text)) < policy.OCRMinTextChars {
		return nil
	}

	var groups []types.Group
	for _, section := range SegmentOCRLines(text) {
		players := ExtractOCRRoster(section.Lines, policy)
		if len(players) == 0 {
			continue
		}
		groups = append(groups, types.Group{
			Number:  section.Number,
			Name:    types.GroupName(section.Number),
			Players: players,
			Matches: ExtractOCRMatches(section.Lines, players, policy),
		})
	}
	return groups
}

// isHeaderLine: numbered player lines are never headers
func isHeaderLine(line string) bool {
	return !ocrNumberedRow.MatchString(line) && ocrHeaderWords.MatchString(line)
}

// ExtractOCRRoster recovers "n | Name pre post" style lines. Names are
// cleaned of recognizer noise, ratings must fall inside the policy range and
// colliding numbers move to the next free slot.
func ExtractOCRRoster(lines []string, policy config.Policy) []types.RosterEntry {
	var (
		players []types.RosterEntry
		seen    = make(map[string]bool)
		used    = make(map[int]bool)
	)

	nextFree := func() int {
		n := len(players) + 1
		for used[n] {
			n++
		}
		return n
	}

	inRange := func(r int) bool {
		return r >= policy.MinRating && r <= policy.MaxRating
	}

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if isHeaderLine(line) {
			if !strings.Contains(strings.ToLower(line), "player") || len(line) > maxHeaderLineLen {
				continue
			}
		}

		for _, pattern := range ocrRosterPatterns {
			m := pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}

			var number int
			var name, pre, post string
			if len(m) == 5 {
				number, name, pre, post = atoi(m[1]), m[2], m[3], m[4]
			} else {
				number, name, pre, post = nextFree(), m[1], m[2], m[3]
			}

			name = strings.TrimSpace(ocrNameNoise.ReplaceAllString(strings.TrimSpace(name), ""))
			name = ocrSpaces.ReplaceAllString(name, " ")
			if len(name) <= 2 || seen[name] {
				continue
			}
			preRating, postRating := atoi(pre), atoi(post)
			if !inRange(preRating) || !inRange(postRating) {
				continue
			}
			if used[number] {
				number = nextFree()
			}

			entry := types.RosterEntry{PlayerNumber: number, Name: name}
			entry.SetRatings(preRating, postRating)
			players = append(players, entry)
			seen[name] = true
			used[number] = true
			break
		}
	}
	return players
}

// ExtractOCRMatches reads results from numbered player lines. "W/L" pairs are
// used when present ("+" is a default win); otherwise bare numbers after the
// number and both ratings are read in pairs. Each result goes to the next
// opponent, by number, whose pair is still open.
func ExtractOCRMatches(lines []string, players []types.RosterEntry, policy config.Policy) []types.Match {
	if len(players) < 2 {
		return nil
	}
	roster := rosterIndex(players)
	order := make([]int, 0, len(roster))
	for n := range roster {
		order = append(order, n)
	}
	sort.Ints(order)
	limit := len(order) - 1
	set := newMatchSet()

	nextOpponent := func(player int) int {
		for _, opp := range order {
			if opp != player && !set.has(player, opp) {
				return opp
			}
		}
		return 0
	}

	inRange := func(s int) bool { return s >= 0 && s <= policy.MaxGameScore }

	assign := func(player, a, b int) bool {
		opp := nextOpponent(player)
		if opp == 0 {
			return false
		}
		m, ok := newMatch(player, opp, a, b, roster)
		return ok && set.add(m)
	}

	for _, line := range lines {
		m := ocrNumberedRow.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		player := atoi(m[1])
		if _, ok := roster[player]; !ok {
			continue
		}

		if pairs := ocrWinLoss.FindAllStringSubmatch(line, -1); len(pairs) > 0 {
			taken := 0
			for _, p := range pairs {
				if p[1] == "+" && p[2] == "+" {
					continue
				}
				a, b := winLossScore(p[1], policy), winLossScore(p[2], policy)
				if !inRange(a) || !inRange(b) {
					continue
				}
				if assign(player, a, b) {
					taken++
					if taken >= limit {
						break
					}
				}
			}
			continue
		}

		numbers := ocrNumbers.FindAllString(line, -1)
		if len(numbers) < 3 {
			continue
		}
		taken := 0
		for i := 3; i+1 < len(numbers) && taken < limit; i += 2 {
			a, b := atoi(numbers[i]), atoi(numbers[i+1])
			if !inRange(a) || !inRange(b) {
				continue
			}
			if assign(player, a, b) {
				taken++
			}
		}
	}
	return set.list()
}

func winLossScore(tok string, policy config.Policy) int {
	if tok == "+" {
		return policy.DefaultWinScore
	}
	return atoi(tok)
}
