package parsers

import (
	"regexp"
	"strings"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/types"
)

// maxScoreLineLen separates score lines from the longer statistics lines
// that share stacked cells
const maxScoreLineLen = 10

var (
	scoreLinePattern = regexp.MustCompile(`(?i)^(\d+|D)\s+(\d+|D)$`)
	scoreLikePattern = regexp.MustCompile(`\d+\s+\d+`)
)

// gridContext is the shared state handed to every match layout
type gridContext struct {
	table     [][]string
	players   []types.RosterEntry
	roster    map[int]types.RosterEntry
	opponents map[int]int
	opponentW int
	compact   bool
	stacked   bool
	owners    map[int]int
	policy    config.Policy
	set       *matchSet
}

// MatchLayout is one place a score grid may keep its results
type MatchLayout struct {
	Name    string
	Applies func(g *gridContext) bool
	Extract func(g *gridContext)
}

// MatchLayouts is the closed, ordered strategy list for PDF tables. Every
// applicable layout runs against the same match set, so earlier layouts win
// a pair.
var MatchLayouts = []MatchLayout{
	{Name: "row2", Applies: hasRow2Results, Extract: row2Matches},
	{Name: "row5-stacked", Applies: isRow5Stacked, Extract: row5StackedMatches},
	{Name: "numbered-rows", Applies: hasNumberedRows, Extract: numberedRowMatches},
	{Name: "compact-rows", Applies: isCompact, Extract: compactRowMatches},
	{Name: "standard-rows", Applies: isStandard, Extract: standardRowMatches},
}

func isCompact(g *gridContext) bool  { return g.compact }
func isStandard(g *gridContext) bool { return !g.compact }

func hasRow2Results(g *gridContext) bool { return g.compact || g.stacked }

func hasNumberedRows(g *gridContext) bool {
	return !g.compact && !g.stacked && len(g.owners) > 0
}

// isRow5Stacked holds when row 5 exists and the grid stacks its players,
// either in the row-2 roster or in the row-5 score cells themselves. A row 5
// numbered in column 0 is just that player's row.
func isRow5Stacked(g *gridContext) bool {
	row5 := tableRow(g.table, 5)
	if row5 == nil {
		return false
	}
	if g.stacked {
		return true
	}
	if _, owned := g.owners[5]; owned {
		return false
	}
	end := min(len(row5), g.opponentW)
	for col := g.policy.ScoreStartColumn; col < end; col += 2 {
		if len(cellLines(cellText(row5, col))) > 1 {
			return true
		}
	}
	return false
}

// ExtractMatches reads the score grid of one group table
func ExtractMatches(table [][]string, players []types.RosterEntry, policy config.Policy) []types.Match {
	row1 := tableRow(table, 1)
	if len(table) < minGroupTableRows || len(row1) < policy.ScoreStartColumn || len(players) == 0 {
		return nil
	}

	g := &gridContext{
		table:     table,
		players:   players,
		roster:    rosterIndex(players),
		opponentW: len(row1),
		compact:   compactLineStart.MatchString(cellText(tableRow(table, 2), 0)),
		policy:    policy,
		set:       newMatchSet(),
	}
	// one line per player in row 2, column 0
	g.stacked = !g.compact && len(cellLines(cellText(tableRow(table, 2), 0))) >= 2
	g.opponents = opponentColumns(table, policy.ScoreStartColumn)
	g.owners = rowOwners(table, g.roster)

	for _, layout := range MatchLayouts {
		if layout.Applies(g) {
			layout.Extract(g)
		}
	}
	return g.set.list()
}

// rowOwners maps rows from 2 down to the roster player numbered in column 0
func rowOwners(table [][]string, roster map[int]types.RosterEntry) map[int]int {
	owners := make(map[int]int)
	for r := 2; r < len(table); r++ {
		cell := cellText(table[r], 0)
		if !isDigits(cell) {
			continue
		}
		if _, ok := roster[atoi(cell)]; ok {
			owners[r] = atoi(cell)
		}
	}
	return owners
}

// opponentColumns maps score columns to opponent numbers from the row-1
// header. When the first score columns carry no numbers the mapping is
// inferred: even columns only if row 5 holds scores there, else column pairs.
func opponentColumns(table [][]string, start int) map[int]int {
	row1 := tableRow(table, 1)
	mapping := make(map[int]int)
	for col := start; col < len(row1); col++ {
		cell := cellText(row1, col)
		if isDigits(cell) && atoi(cell) > 0 {
			mapping[col] = atoi(cell)
		}
	}

	for i := 0; i < 4; i++ {
		col := start + 2*i
		if col < len(row1) && mapping[col] > 0 {
			return mapping
		}
	}

	evenOnly := false
	if row5 := tableRow(table, 5); row5 != nil {
		for col := start; col < len(row5) && col < len(row1); col += 2 {
			cell := cellText(row5, col)
			if cell != "" && cell != "0" && scoreLikePattern.MatchString(cell) {
				evenOnly = true
				break
			}
		}
	}

	opponent := 1
	for col := start; col < len(row1); col += 2 {
		mapping[col] = opponent
		if !evenOnly && col+1 < len(row1) {
			mapping[col+1] = opponent
		}
		opponent++
	}
	return mapping
}

// parseScoreCell returns the first plausible "a b" line of a cell. "D"
// counts as zero; scores above maxScore reject the line.
func parseScoreCell(cell string, maxScore int) (int, int, bool) {
	if isEmptyScore(cell) {
		return 0, 0, false
	}
	for _, line := range cellLines(cell) {
		if len(line) > maxScoreLineLen {
			continue
		}
		m := scoreLinePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		a, b := scoreToken(m[1]), scoreToken(m[2])
		if a < 0 || b < 0 || a > maxScore || b > maxScore {
			continue
		}
		return a, b, true
	}
	return 0, 0, false
}

func scoreToken(tok string) int {
	if strings.EqualFold(tok, "D") {
		return 0
	}
	return atoi(tok)
}

func isEmptyScore(cell string) bool {
	cell = strings.TrimSpace(cell)
	return cell == "" || cell == markerWalkover || cell == markerBlocked
}

// record parses a cell from player's perspective and adds the match
func (g *gridContext) record(cell string, player, opponent int) bool {
	if g.set.has(player, opponent) {
		return false
	}
	a, b, ok := parseScoreCell(cell, g.policy.MaxGameScore)
	if !ok {
		return false
	}
	m, ok := newMatch(player, opponent, a, b, g.roster)
	if !ok {
		return false
	}
	return g.set.add(m)
}

func (g *gridContext) knownOpponent(col int) (int, bool) {
	opp, ok := g.opponents[col]
	if !ok || opp == 0 {
		return 0, false
	}
	_, known := g.roster[opp]
	return opp, known
}

// row2Matches: compact grids keep player 1's own results in row 2; stacked
// grids keep one line per player for each opponent column
func row2Matches(g *gridContext) {
	row := tableRow(g.table, 2)
	end := min(len(row), g.opponentW)
	for col := g.policy.ScoreStartColumn; col < end; col++ {
		opp, ok := g.knownOpponent(col)
		if !ok {
			continue
		}
		cell := cellText(row, col)
		if isEmptyScore(cell) {
			continue
		}

		if g.compact {
			if 1 < opp {
				g.record(cell, 1, opp)
			}
			continue
		}
		for i, line := range cellLines(cell) {
			if player := i + 1; player < opp {
				g.record(line, player, opp)
			}
		}
	}
}

// row5StackedMatches: some grids stack every player's result against an
// opponent in the even columns of row 5, spilling into the rows below
func row5StackedMatches(g *gridContext) {
	row5 := tableRow(g.table, 5)
	end := min(len(row5), g.opponentW)
	for col := g.policy.ScoreStartColumn; col < end; col += 2 {
		opp, ok := g.knownOpponent(col)
		if !ok {
			continue
		}
		cell := cellText(row5, col)
		if isEmptyScore(cell) || cell == "0" {
			continue
		}

		lines := cellLines(cell)
		for i, line := range lines {
			if player := i + 1; player < opp {
				g.record(line, player, opp)
			}
		}

		consumed := len(lines)
		if consumed >= len(g.players)-1 {
			continue
		}
		last := min(len(g.table), len(g.players)+5)
		for r := 6; r < last; r++ {
			extra := cellText(g.table[r], col)
			if extra == "" || extra == "0" || extra == markerBlocked {
				continue
			}
			for _, line := range cellLines(extra) {
				consumed++
				if player := consumed; player < opp {
					g.record(line, player, opp)
				}
			}
		}
	}
}

// numberedRowMatches: each row names its player in column 0, so every score
// in it belongs to that player. Blank cells stay unplayed.
func numberedRowMatches(g *gridContext) {
	for r := 2; r < len(g.table); r++ {
		player, ok := g.owners[r]
		if !ok {
			continue
		}
		for _, s := range g.rowScores(g.table[r]) {
			if s.opponent != player {
				g.record(s.cell, player, s.opponent)
			}
		}
	}
}

// compactRowMatches: in compact grids row r holds player r-1's own results.
// The first score column holds stacked results and is skipped.
func compactRowMatches(g *gridContext) {
	last := min(len(g.table), len(g.players)+3)
	for r := 3; r < last; r++ {
		row := g.table[r]
		if len(row) < g.policy.ScoreStartColumn {
			continue
		}
		player := r - 1
		if _, ok := g.roster[player]; !ok {
			continue
		}
		end := min(len(row), g.opponentW)
		for col := g.policy.ScoreStartColumn + 1; col < end; col++ {
			opp, ok := g.knownOpponent(col)
			if !ok || opp == player {
				continue
			}
			g.record(cellText(row, col), player, opp)
		}
	}
}

type rowScore struct {
	opponent int
	cell     string
}

// standardRowMatches: rows from 3 down carry results whose owner is not
// labelled. Each score goes to the unrecorded pair whose player number is
// closest to the row's position. Numbered rows were read by their owner.
func standardRowMatches(g *gridContext) {
	start := g.policy.ScoreStartColumn
	for r := 3; r < len(g.table); r++ {
		row := g.table[r]
		if _, owned := g.owners[r]; owned || len(row) < start {
			continue
		}
		scores := g.rowScores(row)
		if len(scores) == 0 {
			scores = g.inferredRowScores(row)
		}
		for _, s := range scores {
			g.assignNearest(s, r-1)
		}
	}
}

// rowScores takes the first filled cell of each opponent's column pair
func (g *gridContext) rowScores(row []string) []rowScore {
	var scores []rowScore
	seen := make(map[int]bool)
	end := min(len(row), g.opponentW)
	for col := g.policy.ScoreStartColumn; col < end; col++ {
		opp, ok := g.knownOpponent(col)
		if !ok || seen[opp] {
			continue
		}
		cell := cellText(row, col)
		if isEmptyScore(cell) {
			continue
		}
		seen[opp] = true
		scores = append(scores, rowScore{opponent: opp, cell: cell})
	}
	return scores
}

// inferredRowScores guesses the opponent from the column position for cells
// that look like scores
func (g *gridContext) inferredRowScores(row []string) []rowScore {
	var scores []rowScore
	start := g.policy.ScoreStartColumn
	end := min(len(row), g.opponentW)
	for col := start; col < end; col++ {
		cell := cellText(row, col)
		if isEmptyScore(cell) || cell == "0" || !scoreLikePattern.MatchString(cell) {
			continue
		}
		if opp := (col-start)/2 + 1; opp <= len(g.players) {
			scores = append(scores, rowScore{opponent: opp, cell: cell})
		}
	}
	return scores
}

// opponentAt is the opponent a score column belongs to, from the header
// mapping or else the column-pair position
func (g *gridContext) opponentAt(col int) int {
	if opp, ok := g.opponents[col]; ok {
		return opp
	}
	return (col-g.policy.ScoreStartColumn)/2 + 1
}

// hasCell reports whether the grid holds a score for the pair in either
// player's row (row n+1 belongs to player n)
func (g *gridContext) hasCell(player, opponent int) bool {
	for _, side := range [][2]int{{player, opponent}, {opponent, player}} {
		row := tableRow(g.table, side[0]+1)
		end := min(len(row), g.opponentW)
		for col := g.policy.ScoreStartColumn; col < end; col++ {
			if g.opponentAt(col) != side[1] {
				continue
			}
			if _, _, ok := parseScoreCell(cellText(row, col), g.policy.MaxGameScore); ok {
				return true
			}
		}
	}
	return false
}

// assignNearest gives the score to the closest player, by number, whose pair
// with the opponent is open and has a score cell of its own
func (g *gridContext) assignNearest(s rowScore, hint int) {
	a, b, ok := parseScoreCell(s.cell, g.policy.MaxGameScore)
	if !ok {
		return
	}

	if _, ok := g.roster[s.opponent]; !ok {
		return
	}

	best, bestDiff := 0, -1
	for _, p := range g.players {
		player := p.PlayerNumber
		if player == s.opponent || g.set.has(player, s.opponent) {
			continue
		}
		if player != hint && !g.hasCell(player, s.opponent) {
			continue
		}
		diff := player - hint
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = player, diff
		}
	}
	if bestDiff < 0 {
		return
	}
	if m, ok := newMatch(best, s.opponent, a, b, g.roster); ok {
		g.set.add(m)
	}
}
