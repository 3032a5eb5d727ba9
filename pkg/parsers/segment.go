package parsers

import (
	"regexp"
	"strings"
)

// minGroupTableRows is header + opponent row + first data row
const minGroupTableRows = 3

var (
	tableGroupHeader = regexp.MustCompile(`(?i)#\s*(\d+)`)
	ocrGroupHeader   = regexp.MustCompile(`(?i)^#\s*(\d+)`)
	ocrFirstPlayer   = regexp.MustCompile(`^1\s*[|]`)
	ocrPlayerLine    = regexp.MustCompile(`^\d+\s*[|]`)
)

// TableGroup is one score grid recognized as a round-robin group
type TableGroup struct {
	Number int
	Table  [][]string
}

// SegmentTables keeps tables whose first cell names a group ("#3") or starts
// a nameless roster ("Name ..."). Nameless tables are numbered 1, 2, ... in
// document order.
func SegmentTables(tables [][][]string) []TableGroup {
	var groups []TableGroup
	counter := 1

	for _, table := range tables {
		if len(table) < minGroupTableRows || len(table[0]) == 0 {
			continue
		}
		first := cellText(table[0], 0)

		var number int
		if m := tableGroupHeader.FindStringSubmatch(first); m != nil {
			number = atoi(m[1])
		} else if strings.HasPrefix(strings.ToLower(first), "name") {
			number = counter
			counter++
		}
		if number == 0 {
			continue
		}
		groups = append(groups, TableGroup{Number: number, Table: table})
	}
	return groups
}

// OCRSection is the run of recognized text lines belonging to one group
type OCRSection struct {
	Number int
	Lines  []string
}

// SegmentOCRLines splits recognized text into group sections. "#n" opens a
// group; a "1 |" line opens the next group when the current one already has
// player lines. Lines before the first group are dropped.
func SegmentOCRLines(text string) []OCRSection {
	var (
		sections []OCRSection
		current  *OCRSection
		counter  = 1
	)

	flush := func() {
		if current != nil && len(current.Lines) > 0 {
			sections = append(sections, *current)
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := ocrGroupHeader.FindStringSubmatch(line); m != nil {
			flush()
			current = &OCRSection{Number: atoi(m[1])}
			continue
		}

		if ocrFirstPlayer.MatchString(line) {
			if current != nil && hasPlayerLine(current.Lines) {
				flush()
				if current.Number > counter {
					counter = current.Number
				}
				counter++
				current = &OCRSection{Number: counter}
			}
			if current == nil {
				current = &OCRSection{Number: 1}
			}
		}

		if current != nil {
			current.Lines = append(current.Lines, line)
		}
	}
	flush()

	return sections
}

func hasPlayerLine(lines []string) bool {
	for _, l := range lines {
		if ocrPlayerLine.MatchString(l) {
			return true
		}
	}
	return false
}
