package parsers

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/types"
)

var (
	bracketHeaderPattern = regexp.MustCompile(`^#\d+$`)
	bracketNumberPattern = regexp.MustCompile(`#(\d+)`)
)

// HTMLParser implements the bracket page parser
type HTMLParser struct {
	policy config.Policy
	logger interfaces.Logger
}

// NewHTMLParser creates a new bracket page parser
func NewHTMLParser(policy config.Policy, logger interfaces.Logger) *HTMLParser {
	return &HTMLParser{policy: policy, logger: logger}
}

// GetParserType returns the parser type
func (hp *HTMLParser) GetParserType() ParserType {
	return ParserTypeHTML
}

// Parse reads every div.bracket of the page as one group
func (hp *HTMLParser) Parse(ctx context.Context, raw *types.RawDocument) (*types.ParsedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body := raw.HTML
	if len(body) == 0 {
		body = []byte(raw.Text)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewParsingError("failed to parse HTML", err).WithDetail("source", raw.Source)
	}

	parsed := &types.ParsedDocument{
		Tournament: ExtractHTMLTitleInfo(doc.Find("h1").First().Text(), raw.Source),
	}

	doc.Find("div.bracket").Each(func(i int, bracket *goquery.Selection) {
		group, ok := hp.parseBracket(bracket)
		if !ok {
			hp.logger.Debug("skipping bracket without group header", map[string]interface{}{
				"source": raw.Source,
				"index":  i,
			})
			return
		}
		parsed.Groups = append(parsed.Groups, group)
	})

	return finishDocument(parsed, raw.Source)
}

func (hp *HTMLParser) parseBracket(bracket *goquery.Selection) (types.Group, bool) {
	header := findBracketHeader(bracket)
	if header == "" {
		return types.Group{}, false
	}
	m := bracketNumberPattern.FindStringSubmatch(header)
	if m == nil {
		return types.Group{}, false
	}

	players := bracketRoster(bracket)
	return types.Group{
		Number:  atoi(m[1]),
		Name:    header,
		Players: players,
		Matches: bracketMatches(bracket, rosterIndex(players)),
	}, true
}

// findBracketHeader prefers an exact "#n" row header and falls back to any
// row header starting with "#"
func findBracketHeader(bracket *goquery.Selection) string {
	headers := bracket.Find("div.row-header")
	exact := headers.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return bracketHeaderPattern.MatchString(strings.TrimSpace(s.Text()))
	})
	if exact.Length() > 0 {
		return strings.TrimSpace(exact.First().Text())
	}
	if headers.Length() > 0 {
		if text := strings.TrimSpace(headers.First().Text()); strings.HasPrefix(text, "#") {
			return text
		}
	}
	return ""
}

// playerNumber reads the number of a div.col-1 player cell
func playerNumber(col *goquery.Selection) (int, bool) {
	row := col.Find("div.row").First()
	if row.Length() == 0 || row.Find("div.row-header").Length() > 0 {
		return 0, false
	}
	text := strings.TrimSpace(row.Text())
	if !isDigits(text) {
		return 0, false
	}
	return atoi(text), true
}

// columnsAfter visits the div siblings following a player cell up to the
// next player cell
func columnsAfter(col *goquery.Selection, visit func(*goquery.Selection) bool) {
	for sib := col.Next(); sib.Length() > 0; sib = sib.Next() {
		if goquery.NodeName(sib) != "div" {
			continue
		}
		if sib.HasClass("col-1") {
			return
		}
		if !visit(sib) {
			return
		}
	}
}

func bracketRoster(bracket *goquery.Selection) []types.RosterEntry {
	var players []types.RosterEntry
	bracket.Find("div.col-1").Each(func(_ int, col *goquery.Selection) {
		number, ok := playerNumber(col)
		if !ok {
			return
		}
		entry := types.RosterEntry{PlayerNumber: number}
		filled := false
		columnsAfter(col, func(column *goquery.Selection) bool {
			if applyColumn(column, &entry) {
				filled = true
			}
			return true
		})
		if filled {
			players = append(players, entry)
		}
	})
	return players
}

// applyColumn copies one statistics column into entry and reports whether
// the column is part of the roster vocabulary
func applyColumn(column *goquery.Selection, entry *types.RosterEntry) bool {
	row := column.Find("div.row").First()
	if row.Length() == 0 {
		return false
	}
	text := strings.Join(strings.Fields(row.Text()), " ")

	switch {
	case column.HasClass("names"):
		entry.Name = text
	case column.HasClass("rating-pre"):
		entry.RatingPre = unsignedInt(text)
	case column.HasClass("rating-post"):
		entry.RatingPost = unsignedInt(text)
	case column.HasClass("matches-won"):
		entry.MatchesWon = unsignedInt(text)
	case column.HasClass("games-won"):
		entry.GamesWon = unsignedInt(text)
	case column.HasClass("rating-change") && !column.HasClass("rating-change-vs"):
		entry.RatingChange = signedInt(text)
	case column.HasClass("bonus-points"):
		entry.BonusPoints = unsignedInt(text)
	case column.HasClass("total-change"):
		entry.ChangeWithBonus = signedInt(text)
	default:
		return false
	}
	return true
}

func unsignedInt(text string) *int {
	if !isDigits(text) {
		return nil
	}
	return types.IntPtr(atoi(text))
}

func signedInt(text string) *int {
	if text == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(text, "+"))
	if err != nil {
		return nil
	}
	return types.IntPtr(n)
}

// bracketMatches reads each player's games column. The i-th score cell is the
// result against player i+1; only the lower-numbered side is read so every
// pair is taken once.
func bracketMatches(bracket *goquery.Selection, roster map[int]types.RosterEntry) []types.Match {
	set := newMatchSet()
	bracket.Find("div.col-1").Each(func(_ int, col *goquery.Selection) {
		player, ok := playerNumber(col)
		if !ok {
			return
		}
		if _, known := roster[player]; !known {
			return
		}

		var games *goquery.Selection
		columnsAfter(col, func(column *goquery.Selection) bool {
			if column.HasClass("games") && !column.HasClass("games-won") {
				games = column
				return false
			}
			return true
		})
		if games == nil {
			return
		}

		games.Find("div.row").First().Find("div.score").Each(func(i int, score *goquery.Selection) {
			if score.HasClass("empty") {
				return
			}
			nums := score.Find("div.num")
			if nums.Length() < 2 {
				return
			}
			first := strings.TrimSpace(nums.Eq(0).Text())
			second := strings.TrimSpace(nums.Eq(1).Text())
			if first == "" || second == "" || first == markerWalkover || second == markerWalkover {
				return
			}
			a, errA := strconv.Atoi(first)
			b, errB := strconv.Atoi(second)
			if errA != nil || errB != nil {
				return
			}
			opponent := i + 1
			if player >= opponent {
				return
			}
			if m, ok := newMatch(player, opponent, a, b, roster); ok {
				set.add(m)
			}
		})
	})
	return set.list()
}
