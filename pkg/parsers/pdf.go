package parsers

import (
	"context"
	"strings"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/types"
)

// PDFParser implements parsing for score grid documents. Tables recovered by
// the extractor are read with the roster and match strategy chains; text
// that came from OCR is read line by line.
type PDFParser struct {
	policy config.Policy
	logger interfaces.Logger
}

// NewPDFParser creates a new PDF parser
func NewPDFParser(policy config.Policy, logger interfaces.Logger) *PDFParser {
	return &PDFParser{policy: policy, logger: logger}
}

// GetParserType returns the parser type
func (pp *PDFParser) GetParserType() ParserType {
	return ParserTypePDF
}

// Parse extracts tournament metadata and groups from an extracted PDF
func (pp *PDFParser) Parse(ctx context.Context, raw *types.RawDocument) (*types.ParsedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(raw.Tables) == 0 && strings.TrimSpace(raw.Text) == "" {
		return nil, errors.NewNoTextError(raw.Source)
	}

	doc := &types.ParsedDocument{
		Tournament: extractTournamentInfo(raw.Source, raw.Text, pp.policy.MetadataScanChars),
		Groups:     pp.extractGroups(raw),
	}
	return finishDocument(doc, raw.Source)
}

func (pp *PDFParser) extractGroups(raw *types.RawDocument) []types.Group {
	textUsable := len(strings.TrimSpace(raw.Text)) > pp.policy.OCRMinTextChars

	if len(raw.Tables) > 0 {
		groups := pp.tableGroups(raw.Source, raw.Tables)
		if textUsable && hasEmptyGroup(groups) {
			groups = pp.fillFromOCR(raw.Source, groups, raw.Text)
		}
		if len(groups) > 0 {
			return groups
		}
	}

	if textUsable && looksLikeOCR(raw.Text) {
		groups := ExtractOCRGroups(raw.Text, pp.policy)
		pp.logger.Debug("read groups from recognized text", map[string]interface{}{
			"source": raw.Source,
			"groups": len(groups),
		})
		return groups
	}
	return nil
}

func (pp *PDFParser) tableGroups(source string, tables [][][]string) []types.Group {
	var groups []types.Group
	for _, tg := range SegmentTables(tables) {
		players, layout := ExtractRoster(tg.Table, pp.policy)
		group := types.Group{
			Number:  tg.Number,
			Name:    types.GroupName(tg.Number),
			Players: players,
			Matches: ExtractMatches(tg.Table, players, pp.policy),
		}
		pp.logger.Debug("read group table", map[string]interface{}{
			"source":  source,
			"group":   tg.Number,
			"layout":  layout,
			"players": len(group.Players),
			"matches": len(group.Matches),
		})
		groups = append(groups, group)
	}
	return groups
}

// fillFromOCR replaces table groups that yielded no players with the OCR
// group of the same number, when that one has players
func (pp *PDFParser) fillFromOCR(source string, groups []types.Group, text string) []types.Group {
	byNumber := make(map[int]types.Group)
	for _, g := range ExtractOCRGroups(text, pp.policy) {
		if _, dup := byNumber[g.Number]; !dup {
			byNumber[g.Number] = g
		}
	}

	for i, g := range groups {
		if len(g.Players) > 0 {
			continue
		}
		if replacement, ok := byNumber[g.Number]; ok && len(replacement.Players) > 0 {
			pp.logger.Info("recovered group from recognized text", map[string]interface{}{
				"source": source,
				"group":  g.Number,
			})
			groups[i] = replacement
		}
	}
	return groups
}

func hasEmptyGroup(groups []types.Group) bool {
	for _, g := range groups {
		if len(g.Players) == 0 {
			return true
		}
	}
	return false
}
