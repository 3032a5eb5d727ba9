package parsers

import (
	"context"
	"fmt"
	"sync"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/logger"
	"github.com/bttc/roundrobin/pkg/types"
)

// ParserFactory provides the parser for each document format
type ParserFactory struct {
	mu      sync.RWMutex
	parsers map[types.DocumentFormat]Parser
}

// NewParserFactory creates a factory with the HTML and PDF parsers registered
func NewParserFactory(policy config.Policy, log interfaces.Logger) *ParserFactory {
	if log == nil {
		log = logger.NewNopLogger()
	}
	factory := &ParserFactory{
		parsers: make(map[types.DocumentFormat]Parser),
	}
	factory.MustRegisterParser(types.FormatHTML, NewHTMLParser(policy, log))
	factory.MustRegisterParser(types.FormatPDF, NewPDFParser(policy, log))
	return factory
}

// MustRegisterParser is like RegisterParser but panics on error
func (pf *ParserFactory) MustRegisterParser(format types.DocumentFormat, parser Parser) {
	if err := pf.RegisterParser(format, parser); err != nil {
		panic(err)
	}
}

// RegisterParser registers a parser for a document format
func (pf *ParserFactory) RegisterParser(format types.DocumentFormat, parser Parser) error {
	if parser == nil {
		return fmt.Errorf("parser cannot be nil")
	}
	if !IsValidParserType(ParserType(format)) {
		return fmt.Errorf("invalid parser type: %s", format)
	}

	pf.mu.Lock()
	defer pf.mu.Unlock()
	pf.parsers[format] = parser
	return nil
}

// ForFormat retrieves the parser for a document format
func (pf *ParserFactory) ForFormat(format types.DocumentFormat) (Parser, error) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()

	parser, ok := pf.parsers[format]
	if !ok {
		return nil, errors.NewUnsupportedFormatError(string(format))
	}
	return parser, nil
}

// Parse dispatches raw to the parser of its format
func (pf *ParserFactory) Parse(ctx context.Context, raw *types.RawDocument) (*types.ParsedDocument, error) {
	if raw == nil {
		return nil, errors.NewParsingError("no document to parse", nil)
	}
	parser, err := pf.ForFormat(raw.Format)
	if err != nil {
		return nil, err
	}
	return parser.Parse(ctx, raw)
}

// ParseHTMLBytes parses a bracket page held in memory
func (pf *ParserFactory) ParseHTMLBytes(ctx context.Context, data []byte, source string) (*types.ParsedDocument, error) {
	return pf.Parse(ctx, &types.RawDocument{Format: types.FormatHTML, Source: source, HTML: data})
}

// ParseTables parses a PDF whose tables and text were extracted elsewhere
func (pf *ParserFactory) ParseTables(ctx context.Context, source, text string, tables [][][]string) (*types.ParsedDocument, error) {
	return pf.Parse(ctx, &types.RawDocument{Format: types.FormatPDF, Source: source, Text: text, Tables: tables})
}

var _ interfaces.DocumentParser = (*ParserFactory)(nil)
