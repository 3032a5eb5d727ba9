// Package readers acquires results documents: it fetches bytes from the web
// or disk, classifies the format and recovers the text and tables the parsers
// work from.
package readers

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/logger"
	"github.com/bttc/roundrobin/pkg/types"
)

var pdfMagic = []byte("%PDF-")

// htmlMarkers are the lower-cased prefixes that identify markup when the
// source has no useful extension
var htmlMarkers = [][]byte{[]byte("<!doctype"), []byte("<html"), []byte("<div"), []byte("<head"), []byte("<body")}

// DetectFormat classifies a document by magic bytes, then extension, then
// markup sniffing
func DetectFormat(source string, data []byte) (types.DocumentFormat, error) {
	if bytes.HasPrefix(data, pdfMagic) {
		return types.FormatPDF, nil
	}

	path := source
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return types.FormatPDF, nil
	case ".html", ".htm":
		return types.FormatHTML, nil
	}

	head := bytes.ToLower(bytes.TrimSpace(data[:min(len(data), 512)]))
	for _, marker := range htmlMarkers {
		if bytes.Contains(head, marker) {
			return types.FormatHTML, nil
		}
	}
	if strings.Contains(strings.ToLower(path), "/results/rr_results_") {
		return types.FormatHTML, nil
	}
	return "", errors.NewUnsupportedFormatError(source)
}

// IsRemote reports whether source is an http(s) URL
func IsRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// FileFetcher reads documents from the local filesystem
type FileFetcher struct{}

// NewFileFetcher creates a new file fetcher
func NewFileFetcher() *FileFetcher {
	return &FileFetcher{}
}

// Fetch reads the file at source; a file:// prefix is accepted
func (ff *FileFetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(source, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewFetchError(source, err)
	}
	return data, nil
}

// Acquirer fetches a source and turns it into a RawDocument
type Acquirer struct {
	remote    interfaces.Fetcher
	local     interfaces.Fetcher
	extractor *PDFExtractor
	logger    interfaces.Logger
}

// NewAcquirer creates an acquirer. remote may be nil when only local files
// are read.
func NewAcquirer(remote interfaces.Fetcher, extractor *PDFExtractor, log interfaces.Logger) *Acquirer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Acquirer{
		remote:    remote,
		local:     NewFileFetcher(),
		extractor: extractor,
		logger:    log,
	}
}

// Acquire fetches, classifies and extracts source
func (a *Acquirer) Acquire(ctx context.Context, source string) (*types.RawDocument, error) {
	fetcher := a.local
	if IsRemote(source) {
		if a.remote == nil {
			return nil, errors.NewFetchError(source, errors.NewInternalError("no remote fetcher configured", nil))
		}
		fetcher = a.remote
	}

	data, err := fetcher.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	return a.FromBytes(ctx, source, data)
}

// FromBytes classifies and extracts a document already held in memory
func (a *Acquirer) FromBytes(ctx context.Context, source string, data []byte) (*types.RawDocument, error) {
	format, err := DetectFormat(source, data)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("acquired document", map[string]interface{}{
		"source": source,
		"format": format,
		"bytes":  len(data),
	})

	if format == types.FormatHTML {
		return &types.RawDocument{Format: types.FormatHTML, Source: source, HTML: data}, nil
	}
	if a.extractor == nil {
		return nil, errors.NewUnsupportedFormatError(source)
	}
	return a.extractor.Extract(ctx, source, data)
}

var (
	_ interfaces.Fetcher  = (*FileFetcher)(nil)
	_ interfaces.Acquirer = (*Acquirer)(nil)
)
