// Package interfaces defines the collaborator contracts used across the engine
package interfaces

import (
	"context"
	"time"

	"github.com/bttc/roundrobin/pkg/types"
)

// Fetcher retrieves the raw bytes behind a URL or file path
type Fetcher interface {
	// Fetch returns the document bytes for source
	Fetch(ctx context.Context, source string) ([]byte, error)
}

// OCREngine recovers text from a rendered PDF page
type OCREngine interface {
	// RecognizePage returns the text of the 1-based page of a PDF document
	RecognizePage(ctx context.Context, document []byte, page int) (string, error)
}

// Acquirer turns a source identifier into a classified raw document
type Acquirer interface {
	// Acquire fetches, classifies and extracts text/tables for source
	Acquire(ctx context.Context, source string) (*types.RawDocument, error)
}

// DocumentParser converts a raw document into the normalized model
type DocumentParser interface {
	// Parse extracts tournament metadata and groups from raw
	Parse(ctx context.Context, raw *types.RawDocument) (*types.ParsedDocument, error)
}

// LinkSource lists the results documents that can be imported
type LinkSource interface {
	// Scan returns the known tournament links, oldest first
	Scan(ctx context.Context) ([]types.TournamentLink, error)
}

// TournamentStore is the persistence collaborator consuming engine output
type TournamentStore interface {
	// SaveDocument upserts a validated document and returns the tournament ID
	SaveDocument(ctx context.Context, doc *types.ParsedDocument, sourceURL string) (string, error)

	// RecordFailure records a tournament row for an unsuccessful import
	RecordFailure(ctx context.Context, tournament types.Tournament) (string, error)

	// IsImported reports whether a tournament with groups exists for date
	IsImported(ctx context.Context, date time.Time) (bool, error)

	// ListUnsuccessful returns tournaments whose status is not success
	ListUnsuccessful(ctx context.Context) ([]types.Tournament, error)

	// Close releases the underlying connection
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	// Load loads configuration from a file
	Load(ctx context.Context, path string) error

	// Get retrieves a configuration value
	Get(key string) interface{}

	// Set sets a configuration value
	Set(key string, value interface{}) error

	// Save saves configuration to a file
	Save(ctx context.Context, path string) error

	// Watch watches for configuration changes
	Watch(ctx context.Context, callback func(key string, value interface{})) error
}

// Logger defines the interface for logging implementations
type Logger interface {
	// Debug logs debug level messages
	Debug(msg string, fields ...map[string]interface{})

	// Info logs info level messages
	Info(msg string, fields ...map[string]interface{})

	// Warn logs warning level messages
	Warn(msg string, fields ...map[string]interface{})

	// Error logs error level messages
	Error(msg string, err error, fields ...map[string]interface{})

	// Fatal logs fatal level messages and exits
	Fatal(msg string, err error, fields ...map[string]interface{})

	// WithFields returns a logger with additional fields
	WithFields(fields map[string]interface{}) Logger
}

// Metrics defines the interface for metrics collection
type Metrics interface {
	// Counter increments a counter metric
	Counter(name string, value float64, labels map[string]string)

	// Gauge sets a gauge metric
	Gauge(name string, value float64, labels map[string]string)

	// Histogram records a histogram metric
	Histogram(name string, value float64, labels map[string]string)

	// Timer records timing metrics
	Timer(name string, duration float64, labels map[string]string)
}
