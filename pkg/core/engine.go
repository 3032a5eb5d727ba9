// Package core wires acquisition, parsing, validation and persistence into
// the import pipeline.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/bttc/roundrobin/pkg/config"
	"github.com/bttc/roundrobin/pkg/errors"
	"github.com/bttc/roundrobin/pkg/interfaces"
	"github.com/bttc/roundrobin/pkg/logger"
	"github.com/bttc/roundrobin/pkg/metrics"
	"github.com/bttc/roundrobin/pkg/types"
	"github.com/bttc/roundrobin/pkg/validator"
)

// Outcome is the result of running one source through the engine
type Outcome struct {
	Source     string                `json:"source" yaml:"source"`
	Status     types.ParsingStatus   `json:"status" yaml:"status"`
	Document   *types.ParsedDocument `json:"document,omitempty" yaml:"document,omitempty"`
	Validation validator.Result      `json:"validation" yaml:"validation"`
	Err        error                 `json:"-" yaml:"-"`
}

// OK reports whether the document parsed and validated
func (o Outcome) OK() bool {
	return o.Status == types.ParsingStatusSuccess
}

// Date returns the tournament date recovered from the document, if any
func (o Outcome) Date() *time.Time {
	if o.Document == nil || !o.Document.Tournament.HasDate() {
		return nil
	}
	return o.Document.Tournament.Date
}

// Engine runs acquire, parse and validate for a single source
type Engine struct {
	mu       sync.RWMutex
	acquirer interfaces.Acquirer
	parser   interfaces.DocumentParser
	policy   config.Policy
	logger   interfaces.Logger
	metrics  interfaces.Metrics
}

// NewEngine creates a new engine
func NewEngine(acquirer interfaces.Acquirer, parser interfaces.DocumentParser, policy config.Policy, log interfaces.Logger, m interfaces.Metrics) *Engine {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if m == nil {
		m = metrics.NewNoOpMetrics()
	}
	return &Engine{
		acquirer: acquirer,
		parser:   parser,
		policy:   policy,
		logger:   log,
		metrics:  m,
	}
}

// Reconfigure swaps the policy and the parser built for it
func (e *Engine) Reconfigure(policy config.Policy, parser interfaces.DocumentParser) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policy = policy
	if parser != nil {
		e.parser = parser
	}
}

// Policy returns the policy currently in effect
func (e *Engine) Policy() config.Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.policy
}

// Process acquires, parses and validates source
func (e *Engine) Process(ctx context.Context, source string) Outcome {
	start := time.Now()
	e.mu.RLock()
	parser, policy := e.parser, e.policy
	e.mu.RUnlock()

	outcome := e.process(ctx, source, parser, policy)

	labels := map[string]string{"status": string(outcome.Status)}
	e.metrics.Counter(metrics.DocumentsProcessed, 1, labels)
	e.metrics.Timer(metrics.ParseDuration, time.Since(start).Seconds(), labels)
	if outcome.Document != nil {
		e.metrics.Counter(metrics.GroupsExtracted, float64(len(outcome.Document.Groups)), nil)
		e.metrics.Counter(metrics.MatchesExtracted, float64(outcome.Document.MatchCount()), nil)
	}
	return outcome
}

func (e *Engine) process(ctx context.Context, source string, parser interfaces.DocumentParser, policy config.Policy) Outcome {
	outcome := Outcome{Source: source}

	raw, err := e.acquirer.Acquire(ctx, source)
	if err != nil {
		outcome.Status = errors.StatusFor(err)
		outcome.Err = err
		e.logger.Warn("failed to acquire document", map[string]interface{}{
			"source": source,
			"error":  err.Error(),
		})
		return outcome
	}

	doc, err := parser.Parse(ctx, raw)
	if err != nil {
		outcome.Status = errors.StatusFor(err)
		outcome.Err = err
		e.logger.Warn("failed to parse document", map[string]interface{}{
			"source": source,
			"format": string(raw.Format),
			"error":  err.Error(),
		})
		return outcome
	}
	outcome.Document = doc

	outcome.Validation = validator.Validate(doc, policy)
	if !outcome.Validation.IsValid {
		outcome.Status = types.ParsingStatusValidationFailed
		outcome.Err = outcome.Validation.Err()
		e.logger.Warn("document failed validation", map[string]interface{}{
			"source": source,
			"errors": len(outcome.Validation.Errors),
			"first":  outcome.Validation.FirstError(),
		})
		return outcome
	}

	outcome.Status = types.ParsingStatusSuccess
	e.logger.Info("processed document", map[string]interface{}{
		"source":   source,
		"date":     doc.Tournament.DateString,
		"groups":   len(doc.Groups),
		"matches":  doc.MatchCount(),
		"warnings": len(outcome.Validation.Warnings),
	})
	return outcome
}
