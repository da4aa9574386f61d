// Package checker validates JSON documents against their schemas and maps
// violations to positioned diagnostics, for single files and whole batches.
package checker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/foundry-zero/jsoncheck/internal/diskcache"
	"github.com/foundry-zero/jsoncheck/internal/jsonc"
	"github.com/foundry-zero/jsoncheck/internal/metrics"
	"github.com/foundry-zero/jsoncheck/internal/position"
	"github.com/foundry-zero/jsoncheck/internal/report"
	"github.com/foundry-zero/jsoncheck/internal/schema"
)

const noSchemaHelp = `Add a "$schema" field to the file, configure a schema mapping in jsoncheck.json, or use --schema.`

// CheckOptions controls how a document's schema is chosen and how a missing
// schema is treated.
type CheckOptions struct {
	Override schema.Source // Schema from --schema or the editor; wins over everything.
	Mapper   schema.Mapper // Config mappings; may be nil.
	Strict   bool          // Report documents without a schema as invalid.
	NoCache  bool          // Bypass the disk cache for remote schemas.
}

// Result is everything learned from checking one document.
type Result struct {
	File     report.FileResult
	Warnings []report.Warning
	// Document is the parsed text; nil when it did not parse.
	Document *jsonc.Document
	// Resolution is the schema chosen, if any.
	Resolution schema.Resolution
}

// Checker validates documents using a shared compiled-schema cache.
type Checker struct {
	cache   *schema.Cache
	metrics *metrics.Recorder
	log     *zap.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithMetrics records validation durations on m.
func WithMetrics(m *metrics.Recorder) Option { return func(c *Checker) { c.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Checker) { c.log = l } }

// NewChecker returns a Checker backed by cache.
func NewChecker(cache *schema.Cache, opts ...Option) *Checker {
	c := &Checker{cache: cache, log: zap.NewNop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Cache returns the compiled-schema cache.
func (c *Checker) Cache() *schema.Cache { return c.cache }

// Check parses src (the contents of path) and validates it. It never fails:
// every problem becomes part of the result.
func (c *Checker) Check(ctx context.Context, path string, src []byte, opts CheckOptions) Result {
	start := time.Now()
	res := c.check(ctx, path, src, opts)
	res.File.Duration = time.Since(start)
	c.metrics.ObserveValidation(res.File.Duration)
	c.log.Debug("checked file",
		zap.String("path", path),
		zap.Stringer("status", res.File.Status),
		zap.String("schema", res.File.Schema),
		zap.String("via", res.File.SchemaVia),
		zap.String("cache", res.File.Cache),
		zap.Duration("duration", res.File.Duration))
	return res
}

func (c *Checker) check(ctx context.Context, path string, src []byte, opts CheckOptions) Result {
	res := Result{File: report.FileResult{Path: path}}

	doc, err := jsonc.Parse(src)
	if err != nil {
		res.File.Source = jsonc.StripBOM(src)
		res.File.Status = report.StatusInvalid
		res.File.Diagnostics = []report.Diagnostic{parseDiagnostic(res.File.Source, err)}
		return res
	}
	res.Document = doc
	res.File.Source = doc.Source

	resolved, ok := schema.Resolve(path, opts.Override, doc.Value, opts.Mapper)
	if !ok {
		if opts.Strict {
			d := report.NewError(report.CodeNoSchema, "no schema found")
			d.Help = noSchemaHelp
			res.File.Status = report.StatusInvalid
			res.File.Diagnostics = []report.Diagnostic{d}
		} else {
			res.File.Status = report.StatusSkipped
		}
		return res
	}
	res.Resolution = resolved
	res.File.Schema = resolved.Ref
	res.File.SchemaVia = string(resolved.Via)

	compiled, warnings, outcome, err := c.cache.GetOrCompile(ctx, resolved.Source, opts.NoCache)
	res.Warnings = warnings
	if outcome != diskcache.None {
		res.File.Cache = outcome.String()
	}
	if err != nil {
		res.File.Status = report.StatusToolError
		res.File.Diagnostics = []report.Diagnostic{schemaDiagnostic(doc, resolved, err)}
		return res
	}

	res.File.Diagnostics = Diagnose(compiled, doc)
	if len(res.File.Diagnostics) > 0 {
		res.File.Status = report.StatusInvalid
	}
	return res
}

func parseDiagnostic(src []byte, err error) report.Diagnostic {
	if errors.Is(err, jsonc.ErrEmpty) {
		return report.NewError(report.CodeEmpty, jsonc.ErrEmpty.Error())
	}
	d := report.NewError(report.CodeSyntax, jsonc.Describe(err))
	d.Label = "syntax error"
	var se *jsonc.SyntaxError
	if errors.As(err, &se) && se.Offset >= 0 {
		start := min(se.Offset, len(src))
		d = d.At(position.NewIndex(src), position.Span{Start: start, End: min(start+1, len(src))})
	}
	return d
}

// schemaDiagnostic reports a schema that failed to load or compile. When the
// schema was named by the document's own "$schema", the diagnostic points
// at that value.
func schemaDiagnostic(doc *jsonc.Document, resolved schema.Resolution, err error) report.Diagnostic {
	code := report.CodeLoad
	var se *schema.Error
	if errors.As(err, &se) {
		code = se.Code()
	}
	d := report.NewError(code, err.Error())
	if resolved.Via == schema.ViaInline {
		if span, ok := position.ValueSpan(&doc.Root, []string{"$schema"}); ok {
			d = d.At(doc.Index, span)
		}
	}
	return d
}
