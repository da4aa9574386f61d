// Package report defines the diagnostic model produced by validation and the
// per-run report used to collect and present results.
package report

import (
	"fmt"
	"time"

	"github.com/foundry-zero/jsoncheck/internal/position"
)

// Severity indicates whether a diagnostic is an error or a warning.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

// String returns "error" or "warning".
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler so JSON output uses the string form.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON round-tripping.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Diagnostic codes that are not derived from a schema keyword.
const (
	CodeSyntax   = "parse(syntax)"
	CodeEmpty    = "parse(empty)"
	CodeNoSchema = "no-schema"
	CodeLoad     = "schema(load)"
	CodeCompile  = "schema(compile)"
	CodeRead     = "io(read)"
)

// KeywordCode returns the code for a violation of a schema keyword.
func KeywordCode(keyword string) string {
	return "schema(" + keyword + ")"
}

// Location is the resolved source position of a diagnostic. Line and Column
// are 1-based; Column counts bytes. Offset and Length give the byte span.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Offset int `json:"offset"`
	Length int `json:"length"`
}

// Span returns the byte range the location covers.
func (l Location) Span() position.Span {
	return position.Span{Start: l.Offset, End: l.Offset + l.Length}
}

// Diagnostic is a single problem found in a file.
type Diagnostic struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	Location   *Location `json:"location,omitempty"`
	Label      string    `json:"-"`
	Help       string    `json:"-"`
	SchemaPath string    `json:"schema_path,omitempty"`
}

// NewError creates an unanchored error-severity Diagnostic.
func NewError(code, message string) Diagnostic {
	return Diagnostic{Code: code, Message: message, Severity: SeverityError}
}

// At returns a copy of d anchored to span s.
func (d Diagnostic) At(ix *position.Index, s position.Span) Diagnostic {
	line, col := ix.LineCol(s.Start)
	d.Location = &Location{Line: line, Column: col, Offset: s.Start, Length: s.Len()}
	return d
}

// Span returns the diagnostic's byte range, if it is anchored.
func (d Diagnostic) Span() (position.Span, bool) {
	if d.Location == nil {
		return position.Span{}, false
	}
	return d.Location.Span(), true
}

// Warning is a run-level notice not tied to a location in a file.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Status is the outcome of checking one file.
type Status int

const (
	StatusValid Status = iota
	StatusInvalid
	StatusSkipped
	StatusToolError
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusSkipped:
		return "skipped"
	case StatusToolError:
		return "tool_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// FileResult is the outcome of checking a single file.
type FileResult struct {
	Path        string
	Status      Status
	Diagnostics []Diagnostic
	// Source is the text the diagnostics' locations refer to (BOM removed).
	Source []byte

	// Provenance, reported in verbose mode.
	Schema    string
	SchemaVia string
	Cache     string
	Duration  time.Duration
}

// Valid reports whether the file passed (skipped files count as passing).
func (r *FileResult) Valid() bool {
	return r.Status == StatusValid || r.Status == StatusSkipped
}

// Summary holds aggregate counts for a run.
type Summary struct {
	CheckedFiles int
	ValidFiles   int
	InvalidFiles int
	SkippedFiles int
	Errors       int
	Warnings     int
	Duration     time.Duration
	HasToolError bool
}

// Report collects every file result and run-level warning from one run.
type Report struct {
	Files    []FileResult
	Warnings []Warning
	Summary  Summary
}

// NewReport builds a Report and computes its summary. Tool errors count as
// invalid files.
func NewReport(files []FileResult, warnings []Warning, elapsed time.Duration) *Report {
	r := &Report{Files: files, Warnings: warnings}
	if r.Warnings == nil {
		r.Warnings = []Warning{}
	}
	s := Summary{Warnings: len(r.Warnings), Duration: elapsed}
	for _, f := range files {
		s.Errors += len(f.Diagnostics)
		switch f.Status {
		case StatusSkipped:
			s.SkippedFiles++
			continue
		case StatusValid:
			s.ValidFiles++
		case StatusInvalid:
			s.InvalidFiles++
		case StatusToolError:
			s.InvalidFiles++
			s.HasToolError = true
		}
		s.CheckedFiles++
	}
	r.Summary = s
	return r
}

// HasErrors returns true if any checked file failed.
func (r *Report) HasErrors() bool {
	return r.Summary.InvalidFiles > 0
}

// Valid reports whether the run as a whole passed.
func (r *Report) Valid() bool {
	return !r.HasErrors() && !r.Summary.HasToolError
}

// ExitCode maps the run outcome to the process exit status: 2 when any tool
// error occurred, 1 when any file is invalid, 0 otherwise.
func (r *Report) ExitCode() int {
	switch {
	case r.Summary.HasToolError:
		return 2
	case r.HasErrors():
		return 1
	default:
		return 0
	}
}
