package report

import (
	"github.com/goccy/go-json"
)

// OutputVersion is the version of the structured output envelope.
const OutputVersion = 1

type jsonOutput struct {
	Version  int        `json:"version"`
	Valid    bool       `json:"valid"`
	Warnings []Warning  `json:"warnings"`
	Files    []jsonFile `json:"files"`
	Summary  jsonSum    `json:"summary"`
}

type jsonFile struct {
	Path       string       `json:"path"`
	Valid      bool         `json:"valid"`
	Schema     string       `json:"schema,omitempty"`
	SchemaVia  string       `json:"schema_via,omitempty"`
	Cache      string       `json:"cache,omitempty"`
	DurationMS *int64       `json:"duration_ms,omitempty"`
	Errors     []Diagnostic `json:"errors"`
}

type jsonSum struct {
	CheckedFiles int   `json:"checked_files"`
	ValidFiles   int   `json:"valid_files"`
	InvalidFiles int   `json:"invalid_files"`
	SkippedFiles int   `json:"skipped_files"`
	Errors       int   `json:"errors"`
	Warnings     int   `json:"warnings"`
	DurationMS   int64 `json:"duration_ms"`
}

// FormatJSON returns the report as the indented, versioned JSON envelope.
// Skipped files are left out of the file list. Per-file provenance (schema,
// schema_via, cache, duration_ms) is only included when verbose is set.
func FormatJSON(r *Report, verbose bool) ([]byte, error) {
	out := jsonOutput{
		Version:  OutputVersion,
		Valid:    r.Valid(),
		Warnings: r.Warnings,
		Files:    []jsonFile{},
		Summary: jsonSum{
			CheckedFiles: r.Summary.CheckedFiles,
			ValidFiles:   r.Summary.ValidFiles,
			InvalidFiles: r.Summary.InvalidFiles,
			SkippedFiles: r.Summary.SkippedFiles,
			Errors:       r.Summary.Errors,
			Warnings:     r.Summary.Warnings,
			DurationMS:   r.Summary.Duration.Milliseconds(),
		},
	}
	if out.Warnings == nil {
		out.Warnings = []Warning{}
	}
	for i := range r.Files {
		f := &r.Files[i]
		if f.Status == StatusSkipped {
			continue
		}
		jf := jsonFile{Path: f.Path, Valid: f.Valid(), Errors: f.Diagnostics}
		if jf.Errors == nil {
			jf.Errors = []Diagnostic{}
		}
		if verbose {
			ms := f.Duration.Milliseconds()
			jf.Schema, jf.SchemaVia, jf.Cache, jf.DurationMS = f.Schema, f.SchemaVia, f.Cache, &ms
		}
		out.Files = append(out.Files, jf)
	}
	return json.MarshalIndent(out, "", "  ")
}
