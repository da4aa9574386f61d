package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// FormatText returns the human-readable rendering of the report. Each
// anchored diagnostic is followed by the offending source line with the span
// underlined; a summary is appended at the end.
func FormatText(r *Report) string {
	var b strings.Builder

	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "warning: %s: %s\n", w.Code, w.Message)
	}

	for i := range r.Files {
		f := &r.Files[i]
		if f.Status == StatusSkipped {
			continue
		}
		for _, d := range f.Diagnostics {
			writeDiagnostic(&b, f, d)
		}
	}

	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	writeSummary(&b, r.Summary)
	return b.String()
}

func writeDiagnostic(b *strings.Builder, f *FileResult, d Diagnostic) {
	if d.Location == nil {
		fmt.Fprintf(b, "%s: %s: %s\n", f.Path, d.Code, d.Message)
	} else {
		fmt.Fprintf(b, "%s:%d:%d: %s: %s\n", f.Path, d.Location.Line, d.Location.Column, d.Code, d.Message)
		writeSnippet(b, f.Source, d)
	}
	if d.Help != "" {
		fmt.Fprintf(b, "  help: %s\n", d.Help)
	}
}

// writeSnippet prints the first line of the span with a caret underline.
func writeSnippet(b *strings.Builder, src []byte, d Diagnostic) {
	loc := d.Location
	if loc.Offset > len(src) {
		return
	}
	start := bytes.LastIndexByte(src[:loc.Offset], '\n') + 1
	end := len(src)
	if i := bytes.IndexByte(src[start:], '\n'); i >= 0 {
		end = start + i
	}
	line := strings.TrimRight(string(src[start:end]), "\r")

	gutter := fmt.Sprintf("%d", loc.Line)
	pad := strings.Repeat(" ", len(gutter))
	fmt.Fprintf(b, " %s | %s\n", gutter, line)

	// Keep tabs so the caret lines up under the source text.
	var indent strings.Builder
	for _, r := range string(src[start:loc.Offset]) {
		if r == '\t' {
			indent.WriteByte('\t')
		} else {
			indent.WriteByte(' ')
		}
	}
	spanEnd := min(loc.Offset+loc.Length, start+len(line))
	width := 1
	if spanEnd > loc.Offset {
		width = utf8.RuneCount(src[loc.Offset:spanEnd])
	}
	fmt.Fprintf(b, " %s | %s%s", pad, indent.String(), strings.Repeat("^", width))
	if d.Label != "" {
		fmt.Fprintf(b, " %s", d.Label)
	}
	b.WriteByte('\n')
}

func writeSummary(b *strings.Builder, s Summary) {
	dur := FormatDuration(s.Duration)
	if s.InvalidFiles == 0 {
		if s.CheckedFiles == 0 {
			fmt.Fprintf(b, "✓ No files checked (%s)\n", dur)
		} else {
			fmt.Fprintf(b, "✓ All %s valid (%s)\n", plural(s.CheckedFiles, "file", "files"), dur)
		}
		if s.SkippedFiles > 0 {
			fmt.Fprintf(b, "  Skipped %s (no schema)\n", plural(s.SkippedFiles, "file", "files"))
		}
		return
	}
	fmt.Fprintf(b, "✗ Found %s in %s\n", plural(s.Errors, "error", "errors"), plural(s.InvalidFiles, "file", "files"))
	fmt.Fprintf(b, "  Checked %s", plural(s.CheckedFiles, "file", "files"))
	if s.SkippedFiles > 0 {
		fmt.Fprintf(b, ", skipped %s", plural(s.SkippedFiles, "file", "files"))
	}
	fmt.Fprintf(b, " (%s)\n", dur)
}

// FormatDuration renders d as "42ms", "1.5s" or "12s".
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	switch {
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case d < 10*time.Second:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%ds", int64(d.Round(time.Second)/time.Second))
	}
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, pluralForm)
}
