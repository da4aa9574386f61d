package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundry-zero/jsoncheck/internal/position"
)

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "error", SeverityError.String())
	assert.Equal(t, "warning", SeverityWarning.String())
	assert.Equal(t, "severity(99)", Severity(99).String())
}

func TestSeverityMarshalJSON(t *testing.T) {
	data, err := json.Marshal(SeverityError)
	require.NoError(t, err)
	assert.Equal(t, `"error"`, string(data))

	var s Severity
	require.NoError(t, json.Unmarshal([]byte(`"warning"`), &s))
	assert.Equal(t, SeverityWarning, s)
	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &s))
}

func TestDiagnosticAt(t *testing.T) {
	src := []byte("{\n  \"port\": \"x\"\n}")
	ix := position.NewIndex(src)
	d := NewError(KeywordCode("type"), "bad").At(ix, position.Span{Start: 12, End: 15})

	require.NotNil(t, d.Location)
	assert.Equal(t, Location{Line: 2, Column: 11, Offset: 12, Length: 3}, *d.Location)
	span, ok := d.Span()
	require.True(t, ok)
	assert.Equal(t, position.Span{Start: 12, End: 15}, span)

	_, ok = NewError(CodeLoad, "x").Span()
	assert.False(t, ok)
}

func TestNewReportSummary(t *testing.T) {
	files := []FileResult{
		{Path: "a.json", Status: StatusValid},
		{Path: "b.json", Status: StatusInvalid, Diagnostics: []Diagnostic{NewError("schema(type)", "x"), NewError("schema(required)", "y")}},
		{Path: "c.json", Status: StatusSkipped},
		{Path: "d.json", Status: StatusToolError, Diagnostics: []Diagnostic{NewError(CodeLoad, "z")}},
	}
	r := NewReport(files, nil, 1500*time.Millisecond)

	assert.Equal(t, Summary{
		CheckedFiles: 3,
		ValidFiles:   1,
		InvalidFiles: 2,
		SkippedFiles: 1,
		Errors:       3,
		Duration:     1500 * time.Millisecond,
		HasToolError: true,
	}, r.Summary)
	assert.NotNil(t, r.Warnings)
	assert.False(t, r.Valid())
	assert.Equal(t, 2, r.ExitCode())
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     int
	}{
		{"empty", nil, 0},
		{"all valid", []Status{StatusValid, StatusValid}, 0},
		{"skipped only", []Status{StatusSkipped}, 0},
		{"one invalid", []Status{StatusValid, StatusInvalid}, 1},
		{"tool error wins", []Status{StatusInvalid, StatusToolError}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var files []FileResult
			for _, s := range tt.statuses {
				files = append(files, FileResult{Status: s})
			}
			assert.Equal(t, tt.want, NewReport(files, nil, 0).ExitCode())
		})
	}
}
