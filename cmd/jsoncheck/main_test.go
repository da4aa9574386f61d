package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const portSchema = `{
  "type": "object",
  "properties": {"port": {"type": "integer"}},
  "required": ["port"]
}`

// project lays out files under a fresh directory, makes it the working
// directory and points the schema cache at a private location.
func project(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	t.Setenv("JSONCHECK_CACHE_DIR", filepath.Join(t.TempDir(), "cache"))
	chdir(t, dir)
	return dir
}

func runCmd(args ...string) (code int, stdout, stderr string) {
	var out, errb bytes.Buffer
	code = run(args, &out, &errb)
	return code, out.String(), errb.String()
}

func TestRunVersion(t *testing.T) {
	code, out, _ := runCmd("--version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, version)
}

func TestCheckValidFile(t *testing.T) {
	project(t, map[string]string{
		"schemas/port.json": portSchema,
		"app.json":          `{"$schema": "./schemas/port.json", "port": 8080}`,
	})
	code, out, errOut := runCmd("check", "app.json")
	assert.Equal(t, 0, code, errOut)
	assert.Empty(t, out, "human output goes to stderr")
	assert.Contains(t, errOut, "All 1 file valid")
}

func TestCheckInvalidFile(t *testing.T) {
	project(t, map[string]string{
		"schemas/port.json": portSchema,
		"app.json":          "{\n  \"$schema\": \"./schemas/port.json\",\n  \"port\": \"x\"\n}",
	})
	code, _, errOut := runCmd("check", "app.json")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "app.json:3:11: schema(type)")
	assert.Contains(t, errOut, "Found 1 error in 1 file")
}

func TestCheckNonexistentFile(t *testing.T) {
	project(t, nil)
	code, _, errOut := runCmd("check", "missing.json")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "io(read)")
}

func TestCheckSchemaFlag(t *testing.T) {
	project(t, map[string]string{
		"port.schema": portSchema,
		"a.json":      `{"port": 1}`,
		"b.json":      `{}`,
	})
	code, _, errOut := runCmd("check", "--schema", "port.schema", "a.json", "b.json")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "b.json:1:1: schema(required)")
	assert.NotContains(t, errOut, "a.json:")
}

func TestCheckJSONOutput(t *testing.T) {
	project(t, map[string]string{
		"schemas/port.json": portSchema,
		"good.json":         `{"$schema": "./schemas/port.json", "port": 1}`,
		"bad.json":          `{"$schema": "./schemas/port.json", "port": true}`,
		"plain.json":        `{}`,
	})
	code, out, _ := runCmd("check", "--format", "json", "good.json", "bad.json", "plain.json")
	assert.Equal(t, 1, code)

	var got struct {
		Version int  `json:"version"`
		Valid   bool `json:"valid"`
		Files   []struct {
			Path   string            `json:"path"`
			Valid  bool              `json:"valid"`
			Schema string            `json:"schema"`
			Errors []json.RawMessage `json:"errors"`
		} `json:"files"`
		Summary struct {
			CheckedFiles int `json:"checked_files"`
			SkippedFiles int `json:"skipped_files"`
			Errors       int `json:"errors"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 1, got.Version)
	assert.False(t, got.Valid)
	require.Len(t, got.Files, 2, "skipped files are left out")
	assert.Equal(t, "good.json", got.Files[0].Path)
	assert.True(t, got.Files[0].Valid)
	assert.Empty(t, got.Files[0].Schema, "provenance needs --verbose")
	assert.Len(t, got.Files[1].Errors, 1)
	assert.Equal(t, 2, got.Summary.CheckedFiles)
	assert.Equal(t, 1, got.Summary.SkippedFiles)
	assert.Equal(t, 1, got.Summary.Errors)
}

func TestCheckVerboseJSONIncludesProvenance(t *testing.T) {
	project(t, map[string]string{
		"schemas/port.json": portSchema,
		"good.json":         `{"$schema": "./schemas/port.json", "port": 1}`,
	})
	code, out, errOut := runCmd("check", "-v", "-f", "json", "good.json")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, `"schema_via": "inline $schema"`)
	assert.Contains(t, out, `"duration_ms"`)
	assert.Contains(t, errOut, "starting check", "debug records go to stderr")
}

func TestCheckDiscoversWithConfig(t *testing.T) {
	project(t, map[string]string{
		"jsoncheck.json": `{
  // JSONC is accepted here too
  "files": ["data/**/*.json"],
  "schemas": [{"path": "schemas/port.json", "files": ["data/services/*.json"]}],
}`,
		"schemas/port.json":      portSchema,
		"data/services/api.json": `{"port": 80}`,
		"data/services/db.json":  `{"port": "5432"}`,
		"data/notes.json":        `{"anything": true}`,
		"data/ignored/bad.json":  `{"port": "x"}`,
		".gitignore":             "data/ignored/\n",
	})
	code, out, errOut := runCmd("check", "-f", "json")
	assert.Equal(t, 1, code, errOut)
	assert.Contains(t, out, "db.json")
	assert.NotContains(t, out, "ignored")
	assert.Contains(t, out, `"checked_files": 2`)
	assert.Contains(t, out, `"skipped_files": 1`)
}

func TestCheckInlineSchemaWinsOverConfigMapping(t *testing.T) {
	project(t, map[string]string{
		"jsoncheck.json":      `{"schemas": [{"path": "schemas/strict.json", "files": ["*.json"]}]}`,
		"schemas/port.json":   portSchema,
		"schemas/strict.json": `{"required": ["other"]}`,
		"a.json":              `{"$schema": "./schemas/port.json", "port": 1}`,
	})
	code, _, errOut := runCmd("check", "a.json")
	assert.Equal(t, 0, code, errOut)

	_, out, _ := runCmd("check", "--help")
	assert.Contains(t, out, `then its "$schema" key, then the first matching config mapping`)
}

func TestCheckDirectoryArgument(t *testing.T) {
	project(t, map[string]string{
		"schemas/port.json": portSchema,
		"conf/a.json":       `{"$schema": "../schemas/port.json", "port": 1}`,
		"conf/b.jsonc":      "// comment\n{\"$schema\": \"../schemas/port.json\", \"port\": 2}",
		"other/c.json":      `{"port": "nope"}`,
	})
	code, _, errOut := runCmd("check", "conf")
	assert.Equal(t, 0, code, errOut)
	assert.Contains(t, errOut, "All 2 files valid")
}

func TestCheckStrict(t *testing.T) {
	project(t, map[string]string{"plain.json": `{"a": 1}`})

	code, _, _ := runCmd("check", "plain.json")
	assert.Equal(t, 0, code)

	code, _, errOut := runCmd("check", "--strict", "plain.json")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no-schema")
}

func TestCheckStrictFromConfig(t *testing.T) {
	project(t, map[string]string{
		"jsoncheck.json": `{"strict": true}`,
		"plain.json":     `{"a": 1}`,
	})
	code, _, _ := runCmd("check", "plain.json")
	assert.Equal(t, 1, code)
}

func TestCheckBrokenDiscoveredConfigFallsBackToDefaults(t *testing.T) {
	project(t, map[string]string{
		"jsoncheck.json":    `{"files": "not-a-list"}`,
		"schemas/port.json": portSchema,
		"a.json":            `{"$schema": "./schemas/port.json", "port": 1}`,
	})
	code, _, errOut := runCmd("check", "a.json")
	assert.Equal(t, 0, code, errOut)
	assert.Contains(t, errOut, "warning: config: ignoring config, using defaults")
	assert.Contains(t, errOut, "All 1 file valid")

	code, out, _ := runCmd("check", "-f", "json", "a.json")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, `"code": "config"`)
}

func TestCheckBrokenExplicitConfig(t *testing.T) {
	project(t, map[string]string{
		"jsoncheck.json": `{"files": "not-a-list"}`,
		"a.json":         `{}`,
	})
	code, _, errOut := runCmd("check", "--config", "jsoncheck.json", "a.json")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "failed to load config")
}

func TestCheckExplicitConfigMissing(t *testing.T) {
	project(t, map[string]string{"a.json": `{}`})
	code, _, errOut := runCmd("check", "--config", "nope/jsoncheck.json", "a.json")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "failed to load config")
}

func TestCheckNoFiles(t *testing.T) {
	project(t, map[string]string{"README.md": "# nothing to see"})
	code, out, errOut := runCmd("check")
	assert.Equal(t, 0, code)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "no files to check")
}

func TestCheckRejectsBadFlags(t *testing.T) {
	project(t, map[string]string{"a.json": `{}`})
	for _, args := range [][]string{
		{"check", "--format", "xml", "a.json"},
		{"check", "--jobs", "0", "a.json"},
		{"check", "--jobs", "257", "a.json"},
		{"check", "--no-such-flag"},
	} {
		code, _, errOut := runCmd(args...)
		assert.Equal(t, 2, code, "%v", args)
		assert.Contains(t, errOut, "error:", "%v", args)
	}
}

func TestConfigPrint(t *testing.T) {
	project(t, map[string]string{
		"jsoncheck.json": `{"files": ["*.json"], "schemas": [{"url": "https://example.com/s.json", "files": ["a.json"]}]}`,
	})

	code, out, _ := runCmd("config", "print")
	require.Equal(t, 0, code)
	var asJSON map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &asJSON))
	assert.Equal(t, []any{"*.json"}, asJSON["files"])

	code, out, _ = runCmd("config", "print", "--format", "yaml")
	require.Equal(t, 0, code)
	var asYAML map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &asYAML))
	schemas, ok := asYAML["schemas"].([]any)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/s.json", schemas[0].(map[string]any)["url"])
}

func TestConfigPrintDefaults(t *testing.T) {
	project(t, nil)
	code, out, _ := runCmd("config", "print")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "**/*.jsonc")
}

func TestConfigSchema(t *testing.T) {
	project(t, nil)
	code, out, _ := runCmd("config", "schema")
	require.Equal(t, 0, code)
	assert.True(t, json.Valid([]byte(out)))
	assert.Contains(t, out, `"schemas"`)
}

func TestCacheCommands(t *testing.T) {
	project(t, nil)
	dir := os.Getenv("JSONCHECK_CACHE_DIR")

	code, out, _ := runCmd("cache", "dir")
	assert.Equal(t, 0, code)
	assert.Equal(t, dir+"\n", out)

	code, out, _ = runCmd("cache", "list")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "no cached schemas")

	code, out, _ = runCmd("cache", "clear")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "already empty")

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.meta"), []byte("not json"), 0o644))

	code, _, errOut := runCmd("cache", "list")
	assert.Equal(t, 0, code)
	assert.Contains(t, errOut, "skipped 1")

	code, out, _ = runCmd("cache", "clear")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "cleared cache")
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestCompletions(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		code, out, _ := runCmd("completions", shell)
		assert.Equal(t, 0, code, shell)
		assert.True(t, strings.Contains(out, "jsoncheck"), shell)
	}
	code, _, _ := runCmd("completions", "tcsh")
	assert.Equal(t, 2, code)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "2.0 KB", formatSize(2048))
	assert.Equal(t, "1.5 MB", formatSize(3*1024*1024/2))
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
