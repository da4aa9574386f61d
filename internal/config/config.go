// Package config loads the project configuration file, maps documents to
// schemas, and discovers the files a project wants checked.
package config

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/foundry-zero/jsoncheck/internal/jsonc"
	"github.com/foundry-zero/jsoncheck/internal/schema"
)

// FileName is the name of the project configuration file.
const FileName = "jsoncheck.json"

//go:embed all:schemas
var schemaFS embed.FS

const schemaFile = "schemas/config.schema.json"

// configSchemaID is absolute so the compiler never resolves it against the
// working directory.
const configSchemaID = "urn:jsoncheck:config.schema.json"

// DefaultFiles is used when a config does not list "files".
var DefaultFiles = []string{"**/*.json", "**/*.jsonc"}

// Mapping associates a schema with the files it applies to. Exactly one of
// URL and Path is set.
type Mapping struct {
	URL   string   `json:"url,omitempty" yaml:"url,omitempty"`
	Path  string   `json:"path,omitempty" yaml:"path,omitempty"`
	Files []string `json:"files" yaml:"files"`
}

// Config is the decoded project configuration.
type Config struct {
	Schema  string    `json:"$schema,omitempty" yaml:"$schema,omitempty"`
	Files   []string  `json:"files" yaml:"files"`
	Schemas []Mapping `json:"schemas" yaml:"schemas"`
	Strict  bool      `json:"strict" yaml:"strict"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{Files: append([]string(nil), DefaultFiles...), Schemas: []Mapping{}}
}

// Error describes a configuration file that could not be used.
type Error struct {
	Path string
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to %s config file '%s': %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SchemaJSON returns the embedded JSON Schema for the config file.
func SchemaJSON() []byte {
	data, err := schemaFS.ReadFile(schemaFile)
	if err != nil {
		panic(fmt.Sprintf("embedded config schema missing: %v", err))
	}
	return data
}

var configSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(SchemaJSON()))
	if err != nil {
		return nil, fmt.Errorf("parse embedded config schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(configSchemaID, doc); err != nil {
		return nil, fmt.Errorf("add config schema resource: %w", err)
	}
	return c.Compile(configSchemaID)
})

// Load reads, parses and validates the config file at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Op: "read", Err: err}
	}
	return Parse(path, src)
}

// Parse decodes config text. path is used in error messages only.
func Parse(path string, src []byte) (*Config, error) {
	doc, err := jsonc.Parse(src)
	if err != nil {
		return nil, &Error{Path: path, Op: "parse", Err: errors.New(jsonc.Describe(err))}
	}

	sch, err := configSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(doc.Value); err != nil {
		return nil, &Error{Path: path, Op: "validate", Err: err}
	}

	raw, err := json.Marshal(doc.Value)
	if err != nil {
		return nil, &Error{Path: path, Op: "parse", Err: err}
	}
	cfg := &Config{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, &Error{Path: path, Op: "parse", Err: err}
	}
	if cfg.Files == nil {
		cfg.Files = append([]string(nil), DefaultFiles...)
	}
	if cfg.Schemas == nil {
		cfg.Schemas = []Mapping{}
	}
	return cfg, nil
}

// Find walks up from start looking for FileName and returns its path.
func Find(start string) (string, bool) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}
	if fi, err := os.Stat(dir); err == nil && !fi.IsDir() {
		dir = filepath.Dir(dir)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Relativize returns path relative to root, slash-separated. Both sides are
// canonicalized first so symlinks, "." and ".." segments and relative
// spellings agree. It reports false when path is outside root.
func Relativize(root, path string) (string, bool) {
	r, p := schema.CanonicalPath(root), schema.CanonicalPath(path)
	rel, err := filepath.Rel(r, p)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

type pattern struct {
	glob    string
	exclude bool
}

type mapping struct {
	globs  []string
	source schema.Source
}

// Project is a compiled configuration bound to its project root.
type Project struct {
	// Root is the canonical project root: the config file's directory, or
	// the start directory when there is no config file.
	Root string
	// Path is the config file, empty when running on defaults.
	Path   string
	Config *Config

	files    []pattern
	mappings []mapping
}

// Compile validates cfg's globs and prepares it for matching. root is the
// project root; path is the config file it came from, if any.
func Compile(cfg *Config, root, path string) (*Project, error) {
	p := &Project{Root: schema.CanonicalPath(root), Path: path, Config: cfg}
	for _, f := range cfg.Files {
		pat := pattern{glob: f}
		if rest, ok := strings.CutPrefix(f, "!"); ok {
			pat = pattern{glob: rest, exclude: true}
		}
		if !doublestar.ValidatePattern(pat.glob) {
			return nil, &Error{Path: path, Op: "compile", Err: fmt.Errorf("invalid glob pattern %q", f)}
		}
		p.files = append(p.files, pat)
	}
	for _, m := range cfg.Schemas {
		for _, g := range m.Files {
			if !doublestar.ValidatePattern(g) {
				return nil, &Error{Path: path, Op: "compile", Err: fmt.Errorf("invalid glob pattern %q", g)}
			}
		}
		var src schema.Source
		if m.URL != "" {
			src = schema.URLSource(m.URL)
		} else {
			src = schema.ResolveRef(m.Path, p.Root)
		}
		p.mappings = append(p.mappings, mapping{globs: m.Files, source: src})
	}
	return p, nil
}

// Open finds the config for start, loads and compiles it. With no config
// file the defaults are used with start as the root.
func Open(start string) (*Project, error) {
	path, ok := Find(start)
	if !ok {
		root := start
		if fi, err := os.Stat(start); err == nil && !fi.IsDir() {
			root = filepath.Dir(start)
		}
		return Compile(Default(), root, "")
	}
	return OpenFile(path)
}

// OpenFile loads and compiles the config file at path.
func OpenFile(path string) (*Project, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Compile(cfg, filepath.Dir(path), path)
}

// Strict reports whether the config asks for strict mode.
func (p *Project) Strict() bool { return p.Config.Strict }

// SchemaFor returns the schema of the first mapping whose globs match path.
func (p *Project) SchemaFor(path string) (schema.Source, bool) {
	rel, ok := Relativize(p.Root, path)
	if !ok {
		return schema.Source{}, false
	}
	for _, m := range p.mappings {
		for _, g := range m.globs {
			if doublestar.MatchUnvalidated(g, rel) {
				return m.source, true
			}
		}
	}
	return schema.Source{}, false
}

// Includes evaluates the "files" patterns in order against a root-relative,
// slash-separated path. The last matching pattern decides.
func (p *Project) Includes(rel string) bool {
	matched := false
	for _, pat := range p.files {
		if doublestar.MatchUnvalidated(pat.glob, rel) {
			matched = !pat.exclude
		}
	}
	return matched
}
