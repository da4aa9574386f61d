package schema

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/foundry-zero/jsoncheck/internal/diskcache"
	"github.com/foundry-zero/jsoncheck/internal/report"
)

// Compiled is a ready-to-use validator together with the raw schema
// document it was built from (used for hover and completion).
type Compiled struct {
	Source Source
	Schema *jsonschema.Schema
	Raw    any
}

// Validate validates a decoded document value.
func (c *Compiled) Validate(value any) error {
	return c.Schema.Validate(value)
}

// resourceURL returns the URL under which src is registered with the
// compiler, so relative $refs inside it resolve against its location.
func resourceURL(src Source) string {
	if src.IsURL() {
		return src.Ref
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(src.Ref)}).String()
}

// refLoader serves remote $ref targets through the disk cache. The first
// failure is remembered so the caller can report it as a fetch failure.
type refLoader struct {
	ctx    context.Context
	urls   URLLoader
	bypass bool

	mu       sync.Mutex
	warnings []report.Warning
	failed   error
}

func (l *refLoader) Load(u string) (any, error) {
	body, warns, _, err := l.urls.Load(l.ctx, u, l.bypass)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, warns...)
	if err != nil {
		if l.failed == nil {
			l.failed = fmt.Errorf("%s: %w", u, err)
		}
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(body))
}

// compile builds a validator for raw, registered at src's location. Nested
// file $refs are read from disk and http(s) $refs go through refs.
func compile(src Source, raw any, refs *refLoader) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.UseLoader(jsonschema.SchemeURLLoader{
		"file":  jsonschema.FileLoader{},
		"http":  refs,
		"https": refs,
	})

	loc := resourceURL(src)
	if err := c.AddResource(loc, raw); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(loc)
}

// URLLoader loads remote schema bytes; *diskcache.Store implements it.
type URLLoader interface {
	Load(ctx context.Context, url string, bypass bool) ([]byte, []report.Warning, diskcache.Outcome, error)
}
