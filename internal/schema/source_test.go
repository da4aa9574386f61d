package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRefURL(t *testing.T) {
	src := ResolveRef("https://example.com/s.json", "/ignored")
	assert.True(t, src.IsURL())
	assert.Equal(t, "https://example.com/s.json", src.Ref)
	assert.False(t, ResolveRef("ftp://x", t.TempDir()).IsURL())
}

func TestEquivalentSpellingsAreEqual(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	target := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(target, []byte(`{}`), 0o644))
	link := filepath.Join(dir, "link.json")
	require.NoError(t, os.Symlink(target, link))

	want := FileSource(target)
	assert.Equal(t, want, ResolveRef("./schema.json", dir))
	assert.Equal(t, want, ResolveRef("schema.json", dir))
	assert.Equal(t, want, ResolveRef("sub/../schema.json", dir))
	assert.Equal(t, want, ResolveRef("link.json", dir))
	assert.Equal(t, want, ResolveRef(target, "/elsewhere"))
}

func TestCanonicalPathMissingFile(t *testing.T) {
	dir := t.TempDir()
	realDir := filepath.Join(dir, "real")
	require.NoError(t, os.Mkdir(realDir, 0o755))
	linkDir := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(realDir, linkDir))

	got := CanonicalPath(filepath.Join(linkDir, "not", "yet", "..", "there.json"))
	assert.Equal(t, filepath.Join(CanonicalPath(realDir), "not", "there.json"), got)
}

type mapper map[string]Source

func (m mapper) SchemaFor(path string) (Source, bool) {
	s, ok := m[path]
	return s, ok
}

func TestResolvePrecedence(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "data", "a.json")
	inline := map[string]any{"$schema": "../schemas/a.json"}
	m := mapper{doc: URLSource("https://example.com/mapped.json")}
	override := URLSource("https://example.com/flag.json")

	r, ok := Resolve(doc, override, inline, m)
	require.True(t, ok)
	assert.Equal(t, ViaFlag, r.Via)
	assert.Equal(t, override, r.Source)

	r, ok = Resolve(doc, Source{}, inline, m)
	require.True(t, ok)
	assert.Equal(t, ViaInline, r.Via)
	assert.Equal(t, FileSource(filepath.Join(dir, "schemas", "a.json")), r.Source)
	assert.Equal(t, "../schemas/a.json", r.Ref)

	r, ok = Resolve(doc, Source{}, map[string]any{"x": 1}, m)
	require.True(t, ok)
	assert.Equal(t, ViaConfig, r.Via)

	_, ok = Resolve(doc, Source{}, []any{}, nil)
	assert.False(t, ok)
	_, ok = Resolve(doc, Source{}, map[string]any{"$schema": 5}, nil)
	assert.False(t, ok)
}
