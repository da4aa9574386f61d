// Package schema resolves where a document's JSON Schema comes from and
// compiles each distinct schema at most once per process.
package schema

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Kind distinguishes file-backed from URL-backed sources.
type Kind int

const (
	KindFile Kind = iota
	KindURL
)

// Source identifies a schema by its normalized origin. Two Sources are equal
// when they name the same canonical file path or the same URL string, so
// Source is usable as a map key.
type Source struct {
	Kind Kind
	Ref  string
}

// FileSource returns the source for the schema file at path, canonicalized
// with CanonicalPath.
func FileSource(path string) Source {
	return Source{Kind: KindFile, Ref: CanonicalPath(path)}
}

// URLSource returns the source for a remote schema.
func URLSource(url string) Source {
	return Source{Kind: KindURL, Ref: url}
}

// IsZero reports whether s is the zero Source.
func (s Source) IsZero() bool { return s.Ref == "" }

// IsURL reports whether s is fetched over the network.
func (s Source) IsURL() bool { return s.Kind == KindURL }

func (s Source) String() string { return s.Ref }

// IsURL reports whether ref is an http or https URL.
func IsURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// ResolveRef turns a schema reference into a Source. URLs are taken as is;
// anything else is a file path, joined to baseDir when relative.
func ResolveRef(ref, baseDir string) Source {
	if IsURL(ref) {
		return URLSource(ref)
	}
	if !filepath.IsAbs(ref) {
		ref = filepath.Join(baseDir, ref)
	}
	return FileSource(ref)
}

// CanonicalPath returns an absolute, symlink-free form of path. When path
// does not exist, the longest existing ancestor is resolved and the rest is
// cleaned lexically, so keys stay stable for files that appear later.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		return r
	}

	var rest []string
	dir := abs
	for {
		parent := filepath.Dir(dir)
		rest = append(rest, filepath.Base(dir))
		if parent == dir {
			return abs
		}
		dir = parent
		if _, err := os.Lstat(dir); err != nil && errors.Is(err, fs.ErrNotExist) {
			continue
		}
		r, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return abs
		}
		for i := len(rest) - 1; i >= 0; i-- {
			r = filepath.Join(r, rest[i])
		}
		return r
	}
}
