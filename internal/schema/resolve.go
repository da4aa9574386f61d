package schema

import "path/filepath"

// Via records how a schema was chosen for a document.
type Via string

const (
	ViaFlag   Via = "flag"
	ViaInline Via = "inline $schema"
	ViaConfig Via = "config"
)

// Mapper maps a document path to a configured schema.
type Mapper interface {
	SchemaFor(path string) (Source, bool)
}

// Resolution is the effective schema for one document.
type Resolution struct {
	Source Source
	Via    Via
	// Ref is the reference as written, for display. For inline and flag
	// sources this is the user's text; for config sources the mapped entry.
	Ref string
}

// Resolve picks the schema for the document at path. Precedence: an explicit
// override, then the document's own "$schema" (relative to the document's
// directory), then the first matching config mapping. It reports false when
// none apply.
func Resolve(path string, override Source, value any, m Mapper) (Resolution, bool) {
	if !override.IsZero() {
		return Resolution{Source: override, Via: ViaFlag, Ref: override.Ref}, true
	}
	if ref, ok := inlineRef(value); ok {
		return Resolution{Source: ResolveRef(ref, filepath.Dir(path)), Via: ViaInline, Ref: ref}, true
	}
	if m != nil {
		if src, ok := m.SchemaFor(path); ok {
			return Resolution{Source: src, Via: ViaConfig, Ref: src.Ref}, true
		}
	}
	return Resolution{}, false
}

func inlineRef(value any) (string, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return "", false
	}
	ref, ok := obj["$schema"].(string)
	return ref, ok && ref != ""
}
