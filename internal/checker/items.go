package checker

import (
	"slices"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

// The validator reports items checked by "items" (after "prefixItems") or
// by a draft-07 "additionalItems" schema at indices counted from the first
// item that schema applies to. absoluteIndices rewrites those instance
// locations in place so every index counts from the start of the array.
func absoluteIndices(root *jsonschema.Schema, ve *jsonschema.ValidationError) {
	r := indexRewriter{root: root}
	base, segs := splitLocation(ve.SchemaURL)
	r.walk(ve, scope{base: base, segs: segs}, nil)
}

// scope ties a schema location to the instance depth it was applied at.
// It changes only when a $ref jumps elsewhere.
type scope struct {
	base  string
	segs  []string
	depth int
}

type indexRewriter struct {
	root *jsonschema.Schema
	locs map[string]*jsonschema.Schema
}

func (r *indexRewriter) walk(ve *jsonschema.ValidationError, sc scope, prefix []string) {
	if len(ve.InstanceLocation) >= len(prefix) {
		copy(ve.InstanceLocation, prefix)
	}
	r.rewrite(ve, sc)

	next := sc
	if ref, ok := ve.ErrorKind.(*kind.Reference); ok {
		base, segs := splitLocation(ref.URL)
		next = scope{base: base, segs: segs, depth: len(ve.InstanceLocation)}
	}
	for _, c := range ve.Causes {
		r.walk(c, next, ve.InstanceLocation)
	}
}

// rewrite follows ve's schema location down from the scope, counting the
// keywords that step into the instance, and shifts the index token of each
// "items" or "additionalItems" step by the length of the prefix before it.
func (r *indexRewriter) rewrite(ve *jsonschema.ValidationError, sc scope) {
	base, segs := splitLocation(ve.SchemaURL)
	if base != sc.base || len(segs) < len(sc.segs) || !slices.Equal(segs[:len(sc.segs)], sc.segs) {
		return
	}
	inst := ve.InstanceLocation
	depth := sc.depth
	for i := len(sc.segs); i < len(segs); i++ {
		switch segs[i] {
		case "items", "additionalItems":
			if i+1 < len(segs) && isIndex(segs[i+1]) {
				i++
			} else if shift := r.prefixLen(base, segs[:i], segs[i]); shift > 0 && depth < len(inst) {
				if n, err := strconv.Atoi(inst[depth]); err == nil {
					inst[depth] = strconv.Itoa(n + shift)
				}
			}
			depth++
		case "prefixItems", "properties", "patternProperties":
			i++
			depth++
		case "additionalProperties", "unevaluatedProperties", "unevaluatedItems", "contains":
			depth++
		case "allOf", "anyOf", "oneOf", "dependentSchemas", "dependencies", "$defs", "definitions":
			i++
		case "not", "if", "then", "else":
		default:
			return
		}
	}
}

// prefixLen returns how many leading items the array schema at segs checks
// before kw applies.
func (r *indexRewriter) prefixLen(base string, segs []string, kw string) int {
	if r.locs == nil {
		r.locs = make(map[string]*jsonschema.Schema)
		r.index(r.root)
	}
	loc := base + "#"
	if len(segs) > 0 {
		loc += "/" + strings.Join(segs, "/")
	}
	s := r.locs[loc]
	if s == nil {
		return 0
	}
	if kw == "items" {
		return len(s.PrefixItems)
	}
	items, _ := s.Items.([]*jsonschema.Schema)
	return len(items)
}

func (r *indexRewriter) index(s *jsonschema.Schema) {
	if s == nil || r.locs[s.Location] != nil {
		return
	}
	r.locs[s.Location] = s
	for _, c := range subschemas(s) {
		r.index(c)
	}
}

func subschemas(s *jsonschema.Schema) []*jsonschema.Schema {
	out := []*jsonschema.Schema{
		s.Ref, s.RecursiveRef, s.Not, s.If, s.Then, s.Else,
		s.PropertyNames, s.UnevaluatedProperties, s.Contains,
		s.Items2020, s.UnevaluatedItems, s.ContentSchema,
	}
	if s.DynamicRef != nil {
		out = append(out, s.DynamicRef.Ref)
	}
	out = append(out, s.AllOf...)
	out = append(out, s.AnyOf...)
	out = append(out, s.OneOf...)
	out = append(out, s.PrefixItems...)
	for _, c := range s.Properties {
		out = append(out, c)
	}
	for _, c := range s.PatternProperties {
		out = append(out, c)
	}
	for _, c := range s.DependentSchemas {
		out = append(out, c)
	}
	for _, d := range s.Dependencies {
		if c, ok := d.(*jsonschema.Schema); ok {
			out = append(out, c)
		}
	}
	for _, v := range []any{s.AdditionalProperties, s.AdditionalItems, s.Items} {
		switch v := v.(type) {
		case *jsonschema.Schema:
			out = append(out, v)
		case []*jsonschema.Schema:
			out = append(out, v...)
		}
	}
	return out
}

// splitLocation splits a schema location into its resource URL and its
// still-encoded fragment tokens.
func splitLocation(loc string) (string, []string) {
	base, frag, _ := strings.Cut(loc, "#")
	if frag == "" {
		return base, nil
	}
	return base, strings.Split(strings.TrimPrefix(frag, "/"), "/")
}

func isIndex(tok string) bool {
	_, err := strconv.Atoi(tok)
	return err == nil
}
