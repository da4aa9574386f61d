package lsp

import (
	"strconv"
	"strings"

	"github.com/foundry-zero/jsoncheck/internal/position"
)

// maxRefDepth bounds $ref and combinator expansion.
const maxRefDepth = 32

// schemaAt returns the subschemas that describe the instance at ptr. Local
// $refs are followed and allOf/anyOf/oneOf branches are included, so the
// result may hold several candidates. Remote $refs are not followed.
func schemaAt(root any, ptr []string) []map[string]any {
	cur := expand(root, root)
	for _, tok := range ptr {
		var next []map[string]any
		for _, node := range cur {
			next = append(next, child(root, node, tok)...)
		}
		if len(next) == 0 {
			return nil
		}
		cur = next
	}
	return cur
}

// child returns the subschemas one step below node for property or index tok.
func child(root any, node map[string]any, tok string) []map[string]any {
	if props, ok := node["properties"].(map[string]any); ok {
		if sub, ok := props[tok]; ok {
			return expand(root, sub)
		}
	}
	if i, err := strconv.Atoi(tok); err == nil && i >= 0 {
		if prefix, ok := node["prefixItems"].([]any); ok {
			if i < len(prefix) {
				return expand(root, prefix[i])
			}
		}
		switch items := node["items"].(type) {
		case map[string]any:
			return expand(root, items)
		case []any:
			if i < len(items) {
				return expand(root, items[i])
			}
		}
		return nil
	}
	if ap, ok := node["additionalProperties"].(map[string]any); ok {
		return expand(root, ap)
	}
	return nil
}

// expand returns node followed by everything it pulls in through local
// $refs and combinators.
func expand(root, node any) []map[string]any {
	var out []map[string]any
	visited := make(map[string]bool)
	var walk func(n any, depth int)
	walk = func(n any, depth int) {
		obj, ok := n.(map[string]any)
		if !ok || depth > maxRefDepth {
			return
		}
		out = append(out, obj)
		if ref, ok := obj["$ref"].(string); ok && strings.HasPrefix(ref, "#") && !visited[ref] {
			visited[ref] = true
			if target, ok := lookup(root, ref[1:]); ok {
				walk(target, depth+1)
			}
		}
		for _, kw := range []string{"allOf", "anyOf", "oneOf"} {
			branches, _ := obj[kw].([]any)
			for _, b := range branches {
				walk(b, depth+1)
			}
		}
	}
	walk(node, 0)
	return out
}

// lookup resolves a JSON Pointer fragment within the schema document.
func lookup(root any, frag string) (any, bool) {
	cur := root
	for _, tok := range position.ParsePointer(frag) {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[tok]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// annotation returns the first title and description found among nodes.
func annotation(nodes []map[string]any) (title, description string) {
	for _, n := range nodes {
		if title == "" {
			title, _ = n["title"].(string)
		}
		if description == "" {
			description, _ = n["description"].(string)
		}
	}
	return title, description
}
