package lsp

import (
	"bytes"
	"context"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/foundry-zero/jsoncheck/internal/position"
)

// Complete suggests property names or values for the position, drawn from
// the document's schema. It returns nil when the document has no usable
// schema or the position is not inside an object or array.
func (s *Session) Complete(ctx context.Context, uri protocol.DocumentUri, pos protocol.Position) *protocol.CompletionList {
	d, doc := s.current(uri)
	if d.path == "" {
		return nil
	}
	var value any
	if doc != nil {
		value = doc.Value
	}
	raw := s.schemaFor(ctx, d.path, value)
	if raw == nil {
		return nil
	}

	src := []byte(d.text)
	offset := position.NewIndex(src).Offset(int(pos.Line), int(pos.Character), s.encoding())
	cc, ok := scanContext(src, offset)
	if !ok {
		return nil
	}

	var items []protocol.CompletionItem
	if cc.inKey {
		items = propertyItems(raw, schemaAt(raw, cc.path), existingKeys(value, cc.path))
	} else {
		items = valueItems(schemaAt(raw, cc.path.Child(cc.key)))
	}
	if items == nil {
		items = []protocol.CompletionItem{}
	}
	return &protocol.CompletionList{Items: items}
}

func propertyItems(root any, nodes []map[string]any, existing map[string]bool) []protocol.CompletionItem {
	required := make(map[string]bool)
	for _, n := range nodes {
		names, _ := n["required"].([]any)
		for _, r := range names {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	kind := protocol.CompletionItemKindProperty
	seen := make(map[string]bool)
	var items []protocol.CompletionItem
	for _, n := range nodes {
		props, _ := n["properties"].(map[string]any)
		for name, sub := range props {
			if name == "$schema" || existing[name] || seen[name] {
				continue
			}
			seen[name] = true

			subNodes := expand(root, sub)
			_, desc := annotation(subNodes)
			item := protocol.CompletionItem{Label: name, Kind: &kind}
			sortText := "1_" + name
			if required[name] {
				sortText = "0_" + name
				detail := "(required)"
				item.Detail = &detail
			} else if t := typeName(subNodes); t != "" {
				item.Detail = &t
			}
			item.SortText = &sortText
			if desc != "" {
				item.Documentation = protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: desc}
			}
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return *items[i].SortText < *items[j].SortText })
	return items
}

func valueItems(nodes []map[string]any) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := make(map[string]bool)
	add := func(v any, kind protocol.CompletionItemKind, detail string) {
		b, err := json.Marshal(v)
		if err != nil || seen[string(b)] {
			return
		}
		seen[string(b)] = true
		item := protocol.CompletionItem{Label: string(b), Kind: &kind}
		if detail != "" {
			item.Detail = &detail
		}
		items = append(items, item)
	}

	for _, n := range nodes {
		if values, ok := n["enum"].([]any); ok {
			for _, v := range values {
				add(v, protocol.CompletionItemKindEnumMember, "")
			}
		}
		if v, ok := n["const"]; ok {
			add(v, protocol.CompletionItemKindConstant, "")
		}
		if hasType(n, "boolean") {
			add(true, protocol.CompletionItemKindValue, "")
			add(false, protocol.CompletionItemKindValue, "")
		}
		if v, ok := n["default"]; ok {
			add(v, protocol.CompletionItemKindValue, "(default)")
		}
	}
	return items
}

func hasType(n map[string]any, want string) bool {
	switch t := n["type"].(type) {
	case string:
		return t == want
	case []any:
		for _, v := range t {
			if v == want {
				return true
			}
		}
	}
	return false
}

func typeName(nodes []map[string]any) string {
	for _, n := range nodes {
		if t, ok := n["type"].(string); ok {
			return t
		}
	}
	return ""
}

func existingKeys(value any, ptr position.Pointer) map[string]bool {
	keys := make(map[string]bool)
	cur := value
	for _, tok := range ptr {
		switch node := cur.(type) {
		case map[string]any:
			cur = node[tok]
		case []any:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(node) {
				return keys
			}
			cur = node[i]
		default:
			return keys
		}
	}
	if obj, ok := cur.(map[string]any); ok {
		for k := range obj {
			keys[k] = true
		}
	}
	return keys
}

// completionContext is where in the document structure the cursor sits.
type completionContext struct {
	// path is the enclosing object or array.
	path position.Pointer
	// inKey is set when a property name is expected.
	inKey bool
	// key is the property (or array index) whose value is being written.
	key string
}

type frame struct {
	ptr       position.Pointer
	array     bool
	expectKey bool
	key       string
	index     int
	// literal is set while inside a bare number or keyword; done once the
	// current member's value is complete.
	literal bool
	done    bool
}

// scanContext classifies offset by scanning src from the start, tracking
// strings, comments and nesting. It works on text that does not parse.
func scanContext(src []byte, offset int) (completionContext, bool) {
	offset = max(0, min(offset, len(src)))
	var stack []*frame
	top := func() *frame {
		if len(stack) == 0 {
			return nil
		}
		return stack[len(stack)-1]
	}

	for i := 0; i < offset; {
		c := src[i]
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			j := bytes.IndexByte(src[i:], '\n')
			if j < 0 || i+j >= offset {
				return completionContext{}, false
			}
			i += j
			continue
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			j := bytes.Index(src[i+2:], []byte("*/"))
			if j < 0 || i+j+4 > offset {
				return completionContext{}, false
			}
			i += j + 4
			continue
		case c == '"':
			end, closed := stringEnd(src, i)
			f := top()
			if end > offset || (end == offset && !closed) {
				if f == nil {
					return completionContext{}, false
				}
				return contextOf(f), true
			}
			if closed && f != nil && !f.array {
				if f.expectKey {
					f.key = unquote(src[i:end])
				} else {
					f.done = true
				}
			}
			i = end
			continue
		case c == '{' || c == '[':
			ptr := position.Pointer{}
			if f := top(); f != nil {
				if f.array {
					ptr = f.ptr.Child(strconv.Itoa(f.index))
				} else {
					ptr = f.ptr.Child(f.key)
				}
			}
			stack = append(stack, &frame{ptr: ptr, array: c == '[', expectKey: c == '{'})
		case c == '}' || c == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if f := top(); f != nil {
				f.done = true
			}
		case c == ',':
			if f := top(); f != nil {
				if f.array {
					f.index++
				} else {
					f.expectKey, f.key = true, ""
				}
				f.literal, f.done = false, false
			}
		case c == ':':
			if f := top(); f != nil && !f.array {
				f.expectKey, f.done = false, false
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if f := top(); f != nil && f.literal {
				f.literal, f.done = false, true
			}
		default:
			if f := top(); f != nil && !f.expectKey && !f.done {
				f.literal = true
			}
		}
		i++
	}

	f := top()
	if f == nil {
		return completionContext{}, false
	}
	return contextOf(f), true
}

func contextOf(f *frame) completionContext {
	switch {
	case f.array:
		return completionContext{path: f.ptr, key: strconv.Itoa(f.index)}
	case f.expectKey || f.done:
		return completionContext{path: f.ptr, inKey: true}
	default:
		return completionContext{path: f.ptr, key: f.key}
	}
}

// stringEnd returns the offset just past the string literal starting at
// start, and whether it was terminated. Strings end at a newline when
// unterminated.
func stringEnd(src []byte, start int) (int, bool) {
	for j := start + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '"':
			return j + 1, true
		case '\n':
			return j, false
		}
	}
	return len(src), false
}

func unquote(lit []byte) string {
	var s string
	if err := json.Unmarshal(lit, &s); err != nil {
		return string(bytes.Trim(lit, `"`))
	}
	return s
}
