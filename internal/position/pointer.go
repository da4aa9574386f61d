package position

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tailscale/hujson"
)

// Pointer is a JSON Pointer split into unescaped reference tokens.
type Pointer []string

// ParsePointer splits an RFC 6901 pointer ("/a/b~1c") into tokens. The empty
// string is the root pointer.
func ParsePointer(s string) Pointer {
	if s == "" {
		return Pointer{}
	}
	parts := strings.Split(strings.TrimPrefix(s, "/"), "/")
	for i, p := range parts {
		parts[i] = strings.NewReplacer("~1", "/", "~0", "~").Replace(p)
	}
	return parts
}

// String renders the pointer in RFC 6901 form.
func (p Pointer) String() string {
	var b strings.Builder
	for _, tok := range p {
		b.WriteByte('/')
		b.WriteString(strings.NewReplacer("~", "~0", "/", "~1").Replace(tok))
	}
	return b.String()
}

// Child returns a copy of p with tok appended.
func (p Pointer) Child(tok string) Pointer {
	out := make(Pointer, len(p), len(p)+1)
	copy(out, p)
	return append(out, tok)
}

// ValueSpan walks the AST along ptr and returns the span of the value found
// there. It reports false when a token does not exist in the document.
func ValueSpan(root *hujson.Value, ptr []string) (Span, bool) {
	v, ok := walk(root, ptr)
	if !ok {
		return Span{}, false
	}
	return valueSpan(v), true
}

// KeySpan is like ValueSpan but returns the span of the property name token
// for the final token. It reports false for the root pointer and when the
// final token addresses an array element, since elements have no key.
func KeySpan(root *hujson.Value, ptr []string) (Span, bool) {
	if len(ptr) == 0 {
		return Span{}, false
	}
	parent, ok := walk(root, ptr[:len(ptr)-1])
	if !ok {
		return Span{}, false
	}
	obj, ok := parent.Value.(*hujson.Object)
	if !ok {
		return Span{}, false
	}
	m := member(obj, ptr[len(ptr)-1])
	if m == nil {
		return Span{}, false
	}
	return valueSpan(&m.Name), true
}

// NodeAt finds the key or value that contains offset and returns its pointer
// and span. Offsets on braces, brackets, colons, commas, comments, or
// whitespace resolve to nothing.
func NodeAt(root *hujson.Value, offset int) (Pointer, Span, bool) {
	if !valueSpan(root).Contains(offset) {
		return nil, Span{}, false
	}
	ptr := Pointer{}
	cur := root
	for {
		switch node := cur.Value.(type) {
		case *hujson.Object:
			next := (*hujson.Value)(nil)
			for i := range node.Members {
				m := &node.Members[i]
				name, _ := StringLiteral(m.Name)
				if ks := valueSpan(&m.Name); ks.Contains(offset) {
					return ptr.Child(name), ks, true
				}
				if valueSpan(&m.Value).Contains(offset) {
					ptr = ptr.Child(name)
					next = &m.Value
					break
				}
			}
			if next == nil {
				return nil, Span{}, false
			}
			cur = next
		case *hujson.Array:
			next := (*hujson.Value)(nil)
			for i := range node.Elements {
				if valueSpan(&node.Elements[i]).Contains(offset) {
					ptr = ptr.Child(strconv.Itoa(i))
					next = &node.Elements[i]
					break
				}
			}
			if next == nil {
				return nil, Span{}, false
			}
			cur = next
		default:
			return ptr, valueSpan(cur), true
		}
	}
}

// StringLiteral decodes v as a JSON string literal.
func StringLiteral(v hujson.Value) (string, bool) {
	lit, ok := v.Value.(hujson.Literal)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(lit, &s); err != nil {
		return "", false
	}
	return s, true
}

func walk(root *hujson.Value, ptr []string) (*hujson.Value, bool) {
	cur := root
	for _, tok := range ptr {
		switch node := cur.Value.(type) {
		case *hujson.Object:
			m := member(node, tok)
			if m == nil {
				return nil, false
			}
			cur = &m.Value
		case *hujson.Array:
			i, ok := arrayIndex(tok)
			if !ok || i >= len(node.Elements) {
				return nil, false
			}
			cur = &node.Elements[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// member returns the last member named name, which is the one a decoder
// keeps when a key is repeated.
func member(obj *hujson.Object, name string) *hujson.ObjectMember {
	for i := len(obj.Members) - 1; i >= 0; i-- {
		if s, ok := StringLiteral(obj.Members[i].Name); ok && s == name {
			return &obj.Members[i]
		}
	}
	return nil
}

func arrayIndex(tok string) (int, bool) {
	if tok == "" || (len(tok) > 1 && tok[0] == '0') {
		return 0, false
	}
	i, err := strconv.Atoi(tok)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

func valueSpan(v *hujson.Value) Span {
	return Span{Start: v.StartOffset, End: v.EndOffset}
}
