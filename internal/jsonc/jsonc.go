// Package jsonc parses JSON-with-comments documents into a position-addressable
// AST plus a plain value suitable for schema validation.
package jsonc

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tailscale/hujson"

	"github.com/foundry-zero/jsoncheck/internal/position"
)

var bom = []byte("\xef\xbb\xbf")

// ErrEmpty is returned for input that holds only whitespace and comments.
var ErrEmpty = errors.New("file contains no JSON value")

// Document is a successfully parsed JSONC text.
type Document struct {
	// Source is the parsed text with any byte order mark removed. All spans
	// refer to offsets in Source.
	Source []byte
	// Root is the AST. Every node carries its byte range.
	Root hujson.Value
	// Value is the decoded document (objects as map[string]any, numbers as
	// json.Number) for handing to the validation engine.
	Value any
	// Index maps offsets in Source to lines and columns.
	Index *position.Index
}

// SyntaxError describes malformed input. Offset is -1 when the parser did not
// report a usable position.
type SyntaxError struct {
	Msg    string
	Offset int
}

func (e *SyntaxError) Error() string { return e.Msg }

// StripBOM removes a leading UTF-8 byte order mark.
func StripBOM(src []byte) []byte {
	return bytes.TrimPrefix(src, bom)
}

// Parse parses src, which may contain comments and trailing commas. The byte
// order mark is stripped first, so callers that render spans should render
// against Document.Source.
func Parse(src []byte) (*Document, error) {
	src = StripBOM(src)
	ix := position.NewIndex(src)

	root, err := hujson.Parse(src)
	if err != nil {
		if blank(src) {
			return nil, ErrEmpty
		}
		return nil, &SyntaxError{Msg: err.Error(), Offset: errorOffset(ix, err)}
	}

	std := root.Clone()
	std.Standardize()
	value, err := jsonschema.UnmarshalJSON(bytes.NewReader(std.Pack()))
	if err != nil {
		return nil, &SyntaxError{Msg: err.Error(), Offset: -1}
	}
	return &Document{Source: src, Root: root, Value: value, Index: ix}, nil
}

// SchemaRef returns the document's top-level "$schema" string, if any.
func SchemaRef(value any) (string, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := obj["$schema"].(string)
	return s, ok
}

// blank reports whether src contains only whitespace and comments.
func blank(src []byte) bool {
	padded := make([]byte, 0, len(src)+5)
	padded = append(append(padded, src...), "\nnull"...)
	v, err := hujson.Parse(padded)
	if err != nil {
		return false
	}
	_, isLit := v.Value.(hujson.Literal)
	return isLit && v.StartOffset == len(src)+1
}

var lineColRE = regexp.MustCompile(`line (\d+), column (\d+)`)

// errorOffset recovers a byte offset from the parser's "line N, column M"
// error text.
func errorOffset(ix *position.Index, err error) int {
	m := lineColRE.FindStringSubmatch(err.Error())
	if m == nil {
		return -1
	}
	line, _ := strconv.Atoi(m[1])
	col, _ := strconv.Atoi(m[2])
	if line < 1 || col < 1 {
		return -1
	}
	return ix.Offset(line-1, col-1, position.UTF8)
}

// Describe renders a parse failure for a diagnostic message.
func Describe(err error) string {
	var se *SyntaxError
	if errors.As(err, &se) {
		return se.Msg
	}
	return fmt.Sprint(err)
}
