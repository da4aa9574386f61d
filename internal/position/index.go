// Package position converts between byte offsets, line/column pairs, and
// JSON Pointer paths within a parsed JSON-with-comments document.
package position

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Span is a half-open byte range [Start, End) into a document's source text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start }

// Contains reports whether offset falls inside the span.
func (s Span) Contains(offset int) bool { return offset >= s.Start && offset < s.End }

// Encoding selects how LSP character offsets count columns.
type Encoding int

const (
	// UTF16 counts UTF-16 code units. It is the LSP default.
	UTF16 Encoding = iota
	// UTF8 counts bytes.
	UTF8
)

// String returns the LSP positionEncoding name.
func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "utf-8"
	case UTF16:
		return "utf-16"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Negotiate picks UTF-8 if the client offers it, otherwise UTF-16.
func Negotiate(offered []string) Encoding {
	for _, name := range offered {
		if name == "utf-8" {
			return UTF8
		}
	}
	return UTF16
}

// Index precomputes line starts for a document so offset conversions are
// O(log n).
type Index struct {
	src        []byte
	lineStarts []int
}

// NewIndex scans src once and records the byte offset of every line start.
func NewIndex(src []byte) *Index {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &Index{src: src, lineStarts: starts}
}

// Source returns the text the index was built from.
func (ix *Index) Source() []byte { return ix.src }

// LineCount returns the number of lines (a trailing newline starts a new, empty line).
func (ix *Index) LineCount() int { return len(ix.lineStarts) }

// LineCol converts a byte offset to a 1-based line and 1-based byte column.
// Offsets past the end are clamped to the end of the text.
func (ix *Index) LineCol(offset int) (line, col int) {
	offset = ix.clamp(offset)
	l := ix.lineOf(offset)
	return l + 1, offset - ix.lineStarts[l] + 1
}

// Position converts a byte offset to a 0-based LSP line and character in the
// given encoding. An offset inside a multi-byte sequence is moved back to the
// start of that sequence.
func (ix *Index) Position(offset int, enc Encoding) (line, char int) {
	offset = ix.boundary(ix.clamp(offset))
	l := ix.lineOf(offset)
	start := ix.lineStarts[l]
	if enc == UTF8 {
		return l, offset - start
	}
	return l, utf16Len(ix.src[start:offset])
}

// Offset converts a 0-based LSP line and character back to a byte offset.
// Lines past the end map to the end of the text, and characters past the end
// of a line map to the end of its content. A character that splits a
// surrogate pair or multi-byte sequence maps to the start of that sequence.
//
// Offset inverts Position for every offset except the '\n' of a CRLF
// terminator: Position reports it one character past the '\r', and Offset
// clamps that character back to the '\r'.
func (ix *Index) Offset(line, char int, enc Encoding) int {
	if line < 0 {
		return 0
	}
	if line >= len(ix.lineStarts) {
		return len(ix.src)
	}
	start := ix.lineStarts[line]
	end := ix.lineEnd(line)
	if char <= 0 {
		return start
	}
	if enc == UTF8 {
		return ix.boundary(min(start+char, end))
	}
	units := 0
	for o := start; o < end; {
		r, size := utf8.DecodeRune(ix.src[o:])
		w := 1
		if r >= 0x10000 {
			w = 2
		}
		if units+w > char {
			return o
		}
		units += w
		o += size
		if units == char {
			return o
		}
	}
	return end
}

// lineEnd returns the offset of the end of the line's content, excluding the
// line terminator. For a CRLF line this is the offset of the '\r'.
func (ix *Index) lineEnd(line int) int {
	if line+1 >= len(ix.lineStarts) {
		return len(ix.src)
	}
	end := ix.lineStarts[line+1] - 1
	if end > ix.lineStarts[line] && ix.src[end-1] == '\r' {
		end--
	}
	return end
}

func (ix *Index) lineOf(offset int) int {
	// First line start greater than offset, minus one.
	return sort.Search(len(ix.lineStarts), func(i int) bool { return ix.lineStarts[i] > offset }) - 1
}

func (ix *Index) clamp(offset int) int {
	return max(0, min(offset, len(ix.src)))
}

// boundary moves offset back to the first byte of the UTF-8 sequence it
// falls in.
func (ix *Index) boundary(offset int) int {
	for i := 0; i < utf8.UTFMax-1 && offset > 0 && offset < len(ix.src) && !utf8.RuneStart(ix.src[offset]); i++ {
		offset--
	}
	return offset
}

func utf16Len(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
		b = b[size:]
	}
	return n
}
