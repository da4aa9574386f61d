package lsp

import (
	"net/url"
	"path/filepath"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/foundry-zero/jsoncheck/internal/position"
)

// document is the editor's current buffer for one URI.
type document struct {
	path    string
	version protocol.Integer
	text    string
}

// Change is one content change from didChange. A nil Range replaces the
// whole text.
type Change struct {
	Range *protocol.Range
	Text  string
}

// applyChanges applies changes to text in order. Ranges are interpreted in
// enc, against the text as it stands after the previous change.
func applyChanges(text string, changes []Change, enc position.Encoding) string {
	for _, c := range changes {
		if c.Range == nil {
			text = c.Text
			continue
		}
		ix := position.NewIndex([]byte(text))
		start := ix.Offset(int(c.Range.Start.Line), int(c.Range.Start.Character), enc)
		end := ix.Offset(int(c.Range.End.Line), int(c.Range.End.Character), enc)
		if end < start {
			start, end = end, start
		}
		text = text[:start] + c.Text + text[end:]
	}
	return text
}

// uriPath returns the filesystem path of a file:// URI.
func uriPath(uri protocol.DocumentUri) (string, bool) {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}

func pathURI(path string) protocol.DocumentUri {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return protocol.DocumentUri(u.String())
}

func toRange(ix *position.Index, s position.Span, enc position.Encoding) protocol.Range {
	sl, sc := ix.Position(s.Start, enc)
	el, ec := ix.Position(s.End, enc)
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(sl), Character: protocol.UInteger(sc)},
		End:   protocol.Position{Line: protocol.UInteger(el), Character: protocol.UInteger(ec)},
	}
}
