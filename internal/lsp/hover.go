package lsp

import (
	"context"

	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"

	"github.com/foundry-zero/jsoncheck/internal/jsonc"
	"github.com/foundry-zero/jsoncheck/internal/position"
	"github.com/foundry-zero/jsoncheck/internal/schema"
)

// Hover describes the key or value under pos using the schema's title and
// description. It returns nil when there is nothing to show.
func (s *Session) Hover(ctx context.Context, uri protocol.DocumentUri, pos protocol.Position) *protocol.Hover {
	d, doc := s.current(uri)
	if doc == nil {
		return nil
	}
	enc := s.encoding()
	offset := doc.Index.Offset(int(pos.Line), int(pos.Character), enc)
	ptr, span, ok := position.NodeAt(&doc.Root, offset)
	if !ok {
		return nil
	}
	raw := s.schemaFor(ctx, d.path, doc.Value)
	if raw == nil {
		return nil
	}
	title, description := annotation(schemaAt(raw, ptr))
	if title == "" && description == "" {
		return nil
	}

	var text string
	switch {
	case title != "" && description != "":
		text = "**" + title + "**\n\n" + description
	case title != "":
		text = "**" + title + "**"
	default:
		text = description
	}
	rng := toRange(doc.Index, span, enc)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: text},
		Range:    &rng,
	}
}

// current returns the open document and its parse. When the live text does
// not parse, the last successfully validated parse is used instead.
func (s *Session) current(uri protocol.DocumentUri) (document, *jsonc.Document) {
	s.mu.Lock()
	d, ok := s.docs[uri]
	if !ok {
		s.mu.Unlock()
		return document{}, nil
	}
	snap := *d
	stale := s.lastGood[uri]
	s.mu.Unlock()

	if doc, err := jsonc.Parse([]byte(snap.text)); err == nil {
		return snap, doc
	}
	return snap, stale
}

// schemaFor returns the raw schema governing the document, or nil.
func (s *Session) schemaFor(ctx context.Context, path string, value any) any {
	opts := s.options(path)
	resolved, ok := schema.Resolve(path, opts.Override, value, opts.Mapper)
	if !ok {
		return nil
	}
	compiled, warnings, _, err := s.checker.Cache().GetOrCompile(ctx, resolved.Source, s.noCache)
	s.logWarnings(warnings)
	if err != nil {
		s.log.Debug("schema unavailable", zap.Stringer("source", resolved.Source), zap.Error(err))
		return nil
	}
	return compiled.Raw
}
