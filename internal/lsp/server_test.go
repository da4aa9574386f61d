package lsp

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"

	"github.com/foundry-zero/jsoncheck/internal/checker"
	"github.com/foundry-zero/jsoncheck/internal/schema"
)

type notifications struct {
	mu      sync.Mutex
	methods []string
}

func (n *notifications) notify(method string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.methods = append(n.methods, method)
}

func (n *notifications) list() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.methods...)
}

func TestServerHandlesRequestsAndShutdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "schema.json"), hoverSchema)

	client := NewClient()
	session := NewSession(client, checker.NewChecker(schema.NewCache(nil)), WithDebounce(0))
	srv := NewServer(session, client, "test", zap.NewNop())

	var sent notifications
	res, err := srv.initialize(&glsp.Context{
		Params: []byte(`{"capabilities": {"general": {"positionEncodings": ["utf-8", "utf-16"]}}}`),
		Notify: sent.notify,
	}, &protocol.InitializeParams{})
	require.NoError(t, err)
	result, ok := res.(initializeResult)
	require.True(t, ok)
	assert.Equal(t, "utf-8", result.Capabilities.PositionEncoding)
	assert.Equal(t, true, result.Capabilities.HoverProvider)

	uri := pathURI(filepath.Join(dir, "doc.json"))
	text := `{"$schema": "./schema.json", "name": "Alice"}`
	require.NoError(t, srv.didOpen(&glsp.Context{}, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "json", Version: 1, Text: text},
	}))
	session.Wait()
	assert.Contains(t, sent.list(), methodPublishDiagnostics)

	h, err := srv.hover(&glsp.Context{}, &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     protocol.Position{Line: 0, Character: 31},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "**Name**\n\nThe user's full name", markdown(t, h))

	require.NoError(t, srv.shutdown(&glsp.Context{}))
	assert.Error(t, srv.ctx.Err(), "shutdown cancels in-flight schema loads")
}
