package lsp

import (
	"context"
	"errors"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"
	"go.uber.org/zap"

	"github.com/foundry-zero/jsoncheck/internal/position"
)

const serverName = "jsoncheck"

const (
	methodPublishDiagnostics    = "textDocument/publishDiagnostics"
	methodLogMessage            = "window/logMessage"
	methodRegisterCapability    = "client/registerCapability"
	methodDidChangeWatchedFiles = "workspace/didChangeWatchedFiles"
)

var errNotConnected = errors.New("client connection not initialized")

// Server exposes a Session over JSON-RPC on stdio.
type Server struct {
	session *Session
	client  *RPCClient
	version string
	log     *zap.Logger
	handler protocol.Handler

	// ctx scopes schema loads made while answering requests; shutdown
	// cancels it.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer wires a session to the protocol handlers. The session's client
// must be the one returned by NewClient.
func NewServer(session *Session, client *RPCClient, version string, log *zap.Logger) *Server {
	s := &Server{session: session, client: client, version: version, log: log}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.handler = protocol.Handler{
		Initialize:                     s.initialize,
		Initialized:                    s.initialized,
		Shutdown:                       s.shutdown,
		SetTrace:                       func(*glsp.Context, *protocol.SetTraceParams) error { return nil },
		TextDocumentDidOpen:            s.didOpen,
		TextDocumentDidChange:          s.didChange,
		TextDocumentDidClose:           s.didClose,
		TextDocumentHover:              s.hover,
		TextDocumentCompletion:         s.completion,
		WorkspaceDidChangeWatchedFiles: s.didChangeWatchedFiles,
	}
	return s
}

// RunStdio serves until the client disconnects.
func (s *Server) RunStdio() error {
	return glspserver.NewServer(&s.handler, serverName, false).RunStdio()
}

// clientCapabilities holds the parts of the client's capabilities that the
// 3.16 types do not model.
type clientCapabilities struct {
	Capabilities struct {
		General struct {
			PositionEncodings []string `json:"positionEncodings"`
		} `json:"general"`
		Workspace struct {
			DidChangeWatchedFiles struct {
				DynamicRegistration bool `json:"dynamicRegistration"`
			} `json:"didChangeWatchedFiles"`
		} `json:"workspace"`
	} `json:"capabilities"`
}

type serverCapabilities struct {
	protocol.ServerCapabilities
	PositionEncoding string `json:"positionEncoding"`
}

type initializeResult struct {
	Capabilities serverCapabilities                  `json:"capabilities"`
	ServerInfo   *protocol.InitializeResultServerInfo `json:"serverInfo,omitempty"`
}

func (s *Server) initialize(ctx *glsp.Context, _ *protocol.InitializeParams) (any, error) {
	s.client.bind(ctx.Notify, ctx.Call)

	var caps clientCapabilities
	if err := json.Unmarshal(ctx.Params, &caps); err != nil {
		s.log.Warn("decode client capabilities", zap.Error(err))
	}
	enc := position.Negotiate(caps.Capabilities.General.PositionEncodings)
	s.session.Initialize(enc, caps.Capabilities.Workspace.DidChangeWatchedFiles.DynamicRegistration)

	sc := s.handler.CreateServerCapabilities()
	sc.TextDocumentSync = protocol.TextDocumentSyncKindFull
	sc.HoverProvider = true
	sc.CompletionProvider = &protocol.CompletionOptions{TriggerCharacters: []string{`"`, ":"}}

	return initializeResult{
		Capabilities: serverCapabilities{ServerCapabilities: sc, PositionEncoding: enc.String()},
		ServerInfo:   &protocol.InitializeResultServerInfo{Name: serverName, Version: &s.version},
	}, nil
}

func (s *Server) initialized(*glsp.Context, *protocol.InitializedParams) error {
	// Registration waits for the client's reply, which cannot arrive while
	// this notification is still being handled.
	go s.session.Start()
	return nil
}

func (s *Server) shutdown(*glsp.Context) error {
	s.cancel()
	s.session.Wait()
	return s.session.Shutdown()
}

func (s *Server) didOpen(_ *glsp.Context, p *protocol.DidOpenTextDocumentParams) error {
	s.session.Open(p.TextDocument.URI, p.TextDocument.Version, p.TextDocument.Text)
	return nil
}

func (s *Server) didChange(_ *glsp.Context, p *protocol.DidChangeTextDocumentParams) error {
	changes := make([]Change, 0, len(p.ContentChanges))
	for _, c := range p.ContentChanges {
		switch c := c.(type) {
		case protocol.TextDocumentContentChangeEvent:
			changes = append(changes, Change{Range: c.Range, Text: c.Text})
		case *protocol.TextDocumentContentChangeEvent:
			changes = append(changes, Change{Range: c.Range, Text: c.Text})
		case protocol.TextDocumentContentChangeEventWhole:
			changes = append(changes, Change{Text: c.Text})
		case *protocol.TextDocumentContentChangeEventWhole:
			changes = append(changes, Change{Text: c.Text})
		}
	}
	s.session.Change(p.TextDocument.URI, p.TextDocument.Version, changes)
	return nil
}

func (s *Server) didClose(_ *glsp.Context, p *protocol.DidCloseTextDocumentParams) error {
	s.session.Close(p.TextDocument.URI)
	return nil
}

func (s *Server) hover(_ *glsp.Context, p *protocol.HoverParams) (*protocol.Hover, error) {
	return s.session.Hover(s.ctx, p.TextDocument.URI, p.Position), nil
}

func (s *Server) completion(_ *glsp.Context, p *protocol.CompletionParams) (any, error) {
	list := s.session.Complete(s.ctx, p.TextDocument.URI, p.Position)
	if list == nil {
		return nil, nil
	}
	return list, nil
}

func (s *Server) didChangeWatchedFiles(_ *glsp.Context, p *protocol.DidChangeWatchedFilesParams) error {
	var paths []string
	for _, ch := range p.Changes {
		if path, ok := uriPath(ch.URI); ok {
			paths = append(paths, path)
		}
	}
	s.session.FilesChanged(paths)
	return nil
}

// RPCClient sends notifications and requests to the editor once the
// connection is known. It implements Client.
type RPCClient struct {
	mu     sync.RWMutex
	notify glsp.NotifyFunc
	call   glsp.CallFunc
}

// NewClient returns a client to pass to both NewSession and NewServer.
func NewClient() *RPCClient { return &RPCClient{} }

func (c *RPCClient) bind(notify glsp.NotifyFunc, call glsp.CallFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify, c.call = notify, call
}

func (c *RPCClient) send(method string, params any) {
	c.mu.RLock()
	notify := c.notify
	c.mu.RUnlock()
	if notify != nil {
		notify(method, params)
	}
}

func (c *RPCClient) PublishDiagnostics(params protocol.PublishDiagnosticsParams) {
	c.send(methodPublishDiagnostics, params)
}

func (c *RPCClient) LogMessage(typ protocol.MessageType, message string) {
	c.send(methodLogMessage, protocol.LogMessageParams{Type: typ, Message: message})
}

func (c *RPCClient) RegisterFileWatchers(watchers []protocol.FileSystemWatcher) error {
	c.mu.RLock()
	call := c.call
	c.mu.RUnlock()
	if call == nil {
		return errNotConnected
	}
	params := protocol.RegistrationParams{Registrations: []protocol.Registration{{
		ID:              uuid.NewString(),
		Method:          methodDidChangeWatchedFiles,
		RegisterOptions: protocol.DidChangeWatchedFilesRegistrationOptions{Watchers: watchers},
	}}}
	var result any
	call(methodRegisterCapability, params, &result)
	return nil
}
