// Package lsp implements the jsoncheck language server: a live session that
// revalidates open documents as they are edited, plus hover and completion
// driven by the document's schema.
package lsp

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/foundry-zero/jsoncheck/internal/checker"
	"github.com/foundry-zero/jsoncheck/internal/config"
	"github.com/foundry-zero/jsoncheck/internal/jsonc"
	"github.com/foundry-zero/jsoncheck/internal/metrics"
	"github.com/foundry-zero/jsoncheck/internal/position"
	"github.com/foundry-zero/jsoncheck/internal/report"
	"github.com/foundry-zero/jsoncheck/internal/schema"
)

const (
	// DefaultDebounce is how long typing must pause before a document is
	// revalidated.
	DefaultDebounce = 200 * time.Millisecond
	// DefaultPermits caps concurrent validations across all documents.
	DefaultPermits = 8

	diagnosticSource = "jsoncheck"
)

// Publish outcomes recorded in metrics.
const (
	outcomePublished  = "published"
	outcomeSuperseded = "superseded"
	outcomeClosed     = "closed"
)

// Client is the editor side of the connection.
type Client interface {
	PublishDiagnostics(params protocol.PublishDiagnosticsParams)
	LogMessage(typ protocol.MessageType, message string)
	// RegisterFileWatchers asks the editor to report changes to files
	// matching the watchers through didChangeWatchedFiles.
	RegisterFileWatchers(watchers []protocol.FileSystemWatcher) error
}

// Session is the state shared by every request on one connection.
type Session struct {
	client   Client
	checker  *checker.Checker
	log      *zap.Logger
	metrics  *metrics.Recorder
	debounce time.Duration
	permits  *semaphore.Weighted
	override schema.Source
	noCache  bool

	encMu       sync.RWMutex
	enc         position.Encoding
	clientWatch bool

	mu       sync.Mutex
	docs     map[protocol.DocumentUri]*document
	lastGood map[protocol.DocumentUri]*jsonc.Document

	// pubMu orders a publish after its version check against Close.
	pubMu sync.Mutex

	cfgMu   sync.Mutex
	configs map[string]*config.Project

	watchMu     sync.Mutex
	watched     map[string]bool
	fileWatcher *fileWatcher

	tasks sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithDebounce sets the typing-settle interval.
func WithDebounce(d time.Duration) Option { return func(s *Session) { s.debounce = d } }

// WithPermits sets how many validations may run at once.
func WithPermits(n int64) Option {
	return func(s *Session) { s.permits = semaphore.NewWeighted(n) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Session) { s.log = l } }

// WithMetrics records publish outcomes on m.
func WithMetrics(m *metrics.Recorder) Option { return func(s *Session) { s.metrics = m } }

// WithSchema forces every document to be validated against src.
func WithSchema(src schema.Source) Option { return func(s *Session) { s.override = src } }

// WithNoCache bypasses the disk cache for remote schemas.
func WithNoCache(v bool) Option { return func(s *Session) { s.noCache = v } }

// NewSession returns a session that validates with c and talks to client.
func NewSession(client Client, c *checker.Checker, opts ...Option) *Session {
	s := &Session{
		client:   client,
		checker:  c,
		log:      zap.NewNop(),
		debounce: DefaultDebounce,
		permits:  semaphore.NewWeighted(DefaultPermits),
		docs:     make(map[protocol.DocumentUri]*document),
		lastGood: make(map[protocol.DocumentUri]*jsonc.Document),
		configs:  make(map[string]*config.Project),
		watched:  make(map[string]bool),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Initialize records what was negotiated with the client: the position
// encoding and whether the client can register file watchers for us.
func (s *Session) Initialize(enc position.Encoding, clientWatch bool) {
	s.encMu.Lock()
	defer s.encMu.Unlock()
	s.enc = enc
	s.clientWatch = clientWatch
}

func (s *Session) encoding() position.Encoding {
	s.encMu.RLock()
	defer s.encMu.RUnlock()
	return s.enc
}

func (s *Session) usesClientWatch() bool {
	s.encMu.RLock()
	defer s.encMu.RUnlock()
	return s.clientWatch
}

// Open starts tracking a document and schedules its validation.
func (s *Session) Open(uri protocol.DocumentUri, version protocol.Integer, text string) {
	path, ok := uriPath(uri)
	if !ok {
		s.logClient(protocol.MessageTypeInfo, fmt.Sprintf("jsoncheck: skipping non-file URI: %s", uri))
		return
	}
	s.mu.Lock()
	s.docs[uri] = &document{path: path, version: version, text: text}
	s.mu.Unlock()
	s.schedule(uri)
}

// Change applies edits to an open document and schedules its validation.
func (s *Session) Change(uri protocol.DocumentUri, version protocol.Integer, changes []Change) {
	enc := s.encoding()
	s.mu.Lock()
	d, ok := s.docs[uri]
	if !ok {
		s.mu.Unlock()
		return
	}
	d.text = applyChanges(d.text, changes, enc)
	d.version = version
	s.mu.Unlock()
	s.schedule(uri)
}

// Close forgets a document and clears its diagnostics.
func (s *Session) Close(uri protocol.DocumentUri) {
	s.pubMu.Lock()
	s.mu.Lock()
	_, ok := s.docs[uri]
	delete(s.docs, uri)
	delete(s.lastGood, uri)
	s.mu.Unlock()
	if !ok {
		s.pubMu.Unlock()
		return
	}
	s.client.PublishDiagnostics(protocol.PublishDiagnosticsParams{URI: uri, Diagnostics: []protocol.Diagnostic{}})
	s.pubMu.Unlock()
	s.metrics.Publish(outcomeClosed)
}

// FilesChanged invalidates whatever depends on the changed files and
// revalidates every open document.
func (s *Session) FilesChanged(paths []string) {
	for _, p := range paths {
		if filepath.Base(p) == config.FileName {
			s.cfgMu.Lock()
			delete(s.configs, schema.CanonicalPath(p))
			s.cfgMu.Unlock()
			s.watchMu.Lock()
			clear(s.watched)
			s.watchMu.Unlock()
			s.log.Debug("config changed", zap.String("path", p))
			continue
		}
		if s.checker.Cache().Evict(schema.FileSource(p)) {
			s.log.Debug("schema changed", zap.String("path", p))
		}
	}

	s.mu.Lock()
	uris := make([]protocol.DocumentUri, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	s.mu.Unlock()
	for _, uri := range uris {
		s.schedule(uri)
	}
}

// Wait blocks until every scheduled validation has finished.
func (s *Session) Wait() { s.tasks.Wait() }

// Shutdown stops the server-side file watcher, if one was started.
func (s *Session) Shutdown() error {
	s.watchMu.Lock()
	fw := s.fileWatcher
	s.fileWatcher = nil
	s.watchMu.Unlock()
	if fw != nil {
		return fw.Close()
	}
	return nil
}

func (s *Session) schedule(uri protocol.DocumentUri) {
	s.mu.Lock()
	d, ok := s.docs[uri]
	if !ok {
		s.mu.Unlock()
		return
	}
	version := d.version
	s.mu.Unlock()

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		s.validate(uri, version)
	}()
}

// validate runs one debounced validation. It gives up without publishing
// whenever the document has moved past the version it was scheduled for.
func (s *Session) validate(uri protocol.DocumentUri, version protocol.Integer) {
	time.Sleep(s.debounce)

	ctx := context.Background()
	if err := s.permits.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.permits.Release(1)

	d, ok := s.snapshot(uri, version)
	if !ok {
		s.metrics.Publish(outcomeSuperseded)
		return
	}

	res := s.checker.Check(ctx, d.path, []byte(d.text), s.options(d.path))
	s.logWarnings(res.Warnings)

	diags := toDiagnostics(res.File, s.encoding())

	s.pubMu.Lock()
	s.mu.Lock()
	cur, ok := s.docs[uri]
	current := ok && cur.version == version
	if current && res.Document != nil {
		s.lastGood[uri] = res.Document
	}
	s.mu.Unlock()
	if !current {
		s.pubMu.Unlock()
		s.metrics.Publish(outcomeSuperseded)
		return
	}
	v := protocol.UInteger(version)
	s.client.PublishDiagnostics(protocol.PublishDiagnosticsParams{URI: uri, Version: &v, Diagnostics: diags})
	s.pubMu.Unlock()

	s.metrics.Publish(outcomePublished)
	s.watchSchemas()
}

// snapshot copies the document if it is still at version.
func (s *Session) snapshot(uri protocol.DocumentUri, version protocol.Integer) (document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[uri]
	if !ok || d.version != version {
		return document{}, false
	}
	return *d, true
}

func (s *Session) options(path string) checker.CheckOptions {
	opts := checker.CheckOptions{Override: s.override, NoCache: s.noCache}
	if p := s.project(path); p != nil {
		opts.Mapper = p
	}
	return opts
}

// project returns the compiled config governing path, loading it on first
// use. Load failures are logged and treated as no config.
func (s *Session) project(path string) *config.Project {
	cfgPath, ok := config.Find(filepath.Dir(path))
	if !ok {
		return nil
	}
	key := schema.CanonicalPath(cfgPath)

	s.cfgMu.Lock()
	p, ok := s.configs[key]
	s.cfgMu.Unlock()
	if ok {
		return p
	}

	p, err := config.OpenFile(cfgPath)
	if err != nil {
		s.log.Warn("config failed to load", zap.String("path", cfgPath), zap.Error(err))
		s.logClient(protocol.MessageTypeWarning, fmt.Sprintf("jsoncheck: failed to load %s: %v", cfgPath, err))
		return nil
	}

	s.cfgMu.Lock()
	if existing, ok := s.configs[key]; ok {
		p = existing
	} else {
		s.configs[key] = p
	}
	s.cfgMu.Unlock()
	s.watchServerSide([]string{cfgPath})
	return p
}

// logWarnings reports schema cache warnings. The cache hands each one to a
// single caller, so every caller of GetOrCompile must pass them on.
func (s *Session) logWarnings(warnings []report.Warning) {
	for _, w := range warnings {
		s.log.Warn("schema cache", zap.String("code", w.Code), zap.String("message", w.Message))
		s.logClient(protocol.MessageTypeWarning, w.Message)
	}
}

func (s *Session) logClient(typ protocol.MessageType, msg string) {
	s.client.LogMessage(typ, msg)
}

// toDiagnostics converts a file result to LSP diagnostics. Unanchored
// diagnostics are placed at the start of the document.
func toDiagnostics(f report.FileResult, enc position.Encoding) []protocol.Diagnostic {
	ix := position.NewIndex(f.Source)
	out := make([]protocol.Diagnostic, 0, len(f.Diagnostics))
	for _, d := range f.Diagnostics {
		var rng protocol.Range
		if span, ok := d.Span(); ok {
			rng = toRange(ix, span, enc)
		}
		sev := protocol.DiagnosticSeverityError
		if d.Severity == report.SeverityWarning {
			sev = protocol.DiagnosticSeverityWarning
		}
		source := diagnosticSource
		out = append(out, protocol.Diagnostic{
			Range:    rng,
			Severity: &sev,
			Code:     &protocol.IntegerOrString{Value: d.Code},
			Source:   &source,
			Message:  d.Message,
		})
	}
	return out
}
