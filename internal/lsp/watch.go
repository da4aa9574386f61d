package lsp

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"

	"github.com/foundry-zero/jsoncheck/internal/config"
)

const configGlob = "**/" + config.FileName

// Start sets up watching of project config files. Clients that support
// dynamic registration watch for us; otherwise an fsnotify watcher follows
// each config and local schema as it comes into use.
func (s *Session) Start() {
	if s.usesClientWatch() {
		err := s.client.RegisterFileWatchers([]protocol.FileSystemWatcher{{GlobPattern: configGlob}})
		if err != nil {
			s.log.Warn("register config watcher", zap.Error(err))
			s.logClient(protocol.MessageTypeWarning, fmt.Sprintf(
				"jsoncheck: failed to register file watcher (%v); config changes won't trigger re-validation", err))
		}
		return
	}

	fw, err := newFileWatcher(s.FilesChanged, s.log)
	if err != nil {
		s.log.Warn("start file watcher", zap.Error(err))
		return
	}
	s.watchMu.Lock()
	s.fileWatcher = fw
	s.watchMu.Unlock()
}

// watchSchemas starts watching local schema files that are in use but not
// yet watched.
func (s *Session) watchSchemas() {
	paths := s.checker.Cache().CachedFilePaths()

	s.watchMu.Lock()
	var fresh []string
	for _, p := range paths {
		if !s.watched[p] {
			s.watched[p] = true
			fresh = append(fresh, p)
		}
	}
	s.watchMu.Unlock()
	if len(fresh) == 0 {
		return
	}

	if s.usesClientWatch() {
		watchers := make([]protocol.FileSystemWatcher, len(fresh))
		for i, p := range fresh {
			watchers[i] = protocol.FileSystemWatcher{GlobPattern: filepath.ToSlash(p)}
		}
		if err := s.client.RegisterFileWatchers(watchers); err != nil {
			s.log.Warn("register schema watchers", zap.Strings("paths", fresh), zap.Error(err))
		}
		return
	}
	s.watchServerSide(fresh)
}

func (s *Session) watchServerSide(paths []string) {
	s.watchMu.Lock()
	fw := s.fileWatcher
	s.watchMu.Unlock()
	if fw == nil {
		return
	}
	for _, p := range paths {
		if err := fw.Add(p); err != nil {
			s.log.Warn("watch file", zap.String("path", p), zap.Error(err))
		}
	}
}

// fileWatcher reports changes to individual files. It watches their
// directories, since editors often replace a file on save rather than
// writing it in place.
type fileWatcher struct {
	w        *fsnotify.Watcher
	log      *zap.Logger
	onChange func([]string)

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
}

func newFileWatcher(onChange func([]string), log *zap.Logger) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &fileWatcher{
		w:        w,
		log:      log,
		onChange: onChange,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}
	go fw.run()
	return fw, nil
}

// Add starts reporting changes to path.
func (fw *fileWatcher) Add(path string) error {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	fw.mu.Lock()
	fw.files[path] = true
	known := fw.dirs[dir]
	fw.dirs[dir] = true
	fw.mu.Unlock()
	if known {
		return nil
	}
	if err := fw.w.Add(dir); err != nil {
		fw.mu.Lock()
		delete(fw.dirs, dir)
		fw.mu.Unlock()
		return err
	}
	return nil
}

func (fw *fileWatcher) tracked(path string) bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.files[filepath.Clean(path)]
}

func (fw *fileWatcher) run() {
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			if ev.Op == fsnotify.Chmod || !fw.tracked(ev.Name) {
				continue
			}
			fw.log.Debug("watched file changed", zap.String("path", ev.Name), zap.Stringer("op", ev.Op))
			fw.onChange([]string{ev.Name})
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			fw.log.Warn("file watcher", zap.Error(err))
		}
	}
}

// Close stops the watcher.
func (fw *fileWatcher) Close() error { return fw.w.Close() }
