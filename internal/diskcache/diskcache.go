// Package diskcache persists fetched remote schemas on disk with a TTL and
// falls back to stale content when a refresh fails.
package diskcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/foundry-zero/jsoncheck/internal/report"
)

// DefaultTTL is how long a cached schema is served without re-fetching.
const DefaultTTL = 24 * time.Hour

// EnvDir overrides the cache directory.
const EnvDir = "JSONCHECK_CACHE_DIR"

// CodeStale is the warning code emitted when stale content is served.
const CodeStale = "cache(stale)"

// ErrSymlink is returned when a cache file or the cache directory is a
// symbolic link.
var ErrSymlink = errors.New("refusing to operate through a symlink")

// Outcome records how a URL was served.
type Outcome int

const (
	// None means no disk or network activity happened for the caller.
	None Outcome = iota
	Hit
	Miss
	// StaleRefreshed means the entry was past its TTL and was re-fetched.
	StaleRefreshed
	// StaleFallback means the entry was past its TTL, the re-fetch failed,
	// and the old content was served.
	StaleFallback
	Bypassed
)

func (o Outcome) String() string {
	switch o {
	case None:
		return ""
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	case StaleRefreshed:
		return "stale-refreshed"
	case StaleFallback:
		return "stale-fallback"
	case Bypassed:
		return "bypassed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Fetcher downloads a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type meta struct {
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store is a directory of cached schemas. Each entry is a content file
// <sha256(url)>.json and a sidecar <sha256(url)>.meta.
type Store struct {
	dir   string
	ttl   time.Duration
	fetch Fetcher
	now   func() time.Time
	log   *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option { return func(s *Store) { s.ttl = d } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// WithLogger sets the logger for non-fatal write failures.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

// New returns a Store rooted at dir. An empty dir disables persistence:
// every Load goes to the network.
func New(dir string, f Fetcher, opts ...Option) *Store {
	s := &Store{dir: dir, ttl: DefaultTTL, fetch: f, now: time.Now, log: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DefaultDir returns $JSONCHECK_CACHE_DIR or the per-user cache directory.
func DefaultDir() (string, error) {
	if d := os.Getenv(EnvDir); d != "" {
		return d, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("determine cache directory: %w", err)
	}
	return filepath.Join(base, "jsoncheck", "schemas"), nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Key returns the cache key for url.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

// Load returns the content for url. With bypass set the network is always
// used and the disk is neither read nor written.
func (s *Store) Load(ctx context.Context, url string, bypass bool) ([]byte, []report.Warning, Outcome, error) {
	if bypass {
		body, err := s.fetch.Fetch(ctx, url)
		if err != nil {
			return nil, nil, None, err
		}
		return body, nil, Bypassed, nil
	}

	usable := s.usable()
	if usable {
		if cached, fetchedAt, ok := s.read(url); ok {
			if s.now().Sub(fetchedAt) < s.ttl {
				return cached, nil, Hit, nil
			}
			fresh, err := s.fetch.Fetch(ctx, url)
			if err != nil {
				s.log.Debug("refresh of stale schema failed", zap.String("url", url), zap.Error(err))
				w := report.Warning{
					Code:    CodeStale,
					Message: fmt.Sprintf("using stale cached schema for %s (re-fetch failed)", url),
				}
				return cached, []report.Warning{w}, StaleFallback, nil
			}
			s.store(url, fresh)
			return fresh, nil, StaleRefreshed, nil
		}
	}

	body, err := s.fetch.Fetch(ctx, url)
	if err != nil {
		return nil, nil, None, err
	}
	if usable {
		s.store(url, body)
	}
	return body, nil, Miss, nil
}

// usable reports whether the cache directory may be used. A symlinked
// directory is never read or written.
func (s *Store) usable() bool {
	if s.dir == "" {
		return false
	}
	fi, err := os.Lstat(s.dir)
	if err == nil && fi.Mode()&fs.ModeSymlink != 0 {
		s.log.Warn("schema cache directory is a symlink; ignoring it", zap.String("dir", s.dir))
		return false
	}
	return true
}

func (s *Store) paths(url string) (content, sidecar string) {
	k := Key(url)
	return filepath.Join(s.dir, k+".json"), filepath.Join(s.dir, k+".meta")
}

// read returns the cached content and fetch time for url. An entry with
// missing or corrupt metadata is treated as stale.
func (s *Store) read(url string) ([]byte, time.Time, bool) {
	contentPath, metaPath := s.paths(url)
	body, err := os.ReadFile(contentPath)
	if err != nil {
		return nil, time.Time{}, false
	}
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return body, time.Time{}, true
	}
	var m meta
	if err := json.Unmarshal(raw, &m); err != nil || m.URL != url {
		return body, time.Time{}, true
	}
	return body, m.FetchedAt, true
}

// store writes an entry. Failures are logged; the caller already has the
// content it needs.
func (s *Store) store(url string, body []byte) {
	if err := s.write(url, body); err != nil {
		s.log.Warn("could not write schema cache entry", zap.String("url", url), zap.Error(err))
	}
}

func (s *Store) write(url string, body []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	contentPath, metaPath := s.paths(url)
	for _, p := range []string{s.dir, contentPath, metaPath} {
		if fi, err := os.Lstat(p); err == nil && fi.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%s: %w", p, ErrSymlink)
		}
	}
	m, err := json.MarshalIndent(meta{URL: url, FetchedAt: s.now().UTC()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache metadata: %w", err)
	}
	if err := writeAtomic(contentPath, body); err != nil {
		return err
	}
	return writeAtomic(metaPath, m)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}

// Entry describes one cached schema.
type Entry struct {
	URL       string    `json:"url" yaml:"url"`
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`
	Size      int64     `json:"size" yaml:"size"`
}

// List returns the cached entries sorted by URL, plus the number of entries
// whose metadata could not be read or decoded.
func (s *Store) List() ([]Entry, int, error) {
	if s.dir == "" {
		return nil, 0, nil
	}
	dirents, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read cache directory: %w", err)
	}

	var entries []Entry
	skipped := 0
	for _, de := range dirents {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".meta") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			skipped++
			continue
		}
		var m meta
		if err := json.Unmarshal(raw, &m); err != nil || m.URL == "" {
			skipped++
			continue
		}
		e := Entry{URL: m.URL, FetchedAt: m.FetchedAt}
		if fi, err := os.Stat(filepath.Join(s.dir, strings.TrimSuffix(name, ".meta")+".json")); err == nil {
			e.Size = fi.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].URL < entries[j].URL })
	return entries, skipped, nil
}

// ClearResult reports what Clear did.
type ClearResult int

const (
	Cleared ClearResult = iota
	AlreadyEmpty
)

// Clear deletes the cache directory. It refuses when the directory is a
// symlink.
func (s *Store) Clear() (ClearResult, error) {
	if s.dir == "" {
		return AlreadyEmpty, nil
	}
	fi, err := os.Lstat(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return AlreadyEmpty, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat cache directory: %w", err)
	}
	if fi.Mode()&fs.ModeSymlink != 0 {
		return 0, fmt.Errorf("cache directory %s: %w", s.dir, ErrSymlink)
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return 0, fmt.Errorf("remove cache directory: %w", err)
	}
	return Cleared, nil
}
