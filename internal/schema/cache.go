package schema

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/foundry-zero/jsoncheck/internal/diskcache"
	"github.com/foundry-zero/jsoncheck/internal/metrics"
	"github.com/foundry-zero/jsoncheck/internal/report"
)

// slot is the compile-once state for one Source. It is never modified after
// the once has run; eviction replaces the whole slot.
type slot struct {
	once     sync.Once
	compiled *Compiled
	err      error
	warnings []report.Warning
	outcome  diskcache.Outcome
}

// Cache holds one compiled validator per Source. Concurrent requests for the
// same Source share a single load and compile; the map lock is never held
// while compiling.
type Cache struct {
	urls    URLLoader
	metrics *metrics.Recorder
	log     *zap.Logger

	mu    sync.Mutex
	slots map[Source]*slot
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithMetrics records compile and cache outcomes on m.
func WithMetrics(m *metrics.Recorder) CacheOption { return func(c *Cache) { c.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) CacheOption { return func(c *Cache) { c.log = l } }

// NewCache returns an empty cache that loads URL sources through urls.
func NewCache(urls URLLoader, opts ...CacheOption) *Cache {
	c := &Cache{urls: urls, log: zap.NewNop(), slots: make(map[Source]*slot)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetOrCompile returns the validator for src, compiling it on first use.
// Only the call that performed the compilation receives its warnings and
// disk cache outcome; every other call gets nil warnings and None. Failures
// are cached too: a failed source stays failed until it is evicted.
func (c *Cache) GetOrCompile(ctx context.Context, src Source, bypass bool) (*Compiled, []report.Warning, diskcache.Outcome, error) {
	s := c.slot(src)
	initialized := false
	s.once.Do(func() {
		initialized = true
		c.initialize(context.WithoutCancel(ctx), s, src, bypass)
	})
	if s.err != nil {
		return nil, nil, diskcache.None, s.err
	}
	if !initialized {
		return s.compiled, nil, diskcache.None, nil
	}
	return s.compiled, s.warnings, s.outcome, nil
}

func (c *Cache) slot(src Source) *slot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[src]
	if !ok {
		s = &slot{}
		c.slots[src] = s
	}
	return s
}

func (c *Cache) initialize(ctx context.Context, s *slot, src Source, bypass bool) {
	fail := func(kind ErrorKind, err error) {
		s.err = &Error{Kind: kind, Source: src, Err: err}
		c.metrics.Compile(kind.String())
		c.log.Debug("schema failed", zap.Stringer("source", src), zap.Error(s.err))
	}

	var body []byte
	if src.IsURL() {
		b, warns, outcome, err := c.urls.Load(ctx, src.Ref, bypass)
		if err != nil {
			fail(FetchFailure, err)
			return
		}
		body, s.warnings, s.outcome = b, warns, outcome
		c.metrics.CacheOutcome(outcome.String())
	} else {
		b, err := os.ReadFile(src.Ref)
		if err != nil {
			fail(ReadFailure, err)
			return
		}
		body = b
	}

	raw, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		fail(ParseFailure, err)
		return
	}

	refs := &refLoader{ctx: ctx, urls: c.urls, bypass: bypass}
	sch, err := compile(src, raw, refs)
	s.warnings = append(s.warnings, refs.warnings...)
	if err != nil {
		if refs.failed != nil {
			fail(FetchFailure, errors.Join(refs.failed, err))
		} else {
			fail(CompileFailure, err)
		}
		return
	}
	s.compiled = &Compiled{Source: src, Schema: sch, Raw: raw}
	c.metrics.Compile("ok")
	c.log.Debug("compiled schema", zap.Stringer("source", src), zap.Stringer("cache", s.outcome))
}

// Evict drops the slot for src so the next reference recompiles. It reports
// whether a slot was present.
func (c *Cache) Evict(src Source) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.slots[src]
	delete(c.slots, src)
	return ok
}

// CachedFilePaths lists the file-backed sources currently cached, sorted.
func (c *Cache) CachedFilePaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var paths []string
	for src := range c.slots {
		if src.Kind == KindFile {
			paths = append(paths, src.Ref)
		}
	}
	sort.Strings(paths)
	return paths
}
