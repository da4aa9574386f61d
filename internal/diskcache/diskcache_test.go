package diskcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "https://example.com/schema.json"

type fakeFetcher struct {
	mu    sync.Mutex
	body  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newStore(t *testing.T, f Fetcher) (*Store, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(filepath.Join(t.TempDir(), "schemas"), f, WithClock(c.now)), c
}

func TestLoadMissThenHit(t *testing.T) {
	f := &fakeFetcher{body: `{"v":1}`}
	s, _ := newStore(t, f)

	body, warns, out, err := s.Load(context.Background(), testURL, false)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(body))
	assert.Empty(t, warns)
	assert.Equal(t, Miss, out)

	f.body = `{"v":2}`
	body, _, out, err = s.Load(context.Background(), testURL, false)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(body), "fresh entry is served unmodified")
	assert.Equal(t, Hit, out)
	assert.Equal(t, 1, f.calls)
}

func TestLoadStaleRefreshed(t *testing.T) {
	f := &fakeFetcher{body: `{"v":1}`}
	s, c := newStore(t, f)
	_, _, _, err := s.Load(context.Background(), testURL, false)
	require.NoError(t, err)

	c.t = c.t.Add(DefaultTTL + time.Minute)
	f.body = `{"v":2}`
	body, warns, out, err := s.Load(context.Background(), testURL, false)
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(body))
	assert.Empty(t, warns)
	assert.Equal(t, StaleRefreshed, out)

	_, _, out, _ = s.Load(context.Background(), testURL, false)
	assert.Equal(t, Hit, out, "refresh rewrote the timestamp")
}

func TestLoadStaleFallback(t *testing.T) {
	f := &fakeFetcher{body: `{"v":1}`}
	s, c := newStore(t, f)
	_, _, _, err := s.Load(context.Background(), testURL, false)
	require.NoError(t, err)

	c.t = c.t.Add(DefaultTTL + time.Minute)
	f.err = errors.New("network down")
	body, warns, out, err := s.Load(context.Background(), testURL, false)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`, string(body))
	assert.Equal(t, StaleFallback, out)
	require.Len(t, warns, 1)
	assert.Equal(t, CodeStale, warns[0].Code)
	assert.Contains(t, warns[0].Message, testURL)
}

func TestLoadBypassNeverTouchesDisk(t *testing.T) {
	f := &fakeFetcher{body: `{"v":1}`}
	s, _ := newStore(t, f)

	_, _, out, err := s.Load(context.Background(), testURL, true)
	require.NoError(t, err)
	assert.Equal(t, Bypassed, out)
	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err), "bypass must not create the cache")

	// A warm cache is ignored under bypass.
	_, _, _, err = s.Load(context.Background(), testURL, false)
	require.NoError(t, err)
	f.body = `{"v":2}`
	body, _, out, err := s.Load(context.Background(), testURL, true)
	require.NoError(t, err)
	assert.Equal(t, Bypassed, out)
	assert.Equal(t, `{"v":2}`, string(body))

	body, _, out, _ = s.Load(context.Background(), testURL, false)
	assert.Equal(t, Hit, out)
	assert.Equal(t, `{"v":1}`, string(body), "bypass must not write the cache")
}

func TestLoadFetchErrorOnMiss(t *testing.T) {
	f := &fakeFetcher{err: errors.New("boom")}
	s, _ := newStore(t, f)
	_, _, _, err := s.Load(context.Background(), testURL, false)
	assert.EqualError(t, err, "boom")
}

func TestWriteRefusesSymlinkedEntry(t *testing.T) {
	f := &fakeFetcher{body: `{"v":1}`}
	s, _ := newStore(t, f)
	require.NoError(t, os.MkdirAll(s.Dir(), 0o755))

	target := filepath.Join(t.TempDir(), "elsewhere")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o644))
	content, _ := s.paths(testURL)
	require.NoError(t, os.Symlink(target, content))

	err := s.write(testURL, []byte("poison"))
	assert.ErrorIs(t, err, ErrSymlink)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestSymlinkedDirectoryIsIgnored(t *testing.T) {
	realDir := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(realDir, link))

	f := &fakeFetcher{body: `{}`}
	s := New(link, f)
	_, _, out, err := s.Load(context.Background(), testURL, false)
	require.NoError(t, err)
	assert.Equal(t, Miss, out)

	entries, err := os.ReadDir(realDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.Clear()
	assert.ErrorIs(t, err, ErrSymlink)
	_, err = os.Stat(realDir)
	assert.NoError(t, err)
}

func TestListCountsCorruptEntries(t *testing.T) {
	f := &fakeFetcher{body: `{"a":1}`}
	s, _ := newStore(t, f)
	for _, u := range []string{"https://b.example/s.json", "https://a.example/s.json"} {
		_, _, _, err := s.Load(context.Background(), u, false)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "junk.meta"), []byte("not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "empty.meta"), []byte(`{}`), 0o644))

	entries, skipped, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, entries, 2)
	assert.Equal(t, "https://a.example/s.json", entries[0].URL)
	assert.Equal(t, int64(len(`{"a":1}`)), entries[0].Size)
}

func TestListMissingDirectory(t *testing.T) {
	s, _ := newStore(t, &fakeFetcher{})
	entries, skipped, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, skipped)
}

func TestClear(t *testing.T) {
	f := &fakeFetcher{body: `{}`}
	s, _ := newStore(t, f)

	res, err := s.Clear()
	require.NoError(t, err)
	assert.Equal(t, AlreadyEmpty, res)

	_, _, _, err = s.Load(context.Background(), testURL, false)
	require.NoError(t, err)
	res, err = s.Clear()
	require.NoError(t, err)
	assert.Equal(t, Cleared, res)
	_, err = os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))
}

func TestDefaultDirEnvOverride(t *testing.T) {
	t.Setenv(EnvDir, "/tmp/custom-cache")
	d, err := DefaultDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-cache", d)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "stale-fallback", StaleFallback.String())
	assert.Equal(t, "", None.String())
}
