package config

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relAll(t *testing.T, root string, paths []string) []string {
	t.Helper()
	var out []string
	for _, p := range paths {
		rel, ok := Relativize(root, p)
		require.True(t, ok, p)
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.json"), `{}`)
	write(t, filepath.Join(root, "b.jsonc"), `{}`)
	write(t, filepath.Join(root, "notes.txt"), ``)
	write(t, filepath.Join(root, "sub", "c.json"), `{}`)
	write(t, filepath.Join(root, "vendor", "v.json"), `{}`)
	write(t, filepath.Join(root, "build", "out.json"), `{}`)
	write(t, filepath.Join(root, ".gitignore"), "build/\n")
	write(t, filepath.Join(root, ".git", "config.json"), `{}`)

	p, err := Compile(&Config{Files: []string{"**/*.json", "**/*.jsonc", "!vendor/**"}}, root, "")
	require.NoError(t, err)

	files, warnings, err := p.Discover([]string{root})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{"a.json", "b.jsonc", "sub/c.json"}, relAll(t, root, files))
}

func TestDiscoverSubdirectoryRoot(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.json"), `{}`)
	write(t, filepath.Join(root, "sub", "c.json"), `{}`)
	write(t, filepath.Join(root, "sub", "skip", "d.json"), `{}`)
	write(t, filepath.Join(root, "sub", ".gitignore"), "skip/\n")

	p, err := Compile(Default(), root, "")
	require.NoError(t, err)

	files, _, err := p.Discover([]string{filepath.Join(root, "sub"), filepath.Join(root, "sub")})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/c.json"}, relAll(t, root, files), "nested .gitignore applies and duplicates collapse")
}

func TestDiscoverUnreadableDirectoryWarns(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := t.TempDir()
	write(t, filepath.Join(root, "a.json"), `{}`)
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Mkdir(locked, 0o755))
	write(t, filepath.Join(locked, "x.json"), `{}`)
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	p, err := Compile(Default(), root, "")
	require.NoError(t, err)
	files, warnings, err := p.Discover([]string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json"}, relAll(t, root, files))
	require.NotEmpty(t, warnings)
	assert.Equal(t, "walk", warnings[0].Code)
}
