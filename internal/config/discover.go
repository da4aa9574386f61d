package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/foundry-zero/jsoncheck/internal/report"
)

// Discover walks each directory in roots and returns the files the project
// selects: those matched by the "files" patterns and not ignored by any
// .gitignore under the project root. Unreadable entries become "walk"
// warnings instead of failing the walk. Results are in walk order with
// duplicates removed.
func (p *Project) Discover(roots []string) ([]string, []report.Warning, error) {
	var (
		files    []string
		warnings []report.Warning
		seen     = make(map[string]bool)
	)

	ignore, err := p.ignoreMatcher()
	if err != nil {
		warnings = append(warnings, report.Warning{
			Code:    "walk",
			Message: fmt.Sprintf("error reading ignore files: %v", err),
		})
	}
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				warnings = append(warnings, report.Warning{
					Code:    "walk",
					Message: fmt.Sprintf("error walking directory: %v", err),
				})
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			rel, inside := Relativize(p.Root, path)
			if d.IsDir() {
				if d.Name() == ".git" && path != root {
					return fs.SkipDir
				}
				if inside && rel != "." && ignore.Match(strings.Split(rel, "/"), true) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !inside {
				return nil
			}
			if ignore.Match(strings.Split(rel, "/"), false) || !p.Includes(rel) {
				return nil
			}
			if !seen[rel] {
				seen[rel] = true
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, warnings, fmt.Errorf("discover files in %s: %w", root, err)
		}
	}
	return files, warnings, nil
}

// ignoreMatcher collects .gitignore and .git/info/exclude patterns below
// the project root. On error the matcher holds whatever was read before it.
func (p *Project) ignoreMatcher() (gitignore.Matcher, error) {
	if _, err := os.Stat(p.Root); err != nil {
		return gitignore.NewMatcher(nil), err
	}
	patterns, err := gitignore.ReadPatterns(osfs.New(p.Root), nil)
	return gitignore.NewMatcher(patterns), err
}
