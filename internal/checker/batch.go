package checker

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/foundry-zero/jsoncheck/internal/report"
)

// DefaultJobs is the worker count used when none is given.
const DefaultJobs = 8

// CheckFiles checks every path on a pool of at most jobs workers. Results
// and warnings come back in input order. Unreadable files become tool errors.
func (c *Checker) CheckFiles(ctx context.Context, paths []string, opts CheckOptions, jobs int) ([]report.FileResult, []report.Warning) {
	if jobs < 1 {
		jobs = DefaultJobs
	}
	results := make([]report.FileResult, len(paths))
	warnings := make([][]report.Warning, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			src, err := os.ReadFile(path)
			if err != nil {
				results[i] = report.FileResult{
					Path:        path,
					Status:      report.StatusToolError,
					Diagnostics: []report.Diagnostic{report.NewError(report.CodeRead, fmt.Sprintf("could not read %s: %v", path, err))},
				}
				return nil
			}
			res := c.Check(ctx, path, src, opts)
			results[i], warnings[i] = res.File, res.Warnings
			return nil
		})
	}
	_ = g.Wait()

	var all []report.Warning
	for _, w := range warnings {
		all = append(all, w...)
	}
	return results, all
}
