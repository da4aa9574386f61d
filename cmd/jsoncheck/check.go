package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foundry-zero/jsoncheck/internal/checker"
	"github.com/foundry-zero/jsoncheck/internal/config"
	"github.com/foundry-zero/jsoncheck/internal/logging"
	"github.com/foundry-zero/jsoncheck/internal/report"
	"github.com/foundry-zero/jsoncheck/internal/schema"
)

const (
	defaultJobs = 10
	maxJobs     = 256
)

type checkFlags struct {
	schema  string
	config  string
	format  string
	jobs    int
	strict  bool
	noCache bool
	verbose bool
}

func newCheckCmd() *cobra.Command {
	var f checkFlags
	cmd := &cobra.Command{
		Use:   "check [path ...]",
		Short: "Validate files against their JSON Schemas",
		Long: `Validate files against their JSON Schemas.

Directories are searched for files selected by the project config; with no
arguments the current directory is searched. A file's schema comes from
--schema, then its "$schema" key, then the first matching config mapping.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.schema, "schema", "s", "", "validate every file against this schema (path or URL)")
	fl.StringVarP(&f.config, "config", "c", "", "path to "+config.FileName+" (default: discovered upward)")
	fl.StringVarP(&f.format, "format", "f", "human", "output format: human or json")
	fl.IntVarP(&f.jobs, "jobs", "j", defaultJobs, fmt.Sprintf("files checked concurrently (1-%d)", maxJobs))
	fl.BoolVar(&f.strict, "strict", false, "treat files without a schema as invalid")
	fl.BoolVar(&f.noCache, "no-cache", false, "always fetch remote schemas, bypassing the disk cache")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "log progress and include provenance in json output")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string, f checkFlags) error {
	start := time.Now()
	stderr := cmd.ErrOrStderr()

	if f.format != "human" && f.format != "json" {
		return fmt.Errorf("invalid format %q (use human or json)", f.format)
	}
	if f.jobs < 1 || f.jobs > maxJobs {
		return fmt.Errorf("invalid --jobs %d (must be between 1 and %d)", f.jobs, maxJobs)
	}

	log := logging.New(f.verbose, stderr)
	defer func() { _ = log.Sync() }()
	log.Debug("starting check", zap.Int("jobs", f.jobs))

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	var warnings []report.Warning
	project, err := loadProject(f.config, cwd, func(err error) {
		log.Debug("ignoring config", zap.Error(err))
		warnings = append(warnings, report.Warning{
			Code:    "config",
			Message: fmt.Sprintf("ignoring config, using defaults: %v", err),
		})
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: failed to load config: %v\n", err)
		return &exitError{code: 2}
	}
	if project.Path == "" {
		log.Debug("no config found, using defaults")
	} else {
		log.Debug("using config", zap.String("path", project.Path))
	}
	log.Debug("project root", zap.String("root", project.Root))

	var override schema.Source
	if f.schema != "" {
		override = schema.ResolveRef(f.schema, cwd)
	}

	paths, walkWarnings, err := collectFiles(project, args, log)
	if err != nil {
		return err
	}
	warnings = append(warnings, walkWarnings...)
	if len(paths) == 0 {
		if f.format == "human" {
			for _, w := range warnings {
				fmt.Fprintf(stderr, "warning: %s: %s\n", w.Code, w.Message)
			}
			fmt.Fprintln(stderr, "warning: no files to check")
		}
		return nil
	}

	c := checker.NewChecker(newSchemaCache(log, nil), checker.WithLogger(log))
	opts := checker.CheckOptions{
		Override: override,
		Mapper:   project,
		Strict:   f.strict || project.Strict(),
		NoCache:  f.noCache,
	}
	results, checkWarnings := c.CheckFiles(cmd.Context(), paths, opts, f.jobs)
	rep := report.NewReport(results, append(warnings, checkWarnings...), time.Since(start))

	switch f.format {
	case "json":
		data, err := report.FormatJSON(rep, f.verbose)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	default:
		fmt.Fprint(stderr, report.FormatText(rep))
	}

	if code := rep.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// collectFiles expands args into the files to check. Directories are
// searched with the project's discovery rules; other arguments are checked
// as given, whether or not the config would select them.
func collectFiles(p *config.Project, args []string, log *zap.Logger) ([]string, []report.Warning, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	var files, dirs []string
	for _, arg := range args {
		if fi, err := os.Stat(arg); err == nil && fi.IsDir() {
			dirs = append(dirs, arg)
			continue
		}
		files = append(files, arg)
	}
	if len(dirs) == 0 {
		return files, nil, nil
	}

	log.Debug("discovering files", zap.Strings("dirs", dirs))
	found, warnings, err := p.Discover(dirs)
	if err != nil {
		return nil, warnings, err
	}
	log.Debug("discovered files", zap.Int("count", len(found)))
	return append(files, found...), warnings, nil
}
