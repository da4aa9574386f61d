package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foundry-zero/jsoncheck/internal/config"
	"github.com/foundry-zero/jsoncheck/internal/diskcache"
	"github.com/foundry-zero/jsoncheck/internal/fetch"
	"github.com/foundry-zero/jsoncheck/internal/metrics"
	"github.com/foundry-zero/jsoncheck/internal/schema"
)

// newRootCmd creates the jsoncheck command with all subcommands registered.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jsoncheck",
		Short:         "jsoncheck - validate JSON and JSONC files against JSON Schema",
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(newCheckCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newCompletionsCmd())
	root.AddCommand(newLSPCmd())
	return root
}

// loadProject opens the config named by flag, or discovers one upward from
// dir when flag is empty. A discovered config that fails to load is handed
// to warn and replaced by the defaults; only an explicit one is fatal.
func loadProject(flag, dir string, warn func(error)) (*config.Project, error) {
	if flag != "" {
		return config.OpenFile(flag)
	}
	p, err := config.Open(dir)
	if err == nil {
		return p, nil
	}
	warn(err)
	return config.Compile(config.Default(), dir, "")
}

// newDiskCache returns the persistent schema cache. Without a usable cache
// directory remote schemas are fetched on every run.
func newDiskCache(log *zap.Logger) *diskcache.Store {
	dir, err := diskcache.DefaultDir()
	if err != nil {
		log.Warn("schema cache disabled", zap.Error(err))
		dir = ""
	}
	return diskcache.New(dir, fetch.New(fetch.WithLogger(log)), diskcache.WithLogger(log))
}

func newSchemaCache(log *zap.Logger, rec *metrics.Recorder) *schema.Cache {
	return schema.NewCache(newDiskCache(log), schema.WithLogger(log), schema.WithMetrics(rec))
}
