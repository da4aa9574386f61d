package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/foundry-zero/jsoncheck/internal/checker"
	"github.com/foundry-zero/jsoncheck/internal/logging"
	"github.com/foundry-zero/jsoncheck/internal/lsp"
	"github.com/foundry-zero/jsoncheck/internal/metrics"
	"github.com/foundry-zero/jsoncheck/internal/schema"
)

type lspFlags struct {
	schema      string
	metricsAddr string
	noCache     bool
	verbose     bool
}

func newLSPCmd() *cobra.Command {
	var f lspFlags
	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Run the language server on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLSP(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.schema, "schema", "s", "", "validate every document against this schema (path or URL)")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
	fl.BoolVar(&f.noCache, "no-cache", false, "always fetch remote schemas, bypassing the disk cache")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "log debug records to stderr")
	return cmd
}

func runLSP(cmd *cobra.Command, f lspFlags) error {
	log := logging.New(f.verbose, cmd.ErrOrStderr())
	defer func() { _ = log.Sync() }()

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if f.metricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, f.metricsAddr, reg, log); err != nil {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	opts := []lsp.Option{
		lsp.WithLogger(log),
		lsp.WithMetrics(rec),
		lsp.WithNoCache(f.noCache),
	}
	if f.schema != "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		opts = append(opts, lsp.WithSchema(schema.ResolveRef(f.schema, cwd)))
	}

	c := checker.NewChecker(newSchemaCache(log, rec), checker.WithLogger(log), checker.WithMetrics(rec))
	client := lsp.NewClient()
	session := lsp.NewSession(client, c, opts...)
	return lsp.NewServer(session, client, version, log).RunStdio()
}
