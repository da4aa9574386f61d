package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/foundry-zero/jsoncheck/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the project configuration",
	}
	cmd.AddCommand(newConfigPrintCmd())
	cmd.AddCommand(newConfigSchemaCmd())
	return cmd
}

func newConfigPrintCmd() *cobra.Command {
	var path, format string
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("invalid format %q (use json or yaml)", format)
			}
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("determine working directory: %w", err)
			}
			project, err := loadProject(path, cwd, func(err error) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: ignoring config, using defaults: %v\n", err)
			})
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: failed to load config: %v\n", err)
				return &exitError{code: 2}
			}

			var out []byte
			if format == "yaml" {
				out, err = yaml.Marshal(project.Config)
			} else {
				out, err = json.MarshalIndent(project.Config, "", "  ")
				out = append(out, '\n')
			}
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "path to "+config.FileName+" (default: discovered upward)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	return cmd
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for " + config.FileName,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := cmd.OutOrStdout().Write(config.SchemaJSON())
			return err
		},
	}
}
