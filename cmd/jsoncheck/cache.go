package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foundry-zero/jsoncheck/internal/diskcache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the remote schema cache",
	}
	cmd.AddCommand(newCacheDirCmd())
	cmd.AddCommand(newCacheListCmd())
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dir",
		Short: "Print the cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := diskcache.DefaultDir()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

func newCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := diskcache.DefaultDir()
			if err != nil {
				return err
			}
			entries, skipped, err := diskcache.New(dir, nil).List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no cached schemas")
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s  %s\n", e.URL, e.FetchedAt.UTC().Format("2006-01-02 15:04:05Z"), formatSize(e.Size))
			}
			if skipped > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipped %d unreadable cache entries\n", skipped)
			}
			return nil
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := diskcache.DefaultDir()
			if err != nil {
				return err
			}
			res, err := diskcache.New(dir, nil).Clear()
			if errors.Is(err, diskcache.ErrSymlink) {
				return fmt.Errorf("refusing to clear cache: %w", err)
			}
			if err != nil {
				return err
			}
			switch res {
			case diskcache.AlreadyEmpty:
				fmt.Fprintf(cmd.OutOrStdout(), "cache already empty: %s\n", dir)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "cleared cache: %s\n", dir)
			}
			return nil
		},
	}
}

// formatSize renders n bytes as "512 B", "4.2 KB" or "1.3 MB".
func formatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
