package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/varoOP/seasondb/internal/app"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Format the overrides YAML file",
	Long: `Format rewrites the hand-maintained overrides file with sorted ids and
consistent indentation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			n, err := a.FormatOverrides(ctx)
			if err != nil {
				return fmt.Errorf("format failed: %w", err)
			}
			fmt.Printf("Formatted %d overrides in %s\n", n, a.Paths().OverridesFile)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)
}
