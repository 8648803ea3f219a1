package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/varoOP/seasondb/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate-cache",
	Short: "Rewrite a legacy cover cache with content-hash keys only",
	Long: `Migrate rewrites the cover cache file in canonical form. Older cache files mixed
content-hash keys with per-URL keys and embedded season datasets; only the
"cloudinary_<md5>" entries are kept. An unreadable file is left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.MigrateCache(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("\n✓ Cache migration complete!\n")
			fmt.Printf("  Entries kept: %d\n", report.Loaded)
			fmt.Printf("  Legacy entries dropped: %d\n\n", report.Dropped)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
