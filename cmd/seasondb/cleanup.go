package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/varoOP/seasondb/internal/app"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete hosted covers that no recent season references",
	Long: `Cleanup builds an allow-list from the season datasets of the last --years years
(through next season), lists every cover under the media folder and deletes the ones
not on the list, together with their cache entries. Datasets are not modified.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		years, _ := cmd.Flags().GetInt("years")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			sw, err := a.Cleanup(ctx, years, dryRun)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Cleanup complete (%s .. %s)\n", sw.First.Key(), sw.Last.Key())
			fmt.Printf("  Seasons retained: %d\n", len(sw.Retained))
			fmt.Printf("  Covers listed: %d\n", sw.Listed)
			fmt.Printf("  Covers kept: %d\n", sw.Kept)
			if sw.DryRun {
				fmt.Printf("  Covers that would be deleted: %d\n", len(sw.Orphaned))
				for _, name := range sw.Orphaned {
					fmt.Printf("    %s\n", name)
				}
				fmt.Println()
				return nil
			}
			fmt.Printf("  Covers deleted: %d of %d\n", sw.AssetsDeleted, len(sw.Orphaned))
			fmt.Printf("  Cache entries removed: %d\n\n", sw.CacheRemoved)
			return nil
		})
	},
}

func init() {
	cleanupCmd.Flags().Int("years", 15, "years of seasons whose covers are kept")
	cleanupCmd.Flags().Bool("dry-run", false, "list the covers that would be deleted without deleting them")
	rootCmd.AddCommand(cleanupCmd)
}
