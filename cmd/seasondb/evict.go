package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/varoOP/seasondb/internal/app"
)

var evictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Evict the oldest season dataset and its hosted covers",
	Long: `Evict removes the oldest season dataset, deletes the covers only that season
referenced from the media store and drops their cache entries. The current season
is never evicted. Covers shared with a remaining season are kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			ev, err := a.Evict(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("\n✓ Evicted %s\n", ev.Period.Key())
			fmt.Printf("  Covers deleted: %d\n", ev.AssetsDeleted)
			fmt.Printf("  Covers kept (shared): %d\n", ev.AssetsKept)
			fmt.Printf("  Cache entries removed: %d\n\n", ev.CacheRemoved)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(evictCmd)
}
