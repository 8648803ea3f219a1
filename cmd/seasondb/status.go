package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/varoOP/seasondb/internal/app"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent generation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			runs, err := a.History(ctx, limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tPERIOD\tSTATUS\tRECORDS\tUPLOADS\tHITS\tFAILURES\tFALLBACKS\tDURATION\tREASON")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), r.Period, r.Status,
					r.Records, r.Uploads, r.CacheHits, r.Failures, r.Fallbacks,
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.Reason)
			}
			return w.Flush()
		})
	},
}

func init() {
	statusCmd.Flags().Int("limit", 20, "number of runs to show")
	rootCmd.AddCommand(statusCmd)
}
