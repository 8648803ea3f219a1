package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/varoOP/seasondb/internal/app"
	"github.com/varoOP/seasondb/pkg/season"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest the season listings and write the datasets",
	Long: `Run regenerates the season datasets:
1. Plans the seasons to generate (from start_year on a fresh output, else the last two years)
2. Keeps the media store under its quota, evicting the oldest seasons if needed
3. Fetches each season's listing and hosts every distinct cover once
4. Writes one dataset per season, sorted by weekday and premiere time

Historical seasons whose dataset already exists are skipped unless --force is given.
--period limits the run to specific seasons, e.g. --period 2024_春 --period 2024_夏.
--build-only fetches nothing and only reports which datasets exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		buildOnly, _ := cmd.Flags().GetBool("build-only")
		keys, _ := cmd.Flags().GetStringSlice("period")

		opts := app.RunOptions{Force: force, BuildOnly: buildOnly}
		for _, k := range keys {
			p, err := season.ParseKey(k)
			if err != nil {
				return err
			}
			opts.Periods = append(opts.Periods, p)
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.Run(ctx, opts)
			if report != nil {
				printReport(report, buildOnly)
			}
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}
			return nil
		})
	},
}

func printReport(r *app.Report, buildOnly bool) {
	if buildOnly {
		fmt.Printf("\n%d datasets present, %d missing\n", len(r.Existing), len(r.Missing))
		for _, p := range r.Missing {
			fmt.Printf("  missing: %s\n", p.Key())
		}
		return
	}

	fmt.Printf("\n%-10s %-8s %7s %8s %7s %6s %9s  %s\n", "PERIOD", "STATUS", "RECORDS", "FAILURES", "UPLOADS", "HITS", "FALLBACKS", "REASON")
	for _, p := range r.Periods {
		fmt.Printf("%-10s %-8s %7d %8d %7d %6d %9d  %s\n", p.Period.Key(), p.Status, p.Records, p.Failures, p.Uploads, p.CacheHits, p.Fallbacks, p.Reason)
	}
	if len(r.Skipped) > 0 {
		fmt.Printf("%d historical seasons skipped (use --force to regenerate)\n", len(r.Skipped))
	}
}

func init() {
	runCmd.Flags().Bool("force", false, "regenerate historical seasons whose dataset exists")
	runCmd.Flags().Bool("build-only", false, "do not fetch, only report which datasets exist")
	runCmd.Flags().StringSlice("period", nil, "season to generate, e.g. 2024_春 (repeatable)")
	rootCmd.AddCommand(runCmd)
}
