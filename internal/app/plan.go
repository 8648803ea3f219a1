package app

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/varoOP/seasondb/pkg/season"
)

// historyYears is how far back a run with existing datasets looks.
const historyYears = 2

// RunOptions selects what a run generates.
type RunOptions struct {
	// Force regenerates historical periods whose dataset already exists.
	Force bool
	// BuildOnly reports which planned datasets exist without fetching anything.
	BuildOnly bool
	// Periods, when set, replaces the planned range. Listed periods are always regenerated.
	Periods []season.Period
}

// Plan is the outcome of period planning.
type Plan struct {
	Generate []season.Period
	Skipped  []season.Period
}

// Plan decides which periods a run generates.
//
// With no datasets on disk the range starts at start_year, otherwise historyYears before the
// current year. It ends with the season after the current one. Seasons that already started
// before the current one are historical and skipped when their dataset exists, unless forced.
func (a *App) Plan(ctx context.Context, opts RunOptions) (Plan, error) {
	if len(opts.Periods) > 0 {
		periods := append([]season.Period(nil), opts.Periods...)
		sort.Slice(periods, func(i, j int) bool { return periods[i].Less(periods[j]) })
		return Plan{Generate: dedupePeriods(periods)}, nil
	}

	existing, err := a.partitions.List(ctx)
	if err != nil {
		return Plan{}, errors.Wrap(err, "failed to list datasets")
	}
	have := make(map[season.Period]bool, len(existing))
	for _, p := range existing {
		have[p] = true
	}

	now := a.now()
	current := season.Current(now)
	last := current.Next()

	first := season.Period{Year: now.Year() - historyYears, Season: season.Winter}
	if len(existing) == 0 {
		first = season.Period{Year: a.config.StartYear, Season: season.Winter}
	}

	var plan Plan
	for p := first; !last.Less(p); p = p.Next() {
		historical := p.Less(current)
		if historical && have[p] && !opts.Force && !opts.BuildOnly {
			plan.Skipped = append(plan.Skipped, p)
			continue
		}
		plan.Generate = append(plan.Generate, p)
	}
	return plan, nil
}

func dedupePeriods(sorted []season.Period) []season.Period {
	out := sorted[:0]
	for i, p := range sorted {
		if i > 0 && p == sorted[i-1] {
			continue
		}
		out = append(out, p)
	}
	return out
}
