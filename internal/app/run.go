package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/varoOP/seasondb/internal/assemble"
	"github.com/varoOP/seasondb/internal/domain"
	"github.com/varoOP/seasondb/internal/metrics"
	"github.com/varoOP/seasondb/internal/pool"
	"github.com/varoOP/seasondb/internal/source"
	"github.com/varoOP/seasondb/internal/upload"
	"github.com/varoOP/seasondb/pkg/season"
	"golang.org/x/sync/singleflight"
)

// PeriodReport is the outcome of one period.
type PeriodReport struct {
	Period    season.Period
	Status    domain.RunStatus
	Records   int
	Failures  int
	Uploads   int
	CacheHits int
	Fallbacks int
	Evictions int
	Reason    string
	Err       error
}

// Report is the outcome of a run.
type Report struct {
	Periods []PeriodReport
	Skipped []season.Period
	// Existing and Missing are only filled in build-only mode.
	Existing []season.Period
	Missing  []season.Period
	Stats    domain.Statistics
}

// Failed returns the periods that did not produce a dataset because of an error.
func (r *Report) Failed() []PeriodReport {
	var out []PeriodReport
	for _, p := range r.Periods {
		if p.Status == domain.RunStatusFailed || p.Status == domain.RunStatusAborted {
			out = append(out, p)
		}
	}
	return out
}

// Run generates the planned periods one after another. A failing period is reported and
// the run moves on to the next one.
func (a *App) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	started := a.now()

	plan, err := a.Plan(ctx, opts)
	if err != nil {
		a.notifyError(ctx, err)
		return nil, err
	}

	report := &Report{Skipped: plan.Skipped}
	report.Stats.PeriodsSkipped = len(plan.Skipped)
	for _, p := range plan.Skipped {
		a.log.Info().Str("period", p.Key()).Msg("dataset exists, skipping historical period")
	}

	if opts.BuildOnly {
		return report, a.buildOnly(ctx, plan, report)
	}

	overrides, err := a.overrides.GetOverrides(ctx, a.paths.OverridesFile)
	if err != nil {
		a.notifyError(ctx, err)
		return nil, errors.Wrap(err, "failed to load overrides")
	}

	a.load(ctx)

	for _, p := range plan.Generate {
		if ctx.Err() != nil {
			break
		}
		rep := a.generate(ctx, p, overrides)
		report.Periods = append(report.Periods, rep)
		a.tally(&report.Stats, rep)

		if rep.Err != nil {
			a.notifyPeriodFailure(ctx, rep)
		}
	}

	if err := a.flush(ctx); err != nil {
		a.log.Error().Err(err).Msg("failed to flush cache")
	}
	if err := metrics.Push(ctx, a.config.PushgatewayURL); err != nil {
		a.log.Warn().Err(err).Msg("failed to push metrics")
	}

	report.Stats.Duration = a.now().Sub(started)
	a.logStats(report.Stats)

	if err := a.notifier.SendSuccess(ctx, report.Stats); err != nil {
		a.log.Warn().Err(err).Msg("failed to send success notification")
	}

	if failed := report.Failed(); len(failed) > 0 {
		return report, errors.Errorf("%d of %d periods failed", len(failed), len(report.Periods))
	}
	if err := ctx.Err(); err != nil {
		return report, errors.Wrap(err, "run interrupted")
	}
	return report, nil
}

func (a *App) buildOnly(ctx context.Context, plan Plan, report *Report) error {
	for _, p := range plan.Generate {
		ok, err := a.partitions.Exists(ctx, p)
		if err != nil {
			return errors.Wrapf(err, "failed to check dataset %s", p.Key())
		}
		if ok {
			a.log.Info().Str("period", p.Key()).Msg("[build only] dataset present")
			report.Existing = append(report.Existing, p)
		} else {
			a.log.Warn().Str("period", p.Key()).Msg("[build only] dataset missing, not fetching")
			report.Missing = append(report.Missing, p)
		}
	}
	return nil
}

// generate runs one period under the batch timeout and records its outcome.
func (a *App) generate(parent context.Context, p season.Period, overrides domain.Overrides) PeriodReport {
	started := a.now()
	log := a.log.With().Str("period", p.Key()).Logger()

	ctx := parent
	if a.config.BatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, a.config.BatchTimeout)
		defer cancel()
	}

	rep := a.harvest(ctx, p, overrides)

	// uploads that finished before a failure are still valid
	if err := a.flush(parent); err != nil {
		log.Error().Err(err).Msg("failed to flush cache")
	}

	finished := a.now()
	metrics.ObservePeriod(string(rep.Status), finished.Sub(started))
	a.record(parent, rep, started, finished)

	ev := log.Info()
	if rep.Err != nil {
		ev = log.Error().Err(rep.Err)
	}
	ev.Str("status", string(rep.Status)).
		Int("records", rep.Records).
		Int("failures", rep.Failures).
		Int("uploads", rep.Uploads).
		Int("cache_hits", rep.CacheHits).
		Int("fallbacks", rep.Fallbacks).
		Str("reason", rep.Reason).
		Msg("period finished")

	return rep
}

func (a *App) harvest(ctx context.Context, p season.Period, overrides domain.Overrides) PeriodReport {
	rep := PeriodReport{Period: p}

	if a.quota != nil {
		outcome, err := a.quota.Ensure(ctx, p)
		rep.Evictions = len(outcome.Evicted)
		if err != nil {
			rep.Status = domain.RunStatusAborted
			rep.Reason = outcome.Reason
			rep.Err = err
			return rep
		}
	}

	items, err := a.source.Fetch(ctx, p)
	if err != nil {
		if errors.Is(err, domain.ErrListingNotFound) {
			rep.Status = domain.RunStatusEmpty
			rep.Reason = "listing not found"
			return rep
		}
		rep.Status = domain.RunStatusFailed
		rep.Reason = "listing fetch failed"
		rep.Err = err
		return rep
	}
	if len(items) == 0 {
		rep.Status = domain.RunStatusEmpty
		rep.Reason = "listing has no entries"
		return rep
	}

	counters := &upload.Counters{}
	results := pool.New(a.base, a.config.Workers, a.processors(counters, &singleflight.Group{})).Run(ctx, items)

	rep.Uploads = int(counters.Uploads.Load())
	rep.CacheHits = int(counters.CacheHits.Load())
	rep.Fallbacks = int(counters.Fallbacks.Load())

	for _, r := range results {
		if !r.Failed() {
			overrides.Apply(r.Record)
		}
	}
	assembled := assemble.Assemble(results)
	rep.Records = assembled.Count
	rep.Failures = assembled.Failed

	// a partial batch must not replace a complete dataset
	if err := ctx.Err(); err != nil {
		rep.Status = domain.RunStatusFailed
		rep.Reason = "batch timeout"
		rep.Err = errors.Wrap(err, "batch did not complete")
		return rep
	}

	if assembled.Count == 0 {
		rep.Status = domain.RunStatusFailed
		rep.Reason = "every item failed"
		rep.Err = errors.Errorf("all %d items failed", assembled.Failed)
		return rep
	}

	err = a.partitions.Store(ctx, &domain.TimePartition{
		Period:      p,
		Records:     assembled.Records,
		GeneratedAt: a.now(),
	})
	if err != nil {
		rep.Status = domain.RunStatusFailed
		rep.Reason = "dataset write failed"
		rep.Err = err
		return rep
	}

	rep.Status = domain.RunStatusSuccess
	return rep
}

// processors builds one extract-and-host processor per worker. The cache, the counters and
// the in-flight group are shared by every worker of the batch.
func (a *App) processors(counters *upload.Counters, inflight *singleflight.Group) pool.ProcessorFactory {
	return func(worker int) (pool.Processor, error) {
		coord := upload.NewCoordinator(a.base.With().Int("worker", worker).Logger(), a.cache, a.store, a.downloader(worker), upload.Options{
			Transform:     domain.DefaultTransform,
			UploadTimeout: a.config.UploadTimeout,
			Counters:      counters,
			Inflight:      inflight,
		})
		return &processor{coord: coord}, nil
	}
}

type processor struct {
	coord *upload.Coordinator
}

func (p *processor) Process(ctx context.Context, raw domain.RawItem) (*domain.Record, error) {
	item, err := source.Extract(raw)
	if err != nil {
		return nil, err
	}

	ref, err := p.coord.Resolve(ctx, item.ImageURL, item.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "item %d (%s)", raw.Index, item.Name)
	}

	rec := item.Record(ref)
	return &rec, nil
}

func (a *App) record(ctx context.Context, rep PeriodReport, started, finished time.Time) {
	if a.runs == nil {
		return
	}
	run := &domain.RunRecord{
		ID:         uuid.NewString(),
		Period:     rep.Period.Key(),
		Status:     rep.Status,
		Records:    rep.Records,
		Uploads:    rep.Uploads,
		CacheHits:  rep.CacheHits,
		Failures:   rep.Failures,
		Fallbacks:  rep.Fallbacks,
		Reason:     rep.Reason,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if err := a.runs.Record(ctx, run); err != nil {
		a.log.Warn().Err(err).Str("period", run.Period).Msg("failed to record run")
	}
}

func (a *App) tally(stats *domain.Statistics, rep PeriodReport) {
	switch rep.Status {
	case domain.RunStatusSuccess:
		stats.PeriodsGenerated++
	case domain.RunStatusEmpty:
		stats.PeriodsEmpty++
	default:
		stats.PeriodsFailed++
	}
	stats.Records += rep.Records
	stats.Uploads += rep.Uploads
	stats.CacheHits += rep.CacheHits
	stats.Fallbacks += rep.Fallbacks
	stats.ItemFailures += rep.Failures
	stats.Evictions += rep.Evictions
}

func (a *App) logStats(stats domain.Statistics) {
	a.log.Info().
		Int("periods_generated", stats.PeriodsGenerated).
		Int("periods_empty", stats.PeriodsEmpty).
		Int("periods_skipped", stats.PeriodsSkipped).
		Int("periods_failed", stats.PeriodsFailed).
		Int("records", stats.Records).
		Int("uploads", stats.Uploads).
		Int("cache_hits", stats.CacheHits).
		Int("fallbacks", stats.Fallbacks).
		Int("item_failures", stats.ItemFailures).
		Int("evictions", stats.Evictions).
		Dur("duration", stats.Duration).
		Msg("=== FINAL STATISTICS ===")
}

func (a *App) notifyPeriodFailure(ctx context.Context, rep PeriodReport) {
	failure := domain.PeriodFailure{
		Period: rep.Period.Key(),
		Status: rep.Status,
		Reason: rep.Reason,
		Err:    rep.Err,
	}
	if err := a.notifier.SendPeriodFailure(ctx, failure); err != nil {
		a.log.Warn().Err(err).Str("period", failure.Period).Msg("failed to send period failure notification")
	}
}

func (a *App) notifyError(ctx context.Context, err error) {
	if notifyErr := a.notifier.SendError(ctx, err); notifyErr != nil {
		a.log.Warn().Err(notifyErr).Msg("failed to send error notification")
	}
}
