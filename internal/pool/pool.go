// Package pool fans listing items out to a fixed set of long-lived workers.
package pool

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"github.com/varoOP/seasondb/internal/domain"
	"github.com/varoOP/seasondb/internal/metrics"
)

// Processor turns one raw item into a record. A worker reuses its processor for every item it handles.
type Processor interface {
	Process(ctx context.Context, item domain.RawItem) (*domain.Record, error)
}

// ProcessorFactory is called once per worker at startup.
type ProcessorFactory func(worker int) (Processor, error)

type ProcessorFunc func(ctx context.Context, item domain.RawItem) (*domain.Record, error)

func (f ProcessorFunc) Process(ctx context.Context, item domain.RawItem) (*domain.Record, error) {
	return f(ctx, item)
}

type Pool struct {
	log     zerolog.Logger
	workers int
	factory ProcessorFactory
}

// New creates a pool. A non-positive workers count uses runtime.NumCPU().
func New(log zerolog.Logger, workers int, factory ProcessorFactory) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		log:     log.With().Str("module", "pool").Logger(),
		workers: workers,
		factory: factory,
	}
}

// Run processes every item and returns one Result per item in completion order.
// Errors and panics of an item become failure markers. Items not started before ctx
// is done are marked failed without being processed.
func (p *Pool) Run(ctx context.Context, items []domain.RawItem) []domain.Result {
	if len(items) == 0 {
		return nil
	}

	jobs := make(chan domain.RawItem, len(items))
	for _, item := range items {
		jobs <- item
	}
	close(jobs)

	results := make(chan domain.Result, len(items))

	var wg conc.WaitGroup
	for w := 0; w < min(p.workers, len(items)); w++ {
		wg.Go(func() {
			p.work(ctx, w, jobs, results)
		})
	}
	wg.Wait()
	close(results)

	out := make([]domain.Result, 0, len(items))
	for r := range results {
		out = append(out, r)
	}
	return out
}

func (p *Pool) work(ctx context.Context, worker int, jobs <-chan domain.RawItem, results chan<- domain.Result) {
	log := p.log.With().Int("worker", worker).Logger()

	proc, err := p.factory(worker)
	if err != nil {
		log.Error().Err(err).Msg("failed to start worker")
		err = errors.Wrap(err, "worker setup failed")
	}

	for item := range jobs {
		var res domain.Result
		switch {
		case err != nil:
			res = domain.Result{Index: item.Index, Err: err}
		case ctx.Err() != nil:
			res = domain.Result{Index: item.Index, Err: errors.Wrap(ctx.Err(), "item not started")}
		default:
			res = p.process(ctx, proc, item)
		}

		if res.Failed() {
			metrics.ObserveItem("failed")
			log.Warn().Err(res.Err).Int("item", item.Index).Msg("item failed")
		} else {
			metrics.ObserveItem("ok")
		}
		results <- res
	}
}

func (p *Pool) process(ctx context.Context, proc Processor, item domain.RawItem) domain.Result {
	var (
		rec *domain.Record
		err error
	)

	var catcher panics.Catcher
	catcher.Try(func() {
		rec, err = proc.Process(ctx, item)
	})
	if r := catcher.Recovered(); r != nil {
		return domain.Result{Index: item.Index, Err: errors.Wrap(r.AsError(), "item panicked")}
	}

	if err != nil {
		return domain.Result{Index: item.Index, Err: err}
	}
	if rec == nil {
		return domain.Result{Index: item.Index, Err: errors.New("processor returned no record")}
	}
	return domain.Result{Index: item.Index, Record: rec}
}
