// Package quota keeps the media store under its usage threshold by evicting the oldest seasons.
package quota

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/seasondb/internal/domain"
	"github.com/varoOP/seasondb/internal/metrics"
	"github.com/varoOP/seasondb/pkg/season"
)

// State is a step of the control loop.
type State string

const (
	StateCheck   State = "check"
	StateEvict   State = "evict"
	StateProceed State = "proceed"
	StateAbort   State = "abort"
)

// Cache is the part of the dedup cache eviction needs.
type Cache interface {
	RemoveUnreferenced(keep map[domain.Fingerprint]struct{}) int
}

// FlushFunc persists the cache after entries were dropped.
type FlushFunc func(ctx context.Context) error

type Options struct {
	// Threshold is the usage percentage at or above which eviction starts.
	Threshold float64
	// MaxEvictions bounds the eviction attempts of one Ensure call.
	MaxEvictions int
	// UsageRetries bounds retries of a failed usage query.
	UsageRetries   int
	InitialBackoff time.Duration
	Flush          FlushFunc
}

// Outcome describes one run of the control loop.
type Outcome struct {
	State   State
	Usage   float64
	Evicted []Eviction
	Reason  string
}

// Eviction is one reclaimed partition.
type Eviction struct {
	Period        season.Period
	AssetsDeleted int
	AssetsKept    int
	CacheRemoved  int
}

type Controller struct {
	log        zerolog.Logger
	store      domain.MediaStore
	partitions domain.PartitionRepository
	cache      Cache
	opts       Options
}

func NewController(log zerolog.Logger, store domain.MediaStore, partitions domain.PartitionRepository, cache Cache, opts Options) *Controller {
	if opts.Threshold <= 0 {
		opts.Threshold = 90
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	return &Controller{
		log:        log.With().Str("module", "quota").Logger(),
		store:      store,
		partitions: partitions,
		cache:      cache,
		opts:       opts,
	}
}

// Ensure runs Check -> Evict -> Check until usage is below the threshold (Proceed) or nothing
// more can be done (Abort). current is never evicted. On Abort the returned error explains why.
func (c *Controller) Ensure(ctx context.Context, current season.Period) (Outcome, error) {
	out := Outcome{State: StateCheck}
	attempts := 0
	log := c.log.With().Str("period", current.Key()).Logger()

	for {
		switch out.State {
		case StateCheck:
			usage, err := c.usage(ctx)
			if err != nil {
				out.State = StateAbort
				out.Reason = "usage query failed"
				return out, errors.Wrap(err, "quota check failed")
			}
			out.Usage = usage
			metrics.SetQuotaUsed(usage)

			if usage < c.opts.Threshold {
				log.Debug().Float64("usage", usage).Float64("threshold", c.opts.Threshold).Msg("quota ok")
				out.State = StateProceed
				continue
			}
			log.Warn().Float64("usage", usage).Float64("threshold", c.opts.Threshold).Int("attempt", attempts).Msg("quota exceeded")
			out.State = StateEvict

		case StateEvict:
			if attempts >= c.opts.MaxEvictions {
				out.State = StateAbort
				out.Reason = "eviction attempts exhausted"
				return out, errors.Wrapf(domain.ErrQuotaExceeded, "usage %.1f%% after %d evictions", out.Usage, attempts)
			}
			attempts++

			ev, err := c.EvictOldest(ctx, current)
			if err != nil {
				out.State = StateAbort
				if errors.Is(err, domain.ErrNoEvictable) {
					out.Reason = "no evictable partition"
					return out, errors.Wrapf(domain.ErrQuotaExceeded, "usage %.1f%%: %v", out.Usage, err)
				}
				out.Reason = "eviction failed"
				return out, err
			}
			out.Evicted = append(out.Evicted, ev)
			out.State = StateCheck

		case StateProceed:
			return out, nil

		default:
			return out, errors.Errorf("unexpected quota state %q", out.State)
		}
	}
}

// usage queries the store, retrying transient failures.
func (c *Controller) usage(ctx context.Context) (float64, error) {
	var u domain.Usage
	op := func() error {
		var err error
		u, err = c.store.Usage(ctx)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(c.opts.UsageRetries, 0))), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		return 0, err
	}
	return u.PercentUsed, nil
}
