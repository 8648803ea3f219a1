package quota

import (
	"context"

	"github.com/pkg/errors"
	"github.com/varoOP/seasondb/internal/domain"
	"github.com/varoOP/seasondb/internal/metrics"
	"github.com/varoOP/seasondb/pkg/season"
)

// Oldest returns the chronologically first period other than exclude.
func Oldest(periods []season.Period, exclude season.Period) (season.Period, bool) {
	var (
		victim season.Period
		found  bool
	)
	for _, p := range periods {
		if p == exclude {
			continue
		}
		if !found || p.Less(victim) {
			victim, found = p, true
		}
	}
	return victim, found
}

// EvictOldest evicts the oldest persisted partition other than exclude.
func (c *Controller) EvictOldest(ctx context.Context, exclude season.Period) (Eviction, error) {
	periods, err := c.partitions.List(ctx)
	if err != nil {
		return Eviction{}, errors.Wrap(err, "failed to list partitions")
	}

	victim, ok := Oldest(periods, exclude)
	if !ok {
		return Eviction{}, domain.ErrNoEvictable
	}
	return c.Evict(ctx, victim)
}

// Evict deletes victim's hosted covers, its dataset file and every cache entry no longer
// referenced by a remaining partition. Covers still referenced by another partition are kept.
func (c *Controller) Evict(ctx context.Context, victim season.Period) (Eviction, error) {
	log := c.log.With().Str("victim", victim.Key()).Logger()
	ev := Eviction{Period: victim}

	var records []domain.Record
	part, err := c.partitions.Get(ctx, victim)
	if err != nil {
		log.Warn().Err(err).Msg("could not read victim partition, deleting the file only")
	} else {
		records = part.Records
	}

	keep, err := c.referenced(ctx, victim)
	if err != nil {
		return ev, err
	}

	names := make([]string, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if c.store == nil || !r.HasImage() {
			continue
		}
		name, fp, ok := c.store.ParseReference(r.ImageRef)
		if !ok {
			continue
		}
		if _, shared := keep[fp]; shared {
			ev.AssetsKept++
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	if len(names) > 0 {
		res, err := c.store.DeleteMany(ctx, names)
		if err != nil {
			log.Error().Err(err).Int("requested", len(names)).Int("deleted", res.Deleted).Msg("some assets could not be deleted")
		}
		ev.AssetsDeleted = res.Deleted
	}

	if err := c.partitions.Delete(ctx, victim); err != nil {
		return ev, errors.Wrapf(err, "failed to delete partition %s", victim)
	}

	ev.CacheRemoved = c.cache.RemoveUnreferenced(keep)
	if c.opts.Flush != nil {
		if err := c.opts.Flush(ctx); err != nil {
			log.Error().Err(err).Msg("failed to flush cache after eviction")
		}
	}

	metrics.ObserveEviction()
	log.Info().
		Int("assets_deleted", ev.AssetsDeleted).
		Int("assets_kept", ev.AssetsKept).
		Int("cache_removed", ev.CacheRemoved).
		Msg("evicted partition")
	return ev, nil
}

// referenced collects the fingerprints of hosted covers used by every partition except victim.
func (c *Controller) referenced(ctx context.Context, victim season.Period) (map[domain.Fingerprint]struct{}, error) {
	periods, err := c.partitions.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list partitions")
	}

	keep := make(map[domain.Fingerprint]struct{})
	for _, p := range periods {
		if p == victim {
			continue
		}
		part, err := c.partitions.Get(ctx, p)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot determine covers shared with %s", p)
		}
		for _, r := range part.Records {
			if c.store == nil || !r.HasImage() {
				continue
			}
			if _, fp, ok := c.store.ParseReference(r.ImageRef); ok {
				keep[fp] = struct{}{}
			}
		}
	}
	return keep, nil
}
