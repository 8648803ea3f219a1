package quota

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/varoOP/seasondb/internal/domain"
	"github.com/varoOP/seasondb/pkg/season"
)

// Sweep is the outcome of a retention cleanup.
type Sweep struct {
	First, Last season.Period
	// Retained are the persisted partitions inside the window.
	Retained []season.Period
	Listed   int
	Kept     int
	// Orphaned are the resource names outside the allow-list, deleted unless DryRun.
	Orphaned      []string
	AssetsDeleted int
	CacheRemoved  int
	DryRun        bool
}

// RetentionWindow returns the seasons kept when keeping years of history: from the season
// years before now through the season after the current one.
func RetentionWindow(now time.Time, years int) (first, last season.Period) {
	return season.Current(now.AddDate(-years, 0, 0)), season.Current(now).Next()
}

func inWindow(p, first, last season.Period) bool {
	return !p.Less(first) && !last.Less(p)
}

// Sweep deletes every hosted cover that no partition of the retention window references and
// drops the cache entries of covers no longer hosted. Partitions themselves are not touched.
// With dryRun nothing is deleted and Orphaned lists what would be.
func (c *Controller) Sweep(ctx context.Context, now time.Time, years int, dryRun bool) (Sweep, error) {
	if c.store == nil {
		return Sweep{}, errors.New("no media store configured")
	}
	if years <= 0 {
		return Sweep{}, errors.Errorf("years to keep must be positive, got %d", years)
	}

	first, last := RetentionWindow(now, years)
	sw := Sweep{First: first, Last: last, DryRun: dryRun}
	log := c.log.With().Str("first", first.Key()).Str("last", last.Key()).Bool("dry_run", dryRun).Logger()

	keepNames, keepFPs, err := c.allowList(ctx, &sw)
	if err != nil {
		return sw, err
	}
	log.Info().Int("partitions", len(sw.Retained)).Int("covers", len(keepFPs)).Msg("allow-list built")

	resources, err := c.store.ListResources(ctx)
	if err != nil {
		return sw, errors.Wrap(err, "failed to list hosted covers")
	}
	sw.Listed = len(resources)

	for _, r := range resources {
		_, byName := keepNames[r.Name]
		_, byFP := keepFPs[r.Fingerprint]
		if byName || (r.Fingerprint != "" && byFP) {
			sw.Kept++
			continue
		}
		sw.Orphaned = append(sw.Orphaned, r.Name)
	}

	if dryRun || len(sw.Orphaned) == 0 {
		log.Info().Int("listed", sw.Listed).Int("kept", sw.Kept).Int("orphaned", len(sw.Orphaned)).Msg("sweep finished without deleting")
		return sw, nil
	}

	res, err := c.store.DeleteMany(ctx, sw.Orphaned)
	if err != nil {
		log.Error().Err(err).Int("requested", len(sw.Orphaned)).Int("deleted", res.Deleted).Msg("some covers could not be deleted")
	}
	sw.AssetsDeleted = res.Deleted

	sw.CacheRemoved = c.cache.RemoveUnreferenced(keepFPs)
	if c.opts.Flush != nil {
		if err := c.opts.Flush(ctx); err != nil {
			return sw, errors.Wrap(err, "failed to flush cache after sweep")
		}
	}

	log.Info().
		Int("listed", sw.Listed).
		Int("kept", sw.Kept).
		Int("assets_deleted", sw.AssetsDeleted).
		Int("cache_removed", sw.CacheRemoved).
		Msg("sweep finished")
	return sw, nil
}

// allowList collects the covers referenced by the partitions inside the window. An unreadable
// partition fails the sweep since its covers cannot be told apart from orphans.
func (c *Controller) allowList(ctx context.Context, sw *Sweep) (map[string]struct{}, map[domain.Fingerprint]struct{}, error) {
	periods, err := c.partitions.List(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to list partitions")
	}

	names := make(map[string]struct{})
	fps := make(map[domain.Fingerprint]struct{})
	for _, p := range periods {
		if !inWindow(p, sw.First, sw.Last) {
			continue
		}
		part, err := c.partitions.Get(ctx, p)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "cannot read retained partition %s", p)
		}
		sw.Retained = append(sw.Retained, p)

		for _, r := range part.Records {
			if !r.HasImage() {
				continue
			}
			if name, fp, ok := c.store.ParseReference(r.ImageRef); ok {
				names[name] = struct{}{}
				fps[fp] = struct{}{}
			}
		}
	}
	return names, fps, nil
}
