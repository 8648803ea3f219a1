// Package upload turns cover images into hosted, content-addressed references.
package upload

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/seasondb/internal/domain"
	"github.com/varoOP/seasondb/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Downloader fetches the raw bytes behind a source URL.
type Downloader interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Counters aggregates coordinator outcomes across every worker of a batch.
type Counters struct {
	Uploads   atomic.Int64
	CacheHits atomic.Int64
	Fallbacks atomic.Int64
	Conflicts atomic.Int64
}

type Options struct {
	Transform     domain.TransformOptions
	UploadTimeout time.Duration
	Counters      *Counters
	// Inflight collapses concurrent uploads of one fingerprint. Share it between
	// all coordinators of a batch.
	Inflight *singleflight.Group
}

// Coordinator is created once per worker. The cache is shared; the downloader is the worker's own.
type Coordinator struct {
	log        zerolog.Logger
	cache      domain.DedupCache
	store      domain.MediaStore
	downloader Downloader
	transform  domain.TransformOptions
	timeout    time.Duration
	counters   *Counters
	inflight   *singleflight.Group
}

// NewCoordinator creates a coordinator. A nil store disables hosting and every
// cover keeps its source URL.
func NewCoordinator(log zerolog.Logger, cache domain.DedupCache, store domain.MediaStore, downloader Downloader, opts Options) *Coordinator {
	if opts.Counters == nil {
		opts.Counters = &Counters{}
	}
	if opts.Inflight == nil {
		opts.Inflight = &singleflight.Group{}
	}
	return &Coordinator{
		log:        log.With().Str("module", "upload").Logger(),
		cache:      cache,
		store:      store,
		downloader: downloader,
		transform:  opts.Transform,
		timeout:    opts.UploadTimeout,
		counters:   opts.Counters,
		inflight:   opts.Inflight,
	}
}

// Resolve returns the hosted reference for the cover at sourceURL.
//
// An empty sourceURL means the entry has no cover and returns "" without any network I/O.
// Download and upload failures degrade to sourceURL. Only a cache conflict is returned as an error.
func (c *Coordinator) Resolve(ctx context.Context, sourceURL, label string) (string, error) {
	if sourceURL == "" {
		return "", nil
	}
	if c.store == nil {
		return sourceURL, nil
	}

	data, err := c.downloader.Get(ctx, sourceURL)
	if err != nil {
		c.fallback(err, "download", sourceURL, label)
		return sourceURL, nil
	}

	ref, err := c.Store(ctx, data, label)
	if err != nil {
		if errors.Is(err, domain.ErrCacheConflict) {
			return "", err
		}
		c.fallback(err, "upload", sourceURL, label)
		return sourceURL, nil
	}
	return ref, nil
}

// Store returns the reference for data, uploading it only when its fingerprint is not cached yet.
// The cache lock is held for the lookup and the insert only, never across the upload.
func (c *Coordinator) Store(ctx context.Context, data []byte, label string) (string, error) {
	fp := domain.NewFingerprint(data)

	if ref, ok := c.lookup(fp, label); ok {
		return ref, nil
	}

	// executed is only set for the caller whose function ran; the others joined its upload
	executed := false
	v, err, shared := c.inflight.Do(string(fp), func() (any, error) {
		executed = true

		// another worker may have finished the same upload since our lookup
		if ref, ok := c.lookup(fp, label); ok {
			return ref, nil
		}

		ref, err := c.upload(ctx, data, fp)
		if err != nil {
			return "", err
		}
		c.counters.Uploads.Add(1)
		metrics.ObserveUpload()

		if err := c.cache.Insert(fp, ref); err != nil {
			c.counters.Conflicts.Add(1)
			metrics.ObserveCacheConflict()
			c.log.Error().Err(err).Str("label", label).Str("fingerprint", string(fp)).Str("reference", ref).Msg("cache consistency violation")
			return "", err
		}

		c.log.Debug().Str("label", label).Str("fingerprint", string(fp)).Str("reference", ref).Msg("uploaded cover")
		return ref, nil
	})
	if err != nil {
		return "", err
	}
	if shared && !executed {
		c.counters.CacheHits.Add(1)
		metrics.ObserveCacheHit()
		c.log.Trace().Str("label", label).Str("fingerprint", string(fp)).Msg("joined in-flight upload")
	}
	return v.(string), nil
}

func (c *Coordinator) lookup(fp domain.Fingerprint, label string) (string, bool) {
	ref, ok := c.cache.Lookup(fp)
	if !ok {
		return "", false
	}
	c.counters.CacheHits.Add(1)
	metrics.ObserveCacheHit()
	c.log.Trace().Str("label", label).Str("fingerprint", string(fp)).Msg("cache hit")
	return ref, true
}

func (c *Coordinator) upload(ctx context.Context, data []byte, fp domain.Fingerprint) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ref, err := c.store.Upload(ctx, data, c.store.ResourceName(fp), c.transform)
	if err != nil {
		return "", errors.Wrapf(err, "failed to upload fingerprint %s", fp)
	}
	if ref == "" {
		return "", errors.Errorf("media store returned an empty reference for fingerprint %s", fp)
	}
	return ref, nil
}

func (c *Coordinator) fallback(err error, stage, sourceURL, label string) {
	c.counters.Fallbacks.Add(1)
	metrics.ObserveFallback()
	c.log.Warn().Err(err).Str("stage", stage).Str("label", label).Str("source", sourceURL).Msg("keeping source url")
}
