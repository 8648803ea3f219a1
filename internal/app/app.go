package app

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/varoOP/seasondb/internal/cache"
	"github.com/varoOP/seasondb/internal/database"
	"github.com/varoOP/seasondb/internal/domain"
	"github.com/varoOP/seasondb/internal/download"
	"github.com/varoOP/seasondb/internal/logger"
	"github.com/varoOP/seasondb/internal/media"
	"github.com/varoOP/seasondb/internal/notification"
	"github.com/varoOP/seasondb/internal/quota"
	"github.com/varoOP/seasondb/internal/repository"
	"github.com/varoOP/seasondb/internal/source"
	"github.com/varoOP/seasondb/internal/upload"
	"github.com/varoOP/seasondb/pkg/season"
)

// Dependencies are the collaborators of an App. Zero values get defaults where one exists.
type Dependencies struct {
	Fs       afero.Fs
	Store    domain.MediaStore
	Source   source.Service
	Runs     domain.RunRepo
	Notifier domain.NotificationService
	// Downloader builds the cover downloader owned by one worker.
	Downloader func(worker int) upload.Downloader
	Now        func() time.Time
}

// App represents the main application with all dependencies initialized
type App struct {
	base       zerolog.Logger
	log        zerolog.Logger
	config     *domain.Config
	paths      *domain.Paths
	fs         afero.Fs
	store      domain.MediaStore
	source     source.Service
	partitions *repository.PartitionRepository
	overrides  domain.OverrideRepository
	cacheStore *cache.Store
	runs       domain.RunRepo
	notifier   domain.NotificationService
	downloader func(worker int) upload.Downloader
	now        func() time.Time

	db      *database.DB
	cache   *cache.Cache
	quota   *quota.Controller
	closers []io.Closer
}

// New wires an App from explicit dependencies.
func New(log zerolog.Logger, cfg *domain.Config, deps Dependencies) *App {
	paths := domain.NewPaths(cfg)

	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NewService(log, "")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	a := &App{
		base:       log,
		log:        log.With().Str("module", "app").Logger(),
		config:     cfg,
		paths:      paths,
		fs:         deps.Fs,
		store:      deps.Store,
		source:     deps.Source,
		partitions: repository.NewPartitionRepository(log, deps.Fs, paths.DataDir),
		overrides:  repository.NewOverrideRepository(log, deps.Fs),
		cacheStore: cache.NewStore(log, deps.Fs, paths.CacheFile),
		runs:       deps.Runs,
		notifier:   deps.Notifier,
		downloader: deps.Downloader,
		now:        deps.Now,
	}

	if a.downloader == nil {
		limiter := download.NewLimiter(cfg.DownloadRPS, 1)
		a.downloader = func(worker int) upload.Downloader {
			return download.NewClient(log.With().Int("worker", worker).Logger(), download.Options{
				Timeout:    cfg.DownloadTimeout,
				MaxRetries: cfg.MaxRetries,
				Limiter:    limiter,
			})
		}
	}

	return a
}

// NewApp creates a new application instance with all dependencies initialized
func NewApp(ctx context.Context, cfg *domain.Config) (*App, error) {
	log := logger.New(os.Stderr, cfg.LogLevel, logger.Format(cfg.LogFormat))
	paths := domain.NewPaths(cfg)

	store, err := media.New(ctx, log, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize media store")
	}

	db, err := database.NewDB(paths.DatabaseDir, log)
	if err != nil {
		closeIfCloser(log, store)
		return nil, errors.Wrap(err, "failed to initialize database")
	}

	src := source.NewService(log, source.Options{
		BaseURL:    cfg.SourceBaseURL,
		Timeout:    cfg.ListingTimeout,
		MaxRetries: cfg.MaxRetries,
		Limiter:    download.NewLimiter(cfg.SourceRPS, 1),
	})

	a := New(log, cfg, Dependencies{
		Store:    store,
		Source:   src,
		Runs:     database.NewRunRepo(log, db),
		Notifier: notification.NewService(log, cfg.DiscordWebhookURL),
	})
	a.db = db
	a.closers = append(a.closers, db)
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	return a, nil
}

// Close releases the database and the media store client.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// Logger returns the root logger the application was built with.
func (a *App) Logger() zerolog.Logger {
	return a.base
}

// Ping checks the run history database. It reports healthy when no database is attached.
func (a *App) Ping(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.Ping(ctx)
}

// Filesystem is where datasets and the cache live.
func (a *App) Filesystem() afero.Fs {
	return a.fs
}

// Partitions exposes the dataset repository to the preview server.
func (a *App) Partitions() domain.PartitionRepository {
	return a.partitions
}

// Paths returns the resolved file locations.
func (a *App) Paths() *domain.Paths {
	return a.paths
}

// load reads the durable cache once and builds the quota controller around it.
func (a *App) load(ctx context.Context) {
	if a.cache != nil {
		return
	}

	c, report := a.cacheStore.Load(ctx)
	if report.Corrupt {
		a.log.Warn().Str("path", a.cacheStore.Path()).Msg("cache file unreadable, every cover will be uploaded again")
	}
	a.cache = c

	if a.store != nil {
		a.quota = quota.NewController(a.base, a.store, a.partitions, a.cache, quota.Options{
			Threshold:    a.config.QuotaThreshold,
			MaxEvictions: a.config.MaxEvictions,
			UsageRetries: a.config.MaxRetries,
			Flush:        a.flush,
		})
	}
}

func (a *App) flush(ctx context.Context) error {
	return a.cacheStore.SaveIfDirty(ctx, a.cache)
}

// Evict reclaims the oldest partition other than the current season, regardless of usage.
func (a *App) Evict(ctx context.Context) (quota.Eviction, error) {
	if a.store == nil {
		return quota.Eviction{}, errors.New("media store is disabled, nothing to evict")
	}
	a.load(ctx)

	ev, err := a.quota.EvictOldest(ctx, season.Current(a.now()))
	if err != nil {
		return ev, errors.Wrap(err, "eviction failed")
	}

	a.log.Info().
		Str("period", ev.Period.Key()).
		Int("assets_deleted", ev.AssetsDeleted).
		Int("assets_kept", ev.AssetsKept).
		Int("cache_removed", ev.CacheRemoved).
		Msg("evicted partition")
	return ev, nil
}

// Cleanup deletes the hosted covers no dataset of the last years references and forgets their
// cache entries. With dryRun it only reports what would be deleted.
func (a *App) Cleanup(ctx context.Context, years int, dryRun bool) (quota.Sweep, error) {
	if a.store == nil {
		return quota.Sweep{}, errors.New("media store is disabled, nothing to clean up")
	}
	a.load(ctx)

	sw, err := a.quota.Sweep(ctx, a.now(), years, dryRun)
	if err != nil {
		return sw, errors.Wrap(err, "cleanup failed")
	}
	return sw, nil
}

// MigrateCache rewrites a legacy cache file with content-hash keys only.
func (a *App) MigrateCache(ctx context.Context) (cache.LoadReport, error) {
	return a.cacheStore.Migrate(ctx)
}

// FormatOverrides rewrites the overrides file in canonical form.
func (a *App) FormatOverrides(ctx context.Context) (int, error) {
	overrides, err := a.overrides.GetOverrides(ctx, a.paths.OverridesFile)
	if err != nil {
		return 0, err
	}
	if len(overrides) == 0 {
		return 0, nil
	}
	if err := a.overrides.StoreOverrides(ctx, a.paths.OverridesFile, overrides); err != nil {
		return 0, err
	}
	return len(overrides), nil
}

// History returns the most recent generation runs.
func (a *App) History(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	if a.runs == nil {
		return nil, errors.New("run history is not available")
	}
	return a.runs.Latest(ctx, limit)
}

func closeIfCloser(log zerolog.Logger, v any) {
	if c, ok := v.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close")
		}
	}
}
