package cache

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/varoOP/seasondb/internal/atomicfile"
	"github.com/varoOP/seasondb/internal/domain"
)

// Store persists a Cache as a flat JSON object of "cloudinary_<md5>" keys to references.
type Store struct {
	log  zerolog.Logger
	fs   afero.Fs
	path string
}

// LoadReport describes what Load found in the durable file.
type LoadReport struct {
	Loaded  int
	Dropped int
	Corrupt bool
}

// NewStore creates a durable cache store for path.
func NewStore(log zerolog.Logger, fs afero.Fs, path string) *Store {
	return &Store{
		log:  log.With().Str("module", "cache").Logger(),
		fs:   fs,
		path: path,
	}
}

// Path returns the durable file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the durable file. A missing, unreadable or corrupt file yields an empty cache.
// Keys that are not content-hash keys, or whose value is not a string, are dropped.
func (s *Store) Load(ctx context.Context) (*Cache, LoadReport) {
	report := LoadReport{}

	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", s.path).Msg("failed to read cache file, starting with empty cache")
			report.Corrupt = true
		}
		return New(), report
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		s.log.Warn().Err(err).Str("path", s.path).Msg("cache file is malformed or not an object, starting with empty cache")
		report.Corrupt = true
		return New(), report
	}

	entries := make(map[domain.Fingerprint]string, len(raw))
	for key, value := range raw {
		fp, ok := domain.FingerprintFromKey(key)
		if !ok {
			report.Dropped++
			continue
		}
		var ref string
		if err := json.Unmarshal(value, &ref); err != nil || ref == "" {
			report.Dropped++
			continue
		}
		entries[fp] = ref
	}
	report.Loaded = len(entries)

	c := NewFromEntries(entries)
	if report.Dropped > 0 {
		// dropped legacy keys still have to be removed from disk
		c.version++
	}

	s.log.Debug().Int("loaded", report.Loaded).Int("dropped", report.Dropped).Str("path", s.path).Msg("loaded cache")
	return c, report
}

// Save writes the cache atomically. Only content-hash keys are written.
func (s *Store) Save(ctx context.Context, c *Cache) error {
	entries, version := c.snapshot()

	out := make(map[string]string, len(entries))
	for fp, ref := range entries {
		out[fp.CacheKey()] = ref
	}

	if err := atomicfile.WriteJSON(s.fs, s.path, out); err != nil {
		return errors.Wrapf(err, "failed to save cache to %s", s.path)
	}
	c.markSaved(version)

	s.log.Debug().Int("entries", len(out)).Str("path", s.path).Msg("saved cache")
	return nil
}

// SaveIfDirty saves only when the cache changed since the last load or save.
func (s *Store) SaveIfDirty(ctx context.Context, c *Cache) error {
	if !c.Dirty() {
		return nil
	}
	return s.Save(ctx, c)
}

// Migrate rewrites a legacy cache file in canonical form.
func (s *Store) Migrate(ctx context.Context) (LoadReport, error) {
	c, report := s.Load(ctx)
	if report.Corrupt {
		return report, errors.Errorf("cache file %s is unreadable, refusing to overwrite it", s.path)
	}
	if err := s.Save(ctx, c); err != nil {
		return report, err
	}
	s.log.Info().Int("kept", report.Loaded).Int("dropped", report.Dropped).Msg("cache migrated")
	return report, nil
}
