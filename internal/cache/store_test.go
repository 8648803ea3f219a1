package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/seasondb/internal/domain"
)

const cachePath = "cloudinary_cache.json"

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	return NewStore(zerolog.Nop(), fs, cachePath), fs
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	c, report := s.Load(context.Background())
	assert.Equal(t, 0, c.Len())
	assert.False(t, report.Corrupt)
}

func TestLoadCorruptFileIsEmpty(t *testing.T) {
	for name, content := range map[string]string{
		"garbage": "{not json",
		"list":    "[]",
		"empty":   "",
	} {
		t.Run(name, func(t *testing.T) {
			s, fs := newTestStore(t)
			require.NoError(t, afero.WriteFile(fs, cachePath, []byte(content), 0o644))

			c, report := s.Load(context.Background())
			assert.Equal(t, 0, c.Len())
			assert.True(t, report.Corrupt)
		})
	}
}

func TestLoadFiltersLegacyKeys(t *testing.T) {
	s, fs := newTestStore(t)
	fp := domain.NewFingerprint([]byte("img"))
	legacy := map[string]any{
		fp.CacheKey():             "https://res.cloudinary.com/demo/image/upload/anime_covers/" + string(fp),
		"image_url_12345":         "https://res.cloudinary.com/demo/x",
		"anime_2024_春":            []any{map[string]string{"anime_name": "x"}},
		"cloudinary_not-a-hash":   "y",
		domain.CacheKeyPrefix + "0123456789abcdef0123456789abcdef": 42,
	}
	b, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, cachePath, b, 0o644))

	c, report := s.Load(context.Background())
	assert.Equal(t, 1, report.Loaded)
	assert.Equal(t, 4, report.Dropped)
	assert.True(t, c.Dirty(), "dropped keys must be flushed")

	require.NoError(t, s.Save(context.Background(), c))
	saved, err := afero.ReadFile(fs, cachePath)
	require.NoError(t, err)

	out := map[string]string{}
	require.NoError(t, json.Unmarshal(saved, &out))
	assert.Len(t, out, 1)
	assert.Contains(t, out, fp.CacheKey())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	c := New()
	a := domain.NewFingerprint([]byte("a"))
	b := domain.NewFingerprint([]byte("b"))
	require.NoError(t, c.Insert(a, "ref-a"))
	require.NoError(t, c.Insert(b, "ref-b"))

	require.NoError(t, s.Save(context.Background(), c))
	assert.False(t, c.Dirty())

	loaded, report := s.Load(context.Background())
	assert.Equal(t, 2, report.Loaded)
	assert.Equal(t, c.Entries(), loaded.Entries())
}

func TestSaveIfDirtySkipsCleanCache(t *testing.T) {
	s, fs := newTestStore(t)
	require.NoError(t, s.SaveIfDirty(context.Background(), New()))

	exists, err := afero.Exists(fs, cachePath)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMigrateRefusesCorruptFile(t *testing.T) {
	s, fs := newTestStore(t)
	require.NoError(t, afero.WriteFile(fs, cachePath, []byte("{oops"), 0o644))

	_, err := s.Migrate(context.Background())
	assert.Error(t, err)

	b, err := afero.ReadFile(fs, cachePath)
	require.NoError(t, err)
	assert.Equal(t, "{oops", string(b))
}
