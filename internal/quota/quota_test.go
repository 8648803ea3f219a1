package quota

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/seasondb/internal/cache"
	"github.com/varoOP/seasondb/internal/domain"
	"github.com/varoOP/seasondb/internal/media"
	"github.com/varoOP/seasondb/internal/repository"
	"github.com/varoOP/seasondb/pkg/season"
)

var (
	spring2019 = season.Period{Year: 2019, Season: season.Spring}
	winter2020 = season.Period{Year: 2020, Season: season.Winter}
	autumn2023 = season.Period{Year: 2023, Season: season.Autumn}
)

type fixture struct {
	fs         afero.Fs
	store      *media.MemoryStore
	partitions *repository.PartitionRepository
	cache      *cache.Cache
	flushes    int
}

func newFixture(t *testing.T, usage ...float64) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	return &fixture{
		fs:         fs,
		store:      media.NewMemoryStore("anime_covers", usage...),
		partitions: repository.NewPartitionRepository(zerolog.Nop(), fs, "data"),
		cache:      cache.New(),
	}
}

// host uploads a cover into the store and the cache and returns its reference.
func (f *fixture) host(t *testing.T, content string) string {
	t.Helper()
	fp := domain.NewFingerprint([]byte(content))
	ref := f.store.Put(f.store.ResourceName(fp), []byte(content))
	require.NoError(t, f.cache.Insert(fp, ref))
	return ref
}

func (f *fixture) partition(t *testing.T, p season.Period, refs ...string) {
	t.Helper()
	records := make([]domain.Record, 0, len(refs))
	for i, ref := range refs {
		records = append(records, domain.Record{ID: p.Key() + "-" + string(rune('a'+i)), ImageRef: ref})
	}
	require.NoError(t, f.partitions.Store(context.Background(), &domain.TimePartition{Period: p, Records: records, GeneratedAt: time.Now()}))
}

func (f *fixture) controller(maxEvictions int) *Controller {
	return NewController(zerolog.Nop(), f.store, f.partitions, f.cache, Options{
		Threshold:      90,
		MaxEvictions:   maxEvictions,
		InitialBackoff: time.Millisecond,
		Flush: func(context.Context) error {
			f.flushes++
			return nil
		},
	})
}

func TestEnsureProceedsBelowThreshold(t *testing.T) {
	f := newFixture(t, 42)
	f.partition(t, spring2019, f.host(t, "a"))

	out, err := f.controller(3).Ensure(context.Background(), autumn2023)
	require.NoError(t, err)
	assert.Equal(t, StateProceed, out.State)
	assert.Empty(t, out.Evicted)

	ok, err := f.partitions.Exists(context.Background(), spring2019)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnsureEvictsOldestThenAbortsWhenNothingLeft(t *testing.T) {
	f := newFixture(t, 95)
	f.partition(t, spring2019, f.host(t, "2019"))
	f.partition(t, winter2020, f.host(t, "2020"))
	f.partition(t, autumn2023, f.host(t, "2023"))

	out, err := f.controller(3).Ensure(context.Background(), autumn2023)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))
	assert.Equal(t, StateAbort, out.State)
	assert.Equal(t, "no evictable partition", out.Reason)

	require.Len(t, out.Evicted, 2)
	assert.Equal(t, spring2019, out.Evicted[0].Period)
	assert.Equal(t, winter2020, out.Evicted[1].Period)

	periods, err := f.partitions.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []season.Period{autumn2023}, periods, "the partition being generated is never evicted")
	assert.Equal(t, 1, f.cache.Len())
	assert.Len(t, f.store.Objects(), 1)
}

func TestEnsureStopsOnceUsageDrops(t *testing.T) {
	f := newFixture(t, 95, 60)
	f.partition(t, spring2019, f.host(t, "2019"))
	f.partition(t, winter2020, f.host(t, "2020"))

	out, err := f.controller(3).Ensure(context.Background(), autumn2023)
	require.NoError(t, err)
	assert.Equal(t, StateProceed, out.State)
	require.Len(t, out.Evicted, 1)
	assert.Equal(t, spring2019, out.Evicted[0].Period)
	assert.Equal(t, 60.0, out.Usage)
}

func TestEnsureAbortsWhenAttemptsExhausted(t *testing.T) {
	f := newFixture(t, 99)
	f.partition(t, spring2019, f.host(t, "2019"))
	f.partition(t, winter2020, f.host(t, "2020"))

	out, err := f.controller(1).Ensure(context.Background(), autumn2023)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrQuotaExceeded))
	assert.Equal(t, StateAbort, out.State)
	assert.Equal(t, "eviction attempts exhausted", out.Reason)
	assert.Len(t, out.Evicted, 1)
}

func TestEnsureAbortsOnUsageFailure(t *testing.T) {
	f := newFixture(t)
	f.store.UsageErr = errors.New("admin api down")

	out, err := f.controller(3).Ensure(context.Background(), autumn2023)
	require.Error(t, err)
	assert.Equal(t, StateAbort, out.State)
}

func TestEvictKeepsCoversSharedWithRemainingPartitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	unique := f.host(t, "unique")
	shared := f.host(t, "shared")
	f.partition(t, spring2019, unique, shared, "https://source.example/raw.jpg", "")
	f.partition(t, autumn2023, shared)

	ev, err := f.controller(3).Evict(ctx, spring2019)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.AssetsDeleted)
	assert.Equal(t, 1, ev.AssetsKept)
	assert.Equal(t, 1, ev.CacheRemoved)
	assert.Equal(t, 1, f.flushes)

	sharedName, sharedFP, ok := f.store.ParseReference(shared)
	require.True(t, ok)
	assert.Equal(t, []string{sharedName}, f.store.Objects())

	_, ok = f.cache.Lookup(sharedFP)
	assert.True(t, ok)
	_, uniqueFP, _ := f.store.ParseReference(unique)
	_, ok = f.cache.Lookup(uniqueFP)
	assert.False(t, ok)
}

func TestEvictToleratesDeleteFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.partition(t, spring2019, f.host(t, "a"))
	f.store.DeleteErr = errors.New("batch failed")

	_, err := f.controller(3).Evict(ctx, spring2019)
	require.NoError(t, err)

	ok, err := f.partitions.Exists(ctx, spring2019)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOldestExcludesCurrent(t *testing.T) {
	periods := []season.Period{autumn2023, winter2020, spring2019}
	got, ok := Oldest(periods, spring2019)
	require.True(t, ok)
	assert.Equal(t, winter2020, got)

	_, ok = Oldest([]season.Period{autumn2023}, autumn2023)
	assert.False(t, ok)
}

func TestOldestOrdersSeasonsWithinYear(t *testing.T) {
	periods := []season.Period{
		{Year: 2021, Season: season.Autumn},
		{Year: 2021, Season: season.Winter},
		{Year: 2021, Season: season.Summer},
	}
	got, ok := Oldest(periods, season.Period{})
	require.True(t, ok)
	assert.Equal(t, season.Winter, got.Season)

	sort.Slice(periods, func(i, j int) bool { return periods[i].Less(periods[j]) })
	assert.Equal(t, season.Autumn, periods[2].Season)
}
