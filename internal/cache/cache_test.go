package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/varoOP/seasondb/internal/domain"
)

func TestLookupAfterInsert(t *testing.T) {
	c := New()
	fp := domain.NewFingerprint([]byte("cover"))

	_, ok := c.Lookup(fp)
	assert.False(t, ok)

	require.NoError(t, c.Insert(fp, "https://cdn/a.jpg"))
	ref, ok := c.Lookup(fp)
	assert.True(t, ok)
	assert.Equal(t, "https://cdn/a.jpg", ref)
}

func TestInsertIsIdempotent(t *testing.T) {
	c := New()
	fp := domain.NewFingerprint([]byte("cover"))

	require.NoError(t, c.Insert(fp, "ref"))
	require.NoError(t, c.Insert(fp, "ref"))
	assert.Equal(t, 1, c.Len())
}

func TestInsertConflictIsRejected(t *testing.T) {
	c := New()
	fp := domain.NewFingerprint([]byte("cover"))

	require.NoError(t, c.Insert(fp, "ref-1"))
	err := c.Insert(fp, "ref-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCacheConflict))

	ref, _ := c.Lookup(fp)
	assert.Equal(t, "ref-1", ref, "conflicting insert must not overwrite")
}

func TestInsertRejectsEmptyReference(t *testing.T) {
	c := New()
	assert.Error(t, c.Insert(domain.NewFingerprint([]byte("x")), ""))
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentInsertSameFingerprint(t *testing.T) {
	c := New()
	fp := domain.NewFingerprint([]byte("shared"))

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Insert(fp, "same-ref")
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, c.Len())
}

func TestRemoveUnreferenced(t *testing.T) {
	c := New()
	keep := domain.NewFingerprint([]byte("keep"))
	drop := domain.NewFingerprint([]byte("drop"))
	require.NoError(t, c.Insert(keep, "k"))
	require.NoError(t, c.Insert(drop, "d"))

	removed := c.RemoveUnreferenced(map[domain.Fingerprint]struct{}{keep: {}})
	assert.Equal(t, 1, removed)

	_, ok := c.Lookup(drop)
	assert.False(t, ok)
	_, ok = c.Lookup(keep)
	assert.True(t, ok)
}

func TestDirtyTracking(t *testing.T) {
	c := New()
	assert.False(t, c.Dirty())

	require.NoError(t, c.Insert(domain.NewFingerprint([]byte("a")), "a"))
	assert.True(t, c.Dirty())

	_, v := c.snapshot()
	c.markSaved(v)
	assert.False(t, c.Dirty())

	require.NoError(t, c.Insert(domain.NewFingerprint([]byte("b")), "b"))
	c.markSaved(v)
	assert.True(t, c.Dirty(), "a stale save must not hide newer inserts")
}

func BenchmarkLookup(b *testing.B) {
	c := New()
	fps := make([]domain.Fingerprint, 1000)
	for i := range fps {
		fps[i] = domain.NewFingerprint([]byte(fmt.Sprintf("img-%d", i)))
		_ = c.Insert(fps[i], fmt.Sprintf("ref-%d", i))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Lookup(fps[i%len(fps)])
	}
}
