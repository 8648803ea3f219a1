package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/varoOP/seasondb/pkg/season"
)

var (
	// ErrCacheConflict means a fingerprint was about to be bound to a second, different reference.
	ErrCacheConflict = errors.New("cache conflict: fingerprint already bound to a different reference")
	// ErrQuotaExceeded means storage usage stayed above the threshold after all eviction attempts.
	ErrQuotaExceeded = errors.New("media storage quota exceeded")
	// ErrNoEvictable means usage is over the threshold and there is nothing left to evict.
	ErrNoEvictable = errors.New("no evictable partition")
	// ErrListingNotFound means the source has no listing page for the period.
	ErrListingNotFound = errors.New("listing not found")
)

// Optional holds a value that may be absent.
type Optional[T any] struct {
	value T
	set   bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None is the absent value.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// Valid reports whether a value is present.
func (o Optional[T]) Valid() bool {
	return o.set
}

// OrElse returns the value or d when absent.
func (o Optional[T]) OrElse(d T) T {
	if o.set {
		return o.value
	}
	return d
}

// Record is one harvested anime entry.
type Record struct {
	ID   string
	Name string
	// ImageRef is the hosted cover reference, the source URL when hosting failed,
	// or empty when the entry has no cover.
	ImageRef     string
	Weekday      Optional[string]
	PremiereTime Optional[string]
	Description  string
}

// HasImage reports whether the record carries any cover reference.
func (r Record) HasImage() bool {
	return r.ImageRef != ""
}

// RawItem is one unparsed listing entry, in page order.
type RawItem struct {
	Index int
	HTML  string
}

// Result is the outcome of processing a single RawItem. A nil Record marks a failure.
type Result struct {
	Index  int
	Record *Record
	Err    error
}

// Failed reports whether the result is a failure marker.
func (r Result) Failed() bool {
	return r.Record == nil
}

// TimePartition is one persisted season dataset.
type TimePartition struct {
	Period      season.Period
	Records     []Record
	GeneratedAt time.Time
}
