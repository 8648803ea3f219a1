// Package assemble orders worker output into a deterministic season listing.
package assemble

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/varoOP/seasondb/internal/domain"
)

const (
	// OrdinalUnknownWeekday sorts entries with some premiere data but no usable weekday.
	OrdinalUnknownWeekday = 7
	// OrdinalNoPremiere sorts entries without any premiere data.
	OrdinalNoPremiere = 8
)

var weekdayOrdinals = map[string]int{
	"一": 0,
	"二": 1,
	"三": 2,
	"四": 3,
	"五": 4,
	"六": 5,
	"日": 6,
	"天": 6,
}

var timePattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// Assembled is the ordered output handed to partition persistence.
type Assembled struct {
	Records []domain.Record
	Count   int
	Failed  int
}

// Key is the sort key of a record.
type Key struct {
	Weekday int
	Time    float64
}

func (k Key) less(o Key) bool {
	if k.Weekday != o.Weekday {
		return k.Weekday < o.Weekday
	}
	return k.Time < o.Time
}

// WeekdayOrdinal maps a weekday label to 0..6.
func WeekdayOrdinal(label string) (int, bool) {
	o, ok := weekdayOrdinals[label]
	return o, ok
}

// KeyOf derives the ordering key. A missing or malformed time sorts first within its weekday.
func KeyOf(r domain.Record) Key {
	label, hasWeekday := r.Weekday.Get()
	_, hasTime := r.PremiereTime.Get()

	k := Key{Time: parseTime(r.PremiereTime)}
	switch {
	case hasWeekday:
		if o, ok := WeekdayOrdinal(label); ok {
			k.Weekday = o
		} else {
			k.Weekday = OrdinalUnknownWeekday
		}
	case hasTime:
		k.Weekday = OrdinalUnknownWeekday
	default:
		k.Weekday = OrdinalNoPremiere
	}
	return k
}

func parseTime(t domain.Optional[string]) float64 {
	s, ok := t.Get()
	if !ok {
		return 0
	}
	m := timePattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if minute > 59 {
		return 0
	}
	return float64(hour) + float64(minute)/60
}

// Assemble drops failure markers and stable-sorts the remaining records by KeyOf.
// Ties keep the order in which results were received.
func Assemble(results []domain.Result) Assembled {
	records := make([]domain.Record, 0, len(results))
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
			continue
		}
		records = append(records, *r.Record)
	}

	Sort(records)
	return Assembled{Records: records, Count: len(records), Failed: failed}
}

// Sort orders records in place.
func Sort(records []domain.Record) {
	keys := make([]Key, len(records))
	for i := range records {
		keys[i] = KeyOf(records[i])
	}
	sort.Stable(byKey{records: records, keys: keys})
}

type byKey struct {
	records []domain.Record
	keys    []Key
}

func (b byKey) Len() int           { return len(b.records) }
func (b byKey) Less(i, j int) bool { return b.keys[i].less(b.keys[j]) }
func (b byKey) Swap(i, j int) {
	b.records[i], b.records[j] = b.records[j], b.records[i]
	b.keys[i], b.keys[j] = b.keys[j], b.keys[i]
}
