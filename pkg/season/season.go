package season

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Season is one broadcast quarter, labelled the way the listing site labels it.
type Season string

const (
	Winter Season = "冬"
	Spring Season = "春"
	Summer Season = "夏"
	Autumn Season = "秋"
)

// All lists the seasons in calendar order.
var All = []Season{Winter, Spring, Summer, Autumn}

// Parse returns the Season for a label such as "春".
func Parse(s string) (Season, error) {
	for _, v := range All {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid season %q (must be one of 冬, 春, 夏, 秋)", s)
}

// Ordinal is the calendar position of the season (冬=0 .. 秋=3), -1 when unknown.
func (s Season) Ordinal() int {
	for i, v := range All {
		if v == s {
			return i
		}
	}
	return -1
}

// StartMonth is the first month of the season.
func (s Season) StartMonth() int {
	if o := s.Ordinal(); o >= 0 {
		return o*3 + 1
	}
	return 0
}

// FromMonth maps a calendar month to its season.
func FromMonth(month int) Season {
	switch {
	case month >= 1 && month <= 3:
		return Winter
	case month >= 4 && month <= 6:
		return Spring
	case month >= 7 && month <= 9:
		return Summer
	default:
		return Autumn
	}
}

// Period identifies one season of one year, e.g. 2024 春.
type Period struct {
	Year   int
	Season Season
}

// Current returns the period containing t.
func Current(t time.Time) Period {
	return Period{Year: t.Year(), Season: FromMonth(int(t.Month()))}
}

// Key is the lossless string form used in file names, e.g. "2024_春".
func (p Period) Key() string {
	return fmt.Sprintf("%d_%s", p.Year, p.Season)
}

func (p Period) String() string {
	return p.Key()
}

// FileName is the dataset file name for the period.
func (p Period) FileName() string {
	return p.Key() + ".json"
}

// Less orders periods chronologically.
func (p Period) Less(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Season.Ordinal() < o.Season.Ordinal()
}

// Next returns the following season.
func (p Period) Next() Period {
	o := p.Season.Ordinal() + 1
	if o >= len(All) {
		return Period{Year: p.Year + 1, Season: All[0]}
	}
	return Period{Year: p.Year, Season: All[o]}
}

// Start returns the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Season.StartMonth()), 1, 0, 0, 0, 0, time.UTC)
}

// ParseKey parses "2024_春".
func ParseKey(key string) (Period, error) {
	year, label, ok := strings.Cut(key, "_")
	if !ok {
		return Period{}, fmt.Errorf("invalid period key %q", key)
	}
	y, err := strconv.Atoi(year)
	if err != nil || y <= 0 {
		return Period{}, fmt.Errorf("invalid year in period key %q", key)
	}
	s, err := Parse(label)
	if err != nil {
		return Period{}, err
	}
	return Period{Year: y, Season: s}, nil
}

// ParseFileName recovers the period from a dataset file name such as "2019_春.json".
func ParseFileName(name string) (Period, error) {
	base := filepath.Base(name)
	if filepath.Ext(base) != ".json" {
		return Period{}, fmt.Errorf("not a dataset file: %q", name)
	}
	return ParseKey(strings.TrimSuffix(base, ".json"))
}
