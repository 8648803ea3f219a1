package domain

import (
	"context"
	"time"

	"github.com/varoOP/seasondb/pkg/season"
)

// PartitionRepository defines the interface for season dataset storage
type PartitionRepository interface {
	Get(ctx context.Context, p season.Period) (*TimePartition, error)
	Store(ctx context.Context, partition *TimePartition) error
	Delete(ctx context.Context, p season.Period) error
	List(ctx context.Context) ([]season.Period, error)
	Exists(ctx context.Context, p season.Period) (bool, error)
}

// OverrideRepository loads hand-maintained corrections
type OverrideRepository interface {
	GetOverrides(ctx context.Context, path string) (Overrides, error)
	StoreOverrides(ctx context.Context, path string, overrides Overrides) error
}

// Overrides maps a bangumi id to the fields that replace the scraped ones.
type Overrides map[string]Override

// Override holds optional replacements for a record's scraped fields.
type Override struct {
	Name         *string `yaml:"name,omitempty"`
	PremiereDate *string `yaml:"premiere_date,omitempty"`
	PremiereTime *string `yaml:"premiere_time,omitempty"`
	Story        *string `yaml:"story,omitempty"`
	Image        *string `yaml:"image,omitempty"`
}

// RunStatus is the outcome of one period's generation.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusEmpty   RunStatus = "empty"
	RunStatusFailed  RunStatus = "failed"
	RunStatusAborted RunStatus = "aborted"
)

// RunRecord is one row of generation history.
type RunRecord struct {
	ID         string
	Period     string
	Status     RunStatus
	Records    int
	Uploads    int
	CacheHits  int
	Failures   int
	Fallbacks  int
	Reason     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunRepo defines the interface for generation history storage
type RunRepo interface {
	Record(ctx context.Context, run *RunRecord) error
	Latest(ctx context.Context, limit int) ([]*RunRecord, error)
}

// Apply replaces the fields of r that have an override and reports whether anything changed.
func (o Overrides) Apply(r *Record) bool {
	ov, ok := o[r.ID]
	if !ok || r.ID == "" {
		return false
	}
	if ov.Name != nil {
		r.Name = *ov.Name
	}
	if ov.PremiereDate != nil {
		r.Weekday = optionalOf(*ov.PremiereDate)
	}
	if ov.PremiereTime != nil {
		r.PremiereTime = optionalOf(*ov.PremiereTime)
	}
	if ov.Story != nil {
		r.Description = *ov.Story
	}
	if ov.Image != nil {
		r.ImageRef = *ov.Image
	}
	return true
}

// an empty override clears the field
func optionalOf(v string) Optional[string] {
	if v == "" {
		return None[string]()
	}
	return Some(v)
}
