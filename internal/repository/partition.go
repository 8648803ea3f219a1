package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/varoOP/seasondb/internal/atomicfile"
	"github.com/varoOP/seasondb/internal/domain"
	"github.com/varoOP/seasondb/pkg/season"
)

// Sentinels written in place of missing values, kept for compatibility with published datasets.
const (
	NoID           = "未知ID"
	NoName         = "無名稱"
	NoImage        = "無圖片"
	NoPremiereDate = "無首播日期"
	NoPremiereTime = "無首播時間"
	NoStory        = "暫無簡介"
	noStoryLegacy  = "無故事大綱"
)

type animeEntry struct {
	BangumiID     string `json:"bangumi_id"`
	AnimeName     string `json:"anime_name"`
	AnimeImageURL string `json:"anime_image_url"`
	PremiereDate  string `json:"premiere_date"`
	PremiereTime  string `json:"premiere_time"`
	Story         string `json:"story"`
}

type partitionFile struct {
	AnimeList   []animeEntry `json:"anime_list"`
	GeneratedAt string       `json:"generated_at"`
}

// PartitionRepository stores one JSON file per season under a data directory.
type PartitionRepository struct {
	log zerolog.Logger
	fs  afero.Fs
	dir string
}

var _ domain.PartitionRepository = (*PartitionRepository)(nil)

func NewPartitionRepository(log zerolog.Logger, fs afero.Fs, dir string) *PartitionRepository {
	return &PartitionRepository{
		log: log.With().Str("module", "repository").Logger(),
		fs:  fs,
		dir: dir,
	}
}

func (r *PartitionRepository) path(p season.Period) string {
	return filepath.Join(r.dir, p.FileName())
}

// Get loads a period's dataset.
func (r *PartitionRepository) Get(ctx context.Context, p season.Period) (*domain.TimePartition, error) {
	path := r.path(p)

	b, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read partition %s", path)
	}

	var f partitionFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal partition %s", path)
	}

	part := &domain.TimePartition{
		Period:  p,
		Records: make([]domain.Record, 0, len(f.AnimeList)),
	}
	if f.GeneratedAt != "" {
		if t, ok := parseGeneratedAt(f.GeneratedAt); ok {
			part.GeneratedAt = t
		} else {
			r.log.Debug().Str("path", path).Str("generated_at", f.GeneratedAt).Msg("unparsable generated_at")
		}
	}
	for _, e := range f.AnimeList {
		part.Records = append(part.Records, fromEntry(e))
	}
	return part, nil
}

// Store writes the dataset atomically, overwriting any previous generation.
func (r *PartitionRepository) Store(ctx context.Context, partition *domain.TimePartition) error {
	path := r.path(partition.Period)

	generated := partition.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	f := partitionFile{
		AnimeList:   make([]animeEntry, 0, len(partition.Records)),
		GeneratedAt: generated.Format(time.RFC3339),
	}
	for _, rec := range partition.Records {
		f.AnimeList = append(f.AnimeList, toEntry(rec))
	}

	if err := atomicfile.WriteJSON(r.fs, path, f); err != nil {
		return errors.Wrapf(err, "failed to store partition %s", path)
	}

	r.log.Debug().Str("path", path).Int("count", len(f.AnimeList)).Msg("stored partition")
	return nil
}

// Delete removes a period's dataset. A missing file is not an error.
func (r *PartitionRepository) Delete(ctx context.Context, p season.Period) error {
	path := r.path(p)
	if err := r.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "failed to delete partition %s", path)
	}
	return nil
}

// List returns every persisted period, oldest first. Files whose name is not a period key are ignored.
func (r *PartitionRepository) List(ctx context.Context) ([]season.Period, error) {
	infos, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to list %s", r.dir)
	}

	periods := make([]season.Period, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		p, err := season.ParseFileName(info.Name())
		if err != nil {
			r.log.Trace().Str("file", info.Name()).Msg("ignoring non-partition file")
			continue
		}
		periods = append(periods, p)
	}

	sort.Slice(periods, func(i, j int) bool { return periods[i].Less(periods[j]) })
	return periods, nil
}

func (r *PartitionRepository) Exists(ctx context.Context, p season.Period) (bool, error) {
	ok, err := afero.Exists(r.fs, r.path(p))
	if err != nil {
		return false, errors.Wrapf(err, "failed to stat partition %s", r.path(p))
	}
	return ok, nil
}

// older files carry a naive local ISO timestamp
var generatedAtLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"}

func parseGeneratedAt(v string) (time.Time, bool) {
	for _, layout := range generatedAtLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toEntry(r domain.Record) animeEntry {
	return animeEntry{
		BangumiID:     orSentinel(r.ID, NoID),
		AnimeName:     orSentinel(r.Name, NoName),
		AnimeImageURL: orSentinel(r.ImageRef, NoImage),
		PremiereDate:  r.Weekday.OrElse(NoPremiereDate),
		PremiereTime:  r.PremiereTime.OrElse(NoPremiereTime),
		Story:         orSentinel(r.Description, NoStory),
	}
}

func fromEntry(e animeEntry) domain.Record {
	rec := domain.Record{
		ID:          fromSentinel(e.BangumiID, NoID),
		Name:        fromSentinel(e.AnimeName, NoName),
		ImageRef:    fromSentinel(e.AnimeImageURL, NoImage),
		Description: fromSentinel(fromSentinel(e.Story, NoStory), noStoryLegacy),
	}
	if v := fromSentinel(e.PremiereDate, NoPremiereDate); v != "" {
		rec.Weekday = domain.Some(v)
	}
	if v := fromSentinel(e.PremiereTime, NoPremiereTime); v != "" {
		rec.PremiereTime = domain.Some(v)
	}
	return rec
}

func orSentinel(v, sentinel string) string {
	if v == "" {
		return sentinel
	}
	return v
}

func fromSentinel(v, sentinel string) string {
	if v == sentinel {
		return ""
	}
	return v
}
