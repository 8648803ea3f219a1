package repository

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/varoOP/seasondb/internal/atomicfile"
	"github.com/varoOP/seasondb/internal/domain"
	"gopkg.in/yaml.v3"
)

type overridesFile struct {
	Overrides domain.Overrides `yaml:"overrides"`
}

// OverrideRepository reads hand-maintained corrections from a YAML file.
type OverrideRepository struct {
	log zerolog.Logger
	fs  afero.Fs
}

var _ domain.OverrideRepository = (*OverrideRepository)(nil)

func NewOverrideRepository(log zerolog.Logger, fs afero.Fs) *OverrideRepository {
	return &OverrideRepository{
		log: log.With().Str("module", "repository").Logger(),
		fs:  fs,
	}
}

// GetOverrides loads path. A missing file yields no overrides.
func (r *OverrideRepository) GetOverrides(ctx context.Context, path string) (domain.Overrides, error) {
	if path == "" {
		return domain.Overrides{}, nil
	}

	b, err := afero.ReadFile(r.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Overrides{}, nil
		}
		return nil, errors.Wrapf(err, "failed to read overrides %s", path)
	}

	var f overridesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal yaml %s", path)
	}
	if f.Overrides == nil {
		f.Overrides = domain.Overrides{}
	}

	r.log.Debug().Str("path", path).Int("count", len(f.Overrides)).Msg("loaded overrides")
	return f.Overrides, nil
}

// StoreOverrides writes overrides in canonical form: ids sorted, two-space indent and a blank
// line between entries.
func (r *OverrideRepository) StoreOverrides(ctx context.Context, path string, overrides domain.Overrides) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(overridesFile{Overrides: overrides}); err != nil {
		return errors.Wrap(err, "failed to marshal overrides")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, "failed to marshal overrides")
	}

	lines := strings.Split(buf.String(), "\n")
	entryFound := false
	for i, line := range lines {
		if strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "   ") {
			if entryFound {
				lines[i-1] += "\n"
			} else {
				entryFound = true
			}
		}
	}

	if err := atomicfile.WriteFile(r.fs, path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return errors.Wrapf(err, "failed to store overrides %s", path)
	}

	r.log.Debug().Str("path", path).Int("count", len(overrides)).Msg("stored overrides")
	return nil
}
