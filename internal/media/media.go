package media

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/seasondb/internal/domain"
)

// New builds the configured store. It returns a nil store for domain.MediaBackendNone.
func New(ctx context.Context, log zerolog.Logger, cfg *domain.Config) (domain.MediaStore, error) {
	switch cfg.MediaStore {
	case domain.MediaBackendCloudinary:
		s, err := NewCloudinaryStore(log, cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.MediaFolder)
		if err != nil {
			return nil, err
		}
		return s, nil
	case domain.MediaBackendGCS:
		s, err := NewGCSStore(ctx, log, cfg.GCSBucket, cfg.MediaFolder, cfg.GCSCapacityBytes)
		if err != nil {
			return nil, err
		}
		return s, nil
	case domain.MediaBackendNone:
		return nil, nil
	default:
		return nil, errors.Errorf("unknown media store %q", cfg.MediaStore)
	}
}
