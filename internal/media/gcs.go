package media

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/seasondb/internal/domain"
	"google.golang.org/api/iterator"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSStore keeps covers as plain objects in a bucket. Transformations are not applied;
// the object is stored as fetched with its format as the extension.
type GCSStore struct {
	log      zerolog.Logger
	client   *storage.Client
	bucket   string
	folder   string
	capacity int64
}

// NewGCSStore creates a store for bucket. capacity is the byte budget Usage reports against;
// zero disables the quota.
func NewGCSStore(ctx context.Context, log zerolog.Logger, bucket, folder string, capacity int64) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCS client")
	}

	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close GCS client")
		}
		return nil, errors.Wrapf(err, "failed to get GCS bucket %q attributes", bucket)
	}

	return &GCSStore{
		log:      log.With().Str("module", "gcs").Logger(),
		client:   client,
		bucket:   bucket,
		folder:   strings.Trim(folder, "/"),
		capacity: capacity,
	}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Upload(ctx context.Context, data []byte, name string, opts domain.TransformOptions) (string, error) {
	object := name
	if opts.Format != "" {
		object += "." + opts.Format
	}

	w := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if opts.Format != "" {
		w.ContentType = "image/" + strings.ReplaceAll(opts.Format, "jpg", "jpeg")
	}
	if _, err := w.Write(data); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			s.log.Warn().Err(closeErr).Str("object", object).Msg("failed to close writer after write failure")
		}
		return "", errors.Wrapf(err, "failed to write object %s", object)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to close writer for object %s", object)
	}

	return fmt.Sprintf("%s/%s/%s", gcsPublicHost, s.bucket, object), nil
}

func (s *GCSStore) DeleteMany(ctx context.Context, names []string) (domain.DeleteResult, error) {
	out := domain.DeleteResult{Status: make(map[string]string, len(names))}

	var firstErr error
	for _, name := range names {
		err := s.client.Bucket(s.bucket).Object(name).Delete(ctx)
		switch {
		case err == nil:
			out.Status[name] = "deleted"
			out.Deleted++
		case errors.Is(err, storage.ErrObjectNotExist):
			out.Status[name] = "not_found"
		default:
			out.Status[name] = "error"
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "failed to delete object %s", name)
			}
		}
	}
	return out, firstErr
}

// Usage sums the object sizes under the folder against the configured capacity.
func (s *GCSStore) Usage(ctx context.Context) (domain.Usage, error) {
	if s.capacity <= 0 {
		return domain.Usage{}, nil
	}

	var total int64
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix()})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return domain.Usage{}, errors.Wrap(err, "failed to list objects")
		}
		total += attrs.Size
	}

	return domain.Usage{PercentUsed: float64(total) / float64(s.capacity) * 100}, nil
}

// ListResources walks every object under the folder.
func (s *GCSStore) ListResources(ctx context.Context) ([]domain.Resource, error) {
	var out []domain.Resource
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix()})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to list objects")
		}
		if r, ok := resourceOf(s.folder, attrs.Name); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *GCSStore) ResourceName(fp domain.Fingerprint) string {
	return resourceName(s.folder, fp)
}

func (s *GCSStore) ParseReference(ref string) (string, domain.Fingerprint, bool) {
	object, ok := strings.CutPrefix(ref, fmt.Sprintf("%s/%s/", gcsPublicHost, s.bucket))
	if !ok {
		return "", "", false
	}
	return splitResourceName(s.folder, object)
}

func (s *GCSStore) prefix() string {
	if s.folder == "" {
		return ""
	}
	return s.folder + "/"
}
