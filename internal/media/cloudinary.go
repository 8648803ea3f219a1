package media

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/varoOP/seasondb/internal/domain"
)

const cloudinaryDeliveryHost = "https://res.cloudinary.com"

const (
	// deleteBatchSize is the Admin API limit on public ids per delete call.
	deleteBatchSize = 100
	// listPageSize is the Admin API maximum page size when listing assets.
	listPageSize = 500
)

var (
	versionSegment   = regexp.MustCompile(`^v\d+$`)
	transformSegment = regexp.MustCompile(`^[a-z]{1,3}_[^,/]+(,[a-z]{1,3}_[^,/]+)*$`)
)

type CloudinaryStore struct {
	log       zerolog.Logger
	cld       *cloudinary.Cloudinary
	cloudName string
	folder    string
}

func NewCloudinaryStore(log zerolog.Logger, cloudName, apiKey, apiSecret, folder string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cloudinary client")
	}

	return &CloudinaryStore{
		log:       log.With().Str("module", "cloudinary").Logger(),
		cld:       cld,
		cloudName: cloudName,
		folder:    strings.Trim(folder, "/"),
	}, nil
}

func (s *CloudinaryStore) Upload(ctx context.Context, data []byte, name string, opts domain.TransformOptions) (string, error) {
	res, err := s.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:       name,
		Overwrite:      api.Bool(true),
		Invalidate:     api.Bool(true),
		Transformation: transformation(opts),
		Format:         opts.Format,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to upload %s", name)
	}
	if res.Error.Message != "" {
		return "", errors.Errorf("failed to upload %s: %s", name, res.Error.Message)
	}

	s.log.Trace().Str("public_id", name).Int("bytes", len(data)).Msg("uploaded")
	return s.deliveryURL(name, opts), nil
}

// DeleteMany deletes in batches of deleteBatchSize and keeps going past failed batches.
func (s *CloudinaryStore) DeleteMany(ctx context.Context, names []string) (domain.DeleteResult, error) {
	out := domain.DeleteResult{Status: make(map[string]string, len(names))}

	var firstErr error
	for start := 0; start < len(names); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(names))
		batch := names[start:end]

		res, err := s.cld.Admin.DeleteAssets(ctx, admin.DeleteAssetsParams{
			PublicIDs:    api.CldAPIArray(batch),
			AssetType:    api.Image,
			DeliveryType: api.Upload,
		})
		if err == nil && res.Error.Message != "" {
			err = errors.New(res.Error.Message)
		}
		if err != nil {
			s.log.Error().Err(err).Int("batch_start", start).Int("batch_size", len(batch)).Msg("delete batch failed")
			if firstErr == nil {
				firstErr = errors.Wrap(err, "failed to delete assets")
			}
			for _, name := range batch {
				out.Status[name] = "error"
			}
			continue
		}

		for _, name := range batch {
			status, ok := res.Deleted[name]
			if !ok {
				status = "unknown"
			}
			out.Status[name] = status
			if status == "deleted" {
				out.Deleted++
			}
		}
	}

	return out, firstErr
}

func (s *CloudinaryStore) Usage(ctx context.Context) (domain.Usage, error) {
	res, err := s.cld.Admin.Usage(ctx, admin.UsageParams{})
	if err != nil {
		return domain.Usage{}, errors.Wrap(err, "failed to query usage")
	}
	if res.Error.Message != "" {
		return domain.Usage{}, errors.Errorf("failed to query usage: %s", res.Error.Message)
	}
	return domain.Usage{PercentUsed: res.Storage.UsedPercent}, nil
}

// ListResources pages through every uploaded image whose public id starts with the folder.
func (s *CloudinaryStore) ListResources(ctx context.Context) ([]domain.Resource, error) {
	params := admin.AssetsParams{
		AssetType:    api.Image,
		DeliveryType: string(api.Upload),
		MaxResults:   listPageSize,
	}
	if s.folder != "" {
		params.Prefix = s.folder + "/"
	}

	var out []domain.Resource
	for page := 1; ; page++ {
		res, err := s.cld.Admin.Assets(ctx, params)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list assets (page %d)", page)
		}
		if res.Error.Message != "" {
			return nil, errors.Errorf("failed to list assets (page %d): %s", page, res.Error.Message)
		}

		for _, a := range res.Assets {
			if r, ok := resourceOf(s.folder, a.PublicID); ok {
				out = append(out, r)
			}
		}
		s.log.Trace().Int("page", page).Int("assets", len(res.Assets)).Msg("listed assets")

		if res.NextCursor == "" {
			return out, nil
		}
		params.NextCursor = res.NextCursor
	}
}

func (s *CloudinaryStore) ResourceName(fp domain.Fingerprint) string {
	return resourceName(s.folder, fp)
}

// ParseReference accepts delivery URLs with or without a transformation or version segment.
func (s *CloudinaryStore) ParseReference(ref string) (string, domain.Fingerprint, bool) {
	prefix := fmt.Sprintf("%s/%s/image/upload/", cloudinaryDeliveryHost, s.cloudName)
	rest, ok := strings.CutPrefix(ref, prefix)
	if !ok {
		return "", "", false
	}
	rest, _, _ = strings.Cut(rest, "?")

	segments := strings.Split(rest, "/")
	for len(segments) > 1 && (transformSegment.MatchString(segments[0]) || versionSegment.MatchString(segments[0])) {
		segments = segments[1:]
	}
	name := strings.Join(segments, "/")

	publicID, fp, ok := splitResourceName(s.folder, name)
	if !ok {
		return "", "", false
	}
	return strings.TrimSuffix(publicID, path.Ext(publicID)), fp, true
}

func (s *CloudinaryStore) deliveryURL(name string, opts domain.TransformOptions) string {
	u := fmt.Sprintf("%s/%s/image/upload/", cloudinaryDeliveryHost, s.cloudName)
	if t := transformation(opts); t != "" {
		u += t + "/"
	}
	u += name
	if opts.Format != "" {
		u += "." + opts.Format
	}
	return u
}

// transformation renders opts as a Cloudinary transformation string, e.g. "c_limit,h_300,q_90,w_300".
func transformation(opts domain.TransformOptions) string {
	parts := make([]string, 0, 4)
	if opts.Crop != "" {
		parts = append(parts, "c_"+opts.Crop)
	}
	if opts.Height > 0 {
		parts = append(parts, fmt.Sprintf("h_%d", opts.Height))
	}
	if opts.Quality > 0 {
		parts = append(parts, fmt.Sprintf("q_%d", opts.Quality))
	}
	if opts.Width > 0 {
		parts = append(parts, fmt.Sprintf("w_%d", opts.Width))
	}
	return strings.Join(parts, ",")
}
