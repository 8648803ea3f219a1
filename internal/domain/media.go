package domain

import "context"

// TransformOptions normalizes uploaded covers so repeated reads are stable.
type TransformOptions struct {
	Width   int
	Height  int
	Crop    string
	Quality int
	Format  string
}

// DefaultTransform matches the 300x300 limit/q90 jpg covers served by the site.
var DefaultTransform = TransformOptions{
	Width:   300,
	Height:  300,
	Crop:    "limit",
	Quality: 90,
	Format:  "jpg",
}

// DeleteResult reports a batched deletion. Status maps resource name to a store-specific status.
type DeleteResult struct {
	Deleted int
	Status  map[string]string
}

// Usage is the remote store's consumption of its quota.
type Usage struct {
	PercentUsed float64
}

// Resource is one asset found in the store. Fingerprint is empty when the name does not
// follow the content-addressed naming scheme.
type Resource struct {
	Name        string
	Fingerprint Fingerprint
}

// MediaStore is the remote, content-addressed cover store.
type MediaStore interface {
	// Upload stores data under name, overwriting any previous content, and returns its reference.
	Upload(ctx context.Context, data []byte, name string, opts TransformOptions) (string, error)
	DeleteMany(ctx context.Context, names []string) (DeleteResult, error)
	Usage(ctx context.Context) (Usage, error)
	// ListResources returns every asset under the store's cover folder, named as DeleteMany expects.
	ListResources(ctx context.Context) ([]Resource, error)
	// ResourceName derives the resource name for a fingerprint.
	ResourceName(fp Fingerprint) string
	// ParseReference recovers the resource name and fingerprint from a reference this store produced.
	ParseReference(ref string) (name string, fp Fingerprint, ok bool)
}
