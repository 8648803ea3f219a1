package media

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/varoOP/seasondb/internal/domain"
)

const memoryScheme = "memory://"

// MemoryStore keeps uploads in memory. It is the test double for the remote stores and is
// not selectable through media_store.
type MemoryStore struct {
	mu      sync.Mutex
	folder  string
	objects map[string][]byte
	uploads int
	usage   []float64

	// UploadErr, when set, is returned by every Upload.
	UploadErr error
	// DeleteErr, when set, is returned by every DeleteMany.
	DeleteErr error
	// UsageErr, when set, is returned by every Usage.
	UsageErr error
	// ListErr, when set, is returned by every ListResources.
	ListErr error
}

// NewMemoryStore creates an empty in-memory store that reports the given usage percentages,
// one per Usage call, repeating the last one.
func NewMemoryStore(folder string, usage ...float64) *MemoryStore {
	return &MemoryStore{
		folder:  strings.Trim(folder, "/"),
		objects: make(map[string][]byte),
		usage:   usage,
	}
}

func (s *MemoryStore) Upload(_ context.Context, data []byte, name string, _ domain.TransformOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uploads++
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	s.objects[name] = append([]byte(nil), data...)
	return memoryScheme + name, nil
}

func (s *MemoryStore) DeleteMany(_ context.Context, names []string) (domain.DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.DeleteErr != nil {
		return domain.DeleteResult{}, s.DeleteErr
	}
	res := domain.DeleteResult{Status: make(map[string]string, len(names))}
	for _, name := range names {
		if _, ok := s.objects[name]; ok {
			delete(s.objects, name)
			res.Deleted++
			res.Status[name] = "deleted"
		} else {
			res.Status[name] = "not_found"
		}
	}
	return res, nil
}

func (s *MemoryStore) Usage(_ context.Context) (domain.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.UsageErr != nil {
		return domain.Usage{}, s.UsageErr
	}
	if len(s.usage) == 0 {
		return domain.Usage{}, nil
	}
	pct := s.usage[0]
	if len(s.usage) > 1 {
		s.usage = s.usage[1:]
	}
	return domain.Usage{PercentUsed: pct}, nil
}

func (s *MemoryStore) ListResources(_ context.Context) ([]domain.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ListErr != nil {
		return nil, s.ListErr
	}
	out := make([]domain.Resource, 0, len(s.objects))
	for name := range s.objects {
		if r, ok := resourceOf(s.folder, name); ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) ResourceName(fp domain.Fingerprint) string {
	return resourceName(s.folder, fp)
}

func (s *MemoryStore) ParseReference(ref string) (string, domain.Fingerprint, bool) {
	name, ok := strings.CutPrefix(ref, memoryScheme)
	if !ok {
		return "", "", false
	}
	return splitResourceName(s.folder, name)
}

// Uploads returns how many Upload calls were made.
func (s *MemoryStore) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

// Objects returns the stored resource names.
func (s *MemoryStore) Objects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.objects))
	for name := range s.objects {
		out = append(out, name)
	}
	return out
}

// Put stores an object directly, bypassing upload counting.
func (s *MemoryStore) Put(name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = data
	return memoryScheme + name
}

func resourceName(folder string, fp domain.Fingerprint) string {
	if folder == "" {
		return string(fp)
	}
	return fmt.Sprintf("%s/%s", folder, fp)
}

// resourceOf describes name if it lies under folder. Names that are not content-addressed
// are returned without a fingerprint.
func resourceOf(folder, name string) (domain.Resource, bool) {
	if folder != "" && !strings.HasPrefix(name, folder+"/") {
		return domain.Resource{}, false
	}
	r := domain.Resource{Name: name}
	if _, fp, ok := splitResourceName(folder, name); ok {
		r.Fingerprint = fp
	}
	return r, true
}

func splitResourceName(folder, name string) (string, domain.Fingerprint, bool) {
	dir, base := path.Split(name)
	if strings.Trim(dir, "/") != folder {
		return "", "", false
	}
	fp, ok := domain.ParseFingerprint(strings.TrimSuffix(base, path.Ext(base)))
	if !ok {
		return "", "", false
	}
	return name, fp, true
}
