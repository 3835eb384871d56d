package mediasvc

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/abiboard/core"
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// MemoryStore keeps images in memory, as uploaded. Used by tests.
type MemoryStore struct {
	mu          sync.RWMutex
	files       map[string][]byte
	maxFileSize int64
}

var _ core.ImageStore = (*MemoryStore)(nil)

func NewMemoryStore(maxFileSize int64) *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte), maxFileSize: maxFileSize}
}

func (s *MemoryStore) ValidateImageFile(up core.Upload) error {
	_, err := validateImage(up, s.maxFileSize)
	return err
}

func (s *MemoryStore) SaveImageFile(ctx context.Context, up core.Upload, folder string) (string, error) {
	ct, err := validateImage(up, s.maxFileSize)
	if err != nil {
		return "", err
	}
	f, err := up.Open()
	if err != nil {
		return "", errors.Wrap(err, "opening upload")
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return "", errors.Wrap(err, "reading upload")
	}

	ref := newRef(folder, extensions[ct])
	s.mu.Lock()
	s.files[ref] = content
	s.mu.Unlock()
	return ref, nil
}

func (s *MemoryStore) DeleteImageFile(ctx context.Context, ref string) error {
	s.mu.Lock()
	delete(s.files, ref)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) OpenImageFile(ctx context.Context, ref string) (io.ReadCloser, error) {
	s.mu.RLock()
	content, ok := s.files[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, core.NewNotFoundError("image")
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

// Refs returns the stored references, sorted.
func (s *MemoryStore) Refs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]string, 0, len(s.files))
	for ref := range s.files {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}
