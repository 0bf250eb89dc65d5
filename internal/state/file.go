package state

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/adaptive-policy/internal/policy"
)

// FileStore keeps the policy memory as a single JSON document.
type FileStore struct {
	path string
}

// NewFileStore returns a store rooted at path. The file need not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the document location.
func (f *FileStore) Path() string { return f.path }

// Load reads and validates the document.
func (f *FileStore) Load(ctx context.Context) (*policy.Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail("load", err)
	}
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fail("load", err)
	}
	m, err := policy.DecodeMemory(data)
	if err != nil {
		return nil, fail("load", err)
	}
	return m, nil
}

// Save writes to a temp file in the same directory and renames it over the
// document, so readers never see a partial write.
func (f *FileStore) Save(ctx context.Context, m *policy.Memory) error {
	if err := ctx.Err(); err != nil {
		return fail("save", err)
	}
	data, err := m.Encode()
	if err != nil {
		return fail("save", fmt.Errorf("encode memory: %w", err))
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail("save", err)
	}
	tmp, err := os.CreateTemp(dir, ".policy-*.json")
	if err != nil {
		return fail("save", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fail("save", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fail("save", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("save", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fail("save", err)
	}
	return nil
}

// Reset removes the document. A missing document is not an error.
func (f *FileStore) Reset() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fail("save", err)
	}
	return nil
}

// Close is a no-op.
func (f *FileStore) Close() error { return nil }
