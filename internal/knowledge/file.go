package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)

// FileStore keeps the knowledge base as an indented JSON document.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the JSON file at path. The file and
// its directory are created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(ctx context.Context) (Base, error) {
	if err := ctx.Err(); err != nil {
		return Base{}, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Base{}, nil
	}
	if err != nil {
		return Base{}, fmt.Errorf("reading knowledge base %s: %w", s.path, err)
	}
	var b Base
	if err := json.Unmarshal(data, &b); err != nil {
		return Base{}, &CorruptError{Source: s.path, Err: err}
	}
	return b, nil
}

// Save writes b to a temp file next to the target and renames it into place,
// so readers only ever see the old or the new document.
func (s *FileStore) Save(ctx context.Context, b Base) error {
	if b.Questions == nil {
		b.Questions = []Entry{}
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding knowledge base: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating knowledge base dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".knowledge-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing knowledge base: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing knowledge base: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting knowledge base permissions: %w", err)
	}

	// Last chance to abandon the write; after the rename it is visible.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing knowledge base: %w", err)
	}
	committed = true
	return nil
}
