package modelcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jmcgover/ngrambot/internal/ngram"
	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// FileStore keeps one file per key. With an empty dir the key is used as the
// file path as is, which places the cache next to the corpus.
type FileStore struct {
	dir    string
	rename func(oldpath, newpath string) error
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir, rename: os.Rename}
}

func (s *FileStore) path(key string) string {
	if s.dir == "" {
		return key
	}
	return filepath.Join(s.dir, filepath.Base(key))
}

// Load reads and verifies the entry stored under key.
func (s *FileStore) Load(ctx context.Context, key string) (*ngram.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.path(key)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrCacheMiss, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading model cache %s: %w", path, err)
	}
	m, err := decodeEntry(data)
	if err != nil {
		return nil, fmt.Errorf("decoding model cache %s: %w", path, err)
	}
	return m, nil
}

// Save writes the entry to a .tmp file and renames it into place, so a reader
// never sees a partial entry.
func (s *FileStore) Save(ctx context.Context, key string, m *ngram.Model) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeEntry(m)
	if err != nil {
		return fmt.Errorf("encoding model cache entry: %w", err)
	}

	finalPath := s.path(key)
	tmpPath := finalPath + ".tmp"
	if dir := filepath.Dir(finalPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating model cache directory: %w", err)
		}
	}

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp model cache file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing model cache: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing model cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing model cache file: %w", err)
	}
	if err := s.rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming model cache file: %w", err)
	}
	return nil
}

// Delete removes the entry stored under key.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting model cache %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
