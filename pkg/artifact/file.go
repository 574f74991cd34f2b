package artifact

import (
	"context"
	"os"
	"path/filepath"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// FileStore stores each artifact as a file under a root directory.
// Keys map to paths directly, so "lut/tile/0_0_0" becomes
// <root>/lut/tile/0_0_0.
type FileStore struct {
	dir string
}

// NewFileStore creates a file store rooted at dir.
// The directory will be created if it doesn't exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, emerrors.Wrap(emerrors.ErrCodeStorage, err, "create store directory %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the root directory.
func (s *FileStore) Dir() string { return s.dir }

// Get reads the file for key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("read", key, err)
	}
	return data, true, nil
}

// Put writes data to a temporary file and renames it into place, so a
// concurrent reader never observes a partial artifact.
func (s *FileStore) Put(_ context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return storageErr("write", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return storageErr("write", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return storageErr("write", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return storageErr("write", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return storageErr("write", key, err)
	}
	return nil
}

// Has stats the file for key.
func (s *FileStore) Has(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, storageErr("stat", key, err)
	}
	return true, nil
}

// Delete removes the file for key.
func (s *FileStore) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return storageErr("delete", key, err)
}

// Close does nothing for file store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(key string) (string, error) {
	if err := emerrors.ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(key)), nil
}

var _ Store = (*FileStore)(nil)
