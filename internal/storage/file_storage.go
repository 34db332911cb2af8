package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStorage manages artifact files. Relative names resolve against dir;
// absolute names are used as given.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a new FileStorage instance with the given directory.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: dir}
}

// Path returns the location a name resolves to.
func (s *FileStorage) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dir, name)
}

// CommitFile copies src into a temporary file next to name and renames it
// into place once the copy succeeded, so a failed transfer never leaves a
// truncated artifact at name. Returns the number of bytes written.
func (s *FileStorage) CommitFile(src io.Reader, name string) (int64, error) {
	dst := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	n, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("write %s: %w", dst, err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return n, fmt.Errorf("rename temporary file: %w", err)
	}
	return n, nil
}
