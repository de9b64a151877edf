// Package artifact is the file-system side of an upload: it resolves
// client-supplied names under the target directory, reports the length of a
// partially received artifact and opens it for appending.
//
// Nothing here coordinates concurrent writers. Two connections uploading the
// same name at the same time race on length and content.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrUnsafeName is returned for names that resolve outside the target
	// directory, or to the directory itself.
	ErrUnsafeName = errors.New("artifact name escapes target directory")
	// ErrNotRegular is returned when the name refers to a directory.
	ErrNotRegular = errors.New("artifact is not a regular file")
)

// Store addresses artifacts by client-supplied name.
type Store struct {
	fs afero.Fs
}

// NewStore roots a store at dir on the local file system.
func NewStore(dir string) *Store {
	return NewStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// NewStoreFs wraps an arbitrary afero file system, whose root is the target
// directory.
func NewStoreFs(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// Fs exposes the underlying file system to the checksum engine.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Resolve maps a client-supplied name to a store path. The name is otherwise
// used verbatim: leading slashes are dropped the same way joining
// dir + "/" + name would collapse them, and any name that climbs out of the
// root is refused.
func (s *Store) Resolve(name string) (string, error) {
	rel := strings.TrimLeft(name, "/")
	if rel == "" || !filepath.IsLocal(rel) || filepath.Clean(rel) == "." {
		return "", fmt.Errorf("%q: %w", name, ErrUnsafeName)
	}
	return string(filepath.Separator) + rel, nil
}

// Length reports whether the artifact exists and, if so, its current length
// measured by seeking to the end. An existing artifact must be a regular file
// that can be opened read-write; anything else is an error.
func (s *Store) Length(path string) (int64, bool, error) {
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if info.IsDir() {
		return 0, true, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	f, err := s.fs.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return 0, true, err
	}
	defer f.Close()
	n, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, true, err
	}
	return n, true, nil
}

// OpenAppend opens the artifact write-only in append mode, creating it when
// absent. Existing bytes are never truncated.
func (s *Store) OpenAppend(path string) (afero.File, error) {
	return s.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
}
