package resultstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
)

const tempPrefix = ".tmp-"

// LocalStore keeps one file per job id inside a directory.
type LocalStore struct {
	dir string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates dir if needed and returns a store rooted there.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &Error{Op: "init", Err: err}
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the directory holding the entries.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Save writes the entry to a temporary file and hard-links it into place,
// so readers never see a partial file and an existing entry is never
// replaced.
func (s *LocalStore) Save(ctx context.Context, id string, result interface{}) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	data, err := encode(result)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+id+"-*")
	if err != nil {
		return &Error{Op: "save", ID: id, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &Error{Op: "save", ID: id, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &Error{Op: "save", ID: id, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Op: "save", ID: id, Err: err}
	}

	if err := os.Link(tmp.Name(), s.path(id)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrResultExists
		}
		return &Error{Op: "save", ID: id, Err: err}
	}
	return nil
}

func (s *LocalStore) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	if !ValidID(id) {
		return nil, ErrInvalidID
	}
	f, err := os.Open(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrResultNotFound
		}
		return nil, &Error{Op: "open", ID: id, Err: err}
	}
	return f, nil
}

// List returns stored ids sorted by name. Temporary files and names that
// are not valid ids are skipped.
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !ValidID(entry.Name()) {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *LocalStore) path(id string) string {
	return filepath.Join(s.dir, id)
}
