// Package filestore persists the session record as a JSON document whose
// top-level keys are the fixed token keys.
package filestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/jrsteele09/taskboard/token"
)

var _ token.Store = (*Store)(nil)

const filePerm = 0o600

type Store struct {
	path string
	lock sync.Mutex
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns an empty record when the file does not exist.
func (s *Store) Load() (token.Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	var rec token.Record
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return rec, nil
	}
	if err != nil {
		return rec, errors.Wrapf(err, "[filestore.Load] %s", s.path)
	}
	if len(b) == 0 {
		return rec, nil
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		return token.Record{}, errors.Wrapf(err, "[filestore.Load] decode %s", s.path)
	}
	return rec, nil
}

// Save writes rec atomically: a temp file in the same directory is renamed
// over the target.
func (s *Store) Save(rec token.Record) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if rec.Empty() {
		return s.remove()
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[filestore.Save] encode")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "[filestore.Save] mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return errors.Wrap(err, "[filestore.Save] CreateTemp")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "[filestore.Save] write")
	}
	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "[filestore.Save] chmod")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[filestore.Save] close")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "[filestore.Save] rename")
	}
	return nil
}

// Clear deletes the file. A missing file is not an error.
func (s *Store) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.remove()
}

func (s *Store) remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "[filestore.Clear] %s", s.path)
	}
	return nil
}
