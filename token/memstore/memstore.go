// Package memstore is an in-memory token.Store used by tests and by
// short-lived processes that must not touch disk.
package memstore

import (
	"sync"

	"github.com/jrsteele09/taskboard/token"
)

var _ token.Store = (*Store)(nil)

type Store struct {
	rec  token.Record
	lock sync.RWMutex

	// Failure injection
	saveErr  error
	clearErr error
	saves    int
	clears   int
}

func New(seed token.Record) *Store {
	return &Store{rec: copyRecord(seed)}
}

func (s *Store) Load() (token.Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return copyRecord(s.rec), nil
}

func (s *Store) Save(rec token.Record) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.rec = copyRecord(rec)
	return nil
}

func (s *Store) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.clears++
	if s.clearErr != nil {
		return s.clearErr
	}
	s.rec = token.Record{}
	return nil
}

// FailSaves makes every subsequent Save return err (nil restores).
func (s *Store) FailSaves(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.saveErr = err
}

// FailClears makes every subsequent Clear return err (nil restores).
func (s *Store) FailClears(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.clearErr = err
}

// Calls returns how many times Save and Clear were invoked.
func (s *Store) Calls() (saves, clears int) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.saves, s.clears
}

func copyRecord(r token.Record) token.Record {
	if r.User != nil {
		u := *r.User
		r.User = &u
	}
	return r
}
