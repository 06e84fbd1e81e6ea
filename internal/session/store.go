package session

import (
	"errors"
	"sort"
	"sync"
)

var ErrExists = errors.New("session already exists")

// entry pairs a session with the mutex that serialises all access to it
type entry struct {
	mu      sync.Mutex
	session *Session
}

// Store is an in-memory session store. The map lock only guards membership;
// each session has its own lock so slow work on one session never blocks
// another.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Add inserts a new session
func (s *Store) Add(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[sess.ID]; ok {
		return ErrExists
	}
	s.entries[sess.ID] = &entry{session: sess}
	return nil
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// Get returns a snapshot of the session
func (s *Store) Get(id string) (*Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), nil
}

// Update runs fn with exclusive access to the live session. Changes made by
// fn are kept even when it returns an error, so fn must check before it
// mutates.
func (s *Store) Update(id string, fn func(*Session) error) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// List returns snapshots of every session, oldest first
func (s *Store) List() []*Session {
	s.mu.RLock()
	all := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	s.mu.RUnlock()

	out := make([]*Session, 0, len(all))
	for _, e := range all {
		e.mu.Lock()
		out = append(out, e.session.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
