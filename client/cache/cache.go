// Package cache holds the per-session view of the project record. It is the
// single source of truth read by presentation; the realtime adapter and the
// polling fallback write it, each referring to entries only by key.
package cache

import (
	"sync"

	"signoff/client/domain"
)

type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleClient Role = "CLIENT"
)

// Key addresses one cached view. Two sessions with different tokens never
// collide, even for the same underlying project.
type Key struct {
	Role  Role
	Token string
}

func AdminKey(token string) Key  { return Key{Role: RoleAdmin, Token: token} }
func PublicKey(token string) Key { return Key{Role: RoleClient, Token: token} }

type EventKind int

const (
	EventUpdated EventKind = iota
	EventInvalidated
	EventRemoved
)

type Event struct {
	Key  Key
	Kind EventKind
}

type entry struct {
	project             domain.Project
	stale               bool
	pendingInvalidation int
}

type Store struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	subs    map[Key]map[int]func(Event)
	nextSub int
}

func NewStore() *Store {
	return &Store{
		entries: map[Key]*entry{},
		subs:    map[Key]map[int]func(Event){},
	}
}

// Get returns a copy of the cached project. Callers never get a reference
// into the store, so no closure can go stale over an entry.
func (s *Store) Get(key Key) (domain.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return domain.Project{}, false
	}
	return e.project, true
}

// Stale reports whether the entry is awaiting a re-fetch.
func (s *Store) Stale(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return !ok || e.stale
}

// Set stores an authoritative view. A refetch landing on a fresh entry with
// an unchanged {status, expiresAt, latestComment} view is suppressed entirely
// so subscribers are not poked for nothing. Invalidated entries always take
// the write: the three compared fields cannot express a file change.
func (s *Store) Set(key Key, p domain.Project) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && !e.stale && domain.SameView(e.project, p) {
		s.mu.Unlock()
		return
	}
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.project = p
	e.stale = false
	if e.pendingInvalidation > 0 {
		e.pendingInvalidation--
	}
	s.mu.Unlock()

	s.notify(key, EventUpdated)
}

// Apply reduces a patch op onto the entry. MergeFields on an absent entry is
// a no-op; there is nothing to merge into and a later fetch will seed it.
func (s *Store) Apply(key Key, op domain.Op) {
	switch o := op.(type) {
	case domain.Replace:
		s.Set(key, o.Project)
	case domain.Invalidate:
		s.Invalidate(key)
	case domain.MergeFields:
		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			s.mu.Unlock()
			return
		}
		merged := o.Merge(e.project)
		if domain.SameView(e.project, merged) {
			s.mu.Unlock()
			return
		}
		e.project = merged
		s.mu.Unlock()
		s.notify(key, EventUpdated)
	}
}

// Invalidate marks the entry stale; the next reader is expected to re-fetch.
func (s *Store) Invalidate(key Key) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	e.stale = true
	e.pendingInvalidation++
	s.mu.Unlock()

	s.notify(key, EventInvalidated)
}

// Remove hard-deletes the entry, e.g. after the project itself is deleted.
func (s *Store) Remove(key Key) {
	s.mu.Lock()
	_, ok := s.entries[key]
	delete(s.entries, key)
	s.mu.Unlock()

	if ok {
		s.notify(key, EventRemoved)
	}
}

// Subscribe registers fn for events on exactly this key. The returned func
// deregisters it and is safe to call more than once.
func (s *Store) Subscribe(key Key, fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	if s.subs[key] == nil {
		s.subs[key] = map[int]func(Event){}
	}
	s.subs[key][id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if m, ok := s.subs[key]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(s.subs, key)
			}
		}
	}
}

func (s *Store) notify(key Key, kind EventKind) {
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.subs[key]))
	for _, fn := range s.subs[key] {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	ev := Event{Key: key, Kind: kind}
	for _, fn := range fns {
		fn(ev)
	}
}
