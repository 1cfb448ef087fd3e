package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("session not found")

// Registry owns the live attempts, at most one per learner. Every access to
// a session goes through the registry so callers never share a *Session.
type Registry struct {
	mu     sync.Mutex
	byUser map[uuid.UUID]*Session
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[uuid.UUID]*Session)}
}

// Put installs s as the learner's live attempt and returns the attempt it
// replaced, if any. Terminal sessions are not kept.
func (r *Registry) Put(s *Session) (replaced *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced = r.byUser[s.UserID]
	delete(r.byUser, s.UserID)
	if !s.Phase().Terminal() {
		r.byUser[s.UserID] = s
	}
	return replaced
}

// Do runs fn against the learner's session with the given handle. The
// session is dropped once fn leaves it in a terminal phase.
func (r *Registry) Do(userID, sessionID uuid.UUID, fn func(*Session) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byUser[userID]
	if !ok || s.ID != sessionID {
		return ErrNotFound
	}

	err := fn(s)
	if s.Phase().Terminal() {
		delete(r.byUser, userID)
	}
	return err
}

// Current returns a snapshot of the learner's live attempt.
func (r *Registry) Current(userID uuid.UUID) (View, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byUser[userID]
	if !ok {
		return View{}, false
	}
	return s.Snapshot(), true
}

// Discard drops the attempt without recording anything.
func (r *Registry) Discard(userID, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byUser[userID]
	if !ok || s.ID != sessionID {
		return ErrNotFound
	}
	delete(r.byUser, userID)
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}
