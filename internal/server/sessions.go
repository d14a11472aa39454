package server

import (
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/novelboard/internal/dashboard"
	"github.com/MarcoPoloResearchLab/novelboard/internal/ratings"
	"github.com/google/uuid"
)

// SessionRegistry keeps every live reviewer session and its pending writes.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*registeredSession
	ttl      time.Duration
	clock    func() time.Time
}

type registeredSession struct {
	session   *dashboard.Session
	expiresAt time.Time
}

// NewSessionRegistry returns a registry whose sessions expire ttl after they are opened.
func NewSessionRegistry(ttl time.Duration, clock func() time.Time) *SessionRegistry {
	if clock == nil {
		clock = time.Now
	}
	return &SessionRegistry{
		sessions: make(map[string]*registeredSession),
		ttl:      ttl,
		clock:    clock,
	}
}

// Open starts a session with a fresh identifier.
func (r *SessionRegistry) Open(reviewerID ratings.ReviewerID, role ratings.Role) *dashboard.Session {
	return r.register(uuid.NewString(), reviewerID, role)
}

// Resume returns the session for id, recreating an empty one when the process
// restarted after the token was issued. Concurrent callers with the same id share
// one session.
func (r *SessionRegistry) Resume(id string, reviewerID ratings.ReviewerID, role ratings.Role) (*dashboard.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	if entry, ok := r.sessions[id]; ok && r.liveLocked(entry, now) {
		if entry.session.ReviewerID() == reviewerID {
			return entry.session, true
		}
		return nil, false
	}
	return r.registerLocked(id, reviewerID, role, now), true
}

// Lookup returns a live session.
func (r *SessionRegistry) Lookup(id string) (*dashboard.Session, bool) {
	r.mu.RLock()
	entry, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if r.ttl > 0 && !r.clock().Before(entry.expiresAt) {
		r.Close(id)
		return nil, false
	}
	return entry.session, true
}

// Close drops a session and its pending writes.
func (r *SessionRegistry) Close(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len reports the number of registered sessions, expired ones included.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *SessionRegistry) register(id string, reviewerID ratings.ReviewerID, role ratings.Role) *dashboard.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(id, reviewerID, role, r.clock())
}

func (r *SessionRegistry) registerLocked(id string, reviewerID ratings.ReviewerID, role ratings.Role, now time.Time) *dashboard.Session {
	r.pruneLocked(now)
	session := dashboard.NewSession(id, reviewerID, role)
	r.sessions[id] = &registeredSession{session: session, expiresAt: now.Add(r.ttl)}
	return session
}

func (r *SessionRegistry) liveLocked(entry *registeredSession, now time.Time) bool {
	return r.ttl <= 0 || now.Before(entry.expiresAt)
}

func (r *SessionRegistry) pruneLocked(now time.Time) {
	if r.ttl <= 0 {
		return
	}
	for id, entry := range r.sessions {
		if !now.Before(entry.expiresAt) {
			delete(r.sessions, id)
		}
	}
}
