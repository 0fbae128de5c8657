package otp

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]Session
}

// NewMemoryRepository builds an in-memory session store for tests and local development.
func NewMemoryRepository() Repository {
	return &memoryRepository{sessions: make(map[int64]Session)}
}

func (r *memoryRepository) Create(_ context.Context, session Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	session.ID = r.nextID
	session.CreatedAt = time.Now().UTC()
	r.sessions[session.ID] = session
	return session, nil
}

func (r *memoryRepository) Get(_ context.Context, id int64) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return session, nil
}

func (r *memoryRepository) DeleteExpiredUnverified(_ context.Context, phone string, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, s := range r.sessions {
		if s.Phone == phone && !s.Verified && !now.Before(s.ExpiresAt) {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *memoryRepository) RecordFailedAttempt(_ context.Context, id int64) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Verified || s.Attempts >= MaxAttempts {
		return 0, false, nil
	}
	s.Attempts++
	r.sessions[id] = s
	return s.Attempts, true, nil
}

func (r *memoryRepository) MarkVerified(_ context.Context, id int64, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Verified || s.Attempts >= MaxAttempts || !now.Before(s.ExpiresAt) {
		return false, nil
	}
	s.Verified = true
	r.sessions[id] = s
	return true, nil
}

func (r *memoryRepository) ReleaseVerified(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.Verified {
		s.Verified = false
		r.sessions[id] = s
	}
	return nil
}
