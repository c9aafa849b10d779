package repository

import (
	"context"
	"sync"
	"time"

	"github.com/adiga-code/numerology/internal/models"
)

// MemorySessionRepository keeps sessions in process memory. Used when Redis
// is not configured or is down.
type MemorySessionRepository struct {
	sessions sync.Map

	mu         sync.Mutex
	rateLimits map[int64]*rateLimitEntry

	ttl time.Duration
	now func() time.Time
}

type memorySession struct {
	session   models.Session
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemorySessionRepository(ttl time.Duration) *MemorySessionRepository {
	return &MemorySessionRepository{
		rateLimits: make(map[int64]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemorySessionRepository) GetSession(_ context.Context, userID int64) (*models.Session, error) {
	val, ok := r.sessions.Load(userID)
	if !ok {
		return nil, nil
	}
	entry := val.(memorySession)
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		r.sessions.Delete(userID)
		return nil, nil
	}
	s := entry.session.Clone()
	return &s, nil
}

func (r *MemorySessionRepository) SaveSession(_ context.Context, session *models.Session) error {
	r.sessions.Store(session.UserID, memorySession{
		session:   session.Clone(),
		expiresAt: r.now().Add(r.ttl),
	})
	return nil
}

func (r *MemorySessionRepository) ClearSession(_ context.Context, userID int64) error {
	r.sessions.Delete(userID)
	return nil
}

func (r *MemorySessionRepository) CheckRateLimit(_ context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[userID]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[userID] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
