package memory

import (
	"context"
	"sync"
	"time"

	"devstream/internal/core/domain"
	"devstream/internal/core/ports"
)

// MemorySuppressionRepository holds chat timeouts and bans in memory.
// Expired entries are dropped lazily on read.
type MemorySuppressionRepository struct {
	entries map[string]*domain.Suppression
	mu      sync.Mutex
	now     func() time.Time
}

func NewMemorySuppressionRepository() ports.SuppressionRepository {
	return &MemorySuppressionRepository{
		entries: make(map[string]*domain.Suppression),
		now:     time.Now,
	}
}

// Put stores s, replacing an existing entry unless that one lasts longer.
func (r *MemorySuppressionRepository) Put(ctx context.Context, s *domain.Suppression) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[s.PersistentID]; ok && existing.Until.After(s.Until) {
		return nil
	}
	stored := *s
	r.entries[s.PersistentID] = &stored
	return nil
}

func (r *MemorySuppressionRepository) Get(ctx context.Context, persistentID string) (*domain.Suppression, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.entries[persistentID]
	if !ok {
		return nil, domain.ErrSuppressionNotFound
	}
	if !s.Active(r.now()) {
		delete(r.entries, persistentID)
		return nil, domain.ErrSuppressionNotFound
	}
	out := *s
	return &out, nil
}
