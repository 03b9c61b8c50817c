package repository

import (
	"context"
	"sync"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
)

var _ domrepo.SignalStore = (*MemorySignalStore)(nil)

// MemorySignalStore keeps the signal lifecycle in process memory. Terminal
// lists are bounded rings; pending signals are kept until decided.
type MemorySignalStore struct {
	mu        sync.RWMutex
	limit     int
	pending   map[string]models.PendingSignal
	order     []string
	confirmed []models.ConfirmedSignal
	rejected  []models.RejectedSignal
}

func NewMemorySignalStore(limit int) *MemorySignalStore {
	if limit <= 0 {
		limit = 1000
	}
	return &MemorySignalStore{limit: limit, pending: make(map[string]models.PendingSignal)}
}

func (s *MemorySignalStore) SaveCandidate(ctx context.Context, p models.PendingSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.pending[p.ID] = p
	return nil
}

func (s *MemorySignalStore) SaveConfirmed(ctx context.Context, c models.ConfirmedSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropPendingLocked(c.Signal.ID)
	s.confirmed = appendRing(s.confirmed, c, s.limit)
	return nil
}

func (s *MemorySignalStore) SaveRejected(ctx context.Context, r models.RejectedSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropPendingLocked(r.Signal.ID)
	s.rejected = appendRing(s.rejected, r, s.limit)
	return nil
}

func (s *MemorySignalStore) ListPending(ctx context.Context) ([]models.PendingSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PendingSignal, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.pending[id])
	}
	return out, nil
}

func (s *MemorySignalStore) ListConfirmed(ctx context.Context, limit int) ([]models.ConfirmedSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latest(s.confirmed, limit), nil
}

func (s *MemorySignalStore) ListRejected(ctx context.Context, limit int) ([]models.RejectedSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latest(s.rejected, limit), nil
}

func (s *MemorySignalStore) dropPendingLocked(id string) {
	if _, ok := s.pending[id]; !ok {
		return
	}
	delete(s.pending, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func appendRing[T any](xs []T, v T, limit int) []T {
	xs = append(xs, v)
	if len(xs) > limit {
		xs = append(xs[:0:0], xs[len(xs)-limit:]...)
	}
	return xs
}

// latest returns up to limit items, newest first.
func latest[T any](xs []T, limit int) []T {
	if limit <= 0 || limit > len(xs) {
		limit = len(xs)
	}
	out := make([]T, 0, limit)
	for i := len(xs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, xs[i])
	}
	return out
}
