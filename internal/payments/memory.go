package payments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/creatorpay/tracker/internal/models"
)

// MemoryStore keeps payments in process memory. Used for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]models.Payment
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payments: make(map[string]models.Payment), now: time.Now}
}

// Lookup returns the payment for videoID.
func (s *MemoryStore) Lookup(_ context.Context, videoID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[videoID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// InsertIfAbsent stores p unless a payment for the same video exists.
func (s *MemoryStore) InsertIfAbsent(_ context.Context, p *models.Payment) (InsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.payments[p.VideoID]; ok {
		return InsertResult{Outcome: Conflict, Existing: &existing}, nil
	}
	now := s.now().UTC()
	if p.SubmittedAt.IsZero() {
		p.SubmittedAt = now
	}
	p.UpdatedAt = now
	s.payments[p.VideoID] = *p
	return InsertResult{Outcome: Inserted}, nil
}

// Update applies patch to the payment for videoID.
func (s *MemoryStore) Update(_ context.Context, videoID string, patch models.PaymentPatch) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[videoID]
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(&p)
	p.UpdatedAt = s.now().UTC()
	s.payments[videoID] = p
	return &p, nil
}

// Delete removes the payment for videoID.
func (s *MemoryStore) Delete(_ context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[videoID]; !ok {
		return ErrNotFound
	}
	delete(s.payments, videoID)
	return nil
}

// List returns matching payments, newest first.
func (s *MemoryStore) List(_ context.Context, filter models.ListFilter) ([]models.Payment, error) {
	s.mu.RLock()
	out := make([]models.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		if filter.Matches(&p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Len returns the number of stored payments.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payments)
}

func sortNewestFirst(list []models.Payment) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].SubmittedAt.Equal(list[j].SubmittedAt) {
			return list[i].VideoID > list[j].VideoID
		}
		return list[i].SubmittedAt.After(list[j].SubmittedAt)
	})
}
