package service

import (
	"context"
	"sync"
	"time"
)

// PendingAuthorization lets a join resume once the participant finished
// linking their account.
type PendingAuthorization struct {
	UserID        string    `json:"user_id"`
	GuildID       string    `json:"guild_id"`
	InteractionID string    `json:"interaction_id"`
	AppID         string    `json:"app_id"`
	Token         string    `json:"token"`
	Locale        string    `json:"locale"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// MemoryPendingStore keeps one pending record per user and forgets it at
// ExpiresAt whether or not it was used.
type MemoryPendingStore struct {
	mu      sync.Mutex
	records map[string]PendingAuthorization
	timers  map[string]*time.Timer
	now     func() time.Time
}

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{
		records: make(map[string]PendingAuthorization),
		timers:  make(map[string]*time.Timer),
		now:     time.Now,
	}
}

func (s *MemoryPendingStore) Put(_ context.Context, p PendingAuthorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[p.UserID]; ok {
		t.Stop()
	}
	s.records[p.UserID] = p

	userID, expiresAt := p.UserID, p.ExpiresAt
	s.timers[p.UserID] = time.AfterFunc(time.Until(expiresAt), func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.records[userID]; ok && cur.ExpiresAt.Equal(expiresAt) {
			delete(s.records, userID)
			delete(s.timers, userID)
		}
	})
	return nil
}

// Take returns and removes the record of userID, nil when absent or expired.
func (s *MemoryPendingStore) Take(_ context.Context, userID string) (*PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	delete(s.records, userID)
	if t, ok := s.timers[userID]; ok {
		t.Stop()
		delete(s.timers, userID)
	}
	if !s.now().Before(p.ExpiresAt) {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryPendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
