// Package wizard implements the paginated giveaway setup sessions.
//
// Sessions live in process memory only and are lost on restart.
package wizard

import (
	"sync"
	"time"
)

type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

// Wizard is one setup session bound to the message it is rendered into.
type Wizard struct {
	mu sync.Mutex

	MessageID  string
	OwnerID    string
	Pages      []Page
	PageIndex  int
	Data       Data
	SubOnly    bool
	Mode       Mode
	GiveawayID int64
	Locale     string
	UpdatedAt  time.Time
}

func (w *Wizard) current() Page {
	return w.Pages[w.PageIndex]
}

func (w *Wizard) lastIndex() int {
	return len(w.Pages) - 1
}

func (w *Wizard) indexOf(key string) int {
	for i, p := range w.Pages {
		if p.Key() == key {
			return i
		}
	}
	return -1
}

// Store keeps sessions by message id.
type Store struct {
	mu      sync.RWMutex
	wizards map[string]*Wizard
}

func NewStore() *Store {
	return &Store{wizards: make(map[string]*Wizard)}
}

func (s *Store) Get(messageID string) (*Wizard, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wizards[messageID]
	return w, ok
}

func (s *Store) Set(w *Wizard) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wizards[w.MessageID] = w
}

func (s *Store) Delete(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wizards, messageID)
}

// Range calls fn for every session until fn returns false.
func (s *Store) Range(fn func(w *Wizard) bool) {
	s.mu.RLock()
	snapshot := make([]*Wizard, 0, len(s.wizards))
	for _, w := range s.wizards {
		snapshot = append(snapshot, w)
	}
	s.mu.RUnlock()

	for _, w := range snapshot {
		if !fn(w) {
			return
		}
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wizards)
}

// Sweep drops sessions idle since before cutoff and returns how many were removed.
func (s *Store) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, w := range s.wizards {
		w.mu.Lock()
		idle := w.UpdatedAt.Before(cutoff)
		w.mu.Unlock()
		if idle {
			delete(s.wizards, id)
			removed++
		}
	}
	return removed
}
