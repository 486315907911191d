// Package settings keeps the guild configuration in memory and persists
// changes in the background, in the order they were made.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"community-bot/internal/common/logger"
)

const (
	KeySubscriberRole   = "subscriberRoleId"
	KeyTier1Role        = "T1SubRoleId"
	KeyTier2Role        = "T2SubRoleId"
	KeyTier3Role        = "T3SubRoleId"
	KeyAnnounceChannel  = "announceChannel"
	KeyNotificationRole = "notificationRoleId"
)

// Keys lists the settings accepted by Set.
var Keys = []string{
	KeySubscriberRole,
	KeyTier1Role,
	KeyTier2Role,
	KeyTier3Role,
	KeyAnnounceChannel,
	KeyNotificationRole,
}

var (
	ErrUnknownKey = errors.New("unknown setting")
	ErrClosed     = errors.New("settings store closed")
)

type Setting struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"size:256;not null"`
	UpdatedAt time.Time
}

func (Setting) TableName() string { return "settings" }

type write struct {
	key   string
	value string
	done  chan struct{}
}

// Store serves reads from memory. Writes update memory at once and are
// flushed to the database by a single goroutine.
type Store struct {
	db *gorm.DB

	mu     sync.RWMutex
	values map[string]string

	queue  chan write
	wg     sync.WaitGroup
	closed bool
	qmu    sync.Mutex
}

// Open loads every stored setting and starts the writer.
func Open(ctx context.Context, db *gorm.DB) (*Store, error) {
	var rows []Setting
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	s := &Store{
		db:     db,
		values: make(map[string]string, len(rows)),
		queue:  make(chan write, 64),
	}
	for _, r := range rows {
		s.values[r.Key] = r.Value
	}

	s.wg.Add(1)
	go s.writer()
	return s, nil
}

func (s *Store) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set updates key in memory and enqueues its persistence.
func (s *Store) Set(key, value string) error {
	if !IsKnown(key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	s.qmu.Lock()
	defer s.qmu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()

	s.queue <- write{key: key, value: value}
	return nil
}

// Flush blocks until every write enqueued before the call is persisted.
func (s *Store) Flush(ctx context.Context) error {
	s.qmu.Lock()
	if s.closed {
		s.qmu.Unlock()
		return ErrClosed
	}
	done := make(chan struct{})
	s.queue <- write{done: done}
	s.qmu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the writer.
func (s *Store) Close() {
	s.qmu.Lock()
	if s.closed {
		s.qmu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.qmu.Unlock()

	s.wg.Wait()
}

func (s *Store) writer() {
	defer s.wg.Done()
	for w := range s.queue {
		if w.done != nil {
			close(w.done)
			continue
		}
		if err := s.persist(w); err != nil {
			logger.Error().Err(err).Str("key", w.key).Msg("Failed to persist setting")
		}
	}
}

func (s *Store) persist(w write) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := Setting{Key: w.key, Value: w.value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func IsKnown(key string) bool {
	for _, k := range Keys {
		if k == key {
			return true
		}
	}
	return false
}

// SortedKeys returns the keys that currently hold a value.
func (s *Store) SortedKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.values))
	for k := range s.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
