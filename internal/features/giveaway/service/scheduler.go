package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"community-bot/internal/common/logger"
	"community-bot/internal/common/metrics"
	"community-bot/internal/features/giveaway/models"
	"community-bot/internal/features/giveaway/repository"
	"community-bot/internal/workers"
)

type scheduledTimer struct {
	timer    *time.Timer
	deadline time.Time
	seq      uint64
}

// Scheduler keeps at most one armed timer per giveaway. A firing timer only
// publishes a due event; resolution happens in whoever consumes the queue.
// Timers are process local and rebuilt by Sweep at startup.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	timers  map[int64]*scheduledTimer
	seq     uint64
	stopped bool

	queue DuePublisher
	repo  repository.GiveawayRepository
	now   func() time.Time
}

func NewScheduler(repo repository.GiveawayRepository, queue DuePublisher) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[int64]*scheduledTimer),
		queue:  queue,
		repo:   repo,
		now:    time.Now,
	}
}

func (s *Scheduler) Schedule(g *models.Giveaway) {
	s.ScheduleAt(g.ID, g.EndTime)
}

// ScheduleAt arms the timer of id, replacing any previous one. Deadlines in
// the past fire immediately.
func (s *Scheduler) ScheduleAt(id int64, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	if prev, ok := s.timers[id]; ok {
		prev.timer.Stop()
	}
	s.seq++
	seq := s.seq
	delay := max(deadline.Sub(s.now()), 0)

	s.timers[id] = &scheduledTimer{
		deadline: deadline,
		seq:      seq,
		timer:    time.AfterFunc(delay, func() { s.fire(id, seq) }),
	}
	metrics.ScheduledTimers.Set(float64(len(s.timers)))

	logger.Debug().
		Int64("giveaway_id", id).
		Time("deadline", deadline).
		Dur("delay", delay).
		Msg("Giveaway scheduled")
}

func (s *Scheduler) fire(id int64, seq uint64) {
	s.mu.Lock()
	cur, ok := s.timers[id]
	if !ok || cur.seq != seq || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	metrics.ScheduledTimers.Set(float64(len(s.timers)))
	deadline := cur.deadline
	s.mu.Unlock()

	if err := s.queue.Publish(s.ctx, workers.DueEvent{GiveawayID: id, Deadline: deadline}); err != nil {
		logger.Error().Err(err).Int64("giveaway_id", id).Msg("Failed to publish due giveaway")
	}
}

// Cancel disarms the timer of id. Unknown ids are ignored.
func (s *Scheduler) Cancel(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.timer.Stop()
		delete(s.timers, id)
		metrics.ScheduledTimers.Set(float64(len(s.timers)))
	}
}

func (s *Scheduler) Scheduled(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[id]
	return ok
}

func (s *Scheduler) Deadline(id int64) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return time.Time{}, false
	}
	return t.deadline, true
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Sweep arms a timer for every giveaway that has not ended yet.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list open giveaways: %w", err)
	}
	for i := range open {
		s.Schedule(&open[i])
	}
	logger.Info().Int("count", len(open)).Msg("Restored giveaway timers")
	return len(open), nil
}

// Stop disarms every timer. Scheduling after Stop is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.cancel()
	for id, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, id)
	}
	metrics.ScheduledTimers.Set(0)
}
