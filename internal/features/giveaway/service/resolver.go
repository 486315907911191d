package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"community-bot/internal/common/logger"
	"community-bot/internal/common/metrics"
	"community-bot/internal/features/giveaway/models"
	"community-bot/internal/features/giveaway/repository"
	"community-bot/internal/utils/random"
	"community-bot/internal/workers"
)

type Outcome int

const (
	OutcomeResolved Outcome = iota
	OutcomeAlreadyEnded
	// OutcomeMessageNotFound means winners were stored but the announcement
	// could not be updated.
	OutcomeMessageNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResolved:
		return "resolved"
	case OutcomeAlreadyEnded:
		return "already_ended"
	case OutcomeMessageNotFound:
		return "message_not_found"
	}
	return "unknown"
}

type Resolution struct {
	Outcome  Outcome
	Giveaway *models.Giveaway
	Winners  []string
	Entries  int64
}

// Resolver draws winners. Resolutions of one giveaway never overlap.
type Resolver struct {
	repo       repository.GiveawayRepository
	messenger  Messenger
	renderer   *Renderer
	scheduler  *Scheduler
	throttler  *Throttler
	retryDelay time.Duration
	now        func() time.Time

	mu    sync.Mutex
	locks map[int64]*giveawayLock
}

type giveawayLock struct {
	sync.Mutex
	refs int
}

func NewResolver(repo repository.GiveawayRepository, messenger Messenger, renderer *Renderer, scheduler *Scheduler, throttler *Throttler, retryDelay time.Duration) *Resolver {
	return &Resolver{
		repo:       repo,
		messenger:  messenger,
		renderer:   renderer,
		scheduler:  scheduler,
		throttler:  throttler,
		retryDelay: retryDelay,
		now:        time.Now,
		locks:      make(map[int64]*giveawayLock),
	}
}

// lock serializes work on the announcement of id. The entry is dropped
// once its last holder releases it.
func (r *Resolver) lock(id int64) func() {
	r.mu.Lock()
	l, ok := r.locks[id]
	if !ok {
		l = &giveawayLock{}
		r.locks[id] = l
	}
	l.refs++
	r.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, id)
		}
		r.mu.Unlock()
	}
}


// Resolve draws the winners of id, stores them, ends the giveaway and
// updates its announcement. With checkAlreadyEnded an ended giveaway is
// left untouched.
func (r *Resolver) Resolve(ctx context.Context, id int64, checkAlreadyEnded bool) (Resolution, error) {
	unlock := r.lock(id)
	defer unlock()

	start := time.Now()
	defer func() {
		metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	}()

	g, err := r.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrGiveawayNotFound) {
		return Resolution{}, ErrGiveawayNotFound
	}
	if err != nil {
		return Resolution{}, err
	}
	if checkAlreadyEnded && g.Ended {
		metrics.GiveawaysResolved.WithLabelValues(OutcomeAlreadyEnded.String()).Inc()
		return Resolution{Outcome: OutcomeAlreadyEnded, Giveaway: g}, nil
	}

	entries, err := r.repo.ListEntries(ctx, id)
	if err != nil {
		return Resolution{}, err
	}
	candidates := make([]random.Candidate[string], len(entries))
	for i, e := range entries {
		candidates[i] = random.Candidate[string]{Value: e.UserID, Weight: int64(max(e.Chances, 1))}
	}
	winners, err := random.PickWeighted(candidates, g.Winners())
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to draw winners of giveaway %d: %w", id, err)
	}

	if err := r.repo.Complete(ctx, id, winners); err != nil {
		return Resolution{}, err
	}
	g.Ended = true
	r.scheduler.Cancel(id)
	r.throttler.CancelUpdate(id)

	res := Resolution{Outcome: OutcomeResolved, Giveaway: g, Winners: winners, Entries: int64(len(entries))}

	if !g.HasMessage() {
		res.Outcome = OutcomeMessageNotFound
	} else if err := r.messenger.EditMessage(ctx, g.ChannelID, g.MessageID, r.renderer.FinishedEdit(g, res.Entries, winners)); err != nil {
		res.Outcome = OutcomeMessageNotFound
		metrics.MessageEdits.WithLabelValues("finished", "error").Inc()
		if !errors.Is(err, ErrMessageNotFound) {
			logger.Error().Err(err).Int64("giveaway_id", id).Msg("Failed to edit finished giveaway message")
		}
	} else {
		metrics.MessageEdits.WithLabelValues("finished", "ok").Inc()
	}

	metrics.GiveawaysResolved.WithLabelValues(res.Outcome.String()).Inc()
	logger.Info().
		Int64("giveaway_id", id).
		Int64("entries", res.Entries).
		Strs("winners", winners).
		Str("outcome", res.Outcome.String()).
		Msg("Giveaway resolved")
	return res, nil
}

// HandleDue consumes due events. Events made stale by an edit are dropped
// and failures are retried once the retry delay has passed.
func (r *Resolver) HandleDue(ctx context.Context, ev workers.DueEvent) error {
	g, err := r.repo.GetByID(ctx, ev.GiveawayID)
	if errors.Is(err, repository.ErrGiveawayNotFound) {
		return nil
	}
	if err != nil {
		r.scheduler.ScheduleAt(ev.GiveawayID, r.now().Add(r.retryDelay))
		return err
	}
	if g.Ended {
		return nil
	}
	if g.EndTime.After(r.now()) {
		// moved to a later date after the event was queued
		if !r.scheduler.Scheduled(g.ID) {
			r.scheduler.Schedule(g)
		}
		return nil
	}

	if _, err := r.Resolve(ctx, ev.GiveawayID, true); err != nil {
		if !errors.Is(err, ErrGiveawayNotFound) {
			r.scheduler.ScheduleAt(ev.GiveawayID, r.now().Add(r.retryDelay))
		}
		return err
	}
	return nil
}
