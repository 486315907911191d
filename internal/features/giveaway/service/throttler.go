package service

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"community-bot/internal/common/logger"
	"community-bot/internal/common/metrics"
)

// UpdateFunc redraws the announcement of a giveaway.
type UpdateFunc func(ctx context.Context, giveawayID int64) error

type quietWindow struct {
	timer   *time.Timer
	until   time.Time
	running bool
	dirty   bool
}

// Throttler coalesces refresh requests. The first request opens a quiet
// window of random length; every request arriving before it closes is
// absorbed and a single refresh runs when it does. A request that arrives
// while that refresh is running opens the next window once it completes.
type Throttler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	windows map[int64]*quietWindow
	stopped bool

	min, max time.Duration
	update   UpdateFunc
	now      func() time.Time
}

func NewThrottler(minWait, maxWait time.Duration, update UpdateFunc) *Throttler {
	if maxWait < minWait {
		maxWait = minWait
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Throttler{
		ctx:     ctx,
		cancel:  cancel,
		windows: make(map[int64]*quietWindow),
		min:     minWait,
		max:     maxWait,
		update:  update,
		now:     time.Now,
	}
}

func (t *Throttler) jitter() time.Duration {
	if t.max <= t.min {
		return t.min
	}
	return t.min + time.Duration(rand.Int64N(int64(t.max-t.min)))
}

// RequestUpdate guarantees a refresh of id within the maximum window.
func (t *Throttler) RequestUpdate(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	w, ok := t.windows[id]
	switch {
	case !ok:
		w = &quietWindow{}
		t.windows[id] = w
		t.arm(id, w)
	case w.running:
		w.dirty = true
		metrics.CoalescedUpdates.Inc()
	default:
		metrics.CoalescedUpdates.Inc()
	}
}

// arm must be called with t.mu held.
func (t *Throttler) arm(id int64, w *quietWindow) {
	d := t.jitter()
	w.until = t.now().Add(d)
	w.timer = time.AfterFunc(d, func() { t.flush(id, w) })
}

func (t *Throttler) flush(id int64, w *quietWindow) {
	t.mu.Lock()
	if t.stopped || t.windows[id] != w {
		t.mu.Unlock()
		return
	}
	w.timer = nil
	w.running = true
	t.wg.Add(1)
	t.mu.Unlock()

	err := t.update(t.ctx, id)
	t.wg.Done()
	if err != nil {
		logger.Warn().Err(err).Int64("giveaway_id", id).Msg("Failed to refresh giveaway message")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	w.running = false
	if t.stopped || t.windows[id] != w {
		return
	}
	if w.dirty {
		w.dirty = false
		t.arm(id, w)
		return
	}
	delete(t.windows, id)
}

// CancelUpdate drops any pending refresh of id.
func (t *Throttler) CancelUpdate(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.windows[id]; ok {
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(t.windows, id)
	}
}

// QuietUntil reports when the open window of id closes.
func (t *Throttler) QuietUntil(id int64) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[id]
	if !ok {
		return time.Time{}, false
	}
	return w.until, true
}

func (t *Throttler) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.windows)
}

// Stop drops every window and waits for running refreshes.
func (t *Throttler) Stop() {
	t.mu.Lock()
	t.stopped = true
	for id, w := range t.windows {
		if w.timer != nil {
			w.timer.Stop()
		}
		delete(t.windows, id)
	}
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}
