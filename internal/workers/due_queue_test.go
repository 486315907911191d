package workers

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	go_redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelQueueDeliversInOrder(t *testing.T) {
	q := NewChannelQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan int64, 3)
	go func() {
		_ = q.Run(ctx, func(_ context.Context, ev DueEvent) error {
			got <- ev.GiveawayID
			if ev.GiveawayID == 2 {
				return errors.New("boom")
			}
			return nil
		})
	}()

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, q.Publish(ctx, DueEvent{GiveawayID: id}))
	}
	for want := int64(1); want <= 3; want++ {
		select {
		case id := <-got:
			assert.Equal(t, want, id)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not delivered", want)
		}
	}
}

func TestChannelQueuePublishHonoursContext(t *testing.T) {
	q := NewChannelQueue(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, DueEvent{GiveawayID: 1}), context.Canceled)
}

type fakeStream struct {
	mu      sync.Mutex
	pending []go_redis.XMessage
	acked   []string
	seq     int
}

func (f *fakeStream) XAdd(_ context.Context, a *go_redis.XAddArgs) *go_redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := strconv.Itoa(f.seq) + "-0"
	f.pending = append(f.pending, go_redis.XMessage{ID: id, Values: a.Values.(map[string]interface{})})
	return go_redis.NewStringResult(id, nil)
}

func (f *fakeStream) XGroupCreateMkStream(context.Context, string, string, string) *go_redis.StatusCmd {
	return go_redis.NewStatusResult("", errors.New("BUSYGROUP Consumer Group name already exists"))
}

func (f *fakeStream) XReadGroup(ctx context.Context, _ *go_redis.XReadGroupArgs) *go_redis.XStreamSliceCmd {
	f.mu.Lock()
	msgs := f.pending
	f.pending = nil
	f.mu.Unlock()

	if len(msgs) == 0 {
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
		}
		return go_redis.NewXStreamSliceCmdResult(nil, go_redis.Nil)
	}
	return go_redis.NewXStreamSliceCmdResult([]go_redis.XStream{{Stream: dueStreamKey, Messages: msgs}}, nil)
}

func (f *fakeStream) XAck(_ context.Context, _, _ string, ids ...string) *go_redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return go_redis.NewIntResult(int64(len(ids)), nil)
}

func (f *fakeStream) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

func TestRedisStreamQueueRoundTrip(t *testing.T) {
	stream := &fakeStream{}
	q := NewRedisStreamQueue(stream)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deadline := time.Unix(1_750_000_000, 0)
	require.NoError(t, q.Publish(ctx, DueEvent{GiveawayID: 42, Deadline: deadline}))
	stream.mu.Lock()
	stream.pending = append(stream.pending, go_redis.XMessage{ID: "bad-0", Values: map[string]interface{}{"giveaway_id": "x"}})
	stream.mu.Unlock()

	got := make(chan DueEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- q.Run(ctx, func(_ context.Context, ev DueEvent) error {
			got <- ev
			return nil
		})
	}()

	select {
	case ev := <-got:
		assert.Equal(t, int64(42), ev.GiveawayID)
		assert.True(t, deadline.Equal(ev.Deadline))
	case <-time.After(2 * time.Second):
		t.Fatal("due event not delivered")
	}

	require.Eventually(t, func() bool { return len(stream.ackedIDs()) == 2 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestParseDueEvent(t *testing.T) {
	_, err := parseDueEvent(map[string]interface{}{})
	assert.Error(t, err)

	ev, err := parseDueEvent(map[string]interface{}{"giveaway_id": "7"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), ev.GiveawayID)
	assert.True(t, ev.Deadline.IsZero())
}
