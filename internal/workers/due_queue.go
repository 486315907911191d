package workers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	go_redis "github.com/redis/go-redis/v9"

	"community-bot/internal/common/logger"
)

const (
	dueStreamKey     = "giveaway:due"
	dueConsumerGroup = "giveaway_resolvers"
)

// DueEvent tells the resolver a giveaway reached its deadline.
type DueEvent struct {
	GiveawayID int64
	Deadline   time.Time
}

type DueHandler func(ctx context.Context, ev DueEvent) error

// DueQueue carries due events from the scheduler to the resolver.
type DueQueue interface {
	Publish(ctx context.Context, ev DueEvent) error
	// Run consumes events until ctx is cancelled.
	Run(ctx context.Context, handle DueHandler) error
}

// ChannelQueue is the in-process queue.
type ChannelQueue struct {
	events chan DueEvent
}

func NewChannelQueue(size int) *ChannelQueue {
	return &ChannelQueue{events: make(chan DueEvent, size)}
}

func (q *ChannelQueue) Publish(ctx context.Context, ev DueEvent) error {
	select {
	case q.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *ChannelQueue) Run(ctx context.Context, handle DueHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-q.events:
			dispatch(ctx, handle, ev)
		}
	}
}

// StreamClient is the subset of go-redis used by RedisStreamQueue.
type StreamClient interface {
	XAdd(ctx context.Context, a *go_redis.XAddArgs) *go_redis.StringCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *go_redis.StatusCmd
	XReadGroup(ctx context.Context, a *go_redis.XReadGroupArgs) *go_redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *go_redis.IntCmd
}

// RedisStreamQueue carries due events through a Redis stream so another
// process can resolve them.
type RedisStreamQueue struct {
	rdb      StreamClient
	consumer string
	block    time.Duration
}

func NewRedisStreamQueue(rdb StreamClient) *RedisStreamQueue {
	host, _ := os.Hostname()
	if host == "" {
		host = "bot"
	}
	return &RedisStreamQueue{
		rdb:      rdb,
		consumer: host + "-" + uuid.NewString()[:8],
		block:    5 * time.Second,
	}
}

func (q *RedisStreamQueue) Publish(ctx context.Context, ev DueEvent) error {
	err := q.rdb.XAdd(ctx, &go_redis.XAddArgs{
		Stream: dueStreamKey,
		Values: map[string]interface{}{
			"giveaway_id": strconv.FormatInt(ev.GiveawayID, 10),
			"deadline":    strconv.FormatInt(ev.Deadline.Unix(), 10),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish due event %d: %w", ev.GiveawayID, err)
	}
	return nil
}

func (q *RedisStreamQueue) Run(ctx context.Context, handle DueHandler) error {
	err := q.rdb.XGroupCreateMkStream(ctx, dueStreamKey, dueConsumerGroup, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}

	logger.Info().Str("consumer", q.consumer).Msg("Starting due event stream worker")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Stopping due event stream worker")
			return nil
		default:
		}

		streams, err := q.rdb.XReadGroup(ctx, &go_redis.XReadGroupArgs{
			Group:    dueConsumerGroup,
			Consumer: q.consumer,
			Streams:  []string{dueStreamKey, ">"},
			Count:    10,
			Block:    q.block,
		}).Result()
		if err != nil {
			if errors.Is(err, go_redis.Nil) || ctx.Err() != nil {
				continue
			}
			logger.Error().Err(err).Msg("Failed to read due events")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				ev, err := parseDueEvent(msg.Values)
				if err != nil {
					logger.Warn().Err(err).Str("id", msg.ID).Msg("Dropping malformed due event")
				} else {
					dispatch(ctx, handle, ev)
				}
				// The resolver re-arms its own retries, so every message is acked.
				if err := q.rdb.XAck(ctx, dueStreamKey, dueConsumerGroup, msg.ID).Err(); err != nil {
					logger.Error().Err(err).Str("id", msg.ID).Msg("Failed to ack due event")
				}
			}
		}
	}
}

func parseDueEvent(values map[string]interface{}) (DueEvent, error) {
	rawID, ok := values["giveaway_id"].(string)
	if !ok {
		return DueEvent{}, fmt.Errorf("missing giveaway_id in %v", values)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return DueEvent{}, fmt.Errorf("parse giveaway_id: %w", err)
	}
	ev := DueEvent{GiveawayID: id}
	if rawDeadline, ok := values["deadline"].(string); ok {
		if unix, err := strconv.ParseInt(rawDeadline, 10, 64); err == nil {
			ev.Deadline = time.Unix(unix, 0)
		}
	}
	return ev, nil
}

func dispatch(ctx context.Context, handle DueHandler, ev DueEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Int64("giveaway_id", ev.GiveawayID).Msg("Due event handler panicked")
		}
	}()
	if err := handle(ctx, ev); err != nil {
		logger.Error().Err(err).Int64("giveaway_id", ev.GiveawayID).Msg("Failed to handle due event")
	}
}
