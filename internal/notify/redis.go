package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStream is the Redis Stream key used when the config names none.
const DefaultStream = "agora:events"

// StreamPublisher appends events to a Redis Stream so external consumers can
// replay the full activity log in order.
type StreamPublisher struct {
	rdb    *redis.Client
	stream string
	logger *zap.Logger
}

// NewStreamPublisher connects to Redis and returns a stream-backed publisher.
func NewStreamPublisher(redisURL, stream string, logger *zap.Logger) (*StreamPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamPublisher{rdb: rdb, stream: stream, logger: logger}, nil
}

// Publish appends one event to the stream.
func (p *StreamPublisher) Publish(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, err = p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.stream, err)
	}

	p.logger.Debug("published event",
		zap.String("type", ev.Type),
		zap.String("agent", ev.AgentID))
	return nil
}

// Tail streams events appended after the call. Cancel the context to stop.
// This is the consumer side used by indexer-style readers and the e2e tests.
func (p *StreamPublisher) Tail(ctx context.Context) <-chan *Event {
	ch := make(chan *Event, 16)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := p.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{p.stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if errors.Is(err, redis.Nil) {
					// Block timeout with no new entries; poll again.
					continue
				}
				p.logger.Warn("stream read failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev Event
					if json.Unmarshal([]byte(data), &ev) == nil {
						ch <- &ev
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (p *StreamPublisher) Close() error {
	return p.rdb.Close()
}
