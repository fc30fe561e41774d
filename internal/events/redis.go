package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"ideaforge/internal/domain"
)

// Publisher fans committed events out to subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

// RedisPublisher publishes each committed event as JSON on a Redis channel and
// records the last published event ID under "<channel>:last_id".
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

// NewRedisPublisher creates a publisher for the given channel.
func NewRedisPublisher(opts *redis.Options, channel string) (*RedisPublisher, error) {
	if channel == "" {
		return nil, fmt.Errorf("channel cannot be empty")
	}
	return &RedisPublisher{rdb: redis.NewClient(opts), channel: channel}, nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

// Ping verifies Redis connectivity.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Channel returns the pub/sub channel name.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// LastIDKey is the key holding the last published event ID.
func (p *RedisPublisher) LastIDKey() string {
	return p.channel + ":last_id"
}

func (p *RedisPublisher) Publish(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(ToWire(evt))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, p.LastIDKey(), evt.ID, 0)
		pipe.Publish(ctx, p.channel, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %d: %w", evt.ID, err)
	}
	return nil
}

// WireEvent is the JSON shape delivered to subscribers and webhooks.
type WireEvent struct {
	ID       int64           `json:"id"`
	Type     string          `json:"type"`
	Registry string          `json:"registry"`
	EntityID int64           `json:"entity_id"`
	Actor    string          `json:"actor"`
	TS       string          `json:"ts"`
	Payload  json.RawMessage `json:"payload"`
}

// ToWire converts a stored event to its delivery shape.
func ToWire(evt domain.Event) WireEvent {
	payload := json.RawMessage(`{}`)
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	return WireEvent{
		ID:       evt.ID,
		Type:     evt.Type,
		Registry: string(evt.Registry),
		EntityID: evt.EntityID,
		Actor:    string(evt.Actor),
		TS:       evt.TS,
		Payload:  payload,
	}
}

// Subscribe streams published events until ctx is done. Messages that are not
// wire events are skipped.
func (p *RedisPublisher) Subscribe(ctx context.Context) (<-chan WireEvent, error) {
	ps := p.rdb.Subscribe(ctx, p.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", p.channel, err)
	}
	out := make(chan WireEvent)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt WireEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
