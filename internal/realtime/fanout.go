// Package realtime fans chat and notification events out to connected
// clients. Rooms are Redis pub/sub channels: "user:<id>" for personal
// streams and "matter:<id>" for per-case discussion. Delivery is at-most-
// once to currently connected subscribers; history lives in the database.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event names published to rooms.
const (
	EventDMNew     = "dm:new"
	EventChatNew   = "chat:new"
	EventMatterNew = "matter:new"
)

const channelPrefix = "rt:"

// Event is one published envelope.
type Event struct {
	Event   string          `json:"event"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

func UserRoom(userID string) string     { return "user:" + userID }
func MatterRoom(matterID string) string { return "matter:" + matterID }

// Fanout publishes and subscribes room events through Redis.
type Fanout struct {
	client *redis.Client
	logger *log.Logger
}

func NewFanout(redisURL string, logger *log.Logger) (*Fanout, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewFanoutWithClient(client, logger), nil
}

func NewFanoutWithClient(client *redis.Client, logger *log.Logger) *Fanout {
	if logger == nil {
		logger = log.Default()
	}
	return &Fanout{client: client, logger: logger}
}

// Publish sends event with payload to every subscriber of room. A publish
// with nobody listening is not an error.
func (f *Fanout) Publish(ctx context.Context, room, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	env, err := json.Marshal(Event{Event: event, Room: room, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := f.client.Publish(ctx, channelPrefix+room, env).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", room, err)
	}
	return nil
}

// Subscription is one client's live feed across its joined rooms.
type Subscription struct {
	pubsub *redis.PubSub
	events chan Event
}

// Events yields decoded envelopes until Close.
func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Close() error { return s.pubsub.Close() }

// Subscribe joins the given rooms. The caller owns authorization: room
// membership must be validated before subscribing.
func (f *Fanout) Subscribe(ctx context.Context, rooms ...string) (*Subscription, error) {
	channels := make([]string, len(rooms))
	for i, room := range rooms {
		channels[i] = channelPrefix + room
	}
	pubsub := f.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := &Subscription{pubsub: pubsub, events: make(chan Event, 16)}
	go func() {
		defer close(sub.events)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.logger.Printf("realtime: dropping malformed envelope on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case sub.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return sub, nil
}

// Close releases the Redis connection.
func (f *Fanout) Close() error { return f.client.Close() }
