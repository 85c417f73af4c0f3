// Package realtime carries canvas mutation events to co-editors over Redis
// pub/sub, one channel per app.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AppChannel is the channel canvas and element events are published on.
func AppChannel(appID string) string {
	return "app:" + appID
}

// StateChannel is the channel bulk canvas-state saves are published on. The
// naming differs from AppChannel on purpose: clients of the original protocol
// subscribe to both, and unifying them silently would strand those listeners.
func StateChannel(appID string) string {
	return "canvas-" + appID
}

// AnalyticsChannel carries read-path telemetry such as template access events.
const AnalyticsChannel = "analytics"

// Event is the wire frame for every broadcast.
type Event struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

// Publisher is what the service layer depends on. Delivery is best-effort:
// callers log failures and never surface them to the HTTP caller.
type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(redisURL string) (*RedisBroadcaster, error) {
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
	return &RedisBroadcaster{client: client}, nil
}

func NewRedisBroadcasterWithClient(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel string, event Event) error {
	frame, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channel, frame).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a pub/sub subscription on the given channels; the caller
// owns closing it.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return b.client.Subscribe(ctx, channels...)
}

func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}
