package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

const redisChannel = "charity-drive.events"

// RedisBridge fans events out across coordinator instances through Redis
// Pub/Sub. Redis being down only costs cross-instance latency: local
// delivery and the polling fallback are unaffected.
type RedisBridge struct {
	client *redis.Client
	hub    *Hub
	logger *slog.Logger
	cancel context.CancelFunc
}

func NewRedisBridge(addr, password string, hub *Hub, logger *slog.Logger) *RedisBridge {
	if logger == nil {
		logger = slog.Default()
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisBridge{client: c, hub: hub, logger: logger}
}

// Start subscribes to the shared channel and republishes inbound events
// into the local hub. It returns immediately; the receive loop runs until
// Close.
func (b *RedisBridge) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	pubsub := b.client.Subscribe(ctx, redisChannel)
	go func() {
		defer pubsub.Close()
		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Warn("redis bridge receive error", "error", err)
				continue
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.Warn("redis bridge bad event", "error", err)
				continue
			}
			b.hub.Inject(ev)
		}
	}()
}

// Forward publishes a locally-originated event to the shared channel.
// Best effort: a publish failure is logged, never surfaced to the caller.
func (b *RedisBridge) Forward(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("redis bridge marshal failed", "error", err)
		return
	}
	if err := b.client.Publish(context.Background(), redisChannel, payload).Err(); err != nil {
		b.logger.Warn("redis bridge publish failed", "error", err)
	}
}

func (b *RedisBridge) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	return b.client.Close()
}
