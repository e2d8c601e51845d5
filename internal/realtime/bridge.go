package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Bridge replicates published events between instances over a Redis
// pub/sub channel so that a session connected to one instance still
// receives events triggered on another.
type Bridge struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *slog.Logger
}

// NewBridge constructs a Bridge with a unique origin id used to skip the
// instance's own messages on the subscribe side.
func NewBridge(client *redis.Client, channel string, logger *slog.Logger) *Bridge {
	return &Bridge{client: client, channel: channel, origin: uuid.NewString(), logger: logger}
}

type envelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Forward publishes the event on the bridge channel.
func (b *Bridge) Forward(ctx context.Context, ev Event) error {
	var payload json.RawMessage
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("realtime: encode payload: %w", err)
		}
		payload = data
	}
	data, err := json.Marshal(envelope{Origin: b.origin, Room: ev.Room, Name: ev.Name, Payload: payload})
	if err != nil {
		return fmt.Errorf("realtime: encode envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("realtime: publish bridge message: %w", err)
	}
	return nil
}

// LocalDeliverer accepts events replayed from peer instances.
type LocalDeliverer interface {
	DeliverRemote(ev Event)
}

// Run consumes bridge messages until the context is cancelled, replaying
// events that originate from other instances.
func (b *Bridge) Run(ctx context.Context, local LocalDeliverer) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	// Force the subscription before reporting ready.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: subscribe %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("realtime: malformed bridge message", slog.Any("error", err))
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			ev := Event{Room: env.Room, Name: env.Name}
			if len(env.Payload) > 0 {
				ev.Payload = env.Payload
			}
			local.DeliverRemote(ev)
		}
	}
}
