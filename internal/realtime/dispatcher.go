package realtime

import (
	"context"
	"log/slog"
)

// Metrics receives fan-out counters. Implemented by observability.Metrics;
// a nil Metrics disables instrumentation.
type Metrics interface {
	SessionConnected()
	SessionDisconnected()
	EventPublished()
	EventDropped()
}

// Forwarder replicates a published event to other instances. Implemented
// by Bridge; a nil Forwarder keeps fan-out local.
type Forwarder interface {
	Forward(ctx context.Context, ev Event) error
}

// Dispatcher delivers events to every current member of a room. Publish is
// fire-and-forget for the calling resource service: delivery failures are
// logged, never surfaced.
type Dispatcher struct {
	registry  *Registry
	logger    *slog.Logger
	metrics   Metrics
	forwarder Forwarder
}

// NewDispatcher constructs a Dispatcher. metrics and forwarder may be nil.
func NewDispatcher(registry *Registry, logger *slog.Logger, metrics Metrics, forwarder Forwarder) *Dispatcher {
	return &Dispatcher{registry: registry, logger: logger, metrics: metrics, forwarder: forwarder}
}

// Publish delivers the event to every current member of the room, at most
// once per member, and forwards it to peer instances. Enqueueing is
// non-blocking: a slow member never delays the others or the caller.
// Sequential Publish calls from one request reach each member in call
// order.
func (d *Dispatcher) Publish(ctx context.Context, room, name string, payload any) {
	ev := Event{Room: room, Name: name, Payload: payload}
	d.deliver(ev)
	if d.forwarder != nil {
		if err := d.forwarder.Forward(ctx, ev); err != nil {
			d.logger.Warn("realtime: forward event",
				slog.String("room", room),
				slog.String("event", name),
				slog.Any("error", err))
		}
	}
}

// DeliverRemote replays an event received from a peer instance into the
// local registry. It never re-forwards.
func (d *Dispatcher) DeliverRemote(ev Event) {
	d.deliver(ev)
}

func (d *Dispatcher) deliver(ev Event) {
	for _, member := range d.registry.MembersOf(ev.Room) {
		if member.enqueue(ev) {
			if d.metrics != nil {
				d.metrics.EventPublished()
			}
			continue
		}
		// The member's queue is full or closed: treat it as unreachable
		// and remove it from all rooms. In-flight writes to it fail
		// silently.
		d.logger.Warn("realtime: dropping unreachable session",
			slog.String("session", member.ID()),
			slog.String("room", ev.Room),
			slog.String("event", ev.Name))
		d.registry.DropSession(member)
		if d.metrics != nil {
			d.metrics.EventDropped()
		}
	}
}
