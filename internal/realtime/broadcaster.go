package realtime

import (
	"context"
	"encoding/json"

	"github.com/angelmondragon/sharedwishlist/pkg/logger"
	"github.com/angelmondragon/sharedwishlist/pkg/metrics"
)

type forwarder interface {
	Forward(ctx context.Context, event Event) error
}

// Broadcaster fans a domain event out to every session in the event's room,
// including the session whose request produced it. Delivery is fire-and-forget.
type Broadcaster struct {
	registry *Registry
	logg     *logger.Logger
	metrics  *metrics.RealtimeMetrics
	relay    forwarder
}

func NewBroadcaster(registry *Registry, logg *logger.Logger, m *metrics.RealtimeMetrics) *Broadcaster {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Broadcaster{registry: registry, logg: logg, metrics: m}
}

// WithRelay forwards every published event to other instances as well.
func (b *Broadcaster) WithRelay(relay forwarder) *Broadcaster {
	b.relay = relay
	return b
}

// Publish delivers event to the room snapshot taken at call time and, when a
// relay is configured, forwards it to peer instances. Errors never propagate.
func (b *Broadcaster) Publish(ctx context.Context, event Event) {
	b.metrics.IncPublished(string(event.Type))
	b.DeliverLocal(ctx, event)

	if b.relay == nil {
		return
	}
	if err := b.relay.Forward(ctx, event); err != nil {
		b.logg.Warn(b.logg.WithFields(ctx, map[string]any{
			"event_type":  event.Type,
			"wishlist_id": event.WishlistID,
			"error":       err.Error(),
		}), "realtime.relay.forward_failed")
	}
}

// DeliverLocal enqueues event on every local session in the room and reports
// how many accepted it.
func (b *Broadcaster) DeliverLocal(ctx context.Context, event Event) int {
	members := b.registry.MembersOf(event.WishlistID)
	if len(members) == 0 {
		return 0
	}

	frame, err := json.Marshal(event)
	if err != nil {
		b.logg.Error(ctx, "realtime.event.encode_failed", err)
		return 0
	}

	delivered := 0
	for _, s := range members {
		if err := s.Enqueue(frame); err != nil {
			b.metrics.IncDropped(string(event.Type))
			b.logg.Warn(b.logg.WithFields(ctx, map[string]any{
				"event_type":  event.Type,
				"wishlist_id": event.WishlistID,
				"session_id":  s.ID(),
				"reason":      err.Error(),
			}), "realtime.delivery.dropped")
			continue
		}
		b.metrics.IncDelivered(string(event.Type))
		delivered++
	}
	return delivered
}
