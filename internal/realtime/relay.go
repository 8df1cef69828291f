package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/sharedwishlist/pkg/logger"
)

type relayPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type relayEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// Relay carries events between server instances over a pub/sub channel. Each
// envelope names its origin so an instance never re-delivers its own events.
type Relay struct {
	pub     relayPublisher
	channel string
	origin  string
	logg    *logger.Logger
}

func NewRelay(pub relayPublisher, channel, origin string, logg *logger.Logger) (*Relay, error) {
	if pub == nil {
		return nil, fmt.Errorf("relay publisher required")
	}
	if strings.TrimSpace(channel) == "" {
		return nil, fmt.Errorf("relay channel required")
	}
	if strings.TrimSpace(origin) == "" {
		return nil, fmt.Errorf("relay origin required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Relay{pub: pub, channel: channel, origin: origin, logg: logg}, nil
}

func (r *Relay) Channel() string { return r.channel }

// Forward publishes event for peer instances.
func (r *Relay) Forward(ctx context.Context, event Event) error {
	payload, err := json.Marshal(relayEnvelope{Origin: r.origin, Event: event})
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	return r.pub.Publish(ctx, r.channel, payload)
}

// Consume hands every foreign event from messages to deliver until ctx ends or
// messages is closed.
func (r *Relay) Consume(ctx context.Context, messages <-chan []byte, deliver func(context.Context, Event) int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-messages:
			if !ok {
				return fmt.Errorf("relay subscription closed")
			}
			event, foreign, err := r.decode(raw)
			if err != nil {
				r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "realtime.relay.decode_failed")
				continue
			}
			if !foreign {
				continue
			}
			deliver(ctx, event)
		}
	}
}

func (r *Relay) decode(raw []byte) (Event, bool, error) {
	var env relayEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, false, err
	}
	if !env.Event.Type.Valid() {
		return Event{}, false, fmt.Errorf("unknown event type %q", env.Event.Type)
	}
	return env.Event, env.Origin != r.origin, nil
}
