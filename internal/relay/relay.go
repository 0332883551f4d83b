// Package relay fans bus messages out to websocket clients.
package relay

import (
	"context"
	"log/slog"

	"github.com/bizmon/eventrelay/internal/bus"
	"github.com/bizmon/eventrelay/internal/channel"
)

// Subscriber is the part of the bus the relay consumes.
type Subscriber interface {
	Subscribe(ctx context.Context, chs ...channel.Channel) (<-chan bus.Message, error)
}

// Relay subscribes to the bus once and feeds the hub.
type Relay struct {
	sub      Subscriber
	hub      *Hub
	channels []channel.Channel
}

// New creates a relay engine. An empty channel list means every registered
// channel.
func New(sub Subscriber, hub *Hub, chs []channel.Channel) *Relay {
	if len(chs) == 0 {
		chs = channel.All()
	}
	return &Relay{sub: sub, hub: hub, channels: chs}
}

// Hub returns the hub the relay feeds.
func (r *Relay) Hub() *Hub { return r.hub }

// Channels returns the subscribed channels.
func (r *Relay) Channels() []channel.Channel {
	return append([]channel.Channel(nil), r.channels...)
}

// Stats reports hub counters.
func (r *Relay) Stats(ctx context.Context) (Stats, error) { return r.hub.Stats(ctx) }

// Run subscribes and blocks until ctx is cancelled or the bus stream ends.
func (r *Relay) Run(ctx context.Context) error {
	msgs, err := r.sub.Subscribe(ctx, r.channels...)
	if err != nil {
		return newError(CodeBusUnavailable, "subscribe failed", err)
	}
	slog.Info("relay started", "channels", channel.Names(r.channels...))
	err = r.hub.Run(ctx, msgs)
	slog.Info("relay stopped")
	if err != nil {
		return newError(CodeBusUnavailable, "message stream ended", err)
	}
	return nil
}
