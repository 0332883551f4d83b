// Package bridge composes one transport client and one message router into
// the single surface application code talks to.
package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bizmon/eventrelay/internal/channel"
	"github.com/bizmon/eventrelay/internal/client"
	"github.com/bizmon/eventrelay/internal/config"
	"github.com/bizmon/eventrelay/internal/router"
	"github.com/bizmon/eventrelay/internal/wire"
)

// Options configures a Bridge.
type Options struct {
	Client      client.Options
	AutoConnect bool
	// LogSize bounds the router message log. Zero uses router.DefaultLogSize.
	LogSize int
	// ListenerBuffer is the per-listener channel capacity for Subscribe.
	ListenerBuffer int
}

// OptionsFromConfig maps environment configuration onto bridge options.
func OptionsFromConfig(cfg *config.ClientConfig) Options {
	return Options{
		Client: client.Options{
			URL: cfg.URL,
			Backoff: client.Backoff{
				Initial:     cfg.ReconnectInitial(),
				Max:         cfg.ReconnectMax(),
				Multiplier:  cfg.ReconnectMultiplier,
				MaxAttempts: cfg.MaxReconnectAttempts,
			},
		},
		AutoConnect: cfg.AutoConnect,
	}
}

// Bridge owns exactly one client and one router. Construct it once at the
// application root and pass it to the features that need live events.
type Bridge struct {
	client      *client.Client
	router      *router.Router
	broker      *broker
	autoConnect bool

	mu       sync.Mutex
	started  bool
	closed   bool
	defaults []func()
}

// New composes a bridge. Nothing connects until Start or Connect.
func New(opts Options) *Bridge {
	r := router.New()
	if opts.LogSize > 0 {
		r = router.NewWithLogSize(opts.LogSize)
	}
	return &Bridge{
		client:      client.New(opts.Client),
		router:      r,
		broker:      newBroker(opts.ListenerBuffer),
		autoConnect: opts.AutoConnect,
	}
}

// Start registers a debug-logging handler for every channel that has none
// yet, attaches the router to the client and connects when auto-connect is
// enabled. A failed first connect is returned, but the client keeps
// retrying on its own schedule.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started || b.closed {
		b.mu.Unlock()
		return nil
	}
	b.started = true
	for _, ch := range channel.All() {
		if b.router.HasHandler(ch) {
			continue
		}
		b.defaults = append(b.defaults, b.router.RegisterHandler(ch, debugHandler(ch)))
	}
	b.mu.Unlock()

	b.client.OnMessage(b.forward)
	if !b.autoConnect {
		return nil
	}
	return b.client.Connect(ctx)
}

// Close disconnects, removes the default handlers and closes every
// listener stream.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	defaults := b.defaults
	b.defaults = nil
	b.mu.Unlock()

	b.client.Disconnect()
	b.client.OnMessage(nil)
	for _, unregister := range defaults {
		unregister()
	}
	b.broker.close()
}

func (b *Bridge) forward(env wire.Envelope) {
	b.router.HandleMessage(env)
	if dropped := b.broker.publish(env); dropped > 0 {
		slog.Debug("bridge: slow listeners dropped envelope", "channel", env.Type.String(), "dropped", dropped, "listeners", b.broker.count())
	}
}

func debugHandler(ch channel.Channel) router.Handler {
	return func(data map[string]any) error {
		slog.Debug("bridge: event", "channel", ch.String(), "fields", len(data))
		return nil
	}
}

// State returns the connection state.
func (b *Bridge) State() client.State { return b.client.State() }

// IsConnected reports whether the transport is connected.
func (b *Bridge) IsConnected() bool { return b.client.State() == client.Connected }

// IsConnecting reports whether a handshake is in flight.
func (b *Bridge) IsConnecting() bool { return b.client.State() == client.Connecting }

// LastMessage returns the most recent envelope received.
func (b *Bridge) LastMessage() (wire.Envelope, bool) { return b.client.LastMessage() }

// Connect starts a connection attempt; it is the manual recovery path once
// automatic retries are exhausted.
func (b *Bridge) Connect(ctx context.Context) error { return b.client.Connect(ctx) }

// Disconnect closes the connection and cancels any pending reconnect.
func (b *Bridge) Disconnect() { b.client.Disconnect() }

// Send writes msg as JSON. It reports false when not connected.
func (b *Bridge) Send(msg any) bool { return b.client.Send(msg) }

// OnStateChange observes connection state transitions.
func (b *Bridge) OnStateChange(fn func(client.State)) { b.client.OnStateChange(fn) }

func (b *Bridge) RegisterHandler(ch channel.Channel, fn router.Handler) func() {
	return b.router.RegisterHandler(ch, fn)
}

func (b *Bridge) RegisterHandlers(hs map[channel.Channel]router.Handler) func() {
	return b.router.RegisterHandlers(hs)
}

func (b *Bridge) MessageLog() []wire.Envelope { return b.router.MessageLog() }

func (b *Bridge) ClearMessageLog() { b.router.ClearMessageLog() }

// Subscribe returns a stream of every envelope received from now on.
// Listeners that fall behind miss envelopes rather than blocking delivery.
func (b *Bridge) Subscribe() (int64, <-chan wire.Envelope) { return b.broker.subscribe() }

// Unsubscribe ends the stream returned by Subscribe.
func (b *Bridge) Unsubscribe(id int64) { b.broker.unsubscribe(id) }
