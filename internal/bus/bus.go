// Package bus connects the relay to the backend pub/sub channels.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bizmon/eventrelay/internal/channel"
	"github.com/redis/go-redis/v9"
)

// StatusTimeout bounds the cache status probe.
const StatusTimeout = 5 * time.Second

// Message is one payload published on a bus channel.
type Message struct {
	Channel channel.Channel
	Payload string
}

// Redis is a pub/sub bus backed by a Redis server.
type Redis struct {
	client *redis.Client
	url    string
}

// Open parses url, connects and verifies the server answers a PING. A
// failure here is meant to be fatal for the relay.
func Open(ctx context.Context, url string) (*Redis, error) {
	b, err := New(url)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()
	if err := b.client.Ping(pingCtx).Err(); err != nil {
		_ = b.client.Close()
		return nil, fmt.Errorf("bus: ping %s: %w", RedactURL(url), err)
	}
	slog.Info("bus: redis connected", "url", RedactURL(url))
	return b, nil
}

// New builds a bus without contacting the server.
func New(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("bus: parse url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts), url: url}, nil
}

// URL returns the configured server URL with any password removed.
func (b *Redis) URL() string {
	return RedactURL(b.url)
}

// Close releases the connection pool.
func (b *Redis) Close() error {
	return b.client.Close()
}

// Publish sends payload on ch.
func (b *Redis) Publish(ctx context.Context, ch channel.Channel, payload string) error {
	if !ch.Valid() {
		return fmt.Errorf("bus: publish: unregistered channel %d", int(ch))
	}
	if err := b.client.Publish(ctx, ch.String(), payload).Err(); err != nil {
		return fmt.Errorf("bus: publish %s: %w", ch, err)
	}
	return nil
}

// Subscribe subscribes once to chs and streams their messages until ctx is
// cancelled or the subscription breaks; the returned channel is then
// closed. The subscription is confirmed before Subscribe returns.
func (b *Redis) Subscribe(ctx context.Context, chs ...channel.Channel) (<-chan Message, error) {
	if len(chs) == 0 {
		return nil, errors.New("bus: subscribe: no channels")
	}
	pubsub := b.client.Subscribe(ctx, channel.Names(chs...)...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("bus: subscribe: %w", err)
	}
	slog.Info("bus: subscribed", "channels", channel.Names(chs...))

	out := make(chan Message, 256)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					slog.Warn("bus: subscription closed")
					return
				}
				ch, known := channel.Parse(msg.Channel)
				if !known {
					slog.Warn("bus: message on unregistered channel", "channel", msg.Channel)
					continue
				}
				select {
				case out <- Message{Channel: ch, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Status is the result of a cache connectivity probe.
type Status struct {
	Connected bool   `json:"connected"`
	URL       string `json:"url"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Probe pings the server with StatusTimeout and reports the outcome. The
// error is non-nil exactly when Connected is false.
func (b *Redis) Probe(ctx context.Context) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, StatusTimeout)
	defer cancel()

	st := Status{URL: b.URL(), Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if err := b.client.Ping(ctx).Err(); err != nil {
		st.Message = "redis connection failed: " + err.Error()
		return st, fmt.Errorf("bus: probe: %w", err)
	}
	st.Connected = true
	st.Message = "redis connection ok"
	return st, nil
}
