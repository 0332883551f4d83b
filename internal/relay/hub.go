package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bizmon/eventrelay/internal/bus"
	"github.com/bizmon/eventrelay/internal/wire"
)

// ErrBusClosed is returned by Run when the message stream ends while the
// hub is still supposed to be running.
var ErrBusClosed = errors.New("relay: bus message stream closed")

// Recorder receives every envelope the hub broadcasts.
type Recorder interface {
	Write(record any) error
}

// HubOptions configures a Hub.
type HubOptions struct {
	SweepInterval time.Duration
	Recorder      Recorder
	Now           func() time.Time
}

// Stats is a snapshot of hub activity.
type Stats struct {
	Connections int               `json:"connections"`
	Broadcasts  uint64            `json:"broadcasts"`
	Delivered   uint64            `json:"delivered"`
	Dropped     uint64            `json:"dropped"`
	PerChannel  map[string]uint64 `json:"per_channel"`
	StartedAt   time.Time         `json:"started_at"`
}

// Hub owns the set of live client sessions. All mutation of that set, as
// well as every broadcast, happens on the goroutine running Run.
type Hub struct {
	opts HubOptions

	register   chan Conn
	unregister chan string
	statsReq   chan chan Stats
	done       chan struct{}

	// owned by Run
	conns map[string]Conn
	stats Stats
}

// NewHub creates a hub. Call Run to start it.
func NewHub(opts HubOptions) *Hub {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Hub{
		opts:       opts,
		register:   make(chan Conn),
		unregister: make(chan string, 64),
		statsReq:   make(chan chan Stats),
		done:       make(chan struct{}),
		conns:      make(map[string]Conn),
		stats:      Stats{PerChannel: make(map[string]uint64)},
	}
}

// Register hands a new session to the hub. It returns false once the hub
// has stopped, in which case the caller still owns c.
func (h *Hub) Register(c Conn) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes the session with the given id, if present.
func (h *Hub) Unregister(id string) {
	select {
	case h.unregister <- id:
	case <-h.done:
	}
}

// Stats returns a snapshot of hub counters.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.statsReq <- reply:
	case <-h.done:
		return Stats{}, newError(CodeHubStopped, "hub is not running", nil)
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Run processes registrations and bus messages until ctx is cancelled or
// msgs is closed. On the way out every session is closed with a going-away
// frame.
func (h *Hub) Run(ctx context.Context, msgs <-chan bus.Message) error {
	h.stats.StartedAt = h.opts.Now().UTC()
	ticker := time.NewTicker(h.opts.SweepInterval)
	defer ticker.Stop()
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-h.register:
			h.add(c)
		case id := <-h.unregister:
			h.remove(id, "client gone")
		case reply := <-h.statsReq:
			reply <- h.snapshot()
		case <-ticker.C:
			h.sweep()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrBusClosed
			}
			h.broadcast(msg)
		}
	}
}

func (h *Hub) add(c Conn) {
	h.conns[c.ID()] = c
	slog.Info("relay: client connected", "conn_id", c.ID(), "connections", len(h.conns))
}

func (h *Hub) remove(id, reason string) {
	c, ok := h.conns[id]
	if !ok {
		return
	}
	delete(h.conns, id)
	_ = c.Close()
	slog.Info("relay: client removed", "conn_id", id, "reason", reason, "connections", len(h.conns))
}

// broadcast wraps msg in an envelope, serializes it once and writes it to
// every open session. Sessions that are not open or fail the write are
// collected during the pass and removed after it.
func (h *Hub) broadcast(msg bus.Message) {
	env := wire.FromBus(msg.Channel, msg.Payload, h.opts.Now())
	frame, err := wire.Encode(env)
	if err != nil {
		slog.Error("relay: encode envelope", "channel", msg.Channel.String(), "error", err)
		return
	}
	h.stats.Broadcasts++
	h.stats.PerChannel[msg.Channel.String()]++

	var stale []string
	for id, c := range h.conns {
		if c.State() != StateOpen {
			stale = append(stale, id)
			continue
		}
		if err := c.WriteText(frame); err != nil {
			slog.Warn("relay: write failed", "conn_id", id, "channel", msg.Channel.String(), "error", err)
			stale = append(stale, id)
			continue
		}
		h.stats.Delivered++
	}
	for _, id := range stale {
		h.stats.Dropped++
		h.remove(id, "not writable")
	}
	slog.Debug("relay: broadcast", "channel", msg.Channel.String(), "bytes", len(frame), "connections", len(h.conns))

	if h.opts.Recorder != nil {
		if err := h.opts.Recorder.Write(env); err != nil {
			slog.Warn("relay: archive write failed", "error", err)
		}
	}
}

// sweep drops sessions that are no longer open.
func (h *Hub) sweep() {
	var stale []string
	for id, c := range h.conns {
		if c.State() != StateOpen {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		h.stats.Dropped++
		h.remove(id, "swept")
	}
	if len(stale) > 0 {
		slog.Debug("relay: sweep", "removed", len(stale), "connections", len(h.conns))
	}
}

func (h *Hub) snapshot() Stats {
	st := h.stats
	st.Connections = len(h.conns)
	st.PerChannel = make(map[string]uint64, len(h.stats.PerChannel))
	for k, v := range h.stats.PerChannel {
		st.PerChannel[k] = v
	}
	return st
}

func (h *Hub) shutdown() {
	close(h.done)
	for id, c := range h.conns {
		_ = c.Close()
		delete(h.conns, id)
	}
	slog.Info("relay: hub stopped")
}
