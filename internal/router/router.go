// Package router dispatches received envelopes to the single handler
// registered for their channel.
package router

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/bizmon/eventrelay/internal/channel"
	"github.com/bizmon/eventrelay/internal/wire"
)

// DefaultLogSize is the number of recent envelopes kept for diagnostics.
const DefaultLogSize = 100

// Handler consumes the data of one envelope.
type Handler func(data map[string]any) error

type registration struct {
	id int64
	fn Handler
}

// Router holds at most one handler per channel. A later registration
// replaces an earlier one.
type Router struct {
	seq atomic.Int64

	mu       sync.RWMutex
	handlers map[channel.Channel]registration

	logMu   sync.Mutex
	log     []wire.Envelope
	logSize int
}

// New creates a router with the default log size.
func New() *Router {
	return NewWithLogSize(DefaultLogSize)
}

// NewWithLogSize creates a router keeping the last size envelopes.
func NewWithLogSize(size int) *Router {
	if size < 1 {
		size = 1
	}
	return &Router{
		handlers: make(map[channel.Channel]registration),
		logSize:  size,
	}
}

// RegisterHandler installs fn as the handler for ch and returns a function
// that removes it. The returned function only removes this registration:
// if another handler was installed for ch in the meantime it is left alone.
func (r *Router) RegisterHandler(ch channel.Channel, fn Handler) func() {
	id := r.seq.Add(1)
	r.mu.Lock()
	if prev, ok := r.handlers[ch]; ok {
		slog.Debug("router: replacing handler", "channel", ch.String(), "previous_id", prev.id)
	}
	r.handlers[ch] = registration{id: id, fn: fn}
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if cur, ok := r.handlers[ch]; ok && cur.id == id {
				delete(r.handlers, ch)
			}
		})
	}
}

// RegisterHandlers installs every entry of hs and returns one function that
// removes exactly the entries it installed.
func (r *Router) RegisterHandlers(hs map[channel.Channel]Handler) func() {
	unregs := make([]func(), 0, len(hs))
	for ch, fn := range hs {
		unregs = append(unregs, r.RegisterHandler(ch, fn))
	}
	return func() {
		for _, fn := range unregs {
			fn()
		}
	}
}

// HasHandler reports whether a handler is registered for ch.
func (r *Router) HasHandler(ch channel.Channel) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[ch]
	return ok
}

// HandleMessage logs env and hands its data to the registered handler.
// Envelopes without a type, channels with no handler, handler errors and
// handler panics are all logged and never stop later dispatches.
func (r *Router) HandleMessage(env wire.Envelope) {
	if !env.Type.Valid() {
		slog.Warn("router: dropping envelope without type", "timestamp", env.Timestamp)
		return
	}

	r.appendLog(env)

	r.mu.RLock()
	reg, ok := r.handlers[env.Type]
	r.mu.RUnlock()
	if !ok {
		slog.Warn("router: no handler registered", "channel", env.Type.String())
		return
	}

	if err := invoke(reg.fn, env.Data); err != nil {
		slog.Error("router: handler failed", "channel", env.Type.String(), "error", err)
	}
}

func invoke(fn Handler, data map[string]any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return fn(data)
}

func (r *Router) appendLog(env wire.Envelope) {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	r.log = append(r.log, env)
	if len(r.log) > r.logSize {
		// Copy down so the backing array does not grow without bound.
		n := copy(r.log, r.log[len(r.log)-r.logSize:])
		r.log = r.log[:n]
	}
}

// MessageLog returns a copy of the recent envelopes, oldest first. Each
// entry gets its own top-level Data map; nested values are shared.
func (r *Router) MessageLog() []wire.Envelope {
	r.logMu.Lock()
	defer r.logMu.Unlock()
	out := make([]wire.Envelope, len(r.log))
	for i, e := range r.log {
		e.Data = maps.Clone(e.Data)
		out[i] = e
	}
	return out
}

// ClearMessageLog empties the diagnostic log.
func (r *Router) ClearMessageLog() {
	r.logMu.Lock()
	r.log = nil
	r.logMu.Unlock()
}
