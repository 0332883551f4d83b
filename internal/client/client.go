// Package client keeps one connection to the relay open, reconnecting with
// exponential backoff after abnormal closures.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bizmon/eventrelay/internal/wire"
)

const (
	defaultQueueSize   = 100
	defaultDialTimeout = 10 * time.Second
)

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Client. Zero fields take defaults.
type Options struct {
	URL         string
	Backoff     Backoff
	DialTimeout time.Duration
	// QueueSize bounds envelopes held while no message handler is attached.
	QueueSize int

	Dial      DialFunc
	Scheduler Scheduler
	Now       func() time.Time
}

// Client manages a single logical connection to the relay endpoint.
type Client struct {
	url         string
	backoff     Backoff
	dialTimeout time.Duration
	queueSize   int
	dial        DialFunc
	sched       Scheduler
	now         func() time.Time

	mu          sync.Mutex
	state       State
	conn        Conn
	gen         uint64 // bumped on every connect and disconnect
	attempts    int
	timer       Timer
	timerID     uint64
	intentional bool
	dialCancel  context.CancelFunc

	last    wire.Envelope
	hasLast bool
	queue   []wire.Envelope

	onMessage func(wire.Envelope)
	onState   func(State)
}

// New creates a disconnected client.
func New(opts Options) *Client {
	c := &Client{
		url:         opts.URL,
		backoff:     opts.Backoff,
		dialTimeout: opts.DialTimeout,
		queueSize:   opts.QueueSize,
		dial:        opts.Dial,
		sched:       opts.Scheduler,
		now:         opts.Now,
		state:       Disconnected,
	}
	if c.dialTimeout <= 0 {
		c.dialTimeout = defaultDialTimeout
	}
	if c.queueSize <= 0 {
		c.queueSize = defaultQueueSize
	}
	if c.dial == nil {
		c.dial = DialWebsocket
	}
	if c.sched == nil {
		c.sched = realScheduler{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// OnMessage sets the receiver for every decoded envelope. It is called
// from the read goroutine, outside the client lock.
func (c *Client) OnMessage(fn func(wire.Envelope)) {
	c.mu.Lock()
	c.onMessage = fn
	c.mu.Unlock()
}

// OnStateChange sets an observer for connection state transitions.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of reconnects scheduled since the last
// successful connect.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// LastMessage returns the most recently received envelope.
func (c *Client) LastMessage() (wire.Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.hasLast
}

// Connect dials the relay unless a connection is open or being opened. A
// failed handshake schedules a reconnect per the backoff and is also
// returned to the caller.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Connected || c.state == Connecting {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	c.intentional = false
	c.gen++
	gen := c.gen
	notify := c.setStateLocked(Connecting)
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	c.dialCancel = cancel
	c.mu.Unlock()
	notify()

	slog.Debug("client: connecting", "url", c.url)
	conn, err := c.dial(dialCtx, c.url)
	cancel()

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect ran while the handshake was in flight.
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close(true)
		}
		return nil
	}
	c.dialCancel = nil

	if err != nil {
		notify = c.setStateLocked(Disconnected)
		c.scheduleReconnectLocked()
		attempts := c.attempts
		c.mu.Unlock()
		notify()
		slog.Warn("client: connect failed", "url", c.url, "attempts", attempts, "error", err)
		return fmt.Errorf("client: connect %s: %w", c.url, err)
	}

	c.conn = conn
	c.attempts = 0
	notify = c.setStateLocked(Connected)
	var queued []wire.Envelope
	sink := c.onMessage
	if sink != nil {
		queued, c.queue = c.queue, nil
	}
	c.mu.Unlock()

	slog.Info("client: connected", "url", c.url)
	notify()
	for _, env := range queued {
		sink(env)
	}
	go c.readLoop(gen, conn)
	return nil
}

// Disconnect cancels any scheduled reconnect, then closes the connection
// cleanly. It never triggers a retry.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.stopTimerLocked()
	c.intentional = true
	c.gen++
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	conn := c.conn
	c.conn = nil
	c.attempts = 0
	notify := c.setStateLocked(Disconnected)
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(true); err != nil {
			slog.Debug("client: close failed", "error", err)
		}
	}
	notify()
	slog.Info("client: disconnected", "url", c.url)
}

// Send encodes msg as JSON and writes it. It reports false instead of
// failing when the client is not connected or the write fails.
func (c *Client) Send(msg any) bool {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()
	if state != Connected || conn == nil {
		slog.Warn("client: send while not connected", "state", state.String())
		return false
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("client: send encode failed", "error", err)
		return false
	}
	if err := conn.WriteText(data); err != nil {
		slog.Warn("client: send failed", "error", err)
		return false
	}
	return true
}

func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadText()
		if err != nil {
			c.handleClose(gen, conn, err)
			return
		}
		c.receive(data)
	}
}

// receive publishes a frame whatever the current state is: a frame read
// just before a close must not be lost.
func (c *Client) receive(data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		slog.Warn("client: dropping malformed frame", "bytes", len(data), "error", err)
		return
	}
	env.Stamp(c.now())

	c.mu.Lock()
	c.last = env
	c.hasLast = true
	sink := c.onMessage
	if sink == nil {
		c.queue = append(c.queue, env)
		if len(c.queue) > c.queueSize {
			c.queue = c.queue[len(c.queue)-c.queueSize:]
		}
	}
	c.mu.Unlock()

	if sink != nil {
		sink(env)
	}
}

func (c *Client) handleClose(gen uint64, conn Conn, err error) {
	c.mu.Lock()
	if gen != c.gen || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil

	final := isFinalClose(err)
	next := Error
	if _, isClose := closeStatus(err); isClose {
		next = Disconnected
	}
	notify := c.setStateLocked(next)
	if !final {
		c.scheduleReconnectLocked()
	}
	attempts := c.attempts
	c.mu.Unlock()

	_ = conn.Close(false)
	notify()
	if final {
		slog.Info("client: relay closed connection", "url", c.url)
	} else {
		slog.Warn("client: connection lost", "url", c.url, "state", next.String(), "attempts", attempts, "error", err)
	}
}

// scheduleReconnectLocked arms the backoff timer unless the close was
// intentional or the attempt ceiling is reached.
func (c *Client) scheduleReconnectLocked() {
	if c.intentional {
		return
	}
	if c.attempts >= c.backoff.MaxAttempts {
		slog.Warn("client: giving up reconnect", "url", c.url, "attempts", c.attempts)
		return
	}
	delay := c.backoff.Delay(c.attempts)
	c.attempts++
	c.timerID++
	id := c.timerID
	slog.Info("client: reconnect scheduled", "url", c.url, "attempt", c.attempts, "delay_ms", delay.Milliseconds())
	c.timer = c.sched.AfterFunc(delay, func() { c.fireReconnect(id) })
}

func (c *Client) fireReconnect(id uint64) {
	c.mu.Lock()
	if c.timer == nil || c.timerID != id {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	if err := c.Connect(context.Background()); err != nil {
		slog.Debug("client: reconnect attempt failed", "error", err)
	}
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerID++
}

// setStateLocked records s and returns a function that notifies the
// observer; call it after releasing the lock.
func (c *Client) setStateLocked(s State) func() {
	if c.state == s {
		return func() {}
	}
	c.state = s
	fn := c.onState
	if fn == nil {
		return func() {}
	}
	return func() { fn(s) }
}
