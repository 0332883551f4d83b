package relay

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

// ReadyState mirrors the lifecycle of a transport session.
type ReadyState int32

const (
	StateConnecting ReadyState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ReadyState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errNotOpen = errors.New("relay: connection not open")

// Conn is one live client session as the hub sees it.
type Conn interface {
	ID() string
	State() ReadyState
	WriteText(data []byte) error
	Close() error
}

// wsConn is a server-side websocket session.
type wsConn struct {
	id           string
	remote       string
	conn         net.Conn
	writeTimeout time.Duration
	state        atomic.Int32

	writeMu sync.Mutex
	once    sync.Once
}

func newWSConn(conn net.Conn, remote string, writeTimeout time.Duration) *wsConn {
	c := &wsConn{
		id:           uuid.NewString(),
		remote:       remote,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
	c.state.Store(int32(StateOpen))
	return c
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) State() ReadyState { return ReadyState(c.state.Load()) }

func (c *wsConn) WriteText(data []byte) error {
	if c.State() != StateOpen {
		return errNotOpen
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			c.markClosed()
			return err
		}
	}
	if err := wsutil.WriteServerText(c.conn, data); err != nil {
		c.markClosed()
		return err
	}
	return nil
}

// readFrame returns the next data frame sent by the client. Control frames
// are answered under the write lock.
func (c *wsConn) readFrame() ([]byte, error) {
	data, _, err := wsutil.ReadClientData(lockedWriter{c})
	return data, err
}

// Close tells the client the relay is going away, then closes the socket.
func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusGoingAway, "relay closing"))
		c.writeMu.Unlock()
		err = c.conn.Close()
		c.state.Store(int32(StateClosed))
	})
	return err
}

func (c *wsConn) controlTimeout() time.Duration {
	if c.writeTimeout > 0 {
		return c.writeTimeout
	}
	return 5 * time.Second
}

func (c *wsConn) markClosed() {
	c.state.Store(int32(StateClosed))
}

type lockedWriter struct {
	c *wsConn
}

func (w lockedWriter) Read(p []byte) (int, error) {
	return w.c.conn.Read(p)
}

// Write sends control replies (pong, close) under the same deadline as data
// frames so a client that stops reading cannot hold the write lock.
func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	if err := w.c.conn.SetWriteDeadline(time.Now().Add(w.c.controlTimeout())); err != nil {
		w.c.markClosed()
		return 0, err
	}
	n, err := w.c.conn.Write(p)
	if err != nil {
		w.c.markClosed()
	}
	return n, err
}
