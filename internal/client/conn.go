package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn is one established session with the relay.
type Conn interface {
	// ReadText blocks until the next data frame arrives.
	ReadText() ([]byte, error)
	WriteText(data []byte) error
	// Close ends the session. A clean close sends a normal-closure frame first.
	Close(clean bool) error
}

// DialFunc opens a session to url.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// wsConn is a client-side websocket session.
type wsConn struct {
	conn         net.Conn
	rw           *readWriter
	writeTimeout time.Duration

	writeMu sync.Mutex
	once    sync.Once
}

// readWriter reads bytes the dialer buffered past the handshake before
// reading from the socket. Control replies written by the frame reader
// share the session write lock and its deadline.
type readWriter struct {
	conn    net.Conn
	br      *bufio.Reader
	mu      *sync.Mutex
	timeout time.Duration
}

func (rw *readWriter) Read(p []byte) (int, error) {
	if rw.br != nil && rw.br.Buffered() > 0 {
		return rw.br.Read(p)
	}
	return rw.conn.Read(p)
}

func (rw *readWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if err := rw.conn.SetWriteDeadline(time.Now().Add(rw.timeout)); err != nil {
		return 0, err
	}
	return rw.conn.Write(p)
}

const defaultWriteTimeout = 10 * time.Second

// DialWebsocket dials url with the gobwas dialer.
func DialWebsocket(ctx context.Context, url string) (Conn, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}
	return newWSConn(conn, br, defaultWriteTimeout), nil
}

func newWSConn(conn net.Conn, br *bufio.Reader, writeTimeout time.Duration) *wsConn {
	c := &wsConn{conn: conn, writeTimeout: writeTimeout}
	c.rw = &readWriter{conn: conn, br: br, mu: &c.writeMu, timeout: writeTimeout}
	return c
}

func (c *wsConn) ReadText() ([]byte, error) {
	data, _, err := wsutil.ReadServerData(c.rw)
	return data, err
}

func (c *wsConn) WriteText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return wsutil.WriteClientText(c.conn, data)
}

func (c *wsConn) Close(clean bool) error {
	var err error
	c.once.Do(func() {
		if clean {
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "client disconnect")
			if werr := wsutil.WriteClientMessage(c.conn, ws.OpClose, body); werr != nil {
				err = werr
			}
			c.writeMu.Unlock()
		}
		if cerr := c.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

// closeStatus extracts the status code of a close frame, if err carries one.
func closeStatus(err error) (ws.StatusCode, bool) {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return closed.Code, true
	}
	return 0, false
}

// isFinalClose reports whether the peer ended the session on purpose and
// does not expect the client to come back. A going-away close (relay
// restart) is not final.
func isFinalClose(err error) bool {
	code, ok := closeStatus(err)
	return ok && code == ws.StatusNormalClosure
}
