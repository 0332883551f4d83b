package client

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bizmon/eventrelay/internal/channel"
	"github.com/bizmon/eventrelay/internal/wire"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relayStub upgrades one connection, sends frames, reads one client frame
// and then closes with the given status.
func relayStub(t *testing.T, frames []string, closeCode ws.StatusCode, received chan<- string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		for _, f := range frames {
			if err := wsutil.WriteServerText(conn, []byte(f)); err != nil {
				t.Errorf("write: %v", err)
				return
			}
		}
		data, _, err := wsutil.ReadClientData(conn)
		if err == nil {
			received <- string(data)
		}
		body := ws.NewCloseFrameBody(closeCode, "bye")
		_ = wsutil.WriteServerMessage(conn, ws.OpClose, body)
		time.Sleep(20 * time.Millisecond)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketSessionEndToEnd(t *testing.T) {
	received := make(chan string, 1)
	srv := relayStub(t, []string{
		`{"type":"scan_monitor","data":{"userId":"u1","scanType":"barcode"},"timestamp":1700000000000}`,
	}, ws.StatusNormalClosure, received)
	defer srv.Close()

	s := &fakeScheduler{}
	c := New(Options{URL: wsURL(srv), Backoff: testBackoff(3), Scheduler: s})
	got := make(chan wire.Envelope, 1)
	c.OnMessage(func(env wire.Envelope) { got <- env })

	require.NoError(t, c.Connect(context.Background()))

	select {
	case env := <-got:
		assert.Equal(t, channel.Scan, env.Type)
		assert.Equal(t, map[string]any{"userId": "u1", "scanType": "barcode"}, env.Data)
		assert.Equal(t, int64(1700000000000), env.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope from relay")
	}

	require.True(t, c.Send(map[string]string{"op": "hello"}))
	select {
	case msg := <-received:
		assert.JSONEq(t, `{"op":"hello"}`, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not receive client frame")
	}

	require.Eventually(t, func() bool { return c.State() == Disconnected }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, s.count(), "normal closure must not schedule a reconnect")
}

func TestWebsocketDialFailureSchedulesReconnect(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(srv)
	srv.Close()

	s := &fakeScheduler{}
	c := New(Options{URL: url, Backoff: testBackoff(3), Scheduler: s})

	require.Error(t, c.Connect(context.Background()))
	assert.Equal(t, Disconnected, c.State())
	require.Equal(t, 1, s.count())
	assert.Equal(t, time.Second, s.last().d)
}

// A relay that pings and then stops reading must not leave Disconnect or
// Send waiting on the write lock.
func TestStalledPongDoesNotBlockClose(t *testing.T) {
	server, peer := net.Pipe()
	defer server.Close()
	c := newWSConn(peer, nil, 100*time.Millisecond)

	readDone := make(chan error, 1)
	go func() {
		_, err := c.ReadText()
		readDone <- err
	}()
	require.NoError(t, wsutil.WriteServerMessage(server, ws.OpPing, nil))

	select {
	case err := <-readDone:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pong write did not time out")
	}

	sendDone := make(chan error, 1)
	go func() { sendDone <- c.WriteText([]byte(`{"type":"chat_monitor"}`)) }()
	select {
	case err := <-sendDone:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WriteText blocked on a stalled relay")
	}

	closeDone := make(chan struct{})
	go func() {
		_ = c.Close(true)
		close(closeDone)
	}()
	select {
	case <-closeDone:
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked on a stalled relay")
	}
}
