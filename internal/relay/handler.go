package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gobwas/ws"
)

// WSHandler returns an http.HandlerFunc that upgrades the request to a
// websocket session and registers it with hub. Frames sent by the client
// are read and discarded; the session ends on the first read error.
// allowOrigin may be nil to accept any origin.
func WSHandler(hub *Hub, allowOrigin func(string) bool, writeTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && allowOrigin != nil && !allowOrigin(origin) {
			slog.Warn("relay: origin rejected", "origin", origin, "remote", r.RemoteAddr)
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		netConn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("relay: upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		c := newWSConn(netConn, r.RemoteAddr, writeTimeout)
		if !hub.Register(c) {
			_ = c.Close()
			return
		}
		defer hub.Unregister(c.ID())

		for {
			data, err := c.readFrame()
			if err != nil {
				c.markClosed()
				slog.Debug("relay: client read ended", "conn_id", c.ID(), "remote", c.remote, "error", err)
				return
			}
			slog.Debug("relay: ignoring client frame", "conn_id", c.ID(), "bytes", len(data))
		}
	}
}
