// Package netutil picks the relay's listen address.
package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
)

// Listen binds preferred. When it is taken and autoFallback is set, the
// first candidate that binds is used instead. The returned listener is
// already open, so the address cannot be lost between check and use.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	var firstErr error
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("listen %s: %w", preferred, err)
		}
		firstErr = err
		slog.Warn("preferred bind address unavailable, trying candidates", "addr", preferred, "error", err)
	}

	for _, addr := range candidates {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		slog.Debug("bind candidate unavailable", "addr", addr, "error", err)
	}

	if firstErr != nil {
		return nil, fmt.Errorf("no available relay bind address: %w", firstErr)
	}
	return nil, errors.New("no relay bind address configured")
}
