package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bizmon/eventrelay/internal/bus"
	"github.com/bizmon/eventrelay/internal/channel"
	"github.com/bizmon/eventrelay/internal/relay"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RelayService reports on the running relay.
type RelayService interface {
	Stats(ctx context.Context) (relay.Stats, error)
	Channels() []channel.Channel
}

// CacheProber checks the backend store the relay subscribes to.
type CacheProber interface {
	Probe(ctx context.Context) (bus.Status, error)
}

// Deps are the collaborators the HTTP surface exposes.
type Deps struct {
	Relay RelayService
	Cache CacheProber
	// WebSocket serves GET /ws. Nil leaves the route unmounted.
	WebSocket      http.Handler
	AllowedOrigins []string
}

func NewServer(deps Deps) http.Handler {
	origins := NewOrigins(deps.AllowedOrigins)

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)
	router.Use(origins.Handler())

	cfg := huma.DefaultConfig("Event Relay API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if deps.WebSocket != nil {
		router.Get("/ws", deps.WebSocket.ServeHTTP)
	}

	registerHealthHandlers(api)
	registerRelayHandlers(api, deps.Relay)
	registerCacheHandlers(api, deps.Cache)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout(err.Error())
	}
	var coded *relay.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case relay.CodeBusUnavailable:
			return huma.Error502BadGateway(coded.Message)
		case relay.CodeHubStopped:
			return huma.Error503ServiceUnavailable(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
