package api

import (
	"context"
	"math/rand"
	"net/http"

	"github.com/bizmon/eventrelay/internal/bus"
	"github.com/bizmon/eventrelay/internal/channel"
	"github.com/bizmon/eventrelay/internal/relay"
	"github.com/danielgtaylor/huma/v2"
)

func registerHealthHandlers(api huma.API) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type wsInfoOutput struct {
		Body struct {
			WebSocket    bool     `json:"websocket"`
			Origins      []string `json:"origins"`
			CookieNeeded bool     `json:"cookie_needed"`
			Entropy      uint32   `json:"entropy"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "ws-info", Method: http.MethodGet, Path: "/ws/info", Summary: "Transport negotiation info", Tags: []string{"Relay"}},
		func(ctx context.Context, input *struct{}) (*wsInfoOutput, error) {
			out := &wsInfoOutput{}
			out.Body.WebSocket = true
			out.Body.Origins = []string{"*:*"}
			out.Body.Entropy = rand.Uint32()
			return out, nil
		})
}

func registerRelayHandlers(api huma.API, svc RelayService) {
	if svc == nil {
		return
	}
	type relayStatusOutput struct {
		Body struct {
			Channels []string `json:"channels"`
			relay.Stats
		}
	}
	huma.Register(api, huma.Operation{OperationID: "relay-status", Method: http.MethodGet, Path: "/api/v1/relay/status", Summary: "Relay connection and broadcast counters", Tags: []string{"Relay"}},
		func(ctx context.Context, input *struct{}) (*relayStatusOutput, error) {
			st, err := svc.Stats(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &relayStatusOutput{}
			out.Body.Channels = channel.Names(svc.Channels()...)
			out.Body.Stats = st
			return out, nil
		})
}

func registerCacheHandlers(api huma.API, cache CacheProber) {
	if cache == nil {
		return
	}
	type cacheStatusOutput struct {
		Status int
		Body   bus.Status
	}
	huma.Register(api, huma.Operation{OperationID: "cache-status", Method: http.MethodGet, Path: "/api/v1/cache/status", Summary: "Backend cache connectivity", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*cacheStatusOutput, error) {
			st, err := cache.Probe(ctx)
			out := &cacheStatusOutput{Status: http.StatusOK, Body: st}
			if err != nil {
				out.Status = http.StatusInternalServerError
			}
			return out, nil
		})
}
