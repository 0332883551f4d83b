package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// Origins is the cross-origin allow-list shared by the HTTP routes and the
// websocket upgrade. An entry of "*" allows every origin.
type Origins struct {
	any   bool
	exact map[string]bool
}

func NewOrigins(list []string) *Origins {
	o := &Origins{exact: make(map[string]bool, len(list))}
	for _, s := range list {
		s = strings.TrimRight(strings.TrimSpace(s), "/")
		switch s {
		case "":
		case "*":
			o.any = true
		default:
			o.exact[strings.ToLower(s)] = true
		}
	}
	return o
}

// Allowed reports whether origin may talk to the relay.
func (o *Origins) Allowed(origin string) bool {
	if o.any {
		return true
	}
	return o.exact[strings.ToLower(strings.TrimRight(origin, "/"))]
}

// Handler returns the CORS middleware. Credentials are never allowed.
func (o *Origins) Handler() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return o.Allowed(origin)
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
