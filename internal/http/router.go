// Package httpapi assembles the top-level router from feature handlers.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registrar is a feature handler that mounts its own routes and middleware.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires all public endpoints. Feature routers carry their own
// middleware chains; only surfaces shared by every feature live here.
func NewRouter(features ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	for _, feature := range features {
		feature.Register(r)
	}
	return r
}
