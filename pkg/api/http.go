// Package api assembles the HTTP surface: thread CRUD, the chat endpoints,
// health probes, and metrics, behind the logging/CORS/rate-limit gateway.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatrelay/pkg/api/handlers"
	"chatrelay/pkg/relay"
	"chatrelay/pkg/store"
	"chatrelay/pkg/telemetry"
	"chatrelay/pkg/utils"
)

// Deps carries everything the router needs.
type Deps struct {
	Store   store.Store
	Relay   *relay.Relay
	Version string
	Gateway GatewayOptions
}

// NewRouter builds the full handler tree.
func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(telemetry.Middleware)

	handlers.RegisterThreads(r, d.Store)
	handlers.RegisterChat(r, d.Relay)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": d.Version,
		})
	}).Methods(http.MethodGet)

	// readyz is where a misconfigured backend shows up; chat requests
	// themselves degrade to the fallback silently.
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := d.Store.ListThreads(); err != nil {
			utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{
			"status":  "ready",
			"backend": d.Relay.Mode(),
		})
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return Gateway(d.Gateway)(r)
}
