package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RegisterHandlers mounts /metrics on mux, used by Server.Start.
func RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", Handler())
}
