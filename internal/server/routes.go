package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/tourneychat/internal/telemetry"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func (g *Gateway) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", HealthHandler)
	mux.HandleFunc("GET /healthz", HealthHandler)
	mux.HandleFunc("GET /readyz", g.ReadyHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("/ws", g.WebSocketHandler)
	mux.HandleFunc("GET /api/tournaments/{id}/chat/history", g.HistoryHandler)
	mux.HandleFunc("GET /test", TestPageHandler)
	return mux
}

// Handler returns the routes wrapped with correlation-id propagation.
func (g *Gateway) Handler() http.Handler {
	return telemetry.CorrelationMiddleware(g.SetupRoutes())
}
