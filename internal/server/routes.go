package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	v1 "github.com/gosuda/wardline/internal/api/v1"
	"github.com/gosuda/wardline/internal/api/ws"
)

func registerAPIRoutes(api huma.API, reports v1.ReportService) {
	v1.RegisterReportRoutes(api, reports)
}

func registerWSRoutes(r chi.Router, hub *ws.Hub) {
	r.Get("/reports", hub.ServeReports)
}

func registerOpsRoutes(r chi.Router, s *Server) {
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)

	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
