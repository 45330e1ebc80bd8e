package api

import (
	"log/slog"
	"net/http"

	"github.com/avenlane/jobqueue/authn"
)

// Handler builds the complete HTTP handler: every spec.md §6 route
// wrapped in the middleware stack. auth authenticates every /api/v1/*
// route; /health and /ws are reachable without a bearer token — health
// is a liveness probe and the WS handshake itself carries no body to
// authenticate against in this wire contract.
func Handler(s *Server, auth *authn.Authenticator, log *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/jobs", s.handleSubmitJob)
	api.HandleFunc("GET /api/v1/jobs", s.handleListJobs)
	api.HandleFunc("GET /api/v1/jobs/dlq", s.handleListDLQ)
	api.HandleFunc("GET /api/v1/jobs/metrics/summary", s.handleMetricsSummary)
	api.HandleFunc("GET /api/v1/jobs/{id}", s.handleGetJob)
	mux.Handle("/api/v1/", chain(api, authMiddleware(auth)))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)

	return chain(mux, recoveryMiddleware(log), corsMiddleware, correlationIDMiddleware, loggingMiddleware(log))
}
