package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/avenlane/jobqueue/admission"
	"github.com/avenlane/jobqueue/eventbus"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/metrics"
	"github.com/avenlane/jobqueue/service"
	"github.com/avenlane/jobqueue/store"
)

// Server wires a JobService, an eventbus.Bus and a WebSocket Hub into
// the HTTP surface spec.md §6 requires. Prometheus metrics are
// registered independently (see cmd/jobqueue); Server only needs the
// bus to publish metrics_updated after computing an on-demand summary.
type Server struct {
	svc   *service.JobService
	store store.Store
	bus   *eventbus.Bus
	hub   *Hub
}

// NewServer builds a Server. hub may be nil, in which case WS /ws
// responds with 503 — callers that don't want a live dashboard feed can
// omit it.
func NewServer(svc *service.JobService, s store.Store, bus *eventbus.Bus, hub *Hub) *Server {
	return &Server{svc: svc, store: s, bus: bus, hub: hub}
}

type submitJobRequest struct {
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	MaxRetries     *uint32         `json:"max_retries,omitempty"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	t := TenantFromContext(r.Context())
	var req submitJobRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.MaxRetries != nil && *req.MaxRetries > 10 {
		WriteError(w, http.StatusBadRequest, "max_retries must be between 0 and 10")
		return
	}
	maxRetries := uint32(3)
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	j, err := s.svc.SubmitJob(r.Context(), t.Id, req.Payload, req.IdempotencyKey, maxRetries)
	switch {
	case err == nil:
		// A duplicate idempotency key resolves to the pre-existing job,
		// not a new one; the wire contract still reports 201 either way.
		WriteJSON(w, http.StatusCreated, j)
	case errors.Is(err, admission.ErrUnknownTenant):
		WriteError(w, http.StatusNotFound, "unknown tenant")
	case isAdmissionRejection(err):
		WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, store.ErrTransientStore):
		WriteError(w, http.StatusServiceUnavailable, "store temporarily unavailable")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	t := TenantFromContext(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	j, err := s.svc.GetJob(r.Context(), t.Id, id)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, j)
	case err == service.ErrJobNotFound:
		WriteError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, store.ErrTransientStore):
		WriteError(w, http.StatusServiceUnavailable, "store temporarily unavailable")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	t := TenantFromContext(r.Context())
	status := job.Unknown
	if raw := r.URL.Query().Get("status"); raw != "" {
		parsed, err := job.ParseStatus(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status = parsed
	}
	limit := parseLimit(r, 100)

	jobs, err := s.svc.ListByStatus(r.Context(), t.Id, status, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "total": len(jobs)})
}

func (s *Server) handleListDLQ(w http.ResponseWriter, r *http.Request) {
	t := TenantFromContext(r.Context())
	limit := parseLimit(r, 100)

	entries, err := s.svc.ListDLQ(r.Context(), t.Id, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": len(entries)})
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	t := TenantFromContext(r.Context())
	sum, err := metrics.ComputeSummary(r.Context(), s.store, t.Id)
	if err != nil {
		if errors.Is(err, store.ErrTransientStore) {
			WriteError(w, http.StatusServiceUnavailable, "store temporarily unavailable")
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.bus != nil {
		s.bus.Publish(r.Context(), eventbus.TopicMetricsUpdated, sum)
	}
	WriteJSON(w, http.StatusOK, sum)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	if _, err := s.store.CountByStatus(r.Context(), job.Pending, ""); err != nil {
		WriteError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		WriteError(w, http.StatusServiceUnavailable, "websocket feed not configured")
		return
	}
	s.hub.ServeWS(w, r)
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func isAdmissionRejection(err error) bool {
	return errors.Is(err, admission.ErrQuotaExceeded) || errors.Is(err, admission.ErrRateLimited)
}
