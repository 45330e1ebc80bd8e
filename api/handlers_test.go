package api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/avenlane/jobqueue/admission"
	"github.com/avenlane/jobqueue/api"
	"github.com/avenlane/jobqueue/authn"
	"github.com/avenlane/jobqueue/eventbus"
	"github.com/avenlane/jobqueue/job"
	"github.com/avenlane/jobqueue/metrics"
	"github.com/avenlane/jobqueue/service"
	"github.com/avenlane/jobqueue/store/pg"
	"github.com/avenlane/jobqueue/tenant"

	_ "modernc.org/sqlite"
)

func newTestServer(t *testing.T) (http.Handler, *authn.Authenticator) {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	ctx := context.Background()
	if err := pg.InitDB(ctx, db); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO tenants (id, credential_fingerprint, max_concurrent_jobs, rate_limit_per_minute) VALUES (?, ?, ?, ?)",
		"tenant-a", "fp", 5, 100); err != nil {
		t.Fatal(err)
	}

	s := pg.NewStore(db)
	a := admission.New(s)
	bus := eventbus.New(slog.Default())
	svc := service.New(a, s, bus)
	srv := api.NewServer(svc, s, bus, nil)
	auth := authn.New([]byte("test-secret"), s)

	return api.Handler(srv, auth, slog.Default()), auth
}

func authedRequest(t *testing.T, auth *authn.Authenticator, method, path string, body []byte) *http.Request {
	t.Helper()
	tok, err := auth.IssueToken(&tenant.Tenant{Id: "tenant-a", CredentialFingerprint: "fp"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func TestSubmitAndGetJobEndToEnd(t *testing.T) {
	h, auth := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"payload": map[string]any{"x": 1}})
	req := authedRequest(t, auth, http.MethodPost, "/api/v1/jobs", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created job.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	getReq := authedRequest(t, auth, http.MethodGet, "/api/v1/jobs/"+created.Id.String(), nil)
	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getRec.Code, getRec.Body.String())
	}
}

func TestSubmitJobWithoutTokenUnauthorized(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader([]byte(`{"payload":{}}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGetMissingJobNotFound(t *testing.T) {
	h, auth := newTestServer(t)
	req := authedRequest(t, auth, http.MethodGet, "/api/v1/jobs/"+"00000000-0000-0000-0000-000000000000", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListJobsAndDLQAndMetrics(t *testing.T) {
	h, auth := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"payload": map[string]any{}})
	submitReq := authedRequest(t, auth, http.MethodPost, "/api/v1/jobs", body)
	submitRec := httptest.NewRecorder()
	h.ServeHTTP(submitRec, submitReq)
	if submitRec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", submitRec.Code)
	}

	listReq := authedRequest(t, auth, http.MethodGet, "/api/v1/jobs?status=PENDING", nil)
	listRec := httptest.NewRecorder()
	h.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", listRec.Code)
	}

	dlqReq := authedRequest(t, auth, http.MethodGet, "/api/v1/jobs/dlq", nil)
	dlqRec := httptest.NewRecorder()
	h.ServeHTTP(dlqRec, dlqReq)
	if dlqRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", dlqRec.Code)
	}

	metricsReq := authedRequest(t, auth, http.MethodGet, "/api/v1/jobs/metrics/summary", nil)
	metricsRec := httptest.NewRecorder()
	h.ServeHTTP(metricsRec, metricsReq)
	if metricsRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", metricsRec.Code)
	}
	var sum metrics.Summary
	if err := json.Unmarshal(metricsRec.Body.Bytes(), &sum); err != nil {
		t.Fatal(err)
	}
	if sum.Pending != 1 || sum.Total != 1 {
		t.Fatalf("expected 1 pending job scoped to tenant, got %+v", sum)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
