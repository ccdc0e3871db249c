package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/services"
)

type stubSystemService struct {
	reportFn func(context.Context) (services.SystemHealthReport, error)
	listFn   func(context.Context, services.AuditLogFilter) (domain.CursorPage[services.AuditLogEntry], error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (services.SystemHealthReport, error) {
	if s.reportFn != nil {
		return s.reportFn(ctx)
	}
	return services.SystemHealthReport{}, errors.New("not implemented")
}

func (s *stubSystemService) ListAuditLogs(ctx context.Context, filter services.AuditLogFilter) (domain.CursorPage[services.AuditLogEntry], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.AuditLogEntry]{}, nil
}

func TestHealthHandlersHealthz(t *testing.T) {
	handler := NewHealthHandlers(nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["status"] != domain.HealthStatusOK {
		t.Fatalf("unexpected status: %v", payload["status"])
	}
	if payload["uptime"] == "" {
		t.Fatal("expected uptime to be reported")
	}
}

func TestHealthHandlersReadyzHealthy(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	system := &stubSystemService{
		reportFn: func(ctx context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond, CheckedAt: now},
				},
				Version:     "1.4.0",
				CommitSHA:   "abc123",
				Environment: "staging",
				Uptime:      90 * time.Second,
				GeneratedAt: now,
			}, nil
		},
	}

	handler := NewHealthHandlers(system)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload readinessPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Status != domain.HealthStatusOK {
		t.Fatalf("unexpected status: %s", payload.Status)
	}
	if payload.Version != "1.4.0" || payload.CommitSHA != "abc123" || payload.Environment != "staging" {
		t.Fatalf("unexpected build info: %#v", payload)
	}
	check, ok := payload.Checks["firestore"]
	if !ok {
		t.Fatalf("expected firestore check, got %#v", payload.Checks)
	}
	if check.Status != domain.HealthStatusOK || check.LatencyMS != 12 {
		t.Fatalf("unexpected firestore check: %#v", check)
	}
}

func TestHealthHandlersReadyzDegraded(t *testing.T) {
	system := &stubSystemService{
		reportFn: func(ctx context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"secretmanager": {Status: domain.HealthStatusDegraded, Detail: "slow response"},
				},
			}, nil
		},
	}

	handler := NewHealthHandlers(system)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected degraded to still report 200, got %d", rr.Code)
	}

	var payload readinessPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload.Status != domain.HealthStatusDegraded {
		t.Fatalf("unexpected status: %s", payload.Status)
	}
}

func TestHealthHandlersReadyzError(t *testing.T) {
	system := &stubSystemService{
		reportFn: func(ctx context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded"},
				},
			}, nil
		},
	}

	handler := NewHealthHandlers(system)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestHealthHandlersReadyzReportFailure(t *testing.T) {
	system := &stubSystemService{
		reportFn: func(ctx context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{}, errors.New("collect failed")
		},
	}

	handler := NewHealthHandlers(system)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestHealthHandlersReadyzWithoutSystemService(t *testing.T) {
	handler := NewHealthHandlers(nil)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
