package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/repositories"
)

type stubAuditRepo struct {
	entries   []domain.AuditLogEntry
	appendErr error

	listFilter repositories.AuditLogFilter
	listResp   domain.CursorPage[domain.AuditLogEntry]
	listErr    error
}

func (s *stubAuditRepo) Append(_ context.Context, entry domain.AuditLogEntry) error {
	s.entries = append(s.entries, entry)
	return s.appendErr
}

func (s *stubAuditRepo) List(_ context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	s.listFilter = filter
	return s.listResp, s.listErr
}

type captureAuditLogger struct {
	warnings []string
}

func (c *captureAuditLogger) Warnf(format string, args ...any) {
	c.warnings = append(c.warnings, strings.TrimSpace(format))
}

func TestAuditLogServiceRecordBuildsStatusDiff(t *testing.T) {
	repo := &stubAuditRepo{}
	logger := &captureAuditLogger{}
	fixed := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: repo,
		Clock: func() time.Time {
			return fixed
		},
		Logger:   logger,
		HashSalt: "ops-rotation-9",
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	record := AuditLogRecord{
		Actor:      "  staff:admin-7  ",
		ActorType:  "Staff",
		Action:     " " + AuditActionReturnApproved + " ",
		TargetRef:  " /orders/order-42 ",
		FromStatus: "return_requested",
		ToStatus:   "returned",
		Reason:     "  damaged on arrival  ",
		Amount:     12500,
		Severity:   "Warn",
		RequestID:  " req-123 ",
		IPAddress:  "203.0.113.42 ",
		UserAgent:  "TestAgent\r\n",
		OccurredAt: fixed.Add(-time.Minute),
		Metadata:   map[string]any{"orderNumber": "OF-2025-000042"},
	}

	svc.Record(context.Background(), record)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]

	if entry.Actor != "staff:admin-7" {
		t.Fatalf("unexpected actor: %q", entry.Actor)
	}
	if entry.ActorType != "staff" {
		t.Fatalf("expected actor type staff, got %q", entry.ActorType)
	}
	if entry.Action != AuditActionReturnApproved {
		t.Fatalf("unexpected action: %q", entry.Action)
	}
	if entry.TargetRef != "/orders/order-42" {
		t.Fatalf("unexpected target ref: %q", entry.TargetRef)
	}
	if entry.Severity != "warn" {
		t.Fatalf("unexpected severity: %q", entry.Severity)
	}
	if entry.RequestID != "req-123" {
		t.Fatalf("expected trimmed request id, got %q", entry.RequestID)
	}
	if entry.UserAgent != "TestAgent" {
		t.Fatalf("expected sanitized user agent, got %q", entry.UserAgent)
	}
	expectedTime := fixed.Add(-time.Minute)
	if !entry.CreatedAt.Equal(expectedTime) {
		t.Fatalf("expected CreatedAt %s, got %s", expectedTime.Format(time.RFC3339Nano), entry.CreatedAt.Format(time.RFC3339Nano))
	}
	if entry.IPHash == "" || !strings.HasPrefix(entry.IPHash, hashPrefix) {
		t.Fatalf("expected hashed ip, got %q", entry.IPHash)
	}

	status, ok := entry.Diff["status"].(map[string]any)
	if !ok {
		t.Fatalf("expected status diff, got %#v", entry.Diff)
	}
	if status["before"] != "return_requested" || status["after"] != "returned" {
		t.Fatalf("unexpected status diff: %#v", status)
	}

	if reason, ok := entry.Metadata["reason"].(string); !ok || reason != "damaged on arrival" {
		t.Fatalf("expected trimmed reason in metadata, got %#v", entry.Metadata["reason"])
	}
	if amount, ok := entry.Metadata["amount"].(int64); !ok || amount != 12500 {
		t.Fatalf("expected amount in metadata, got %#v", entry.Metadata["amount"])
	}
	if number, ok := entry.Metadata["orderNumber"].(string); !ok || number != "OF-2025-000042" {
		t.Fatalf("expected order number preserved, got %#v", entry.Metadata["orderNumber"])
	}

	if len(logger.warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", logger.warnings)
	}
}

func TestAuditLogServiceRecordInfersActorType(t *testing.T) {
	repo := &stubAuditRepo{}
	svc, err := NewAuditLogService(AuditLogServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	cases := []struct {
		actor string
		want  string
	}{
		{actor: "system:membership-recompute", want: "system"},
		{actor: "user:user-9", want: "user"},
		{actor: "admin-3", want: "staff"},
	}
	for _, tc := range cases {
		svc.Record(context.Background(), AuditLogRecord{
			Actor:     tc.actor,
			Action:    AuditActionOrderConfirmed,
			TargetRef: "/orders/order-1",
		})
	}

	if len(repo.entries) != len(cases) {
		t.Fatalf("expected %d entries, got %d", len(cases), len(repo.entries))
	}
	for i, tc := range cases {
		if repo.entries[i].ActorType != tc.want {
			t.Fatalf("actor %q: expected actor type %q, got %q", tc.actor, tc.want, repo.entries[i].ActorType)
		}
	}
}

func TestAuditLogServiceRecordLogsOnFailure(t *testing.T) {
	repo := &stubAuditRepo{appendErr: errors.New("boom")}
	logger := &captureAuditLogger{}

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	svc.Record(context.Background(), AuditLogRecord{
		Actor:     "system",
		Action:    AuditActionDiscountUpdated,
		TargetRef: "/discounts/disc-1",
	})

	if len(logger.warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(logger.warnings))
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected append invoked once, got %d", len(repo.entries))
	}
}

func TestAuditLogServiceListDelegates(t *testing.T) {
	repo := &stubAuditRepo{
		listResp: domain.CursorPage[domain.AuditLogEntry]{
			Items:         []domain.AuditLogEntry{{ID: "log-9"}},
			NextPageToken: "page-2",
		},
	}

	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("new audit log service: %v", err)
	}

	page, err := svc.List(context.Background(), AuditLogFilter{
		TargetRef:  " /orders/ord_204 ",
		Actor:      " staff:ops-2 ",
		ActorType:  " STAFF ",
		Action:     " " + AuditActionOrderShipped + " ",
		Pagination: Pagination{PageSize: 40, PageToken: " cursor-77 "},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if page.NextPageToken != "page-2" || len(page.Items) != 1 || page.Items[0].ID != "log-9" {
		t.Fatalf("unexpected page: %#v", page)
	}

	got := repo.listFilter
	if got.TargetRef != "/orders/ord_204" || got.Actor != "staff:ops-2" {
		t.Fatalf("expected trimmed target and actor, got %#v", got)
	}
	if got.ActorType != "STAFF" {
		t.Fatalf("expected actor type case preserved, got %q", got.ActorType)
	}
	if got.Action != AuditActionOrderShipped {
		t.Fatalf("expected trimmed action, got %q", got.Action)
	}
	if got.Pagination.PageSize != 40 || got.Pagination.PageToken != " cursor-77 " {
		t.Fatalf("expected pagination passed through untouched, got %#v", got.Pagination)
	}
}
