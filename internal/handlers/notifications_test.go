package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/platform/auth"
	"github.com/shopforge/fulfillment/internal/services"
)

type stubNotificationService struct {
	listFn        func(context.Context, services.ListNotificationsCommand) (domain.CursorPage[services.Notification], error)
	markReadFn    func(context.Context, string, string) (services.Notification, error)
	markAllReadFn func(context.Context, string) (int, error)
	countUnreadFn func(context.Context, string) (int, error)
}

func (s *stubNotificationService) List(ctx context.Context, cmd services.ListNotificationsCommand) (domain.CursorPage[services.Notification], error) {
	if s.listFn != nil {
		return s.listFn(ctx, cmd)
	}
	return domain.CursorPage[services.Notification]{}, nil
}

func (s *stubNotificationService) MarkRead(ctx context.Context, recipientID string, notificationID string) (services.Notification, error) {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, recipientID, notificationID)
	}
	return services.Notification{}, errors.New("not implemented")
}

func (s *stubNotificationService) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, recipientID)
	}
	return 0, errors.New("not implemented")
}

func (s *stubNotificationService) CountUnread(ctx context.Context, recipientID string) (int, error) {
	if s.countUnreadFn != nil {
		return s.countUnreadFn(ctx, recipientID)
	}
	return 0, errors.New("not implemented")
}

func newNotificationRouter(service services.NotificationService) chi.Router {
	handler := NewNotificationHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/notifications", handler.Routes)
	return router
}

func TestNotificationHandlersList(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	var captured services.ListNotificationsCommand
	service := &stubNotificationService{
		listFn: func(ctx context.Context, cmd services.ListNotificationsCommand) (domain.CursorPage[services.Notification], error) {
			captured = cmd
			return domain.CursorPage[services.Notification]{
				Items: []services.Notification{
					{
						ID:          "ntf_1",
						RecipientID: "user-1",
						Channel:     domain.ChannelUser,
						OrderID:     "ord_123",
						OrderStatus: domain.OrderStatusShipped,
						Message:     "Your order OF-2026-000123 has been shipped.",
						CreatedAt:   now,
					},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	router := newNotificationRouter(service)
	req := authenticatedRequest(http.MethodGet, "/notifications?unread_only=true&page_size=30", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.RecipientID != "user-1" || captured.Channel != domain.ChannelUser {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if !captured.UnreadOnly {
		t.Fatal("expected unread_only to be forwarded")
	}
	if captured.Pagination.PageSize != 30 {
		t.Fatalf("unexpected page size: %d", captured.Pagination.PageSize)
	}

	var resp notificationListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(resp.Items))
	}
	item := resp.Items[0]
	if item.ID != "ntf_1" || item.Channel != "user" || item.OrderStatus != "shipped" {
		t.Fatalf("unexpected notification payload: %#v", item)
	}
	if item.Message != "Your order OF-2026-000123 has been shipped." {
		t.Fatalf("unexpected message: %s", item.Message)
	}
}

func TestNotificationHandlersListAdminChannelRequiresAdminRole(t *testing.T) {
	var captured services.ListNotificationsCommand
	service := &stubNotificationService{
		listFn: func(ctx context.Context, cmd services.ListNotificationsCommand) (domain.CursorPage[services.Notification], error) {
			captured = cmd
			return domain.CursorPage[services.Notification]{}, nil
		},
	}

	router := newNotificationRouter(service)

	req := authenticatedRequest(http.MethodGet, "/notifications?channel=admin", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Channel != domain.ChannelUser {
		t.Fatalf("expected non-admins to stay on the user channel, got %s", captured.Channel)
	}

	req = authenticatedRequest(http.MethodGet, "/notifications?channel=admin", nil, &auth.Identity{UID: "ops-1", Roles: []string{"admin"}})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Channel != domain.ChannelAdmin {
		t.Fatalf("expected admin channel for admins, got %s", captured.Channel)
	}
}

func TestNotificationHandlersUnreadCount(t *testing.T) {
	service := &stubNotificationService{
		countUnreadFn: func(ctx context.Context, recipientID string) (int, error) {
			if recipientID != "user-1" {
				t.Fatalf("unexpected recipient %s", recipientID)
			}
			return 4, nil
		},
	}

	router := newNotificationRouter(service)
	req := authenticatedRequest(http.MethodGet, "/notifications/unread-count", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp unreadCountResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.UnreadCount != 4 {
		t.Fatalf("expected 4 unread, got %d", resp.UnreadCount)
	}
}

func TestNotificationHandlersMarkRead(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	service := &stubNotificationService{
		markReadFn: func(ctx context.Context, recipientID string, notificationID string) (services.Notification, error) {
			if recipientID != "user-1" || notificationID != "ntf_1" {
				t.Fatalf("unexpected arguments: %s %s", recipientID, notificationID)
			}
			return services.Notification{
				ID:          "ntf_1",
				RecipientID: "user-1",
				Channel:     domain.ChannelUser,
				Read:        true,
				CreatedAt:   now,
				ReadAt:      &now,
			}, nil
		},
	}

	router := newNotificationRouter(service)
	req := authenticatedRequest(http.MethodPost, "/notifications/ntf_1/read", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp notificationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if !resp.Notification.Read || resp.Notification.ReadAt == "" {
		t.Fatalf("expected read state, got %#v", resp.Notification)
	}
}

func TestNotificationHandlersMarkReadNotFound(t *testing.T) {
	service := &stubNotificationService{
		markReadFn: func(ctx context.Context, recipientID string, notificationID string) (services.Notification, error) {
			return services.Notification{}, services.ErrNotificationNotFound
		},
	}

	router := newNotificationRouter(service)
	req := authenticatedRequest(http.MethodPost, "/notifications/ntf_missing/read", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var envelope map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if envelope["error"] != "notification_not_found" {
		t.Fatalf("unexpected error code: %v", envelope["error"])
	}
}

func TestNotificationHandlersMarkAllRead(t *testing.T) {
	service := &stubNotificationService{
		markAllReadFn: func(ctx context.Context, recipientID string) (int, error) {
			return 3, nil
		},
	}

	router := newNotificationRouter(service)
	req := authenticatedRequest(http.MethodPost, "/notifications/read-all", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp markAllReadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Updated != 3 {
		t.Fatalf("expected 3 updated, got %d", resp.Updated)
	}
}

func TestNotificationHandlersUnauthenticated(t *testing.T) {
	router := newNotificationRouter(&stubNotificationService{})
	req := httptest.NewRequest(http.MethodGet, "/notifications", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}
