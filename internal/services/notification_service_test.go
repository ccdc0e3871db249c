package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/repositories"
)

type stubNotificationRepo struct {
	insertFn      func(context.Context, domain.Notification) error
	listFn        func(context.Context, repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error)
	markReadFn    func(context.Context, string, string, time.Time) (domain.Notification, error)
	markAllReadFn func(context.Context, string, time.Time) (int, error)
	countUnreadFn func(context.Context, string) (int, error)
	inserted      []domain.Notification
}

func (s *stubNotificationRepo) Insert(ctx context.Context, notification domain.Notification) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, notification)
	}
	s.inserted = append(s.inserted, notification)
	return nil
}

func (s *stubNotificationRepo) List(ctx context.Context, filter repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Notification]{}, nil
}

func (s *stubNotificationRepo) MarkRead(ctx context.Context, recipientID, notificationID string, readAt time.Time) (domain.Notification, error) {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, recipientID, notificationID, readAt)
	}
	return domain.Notification{}, &fakeRepoError{notFound: true}
}

func (s *stubNotificationRepo) MarkAllRead(ctx context.Context, recipientID string, readAt time.Time) (int, error) {
	if s.markAllReadFn != nil {
		return s.markAllReadFn(ctx, recipientID, readAt)
	}
	return 0, nil
}

func (s *stubNotificationRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	if s.countUnreadFn != nil {
		return s.countUnreadFn(ctx, recipientID)
	}
	return 0, nil
}

func newNotificationServiceForTest(t *testing.T, repo *stubNotificationRepo, now time.Time) NotificationService {
	t.Helper()
	svc, err := NewNotificationService(NotificationServiceDeps{
		Notifications: repo,
		Clock:         func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewNotificationService: %v", err)
	}
	return svc
}

func TestNotificationServiceListRequiresRecipient(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := newNotificationServiceForTest(t, &stubNotificationRepo{}, now)

	_, err := svc.List(context.Background(), ListNotificationsCommand{Channel: domain.ChannelUser})
	if !errors.Is(err, ErrNotificationInvalidInput) {
		t.Fatalf("err = %v, want ErrNotificationInvalidInput", err)
	}

	// The admin feed is shared; no recipient is needed.
	if _, err := svc.List(context.Background(), ListNotificationsCommand{Channel: domain.ChannelAdmin}); err != nil {
		t.Fatalf("admin channel list: %v", err)
	}
}

func TestNotificationServiceListPassesFilter(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubNotificationRepo{}
	var captured repositories.NotificationListFilter
	repo.listFn = func(_ context.Context, filter repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error) {
		captured = filter
		return domain.CursorPage[domain.Notification]{}, nil
	}
	svc := newNotificationServiceForTest(t, repo, now)

	_, err := svc.List(context.Background(), ListNotificationsCommand{
		RecipientID: "user-1",
		Channel:     domain.ChannelUser,
		UnreadOnly:  true,
		Pagination:  Pagination{PageSize: 10},
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if captured.RecipientID != "user-1" || !captured.UnreadOnly || captured.Pagination.PageSize != 10 {
		t.Fatalf("filter = %+v", captured)
	}
}

func TestNotificationServiceMarkRead(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubNotificationRepo{}
	repo.markReadFn = func(_ context.Context, recipientID, notificationID string, readAt time.Time) (domain.Notification, error) {
		if !readAt.Equal(now) {
			t.Fatalf("readAt = %v", readAt)
		}
		return domain.Notification{ID: notificationID, RecipientID: recipientID, Read: true, ReadAt: &readAt}, nil
	}
	svc := newNotificationServiceForTest(t, repo, now)

	notification, err := svc.MarkRead(context.Background(), "user-1", "ntf_1")
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !notification.Read {
		t.Fatal("notification should be read")
	}

	_, err = svc.MarkRead(context.Background(), "user-1", "")
	if !errors.Is(err, ErrNotificationInvalidInput) {
		t.Fatalf("err = %v, want ErrNotificationInvalidInput", err)
	}
}

func TestNotificationServiceMarkReadNotFound(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := newNotificationServiceForTest(t, &stubNotificationRepo{}, now)

	_, err := svc.MarkRead(context.Background(), "user-1", "ntf_missing")
	if !errors.Is(err, ErrNotificationNotFound) {
		t.Fatalf("err = %v, want ErrNotificationNotFound", err)
	}
}

func TestNotificationServiceCountUnread(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubNotificationRepo{}
	repo.countUnreadFn = func(_ context.Context, recipientID string) (int, error) {
		if recipientID != "user-1" {
			t.Fatalf("recipient = %q", recipientID)
		}
		return 3, nil
	}
	svc := newNotificationServiceForTest(t, repo, now)

	count, err := svc.CountUnread(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}
