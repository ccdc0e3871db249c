package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/repositories"
)

const notificationIDPrefix = "ntf_"

var (
	// ErrNotificationInvalidInput signals the caller provided invalid data.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationNotFound indicates the notification could not be located.
	ErrNotificationNotFound = errors.New("notification: not found")
)

// statusMessages is the single source of truth for lifecycle fan-out copy,
// keyed by the status the order just entered. Statuses absent from the table
// produce no notifications.
var statusMessages = map[domain.OrderStatus]struct {
	Owner string
	Admin string
}{
	domain.OrderStatusPending: {
		Owner: "Your order %s has been placed.",
		Admin: "Order %s was placed.",
	},
	domain.OrderStatusConfirmed: {
		Owner: "Your order %s has been confirmed.",
		Admin: "Order %s was confirmed.",
	},
	domain.OrderStatusShipped: {
		Owner: "Your order %s has been shipped.",
		Admin: "Order %s was shipped.",
	},
	domain.OrderStatusDelivered: {
		Owner: "Your order %s has been delivered.",
		Admin: "Order %s was delivered.",
	},
	domain.OrderStatusReturnRequested: {
		Owner: "Your return request for order %s was received.",
		Admin: "Return requested for order %s.",
	},
	domain.OrderStatusReturned: {
		Owner: "Your return for order %s was approved and refunded.",
		Admin: "Return approved for order %s.",
	},
	domain.OrderStatusCancelled: {
		Owner: "Your order %s has been cancelled.",
		Admin: "Order %s was cancelled.",
	},
}

// NotificationServiceDeps bundles dependencies for the inbox service.
type NotificationServiceDeps struct {
	Notifications repositories.NotificationRepository
	Clock         func() time.Time
}

type notificationService struct {
	repo  repositories.NotificationRepository
	clock func() time.Time
}

// NewNotificationService wires a NotificationService backed by the provided repository.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &notificationService{
		repo:  deps.Notifications,
		clock: func() time.Time { return clock().UTC() },
	}, nil
}

func (s *notificationService) List(ctx context.Context, cmd ListNotificationsCommand) (domain.CursorPage[Notification], error) {
	recipient := strings.TrimSpace(cmd.RecipientID)
	if recipient == "" && cmd.Channel != domain.ChannelAdmin {
		return domain.CursorPage[Notification]{}, fmt.Errorf("%w: recipient is required", ErrNotificationInvalidInput)
	}

	page, err := s.repo.List(ctx, repositories.NotificationListFilter{
		RecipientID: recipient,
		Channel:     cmd.Channel,
		UnreadOnly:  cmd.UnreadOnly,
		Pagination:  cmd.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Notification]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *notificationService) MarkRead(ctx context.Context, recipientID string, notificationID string) (Notification, error) {
	recipientID = strings.TrimSpace(recipientID)
	notificationID = strings.TrimSpace(notificationID)
	if recipientID == "" || notificationID == "" {
		return Notification{}, fmt.Errorf("%w: recipient and notification id are required", ErrNotificationInvalidInput)
	}

	notification, err := s.repo.MarkRead(ctx, recipientID, notificationID, s.clock())
	if err != nil {
		return Notification{}, s.mapRepositoryError(err)
	}
	return notification, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, fmt.Errorf("%w: recipient is required", ErrNotificationInvalidInput)
	}

	updated, err := s.repo.MarkAllRead(ctx, recipientID, s.clock())
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return updated, nil
}

func (s *notificationService) CountUnread(ctx context.Context, recipientID string) (int, error) {
	recipientID = strings.TrimSpace(recipientID)
	if recipientID == "" {
		return 0, fmt.Errorf("%w: recipient is required", ErrNotificationInvalidInput)
	}

	count, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, s.mapRepositoryError(err)
	}
	return count, nil
}

func (s *notificationService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotificationNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("notification: repository unavailable: %w", err)
		}
	}

	return err
}
