package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/repositories"
)

const defaultFanOutFailureCap = 100

// FanOutFailure records a notification write or forward that did not land.
type FanOutFailure struct {
	OrderID    string
	Recipient  string
	Status     domain.OrderStatus
	Error      string
	OccurredAt time.Time
}

// NotificationFanOutDeps bundles collaborators for the lifecycle fan-out.
type NotificationFanOutDeps struct {
	Notifications repositories.NotificationRepository
	// Next receives every event after fan-out, typically the Pub/Sub
	// publisher. Optional.
	Next        OrderEventPublisher
	FailureCap  int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// NotificationFanOut persists owner and operator notifications for order
// lifecycle events. Fan-out is best effort: failures are logged and kept in
// a bounded ring, never surfaced to the triggering operation.
type NotificationFanOut struct {
	repo       repositories.NotificationRepository
	next       OrderEventPublisher
	failureCap int
	clock      func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)

	mu       sync.Mutex
	failures []FanOutFailure
}

// NewNotificationFanOut wires the fan-out decorator.
func NewNotificationFanOut(deps NotificationFanOutDeps) (*NotificationFanOut, error) {
	if deps.Notifications == nil {
		return nil, errors.New("notification fan-out: repository is required")
	}
	failureCap := deps.FailureCap
	if failureCap <= 0 {
		failureCap = defaultFanOutFailureCap
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &NotificationFanOut{
		repo:       deps.Notifications,
		next:       deps.Next,
		failureCap: failureCap,
		clock:      func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

// PublishOrderEvent fans an order lifecycle event out to the owner and the
// admin channel, then forwards the event downstream. Placement and status
// changes both notify; it never returns an error for fan-out failures, only a
// downstream publisher error propagates.
func (f *NotificationFanOut) PublishOrderEvent(ctx context.Context, event OrderEvent) error {
	lifecycle := event.Type == orderEventStatusChanged || event.Type == orderEventCreated
	if messages, ok := statusMessages[event.CurrentStatus]; ok && lifecycle {
		now := f.clock()
		label := event.OrderNumber
		if label == "" {
			label = event.OrderID
		}

		f.persist(ctx, domain.Notification{
			ID:          notificationIDPrefix + f.newID(),
			RecipientID: event.UserID,
			Channel:     domain.ChannelUser,
			OrderID:     event.OrderID,
			OrderStatus: event.CurrentStatus,
			Message:     fmt.Sprintf(messages.Owner, label),
			CreatedAt:   now,
		})
		f.persist(ctx, domain.Notification{
			ID:          notificationIDPrefix + f.newID(),
			RecipientID: string(domain.ChannelAdmin),
			Channel:     domain.ChannelAdmin,
			OrderID:     event.OrderID,
			OrderStatus: event.CurrentStatus,
			Message:     fmt.Sprintf(messages.Admin, label),
			CreatedAt:   now,
		})
	}

	if f.next == nil {
		return nil
	}
	return f.next.PublishOrderEvent(ctx, event)
}

// Failures returns a snapshot of the bounded failure log, newest last.
func (f *NotificationFanOut) Failures() []FanOutFailure {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FanOutFailure, len(f.failures))
	copy(out, f.failures)
	return out
}

func (f *NotificationFanOut) persist(ctx context.Context, notification domain.Notification) {
	if err := f.repo.Insert(ctx, notification); err != nil {
		f.recordFailure(FanOutFailure{
			OrderID:    notification.OrderID,
			Recipient:  notification.RecipientID,
			Status:     notification.OrderStatus,
			Error:      err.Error(),
			OccurredAt: f.clock(),
		})
		f.logger(ctx, "notification.fanout.failed", map[string]any{
			"order":     notification.OrderID,
			"recipient": notification.RecipientID,
			"status":    string(notification.OrderStatus),
			"error":     err.Error(),
		})
	}
}

func (f *NotificationFanOut) recordFailure(failure FanOutFailure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failure)
	if len(f.failures) > f.failureCap {
		f.failures = f.failures[len(f.failures)-f.failureCap:]
	}
}
