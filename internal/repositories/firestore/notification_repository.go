package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shopforge/fulfillment/internal/domain"
	pfirestore "github.com/shopforge/fulfillment/internal/platform/firestore"
	"github.com/shopforge/fulfillment/internal/platform/pagination"
	"github.com/shopforge/fulfillment/internal/repositories"
)

const (
	notificationCollection = "notifications"

	defaultNotificationPageSize = 50
	maxNotificationPageSize     = 200
)

// NotificationRepository persists order notifications per recipient.
type NotificationRepository struct {
	base     *pfirestore.BaseRepository[notificationDocument]
	provider *pfirestore.Provider
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationCollection, nil, nil)
	return &NotificationRepository{base: base, provider: provider}, nil
}

// Insert creates the notification document.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	if strings.TrimSpace(notification.ID) == "" {
		return errors.New("notification repository: notification id is required")
	}
	if strings.TrimSpace(notification.RecipientID) == "" {
		return errors.New("notification repository: recipient id is required")
	}

	ref, err := r.base.DocumentRef(ctx, notification.ID)
	if err != nil {
		return err
	}
	_, err = ref.Create(ctx, fromDomainNotification(notification))
	return pfirestore.WrapError("notifications.insert", err)
}

// List returns notifications for a recipient or channel, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter repositories.NotificationListFilter) (domain.CursorPage[domain.Notification], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Notification]{}, errors.New("notification repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultNotificationPageSize
	}
	if pageSize > maxNotificationPageSize {
		pageSize = maxNotificationPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if recipient := strings.TrimSpace(filter.RecipientID); recipient != "" {
			q = q.Where("recipientId", "==", recipient)
		}
		if channel := strings.TrimSpace(string(filter.Channel)); channel != "" {
			q = q.Where("channel", "==", channel)
		}
		if filter.UnreadOnly {
			q = q.Where("read", "==", false)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(cursor.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Notification]{}, err
	}

	page := domain.CursorPage[domain.Notification]{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.Data.CreatedAt, last.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.Notification]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, toDomainNotification(doc.ID, doc.Data))
	}
	return page, nil
}

// MarkRead marks one notification as read, verifying recipient ownership.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, notificationID string, readAt time.Time) (domain.Notification, error) {
	if r == nil || r.base == nil {
		return domain.Notification{}, errors.New("notification repository not initialised")
	}
	recipient := strings.TrimSpace(recipientID)
	id := strings.TrimSpace(notificationID)
	if recipient == "" || id == "" {
		return domain.Notification{}, errors.New("notification repository: recipient and notification ids are required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return domain.Notification{}, err
	}

	var updated notificationDocument
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc notificationDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("notifications decode %s: %w", id, err)
		}
		if doc.RecipientID != recipient {
			return status.Errorf(codes.NotFound, "notification %s not found for recipient", id)
		}
		if !doc.Read {
			at := readAt.UTC()
			doc.Read = true
			doc.ReadAt = &at
			if err := tx.Set(ref, doc); err != nil {
				return err
			}
		}
		updated = doc
		return nil
	})
	if err != nil {
		return domain.Notification{}, pfirestore.WrapError("notifications.mark_read", err)
	}
	return toDomainNotification(id, updated), nil
}

// MarkAllRead marks every unread notification of the recipient as read and
// returns how many were updated.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string, readAt time.Time) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("notification repository not initialised")
	}
	recipient := strings.TrimSpace(recipientID)
	if recipient == "" {
		return 0, errors.New("notification repository: recipient id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	snaps, err := client.Collection(notificationCollection).
		Where("recipientId", "==", recipient).
		Where("read", "==", false).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("notifications.mark_all_read", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	at := readAt.UTC()
	bulk := client.BulkWriter(ctx)
	for _, snap := range snaps {
		_, err := bulk.Update(snap.Ref, []firestore.Update{
			{Path: "read", Value: true},
			{Path: "readAt", Value: at},
		})
		if err != nil {
			bulk.End()
			return 0, pfirestore.WrapError("notifications.mark_all_read", err)
		}
	}
	bulk.End()
	return len(snaps), nil
}

// CountUnread returns the number of unread notifications for the recipient.
func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("notification repository not initialised")
	}
	recipient := strings.TrimSpace(recipientID)
	if recipient == "" {
		return 0, errors.New("notification repository: recipient id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	snaps, err := client.Collection(notificationCollection).
		Where("recipientId", "==", recipient).
		Where("read", "==", false).
		Select().
		Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("notifications.count_unread", err)
	}
	return len(snaps), nil
}

type notificationDocument struct {
	RecipientID string     `firestore:"recipientId"`
	Channel     string     `firestore:"channel"`
	OrderID     string     `firestore:"orderId"`
	OrderStatus string     `firestore:"orderStatus"`
	Message     string     `firestore:"message"`
	Read        bool       `firestore:"read"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	ReadAt      *time.Time `firestore:"readAt,omitempty"`
}

func fromDomainNotification(notification domain.Notification) notificationDocument {
	return notificationDocument{
		RecipientID: strings.TrimSpace(notification.RecipientID),
		Channel:     string(notification.Channel),
		OrderID:     strings.TrimSpace(notification.OrderID),
		OrderStatus: string(notification.OrderStatus),
		Message:     notification.Message,
		Read:        notification.Read,
		CreatedAt:   notification.CreatedAt.UTC(),
		ReadAt:      utcTimePtr(notification.ReadAt),
	}
}

func toDomainNotification(id string, doc notificationDocument) domain.Notification {
	return domain.Notification{
		ID:          id,
		RecipientID: doc.RecipientID,
		Channel:     domain.NotificationChannel(doc.Channel),
		OrderID:     doc.OrderID,
		OrderStatus: domain.OrderStatus(doc.OrderStatus),
		Message:     doc.Message,
		Read:        doc.Read,
		CreatedAt:   doc.CreatedAt,
		ReadAt:      doc.ReadAt,
	}
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)
