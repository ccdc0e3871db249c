package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shopforge/fulfillment/internal/domain"
	pfirestore "github.com/shopforge/fulfillment/internal/platform/firestore"
	"github.com/shopforge/fulfillment/internal/platform/pagination"
	"github.com/shopforge/fulfillment/internal/repositories"
)

const (
	orderCollection = "orders"

	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// membershipStatuses enumerates the statuses that count towards a user's
// delivered order volume. A return request does not remove the order from the
// tally until the return is approved.
var membershipStatuses = []string{
	string(domain.OrderStatusDelivered),
	string(domain.OrderStatusReturnRequested),
}

// OrderRepository persists order documents in Firestore.
type OrderRepository struct {
	base     *pfirestore.BaseRepository[orderDocument]
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{base: base, provider: provider}, nil
}

// Insert creates the order document, failing with a conflict when the ID already exists.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	doc := fromDomainOrder(order)

	if tx, ok := transactionFrom(ctx); ok {
		return pfirestore.WrapError("orders.insert", tx.Create(ref, doc))
	}
	_, err = ref.Create(ctx, doc)
	return pfirestore.WrapError("orders.insert", err)
}

// Update persists the order with a compare-and-set on the expected status.
// Outside a unit of work it runs its own transaction performing the guarding
// read. Inside a unit of work the caller must have read the order in the same
// transaction; Firestore requires reads to precede writes, so the write here
// relies on that read to pin the document version.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedStatus domain.OrderStatus) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, order.ID)
	if err != nil {
		return err
	}
	doc := fromDomainOrder(order)

	if tx, ok := transactionFrom(ctx); ok {
		return pfirestore.WrapError("orders.update", tx.Set(ref, doc))
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored orderDocument
		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("orders decode %s: %w", order.ID, err)
		}
		if stored.Status != string(expectedStatus) {
			return status.Errorf(codes.FailedPrecondition, "order %s status is %s, expected %s", order.ID, stored.Status, expectedStatus)
		}
		return tx.Set(ref, doc)
	})
	return pfirestore.WrapError("orders.update", err)
}

// FindByID loads the order, joining an active transaction when present.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	if tx, ok := transactionFrom(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.Order{}, pfirestore.WrapError("orders.get", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Order{}, fmt.Errorf("orders decode %s: %w", id, err)
		}
		return toDomainOrder(snap.Ref.ID, doc), nil
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc.ID, doc.Data), nil
}

// List returns orders matching the filter, newest first, with cursor paging.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}
	if pageSize > maxOrderPageSize {
		pageSize = maxOrderPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if statuses := trimmedStatuses(filter.Status); len(statuses) > 0 {
			q = q.Where("status", "in", statuses)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(cursor.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{last.Data.CreatedAt, last.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, toDomainOrder(doc.ID, doc.Data))
	}
	return page, nil
}

// AggregateDelivered counts delivered order volume for membership recomputation.
func (r *OrderRepository) AggregateDelivered(ctx context.Context, userID string) (repositories.OrderAggregate, error) {
	if r == nil || r.base == nil {
		return repositories.OrderAggregate{}, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return repositories.OrderAggregate{}, errors.New("order repository: user id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.OrderAggregate{}, err
	}

	query := client.Collection(orderCollection).
		Where("userId", "==", uid).
		Where("status", "in", membershipStatuses).
		Select("totalPrice")

	iter := query.Documents(ctx)
	defer iter.Stop()

	var aggregate repositories.OrderAggregate
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return repositories.OrderAggregate{}, pfirestore.WrapError("orders.aggregate", err)
		}
		aggregate.Count++
		if raw, err := snap.DataAt("totalPrice"); err == nil {
			if total, ok := raw.(int64); ok {
				aggregate.TotalSpent += total
			}
		}
	}
	return aggregate, nil
}

func trimmedStatuses(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type orderDocument struct {
	OrderNumber           string                   `firestore:"orderNumber"`
	UserID                string                   `firestore:"userId"`
	Status                string                   `firestore:"status"`
	Items                 []orderItemDocument      `firestore:"items"`
	Subtotal              int64                    `firestore:"subtotal"`
	TotalPrice            int64                    `firestore:"totalPrice"`
	Discount              *appliedDiscountDocument `firestore:"discount,omitempty"`
	PaymentMethod         string                   `firestore:"paymentMethod"`
	ReturnReason          *string                  `firestore:"returnReason,omitempty"`
	ReturnImagePath       *string                  `firestore:"returnImagePath,omitempty"`
	ReturnRejectionReason *string                  `firestore:"returnRejectionReason,omitempty"`
	Metadata              map[string]any           `firestore:"metadata,omitempty"`
	CreatedAt             time.Time                `firestore:"createdAt"`
	UpdatedAt             time.Time                `firestore:"updatedAt"`
	ConfirmedAt           *time.Time               `firestore:"confirmedAt,omitempty"`
	ShippedAt             *time.Time               `firestore:"shippedAt,omitempty"`
	DeliveredAt           *time.Time               `firestore:"deliveredAt,omitempty"`
	ReturnRequestedAt     *time.Time               `firestore:"returnRequestedAt,omitempty"`
	ReturnedAt            *time.Time               `firestore:"returnedAt,omitempty"`
	CancelledAt           *time.Time               `firestore:"cancelledAt,omitempty"`
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	Subtotal  int64  `firestore:"subtotal"`
}

type appliedDiscountDocument struct {
	Code   string `firestore:"code"`
	Amount int64  `firestore:"amount"`
}

func fromDomainOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:           strings.TrimSpace(order.OrderNumber),
		UserID:                strings.TrimSpace(order.UserID),
		Status:                string(order.Status),
		Items:                 fromDomainOrderItems(order.Items),
		Subtotal:              order.Subtotal,
		TotalPrice:            order.TotalPrice,
		PaymentMethod:         string(order.PaymentMethod),
		ReturnReason:          order.ReturnReason,
		ReturnImagePath:       order.ReturnImagePath,
		ReturnRejectionReason: order.ReturnRejectionReason,
		Metadata:              cloneAnyMap(order.Metadata),
		CreatedAt:             order.CreatedAt.UTC(),
		UpdatedAt:             order.UpdatedAt.UTC(),
		ConfirmedAt:           utcTimePtr(order.ConfirmedAt),
		ShippedAt:             utcTimePtr(order.ShippedAt),
		DeliveredAt:           utcTimePtr(order.DeliveredAt),
		ReturnRequestedAt:     utcTimePtr(order.ReturnRequestedAt),
		ReturnedAt:            utcTimePtr(order.ReturnedAt),
		CancelledAt:           utcTimePtr(order.CancelledAt),
	}
	if order.Discount != nil {
		doc.Discount = &appliedDiscountDocument{
			Code:   strings.TrimSpace(order.Discount.Code),
			Amount: order.Discount.Amount,
		}
	}
	return doc
}

func toDomainOrder(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                    id,
		OrderNumber:           doc.OrderNumber,
		UserID:                doc.UserID,
		Status:                domain.OrderStatus(doc.Status),
		Items:                 toDomainOrderItems(doc.Items),
		Subtotal:              doc.Subtotal,
		TotalPrice:            doc.TotalPrice,
		PaymentMethod:         domain.PaymentMethod(doc.PaymentMethod),
		ReturnReason:          doc.ReturnReason,
		ReturnImagePath:       doc.ReturnImagePath,
		ReturnRejectionReason: doc.ReturnRejectionReason,
		Metadata:              cloneAnyMap(doc.Metadata),
		CreatedAt:             doc.CreatedAt,
		UpdatedAt:             doc.UpdatedAt,
		ConfirmedAt:           doc.ConfirmedAt,
		ShippedAt:             doc.ShippedAt,
		DeliveredAt:           doc.DeliveredAt,
		ReturnRequestedAt:     doc.ReturnRequestedAt,
		ReturnedAt:            doc.ReturnedAt,
		CancelledAt:           doc.CancelledAt,
	}
	if doc.Discount != nil {
		order.Discount = &domain.AppliedDiscount{
			Code:   doc.Discount.Code,
			Amount: doc.Discount.Amount,
		}
	}
	return order
}

func fromDomainOrderItems(items []domain.OrderItem) []orderItemDocument {
	if len(items) == 0 {
		return nil
	}
	docs := make([]orderItemDocument, 0, len(items))
	for _, item := range items {
		docs = append(docs, orderItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}
	return docs
}

func toDomainOrderItems(docs []orderItemDocument) []domain.OrderItem {
	if len(docs) == 0 {
		return nil
	}
	items := make([]domain.OrderItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.OrderItem{
			ProductID: doc.ProductID,
			Name:      doc.Name,
			Quantity:  doc.Quantity,
			UnitPrice: doc.UnitPrice,
			Subtotal:  doc.Subtotal,
		})
	}
	return items
}

func utcTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
