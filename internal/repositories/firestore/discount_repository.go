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
	discountCollection = "discounts"

	defaultDiscountPageSize = 50
	maxDiscountPageSize     = 200
)

// DiscountRepository persists discount definitions in Firestore. Codes are
// stored uppercase and must be unique across the collection.
type DiscountRepository struct {
	base     *pfirestore.BaseRepository[discountDocument]
	provider *pfirestore.Provider
}

// NewDiscountRepository constructs a Firestore-backed discount repository.
func NewDiscountRepository(provider *pfirestore.Provider) (*DiscountRepository, error) {
	if provider == nil {
		return nil, errors.New("discount repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[discountDocument](provider, discountCollection, nil, nil)
	return &DiscountRepository{base: base, provider: provider}, nil
}

// Insert creates the discount, enforcing code uniqueness within a transaction.
func (r *DiscountRepository) Insert(ctx context.Context, discount domain.Discount) error {
	if r == nil || r.base == nil {
		return errors.New("discount repository not initialised")
	}
	if strings.TrimSpace(discount.ID) == "" {
		return errors.New("discount repository: discount id is required")
	}
	code := normaliseCode(discount.Code)
	if code == "" {
		return errors.New("discount repository: discount code is required")
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		coll, err := r.collection(ctx)
		if err != nil {
			return err
		}
		existing, err := tx.Documents(coll.Where("code", "==", code).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return status.Errorf(codes.AlreadyExists, "discount code %s already exists", code)
		}
		return tx.Create(coll.Doc(discount.ID), fromDomainDiscount(discount))
	})
	return pfirestore.WrapError("discounts.insert", err)
}

// Update overwrites the discount document.
func (r *DiscountRepository) Update(ctx context.Context, discount domain.Discount) error {
	if r == nil || r.base == nil {
		return errors.New("discount repository not initialised")
	}
	if strings.TrimSpace(discount.ID) == "" {
		return errors.New("discount repository: discount id is required")
	}

	ref, err := r.base.DocumentRef(ctx, discount.ID)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, fromDomainDiscount(discount))
	return pfirestore.WrapError("discounts.update", err)
}

// Delete removes the discount document.
func (r *DiscountRepository) Delete(ctx context.Context, discountID string) error {
	if r == nil || r.base == nil {
		return errors.New("discount repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, discountID)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx, firestore.Exists)
	return pfirestore.WrapError("discounts.delete", err)
}

// FindByID loads the discount by document ID.
func (r *DiscountRepository) FindByID(ctx context.Context, discountID string) (domain.Discount, error) {
	if r == nil || r.base == nil {
		return domain.Discount{}, errors.New("discount repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(discountID))
	if err != nil {
		return domain.Discount{}, err
	}
	return toDomainDiscount(doc.ID, doc.Data), nil
}

// FindByCode looks up the discount by its uppercase code, joining an active
// transaction when one is present.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (domain.Discount, error) {
	if r == nil || r.base == nil {
		return domain.Discount{}, errors.New("discount repository not initialised")
	}
	normalised := normaliseCode(code)
	if normalised == "" {
		return domain.Discount{}, errors.New("discount repository: code is required")
	}

	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Discount{}, err
	}
	query := coll.Where("code", "==", normalised).Limit(1)

	var snaps []*firestore.DocumentSnapshot
	if tx, ok := transactionFrom(ctx); ok {
		snaps, err = tx.Documents(query).GetAll()
	} else {
		snaps, err = query.Documents(ctx).GetAll()
	}
	if err != nil {
		return domain.Discount{}, pfirestore.WrapError("discounts.find_by_code", err)
	}
	if len(snaps) == 0 {
		return domain.Discount{}, pfirestore.WrapError("discounts.find_by_code",
			status.Errorf(codes.NotFound, "discount code %s not found", normalised))
	}

	var doc discountDocument
	if err := snaps[0].DataTo(&doc); err != nil {
		return domain.Discount{}, fmt.Errorf("discounts decode %s: %w", snaps[0].Ref.ID, err)
	}
	return toDomainDiscount(snaps[0].Ref.ID, doc), nil
}

// List returns discounts ordered by code with cursor paging.
func (r *DiscountRepository) List(ctx context.Context, filter repositories.DiscountListFilter) (domain.CursorPage[domain.Discount], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Discount]{}, errors.New("discount repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultDiscountPageSize
	}
	if pageSize > maxDiscountPageSize {
		pageSize = maxDiscountPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Discount]{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("isActive", "==", true)
		}
		q = q.OrderBy("code", firestore.Asc)
		if len(cursor.StartAfter) > 0 {
			q = q.StartAfter(cursor.StartAfter...)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Discount]{}, err
	}

	page := domain.CursorPage[domain.Discount]{}
	for i, doc := range docs {
		if i == pageSize {
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{docs[pageSize-1].Data.Code},
			})
			if err != nil {
				return domain.CursorPage[domain.Discount]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, toDomainDiscount(doc.ID, doc.Data))
	}
	return page, nil
}

func (r *DiscountRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(discountCollection), nil
}

func normaliseCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type discountDocument struct {
	Code          string    `firestore:"code"`
	Description   string    `firestore:"description,omitempty"`
	Percentage    int       `firestore:"percentage"`
	MinOrderValue int64     `firestore:"minOrderValue"`
	CapUnbounded  bool      `firestore:"capUnbounded"`
	CapMax        int64     `firestore:"capMax"`
	MinDiscount   int64     `firestore:"minDiscount"`
	StartDate     time.Time `firestore:"startDate"`
	EndDate       time.Time `firestore:"endDate"`
	IsActive      bool      `firestore:"isActive"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func fromDomainDiscount(discount domain.Discount) discountDocument {
	return discountDocument{
		Code:          normaliseCode(discount.Code),
		Description:   strings.TrimSpace(discount.Description),
		Percentage:    discount.Percentage,
		MinOrderValue: discount.MinOrderValue,
		CapUnbounded:  discount.Cap.Unbounded,
		CapMax:        discount.Cap.Max,
		MinDiscount:   discount.MinDiscount,
		StartDate:     discount.StartDate.UTC(),
		EndDate:       discount.EndDate.UTC(),
		IsActive:      discount.IsActive,
		CreatedAt:     discount.CreatedAt.UTC(),
		UpdatedAt:     discount.UpdatedAt.UTC(),
	}
}

func toDomainDiscount(id string, doc discountDocument) domain.Discount {
	return domain.Discount{
		ID:            id,
		Code:          doc.Code,
		Description:   doc.Description,
		Percentage:    doc.Percentage,
		MinOrderValue: doc.MinOrderValue,
		Cap: domain.DiscountCap{
			Unbounded: doc.CapUnbounded,
			Max:       doc.CapMax,
		},
		MinDiscount: doc.MinDiscount,
		StartDate:   doc.StartDate,
		EndDate:     doc.EndDate,
		IsActive:    doc.IsActive,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}

var _ repositories.DiscountRepository = (*DiscountRepository)(nil)
