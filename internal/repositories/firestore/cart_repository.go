package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/shopforge/fulfillment/internal/domain"
	pfirestore "github.com/shopforge/fulfillment/internal/platform/firestore"
	"github.com/shopforge/fulfillment/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists carts keyed by user ID. Items are embedded on the
// cart document so checkout can read and drain the whole cart in one
// transaction.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{base: base, provider: provider}, nil
}

// Get loads the cart for the given user, joining an active transaction when present.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	if tx, ok := transactionFrom(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, uid)
		if err != nil {
			return domain.Cart{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.Cart{}, pfirestore.WrapError("carts.get", err)
		}
		var doc cartDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Cart{}, fmt.Errorf("carts decode %s: %w", uid, err)
		}
		return toDomainCart(uid, doc, snap.UpdateTime), nil
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return toDomainCart(doc.ID, doc.Data, doc.UpdateTime), nil
}

// Upsert replaces the cart document for the user.
func (r *CartRepository) Upsert(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	now := cart.UpdatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result, err := r.base.Set(ctx, uid, fromDomainCart(cart, now))
	if err != nil {
		return domain.Cart{}, err
	}

	saved := cart
	saved.UserID = uid
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// Drain deletes the cart document. Checkout calls this inside the same unit of
// work that inserts the order.
func (r *CartRepository) Drain(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	ref, err := r.base.DocumentRef(ctx, uid)
	if err != nil {
		return err
	}

	if tx, ok := transactionFrom(ctx); ok {
		return pfirestore.WrapError("carts.drain", tx.Delete(ref))
	}
	_, err = ref.Delete(ctx)
	return pfirestore.WrapError("carts.drain", err)
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string    `firestore:"productId"`
	Name      string    `firestore:"name"`
	Quantity  int       `firestore:"quantity"`
	UnitPrice int64     `firestore:"unitPrice"`
	AddedAt   time.Time `firestore:"addedAt"`
}

func fromDomainCart(cart domain.Cart, now time.Time) cartDocument {
	doc := cartDocument{UpdatedAt: now}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return doc
}

func toDomainCart(userID string, doc cartDocument, updateTime time.Time) domain.Cart {
	cart := domain.Cart{
		UserID:    userID,
		UpdatedAt: doc.UpdatedAt,
	}
	if !updateTime.IsZero() {
		cart.UpdatedAt = updateTime
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			AddedAt:   item.AddedAt,
		})
	}
	return cart
}

func cloneAnyMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

var _ repositories.CartRepository = (*CartRepository)(nil)
