package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/shopforge/fulfillment/internal/domain"
)

func newCartServiceForTest(t *testing.T, repo *stubCartRepo, now time.Time) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func TestCartServiceGetOrCreateCartLazy(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := newCartServiceForTest(t, &stubCartRepo{}, now)

	cart, err := svc.GetOrCreateCart(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateCart: %v", err)
	}
	if cart.UserID != "user-1" || len(cart.Items) != 0 {
		t.Fatalf("cart = %+v, want empty cart for user-1", cart)
	}
}

func TestCartServiceGetOrCreateCartReturnsExisting(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubCartRepo{}
	repo.getFn = func(_ context.Context, userID string) (domain.Cart, error) {
		return domain.Cart{
			UserID: userID,
			Items:  []domain.CartItem{{ProductID: "prd_1", Quantity: 2, UnitPrice: 1200}},
		}, nil
	}
	svc := newCartServiceForTest(t, repo, now)

	cart, err := svc.GetOrCreateCart(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetOrCreateCart: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ProductID != "prd_1" {
		t.Fatalf("cart = %+v", cart)
	}
}

func TestCartServiceAddOrUpdateItemAppends(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubCartRepo{}
	var saved domain.Cart
	repo.upsertFn = func(_ context.Context, cart domain.Cart) (domain.Cart, error) {
		saved = cart
		return cart, nil
	}
	svc := newCartServiceForTest(t, repo, now)

	cart, err := svc.AddOrUpdateItem(context.Background(), UpsertCartItemCommand{
		UserID:    "user-1",
		ProductID: "prd_1",
		Name:      "Lamp",
		Quantity:  2,
		UnitPrice: 4500,
	})
	if err != nil {
		t.Fatalf("AddOrUpdateItem: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("items = %+v", cart.Items)
	}
	item := cart.Items[0]
	if item.Name != "Lamp" || item.Quantity != 2 || item.UnitPrice != 4500 {
		t.Fatalf("item = %+v", item)
	}
	if !item.AddedAt.Equal(now) || !saved.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps: item %v cart %v", item.AddedAt, saved.UpdatedAt)
	}
}

func TestCartServiceAddOrUpdateItemReplacesQuantity(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubCartRepo{}
	repo.getFn = func(_ context.Context, userID string) (domain.Cart, error) {
		return domain.Cart{
			UserID: userID,
			Items:  []domain.CartItem{{ProductID: "prd_1", Name: "Lamp", Quantity: 1, UnitPrice: 4500}},
		}, nil
	}
	svc := newCartServiceForTest(t, repo, now)

	cart, err := svc.AddOrUpdateItem(context.Background(), UpsertCartItemCommand{
		UserID:    "user-1",
		ProductID: "prd_1",
		Quantity:  5,
		UnitPrice: 4000,
	})
	if err != nil {
		t.Fatalf("AddOrUpdateItem: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("items should merge, got %+v", cart.Items)
	}
	if cart.Items[0].Quantity != 5 || cart.Items[0].UnitPrice != 4000 {
		t.Fatalf("item = %+v", cart.Items[0])
	}
	if cart.Items[0].Name != "Lamp" {
		t.Fatalf("blank name must not clear the stored one, got %q", cart.Items[0].Name)
	}
}

func TestCartServiceAddOrUpdateItemValidation(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := newCartServiceForTest(t, &stubCartRepo{}, now)

	cases := []UpsertCartItemCommand{
		{ProductID: "prd_1", Quantity: 1},
		{UserID: "user-1", Quantity: 1},
		{UserID: "user-1", ProductID: "prd_1", Quantity: 0},
		{UserID: "user-1", ProductID: "prd_1", Quantity: 100},
		{UserID: "user-1", ProductID: "prd_1", Quantity: 1, UnitPrice: -1},
	}
	for i, cmd := range cases {
		if _, err := svc.AddOrUpdateItem(context.Background(), cmd); !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("case %d: err = %v, want ErrCartInvalidInput", i, err)
		}
	}
}

func TestCartServiceRemoveItem(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubCartRepo{}
	repo.getFn = func(_ context.Context, userID string) (domain.Cart, error) {
		return domain.Cart{
			UserID: userID,
			Items: []domain.CartItem{
				{ProductID: "prd_1", Quantity: 1, UnitPrice: 4500},
				{ProductID: "prd_2", Quantity: 3, UnitPrice: 900},
			},
		}, nil
	}
	svc := newCartServiceForTest(t, repo, now)

	cart, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{UserID: "user-1", ProductID: "prd_1"})
	if err != nil {
		t.Fatalf("RemoveItem: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ProductID != "prd_2" {
		t.Fatalf("items = %+v", cart.Items)
	}

	_, err = svc.RemoveItem(context.Background(), RemoveCartItemCommand{UserID: "user-1", ProductID: "prd_9"})
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("missing item err = %v, want ErrCartNotFound", err)
	}
}

func TestCartServiceRemoveItemFromMissingCart(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := newCartServiceForTest(t, &stubCartRepo{}, now)

	_, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{UserID: "user-1", ProductID: "prd_1"})
	if !errors.Is(err, ErrCartNotFound) {
		t.Fatalf("err = %v, want ErrCartNotFound", err)
	}
}

func TestCartServiceClearCart(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubCartRepo{}
	svc := newCartServiceForTest(t, repo, now)

	if err := svc.ClearCart(context.Background(), "user-1"); err != nil {
		t.Fatalf("ClearCart: %v", err)
	}
	if len(repo.drained) != 1 || repo.drained[0] != "user-1" {
		t.Fatalf("drained = %v", repo.drained)
	}

	// Clearing an already-empty cart is a no-op.
	repo.drainErr = &fakeRepoError{notFound: true}
	if err := svc.ClearCart(context.Background(), "user-1"); err != nil {
		t.Fatalf("ClearCart missing cart: %v", err)
	}
}

func TestCartServiceUnavailableStore(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubCartRepo{}
	repo.getFn = func(context.Context, string) (domain.Cart, error) {
		return domain.Cart{}, &fakeRepoError{unavailable: true}
	}
	svc := newCartServiceForTest(t, repo, now)

	_, err := svc.GetOrCreateCart(context.Background(), "user-1")
	if !errors.Is(err, ErrCartUnavailable) {
		t.Fatalf("err = %v, want ErrCartUnavailable", err)
	}
}
