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

var (
	// ErrCartInvalidInput signals user supplied parameters failed validation.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartUnavailable indicates the backing store cannot be reached.
	ErrCartUnavailable = errors.New("cart: unavailable")
	// ErrCartNotFound indicates the referenced cart or item is missing.
	ErrCartNotFound = errors.New("cart: not found")
)

const maxCartItemQuantity = 99

// CartServiceDeps bundles dependencies required to construct a CartService implementation.
type CartServiceDeps struct {
	Repository repositories.CartRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	repo   repositories.CartRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewCartService wires a CartService backed by the provided repository.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errors.New("cart service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		repo:   deps.Repository,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{UserID: userID, UpdatedAt: s.clock()}, nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

func (s *cartService) AddOrUpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 || cmd.Quantity > maxCartItemQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be within [1, %d]", ErrCartInvalidInput, maxCartItemQuantity)
	}
	if cmd.UnitPrice < 0 {
		return Cart{}, fmt.Errorf("%w: unit price must not be negative", ErrCartInvalidInput)
	}

	cart, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	now := s.clock()
	idx := indexOfCartItem(cart.Items, productID)
	if idx >= 0 {
		cart.Items[idx].Quantity = cmd.Quantity
		cart.Items[idx].UnitPrice = cmd.UnitPrice
		if name := strings.TrimSpace(cmd.Name); name != "" {
			cart.Items[idx].Name = name
		}
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: productID,
			Name:      strings.TrimSpace(cmd.Name),
			Quantity:  cmd.Quantity,
			UnitPrice: cmd.UnitPrice,
			AddedAt:   now,
		})
	}
	cart.UpdatedAt = now

	saved, err := s.repo.Upsert(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}

	s.logger(ctx, "cart.item.upserted", map[string]any{
		"user":     userID,
		"product":  productID,
		"quantity": cmd.Quantity,
	})
	return saved, nil
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if userID == "" || productID == "" {
		return Cart{}, fmt.Errorf("%w: user id and product id are required", ErrCartInvalidInput)
	}

	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{}, fmt.Errorf("%w: cart is empty", ErrCartNotFound)
		}
		return Cart{}, s.translateRepoError(err)
	}

	idx := indexOfCartItem(cart.Items, productID)
	if idx < 0 {
		return Cart{}, fmt.Errorf("%w: product %s is not in the cart", ErrCartNotFound, productID)
	}

	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	cart.UpdatedAt = s.clock()

	saved, err := s.repo.Upsert(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	if err := s.repo.Drain(ctx, userID); err != nil {
		if isRepoNotFound(err) {
			return nil
		}
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCartNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}

	return err
}

func indexOfCartItem(items []domain.CartItem, productID string) int {
	for i, item := range items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}
