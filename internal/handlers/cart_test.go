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

	"github.com/shopforge/fulfillment/internal/platform/auth"
	"github.com/shopforge/fulfillment/internal/services"
)

type stubCartService struct {
	getFn    func(context.Context, string) (services.Cart, error)
	upsertFn func(context.Context, services.UpsertCartItemCommand) (services.Cart, error)
	removeFn func(context.Context, services.RemoveCartItemCommand) (services.Cart, error)
	clearFn  func(context.Context, string) error
}

func (s *stubCartService) GetOrCreateCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return services.Cart{UserID: userID}, nil
}

func (s *stubCartService) AddOrUpdateItem(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID)
	}
	return nil
}

func newCartRouter(service services.CartService) chi.Router {
	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)
	return router
}

func TestCartHandlersGetCart(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	service := &stubCartService{
		getFn: func(ctx context.Context, userID string) (services.Cart, error) {
			if userID != "user-1" {
				t.Fatalf("unexpected user id %s", userID)
			}
			return services.Cart{
				UserID: "user-1",
				Items: []services.CartItem{
					{ProductID: "prd_1", Name: "Desk Lamp", Quantity: 2, UnitPrice: 50000, AddedAt: now},
					{ProductID: "prd_2", Name: "Chair", Quantity: 1, UnitPrice: 30000, AddedAt: now},
				},
				UpdatedAt: now,
			}, nil
		},
	}

	router := newCartRouter(service)
	req := authenticatedRequest(http.MethodGet, "/cart", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Cart.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(resp.Cart.Items))
	}
	if resp.Cart.Items[0].Subtotal != 100000 {
		t.Fatalf("expected line subtotal 100000, got %d", resp.Cart.Items[0].Subtotal)
	}
	if resp.Cart.Subtotal != 130000 {
		t.Fatalf("expected cart subtotal 130000, got %d", resp.Cart.Subtotal)
	}
}

func TestCartHandlersGetCartUnauthenticated(t *testing.T) {
	router := newCartRouter(&stubCartService{})
	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCartHandlersServiceUnavailable(t *testing.T) {
	router := newCartRouter(nil)
	req := authenticatedRequest(http.MethodGet, "/cart", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestCartHandlersPutItem(t *testing.T) {
	var captured services.UpsertCartItemCommand
	service := &stubCartService{
		upsertFn: func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
			captured = cmd
			return services.Cart{
				UserID: cmd.UserID,
				Items: []services.CartItem{
					{ProductID: cmd.ProductID, Name: cmd.Name, Quantity: cmd.Quantity, UnitPrice: cmd.UnitPrice},
				},
			}, nil
		},
	}

	body := []byte(`{"product_id":" prd_1 ","name":"Desk Lamp","quantity":3,"unit_price":50000}`)
	router := newCartRouter(service)
	req := authenticatedRequest(http.MethodPut, "/cart/items", body, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", captured.UserID)
	}
	if captured.ProductID != "prd_1" {
		t.Fatalf("expected trimmed product id, got %q", captured.ProductID)
	}
	if captured.Quantity != 3 || captured.UnitPrice != 50000 {
		t.Fatalf("unexpected item fields: %#v", captured)
	}
}

func TestCartHandlersPutItemInvalidInput(t *testing.T) {
	service := &stubCartService{
		upsertFn: func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartInvalidInput
		},
	}

	body := []byte(`{"product_id":"prd_1","quantity":0}`)
	router := newCartRouter(service)
	req := authenticatedRequest(http.MethodPut, "/cart/items", body, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersPutItemRequiresBody(t *testing.T) {
	router := newCartRouter(&stubCartService{})
	req := authenticatedRequest(http.MethodPut, "/cart/items", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersRemoveItem(t *testing.T) {
	var captured services.RemoveCartItemCommand
	service := &stubCartService{
		removeFn: func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
			captured = cmd
			return services.Cart{UserID: cmd.UserID}, nil
		},
	}

	router := newCartRouter(service)
	req := authenticatedRequest(http.MethodDelete, "/cart/items/prd_1", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" || captured.ProductID != "prd_1" {
		t.Fatalf("unexpected command: %#v", captured)
	}
}

func TestCartHandlersRemoveItemNotFound(t *testing.T) {
	service := &stubCartService{
		removeFn: func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartNotFound
		},
	}

	router := newCartRouter(service)
	req := authenticatedRequest(http.MethodDelete, "/cart/items/prd_missing", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}

	var envelope map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if envelope["error"] != "cart_not_found" {
		t.Fatalf("unexpected error code: %v", envelope["error"])
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := false
	service := &stubCartService{
		clearFn: func(ctx context.Context, userID string) error {
			if userID != "user-1" {
				t.Fatalf("unexpected user id %s", userID)
			}
			cleared = true
			return nil
		},
	}

	router := newCartRouter(service)
	req := authenticatedRequest(http.MethodDelete, "/cart", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatal("expected clear to be invoked")
	}
}

func TestCartHandlersStoreUnavailable(t *testing.T) {
	service := &stubCartService{
		getFn: func(ctx context.Context, userID string) (services.Cart, error) {
			return services.Cart{}, services.ErrCartUnavailable
		},
	}

	router := newCartRouter(service)
	req := authenticatedRequest(http.MethodGet, "/cart", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
