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

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/platform/auth"
	"github.com/shopforge/fulfillment/internal/services"
)

type stubWalletService struct {
	getFn    func(context.Context, string) (services.Wallet, error)
	creditFn func(context.Context, services.WalletMutationCommand) (services.Wallet, error)
	debitFn  func(context.Context, services.WalletMutationCommand) (services.Wallet, error)
	listFn   func(context.Context, string, services.Pagination) (domain.CursorPage[services.WalletTransaction], error)
}

func (s *stubWalletService) GetWallet(ctx context.Context, userID string) (services.Wallet, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return services.Wallet{UserID: userID}, nil
}

func (s *stubWalletService) Credit(ctx context.Context, cmd services.WalletMutationCommand) (services.Wallet, error) {
	if s.creditFn != nil {
		return s.creditFn(ctx, cmd)
	}
	return services.Wallet{}, errors.New("not implemented")
}

func (s *stubWalletService) Debit(ctx context.Context, cmd services.WalletMutationCommand) (services.Wallet, error) {
	if s.debitFn != nil {
		return s.debitFn(ctx, cmd)
	}
	return services.Wallet{}, errors.New("not implemented")
}

func (s *stubWalletService) ListTransactions(ctx context.Context, userID string, pager services.Pagination) (domain.CursorPage[services.WalletTransaction], error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, pager)
	}
	return domain.CursorPage[services.WalletTransaction]{}, nil
}

func newWalletRouter(service services.WalletService) chi.Router {
	handler := NewWalletHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/wallet", handler.Routes)
	return router
}

func TestWalletHandlersGetWallet(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	service := &stubWalletService{
		getFn: func(ctx context.Context, userID string) (services.Wallet, error) {
			if userID != "user-1" {
				t.Fatalf("unexpected user id %s", userID)
			}
			return services.Wallet{UserID: "user-1", Balance: 95000, UpdatedAt: now}, nil
		},
	}

	router := newWalletRouter(service)
	req := authenticatedRequest(http.MethodGet, "/wallet", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp walletResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Wallet.UserID != "user-1" || resp.Wallet.Balance != 95000 {
		t.Fatalf("unexpected wallet payload: %#v", resp.Wallet)
	}
}

func TestWalletHandlersGetWalletUnauthenticated(t *testing.T) {
	router := newWalletRouter(&stubWalletService{})
	req := httptest.NewRequest(http.MethodGet, "/wallet", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestWalletHandlersListTransactions(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	var capturedUser string
	var capturedPager services.Pagination
	service := &stubWalletService{
		listFn: func(ctx context.Context, userID string, pager services.Pagination) (domain.CursorPage[services.WalletTransaction], error) {
			capturedUser = userID
			capturedPager = pager
			return domain.CursorPage[services.WalletTransaction]{
				Items: []services.WalletTransaction{
					{ID: "txn_1", UserID: userID, Type: domain.WalletTransactionRefund, Amount: 95000, OrderID: "ord_123", CreatedAt: now},
					{ID: "txn_2", UserID: userID, Type: domain.WalletTransactionDebit, Amount: 20000, CreatedAt: now},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	router := newWalletRouter(service)
	req := authenticatedRequest(http.MethodGet, "/wallet/transactions?page_size=25&page_token=tok123", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedUser != "user-1" {
		t.Fatalf("expected user-1, got %s", capturedUser)
	}
	if capturedPager.PageSize != 25 || capturedPager.PageToken != "tok123" {
		t.Fatalf("unexpected pagination: %#v", capturedPager)
	}

	var resp walletTransactionListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(resp.Items))
	}
	if resp.Items[0].Type != "refund" || resp.Items[0].Amount != 95000 || resp.Items[0].OrderID != "ord_123" {
		t.Fatalf("unexpected transaction payload: %#v", resp.Items[0])
	}
	if resp.NextPageToken != "tok-next" {
		t.Fatalf("expected next page token tok-next, got %s", resp.NextPageToken)
	}
}

func TestWalletHandlersListTransactionsInvalidPageSize(t *testing.T) {
	router := newWalletRouter(&stubWalletService{})
	req := authenticatedRequest(http.MethodGet, "/wallet/transactions?page_size=abc", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestWalletHandlersServiceUnavailable(t *testing.T) {
	router := newWalletRouter(nil)
	req := authenticatedRequest(http.MethodGet, "/wallet", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
