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
	"github.com/shopforge/fulfillment/internal/services"
)

type stubDiscountService struct {
	resolveFn    func(context.Context, services.ResolveDiscountCommand) (services.AppliedDiscount, error)
	getFn        func(context.Context, string) (services.Discount, error)
	listFn       func(context.Context, services.DiscountListFilter) (domain.CursorPage[services.Discount], error)
	createFn     func(context.Context, services.UpsertDiscountCommand) (services.Discount, error)
	updateFn     func(context.Context, services.UpsertDiscountCommand) (services.Discount, error)
	deactivateFn func(context.Context, string, string) (services.Discount, error)
}

func (s *stubDiscountService) Resolve(ctx context.Context, cmd services.ResolveDiscountCommand) (services.AppliedDiscount, error) {
	if s.resolveFn != nil {
		return s.resolveFn(ctx, cmd)
	}
	return services.AppliedDiscount{}, errors.New("not implemented")
}

func (s *stubDiscountService) GetDiscount(ctx context.Context, discountID string) (services.Discount, error) {
	if s.getFn != nil {
		return s.getFn(ctx, discountID)
	}
	return services.Discount{}, errors.New("not implemented")
}

func (s *stubDiscountService) ListDiscounts(ctx context.Context, filter services.DiscountListFilter) (domain.CursorPage[services.Discount], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Discount]{}, nil
}

func (s *stubDiscountService) CreateDiscount(ctx context.Context, cmd services.UpsertDiscountCommand) (services.Discount, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Discount{}, errors.New("not implemented")
}

func (s *stubDiscountService) UpdateDiscount(ctx context.Context, cmd services.UpsertDiscountCommand) (services.Discount, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Discount{}, errors.New("not implemented")
}

func (s *stubDiscountService) DeactivateDiscount(ctx context.Context, discountID string, actorID string) (services.Discount, error) {
	if s.deactivateFn != nil {
		return s.deactivateFn(ctx, discountID, actorID)
	}
	return services.Discount{}, errors.New("not implemented")
}

func newDiscountRouter(service services.DiscountService) chi.Router {
	handler := NewDiscountHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/admin/discounts", handler.Routes)
	return router
}

func TestDiscountHandlersCreate(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	var captured services.UpsertDiscountCommand
	service := &stubDiscountService{
		createFn: func(ctx context.Context, cmd services.UpsertDiscountCommand) (services.Discount, error) {
			captured = cmd
			discount := services.Discount{
				ID:        "dsc_1",
				Code:      "SALE10",
				StartDate: cmd.StartDate,
				EndDate:   cmd.EndDate,
				IsActive:  true,
				CreatedAt: now,
			}
			if cmd.Percentage != nil {
				discount.Percentage = *cmd.Percentage
			}
			if cmd.MinOrderValue != nil {
				discount.MinOrderValue = *cmd.MinOrderValue
			}
			if cmd.Cap != nil {
				discount.Cap = *cmd.Cap
			}
			return discount, nil
		},
	}

	body := []byte(`{
		"code":"sale10",
		"description":"Spring promo",
		"percentage":10,
		"min_order_value":50000,
		"cap_max":5000,
		"start_date":"2026-03-01T00:00:00Z",
		"end_date":"2026-04-01T00:00:00Z"
	}`)

	router := newDiscountRouter(service)
	req := authenticatedRequest(http.MethodPost, "/admin/discounts", body, adminIdentity("ops-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Code != "sale10" || captured.Percentage == nil || *captured.Percentage != 10 {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if captured.Cap == nil || captured.Cap.Unbounded || captured.Cap.Max != 5000 {
		t.Fatalf("unexpected cap: %#v", captured.Cap)
	}
	if captured.MinDiscount != nil {
		t.Fatalf("min_discount was not sent, expected nil, got %v", *captured.MinDiscount)
	}
	if captured.ActorID != "ops-1" {
		t.Fatalf("expected actor ops-1, got %s", captured.ActorID)
	}
	if !captured.StartDate.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start date: %s", captured.StartDate)
	}

	var resp discountResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Discount.Code != "SALE10" || !resp.Discount.IsActive {
		t.Fatalf("unexpected discount payload: %#v", resp.Discount)
	}
}

func TestDiscountHandlersCreateInvalidDate(t *testing.T) {
	router := newDiscountRouter(&stubDiscountService{})
	body := []byte(`{"code":"SALE10","percentage":10,"start_date":"bad"}`)
	req := authenticatedRequest(http.MethodPost, "/admin/discounts", body, adminIdentity("ops-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestDiscountHandlersCreateValidationError(t *testing.T) {
	service := &stubDiscountService{
		createFn: func(ctx context.Context, cmd services.UpsertDiscountCommand) (services.Discount, error) {
			return services.Discount{}, services.ErrDiscountInvalidInput
		},
	}

	router := newDiscountRouter(service)
	body := []byte(`{"code":"","percentage":0}`)
	req := authenticatedRequest(http.MethodPost, "/admin/discounts", body, adminIdentity("ops-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestDiscountHandlersUpdate(t *testing.T) {
	var captured services.UpsertDiscountCommand
	service := &stubDiscountService{
		updateFn: func(ctx context.Context, cmd services.UpsertDiscountCommand) (services.Discount, error) {
			captured = cmd
			return services.Discount{ID: cmd.DiscountID, Code: "SALE10", Percentage: 15, IsActive: true}, nil
		},
	}

	body := []byte(`{"percentage":15}`)
	router := newDiscountRouter(service)
	req := authenticatedRequest(http.MethodPut, "/admin/discounts/dsc_1", body, adminIdentity("ops-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.DiscountID != "dsc_1" || captured.Percentage == nil || *captured.Percentage != 15 {
		t.Fatalf("unexpected command: %#v", captured)
	}
	if captured.MinOrderValue != nil || captured.Cap != nil || captured.MinDiscount != nil {
		t.Fatalf("absent fields must stay nil: %#v", captured)
	}
}

func TestDiscountHandlersUpdateExplicitZero(t *testing.T) {
	var captured services.UpsertDiscountCommand
	service := &stubDiscountService{
		updateFn: func(ctx context.Context, cmd services.UpsertDiscountCommand) (services.Discount, error) {
			captured = cmd
			return services.Discount{ID: cmd.DiscountID, Code: "SALE10", Percentage: 10, IsActive: true}, nil
		},
	}

	body := []byte(`{"min_discount":0,"min_order_value":0}`)
	router := newDiscountRouter(service)
	req := authenticatedRequest(http.MethodPut, "/admin/discounts/dsc_1", body, adminIdentity("ops-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.MinDiscount == nil || *captured.MinDiscount != 0 {
		t.Fatalf("explicit zero min_discount must reach the service: %#v", captured.MinDiscount)
	}
	if captured.MinOrderValue == nil || *captured.MinOrderValue != 0 {
		t.Fatalf("explicit zero min_order_value must reach the service: %#v", captured.MinOrderValue)
	}
	if captured.Percentage != nil {
		t.Fatalf("absent percentage must stay nil, got %v", *captured.Percentage)
	}
}

func TestDiscountHandlersDeactivate(t *testing.T) {
	service := &stubDiscountService{
		deactivateFn: func(ctx context.Context, discountID string, actorID string) (services.Discount, error) {
			if discountID != "dsc_1" || actorID != "ops-1" {
				t.Fatalf("unexpected arguments: %s %s", discountID, actorID)
			}
			return services.Discount{ID: discountID, Code: "SALE10", IsActive: false}, nil
		},
	}

	router := newDiscountRouter(service)
	req := authenticatedRequest(http.MethodDelete, "/admin/discounts/dsc_1", nil, adminIdentity("ops-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp discountResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Discount.IsActive {
		t.Fatal("expected discount to be inactive")
	}
}

func TestDiscountHandlersGetNotFound(t *testing.T) {
	service := &stubDiscountService{
		getFn: func(ctx context.Context, discountID string) (services.Discount, error) {
			return services.Discount{}, services.ErrDiscountNotFound
		},
	}

	router := newDiscountRouter(service)
	req := authenticatedRequest(http.MethodGet, "/admin/discounts/dsc_missing", nil, adminIdentity("ops-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestDiscountHandlersListActiveOnly(t *testing.T) {
	var captured services.DiscountListFilter
	service := &stubDiscountService{
		listFn: func(ctx context.Context, filter services.DiscountListFilter) (domain.CursorPage[services.Discount], error) {
			captured = filter
			return domain.CursorPage[services.Discount]{
				Items: []services.Discount{{ID: "dsc_1", Code: "SALE10", Percentage: 10, IsActive: true}},
			}, nil
		},
	}

	router := newDiscountRouter(service)
	req := authenticatedRequest(http.MethodGet, "/admin/discounts?active_only=true&page_size=10", nil, adminIdentity("ops-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !captured.ActiveOnly || captured.Pagination.PageSize != 10 {
		t.Fatalf("unexpected filter: %#v", captured)
	}

	var resp discountListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Code != "SALE10" {
		t.Fatalf("unexpected items: %#v", resp.Items)
	}
}

func TestDiscountHandlersServiceUnavailable(t *testing.T) {
	router := newDiscountRouter(nil)
	req := authenticatedRequest(http.MethodGet, "/admin/discounts", nil, adminIdentity("ops-1"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
