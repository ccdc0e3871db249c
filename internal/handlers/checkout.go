package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopforge/fulfillment/internal/platform/auth"
	"github.com/shopforge/fulfillment/internal/platform/httpx"
	"github.com/shopforge/fulfillment/internal/services"
)

const (
	maxCheckoutBodySize    = 32 * 1024
	checkoutRateLimit      = 10
	checkoutRateWindowSecs = 60
)

// CheckoutHandlers converts the caller's cart into an order.
type CheckoutHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	limiter rateLimiter
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, orders services.OrderService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:   authn,
		orders:  orders,
		limiter: newSimpleRateLimiter(checkoutRateLimit, checkoutRateWindowSecs*time.Second, time.Now),
	}
}

// Routes registers the checkout endpoint under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.checkout)
}

type checkoutRequest struct {
	PaymentMethod string         `json:"payment_method"`
	DiscountCode  string         `json:"discount_code"`
	Metadata      map[string]any `json:"metadata"`
}

func (h *CheckoutHandlers) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("too_many_requests", "checkout rate limit exceeded", http.StatusTooManyRequests))
		return
	}

	var req checkoutRequest
	if err := decodeBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.orders.Checkout(ctx, services.CheckoutCommand{
		UserID:        identity.UID,
		PaymentMethod: services.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.PaymentMethod))),
		DiscountCode:  strings.TrimSpace(req.DiscountCode),
		Metadata:      req.Metadata,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func isDiscountError(err error) bool {
	return errors.Is(err, services.ErrDiscountInvalidInput) ||
		errors.Is(err, services.ErrDiscountNotFound) ||
		errors.Is(err, services.ErrDiscountConflict) ||
		errors.Is(err, services.ErrDiscountInactive) ||
		errors.Is(err, services.ErrDiscountNotYetActive) ||
		errors.Is(err, services.ErrDiscountExpired) ||
		errors.Is(err, services.ErrDiscountBelowMinimum)
}

func writeDiscountError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDiscountInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDiscountNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("discount_not_found", "discount code not found", http.StatusNotFound))
	case errors.Is(err, services.ErrDiscountConflict):
		httpx.WriteError(ctx, w, httpx.NewError("discount_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrDiscountInactive):
		httpx.WriteError(ctx, w, httpx.NewError("discount_inactive", "discount code is inactive", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrDiscountNotYetActive):
		httpx.WriteError(ctx, w, httpx.NewError("discount_not_yet_active", "discount code is not active yet", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrDiscountExpired):
		httpx.WriteError(ctx, w, httpx.NewError("discount_expired", "discount code has expired", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrDiscountBelowMinimum):
		httpx.WriteError(ctx, w, httpx.NewError("discount_below_minimum", "order total is below the discount minimum", http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("discount_error", "failed to resolve discount", http.StatusInternalServerError))
	}
}
