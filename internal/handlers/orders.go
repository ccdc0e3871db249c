package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/platform/auth"
	"github.com/shopforge/fulfillment/internal/platform/httpx"
	"github.com/shopforge/fulfillment/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 16 * 1024
)

// OrderHandlers exposes order lifecycle endpoints for authenticated users.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/delivery-confirmation", h.confirmDelivery)
	r.Post("/{orderID}/cancellation", h.cancelOrder)
	r.Post("/{orderID}/return-request", h.requestReturn)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	filter, err := parseOrderListFilter(r, defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, filter, actorFromIdentity(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, actorFromIdentity(identity))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, func(ctx context.Context, cmd services.OrderActionCommand) (services.Order, error) {
		return h.orders.ConfirmDelivery(ctx, cmd)
	}, false)
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	h.runAction(w, r, func(ctx context.Context, cmd services.OrderActionCommand) (services.Order, error) {
		return h.orders.Cancel(ctx, cmd)
	}, true)
}

type orderActionRequest struct {
	Reason string `json:"reason"`
}

type returnRequestBody struct {
	Reason    string `json:"reason"`
	ImagePath string `json:"image_path"`
}

func (h *OrderHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	var req returnRequestBody
	if err := decodeBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.orders.RequestReturn(ctx, services.RequestReturnCommand{
		OrderID:   orderID,
		Actor:     actorFromIdentity(identity),
		Reason:    sanitizeText(req.Reason),
		ImagePath: strings.TrimSpace(req.ImagePath),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) runAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(context.Context, services.OrderActionCommand) (services.Order, error),
	allowBody bool,
) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	cmd := services.OrderActionCommand{
		OrderID: orderID,
		Actor:   actorFromIdentity(identity),
	}
	if allowBody {
		body, err := readLimitedBody(r, maxOrderBodySize)
		if err != nil && !errors.Is(err, errEmptyBody) {
			writeBodyError(w, r, err)
			return
		}
		if len(body) > 0 {
			var req orderActionRequest
			if err := json.Unmarshal(body, &req); err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
				return
			}
			cmd.Reason = sanitizeText(req.Reason)
		}
	}

	order, err := action(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func parseOrderListFilter(r *http.Request, defaultSize, maxSize int) (services.OrderListFilter, error) {
	query := r.URL.Query()

	pageSize, err := parsePageSize(query.Get("page_size"), defaultSize, maxSize)
	if err != nil {
		return services.OrderListFilter{}, err
	}

	filter := services.OrderListFilter{
		UserID: strings.TrimSpace(query.Get("user_id")),
		Status: parseFilterValues(query["status"]),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("created_after must be a valid RFC3339 timestamp")
		}
		filter.DateRange.From = &ts
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			return services.OrderListFilter{}, errors.New("created_before must be a valid RFC3339 timestamp")
		}
		filter.DateRange.To = &ts
	}

	return filter, nil
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	TotalPrice  int64  `json:"total_price"`
	CreatedAt   string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID                    string                  `json:"id"`
	OrderNumber           string                  `json:"order_number"`
	UserID                string                  `json:"user_id"`
	Status                string                  `json:"status"`
	Items                 []orderItemPayload      `json:"items"`
	Subtotal              int64                   `json:"subtotal"`
	TotalPrice            int64                   `json:"total_price"`
	Discount              *appliedDiscountPayload `json:"discount,omitempty"`
	PaymentMethod         string                  `json:"payment_method"`
	ReturnReason          *string                 `json:"return_reason,omitempty"`
	ReturnImagePath       *string                 `json:"return_image_path,omitempty"`
	ReturnRejectionReason *string                 `json:"return_rejection_reason,omitempty"`
	Metadata              map[string]any          `json:"metadata,omitempty"`
	CreatedAt             string                  `json:"created_at"`
	UpdatedAt             string                  `json:"updated_at,omitempty"`
	ConfirmedAt           string                  `json:"confirmed_at,omitempty"`
	ShippedAt             string                  `json:"shipped_at,omitempty"`
	DeliveredAt           string                  `json:"delivered_at,omitempty"`
	ReturnRequestedAt     string                  `json:"return_requested_at,omitempty"`
	ReturnedAt            string                  `json:"returned_at,omitempty"`
	CancelledAt           string                  `json:"cancelled_at,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Subtotal  int64  `json:"subtotal"`
}

type appliedDiscountPayload struct {
	Code   string `json:"code"`
	Amount int64  `json:"amount"`
}

func buildOrderListResponse(page domain.CursorPage[services.Order]) orderListResponse {
	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	return orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	}
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          strings.TrimSpace(order.ID),
		OrderNumber: strings.TrimSpace(order.OrderNumber),
		UserID:      strings.TrimSpace(order.UserID),
		Status:      strings.TrimSpace(string(order.Status)),
		TotalPrice:  order.TotalPrice,
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                    strings.TrimSpace(order.ID),
		OrderNumber:           strings.TrimSpace(order.OrderNumber),
		UserID:                strings.TrimSpace(order.UserID),
		Status:                strings.TrimSpace(string(order.Status)),
		Items:                 make([]orderItemPayload, 0, len(order.Items)),
		Subtotal:              order.Subtotal,
		TotalPrice:            order.TotalPrice,
		PaymentMethod:         strings.TrimSpace(string(order.PaymentMethod)),
		ReturnReason:          cloneStringPointer(order.ReturnReason),
		ReturnImagePath:       cloneStringPointer(order.ReturnImagePath),
		ReturnRejectionReason: cloneStringPointer(order.ReturnRejectionReason),
		Metadata:              cloneMap(order.Metadata),
		CreatedAt:             formatTime(order.CreatedAt),
		UpdatedAt:             formatTime(order.UpdatedAt),
		ConfirmedAt:           formatTime(pointerTime(order.ConfirmedAt)),
		ShippedAt:             formatTime(pointerTime(order.ShippedAt)),
		DeliveredAt:           formatTime(pointerTime(order.DeliveredAt)),
		ReturnRequestedAt:     formatTime(pointerTime(order.ReturnRequestedAt)),
		ReturnedAt:            formatTime(pointerTime(order.ReturnedAt)),
		CancelledAt:           formatTime(pointerTime(order.CancelledAt)),
	}

	if order.Discount != nil {
		payload.Discount = &appliedDiscountPayload{
			Code:   strings.ToUpper(strings.TrimSpace(order.Discount.Code)),
			Amount: order.Discount.Amount,
		}
	}

	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal,
		})
	}

	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_forbidden", "order belongs to another user", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("order_empty_cart", "cart is empty", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderReturnWindowExpired):
		httpx.WriteError(ctx, w, httpx.NewError("order_return_window_expired", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case isDiscountError(err):
		writeDiscountError(ctx, w, err)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
