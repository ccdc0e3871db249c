package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/platform/auth"
	"github.com/shopforge/fulfillment/internal/platform/httpx"
	"github.com/shopforge/fulfillment/internal/services"
)

const (
	defaultDiscountPageSize = 50
	maxDiscountPageSize     = 200
	maxDiscountBodySize     = 16 * 1024
)

// DiscountHandlers exposes admin discount management under /admin/discounts.
type DiscountHandlers struct {
	authn     *auth.Authenticator
	discounts services.DiscountService
}

// NewDiscountHandlers constructs a new DiscountHandlers instance.
func NewDiscountHandlers(authn *auth.Authenticator, discounts services.DiscountService) *DiscountHandlers {
	return &DiscountHandlers{
		authn:     authn,
		discounts: discounts,
	}
}

// Routes registers the admin discount endpoints.
func (h *DiscountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Get("/", h.listDiscounts)
	r.Post("/", h.createDiscount)
	r.Get("/{discountID}", h.getDiscount)
	r.Put("/{discountID}", h.updateDiscount)
	r.Delete("/{discountID}", h.deactivateDiscount)
}

func (h *DiscountHandlers) listDiscounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discount_service_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultDiscountPageSize, maxDiscountPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.discounts.ListDiscounts(ctx, services.DiscountListFilter{
		ActiveOnly: strings.EqualFold(strings.TrimSpace(query.Get("active_only")), "true"),
		Pagination: domain.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}

	items := make([]discountPayload, 0, len(page.Items))
	for _, discount := range page.Items {
		items = append(items, buildDiscountPayload(discount))
	}

	writeJSONResponse(w, http.StatusOK, discountListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *DiscountHandlers) getDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discount_service_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return
	}

	discountID := strings.TrimSpace(chi.URLParam(r, "discountID"))
	if discountID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "discount id is required", http.StatusBadRequest))
		return
	}

	discount, err := h.discounts.GetDiscount(ctx, discountID)
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, discountResponse{Discount: buildDiscountPayload(discount)})
}

// discountRequest uses pointers so an absent field can be told apart from an
// explicit zero; updates only touch the fields the caller sent.
type discountRequest struct {
	Code          string  `json:"code"`
	Description   *string `json:"description"`
	Percentage    *int    `json:"percentage"`
	MinOrderValue *int64  `json:"min_order_value"`
	CapUnbounded  *bool   `json:"cap_unbounded"`
	CapMax        *int64  `json:"cap_max"`
	MinDiscount   *int64  `json:"min_discount"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	IsActive      *bool   `json:"is_active"`
}

func (h *DiscountHandlers) createDiscount(w http.ResponseWriter, r *http.Request) {
	h.upsertDiscount(w, r, "")
}

func (h *DiscountHandlers) updateDiscount(w http.ResponseWriter, r *http.Request) {
	discountID := strings.TrimSpace(chi.URLParam(r, "discountID"))
	if discountID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "discount id is required", http.StatusBadRequest))
		return
	}
	h.upsertDiscount(w, r, discountID)
}

func (h *DiscountHandlers) upsertDiscount(w http.ResponseWriter, r *http.Request, discountID string) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discount_service_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req discountRequest
	if err := decodeBody(r, maxDiscountBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	cmd := services.UpsertDiscountCommand{
		DiscountID:    discountID,
		Code:          strings.TrimSpace(req.Code),
		Percentage:    req.Percentage,
		MinOrderValue: req.MinOrderValue,
		MinDiscount:   req.MinDiscount,
		IsActive:      req.IsActive,
		ActorID:       identity.UID,
	}
	if req.Description != nil {
		desc := sanitizeText(*req.Description)
		cmd.Description = &desc
	}
	if req.CapUnbounded != nil || req.CapMax != nil {
		limit := services.DiscountCap{}
		if req.CapUnbounded != nil {
			limit.Unbounded = *req.CapUnbounded
		}
		if req.CapMax != nil {
			limit.Max = *req.CapMax
		}
		cmd.Cap = &limit
	}

	if raw := strings.TrimSpace(req.StartDate); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "start_date must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.StartDate = ts
	}
	if raw := strings.TrimSpace(req.EndDate); raw != "" {
		ts, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "end_date must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.EndDate = ts
	}

	var (
		discount services.Discount
		err      error
		status   = http.StatusOK
	)
	if discountID == "" {
		discount, err = h.discounts.CreateDiscount(ctx, cmd)
		status = http.StatusCreated
	} else {
		discount, err = h.discounts.UpdateDiscount(ctx, cmd)
	}
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, status, discountResponse{Discount: buildDiscountPayload(discount)})
}

func (h *DiscountHandlers) deactivateDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.discounts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("discount_service_unavailable", "discount service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	discountID := strings.TrimSpace(chi.URLParam(r, "discountID"))
	if discountID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "discount id is required", http.StatusBadRequest))
		return
	}

	discount, err := h.discounts.DeactivateDiscount(ctx, discountID, identity.UID)
	if err != nil {
		writeDiscountError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, discountResponse{Discount: buildDiscountPayload(discount)})
}

type discountListResponse struct {
	Items         []discountPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type discountResponse struct {
	Discount discountPayload `json:"discount"`
}

type discountPayload struct {
	ID            string `json:"id"`
	Code          string `json:"code"`
	Description   string `json:"description,omitempty"`
	Percentage    int    `json:"percentage"`
	MinOrderValue int64  `json:"min_order_value"`
	CapUnbounded  bool   `json:"cap_unbounded"`
	CapMax        int64  `json:"cap_max,omitempty"`
	MinDiscount   int64  `json:"min_discount,omitempty"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	IsActive      bool   `json:"is_active"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

func buildDiscountPayload(discount services.Discount) discountPayload {
	return discountPayload{
		ID:            strings.TrimSpace(discount.ID),
		Code:          strings.ToUpper(strings.TrimSpace(discount.Code)),
		Description:   discount.Description,
		Percentage:    discount.Percentage,
		MinOrderValue: discount.MinOrderValue,
		CapUnbounded:  discount.Cap.Unbounded,
		CapMax:        discount.Cap.Max,
		MinDiscount:   discount.MinDiscount,
		StartDate:     formatTime(discount.StartDate),
		EndDate:       formatTime(discount.EndDate),
		IsActive:      discount.IsActive,
		CreatedAt:     formatTime(discount.CreatedAt),
		UpdatedAt:     formatTime(discount.UpdatedAt),
	}
}
