package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopforge/fulfillment/internal/platform/httpx"
	"github.com/shopforge/fulfillment/internal/services"
)

const maxInternalBodySize = 8 * 1024

// InternalHandlers exposes job endpoints for trusted scheduler callers.
// Authentication is applied by the router's internal middleware chain.
type InternalHandlers struct {
	membership services.MembershipService
	system     services.SystemService
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(membership services.MembershipService, system services.SystemService) *InternalHandlers {
	return &InternalHandlers{
		membership: membership,
		system:     system,
	}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/membership-recompute", h.recomputeMembership)
	r.Get("/audit-logs", h.listAuditLogs)
}

type membershipRecomputeRequest struct {
	UserID string `json:"user_id"`
}

type membershipRecomputeResponse struct {
	UserID string `json:"user_id"`
	Tier   string `json:"tier"`
}

func (h *InternalHandlers) recomputeMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.membership == nil {
		httpx.WriteError(ctx, w, httpx.NewError("membership_service_unavailable", "membership service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req membershipRecomputeRequest
	if err := decodeBody(r, maxInternalBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "user_id is required", http.StatusBadRequest))
		return
	}

	tier, err := h.membership.Recompute(ctx, userID)
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, membershipRecomputeResponse{
		UserID: userID,
		Tier:   string(tier),
	})
}

func (h *InternalHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_service_unavailable", "system service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), 50, 200)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.AuditLogFilter{}
	filter.TargetRef = strings.TrimSpace(query.Get("target_ref"))
	filter.Actor = strings.TrimSpace(query.Get("actor"))
	filter.Action = strings.TrimSpace(query.Get("action"))
	filter.Pagination.PageSize = pageSize
	filter.Pagination.PageToken = strings.TrimSpace(query.Get("page_token"))

	page, err := h.system.ListAuditLogs(ctx, filter)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_log_error", "failed to list audit logs", http.StatusInternalServerError))
		return
	}

	items := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, auditLogPayload{
			ID:        strings.TrimSpace(entry.ID),
			Actor:     entry.Actor,
			ActorType: entry.ActorType,
			Action:    entry.Action,
			TargetRef: entry.TargetRef,
			Severity:  entry.Severity,
			RequestID: entry.RequestID,
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}

	writeJSONResponse(w, http.StatusOK, auditLogListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

type auditLogListResponse struct {
	Items         []auditLogPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type auditLogPayload struct {
	ID        string `json:"id"`
	Actor     string `json:"actor"`
	ActorType string `json:"actor_type,omitempty"`
	Action    string `json:"action"`
	TargetRef string `json:"target_ref,omitempty"`
	Severity  string `json:"severity,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	CreatedAt string `json:"created_at"`
}
