package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/go-chi/chi/v5"

	"github.com/shopforge/fulfillment/internal/platform/auth"
	"github.com/shopforge/fulfillment/internal/platform/httpx"
	"github.com/shopforge/fulfillment/internal/services"
)

const maxProfileBodySize = 64 * 1024

var errNoEditableFields = errors.New("no editable fields provided")

// MeHandlers exposes authenticated profile endpoints for the current user.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewMeHandlers constructs handlers enforcing Firebase authentication before invoking the user service.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{
		authn: authn,
		users: users,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Patch("/", h.updateProfile)
}

func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	h.serveProfile(w, r, func(ctx context.Context, identity *auth.Identity) (services.UserProfile, error) {
		return h.users.GetProfile(ctx, identity.UID)
	})
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	cmd := services.UpdateProfileCommand{UserID: identity.UID}
	if err := parseProfilePatch(body, &cmd); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	updated, err := h.users.UpdateProfile(ctx, cmd)
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}

	record, _ := identity.User(ctx)
	writeJSONResponse(w, http.StatusOK, meResponse{Profile: buildProfilePayload(updated, identity, record)})
}

func (h *MeHandlers) serveProfile(w http.ResponseWriter, r *http.Request, load func(context.Context, *auth.Identity) (services.UserProfile, error)) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("profile_service_unavailable", "profile service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	profile, err := load(ctx, identity)
	if err != nil {
		writeUserProfileError(ctx, w, err)
		return
	}

	record, _ := identity.User(ctx)
	writeJSONResponse(w, http.StatusOK, meResponse{Profile: buildProfilePayload(profile, identity, record)})
}

type meResponse struct {
	Profile meProfilePayload `json:"profile"`
}

type meProfilePayload struct {
	ID             string             `json:"id"`
	DisplayName    string             `json:"display_name"`
	Email          string             `json:"email"`
	EmailVerified  bool               `json:"email_verified"`
	Locale         string             `json:"locale,omitempty"`
	Roles          []string           `json:"roles"`
	MembershipTier string             `json:"membership_tier"`
	TotalSpent     int64              `json:"total_spent"`
	NextTier       *tierTargetPayload `json:"next_tier,omitempty"`
	IsActive       bool               `json:"is_active"`
	CreatedAt      string             `json:"created_at,omitempty"`
	UpdatedAt      string             `json:"updated_at,omitempty"`
	LastSyncTime   string             `json:"last_sync_time,omitempty"`
}

// tierTargetPayload tells the client what the next membership tier requires
// and how much spend is still missing.
type tierTargetPayload struct {
	Tier           string `json:"tier"`
	MinOrders      int    `json:"min_orders"`
	MinSpent       int64  `json:"min_spent"`
	RemainingSpent int64  `json:"remaining_spent"`
}

// profilePatch mirrors the editable profile fields. Raw messages keep the
// difference between an absent field, an explicit null, and a value.
type profilePatch struct {
	DisplayName json.RawMessage `json:"display_name"`
	Locale      json.RawMessage `json:"locale"`
}

func parseProfilePatch(data []byte, cmd *services.UpdateProfileCommand) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errEmptyBody
	}

	var patch profilePatch
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&patch); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}

	if patch.DisplayName == nil && patch.Locale == nil {
		return errNoEditableFields
	}

	if patch.DisplayName != nil {
		if isJSONNull(patch.DisplayName) {
			return errors.New("display_name must not be null")
		}
		var name string
		if err := json.Unmarshal(patch.DisplayName, &name); err != nil {
			return errors.New("display_name must be a string")
		}
		cmd.DisplayName = &name
	}

	if patch.Locale != nil {
		locale := ""
		if !isJSONNull(patch.Locale) {
			if err := json.Unmarshal(patch.Locale, &locale); err != nil {
				return errors.New("locale must be a string")
			}
		}
		cmd.Locale = &locale
	}

	return nil
}

func isJSONNull(value json.RawMessage) bool {
	return strings.EqualFold(strings.TrimSpace(string(value)), "null")
}

func buildProfilePayload(profile services.UserProfile, identity *auth.Identity, record *firebaseauth.UserRecord) meProfilePayload {
	email := strings.TrimSpace(strings.ToLower(profile.Email))
	if email == "" && identity != nil {
		email = strings.TrimSpace(strings.ToLower(identity.Email))
	}

	locale := strings.TrimSpace(profile.Locale)
	if locale == "" && identity != nil {
		locale = strings.TrimSpace(identity.Locale)
	}

	roles := slices.Clone(profile.Roles)
	if len(roles) == 0 && identity != nil {
		roles = slices.Clone(identity.Roles)
	}
	if len(roles) == 0 {
		roles = []string{}
	}

	emailVerified := false
	if record != nil {
		emailVerified = record.EmailVerified
	}

	return meProfilePayload{
		ID:             strings.TrimSpace(profile.ID),
		DisplayName:    profile.DisplayName,
		Email:          email,
		EmailVerified:  emailVerified,
		Locale:         locale,
		Roles:          roles,
		MembershipTier: string(profile.MembershipTier),
		TotalSpent:     profile.TotalSpent,
		NextTier:       buildTierTarget(profile),
		IsActive:       profile.IsActive,
		CreatedAt:      formatTime(profile.CreatedAt),
		UpdatedAt:      formatTime(profile.UpdatedAt),
		LastSyncTime:   formatTime(profile.LastSyncTime),
	}
}

func buildTierTarget(profile services.UserProfile) *tierTargetPayload {
	threshold, ok := services.NextTierThreshold(profile.MembershipTier)
	if !ok {
		return nil
	}
	remaining := threshold.MinSpent - profile.TotalSpent
	if remaining < 0 {
		remaining = 0
	}
	return &tierTargetPayload{
		Tier:           string(threshold.Tier),
		MinOrders:      threshold.MinCount,
		MinSpent:       threshold.MinSpent,
		RemainingSpent: remaining,
	}
}

func writeUserProfileError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", "profile not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("profile_error", "failed to process profile request", http.StatusInternalServerError))
	}
}
