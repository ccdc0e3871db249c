package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/platform/auth"
	"github.com/shopforge/fulfillment/internal/services"
)

type stubUserService struct {
	getFn       func(context.Context, string) (services.UserProfile, error)
	updateFn    func(context.Context, services.UpdateProfileCommand) (services.UserProfile, error)
	setActiveFn func(context.Context, services.SetUserActiveCommand) (services.UserProfile, error)
}

func (s *stubUserService) GetProfile(ctx context.Context, userID string) (services.UserProfile, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return services.UserProfile{}, errors.New("not implemented")
}

func (s *stubUserService) UpdateProfile(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.UserProfile{}, errors.New("not implemented")
}

func (s *stubUserService) SetUserActive(ctx context.Context, cmd services.SetUserActiveCommand) (services.UserProfile, error) {
	if s.setActiveFn != nil {
		return s.setActiveFn(ctx, cmd)
	}
	return services.UserProfile{}, errors.New("not implemented")
}

func newMeRouter(service services.UserService) chi.Router {
	handler := NewMeHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)
	return router
}

func TestMeHandlersGetProfile(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	service := &stubUserService{
		getFn: func(ctx context.Context, userID string) (services.UserProfile, error) {
			if userID != "user-1" {
				t.Fatalf("unexpected user id %s", userID)
			}
			return services.UserProfile{
				ID:             "user-1",
				DisplayName:    "Jane Doe",
				Email:          "Jane@Example.com",
				Locale:         "ja-JP",
				Roles:          []string{"user"},
				MembershipTier: domain.TierGold,
				TotalSpent:     180000,
				IsActive:       true,
				CreatedAt:      now,
				UpdatedAt:      now,
			}, nil
		},
	}

	router := newMeRouter(service)
	req := authenticatedRequest(http.MethodGet, "/me", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp meResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	profile := resp.Profile
	if profile.ID != "user-1" || profile.DisplayName != "Jane Doe" {
		t.Fatalf("unexpected profile: %#v", profile)
	}
	if profile.Email != "jane@example.com" {
		t.Fatalf("expected lowercased email, got %s", profile.Email)
	}
	if profile.MembershipTier != "Gold" || profile.TotalSpent != 180000 {
		t.Fatalf("unexpected membership fields: %#v", profile)
	}
	if !reflect.DeepEqual(profile.Roles, []string{"user"}) {
		t.Fatalf("unexpected roles: %#v", profile.Roles)
	}
}

func TestMeHandlersGetProfileReportsNextTier(t *testing.T) {
	service := &stubUserService{
		getFn: func(ctx context.Context, userID string) (services.UserProfile, error) {
			return services.UserProfile{
				ID:             userID,
				MembershipTier: domain.TierGold,
				TotalSpent:     180000,
			}, nil
		},
	}

	router := newMeRouter(service)
	req := authenticatedRequest(http.MethodGet, "/me", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp meResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	next := resp.Profile.NextTier
	if next == nil {
		t.Fatal("expected next tier details for a Gold profile")
	}
	if next.Tier != "Diamond" || next.MinOrders != 30 || next.MinSpent != 240000 {
		t.Fatalf("unexpected next tier threshold: %#v", next)
	}
	if next.RemainingSpent != 60000 {
		t.Fatalf("expected 60000 remaining, got %d", next.RemainingSpent)
	}
}

func TestMeHandlersGetProfileTopTierOmitsNextTier(t *testing.T) {
	service := &stubUserService{
		getFn: func(ctx context.Context, userID string) (services.UserProfile, error) {
			return services.UserProfile{
				ID:             userID,
				MembershipTier: domain.TierDiamond,
				TotalSpent:     500000,
			}, nil
		},
	}

	router := newMeRouter(service)
	req := authenticatedRequest(http.MethodGet, "/me", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp meResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Profile.NextTier != nil {
		t.Fatalf("expected no next tier at the top, got %#v", resp.Profile.NextTier)
	}
}

func TestMeHandlersGetProfileFallsBackToIdentity(t *testing.T) {
	service := &stubUserService{
		getFn: func(ctx context.Context, userID string) (services.UserProfile, error) {
			return services.UserProfile{ID: userID, MembershipTier: domain.TierMember}, nil
		},
	}

	identity := &auth.Identity{
		UID:    "user-1",
		Email:  "Fallback@Example.com",
		Roles:  []string{"user", "admin"},
		Locale: "en-US",
	}

	router := newMeRouter(service)
	req := authenticatedRequest(http.MethodGet, "/me", nil, identity)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp meResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Profile.Email != "fallback@example.com" {
		t.Fatalf("expected identity email fallback, got %s", resp.Profile.Email)
	}
	if resp.Profile.Locale != "en-US" {
		t.Fatalf("expected identity locale fallback, got %s", resp.Profile.Locale)
	}
	if !reflect.DeepEqual(resp.Profile.Roles, []string{"user", "admin"}) {
		t.Fatalf("expected identity roles fallback, got %#v", resp.Profile.Roles)
	}
}

func TestMeHandlersGetProfileNotFound(t *testing.T) {
	service := &stubUserService{
		getFn: func(ctx context.Context, userID string) (services.UserProfile, error) {
			return services.UserProfile{}, services.ErrUserNotFound
		},
	}

	router := newMeRouter(service)
	req := authenticatedRequest(http.MethodGet, "/me", nil, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestMeHandlersGetProfileUnauthenticated(t *testing.T) {
	router := newMeRouter(&stubUserService{})
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestMeHandlersUpdateProfile(t *testing.T) {
	var captured services.UpdateProfileCommand
	service := &stubUserService{
		updateFn: func(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
			captured = cmd
			return services.UserProfile{
				ID:             cmd.UserID,
				DisplayName:    "New Name",
				Locale:         "ja-JP",
				MembershipTier: domain.TierMember,
			}, nil
		},
	}

	body := []byte(`{"display_name":"New Name","locale":"ja-JP"}`)
	router := newMeRouter(service)
	req := authenticatedRequest(http.MethodPatch, "/me", body, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", captured.UserID)
	}
	if captured.DisplayName == nil || *captured.DisplayName != "New Name" {
		t.Fatalf("unexpected display name: %#v", captured.DisplayName)
	}
	if captured.Locale == nil || *captured.Locale != "ja-JP" {
		t.Fatalf("unexpected locale: %#v", captured.Locale)
	}
}

func TestMeHandlersUpdateProfileNullLocaleClears(t *testing.T) {
	var captured services.UpdateProfileCommand
	service := &stubUserService{
		updateFn: func(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
			captured = cmd
			return services.UserProfile{ID: cmd.UserID, MembershipTier: domain.TierMember}, nil
		},
	}

	body := []byte(`{"locale":null}`)
	router := newMeRouter(service)
	req := authenticatedRequest(http.MethodPatch, "/me", body, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Locale == nil || *captured.Locale != "" {
		t.Fatalf("expected locale cleared to empty string, got %#v", captured.Locale)
	}
	if captured.DisplayName != nil {
		t.Fatalf("expected display name untouched, got %#v", captured.DisplayName)
	}
}

func TestMeHandlersUpdateProfileRejectsUnknownField(t *testing.T) {
	router := newMeRouter(&stubUserService{})
	body := []byte(`{"email":"new@example.com"}`)
	req := authenticatedRequest(http.MethodPatch, "/me", body, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestMeHandlersUpdateProfileRejectsNullDisplayName(t *testing.T) {
	router := newMeRouter(&stubUserService{})
	body := []byte(`{"display_name":null}`)
	req := authenticatedRequest(http.MethodPatch, "/me", body, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestMeHandlersUpdateProfileRequiresEditableField(t *testing.T) {
	router := newMeRouter(&stubUserService{})
	body := []byte(`{}`)
	req := authenticatedRequest(http.MethodPatch, "/me", body, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestMeHandlersUpdateProfileInvalidInput(t *testing.T) {
	service := &stubUserService{
		updateFn: func(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
			return services.UserProfile{}, services.ErrUserInvalidInput
		},
	}

	body := []byte(`{"display_name":"x"}`)
	router := newMeRouter(service)
	req := authenticatedRequest(http.MethodPatch, "/me", body, &auth.Identity{UID: "user-1"})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var envelope map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if envelope["error"] != "invalid_request" {
		t.Fatalf("unexpected error code: %v", envelope["error"])
	}
}
