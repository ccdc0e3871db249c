package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/shopforge/fulfillment/internal/domain"
)

type stubUserRepo struct {
	findFn             func(context.Context, string) (domain.UserProfile, error)
	updateProfileFn    func(context.Context, domain.UserProfile) (domain.UserProfile, error)
	updateMembershipFn func(context.Context, string, domain.MembershipTier, int64, time.Time) (domain.UserProfile, error)
}

func (s *stubUserRepo) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if s.findFn != nil {
		return s.findFn(ctx, userID)
	}
	return domain.UserProfile{}, &fakeRepoError{notFound: true}
}

func (s *stubUserRepo) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if s.updateProfileFn != nil {
		return s.updateProfileFn(ctx, profile)
	}
	return profile, nil
}

func (s *stubUserRepo) UpdateMembership(ctx context.Context, userID string, tier domain.MembershipTier, totalSpent int64, now time.Time) (domain.UserProfile, error) {
	if s.updateMembershipFn != nil {
		return s.updateMembershipFn(ctx, userID, tier, totalSpent, now)
	}
	return domain.UserProfile{ID: userID, MembershipTier: tier, TotalSpent: totalSpent}, nil
}

func newUserServiceForTest(t *testing.T, repo *stubUserRepo, now time.Time) UserService {
	t.Helper()
	svc, err := NewUserService(UserServiceDeps{
		Users: repo,
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	return svc
}

func TestUserServiceGetProfileDefaultsTier(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubUserRepo{}
	repo.findFn = func(_ context.Context, userID string) (domain.UserProfile, error) {
		return domain.UserProfile{ID: userID, DisplayName: "Mori"}, nil
	}
	svc := newUserServiceForTest(t, repo, now)

	profile, err := svc.GetProfile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.MembershipTier != domain.TierMember {
		t.Fatalf("tier = %q, want Member default", profile.MembershipTier)
	}
}

func TestUserServiceGetProfileNotFound(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := newUserServiceForTest(t, &stubUserRepo{}, now)

	_, err := svc.GetProfile(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestUserServiceUpdateProfile(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubUserRepo{}
	repo.findFn = func(_ context.Context, userID string) (domain.UserProfile, error) {
		return domain.UserProfile{ID: userID, DisplayName: "Old Name", Locale: "en"}, nil
	}
	var saved domain.UserProfile
	repo.updateProfileFn = func(_ context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
		saved = profile
		return profile, nil
	}
	svc := newUserServiceForTest(t, repo, now)

	name := "  New Name  "
	locale := "ja_JP"
	profile, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{
		UserID:      "user-1",
		DisplayName: &name,
		Locale:      &locale,
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if profile.DisplayName != "New Name" {
		t.Fatalf("display name = %q", profile.DisplayName)
	}
	if profile.Locale != "ja-JP" {
		t.Fatalf("locale = %q, want canonical ja-JP", profile.Locale)
	}
	if !saved.UpdatedAt.Equal(now) {
		t.Fatalf("updatedAt = %v", saved.UpdatedAt)
	}
}

func TestUserServiceUpdateProfileValidation(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubUserRepo{}
	repo.findFn = func(_ context.Context, userID string) (domain.UserProfile, error) {
		return domain.UserProfile{ID: userID}, nil
	}
	svc := newUserServiceForTest(t, repo, now)

	short := "x"
	if _, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{UserID: "user-1", DisplayName: &short}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("short name err = %v, want ErrUserInvalidInput", err)
	}

	badTag := "not a locale!"
	if _, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{UserID: "user-1", Locale: &badTag}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("bad locale err = %v, want ErrUserInvalidInput", err)
	}
}

func TestUserServiceSetUserActiveSkipsNoOp(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubUserRepo{}
	repo.findFn = func(_ context.Context, userID string) (domain.UserProfile, error) {
		return domain.UserProfile{ID: userID, IsActive: true}, nil
	}
	updates := 0
	repo.updateProfileFn = func(_ context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
		updates++
		return profile, nil
	}
	svc := newUserServiceForTest(t, repo, now)

	if _, err := svc.SetUserActive(context.Background(), SetUserActiveCommand{UserID: "user-1", Active: true}); err != nil {
		t.Fatalf("SetUserActive noop: %v", err)
	}
	if updates != 0 {
		t.Fatalf("noop should not persist, updates = %d", updates)
	}

	profile, err := svc.SetUserActive(context.Background(), SetUserActiveCommand{UserID: "user-1", Active: false})
	if err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	if profile.IsActive {
		t.Fatal("profile should be deactivated")
	}
	if updates != 1 {
		t.Fatalf("updates = %d, want 1", updates)
	}
}
