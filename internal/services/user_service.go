package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/repositories"
)

var (
	// ErrUserInvalidInput signals the caller provided invalid profile data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the profile could not be located.
	ErrUserNotFound = errors.New("user: not found")

	errInvalidDisplayName = fmt.Errorf("%w: display name must be 2-100 characters", ErrUserInvalidInput)
	errInvalidLanguageTag = fmt.Errorf("%w: locale is not a valid BCP 47 tag", ErrUserInvalidInput)
)

// UserServiceDeps bundles dependencies required to construct a UserService implementation.
type UserServiceDeps struct {
	Users repositories.UserRepository
	Clock func() time.Time
}

type userService struct {
	users repositories.UserRepository
	clock func() time.Time
}

// NewUserService wires a UserService backed by the provided repository.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &userService{
		users: deps.Users,
		clock: func() time.Time { return clock().UTC() },
	}, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	profile, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return UserProfile{}, s.mapRepositoryError(err)
	}
	if profile.MembershipTier == "" {
		profile.MembershipTier = domain.TierMember
	}
	return profile, nil
}

func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error) {
	profile, err := s.GetProfile(ctx, cmd.UserID)
	if err != nil {
		return UserProfile{}, err
	}

	if cmd.DisplayName != nil {
		name := strings.TrimSpace(*cmd.DisplayName)
		if err := validateDisplayName(name); err != nil {
			return UserProfile{}, err
		}
		profile.DisplayName = name
	}
	if cmd.Locale != nil {
		locale, err := canonicaliseLanguageTag(*cmd.Locale)
		if err != nil {
			return UserProfile{}, err
		}
		profile.Locale = locale
	}
	profile.UpdatedAt = s.clock()

	updated, err := s.users.UpdateProfile(ctx, profile)
	if err != nil {
		return UserProfile{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

func (s *userService) SetUserActive(ctx context.Context, cmd SetUserActiveCommand) (UserProfile, error) {
	profile, err := s.GetProfile(ctx, cmd.UserID)
	if err != nil {
		return UserProfile{}, err
	}
	if profile.IsActive == cmd.Active {
		return profile, nil
	}

	profile.IsActive = cmd.Active
	profile.UpdatedAt = s.clock()

	updated, err := s.users.UpdateProfile(ctx, profile)
	if err != nil {
		return UserProfile{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

func (s *userService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrUserNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("user: repository unavailable: %w", err)
		}
	}

	return err
}

func validateDisplayName(name string) error {
	if name == "" {
		return errInvalidDisplayName
	}
	length := utf8.RuneCountInString(name)
	if length < 2 || length > 100 {
		return errInvalidDisplayName
	}
	return nil
}

func canonicaliseLanguageTag(tag string) (string, error) {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	if tag == "" {
		return "", nil
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", errors.Join(errInvalidLanguageTag, err)
	}
	return parsed.String(), nil
}
