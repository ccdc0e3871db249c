package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shopforge/fulfillment/internal/domain"
	pfirestore "github.com/shopforge/fulfillment/internal/platform/firestore"
	"github.com/shopforge/fulfillment/internal/repositories"
)

const userCollection = "users"

// UserRepository persists user profiles in Firestore using optimistic locking.
type UserRepository struct {
	base     *pfirestore.BaseRepository[userDocument]
	provider *pfirestore.Provider
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base, provider: provider}, nil
}

// FindByID loads the user profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	profile := toDomainProfile(doc.Data)
	profile.ID = doc.ID
	profile.LastSyncTime = doc.UpdateTime
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = doc.CreateTime
	}
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = doc.UpdateTime
	}
	return profile, nil
}

// UpdateProfile upserts the user profile. When LastSyncTime is set the mutation
// enforces optimistic locking against Firestore's update time.
func (r *UserRepository) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(profile.ID) == "" {
		return domain.UserProfile{}, errors.New("profile id is required")
	}

	now := time.Now().UTC()
	doc := fromDomainProfile(profile, now)

	if profile.LastSyncTime.IsZero() {
		result, err := r.base.Set(ctx, profile.ID, doc)
		if err != nil {
			return domain.UserProfile{}, err
		}
		saved := toDomainProfile(doc)
		saved.ID = profile.ID
		saved.LastSyncTime = result.UpdateTime
		return saved, nil
	}

	docID := profile.ID
	if err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		docRef, err := r.base.DocumentRef(ctx, docID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		if !snap.UpdateTime.Equal(profile.LastSyncTime) {
			return status.Error(codes.Aborted, "user profile stale update")
		}
		return tx.Set(docRef, doc)
	}); err != nil {
		return domain.UserProfile{}, err
	}

	return r.FindByID(ctx, docID)
}

// UpdateMembership writes the recomputed tier and delivered spend projection.
// The membership fields are merged so concurrent profile edits are untouched.
func (r *UserRepository) UpdateMembership(ctx context.Context, userID string, tier domain.MembershipTier, totalSpent int64, now time.Time) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}

	ref, err := r.base.DocumentRef(ctx, uid)
	if err != nil {
		return domain.UserProfile{}, err
	}

	_, err = ref.Set(ctx, map[string]any{
		"membershipTier": string(tier),
		"totalSpent":     totalSpent,
		"updatedAt":      now.UTC(),
	}, firestore.MergeAll)
	if err != nil {
		return domain.UserProfile{}, pfirestore.WrapError("users.update_membership", err)
	}

	return r.FindByID(ctx, uid)
}

type userDocument struct {
	UID            string    `firestore:"uid"`
	DisplayName    string    `firestore:"displayName"`
	Email          string    `firestore:"email"`
	Locale         string    `firestore:"locale"`
	Roles          []string  `firestore:"roles"`
	MembershipTier string    `firestore:"membershipTier"`
	TotalSpent     int64     `firestore:"totalSpent"`
	IsActive       bool      `firestore:"isActive"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func toDomainProfile(doc userDocument) domain.UserProfile {
	profile := domain.UserProfile{
		DisplayName:    doc.DisplayName,
		Email:          strings.TrimSpace(doc.Email),
		Locale:         strings.TrimSpace(doc.Locale),
		Roles:          cloneStringSlice(doc.Roles),
		MembershipTier: domain.MembershipTier(doc.MembershipTier),
		TotalSpent:     doc.TotalSpent,
		IsActive:       doc.IsActive,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
	if profile.MembershipTier == "" {
		profile.MembershipTier = domain.TierMember
	}
	return profile
}

func fromDomainProfile(profile domain.UserProfile, now time.Time) userDocument {
	doc := userDocument{
		UID:            profile.ID,
		DisplayName:    strings.TrimSpace(profile.DisplayName),
		Email:          strings.ToLower(strings.TrimSpace(profile.Email)),
		Locale:         strings.TrimSpace(profile.Locale),
		Roles:          normaliseRoles(profile.Roles),
		MembershipTier: string(profile.MembershipTier),
		TotalSpent:     profile.TotalSpent,
		IsActive:       profile.IsActive,
		CreatedAt:      profile.CreatedAt,
		UpdatedAt:      now,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.MembershipTier == "" {
		doc.MembershipTier = string(domain.TierMember)
	}
	if doc.Roles == nil {
		doc.Roles = []string{}
	}
	return doc
}

func cloneStringSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func normaliseRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	uniq := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		trimmed := strings.ToLower(strings.TrimSpace(role))
		if trimmed == "" {
			continue
		}
		uniq[trimmed] = struct{}{}
	}
	if len(uniq) == 0 {
		return nil
	}
	normalised := make([]string, 0, len(uniq))
	for role := range uniq {
		normalised = append(normalised, role)
	}
	sort.Strings(normalised)
	return normalised
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// DocumentPath constructs the document path for the provided user id.
func (r *UserRepository) DocumentPath(userID string) string {
	return fmt.Sprintf("%s/%s", userCollection, strings.TrimSpace(userID))
}
