package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/repositories"
)

// ErrMembershipInvalidInput signals the caller provided invalid data.
var ErrMembershipInvalidInput = errors.New("membership: invalid input")

// membershipRule pairs the minimum delivered order count and spend for a tier.
// Rules are ordered highest tier first; both thresholds must hold.
type membershipRule struct {
	Tier     domain.MembershipTier
	MinCount int
	MinSpent int64
}

var membershipRules = []membershipRule{
	{Tier: domain.TierDiamond, MinCount: 30, MinSpent: 240000},
	{Tier: domain.TierGold, MinCount: 20, MinSpent: 160000},
	{Tier: domain.TierSilver, MinCount: 10, MinSpent: 80000},
}

// MembershipServiceDeps bundles dependencies required to construct a MembershipService implementation.
type MembershipServiceDeps struct {
	Orders repositories.OrderRepository
	Users  repositories.UserRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type membershipService struct {
	orders repositories.OrderRepository
	users  repositories.UserRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewMembershipService wires a MembershipService backed by order aggregates.
func NewMembershipService(deps MembershipServiceDeps) (MembershipService, error) {
	if deps.Orders == nil {
		return nil, errors.New("membership service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("membership service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &membershipService{
		orders: deps.Orders,
		users:  deps.Users,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// Recompute derives the tier from scratch on every call. Approved returns
// shrink the aggregate, so tiers can move down as well as up.
func (s *membershipService) Recompute(ctx context.Context, userID string) (MembershipTier, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrMembershipInvalidInput)
	}

	aggregate, err := s.orders.AggregateDelivered(ctx, userID)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}

	tier := TierFor(aggregate.Count, aggregate.TotalSpent)

	profile, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", s.mapRepositoryError(err)
	}

	if profile.MembershipTier == tier && profile.TotalSpent == aggregate.TotalSpent {
		return tier, nil
	}

	if _, err := s.users.UpdateMembership(ctx, userID, tier, aggregate.TotalSpent, s.clock()); err != nil {
		return "", s.mapRepositoryError(err)
	}

	s.logger(ctx, "membership.tier.updated", map[string]any{
		"user":     userID,
		"previous": string(profile.MembershipTier),
		"tier":     string(tier),
		"count":    aggregate.Count,
		"spent":    aggregate.TotalSpent,
	})

	return tier, nil
}

// TierFor maps a delivered order count and total spend onto a tier.
func TierFor(count int, totalSpent int64) domain.MembershipTier {
	for _, rule := range membershipRules {
		if count >= rule.MinCount && totalSpent >= rule.MinSpent {
			return rule.Tier
		}
	}
	return domain.TierMember
}

// TierThreshold describes what it takes to reach a membership tier.
type TierThreshold struct {
	Tier     domain.MembershipTier
	MinCount int
	MinSpent int64
}

// NextTierThreshold returns the requirements for the tier directly above the
// given one. The second result is false when the tier is already the highest.
func NextTierThreshold(current domain.MembershipTier) (TierThreshold, bool) {
	for i := len(membershipRules) - 1; i >= 0; i-- {
		rule := membershipRules[i]
		if rule.Tier == current {
			if i == 0 {
				return TierThreshold{}, false
			}
			next := membershipRules[i-1]
			return TierThreshold{Tier: next.Tier, MinCount: next.MinCount, MinSpent: next.MinSpent}, true
		}
	}
	lowest := membershipRules[len(membershipRules)-1]
	return TierThreshold{Tier: lowest.Tier, MinCount: lowest.MinCount, MinSpent: lowest.MinSpent}, true
}

func (s *membershipService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("membership: repository unavailable: %w", err)
	}

	return err
}
