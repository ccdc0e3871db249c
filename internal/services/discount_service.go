package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/repositories"
)

const discountIDPrefix = "dsc_"

// DiscountServiceDeps bundles dependencies required to construct a DiscountService implementation.
type DiscountServiceDeps struct {
	Discounts   repositories.DiscountRepository
	Audit       AuditLogService
	Clock       func() time.Time
	IDGenerator func() string
}

type discountService struct {
	repo  repositories.DiscountRepository
	audit AuditLogService
	clock func() time.Time
	newID func() string
}

// NewDiscountService wires a DiscountService backed by the provided repository.
func NewDiscountService(deps DiscountServiceDeps) (DiscountService, error) {
	if deps.Discounts == nil {
		return nil, errors.New("discount service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	return &discountService{
		repo:  deps.Discounts,
		audit: deps.Audit,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

func (s *discountService) Resolve(ctx context.Context, cmd ResolveDiscountCommand) (AppliedDiscount, error) {
	code := normalizeDiscountCode(cmd.Code)
	if code == "" {
		return AppliedDiscount{}, fmt.Errorf("%w: discount code is required", ErrDiscountInvalidInput)
	}
	if cmd.OrderTotal < 0 {
		return AppliedDiscount{}, fmt.Errorf("%w: order total must not be negative", ErrDiscountInvalidInput)
	}

	discount, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return AppliedDiscount{}, s.mapRepositoryError(err)
	}

	at := cmd.At
	if at.IsZero() {
		at = s.clock()
	}

	if !discount.IsActive {
		return AppliedDiscount{}, fmt.Errorf("%w: code %s", ErrDiscountInactive, code)
	}
	if at.Before(discount.StartDate) {
		return AppliedDiscount{}, fmt.Errorf("%w: code %s opens at %s", ErrDiscountNotYetActive, code, discount.StartDate.Format(time.RFC3339))
	}
	if at.After(discount.EndDate) {
		return AppliedDiscount{}, fmt.Errorf("%w: code %s closed at %s", ErrDiscountExpired, code, discount.EndDate.Format(time.RFC3339))
	}
	if cmd.OrderTotal < discount.MinOrderValue {
		return AppliedDiscount{}, fmt.Errorf("%w: requires an order of at least %d", ErrDiscountBelowMinimum, discount.MinOrderValue)
	}

	amount := computeDiscountAmount(discount, cmd.OrderTotal)
	return AppliedDiscount{Code: discount.Code, Amount: amount}, nil
}

func (s *discountService) GetDiscount(ctx context.Context, discountID string) (Discount, error) {
	discountID = strings.TrimSpace(discountID)
	if discountID == "" {
		return Discount{}, fmt.Errorf("%w: discount id is required", ErrDiscountInvalidInput)
	}
	discount, err := s.repo.FindByID(ctx, discountID)
	if err != nil {
		return Discount{}, s.mapRepositoryError(err)
	}
	return discount, nil
}

func (s *discountService) ListDiscounts(ctx context.Context, filter DiscountListFilter) (domain.CursorPage[Discount], error) {
	page, err := s.repo.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Discount]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *discountService) CreateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (Discount, error) {
	now := s.clock()
	discount := Discount{
		ID:        discountIDPrefix + s.newID(),
		Code:      normalizeDiscountCode(cmd.Code),
		StartDate: cmd.StartDate.UTC(),
		EndDate:   cmd.EndDate.UTC(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cmd.Description != nil {
		discount.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Percentage != nil {
		discount.Percentage = *cmd.Percentage
	}
	if cmd.MinOrderValue != nil {
		discount.MinOrderValue = *cmd.MinOrderValue
	}
	if cmd.Cap != nil {
		discount.Cap = *cmd.Cap
	}
	if cmd.MinDiscount != nil {
		discount.MinDiscount = *cmd.MinDiscount
	}
	if cmd.IsActive != nil {
		discount.IsActive = *cmd.IsActive
	}

	if err := validateDiscount(discount); err != nil {
		return Discount{}, err
	}

	if err := s.repo.Insert(ctx, discount); err != nil {
		return Discount{}, s.mapRepositoryError(err)
	}
	s.recordDiscountAction(ctx, AuditActionDiscountCreated, discount, cmd.ActorID, "")
	return discount, nil
}

func (s *discountService) UpdateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (Discount, error) {
	discountID := strings.TrimSpace(cmd.DiscountID)
	if discountID == "" {
		return Discount{}, fmt.Errorf("%w: discount id is required", ErrDiscountInvalidInput)
	}

	discount, err := s.repo.FindByID(ctx, discountID)
	if err != nil {
		return Discount{}, s.mapRepositoryError(err)
	}

	// Nil command fields leave the stored value alone; a non-nil pointer
	// always wins, so zero is a settable value for floors and minimums.
	if code := normalizeDiscountCode(cmd.Code); code != "" {
		discount.Code = code
	}
	if cmd.Description != nil {
		discount.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Percentage != nil {
		discount.Percentage = *cmd.Percentage
	}
	if cmd.MinOrderValue != nil {
		discount.MinOrderValue = *cmd.MinOrderValue
	}
	if cmd.Cap != nil {
		discount.Cap = *cmd.Cap
	}
	if cmd.MinDiscount != nil {
		discount.MinDiscount = *cmd.MinDiscount
	}
	if !cmd.StartDate.IsZero() {
		discount.StartDate = cmd.StartDate.UTC()
	}
	if !cmd.EndDate.IsZero() {
		discount.EndDate = cmd.EndDate.UTC()
	}
	if cmd.IsActive != nil {
		discount.IsActive = *cmd.IsActive
	}
	discount.UpdatedAt = s.clock()

	if err := validateDiscount(discount); err != nil {
		return Discount{}, err
	}

	if err := s.repo.Update(ctx, discount); err != nil {
		return Discount{}, s.mapRepositoryError(err)
	}
	s.recordDiscountAction(ctx, AuditActionDiscountUpdated, discount, cmd.ActorID, "")
	return discount, nil
}

func (s *discountService) DeactivateDiscount(ctx context.Context, discountID string, actorID string) (Discount, error) {
	discountID = strings.TrimSpace(discountID)
	if discountID == "" {
		return Discount{}, fmt.Errorf("%w: discount id is required", ErrDiscountInvalidInput)
	}

	discount, err := s.repo.FindByID(ctx, discountID)
	if err != nil {
		return Discount{}, s.mapRepositoryError(err)
	}
	if !discount.IsActive {
		return discount, nil
	}

	discount.IsActive = false
	discount.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, discount); err != nil {
		return Discount{}, s.mapRepositoryError(err)
	}
	s.recordDiscountAction(ctx, AuditActionDiscountDeactivated, discount, actorID, "")
	return discount, nil
}

func (s *discountService) recordDiscountAction(ctx context.Context, action string, discount Discount, actorID string, reason string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      actorID,
		ActorType:  "staff",
		Action:     action,
		TargetRef:  "/discounts/" + discount.ID,
		Reason:     reason,
		Metadata:   map[string]any{"code": discount.Code},
		OccurredAt: s.clock(),
	})
}

func (s *discountService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrDiscountNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrDiscountConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("discount: repository unavailable: %w", err)
		}
	}

	return err
}

// computeDiscountAmount applies the percentage, clamps to the cap when one
// is configured, then raises the result to the configured floor. The result
// never exceeds the order total.
func computeDiscountAmount(discount Discount, orderTotal int64) int64 {
	amount := orderTotal * int64(discount.Percentage) / 100

	if !discount.Cap.Unbounded && amount > discount.Cap.Max {
		amount = discount.Cap.Max
	}
	if amount < discount.MinDiscount {
		amount = discount.MinDiscount
	}

	if amount > orderTotal {
		amount = orderTotal
	}
	if amount < 0 {
		amount = 0
	}
	return amount
}

func validateDiscount(discount Discount) error {
	if discount.Code == "" {
		return fmt.Errorf("%w: discount code is required", ErrDiscountInvalidInput)
	}
	if discount.Percentage <= 0 || discount.Percentage > 100 {
		return fmt.Errorf("%w: percentage must be within (0, 100]", ErrDiscountInvalidInput)
	}
	if discount.MinOrderValue < 0 {
		return fmt.Errorf("%w: minimum order value must not be negative", ErrDiscountInvalidInput)
	}
	if !discount.Cap.Unbounded && discount.Cap.Max <= 0 {
		return fmt.Errorf("%w: bounded discounts require a positive cap", ErrDiscountInvalidInput)
	}
	if discount.MinDiscount < 0 {
		return fmt.Errorf("%w: minimum discount must not be negative", ErrDiscountInvalidInput)
	}
	if !discount.EndDate.After(discount.StartDate) {
		return fmt.Errorf("%w: end date must be after start date", ErrDiscountInvalidInput)
	}
	return nil
}

func normalizeDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
