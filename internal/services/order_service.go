package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix             = "ord_"
	walletTransactionIDPrefix = "txn_"

	defaultReturnWindow = 7 * 24 * time.Hour
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the actor may not read or act on the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderEmptyCart indicates checkout found no items to place.
	ErrOrderEmptyCart = errors.New("order: cart is empty")
	// ErrOrderReturnWindowExpired indicates the return was requested too late.
	ErrOrderReturnWindowExpired = errors.New("order: return window expired")
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:         {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:       {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:         {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:       {domain.OrderStatusReturnRequested},
	domain.OrderStatusReturnRequested: {domain.OrderStatusReturned, domain.OrderStatusDelivered},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus domain.OrderStatus
	CurrentStatus  domain.OrderStatus
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Carts        repositories.CartRepository
	Wallets      repositories.WalletRepository
	Counters     CounterService
	Discounts    DiscountService
	Membership   MembershipService
	Audit        AuditLogService
	UnitOfWork   repositories.UnitOfWork
	ReturnWindow time.Duration
	Clock        func() time.Time
	IDGenerator  func() string
	Events       OrderEventPublisher
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	carts        repositories.CartRepository
	wallets      repositories.WalletRepository
	counters     CounterService
	discounts    DiscountService
	membership   MembershipService
	audit        AuditLogService
	unitOfWork   repositories.UnitOfWork
	returnWindow time.Duration
	clock        func() time.Time
	newID        func() string
	events       OrderEventPublisher
	logger       func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("order service: cart repository is required")
	}
	if deps.Wallets == nil {
		return nil, errors.New("order service: wallet repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	window := deps.ReturnWindow
	if window <= 0 {
		window = defaultReturnWindow
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

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:       deps.Orders,
		carts:        deps.Carts,
		wallets:      deps.Wallets,
		counters:     deps.Counters,
		discounts:    deps.Discounts,
		membership:   deps.Membership,
		audit:        deps.Audit,
		unitOfWork:   unit,
		returnWindow: window,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if cmd.PaymentMethod != domain.PaymentMethodCOD && cmd.PaymentMethod != domain.PaymentMethodCard {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	now := s.now()
	orderID := s.nextOrderID()
	number, err := s.counters.NextOrderNumber(ctx)
	if err != nil {
		return Order{}, err
	}

	var order Order
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		cart, err := s.carts.Get(txCtx, userID)
		if err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: nothing to check out", ErrOrderEmptyCart)
			}
			return s.mapRepositoryError(err)
		}
		if len(cart.Items) == 0 {
			return fmt.Errorf("%w: nothing to check out", ErrOrderEmptyCart)
		}

		items, subtotal := buildOrderItems(cart.Items)
		total := subtotal

		var applied *AppliedDiscount
		if code := strings.TrimSpace(cmd.DiscountCode); code != "" {
			if s.discounts == nil {
				return fmt.Errorf("%w: discount codes are not supported", ErrOrderInvalidInput)
			}
			resolved, err := s.discounts.Resolve(txCtx, ResolveDiscountCommand{
				Code:       code,
				OrderTotal: subtotal,
				At:         now,
			})
			if err != nil {
				return err
			}
			applied = &resolved
			total = subtotal - resolved.Amount
			if total < 0 {
				total = 0
			}
		}

		order = Order{
			ID:            orderID,
			OrderNumber:   number,
			UserID:        userID,
			Status:        domain.OrderStatusPending,
			Items:         items,
			Subtotal:      subtotal,
			TotalPrice:    total,
			Discount:      applied,
			PaymentMethod: cmd.PaymentMethod,
			Metadata:      cloneMap(cmd.Metadata),
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.carts.Drain(txCtx, userID); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CurrentStatus: order.Status,
		ActorID:       userID,
		OccurredAt:    now,
		Metadata:      maps.Clone(order.Metadata),
	})

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	if err := authorizeOwnerOrAdmin(order, actor); err != nil {
		return Order{}, err
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter, actor Actor) (domain.CursorPage[Order], error) {
	if !actor.Admin {
		filter.UserID = actor.UserID
	}
	if strings.TrimSpace(filter.UserID) == "" && !actor.Admin {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) Confirm(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	if !cmd.Actor.Admin {
		return Order{}, fmt.Errorf("%w: only operators may confirm orders", ErrOrderForbidden)
	}
	order, prev, err := s.transition(ctx, cmd.OrderID, cmd.Actor, domain.OrderStatusConfirmed, nil, nil)
	if err != nil {
		return Order{}, err
	}
	s.recordAdminAction(ctx, AuditActionOrderConfirmed, order, prev, cmd.Actor, "", 0)
	return order, nil
}

func (s *orderService) Ship(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	if !cmd.Actor.Admin {
		return Order{}, fmt.Errorf("%w: only operators may ship orders", ErrOrderForbidden)
	}
	order, prev, err := s.transition(ctx, cmd.OrderID, cmd.Actor, domain.OrderStatusShipped, nil, nil)
	if err != nil {
		return Order{}, err
	}
	s.recordAdminAction(ctx, AuditActionOrderShipped, order, prev, cmd.Actor, "", 0)
	return order, nil
}

func (s *orderService) ConfirmDelivery(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	order, _, err := s.transition(ctx, cmd.OrderID, cmd.Actor, domain.OrderStatusDelivered,
		func(order Order) error {
			if order.UserID != cmd.Actor.UserID {
				return fmt.Errorf("%w: only the order owner may confirm delivery", ErrOrderForbidden)
			}
			return nil
		}, nil)
	if err != nil {
		return Order{}, err
	}

	s.recomputeMembership(ctx, order.UserID)
	return order, nil
}

func (s *orderService) Cancel(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	reason := strings.TrimSpace(cmd.Reason)
	order, prev, err := s.transition(ctx, cmd.OrderID, cmd.Actor, domain.OrderStatusCancelled,
		func(order Order) error {
			if !cmd.Actor.Admin && order.UserID != cmd.Actor.UserID {
				return fmt.Errorf("%w: only the order owner may cancel", ErrOrderForbidden)
			}
			if !slices.Contains(cancellableStatuses, order.Status) {
				return fmt.Errorf("%w: order status %q cannot be cancelled", ErrOrderInvalidState, order.Status)
			}
			return nil
		},
		func(order *Order, now time.Time) error {
			if reason != "" {
				order.Metadata = ensureMap(order.Metadata)
				order.Metadata["cancelReason"] = reason
			}
			return nil
		})
	if err != nil {
		return Order{}, err
	}
	if cmd.Actor.Admin {
		s.recordAdminAction(ctx, AuditActionOrderCancelled, order, prev, cmd.Actor, reason, 0)
	}
	return order, nil
}

func (s *orderService) RequestReturn(ctx context.Context, cmd RequestReturnCommand) (Order, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return Order{}, fmt.Errorf("%w: return reason is required", ErrOrderInvalidInput)
	}
	imagePath := strings.TrimSpace(cmd.ImagePath)

	order, _, err := s.transition(ctx, cmd.OrderID, cmd.Actor, domain.OrderStatusReturnRequested,
		func(order Order) error {
			if order.UserID != cmd.Actor.UserID {
				return fmt.Errorf("%w: only the order owner may request a return", ErrOrderForbidden)
			}
			if order.Status != domain.OrderStatusDelivered {
				return fmt.Errorf("%w: returns require a delivered order, was %q", ErrOrderInvalidState, order.Status)
			}
			if order.DeliveredAt == nil || s.now().Sub(*order.DeliveredAt) > s.returnWindow {
				return fmt.Errorf("%w: returns are accepted within %s of delivery", ErrOrderReturnWindowExpired, s.returnWindow)
			}
			return nil
		},
		func(order *Order, now time.Time) error {
			order.ReturnReason = valuePtr(reason)
			order.ReturnImagePath = optionalString(imagePath)
			order.ReturnRejectionReason = nil
			return nil
		})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) ApproveReturn(ctx context.Context, cmd OrderActionCommand) (Order, error) {
	if !cmd.Actor.Admin {
		return Order{}, fmt.Errorf("%w: only operators may approve returns", ErrOrderForbidden)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.now()
	txnID := walletTransactionIDPrefix + s.newID()

	var order Order
	var prevStatus domain.OrderStatus
	// The wallet credit lands before the status write. A credit failure
	// aborts the unit of work and the order stays return_requested.
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		prev, err := s.applyStatusTransition(&loaded, domain.OrderStatusReturned, now)
		if err != nil {
			return err
		}

		txn := WalletTransaction{
			ID:        txnID,
			UserID:    loaded.UserID,
			Type:      domain.WalletTransactionRefund,
			Amount:    loaded.TotalPrice,
			OrderID:   loaded.ID,
			CreatedAt: now,
		}
		if _, err := s.wallets.Credit(txCtx, loaded.UserID, txn); err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.orders.Update(txCtx, loaded, prev); err != nil {
			return s.mapRepositoryError(err)
		}
		order = loaded
		prevStatus = prev
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: prevStatus,
		CurrentStatus:  order.Status,
		ActorID:        cmd.Actor.UserID,
		OccurredAt:     now,
		Metadata:       map[string]any{"refundAmount": order.TotalPrice},
	})

	s.recordAdminAction(ctx, AuditActionReturnApproved, order, prevStatus, cmd.Actor, "", order.TotalPrice)
	s.recomputeMembership(ctx, order.UserID)
	return order, nil
}

func (s *orderService) RejectReturn(ctx context.Context, cmd RejectReturnCommand) (Order, error) {
	if !cmd.Actor.Admin {
		return Order{}, fmt.Errorf("%w: only operators may reject returns", ErrOrderForbidden)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return Order{}, fmt.Errorf("%w: rejection reason is required", ErrOrderInvalidInput)
	}

	order, prev, err := s.transition(ctx, cmd.OrderID, cmd.Actor, domain.OrderStatusDelivered,
		func(order Order) error {
			if order.Status != domain.OrderStatusReturnRequested {
				return fmt.Errorf("%w: no return request on order status %q", ErrOrderInvalidState, order.Status)
			}
			return nil
		},
		func(order *Order, now time.Time) error {
			order.ReturnRejectionReason = valuePtr(reason)
			return nil
		})
	if err != nil {
		return Order{}, err
	}
	s.recordAdminAction(ctx, AuditActionReturnRejected, order, prev, cmd.Actor, reason, 0)
	return order, nil
}

// transition loads the order, authorizes, applies the status change, and
// persists it with a compare-and-set on the previously observed status.
// It returns the persisted order together with the status it moved from.
func (s *orderService) transition(
	ctx context.Context,
	orderID string,
	actor Actor,
	target domain.OrderStatus,
	authorize func(Order) error,
	mutate func(*Order, time.Time) error,
) (Order, domain.OrderStatus, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, "", fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.now()

	var order Order
	var prevStatus domain.OrderStatus
	// The read and the compare-and-set write share one unit of work so a
	// concurrent transition cannot slip in between them.
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if authorize != nil {
			if err := authorize(loaded); err != nil {
				return err
			}
		}
		prev, err := s.applyStatusTransition(&loaded, target, now)
		if err != nil {
			return err
		}
		if mutate != nil {
			if err := mutate(&loaded, now); err != nil {
				return err
			}
		}
		if err := s.orders.Update(txCtx, loaded, prev); err != nil {
			return s.mapRepositoryError(err)
		}
		order = loaded
		prevStatus = prev
		return nil
	})
	if err != nil {
		return Order{}, "", err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		PreviousStatus: prevStatus,
		CurrentStatus:  order.Status,
		ActorID:        actor.UserID,
		OccurredAt:     now,
	})

	return order, prevStatus, nil
}

func (s *orderService) applyStatusTransition(order *Order, target domain.OrderStatus, now time.Time) (domain.OrderStatus, error) {
	current := order.Status

	if !canTransition(current, target) {
		return "", fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current, target)
	}

	order.Status = target
	order.UpdatedAt = now
	s.updateTimestamps(order, target, now)

	return current, nil
}

func (s *orderService) updateTimestamps(order *Order, status domain.OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusConfirmed:
		order.ConfirmedAt = &now
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		// A return rejection lands back on delivered; the original delivery
		// time anchors the return window and must survive.
		if order.DeliveredAt == nil {
			order.DeliveredAt = &now
		}
	case domain.OrderStatusReturnRequested:
		order.ReturnRequestedAt = &now
	case domain.OrderStatusReturned:
		order.ReturnedAt = &now
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	}
}

func (s *orderService) recomputeMembership(ctx context.Context, userID string) {
	if s.membership == nil {
		return
	}
	if _, err := s.membership.Recompute(ctx, userID); err != nil {
		s.logger(ctx, "order.membership.recompute.failed", map[string]any{
			"user":  userID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

// recordAdminAction writes an audit entry for an operator mutation. Recording
// is best effort and never alters the outcome of the action it describes.
func (s *orderService) recordAdminAction(ctx context.Context, action string, order Order, from domain.OrderStatus, actor Actor, reason string, amount int64) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:      actor.UserID,
		ActorType:  "staff",
		Action:     action,
		TargetRef:  "/orders/" + order.ID,
		FromStatus: string(from),
		ToStatus:   string(order.Status),
		Reason:     reason,
		Amount:     amount,
		Metadata:   map[string]any{"orderNumber": order.OrderNumber},
		OccurredAt: s.now(),
	})
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": string(event.CurrentStatus),
		})
	}
}

func authorizeOwnerOrAdmin(order Order, actor Actor) error {
	if actor.Admin || order.UserID == actor.UserID {
		return nil
	}
	return fmt.Errorf("%w: order belongs to another user", ErrOrderForbidden)
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func buildOrderItems(items []CartItem) ([]OrderItem, int64) {
	lines := make([]OrderItem, 0, len(items))
	var subtotal int64
	for _, item := range items {
		line := OrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.UnitPrice * int64(item.Quantity),
		}
		subtotal += line.Subtotal
		lines = append(lines, line)
	}
	return lines, subtotal
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return maps.Clone(src)
}

func ensureMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	return src
}

func valuePtr[T any](v T) *T {
	return &v
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	ref := v
	return &ref
}

func canTransition(current, target domain.OrderStatus) bool {
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}
