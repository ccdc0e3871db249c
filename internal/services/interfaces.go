package services

import (
	"context"
	"time"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination          = domain.Pagination
	SortOrder           = domain.SortOrder
	Order               = domain.Order
	OrderItem           = domain.OrderItem
	OrderStatus         = domain.OrderStatus
	PaymentMethod       = domain.PaymentMethod
	AppliedDiscount     = domain.AppliedDiscount
	Discount            = domain.Discount
	DiscountCap         = domain.DiscountCap
	MembershipTier      = domain.MembershipTier
	UserProfile         = domain.UserProfile
	Wallet              = domain.Wallet
	WalletTransaction   = domain.WalletTransaction
	Cart                = domain.Cart
	CartItem            = domain.CartItem
	Notification        = domain.Notification
	NotificationChannel = domain.NotificationChannel
	SystemHealthReport  = domain.SystemHealthReport
	AuditLogEntry       = domain.AuditLogEntry
)

// OrderService encapsulates the order lifecycle: checkout, operator
// transitions, delivery confirmation, and the return flow.
type OrderService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, actor Actor) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter, actor Actor) (domain.CursorPage[Order], error)
	Confirm(ctx context.Context, cmd OrderActionCommand) (Order, error)
	Ship(ctx context.Context, cmd OrderActionCommand) (Order, error)
	ConfirmDelivery(ctx context.Context, cmd OrderActionCommand) (Order, error)
	Cancel(ctx context.Context, cmd OrderActionCommand) (Order, error)
	RequestReturn(ctx context.Context, cmd RequestReturnCommand) (Order, error)
	ApproveReturn(ctx context.Context, cmd OrderActionCommand) (Order, error)
	RejectReturn(ctx context.Context, cmd RejectReturnCommand) (Order, error)
}

// DiscountService resolves discount codes against an order total and exposes
// admin lifecycle operations.
type DiscountService interface {
	Resolve(ctx context.Context, cmd ResolveDiscountCommand) (AppliedDiscount, error)
	GetDiscount(ctx context.Context, discountID string) (Discount, error)
	ListDiscounts(ctx context.Context, filter DiscountListFilter) (domain.CursorPage[Discount], error)
	CreateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (Discount, error)
	UpdateDiscount(ctx context.Context, cmd UpsertDiscountCommand) (Discount, error)
	DeactivateDiscount(ctx context.Context, discountID string, actorID string) (Discount, error)
}

// MembershipService recomputes loyalty tiers from delivered order history.
type MembershipService interface {
	Recompute(ctx context.Context, userID string) (MembershipTier, error)
}

// WalletService exposes refund balances and the ledger behind them.
type WalletService interface {
	GetWallet(ctx context.Context, userID string) (Wallet, error)
	Credit(ctx context.Context, cmd WalletMutationCommand) (Wallet, error)
	Debit(ctx context.Context, cmd WalletMutationCommand) (Wallet, error)
	ListTransactions(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[WalletTransaction], error)
}

// CartService manages mutable cart state prior to checkout.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddOrUpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// NotificationService persists lifecycle fan-out messages and serves the
// per-user inbox.
type NotificationService interface {
	List(ctx context.Context, cmd ListNotificationsCommand) (domain.CursorPage[Notification], error)
	MarkRead(ctx context.Context, recipientID string, notificationID string) (Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

// UserService manages user profile projections.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error)
	SetUserActive(ctx context.Context, cmd SetUserActiveCommand) (UserProfile, error)
}

// SystemService aggregates utility endpoints (health checks, audit logs).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	ListAuditLogs(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// ErrorTranslator converts repository or platform errors into domain-aware sentinel errors.
type ErrorTranslator interface {
	Translate(err error) error
}

// DomainError represents a structured error with stable codes for transport across layers.
type DomainError interface {
	error
	Code() string
	SafeMessage() string
}

// Command and DTO definitions ------------------------------------------------

// Actor identifies the caller for authorization decisions inside services.
type Actor struct {
	UserID string
	Admin  bool
}

type CheckoutCommand struct {
	UserID        string
	PaymentMethod PaymentMethod
	DiscountCode  string
	Metadata      map[string]any
}

// OrderActionCommand drives a single status transition on an order.
type OrderActionCommand struct {
	OrderID string
	Actor   Actor
	Reason  string
}

type RequestReturnCommand struct {
	OrderID   string
	Actor     Actor
	Reason    string
	ImagePath string
}

type RejectReturnCommand struct {
	OrderID string
	Actor   Actor
	Reason  string
}

type OrderListFilter = repositories.OrderListFilter

type ResolveDiscountCommand struct {
	Code       string
	OrderTotal int64
	At         time.Time
}

type DiscountListFilter = repositories.DiscountListFilter

// UpsertDiscountCommand carries create and update inputs. Nil pointer fields
// are left untouched on update, so zero is a settable value (a cap of 0 or a
// floor reset to 0 round-trips unambiguously).
type UpsertDiscountCommand struct {
	DiscountID    string
	Code          string
	Description   *string
	Percentage    *int
	MinOrderValue *int64
	Cap           *DiscountCap
	MinDiscount   *int64
	StartDate     time.Time
	EndDate       time.Time
	IsActive      *bool
	ActorID       string
}

type WalletMutationCommand struct {
	UserID  string
	Amount  int64
	OrderID string
	ActorID string
}

type UpsertCartItemCommand struct {
	UserID    string
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
}

type RemoveCartItemCommand struct {
	UserID    string
	ProductID string
}

type ListNotificationsCommand struct {
	RecipientID string
	Channel     NotificationChannel
	UnreadOnly  bool
	Pagination  Pagination
}

type UpdateProfileCommand struct {
	UserID      string
	DisplayName *string
	Locale      *string
}

type SetUserActiveCommand struct {
	UserID  string
	Active  bool
	ActorID string
}

type AuditLogFilter = repositories.AuditLogFilter

// AuditLogRecord carries raw audit entry fields before sanitisation. Order
// transitions set FromStatus/ToStatus; refunds set Amount; reasons ride along
// for cancellations and return decisions.
type AuditLogRecord struct {
	Actor      string
	ActorType  string
	Action     string
	TargetRef  string
	FromStatus string
	ToStatus   string
	Reason     string
	Amount     int64
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
	Severity   string
	RequestID  string
	OccurredAt time.Time
}

// CounterService allocates monotonic sequence numbers for business documents.
// NextOrderNumber is the single source of order numbers; the generic Next
// serves ad hoc scoped sequences.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextOrderNumber(ctx context.Context) (string, error)
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	Prefix       string
	PadLength    int
	MaxValue     *int64
	InitialValue *int64
}

// CounterValue pairs the raw sequence value with its formatted rendering.
type CounterValue struct {
	Value     int64
	Formatted string
}
