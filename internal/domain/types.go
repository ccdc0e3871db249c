package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates an operator accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusShipped indicates the order has been handed to delivery.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the customer confirmed receipt.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusReturnRequested indicates the customer asked to return the order.
	OrderStatusReturnRequested OrderStatus = "return_requested"
	// OrderStatusReturned indicates the return was approved and refunded.
	OrderStatusReturned OrderStatus = "returned"
	// OrderStatusCancelled indicates the order was cancelled before shipping.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentMethod enumerates supported settlement methods recorded on an order.
type PaymentMethod string

const (
	// PaymentMethodCOD indicates cash on delivery.
	PaymentMethodCOD PaymentMethod = "COD"
	// PaymentMethodCard indicates a card payment recorded at checkout.
	PaymentMethodCard PaymentMethod = "CARD"
)

// Order captures order headers returned to handlers/services.
type Order struct {
	ID                    string
	OrderNumber           string
	UserID                string
	Status                OrderStatus
	Items                 []OrderItem
	Subtotal              int64
	TotalPrice            int64
	Discount              *AppliedDiscount
	PaymentMethod         PaymentMethod
	ReturnReason          *string
	ReturnImagePath       *string
	ReturnRejectionReason *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ConfirmedAt           *time.Time
	ShippedAt             *time.Time
	DeliveredAt           *time.Time
	ReturnRequestedAt     *time.Time
	ReturnedAt            *time.Time
	CancelledAt           *time.Time
	Metadata              map[string]any
}

// OrderItem mirrors cart items at the time of checkout. Unit prices are
// snapshotted in the smallest currency unit and never re-read from catalog.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	Subtotal  int64
}

// AppliedDiscount stores the discount snapshot resolved at checkout.
type AppliedDiscount struct {
	Code   string
	Amount int64
}

// DiscountCap bounds the computed discount amount. When Unbounded is set
// the percentage applies without an upper limit and MinDiscount acts as a
// floor instead.
type DiscountCap struct {
	Unbounded bool
	Max       int64
}

// Discount describes a promotional code persisted by admin services.
type Discount struct {
	ID            string
	Code          string
	Description   string
	Percentage    int
	MinOrderValue int64
	Cap           DiscountCap
	MinDiscount   int64
	StartDate     time.Time
	EndDate       time.Time
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MembershipTier enumerates loyalty tiers derived from delivered orders.
type MembershipTier string

const (
	// TierMember is the default tier for every account.
	TierMember MembershipTier = "Member"
	// TierSilver requires at least 10 delivered orders and 80000 spent.
	TierSilver MembershipTier = "Silver"
	// TierGold requires at least 20 delivered orders and 160000 spent.
	TierGold MembershipTier = "Gold"
	// TierDiamond requires at least 30 delivered orders and 240000 spent.
	TierDiamond MembershipTier = "Diamond"
)

// UserProfile captures the canonical projection of a Firebase Auth user.
type UserProfile struct {
	ID             string
	DisplayName    string
	Email          string
	Locale         string
	Roles          []string
	MembershipTier MembershipTier
	TotalSpent     int64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastSyncTime   time.Time
}

// Wallet aggregates the refund balance held for a user, in the smallest
// currency unit. Balance never goes negative.
type Wallet struct {
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}

// WalletTransactionType enumerates ledger entry kinds.
type WalletTransactionType string

const (
	// WalletTransactionRefund credits the wallet when a return is approved.
	WalletTransactionRefund WalletTransactionType = "refund"
	// WalletTransactionDebit spends wallet balance at checkout.
	WalletTransactionDebit WalletTransactionType = "debit"
)

// WalletTransaction stores an immutable ledger entry for a wallet mutation.
type WalletTransaction struct {
	ID        string
	UserID    string
	Type      WalletTransactionType
	Amount    int64
	OrderID   string
	CreatedAt time.Time
}

// Cart aggregates the mutable shopping cart state for a user. Carts are
// keyed by user ID and drained atomically at checkout.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem stores a single product entry within a cart.
type CartItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice int64
	AddedAt   time.Time
}

// NotificationChannel identifies the audience of a notification.
type NotificationChannel string

const (
	// ChannelUser targets the order owner.
	ChannelUser NotificationChannel = "user"
	// ChannelAdmin targets the shared operator feed.
	ChannelAdmin NotificationChannel = "admin"
)

// Notification stores a persisted message produced by order lifecycle fan-out.
type Notification struct {
	ID          string
	RecipientID string
	Channel     NotificationChannel
	OrderID     string
	OrderStatus OrderStatus
	Message     string
	Read        bool
	CreatedAt   time.Time
	ReadAt      *time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// AuditLogEntry stores normalized audit information for admin actions.
type AuditLogEntry struct {
	ID        string
	Actor     string
	ActorType string
	Action    string
	TargetRef string
	Metadata  map[string]any
	Diff      map[string]any
	IPHash    string
	UserAgent string
	Severity  string
	RequestID string
	CreatedAt time.Time
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
