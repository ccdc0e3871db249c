package repositories

import (
	"context"
	"time"

	domain "github.com/shopforge/fulfillment/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Discounts() DiscountRepository
	Users() UserRepository
	Wallets() WalletRepository
	Carts() CartRepository
	Notifications() NotificationRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderRepository persists order headers and provides query helpers for users and admins.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	// Update performs a compare-and-set keyed on the expected status. It must
	// return a conflict RepositoryError when the stored status no longer
	// matches expectedStatus.
	Update(ctx context.Context, order domain.Order, expectedStatus domain.OrderStatus) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	// AggregateDelivered returns the count and summed total of orders that
	// currently count towards membership (delivered or return_requested).
	AggregateDelivered(ctx context.Context, userID string) (OrderAggregate, error)
}

// OrderAggregate summarises delivered order volume for a user.
type OrderAggregate struct {
	Count      int
	TotalSpent int64
}

// DiscountRepository maintains discount definitions keyed by their uppercase code.
type DiscountRepository interface {
	Insert(ctx context.Context, discount domain.Discount) error
	Update(ctx context.Context, discount domain.Discount) error
	Delete(ctx context.Context, discountID string) error
	FindByID(ctx context.Context, discountID string) (domain.Discount, error)
	FindByCode(ctx context.Context, code string) (domain.Discount, error)
	List(ctx context.Context, filter DiscountListFilter) (domain.CursorPage[domain.Discount], error)
}

// UserRepository stores user profiles including membership projections.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
	// UpdateMembership writes the recomputed tier and total spend for a user.
	UpdateMembership(ctx context.Context, userID string, tier domain.MembershipTier, totalSpent int64, now time.Time) (domain.UserProfile, error)
}

// WalletRepository stores per-user refund balances with atomic mutation guarantees.
type WalletRepository interface {
	Get(ctx context.Context, userID string) (domain.Wallet, error)
	// Credit atomically increments the balance and appends a ledger entry.
	Credit(ctx context.Context, userID string, txn domain.WalletTransaction) (domain.Wallet, error)
	// Debit atomically decrements the balance, failing with a conflict
	// RepositoryError when the balance would go negative.
	Debit(ctx context.Context, userID string, txn domain.WalletTransaction) (domain.Wallet, error)
	ListTransactions(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.WalletTransaction], error)
}

// CartRepository owns cart persistence keyed by user ID.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Upsert(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	// Drain removes the cart document. Checkout calls this inside the same
	// unit of work that inserts the order.
	Drain(ctx context.Context, userID string) error
}

// NotificationRepository persists fan-out messages per recipient or channel.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	List(ctx context.Context, filter NotificationListFilter) (domain.CursorPage[domain.Notification], error)
	MarkRead(ctx context.Context, recipientID string, notificationID string, readAt time.Time) (domain.Notification, error)
	MarkAllRead(ctx context.Context, recipientID string, readAt time.Time) (int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

type DiscountListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

type NotificationListFilter struct {
	RecipientID string
	Channel     domain.NotificationChannel
	UnreadOnly  bool
	Pagination  domain.Pagination
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
