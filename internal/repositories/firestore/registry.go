package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/shopforge/fulfillment/internal/platform/firestore"
	"github.com/shopforge/fulfillment/internal/repositories"
)

// RegistryDeps bundles the collaborators required to build the Firestore registry.
type RegistryDeps struct {
	Provider *pfirestore.Provider
	// Health is injected because the dependency checks span more than Firestore.
	Health repositories.HealthRepository
}

// Registry wires every Firestore-backed repository behind the repositories.Registry contract.
type Registry struct {
	provider      *pfirestore.Provider
	orders        *OrderRepository
	discounts     *DiscountRepository
	users         *UserRepository
	wallets       *WalletRepository
	carts         *CartRepository
	notifications *NotificationRepository
	auditLogs     *AuditLogRepository
	counters      *CounterRepository
	health        repositories.HealthRepository
}

// NewRegistry constructs the Firestore repository registry.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	orders, err := NewOrderRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	discounts, err := NewDiscountRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	wallets, err := NewWalletRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	notifications, err := NewNotificationRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	auditLogs, err := NewAuditLogRepository(deps.Provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(deps.Provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:      deps.Provider,
		orders:        orders,
		discounts:     discounts,
		users:         users,
		wallets:       wallets,
		carts:         carts,
		notifications: notifications,
		auditLogs:     auditLogs,
		counters:      counters,
		health:        deps.Health,
	}, nil
}

// RunInTx executes fn inside a Firestore transaction. Repository calls made
// with the derived context join the transaction. Nested calls reuse the
// transaction already present.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if _, ok := transactionFrom(ctx); ok {
		return fn(ctx)
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(withTransaction(ctx, tx))
	})
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Orders() repositories.OrderRepository               { return r.orders }
func (r *Registry) Discounts() repositories.DiscountRepository         { return r.discounts }
func (r *Registry) Users() repositories.UserRepository                 { return r.users }
func (r *Registry) Wallets() repositories.WalletRepository             { return r.wallets }
func (r *Registry) Carts() repositories.CartRepository                 { return r.carts }
func (r *Registry) Notifications() repositories.NotificationRepository { return r.notifications }
func (r *Registry) AuditLogs() repositories.AuditLogRepository         { return r.auditLogs }
func (r *Registry) Counters() repositories.CounterRepository           { return r.counters }
func (r *Registry) Health() repositories.HealthRepository              { return r.health }

var _ repositories.Registry = (*Registry)(nil)
