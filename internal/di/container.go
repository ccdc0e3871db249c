package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopforge/fulfillment/internal/platform/config"
	"github.com/shopforge/fulfillment/internal/repositories"
	"github.com/shopforge/fulfillment/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders        services.OrderService
	Discounts     services.DiscountService
	Membership    services.MembershipService
	Wallets       services.WalletService
	Carts         services.CartService
	Notifications services.NotificationService
	Users         services.UserService
	Counters      services.CounterService
	System        services.SystemService
	Audit         services.AuditLogService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container assembly.
type Option func(*containerOptions)

type containerOptions struct {
	events services.OrderEventPublisher
}

// WithOrderEventPublisher injects the downstream publisher that receives order
// lifecycle events after the notification fan-out.
func WithOrderEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(o *containerOptions) {
		o.events = publisher
	}
}

// NewContainer constructs the runtime dependencies. Production wiring will provide real
// implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	var options containerOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	svc, err := buildServices(ctx, reg, cfg, options)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, options containerOptions) (Services, error) {
	var svc Services
	if reg == nil {
		return svc, nil
	}

	if auditRepo := reg.AuditLogs(); auditRepo != nil {
		auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
			Repository: auditRepo,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.Audit = auditSvc
	}

	if usersRepo := reg.Users(); usersRepo != nil {
		userSvc, err := services.NewUserService(services.UserServiceDeps{
			Users: usersRepo,
			Clock: time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build user service: %w", err)
		}
		svc.Users = userSvc
	}

	if discountRepo := reg.Discounts(); discountRepo != nil && cfg.Features.EnableDiscounts {
		discountSvc, err := services.NewDiscountService(services.DiscountServiceDeps{
			Discounts: discountRepo,
			Clock:     time.Now,
			Audit:     svc.Audit,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build discount service: %w", err)
		}
		svc.Discounts = discountSvc
	}

	if walletRepo := reg.Wallets(); walletRepo != nil {
		walletSvc, err := services.NewWalletService(services.WalletServiceDeps{
			Wallets: walletRepo,
			Clock:   time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build wallet service: %w", err)
		}
		svc.Wallets = walletSvc
	}

	if cartRepo := reg.Carts(); cartRepo != nil {
		cartSvc, err := services.NewCartService(services.CartServiceDeps{
			Repository: cartRepo,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build cart service: %w", err)
		}
		svc.Carts = cartSvc
	}

	if notificationRepo := reg.Notifications(); notificationRepo != nil {
		notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
			Notifications: notificationRepo,
			Clock:         time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build notification service: %w", err)
		}
		svc.Notifications = notificationSvc
	}

	counterRepo := reg.Counters()
	if counterRepo != nil {
		counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
			Repository: counterRepo,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build counter service: %w", err)
		}
		svc.Counters = counterSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build: services.BuildInfo{
				Environment: cfg.Security.Environment,
				StartedAt:   time.Now().UTC(),
			},
			Audit: svc.Audit,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	ordersRepo := reg.Orders()
	if ordersRepo != nil && reg.Users() != nil {
		membershipSvc, err := services.NewMembershipService(services.MembershipServiceDeps{
			Orders: ordersRepo,
			Users:  reg.Users(),
			Clock:  time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build membership service: %w", err)
		}
		svc.Membership = membershipSvc
	}

	if ordersRepo != nil && counterRepo != nil {
		events := options.events
		if notificationRepo := reg.Notifications(); notificationRepo != nil && cfg.Features.EnableNotifications {
			fanOut, err := services.NewNotificationFanOut(services.NotificationFanOutDeps{
				Notifications: notificationRepo,
				Next:          events,
				FailureCap:    cfg.Notifications.FailureLogCap,
				Clock:         time.Now,
			})
			if err != nil {
				return Services{}, fmt.Errorf("build notification fan-out: %w", err)
			}
			events = fanOut
		}

		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:       ordersRepo,
			Carts:        reg.Carts(),
			Wallets:      reg.Wallets(),
			Counters:     svc.Counters,
			Discounts:    svc.Discounts,
			Membership:   svc.Membership,
			Audit:        svc.Audit,
			UnitOfWork:   reg,
			ReturnWindow: cfg.Fulfillment.ReturnWindow,
			Clock:        time.Now,
			Events:       events,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	return svc, nil
}
