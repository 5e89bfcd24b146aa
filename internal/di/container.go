package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/vegbox-admin/api/internal/platform/config"
	"github.com/vegbox-admin/api/internal/platform/observability"
	"github.com/vegbox-admin/api/internal/repositories"
	"github.com/vegbox-admin/api/internal/services"
)

const meterName = "github.com/vegbox-admin/api/internal/services"

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Counters services.CounterService
	Numbers  services.DocumentNumberGenerator
	Orders   services.OrderService
	Ledger   services.PaymentLedgerService
	System   services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	publisher services.LedgerEventPublisher
	build     services.BuildInfo
	clock     func() time.Time
}

// WithLogger sets the fallback logger used by services outside request scope.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLedgerPublisher delivers ledger events downstream. Without one, events are dropped.
func WithLedgerPublisher(publisher services.LedgerEventPublisher) Option {
	return func(o *options) {
		o.publisher = publisher
	}
}

// WithBuildInfo reports build metadata through the system service.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *options) {
		o.build = info
	}
}

// WithClock overrides the clock handed to every service.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries.
func NewContainer(_ context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	svc, err := buildServices(reg, cfg, o)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(reg repositories.Registry, cfg config.Config, o options) (Services, error) {
	var svc Services
	logger := observability.EventLogger(o.logger)
	location := cfg.Business.Location
	if location == nil {
		location = time.UTC
	}

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      o.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	numbers, err := services.NewDocumentNumberGenerator(services.DocumentNumberGeneratorDeps{
		Counters:    counterSvc,
		Orders:      reg.Orders(),
		Location:    location,
		MaxAttempts: cfg.Numbering.MaxAttempts,
		Logger:      logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build document number generator: %w", err)
	}
	svc.Numbers = numbers

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       reg.Orders(),
		OrderDetails: reg.OrderDetails(),
		Customers:    reg.Customers(),
		Numbers:      numbers,
		UnitOfWork:   reg,
		Location:     location,
		Clock:        o.clock,
		Logger:       logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	ledgerSvc, err := services.NewPaymentLedgerService(services.PaymentLedgerServiceDeps{
		Orders:         reg.Orders(),
		PaymentLogs:    reg.PaymentLogs(),
		UnitOfWork:     reg,
		Events:         o.publisher,
		Clock:          o.clock,
		UndoWindow:     cfg.Ledger.UndoWindow,
		StateTolerance: cfg.Ledger.StateTolerance,
		IPHashSalt:     cfg.Ledger.IPHashSalt,
		Meter:          otel.Meter(meterName),
		Logger:         logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build payment ledger service: %w", err)
	}
	svc.Ledger = ledgerSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		build := o.build
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = o.clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            o.clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
