package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/vegbox-admin/api/internal/domain"
	"github.com/vegbox-admin/api/internal/repositories"
)

const (
	documentNumberScope          = "order"
	documentNumberPadLength      = 3
	defaultDocumentNumberRetries = 5

	documentPrefixCredit = "DS"
	documentPrefixOther  = "RC"
)

// DocumentNumberGeneratorDeps bundles collaborators of the document number generator.
type DocumentNumberGeneratorDeps struct {
	Counters    CounterService
	Orders      repositories.OrderRepository
	Location    *time.Location
	MaxAttempts int
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type documentNumberGenerator struct {
	counters    CounterService
	orders      repositories.OrderRepository
	location    *time.Location
	maxAttempts int
	logger      func(context.Context, string, map[string]any)
}

var _ DocumentNumberGenerator = (*documentNumberGenerator)(nil)

// NewDocumentNumberGenerator builds a generator producing numbers such as
// RC150324001: prefix, ddmmyy of the delivery day, then the day's sequence.
func NewDocumentNumberGenerator(deps DocumentNumberGeneratorDeps) (DocumentNumberGenerator, error) {
	if deps.Counters == nil {
		return nil, errors.New("document number generator: counter service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("document number generator: order repository is required")
	}
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultDocumentNumberRetries
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &documentNumberGenerator{
		counters:    deps.Counters,
		orders:      deps.Orders,
		location:    loadBusinessLocation(deps.Location),
		maxAttempts: attempts,
		logger:      logger,
	}, nil
}

// Generate allocates a number that no order carries yet. Every attempt
// consumes a sequence value, so numbers of a day are unique but may skip.
func (g *documentNumberGenerator) Generate(ctx context.Context, order Order, customer Customer) (string, error) {
	if order.DeliveryDate.IsZero() {
		return "", invalidInput("deliveryDate", "delivery date is required")
	}

	key := dayKey(order.DeliveryDate, g.location)
	prefix := documentPrefix(customer.PayMethod) + key

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		value, err := g.counters.Next(ctx, documentNumberScope, key, CounterGenerationOptions{
			Prefix:    prefix,
			PadLength: documentNumberPadLength,
		})
		if err != nil {
			return "", err
		}

		taken, err := g.orders.ExistsDocumentNumber(ctx, value.Formatted)
		if err != nil {
			return "", mapRepositoryError("orders.exists_document_number", err, nil)
		}
		if !taken {
			return value.Formatted, nil
		}
		g.logger(ctx, "document_number.collision", map[string]any{
			"number":  value.Formatted,
			"attempt": attempt,
		})
	}

	return "", newError(ErrDocumentNumberExhausted, map[string]any{"attempts": g.maxAttempts},
		"%d attempts for day %s", g.maxAttempts, key)
}

func documentPrefix(method domain.PayMethod) string {
	if method == domain.PayMethodCredit {
		return documentPrefixCredit
	}
	return documentPrefixOther
}
