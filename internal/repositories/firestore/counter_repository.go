package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/vegbox-admin/api/internal/platform/firestore"
	"github.com/vegbox-admin/api/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	MaxValue     *int64    `firestore:"maxValue,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by Firestore transactions.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
	now      func() time.Time
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Next atomically increments the counter and returns the new value, creating it
// at step when absent. The increment commits in its own transaction even when
// ctx carries one, so a value is consumed whatever the caller does afterwards.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError("", repositories.CounterErrorInvalidInput, "counter id is required")
	}
	if step < 0 {
		return 0, repositories.NewCounterError(id, repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step))
	}

	var next int64
	err := r.provider.RunTransaction(pfirestore.WithoutTransaction(ctx), func(ctx context.Context, _ *firestore.Transaction) error {
		now := r.now()
		doc, err := r.counters.Get(ctx, id)
		if pfirestore.IsNotFound(err) {
			increment := step
			if increment <= 0 {
				increment = 1
			}
			next = increment
			return r.counters.Create(ctx, id, counterDocument{CurrentValue: increment, Step: increment, UpdatedAt: now})
		}
		if err != nil {
			return err
		}

		counter := doc.Data
		increment := step
		if increment <= 0 {
			increment = counter.Step
		}
		if increment <= 0 {
			increment = 1
		}
		value := counter.CurrentValue + increment
		if counter.MaxValue != nil && value > *counter.MaxValue {
			return repositories.NewCounterError(id, repositories.CounterErrorExhausted, fmt.Sprintf("exceeded max value %d", *counter.MaxValue))
		}

		counter.CurrentValue = value
		counter.Step = increment
		counter.UpdatedAt = now
		next = value
		return r.counters.Set(ctx, id, counter)
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return next, nil
}

// Configure updates optional settings for the counter such as step size, max value, or initial value.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return repositories.NewCounterError("", repositories.CounterErrorInvalidInput, "counter id is required")
	}
	if cfg.Step < 0 {
		return repositories.NewCounterError(id, repositories.CounterErrorInvalidInput, "step must not be negative")
	}

	payload := map[string]any{"updatedAt": r.now()}
	if cfg.Step > 0 {
		payload["step"] = cfg.Step
	}
	if cfg.MaxValue != nil {
		payload["maxValue"] = *cfg.MaxValue
	}
	if cfg.InitialValue != nil {
		payload["currentValue"] = *cfg.InitialValue
	}

	ref, err := r.counters.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, payload, firestore.MergeAll); err != nil {
		return pfirestore.WrapError("counters.configure", err)
	}
	return nil
}
