//go:build integration

package firestore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/vegbox-admin/api/internal/repositories"
)

func TestCounterRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "counter-test")

	repo, err := NewCounterRepository(provider)
	if err != nil {
		t.Fatalf("new counter repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 16
	results := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			value, err := repo.Next(ctx, "order_010624", 1)
			if err != nil {
				t.Errorf("next(%d): %v", idx, err)
				return
			}
			results[idx] = value
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, val := range results {
		if expected := int64(i + 1); val != expected {
			t.Fatalf("expected sequence %d at position %d, got %d (all %v)", expected, i, val, results)
		}
	}

	max := int64(3)
	start := int64(0)
	if err := repo.Configure(ctx, "order_020624", repositories.CounterConfig{
		Step:         1,
		MaxValue:     &max,
		InitialValue: &start,
	}); err != nil {
		t.Fatalf("configure counter: %v", err)
	}
	for i := int64(1); i <= max; i++ {
		value, err := repo.Next(ctx, "order_020624", 0)
		if err != nil {
			t.Fatalf("next bounded %d: %v", i, err)
		}
		if value != i {
			t.Fatalf("expected bounded counter %d got %d", i, value)
		}
	}
	_, err = repo.Next(ctx, "order_020624", 0)
	if code, ok := repositories.CounterErrorCodeOf(err); !ok || code != repositories.CounterErrorExhausted {
		t.Fatalf("expected exhausted counter error, got %v", err)
	}
}

func TestCounterRepositoryCommitsOutsideCallerTransaction(t *testing.T) {
	provider := newEmulatorProvider(t, "counter-tx-test")
	repo, err := NewCounterRepository(provider)
	if err != nil {
		t.Fatalf("new counter repository: %v", err)
	}
	ctx := context.Background()

	rollback := errors.New("rollback")
	err = provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		if _, err := repo.Next(ctx, "order_030624", 1); err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}

	value, err := repo.Next(ctx, "order_030624", 1)
	if err != nil {
		t.Fatalf("next after rollback: %v", err)
	}
	if value != 2 {
		t.Fatalf("expected consumed value to survive rollback, got %d", value)
	}
}
