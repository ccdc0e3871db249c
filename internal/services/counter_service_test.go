package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopforge/fulfillment/internal/repositories"
)

// memCounterRepo keeps sequences in a map and records every Configure call.
type memCounterRepo struct {
	values     map[string]int64
	configured map[string][]repositories.CounterConfig
	failWith   error
}

func newMemCounterRepo() *memCounterRepo {
	return &memCounterRepo{
		values:     make(map[string]int64),
		configured: make(map[string][]repositories.CounterConfig),
	}
}

func (m *memCounterRepo) Next(_ context.Context, counterID string, step int64) (int64, error) {
	if m.failWith != nil {
		return 0, m.failWith
	}
	if step <= 0 {
		step = 1
	}
	m.values[counterID] += step
	return m.values[counterID], nil
}

func (m *memCounterRepo) Configure(_ context.Context, counterID string, cfg repositories.CounterConfig) error {
	m.configured[counterID] = append(m.configured[counterID], cfg)
	return nil
}

func counterClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCounterServiceNextFormatsValue(t *testing.T) {
	repo := newMemCounterRepo()
	repo.values["invoices:global"] = 37

	svc, err := NewCounterService(CounterServiceDeps{
		Repository: repo,
		Clock:      counterClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	value, err := svc.Next(context.Background(), "invoices", "global", CounterGenerationOptions{
		Step:      5,
		Prefix:    "INV-",
		PadLength: 4,
	})
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if value.Value != 42 {
		t.Fatalf("expected raw value 42, got %d", value.Value)
	}
	if value.Formatted != "INV-0042" {
		t.Fatalf("expected formatted INV-0042, got %s", value.Formatted)
	}
}

func TestCounterServiceConfiguresOncePerOptions(t *testing.T) {
	repo := newMemCounterRepo()
	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	ctx := context.Background()
	opts := CounterGenerationOptions{Step: 5}
	for range 3 {
		if _, err := svc.Next(ctx, "invoices", "global", opts); err != nil {
			t.Fatalf("next: %v", err)
		}
	}

	calls := repo.configured["invoices:global"]
	if len(calls) != 1 {
		t.Fatalf("expected configure called once, got %d", len(calls))
	}
	if calls[0].Step != 5 {
		t.Fatalf("expected configure step 5, got %d", calls[0].Step)
	}
}

func TestCounterServiceValidatesScopeAndName(t *testing.T) {
	svc, err := NewCounterService(CounterServiceDeps{Repository: newMemCounterRepo()})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	if _, err := svc.Next(context.Background(), " ", "global", CounterGenerationOptions{}); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input for blank scope, got %v", err)
	}
	if _, err := svc.Next(context.Background(), "invoices", "", CounterGenerationOptions{}); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input for blank name, got %v", err)
	}
}

func TestCounterServiceMapsRepositoryErrors(t *testing.T) {
	repo := newMemCounterRepo()
	repo.failWith = repositories.NewCounterError(repositories.CounterErrorExhausted, "limit", nil)

	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	_, err = svc.Next(context.Background(), "test", "limit", CounterGenerationOptions{})
	if !errors.Is(err, ErrCounterExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
}

func TestCounterServiceNextOrderNumber(t *testing.T) {
	repo := newMemCounterRepo()
	repo.values["orders:2025"] = 6

	svc, err := NewCounterService(CounterServiceDeps{
		Repository: repo,
		Clock:      counterClock(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	result, err := svc.NextOrderNumber(context.Background())
	if err != nil {
		t.Fatalf("next order number: %v", err)
	}
	if result != "OF-2025-000007" {
		t.Fatalf("expected formatted order number, got %s", result)
	}
	if repo.values["orders:2025"] != 7 {
		t.Fatalf("expected year-scoped counter to advance, got %#v", repo.values)
	}
}
