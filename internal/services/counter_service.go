package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopforge/fulfillment/internal/repositories"
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the requested counter cannot increment further due to max bounds.
	ErrCounterExhausted = errors.New("counter: exhausted")
)

// Order numbers are scoped per calendar year so the sequence restarts each January.
const orderCounterScope = "orders"

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	Clock      func() time.Time
}

type counterService struct {
	repo  repositories.CounterRepository
	clock func() time.Time

	mu      sync.Mutex
	applied map[string]string
}

// NewCounterService constructs a service that manages counter sequences on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &counterService{
		repo:    deps.Repository,
		clock:   func() time.Time { return clock().UTC() },
		applied: make(map[string]string),
	}, nil
}

func (s *counterService) Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error) {
	scope, name = strings.TrimSpace(scope), strings.TrimSpace(name)
	if scope == "" {
		return CounterValue{}, fmt.Errorf("%w: scope is required", ErrCounterInvalidInput)
	}
	if name == "" {
		return CounterValue{}, fmt.Errorf("%w: name is required", ErrCounterInvalidInput)
	}
	counterID := scope + ":" + name

	if err := s.applyConfig(ctx, counterID, opts); err != nil {
		return CounterValue{}, err
	}

	value, err := s.repo.Next(ctx, counterID, opts.Step)
	if err != nil {
		return CounterValue{}, mapCounterError(err)
	}

	formatted := fmt.Sprintf("%s%0*d", opts.Prefix, opts.PadLength, value)
	return CounterValue{Value: value, Formatted: formatted}, nil
}

// NextOrderNumber allocates the next order number from the year-scoped sequence.
func (s *counterService) NextOrderNumber(ctx context.Context) (string, error) {
	year := s.clock().Year()
	result, err := s.Next(ctx, orderCounterScope, fmt.Sprintf("%04d", year), CounterGenerationOptions{})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("OF-%04d-%06d", year, result.Value), nil
}

// applyConfig pushes step and bound settings to the repository once per
// distinct configuration. Repeat calls with the same options are a no-op so
// the hot allocation path does a single repository round trip.
func (s *counterService) applyConfig(ctx context.Context, counterID string, opts CounterGenerationOptions) error {
	cfg := repositories.CounterConfig{}
	hasConfig := false
	if opts.Step > 0 {
		cfg.Step = opts.Step
		hasConfig = true
	}
	if opts.MaxValue != nil {
		bound := *opts.MaxValue
		cfg.MaxValue = &bound
		hasConfig = true
	}
	if opts.InitialValue != nil {
		start := *opts.InitialValue
		cfg.InitialValue = &start
		hasConfig = true
	}

	fingerprint := counterConfigKey(cfg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied[counterID] == fingerprint {
		return nil
	}
	if hasConfig {
		if err := s.repo.Configure(ctx, counterID, cfg); err != nil {
			return err
		}
	}
	s.applied[counterID] = fingerprint
	return nil
}

func counterConfigKey(cfg repositories.CounterConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "step=%d", cfg.Step)
	if cfg.MaxValue != nil {
		fmt.Fprintf(&b, ";max=%d", *cfg.MaxValue)
	}
	if cfg.InitialValue != nil {
		fmt.Fprintf(&b, ";init=%d", *cfg.InitialValue)
	}
	return b.String()
}

func mapCounterError(err error) error {
	var counterErr *repositories.CounterError
	if !errors.As(err, &counterErr) {
		return err
	}
	switch counterErr.Code {
	case repositories.CounterErrorInvalidInput:
		return fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
	case repositories.CounterErrorExhausted:
		return fmt.Errorf("%w: %s", ErrCounterExhausted, counterErr.Message)
	default:
		return err
	}
}
