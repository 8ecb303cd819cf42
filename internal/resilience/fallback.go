package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no entry of a [FallbackGroup] produced a
// result, either because it failed or because its breaker was open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig is the breaker template applied to every entry of a
// [FallbackGroup]. The Name field is overwritten with the entry name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary value of type T and ordered alternates, each
// behind its own [CircuitBreaker]. Entries are tried in registration order.
//
// AddFallback must not be called concurrently with Execute; the group is
// assembled at startup and read-only afterwards.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
	log     *slog.Logger
}

// NewFallbackGroup returns a group whose first entry is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg, log: slog.Default()}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an alternate tried after every earlier entry.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(bc),
	})
}

// Names lists the entry names in the order they are tried.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// Primary returns the first entry.
func (fg *FallbackGroup[T]) Primary() T {
	return fg.entries[0].value
}

// Execute runs fn against each entry until one returns nil. See
// [ExecuteWithResult] for the failover rules.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult runs fn against each entry of fg until one succeeds and
// returns that entry's result.
//
// Entries with an open breaker are skipped. Once ctx is done failover stops
// and ctx's error is returned; the failing call is not charged to the entry's
// breaker. When every entry fails the last error is wrapped together with
// [ErrAllFailed].
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range fg.entries {
		e := &fg.entries[i]

		var (
			result  R
			callErr error
		)
		err := e.breaker.Execute(func() error {
			result, callErr = fn(e.value)
			if callErr != nil && ctx.Err() != nil {
				return nil
			}
			return callErr
		})
		switch {
		case errors.Is(err, ErrCircuitOpen):
			fg.log.Debug("skipping provider, circuit open", "provider", e.name)
			lastErr = err
			continue
		case callErr != nil && ctx.Err() != nil:
			return zero, ctx.Err()
		case err == nil:
			if i > 0 {
				fg.log.Info("served by fallback provider", "provider", e.name)
			}
			return result, nil
		}
		fg.log.Warn("provider failed, trying next", "provider", e.name, "err", err)
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
