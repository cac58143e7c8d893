// Package boff wraps common retry boilerplate around cenkalti/backoff.
// Chain RPC endpoints are flaky under load, so every per-item fetch in the
// pipeline goes through one of these helpers.
package boff

import (
	"context"
	"evm-contract-indexer/logger"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Retry runs operation with exponential backoff until it succeeds or ctx is
// cancelled.
func Retry[T any](ctx context.Context, operation func() (T, error), name string) (T, error) {
	return retry(ctx, operation, name, 0) // 0 means unbounded attempts
}

// RetryWithMaxTries gives up after maxTries attempts; the final error is
// returned to the caller instead of being retried forever. Used where a
// single bad item must not stall the rest of its batch.
func RetryWithMaxTries[T any](ctx context.Context, operation func() (T, error), name string, maxTries uint) (T, error) {
	return retry(ctx, operation, name, maxTries)
}

func retry[T any](ctx context.Context, operation func() (T, error), name string, maxTries uint) (T, error) {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithNotify(
			func(err error, d time.Duration) {
				logger.Debug("%s error: %s - retrying after %v", name, err, d)
			},
		),
	}
	if maxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(maxTries))
	}

	return backoff.Retry(ctx, operation, opts...)
}
