package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/jmcgover/ngrambot/pkg/errors"
)

// WithTimeout runs fn under a context that expires after timeout. When the
// deadline passes first the result wraps apperrors.ErrTimeout; fn keeps
// running in the background until it notices its context.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return fmt.Errorf("%w: %s exceeded %v", apperrors.ErrTimeout, name, timeout)
	}
}
