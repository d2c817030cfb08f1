package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout gives fn at most timeout to finish. fn runs on its own
// goroutine so a call that ignores ctx still cannot hold the caller past the
// deadline; its eventual result is discarded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(tctx) }()

	select {
	case err := <-result:
		return err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return fmt.Errorf("%s: %w after %v", name, context.DeadlineExceeded, timeout)
	}
}
