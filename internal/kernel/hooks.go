package kernel

import (
	"context"
	"fmt"
	"time"
)

// protect runs fn and turns a panic into an error tagged with scope.
func protect(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s: panic recovered: %v", scope, recovered)
		}
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

	return nil
}

// callHook runs one lifecycle hook under its own deadline.
func callHook(ctx context.Context, timeout time.Duration, scope string, hook func(context.Context) error) error {
	hookCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return protect(scope, func() error {
		return hook(hookCtx)
	})
}
