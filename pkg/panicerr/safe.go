package panicerr

import (
	"context"
	"log/slog"

	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn so that a panic is returned as an error instead of crashing
// the process.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Safe(func() error { return fn(ctx) })()
	}
}

// Supervise runs a long-lived background worker and logs how it ended.
// Cancellation of ctx is a clean stop.
func Supervise(ctx context.Context, name string, fn func(context.Context) error) {
	err := SafeContext(fn)(ctx)
	switch {
	case err == nil, ctx.Err() != nil:
		slog.InfoContext(ctx, "worker stopped", "worker", name)
	default:
		slog.ErrorContext(ctx, "worker failed", "worker", name, "error", err)
	}
}
