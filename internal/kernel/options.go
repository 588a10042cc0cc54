package kernel

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultModuleHookTimeout  = 5 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultSubscriptionBuffer = 256
	defaultSubscriptionWorker = 1
	// defaultHandlerTimeout covers one wordcount batch including a slow remote.
	defaultHandlerTimeout = 15 * time.Second
)

type config struct {
	moduleHookTimeout  time.Duration
	shutdownTimeout    time.Duration
	subscriptionBuffer int
	subscriptionWorker int
	handlerTimeout     time.Duration
	onAsyncError       func(context.Context, string, error)
}

// Option mutates kernel construction configuration.
type Option func(*config)

func defaultConfig() config {
	return config{
		moduleHookTimeout:  defaultModuleHookTimeout,
		shutdownTimeout:    defaultShutdownTimeout,
		subscriptionBuffer: defaultSubscriptionBuffer,
		subscriptionWorker: defaultSubscriptionWorker,
		handlerTimeout:     defaultHandlerTimeout,
		onAsyncError:       logAsyncError(slog.Default()),
	}
}

func logAsyncError(logger *slog.Logger) func(context.Context, string, error) {
	return func(ctx context.Context, scope string, err error) {
		logger.ErrorContext(ctx, "bot async error", "scope", scope, "error", err)
	}
}

func positiveDuration(target *time.Duration, value time.Duration) {
	if value > 0 {
		*target = value
	}
}

func positiveInt(target *int, value int) {
	if value > 0 {
		*target = value
	}
}

// WithModuleHookTimeout bounds each OnRegister, OnStart and OnShutdown call.
func WithModuleHookTimeout(timeout time.Duration) Option {
	return func(cfg *config) { positiveDuration(&cfg.moduleHookTimeout, timeout) }
}

// WithShutdownTimeout bounds the whole shutdown sequence.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(cfg *config) { positiveDuration(&cfg.shutdownTimeout, timeout) }
}

// WithDefaultSubscriptionBuffer sets the queue depth for subscriptions that leave it unset.
func WithDefaultSubscriptionBuffer(size int) Option {
	return func(cfg *config) { positiveInt(&cfg.subscriptionBuffer, size) }
}

// WithDefaultSubscriptionWorkers sets the worker count for subscriptions that leave it unset.
func WithDefaultSubscriptionWorkers(workers int) Option {
	return func(cfg *config) { positiveInt(&cfg.subscriptionWorker, workers) }
}

// WithDefaultHandlerTimeout sets the per-event deadline for subscriptions that leave it unset.
func WithDefaultHandlerTimeout(timeout time.Duration) Option {
	return func(cfg *config) { positiveDuration(&cfg.handlerTimeout, timeout) }
}

// WithLogger routes async errors to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.onAsyncError = logAsyncError(logger)
		}
	}
}

// WithAsyncErrorHandler replaces async error reporting entirely.
func WithAsyncErrorHandler(handler func(context.Context, string, error)) Option {
	return func(cfg *config) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}
