package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"nanobot/internal/driver"
	"nanobot/internal/kernel"
	"nanobot/modules/help"
	"nanobot/modules/identity"
	"nanobot/modules/wordcount"
	"nanobot/pkg/bot"

	"github.com/spf13/pflag"
)

func run(args []string) error {
	flags, err := parseFlags(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	registry, err := driver.Builtin()
	if err != nil {
		return fmt.Errorf("driver registry: %w", err)
	}
	cfg, err := loadConfig(flags, registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	k, err := assemble(ctx, logger, cfg, registry)
	if err != nil {
		return err
	}
	logger.Info("nanobot starting", "drivers", len(cfg.drivers), "regions", cfg.wordcount.Regions)

	if err := k.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run kernel: %w", err)
	}

	return nil
}

// assemble builds the kernel with its drivers, shared services and modules.
// Services are registered before modules so OnRegister can resolve them.
func assemble(ctx context.Context, logger *slog.Logger, cfg appConfig, registry *driver.Registry) (*kernel.Kernel, error) {
	k := kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultHandlerTimeout(cfg.handlerTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
	)

	runtimes, err := registry.Build(ctx, cfg.drivers, logger)
	if err != nil {
		return nil, fmt.Errorf("build drivers: %w", err)
	}
	router, err := driver.NewRouter(runtimes)
	if err != nil {
		return nil, fmt.Errorf("route drivers: %w", err)
	}
	for _, runtime := range runtimes {
		if err := k.RegisterDriver(runtime.Driver); err != nil {
			return nil, err
		}
	}

	services := []struct {
		name  string
		value any
	}{
		{bot.ServiceLogger, logger},
		{bot.ServiceSinkDispatcher, router},
	}
	for _, service := range services {
		if err := k.RegisterService(service.name, service.value); err != nil {
			return nil, err
		}
	}

	modules, err := newModules(cfg)
	if err != nil {
		return nil, err
	}
	for _, module := range modules {
		if err := k.RegisterModule(ctx, module); err != nil {
			return nil, err
		}
	}

	return k, nil
}

// newModules lists modules in registration order. help goes last so the
// catalog it renders is complete by the time anyone asks.
func newModules(cfg appConfig) ([]bot.Module, error) {
	counter, err := wordcount.New(cfg.wordcount)
	if err != nil {
		return nil, fmt.Errorf("new wordcount module: %w", err)
	}

	return []bot.Module{
		identity.New(identity.WithAdminIDs(cfg.adminIDs...)),
		counter,
		help.New(),
	}, nil
}
