package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"nanobot/pkg/bot"

	"golang.org/x/sync/errgroup"
)

// Kernel owns the event bus, service registry, command table, modules and drivers.
type Kernel struct {
	cfg config

	bus      *EventBus
	services *ServiceRegistry
	commands *commandTable

	mu      sync.RWMutex
	modules []*moduleRecord
	drivers []bot.Driver

	running atomic.Bool
}

// New creates a kernel. The command catalog service is registered up front.
func New(options ...Option) *Kernel {
	cfg := defaultConfig()
	for _, option := range options {
		option(&cfg)
	}

	k := &Kernel{
		cfg: cfg,
		bus: NewEventBus(bot.SubscriptionSpec{
			Buffer:         cfg.subscriptionBuffer,
			Workers:        cfg.subscriptionWorker,
			HandlerTimeout: cfg.handlerTimeout,
		}, cfg.onAsyncError),
		services: NewServiceRegistry(),
		commands: newCommandTable(),
	}
	if err := k.services.Register(bot.ServiceCommandCatalog, k.commands); err != nil {
		cfg.onAsyncError(context.Background(), "register command catalog", err)
	}

	return k
}

// EventBus exposes the kernel event bus.
func (k *Kernel) EventBus() bot.EventBus {
	return k.bus
}

// Services exposes the kernel service registry.
func (k *Kernel) Services() bot.ServiceRegistry {
	return k.services
}

// RegisterService registers a named service singleton.
func (k *Kernel) RegisterService(name string, service any) error {
	if err := k.services.Register(name, service); err != nil {
		return fmt.Errorf("register service %s: %w", name, err)
	}

	return nil
}

// RegisterDriver adds a driver to be started by Run.
func (k *Kernel) RegisterDriver(driver bot.Driver) error {
	if driver == nil {
		return fmt.Errorf("register driver: nil driver")
	}
	name := driver.Name()
	if name == "" {
		return fmt.Errorf("register driver: empty name")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if slices.ContainsFunc(k.drivers, func(existing bot.Driver) bool { return existing.Name() == name }) {
		return fmt.Errorf("register driver %s: %w", name, bot.ErrDriverAlreadyRegistered)
	}
	k.drivers = append(k.drivers, driver)

	return nil
}

// Run starts modules and drivers and blocks until ctx is canceled, every
// driver has returned, or one driver fails. Shutdown always runs before Run
// returns; cancellation is not reported as an error.
func (k *Kernel) Run(ctx context.Context) error {
	if !k.running.CompareAndSwap(false, true) {
		return fmt.Errorf("kernel run: already running")
	}
	defer k.running.Store(false)

	if err := k.startModules(ctx); err != nil {
		return err
	}

	runErr := k.superviseDrivers(ctx)
	if isCancellation(runErr) {
		runErr = nil
	}

	return errors.Join(runErr, k.shutdown(ctx))
}

// superviseDrivers runs every driver in one errgroup. The first driver
// failure cancels the others; waiting for them is bounded by the shutdown timeout.
func (k *Kernel) superviseDrivers(ctx context.Context) error {
	k.mu.RLock()
	drivers := slices.Clone(k.drivers)
	k.mu.RUnlock()

	group, groupCtx := errgroup.WithContext(ctx)
	sink := k.newDriverSink()
	for _, driver := range drivers {
		group.Go(func() error {
			err := protect("driver "+driver.Name()+" Start", func() error {
				return driver.Start(groupCtx, sink)
			})
			if err != nil && !isCancellation(err) {
				return fmt.Errorf("run driver %s: %w", driver.Name(), err)
			}
			return nil
		})
	}

	finished := make(chan error, 1)
	go func() {
		finished <- group.Wait()
	}()

	select {
	case err := <-finished:
		return err
	case <-groupCtx.Done():
	}

	select {
	case err := <-finished:
		return err
	case <-time.After(k.cfg.shutdownTimeout):
		return context.Cause(groupCtx)
	}
}

// shutdown stops drivers, then modules, then the bus, under one deadline that
// survives cancellation of ctx.
func (k *Kernel) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.shutdownTimeout)
	defer cancel()

	err := errors.Join(
		k.stopDrivers(shutdownCtx),
		k.stopModules(shutdownCtx),
		k.bus.Close(shutdownCtx),
	)
	if err != nil {
		return fmt.Errorf("kernel shutdown: %w", err)
	}

	return nil
}

// stopDrivers calls Shutdown in reverse registration order.
func (k *Kernel) stopDrivers(ctx context.Context) error {
	k.mu.RLock()
	drivers := slices.Clone(k.drivers)
	k.mu.RUnlock()

	var stopErr error
	for _, driver := range slices.Backward(drivers) {
		if err := protect("driver "+driver.Name()+" Shutdown", func() error { return driver.Shutdown(ctx) }); err != nil {
			stopErr = errors.Join(stopErr, fmt.Errorf("shutdown driver %s: %w", driver.Name(), err))
		}
	}

	return stopErr
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
