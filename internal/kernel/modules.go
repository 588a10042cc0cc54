package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"nanobot/pkg/bot"
)

// moduleRecord is the kernel's view of one registered module.
type moduleRecord struct {
	name         string
	module       bot.Module
	capabilities []bot.Capability

	mu   sync.Mutex
	subs []bot.Subscription
}

func (r *moduleRecord) track(sub bot.Subscription) {
	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()
}

// closeSubscriptions closes and forgets every tracked subscription.
func (r *moduleRecord) closeSubscriptions(ctx context.Context) error {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	var closeErr error
	for _, sub := range subs {
		if err := sub.Close(ctx); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close subscription %s: %w", sub.Name(), err))
		}
	}

	return closeErr
}

// moduleRuntime is the bot.ModuleRuntime handed to one module.
type moduleRuntime struct {
	kernel *Kernel
	record *moduleRecord
}

// Services returns the kernel service registry.
func (r *moduleRuntime) Services() bot.ServiceRegistry {
	return r.kernel.services
}

// Subscribe registers a module-owned subscription covered by a declared capability.
func (r *moduleRuntime) Subscribe(
	ctx context.Context,
	interest bot.InterestSet,
	spec bot.SubscriptionSpec,
	handler bot.EventHandler,
) (bot.Subscription, error) {
	if spec.Name == "" {
		spec.Name = r.record.name + "-subscription"
	}
	if err := permitted(r.record.capabilities, interest); err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.record.name, spec.Name, err)
	}

	sub, err := r.kernel.bus.Subscribe(ctx, interest, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.record.name, spec.Name, err)
	}
	r.record.track(sub)

	return sub, nil
}

// permitted reports whether some capability covers interest.
func permitted(capabilities []bot.Capability, interest bot.InterestSet) error {
	if len(capabilities) == 0 {
		return fmt.Errorf("%w: module declares no capabilities", bot.ErrInvalidSubscription)
	}
	for _, capability := range capabilities {
		if capability.Interest.Allows(interest) {
			return nil
		}
	}

	return fmt.Errorf("%w: interest not covered by any declared capability", bot.ErrInvalidSubscription)
}

// RegisterModule validates module, claims its commands, runs OnRegister and
// subscribes its declared handlers. Any failure undoes the registration.
func (k *Kernel) RegisterModule(ctx context.Context, module bot.Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty module name")
	}

	spec := module.Spec()
	if err := validateModuleSpec(spec); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}
	record := &moduleRecord{name: name, module: module, capabilities: spec.Capabilities()}
	if err := k.checkRequiredServices(record.capabilities); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}

	k.mu.Lock()
	if k.findModule(name) != nil {
		k.mu.Unlock()
		return fmt.Errorf("register module %s: %w", name, bot.ErrModuleAlreadyRegistered)
	}
	k.modules = append(k.modules, record)
	k.mu.Unlock()

	if err := k.wireModule(ctx, record, spec); err != nil {
		k.unregisterModule(ctx, record)
		return fmt.Errorf("register module %s: %w", name, err)
	}

	return nil
}

func (k *Kernel) wireModule(ctx context.Context, record *moduleRecord, spec bot.ModuleSpec) error {
	if err := k.commands.claim(record.name, spec.Commands); err != nil {
		return err
	}

	runtime := &moduleRuntime{kernel: k, record: record}
	if registrar, ok := record.module.(bot.ModuleRegistrar); ok {
		err := callHook(ctx, k.cfg.moduleHookTimeout, "module "+record.name+" OnRegister", func(hookCtx context.Context) error {
			return registrar.OnRegister(hookCtx, runtime)
		})
		if err != nil {
			return err
		}
	}

	for index, handler := range spec.Handlers {
		subscription := handler.Subscription
		if subscription.Name == "" {
			subscription.Name = fmt.Sprintf("%s-handler-%d", record.name, index+1)
		}
		if _, err := runtime.Subscribe(ctx, handler.Capability.Interest, subscription, handler.Handler); err != nil {
			return fmt.Errorf("register handler %s for capability %s: %w", subscription.Name, handler.Capability.Name, err)
		}
	}

	return nil
}

// unregisterModule reverses a partial registration.
func (k *Kernel) unregisterModule(ctx context.Context, record *moduleRecord) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.moduleHookTimeout)
	defer cancel()

	if err := record.closeSubscriptions(cleanupCtx); err != nil {
		k.cfg.onAsyncError(cleanupCtx, "unregister module "+record.name, err)
	}
	k.commands.release(record.name)

	k.mu.Lock()
	k.modules = slices.DeleteFunc(k.modules, func(candidate *moduleRecord) bool { return candidate == record })
	k.mu.Unlock()
}

// findModule must be called with k.mu held.
func (k *Kernel) findModule(name string) *moduleRecord {
	for _, record := range k.modules {
		if record.name == name {
			return record
		}
	}

	return nil
}

func (k *Kernel) snapshotModules() []*moduleRecord {
	k.mu.RLock()
	defer k.mu.RUnlock()

	return slices.Clone(k.modules)
}

// startModules calls OnStart in registration order and stops at the first failure.
func (k *Kernel) startModules(ctx context.Context) error {
	for _, record := range k.snapshotModules() {
		if err := callHook(ctx, k.cfg.moduleHookTimeout, "module "+record.name+" OnStart", record.module.OnStart); err != nil {
			return fmt.Errorf("start module %s: %w", record.name, err)
		}
	}

	return nil
}

// stopModules closes subscriptions and calls OnShutdown in reverse registration order.
func (k *Kernel) stopModules(ctx context.Context) error {
	var stopErr error
	for _, record := range slices.Backward(k.snapshotModules()) {
		if err := record.closeSubscriptions(ctx); err != nil {
			stopErr = errors.Join(stopErr, fmt.Errorf("shutdown module %s subscriptions: %w", record.name, err))
		}
		if err := callHook(ctx, k.cfg.moduleHookTimeout, "module "+record.name+" OnShutdown", record.module.OnShutdown); err != nil {
			stopErr = errors.Join(stopErr, fmt.Errorf("shutdown module %s: %w", record.name, err))
		}
	}

	return stopErr
}

func (k *Kernel) checkRequiredServices(capabilities []bot.Capability) error {
	for _, capability := range capabilities {
		for _, service := range capability.RequiredServices {
			if _, err := k.services.Resolve(service); err != nil {
				return fmt.Errorf("capability %s: %w (registered: %s)",
					capability.Name, err, strings.Join(k.services.Names(), ", "))
			}
		}
	}

	return nil
}

// validateModuleSpec rejects specs with unnamed, duplicated or unbound entries.
func validateModuleSpec(spec bot.ModuleSpec) error {
	capabilities := make(map[string]struct{})
	subscriptions := make(map[string]struct{})
	commands := make(map[string]struct{})

	for index, handler := range spec.Handlers {
		name := handler.Capability.Name
		if name == "" {
			return fmt.Errorf("module handler %d: empty capability name", index)
		}
		if !addName(capabilities, name) {
			return fmt.Errorf("module handler %d: duplicate capability name %s", index, name)
		}
		if handler.Handler == nil {
			return fmt.Errorf("module handler %s: nil handler", name)
		}
		if sub := handler.Subscription.Name; sub != "" && !addName(subscriptions, sub) {
			return fmt.Errorf("module handler %s: duplicate subscription name %s", name, sub)
		}
	}

	for index, capability := range spec.AdditionalCapabilities {
		if capability.Name == "" {
			return fmt.Errorf("additional capability %d: empty capability name", index)
		}
		if !addName(capabilities, capability.Name) {
			return fmt.Errorf("additional capability %d: duplicate capability name %s", index, capability.Name)
		}
	}

	for index, command := range spec.Commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("module command %d: %w", index, err)
		}
		if !addName(commands, commandKey(command.Prefix, command.Name)) {
			return fmt.Errorf("module command %d: duplicate command %s", index, displayCommand(command.Prefix, command.Name))
		}
	}

	return nil
}

// addName inserts name and reports whether it was new.
func addName(set map[string]struct{}, name string) bool {
	if _, exists := set[name]; exists {
		return false
	}
	set[name] = struct{}{}

	return true
}
