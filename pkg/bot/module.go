package bot

import "context"

// EventHandler handles one delivered event. Returned errors are reported, not retried.
type EventHandler func(ctx context.Context, event *Event) error

// EventSink is where drivers publish.
type EventSink interface {
	Publish(ctx context.Context, event *Event) error
}

// Module is a unit of bot behavior. Its handlers may run on several workers
// at once.
type Module interface {
	Name() string
	Spec() ModuleSpec
	OnStart(ctx context.Context) error
	OnShutdown(ctx context.Context) error
}

// ModuleRegistrar is implemented by modules that resolve services or
// subscribe imperatively. OnRegister runs once, before declared handlers are
// subscribed.
type ModuleRegistrar interface {
	OnRegister(ctx context.Context, runtime ModuleRuntime) error
}

// ModuleRuntime is the kernel as seen by one module during OnRegister.
type ModuleRuntime interface {
	Services() ServiceRegistry
	// Subscribe is limited to interests covered by the module's capabilities.
	Subscribe(ctx context.Context, interest InterestSet, spec SubscriptionSpec, handler EventHandler) (Subscription, error)
}

// ModuleSpec is what the kernel wires for a module at registration.
type ModuleSpec struct {
	Handlers []ModuleHandler
	// AdditionalCapabilities cover subscriptions made in OnRegister.
	AdditionalCapabilities []Capability
	Commands               []CommandSpec
}

// ModuleHandler subscribes Handler under Capability.
type ModuleHandler struct {
	Capability   Capability
	Subscription SubscriptionSpec
	Handler      EventHandler
}

// Capabilities lists handler capabilities followed by the additional ones.
func (s ModuleSpec) Capabilities() []Capability {
	capabilities := make([]Capability, 0, len(s.Handlers)+len(s.AdditionalCapabilities))
	for _, handler := range s.Handlers {
		capabilities = append(capabilities, handler.Capability)
	}

	return append(capabilities, s.AdditionalCapabilities...)
}

// Driver connects one platform account. Start blocks, publishing neutral
// events to sink, until ctx is canceled or the connection fails.
type Driver interface {
	Name() string
	Start(ctx context.Context, sink EventSink) error
	Shutdown(ctx context.Context) error
}
