package driver

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"nanobot/pkg/bot"
)

// Definition is one entry of the drivers config section.
type Definition struct {
	Name    string
	Type    string
	Enabled bool
	// Config is the raw, type-specific JSON object.
	Config []byte
}

// Runtime is a built driver with its event source identity and optional outbound side.
type Runtime struct {
	Source         bot.EventSource
	Driver         bot.Driver
	SinkDispatcher bot.SinkDispatcher
}

// BuilderFunc builds the runtime for one definition.
type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor registers one driver type.
type Descriptor struct {
	Type     string
	Platform bot.Platform
	Builder  BuilderFunc
}

// Registry knows every driver type the process can build.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry creates a registry holding descriptors.
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	registry := &Registry{descriptors: make(map[string]Descriptor, len(descriptors))}
	for _, descriptor := range descriptors {
		if err := registry.Register(descriptor); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

// Register adds one driver type.
func (r *Registry) Register(descriptor Descriptor) error {
	switch {
	case descriptor.Type == "":
		return fmt.Errorf("register driver type: empty type")
	case descriptor.Platform == "":
		return fmt.Errorf("register driver type %s: empty platform", descriptor.Type)
	case descriptor.Builder == nil:
		return fmt.Errorf("register driver type %s: nil builder", descriptor.Type)
	}
	if _, exists := r.descriptors[descriptor.Type]; exists {
		return fmt.Errorf("register driver type %s: already registered", descriptor.Type)
	}
	r.descriptors[descriptor.Type] = descriptor

	return nil
}

// Types lists registered driver types in sorted order.
func (r *Registry) Types() []string {
	return slices.Sorted(maps.Keys(r.descriptors))
}

// Platform returns the platform a driver type publishes for.
func (r *Registry) Platform(driverType string) (bot.Platform, error) {
	descriptor, exists := r.descriptors[driverType]
	if !exists {
		return "", fmt.Errorf("unsupported driver type %q (known: %v)", driverType, r.Types())
	}

	return descriptor.Platform, nil
}

// Build builds every enabled definition in order. Names must be unique among
// enabled definitions; a runtime without a source id takes the definition name.
func (r *Registry) Build(ctx context.Context, definitions []Definition, logger *slog.Logger) ([]Runtime, error) {
	runtimes := make([]Runtime, 0, len(definitions))
	built := make(map[string]struct{}, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		runtime, err := r.build(ctx, definition, built, logger)
		if err != nil {
			return nil, fmt.Errorf("build driver %s: %w", definition.Name, err)
		}
		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}

func (r *Registry) build(
	ctx context.Context,
	definition Definition,
	built map[string]struct{},
	logger *slog.Logger,
) (Runtime, error) {
	if definition.Name == "" {
		return Runtime{}, fmt.Errorf("empty name")
	}
	if _, exists := built[definition.Name]; exists {
		return Runtime{}, fmt.Errorf("duplicate name")
	}
	descriptor, exists := r.descriptors[definition.Type]
	if !exists {
		return Runtime{}, fmt.Errorf("unsupported type %q", definition.Type)
	}

	runtime, err := descriptor.Builder(ctx, definition, logger)
	if err != nil {
		return Runtime{}, fmt.Errorf("type %s: %w", definition.Type, err)
	}
	if runtime.Driver == nil {
		return Runtime{}, fmt.Errorf("type %s: builder returned no driver", definition.Type)
	}
	if runtime.Source.Platform == "" {
		runtime.Source.Platform = descriptor.Platform
	}
	if runtime.Source.ID == "" {
		runtime.Source.ID = definition.Name
	}
	built[definition.Name] = struct{}{}

	return runtime, nil
}
