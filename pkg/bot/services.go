package bot

import (
	"context"
	"fmt"
)

// Well-known service names registered by the kernel host before modules load.
const (
	// ServiceLogger resolves to the process *slog.Logger.
	ServiceLogger = "logger"
	// ServiceCommandCatalog resolves to a CommandCatalog.
	ServiceCommandCatalog = "bot.command_catalog"
)

// ServiceRegistry is a name-keyed set of process singletons.
type ServiceRegistry interface {
	Register(name string, service any) error
	Resolve(name string) (any, error)
}

// ResolveAs resolves name and asserts it to T.
func ResolveAs[T any](registry ServiceRegistry, name string) (T, error) {
	var typed T
	if registry == nil {
		return typed, fmt.Errorf("resolve service %s: nil registry", name)
	}

	service, err := registry.Resolve(name)
	if err != nil {
		return typed, fmt.Errorf("resolve service %s: %w", name, err)
	}
	typed, ok := service.(T)
	if !ok {
		return typed, fmt.Errorf("resolve service %s: registered %T, want %T", name, service, typed)
	}

	return typed, nil
}

// RegisteredCommand pairs a command with the module that claimed it.
type RegisteredCommand struct {
	ModuleName string
	Command    CommandSpec
}

// CommandCatalog lists the commands claimed by registered modules. It is
// safe for concurrent use.
type CommandCatalog interface {
	// ListCommands returns a fresh copy on every call.
	ListCommands(ctx context.Context) ([]RegisteredCommand, error)
}
