package driver

import (
	"context"
	"log/slog"

	"nanobot/internal/driver/telegram"
)

// Builtin returns a registry with every driver type compiled into the binary.
func Builtin() (*Registry, error) {
	return NewRegistry(Descriptor{
		Type:     telegram.DriverType,
		Platform: telegram.DriverPlatform,
		Builder:  buildTelegram,
	})
}

func buildTelegram(_ context.Context, definition Definition, logger *slog.Logger) (Runtime, error) {
	runtime, err := telegram.NewRuntime(definition.Name, definition.Config, logger)
	if err != nil {
		return Runtime{}, err
	}

	return Runtime{
		Source:         runtime.Source,
		Driver:         runtime.Driver,
		SinkDispatcher: runtime.Dispatcher,
	}, nil
}
