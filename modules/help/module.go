// Package help answers /help with the commands every registered module claims.
package help

import (
	"context"
	"fmt"
	"strings"

	"nanobot/pkg/bot"
)

const commandName = "help"

// Module renders the kernel command catalog.
type Module struct {
	dispatcher bot.SinkDispatcher
	catalog    bot.CommandCatalog
}

func New() *Module {
	return &Module{}
}

func (m *Module) Name() string {
	return "help"
}

func (m *Module) Spec() bot.ModuleSpec {
	return bot.ModuleSpec{
		Handlers: []bot.ModuleHandler{{
			Capability: bot.Capability{
				Name:        "help-command-handler",
				Description: "lists registered commands for /help",
				Interest: bot.InterestSet{
					Kinds:          []bot.EventKind{bot.EventKindCommandReceived},
					RequireMessage: true,
					RequireCommand: true,
					CommandNames:   []string{commandName},
				},
				RequiredServices: []string{bot.ServiceSinkDispatcher, bot.ServiceCommandCatalog},
			},
			Subscription: bot.SubscriptionSpec{Name: "help-commands"},
			Handler:      m.handleCommand,
		}},
		Commands: []bot.CommandSpec{{
			Prefix:      bot.CommandPrefixOrdinary,
			Name:        commandName,
			Description: "show all available commands",
		}},
	}
}

func (m *Module) OnRegister(_ context.Context, runtime bot.ModuleRuntime) error {
	services := runtime.Services()

	dispatcher, err := bot.ResolveAs[bot.SinkDispatcher](services, bot.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("help: %w", err)
	}
	catalog, err := bot.ResolveAs[bot.CommandCatalog](services, bot.ServiceCommandCatalog)
	if err != nil {
		return fmt.Errorf("help: %w", err)
	}
	m.dispatcher, m.catalog = dispatcher, catalog

	return nil
}

func (m *Module) OnStart(context.Context) error    { return nil }
func (m *Module) OnShutdown(context.Context) error { return nil }

func (m *Module) handleCommand(ctx context.Context, event *bot.Event) error {
	if event.Kind != bot.EventKindCommandReceived || event.Command == nil || event.Command.Name != commandName {
		return nil
	}
	if m.catalog == nil {
		return fmt.Errorf("help: command catalog not configured")
	}

	commands, err := m.catalog.ListCommands(ctx)
	if err != nil {
		return fmt.Errorf("help: list commands: %w", err)
	}
	if _, err := bot.Reply(ctx, m.dispatcher, event, render(commands)); err != nil {
		return fmt.Errorf("help: %w", err)
	}

	return nil
}

// render lists ordinary commands, then system commands, one per line in
// catalog order: "<usage> - <description>".
func render(commands []bot.RegisteredCommand) string {
	var ordinary, system []string
	for _, registered := range commands {
		line := registered.Command.Usage()
		if description := strings.TrimSpace(registered.Command.Description); description != "" {
			line += " - " + description
		}
		if registered.Command.Prefix == bot.CommandPrefixSystem {
			system = append(system, line)
		} else {
			ordinary = append(ordinary, line)
		}
	}

	var b strings.Builder
	b.WriteString("Commands:")
	if len(ordinary) == 0 {
		b.WriteString("\n(none)")
	}
	for _, line := range ordinary {
		b.WriteString("\n" + line)
	}
	if len(system) > 0 {
		b.WriteString("\n\nSystem commands:")
		for _, line := range system {
			b.WriteString("\n" + line)
		}
	}

	return b.String()
}

var (
	_ bot.Module          = (*Module)(nil)
	_ bot.ModuleRegistrar = (*Module)(nil)
)
