package kernel

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"nanobot/pkg/bot"
)

// commandTable owns every registered command and serves the command catalog.
type commandTable struct {
	mu      sync.RWMutex
	entries map[string]commandEntry
}

type commandEntry struct {
	module string
	spec   bot.CommandSpec
}

func newCommandTable() *commandTable {
	return &commandTable{entries: make(map[string]commandEntry)}
}

// claim registers all specs for module or none of them.
//
// Specs are expected to be validated and unique within the module already.
func (t *commandTable) claim(module string, specs []bot.CommandSpec) error {
	if len(specs) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, spec := range specs {
		if owner, taken := t.entries[commandKey(spec.Prefix, spec.Name)]; taken {
			return fmt.Errorf(
				"register command %s for module %s: already registered by module %s",
				displayCommand(spec.Prefix, spec.Name),
				module,
				owner.module,
			)
		}
	}
	for _, spec := range specs {
		normalized := normalizeCommandSpec(spec)
		t.entries[commandKey(normalized.Prefix, normalized.Name)] = commandEntry{module: module, spec: normalized}
	}

	return nil
}

// release drops every command owned by module.
func (t *commandTable) release(module string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, entry := range t.entries {
		if entry.module == module {
			delete(t.entries, key)
		}
	}
}

func (t *commandTable) lookup(prefix bot.CommandPrefix, name string) (bot.CommandSpec, bool) {
	t.mu.RLock()
	entry, found := t.entries[commandKey(prefix, name)]
	t.mu.RUnlock()
	if !found {
		return bot.CommandSpec{}, false
	}

	return normalizeCommandSpec(entry.spec), true
}

// ListCommands returns registered commands ordered by display form, then module.
func (t *commandTable) ListCommands(ctx context.Context) ([]bot.RegisteredCommand, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}

	t.mu.RLock()
	commands := make([]bot.RegisteredCommand, 0, len(t.entries))
	for _, entry := range t.entries {
		commands = append(commands, bot.RegisteredCommand{
			ModuleName: entry.module,
			Command:    normalizeCommandSpec(entry.spec),
		})
	}
	t.mu.RUnlock()

	slices.SortFunc(commands, func(left, right bot.RegisteredCommand) int {
		return cmp.Or(
			strings.Compare(
				displayCommand(left.Command.Prefix, left.Command.Name),
				displayCommand(right.Command.Prefix, right.Command.Name),
			),
			strings.Compare(left.ModuleName, right.ModuleName),
		)
	})

	return commands, nil
}

func commandKey(prefix bot.CommandPrefix, name string) string {
	return string(prefix) + ":" + bot.NormalizeCommandName(name)
}

func displayCommand(prefix bot.CommandPrefix, name string) string {
	return string(prefix) + bot.NormalizeCommandName(name)
}

// normalizeCommandSpec returns a deep copy with normalized names.
func normalizeCommandSpec(spec bot.CommandSpec) bot.CommandSpec {
	normalized := spec
	normalized.Name = bot.NormalizeCommandName(spec.Name)
	if len(spec.Options) == 0 {
		return normalized
	}

	normalized.Options = slices.Clone(spec.Options)
	for index := range normalized.Options {
		normalized.Options[index].Name = bot.NormalizeCommandName(normalized.Options[index].Name)
		normalized.Options[index].Alias = bot.NormalizeCommandName(normalized.Options[index].Alias)
	}

	return normalized
}

var _ bot.CommandCatalog = (*commandTable)(nil)
