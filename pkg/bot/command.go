package bot

import (
	"fmt"
	"slices"
	"strings"
)

// CommandPrefix is the leading rune of a command message.
type CommandPrefix string

const (
	// CommandPrefixOrdinary starts user-facing commands.
	CommandPrefixOrdinary CommandPrefix = "/"
	// CommandPrefixSystem starts operator commands.
	CommandPrefixSystem CommandPrefix = "~"
)

func (p CommandPrefix) Validate() error {
	if p != CommandPrefixOrdinary && p != CommandPrefixSystem {
		return fmt.Errorf("unsupported command prefix %q", p)
	}

	return nil
}

// CommandSpec is one command a module claims.
type CommandSpec struct {
	Prefix      CommandPrefix
	Name        string
	Description string
	// Arguments is a positional hint shown in usage lines, such as "[username]".
	Arguments string
	Options   []CommandOptionSpec
}

// CommandOptionSpec declares "--name" and or "-a" for one command.
type CommandOptionSpec struct {
	Name        string
	Alias       string
	HasValue    bool
	Required    bool
	Description string
}

// CommandInvocation is a command message bound to its spec.
type CommandInvocation struct {
	Name    string
	Mention string
	// Value is every non-option token joined by single spaces.
	Value   string
	Options []CommandOption
	// SourceEventID and SourceEventKind name the message event the command came from.
	SourceEventID   string
	SourceEventKind EventKind
	RawInput        string
}

// CommandOption is one option present in an invocation.
type CommandOption struct {
	Name     string
	Alias    string
	Value    string
	HasValue bool
}

// NormalizeCommandName trims and lower-cases a command or option name.
func NormalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func (s CommandOptionSpec) Validate() error {
	name, alias := NormalizeCommandName(s.Name), NormalizeCommandName(s.Alias)
	switch {
	case name == "" && alias == "":
		return fmt.Errorf("option needs a name or an alias")
	case len(alias) > 1:
		return fmt.Errorf("option alias %q must be one character", s.Alias)
	case strings.ContainsFunc(name, isSpace):
		return fmt.Errorf("option name %q contains whitespace", s.Name)
	}

	return nil
}

// keys returns the lookup keys of the option, "--name" first.
func (s CommandOptionSpec) keys() []string {
	var keys []string
	if name := NormalizeCommandName(s.Name); name != "" {
		keys = append(keys, "--"+name)
	}
	if alias := NormalizeCommandName(s.Alias); alias != "" {
		keys = append(keys, "-"+alias)
	}

	return keys
}

// Usage renders the option for a usage line, for example "[--limit|-l <value>]".
func (s CommandOptionSpec) Usage() string {
	usage := strings.Join(s.keys(), "|")
	if s.HasValue {
		usage += " <value>"
	}
	if s.Required {
		return usage
	}

	return "[" + usage + "]"
}

// Validate checks the prefix, the name and that no two options share a key.
func (s CommandSpec) Validate() error {
	if err := s.Prefix.Validate(); err != nil {
		return fmt.Errorf("command %q: %w", s.Name, err)
	}
	if NormalizeCommandName(s.Name) == "" {
		return fmt.Errorf("command spec: missing name")
	}

	var seen []string
	for index, option := range s.Options {
		if err := option.Validate(); err != nil {
			return fmt.Errorf("command %s option %d: %w", s.Name, index, err)
		}
		for _, key := range option.keys() {
			if slices.Contains(seen, key) {
				return fmt.Errorf("command %s: duplicate option %q", s.Name, key)
			}
			seen = append(seen, key)
		}
	}

	return nil
}

// Usage renders "<prefix><name> [arguments] [options...]".
func (s CommandSpec) Usage() string {
	usage := string(s.Prefix) + NormalizeCommandName(s.Name)
	if s.Arguments != "" {
		usage += " " + s.Arguments
	}
	for _, option := range s.Options {
		usage += " " + option.Usage()
	}

	return usage
}

func (c *CommandInvocation) Validate() error {
	switch {
	case c == nil:
		return fmt.Errorf("command invocation: nil")
	case NormalizeCommandName(c.Name) == "":
		return fmt.Errorf("command invocation: missing name")
	case c.SourceEventID == "":
		return fmt.Errorf("command invocation: missing source_event_id")
	case c.SourceEventKind == "":
		return fmt.Errorf("command invocation: missing source_event_kind")
	}

	return nil
}

// Option looks an option up by long name or alias.
func (c *CommandInvocation) Option(key string) (CommandOption, bool) {
	if c == nil {
		return CommandOption{}, false
	}

	key = NormalizeCommandName(key)
	index := slices.IndexFunc(c.Options, func(option CommandOption) bool {
		return option.Name == key || option.Alias == key
	})
	if index < 0 {
		return CommandOption{}, false
	}

	return c.Options[index], true
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n'
}
