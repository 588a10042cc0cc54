package bot

import (
	"fmt"
	"strings"
)

// CommandCandidate is a message that looks like a command, before it is
// matched against a registered spec.
type CommandCandidate struct {
	Prefix CommandPrefix
	// Name is normalized and excludes any "@mention" suffix.
	Name    string
	Mention string
	// RawInput is the message text as received.
	RawInput string
	// Tokens are the whitespace-separated fields after the command word.
	Tokens []string
}

// ParseCommandCandidate recognizes "/name@mention tokens..." and "~name tokens...".
//
// matched is false for ordinary text. A matched candidate may still carry a
// syntax error, such as a bare prefix or a "--key=value" token.
func ParseCommandCandidate(text string) (candidate CommandCandidate, matched bool, err error) {
	candidate.RawInput = text

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return candidate, false, nil
	}
	head := fields[0]
	switch prefix := CommandPrefix(head[:1]); prefix {
	case CommandPrefixOrdinary, CommandPrefixSystem:
		candidate.Prefix = prefix
	default:
		return candidate, false, nil
	}

	name, mention, _ := strings.Cut(head[1:], "@")
	candidate.Name = NormalizeCommandName(name)
	candidate.Mention = strings.TrimSpace(mention)
	candidate.Tokens = fields[1:]
	if len(candidate.Tokens) == 0 {
		candidate.Tokens = nil
	}

	if candidate.Name == "" {
		return candidate, true, fmt.Errorf("parse command: missing command name")
	}
	for _, token := range candidate.Tokens {
		if strings.HasPrefix(token, "--") && strings.Contains(token, "=") {
			return candidate, true, fmt.Errorf("parse command: unsupported option format %q", token)
		}
	}

	return candidate, true, nil
}

// BindCommand matches candidate against spec and resolves its options.
// source is the message event the candidate was parsed from.
func BindCommand(candidate CommandCandidate, spec CommandSpec, source *Event) (CommandInvocation, error) {
	if source == nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: nil source event", spec.Name)
	}
	if err := spec.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command: %w", err)
	}

	name := NormalizeCommandName(spec.Name)
	if candidate.Prefix != spec.Prefix {
		return CommandInvocation{}, fmt.Errorf(
			"bind command %s: prefix mismatch, got %q want %q", name, candidate.Prefix, spec.Prefix,
		)
	}
	if candidate.Name != name {
		return CommandInvocation{}, fmt.Errorf("bind command %s: name mismatch, got %q", name, candidate.Name)
	}

	b := newBinder(spec)
	if err := b.bind(candidate.Tokens); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", name, err)
	}

	invocation := CommandInvocation{
		Name:            name,
		Mention:         candidate.Mention,
		Value:           strings.Join(b.values, " "),
		Options:         b.options,
		SourceEventID:   source.ID,
		SourceEventKind: source.Kind,
		RawInput:        candidate.RawInput,
	}
	if err := invocation.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", name, err)
	}

	return invocation, nil
}

// binder walks command tokens, splitting option tokens from positional values.
type binder struct {
	spec    CommandSpec
	byKey   map[string]int
	present []bool

	options []CommandOption
	values  []string
}

func newBinder(spec CommandSpec) *binder {
	b := &binder{
		spec:    spec,
		byKey:   make(map[string]int, 2*len(spec.Options)),
		present: make([]bool, len(spec.Options)),
	}
	for index, option := range spec.Options {
		for _, key := range option.keys() {
			b.byKey[key] = index
		}
	}

	return b
}

func (b *binder) bind(tokens []string) error {
	for position := 0; position < len(tokens); position++ {
		token := tokens[position]
		key, isOption := optionKey(token)
		if !isOption {
			b.values = append(b.values, token)
			continue
		}

		index, known := b.byKey[key]
		if !known {
			return fmt.Errorf("unknown option %s", token)
		}
		spec := b.spec.Options[index]
		option := CommandOption{Name: NormalizeCommandName(spec.Name), Alias: NormalizeCommandName(spec.Alias)}
		if spec.HasValue {
			if position+1 == len(tokens) {
				return fmt.Errorf("option %s requires a value", token)
			}
			if _, next := optionKey(tokens[position+1]); next {
				return fmt.Errorf("option %s requires a value", token)
			}
			position++
			option.Value, option.HasValue = tokens[position], true
		}
		b.options = append(b.options, option)
		b.present[index] = true
	}

	for index, spec := range b.spec.Options {
		if spec.Required && !b.present[index] {
			return fmt.Errorf("missing required option %s", spec.Usage())
		}
	}

	return nil
}

// optionKey maps "--name" and "-x" tokens to binder keys. A lone "-" stays positional.
func optionKey(token string) (string, bool) {
	switch {
	case len(token) > 2 && strings.HasPrefix(token, "--"):
		return "--" + NormalizeCommandName(token[2:]), true
	case len(token) == 2 && token[0] == '-' && token[1] != '-':
		return "-" + NormalizeCommandName(token[1:]), true
	default:
		return "", false
	}
}
