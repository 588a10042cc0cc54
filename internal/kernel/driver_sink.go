package kernel

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"nanobot/pkg/bot"
)

// driverSink is the sink handed to drivers.
//
// Every source event reaches the bus unchanged. Message events whose text
// invokes a registered command are followed by one derived command event.
type driverSink struct {
	bus      bot.EventSink
	commands *commandTable
	services bot.ServiceRegistry
	report   func(context.Context, string, error)
}

func (k *Kernel) newDriverSink() *driverSink {
	return &driverSink{
		bus:      k.bus,
		commands: k.commands,
		services: k.services,
		report:   k.cfg.onAsyncError,
	}
}

// Publish forwards event and then any command it carries.
func (s *driverSink) Publish(ctx context.Context, event *bot.Event) error {
	if event == nil {
		return fmt.Errorf("driver sink publish: nil event")
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.Kind, err)
	}

	derived, usage := s.derive(event)
	if usage != "" {
		s.replyUsage(ctx, event, usage)
		return nil
	}
	if derived == nil {
		return nil
	}
	if err := s.bus.Publish(ctx, derived); err != nil {
		return fmt.Errorf("publish derived command %s: %w", derived.Command.Name, err)
	}

	return nil
}

// derive returns the command event carried by event, or a usage reply when a
// registered command was invoked with bad arguments.
func (s *driverSink) derive(event *bot.Event) (*bot.Event, string) {
	if event.Message == nil {
		return nil, ""
	}
	if event.Kind != bot.EventKindMessageCreated && event.Kind != bot.EventKindMessageEdited {
		return nil, ""
	}

	candidate, matched, parseErr := bot.ParseCommandCandidate(event.Message.Text)
	if !matched {
		return nil, ""
	}
	spec, registered := s.commands.lookup(candidate.Prefix, candidate.Name)
	if !registered {
		return nil, ""
	}
	if parseErr != nil {
		return nil, usageReply(spec, parseErr)
	}
	invocation, err := bot.BindCommand(candidate, spec, event)
	if err != nil {
		return nil, usageReply(spec, err)
	}

	return commandEvent(event, candidate.Prefix, invocation), ""
}

func (s *driverSink) replyUsage(ctx context.Context, event *bot.Event, text string) {
	dispatcher, err := bot.ResolveAs[bot.SinkDispatcher](s.services, bot.ServiceSinkDispatcher)
	if err != nil {
		s.report(ctx, "command usage reply", err)
		return
	}
	if _, err := bot.Reply(ctx, dispatcher, event, text); err != nil {
		s.report(ctx, "command usage reply", err)
	}
}

func commandEvent(source *bot.Event, prefix bot.CommandPrefix, invocation bot.CommandInvocation) *bot.Event {
	kind, suffix := bot.EventKindCommandReceived, "#command"
	if prefix == bot.CommandPrefixSystem {
		kind, suffix = bot.EventKindSystemCommandReceived, "#system-command"
	}

	message := *source.Message
	invocation.Options = slices.Clone(invocation.Options)

	return &bot.Event{
		ID:           source.ID + suffix,
		Kind:         kind,
		OccurredAt:   source.OccurredAt,
		Platform:     source.Platform,
		Source:       source.Source,
		Conversation: source.Conversation,
		Actor:        source.Actor,
		Message:      &message,
		Command:      &invocation,
		Metadata:     maps.Clone(source.Metadata),
	}
}

func usageReply(spec bot.CommandSpec, cause error) string {
	return fmt.Sprintf("%s\nusage: %s", cause.Error(), spec.Usage())
}

var _ bot.EventSink = (*driverSink)(nil)
