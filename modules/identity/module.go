package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"nanobot/pkg/bot"
)

const (
	whoisCommandName      = "whois"
	identitiesCommandName = "identities"
)

// Option mutates identity module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithAdminIDs sets the actor ids allowed to run `~identities`.
func WithAdminIDs(ids ...string) Option {
	return func(module *Module) {
		for _, id := range ids {
			id = strings.TrimSpace(id)
			if id != "" {
				module.admins[id] = struct{}{}
			}
		}
	}
}

// WithIndex replaces the module-owned index.
func WithIndex(index *Index) Option {
	return func(module *Module) {
		if index != nil {
			module.index = index
		}
	}
}

// Module keeps the identity index current and answers identity commands.
type Module struct {
	logger     *slog.Logger
	dispatcher bot.SinkDispatcher
	index      *Index
	admins     map[string]struct{}
}

// New creates an identity module with an empty index.
func New(options ...Option) *Module {
	module := &Module{
		logger: slog.Default(),
		index:  NewIndex(),
		admins: make(map[string]struct{}),
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "identity"
}

// Index exposes the module-owned identity index.
func (m *Module) Index() *Index {
	return m.index
}

// Spec declares presence tracking and identity command handlers.
func (m *Module) Spec() bot.ModuleSpec {
	return bot.ModuleSpec{
		Handlers: []bot.ModuleHandler{
			{
				Capability: bot.Capability{
					Name:        "identity-presence",
					Description: "maps occupant handles to real identities from presence changes",
					Interest: bot.InterestSet{
						Kinds: []bot.EventKind{
							bot.EventKindMemberJoined,
							bot.EventKindMemberLeft,
							bot.EventKindRoleUpdated,
							bot.EventKindMessageCreated,
						},
					},
				},
				// Presence mutations must be applied in arrival order.
				Subscription: bot.OrderedSubscription("identity-presence"),
				Handler:      m.handlePresence,
			},
			{
				Capability: bot.Capability{
					Name:        "identity-whois-command-handler",
					Description: "resolves one occupant handle to its real identity",
					Interest: bot.InterestSet{
						Kinds:          []bot.EventKind{bot.EventKindCommandReceived},
						RequireMessage: true,
						RequireCommand: true,
						CommandNames:   []string{whoisCommandName},
					},
					RequiredServices: []string{bot.ServiceSinkDispatcher},
				},
				Subscription: bot.SubscriptionSpec{Name: "identity-whois-commands"},
				Handler:      m.handleWhois,
			},
			{
				Capability: bot.Capability{
					Name:        "identity-introspection-command-handler",
					Description: "dumps the identity index for ~identities",
					Interest: bot.InterestSet{
						Kinds:          []bot.EventKind{bot.EventKindSystemCommandReceived},
						RequireMessage: true,
						RequireCommand: true,
						CommandNames:   []string{identitiesCommandName},
					},
					RequiredServices: []string{bot.ServiceSinkDispatcher},
				},
				Subscription: bot.SubscriptionSpec{Name: "identity-introspection-commands"},
				Handler:      m.handleIdentities,
			},
		},
		Commands: []bot.CommandSpec{
			{
				Prefix:      bot.CommandPrefixOrdinary,
				Name:        whoisCommandName,
				Description: "show the real identity behind a handle in this chat",
				Arguments:   "<handle>",
			},
			{
				Prefix:      bot.CommandPrefixSystem,
				Name:        identitiesCommandName,
				Description: "dump the identity index as JSON",
			},
		},
	}
}

// OnRegister resolves dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime bot.ModuleRuntime) error {
	logger, err := bot.ResolveAs[*slog.Logger](runtime.Services(), bot.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, bot.ErrServiceNotFound):
	default:
		return fmt.Errorf("identity resolve logger: %w", err)
	}

	dispatcher, err := bot.ResolveAs[bot.SinkDispatcher](runtime.Services(), bot.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("identity resolve sink dispatcher: %w", err)
	}
	m.dispatcher = dispatcher

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(ctx context.Context) error {
	m.logger.InfoContext(ctx,
		"identity module started",
		"module", m.Name(),
		"admins", len(m.admins),
	)

	return nil
}

// OnShutdown stops the module lifecycle. The index is not persisted.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handlePresence(ctx context.Context, event *bot.Event) error {
	presence, err := translatePresence(event)
	if err != nil {
		attrs := []any{"error", err}
		if event != nil {
			attrs = append(attrs, "event_id", event.ID, "conversation_id", event.Conversation.ID)
		}
		m.logger.WarnContext(ctx, "identity dropped presence event", attrs...)
		return nil
	}

	m.index.Apply(presence)
	m.logger.DebugContext(ctx,
		"identity applied presence",
		"occupant", presence.Occupant,
		"member", presence.Member,
		"kind", presence.Kind.String(),
		"has_real", presence.Real != "",
	)

	return nil
}

func (m *Module) reply(ctx context.Context, event *bot.Event, text string) error {
	_, err := bot.Reply(ctx, m.dispatcher, event, text)
	return err
}

var (
	_ bot.Module          = (*Module)(nil)
	_ bot.ModuleRegistrar = (*Module)(nil)
)
