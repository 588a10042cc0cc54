package wordcount

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nanobot/pkg/bot"
)

const (
	wordcountCommandName = "wordcount"
	donationsCommandName = "donations"
	wordgoalCommandName  = "wordgoal"

	noRegionDataMessage = "I couldn't find any region data right now."
	batchTimeoutSlack   = time.Second
)

// Option mutates wordcount module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithFetcher replaces the HTTP fetcher built from config.
func WithFetcher(fetcher ResourceFetcher) Option {
	return func(module *Module) {
		if fetcher != nil {
			module.fetcher = fetcher
		}
	}
}

// WithModuleClock overrides the clock used for goals and today's count.
func WithModuleClock(clock func() time.Time) Option {
	return func(module *Module) {
		if clock != nil {
			module.clock = clock
		}
	}
}

// Module answers word-count commands.
type Module struct {
	cfg        Config
	logger     *slog.Logger
	dispatcher bot.SinkDispatcher
	fetcher    ResourceFetcher
	pipeline   *Pipeline
	clock      func() time.Time
}

// New creates a wordcount module from validated config.
func New(cfg Config, options ...Option) (*Module, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("wordcount config: %w", err)
	}

	module := &Module{
		cfg:    cfg,
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, option := range options {
		option(module)
	}
	if module.fetcher == nil {
		fetcher, err := NewFetcher(cfg.BaseURL,
			WithFetchTimeout(cfg.Timeout),
			WithPayloadFormat(cfg.Format),
			WithResourcePath(ResourceRegion, cfg.RegionPath),
			WithResourcePath(ResourceUser, cfg.UserPath),
		)
		if err != nil {
			return nil, fmt.Errorf("wordcount build fetcher: %w", err)
		}
		module.fetcher = fetcher
	}
	module.pipeline = module.newPipeline()

	return module, nil
}

func (m *Module) newPipeline() *Pipeline {
	return NewPipeline(m.fetcher,
		WithPipelineLogger(m.logger),
		WithRetryPolicy(m.cfg.Retry),
		WithBatchTimeout(m.cfg.BatchBudget()),
		WithClock(m.clock),
	)
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "wordcount"
}

// Spec declares word-count command handling.
func (m *Module) Spec() bot.ModuleSpec {
	return bot.ModuleSpec{
		Handlers: []bot.ModuleHandler{
			{
				Capability: bot.Capability{
					Name:        "wordcount-command-handler",
					Description: "reports regional and personal NaNoWriMo progress",
					Interest: bot.InterestSet{
						Kinds:          []bot.EventKind{bot.EventKindCommandReceived},
						RequireMessage: true,
						RequireCommand: true,
						CommandNames: []string{
							wordcountCommandName,
							donationsCommandName,
							wordgoalCommandName,
						},
					},
					RequiredServices: []string{bot.ServiceSinkDispatcher},
				},
				Subscription: bot.SubscriptionSpec{Name: "wordcount-commands"},
				Handler:      m.handleCommand,
			},
		},
		Commands: []bot.CommandSpec{
			{
				Prefix:      bot.CommandPrefixOrdinary,
				Name:        wordcountCommandName,
				Description: "word counts for the tracked regions, or for one NaNoWriMo username",
				Arguments:   "[username]",
			},
			{
				Prefix:      bot.CommandPrefixOrdinary,
				Name:        donationsCommandName,
				Description: "donation totals for the tracked regions",
			},
			{
				Prefix:      bot.CommandPrefixOrdinary,
				Name:        wordgoalCommandName,
				Description: "where you should be today to reach a goal by month end (default 50,000)",
				Arguments:   "[goal]",
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
		m.pipeline = m.newPipeline()
	case errors.Is(err, bot.ErrServiceNotFound):
	default:
		return fmt.Errorf("wordcount resolve logger: %w", err)
	}

	dispatcher, err := bot.ResolveAs[bot.SinkDispatcher](runtime.Services(), bot.ServiceSinkDispatcher)
	if err != nil {
		return fmt.Errorf("wordcount resolve sink dispatcher: %w", err)
	}
	m.dispatcher = dispatcher

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(ctx context.Context) error {
	m.logger.InfoContext(ctx,
		"wordcount module started",
		"module", m.Name(),
		"regions", len(m.cfg.Regions),
		"timeout", m.cfg.Timeout,
		"retry_attempts", m.cfg.Retry.MaxAttempts,
	)

	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) handleCommand(ctx context.Context, event *bot.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}
	if event.Kind != bot.EventKindCommandReceived {
		return nil
	}

	switch event.Command.Name {
	case wordcountCommandName:
		return m.handleWordcount(ctx, event)
	case donationsCommandName:
		return m.handleDonations(ctx, event)
	case wordgoalCommandName:
		return m.handleWordgoal(ctx, event)
	default:
		return nil
	}
}

func (m *Module) handleWordcount(ctx context.Context, event *bot.Event) error {
	if err := m.reply(ctx, event, PleaseWaitMessage); err != nil {
		return fmt.Errorf("wordcount acknowledge: %w", err)
	}

	query := strings.TrimSpace(event.Command.Value)
	if query == "" {
		report, err := m.pipeline.AggregateRegions(ctx, m.cfg.Regions)
		if err != nil {
			m.logger.WarnContext(ctx, "wordcount region report unavailable", "error", err)
			return m.replyOrWrap(ctx, event, UnavailableMessage, "wordcount reply unavailable")
		}
		return m.replyOrWrap(ctx, event, reportText(report), "wordcount reply regions")
	}

	outcome, err := m.pipeline.AggregateUser(ctx, query)
	if err != nil {
		return m.replyOrWrap(ctx, event, "usage: /wordcount [username]", "wordcount reply usage")
	}

	return m.replyOrWrap(ctx, event, outcome.Text(), "wordcount reply user")
}

func (m *Module) handleDonations(ctx context.Context, event *bot.Event) error {
	if err := m.reply(ctx, event, PleaseWaitMessage); err != nil {
		return fmt.Errorf("donations acknowledge: %w", err)
	}

	report, err := m.pipeline.AggregateDonations(ctx, m.cfg.Regions)
	if err != nil {
		m.logger.WarnContext(ctx, "wordcount donation report unavailable", "error", err)
		return m.replyOrWrap(ctx, event, UnavailableMessage, "donations reply unavailable")
	}
	if err := m.reply(ctx, event, reportText(report)); err != nil {
		return fmt.Errorf("donations reply report: %w", err)
	}
	if report.Summary == "" {
		return nil
	}

	return m.replyOrWrap(ctx, event, report.Summary, "donations reply summary")
}

func (m *Module) handleWordgoal(ctx context.Context, event *bot.Event) error {
	goal, err := ParseGoal(event.Command.Value)
	if err != nil {
		m.logger.DebugContext(ctx, "wordcount invalid goal", "value", event.Command.Value, "error", err)
		return m.replyOrWrap(ctx, event, "usage: /wordgoal [goal]", "wordgoal reply usage")
	}

	return m.replyOrWrap(ctx, event, RenderGoal(goal, Par(goal, m.clock())), "wordgoal reply")
}

func reportText(report AggregationReport) string {
	if len(report.Lines) == 0 {
		return noRegionDataMessage
	}

	return report.Text()
}

func (m *Module) replyOrWrap(ctx context.Context, event *bot.Event, text string, scope string) error {
	if err := m.reply(ctx, event, text); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

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
