package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nanobot/pkg/bot"

	"github.com/gotd/td/telegram/message"
)

const (
	// DriverType is the driver type token used in configuration.
	DriverType = "telegram"
	// DriverPlatform is the platform of every event this driver publishes.
	DriverPlatform = bot.PlatformTelegram
)

// Runtime is one configured Telegram account: its inbound driver and its outbound dispatcher.
type Runtime struct {
	Source     bot.EventSource
	Driver     *Driver
	Dispatcher *Dispatcher
}

// NewRuntime parses rawConfig and wires a gotd user session to a driver and a dispatcher.
func NewRuntime(name string, rawConfig []byte, logger *slog.Logger) (Runtime, error) {
	cfg, err := ParseConfig(name, rawConfig, nil)
	if err != nil {
		return Runtime{}, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("driver", name)

	queue := newUpdateQueue(cfg.UpdateBuffer)
	session, err := newUserSession(cfg, queue, logger)
	if err != nil {
		return Runtime{}, fmt.Errorf("new telegram runtime %s: %w", name, err)
	}

	peers := newPeerCache()
	source := bot.EventSource{Platform: DriverPlatform, ID: name}
	timeout := time.Duration(cfg.PublishTimeout)

	return Runtime{
		Source: source,
		Driver: &Driver{
			name:           name,
			session:        session,
			updates:        queue.Updates(),
			mapper:         newEventMapper(peers),
			publishTimeout: timeout,
			dropped: func(ctx context.Context, err error) {
				logger.WarnContext(ctx, "telegram update dropped", "error", err)
			},
		},
		Dispatcher: &Dispatcher{
			source:  source,
			peers:   peers,
			sender:  gotdSender{sender: message.NewSender(session.client.API())},
			timeout: max(timeout, defaultSendTimeout),
			logger:  logger,
		},
	}, nil
}
