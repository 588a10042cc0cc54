package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"nanobot/pkg/bot"

	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
)

const defaultSendTimeout = 3 * time.Second

// textSender delivers one text message and returns its Telegram message id.
type textSender interface {
	sendText(ctx context.Context, peer tg.InputPeerClass, request bot.SendMessageRequest) (int, error)
}

// Dispatcher is the bot.SinkDispatcher for one Telegram driver.
type Dispatcher struct {
	source  bot.EventSource
	peers   *peerCache
	sender  textSender
	timeout time.Duration
	logger  *slog.Logger
}

// SendMessage sends request.Text to a conversation previously seen inbound.
func (d *Dispatcher) SendMessage(ctx context.Context, request bot.SendMessageRequest) (*bot.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("telegram send message: %w", err)
	}
	if source := request.Target.Source; source != nil && source.Platform != "" && source.Platform != DriverPlatform {
		return nil, fmt.Errorf("telegram send message: %w: platform %s", bot.ErrOutboundUnsupported, source.Platform)
	}
	peer, err := d.peers.resolve(request.Target.Conversation)
	if err != nil {
		return nil, fmt.Errorf("telegram send message: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	id, err := d.sender.sendText(sendCtx, peer, request)
	if err != nil {
		return nil, fmt.Errorf("telegram send message to %s: %w", request.Target.Conversation.ID, d.classify(err))
	}

	d.logger.InfoContext(ctx, "telegram message sent",
		"sink_id", d.source.ID,
		"conversation", request.Target.Conversation.ID,
		"message_id", id,
		"reply_to", request.ReplyToMessageID,
	)

	return &bot.OutboundMessage{ID: strconv.Itoa(id), Target: request.Target}, nil
}

// classify wraps RPC failures in a bot.OutboundError. Request validation
// failures pass through unchanged.
func (d *Dispatcher) classify(err error) error {
	if errors.Is(err, bot.ErrInvalidOutboundRequest) {
		return err
	}

	outboundErr := &bot.OutboundError{
		Operation: bot.OutboundOperationSendMessage,
		Kind:      bot.OutboundErrorKindUnknown,
		Platform:  d.source.Platform,
		SinkID:    d.source.ID,
		Cause:     err,
	}
	rpcErr, ok := tgerr.As(err)
	if ok {
		outboundErr.Code = rpcErr.Code
		outboundErr.Type = rpcErr.Type
		outboundErr.Kind = rpcErrorKind(rpcErr.Code, rpcErr.Type)
	}
	if wait, flood := tgerr.AsFloodWait(err); flood {
		outboundErr.Kind = bot.OutboundErrorKindRateLimited
		outboundErr.RetryAfter = wait
	}

	return outboundErr
}

// rpcErrorKind classifies Telegram RPC error codes.
func rpcErrorKind(code int, errorType string) bot.OutboundErrorKind {
	switch {
	case code == 420 || code == 429 || strings.Contains(strings.ToUpper(errorType), "FLOOD"):
		return bot.OutboundErrorKindRateLimited
	case code == 303 || code >= 500:
		return bot.OutboundErrorKindTemporary
	case code >= 400 && code <= 406:
		return bot.OutboundErrorKindPermanent
	default:
		return bot.OutboundErrorKindUnknown
	}
}

// gotdSender sends through the gotd message builder.
type gotdSender struct {
	sender *message.Sender
}

func (s gotdSender) sendText(ctx context.Context, peer tg.InputPeerClass, request bot.SendMessageRequest) (int, error) {
	builder := &s.sender.To(peer).Builder
	if request.ReplyToMessageID != "" {
		replyTo, err := strconv.Atoi(strings.TrimSpace(request.ReplyToMessageID))
		if err != nil || replyTo <= 0 {
			return 0, fmt.Errorf("%w: reply_to_message_id %q", bot.ErrInvalidOutboundRequest, request.ReplyToMessageID)
		}
		builder = builder.Reply(replyTo)
	}
	if request.Silent {
		builder = builder.Silent()
	}
	if request.DisableLinkPreview {
		builder = builder.NoWebpage()
	}

	id, err := unpack.MessageID(builder.Text(ctx, request.Text))
	if err != nil {
		return 0, fmt.Errorf("send text: %w", err)
	}

	return id, nil
}

var _ bot.SinkDispatcher = (*Dispatcher)(nil)
