package bot

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ServiceSinkDispatcher resolves to the process SinkDispatcher.
const ServiceSinkDispatcher = "bot.sink_dispatcher"

// maxReplyRetryDelay bounds how long Reply waits out a rate limit.
const maxReplyRetryDelay = 10 * time.Second

// SinkDispatcher delivers outbound messages through a driver.
type SinkDispatcher interface {
	SendMessage(ctx context.Context, request SendMessageRequest) (*OutboundMessage, error)
}

// OutboundTarget is the conversation a message goes to. Source, when set,
// selects the driver instance that sends it.
type OutboundTarget struct {
	Conversation Conversation
	Source       *EventSource
}

// Validate requires a typed conversation and, when present, an identified source.
func (t OutboundTarget) Validate() error {
	switch {
	case t.Conversation.ID == "":
		return fmt.Errorf("%w: missing conversation id", ErrInvalidOutboundRequest)
	case t.Conversation.Type == "":
		return fmt.Errorf("%w: missing conversation type", ErrInvalidOutboundRequest)
	case t.Source != nil && *t.Source == (EventSource{}):
		return fmt.Errorf("%w: missing source identity", ErrInvalidOutboundRequest)
	default:
		return nil
	}
}

// OutboundTargetFromEvent targets the conversation and driver event came from.
func OutboundTargetFromEvent(event *Event) (OutboundTarget, error) {
	if event == nil {
		return OutboundTarget{}, fmt.Errorf("%w: nil event", ErrInvalidOutboundRequest)
	}

	source := event.Source
	if source.Platform == "" {
		source.Platform = event.Platform
	}
	target := OutboundTarget{Conversation: event.Conversation}
	if source != (EventSource{}) {
		target.Source = &source
	}
	if err := target.Validate(); err != nil {
		return OutboundTarget{}, fmt.Errorf("target for event %s: %w", event.Kind, err)
	}

	return target, nil
}

// OutboundMessage is a delivered message.
type OutboundMessage struct {
	// ID is the platform message id.
	ID     string
	Target OutboundTarget
}

// SendMessageRequest is one outbound text message.
type SendMessageRequest struct {
	Target             OutboundTarget
	Text               string
	ReplyToMessageID   string
	DisableLinkPreview bool
	Silent             bool
}

// Validate checks the target and requires text.
func (r SendMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("send message target: %w", err)
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: missing message text", ErrInvalidOutboundRequest)
	}

	return nil
}

// ReplyTo builds a request answering the message that produced event.
func ReplyTo(event *Event, text string) (SendMessageRequest, error) {
	target, err := OutboundTargetFromEvent(event)
	if err != nil {
		return SendMessageRequest{}, err
	}

	request := SendMessageRequest{Target: target, Text: text}
	if event.Message != nil {
		request.ReplyToMessageID = event.Message.ID
	}

	return request, nil
}

// Reply sends text as a reply to event. A rate-limited send is retried once
// after the platform's delay when that delay is short.
func Reply(ctx context.Context, dispatcher SinkDispatcher, event *Event, text string) (*OutboundMessage, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("reply: %w: no sink dispatcher", ErrOutboundUnsupported)
	}
	request, err := ReplyTo(event, text)
	if err != nil {
		return nil, fmt.Errorf("reply: %w", err)
	}

	sent, err := dispatcher.SendMessage(ctx, request)
	delay, limited := RetryDelay(err)
	if !limited || delay > maxReplyRetryDelay {
		if err != nil {
			return nil, fmt.Errorf("reply: %w", err)
		}
		return sent, nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("reply: %w", errors.Join(err, ctx.Err()))
	case <-timer.C:
	}
	if sent, err = dispatcher.SendMessage(ctx, request); err != nil {
		return nil, fmt.Errorf("reply after rate limit: %w", err)
	}

	return sent, nil
}

// OutboundOperation names a SinkDispatcher method.
type OutboundOperation string

// OutboundOperationSendMessage is SinkDispatcher.SendMessage.
const OutboundOperationSendMessage OutboundOperation = "send_message"

// OutboundErrorKind classifies delivery failures for callers deciding whether to retry.
type OutboundErrorKind string

const (
	OutboundErrorKindRateLimited OutboundErrorKind = "rate_limited"
	OutboundErrorKindTemporary   OutboundErrorKind = "temporary"
	OutboundErrorKindPermanent   OutboundErrorKind = "permanent"
	OutboundErrorKindUnknown     OutboundErrorKind = "unknown"
)

// OutboundError is a classified delivery failure raised by a driver dispatcher.
type OutboundError struct {
	Operation  OutboundOperation
	Kind       OutboundErrorKind
	Platform   Platform
	SinkID     string
	RetryAfter time.Duration
	// Code and Type carry the platform error when one was returned.
	Code  int
	Type  string
	Cause error
}

func (e *OutboundError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("outbound ")
	b.WriteString(string(cmp.Or(e.Operation, "operation")))
	b.WriteString(" failed (")
	b.WriteString(string(cmp.Or(e.Kind, OutboundErrorKindUnknown)))
	if e.SinkID != "" {
		b.WriteString(" via " + e.SinkID)
	}
	if e.Code != 0 || e.Type != "" {
		b.WriteString(", " + strconv.Itoa(e.Code) + " " + e.Type)
	}
	if e.RetryAfter > 0 {
		b.WriteString(", retry after " + e.RetryAfter.String())
	}
	b.WriteString(")")
	if e.Cause != nil {
		b.WriteString(": " + e.Cause.Error())
	}

	return b.String()
}

func (e *OutboundError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// AsOutboundError finds an OutboundError in err's chain.
func AsOutboundError(err error) (*OutboundError, bool) {
	var outboundErr *OutboundError
	if !errors.As(err, &outboundErr) {
		return nil, false
	}

	return outboundErr, true
}

// RetryDelay reports whether err is a rate limit and how long the platform
// asked to wait. The delay is zero when no hint was given.
func RetryDelay(err error) (time.Duration, bool) {
	outboundErr, ok := AsOutboundError(err)
	if !ok || outboundErr.Kind != OutboundErrorKindRateLimited {
		return 0, false
	}

	return outboundErr.RetryAfter, true
}
