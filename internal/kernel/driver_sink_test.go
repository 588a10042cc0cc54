package kernel

import (
	"context"
	"strings"
	"sync"
	"testing"

	"nanobot/pkg/bot"
)

func TestDriverSinkDerive(t *testing.T) {
	t.Parallel()

	sink := &driverSink{commands: newCommandTable()}
	err := sink.commands.claim("wordcount", []bot.CommandSpec{
		{Prefix: bot.CommandPrefixOrdinary, Name: "wordcount", Arguments: "[username]"},
		{
			Prefix:  bot.CommandPrefixSystem,
			Name:    "identities",
			Options: []bot.CommandOptionSpec{{Name: "limit", HasValue: true}},
		},
	})
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	tests := []struct {
		name      string
		kind      bot.EventKind
		text      string
		wantKind  bot.EventKind
		wantID    string
		wantValue string
		wantUsage string
	}{
		{
			name: "plain text is not a command",
			kind: bot.EventKindMessageCreated,
			text: "hello there",
		},
		{
			name: "unregistered command is ignored",
			kind: bot.EventKindMessageCreated,
			text: "/ping",
		},
		{
			name:      "ordinary command with argument",
			kind:      bot.EventKindMessageCreated,
			text:      "/WordCount@nanobot alice",
			wantKind:  bot.EventKindCommandReceived,
			wantID:    "m1#command",
			wantValue: "alice",
		},
		{
			name:     "edited message derives system command",
			kind:     bot.EventKindMessageEdited,
			text:     "~identities --limit 5",
			wantKind: bot.EventKindSystemCommandReceived,
			wantID:   "m1#system-command",
		},
		{
			name:      "bind failure yields usage",
			kind:      bot.EventKindMessageCreated,
			text:      "~identities --limit",
			wantUsage: "usage: ~identities [--limit <value>]",
		},
		{
			name:      "parse failure yields usage",
			kind:      bot.EventKindMessageCreated,
			text:      "/wordcount --region=eu",
			wantUsage: "usage: /wordcount [username]",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			event := newTestEvent("m1", testCase.kind)
			event.Message.Text = testCase.text

			derived, usage := sink.derive(event)
			if testCase.wantUsage != "" {
				if derived != nil {
					t.Fatalf("derive() event = %+v, want nil", derived)
				}
				if !strings.HasSuffix(usage, testCase.wantUsage) {
					t.Fatalf("derive() usage = %q, want suffix %q", usage, testCase.wantUsage)
				}
				return
			}
			if usage != "" {
				t.Fatalf("derive() usage = %q, want empty", usage)
			}
			if testCase.wantKind == "" {
				if derived != nil {
					t.Fatalf("derive() event = %+v, want nil", derived)
				}
				return
			}
			if derived == nil {
				t.Fatal("derive() event = nil, want command")
			}
			if derived.Kind != testCase.wantKind || derived.ID != testCase.wantID {
				t.Fatalf("derive() = (%s, %s), want (%s, %s)", derived.Kind, derived.ID, testCase.wantKind, testCase.wantID)
			}
			if derived.Command.Value != testCase.wantValue {
				t.Fatalf("command value = %q, want %q", derived.Command.Value, testCase.wantValue)
			}
			if err := derived.Validate(); err != nil {
				t.Fatalf("derived event invalid: %v", err)
			}
			if derived.Message == event.Message {
				t.Fatal("derived event shares the source message")
			}
		})
	}
}

func TestDriverSinkPublish(t *testing.T) {
	t.Parallel()

	bus := &recordingSink{}
	dispatcher := &replyCapture{}
	services := NewServiceRegistry()
	if err := services.Register(bot.ServiceSinkDispatcher, dispatcher); err != nil {
		t.Fatalf("register dispatcher failed: %v", err)
	}
	sink := &driverSink{
		bus:      bus,
		commands: newCommandTable(),
		services: services,
		report: func(_ context.Context, scope string, err error) {
			t.Errorf("unexpected report %s: %v", scope, err)
		},
	}
	if err := sink.commands.claim("wordcount", []bot.CommandSpec{
		{Prefix: bot.CommandPrefixOrdinary, Name: "wordcount"},
	}); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	command := newTestEvent("m1", bot.EventKindMessageCreated)
	command.Message.Text = "/wordcount alice"
	if err := sink.Publish(context.Background(), command); err != nil {
		t.Fatalf("Publish(command) error = %v", err)
	}

	malformed := newTestEvent("m2", bot.EventKindMessageCreated)
	malformed.Message.Text = "/wordcount --all=1"
	if err := sink.Publish(context.Background(), malformed); err != nil {
		t.Fatalf("Publish(malformed) error = %v", err)
	}

	if err := sink.Publish(context.Background(), nil); err == nil {
		t.Fatal("expected nil event to fail")
	}

	gotIDs := bus.ids()
	wantIDs := []string{"m1", "m1#command", "m2"}
	if strings.Join(gotIDs, ",") != strings.Join(wantIDs, ",") {
		t.Fatalf("published = %v, want %v", gotIDs, wantIDs)
	}

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.requests) != 1 {
		t.Fatalf("usage replies = %d, want 1", len(dispatcher.requests))
	}
	reply := dispatcher.requests[0]
	if reply.ReplyToMessageID != "msg-1" || !strings.HasSuffix(reply.Text, "usage: /wordcount") {
		t.Fatalf("usage reply = %+v", reply)
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []*bot.Event
}

func (s *recordingSink) Publish(_ context.Context, event *bot.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)

	return nil
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.events))
	for _, event := range s.events {
		ids = append(ids, event.ID)
	}

	return ids
}

type replyCapture struct {
	mu       sync.Mutex
	requests []bot.SendMessageRequest
}

func (c *replyCapture) SendMessage(_ context.Context, request bot.SendMessageRequest) (*bot.OutboundMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, request)

	return &bot.OutboundMessage{ID: "reply-1", Target: request.Target}, nil
}
