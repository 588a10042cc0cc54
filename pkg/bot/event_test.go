package bot

import (
	"errors"
	"testing"
	"time"
)

func TestEventValidate(t *testing.T) {
	t.Parallel()

	base := func() *Event {
		return &Event{
			ID:           "evt-1",
			Kind:         EventKindMessageCreated,
			OccurredAt:   time.Unix(100, 0).UTC(),
			Platform:     PlatformTelegram,
			Conversation: Conversation{ID: "chat-1", Type: ConversationTypeGroup},
			Message:      &Message{ID: "1", Text: "hello"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr bool
	}{
		{name: "valid message", mutate: func(*Event) {}},
		{name: "missing id", mutate: func(e *Event) { e.ID = "" }, wantErr: true},
		{name: "missing occurred at", mutate: func(e *Event) { e.OccurredAt = time.Time{} }, wantErr: true},
		{name: "missing conversation", mutate: func(e *Event) { e.Conversation.ID = "" }, wantErr: true},
		{name: "message without payload", mutate: func(e *Event) { e.Message = nil }, wantErr: true},
		{
			name: "member joined with member payload",
			mutate: func(e *Event) {
				e.Kind = EventKindMemberJoined
				e.StateChange = &StateChange{Type: StateChangeTypeMember, Member: &MemberChange{Action: EventKindMemberJoined}}
			},
		},
		{
			name: "member left without member payload",
			mutate: func(e *Event) {
				e.Kind = EventKindMemberLeft
				e.StateChange = &StateChange{Type: StateChangeTypeRole}
			},
			wantErr: true,
		},
		{
			name: "role updated without role payload",
			mutate: func(e *Event) {
				e.Kind = EventKindRoleUpdated
				e.StateChange = &StateChange{Type: StateChangeTypeRole}
			},
			wantErr: true,
		},
		{
			name: "command with incomplete invocation",
			mutate: func(e *Event) {
				e.Kind = EventKindCommandReceived
				e.Command = &CommandInvocation{Name: "wordcount"}
			},
			wantErr: true,
		},
		{
			name: "command with invocation",
			mutate: func(e *Event) {
				e.Kind = EventKindCommandReceived
				e.Command = &CommandInvocation{
					Name:            "wordcount",
					SourceEventID:   "evt-0",
					SourceEventKind: EventKindMessageCreated,
				}
			},
		},
		{name: "unsupported kind", mutate: func(e *Event) { e.Kind = "reaction.added" }, wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			event := base()
			testCase.mutate(event)
			err := event.Validate()
			if testCase.wantErr {
				if !errors.Is(err, ErrInvalidEvent) {
					t.Fatalf("Validate() = %v, want ErrInvalidEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}
