package identity

import (
	"errors"
	"testing"
	"time"

	"nanobot/pkg/bot"
)

func TestTranslatePresence(t *testing.T) {
	t.Parallel()

	alice := bot.Actor{ID: "100", Username: "alice", DisplayName: "Alice"}

	tests := []struct {
		name    string
		event   *bot.Event
		want    PresenceEvent
		wantErr error
	}{
		{
			name:  "member joined maps to joined",
			event: newMemberEvent(bot.EventKindMemberJoined, alice),
			want:  PresenceEvent{Occupant: "-1001/alice", Real: "telegram:100", Kind: PresenceJoined, Member: "-1001/100"},
		},
		{
			name:  "member left maps to left",
			event: newMemberEvent(bot.EventKindMemberLeft, alice),
			want:  PresenceEvent{Occupant: "-1001/alice", Real: "telegram:100", Kind: PresenceLeft, Member: "-1001/100"},
		},
		{
			name:  "role update maps to updated for the affected member",
			event: newRoleEvent(alice, bot.Actor{ID: "1", Username: "owner"}),
			want:  PresenceEvent{Occupant: "-1001/alice", Real: "telegram:100", Kind: PresenceUpdated, Member: "-1001/100"},
		},
		{
			name:  "message maps to updated for the author",
			event: newMessageEvent(alice),
			want:  PresenceEvent{Occupant: "-1001/alice", Real: "telegram:100", Kind: PresenceUpdated, Member: "-1001/100"},
		},
		{
			name:  "display name is used without username",
			event: newMessageEvent(bot.Actor{ID: "100", DisplayName: "Alice Liddell"}),
			want:  PresenceEvent{Occupant: "-1001/alice liddell", Real: "telegram:100", Kind: PresenceUpdated, Member: "-1001/100"},
		},
		{
			name:  "anonymous actor has no real identity",
			event: newMessageEvent(bot.Actor{ID: "100", Username: "alice", Anonymous: true}),
			want:  PresenceEvent{Occupant: "-1001/alice", Kind: PresenceUpdated},
		},
		{
			name:  "conversation posting as itself has no real identity",
			event: newMessageEvent(bot.Actor{ID: "-1001", DisplayName: "Writers"}),
			want:  PresenceEvent{Occupant: "-1001/writers", Kind: PresenceUpdated},
		},
		{
			name:  "unknown actor id has no real identity",
			event: newMessageEvent(bot.Actor{Username: "ghost"}),
			want:  PresenceEvent{Occupant: "-1001/ghost", Kind: PresenceUpdated},
		},
		{
			name:  "username case is folded",
			event: newMessageEvent(bot.Actor{ID: "100", Username: "@Alice"}),
			want:  PresenceEvent{Occupant: "-1001/alice", Real: "telegram:100", Kind: PresenceUpdated, Member: "-1001/100"},
		},
		{
			name:  "left without handle keeps the member key",
			event: newMemberEvent(bot.EventKindMemberLeft, bot.Actor{ID: "100"}),
			want:  PresenceEvent{Real: "telegram:100", Kind: PresenceLeft, Member: "-1001/100"},
		},
		{
			name:    "left without handle or account fails",
			event:   newMemberEvent(bot.EventKindMemberLeft, bot.Actor{ID: "100", Anonymous: true}),
			wantErr: errEmptyHandle,
		},
		{
			name:    "join without handle fails",
			event:   newMemberEvent(bot.EventKindMemberJoined, bot.Actor{ID: "100"}),
			wantErr: errEmptyHandle,
		},
		{
			name:    "missing member payload fails",
			event:   &bot.Event{Kind: bot.EventKindMemberJoined, Conversation: bot.Conversation{ID: "-1001"}},
			wantErr: errMissingPayload,
		},
		{
			name:    "missing handle fails",
			event:   newMessageEvent(bot.Actor{ID: "100"}),
			wantErr: errEmptyHandle,
		},
		{
			name:    "nil event fails",
			wantErr: errMissingPayload,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := translatePresence(testCase.event)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("error = %v, want %v", err, testCase.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != testCase.want {
				t.Fatalf("translatePresence() = %+v, want %+v", got, testCase.want)
			}
		})
	}
}

func newMemberEvent(kind bot.EventKind, member bot.Actor) *bot.Event {
	return &bot.Event{
		ID:           "member-1",
		Kind:         kind,
		OccurredAt:   time.Unix(1, 0).UTC(),
		Platform:     bot.PlatformTelegram,
		Conversation: bot.Conversation{ID: "-1001", Type: bot.ConversationTypeGroup},
		Actor:        member,
		StateChange: &bot.StateChange{
			Type:   bot.StateChangeTypeMember,
			Member: &bot.MemberChange{Action: kind, Member: member},
		},
	}
}

func newRoleEvent(member bot.Actor, changedBy bot.Actor) *bot.Event {
	return &bot.Event{
		ID:           "role-1",
		Kind:         bot.EventKindRoleUpdated,
		OccurredAt:   time.Unix(1, 0).UTC(),
		Platform:     bot.PlatformTelegram,
		Conversation: bot.Conversation{ID: "-1001", Type: bot.ConversationTypeGroup},
		Actor:        changedBy,
		StateChange: &bot.StateChange{
			Type: bot.StateChangeTypeRole,
			Role: &bot.RoleChange{Member: member, OldRole: "member", NewRole: "admin", ChangedBy: changedBy},
		},
	}
}

func newMessageEvent(author bot.Actor) *bot.Event {
	return &bot.Event{
		ID:           "message-1",
		Kind:         bot.EventKindMessageCreated,
		OccurredAt:   time.Unix(1, 0).UTC(),
		Platform:     bot.PlatformTelegram,
		Conversation: bot.Conversation{ID: "-1001", Type: bot.ConversationTypeGroup},
		Actor:        author,
		Message:      &bot.Message{ID: "msg-1", Text: "hello"},
	}
}
