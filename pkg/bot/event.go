package bot

import (
	"fmt"
	"time"
)

// EventKind names what happened. Each kind requires one payload branch of Event.
type EventKind string

// Kinds published by drivers.
const (
	EventKindMessageCreated EventKind = "message.created"
	EventKindMessageEdited  EventKind = "message.edited"
	EventKindMemberJoined   EventKind = "member.joined"
	EventKindMemberLeft     EventKind = "member.left"
	EventKindRoleUpdated    EventKind = "role.updated"
)

// Kinds derived by the kernel from messages that parse as commands.
const (
	// EventKindCommandReceived carries a "/" command.
	EventKindCommandReceived EventKind = "command.received"
	// EventKindSystemCommandReceived carries a "~" command.
	EventKindSystemCommandReceived EventKind = "system_command.received"
)

// Platform names a chat network.
type Platform string

const PlatformTelegram Platform = "telegram"

// ConversationType is the scope of a conversation. Telegram megagroups are groups.
type ConversationType string

const (
	ConversationTypePrivate ConversationType = "private"
	ConversationTypeGroup   ConversationType = "group"
	ConversationTypeChannel ConversationType = "channel"
)

// Event is the platform-neutral envelope drivers publish and modules consume.
type Event struct {
	ID         string
	Kind       EventKind
	OccurredAt time.Time
	Platform   Platform
	// Source is the driver instance that published the event; replies go back through it.
	Source       EventSource
	Conversation Conversation
	// Actor is whoever caused the event. For membership events that is the
	// inviter or remover, which may differ from the member.
	Actor       Actor
	Message     *Message
	StateChange *StateChange
	Command     *CommandInvocation
	Metadata    map[string]string
}

// EventSource identifies a configured driver instance.
type EventSource struct {
	Platform Platform
	ID       string
}

type Conversation struct {
	ID    string
	Type  ConversationType
	Title string
}

// Actor is a platform account as seen in one event.
type Actor struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
	// Anonymous is set when the platform hides who acted, as with channel posts
	// and anonymous group admins. ID then names the chat, not a person.
	Anonymous bool
}

type Message struct {
	ID        string
	ThreadID  string
	ReplyToID string
	// Text is the current body; edits carry the new text.
	Text string
}

// StateChangeType selects the StateChange branch.
type StateChangeType string

const (
	StateChangeTypeMember StateChangeType = "member"
	StateChangeTypeRole   StateChangeType = "role"
)

// StateChange is the payload of membership and role events.
type StateChange struct {
	Type   StateChangeType
	Member *MemberChange
	Role   *RoleChange
}

// MemberChange is one join or leave.
type MemberChange struct {
	// Action repeats the event kind.
	Action  EventKind
	Member  Actor
	Inviter *Actor
	// Reason is a driver token describing what the platform reported.
	Reason   string
	JoinedAt time.Time
}

// RoleChange is one privilege transition such as "member" to "admin".
type RoleChange struct {
	Member    Actor
	OldRole   string
	NewRole   string
	ChangedBy Actor
}

// Validate checks the envelope and that the payload required by Kind is present.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}

	var missing string
	switch {
	case e.ID == "":
		missing = "id"
	case e.Kind == "":
		missing = "kind"
	case e.OccurredAt.IsZero():
		missing = "occurred_at"
	case e.Conversation.ID == "":
		missing = "conversation id"
	}
	if missing != "" {
		return fmt.Errorf("%w: missing %s", ErrInvalidEvent, missing)
	}

	if err := e.validatePayload(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidEvent, e.Kind, err)
	}

	return nil
}

func (e *Event) validatePayload() error {
	switch e.Kind {
	case EventKindMessageCreated, EventKindMessageEdited:
		if e.Message == nil {
			return fmt.Errorf("message payload required")
		}
	case EventKindMemberJoined, EventKindMemberLeft:
		if e.StateChange == nil || e.StateChange.Member == nil {
			return fmt.Errorf("member payload required")
		}
	case EventKindRoleUpdated:
		if e.StateChange == nil || e.StateChange.Role == nil {
			return fmt.Errorf("role payload required")
		}
	case EventKindCommandReceived, EventKindSystemCommandReceived:
		if e.Command == nil {
			return fmt.Errorf("command payload required")
		}
		return e.Command.Validate()
	default:
		return fmt.Errorf("unsupported kind")
	}

	return nil
}
