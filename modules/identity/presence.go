package identity

import (
	"errors"
	"fmt"
	"strings"

	"nanobot/pkg/bot"
)

var (
	errMissingPayload = errors.New("missing presence payload")
	errEmptyHandle    = errors.New("occupant has no handle")
)

// translatePresence converts one neutral event into an index mutation.
func translatePresence(event *bot.Event) (PresenceEvent, error) {
	if event == nil {
		return PresenceEvent{}, errMissingPayload
	}

	var (
		member bot.Actor
		kind   PresenceKind
	)
	switch event.Kind {
	case bot.EventKindMemberJoined, bot.EventKindMemberLeft:
		if event.StateChange == nil || event.StateChange.Member == nil {
			return PresenceEvent{}, fmt.Errorf("%s: %w", event.Kind, errMissingPayload)
		}
		member = event.StateChange.Member.Member
		kind = PresenceJoined
		if event.Kind == bot.EventKindMemberLeft {
			kind = PresenceLeft
		}
	case bot.EventKindRoleUpdated:
		if event.StateChange == nil || event.StateChange.Role == nil {
			return PresenceEvent{}, fmt.Errorf("%s: %w", event.Kind, errMissingPayload)
		}
		member = event.StateChange.Role.Member
		kind = PresenceUpdated
	case bot.EventKindMessageCreated:
		member = event.Actor
		kind = PresenceUpdated
	default:
		return PresenceEvent{}, fmt.Errorf("unsupported event kind %s", event.Kind)
	}

	key := memberKey(event, member)
	occupant, err := occupantFor(event.Conversation.ID, member)
	if err != nil && (kind != PresenceLeft || key == "") {
		return PresenceEvent{}, fmt.Errorf("%s: %w", event.Kind, err)
	}

	return PresenceEvent{
		Occupant: occupant,
		Real:     realFor(event, member),
		Kind:     kind,
		Member:   key,
	}, nil
}

func occupantFor(conversationID string, member bot.Actor) (OccupantIdentity, error) {
	handle := normalizeHandle(member.Username)
	if handle == "" {
		handle = strings.TrimSpace(member.DisplayName)
	}
	if handle == "" {
		return "", errEmptyHandle
	}

	return occupantKey(conversationID, handle), nil
}

// occupantKey folds case; platform handles are case-insensitive.
func occupantKey(conversationID string, handle string) OccupantIdentity {
	return OccupantIdentity(conversationID + "/" + strings.ToLower(handle))
}

// realFor returns the durable identity of member, or empty when the platform
// hides it.
func realFor(event *bot.Event, member bot.Actor) RealIdentity {
	id := accountID(event, member)
	if id == "" {
		return ""
	}

	platform := event.Platform
	if platform == "" {
		platform = event.Source.Platform
	}

	return RealIdentity(fmt.Sprintf("%s:%s", platform, id))
}

// memberKey scopes the account id of member to the conversation.
func memberKey(event *bot.Event, member bot.Actor) string {
	id := accountID(event, member)
	if id == "" {
		return ""
	}

	return event.Conversation.ID + "/" + id
}

func accountID(event *bot.Event, member bot.Actor) string {
	id := strings.TrimSpace(member.ID)
	if id == "" || member.Anonymous || id == event.Conversation.ID {
		return ""
	}

	return id
}

func normalizeHandle(value string) string {
	return strings.TrimPrefix(strings.TrimSpace(value), "@")
}
