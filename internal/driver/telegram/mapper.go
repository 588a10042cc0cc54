package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"nanobot/pkg/bot"

	"github.com/gotd/td/tg"
)

// Roles reported in role.updated events.
const (
	roleOwner  = "owner"
	roleAdmin  = "admin"
	roleMember = "member"
	roleBanned = "banned"
	roleLeft   = "left"
)

// eventMapper turns unpacked gotd updates into neutral events and teaches the
// peer cache every conversation it sees.
type eventMapper struct {
	peers *peerCache
	now   func() time.Time
}

func newEventMapper(peers *peerCache) eventMapper {
	return eventMapper{peers: peers, now: time.Now}
}

// mapUpdate returns a validated event, or nil when the update has no neutral counterpart.
func (m eventMapper) mapUpdate(raw rawUpdate) (*bot.Event, error) {
	if raw.update == nil {
		return nil, fmt.Errorf("map gotd update: nil update")
	}
	if raw.entities == nil {
		raw.entities = newEntities(nil, nil)
	}
	m.peers.learn(raw.entities)
	raw.entities.known = m.peers

	event := m.dispatch(raw)
	if event == nil {
		return nil, nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now().UTC()
	}
	event.ID = eventID(event)
	event.Platform = DriverPlatform
	event.Metadata = map[string]string{"gotd_update": raw.update.TypeName()}
	if raw.container != "" {
		event.Metadata["gotd_container"] = raw.container
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("map gotd update %s: %w", raw.update.TypeName(), err)
	}

	return event, nil
}

func (m eventMapper) dispatch(raw rawUpdate) *bot.Event {
	switch update := raw.update.(type) {
	case *tg.UpdateNewMessage:
		return m.newMessage(update.Message, raw)
	case *tg.UpdateNewChannelMessage:
		return m.newMessage(update.Message, raw)
	case *tg.UpdateEditMessage:
		return m.editedMessage(update.Message, raw)
	case *tg.UpdateEditChannelMessage:
		return m.editedMessage(update.Message, raw)
	case *tg.UpdateChatParticipantAdd:
		chat := m.groupChat(update.ChatID, raw)
		inviter := raw.entities.user(update.InviterID)
		return membership{
			kind:    bot.EventKindMemberJoined,
			actor:   inviter,
			member:  raw.entities.user(update.UserID),
			inviter: knownActor(inviter),
			reason:  "update_chat_participant_add",
		}.event(chat, firstTime(unixUTC(update.Date), raw.date))
	case *tg.UpdateChatParticipantDelete:
		chat := m.groupChat(update.ChatID, raw)
		member := raw.entities.user(update.UserID)
		return membership{
			kind:   bot.EventKindMemberLeft,
			actor:  member,
			member: member,
			reason: "update_chat_participant_delete",
		}.event(chat, raw.date)
	case *tg.UpdateChatParticipantAdmin:
		chat := m.groupChat(update.ChatID, raw)
		member := raw.entities.user(update.UserID)
		change := membership{kind: bot.EventKindRoleUpdated, actor: member, member: member, from: roleAdmin, to: roleMember}
		if update.IsAdmin {
			change.from, change.to = roleMember, roleAdmin
		}
		return change.event(chat, raw.date)
	case *tg.UpdateChatParticipant:
		chat := m.groupChat(update.ChatID, raw)
		before, hadBefore := update.GetPrevParticipant()
		after, hasAfter := update.GetNewParticipant()
		change := membership{
			actor:  raw.entities.user(update.ActorID),
			member: raw.entities.user(update.UserID),
			from:   chatRole(before, hadBefore),
			to:     chatRole(after, hasAfter),
			reason: "update_chat_participant",
		}
		return change.transition().event(chat, firstTime(unixUTC(update.Date), raw.date))
	case *tg.UpdateChannelParticipant:
		chat := raw.entities.chat(update.ChannelID, bot.ConversationTypeChannel)
		m.remember(chat, raw.entities.inputPeer(&tg.PeerChannel{ChannelID: update.ChannelID}))
		before, hadBefore := update.GetPrevParticipant()
		after, hasAfter := update.GetNewParticipant()
		change := membership{
			actor:  raw.entities.user(update.ActorID),
			member: raw.entities.user(update.UserID),
			from:   channelRole(before, hadBefore),
			to:     channelRole(after, hasAfter),
			reason: "update_channel_participant",
		}
		return change.transition().event(chat, firstTime(unixUTC(update.Date), raw.date))
	default:
		return nil
	}
}

func (m eventMapper) newMessage(message tg.MessageClass, raw rawUpdate) *bot.Event {
	switch typed := message.(type) {
	case *tg.Message:
		return m.message(bot.EventKindMessageCreated, typed, unixUTC(typed.Date), raw)
	case *tg.MessageService:
		return m.serviceMessage(typed, raw)
	default:
		return nil
	}
}

func (m eventMapper) editedMessage(message tg.MessageClass, raw rawUpdate) *bot.Event {
	typed, ok := message.(*tg.Message)
	if !ok {
		return nil
	}
	at := unixUTC(typed.Date)
	if edited, ok := typed.GetEditDate(); ok {
		at = unixUTC(edited)
	}

	return m.message(bot.EventKindMessageEdited, typed, at, raw)
}

func (m eventMapper) message(kind bot.EventKind, message *tg.Message, at time.Time, raw rawUpdate) *bot.Event {
	chat := raw.entities.conversation(message.PeerID)
	m.remember(chat, raw.entities.inputPeer(message.PeerID))

	payload := &bot.Message{ID: strconv.Itoa(message.ID), Text: message.Message}
	if header, ok := message.GetReplyTo(); ok {
		if reply, ok := header.(*tg.MessageReplyHeader); ok {
			if id, ok := reply.GetReplyToMsgID(); ok {
				payload.ReplyToID = strconv.Itoa(id)
			}
			if top, ok := reply.GetReplyToTopID(); ok {
				payload.ThreadID = strconv.Itoa(top)
			}
		}
	}

	return &bot.Event{
		Kind:         kind,
		OccurredAt:   firstTime(at, raw.date),
		Conversation: chat,
		Actor:        raw.entities.author(message.FromID, message.PeerID),
		Message:      payload,
	}
}

// serviceMessage maps membership service actions; other actions are ignored.
func (m eventMapper) serviceMessage(message *tg.MessageService, raw rawUpdate) *bot.Event {
	chat := raw.entities.conversation(message.PeerID)
	m.remember(chat, raw.entities.inputPeer(message.PeerID))
	actor := raw.entities.actor(message.FromID)
	at := firstTime(unixUTC(message.Date), raw.date)

	var change membership
	switch action := message.Action.(type) {
	case *tg.MessageActionChatAddUser:
		if len(action.Users) == 0 {
			return nil
		}
		change = membership{
			kind:    bot.EventKindMemberJoined,
			member:  raw.entities.user(action.Users[0]),
			inviter: knownActor(actor),
			reason:  "service_action_chat_add_user",
		}
	case *tg.MessageActionChatDeleteUser:
		change = membership{
			kind:   bot.EventKindMemberLeft,
			member: raw.entities.user(action.UserID),
			reason: "service_action_chat_delete_user",
		}
	case *tg.MessageActionChatJoinedByLink:
		change = membership{
			kind:    bot.EventKindMemberJoined,
			member:  actor,
			inviter: knownActor(raw.entities.user(action.InviterID)),
			reason:  "service_action_chat_joined_by_link",
		}
	case *tg.MessageActionChatJoinedByRequest:
		change = membership{kind: bot.EventKindMemberJoined, member: actor, reason: "service_action_chat_joined_by_request"}
	default:
		return nil
	}
	change.actor = actor

	return change.event(chat, at)
}

func (m eventMapper) groupChat(chatID int64, raw rawUpdate) bot.Conversation {
	chat := raw.entities.chat(chatID, bot.ConversationTypeGroup)
	m.remember(chat, raw.entities.inputPeer(&tg.PeerChat{ChatID: chatID}))

	return chat
}

func (m eventMapper) remember(chat bot.Conversation, peer tg.InputPeerClass) {
	m.peers.remember(chat, peer)
}

// membership describes one join, leave or role transition before it becomes an event.
type membership struct {
	kind     bot.EventKind
	actor    bot.Actor
	member   bot.Actor
	inviter  *bot.Actor
	reason   string
	from, to string
}

// transition derives the event kind from the roles on both sides.
// Equal roles yield a membership with no kind, which maps to no event.
func (c membership) transition() membership {
	wasIn, isIn := activeRole(c.from), activeRole(c.to)
	switch {
	case !wasIn && isIn:
		c.kind, c.inviter = bot.EventKindMemberJoined, knownActor(c.actor)
	case wasIn && !isIn:
		c.kind = bot.EventKindMemberLeft
	case wasIn && c.from != c.to:
		c.kind = bot.EventKindRoleUpdated
	}

	return c
}

func (c membership) event(chat bot.Conversation, at time.Time) *bot.Event {
	event := &bot.Event{Kind: c.kind, OccurredAt: at, Conversation: chat, Actor: c.actor}
	switch c.kind {
	case bot.EventKindMemberJoined, bot.EventKindMemberLeft:
		change := &bot.MemberChange{Action: c.kind, Member: c.member, Inviter: c.inviter, Reason: c.reason}
		if c.kind == bot.EventKindMemberJoined {
			change.JoinedAt = at
		}
		event.StateChange = &bot.StateChange{Type: bot.StateChangeTypeMember, Member: change}
	case bot.EventKindRoleUpdated:
		event.StateChange = &bot.StateChange{
			Type: bot.StateChangeTypeRole,
			Role: &bot.RoleChange{Member: c.member, OldRole: c.from, NewRole: c.to, ChangedBy: c.actor},
		}
	default:
		return nil
	}

	return event
}

func chatRole(participant tg.ChatParticipantClass, present bool) string {
	if !present {
		return ""
	}
	switch participant.(type) {
	case *tg.ChatParticipantCreator:
		return roleOwner
	case *tg.ChatParticipantAdmin:
		return roleAdmin
	case *tg.ChatParticipant:
		return roleMember
	default:
		return ""
	}
}

func channelRole(participant tg.ChannelParticipantClass, present bool) string {
	if !present {
		return ""
	}
	switch participant.(type) {
	case *tg.ChannelParticipantCreator:
		return roleOwner
	case *tg.ChannelParticipantAdmin:
		return roleAdmin
	case *tg.ChannelParticipant, *tg.ChannelParticipantSelf:
		return roleMember
	case *tg.ChannelParticipantBanned:
		return roleBanned
	case *tg.ChannelParticipantLeft:
		return roleLeft
	default:
		return ""
	}
}

func activeRole(role string) bool {
	return role != "" && role != roleLeft && role != roleBanned
}

// knownActor returns nil for actors that could not be identified.
func knownActor(actor bot.Actor) *bot.Actor {
	if actor.ID == "" || actor.ID == unknownID {
		return nil
	}

	return &actor
}

func firstTime(candidates ...time.Time) time.Time {
	for _, candidate := range candidates {
		if !candidate.IsZero() {
			return candidate
		}
	}

	return time.Time{}
}

// eventID is stable for one update: "tg:<kind>:<conversation>:<subject>:<unix nanos>".
func eventID(event *bot.Event) string {
	subject := event.Actor.ID
	switch {
	case event.Message != nil:
		subject = event.Message.ID
	case event.StateChange != nil && event.StateChange.Member != nil:
		subject = event.StateChange.Member.Member.ID
	case event.StateChange != nil && event.StateChange.Role != nil:
		subject = event.StateChange.Role.Member.ID
	}

	parts := []string{"tg", string(event.Kind), event.Conversation.ID}
	if subject != "" {
		parts = append(parts, subject)
	}
	parts = append(parts, strconv.FormatInt(event.OccurredAt.UnixNano(), 10))

	return strings.Join(parts, ":")
}
