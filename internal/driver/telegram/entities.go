package telegram

import (
	"strconv"
	"strings"

	"nanobot/pkg/bot"

	"github.com/gotd/td/tg"
)

const unknownID = "unknown"

// entities indexes the users and chats that arrive alongside one gotd update batch.
//
// Lookups fall back to bare identifiers when an entity was not attached.
type entities struct {
	users map[int64]*tg.User
	chats map[int64]chatEntity
	// known supplies profiles learned from earlier batches.
	known *peerCache
}

type chatEntity struct {
	title string
	kind  bot.ConversationType
	peer  tg.InputPeerClass
}

func newEntities(users []tg.UserClass, chats []tg.ChatClass) *entities {
	index := &entities{
		users: make(map[int64]*tg.User, len(users)),
		chats: make(map[int64]chatEntity, len(chats)),
	}
	for _, user := range users {
		if user == nil {
			continue
		}
		if full, ok := user.AsNotEmpty(); ok && full != nil {
			index.users[full.ID] = full
		}
	}
	for _, chat := range chats {
		index.addChat(chat)
	}

	return index
}

func (e *entities) addChat(chat tg.ChatClass) {
	switch typed := chat.(type) {
	case *tg.Chat:
		e.chats[typed.ID] = chatEntity{title: typed.Title, kind: bot.ConversationTypeGroup, peer: typed.AsInputPeer()}
	case *tg.ChatForbidden:
		e.chats[typed.ID] = chatEntity{
			title: typed.Title,
			kind:  bot.ConversationTypeGroup,
			peer:  &tg.InputPeerChat{ChatID: typed.ID},
		}
	case *tg.Channel:
		e.chats[typed.ID] = chatEntity{title: typed.Title, kind: channelKind(typed.Megagroup), peer: typed.AsInputPeer()}
	case *tg.ChannelForbidden:
		e.chats[typed.ID] = chatEntity{
			title: typed.Title,
			kind:  channelKind(typed.Megagroup),
			peer:  &tg.InputPeerChannel{ChannelID: typed.ID, AccessHash: typed.AccessHash},
		}
	}
}

// channelKind reports megagroups as groups; only broadcast channels stay channels.
func channelKind(megagroup bool) bot.ConversationType {
	if megagroup {
		return bot.ConversationTypeGroup
	}

	return bot.ConversationTypeChannel
}

// user resolves a user id into an actor, preferring the attached profile.
func (e *entities) user(userID int64) bot.Actor {
	if userID == 0 {
		return bot.Actor{ID: unknownID}
	}

	id := strconv.FormatInt(userID, 10)
	profile, ok := e.users[userID]
	if !ok {
		profile, ok = e.known.user(userID)
	}
	if !ok {
		return bot.Actor{ID: id}
	}

	username, _ := profile.GetUsername()
	first, _ := profile.GetFirstName()
	last, _ := profile.GetLastName()
	name := strings.TrimSpace(first + " " + last)
	switch {
	case name != "":
	case username != "":
		name = username
	default:
		name = id
	}

	return bot.Actor{ID: id, Username: username, DisplayName: name, IsBot: profile.Bot}
}

// chat resolves a basic group or channel id. kind applies when no entity was attached.
func (e *entities) chat(chatID int64, kind bot.ConversationType) bot.Conversation {
	conversation := bot.Conversation{ID: strconv.FormatInt(chatID, 10), Type: kind}
	if entity, ok := e.chats[chatID]; ok {
		conversation.Title = entity.title
		conversation.Type = entity.kind
	}

	return conversation
}

// conversation resolves the chat a message peer points at.
func (e *entities) conversation(peer tg.PeerClass) bot.Conversation {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		actor := e.user(typed.UserID)
		return bot.Conversation{ID: actor.ID, Type: bot.ConversationTypePrivate, Title: actor.DisplayName}
	case *tg.PeerChat:
		return e.chat(typed.ChatID, bot.ConversationTypeGroup)
	case *tg.PeerChannel:
		return e.chat(typed.ChannelID, bot.ConversationTypeChannel)
	default:
		return bot.Conversation{ID: unknownID, Type: bot.ConversationTypePrivate}
	}
}

// actor resolves any peer into an actor. Chat peers become actors named after the chat.
func (e *entities) actor(peer tg.PeerClass) bot.Actor {
	var chatID int64
	switch typed := peer.(type) {
	case *tg.PeerUser:
		return e.user(typed.UserID)
	case *tg.PeerChat:
		chatID = typed.ChatID
	case *tg.PeerChannel:
		chatID = typed.ChannelID
	default:
		return bot.Actor{ID: unknownID}
	}

	return bot.Actor{ID: strconv.FormatInt(chatID, 10), DisplayName: e.chats[chatID].title}
}

// author resolves who posted a message.
//
// Posts without a user behind them are anonymous: channel posts, anonymous
// group admins and users sending as a linked channel.
func (e *entities) author(from tg.PeerClass, peer tg.PeerClass) bot.Actor {
	if from == nil {
		actor := e.actor(peer)
		_, private := peer.(*tg.PeerUser)
		actor.Anonymous = !private
		return actor
	}

	actor := e.actor(from)
	_, isUser := from.(*tg.PeerUser)
	actor.Anonymous = !isUser

	return actor
}

// inputPeer returns the RPC peer for a message peer, or nil when the access hash is unknown.
func (e *entities) inputPeer(peer tg.PeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		if profile, ok := e.users[typed.UserID]; ok {
			return profile.AsInputPeer()
		}
	case *tg.PeerChat:
		if typed.ChatID != 0 {
			return &tg.InputPeerChat{ChatID: typed.ChatID}
		}
	case *tg.PeerChannel:
		if entity, ok := e.chats[typed.ChannelID]; ok && entity.peer != nil {
			return cloneInputPeer(entity.peer)
		}
	}

	return nil
}
