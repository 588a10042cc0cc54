package telegram

import (
	"fmt"
	"strconv"
	"sync"

	"nanobot/pkg/bot"

	"github.com/gotd/td/tg"
)

// peerCache maps neutral conversations back to the Telegram input peers seen
// inbound. It also keeps the last profile seen for every user, since short
// updates arrive without one.
type peerCache struct {
	mu    sync.RWMutex
	peers map[peerKey]tg.InputPeerClass
	users map[int64]*tg.User
}

type peerKey struct {
	kind bot.ConversationType
	id   string
}

// newPeerCache creates an empty cache.
func newPeerCache() *peerCache {
	return &peerCache{
		peers: make(map[peerKey]tg.InputPeerClass),
		users: make(map[int64]*tg.User),
	}
}

// learn records the peers of every user and chat entity in one batch.
func (c *peerCache) learn(index *entities) {
	if c == nil || index == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, user := range index.users {
		if peer := user.AsInputPeer(); peer != nil {
			c.store(bot.Conversation{ID: strconv.FormatInt(id, 10), Type: bot.ConversationTypePrivate}, peer)
		}
		// A min profile never replaces a full one.
		if cached, ok := c.users[id]; !ok || !user.Min || cached.Min {
			c.users[id] = user
		}
	}
	for id, chat := range index.chats {
		if chat.peer != nil {
			c.store(bot.Conversation{ID: strconv.FormatInt(id, 10), Type: chat.kind}, chat.peer)
		}
	}
}

// user returns the last profile learned for id.
func (c *peerCache) user(id int64) (*tg.User, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	user, ok := c.users[id]

	return user, ok
}

// remember records one conversation peer. Nil peers and empty ids are ignored.
func (c *peerCache) remember(conversation bot.Conversation, peer tg.InputPeerClass) {
	if c == nil || peer == nil || conversation.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(conversation, peer)
}

// store must be called with c.mu held. Megagroups are reported as groups but
// addressed through channel peers, so they are stored under both kinds.
func (c *peerCache) store(conversation bot.Conversation, peer tg.InputPeerClass) {
	c.peers[peerKey{kind: conversation.Type, id: conversation.ID}] = cloneInputPeer(peer)
	if _, channel := peer.(*tg.InputPeerChannel); channel && conversation.Type == bot.ConversationTypeGroup {
		c.peers[peerKey{kind: bot.ConversationTypeChannel, id: conversation.ID}] = cloneInputPeer(peer)
	}
}

// resolve returns a copy of the peer for conversation. Groups and channels
// fall back to each other.
func (c *peerCache) resolve(conversation bot.Conversation) (tg.InputPeerClass, error) {
	if c == nil {
		return nil, fmt.Errorf("resolve peer: nil cache")
	}
	if conversation.ID == "" || conversation.Type == "" {
		return nil, fmt.Errorf("resolve peer: incomplete conversation %+v", conversation)
	}

	kinds := []bot.ConversationType{conversation.Type}
	switch conversation.Type {
	case bot.ConversationTypeGroup:
		kinds = append(kinds, bot.ConversationTypeChannel)
	case bot.ConversationTypeChannel:
		kinds = append(kinds, bot.ConversationTypeGroup)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, kind := range kinds {
		if peer, ok := c.peers[peerKey{kind: kind, id: conversation.ID}]; ok {
			return cloneInputPeer(peer), nil
		}
	}

	return nil, fmt.Errorf("resolve peer: %s conversation %s not seen", conversation.Type, conversation.ID)
}

func cloneInputPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		clone := *typed
		return &clone
	case *tg.InputPeerChat:
		clone := *typed
		return &clone
	case *tg.InputPeerChannel:
		clone := *typed
		return &clone
	default:
		return peer
	}
}
