package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"nanobot/pkg/bot"
)

const maxCommandReplyLength = 3950

func (m *Module) handleWhois(ctx context.Context, event *bot.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}
	if event.Kind != bot.EventKindCommandReceived || event.Command.Name != whoisCommandName {
		return nil
	}

	handle := normalizeHandle(event.Command.Value)
	if handle == "" {
		if err := m.reply(ctx, event, "usage: /whois <handle>"); err != nil {
			return fmt.Errorf("whois reply usage: %w", err)
		}
		return nil
	}

	text := whoisReply(m.index, event.Conversation.ID, handle)
	if err := m.reply(ctx, event, text); err != nil {
		return fmt.Errorf("whois reply: %w", err)
	}

	return nil
}

func whoisReply(index *Index, conversationID string, handle string) string {
	mapped, ok := index.Lookup(occupantKey(conversationID, handle))
	if !ok {
		return fmt.Sprintf("I don't know who %s is.", handle)
	}

	return fmt.Sprintf("%s is %s", handle, mapped)
}

func (m *Module) handleIdentities(ctx context.Context, event *bot.Event) error {
	if event == nil || event.Command == nil || event.Message == nil {
		return nil
	}
	if event.Kind != bot.EventKindSystemCommandReceived || event.Command.Name != identitiesCommandName {
		return nil
	}

	if !m.isAdmin(event.Actor.ID) {
		m.logger.WarnContext(ctx,
			"identity rejected introspection command",
			"actor_id", event.Actor.ID,
			"conversation_id", event.Conversation.ID,
		)
		if err := m.reply(ctx, event, "~identities: permission denied"); err != nil {
			return fmt.Errorf("identities reply denial: %w", err)
		}
		return nil
	}

	body, err := formatSnapshot(m.index.Snapshot())
	if err != nil {
		return fmt.Errorf("identities format snapshot: %w", err)
	}
	if err := m.reply(ctx, event, trimForCommandReply(body)); err != nil {
		return fmt.Errorf("identities reply: %w", err)
	}

	return nil
}

func (m *Module) isAdmin(actorID string) bool {
	_, ok := m.admins[strings.TrimSpace(actorID)]

	return ok
}

// formatSnapshot renders the mapping as indented JSON with sorted keys.
func formatSnapshot(snapshot map[OccupantIdentity]RealIdentity) (string, error) {
	body, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	return string(body), nil
}

func trimForCommandReply(body string) string {
	if len(body) <= maxCommandReplyLength {
		return body
	}

	cut := maxCommandReplyLength
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}

	return body[:cut] + "\n...(truncated)"
}
