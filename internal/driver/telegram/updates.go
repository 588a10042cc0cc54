package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
)

const defaultQueueSize = 256

// rawUpdate is one gotd update together with the entities of its batch.
type rawUpdate struct {
	update    tg.UpdateClass
	date      time.Time
	entities  *entities
	container string
}

// updateQueue implements the gotd update handler and buffers unpacked updates
// for the driver loop.
type updateQueue struct {
	updates chan rawUpdate
}

func newUpdateQueue(size int) *updateQueue {
	if size <= 0 {
		size = defaultQueueSize
	}

	return &updateQueue{updates: make(chan rawUpdate, size)}
}

// Handle unpacks one gotd container and queues each update, blocking while the queue is full.
func (q *updateQueue) Handle(ctx context.Context, updates tg.UpdatesClass) error {
	batch, err := unpackUpdates(updates)
	if err != nil {
		return fmt.Errorf("handle gotd updates: %w", err)
	}

	for _, raw := range batch {
		select {
		case q.updates <- raw:
		case <-ctx.Done():
			return fmt.Errorf("queue gotd update %s: %w", raw.update.TypeName(), ctx.Err())
		}
	}

	return nil
}

// Updates exposes the queued stream.
func (q *updateQueue) Updates() <-chan rawUpdate {
	return q.updates
}

// unpackUpdates flattens every gotd container shape into single updates.
// Short message forms are rebuilt as UpdateNewMessage so one mapping path serves both.
func unpackUpdates(updates tg.UpdatesClass) ([]rawUpdate, error) {
	switch typed := updates.(type) {
	case nil:
		return nil, fmt.Errorf("unpack gotd updates: nil container")
	case *tg.Updates:
		return unpackBatch(typed.TypeName(), typed.Updates, typed.Date, newEntities(typed.Users, typed.Chats)), nil
	case *tg.UpdatesCombined:
		return unpackBatch(typed.TypeName(), typed.Updates, typed.Date, newEntities(typed.Users, typed.Chats)), nil
	case *tg.UpdateShort:
		return unpackBatch(typed.TypeName(), []tg.UpdateClass{typed.Update}, typed.Date, newEntities(nil, nil)), nil
	case *tg.UpdateShortMessage:
		message := &tg.Message{ID: typed.ID, PeerID: &tg.PeerUser{UserID: typed.UserID}, Date: typed.Date, Message: typed.Message}
		message.SetFromID(&tg.PeerUser{UserID: typed.UserID})
		if header, ok := typed.GetReplyTo(); ok {
			message.SetReplyTo(header)
		}
		return shortMessage(typed.TypeName(), message, typed.Pts, typed.PtsCount), nil
	case *tg.UpdateShortChatMessage:
		message := &tg.Message{ID: typed.ID, PeerID: &tg.PeerChat{ChatID: typed.ChatID}, Date: typed.Date, Message: typed.Message}
		message.SetFromID(&tg.PeerUser{UserID: typed.FromID})
		if header, ok := typed.GetReplyTo(); ok {
			message.SetReplyTo(header)
		}
		return shortMessage(typed.TypeName(), message, typed.Pts, typed.PtsCount), nil
	case *tg.UpdatesTooLong:
		return nil, nil
	default:
		return nil, fmt.Errorf("unpack gotd updates: unsupported container %s", updates.TypeName())
	}
}

func unpackBatch(container string, updates []tg.UpdateClass, date int, index *entities) []rawUpdate {
	batch := make([]rawUpdate, 0, len(updates))
	for _, update := range updates {
		if update == nil {
			continue
		}
		batch = append(batch, rawUpdate{update: update, date: unixUTC(date), entities: index, container: container})
	}

	return batch
}

func shortMessage(container string, message *tg.Message, pts int, ptsCount int) []rawUpdate {
	return []rawUpdate{{
		update:    &tg.UpdateNewMessage{Message: message, Pts: pts, PtsCount: ptsCount},
		date:      unixUTC(message.Date),
		entities:  newEntities(nil, nil),
		container: container,
	}}
}

func unixUTC(seconds int) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}

	return time.Unix(int64(seconds), 0).UTC()
}
