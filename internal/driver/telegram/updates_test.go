package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gotd/td/tg"
)

func TestUnpackUpdates(t *testing.T) {
	t.Parallel()

	date := 1_700_000_000
	users := []tg.UserClass{newTGUser(42, "alice", "Alice", "", false)}

	tests := []struct {
		name          string
		updates       tg.UpdatesClass
		wantCount     int
		wantContainer string
		wantErr       bool
		assert        func(t *testing.T, batch []rawUpdate)
	}{
		{
			name: "updates batch keeps entities",
			updates: &tg.Updates{
				Updates: []tg.UpdateClass{&tg.UpdateNewMessage{}, nil, &tg.UpdateEditMessage{}},
				Users:   users,
				Date:    date,
			},
			wantCount:     2,
			wantContainer: "updates",
			assert: func(t *testing.T, batch []rawUpdate) {
				t.Helper()
				if batch[0].entities != batch[1].entities {
					t.Fatal("batch updates do not share entities")
				}
				if got := batch[0].entities.user(42).DisplayName; got != "Alice" {
					t.Fatalf("DisplayName = %q, want Alice", got)
				}
				if !batch[1].date.Equal(time.Unix(int64(date), 0).UTC()) {
					t.Fatalf("date = %v", batch[1].date)
				}
			},
		},
		{
			name:          "combined",
			updates:       &tg.UpdatesCombined{Updates: []tg.UpdateClass{&tg.UpdateNewMessage{}}, Date: date},
			wantCount:     1,
			wantContainer: "updatesCombined",
		},
		{
			name:          "short",
			updates:       &tg.UpdateShort{Update: &tg.UpdateChatParticipantAdmin{ChatID: 1}, Date: date},
			wantCount:     1,
			wantContainer: "updateShort",
		},
		{
			name: "short private message is rebuilt",
			updates: func() tg.UpdatesClass {
				short := &tg.UpdateShortMessage{ID: 5, UserID: 42, Message: "hi", Date: date, Pts: 3, PtsCount: 1}
				header := &tg.MessageReplyHeader{}
				header.SetReplyToMsgID(4)
				short.SetReplyTo(header)
				return short
			}(),
			wantCount:     1,
			wantContainer: "updateShortMessage",
			assert: func(t *testing.T, batch []rawUpdate) {
				t.Helper()
				update, ok := batch[0].update.(*tg.UpdateNewMessage)
				if !ok {
					t.Fatalf("update = %T, want *tg.UpdateNewMessage", batch[0].update)
				}
				message := update.Message.(*tg.Message)
				from, ok := message.GetFromID()
				if !ok || from.(*tg.PeerUser).UserID != 42 {
					t.Fatalf("FromID = %v", from)
				}
				if _, ok := message.GetReplyTo(); !ok {
					t.Fatal("reply header lost")
				}
				if update.Pts != 3 || update.PtsCount != 1 {
					t.Fatalf("pts = %d/%d", update.Pts, update.PtsCount)
				}
			},
		},
		{
			name:          "short chat message is rebuilt",
			updates:       &tg.UpdateShortChatMessage{ID: 6, FromID: 42, ChatID: 100, Message: "hey", Date: date},
			wantCount:     1,
			wantContainer: "updateShortChatMessage",
			assert: func(t *testing.T, batch []rawUpdate) {
				t.Helper()
				message := batch[0].update.(*tg.UpdateNewMessage).Message.(*tg.Message)
				if peer, ok := message.PeerID.(*tg.PeerChat); !ok || peer.ChatID != 100 {
					t.Fatalf("PeerID = %v", message.PeerID)
				}
			},
		},
		{name: "too long", updates: &tg.UpdatesTooLong{}},
		{name: "nil", wantErr: true},
		{name: "unsupported", updates: &tg.UpdateShortSentMessage{}, wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			batch, err := unpackUpdates(testCase.updates)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("unpackUpdates() error = nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unpackUpdates() error = %v", err)
			}
			if len(batch) != testCase.wantCount {
				t.Fatalf("len(batch) = %d, want %d", len(batch), testCase.wantCount)
			}
			for _, raw := range batch {
				if raw.container != testCase.wantContainer || raw.entities == nil {
					t.Fatalf("raw = %+v", raw)
				}
			}
			if testCase.assert != nil {
				testCase.assert(t, batch)
			}
		})
	}
}

func TestUpdateQueueHandle(t *testing.T) {
	t.Parallel()

	queue := newUpdateQueue(1)
	ctx := context.Background()
	if err := queue.Handle(ctx, &tg.UpdateShort{Update: &tg.UpdateNewMessage{}}); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	err := queue.Handle(canceled, &tg.UpdateShort{Update: &tg.UpdateNewMessage{}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Handle(full queue) error = %v, want context.Canceled", err)
	}

	select {
	case raw := <-queue.Updates():
		if _, ok := raw.update.(*tg.UpdateNewMessage); !ok {
			t.Fatalf("queued update = %T", raw.update)
		}
	default:
		t.Fatal("queue is empty")
	}

	if err := queue.Handle(ctx, nil); err == nil {
		t.Fatal("Handle(nil) error = nil")
	}
}
