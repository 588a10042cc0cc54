package identity

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIndexApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		events []PresenceEvent
		want   map[OccupantIdentity]RealIdentity
	}{
		{
			name:   "join inserts",
			events: []PresenceEvent{{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceJoined}},
			want:   map[OccupantIdentity]RealIdentity{"room/alice": "telegram:1"},
		},
		{
			name: "later update wins",
			events: []PresenceEvent{
				{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceJoined},
				{Occupant: "room/alice", Real: "telegram:2", Kind: PresenceUpdated},
			},
			want: map[OccupantIdentity]RealIdentity{"room/alice": "telegram:2"},
		},
		{
			name: "left removes",
			events: []PresenceEvent{
				{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceJoined},
				{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceLeft},
			},
			want: map[OccupantIdentity]RealIdentity{},
		},
		{
			name: "absent real identity removes",
			events: []PresenceEvent{
				{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceJoined},
				{Occupant: "room/alice", Kind: PresenceUpdated},
			},
			want: map[OccupantIdentity]RealIdentity{},
		},
		{
			name:   "absent real identity on unknown occupant is a no-op",
			events: []PresenceEvent{{Occupant: "room/bob", Kind: PresenceJoined}},
			want:   map[OccupantIdentity]RealIdentity{},
		},
		{
			name:   "left on unknown occupant is a no-op",
			events: []PresenceEvent{{Occupant: "room/bob", Real: "telegram:9", Kind: PresenceLeft}},
			want:   map[OccupantIdentity]RealIdentity{},
		},
		{
			name:   "empty occupant is ignored",
			events: []PresenceEvent{{Real: "telegram:1", Kind: PresenceJoined}},
			want:   map[OccupantIdentity]RealIdentity{},
		},
		{
			name: "repeated left after join is idempotent",
			events: []PresenceEvent{
				{Occupant: "room/bob", Real: "telegram:2", Kind: PresenceJoined},
				{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceJoined, Member: "room/1"},
				{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceLeft, Member: "room/1"},
				{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceLeft, Member: "room/1"},
			},
			want: map[OccupantIdentity]RealIdentity{"room/bob": "telegram:2"},
		},
		{
			name: "left with only a member key evicts its occupant",
			events: []PresenceEvent{
				{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceJoined, Member: "room/1"},
				{Occupant: "room/bob", Real: "telegram:2", Kind: PresenceJoined, Member: "room/2"},
				{Real: "telegram:1", Kind: PresenceLeft, Member: "room/1"},
			},
			want: map[OccupantIdentity]RealIdentity{"room/bob": "telegram:2"},
		},
		{
			name: "left with only a member key evicts every handle it held",
			events: []PresenceEvent{
				{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceJoined, Member: "room/1"},
				{Occupant: "room/alice liddell", Real: "telegram:1", Kind: PresenceUpdated, Member: "room/1"},
				{Kind: PresenceLeft, Member: "room/1"},
			},
			want: map[OccupantIdentity]RealIdentity{},
		},
		{
			name: "left from a former holder keeps a handle taken over by another member",
			events: []PresenceEvent{
				{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceJoined, Member: "room/1"},
				{Occupant: "room/alice", Real: "telegram:3", Kind: PresenceUpdated, Member: "room/3"},
				{Kind: PresenceLeft, Member: "room/1"},
			},
			want: map[OccupantIdentity]RealIdentity{"room/alice": "telegram:3"},
		},
		{
			name: "member key is scoped to its room",
			events: []PresenceEvent{
				{Occupant: "room-a/alice", Real: "telegram:1", Kind: PresenceJoined, Member: "room-a/1"},
				{Occupant: "room-b/alice", Real: "telegram:1", Kind: PresenceJoined, Member: "room-b/1"},
				{Kind: PresenceLeft, Member: "room-a/1"},
			},
			want: map[OccupantIdentity]RealIdentity{"room-b/alice": "telegram:1"},
		},
		{
			name:   "member key without occupant never inserts",
			events: []PresenceEvent{{Real: "telegram:1", Kind: PresenceJoined, Member: "room/1"}},
			want:   map[OccupantIdentity]RealIdentity{},
		},
		{
			name: "occupants in different rooms are independent",
			events: []PresenceEvent{
				{Occupant: "room-a/alice", Real: "telegram:1", Kind: PresenceJoined},
				{Occupant: "room-b/alice", Real: "telegram:2", Kind: PresenceJoined},
				{Occupant: "room-a/alice", Kind: PresenceLeft},
			},
			want: map[OccupantIdentity]RealIdentity{"room-b/alice": "telegram:2"},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			index := NewIndex()
			for _, event := range testCase.events {
				index.Apply(event)
			}

			if diff := cmp.Diff(testCase.want, index.Snapshot()); diff != "" {
				t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
			}
			if index.Len() != len(testCase.want) {
				t.Fatalf("len = %d, want %d", index.Len(), len(testCase.want))
			}
		})
	}
}

func TestIndexLookup(t *testing.T) {
	t.Parallel()

	index := NewIndex()
	index.Apply(PresenceEvent{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceJoined})

	got, ok := index.Lookup("room/alice")
	if !ok || got != "telegram:1" {
		t.Fatalf("Lookup(room/alice) = (%q, %v), want (telegram:1, true)", got, ok)
	}
	if _, ok := index.Lookup("room/bob"); ok {
		t.Fatal("Lookup(room/bob) found entry, want none")
	}
}

func TestIndexSnapshotIsIsolated(t *testing.T) {
	t.Parallel()

	index := NewIndex()
	index.Apply(PresenceEvent{Occupant: "room/alice", Real: "telegram:1", Kind: PresenceJoined})

	snapshot := index.Snapshot()
	index.Apply(PresenceEvent{Occupant: "room/bob", Real: "telegram:2", Kind: PresenceJoined})
	index.Apply(PresenceEvent{Occupant: "room/alice", Kind: PresenceLeft})
	snapshot["room/carol"] = "telegram:3"

	want := map[OccupantIdentity]RealIdentity{"room/alice": "telegram:1", "room/carol": "telegram:3"}
	if diff := cmp.Diff(want, snapshot); diff != "" {
		t.Fatalf("snapshot changed after mutation (-want +got):\n%s", diff)
	}
	if _, ok := index.Lookup("room/carol"); ok {
		t.Fatal("snapshot write leaked into index")
	}
}

func TestIndexConcurrentReadersDuringWrites(t *testing.T) {
	t.Parallel()

	index := NewIndex()
	const writes = 200

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < writes; i++ {
			occupant := OccupantIdentity(fmt.Sprintf("room/user-%d", i%10))
			index.Apply(PresenceEvent{Occupant: occupant, Real: RealIdentity(fmt.Sprintf("telegram:%d", i)), Kind: PresenceUpdated})
		}
	}()
	for reader := 0; reader < 4; reader++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				_, _ = index.Lookup("room/user-3")
				_ = index.Snapshot()
			}
		}()
	}
	wg.Wait()

	got, ok := index.Lookup("room/user-9")
	if !ok || got != "telegram:199" {
		t.Fatalf("Lookup(room/user-9) = (%q, %v), want (telegram:199, true)", got, ok)
	}
}
