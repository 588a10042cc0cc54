package identity

import (
	"maps"
	"sync"
)

// OccupantIdentity is the room-scoped, possibly unstable handle of a participant.
type OccupantIdentity string

// RealIdentity is the durable account identity behind an occupant.
//
// The empty value means the real identity is absent.
type RealIdentity string

// PresenceKind classifies one presence change.
type PresenceKind int

const (
	// PresenceJoined reports an occupant entering the room.
	PresenceJoined PresenceKind = iota + 1
	// PresenceUpdated reports a status or role change of a present occupant.
	PresenceUpdated
	// PresenceLeft reports an occupant leaving the room.
	PresenceLeft
)

// String returns the lower-case presence kind label.
func (k PresenceKind) String() string {
	switch k {
	case PresenceJoined:
		return "joined"
	case PresenceUpdated:
		return "updated"
	case PresenceLeft:
		return "left"
	default:
		return "unknown"
	}
}

// PresenceEvent is one index mutation derived from a chat event.
//
// Member is the conversation-scoped account key of the occupant. It is empty
// when the platform hides the account, and lets a Left that carries no handle
// still evict whatever the account held.
type PresenceEvent struct {
	Occupant OccupantIdentity
	Real     RealIdentity
	Kind     PresenceKind
	Member   string
}

// Index maps occupant handles to real identities.
//
// Apply is the only writer; Lookup and Snapshot may run concurrently with it.
type Index struct {
	mu       sync.RWMutex
	entries  map[OccupantIdentity]RealIdentity
	owners   map[OccupantIdentity]string
	holdings map[string]map[OccupantIdentity]struct{}
}

// NewIndex creates an empty identity index.
func NewIndex() *Index {
	return &Index{
		entries:  make(map[OccupantIdentity]RealIdentity),
		owners:   make(map[OccupantIdentity]string),
		holdings: make(map[string]map[OccupantIdentity]struct{}),
	}
}

// Apply mutates the index for one presence event.
//
// Left events and events without a real identity remove the occupant. A Left
// with a member key also removes every occupant that member still holds. Any
// other event upserts, and the last applied write wins.
func (i *Index) Apply(event PresenceEvent) {
	if event.Occupant == "" && event.Member == "" {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if event.Kind == PresenceLeft || event.Real == "" {
		if event.Occupant != "" {
			i.remove(event.Occupant)
		}
		if event.Kind == PresenceLeft && event.Member != "" {
			for occupant := range i.holdings[event.Member] {
				i.remove(occupant)
			}
		}
		return
	}
	if event.Occupant == "" {
		return
	}

	i.entries[event.Occupant] = event.Real
	i.disown(event.Occupant)
	if event.Member != "" {
		i.owners[event.Occupant] = event.Member
		held, ok := i.holdings[event.Member]
		if !ok {
			held = make(map[OccupantIdentity]struct{})
			i.holdings[event.Member] = held
		}
		held[event.Occupant] = struct{}{}
	}
}

func (i *Index) remove(occupant OccupantIdentity) {
	delete(i.entries, occupant)
	i.disown(occupant)
}

func (i *Index) disown(occupant OccupantIdentity) {
	member, ok := i.owners[occupant]
	if !ok {
		return
	}
	delete(i.owners, occupant)
	delete(i.holdings[member], occupant)
	if len(i.holdings[member]) == 0 {
		delete(i.holdings, member)
	}
}

// Lookup returns the real identity currently mapped to occupant.
func (i *Index) Lookup(occupant OccupantIdentity) (RealIdentity, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	mapped, ok := i.entries[occupant]

	return mapped, ok
}

// Snapshot returns a copy of the full mapping. Later mutations do not affect it.
func (i *Index) Snapshot() map[OccupantIdentity]RealIdentity {
	i.mu.RLock()
	defer i.mu.RUnlock()

	snapshot := make(map[OccupantIdentity]RealIdentity, len(i.entries))
	maps.Copy(snapshot, i.entries)

	return snapshot
}

// Len returns the number of tracked occupants.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return len(i.entries)
}
