package bot

import "slices"

// Capability is one declared unit of module behavior. The kernel refuses
// subscriptions whose interest no capability of the module covers.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
}

// InterestSet filters events. Empty lists and false flags do not filter.
type InterestSet struct {
	Kinds              []EventKind
	RequireMessage     bool
	RequireStateChange bool
	RequireCommand     bool
	// CommandNames holds normalized command names.
	CommandNames []string
}

// Matches reports whether event passes every filter in i.
func (i InterestSet) Matches(event *Event) bool {
	switch {
	case event == nil:
		return false
	case len(i.Kinds) > 0 && !slices.Contains(i.Kinds, event.Kind):
		return false
	case i.RequireMessage && event.Message == nil,
		i.RequireStateChange && event.StateChange == nil,
		i.RequireCommand && event.Command == nil:
		return false
	case len(i.CommandNames) > 0:
		return event.Command != nil && slices.Contains(i.CommandNames, event.Command.Name)
	default:
		return true
	}
}

// Allows reports whether filter is at least as narrow as i, so that every
// event filter matches is also matched by i.
func (i InterestSet) Allows(filter InterestSet) bool {
	switch {
	case len(i.Kinds) > 0 && !subsetOf(filter.Kinds, i.Kinds):
		return false
	case len(i.CommandNames) > 0 && !subsetOf(filter.CommandNames, i.CommandNames):
		return false
	}

	return (filter.RequireMessage || !i.RequireMessage) &&
		(filter.RequireStateChange || !i.RequireStateChange) &&
		(filter.RequireCommand || !i.RequireCommand)
}

// subsetOf reports whether every element of values is in allowed. An empty
// values slice is unfiltered and therefore not a subset of a non-empty one.
func subsetOf[T comparable](values, allowed []T) bool {
	if len(values) == 0 {
		return false
	}
	for _, value := range values {
		if !slices.Contains(allowed, value) {
			return false
		}
	}

	return true
}
