package hookconfig

import (
	"errors"
	"sort"
)

var (
	// ErrMissingSelector is returned when a removal names neither a matcher
	// nor a command.
	ErrMissingSelector = errors.New("either matcher or command is required")
	// ErrEmptyEvent is returned when an event name is empty.
	ErrEmptyEvent = errors.New("event name is required")
	// ErrEmptyCommand is returned when a hook command is empty.
	ErrEmptyCommand = errors.New("hook command is required")
)

func sameMatcher(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// AddHook appends a command to the group keyed by (matcher, ownership
// presence), creating the group when none exists. Commands are appended even
// when an identical one is already present. When owner is non-nil it replaces
// the group's ownership metadata.
func (r *Registry) AddHook(event string, matcher *string, hookType, command string, owner *Ownership, extra map[string]any) {
	if hookType == "" {
		hookType = DefaultHookType
	}
	delete(r.Disabled, event)

	var target *Group
	for _, g := range r.Events[event] {
		if sameMatcher(g.Matcher, matcher) && g.Owned() == (owner != nil) {
			target = g
			break
		}
	}
	if target == nil {
		target = &Group{Hooks: []Command{}}
		if matcher != nil {
			target.Matcher = Matcher(*matcher)
		}
		r.Events[event] = append(r.Events[event], target)
	}

	target.Hooks = append(target.Hooks, Command{Type: hookType, Command: command, Extra: cloneMap(extra)})
	if owner != nil {
		o := *owner
		target.Flow = &o
	}
}

// RemoveHook removes hooks from an event. With a matcher, every group with
// that exact matcher is removed. Otherwise every command equal to command is
// removed from all groups and emptied groups are pruned. The event key goes
// away once it has no groups left.
func (r *Registry) RemoveHook(event string, matcher *string, command string) (bool, error) {
	if matcher == nil && command == "" {
		return false, ErrMissingSelector
	}
	groups, ok := r.Events[event]
	if !ok {
		return false, nil
	}

	removed := false
	kept := groups[:0:0]
	if matcher != nil {
		for _, g := range groups {
			if sameMatcher(g.Matcher, matcher) {
				removed = true
				continue
			}
			kept = append(kept, g)
		}
	} else {
		for _, g := range groups {
			hooks := g.Hooks[:0:0]
			for _, c := range g.Hooks {
				if c.Command == command {
					removed = true
					continue
				}
				hooks = append(hooks, c)
			}
			g.Hooks = hooks
			if len(hooks) > 0 {
				kept = append(kept, g)
			}
		}
	}
	r.setGroups(event, kept)
	return removed, nil
}

// RemoveOwnedHooks removes groups carrying ownership metadata. A nil matcher
// selects every owned group of the event. Unowned groups are never touched.
func (r *Registry) RemoveOwnedHooks(event string, matcher *string) bool {
	return r.removeOwned(event, func(g *Group) bool {
		return matcher == nil || sameMatcher(g.Matcher, matcher)
	})
}

// RemoveOwnedGroup removes owned groups whose matcher equals matcher exactly,
// where nil means the matcher key is absent.
func (r *Registry) RemoveOwnedGroup(event string, matcher *string) bool {
	return r.removeOwned(event, func(g *Group) bool {
		return sameMatcher(g.Matcher, matcher)
	})
}

func (r *Registry) removeOwned(event string, match func(*Group) bool) bool {
	groups, ok := r.Events[event]
	if !ok {
		return false
	}
	removed := false
	kept := groups[:0:0]
	for _, g := range groups {
		if g.Owned() && match(g) {
			removed = true
			continue
		}
		kept = append(kept, g)
	}
	r.setGroups(event, kept)
	return removed
}

func (r *Registry) setGroups(event string, groups []*Group) {
	if len(groups) == 0 {
		delete(r.Events, event)
		return
	}
	r.Events[event] = groups
}

// ListEvents returns the configured event names, sorted.
func (r *Registry) ListEvents() []string {
	events := make([]string, 0, len(r.Events))
	for e := range r.Events {
		events = append(events, e)
	}
	sort.Strings(events)
	return events
}

// DisabledEvents returns the events stored as null, sorted.
func (r *Registry) DisabledEvents() []string {
	events := make([]string, 0, len(r.Disabled))
	for e := range r.Disabled {
		events = append(events, e)
	}
	sort.Strings(events)
	return events
}

// IsDisabled reports whether the event was stored as null.
func (r *Registry) IsDisabled(event string) bool {
	return r.Disabled[event]
}

// ListMatchers returns each group's matcher in order, "" for absent ones.
func (r *Registry) ListMatchers(event string) []string {
	groups := r.Events[event]
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.MatcherValue())
	}
	return out
}

// Groups returns the groups of an event.
func (r *Registry) Groups(event string) []*Group {
	return r.Events[event]
}

// OwnedGroups returns the groups of an event that carry ownership metadata.
func (r *Registry) OwnedGroups(event string) []*Group {
	var out []*Group
	for _, g := range r.Events[event] {
		if g.Owned() {
			out = append(out, g)
		}
	}
	return out
}

// GetGroupDetails returns the commands of the first group whose matcher
// equals matcher.
func (r *Registry) GetGroupDetails(event string, matcher *string) ([]Command, bool) {
	for _, g := range r.Events[event] {
		if sameMatcher(g.Matcher, matcher) {
			out := make([]Command, len(g.Hooks))
			copy(out, g.Hooks)
			return out, true
		}
	}
	return nil, false
}

// UpdateMatcher renames the matcher of every group matching oldMatcher.
func (r *Registry) UpdateMatcher(event, oldMatcher, newMatcher string) bool {
	updated := false
	for _, g := range r.Events[event] {
		if g.Matcher != nil && *g.Matcher == oldMatcher {
			g.Matcher = Matcher(newMatcher)
			updated = true
		}
	}
	return updated
}

// ClearEvent removes an event entirely.
func (r *Registry) ClearEvent(event string) bool {
	_, configured := r.Events[event]
	_, disabled := r.Disabled[event]
	delete(r.Events, event)
	delete(r.Disabled, event)
	return configured || disabled
}

// ClearAll empties the registry.
func (r *Registry) ClearAll() {
	r.Events = make(map[string][]*Group)
	r.Disabled = make(map[string]bool)
}
