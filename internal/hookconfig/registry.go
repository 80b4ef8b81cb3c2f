// Package hookconfig reads, edits and writes the hook section of Claude Code
// settings files.
package hookconfig

import (
	"bytes"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	// OwnershipKey is the group key carrying flow's ownership metadata.
	OwnershipKey = "flow"
	// OwnershipVersion is written into new ownership metadata.
	OwnershipVersion = "1.0"
	// DefaultHookType is assumed for commands that omit "type".
	DefaultHookType = "command"
)

// Ownership marks a group as installed and managed by flow.
// Presence of the block is the ownership signal; its contents are informational.
type Ownership struct {
	Managed   bool   `json:"managed"`
	Version   string `json:"version"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// NewOwnership returns managed metadata stamped with the current time.
func NewOwnership(name string) *Ownership {
	return &Ownership{
		Managed:   true,
		Version:   OwnershipVersion,
		Name:      name,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

func ownershipName(event string) string {
	return strings.ToLower(event)
}

// Command is a single executable hook.
type Command struct {
	Type    string
	Command string
	// Extra holds any other keys of the command object (timeout, ...).
	Extra map[string]any
}

// MarshalJSON writes type and command first, then the extra keys sorted.
func (c Command) MarshalJSON() ([]byte, error) {
	fields := []field{
		{"type", c.Type},
		{"command", c.Command},
	}
	fields = append(fields, extraFields(c.Extra, "type", "command")...)
	return marshalObject(fields)
}

// Group is a set of commands sharing one matcher and one ownership state.
type Group struct {
	// Matcher is nil when the key is absent, which differs from an empty string.
	Matcher *string
	Hooks   []Command
	Flow    *Ownership
	Extra   map[string]any
}

// Owned reports whether the group carries ownership metadata.
func (g *Group) Owned() bool {
	return g.Flow != nil
}

// MatcherValue returns the matcher or "" when absent.
func (g *Group) MatcherValue() string {
	if g.Matcher == nil {
		return ""
	}
	return *g.Matcher
}

func (g *Group) clone() *Group {
	out := &Group{
		Hooks: make([]Command, len(g.Hooks)),
		Extra: cloneMap(g.Extra),
	}
	if g.Matcher != nil {
		out.Matcher = Matcher(*g.Matcher)
	}
	if g.Flow != nil {
		f := *g.Flow
		out.Flow = &f
	}
	for i, c := range g.Hooks {
		out.Hooks[i] = Command{Type: c.Type, Command: c.Command, Extra: cloneMap(c.Extra)}
	}
	return out
}

// MarshalJSON writes matcher, hooks and the ownership block in that order.
func (g *Group) MarshalJSON() ([]byte, error) {
	fields := make([]field, 0, 3+len(g.Extra))
	if g.Matcher != nil {
		fields = append(fields, field{"matcher", *g.Matcher})
	}
	hooks := g.Hooks
	if hooks == nil {
		hooks = []Command{}
	}
	fields = append(fields, field{"hooks", hooks})
	if g.Flow != nil {
		fields = append(fields, field{OwnershipKey, g.Flow})
	}
	fields = append(fields, extraFields(g.Extra, "matcher", "hooks", OwnershipKey)...)
	return marshalObject(fields)
}

// Registry is the in-memory hook mapping: event name to ordered groups.
type Registry struct {
	Events map[string][]*Group
	// Disabled holds events whose stored value was null. They are listed but
	// never written back.
	Disabled map[string]bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		Events:   make(map[string][]*Group),
		Disabled: make(map[string]bool),
	}
}

// Clone returns a deep copy.
func (r *Registry) Clone() *Registry {
	out := NewRegistry()
	for event, groups := range r.Events {
		cp := make([]*Group, len(groups))
		for i, g := range groups {
			cp[i] = g.clone()
		}
		out.Events[event] = cp
	}
	for event := range r.Disabled {
		out.Disabled[event] = true
	}
	return out
}

// MarshalJSON writes configured events only. Disabled events and events left
// without groups are dropped.
func (r *Registry) MarshalJSON() ([]byte, error) {
	out := make(map[string][]*Group, len(r.Events))
	for event, groups := range r.Events {
		kept := make([]*Group, 0, len(groups))
		for _, g := range groups {
			if len(g.Hooks) > 0 {
				kept = append(kept, g)
			}
		}
		if len(kept) > 0 {
			out[event] = kept
		}
	}
	return json.Marshal(out)
}

// Settings is a whole settings document. The hook registry is one key of it;
// every other top-level key is carried through untouched.
type Settings struct {
	Hooks *Registry
	Other map[string]json.RawMessage
}

// NewSettings returns an empty document.
func NewSettings() *Settings {
	return &Settings{
		Hooks: NewRegistry(),
		Other: make(map[string]json.RawMessage),
	}
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	out := &Settings{
		Hooks: s.Hooks.Clone(),
		Other: make(map[string]json.RawMessage, len(s.Other)),
	}
	for k, v := range s.Other {
		out.Other[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// MarshalJSON merges the registry back under "hooks".
func (s *Settings) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(s.Other)+1)
	for k, v := range s.Other {
		doc[k] = v
	}
	hooks := s.Hooks
	if hooks == nil {
		hooks = NewRegistry()
	}
	doc["hooks"] = hooks
	return json.Marshal(doc)
}

type field struct {
	key   string
	value any
}

func extraFields(extra map[string]any, reserved ...string) []field {
	if len(extra) == 0 {
		return nil
	}
	skip := make(map[string]bool, len(reserved))
	for _, k := range reserved {
		skip[k] = true
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		if !skip[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]field, len(keys))
	for i, k := range keys {
		out[i] = field{k, extra[k]}
	}
	return out
}

func marshalObject(fields []field) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
