package hookconfig

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// PathResolver turns a scope into a settings file path.
type PathResolver interface {
	SettingsPath(scope Scope) (string, error)
}

// Result reports the outcome of a set or remove. Usage errors are returned
// as errors; file failures are reported here so callers never have to unwind.
type Result struct {
	Success bool   `json:"success"`
	Path    string `json:"path,omitempty"`
	Changed int    `json:"changed"`
	Reason  string `json:"reason,omitempty"`
}

func failed(path, format string, args ...any) Result {
	reason := fmt.Sprintf(format, args...)
	log.Error().Str("path", path).Msg(reason)
	return Result{Path: path, Reason: reason}
}

// Manager performs load-mutate-save cycles against scoped settings files.
type Manager struct {
	resolver PathResolver
}

// NewManager creates a manager.
func NewManager(resolver PathResolver) *Manager {
	return &Manager{resolver: resolver}
}

// Path resolves scope.
func (m *Manager) Path(scope Scope) (string, error) {
	return m.resolver.SettingsPath(scope)
}

// SetHook adds a hook. With owner set, the owned group for the same event and
// exact matcher is removed first, so at most one owned group exists per
// (event, matcher). Hooks without owner are purely additive. A matcher given
// for a known matcher-less event is dropped.
func (m *Manager) SetHook(scope Scope, event string, matcher *string, command string, owner *Ownership) (Result, error) {
	if event == "" {
		return Result{}, ErrEmptyEvent
	}
	if command == "" {
		return Result{}, ErrEmptyCommand
	}
	matcher = matcherFor(event, matcher)
	return m.edit(scope, func(reg *Registry) int {
		if owner != nil {
			reg.RemoveOwnedGroup(event, matcher)
		}
		reg.AddHook(event, matcher, DefaultHookType, command, owner, nil)
		return 1
	})
}

// RemoveHook removes owned groups of event. A nil matcher removes every owned
// group of the event. Groups without ownership metadata are never removed.
func (m *Manager) RemoveHook(scope Scope, event string, matcher *string) (Result, error) {
	if event == "" {
		return Result{}, ErrEmptyEvent
	}
	return m.edit(scope, func(reg *Registry) int {
		if reg.RemoveOwnedHooks(event, matcher) {
			return 1
		}
		return 0
	})
}

// InstallManaged sets an owned hook running command for every entry of events,
// in one load and one save.
func (m *Manager) InstallManaged(scope Scope, command string, events []ManagedEvent) (Result, error) {
	if command == "" {
		return Result{}, ErrEmptyCommand
	}
	return m.edit(scope, func(reg *Registry) int {
		for _, me := range events {
			matcher := matcherFor(me.Event, me.Matcher)
			reg.RemoveOwnedGroup(me.Event, matcher)
			reg.AddHook(me.Event, matcher, DefaultHookType, command, NewOwnership(me.Name()), nil)
		}
		return len(events)
	})
}

// ClearManaged removes every owned group from every event.
func (m *Manager) ClearManaged(scope Scope) (Result, error) {
	return m.edit(scope, func(reg *Registry) int {
		n := 0
		for _, event := range reg.ListEvents() {
			n += len(reg.OwnedGroups(event))
			reg.RemoveOwnedHooks(event, nil)
		}
		return n
	})
}

// List loads the settings for scope without modifying them.
func (m *Manager) List(scope Scope) (*Settings, string, error) {
	path, err := m.resolver.SettingsPath(scope)
	if err != nil {
		return nil, "", err
	}
	settings, err := Load(path)
	if err != nil {
		return nil, path, err
	}
	return settings, path, nil
}

func (m *Manager) edit(scope Scope, mutate func(*Registry) int) (Result, error) {
	path, err := m.resolver.SettingsPath(scope)
	if err != nil {
		return Result{}, err
	}
	settings, err := Load(path)
	if err != nil {
		return failed(path, "load settings: %v", err), nil
	}

	changed := mutate(settings.Hooks)
	if changed == 0 {
		return Result{Success: false, Path: path, Reason: "no matching owned hooks"}, nil
	}
	if err := Save(settings, path); err != nil {
		return failed(path, "save settings: %v", err), nil
	}
	log.Debug().Str("path", path).Int("changed", changed).Msg("Hook settings updated")
	return Result{Success: true, Path: path, Changed: changed}, nil
}
