package hookconfig

import "github.com/rs/zerolog/log"

// Hook event names understood by the host agent.
const (
	EventSessionStart      = "SessionStart"
	EventSessionEnd        = "SessionEnd"
	EventUserPromptSubmit  = "UserPromptSubmit"
	EventPreToolUse        = "PreToolUse"
	EventPostToolUse       = "PostToolUse"
	EventPermissionRequest = "PermissionRequest"
	EventNotification      = "Notification"
	EventStop              = "Stop"
	EventSubagentStop      = "SubagentStop"
	EventPreCompact        = "PreCompact"
)

// MatchAllTools is the matcher value that selects every tool.
const MatchAllTools = "*"

// KnownEvents lists every event in the order the host agent documents them.
var KnownEvents = []string{
	EventSessionStart,
	EventSessionEnd,
	EventUserPromptSubmit,
	EventPreToolUse,
	EventPostToolUse,
	EventPermissionRequest,
	EventNotification,
	EventStop,
	EventSubagentStop,
	EventPreCompact,
}

var matcherEvents = map[string]bool{
	EventPreToolUse:        true,
	EventPostToolUse:       true,
	EventPermissionRequest: true,
}

// SupportsMatcher reports whether groups of the event carry a tool matcher.
func SupportsMatcher(event string) bool {
	return matcherEvents[event]
}

// matcherFor returns the matcher to write for event. Events the host agent
// documents as matcher-less never get one; unknown events keep what the
// caller passed.
func matcherFor(event string, matcher *string) *string {
	if matcher != nil && IsKnownEvent(event) && !SupportsMatcher(event) {
		log.Warn().Str("event", event).Str("matcher", *matcher).Msg("Event takes no matcher, dropping it")
		return nil
	}
	return matcher
}

// IsKnownEvent reports whether event is one of KnownEvents.
func IsKnownEvent(event string) bool {
	for _, e := range KnownEvents {
		if e == event {
			return true
		}
	}
	return false
}

// ManagedEvent is one entry of the managed install set.
type ManagedEvent struct {
	Event   string
	Matcher *string
}

// Name is the ownership name written for the entry.
func (m ManagedEvent) Name() string {
	return ownershipName(m.Event)
}

// DefaultManagedEvents is the set installed by `flow hooks set`.
func DefaultManagedEvents() []ManagedEvent {
	return []ManagedEvent{
		{Event: EventUserPromptSubmit},
		{Event: EventNotification},
		{Event: EventStop},
		{Event: EventSubagentStop},
		{Event: EventPreToolUse, Matcher: Matcher(MatchAllTools)},
		{Event: EventPostToolUse, Matcher: Matcher(MatchAllTools)},
	}
}

// AllManagedEvents extends DefaultManagedEvents with the session lifecycle
// and compaction events.
func AllManagedEvents() []ManagedEvent {
	return append(DefaultManagedEvents(),
		ManagedEvent{Event: EventSessionStart},
		ManagedEvent{Event: EventSessionEnd},
		ManagedEvent{Event: EventPreCompact},
	)
}

// Matcher returns a pointer to s, for use as a present matcher.
func Matcher(s string) *string {
	return &s
}
