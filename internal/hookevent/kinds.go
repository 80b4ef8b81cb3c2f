package hookevent

// Kind identifies an event variant.
type Kind string

const (
	KindSessionStart      Kind = "SessionStart"
	KindSessionEnd        Kind = "SessionEnd"
	KindUserPromptSubmit  Kind = "UserPromptSubmit"
	KindPreToolUse        Kind = "PreToolUse"
	KindPostToolUse       Kind = "PostToolUse"
	KindPermissionRequest Kind = "PermissionRequest"
	KindNotification      Kind = "Notification"
	KindStop              Kind = "Stop"
	KindSubagentStop      Kind = "SubagentStop"
	KindPreCompact        Kind = "PreCompact"
	KindUnknown           Kind = "Unknown"
)

// Event is implemented by every decoded variant.
type Event interface {
	Kind() Kind
	Common() Base
}

// Base carries the fields every hook payload shares.
type Base struct {
	SessionID      string
	TranscriptPath string
	CWD            string
	PermissionMode string
}

func (b Base) Common() Base { return b }

type SessionStart struct {
	Base
	Source string
}

func (SessionStart) Kind() Kind { return KindSessionStart }

type SessionEnd struct {
	Base
	Reason string
}

func (SessionEnd) Kind() Kind { return KindSessionEnd }

type UserPromptSubmit struct {
	Base
	Prompt string
}

func (UserPromptSubmit) Kind() Kind { return KindUserPromptSubmit }

type PreToolUse struct {
	Base
	ToolName  string
	ToolInput any
}

func (PreToolUse) Kind() Kind { return KindPreToolUse }

type PostToolUse struct {
	Base
	ToolName     string
	ToolInput    any
	ToolResponse any
}

func (PostToolUse) Kind() Kind { return KindPostToolUse }

type PermissionRequest struct {
	Base
	ToolName  string
	ToolInput any
}

func (PermissionRequest) Kind() Kind { return KindPermissionRequest }

type Notification struct {
	Base
	Message          string
	NotificationType string
}

func (Notification) Kind() Kind { return KindNotification }

type Stop struct {
	Base
	StopHookActive bool
}

func (Stop) Kind() Kind { return KindStop }

type SubagentStop struct {
	Base
	StopHookActive bool
	AgentID        string
}

func (SubagentStop) Kind() Kind { return KindSubagentStop }

type PreCompact struct {
	Base
	Trigger            string
	CustomInstructions string
}

func (PreCompact) Kind() Kind { return KindPreCompact }

// Unknown is any record whose discriminator is missing or unrecognized.
type Unknown struct {
	Base
	Name   string
	Fields []string
}

func (Unknown) Kind() Kind { return KindUnknown }

// Decode selects the variant named by the record's discriminator.
func Decode(rec Record) Event {
	base := Base{
		SessionID:      rec.str(FieldSessionID),
		TranscriptPath: rec.str(FieldTranscriptPath),
		CWD:            rec.str(FieldCWD),
		PermissionMode: rec.str(FieldPermissionMode),
	}

	switch Kind(Name(rec)) {
	case KindSessionStart:
		return SessionStart{Base: base, Source: rec.str("source")}
	case KindSessionEnd:
		return SessionEnd{Base: base, Reason: rec.str("reason")}
	case KindUserPromptSubmit:
		return UserPromptSubmit{Base: base, Prompt: rec.str("prompt")}
	case KindPreToolUse:
		return PreToolUse{Base: base, ToolName: rec.str("tool_name"), ToolInput: rec["tool_input"]}
	case KindPostToolUse:
		return PostToolUse{
			Base:         base,
			ToolName:     rec.str("tool_name"),
			ToolInput:    rec["tool_input"],
			ToolResponse: rec["tool_response"],
		}
	case KindPermissionRequest:
		return PermissionRequest{Base: base, ToolName: rec.str("tool_name"), ToolInput: rec["tool_input"]}
	case KindNotification:
		return Notification{Base: base, Message: rec.str("message"), NotificationType: rec.str("notification_type")}
	case KindStop:
		return Stop{Base: base, StopHookActive: rec.boolean("stop_hook_active")}
	case KindSubagentStop:
		return SubagentStop{Base: base, StopHookActive: rec.boolean("stop_hook_active"), AgentID: rec.str("agent_id")}
	case KindPreCompact:
		return PreCompact{Base: base, Trigger: rec.str("trigger"), CustomInstructions: rec.str("custom_instructions")}
	}
	return Unknown{Base: base, Name: Name(rec), Fields: rec.Fields()}
}
