package reporter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/goccy/go-json"

	"github.com/thebtf/flow/internal/hookevent"
)

const (
	promptLimit       = 200
	toolInputLimit    = 300
	toolResponseLimit = 200
	sessionIDLimit    = 16
	instructionsLimit = 100
	ruleWidth         = 50
	defaultIcon       = "📌"
)

type kindStyle struct {
	color lipgloss.Color
	icon  string
}

var kindStyles = map[hookevent.Kind]kindStyle{
	hookevent.KindSessionStart:      {"15", "🚀"},
	hookevent.KindSessionEnd:        {"8", "🏁"},
	hookevent.KindUserPromptSubmit:  {"13", "💬"},
	hookevent.KindPreToolUse:        {"11", "🔧"},
	hookevent.KindPostToolUse:       {"10", "✅"},
	hookevent.KindPermissionRequest: {"3", "🔐"},
	hookevent.KindNotification:      {"14", "📢"},
	hookevent.KindStop:              {"9", "⏹️"},
	hookevent.KindSubagentStop:      {"12", "🤖"},
	hookevent.KindPreCompact:        {"5", "📦"},
}

// Console prints a readable block per event.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *lipgloss.Renderer
	now      func() time.Time
}

// NewConsole creates a console sink writing to w. Colors are used only when
// w is a terminal.
func NewConsole(w io.Writer) *Console {
	return &Console{
		out:      w,
		renderer: lipgloss.NewRenderer(w),
		now:      time.Now,
	}
}

func (c *Console) Name() string { return "console" }

// Report formats rec and writes it.
func (c *Console) Report(_ context.Context, rec hookevent.Record) error {
	text := c.Format(rec)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, text)
	return err
}

// Format renders rec as a multi-line block.
func (c *Console) Format(rec hookevent.Record) string {
	ev := hookevent.Decode(rec)
	name := hookevent.Name(rec)
	if name == "" {
		name = string(hookevent.KindUnknown)
	}

	ks, known := kindStyles[ev.Kind()]
	if !known {
		ks = kindStyle{icon: defaultIcon}
	}
	main := c.renderer.NewStyle()
	if ks.color != "" {
		main = main.Foreground(ks.color)
	}
	header := main.Bold(true)
	dim := c.renderer.NewStyle().Faint(true)

	ts := hookevent.Timestamp(rec)
	if ts.IsZero() {
		ts = c.now()
	}

	lines := []string{
		"",
		header.Render(fmt.Sprintf("%s [%s] ═══ %s ═══", ks.icon, ts.Format("15:04:05"), name)),
	}
	add := func(style lipgloss.Style, format string, args ...any) {
		lines = append(lines, style.Render("  "+fmt.Sprintf(format, args...)))
	}
	session := func(id string) {
		if id != "" {
			add(main, "Session: %s...", firstRunes(id, sessionIDLimit))
		}
	}

	switch e := ev.(type) {
	case hookevent.SessionStart:
		session(e.SessionID)
		add(main, "Source: %s", orUnknown(e.Source))
	case hookevent.SessionEnd:
		session(e.SessionID)
		add(main, "Reason: %s", orUnknown(e.Reason))
	case hookevent.UserPromptSubmit:
		add(main, "Prompt: %s", truncate(e.Prompt, promptLimit))
	case hookevent.PreToolUse:
		add(main, "Tool: %s", orUnknown(e.ToolName))
		if input := prettyInput(e.ToolInput); input != "" {
			add(dim, "Input: %s", input)
		}
	case hookevent.PermissionRequest:
		add(main, "Tool: %s", orUnknown(e.ToolName))
		if input := prettyInput(e.ToolInput); input != "" {
			add(dim, "Input: %s", input)
		}
	case hookevent.PostToolUse:
		add(main, "Tool: %s", orUnknown(e.ToolName))
		add(dim, "Response: %s", truncate(stringify(e.ToolResponse), toolResponseLimit))
	case hookevent.Notification:
		add(main, "Message: %s", e.Message)
		if e.NotificationType != "" {
			add(dim, "Type: %s", e.NotificationType)
		}
	case hookevent.Stop:
		session(e.SessionID)
		add(dim, "Hook Active: %t", e.StopHookActive)
	case hookevent.SubagentStop:
		if e.AgentID != "" {
			add(main, "Agent: %s...", firstRunes(e.AgentID, sessionIDLimit))
		}
		add(dim, "Hook Active: %t", e.StopHookActive)
	case hookevent.PreCompact:
		add(main, "Trigger: %s", orUnknown(e.Trigger))
		if e.CustomInstructions != "" {
			add(dim, "Instructions: %s", truncate(e.CustomInstructions, instructionsLimit))
		}
	case hookevent.Unknown:
		if len(e.Fields) > 0 {
			add(dim, "Fields: %s", strings.Join(e.Fields, ", "))
		}
	}

	lines = append(lines, main.Render(strings.Repeat("─", ruleWidth)))
	return strings.Join(lines, "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// truncate caps s at n runes, appending "..." when anything was cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func prettyInput(v any) string {
	if v == nil {
		return ""
	}
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return ""
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return truncate(fmt.Sprint(v), toolInputLimit)
	}
	return truncate(string(data), toolInputLimit)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
