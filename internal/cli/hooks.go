package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/thebtf/flow/internal/db/sqlite"
	"github.com/thebtf/flow/internal/hookconfig"
	"github.com/thebtf/flow/internal/hookevent"
	"github.com/thebtf/flow/pkg/hooks"
)

const noOwnedHooks = "no matching owned hooks"

func newHooksCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Manage Claude Code hooks",
	}
	cmd.AddCommand(
		newHooksSetCommand(a),
		newHooksClearCommand(a),
		newHooksListCommand(a),
		newHooksReportCommand(a),
		newHooksHistoryCommand(a),
	)
	return cmd
}

func addScopeFlag(cmd *cobra.Command) {
	cmd.Flags().String("scope", string(hookconfig.ScopeUser), scopeUsage())
}

func scopeUsage() string {
	var b strings.Builder
	b.WriteString("Settings scope:")
	for _, s := range []hookconfig.Scope{hookconfig.ScopeUser, hookconfig.ScopeProject, hookconfig.ScopeLocal} {
		fmt.Fprintf(&b, "\n  %-8s %s", s, hookconfig.Describe(s))
	}
	return b.String()
}

func scopeFlag(cmd *cobra.Command) (hookconfig.Scope, error) {
	raw, _ := cmd.Flags().GetString("scope")
	return hookconfig.ParseScope(raw)
}

func newHooksSetCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Install flow hooks into Claude Code settings",
		Long: "\nInstalls a flow-owned hook for each reported event. Existing flow hooks " +
			"for the same event and matcher are replaced; other hooks are left alone.",
		Example: "  flow hooks set\n  flow hooks set --scope project --all",
		RunE:    a.runHooksSet,
	}
	addScopeFlag(cmd)
	cmd.Flags().String("command", "", "Hook command (default: hook_command from config)")
	cmd.Flags().Bool("all", false, "Also install SessionStart, SessionEnd and PreCompact hooks")
	return cmd
}

func (a *app) runHooksSet(cmd *cobra.Command, args []string) error {
	scope, err := scopeFlag(cmd)
	if err != nil {
		return err
	}
	command, _ := cmd.Flags().GetString("command")
	if command == "" {
		command = a.cfg.HookCommand
	}
	events := hookconfig.DefaultManagedEvents()
	if all, _ := cmd.Flags().GetBool("all"); all {
		events = hookconfig.AllManagedEvents()
	}

	mgr, err := a.manager()
	if err != nil {
		return err
	}

	a.printf("Setting flow hooks (scope: %s)...\n", scope)
	res, err := mgr.InstallManaged(scope, command, events)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("failed to set hooks: %s", res.Reason)
	}

	for _, me := range events {
		if me.Matcher != nil {
			a.printf("✓ %s (matcher: %s)\n", me.Event, *me.Matcher)
		} else {
			a.printf("✓ %s\n", me.Event)
		}
	}
	a.printf("\n✓ %d hooks configured\n", res.Changed)
	a.printf("✓ Settings file: %s\n", res.Path)
	return nil
}

func newHooksClearCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove flow hooks from Claude Code settings",
		Long:  "\nRemoves only hooks owned by flow. Hooks added by hand or by other tools are kept.",
		RunE:  a.runHooksClear,
	}
	addScopeFlag(cmd)
	return cmd
}

func (a *app) runHooksClear(cmd *cobra.Command, args []string) error {
	scope, err := scopeFlag(cmd)
	if err != nil {
		return err
	}
	mgr, err := a.manager()
	if err != nil {
		return err
	}

	a.printf("Clearing flow hooks (scope: %s)...\n", scope)
	res, err := mgr.ClearManaged(scope)
	if err != nil {
		return err
	}
	switch {
	case res.Success:
		a.printf("✓ %d flow hooks cleared from %s\n", res.Changed, res.Path)
	case res.Reason == noOwnedHooks:
		a.printf("No flow hooks found to remove.\n")
	default:
		return fmt.Errorf("failed to clear hooks: %s", res.Reason)
	}
	return nil
}

func newHooksListCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List hooks configured in Claude Code settings",
		RunE:  a.runHooksList,
	}
	addScopeFlag(cmd)
	cmd.Flags().String("format", "text", "Output format: text, json or yaml")
	return cmd
}

func (a *app) runHooksList(cmd *cobra.Command, args []string) error {
	scope, err := scopeFlag(cmd)
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	settings, path, err := mgr.List(scope)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}

	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(settings.Hooks, "", "  ")
		if err != nil {
			return err
		}
		a.printf("%s\n", data)
	case "yaml":
		return writeYAML(a.out, settings.Hooks)
	case "text":
		a.printHooks(scope, path, settings.Hooks)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}

// writeYAML renders v through its JSON form, so the YAML mirrors the
// settings file exactly.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func (a *app) printHooks(scope hookconfig.Scope, path string, reg *hookconfig.Registry) {
	a.printf("Hooks (scope: %s)\n", scope)
	a.printf("Settings file: %s\n\n", path)

	events := reg.ListEvents()
	if len(events) == 0 {
		a.printf("No hooks configured.\n")
		return
	}
	for _, event := range events {
		if hookconfig.IsKnownEvent(event) {
			a.printf("%s\n", event)
		} else {
			a.printf("%s (unknown event)\n", event)
		}
		for _, g := range reg.Groups(event) {
			if len(g.Hooks) == 0 {
				continue
			}
			owner := ""
			if g.Owned() {
				owner = " [flow]"
			}
			if g.Matcher != nil {
				a.printf("  matcher: %q%s\n", *g.Matcher, owner)
			} else {
				a.printf("  (no matcher)%s\n", owner)
			}
			for _, h := range g.Hooks {
				a.printf("    - %s: %s\n", h.Type, h.Command)
			}
		}
	}
	for _, event := range reg.DisabledEvents() {
		a.printf("%s (disabled)\n", event)
	}
}

func newHooksReportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Report a hook event read from stdin to the local server",
		Long: "\nCalled by Claude Code for every hook event. Reads the event JSON from stdin " +
			"and posts it to the local server. Always exits 0 so Claude is never blocked.",
		RunE: a.runHooksReport,
	}
}

func (a *app) runHooksReport(cmd *cobra.Command, args []string) error {
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read hook input")
		return nil
	}
	data = bytes.TrimSpace(data)
	if _, err := hookevent.ParseRecord(data); err != nil {
		log.Debug().Err(err).Msg("Ignoring invalid hook input")
		return nil
	}
	if err := hooks.ReportEvent(a.cfg.ServerPort, data); err != nil {
		log.Debug().Err(err).Int("port", a.cfg.ServerPort).Msg("Hook report not delivered")
	}
	return nil
}

func newHooksHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show hook events stored in the local history database",
		RunE:  a.runHooksHistory,
	}
	cmd.Flags().Int("limit", 20, "Maximum number of events to show")
	cmd.Flags().String("event", "", "Only show events with this name")
	return cmd
}

func (a *app) runHooksHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	event, _ := cmd.Flags().GetString("event")

	if _, err := os.Stat(a.cfg.History.Path); errors.Is(err, os.ErrNotExist) {
		a.printf("No history database at %s (enable history in the config).\n", a.cfg.History.Path)
		return nil
	}

	store, err := sqlite.NewStore(sqlite.StoreConfig{Path: a.cfg.History.Path, WALMode: true})
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	events := sqlite.NewEventStore(store)
	defer events.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	stored, err := events.Recent(ctx, event, limit)
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}
	if len(stored) == 0 {
		a.printf("No events recorded.\n")
		return nil
	}
	for _, e := range stored {
		session := e.SessionID
		if len(session) > 16 {
			session = session[:16] + "..."
		}
		a.printf("%s  %-18s %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.EventName, session)
	}
	return nil
}
