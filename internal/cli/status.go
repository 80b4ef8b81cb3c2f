package cli

import (
	"fmt"
	"net/url"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/thebtf/flow/pkg/hooks"
)

func newPingCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "ping <text>",
		Short:   "Send a ping to the local server to test hook integration",
		Example: "  flow ping hello",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := hooks.GET(a.cfg.ServerPort, "/ping?ping_str="+url.QueryEscape(args[0])); err != nil {
				return fmt.Errorf("failed to send ping: %w", err)
			}
			a.printf("Ping sent successfully: %s\n", args[0])
			return nil
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the local server is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			port := a.cfg.ServerPort
			if !hooks.IsServerRunning(port) {
				if hooks.IsPortInUse(port) {
					a.printf("✗ Port %d is in use by another process\n", port)
				} else {
					a.printf("✗ Server not running on port %d (start it with 'flow serve')\n", port)
				}
				return nil
			}

			running := hooks.GetServerVersion(port)
			a.printf("✓ Server running on http://127.0.0.1:%d (version %s)\n", port, running)
			if !hooks.VersionsCompatible(running, a.info.Version) {
				a.printf("⚠ Server version %s differs from CLI version %s; restart the server\n", running, a.info.Version)
			}
			return nil
		},
	}
}

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		Long:  "Display version, build time, commit, and Go version information",
		Run: func(cmd *cobra.Command, args []string) {
			a.printf("flow version %s\n", a.info.Version)
			a.printf("  Build Time: %s\n", a.info.BuildTime)
			a.printf("  Commit:     %s\n", a.info.Commit)
			a.printf("  Go Version: %s\n", runtime.Version())
		},
	}
}
