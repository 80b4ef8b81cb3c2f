// Package cli implements the flow command line.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thebtf/flow/internal/config"
	"github.com/thebtf/flow/internal/hookconfig"
)

// VersionInfo is set by the main package from ldflags.
type VersionInfo struct {
	Version   string
	BuildTime string
	Commit    string
}

// app carries what every command needs. One instance backs one command tree.
type app struct {
	info VersionInfo
	v    *viper.Viper
	cfg  *config.Config

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// workDir locates the git repository for project and local scopes.
	workDir string
	// home overrides the user's home directory in tests.
	home string
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

func (a *app) resolver() (*hookconfig.Resolver, error) {
	dir := a.workDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	if a.home != "" {
		return &hookconfig.Resolver{Home: a.home, RepoRoot: hookconfig.FindRepoRoot(dir)}, nil
	}
	return hookconfig.NewResolver(dir)
}

func (a *app) manager() (*hookconfig.Manager, error) {
	r, err := a.resolver()
	if err != nil {
		return nil, err
	}
	return hookconfig.NewManager(r), nil
}

// NewRootCommand builds the command tree.
func NewRootCommand(info VersionInfo) *cobra.Command {
	return newRootCommand(&app{
		info:   info,
		v:      viper.New(),
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	})
}

func newRootCommand(a *app) *cobra.Command {
	if a.info.Version == "" {
		a.info.Version = "dev"
	}

	root := &cobra.Command{
		Use:   "flow",
		Short: "Claude Code hook management and event tracing",
		Long: "\nflow installs Claude Code hooks that report every hook event to a local " +
			"server, and fans those events out to the console, WebSocket and SSE clients, " +
			"an HTTP collector and an optional SQLite history.",
		PersistentPreRunE: a.runInit,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.printf("flow %s\n", a.info.Version)
			return nil
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.PersistentFlags().String("config", "", "Path to configuration file (default: ~/.flow/config.yaml)")
	root.PersistentFlags().String("log-level", "", "Logging level (debug, info, warn, error)")
	_ = a.v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newHooksCommand(a),
		newServeCommand(a),
		newTraceCommand(a),
		newPingCommand(a),
		newStatusCommand(a),
		newVersionCommand(a),
	)

	root.Version = a.info.Version
	root.SetVersionTemplate("flow version {{.Version}}\n")
	return root
}

func (a *app) runInit(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadWith(a.v, configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	a.cfg = cfg

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// Execute runs the command line and prints the error, if any, to stderr.
func Execute(info VersionInfo) error {
	root := NewRootCommand(info)
	root.SilenceErrors = true
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
