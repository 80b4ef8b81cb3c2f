package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/flow/internal/config"
	"github.com/thebtf/flow/internal/db/sqlite"
	"github.com/thebtf/flow/internal/reporter"
	"github.com/thebtf/flow/internal/server"
	"github.com/thebtf/flow/internal/watcher"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local hook server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServer(cmd, false)
		},
	}
	cmd.Flags().Int("port", 0, "Server port (default: server_port from config)")
	return cmd
}

func newTraceCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Run the local hook server and print hook events as they arrive",
		Example: "  Terminal 1: flow trace\n" +
			"  Terminal 2: flow hooks set && claude -p \"hello\" && flow hooks clear",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServer(cmd, true)
		},
	}
	cmd.Flags().Int("port", 0, "Server port (default: server_port from config)")
	return cmd
}

// buildService wires the configured sinks into a server. Every sink is
// closed by the service on shutdown.
func (a *app) buildService(port int, console bool) (*server.Service, error) {
	registry := reporter.NewRegistry()
	opts := server.Options{
		Version:  a.info.Version,
		Port:     port,
		Registry: registry,
		Buffer:   reporter.NewRingBuffer(a.cfg.BufferSize),
	}
	if mgr, err := a.manager(); err != nil {
		log.Warn().Err(err).Msg("Hook settings unavailable")
	} else {
		opts.Manager = mgr
	}
	svc := server.New(opts)

	if console {
		registry.Add(reporter.NewConsole(a.out))
	}
	if a.cfg.Forward.URL != "" {
		forward := reporter.NewForward(reporter.ForwardConfig{
			URL:        a.cfg.Forward.URL,
			Headers:    a.cfg.Forward.Headers,
			Timeout:    a.cfg.Forward.Timeout,
			RetryCount: a.cfg.Forward.RetryCount,
			Redact:     a.cfg.Forward.Redact,
		})
		registry.Add(reporter.NewAsync(forward, reporter.DefaultQueueSize))
		log.Info().Str("url", a.cfg.Forward.URL).Msg("Forwarding hook events")
	}
	if a.cfg.History.Enabled {
		if err := config.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := sqlite.NewStore(sqlite.StoreConfig{Path: a.cfg.History.Path, WALMode: true})
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		registry.Add(reporter.NewHistory(sqlite.NewEventStore(store), a.cfg.BufferSize, a.cfg.History.MaxEvents))
		log.Info().Str("path", a.cfg.History.Path).Msg("Recording hook history")
	}
	return svc, nil
}

// settingsWatcher watches every settings file reachable from the working
// directory. It returns nil when nothing can be watched.
func (a *app) settingsWatcher(svc *server.Service) *watcher.Watcher {
	r, err := a.resolver()
	if err != nil {
		return nil
	}
	var paths []string
	for _, scope := range r.AvailableScopes() {
		if p, err := r.SettingsPath(scope); err == nil {
			paths = append(paths, p)
		}
	}
	w, err := watcher.New(svc.HooksChanged, paths...)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
		return nil
	}
	if err := w.Start(); err != nil {
		log.Debug().Err(err).Msg("Settings watcher not started")
		return nil
	}
	return w
}

func (a *app) runServer(cmd *cobra.Command, trace bool) error {
	port, _ := cmd.Flags().GetInt("port")
	if port <= 0 {
		port = a.cfg.ServerPort
	}

	svc, err := a.buildService(port, trace)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if trace {
		a.printf("Starting flow trace server on port %d...\n", port)
	}
	if err := svc.Start(); err != nil {
		_ = svc.Shutdown(context.Background())
		return err
	}
	if trace {
		a.printf("✓ Server started on http://%s\n", svc.Addr())
		a.printf("\nTip: Run 'flow hooks set' in another terminal to enable hooks\n\n")
		a.printf("Waiting for hook events (Ctrl+C to stop)\n\n")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		return svc.Shutdown(shutdownCtx)
	})
	if w := a.settingsWatcher(svc); w != nil {
		g.Go(func() error {
			<-gctx.Done()
			return w.Stop()
		})
	}

	err = g.Wait()
	if trace {
		a.printf("\n✓ Trace stopped\n")
	}
	return err
}
