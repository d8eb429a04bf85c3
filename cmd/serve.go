package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/bridge/cli"
	"github.com/grovetools/bridge/config"
	"github.com/grovetools/bridge/internal/acp"
	"github.com/grovetools/bridge/internal/daemon"
	"github.com/grovetools/bridge/internal/daemon/pidfile"
	"github.com/grovetools/bridge/internal/daemon/server"
	"github.com/grovetools/bridge/internal/history"
	"github.com/grovetools/bridge/internal/hub"
	"github.com/grovetools/bridge/internal/store"
	"github.com/grovetools/bridge/internal/supervisor"
	"github.com/grovetools/bridge/internal/translate"
	"github.com/grovetools/bridge/pkg/paths"
	"github.com/grovetools/bridge/version"
)

// NewServeCmd returns the bridge daemon command with subcommands.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge daemon",
		Long:  "Spawn the agent, connect to its socket, and serve the HTTP/SSE API.",
	}

	cmd.AddCommand(newServeStartCmd())
	cmd.AddCommand(newServeStopCmd())
	cmd.AddCommand(newServeStatusCmd())

	return cmd
}

func newServeStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Long:  "Start the bridge daemon in foreground mode.",
		Example: `  # Start with the nearest bridge.yml
  bridge serve start

  # Start with an explicit config file
  bridge --config ./bridge.yml serve start`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := cli.GetLogger(cmd).WithField("component", "bridged")
			handler := cli.NewErrorHandler(cli.GetOptions(cmd).Verbose)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return handler.Handle(err)
			}

			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("failed to create bridge directories: %w", err)
			}

			// 1. Acquire lock
			pidPath := paths.PidFilePath()
			if err := pidfile.Acquire(pidPath); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer func() {
				if err := pidfile.Release(pidPath); err != nil {
					logger.Errorf("Failed to release pidfile: %v", err)
				}
			}()

			// 2. Spawn the agent and wait for its socket
			sup := supervisor.New(cfg.Agent)
			if err := sup.Start(); err != nil {
				return handler.Handle(err)
			}
			defer sup.Stop()

			if err := sup.WaitReady(); err != nil {
				return handler.Handle(err)
			}

			// 3. Connect and handshake
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			client, err := acp.Connect(ctx, cfg.Agent.Addr())
			if err != nil {
				return handler.Handle(err)
			}
			defer client.Close()

			info, err := client.Initialize(ctx, acp.ClientInfo{
				Name:    "bridge",
				Version: version.GetInfo().Version,
			})
			if err != nil {
				return handler.Handle(err)
			}
			agentName := cfg.Agent.Command
			if info.AgentInfo != nil {
				agentName = info.AgentInfo.Name
			}
			logger.WithField("agent", agentName).
				WithField("protocol", info.ProtocolVersion).
				Info("Agent handshake complete")

			// 4. Assemble the pipeline
			st := store.New()
			h := hub.New()
			tr := translate.New(st, h, client)
			go tr.Run(client.Notifications(), client.Requests())

			recon := history.New(cfg.Sessions.Root, st)
			if err := recon.Reload(); err != nil {
				logger.WithError(err).Warn("Initial session log scan failed")
			}

			if cfg.Sessions.WatchEnabled() {
				watcher, err := daemon.NewLogWatcher(recon, h, 0)
				if err != nil {
					logger.WithError(err).Warn("Log tree watcher unavailable")
				} else {
					defer watcher.Close()
					go watcher.Start(ctx)
				}
			}

			srv := server.New(st, h, client, tr, recon, *cfg, version.GetInfo().Version)

			// 5. Handle signals
			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

			// Agent exit is logged but does not stop the bridge; reads
			// keep working and prompts fail with a connection error.
			go func() {
				<-sup.Exited()
				logger.Warn("Agent process exited, prompt delivery unavailable")
			}()

			go func() {
				<-stop
				logger.Info("Received stop signal")
				cancel()

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()

				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Errorf("Server shutdown error: %v", err)
				}

				sup.Stop()

				// Explicitly release pidfile before exit in signal handler
				_ = pidfile.Release(pidPath)
				os.Exit(0)
			}()

			// 6. Serve (blocking)
			logger.WithField("pid", os.Getpid()).
				WithField("listen", cfg.HTTP.Listen).
				Info("Starting daemon")
			if err := srv.ListenAndServe(); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
}

func newServeStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()

			running, pid, err := pidfile.IsRunning(pidPath)
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}

			if !running {
				fmt.Println("Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}

			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}

			fmt.Printf("Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

func newServeStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidPath := paths.PidFilePath()
			running, pid, err := pidfile.IsRunning(pidPath)

			if err != nil {
				return fmt.Errorf("error: %w", err)
			}

			if running {
				fmt.Printf("Running (PID: %d)\n", pid)
			} else {
				fmt.Println("Stopped")
				os.Exit(1) // Non-zero for stopped state (useful for scripts)
			}
			return nil
		},
	}
}

// loadConfig resolves configuration for daemon commands. An explicit
// --config path must exist; otherwise the nearest project config merged
// over the global one is used, falling back to defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cli.InitConfig(cli.GetOptions(cmd).ConfigFile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}
