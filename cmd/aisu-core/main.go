package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aisu-run/aisu-core/pkg/api"
	"github.com/aisu-run/aisu-core/pkg/auth"
	"github.com/aisu-run/aisu-core/pkg/beta"
	"github.com/aisu-run/aisu-core/pkg/config"
	"github.com/aisu-run/aisu-core/pkg/containerfs"
	"github.com/aisu-run/aisu-core/pkg/events"
	"github.com/aisu-run/aisu-core/pkg/fsservice"
	"github.com/aisu-run/aisu-core/pkg/log"
	"github.com/aisu-run/aisu-core/pkg/manager"
	"github.com/aisu-run/aisu-core/pkg/metrics"
	"github.com/aisu-run/aisu-core/pkg/ratelimit"
	"github.com/aisu-run/aisu-core/pkg/runtime"
	"github.com/aisu-run/aisu-core/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aisu-core",
	Short: "Aisu - control plane for browser-delivered personal computers",
	Long: `Aisu provisions an isolated Linux container per user and exposes
its filesystem and terminal to the browser over an HTTP and
WebSocket API.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Aisu version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (YAML)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(betaCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control plane",
	Long: `Start the API server together with the container lifecycle
manager, the filesystem service, and the terminal gateway.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		logger := log.WithComponent("main")
		logger.Info().Str("version", Version).Str("commit", Commit).Msg("Starting aisu-core")

		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open metadata store: %w", err)
		}
		defer store.Close()
		metrics.RegisterComponent("storage", true, "bolt store open")

		rt, err := runtime.NewDockerRuntime(cfg.Container.EngineURL)
		if err != nil {
			return fmt.Errorf("failed to connect to container engine: %w", err)
		}
		if cfg.Container.Enabled {
			pingCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			err := rt.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("container engine unreachable: %w", err)
			}
		}
		metrics.RegisterComponent("runtime", true, "engine reachable")

		limiter, err := ratelimit.Get(cfg.RateLimit)
		if err != nil {
			return fmt.Errorf("failed to initialize rate limiter: %w", err)
		}

		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		mgr := manager.NewManager(store, rt, broker, cfg.Container)

		collectorCtx, stopCollector := context.WithCancel(context.Background())
		defer stopCollector()
		mgr.StartMetricsCollector(collectorCtx)

		fs := fsservice.NewService(containerfs.NewClient(rt), store)
		authSvc := auth.NewService(store, cfg.Auth)
		betaSvc := beta.NewService(store, cfg.Beta)

		server := api.NewServer(cfg, authSvc, betaSvc, mgr, fs, rt, limiter)
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("API server error: %w", err)
			}
			return nil
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Shutdown did not drain cleanly")
		}

		logger.Info().Msg("Shutdown complete")
		return nil
	},
}

// Beta commands
var betaCmd = &cobra.Command{
	Use:   "beta",
	Short: "Manage beta invite tokens",
}

var betaIssueCmd = &cobra.Command{
	Use:   "issue EMAIL",
	Short: "Issue an invite token for an email address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})

		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open metadata store: %w", err)
		}
		defer store.Close()

		token, err := beta.NewService(store, cfg.Beta).Issue(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Token for %s: %s\n", args[0], token)
		fmt.Printf("Expires in %d hours\n", cfg.Beta.TokenExpireHours)
		return nil
	},
}

func init() {
	betaCmd.AddCommand(betaIssueCmd)
}
