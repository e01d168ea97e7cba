package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prasetya/wisma/internal/auth"
	"github.com/prasetya/wisma/internal/config"
	"github.com/prasetya/wisma/internal/logger"
	"github.com/prasetya/wisma/pkg/gateway"
	"github.com/prasetya/wisma/pkg/session"
	"github.com/prasetya/wisma/pkg/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wisma server",
	Long: `Run the wisma server in the foreground: start the configured tool
providers, open the credential database, and serve the HTTP gateway until
interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSizeMB: cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}
	defer lg.Close()
	log := lg.Zerolog()

	log.Info().Str("version", version).Msg("Starting wisma")

	authStore, err := auth.Open(auth.Config{
		Driver: cfg.Auth.Driver,
		DSN:    cfg.Auth.DSN,
	}, log)
	if err != nil {
		return err
	}
	defer authStore.Close()

	pingCtx, cancelPing := context.WithTimeout(cmd.Context(), 10*time.Second)
	err = authStore.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("credential database unreachable: %w", err)
	}

	registry := tools.NewRegistry(log)
	defer registry.Shutdown()

	loadCtx, cancelLoad := context.WithTimeout(cmd.Context(),
		time.Duration(cfg.Tools.StartTimeout)*time.Second)
	err = registry.Load(loadCtx, cfg.Tools.Descriptors...)
	cancelLoad()
	if err != nil {
		return fmt.Errorf("load tool providers: %w", err)
	}

	// The manager's event hook targets the gateway broadcaster; the server
	// does not exist yet when the manager is built.
	var srv *gateway.Server
	manager, err := session.NewManager(session.ManagerConfig{
		Verifier:      authStore,
		Composer:      tools.NewComposer(registry),
		WorkspaceRoot: cfg.WorkspaceRoot,
		MaxHistory:    cfg.Session.MaxHistory,
		MaxToolTurns:  cfg.Agent.MaxToolTurns,
		TurnTimeout:   time.Duration(cfg.Agent.RequestTimeout) * time.Second,
		Logger:        log,
		OnEvent: func(ev session.Event) {
			if srv != nil {
				srv.Broadcaster().Broadcast(string(ev.Type), ev)
			}
		},
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	reaper, err := session.NewReaper(manager,
		time.Duration(cfg.Session.IdleTimeoutMinutes)*time.Minute,
		time.Duration(cfg.Session.SweepIntervalMinutes)*time.Minute,
		log)
	if err != nil {
		return err
	}

	srv, err = gateway.NewServer(gateway.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
		Service:         manager,
		Logger:          log,
	})
	if err != nil {
		return err
	}

	if err := reaper.Start(); err != nil {
		return err
	}
	defer reaper.Stop()

	if err := srv.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("Shutdown signal received")
	return srv.Stop()
}
