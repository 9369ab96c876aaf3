package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/admin"
	"github.com/amishk599/jobalert/internal/config"
	"github.com/amishk599/jobalert/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the alert daemon",
	Long:  "Schedule every active alert, serve the admin API and block until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"database", cfg.Database.Driver,
		"notification", cfg.Notification.Type,
		"timezone", cfg.Scheduler.Location.String(),
		"max_concurrent_checks", cfg.Scheduler.MaxConcurrentChecks,
		"admin_addr", cfg.Admin.Addr,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runDaemon(ctx, cfg, logger); err != nil {
		logger.Error("daemon error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}

func runDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	chk, cleanup, err := buildChecker(ctx, cfg, st, false, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	mgr := scheduler.NewManager(st, chk, scheduler.Options{
		Location:            cfg.Scheduler.Location,
		MaxConcurrentChecks: cfg.Scheduler.MaxConcurrentChecks,
		CheckTimeout:        cfg.Scheduler.CheckTimeout,
	}, logger)
	mgr.Start(ctx)
	defer mgr.Stop()

	n, err := mgr.Initialize(ctx)
	if err != nil {
		return err
	}
	logger.Info("alerts scheduled", "count", n)

	if cfg.Admin.Addr == "" {
		<-ctx.Done()
		return nil
	}
	srv := admin.NewServer(mgr, chk, cfg.Scheduler.MaxConcurrentChecks, logger)
	return srv.ListenAndServe(ctx, cfg.Admin.Addr)
}
