package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/notifier"
)

var notifyTo string

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test digest",
	Long:  "Sends a one-posting sample digest through the configured transport.",
	Args:  cobra.NoArgs,
	RunE:  runNotifyTest,
}

func init() {
	notifyTestCmd.Flags().StringVar(&notifyTo, "to", "", "recipient address (required for smtp)")
	notifyCmd.AddCommand(notifyTestCmd)
	rootCmd.AddCommand(notifyCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Notification.Type == "smtp" && notifyTo == "" {
		return fmt.Errorf("--to is required when notification.type is smtp")
	}

	n := setupNotifier(cfg, &http.Client{Timeout: cfg.Fetch.Timeout}, logger)
	if err := notifier.SendTestMessage(context.Background(), n, notifyTo, cfg.Notification.DashboardURL); err != nil {
		logger.Error("test notification failed", "error", err)
		os.Exit(1)
	}
	logger.Info("test notification sent successfully", "type", cfg.Notification.Type)
	return nil
}
