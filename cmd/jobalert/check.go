package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/checker"
)

var (
	checkDryRun bool
	checkRemote bool
)

var checkCmd = &cobra.Command{
	Use:   "check <alert-id>",
	Short: "Check one alert now",
	Long: "Runs discovery, dedup and notification for one alert and prints the outcome.\n" +
		"With --dry-run nothing is persisted and the digest is logged instead of sent.\n" +
		"With --remote the check runs inside the daemon through its admin API.",
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkDryRun, "dry-run", false, "do not persist postings or send mail")
	checkCmd.Flags().BoolVar(&checkRemote, "remote", false, "run the check in the daemon (requires admin.url)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	alertID := args[0]

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var res checker.Result
	if checkRemote {
		client := adminClient(cfg)
		if client == nil {
			return fmt.Errorf("--remote requires admin.url in config")
		}
		if checkDryRun {
			return fmt.Errorf("--dry-run cannot be combined with --remote")
		}
		res, err = client.Check(ctx, alertID)
	} else {
		st, openErr := openStore(ctx, cfg)
		if openErr != nil {
			return openErr
		}
		defer st.Close()

		chk, cleanup, buildErr := buildChecker(ctx, cfg, st, checkDryRun, logger)
		if buildErr != nil {
			return buildErr
		}
		defer cleanup()

		checkCtx, cancel := context.WithTimeout(ctx, cfg.Scheduler.CheckTimeout)
		defer cancel()
		res, err = chk.CheckAlert(checkCtx, alertID)
	}
	if err != nil {
		logger.Error("check failed", "alert_id", alertID, "error", err)
		return err
	}

	printResult(res)
	return nil
}

func printResult(res checker.Result) {
	if res.Skipped {
		fmt.Printf("alert %s: skipped, another process is checking it\n", res.AlertID)
		return
	}
	fmt.Printf("alert %s: %d discovered, %d new, %d notified\n",
		res.AlertID, res.Discovered, res.NewPostings, res.Notified)
}
