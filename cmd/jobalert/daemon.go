package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/checker"
	"github.com/amishk599/jobalert/internal/model"
)

var sweepRemote bool

var schedulesCmd = &cobra.Command{
	Use:   "schedules",
	Short: "List the alerts the running daemon has scheduled",
	Args:  cobra.NoArgs,
	RunE:  runSchedules,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep <hourly|daily|weekly>",
	Short: "Check every active alert of one frequency now",
	Long: "Checks all active alerts with the given frequency, a few at a time, and prints how many\n" +
		"succeeded. Useful from an external cron when the daemon is not running.",
	Args: cobra.ExactArgs(1),
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepRemote, "remote", false, "run the sweep in the daemon (requires admin.url)")
	rootCmd.AddCommand(schedulesCmd, sweepCmd)
}

func runSchedules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	client := adminClient(cfg)
	if client == nil {
		return fmt.Errorf("admin.url is not set in config")
	}

	entries, err := client.Schedules(context.Background())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No alerts scheduled.")
		return nil
	}

	t := newTable(nil, "Alert", "Frequency", "Next check")
	for _, e := range entries {
		t.Row(e.AlertID, string(e.Frequency), e.Next.Local().Format("2006-01-02 15:04 MST"))
	}
	fmt.Println(t)
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	freq, err := model.ParseFrequency(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var res checker.SweepResult
	if sweepRemote {
		client := adminClient(cfg)
		if client == nil {
			return fmt.Errorf("--remote requires admin.url in config")
		}
		res, err = client.Sweep(ctx, string(freq))
	} else {
		st, openErr := openStore(ctx, cfg)
		if openErr != nil {
			return openErr
		}
		defer st.Close()

		chk, cleanup, buildErr := buildChecker(ctx, cfg, st, false, logger)
		if buildErr != nil {
			return buildErr
		}
		defer cleanup()
		res, err = chk.Sweep(ctx, freq, cfg.Scheduler.MaxConcurrentChecks)
	}
	if err != nil {
		logger.Error("sweep failed", "frequency", freq, "error", err)
		return err
	}

	fmt.Printf("%s sweep: %d alerts, %d succeeded, %d failed\n", freq, res.Total, res.Successes, res.Failures)
	return nil
}
