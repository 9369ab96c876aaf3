package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/config"
	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/store"
)

var (
	alertCompanies []string
	alertKeywords  []string
	alertFrequency string
	alertEmail     string
	alertInactive  bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage job alerts",
	Long: "Create, list, edit and remove job alerts. When admin.url is configured every change\n" +
		"is forwarded to the running daemon so its schedule follows the stored alert.",
}

var alertsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an alert",
	Args:  cobra.NoArgs,
	RunE:  runAlertsAdd,
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	Args:  cobra.NoArgs,
	RunE:  runAlertsList,
}

var alertsUpdateCmd = &cobra.Command{
	Use:   "update <alert-id>",
	Short: "Edit an alert; given flags replace the current values",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsUpdate,
}

var alertsActivateCmd = &cobra.Command{
	Use:   "activate <alert-id>",
	Short: "Resume checking an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setActive(args[0], true) },
}

var alertsDeactivateCmd = &cobra.Command{
	Use:   "deactivate <alert-id>",
	Short: "Stop checking an alert without deleting it",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setActive(args[0], false) },
}

var alertsDeleteCmd = &cobra.Command{
	Use:   "delete <alert-id>",
	Short: "Delete an alert and its postings",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsDelete,
}

func init() {
	for _, c := range []*cobra.Command{alertsAddCmd, alertsUpdateCmd} {
		c.Flags().StringArrayVar(&alertCompanies, "company", nil, "company name or career page URL (repeatable)")
		c.Flags().StringArrayVar(&alertKeywords, "keyword", nil, "keyword matched against titles and descriptions (repeatable)")
		c.Flags().StringVar(&alertFrequency, "frequency", "daily", "hourly, daily or weekly")
		c.Flags().StringVar(&alertEmail, "email", "", "recipient address")
	}
	alertsAddCmd.Flags().BoolVar(&alertInactive, "inactive", false, "create the alert without scheduling it")

	alertsCmd.AddCommand(alertsAddCmd, alertsListCmd, alertsUpdateCmd, alertsActivateCmd, alertsDeactivateCmd, alertsDeleteCmd)
	rootCmd.AddCommand(alertsCmd)
}

// withStore loads config, opens the store and runs fn against it.
func withStore(fn func(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) error) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(ctx, cfg, st, logger)
}

func runAlertsAdd(cmd *cobra.Command, args []string) error {
	freq, err := model.ParseFrequency(alertFrequency)
	if err != nil {
		return err
	}
	in := model.AlertInput{
		Companies: alertCompanies,
		Keywords:  alertKeywords,
		Frequency: freq,
		Email:     alertEmail,
		Active:    !alertInactive,
	}

	return withStore(func(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) error {
		a, err := st.CreateAlert(ctx, in)
		if err != nil {
			return err
		}
		fmt.Printf("created alert %s\n", a.ID)
		if a.Active {
			scheduleHook(ctx, cfg, a.ID, logger)
		}
		return nil
	})
}

func runAlertsUpdate(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withStore(func(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) error {
		current, err := st.GetAlert(ctx, id)
		if err != nil {
			return err
		}

		in := model.AlertInput{
			Companies: current.CompanyNames(),
			Keywords:  current.Words(),
			Frequency: current.Frequency,
			Email:     current.Email,
			Active:    current.Active,
		}
		flags := cmd.Flags()
		if flags.Changed("company") {
			in.Companies = alertCompanies
		}
		if flags.Changed("keyword") {
			in.Keywords = alertKeywords
		}
		if flags.Changed("frequency") {
			if in.Frequency, err = model.ParseFrequency(alertFrequency); err != nil {
				return err
			}
		}
		if flags.Changed("email") {
			in.Email = alertEmail
		}

		a, err := st.UpdateAlert(ctx, id, in)
		if err != nil {
			return err
		}
		fmt.Printf("updated alert %s\n", a.ID)
		if a.Active {
			scheduleHook(ctx, cfg, a.ID, logger)
		}
		return nil
	})
}

func setActive(id string, active bool) error {
	return withStore(func(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) error {
		if err := st.SetAlertActive(ctx, id, active); err != nil {
			return err
		}
		if active {
			fmt.Printf("activated alert %s\n", id)
			scheduleHook(ctx, cfg, id, logger)
		} else {
			fmt.Printf("deactivated alert %s\n", id)
			unscheduleHook(ctx, cfg, id, logger)
		}
		return nil
	})
}

func runAlertsDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	return withStore(func(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) error {
		if err := st.DeleteAlert(ctx, id); err != nil {
			return err
		}
		fmt.Printf("deleted alert %s\n", id)
		unscheduleHook(ctx, cfg, id, logger)
		return nil
	})
}

// scheduleHook tells the daemon to (re)schedule an alert. The alert is already
// stored, so a failure is only a warning: the daemon picks it up on restart.
func scheduleHook(ctx context.Context, cfg *config.Config, id string, logger *slog.Logger) {
	client := adminClient(cfg)
	if client == nil {
		logger.Debug("admin.url not set, skipping schedule hook", "alert_id", id)
		return
	}
	resp, err := client.Schedule(ctx, id)
	if err != nil {
		logger.Warn("schedule hook failed", "alert_id", id, "error", err)
		return
	}
	logger.Info("daemon schedule updated", "alert_id", id, "scheduled", resp.Scheduled)
}

func unscheduleHook(ctx context.Context, cfg *config.Config, id string, logger *slog.Logger) {
	client := adminClient(cfg)
	if client == nil {
		logger.Debug("admin.url not set, skipping unschedule hook", "alert_id", id)
		return
	}
	if err := client.Unschedule(ctx, id); err != nil {
		logger.Warn("unschedule hook failed", "alert_id", id, "error", err)
		return
	}
	logger.Info("daemon schedule removed", "alert_id", id)
}

var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableDimStyle    = tableCellStyle.Foreground(lipgloss.Color("245"))
)

// newTable returns a bordered table; dimRow reports rows to render muted.
func newTable(dimRow func(row int) bool, headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case dimRow != nil && dimRow(row):
				return tableDimStyle
			default:
				return tableCellStyle
			}
		})
}

func runAlertsList(cmd *cobra.Command, args []string) error {
	return withStore(func(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) error {
		alerts, err := st.ListAlerts(ctx)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Println("No alerts. Create one with `jobalert alerts add`.")
			return nil
		}

		t := newTable(func(row int) bool { return !alerts[row].Active },
			"ID", "Companies", "Keywords", "Frequency", "Email", "Status")
		active := 0
		for _, a := range alerts {
			status := "inactive"
			if a.Active {
				status = "active"
				active++
			}
			t.Row(
				a.ID,
				strings.Join(a.CompanyNames(), "\n"),
				strings.Join(a.Words(), ", "),
				string(a.Frequency),
				a.Email,
				status,
			)
		}
		fmt.Println(t)
		fmt.Printf("\nTotal: %d alerts (%d active, %d inactive)\n", len(alerts), active, len(alerts)-active)
		return nil
	})
}
