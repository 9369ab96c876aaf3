package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/config"
	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/store"
)

var jobsPendingOnly bool

var jobsCmd = &cobra.Command{
	Use:   "jobs <alert-id>",
	Short: "List the postings stored for an alert",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobs,
}

func init() {
	jobsCmd.Flags().BoolVar(&jobsPendingOnly, "pending", false, "only postings whose digest has not gone out")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	alertID := args[0]
	return withStore(func(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) error {
		if _, err := st.GetAlert(ctx, alertID); err != nil {
			return err
		}

		var (
			jobs []model.JobPosting
			err  error
		)
		if jobsPendingOnly {
			jobs, err = st.ListUnnotifiedJobs(ctx, alertID)
		} else {
			jobs, err = st.ListJobs(ctx, alertID)
		}
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No postings stored for this alert yet.")
			return nil
		}

		t := newTable(func(row int) bool { return jobs[row].Notified },
			"Title", "Company", "Location", "Found", "Notified", "URL")
		pending := 0
		for _, j := range jobs {
			notified := "yes"
			if !j.Notified {
				notified = "no"
				pending++
			}
			t.Row(
				j.Title,
				j.Company,
				j.Location,
				j.CreatedAt.Local().Format("2006-01-02 15:04"),
				notified,
				j.URL,
			)
		}
		fmt.Println(t)
		fmt.Printf("\nTotal: %d postings (%d pending notification)\n", len(jobs), pending)
		return nil
	})
}
