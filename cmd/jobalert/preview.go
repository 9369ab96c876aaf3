package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/audit"
	"github.com/amishk599/jobalert/internal/config"
	"github.com/amishk599/jobalert/internal/discovery"
	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/store"
)

var previewCmd = &cobra.Command{
	Use:   "preview [alert-id]",
	Short: "Scrape an alert's companies without storing or mailing anything",
	Long: "Without arguments shows an alert picker, then a split-pane view of every extracted\n" +
		"posting next to the keyword matches. With an alert id prints the matches and exits.",
	Args: cobra.MaximumNArgs(1),
	RunE: runPreviewCmd,
}

func init() {
	rootCmd.AddCommand(previewCmd)
}

func runPreviewCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return withStore(func(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) error {
			alert, err := st.GetAlert(ctx, args[0])
			if err != nil {
				return err
			}
			p, err := previewAlert(ctx, newEngine(cfg, logger), *alert)
			if err != nil {
				return err
			}
			fmt.Print(audit.RenderSummary(p))
			return nil
		})
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	alerts, err := st.ListAlerts(ctx)
	if err != nil {
		return err
	}
	// Log output before the alt-screen starts corrupts the display.
	runPreview(alerts, newEngine(cfg, silentLogger()))
	return nil
}

func runPreview(alerts []model.JobAlert, engine *discovery.Engine) {
	for {
		choice, err := audit.RunAlertPicker(alerts)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return
		}
		if choice < 0 {
			return
		}
		alert := alerts[choice]

		label := fmt.Sprintf("Scraping %d companies", len(alert.Companies))
		p, err := audit.RunLoader(label, func(ctx context.Context) (audit.Preview, error) {
			return previewAlert(ctx, engine, alert)
		})
		if err != nil {
			fmt.Printf("Preview failed: %v\n", err)
			continue
		}

		wantQuit, err := audit.RunPreviewTUI(p)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return
		}
	}
}

// previewAlert scrapes every company of the alert concurrently and collects
// the results in company order. Per-company failures are reported, not fatal.
func previewAlert(ctx context.Context, engine *discovery.Engine, alert model.JobAlert) (audit.Preview, error) {
	type outcome struct {
		all, matched []model.RawPosting
		err          error
	}
	outcomes := make([]outcome, len(alert.Companies))

	var wg sync.WaitGroup
	for i, c := range alert.Companies {
		wg.Add(1)
		go func() {
			defer wg.Done()
			all, matched, err := engine.Preview(ctx, c.Target(), alert.Words())
			outcomes[i] = outcome{all: all, matched: matched, err: err}
		}()
	}
	wg.Wait()

	p := audit.Preview{Alert: alert}
	for i, o := range outcomes {
		if o.err != nil {
			p.Failures = append(p.Failures, audit.CompanyFailure{Company: alert.Companies[i].Name, Err: o.err})
			continue
		}
		p.All = append(p.All, o.all...)
		p.Matched = append(p.Matched, o.matched...)
	}
	return p, ctx.Err()
}
