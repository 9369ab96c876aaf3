package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobalert/internal/admin"
	"github.com/amishk599/jobalert/internal/checker"
	"github.com/amishk599/jobalert/internal/config"
	"github.com/amishk599/jobalert/internal/dedup"
	"github.com/amishk599/jobalert/internal/discovery"
	"github.com/amishk599/jobalert/internal/lock"
	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/notifier"
	"github.com/amishk599/jobalert/internal/retry"
	"github.com/amishk599/jobalert/internal/store"
	"github.com/amishk599/jobalert/internal/strategy"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "jobalert",
	Short: "Job alert bot: mail new postings from company career pages",
	Long:  "jobalert checks career pages on an hourly, daily or weekly schedule and mails each alert's owner about postings they have not seen yet.",
	// Default to `start` so that `jobalert` with no args runs the daemon.
	RunE:         runStart,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: JOBALERT_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > JOBALERT_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("JOBALERT_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

// silentLogger is handed to components while a TUI owns the terminal.
func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "slack":
		logger.Info("using slack notifier")
		return notifier.NewSlackNotifier(cfg.Notification.WebhookURL, httpClient, logger)
	case "smtp":
		s := cfg.Notification.SMTP
		logger.Info("using smtp notifier", "host", s.Host, "port", s.Port)
		return notifier.NewSMTPNotifier(notifier.SMTPConfig{
			Host:     s.Host,
			Port:     s.Port,
			Username: s.Username,
			Password: s.Password,
			From:     s.From,
			TLS:      s.TLS,
		}, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Database.Driver, err)
	}
	return st, nil
}

// newEngine builds the discovery engine: browser-like HTTP fetches, retried on
// transient failures, dispatched through the default strategy registry.
func newEngine(cfg *config.Config, logger *slog.Logger) *discovery.Engine {
	client := &http.Client{Timeout: cfg.Fetch.Timeout}
	var fetcher model.PageFetcher = discovery.NewHTTPFetcher(
		client,
		cfg.Fetch.UserAgent,
		int64(cfg.Fetch.MaxConcurrent),
		cfg.Fetch.MaxBodyBytes,
	)
	if cfg.Fetch.MaxRetries > 0 {
		fetcher = retry.NewPageFetcher(fetcher, cfg.Fetch.MaxRetries, cfg.Fetch.RetryBaseDelay, logger)
	}
	engine := discovery.NewEngine(fetcher, strategy.DefaultRegistry(), logger)
	engine.SetCompanyFanout(cfg.Fetch.CompanyFanout)
	return engine
}

// buildChecker wires discovery, dedup and dispatch over st. In dry-run mode
// nothing is written and digests go to the log instead of the configured transport.
// The returned cleanup releases the Redis connection, if any.
func buildChecker(ctx context.Context, cfg *config.Config, st store.Store, dryRun bool, logger *slog.Logger) (*checker.Checker, func(), error) {
	var (
		alerts    model.AlertRepository = st
		jobs      model.JobRepository   = st
		transport model.Notifier
	)
	if dryRun {
		logger.Info("dry-run mode enabled, nothing will be persisted or mailed")
		dry := store.NewDryRunStore(st, st)
		alerts, jobs = dry, dry
		transport = notifier.NewLogNotifier(logger)
	} else {
		transport = setupNotifier(cfg, &http.Client{Timeout: cfg.Fetch.Timeout}, logger)
	}

	c := checker.NewChecker(
		alerts,
		jobs,
		newEngine(cfg, logger),
		dedup.NewGateway(jobs, logger),
		notifier.NewDispatcher(transport, jobs, cfg.Notification.DashboardURL, logger),
		logger,
	)
	c.SetTimeout(cfg.Scheduler.CheckTimeout)

	cleanup := func() {}
	if cfg.Lock.RedisAddr != "" && !dryRun {
		rdb, err := lock.Dial(ctx, cfg.Lock.RedisAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		c.SetLocker(lock.NewRedisLocker(rdb, cfg.Lock.TTL, logger))
		logger.Info("cross-process check lock enabled", "redis", cfg.Lock.RedisAddr, "ttl", cfg.Lock.TTL.String())
		cleanup = func() { _ = rdb.Close() }
	}
	return c, cleanup, nil
}

// adminClient returns a client for the daemon's admin API, or nil when admin.url is unset.
func adminClient(cfg *config.Config) *admin.Client {
	if cfg.Admin.URL == "" {
		return nil
	}
	// On-demand checks run inside the daemon and may take up to check_timeout.
	return admin.NewClient(cfg.Admin.URL, &http.Client{Timeout: cfg.Scheduler.CheckTimeout + cfg.Fetch.Timeout})
}
