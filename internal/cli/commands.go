package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"offline_sync_agent/internal/app"
	domainPresenter "offline_sync_agent/internal/domain/presenter"
	"offline_sync_agent/internal/infra/logger"
	"offline_sync_agent/internal/infra/presenter"
	"offline_sync_agent/internal/infra/scheduler"
	"offline_sync_agent/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/telebot.v3"
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(preloadCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(queueCmd)

	cacheCmd.AddCommand(cacheClearCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueSyncCmd)

	preloadCmd.Flags().BoolP("force", "f", false, "Refetch every dataset, even fresh ones or without a session")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Preload, then keep polling notifications and syncing until interrupted",
	Args:  cobra.NoArgs,
	RunE:  handleRun,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one notification cycle and print what was shown",
	Args:  cobra.NoArgs,
	RunE:  handleCheck,
}

var preloadCmd = &cobra.Command{
	Use:   "preload",
	Short: "Refresh expired datasets into the local cache",
	Args:  cobra.NoArgs,
	RunE:  handlePreload,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached dataset, the pending queue and notification tracking",
	Args:  cobra.NoArgs,
	RunE:  handleCacheClear,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and sync submissions waiting for the backend",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued submissions",
	Args:  cobra.NoArgs,
	RunE:  handleQueueList,
}

var queueSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Submit queued submissions now",
	Args:  cobra.NoArgs,
	RunE:  handleQueueSync,
}

func handleRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()
	base := logrus.NewEntry(logger.Log)
	mainLogger := base.WithField("component", "main")

	// stopped only after the notification scheduler
	uiCtx, stopUI := context.WithCancel(context.WithoutCancel(ctx))
	defer stopUI()
	ui := presenter.NewUIDispatcher(32)
	go ui.Run(uiCtx)

	var primary domainPresenter.Presenter = presenter.NewLogPresenter(base)
	var bot *telebot.Bot
	payloads := telegram.NewPayloadRegistry(0)
	if cfg.TelegramToken != "" {
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := mainLogger.WithError(err)
				if c != nil && c.Chat() != nil {
					entry = entry.WithField("chat_id", c.Chat().ID)
				}
				entry.Error("Telegram handler error")
			},
		})
		if err != nil {
			return fmt.Errorf("could not create Telegram bot: %w", err)
		}
		primary = telegram.NewPresenter(telegram.NewTelebotAdapter(bot), cfg.TelegramChatID, payloads, base)
		mainLogger.WithField("chat_id", cfg.TelegramChatID).Info("Telegram presenter configured")
	} else {
		mainLogger.Info("TELEGRAM_TOKEN not set, notifications go to the log")
	}
	notifier := presenter.WithAlertFallback(primary, consoleAlert(cmd.ErrOrStderr()), ui, base)

	service := app.NewNotificationServiceImpl(comps.client, comps.store, notifier, notificationSettings(cfg), base)
	notifScheduler := scheduler.NewNotificationScheduler(
		service,
		scheduler.NewAdaptiveInterval(cfg.MinPollInterval, cfg.MaxPollInterval, cfg.EmptyCycleThreshold),
		base,
	)
	refresh := scheduler.NewRefreshScheduler(
		comps.preload,
		comps.queue,
		comps.client.SubmitScouting,
		base,
		cfg.CronSpecPreload,
		cfg.CronSpecQueue,
	)

	report := comps.preload.PreloadAll(ctx, false)
	mainLogger.WithField("summary", summarizePreload(report)).Info("Startup preload finished")

	if err := refresh.Start(); err != nil {
		return err
	}
	// cycles in flight at shutdown run to completion so tracking state is persisted
	notifScheduler.Start(context.WithoutCancel(ctx))

	if bot != nil {
		router := app.NewNavigationRouter(app.CachedEventLookup(ctx, comps.store), base)
		telegram.RegisterNavigationHandlers(bot, payloads, router, base)
		telegram.RegisterBotCommands(ctx, bot, cfg.TelegramChatID, notifScheduler, comps.queue, base)
		go bot.Start()
	}

	mainLogger.Info("Agent running. Press Ctrl+C to stop.")
	<-ctx.Done()

	mainLogger.Info("Shutting down agent...")
	if bot != nil {
		bot.Stop()
	}
	notifScheduler.Stop()
	refresh.Stop()
	stopUI()
	<-ui.Done()
	mainLogger.Info("Agent shut down gracefully.")
	return nil
}

func handleCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	comps, err := buildComponents(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	base := logrus.NewEntry(logger.Log)
	settings := notificationSettings(cfg)
	settings.StepPause = 0
	service := app.NewNotificationServiceImpl(comps.client, comps.store, presenter.NewLogPresenter(base), settings, base)
	result := service.RunCycle(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "missed: %d, scheduled: %d, chat: %d, failures: %d\n",
		result.Past, result.Scheduled, result.Chat, result.Failures)
	return nil
}

func handlePreload(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	comps, err := buildComponents(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	report := comps.preload.PreloadAll(cmd.Context(), force)
	fmt.Fprintln(cmd.OutOrStdout(), summarizePreload(report))
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d dataset(s) failed to refresh", len(report.Failed))
	}
	return nil
}

func handleCacheClear(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	comps, err := buildComponents(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	n := comps.store.ClearAll(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cache key(s)\n", n)
	return nil
}

func handleQueueList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	comps, err := buildComponents(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	fmt.Fprintln(cmd.OutOrStdout(), app.FormatQueue(comps.queue.List(cmd.Context())))
	return nil
}

func handleQueueSync(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	comps, err := buildComponents(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	report := comps.queue.Drain(cmd.Context(), comps.client.SubmitScouting)
	fmt.Fprintf(cmd.OutOrStdout(), "submitted: %d, failed: %d, remaining: %d\n", report.Submitted, report.Failed, report.Remaining)
	if report.Failed > 0 {
		return fmt.Errorf("%d submission(s) could not be synced", report.Failed)
	}
	return nil
}

func consoleAlert(w io.Writer) presenter.AlertFunc {
	return func(title, body string) {
		fmt.Fprintf(w, "\n[notification] %s\n%s\n", title, body)
	}
}

func summarizePreload(r app.PreloadReport) string {
	if r.Skipped {
		return "preload skipped: " + r.Reason
	}
	parts := []string{}
	add := func(label string, list []app.Dataset) {
		if len(list) == 0 {
			return
		}
		names := make([]string, len(list))
		for i, d := range list {
			names[i] = string(d)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", label, strings.Join(names, ", ")))
	}
	add("fetched", r.Fetched)
	add("fresh", r.Fresh)
	add("empty", r.Empty)
	add("failed", r.Failed)
	add("no current event", r.Unresolved)
	if len(parts) == 0 {
		return "nothing to preload"
	}
	if r.EventCode != "" {
		parts = append(parts, "event: "+r.EventCode)
	}
	return strings.Join(parts, "; ")
}
