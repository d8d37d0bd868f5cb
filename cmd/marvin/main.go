// Marvin is a Telegram chat assistant backed by an OpenAI-compatible
// model, with tool calling and durable reminders.
//
// Usage:
//
//	marvin [-config path/to/config.yaml]
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]); secrets can be kept
// in the environment and referenced from the file as ${VAR}.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tmadden/marvin/internal/agent"
	"github.com/tmadden/marvin/internal/bot"
	"github.com/tmadden/marvin/internal/config"
	"github.com/tmadden/marvin/internal/llm"
	"github.com/tmadden/marvin/internal/ratelimit"
	"github.com/tmadden/marvin/internal/reminder"
	"github.com/tmadden/marvin/internal/session"
	"github.com/tmadden/marvin/internal/telegram"
	"github.com/tmadden/marvin/internal/tools"
	"github.com/tmadden/marvin/internal/usage"
	"github.com/tmadden/marvin/internal/web"
)

const systemPrompt = `You are Marvin, a helpful personal assistant reachable over Telegram.
Answer concisely. Use the available tools when they help: calculate for
arithmetic, current_time for dates and times, manage_reminder for the
user's reminders, translate for translations. Reminder times must be
UTC in the format YYYY-MM-DDTHH:MM:SSZ.`

// main constructs the OS-level environment and delegates to run, which
// keeps os.Exit and os.Args out of the application logic.
func main() {
	if err := run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, args []string) error {
	fs := flag.NewFlagSet("marvin", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// A .env file is optional; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	path, err := config.FindConfig(*configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", path, err)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
	slog.SetDefault(logger)
	logger.Info("starting marvin", "config", path, "log_level", level)

	if cfg.Telegram.Token == "" {
		return errors.New("telegram.token is required")
	}
	if cfg.Backend.APIKey == "" {
		return errors.New("backend.api_key is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tg := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.APIURL, logger)
	if me, err := tg.Me(ctx); err != nil {
		logger.Warn("bot identity check failed", "error", err)
	} else {
		logger.Info("connected to telegram", "username", me.Username, "bot_id", me.ID)
	}

	backend := llm.NewClient(cfg.Backend.BaseURL, cfg.Backend.APIKey,
		cfg.Backend.Temperature, cfg.Backend.BackendTimeout(), logger)

	// Storage failures degrade the affected feature instead of taking
	// the chat down.
	reminders := reminder.Unavailable()
	if cfg.Reminders.Enabled {
		s, err := reminder.NewStore(filepath.Join(cfg.DataDir, "reminders.db"), cfg.Reminders.MaxPerUser)
		if err != nil {
			logger.Error("reminder store unavailable, feature disabled", "error", err)
		} else {
			reminders = s
		}
	}
	defer reminders.Close()

	ledger, err := usage.NewLedger(filepath.Join(cfg.DataDir, "usage.db"),
		cfg.Models.AutoSwitch,
		usage.Limits{
			Premium: cfg.Models.Premium.DailyTokenLimit,
			Mini:    cfg.Models.Mini.DailyTokenLimit,
		},
		usage.ParseAction(cfg.Models.LimitAction),
		logger,
	)
	if err != nil {
		logger.Error("usage ledger unavailable, accounting disabled", "error", err)
		ledger = usage.Disabled(logger)
	}
	defer ledger.Close()
	ledger.StartRollover(ctx)

	sessions := session.NewStore(
		time.Duration(cfg.Session.TimeoutMinutes)*time.Minute,
		cfg.Session.MaxRetainedMessages,
		cfg.Session.MaxHistoryTokens,
	)

	registry := tools.NewRegistry(logger)
	tools.RegisterCalculate(registry)
	tools.RegisterCurrentTime(registry, nil)
	tools.RegisterReminders(registry, reminders)
	tools.RegisterTranslate(registry, cfg.Tools.TranslateURL, logger)

	dispatcher := agent.NewDispatcher(logger, backend, registry, sessions, ledger,
		cfg.Models, cfg.Backend, systemPrompt)

	poller := reminder.NewPoller(reminders, reminderSender{tg},
		cfg.Reminders.PollInterval(), logger)
	go poller.Run(ctx)

	ops := web.NewServer(logger, ledger, reminders, sessions)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Listen.Address, cfg.Listen.Port),
		Handler: ops.Routes(),
	}
	go func() {
		logger.Info("ops api listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops api server failed", "error", err)
		}
	}()

	bridge := bot.NewBridge(logger, tg, dispatcher,
		ratelimit.New(cfg.RateLimit.MaxRequestsPerMinute),
		cfg.Telegram.PollTimeoutSec,
	)
	bridge.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops api shutdown failed", "error", err)
	}

	logger.Info("marvin stopped")
	return nil
}

// reminderSender adapts the Telegram client to the poller's Sender.
// Reminders go out as plain text; their content is user-authored and
// not markdown.
type reminderSender struct {
	client *telegram.Client
}

func (s reminderSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	return s.client.SendMessage(ctx, chatID, text, telegram.ModePlain)
}
