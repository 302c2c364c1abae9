package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"khamsat_bot/internal/access"
	"khamsat_bot/internal/bot"
	"khamsat_bot/internal/classify"
	"khamsat_bot/internal/config"
	"khamsat_bot/internal/preference"
	"khamsat_bot/internal/scheduler"
	"khamsat_bot/internal/seenset"
	"khamsat_bot/internal/source"
	"khamsat_bot/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	out, closeLog, err := logOutput(cfg.LogFile)
	if err != nil {
		slog.Error("open log file", "path", cfg.LogFile, "error", err)
		os.Exit(1)
	}
	defer closeLog()

	log := newLogger(cfg.LogLevel, out)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	tax, err := classify.Load(cfg.CategoriesFile)
	if err != nil {
		log.Error("load categories", "path", cfg.CategoriesFile, "error", err)
		os.Exit(1)
	}

	var parser source.Parser = source.HTMLParser{}
	if cfg.SourceFormat == config.FormatFeed {
		parser = source.FeedParser{}
	}
	src, err := source.New(source.NewHTTPClient(cfg.FetchTimeout), cfg.SourceURL, parser, tax, source.Options{
		MaxItems: cfg.MaxItems,
		MaxAge:   cfg.MaxPostAge,
		Timeout:  cfg.FetchTimeout,
	})
	if err != nil {
		log.Error("create source client", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	seen := seenset.Load(ctx, store, cfg.SeenCapacity, log)
	prefs := preference.New(store)
	registry := access.NewRegistry(store, cfg.AdminChatID)

	b, err := bot.New(cfg.TelegramBotToken, bot.Deps{
		Settings:    store,
		Access:      registry,
		Preferences: prefs,
		Seen:        seen,
		Source:      src,
		Taxonomy:    tax,
	}, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(scheduler.Deps{
		Source:      src,
		Notifier:    b,
		Audience:    registry,
		Preferences: prefs,
		Seen:        seen,
		Switch:      store,
	}, log)
	sched.SetIntervals(cfg.PollInterval, cfg.ErrorCooldown)

	active, err := store.IsMonitoringActive(ctx)
	if err != nil {
		log.Warn("read monitoring flag", "error", err)
	}
	log.Info("starting bot",
		"source", cfg.SourceURL,
		"format", cfg.SourceFormat,
		"monitoring", active,
		"admin_chat_id", cfg.AdminChatID,
	)
	if !active {
		b.Notify(cfg.AdminChatID, "🤖 تم تشغيل البوت. المراقبة متوقفة، استخدم /monitor on لتشغيلها.")
	}

	runAll(ctx, sched.Run, b.Run)

	log.Info("bot stopped")
}

// runAll runs each loop in its own goroutine and returns once all of them
// have returned.
func runAll(ctx context.Context, loops ...func(context.Context)) {
	var g errgroup.Group
	for _, loop := range loops {
		g.Go(func() error {
			loop(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// logOutput returns stderr, or stderr teed into path when path is set.
func logOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stderr, func() {}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, nil, err
	}
	return io.MultiWriter(os.Stderr, f), func() { _ = f.Close() }, nil
}
