package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	dbfs "github.com/StoryBB/StoryBB-sub005/db"
	"github.com/StoryBB/StoryBB-sub005/api"
	"github.com/StoryBB/StoryBB-sub005/internal/admin"
	"github.com/StoryBB/StoryBB-sub005/internal/auth"
	"github.com/StoryBB/StoryBB-sub005/internal/config"
	"github.com/StoryBB/StoryBB-sub005/internal/customfields"
	"github.com/StoryBB/StoryBB-sub005/internal/db"
	"github.com/StoryBB/StoryBB-sub005/internal/forum"
	"github.com/StoryBB/StoryBB-sub005/internal/lang"
	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/payments"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/internal/profile"
	"github.com/StoryBB/StoryBB-sub005/internal/repository/sqlite"
	"github.com/StoryBB/StoryBB-sub005/internal/settings"
	"github.com/StoryBB/StoryBB-sub005/internal/tasks"
	"github.com/StoryBB/StoryBB-sub005/internal/telemetry"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func newLogger(level string) *slog.Logger {
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
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	var configPath = flag.String("config", "", "Path to config YAML file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	api.SetLogger(logger)
	auth.SetLogger(logger)
	admin.SetLogger(logger)
	forum.SetLogger(logger)
	notify.SetLogger(logger)
	profile.SetLogger(logger)

	logger.Info("starting StoryBB", slog.String("version", version), slog.String("built", buildTime))

	ctx := context.Background()

	shutdownTracing, err := telemetry.Setup(ctx, "storybb", version, cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}

	// Open database connection
	conn, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	if err := db.Migrate(ctx, conn, dbfs.Migrations, dbfs.SeedFiles); err != nil {
		log.Fatalf("Failed to migrate DB: %v", err)
	}

	bundle, err := lang.Load()
	if err != nil {
		log.Fatalf("Failed to load languages: %v", err)
	}
	if err := bundle.Register(); err != nil {
		log.Fatalf("Failed to register languages: %v", err)
	}

	repo := sqlite.New(conn, logger)
	store := settings.NewStore(repo)
	fields, err := customfields.NewValidator(ctx, repo)
	if err != nil {
		log.Fatalf("Failed to load custom fields: %v", err)
	}
	queue := tasks.NewQueue(conn)
	notifier := notify.NewNotifier(queue)

	gateways := []payments.Gateway{payments.Manual{}}
	if cfg.Payments.TokenSecret != "" {
		gateways = append(gateways, payments.NewToken(cfg.Payments.TokenSecret, cfg.Payments.CheckoutURL))
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenDuration)
	profileSvc := profile.NewService(profile.Deps{
		Store:    repo,
		Settings: store,
		Notifier: notifier,
		Fields:   fields,
		Payments: payments.NewRegistry(gateways...),
		Bundle:   bundle,
	})

	runner := tasks.NewRunner(queue, map[string]tasks.Handler{
		tasks.TypeAlertDispatch:       notify.NewDispatcher(repo, bundle, queue).Handle,
		tasks.TypeMailFlush:           notify.NewFlusher(repo, notify.LogMailer{}, cfg.MailFrom).Handle,
		tasks.TypeWarningsDecay:       profileSvc.DecayWarnings,
		tasks.TypeSubscriptionsExpire: profileSvc.ExpireSubscriptions,
	}, logger, cfg.Workers, tasks.WithRecurring(
		tasks.Recurring{Type: tasks.TypeMailFlush, Every: time.Minute},
		tasks.Recurring{Type: tasks.TypeWarningsDecay, Every: 24 * time.Hour},
		tasks.Recurring{Type: tasks.TypeSubscriptionsExpire, Every: time.Hour},
	))
	if err := runner.Start(ctx); err != nil {
		log.Fatalf("Failed to start task runner: %v", err)
	}

	handler := api.SetupRoutes(api.Deps{
		Config:    cfg,
		Bundle:    bundle,
		Checker:   permissions.NewChecker(repo, store),
		Tokens:    tokens,
		Auth:      auth.NewService(repo, store, tokens),
		Profile:   profileSvc,
		Forum:     forum.NewService(repo, notifier),
		Admin:     admin.NewService(repo, store, fields),
		DB:        conn.GetConn(),
		Version:   version,
		BuildTime: buildTime,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.APITimeout,
		WriteTimeout: cfg.APITimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("err", err))
	}
	runner.Stop()
	if err := shutdownTracing(ctx); err != nil {
		logger.Error("flush traces", slog.Any("err", err))
	}

	// Close database connection
	if err := conn.Close(); err != nil {
		logger.Error("close DB", slog.Any("err", err))
	}

	logger.Info("server exited")
}
