package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/calloutcrm/delivery/internal/api"
	"github.com/calloutcrm/delivery/internal/channel"
	"github.com/calloutcrm/delivery/internal/config"
	"github.com/calloutcrm/delivery/internal/dispatch"
	"github.com/calloutcrm/delivery/internal/loop"
	"github.com/calloutcrm/delivery/internal/model"
	"github.com/calloutcrm/delivery/internal/ratelimit"
	"github.com/calloutcrm/delivery/internal/repo"
	"github.com/calloutcrm/delivery/internal/retry"
	"github.com/calloutcrm/delivery/internal/scheduler"
	"github.com/calloutcrm/delivery/internal/sink"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.LoadAll()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := repo.EnsureSchema(ctx, db); err != nil {
		return err
	}

	contacts := repo.NewPostgresContactStore(db)
	messages := repo.NewPostgresMessageStore(db)
	scheduled := repo.NewPostgresScheduledMessageStore(db)

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return err
		}
	}

	classes := make(map[string]ratelimit.Class, len(cfg.RateLimit.Classes))
	for name, c := range cfg.RateLimit.Classes {
		classes[name] = ratelimit.Class{Window: c.Window, Max: c.Max}
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.UseRedis {
		limiter = ratelimit.NewRedisLimiter(rdb, classes)
		logger.Info("rate limiting via redis")
	} else {
		mem := ratelimit.NewMemoryLimiter(classes, cfg.RateLimit.SweepInterval)
		defer mem.Close()
		limiter = mem
	}

	registry := channel.NewRegistry()
	if cfg.Providers.SMSWebhookURL != "" {
		registry.Register(model.ChannelSMS,
			channel.NewWebhookSender("sms", cfg.Providers.SMSWebhookURL, cfg.Providers.SMSWebhookToken))
	}
	if cfg.Providers.WhatsAppWebhookURL != "" {
		registry.Register(model.ChannelWhatsApp,
			channel.NewWebhookSender("whatsapp", cfg.Providers.WhatsAppWebhookURL, cfg.Providers.WhatsAppToken))
	}
	if smtp := cfg.Providers.SMTP; smtp.Host != "" {
		registry.Register(model.ChannelEmail,
			channel.NewSMTPSender(smtp.Host, smtp.Port, smtp.Username, smtp.Password, smtp.From))
	}
	logger.Info("channel registry built", "channels", registry.Channels())

	var events sink.EventSink = sink.Noop{}
	if cfg.Redis.Enabled {
		events = sink.NewRedisSink(rdb, cfg.Redis.TTL)
	}

	dispatcher := dispatch.New(registry, limiter, cfg.Dispatch.SendTimeout)

	backoff := retry.Backoff{
		Initial:    cfg.Retry.InitialDelay,
		Multiplier: cfg.Retry.Multiplier,
		Max:        cfg.Retry.MaxDelay,
	}

	scheduledJob := loop.NewScheduledJob(scheduled, messages, contacts, dispatcher, events, cfg.Scheduler.BatchSize)
	retryJob := loop.NewRetryJob(messages, contacts, dispatcher, backoff, cfg.Retry.MaxRetries, cfg.Retry.Loop.BatchSize)

	schedLoop, err := scheduler.New("scheduler", cfg.Scheduler.Interval, false, scheduledJob.Tick)
	if err != nil {
		return err
	}
	retryLoop, err := scheduler.New("retry", cfg.Retry.Loop.Interval, true, retryJob.Tick)
	if err != nil {
		return err
	}

	schedLoop.Start()
	retryLoop.Start()
	defer func() {
		retryLoop.Stop()
		schedLoop.Stop()
	}()

	handler := api.NewHandler([]*scheduler.Loop{schedLoop, retryLoop}, messages, limiter)
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(handler)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
