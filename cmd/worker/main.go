package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/bonafide55/shop-api/internal/app"
	"github.com/bonafide55/shop-api/internal/config"
	"github.com/bonafide55/shop-api/internal/notify"
	"github.com/bonafide55/shop-api/internal/obs"
	"github.com/bonafide55/shop-api/internal/order"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.New(ctx, cfg, logger, "shop-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	notifier := &notify.Notifier{
		Orders:    order.NewPGStore(deps.DB),
		Formatter: notify.NewFormatter(cfg.FreeShippingThreshold, cfg.SiteURL, ""),
		ChatID:    cfg.TelegramChatID,
		Logger:    logger,
	}
	if cfg.TelegramBotToken != "" {
		tg := notify.NewTelegram(cfg.TelegramAPIBaseURL, cfg.TelegramBotToken)
		tg.HTTP.Breaker.WithLogger(logger)
		notifier.Sender = tg
	} else {
		logger.Warn().Msg("telegram bot token not set, notifications will be skipped")
	}

	srv := asynq.NewServer(deps.TaskRedis, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues: map[string]int{
			notify.QueueNotifications: 6,
			"default":                 1,
		},
		Logger:   asynqLogger{logger},
		LogLevel: asynq.InfoLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error().Err(err).
				Str("task", task.Type()).
				Int("retried", retried).
				Int("max_retry", maxRetry).
				Msg("task_failed")
		}),
	})
	if err := srv.Start(notifier.Mux()); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker started")

	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	srv.Shutdown()
}

// asynqLogger routes asynq's internal logs through zerolog.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
