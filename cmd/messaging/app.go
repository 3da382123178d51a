package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/service-reminders/internal/cache"
	"github.com/LeventeLantos/service-reminders/internal/client"
	"github.com/LeventeLantos/service-reminders/internal/config"
	"github.com/LeventeLantos/service-reminders/internal/dispatch"
	"github.com/LeventeLantos/service-reminders/internal/ratelimit"
	"github.com/LeventeLantos/service-reminders/internal/reminder"
	"github.com/LeventeLantos/service-reminders/internal/repo"
	"github.com/LeventeLantos/service-reminders/internal/scheduler"
	"github.com/LeventeLantos/service-reminders/internal/service"
)

// app holds the wired components shared by the serve and dispatch-once commands.
type app struct {
	db  *sql.DB
	rdb *redis.Client

	messages   *repo.PostgresMessageRepo
	inbound    *repo.PostgresInboundRepo
	notifier   *service.Notifier
	dispatcher *dispatch.Dispatcher
	loop       *scheduler.Scheduler
	location   *time.Location
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.db, err = repo.Open(ctx, cfg.Database.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err = repo.Migrate(a.db); err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err = a.rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Backend == config.BackendRedis {
		limiter, err = ratelimit.NewRedisWindow(a.rdb, cfg.RateLimit.PerHour, time.Hour)
	} else {
		limiter, err = ratelimit.NewSlidingWindow(cfg.RateLimit.PerHour, time.Hour)
	}
	if err != nil {
		return nil, err
	}

	var carrier service.SendClient
	switch cfg.Carrier.Kind {
	case config.CarrierTwilio:
		carrier, err = client.NewTwilioClient(cfg.Carrier.TwilioSID, cfg.Carrier.TwilioToken)
		if err != nil {
			return nil, err
		}
	default:
		carrier = client.NewWebhookClient(cfg.Carrier.WebhookURL, cfg.Carrier.Timeout)
	}

	gateway := service.NewGateway(carrier, limiter, cfg.Carrier.From,
		service.WithContentMax(cfg.Messages.ContentMax),
		service.WithCarrierTimeout(cfg.Carrier.Timeout),
		service.WithLogger(logger.With("component", "gateway")),
	)

	a.messages = repo.NewPostgresMessageRepo(a.db)
	a.inbound = repo.NewPostgresInboundRepo(a.db)
	records := repo.NewPostgresServiceRecordRepo(a.db)

	reminders, err := reminder.New(a.messages, reminder.Config{
		SendTime: cfg.Reminder.SendTime,
		Timezone: cfg.Reminder.Timezone,
		Template: cfg.Reminder.Template,
	}, logger.With("component", "reminder"))
	if err != nil {
		return nil, err
	}
	a.location, err = time.LoadLocation(cfg.Reminder.Timezone)
	if err != nil {
		return nil, err
	}

	a.notifier = service.NewNotifier(gateway, a.messages, records, reminders, logger.With("component", "notifier"))

	opts := []dispatch.Option{
		dispatch.WithBatchSize(cfg.Scheduler.BatchSize),
		dispatch.WithWorkers(cfg.Scheduler.Workers),
		dispatch.WithLogger(logger.With("component", "dispatch")),
	}
	if a.rdb != nil {
		opts = append(opts, dispatch.WithCache(cache.NewRedisCache(a.rdb, cfg.Redis.TTL), cfg.Scheduler.ClaimTTL))
	}
	a.dispatcher = dispatch.New(a.messages, gateway, opts...)

	a.loop, err = scheduler.New(cfg.Scheduler.Interval, func(ctx context.Context) {
		a.dispatcher.RunCycle(ctx)
	}, scheduler.WithLogger(logger.With("component", "scheduler")))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
