package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LeventeLantos/service-reminders/internal/reminder"
)

const (
	CarrierWebhook = "webhook"
	CarrierTwilio  = "twilio"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Carrier   CarrierConfig
	RateLimit RateLimitConfig
	Messages  MessagesConfig
	Reminder  ReminderConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
	Workers   int
	ClaimTTL  time.Duration
}

type CarrierConfig struct {
	Kind        string
	WebhookURL  string
	TwilioSID   string
	TwilioToken string
	From        string
	Timeout     time.Duration
}

type RateLimitConfig struct {
	PerHour int
	Backend string
}

type MessagesConfig struct {
	ContentMax       int
	CostCents        int
	InboundAutoReply string
}

type ReminderConfig struct {
	SendTime string
	Timezone string
	Template string
}

type LogConfig struct {
	Level  string
	Format string
}

const defaultAutoReply = "Thanks for your message! We'll get back to you soon."

// LoadAll reads the environment and reports every problem at once.
func LoadAll() (*Config, error) {
	var errs []error

	str := func(key string) string {
		v, err := requireEnv(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	num := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	secs := func(key string, def int) time.Duration {
		return time.Duration(num(key, def)) * time.Second
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: str("POSTGRES_URL"),
		},
		Scheduler: SchedulerConfig{
			Interval:  secs("DISPATCH_INTERVAL_SECONDS", 60),
			BatchSize: num("DISPATCH_BATCH_SIZE", 500),
			Workers:   num("DISPATCH_WORKERS", 1),
			ClaimTTL:  secs("DISPATCH_CLAIM_TTL_SECONDS", 300),
		},
		Carrier: CarrierConfig{
			Kind:    strings.ToLower(getEnv("CARRIER", CarrierWebhook)),
			From:    os.Getenv("SMS_FROM"),
			Timeout: secs("CARRIER_TIMEOUT_SECONDS", 10),
		},
		RateLimit: RateLimitConfig{
			PerHour: num("RATE_LIMIT_PER_HOUR", 10),
			Backend: strings.ToLower(getEnv("RATE_LIMIT_BACKEND", BackendMemory)),
		},
		Messages: MessagesConfig{
			ContentMax:       num("MESSAGE_MAX_LENGTH", 4800),
			CostCents:        num("SMS_COST_CENTS", 10),
			InboundAutoReply: getEnv("INBOUND_AUTO_REPLY", defaultAutoReply),
		},
		Reminder: ReminderConfig{
			SendTime: getEnv("REMINDER_SEND_TIME", reminder.DefaultSendTime),
			Timezone: getEnv("REMINDER_TIMEZONE", reminder.DefaultTimezone),
			Template: os.Getenv("REMINDER_TEMPLATE"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	switch cfg.Carrier.Kind {
	case CarrierWebhook:
		cfg.Carrier.WebhookURL = str("WEBHOOK_URL")
	case CarrierTwilio:
		cfg.Carrier.TwilioSID = str("TWILIO_ACCOUNT_SID")
		cfg.Carrier.TwilioToken = str("TWILIO_AUTH_TOKEN")
		cfg.Carrier.From = str("SMS_FROM")
	default:
		errs = append(errs, fmt.Errorf("CARRIER must be %q or %q, got %q", CarrierWebhook, CarrierTwilio, cfg.Carrier.Kind))
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Redis = redisCfg

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, dbErr := getEnvInt("REDIS_DB", 0)
	ttl, ttlErr := getEnvInt("REDIS_TTL_SECONDS", 86400)

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, errors.Join(dbErr, ttlErr)
}

func validate(cfg *Config) []error {
	var errs []error
	positive := func(key string, v int64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", key))
		}
	}

	positive("DISPATCH_BATCH_SIZE", int64(cfg.Scheduler.BatchSize))
	positive("DISPATCH_INTERVAL_SECONDS", int64(cfg.Scheduler.Interval))
	positive("DISPATCH_WORKERS", int64(cfg.Scheduler.Workers))
	positive("DISPATCH_CLAIM_TTL_SECONDS", int64(cfg.Scheduler.ClaimTTL))
	positive("CARRIER_TIMEOUT_SECONDS", int64(cfg.Carrier.Timeout))
	positive("RATE_LIMIT_PER_HOUR", int64(cfg.RateLimit.PerHour))
	positive("MESSAGE_MAX_LENGTH", int64(cfg.Messages.ContentMax))

	if cfg.Messages.CostCents < 0 {
		errs = append(errs, errors.New("SMS_COST_CENTS must be >= 0"))
	}

	switch cfg.RateLimit.Backend {
	case BackendMemory:
	case BackendRedis:
		if os.Getenv("REDIS_ADDR") == "" {
			errs = append(errs, errors.New("RATE_LIMIT_BACKEND=redis requires REDIS_ADDR"))
		}
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, cfg.RateLimit.Backend))
	}

	if _, _, err := reminder.ParseSendTime(cfg.Reminder.SendTime); err != nil {
		errs = append(errs, fmt.Errorf("REMINDER_SEND_TIME: %w", err))
	}
	if _, err := time.LoadLocation(cfg.Reminder.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("REMINDER_TIMEZONE: %w", err))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
