package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler LoopConfig
	Retry     RetryConfig
	RateLimit RateLimitConfig
	Providers ProvidersConfig
	Dispatch  DispatchConfig
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

// LoopConfig configures one polling loop (tick interval and batch bound).
type LoopConfig struct {
	Interval  time.Duration
	BatchSize int
}

type RetryConfig struct {
	Loop         LoopConfig
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   int
	MaxDelay     time.Duration
}

type RateLimitConfig struct {
	// UseRedis moves window counters to Redis so multiple processes share
	// one quota. Requires Redis to be enabled.
	UseRedis      bool
	SweepInterval time.Duration
	Classes       map[string]ClassConfig
}

type ClassConfig struct {
	Window time.Duration
	Max    int
}

type ProvidersConfig struct {
	SMSWebhookURL      string
	SMSWebhookToken    string
	WhatsAppWebhookURL string
	WhatsAppToken      string
	SMTP               SMTPConfig
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type DispatchConfig struct {
	SendTimeout time.Duration
}

func LoadAll() (*Config, error) {
	var errs []error

	postgresURL, err := requireEnv("POSTGRES_URL")
	if err != nil {
		errs = append(errs, err)
	}

	schedInterval, err := getEnvInt("SCHED_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, err)
	}
	schedBatch, err := getEnvInt("SCHED_BATCH_SIZE", 50)
	if err != nil {
		errs = append(errs, err)
	}

	retryInterval, err := getEnvInt("RETRY_INTERVAL_SECONDS", 120)
	if err != nil {
		errs = append(errs, err)
	}
	retryBatch, err := getEnvInt("RETRY_BATCH_SIZE", 50)
	if err != nil {
		errs = append(errs, err)
	}
	maxRetries, err := getEnvInt("RETRY_MAX", 3)
	if err != nil {
		errs = append(errs, err)
	}
	initialDelayMS, err := getEnvInt("RETRY_INITIAL_MS", 5000)
	if err != nil {
		errs = append(errs, err)
	}
	multiplier, err := getEnvInt("RETRY_MULTIPLIER", 2)
	if err != nil {
		errs = append(errs, err)
	}
	maxDelayMS, err := getEnvInt("RETRY_MAX_DELAY_MS", 300000)
	if err != nil {
		errs = append(errs, err)
	}

	sweepSeconds, err := getEnvInt("RATE_SWEEP_SECONDS", 300)
	if err != nil {
		errs = append(errs, err)
	}
	classes, classErrs := loadRateClasses()
	errs = append(errs, classErrs...)

	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		errs = append(errs, err)
	}

	sendTimeout, err := getEnvInt("SEND_TIMEOUT_SECONDS", 15)
	if err != nil {
		errs = append(errs, err)
	}

	redisCfg, redisErrs := loadRedisConfig()
	errs = append(errs, redisErrs...)

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: postgresURL,
		},
		Redis: redisCfg,
		Scheduler: LoopConfig{
			Interval:  time.Duration(schedInterval) * time.Second,
			BatchSize: schedBatch,
		},
		Retry: RetryConfig{
			Loop: LoopConfig{
				Interval:  time.Duration(retryInterval) * time.Second,
				BatchSize: retryBatch,
			},
			MaxRetries:   maxRetries,
			InitialDelay: time.Duration(initialDelayMS) * time.Millisecond,
			Multiplier:   multiplier,
			MaxDelay:     time.Duration(maxDelayMS) * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			UseRedis:      getEnv("RATE_LIMIT_REDIS", "false") == "true",
			SweepInterval: time.Duration(sweepSeconds) * time.Second,
			Classes:       classes,
		},
		Providers: ProvidersConfig{
			SMSWebhookURL:      getEnv("SMS_WEBHOOK_URL", ""),
			SMSWebhookToken:    getEnv("SMS_WEBHOOK_TOKEN", ""),
			WhatsAppWebhookURL: getEnv("WHATSAPP_WEBHOOK_URL", ""),
			WhatsAppToken:      getEnv("WHATSAPP_WEBHOOK_TOKEN", ""),
			SMTP: SMTPConfig{
				Host:     getEnv("SMTP_HOST", ""),
				Port:     smtpPort,
				Username: getEnv("SMTP_USERNAME", ""),
				Password: getEnv("SMTP_PASSWORD", ""),
				From:     getEnv("SMTP_FROM", ""),
			},
		},
		Dispatch: DispatchConfig{
			SendTimeout: time.Duration(sendTimeout) * time.Second,
		},
	}

	errs = append(errs, validate(cfg)...)

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Rate classes ship with provider-compliance defaults and can be overridden
// per class via RATE_<CLASS>_MAX / RATE_<CLASS>_WINDOW_SECONDS.
var defaultClasses = map[string]ClassConfig{
	"sms":      {Window: time.Hour, Max: 10},
	"whatsapp": {Window: time.Hour, Max: 10},
	"email":    {Window: time.Hour, Max: 20},
	"api":      {Window: time.Minute, Max: 100},
}

func loadRateClasses() (map[string]ClassConfig, []error) {
	var errs []error
	classes := make(map[string]ClassConfig, len(defaultClasses))

	for name, def := range defaultClasses {
		upper := envClassName(name)

		maxReq, err := getEnvInt("RATE_"+upper+"_MAX", def.Max)
		if err != nil {
			errs = append(errs, err)
		}
		windowSeconds, err := getEnvInt("RATE_"+upper+"_WINDOW_SECONDS", int(def.Window/time.Second))
		if err != nil {
			errs = append(errs, err)
		}

		classes[name] = ClassConfig{
			Window: time.Duration(windowSeconds) * time.Second,
			Max:    maxReq,
		}
	}
	return classes, errs
}

func envClassName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

func loadRedisConfig() (RedisConfig, []error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error
	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		errs = append(errs, err)
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, errs
}

func validate(cfg *Config) []error {
	var errs []error

	if cfg.Scheduler.BatchSize <= 0 {
		errs = append(errs, errors.New("SCHED_BATCH_SIZE must be > 0"))
	}
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Retry.Loop.BatchSize <= 0 {
		errs = append(errs, errors.New("RETRY_BATCH_SIZE must be > 0"))
	}
	if cfg.Retry.Loop.Interval <= 0 {
		errs = append(errs, errors.New("RETRY_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("RETRY_MAX must be >= 0"))
	}
	if cfg.Retry.InitialDelay <= 0 {
		errs = append(errs, errors.New("RETRY_INITIAL_MS must be > 0"))
	}
	if cfg.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("RETRY_MULTIPLIER must be >= 1"))
	}
	if cfg.Retry.MaxDelay < cfg.Retry.InitialDelay {
		errs = append(errs, errors.New("RETRY_MAX_DELAY_MS must be >= RETRY_INITIAL_MS"))
	}
	if cfg.RateLimit.SweepInterval <= 0 {
		errs = append(errs, errors.New("RATE_SWEEP_SECONDS must be > 0"))
	}
	for name, class := range cfg.RateLimit.Classes {
		if class.Max <= 0 {
			errs = append(errs, fmt.Errorf("RATE_%s_MAX must be > 0", envClassName(name)))
		}
		if class.Window <= 0 {
			errs = append(errs, fmt.Errorf("RATE_%s_WINDOW_SECONDS must be > 0", envClassName(name)))
		}
	}
	if cfg.RateLimit.UseRedis && !cfg.Redis.Enabled {
		errs = append(errs, errors.New("RATE_LIMIT_REDIS requires REDIS_ADDR"))
	}
	if cfg.Dispatch.SendTimeout <= 0 {
		errs = append(errs, errors.New("SEND_TIMEOUT_SECONDS must be > 0"))
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
		return 0, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
