package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func TestLoadAll_Defaults(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/crm?sslmode=disable")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Database.PostgresURL != "postgres://u:p@localhost:5432/crm?sslmode=disable" {
		t.Fatalf("unexpected PostgresURL: %q", cfg.Database.PostgresURL)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Scheduler.Interval != time.Minute {
		t.Fatalf("unexpected Scheduler.Interval default: %v", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.BatchSize != 50 {
		t.Fatalf("unexpected Scheduler.BatchSize default: %d", cfg.Scheduler.BatchSize)
	}
	if cfg.Retry.Loop.Interval != 2*time.Minute {
		t.Fatalf("unexpected Retry.Loop.Interval default: %v", cfg.Retry.Loop.Interval)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Fatalf("unexpected Retry.MaxRetries default: %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.InitialDelay != 5*time.Second {
		t.Fatalf("unexpected Retry.InitialDelay default: %v", cfg.Retry.InitialDelay)
	}
	if cfg.Retry.Multiplier != 2 {
		t.Fatalf("unexpected Retry.Multiplier default: %d", cfg.Retry.Multiplier)
	}
	if cfg.Retry.MaxDelay != 5*time.Minute {
		t.Fatalf("unexpected Retry.MaxDelay default: %v", cfg.Retry.MaxDelay)
	}
	if cfg.RateLimit.SweepInterval != 5*time.Minute {
		t.Fatalf("unexpected SweepInterval default: %v", cfg.RateLimit.SweepInterval)
	}
	if cfg.Dispatch.SendTimeout != 15*time.Second {
		t.Fatalf("unexpected SendTimeout default: %v", cfg.Dispatch.SendTimeout)
	}

	sms, ok := cfg.RateLimit.Classes["sms"]
	if !ok {
		t.Fatalf("expected sms rate class")
	}
	if sms.Max != 10 || sms.Window != time.Hour {
		t.Fatalf("unexpected sms class: %+v", sms)
	}
	email := cfg.RateLimit.Classes["email"]
	if email.Max != 20 || email.Window != time.Hour {
		t.Fatalf("unexpected email class: %+v", email)
	}
	api := cfg.RateLimit.Classes["api"]
	if api.Max != 100 || api.Window != time.Minute {
		t.Fatalf("unexpected api class: %+v", api)
	}

	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
	if cfg.RateLimit.UseRedis {
		t.Fatalf("expected in-memory rate limiter by default")
	}
}

func TestLoadAll_Overrides(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/crm")
	t.Setenv("SCHED_INTERVAL_SECONDS", "30")
	t.Setenv("SCHED_BATCH_SIZE", "10")
	t.Setenv("RETRY_MAX", "5")
	t.Setenv("RETRY_INITIAL_MS", "1000")
	t.Setenv("RETRY_MULTIPLIER", "3")
	t.Setenv("RETRY_MAX_DELAY_MS", "60000")
	t.Setenv("RATE_SMS_MAX", "2")
	t.Setenv("RATE_SMS_WINDOW_SECONDS", "60")
	t.Setenv("SMS_WEBHOOK_URL", "https://sms.example.com/send")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Scheduler.Interval != 30*time.Second {
		t.Fatalf("unexpected Scheduler.Interval: %v", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.BatchSize != 10 {
		t.Fatalf("unexpected Scheduler.BatchSize: %d", cfg.Scheduler.BatchSize)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Fatalf("unexpected Retry.MaxRetries: %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.InitialDelay != time.Second {
		t.Fatalf("unexpected Retry.InitialDelay: %v", cfg.Retry.InitialDelay)
	}
	if cfg.Retry.Multiplier != 3 {
		t.Fatalf("unexpected Retry.Multiplier: %d", cfg.Retry.Multiplier)
	}

	sms := cfg.RateLimit.Classes["sms"]
	if sms.Max != 2 || sms.Window != time.Minute {
		t.Fatalf("unexpected sms class: %+v", sms)
	}

	if cfg.Providers.SMSWebhookURL != "https://sms.example.com/send" {
		t.Fatalf("unexpected SMSWebhookURL: %q", cfg.Providers.SMSWebhookURL)
	}
}

func TestLoadAll_WithRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/crm")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("RATE_LIMIT_REDIS", "true")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if !cfg.Redis.Enabled {
		t.Fatalf("expected Redis enabled")
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Fatalf("unexpected Redis.Address: %q", cfg.Redis.Address)
	}
	if cfg.Redis.Password != "secret" {
		t.Fatalf("unexpected Redis.Password: %q", cfg.Redis.Password)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("unexpected Redis.DB: %d", cfg.Redis.DB)
	}
	if !cfg.RateLimit.UseRedis {
		t.Fatalf("expected Redis rate limiter")
	}
}

func TestLoadAll_RedisLimiterRequiresRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/crm")
	t.Setenv("RATE_LIMIT_REDIS", "true")

	_, err := LoadAll()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "REDIS_ADDR") {
		t.Fatalf("expected error mentioning REDIS_ADDR, got: %v", err)
	}
}

func TestLoadAll_RequiredEnvMissing(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := LoadAll()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "POSTGRES_URL") {
		t.Fatalf("expected error mentioning POSTGRES_URL, got: %v", err)
	}
}

func TestLoadAll_InvalidInts(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid SCHED_INTERVAL_SECONDS", "SCHED_INTERVAL_SECONDS", "nope"},
		{"invalid SCHED_BATCH_SIZE", "SCHED_BATCH_SIZE", "x"},
		{"invalid RETRY_MAX", "RETRY_MAX", "three"},
		{"invalid RETRY_INITIAL_MS", "RETRY_INITIAL_MS", "5s"},
		{"invalid RATE_SMS_MAX", "RATE_SMS_MAX", "many"},
		{"invalid SMTP_PORT", "SMTP_PORT", "mail"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)

			t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/crm")
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestLoadAll_ValidationFailures(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"batch size <= 0", "SCHED_BATCH_SIZE", "0", "SCHED_BATCH_SIZE"},
		{"interval <= 0", "SCHED_INTERVAL_SECONDS", "0", "SCHED_INTERVAL_SECONDS"},
		{"retry interval <= 0", "RETRY_INTERVAL_SECONDS", "-1", "RETRY_INTERVAL_SECONDS"},
		{"multiplier < 1", "RETRY_MULTIPLIER", "0", "RETRY_MULTIPLIER"},
		{"rate max <= 0", "RATE_EMAIL_MAX", "0", "RATE_EMAIL_MAX"},
		{"send timeout <= 0", "SEND_TIMEOUT_SECONDS", "0", "SEND_TIMEOUT_SECONDS"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)

			t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/crm")
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestJoinErrors(t *testing.T) {
	if err := joinErrors(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	e1 := errors.New("one")
	e2 := errors.New("two")
	err := joinErrors([]error{e1, e2})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !errors.Is(err, e1) {
		t.Fatalf("expected errors.Is(err, e1) to be true")
	}
	if !errors.Is(err, e2) {
		t.Fatalf("expected errors.Is(err, e2) to be true")
	}
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"POSTGRES_URL",
		"SERVER_ADDRESS",
		"SCHED_INTERVAL_SECONDS",
		"SCHED_BATCH_SIZE",
		"RETRY_INTERVAL_SECONDS",
		"RETRY_BATCH_SIZE",
		"RETRY_MAX",
		"RETRY_INITIAL_MS",
		"RETRY_MULTIPLIER",
		"RETRY_MAX_DELAY_MS",
		"RATE_SWEEP_SECONDS",
		"RATE_LIMIT_REDIS",
		"RATE_SMS_MAX",
		"RATE_SMS_WINDOW_SECONDS",
		"RATE_WHATSAPP_MAX",
		"RATE_WHATSAPP_WINDOW_SECONDS",
		"RATE_EMAIL_MAX",
		"RATE_EMAIL_WINDOW_SECONDS",
		"RATE_API_MAX",
		"RATE_API_WINDOW_SECONDS",
		"SMS_WEBHOOK_URL",
		"SMS_WEBHOOK_TOKEN",
		"WHATSAPP_WEBHOOK_URL",
		"WHATSAPP_WEBHOOK_TOKEN",
		"SMTP_HOST",
		"SMTP_PORT",
		"SMTP_USERNAME",
		"SMTP_PASSWORD",
		"SMTP_FROM",
		"SEND_TIMEOUT_SECONDS",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"REDIS_TTL_SECONDS",
	}
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}
