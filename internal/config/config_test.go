package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults alone should produce a valid config: %v", err)
	}
	if cfg.Monitor.BaseCurrency != "CAD" || cfg.Monitor.QuoteCurrency != "CNY" {
		t.Fatalf("unexpected default pair: %s/%s", cfg.Monitor.BaseCurrency, cfg.Monitor.QuoteCurrency)
	}
	if cfg.Monitor.MaxAttempts != 3 {
		t.Fatalf("unexpected default max attempts: %d", cfg.Monitor.MaxAttempts)
	}
	if cfg.Scheduler.Interval != 60*time.Minute {
		t.Fatalf("unexpected default interval: %s", cfg.Scheduler.Interval)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
monitor:
  base_currency: EUR
  quote_currency: USD
  threshold: 1.08
  attempt_timeout: 5s
scheduler:
  interval: 15m
alerting:
  enabled: true
  email:
    enabled: true
    smtp_host: smtp.example.com
    from: bot@example.com
    recipients:
      - a@example.com
      - b@example.com
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Monitor.BaseCurrency != "EUR" {
		t.Fatalf("file value should win: %s", cfg.Monitor.BaseCurrency)
	}
	if cfg.Monitor.AttemptTimeout != 5*time.Second {
		t.Fatalf("duration hook failed: %s", cfg.Monitor.AttemptTimeout)
	}
	if len(cfg.Alerting.Email.Recipients) != 2 {
		t.Fatalf("recipients not decoded: %v", cfg.Alerting.Email.Recipients)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero threshold", func(c *Config) { c.Monitor.Threshold = 0 }},
		{"zero attempts", func(c *Config) { c.Monitor.MaxAttempts = 0 }},
		{"zero interval", func(c *Config) { c.Scheduler.Interval = 0 }},
		{"missing quote currency", func(c *Config) { c.Monitor.QuoteCurrency = "" }},
		{"email without recipients", func(c *Config) {
			c.Alerting.Email.Enabled = true
			c.Alerting.Email.From = "bot@example.com"
			c.Alerting.Email.Recipients = nil
		}},
		{"telegram without token", func(c *Config) {
			c.Alerting.Telegram.Enabled = true
			c.Alerting.Telegram.ChatID = "chat"
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
