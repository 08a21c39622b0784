package main

import (
	"os"
	"strings"
	"path/filepath"
	"testing"

	notify "github.com/jobportal/notify-go"
)

func TestSetConfigValue(t *testing.T) {
	t.Run("valid keys", func(t *testing.T) {
		cfg := &Config{}
		sets := map[string]string{
			"default.base_url":      "https://jobs.example.com/",
			"listen.transport":      "sse",
			"listen.max_attempts":   "8",
			"listen.desktop":        "true",
			"listen.sound":          "true",
			"listen.metrics_addr":   ":9090",
			"listen.webhook_secret": "s3cret",
		}
		for k, v := range sets {
			if err := setConfigValue(cfg, k, v); err != nil {
				t.Fatalf("%s: %v", k, err)
			}
		}
		if cfg.Default.BaseURL != "https://jobs.example.com" {
			t.Fatalf("expected trailing slash trimmed, got %q", cfg.Default.BaseURL)
		}
		if cfg.Listen.Transport != "sse" || cfg.Listen.MaxAttempts != 8 || !cfg.Listen.Desktop || !cfg.Listen.Sound {
			t.Fatalf("unexpected listen section %+v", cfg.Listen)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		bad := map[string]string{
			"base_url":            "x",
			"default.nope":        "x",
			"listen.transport":    "carrier-pigeon",
			"listen.max_attempts": "-1",
			"listen.desktop":      "maybe",
			"other.key":           "x",
		}
		for k, v := range bad {
			if err := setConfigValue(&Config{}, k, v); err == nil {
				t.Fatalf("%s=%s: expected error", k, v)
			}
		}
	})
}

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NOTIFYCTL_HOME", dir)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load missing config: %v", err)
	}
	if cfg.Default.BaseURL != "" {
		t.Fatalf("expected zero config, got %+v", cfg)
	}

	cfg.Default.BaseURL = "https://jobs.example.com"
	cfg.Listen.Transport = "websocket"
	cfg.Listen.MaxAttempts = 3
	if err := saveConfig(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}

	got, err := loadConfig()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *got != *cfg {
		t.Fatalf("expected %+v, got %+v", cfg, got)
	}
}

func TestBaseURL(t *testing.T) {
	t.Setenv("NOTIFY_URL", "")
	if got := baseURL(&Config{}); got != notify.DefaultURL {
		t.Fatalf("expected default, got %s", got)
	}
	cfg := &Config{Default: ConfigDefault{BaseURL: "https://cfg.example.com"}}
	if got := baseURL(cfg); got != "https://cfg.example.com" {
		t.Fatalf("expected config url, got %s", got)
	}
	t.Setenv("NOTIFY_URL", "https://env.example.com")
	if got := baseURL(cfg); got != "https://env.example.com" {
		t.Fatalf("expected env url, got %s", got)
	}
}

func TestPickTransport(t *testing.T) {
	cases := map[string]string{
		"":          "websocket+sse",
		"auto":      "websocket+sse",
		"websocket": "websocket",
		"sse":       "sse",
	}
	for name, want := range cases {
		tr, err := pickTransport(name, "http://localhost:5000")
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		if tr.Name() != want {
			t.Fatalf("%q: expected %s, got %s", name, want, tr.Name())
		}
	}
	if _, err := pickTransport("carrier-pigeon", "http://localhost:5000"); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey("short"); got != "****" {
		t.Fatalf("expected ****, got %s", got)
	}
	if got := maskKey("eyJhbGciOiJIUzI1NiJ9.payload.sig"); got != "eyJhbGci....sig" {
		t.Fatalf("unexpected mask %s", got)
	}
}

func TestConfigValue(t *testing.T) {
	cfg := &Config{}

	t.Run("every listed key reads", func(t *testing.T) {
		for _, key := range configKeys {
			if _, err := configValue(cfg, key); err != nil {
				t.Fatalf("%s: %v", key, err)
			}
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := configValue(cfg, "listen.colour")
		if err == nil || !strings.Contains(err.Error(), "unknown config key") {
			t.Fatalf("expected unknown key error, got %v", err)
		}
	})

	t.Run("reads back normalized value", func(t *testing.T) {
		if err := setConfigValue(cfg, "default.base_url", "https://jobs.example.com/"); err != nil {
			t.Fatalf("set: %v", err)
		}
		if v, _ := configValue(cfg, "default.base_url"); v != "https://jobs.example.com" {
			t.Fatalf("unexpected base_url %q", v)
		}
		if err := setConfigValue(cfg, "listen.max_attempts", "7"); err != nil {
			t.Fatalf("set: %v", err)
		}
		if v, _ := configValue(cfg, "listen.max_attempts"); v != "7" {
			t.Fatalf("unexpected max_attempts %q", v)
		}
	})

	t.Run("secret is masked", func(t *testing.T) {
		if v, _ := configValue(cfg, "listen.webhook_secret"); v != "" {
			t.Fatalf("expected empty secret, got %q", v)
		}
		cfg.Listen.WebhookSecret = "short"
		if v, _ := configValue(cfg, "listen.webhook_secret"); v != "****" {
			t.Fatalf("expected short secret masked, got %q", v)
		}
		cfg.Listen.WebhookSecret = "whsec_0123456789abcdef"
		if v, _ := configValue(cfg, "listen.webhook_secret"); v != "whsec_01...cdef" {
			t.Fatalf("expected long secret masked, got %q", v)
		}
	})
}
