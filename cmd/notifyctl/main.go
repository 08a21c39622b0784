package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.notifyctl/config.toml.
type Config struct {
	Default ConfigDefault `toml:"default"`
	Listen  ConfigListen  `toml:"listen"`
}

// ConfigDefault holds connection settings.
type ConfigDefault struct {
	BaseURL string `toml:"base_url"`
}

// ConfigListen holds settings for the listen command.
type ConfigListen struct {
	Transport     string `toml:"transport"` // "auto", "websocket" or "sse"
	MaxAttempts   int    `toml:"max_attempts"`
	Desktop       bool   `toml:"desktop"`
	Sound         bool   `toml:"sound"`
	MetricsAddr   string `toml:"metrics_addr"`
	WebhookSecret string `toml:"webhook_secret"`
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the path to ~/.notifyctl, creating it if needed.
// NOTIFYCTL_HOME overrides the location.
func configDir() (string, error) {
	dir := os.Getenv("NOTIFYCTL_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, ".notifyctl")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the full path to the config file.
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads and parses the config file.
// If the file does not exist, it returns a zero-value Config.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

// saveConfig writes the config struct back to disk as TOML.
func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a config field using dot notation (e.g. "default.base_url").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. default.base_url)")
	}
	section, field := parts[0], parts[1]

	switch section {
	case "default":
		switch field {
		case "base_url":
			cfg.Default.BaseURL = strings.TrimRight(value, "/")
		default:
			return fmt.Errorf("unknown field %q in section [default]", field)
		}
	case "listen":
		switch field {
		case "transport":
			switch value {
			case "auto", "websocket", "sse":
			default:
				return fmt.Errorf("transport must be auto, websocket or sse")
			}
			cfg.Listen.Transport = value
		case "max_attempts":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return fmt.Errorf("max_attempts must be a non-negative integer")
			}
			cfg.Listen.MaxAttempts = n
		case "desktop", "sound":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("%s must be true or false", field)
			}
			if field == "desktop" {
				cfg.Listen.Desktop = b
			} else {
				cfg.Listen.Sound = b
			}
		case "metrics_addr":
			cfg.Listen.MetricsAddr = value
		case "webhook_secret":
			cfg.Listen.WebhookSecret = value
		default:
			return fmt.Errorf("unknown field %q in section [listen]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: default, listen)", section)
	}
	return nil
}

// ============================================================================
// Root command
// ============================================================================

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "notifyctl",
	Short: "Job board notification CLI",
	Long:  "Command-line client for job board notifications.\nLog in, stream live notifications, and manage your inbox.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine.
		_ = godotenv.Load()

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log connection details to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
