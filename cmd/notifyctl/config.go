package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
}

// configKeys lists every settable key in display order.
var configKeys = []string{
	"default.base_url",
	"listen.transport",
	"listen.max_attempts",
	"listen.desktop",
	"listen.sound",
	"listen.metrics_addr",
	"listen.webhook_secret",
}

// configValue reads a field using the same dot notation as setConfigValue.
// Secrets are masked.
func configValue(cfg *Config, key string) (string, error) {
	switch key {
	case "default.base_url":
		return cfg.Default.BaseURL, nil
	case "listen.transport":
		return cfg.Listen.Transport, nil
	case "listen.max_attempts":
		return strconv.Itoa(cfg.Listen.MaxAttempts), nil
	case "listen.desktop":
		return strconv.FormatBool(cfg.Listen.Desktop), nil
	case "listen.sound":
		return strconv.FormatBool(cfg.Listen.Sound), nil
	case "listen.metrics_addr":
		return cfg.Listen.MetricsAddr, nil
	case "listen.webhook_secret":
		if cfg.Listen.WebhookSecret == "" {
			return "", nil
		}
		return maskKey(cfg.Listen.WebhookSecret), nil
	}
	return "", fmt.Errorf("unknown config key %q", key)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage notifyctl configuration",
	Long:  "View or modify the notifyctl configuration stored in ~/.notifyctl/config.toml.",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  "Print every setting, with NOTIFY_URL applied over default.base_url.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		for _, key := range configKeys {
			v, _ := configValue(cfg, key)
			if v == "" {
				v = "(unset)"
			}
			fmt.Printf("%-22s %s\n", key, v)
		}
		if os.Getenv("NOTIFY_URL") != "" {
			fmt.Printf("\nServer in use: %s (from NOTIFY_URL)\n", baseURL(cfg))
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		v, err := configValue(cfg, args[0])
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value using dot notation.\nExample: notifyctl config set listen.desktop true",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := setConfigValue(cfg, key, args[1]); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		// Echo the stored form, which may be normalized or masked.
		stored, _ := configValue(cfg, key)
		fmt.Printf("Set %s = %s\n", key, stored)
		return nil
	},
}
