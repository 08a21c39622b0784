package main

import (
	"context"
	"fmt"
	"time"

	notify "github.com/jobportal/notify-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and account status",
	Long:  "Display the current configuration, check whether the token has expired, and fetch the live unread count.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Print config summary.
		fmt.Println("Configuration:")
		fmt.Printf("  Server:      %s\n", baseURL(cfg))
		fmt.Printf("  Transport:   %s\n", valueOrDefault(cfg.Listen.Transport, "auto"))
		fmt.Printf("  Desktop:     %t\n", cfg.Listen.Desktop)
		fmt.Printf("  Sound:       %t\n", cfg.Listen.Sound)

		fmt.Println()
		fmt.Println("Auth:")
		token, err := resolveToken()
		if err != nil {
			fmt.Printf("  Token:       error reading keyring: %v\n", err)
			return nil
		}
		if token == "" {
			fmt.Println("  Token:       none")
			return nil
		}
		fmt.Printf("  Token:       %s\n", maskKey(token))

		// Check token expiry.
		tokenStatus := "present (not a JWT)"
		if info, err := notify.InspectToken(token); err == nil {
			if info.Subject != "" {
				fmt.Printf("  Subject:     %s\n", info.Subject)
			}
			switch {
			case info.ExpiresAt.IsZero():
				tokenStatus = "present (no expiry set)"
			case info.Expired(time.Now()):
				tokenStatus = fmt.Sprintf("EXPIRED (expired %s)", info.ExpiresAt.Format(time.RFC3339))
			default:
				tokenStatus = fmt.Sprintf("valid (expires %s)", info.ExpiresAt.Format(time.RFC3339))
			}
		}
		fmt.Printf("  Status:      %s\n", tokenStatus)

		fmt.Println()
		fmt.Println("Live status:")

		client := notify.NewClient(token, notify.WithBaseURL(baseURL(cfg)))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		count, err := client.Notifications.UnreadCount(ctx)
		if err != nil {
			fmt.Printf("  Error fetching unread count: %v\n", err)
			return nil
		}
		fmt.Printf("  Unread:      %d\n", count)
		return nil
	},
}

// maskKey shows the first 8 and last 4 characters of a token.
func maskKey(key string) string {
	if len(key) <= 12 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
