package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	notify "github.com/jobportal/notify-go"
	"github.com/spf13/cobra"
)

// ============================================================================
// Flag variables
// ============================================================================

var (
	notifJSONOutput bool

	// notifications list
	notifListPage   int
	notifListLimit  int
	notifListUnread bool
	notifListRead   bool
)

func init() {
	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.PersistentFlags().BoolVar(&notifJSONOutput, "json", false, "Print raw JSON")

	notificationsListCmd.Flags().IntVar(&notifListPage, "page", 1, "Page number")
	notificationsListCmd.Flags().IntVar(&notifListLimit, "limit", 20, "Page size")
	notificationsListCmd.Flags().BoolVar(&notifListUnread, "unread", false, "Only unread notifications")
	notificationsListCmd.Flags().BoolVar(&notifListRead, "read", false, "Only read notifications")
	notificationsListCmd.MarkFlagsMutuallyExclusive("unread", "read")

	notificationsCmd.AddCommand(
		notificationsListCmd,
		notificationsGetCmd,
		notificationsUnreadCmd,
		notificationsReadCmd,
		notificationsReadAllCmd,
		notificationsDeleteCmd,
		notificationsDeleteAllCmd,
	)
}

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"n"},
	Short:   "Manage your notifications",
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printNotification(n notify.Notification) {
	mark := " "
	if !n.IsRead {
		mark = "*"
	}
	fmt.Printf("%s %-24s  %s  %s\n", mark, n.ID, n.CreatedAt, n.Title)
	if n.Description != "" {
		fmt.Printf("  %-24s  %s\n", "", n.Description)
	}
}

// ============================================================================
// notifications list
// ============================================================================

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := requestContext()
		defer cancel()

		opts := &notify.ListOptions{Page: notifListPage, Limit: notifListLimit}
		if notifListUnread || notifListRead {
			isRead := notifListRead
			opts.IsRead = &isRead
		}
		page, err := client.Notifications.List(ctx, opts)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if notifJSONOutput {
			return printJSON(page)
		}
		if len(page.Notifications) == 0 {
			fmt.Println("No notifications.")
			return nil
		}
		for _, n := range page.Notifications {
			printNotification(n)
		}
		p := page.Pagination
		fmt.Printf("\nPage %d of %d (%d total)\n", p.Page, p.Pages, p.Total)
		return nil
	},
}

// ============================================================================
// notifications get
// ============================================================================

var notificationsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := requestContext()
		defer cancel()

		n, err := client.Notifications.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if notifJSONOutput {
			return printJSON(n)
		}
		fmt.Printf("ID:          %s\n", n.ID)
		fmt.Printf("Title:       %s\n", n.Title)
		fmt.Printf("Description: %s\n", n.Description)
		fmt.Printf("Read:        %t\n", n.IsRead)
		fmt.Printf("Created:     %s\n", n.CreatedAt)
		fmt.Printf("Updated:     %s\n", n.UpdatedAt)
		return nil
	},
}

// ============================================================================
// notifications unread
// ============================================================================

var notificationsUnreadCmd = &cobra.Command{
	Use:   "unread",
	Short: "Print the unread count",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := requestContext()
		defer cancel()

		count, err := client.Notifications.UnreadCount(ctx)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if notifJSONOutput {
			return printJSON(notify.UnreadCountData{UnreadCount: count})
		}
		fmt.Println(strconv.Itoa(count))
		return nil
	},
}

// ============================================================================
// notifications read / read-all / delete / delete-all
// ============================================================================

var notificationsReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark a notification as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := requestContext()
		defer cancel()

		if err := client.Notifications.MarkRead(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Marked %s as read\n", args[0])
		return nil
	},
}

var notificationsReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification as read",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := requestContext()
		defer cancel()

		if err := client.Notifications.MarkAllRead(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("All notifications marked as read")
		return nil
	},
}

var notificationsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := requestContext()
		defer cancel()

		if err := client.Notifications.Delete(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var notificationsDeleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Delete every notification",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := requestContext()
		defer cancel()

		if err := client.Notifications.DeleteAll(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("All notifications deleted")
		return nil
	},
}
