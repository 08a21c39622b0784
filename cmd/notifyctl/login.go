package main

import (
	"fmt"
	"time"

	notify "github.com/jobportal/notify-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <token>",
	Short: "Store a bearer token in the system keyring",
	Long:  "Store the bearer token issued by the job board in the system keyring.\nNOTIFY_TOKEN overrides the stored token.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]

		info, err := notify.InspectToken(token)
		if err != nil {
			fmt.Printf("Warning: token is not a readable JWT (%v)\n", err)
		} else if info.Expired(time.Now()) {
			return fmt.Errorf("token expired at %s", info.ExpiresAt.Format(time.RFC3339))
		}

		creds, err := openCredentials()
		if err != nil {
			return err
		}
		if err := creds.SetToken(token); err != nil {
			return err
		}

		if info.Subject != "" {
			fmt.Printf("Logged in as %s\n", info.Subject)
		} else {
			fmt.Println("Token saved")
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := openCredentials()
		if err != nil {
			return err
		}
		if err := creds.DeleteToken(); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}
