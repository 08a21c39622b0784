package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	notify "github.com/jobportal/notify-go"
	"github.com/jobportal/notify-go/internal/credential"
)

// openCredentials opens the token store under the config directory.
func openCredentials() (*credential.Store, error) {
	dir, err := configDir()
	if err != nil {
		return nil, err
	}
	return credential.Open(filepath.Join(dir, "credentials"))
}

// resolveToken returns NOTIFY_TOKEN when set, else the stored token.
// An empty string means logged out.
func resolveToken() (string, error) {
	if t := os.Getenv("NOTIFY_TOKEN"); t != "" {
		return t, nil
	}
	creds, err := openCredentials()
	if err != nil {
		return "", err
	}
	t, err := creds.Token()
	if errors.Is(err, credential.ErrNotFound) {
		return "", nil
	}
	return t, err
}

// baseURL returns NOTIFY_URL when set, else the configured server URL.
func baseURL(cfg *Config) string {
	if u := os.Getenv("NOTIFY_URL"); u != "" {
		return u
	}
	if cfg.Default.BaseURL != "" {
		return cfg.Default.BaseURL
	}
	return notify.DefaultURL
}

// getClient creates a REST client authenticated with the stored token.
func getClient() *notify.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	token, err := resolveToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read token: %v\n", err)
		os.Exit(1)
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "Not logged in. Run 'notifyctl login <token>' first.")
		os.Exit(1)
	}
	return notify.NewClient(token, notify.WithBaseURL(baseURL(cfg)))
}
