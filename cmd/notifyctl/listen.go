package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	notify "github.com/jobportal/notify-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	listenJSON      bool
	listenMetrics   string
	listenTransport string
	listenDesktop   bool
	listenSound     bool
)

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().BoolVar(&listenJSON, "json", false, "Print one JSON object per event")
	listenCmd.Flags().StringVar(&listenMetrics, "metrics", "", "Serve /metrics (and /webhook when a secret is configured) on this address")
	listenCmd.Flags().StringVar(&listenTransport, "transport", "", "auto, websocket or sse (default from config)")
	listenCmd.Flags().BoolVar(&listenDesktop, "desktop", false, "Show desktop notifications")
	listenCmd.Flags().BoolVar(&listenSound, "sound", false, "Beep on new notifications")
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Stream live notifications",
	Long:  "Connect to the server and print notifications and unread-count updates as they arrive.\nExits when the connection gives up reconnecting or on Ctrl-C.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		token, err := resolveToken()
		if err != nil {
			return fmt.Errorf("failed to read token: %w", err)
		}
		if token == "" {
			return fmt.Errorf("not logged in; run 'notifyctl login <token>' first")
		}
		if !cmd.Flags().Changed("desktop") {
			listenDesktop = cfg.Listen.Desktop
		}
		if !cmd.Flags().Changed("sound") {
			listenSound = cfg.Listen.Sound
		}
		if listenTransport == "" {
			listenTransport = cfg.Listen.Transport
		}
		if listenMetrics == "" {
			listenMetrics = cfg.Listen.MetricsAddr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdown, err := initOTEL(ctx)
		if err != nil {
			return err
		}
		defer func() {
			c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(c)
		}()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		metrics := notify.NewMetrics(reg)

		url := baseURL(cfg)
		transport, err := pickTransport(listenTransport, url)
		if err != nil {
			return err
		}
		backoff := notify.DefaultBackoff
		if cfg.Listen.MaxAttempts > 0 {
			backoff.MaxAttempts = cfg.Listen.MaxAttempts
		}

		sc := notify.SessionConfig{
			Config: notify.Config{
				URL:       url,
				Transport: transport,
				Backoff:   backoff,
				Logger:    slog.Default(),
				Metrics:   metrics,
			},
			API:     notify.NewClient(token, notify.WithBaseURL(url)),
			Prepare: prepareSession,
		}
		if listenDesktop || listenSound {
			var perm notify.Permission = notify.NewPermissionVar(notify.PermissionDenied)
			if listenDesktop {
				perm = notify.NewPermissionVar(notify.PermissionDefault)
			}
			sc.Effects = notify.NewDesktopEffects(perm, listenSound, notify.EffectsConfig{
				Logger:  slog.Default(),
				Metrics: metrics,
			})
		}

		creds := notify.NewCredentialVar(token)
		provider := notify.NewProvider(creds, sc)
		runDone := make(chan struct{})
		go func() {
			defer close(runDone)
			provider.Run(ctx)
		}()
		defer func() {
			stop()
			<-runDone
		}()

		if listenMetrics != "" {
			srv := metricsServer(listenMetrics, reg, cfg.Listen.WebhookSecret, provider)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("metrics server", "error", err)
				}
			}()
			defer srv.Close()
		}

		var s *notify.Session
		for s = range provider.Sessions(ctx) {
			if s != nil {
				break
			}
		}
		if s == nil {
			return nil
		}
		return follow(notify.WithSession(ctx, s))
	},
}

// prepareSession wires the printers and loads the inbox before the session
// connects, so no pushed event is missed or overwritten by the initial load.
func prepareSession(ctx context.Context, s *notify.Session) {
	s.Router().OnNotification(func(n notify.Notification) {
		if listenJSON {
			printEvent("notification", n)
			return
		}
		printNotification(n)
	})
	s.Router().OnUnreadCount(func(count int) {
		if listenJSON {
			printEvent("unread_count", map[string]int{"unreadCount": count})
			return
		}
		fmt.Printf("Unread: %d\n", count)
	})

	if err := s.Refresh(ctx); err != nil {
		slog.Warn("initial load failed", "error", err)
	} else if !listenJSON {
		fmt.Printf("Unread: %d\n", s.UnreadCount())
	}
}

// follow reports the connection state of the session in ctx until ctx ends
// or the retry policy gives up.
func follow(ctx context.Context) error {
	s := notify.FromContext(ctx)

	wasUp := false
	for sc := range s.ObserveState(ctx) {
		slog.Info("connection state", "state", sc.State)
		switch sc.State {
		case notify.StateConnected:
			if !wasUp && !listenJSON {
				fmt.Println("Connected. Waiting for notifications...")
			}
			wasUp = true
		case notify.StateDisconnected:
			if ctx.Err() == nil {
				return fmt.Errorf("connection lost and reconnect attempts exhausted")
			}
		}
	}
	return nil
}

func printEvent(kind string, data any) {
	b, err := json.Marshal(map[string]any{"type": kind, "data": data})
	if err != nil {
		return
	}
	fmt.Println(string(b))
}

func pickTransport(name, url string) (notify.Transport, error) {
	switch name {
	case "", "auto":
		return notify.DefaultTransport(url, http.DefaultClient), nil
	case "websocket":
		return &notify.WebSocketTransport{URL: url}, nil
	case "sse":
		return &notify.SSETransport{URL: url}, nil
	}
	return nil, fmt.Errorf("unknown transport %q (valid: auto, websocket, sse)", name)
}

func metricsServer(addr string, reg *prometheus.Registry, webhookSecret string, provider *notify.Provider) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if webhookSecret != "" {
		wh, err := notify.NewWebhookReceiver(webhookSecret, provider.Session)
		if err == nil {
			mux.Handle("/webhook", wh.HTTPHandler())
		}
	}
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
