package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wardenlabs/adwarden/internal/api"
	"github.com/wardenlabs/adwarden/internal/browser"
	"github.com/wardenlabs/adwarden/internal/cdp"
	"github.com/wardenlabs/adwarden/internal/config"
	"github.com/wardenlabs/adwarden/internal/engine"
	"github.com/wardenlabs/adwarden/internal/gql"
	"github.com/wardenlabs/adwarden/internal/inject"
	"github.com/wardenlabs/adwarden/internal/intercept"
	"github.com/wardenlabs/adwarden/internal/metrics"
	"github.com/wardenlabs/adwarden/internal/netutil"
	"github.com/wardenlabs/adwarden/internal/notify"
	"github.com/wardenlabs/adwarden/internal/relay"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("warden starting",
		"cdp_address", cfg.CDPAddress,
		"cdp_port", cfg.CDPPort,
		"tab_url_filter", cfg.TabURLFilter,
		"strip_ad_segments", cfg.StripAdSegments,
		"ad_signifier", cfg.AdSignifier,
		"api_addr", cfg.APIAddr,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ManageBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	patcher, err := inject.NewPatcher(inject.Options{
		StripAdSegments:  cfg.StripAdSegments,
		ShowAdBanner:     cfg.ShowAdBanner,
		AdSignifier:      cfg.AdSignifier,
		ClientID:         cfg.ClientID,
		GQLEndpoint:      cfg.GQLEndpoint,
		UsherEndpoint:    cfg.UsherEndpoint,
		BackupPlayerType: cfg.BackupPlayerType,
		BackupPlatform:   cfg.BackupPlatform,
	}, cfg.TargetSiteSuffix)
	if err != nil {
		slog.Error("failed to build worker bundle", "error", err)
		os.Exit(1)
	}

	creds := gql.NewCredentials()
	httpClient := &http.Client{Timeout: 15 * time.Second}
	gqlClient := gql.NewClient(cfg.GQLEndpoint, cfg.ClientID, creds, httpClient)

	m := metrics.New()
	broker := relay.NewBroker()
	registry := engine.NewRegistry()
	notifier := &lateNotifier{}

	eng := engine.New(engine.Options{
		StripAdSegments:  cfg.StripAdSegments,
		ShowAdBanner:     cfg.ShowAdBanner,
		NotifyAdsWatched: cfg.NotifyAdsWatched,
		AdSignifier:      cfg.AdSignifier,
		BackupPlayerType: cfg.BackupPlayerType,
		BackupPlatform:   cfg.BackupPlatform,
		UsherEndpoint:    cfg.UsherEndpoint,
	}, registry, gqlClient, gqlClient, playlistFetcher(httpClient), notifier, m)

	interceptor := intercept.New(eng, patcher, m, broker, cfg.WorkerScriptHint)

	dispatcher := relay.NewDispatcher()
	cdpClient := cdp.NewClient(cfg, interceptor, patcher, dispatcher, creds, registry)
	notifier.bind(cdp.NewNotifier(cdpClient))
	registerRelayHandlers(dispatcher, notifier)

	if err := cdpClient.Connect(ctx); err != nil {
		slog.Error("failed to connect to browser", "error", err)
		slog.Info("make sure Chromium is running with remote debugging enabled")
		os.Exit(1)
	}
	defer func() {
		if err := cdpClient.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	if cfg.NtfyEndpoint != "" {
		pusher := notify.NewPusher(cfg.NtfyEndpoint, httpClient)
		go pusher.Watch(ctx, broker)
		slog.Info("push notifications enabled", "endpoint", cfg.NtfyEndpoint)
	}

	bindAddr, err := netutil.SelectBindAddr(cfg.APIAddr, nil, false)
	if err != nil {
		slog.Error("API bind address unavailable", "addr", cfg.APIAddr, "error", err)
		os.Exit(1)
	}

	svc := &agentService{
		registry:   registry,
		creds:      creds,
		tokens:     gqlClient,
		client:     cdpClient,
		metrics:    m,
		playerType: probePlayerType(cfg),
	}
	srv := &http.Server{Addr: bindAddr, Handler: api.NewServer(svc, broker, m.Handler(svc.updateGauges))}

	go func() {
		slog.Info("warden API listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("warden running", "tabs", cdpClient.GetTabCount())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("API shutdown failed", "error", err)
	}
	slog.Info("warden stopped")
}

// playlistFetcher adapts a plain HTTP client to the engine's fetch shape.
func playlistFetcher(client *http.Client) engine.Fetcher {
	return func(ctx context.Context, url string) (*engine.FetchResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &engine.FetchResult{Status: resp.StatusCode, Body: body}, nil
	}
}

// registerRelayHandlers routes messages posted by the in-page worker bundle
// to the same player signals the engine uses.
func registerRelayHandlers(dispatcher *relay.Dispatcher, notifier engine.Notifier) {
	dispatcher.Register(relay.KeyReloadPlayer, func(ctx context.Context, value json.RawMessage) {
		notifier.ReloadPlayer(ctx)
	})
	dispatcher.Register(relay.KeyShowAdBanner, func(ctx context.Context, value json.RawMessage) {
		var midroll bool
		if len(value) > 0 {
			if err := json.Unmarshal(value, &midroll); err != nil {
				slog.Debug("undecodable banner payload", "error", err)
			}
		}
		notifier.ShowAdBanner(ctx, midroll)
	})
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
